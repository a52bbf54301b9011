// Package validation содержит функции валидации входных данных.
package validation

import (
	"errors"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Struct проверяет структуру запроса по её validate-тегам.
func Struct(v any) error {
	return validate.Struct(v)
}

// IsValidationError возвращает true, если ошибка вызвана содержимым запроса,
// а не внутренним сбоем валидатора.
func IsValidationError(err error) bool {
	var verr validator.ValidationErrors
	return errors.As(err, &verr)
}
