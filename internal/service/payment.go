package service

import (
	"context"
	"errors"
	"math"

	"github.com/mkravets/traincenter-system/internal/model"
)

// RecordPayment записывает платёж по заявке. Сумма принимается в рублях,
// округляется до копейки и хранится в копейках; производные поля заявки
// пересчитываются репозиторием в той же транзакции. Возвращает платёж и
// обновлённую заявку.
func (s *Service) RecordPayment(ctx context.Context, enrollmentID int64, amount float64, method model.PaymentMethod, transactionID *string) (*model.Payment, *model.Enrollment, error) {
	amountCents := int64(math.Round(amount * 100))
	if amountCents <= 0 {
		return nil, nil, errors.New("payment amount must be positive")
	}

	if transactionID != nil && *transactionID == "" {
		transactionID = nil
	}

	return s.repo.RecordPayment(ctx, enrollmentID, amountCents, method, transactionID)
}
