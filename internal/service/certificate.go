package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/mkravets/traincenter-system/internal/model"
	"github.com/mkravets/traincenter-system/internal/repository"
)

// maxCodeAttempts ограничивает число перегенераций кода при коллизиях.
const maxCodeAttempts = 10

var certCodePrefixes = map[model.CertificateType]string{
	model.CertificateTypeCompletion: "CMP",
	model.CertificateTypeAttendance: "ATT",
	model.CertificateTypeExcellence: "EXC",
}

// certificateCode составляет публичный код сертификата: префикс типа,
// идентификаторы программы и заявки, случайный суффикс.
func certificateCode(certType model.CertificateType, formationID, enrollmentID int64) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:8]
	return fmt.Sprintf("%s-%d-%d-%s", certCodePrefixes[certType], formationID, enrollmentID, suffix)
}

// IssueCertificate выдаёт сертификат указанного типа по завершённой заявке.
// Повторная выдача той же пары (заявка, тип) отклоняется репозиторием.
// При коллизии кода генерация повторяется до maxCodeAttempts раз, затем
// возвращается ErrCodeExhausted.
func (s *Service) IssueCertificate(ctx context.Context, enrollmentID int64, certType model.CertificateType, issuedBy string) (*model.Certificate, error) {
	enrollment, err := s.repo.GetEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code := certificateCode(certType, enrollment.FormationID, enrollmentID)

		cert, err := s.repo.IssueCertificate(ctx, enrollmentID, certType, code, issuedBy)
		if err != nil {
			if errors.Is(err, repository.ErrCodeTaken) {
				continue
			}
			return nil, err
		}

		return cert, nil
	}

	return nil, ErrCodeExhausted
}

// VerifyCertificate возвращает снимок сертификата по публичному коду.
// Проверка ничего не изменяет; снимок читается через кэш, если он настроен.
func (s *Service) VerifyCertificate(ctx context.Context, code string) (*model.CertificateSnapshot, error) {
	if snap := s.verifyCache.GetSnapshot(ctx, code); snap != nil {
		return snap, nil
	}

	snap, err := s.repo.GetCertificateSnapshot(ctx, code)
	if err != nil {
		return nil, err
	}

	s.verifyCache.SetSnapshot(ctx, snap)
	return snap, nil
}

// ConfirmVerification административно подтверждает сертификат по коду.
func (s *Service) ConfirmVerification(ctx context.Context, code string) error {
	if err := s.repo.ConfirmCertificate(ctx, code); err != nil {
		return err
	}

	s.verifyCache.Invalidate(ctx, code)
	return nil
}
