package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mkravets/traincenter-system/internal/model"
)

// IssueCertificate выдаёт сертификат с указанным кодом одной транзакцией.
// Уникальность пары (заявка, тип) и глобальная уникальность кода обеспечиваются
// ограничениями БД, а не предварительной проверкой: повторная выдача даёт
// ErrCertificateExists, коллизия кода — ErrCodeTaken для перегенерации кода
// вызывающей стороной. Предусловие для типа completion проверяется под
// блокировкой строки заявки.
func (r *PostgresRepository) IssueCertificate(ctx context.Context, enrollmentID int64, certType model.CertificateType, code, issuedBy string) (*model.Certificate, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx,
		`SELECT `+enrollmentColumns+` FROM enrollments WHERE id = $1 FOR UPDATE`, enrollmentID)
	enrollment, err := scanEnrollment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEnrollmentNotFound
		}
		return nil, fmt.Errorf("lock enrollment: %w", err)
	}

	if certType == model.CertificateTypeCompletion && enrollment.Status != model.EnrollmentStatusCompleted {
		return nil, fmt.Errorf("%w: status %s", ErrCertificateNotEarned, enrollment.Status)
	}

	cert := model.Certificate{
		Code:         code,
		Type:         certType,
		HolderName:   enrollment.Name,
		FormationID:  enrollment.FormationID,
		SessionID:    enrollment.SessionID,
		EnrollmentID: enrollmentID,
		IssuedBy:     issuedBy,
		Verified:     true,
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO certificates (code, type, holder_name, formation_id, session_id, enrollment_id, issued_by, verified)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE)
		 RETURNING id, issued_at`,
		cert.Code, string(cert.Type), cert.HolderName, cert.FormationID, cert.SessionID,
		cert.EnrollmentID, cert.IssuedBy,
	).Scan(&cert.ID, &cert.IssuedAt)
	if err != nil {
		if isUniqueViolation(err, "certificates_enrollment_type_key") {
			return nil, ErrCertificateExists
		}
		if isUniqueViolation(err, "certificates_code_key") {
			return nil, ErrCodeTaken
		}
		return nil, fmt.Errorf("insert certificate: %w", err)
	}

	// Обратная ссылка с заявки устанавливается однажды: certificate_id сохраняет
	// первый выданный сертификат, флаг отражает наличие хотя бы одного.
	_, err = tx.Exec(ctx,
		`UPDATE enrollments
		 SET certificate_issued = TRUE, certificate_id = COALESCE(certificate_id, $2)
		 WHERE id = $1`,
		enrollmentID, cert.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("update enrollment certificate ref: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &cert, nil
}

// GetCertificateSnapshot возвращает снимок сертификата для проверки по коду.
// Операция только читает данные.
func (r *PostgresRepository) GetCertificateSnapshot(ctx context.Context, code string) (*model.CertificateSnapshot, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT c.code, c.type, c.holder_name, f.title, s.starts_at, c.enrollment_id,
		        c.issued_by, c.issued_at, c.verified
		 FROM certificates c
		 JOIN formations f ON f.id = c.formation_id
		 LEFT JOIN sessions s ON s.id = c.session_id
		 WHERE c.code = $1`,
		code,
	)

	var snap model.CertificateSnapshot
	err := row.Scan(
		&snap.Code, &snap.Type, &snap.HolderName, &snap.FormationTitle, &snap.SessionStartsAt,
		&snap.EnrollmentID, &snap.IssuedBy, &snap.IssuedAt, &snap.Verified,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCertificateNotFound
		}
		return nil, fmt.Errorf("get certificate: %w", err)
	}

	return &snap, nil
}

// ConfirmCertificate выставляет флаг verified по коду сертификата.
func (r *PostgresRepository) ConfirmCertificate(ctx context.Context, code string) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE certificates SET verified = TRUE WHERE code = $1`, code,
	)
	if err != nil {
		return fmt.Errorf("confirm certificate: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrCertificateNotFound
	}
	return nil
}
