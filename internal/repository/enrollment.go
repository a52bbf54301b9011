package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mkravets/traincenter-system/internal/model"
)

const enrollmentColumns = `id, name, email, phone, address, formation_id, session_id,
	status, payment_status, total_amount, paid_amount, certificate_issued, certificate_id, created_at`

func scanEnrollment(row pgx.Row) (*model.Enrollment, error) {
	var (
		e             model.Enrollment
		status        string
		paymentStatus string
	)
	err := row.Scan(
		&e.ID, &e.Name, &e.Email, &e.Phone, &e.Address, &e.FormationID, &e.SessionID,
		&status, &paymentStatus, &e.TotalCents, &e.PaidCents,
		&e.CertificateIssued, &e.CertificateID, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Status = model.EnrollmentStatus(status)
	e.PaymentStatus = model.PaymentStatus(paymentStatus)
	return &e, nil
}

// CreateEnrollment сохраняет новую заявку в статусе pending.
func (r *PostgresRepository) CreateEnrollment(ctx context.Context, e *model.Enrollment) (*model.Enrollment, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO enrollments (name, email, phone, address, formation_id, session_id, status, payment_status, total_amount)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING `+enrollmentColumns,
		e.Name, e.Email, e.Phone, e.Address, e.FormationID, e.SessionID,
		string(model.EnrollmentStatusPending), string(model.PaymentStatusUnpaid), e.TotalCents,
	)

	created, err := scanEnrollment(row)
	if err != nil {
		return nil, fmt.Errorf("create enrollment: %w", err)
	}
	return created, nil
}

// GetEnrollment возвращает заявку по идентификатору.
func (r *PostgresRepository) GetEnrollment(ctx context.Context, id int64) (*model.Enrollment, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+enrollmentColumns+` FROM enrollments WHERE id = $1`, id)

	e, err := scanEnrollment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEnrollmentNotFound
		}
		return nil, fmt.Errorf("get enrollment: %w", err)
	}
	return e, nil
}

// TransitionEnrollment переводит заявку в целевой статус одной транзакцией.
// Допустимость перехода проверяется под блокировкой строки заявки, чтобы два
// конкурентных перехода не прошли по одному и тому же исходному статусу.
// Вход в статус, занимающий место, захватывает место в сессии атомарно с
// проверкой лимита; отмена из такого статуса освобождает место. Возвращает
// обновлённую заявку и идентификатор сессии, в которой место освободилось.
func (r *PostgresRepository) TransitionEnrollment(ctx context.Context, id int64, target model.EnrollmentStatus) (*model.Enrollment, *int64, error) {
	var (
		updated  *model.Enrollment
		released *int64
	)

	err := r.withRetry(ctx, func() error {
		updated = nil
		released = nil

		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		row := tx.QueryRow(ctx,
			`SELECT `+enrollmentColumns+` FROM enrollments WHERE id = $1 FOR UPDATE`, id)
		current, err := scanEnrollment(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrEnrollmentNotFound
			}
			return fmt.Errorf("lock enrollment: %w", err)
		}

		if !current.Status.CanTransitionTo(target) {
			return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, current.Status, target)
		}

		claim := target.HoldsSeat() && !current.Status.HoldsSeat()
		release := current.Status.HoldsSeat() && target == model.EnrollmentStatusCancelled

		if current.SessionID != nil && claim {
			if err := claimSeat(ctx, tx, *current.SessionID); err != nil {
				return err
			}
		}

		if current.SessionID != nil && release {
			if err := releaseSeat(ctx, tx, *current.SessionID); err != nil {
				return err
			}
			released = current.SessionID
		}

		row = tx.QueryRow(ctx,
			`UPDATE enrollments SET status = $2 WHERE id = $1 RETURNING `+enrollmentColumns,
			id, string(target),
		)
		updated, err = scanEnrollment(row)
		if err != nil {
			return fmt.Errorf("update enrollment status: %w", err)
		}

		return tx.Commit(ctx)
	})
	if err != nil {
		return nil, nil, err
	}

	return updated, released, nil
}

// claimSeat атомарно занимает место в сессии под блокировкой её строки.
func claimSeat(ctx context.Context, tx pgx.Tx, sessionID int64) error {
	var current, max int
	err := tx.QueryRow(ctx,
		`SELECT current_participants, max_participants FROM sessions WHERE id = $1 FOR UPDATE`,
		sessionID,
	).Scan(&current, &max)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("lock session: %w", err)
	}

	if current >= max {
		return ErrCapacityExceeded
	}

	_, err = tx.Exec(ctx,
		`UPDATE sessions SET current_participants = current_participants + 1 WHERE id = $1`,
		sessionID,
	)
	if err != nil {
		return fmt.Errorf("claim seat: %w", err)
	}
	return nil
}

// releaseSeat освобождает место в сессии, не опуская счётчик ниже нуля.
func releaseSeat(ctx context.Context, tx pgx.Tx, sessionID int64) error {
	var dummy int
	err := tx.QueryRow(ctx,
		`SELECT 1 FROM sessions WHERE id = $1 FOR UPDATE`, sessionID,
	).Scan(&dummy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("lock session: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE sessions SET current_participants = GREATEST(current_participants - 1, 0) WHERE id = $1`,
		sessionID,
	)
	if err != nil {
		return fmt.Errorf("release seat: %w", err)
	}
	return nil
}

// GetEnrollmentPayments возвращает платежи по заявке в порядке их записи.
func (r *PostgresRepository) GetEnrollmentPayments(ctx context.Context, enrollmentID int64) ([]model.Payment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, enrollment_id, amount, method, transaction_id, status, paid_at
		 FROM payments
		 WHERE enrollment_id = $1
		 ORDER BY paid_at`,
		enrollmentID,
	)
	if err != nil {
		return nil, fmt.Errorf("select payments: %w", err)
	}
	defer rows.Close()

	var res []model.Payment
	for rows.Next() {
		var (
			p      model.Payment
			method string
		)
		if err := rows.Scan(&p.ID, &p.EnrollmentID, &p.AmountCents, &method, &p.TransactionID, &p.Status, &p.PaidAt); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		p.Method = model.PaymentMethod(method)
		res = append(res, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
