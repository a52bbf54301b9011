package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mkravets/traincenter-system/internal/model"
)

// RecordPayment сохраняет платёж и пересчитывает агрегат оплат заявки одной
// транзакцией. Строка заявки блокируется на время пересчёта, поэтому два
// конкурентных платежа не потеряют друг друга в производных полях. Сумма
// оплат не ограничивается сверху: переплата допустима и видна в paid_amount.
func (r *PostgresRepository) RecordPayment(ctx context.Context, enrollmentID, amountCents int64, method model.PaymentMethod, transactionID *string) (*model.Payment, *model.Enrollment, error) {
	var (
		payment    *model.Payment
		enrollment *model.Enrollment
	)

	err := r.withRetry(ctx, func() error {
		payment = nil
		enrollment = nil

		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var totalCents int64
		err = tx.QueryRow(ctx,
			`SELECT total_amount FROM enrollments WHERE id = $1 FOR UPDATE`, enrollmentID,
		).Scan(&totalCents)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrEnrollmentNotFound
			}
			return fmt.Errorf("lock enrollment: %w", err)
		}

		var p model.Payment
		var methodStr string
		err = tx.QueryRow(ctx,
			`INSERT INTO payments (enrollment_id, amount, method, transaction_id, status)
			 VALUES ($1, $2, $3, $4, $5)
			 RETURNING id, enrollment_id, amount, method, transaction_id, status, paid_at`,
			enrollmentID, amountCents, string(method), transactionID, model.PaymentStatusCompleted,
		).Scan(&p.ID, &p.EnrollmentID, &p.AmountCents, &methodStr, &p.TransactionID, &p.Status, &p.PaidAt)
		if err != nil {
			if isUniqueViolation(err, "payments_transaction_id_key") {
				return ErrDuplicateTransaction
			}
			return fmt.Errorf("insert payment: %w", err)
		}
		p.Method = model.PaymentMethod(methodStr)

		var paidCents int64
		err = tx.QueryRow(ctx,
			`SELECT COALESCE(SUM(amount), 0)
			 FROM payments
			 WHERE enrollment_id = $1 AND status = $2`,
			enrollmentID, model.PaymentStatusCompleted,
		).Scan(&paidCents)
		if err != nil {
			return fmt.Errorf("sum payments: %w", err)
		}

		status := model.DerivePaymentStatus(paidCents, totalCents)

		row := tx.QueryRow(ctx,
			`UPDATE enrollments SET paid_amount = $2, payment_status = $3 WHERE id = $1
			 RETURNING `+enrollmentColumns,
			enrollmentID, paidCents, string(status),
		)
		enrollment, err = scanEnrollment(row)
		if err != nil {
			return fmt.Errorf("update payment aggregate: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		payment = &p
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return payment, enrollment, nil
}
