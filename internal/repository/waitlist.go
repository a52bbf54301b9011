package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mkravets/traincenter-system/internal/model"
)

// EnqueueWaitlist ставит заявку в конец очереди ожидания сессии.
// Постановка допустима только когда сессия заполнена; проверка выполняется
// под блокировкой строки сессии, она же сериализует выдачу позиций.
func (r *PostgresRepository) EnqueueWaitlist(ctx context.Context, sessionID, enrollmentID int64) (*model.WaitlistEntry, error) {
	var entry *model.WaitlistEntry

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		session, err := r.getSession(ctx, tx, sessionID, true)
		if err != nil {
			return err
		}

		if !session.Full() {
			return ErrSessionNotFull
		}

		var dummy int
		err = tx.QueryRow(ctx, `SELECT 1 FROM enrollments WHERE id = $1`, enrollmentID).Scan(&dummy)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrEnrollmentNotFound
			}
			return fmt.Errorf("check enrollment: %w", err)
		}

		var e model.WaitlistEntry
		err = tx.QueryRow(ctx,
			`INSERT INTO waitlist_entries (session_id, enrollment_id, position)
			 VALUES ($1, $2, (SELECT COUNT(*) + 1 FROM waitlist_entries WHERE session_id = $1))
			 RETURNING id, session_id, enrollment_id, position, added_at, notified_at`,
			sessionID, enrollmentID,
		).Scan(&e.ID, &e.SessionID, &e.EnrollmentID, &e.Position, &e.AddedAt, &e.NotifiedAt)
		if err != nil {
			if isUniqueViolation(err, "waitlist_entries_session_enrollment_key") {
				return ErrAlreadyQueued
			}
			return fmt.Errorf("insert waitlist entry: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		entry = &e
		return nil
	})
	if err != nil {
		return nil, err
	}

	return entry, nil
}

// GetWaitlist возвращает очередь ожидания сессии в порядке позиций.
func (r *PostgresRepository) GetWaitlist(ctx context.Context, sessionID int64) ([]model.WaitlistEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, session_id, enrollment_id, position, added_at, notified_at
		 FROM waitlist_entries
		 WHERE session_id = $1
		 ORDER BY position`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("select waitlist: %w", err)
	}
	defer rows.Close()

	var res []model.WaitlistEntry
	for rows.Next() {
		var e model.WaitlistEntry
		if err := rows.Scan(&e.ID, &e.SessionID, &e.EnrollmentID, &e.Position, &e.AddedAt, &e.NotifiedAt); err != nil {
			return nil, fmt.Errorf("scan waitlist entry: %w", err)
		}
		res = append(res, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// GetWaitlistHead возвращает самую давнюю запись очереди сессии или nil, если очередь пуста.
func (r *PostgresRepository) GetWaitlistHead(ctx context.Context, sessionID int64) (*model.WaitlistEntry, error) {
	var e model.WaitlistEntry
	err := r.pool.QueryRow(ctx,
		`SELECT id, session_id, enrollment_id, position, added_at, notified_at
		 FROM waitlist_entries
		 WHERE session_id = $1
		 ORDER BY position
		 LIMIT 1`,
		sessionID,
	).Scan(&e.ID, &e.SessionID, &e.EnrollmentID, &e.Position, &e.AddedAt, &e.NotifiedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get waitlist head: %w", err)
	}
	return &e, nil
}

// WithdrawWaitlistEntry удаляет запись из очереди и перенумеровывает хвост,
// сохраняя непрерывность позиций. Перенумерация выполняется под блокировкой
// строки сессии, чтобы не пересечься с постановкой в очередь.
func (r *PostgresRepository) WithdrawWaitlistEntry(ctx context.Context, entryID int64) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var sessionID int64
		err = tx.QueryRow(ctx,
			`SELECT session_id FROM waitlist_entries WHERE id = $1`, entryID,
		).Scan(&sessionID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrWaitlistEntryNotFound
			}
			return fmt.Errorf("find waitlist entry: %w", err)
		}

		// Порядок блокировок во всех операциях очереди: сначала сессия, затем запись.
		var dummy int
		if err := tx.QueryRow(ctx, `SELECT 1 FROM sessions WHERE id = $1 FOR UPDATE`, sessionID).Scan(&dummy); err != nil {
			return fmt.Errorf("lock session: %w", err)
		}

		if err := removeAndRenumber(ctx, tx, sessionID, entryID); err != nil {
			return err
		}

		return tx.Commit(ctx)
	})
}

// removeAndRenumber удаляет запись очереди и сдвигает позиции последующих записей на единицу.
func removeAndRenumber(ctx context.Context, tx pgx.Tx, sessionID, entryID int64) error {
	var position int
	err := tx.QueryRow(ctx,
		`DELETE FROM waitlist_entries WHERE id = $1 AND session_id = $2 RETURNING position`,
		entryID, sessionID,
	).Scan(&position)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrWaitlistEntryNotFound
		}
		return fmt.Errorf("delete waitlist entry: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE waitlist_entries SET position = position - 1 WHERE session_id = $1 AND position > $2`,
		sessionID, position,
	)
	if err != nil {
		return fmt.Errorf("renumber waitlist: %w", err)
	}

	return nil
}

// PromoteWaitlistEntry продвигает запись очереди на освободившееся место:
// занимает место в сессии, переводит заявку в confirmed и удаляет запись
// с перенумерацией хвоста — всё одной транзакцией. Без force продвижение
// разрешено только для головы очереди.
func (r *PostgresRepository) PromoteWaitlistEntry(ctx context.Context, sessionID, entryID int64, force bool) (*model.Enrollment, error) {
	var promoted *model.Enrollment

	err := r.withRetry(ctx, func() error {
		promoted = nil

		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var dummy int
		err = tx.QueryRow(ctx, `SELECT 1 FROM sessions WHERE id = $1 FOR UPDATE`, sessionID).Scan(&dummy)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrSessionNotFound
			}
			return fmt.Errorf("lock session: %w", err)
		}

		var (
			enrollmentID int64
			position     int
		)
		err = tx.QueryRow(ctx,
			`SELECT enrollment_id, position FROM waitlist_entries WHERE id = $1 AND session_id = $2 FOR UPDATE`,
			entryID, sessionID,
		).Scan(&enrollmentID, &position)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrWaitlistEntryNotFound
			}
			return fmt.Errorf("find waitlist entry: %w", err)
		}

		if !force {
			var head int
			err = tx.QueryRow(ctx,
				`SELECT MIN(position) FROM waitlist_entries WHERE session_id = $1`, sessionID,
			).Scan(&head)
			if err != nil {
				return fmt.Errorf("find waitlist head: %w", err)
			}
			if position != head {
				return fmt.Errorf("%w: position %d, head %d", ErrPromoteOutOfOrder, position, head)
			}
		}

		if err := claimSeat(ctx, tx, sessionID); err != nil {
			return err
		}

		row := tx.QueryRow(ctx,
			`SELECT `+enrollmentColumns+` FROM enrollments WHERE id = $1 FOR UPDATE`, enrollmentID)
		current, err := scanEnrollment(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrEnrollmentNotFound
			}
			return fmt.Errorf("lock enrollment: %w", err)
		}

		// Продвижение подтверждает только ожидающую заявку: отменённая или уже
		// занявшая место заявка не должна получать место из очереди.
		if current.Status != model.EnrollmentStatusPending {
			return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, current.Status, model.EnrollmentStatusConfirmed)
		}

		row = tx.QueryRow(ctx,
			`UPDATE enrollments SET status = $2 WHERE id = $1 RETURNING `+enrollmentColumns,
			enrollmentID, string(model.EnrollmentStatusConfirmed),
		)
		promoted, err = scanEnrollment(row)
		if err != nil {
			return fmt.Errorf("confirm enrollment: %w", err)
		}

		if err := removeAndRenumber(ctx, tx, sessionID, entryID); err != nil {
			return err
		}

		return tx.Commit(ctx)
	})
	if err != nil {
		return nil, err
	}

	return promoted, nil
}

// WaitlistNotification описывает запись очереди, ожидающую уведомления.
type WaitlistNotification struct {
	EntryID   int64
	SessionID int64
	Email     string
	Name      string
	Position  int
}

// GetWaitlistForNotification возвращает записи очереди, по которым ещё не отправлено уведомление.
func (r *PostgresRepository) GetWaitlistForNotification(ctx context.Context, limit int) ([]WaitlistNotification, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT w.id, w.session_id, e.email, e.name, w.position
		 FROM waitlist_entries w
		 JOIN enrollments e ON e.id = w.enrollment_id
		 WHERE w.notified_at IS NULL
		 ORDER BY w.added_at
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select waitlist for notification: %w", err)
	}
	defer rows.Close()

	var res []WaitlistNotification
	for rows.Next() {
		var n WaitlistNotification
		if err := rows.Scan(&n.EntryID, &n.SessionID, &n.Email, &n.Name, &n.Position); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		res = append(res, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// MarkWaitlistNotified фиксирует время отправки уведомления по записи очереди.
func (r *PostgresRepository) MarkWaitlistNotified(ctx context.Context, entryID int64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE waitlist_entries SET notified_at = now() WHERE id = $1`, entryID,
	)
	if err != nil {
		return fmt.Errorf("mark notified: %w", err)
	}
	return nil
}
