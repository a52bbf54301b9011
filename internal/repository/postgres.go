// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mkravets/traincenter-system/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrStaffExists возвращается при попытке создать сотрудника с уже существующим логином.
var (
	ErrStaffExists = errors.New("staff already exists")
	// ErrStaffNotFound возвращается, если сотрудник не найден.
	ErrStaffNotFound = errors.New("staff not found")
	// ErrFormationNotFound возвращается, если программа не найдена.
	ErrFormationNotFound = errors.New("formation not found")
	// ErrSessionNotFound возвращается, если сессия не найдена.
	ErrSessionNotFound = errors.New("session not found")
	// ErrEnrollmentNotFound возвращается, если заявка не найдена.
	ErrEnrollmentNotFound = errors.New("enrollment not found")
	// ErrIllegalTransition возвращается при недопустимом переходе статуса заявки.
	ErrIllegalTransition = errors.New("illegal enrollment status transition")
	// ErrCapacityExceeded возвращается, если в сессии не осталось свободных мест.
	ErrCapacityExceeded = errors.New("session capacity exceeded")
	// ErrSessionNotFull возвращается при постановке в очередь к сессии со свободными местами.
	ErrSessionNotFull = errors.New("session is not full")
	// ErrAlreadyQueued возвращается, если заявка уже стоит в очереди этой сессии.
	ErrAlreadyQueued = errors.New("enrollment already queued for session")
	// ErrWaitlistEntryNotFound возвращается, если запись очереди не найдена.
	ErrWaitlistEntryNotFound = errors.New("waitlist entry not found")
	// ErrPromoteOutOfOrder возвращается при попытке продвинуть запись не из головы очереди.
	ErrPromoteOutOfOrder = errors.New("waitlist promotion out of order")
	// ErrDuplicateTransaction возвращается при повторной записи платежа с тем же внешним идентификатором.
	ErrDuplicateTransaction = errors.New("payment transaction already recorded")
	// ErrCertificateExists возвращается, если сертификат этого типа для заявки уже выдан.
	ErrCertificateExists = errors.New("certificate already issued for enrollment and type")
	// ErrCertificateNotEarned возвращается при выдаче сертификата о прохождении незавершённой заявке.
	ErrCertificateNotEarned = errors.New("enrollment is not completed")
	// ErrCodeTaken возвращается при коллизии публичного кода сертификата.
	ErrCodeTaken = errors.New("certificate code already taken")
	// ErrCertificateNotFound возвращается, если сертификат не найден по коду.
	ErrCertificateNotFound = errors.New("certificate not found")
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// withRetry повторяет fn при сериализационных сбоях и дедлоках.
// Транзакции с блокировками строк сессии могут конфликтовать между собой.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{100 * time.Millisecond, 500 * time.Millisecond, 1 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

		if isConnectionError(err) {
			if i < len(delays) {
				time.Sleep(delays[i])
				continue
			}
		}

		break
	}
	return err
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgerrcode.UniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateStaff создаёт нового сотрудника.
func (r *PostgresRepository) CreateStaff(ctx context.Context, login string, passwordHash []byte) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO staff (login, password_hash) VALUES ($1, $2) RETURNING id`,
		login, passwordHash,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err, "") {
			return 0, fmt.Errorf("%w: %s", ErrStaffExists, login)
		}
		return 0, fmt.Errorf("create staff: %w", err)
	}
	return id, nil
}

// GetStaffByLogin возвращает сотрудника по логину.
func (r *PostgresRepository) GetStaffByLogin(ctx context.Context, login string) (*model.Staff, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, login, password_hash, created_at FROM staff WHERE login = $1`,
		login,
	)

	var st model.Staff
	err := row.Scan(&st.ID, &st.Login, &st.PasswordHash, &st.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStaffNotFound
		}
		return nil, fmt.Errorf("get staff: %w", err)
	}

	return &st, nil
}

// GetStaffByID возвращает сотрудника по идентификатору.
func (r *PostgresRepository) GetStaffByID(ctx context.Context, id int64) (*model.Staff, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, login, password_hash, created_at FROM staff WHERE id = $1`,
		id,
	)

	var st model.Staff
	err := row.Scan(&st.ID, &st.Login, &st.PasswordHash, &st.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStaffNotFound
		}
		return nil, fmt.Errorf("get staff by id: %w", err)
	}

	return &st, nil
}

// CreateFormation создаёт учебную программу.
func (r *PostgresRepository) CreateFormation(ctx context.Context, title string, priceCents int64) (*model.Formation, error) {
	var f model.Formation
	err := r.pool.QueryRow(ctx,
		`INSERT INTO formations (title, price) VALUES ($1, $2) RETURNING id, title, price, created_at`,
		title, priceCents,
	).Scan(&f.ID, &f.Title, &f.PriceCents, &f.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create formation: %w", err)
	}
	return &f, nil
}

// GetFormation возвращает программу по идентификатору.
func (r *PostgresRepository) GetFormation(ctx context.Context, id int64) (*model.Formation, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, title, price, created_at FROM formations WHERE id = $1`,
		id,
	)

	var f model.Formation
	err := row.Scan(&f.ID, &f.Title, &f.PriceCents, &f.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrFormationNotFound
		}
		return nil, fmt.Errorf("get formation: %w", err)
	}

	return &f, nil
}

// CreateSession создаёт сессию программы.
func (r *PostgresRepository) CreateSession(ctx context.Context, s *model.Session) (*model.Session, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO sessions (formation_id, starts_at, ends_at, location, format, max_participants, status, price)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, current_participants`,
		s.FormationID, s.StartsAt, s.EndsAt, s.Location, string(s.Format),
		s.MaxParticipants, string(s.Status), s.PriceCents,
	).Scan(&s.ID, &s.CurrentParticipants)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return nil, ErrFormationNotFound
		}
		return nil, fmt.Errorf("create session: %w", err)
	}
	return s, nil
}

// GetSession возвращает сессию по идентификатору.
func (r *PostgresRepository) GetSession(ctx context.Context, id int64) (*model.Session, error) {
	return r.getSession(ctx, r.pool, id, false)
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *PostgresRepository) getSession(ctx context.Context, q queryRower, id int64, forUpdate bool) (*model.Session, error) {
	query := `SELECT id, formation_id, starts_at, ends_at, location, format,
	                 max_participants, current_participants, status, price
	          FROM sessions WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var (
		s      model.Session
		format string
		status string
	)
	err := q.QueryRow(ctx, query, id).Scan(
		&s.ID, &s.FormationID, &s.StartsAt, &s.EndsAt, &s.Location, &format,
		&s.MaxParticipants, &s.CurrentParticipants, &status, &s.PriceCents,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	s.Format = model.SessionFormat(format)
	s.Status = model.SessionStatus(status)
	return &s, nil
}
