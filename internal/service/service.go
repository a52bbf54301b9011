// Package service реализует бизнес-логику учебного центра.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"math"

	"github.com/mkravets/traincenter-system/internal/cache"
	"github.com/mkravets/traincenter-system/internal/model"
	"github.com/mkravets/traincenter-system/internal/notify"
	"github.com/mkravets/traincenter-system/internal/repository"
)

// ErrInvalidCredentials возвращается при неверной паре логин/пароль сотрудника.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrSessionMismatch возвращается, если сессия не относится к указанной программе.
	ErrSessionMismatch = errors.New("session does not belong to formation")
	// ErrCodeExhausted возвращается после исчерпания попыток сгенерировать уникальный код сертификата.
	ErrCodeExhausted = errors.New("certificate code generation attempts exhausted")
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateStaff(ctx context.Context, login string, passwordHash []byte) (int64, error)
	GetStaffByLogin(ctx context.Context, login string) (*model.Staff, error)
	GetStaffByID(ctx context.Context, id int64) (*model.Staff, error)
	CreateFormation(ctx context.Context, title string, priceCents int64) (*model.Formation, error)
	GetFormation(ctx context.Context, id int64) (*model.Formation, error)
	CreateSession(ctx context.Context, s *model.Session) (*model.Session, error)
	GetSession(ctx context.Context, id int64) (*model.Session, error)
	CreateEnrollment(ctx context.Context, e *model.Enrollment) (*model.Enrollment, error)
	GetEnrollment(ctx context.Context, id int64) (*model.Enrollment, error)
	TransitionEnrollment(ctx context.Context, id int64, target model.EnrollmentStatus) (*model.Enrollment, *int64, error)
	GetEnrollmentPayments(ctx context.Context, enrollmentID int64) ([]model.Payment, error)
	EnqueueWaitlist(ctx context.Context, sessionID, enrollmentID int64) (*model.WaitlistEntry, error)
	GetWaitlist(ctx context.Context, sessionID int64) ([]model.WaitlistEntry, error)
	GetWaitlistHead(ctx context.Context, sessionID int64) (*model.WaitlistEntry, error)
	WithdrawWaitlistEntry(ctx context.Context, entryID int64) error
	PromoteWaitlistEntry(ctx context.Context, sessionID, entryID int64, force bool) (*model.Enrollment, error)
	GetWaitlistForNotification(ctx context.Context, limit int) ([]repository.WaitlistNotification, error)
	MarkWaitlistNotified(ctx context.Context, entryID int64) error
	RecordPayment(ctx context.Context, enrollmentID, amountCents int64, method model.PaymentMethod, transactionID *string) (*model.Payment, *model.Enrollment, error)
	IssueCertificate(ctx context.Context, enrollmentID int64, certType model.CertificateType, code, issuedBy string) (*model.Certificate, error)
	GetCertificateSnapshot(ctx context.Context, code string) (*model.CertificateSnapshot, error)
	ConfirmCertificate(ctx context.Context, code string) error
}

// Service содержит бизнес-логику учебного центра.
type Service struct {
	repo         Repository
	notifyClient *notify.Client
	verifyCache  *cache.Cache
}

// NewService создаёт новый сервис с указанным репозиторием, клиентом уведомлений и кэшем проверок.
func NewService(repo Repository, notifyClient *notify.Client, verifyCache *cache.Cache) *Service {
	return &Service{
		repo:         repo,
		notifyClient: notifyClient,
		verifyCache:  verifyCache,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// RegisterStaff регистрирует нового сотрудника.
func (s *Service) RegisterStaff(ctx context.Context, login, password string) (int64, error) {
	hashed := hashPassword(login, password)
	id, err := s.repo.CreateStaff(ctx, login, hashed)
	if err != nil {
		if errors.Is(err, repository.ErrStaffExists) {
			return 0, repository.ErrStaffExists
		}
		return 0, err
	}
	return id, nil
}

// AuthenticateStaff проверяет логин и пароль сотрудника и возвращает его идентификатор.
func (s *Service) AuthenticateStaff(ctx context.Context, login, password string) (int64, error) {
	st, err := s.repo.GetStaffByLogin(ctx, login)
	if err != nil {
		return 0, err
	}

	hashed := hashPassword(login, password)
	if hex.EncodeToString(hashed) != hex.EncodeToString(st.PasswordHash) {
		return 0, ErrInvalidCredentials
	}

	return st.ID, nil
}

// GetStaff возвращает сотрудника по идентификатору.
func (s *Service) GetStaff(ctx context.Context, id int64) (*model.Staff, error) {
	return s.repo.GetStaffByID(ctx, id)
}

func hashPassword(login, password string) []byte {
	sum := sha256.Sum256([]byte(login + ":" + password))
	return sum[:]
}

// CreateFormation создаёт учебную программу. Цена принимается в рублях
// и округляется до копейки.
func (s *Service) CreateFormation(ctx context.Context, title string, price float64) (*model.Formation, error) {
	return s.repo.CreateFormation(ctx, title, int64(math.Round(price*100)))
}

// CreateSession создаёт сессию программы в статусе open.
func (s *Service) CreateSession(ctx context.Context, session *model.Session, price float64) (*model.Session, error) {
	if _, err := s.repo.GetFormation(ctx, session.FormationID); err != nil {
		return nil, err
	}

	session.Status = model.SessionStatusOpen
	session.PriceCents = int64(math.Round(price * 100))
	return s.repo.CreateSession(ctx, session)
}

// GetSession возвращает сессию по идентификатору.
func (s *Service) GetSession(ctx context.Context, id int64) (*model.Session, error) {
	return s.repo.GetSession(ctx, id)
}
