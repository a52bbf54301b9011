// Package model содержит доменные сущности учебного центра.
package model

import "time"

// Staff представляет сотрудника учебного центра.
type Staff struct {
	ID           int64
	Login        string
	PasswordHash []byte
	CreatedAt    time.Time
}

// Formation описывает учебную программу, по которой проводятся сессии.
type Formation struct {
	ID         int64
	Title      string
	PriceCents int64
	CreatedAt  time.Time
}

// SessionStatus описывает состояние учебной сессии.
type SessionStatus string

const (
	SessionStatusOpen      SessionStatus = "open"
	SessionStatusClosed    SessionStatus = "closed"
	SessionStatusComplete  SessionStatus = "complete"
	SessionStatusCancelled SessionStatus = "cancelled"
	SessionStatusFinished  SessionStatus = "finished"
)

// SessionFormat описывает формат проведения сессии.
type SessionFormat string

const (
	SessionFormatInPerson SessionFormat = "in_person"
	SessionFormatOnline   SessionFormat = "online"
	SessionFormatHybrid   SessionFormat = "hybrid"
)

// Session описывает запланированную сессию программы с ограничением по числу мест.
// Счётчик CurrentParticipants изменяется только репозиторием под блокировкой строки.
type Session struct {
	ID                  int64
	FormationID         int64
	StartsAt            time.Time
	EndsAt              time.Time
	Location            string
	Format              SessionFormat
	MaxParticipants     int
	CurrentParticipants int
	Status              SessionStatus
	PriceCents          int64
}

// Full возвращает true, если свободных мест в сессии не осталось.
func (s *Session) Full() bool {
	return s.CurrentParticipants >= s.MaxParticipants
}

// EnrollmentStatus описывает статус заявки на обучение.
type EnrollmentStatus string

const (
	EnrollmentStatusPending   EnrollmentStatus = "pending"
	EnrollmentStatusAccepted  EnrollmentStatus = "accepted"
	EnrollmentStatusRejected  EnrollmentStatus = "rejected"
	EnrollmentStatusConfirmed EnrollmentStatus = "confirmed"
	EnrollmentStatusCancelled EnrollmentStatus = "cancelled"
	EnrollmentStatusCompleted EnrollmentStatus = "completed"
)

// enrollmentTransitions задаёт допустимые переходы статусов заявки.
// Отмена возможна из любого нетерминального состояния.
var enrollmentTransitions = map[EnrollmentStatus][]EnrollmentStatus{
	EnrollmentStatusPending:   {EnrollmentStatusAccepted, EnrollmentStatusRejected, EnrollmentStatusCancelled},
	EnrollmentStatusAccepted:  {EnrollmentStatusConfirmed, EnrollmentStatusCancelled},
	EnrollmentStatusConfirmed: {EnrollmentStatusCompleted, EnrollmentStatusCancelled},
}

// ParseEnrollmentStatus проверяет, что строка является известным статусом заявки.
func ParseEnrollmentStatus(s string) (EnrollmentStatus, bool) {
	switch EnrollmentStatus(s) {
	case EnrollmentStatusPending, EnrollmentStatusAccepted, EnrollmentStatusRejected,
		EnrollmentStatusConfirmed, EnrollmentStatusCancelled, EnrollmentStatusCompleted:
		return EnrollmentStatus(s), true
	}
	return "", false
}

// CanTransitionTo возвращает true, если переход из текущего статуса в target допустим.
func (s EnrollmentStatus) CanTransitionTo(target EnrollmentStatus) bool {
	for _, t := range enrollmentTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// Terminal возвращает true для конечных статусов заявки.
func (s EnrollmentStatus) Terminal() bool {
	return s == EnrollmentStatusRejected || s == EnrollmentStatusCancelled || s == EnrollmentStatusCompleted
}

// HoldsSeat возвращает true, если заявка в этом статусе занимает место в сессии.
func (s EnrollmentStatus) HoldsSeat() bool {
	return s == EnrollmentStatusAccepted || s == EnrollmentStatusConfirmed
}

// PaymentStatus описывает производный статус оплаты заявки.
type PaymentStatus string

const (
	PaymentStatusUnpaid  PaymentStatus = "unpaid"
	PaymentStatusPartial PaymentStatus = "partial"
	PaymentStatusPaid    PaymentStatus = "paid"
)

// DerivePaymentStatus вычисляет статус оплаты из оплаченной и полной суммы в копейках.
// Переплата допускается: статус paid при paidCents >= totalCents.
func DerivePaymentStatus(paidCents, totalCents int64) PaymentStatus {
	switch {
	case paidCents <= 0:
		return PaymentStatusUnpaid
	case paidCents < totalCents:
		return PaymentStatusPartial
	default:
		return PaymentStatusPaid
	}
}

// Enrollment представляет заявку человека на участие в программе или сессии.
// Поля PaidCents и PaymentStatus производные: пересчитываются репозиторием
// при каждой записи платежа и не изменяются напрямую.
type Enrollment struct {
	ID                int64
	Name              string
	Email             string
	Phone             string
	Address           string
	FormationID       int64
	SessionID         *int64
	Status            EnrollmentStatus
	PaymentStatus     PaymentStatus
	TotalCents        int64
	PaidCents         int64
	CertificateIssued bool
	CertificateID     *int64
	CreatedAt         time.Time
}

// WaitlistEntry представляет место заявки в очереди ожидания сессии.
// Позиции внутри сессии образуют непрерывную последовательность с единицы.
type WaitlistEntry struct {
	ID           int64
	SessionID    int64
	EnrollmentID int64
	Position     int
	AddedAt      time.Time
	NotifiedAt   *time.Time
}

// PaymentMethod описывает способ оплаты.
type PaymentMethod string

const (
	PaymentMethodCash     PaymentMethod = "cash"
	PaymentMethodCard     PaymentMethod = "card"
	PaymentMethodTransfer PaymentMethod = "transfer"
)

// Payment представляет неизменяемую запись об одном платеже по заявке.
type Payment struct {
	ID            int64
	EnrollmentID  int64
	AmountCents   int64
	Method        PaymentMethod
	TransactionID *string
	Status        string
	PaidAt        time.Time
}

// PaymentStatusCompleted — статус платежа, учитываемого в агрегате оплат.
const PaymentStatusCompleted = "completed"

// CertificateType описывает тип сертификата.
type CertificateType string

const (
	CertificateTypeCompletion CertificateType = "completion"
	CertificateTypeAttendance CertificateType = "attendance"
	CertificateTypeExcellence CertificateType = "excellence"
)

// ParseCertificateType проверяет, что строка является известным типом сертификата.
func ParseCertificateType(s string) (CertificateType, bool) {
	switch CertificateType(s) {
	case CertificateTypeCompletion, CertificateTypeAttendance, CertificateTypeExcellence:
		return CertificateType(s), true
	}
	return "", false
}

// Certificate представляет выданный сертификат.
// HolderName — снимок имени на момент выдачи, не живая ссылка на заявку.
type Certificate struct {
	ID           int64
	Code         string
	Type         CertificateType
	HolderName   string
	FormationID  int64
	SessionID    *int64
	EnrollmentID int64
	IssuedBy     string
	IssuedAt     time.Time
	Verified     bool
}

// CertificateSnapshot содержит данные сертификата для публичной проверки по коду.
type CertificateSnapshot struct {
	Code            string     `json:"code"`
	Type            string     `json:"type"`
	HolderName      string     `json:"holder_name"`
	FormationTitle  string     `json:"formation_title"`
	SessionStartsAt *time.Time `json:"session_starts_at,omitempty"`
	EnrollmentID    int64      `json:"enrollment_id"`
	IssuedBy        string     `json:"issued_by"`
	IssuedAt        time.Time  `json:"issued_at"`
	Verified        bool       `json:"verified"`
}
