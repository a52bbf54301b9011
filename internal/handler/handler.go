// Package handler содержит HTTP-обработчики API сервиса учебного центра.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mkravets/traincenter-system/internal/middleware"
	"github.com/mkravets/traincenter-system/internal/model"
	"github.com/mkravets/traincenter-system/internal/repository"
	"github.com/mkravets/traincenter-system/internal/service"
	"github.com/mkravets/traincenter-system/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterStaff(ctx context.Context, login, password string) (int64, error)
	AuthenticateStaff(ctx context.Context, login, password string) (int64, error)
	GetStaff(ctx context.Context, id int64) (*model.Staff, error)
	CreateFormation(ctx context.Context, title string, price float64) (*model.Formation, error)
	CreateSession(ctx context.Context, session *model.Session, price float64) (*model.Session, error)
	SubmitEnrollment(ctx context.Context, in service.EnrollmentInput) (*model.Enrollment, bool, error)
	GetEnrollment(ctx context.Context, id int64) (*model.Enrollment, error)
	GetEnrollmentPayments(ctx context.Context, id int64) ([]model.Payment, error)
	TransitionEnrollment(ctx context.Context, id int64, target model.EnrollmentStatus) (*model.Enrollment, error)
	RecordPayment(ctx context.Context, enrollmentID int64, amount float64, method model.PaymentMethod, transactionID *string) (*model.Payment, *model.Enrollment, error)
	EnqueueWaitlist(ctx context.Context, sessionID, enrollmentID int64) (*model.WaitlistEntry, error)
	GetWaitlist(ctx context.Context, sessionID int64) ([]model.WaitlistEntry, error)
	WithdrawWaitlistEntry(ctx context.Context, entryID int64) error
	PromoteWaitlistEntry(ctx context.Context, sessionID, entryID int64, force bool) (*model.Enrollment, error)
	IssueCertificate(ctx context.Context, enrollmentID int64, certType model.CertificateType, issuedBy string) (*model.Certificate, error)
	VerifyCertificate(ctx context.Context, code string) (*model.CertificateSnapshot, error)
	ConfirmVerification(ctx context.Context, code string) error
}

// Handler реализует HTTP-обработчики API сервиса учебного центра.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func urlParamInt64(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// validateRequest проверяет тело запроса по validate-тегам и пишет ответ об
// ошибке. Ошибка содержимого запроса — вина клиента, внутренний сбой
// валидатора — нет.
func (h *Handler) validateRequest(w http.ResponseWriter, req any) bool {
	err := validation.Struct(req)
	if err == nil {
		return true
	}

	if validation.IsValidationError(err) {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
	} else {
		h.logger.Error("validate request", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
	return false
}

type credentialsRequest struct {
	Login    string `json:"login" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// RegisterStaff обрабатывает регистрацию нового сотрудника.
func (h *Handler) RegisterStaff(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if !h.validateRequest(w, req) {
		return
	}

	staffID, err := h.service.RegisterStaff(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrStaffExists) {
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
			return
		}
		h.logger.Error("register staff error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, staffID)
	w.WriteHeader(http.StatusOK)
}

// LoginStaff выполняет аутентификацию сотрудника и установку cookie.
func (h *Handler) LoginStaff(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if !h.validateRequest(w, req) {
		return
	}

	staffID, err := h.service.AuthenticateStaff(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrStaffNotFound) || errors.Is(err, service.ErrInvalidCredentials) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		h.logger.Error("login staff error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, staffID)
	w.WriteHeader(http.StatusOK)
}

// actorLogin возвращает логин аутентифицированного сотрудника из контекста запроса.
func (h *Handler) actorLogin(r *http.Request) (string, bool) {
	staffID, ok := middleware.GetStaffIDFromContext(r.Context())
	if !ok {
		return "", false
	}

	st, err := h.service.GetStaff(r.Context(), staffID)
	if err != nil {
		return "", false
	}

	return st.Login, true
}

type formationRequest struct {
	Title string  `json:"title" validate:"required,min=2"`
	Price float64 `json:"price" validate:"gte=0"`
}

type formationResponse struct {
	ID        int64   `json:"id"`
	Title     string  `json:"title"`
	Price     float64 `json:"price"`
	CreatedAt string  `json:"created_at"`
}

// CreateFormation создаёт учебную программу.
func (h *Handler) CreateFormation(w http.ResponseWriter, r *http.Request) {
	var req formationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if !h.validateRequest(w, req) {
		return
	}

	formation, err := h.service.CreateFormation(r.Context(), req.Title, req.Price)
	if err != nil {
		h.logger.Error("create formation error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, formationResponse{
		ID:        formation.ID,
		Title:     formation.Title,
		Price:     float64(formation.PriceCents) / 100,
		CreatedAt: formation.CreatedAt.Format(time.RFC3339),
	})
}

type sessionRequest struct {
	FormationID     int64   `json:"formation_id" validate:"gt=0"`
	StartsAt        string  `json:"starts_at" validate:"required"`
	EndsAt          string  `json:"ends_at" validate:"required"`
	Location        string  `json:"location"`
	Format          string  `json:"format" validate:"required,oneof=in_person online hybrid"`
	MaxParticipants int     `json:"max_participants" validate:"gt=0"`
	Price           float64 `json:"price" validate:"gte=0"`
}

type sessionResponse struct {
	ID                  int64   `json:"id"`
	FormationID         int64   `json:"formation_id"`
	StartsAt            string  `json:"starts_at"`
	EndsAt              string  `json:"ends_at"`
	Location            string  `json:"location"`
	Format              string  `json:"format"`
	MaxParticipants     int     `json:"max_participants"`
	CurrentParticipants int     `json:"current_participants"`
	Status              string  `json:"status"`
	Price               float64 `json:"price"`
}

// CreateSession создаёт сессию программы.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if !h.validateRequest(w, req) {
		return
	}

	startsAt, err := time.Parse(time.RFC3339, req.StartsAt)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	endsAt, err := time.Parse(time.RFC3339, req.EndsAt)
	if err != nil || !endsAt.After(startsAt) {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	session, err := h.service.CreateSession(r.Context(), &model.Session{
		FormationID:     req.FormationID,
		StartsAt:        startsAt,
		EndsAt:          endsAt,
		Location:        req.Location,
		Format:          model.SessionFormat(req.Format),
		MaxParticipants: req.MaxParticipants,
	}, req.Price)
	if err != nil {
		if errors.Is(err, repository.ErrFormationNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("create session error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, sessionResponse{
		ID:                  session.ID,
		FormationID:         session.FormationID,
		StartsAt:            session.StartsAt.Format(time.RFC3339),
		EndsAt:              session.EndsAt.Format(time.RFC3339),
		Location:            session.Location,
		Format:              string(session.Format),
		MaxParticipants:     session.MaxParticipants,
		CurrentParticipants: session.CurrentParticipants,
		Status:              string(session.Status),
		Price:               float64(session.PriceCents) / 100,
	})
}
