package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mkravets/traincenter-system/internal/model"
	"github.com/mkravets/traincenter-system/internal/repository"
	"github.com/mkravets/traincenter-system/internal/service"
)

type enrollmentRequest struct {
	Name        string `json:"name" validate:"required,min=2"`
	Email       string `json:"email" validate:"required,email"`
	Phone       string `json:"phone" validate:"required,min=5"`
	Address     string `json:"address" validate:"required"`
	FormationID int64  `json:"formation_id" validate:"gt=0"`
	SessionID   *int64 `json:"session_id,omitempty" validate:"omitempty,gt=0"`
}

type enrollmentResponse struct {
	ID                int64   `json:"id"`
	Name              string  `json:"name"`
	Email             string  `json:"email"`
	Phone             string  `json:"phone"`
	Address           string  `json:"address"`
	FormationID       int64   `json:"formation_id"`
	SessionID         *int64  `json:"session_id,omitempty"`
	Status            string  `json:"status"`
	PaymentStatus     string  `json:"payment_status"`
	TotalAmount       float64 `json:"total_amount"`
	PaidAmount        float64 `json:"paid_amount"`
	CertificateIssued bool    `json:"certificate_issued"`
	CertificateID     *int64  `json:"certificate_id,omitempty"`
	CreatedAt         string  `json:"created_at"`
	Waitlisted        bool    `json:"waitlisted,omitempty"`
}

func toEnrollmentResponse(e *model.Enrollment) enrollmentResponse {
	return enrollmentResponse{
		ID:                e.ID,
		Name:              e.Name,
		Email:             e.Email,
		Phone:             e.Phone,
		Address:           e.Address,
		FormationID:       e.FormationID,
		SessionID:         e.SessionID,
		Status:            string(e.Status),
		PaymentStatus:     string(e.PaymentStatus),
		TotalAmount:       float64(e.TotalCents) / 100,
		PaidAmount:        float64(e.PaidCents) / 100,
		CertificateIssued: e.CertificateIssued,
		CertificateID:     e.CertificateID,
		CreatedAt:         e.CreatedAt.Format(time.RFC3339),
	}
}

// SubmitEnrollment принимает самостоятельную запись на обучение.
func (h *Handler) SubmitEnrollment(w http.ResponseWriter, r *http.Request) {
	var req enrollmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if !h.validateRequest(w, req) {
		return
	}

	enrollment, waitlisted, err := h.service.SubmitEnrollment(r.Context(), service.EnrollmentInput{
		Name:        req.Name,
		Email:       req.Email,
		Phone:       req.Phone,
		Address:     req.Address,
		FormationID: req.FormationID,
		SessionID:   req.SessionID,
	})
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrFormationNotFound), errors.Is(err, repository.ErrSessionNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, service.ErrSessionMismatch):
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		default:
			h.logger.Error("submit enrollment error", zap.Error(err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	resp := toEnrollmentResponse(enrollment)
	resp.Waitlisted = waitlisted
	writeJSON(w, http.StatusCreated, resp)
}

type paymentResponse struct {
	ID            int64   `json:"id"`
	EnrollmentID  int64   `json:"enrollment_id"`
	Amount        float64 `json:"amount"`
	Method        string  `json:"method"`
	TransactionID *string `json:"transaction_id,omitempty"`
	Status        string  `json:"status"`
	PaidAt        string  `json:"paid_at"`
}

func toPaymentResponse(p *model.Payment) paymentResponse {
	return paymentResponse{
		ID:            p.ID,
		EnrollmentID:  p.EnrollmentID,
		Amount:        float64(p.AmountCents) / 100,
		Method:        string(p.Method),
		TransactionID: p.TransactionID,
		Status:        p.Status,
		PaidAt:        p.PaidAt.Format(time.RFC3339),
	}
}

type enrollmentDetailResponse struct {
	enrollmentResponse
	Payments []paymentResponse `json:"payments"`
}

// GetEnrollment возвращает заявку с историей платежей.
func (h *Handler) GetEnrollment(w http.ResponseWriter, r *http.Request) {
	id, ok := urlParamInt64(r, "id")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	enrollment, err := h.service.GetEnrollment(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrEnrollmentNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("get enrollment error", zap.Error(err), zap.Int64("enrollmentID", id))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	payments, err := h.service.GetEnrollmentPayments(r.Context(), id)
	if err != nil {
		h.logger.Error("get enrollment payments error", zap.Error(err), zap.Int64("enrollmentID", id))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := enrollmentDetailResponse{
		enrollmentResponse: toEnrollmentResponse(enrollment),
		Payments:           make([]paymentResponse, 0, len(payments)),
	}
	for i := range payments {
		resp.Payments = append(resp.Payments, toPaymentResponse(&payments[i]))
	}

	writeJSON(w, http.StatusOK, resp)
}

type transitionRequest struct {
	Status string `json:"status" validate:"required"`
}

// TransitionEnrollment переводит заявку в целевой статус по решению сотрудника.
func (h *Handler) TransitionEnrollment(w http.ResponseWriter, r *http.Request) {
	id, ok := urlParamInt64(r, "id")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	target, valid := model.ParseEnrollmentStatus(req.Status)
	if !valid {
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return
	}

	enrollment, err := h.service.TransitionEnrollment(r.Context(), id, target)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrEnrollmentNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, repository.ErrIllegalTransition):
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
		case errors.Is(err, repository.ErrCapacityExceeded):
			// Вызывающая сторона должна поставить заявку в очередь ожидания.
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
		default:
			h.logger.Error("transition enrollment error", zap.Error(err),
				zap.Int64("enrollmentID", id), zap.String("target", req.Status))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, toEnrollmentResponse(enrollment))
}

type paymentRequest struct {
	Amount        float64 `json:"amount" validate:"gt=0"`
	Method        string  `json:"method" validate:"required,oneof=cash card transfer"`
	TransactionID *string `json:"transaction_id,omitempty"`
}

type recordPaymentResponse struct {
	Payment    paymentResponse    `json:"payment"`
	Enrollment enrollmentResponse `json:"enrollment"`
}

// RecordPayment записывает платёж по заявке и возвращает обновлённую заявку.
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := urlParamInt64(r, "id")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req paymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if !h.validateRequest(w, req) {
		return
	}

	payment, enrollment, err := h.service.RecordPayment(r.Context(), id, req.Amount,
		model.PaymentMethod(req.Method), req.TransactionID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrEnrollmentNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, repository.ErrDuplicateTransaction):
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
		default:
			h.logger.Error("record payment error", zap.Error(err), zap.Int64("enrollmentID", id))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusCreated, recordPaymentResponse{
		Payment:    toPaymentResponse(payment),
		Enrollment: toEnrollmentResponse(enrollment),
	})
}
