package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mkravets/traincenter-system/internal/model"
	"github.com/mkravets/traincenter-system/internal/repository"
	"github.com/mkravets/traincenter-system/internal/service"
)

type issueCertificateRequest struct {
	EnrollmentID int64  `json:"enrollment_id" validate:"gt=0"`
	Type         string `json:"type" validate:"required"`
}

type certificateResponse struct {
	ID           int64  `json:"id"`
	Code         string `json:"code"`
	Type         string `json:"type"`
	HolderName   string `json:"holder_name"`
	FormationID  int64  `json:"formation_id"`
	SessionID    *int64 `json:"session_id,omitempty"`
	EnrollmentID int64  `json:"enrollment_id"`
	IssuedBy     string `json:"issued_by"`
	IssuedAt     string `json:"issued_at"`
	Verified     bool   `json:"verified"`
}

// IssueCertificate выдаёт сертификат по заявке от имени аутентифицированного сотрудника.
func (h *Handler) IssueCertificate(w http.ResponseWriter, r *http.Request) {
	issuedBy, ok := h.actorLogin(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req issueCertificateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if !h.validateRequest(w, req) {
		return
	}

	certType, valid := model.ParseCertificateType(req.Type)
	if !valid {
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return
	}

	cert, err := h.service.IssueCertificate(r.Context(), req.EnrollmentID, certType, issuedBy)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrEnrollmentNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, repository.ErrCertificateNotEarned):
			http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		case errors.Is(err, repository.ErrCertificateExists):
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
		default:
			if errors.Is(err, service.ErrCodeExhausted) {
				h.logger.Error("certificate code space exhausted", zap.Int64("enrollmentID", req.EnrollmentID))
			} else {
				h.logger.Error("issue certificate error", zap.Error(err), zap.Int64("enrollmentID", req.EnrollmentID))
			}
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusCreated, certificateResponse{
		ID:           cert.ID,
		Code:         cert.Code,
		Type:         string(cert.Type),
		HolderName:   cert.HolderName,
		FormationID:  cert.FormationID,
		SessionID:    cert.SessionID,
		EnrollmentID: cert.EnrollmentID,
		IssuedBy:     cert.IssuedBy,
		IssuedAt:     cert.IssuedAt.Format(time.RFC3339),
		Verified:     cert.Verified,
	})
}

// VerifyCertificate возвращает снимок сертификата по публичному коду.
// Открытая операция без побочных эффектов.
func (h *Handler) VerifyCertificate(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if code == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	snap, err := h.service.VerifyCertificate(r.Context(), code)
	if err != nil {
		if errors.Is(err, repository.ErrCertificateNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("verify certificate error", zap.Error(err), zap.String("code", code))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

// ConfirmVerification административно подтверждает сертификат по коду.
func (h *Handler) ConfirmVerification(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if code == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.ConfirmVerification(r.Context(), code); err != nil {
		if errors.Is(err, repository.ErrCertificateNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("confirm verification error", zap.Error(err), zap.String("code", code))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}
