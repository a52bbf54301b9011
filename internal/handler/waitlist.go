package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mkravets/traincenter-system/internal/model"
	"github.com/mkravets/traincenter-system/internal/repository"
)

type waitlistEntryResponse struct {
	ID           int64  `json:"id"`
	SessionID    int64  `json:"session_id"`
	EnrollmentID int64  `json:"enrollment_id"`
	Position     int    `json:"position"`
	AddedAt      string `json:"added_at"`
	NotifiedAt   string `json:"notified_at,omitempty"`
}

func toWaitlistEntryResponse(e *model.WaitlistEntry) waitlistEntryResponse {
	resp := waitlistEntryResponse{
		ID:           e.ID,
		SessionID:    e.SessionID,
		EnrollmentID: e.EnrollmentID,
		Position:     e.Position,
		AddedAt:      e.AddedAt.Format(time.RFC3339),
	}
	if e.NotifiedAt != nil {
		resp.NotifiedAt = e.NotifiedAt.Format(time.RFC3339)
	}
	return resp
}

type enqueueRequest struct {
	EnrollmentID int64 `json:"enrollment_id" validate:"gt=0"`
}

// EnqueueWaitlist ставит заявку в очередь ожидания заполненной сессии.
func (h *Handler) EnqueueWaitlist(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := urlParamInt64(r, "id")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if !h.validateRequest(w, req) {
		return
	}

	entry, err := h.service.EnqueueWaitlist(r.Context(), sessionID, req.EnrollmentID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrSessionNotFound), errors.Is(err, repository.ErrEnrollmentNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, repository.ErrSessionNotFull):
			http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		case errors.Is(err, repository.ErrAlreadyQueued):
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
		default:
			h.logger.Error("enqueue waitlist error", zap.Error(err),
				zap.Int64("sessionID", sessionID), zap.Int64("enrollmentID", req.EnrollmentID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusCreated, toWaitlistEntryResponse(entry))
}

// GetWaitlist возвращает очередь ожидания сессии в порядке позиций.
func (h *Handler) GetWaitlist(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := urlParamInt64(r, "id")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	entries, err := h.service.GetWaitlist(r.Context(), sessionID)
	if err != nil {
		h.logger.Error("get waitlist error", zap.Error(err), zap.Int64("sessionID", sessionID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(entries) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]waitlistEntryResponse, 0, len(entries))
	for i := range entries {
		resp = append(resp, toWaitlistEntryResponse(&entries[i]))
	}

	writeJSON(w, http.StatusOK, resp)
}

// PromoteWaitlistEntry продвигает запись очереди на свободное место сессии.
// Параметр force разрешает продвижение не из головы очереди.
func (h *Handler) PromoteWaitlistEntry(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := urlParamInt64(r, "id")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	entryID, ok := urlParamInt64(r, "entryID")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	force := r.URL.Query().Get("force") == "true"

	enrollment, err := h.service.PromoteWaitlistEntry(r.Context(), sessionID, entryID, force)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrSessionNotFound),
			errors.Is(err, repository.ErrWaitlistEntryNotFound),
			errors.Is(err, repository.ErrEnrollmentNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, repository.ErrCapacityExceeded),
			errors.Is(err, repository.ErrPromoteOutOfOrder),
			errors.Is(err, repository.ErrIllegalTransition):
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
		default:
			h.logger.Error("promote waitlist entry error", zap.Error(err),
				zap.Int64("sessionID", sessionID), zap.Int64("entryID", entryID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, toEnrollmentResponse(enrollment))
}

// WithdrawWaitlistEntry убирает запись из очереди ожидания.
func (h *Handler) WithdrawWaitlistEntry(w http.ResponseWriter, r *http.Request) {
	entryID, ok := urlParamInt64(r, "entryID")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.WithdrawWaitlistEntry(r.Context(), entryID); err != nil {
		if errors.Is(err, repository.ErrWaitlistEntryNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("withdraw waitlist entry error", zap.Error(err), zap.Int64("entryID", entryID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
