package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/mkravets/traincenter-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса учебного центра.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Post("/staff/register", h.RegisterStaff)
		r.Post("/staff/login", h.LoginStaff)

		// Самостоятельная запись и публичная проверка сертификата не требуют авторизации.
		r.Post("/enrollments", h.SubmitEnrollment)
		r.Get("/certificates/{code}", h.VerifyCertificate)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Post("/staff/formations", h.CreateFormation)
			r.Post("/staff/sessions", h.CreateSession)

			r.Get("/enrollments/{id}", h.GetEnrollment)
			r.Post("/enrollments/{id}/status", h.TransitionEnrollment)
			r.Post("/enrollments/{id}/payments", h.RecordPayment)

			r.Get("/sessions/{id}/waitlist", h.GetWaitlist)
			r.Post("/sessions/{id}/waitlist", h.EnqueueWaitlist)
			r.Post("/sessions/{id}/waitlist/{entryID}/promote", h.PromoteWaitlistEntry)
			r.Delete("/waitlist/{entryID}", h.WithdrawWaitlistEntry)

			r.Post("/certificates", h.IssueCertificate)
			r.Post("/certificates/{code}/confirm", h.ConfirmVerification)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
