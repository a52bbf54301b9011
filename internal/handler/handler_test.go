package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/mkravets/traincenter-system/internal/middleware"
	"github.com/mkravets/traincenter-system/internal/model"
	"github.com/mkravets/traincenter-system/internal/repository"
	"github.com/mkravets/traincenter-system/internal/service"
)

type stubService struct {
	registerStaffID int64
	registerErr     error

	authStaffID int64
	authErr     error

	staff    *model.Staff
	staffErr error

	formation    *model.Formation
	formationErr error

	session    *model.Session
	sessionErr error

	submitEnrollment *model.Enrollment
	submitWaitlisted bool
	submitErr        error

	enrollment    *model.Enrollment
	enrollmentErr error

	payments    []model.Payment
	paymentsErr error

	transitionEnrollment *model.Enrollment
	transitionErr        error

	recordPayment    *model.Payment
	recordEnrollment *model.Enrollment
	recordErr        error

	enqueueEntry *model.WaitlistEntry
	enqueueErr   error

	waitlist    []model.WaitlistEntry
	waitlistErr error

	withdrawErr error

	promoteEnrollment *model.Enrollment
	promoteErr        error

	issueCert *model.Certificate
	issueErr  error

	snapshot    *model.CertificateSnapshot
	snapshotErr error

	confirmErr error
}

func (s *stubService) RegisterStaff(ctx context.Context, login, password string) (int64, error) {
	return s.registerStaffID, s.registerErr
}

func (s *stubService) AuthenticateStaff(ctx context.Context, login, password string) (int64, error) {
	return s.authStaffID, s.authErr
}

func (s *stubService) GetStaff(ctx context.Context, id int64) (*model.Staff, error) {
	return s.staff, s.staffErr
}

func (s *stubService) CreateFormation(ctx context.Context, title string, price float64) (*model.Formation, error) {
	return s.formation, s.formationErr
}

func (s *stubService) CreateSession(ctx context.Context, session *model.Session, price float64) (*model.Session, error) {
	return s.session, s.sessionErr
}

func (s *stubService) SubmitEnrollment(ctx context.Context, in service.EnrollmentInput) (*model.Enrollment, bool, error) {
	return s.submitEnrollment, s.submitWaitlisted, s.submitErr
}

func (s *stubService) GetEnrollment(ctx context.Context, id int64) (*model.Enrollment, error) {
	return s.enrollment, s.enrollmentErr
}

func (s *stubService) GetEnrollmentPayments(ctx context.Context, id int64) ([]model.Payment, error) {
	return s.payments, s.paymentsErr
}

func (s *stubService) TransitionEnrollment(ctx context.Context, id int64, target model.EnrollmentStatus) (*model.Enrollment, error) {
	return s.transitionEnrollment, s.transitionErr
}

func (s *stubService) RecordPayment(ctx context.Context, enrollmentID int64, amount float64, method model.PaymentMethod, transactionID *string) (*model.Payment, *model.Enrollment, error) {
	return s.recordPayment, s.recordEnrollment, s.recordErr
}

func (s *stubService) EnqueueWaitlist(ctx context.Context, sessionID, enrollmentID int64) (*model.WaitlistEntry, error) {
	return s.enqueueEntry, s.enqueueErr
}

func (s *stubService) GetWaitlist(ctx context.Context, sessionID int64) ([]model.WaitlistEntry, error) {
	return s.waitlist, s.waitlistErr
}

func (s *stubService) WithdrawWaitlistEntry(ctx context.Context, entryID int64) error {
	return s.withdrawErr
}

func (s *stubService) PromoteWaitlistEntry(ctx context.Context, sessionID, entryID int64, force bool) (*model.Enrollment, error) {
	return s.promoteEnrollment, s.promoteErr
}

func (s *stubService) IssueCertificate(ctx context.Context, enrollmentID int64, certType model.CertificateType, issuedBy string) (*model.Certificate, error) {
	return s.issueCert, s.issueErr
}

func (s *stubService) VerifyCertificate(ctx context.Context, code string) (*model.CertificateSnapshot, error) {
	return s.snapshot, s.snapshotErr
}

func (s *stubService) ConfirmVerification(ctx context.Context, code string) error {
	return s.confirmErr
}

func newTestHandler(t *testing.T, svc Service) *Handler {
	t.Helper()

	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	auth := middleware.NewAuthMiddleware("test-secret")

	return NewHandler(svc, logger, auth)
}

// authCookie возвращает валидный cookie авторизации для тестовых запросов.
func authCookie(h *Handler, staffID int64) *http.Cookie {
	rec := httptest.NewRecorder()
	h.authMiddleware.SetAuthCookie(rec, staffID)
	return rec.Result().Cookies()[0]
}

func TestRegisterStaff_Success(t *testing.T) {
	svc := &stubService{
		registerStaffID: 42,
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(credentialsRequest{
		Login:    "staff",
		Password: "pass",
	})

	req := httptest.NewRequest(http.MethodPost, "/api/staff/register", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.RegisterStaff(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if len(res.Cookies()) == 0 {
		t.Fatalf("auth cookie must be set on successful registration")
	}
}

func TestRegisterStaff_Conflict(t *testing.T) {
	svc := &stubService{
		registerErr: repository.ErrStaffExists,
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(credentialsRequest{
		Login:    "staff",
		Password: "pass",
	})

	req := httptest.NewRequest(http.MethodPost, "/api/staff/register", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.RegisterStaff(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusConflict)
	}
}

func TestLoginStaff_UnauthorizedOnBadCredentials(t *testing.T) {
	svc := &stubService{
		authErr: service.ErrInvalidCredentials,
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(credentialsRequest{
		Login:    "staff",
		Password: "wrong",
	})

	req := httptest.NewRequest(http.MethodPost, "/api/staff/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.LoginStaff(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnauthorized)
	}
}

func TestSubmitEnrollment_Created(t *testing.T) {
	svc := &stubService{
		submitEnrollment: &model.Enrollment{
			ID:          1,
			Name:        "Ivan Petrov",
			Email:       "ivan@example.com",
			FormationID: 1,
			Status:      model.EnrollmentStatusPending,
		},
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(enrollmentRequest{
		Name:        "Ivan Petrov",
		Email:       "ivan@example.com",
		Phone:       "+79990001122",
		Address:     "Moscow",
		FormationID: 1,
	})

	req := httptest.NewRequest(http.MethodPost, "/api/enrollments", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.SubmitEnrollment(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusCreated)
	}
	if ct := res.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type = %q, want application/json", ct)
	}

	var resp enrollmentResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "pending" {
		t.Fatalf("status = %q, want pending", resp.Status)
	}
}

func TestSubmitEnrollment_ValidationError(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	body, _ := json.Marshal(enrollmentRequest{
		Name:        "I",
		Email:       "not-an-email",
		FormationID: 0,
	})

	req := httptest.NewRequest(http.MethodPost, "/api/enrollments", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.SubmitEnrollment(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
}

func TestTransitionEnrollment_IllegalTransitionConflict(t *testing.T) {
	svc := &stubService{
		transitionErr: repository.ErrIllegalTransition,
	}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	body, _ := json.Marshal(transitionRequest{Status: "completed"})
	req := httptest.NewRequest(http.MethodPost, "/api/enrollments/1/status", bytes.NewReader(body))
	req.AddCookie(authCookie(h, 1))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusConflict)
	}
}

func TestTransitionEnrollment_UnknownStatus(t *testing.T) {
	h := newTestHandler(t, &stubService{})
	router := h.SetupRouter()

	body, _ := json.Marshal(transitionRequest{Status: "approved"})
	req := httptest.NewRequest(http.MethodPost, "/api/enrollments/1/status", bytes.NewReader(body))
	req.AddCookie(authCookie(h, 1))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnprocessableEntity)
	}
}

func TestRecordPayment_DuplicateTransactionConflict(t *testing.T) {
	svc := &stubService{
		recordErr: repository.ErrDuplicateTransaction,
	}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	body, _ := json.Marshal(paymentRequest{Amount: 100, Method: "card"})
	req := httptest.NewRequest(http.MethodPost, "/api/enrollments/1/payments", bytes.NewReader(body))
	req.AddCookie(authCookie(h, 1))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusConflict)
	}
}

func TestRecordPayment_Created(t *testing.T) {
	svc := &stubService{
		recordPayment:    &model.Payment{ID: 1, EnrollmentID: 1, AmountCents: 10000, Method: model.PaymentMethodCard},
		recordEnrollment: &model.Enrollment{ID: 1, PaidCents: 10000, TotalCents: 10000, PaymentStatus: model.PaymentStatusPaid},
	}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	body, _ := json.Marshal(paymentRequest{Amount: 100, Method: "card"})
	req := httptest.NewRequest(http.MethodPost, "/api/enrollments/1/payments", bytes.NewReader(body))
	req.AddCookie(authCookie(h, 1))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusCreated)
	}

	var resp recordPaymentResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Enrollment.PaymentStatus != "paid" {
		t.Fatalf("payment status = %q, want paid", resp.Enrollment.PaymentStatus)
	}
	if resp.Payment.Amount != 100 {
		t.Fatalf("amount = %v, want 100", resp.Payment.Amount)
	}
}

func TestEnqueueWaitlist_SessionNotFull(t *testing.T) {
	svc := &stubService{
		enqueueErr: repository.ErrSessionNotFull,
	}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	body, _ := json.Marshal(enqueueRequest{EnrollmentID: 1})
	req := httptest.NewRequest(http.MethodPost, "/api/sessions/1/waitlist", bytes.NewReader(body))
	req.AddCookie(authCookie(h, 1))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnprocessableEntity)
	}
}

func TestGetWaitlist_NoContent(t *testing.T) {
	svc := &stubService{
		waitlist: []model.WaitlistEntry{},
	}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/1/waitlist", nil)
	req.AddCookie(authCookie(h, 1))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusNoContent)
	}
}

func TestPromoteWaitlistEntry_OutOfOrderConflict(t *testing.T) {
	svc := &stubService{
		promoteErr: repository.ErrPromoteOutOfOrder,
	}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/sessions/1/waitlist/2/promote", nil)
	req.AddCookie(authCookie(h, 1))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusConflict)
	}
}

func TestIssueCertificate_NotEarned(t *testing.T) {
	svc := &stubService{
		staff:    &model.Staff{ID: 1, Login: "staff"},
		issueErr: repository.ErrCertificateNotEarned,
	}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	body, _ := json.Marshal(issueCertificateRequest{EnrollmentID: 1, Type: "completion"})
	req := httptest.NewRequest(http.MethodPost, "/api/certificates", bytes.NewReader(body))
	req.AddCookie(authCookie(h, 1))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnprocessableEntity)
	}
}

func TestIssueCertificate_WithoutCookie(t *testing.T) {
	h := newTestHandler(t, &stubService{})
	router := h.SetupRouter()

	body, _ := json.Marshal(issueCertificateRequest{EnrollmentID: 1, Type: "completion"})
	req := httptest.NewRequest(http.MethodPost, "/api/certificates", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnauthorized)
	}
}

func TestVerifyCertificate_NotFound(t *testing.T) {
	svc := &stubService{
		snapshotErr: repository.ErrCertificateNotFound,
	}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/certificates/CMP-0-0-00000000", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusNotFound)
	}
}

func TestVerifyCertificate_JSONResponse(t *testing.T) {
	svc := &stubService{
		snapshot: &model.CertificateSnapshot{
			Code:           "CMP-3-15-AABBCCDD",
			Type:           "completion",
			HolderName:     "Ivan Petrov",
			FormationTitle: "Go basics",
			EnrollmentID:   15,
			IssuedBy:       "staff",
			Verified:       true,
		},
	}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/certificates/CMP-3-15-AABBCCDD", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if ct := res.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type = %q, want application/json", ct)
	}

	var snap model.CertificateSnapshot
	if err := json.NewDecoder(res.Body).Decode(&snap); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if snap.HolderName != "Ivan Petrov" {
		t.Fatalf("holder = %q, want Ivan Petrov", snap.HolderName)
	}
}
