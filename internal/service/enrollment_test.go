package service

import (
	"context"
	"errors"
	"testing"

	"github.com/mkravets/traincenter-system/internal/model"
	"github.com/mkravets/traincenter-system/internal/repository"
)

func int64Ptr(v int64) *int64 { return &v }

func validInput(sessionID *int64) EnrollmentInput {
	return EnrollmentInput{
		Name:        "Ivan Petrov",
		Email:       "ivan@example.com",
		Phone:       "+79990001122",
		Address:     "Moscow",
		FormationID: 1,
		SessionID:   sessionID,
	}
}

func TestSubmitEnrollment_OpenSession(t *testing.T) {
	repo := &stubRepo{
		formation: &model.Formation{ID: 1, PriceCents: 10000},
		session: &model.Session{
			ID: 2, FormationID: 1, MaxParticipants: 10, CurrentParticipants: 3, PriceCents: 25000,
		},
	}
	svc := NewService(repo, nil, nil)

	enrollment, waitlisted, err := svc.SubmitEnrollment(context.Background(), validInput(int64Ptr(2)))
	if err != nil {
		t.Fatalf("SubmitEnrollment error: %v", err)
	}
	if waitlisted {
		t.Fatalf("enrollment must not be waitlisted for a session with free seats")
	}
	if enrollment.Status != model.EnrollmentStatusPending {
		t.Fatalf("status = %s, want pending", enrollment.Status)
	}
	if enrollment.TotalCents != 25000 {
		t.Fatalf("total = %d, want session price 25000", enrollment.TotalCents)
	}
	if len(repo.enqueueSessions) != 0 {
		t.Fatalf("enqueue must not be called, got %v", repo.enqueueSessions)
	}
}

func TestSubmitEnrollment_FullSessionGoesToWaitlist(t *testing.T) {
	repo := &stubRepo{
		formation: &model.Formation{ID: 1, PriceCents: 10000},
		session: &model.Session{
			ID: 2, FormationID: 1, MaxParticipants: 1, CurrentParticipants: 1,
		},
		enqueueEntry: &model.WaitlistEntry{ID: 7, SessionID: 2, EnrollmentID: 100, Position: 1},
	}
	svc := NewService(repo, nil, nil)

	_, waitlisted, err := svc.SubmitEnrollment(context.Background(), validInput(int64Ptr(2)))
	if err != nil {
		t.Fatalf("SubmitEnrollment error: %v", err)
	}
	if !waitlisted {
		t.Fatalf("enrollment must be waitlisted for a full session")
	}
	if len(repo.enqueueSessions) != 1 || repo.enqueueSessions[0] != 2 {
		t.Fatalf("enqueue calls = %v, want [2]", repo.enqueueSessions)
	}
}

func TestSubmitEnrollment_SeatFreedDuringEnqueue(t *testing.T) {
	repo := &stubRepo{
		formation: &model.Formation{ID: 1},
		session: &model.Session{
			ID: 2, FormationID: 1, MaxParticipants: 1, CurrentParticipants: 1,
		},
		enqueueErr: repository.ErrSessionNotFull,
	}
	svc := NewService(repo, nil, nil)

	enrollment, waitlisted, err := svc.SubmitEnrollment(context.Background(), validInput(int64Ptr(2)))
	if err != nil {
		t.Fatalf("SubmitEnrollment error: %v", err)
	}
	if waitlisted {
		t.Fatalf("enrollment must not be reported waitlisted when a seat freed up")
	}
	if enrollment == nil {
		t.Fatalf("enrollment must still be created")
	}
}

func TestSubmitEnrollment_SessionMismatch(t *testing.T) {
	repo := &stubRepo{
		formation: &model.Formation{ID: 1},
		session:   &model.Session{ID: 2, FormationID: 99},
	}
	svc := NewService(repo, nil, nil)

	_, _, err := svc.SubmitEnrollment(context.Background(), validInput(int64Ptr(2)))
	if !errors.Is(err, ErrSessionMismatch) {
		t.Fatalf("expected ErrSessionMismatch, got %v", err)
	}
}

func TestSubmitEnrollment_FormationNotFound(t *testing.T) {
	repo := &stubRepo{
		formationErr: repository.ErrFormationNotFound,
	}
	svc := NewService(repo, nil, nil)

	_, _, err := svc.SubmitEnrollment(context.Background(), validInput(nil))
	if !errors.Is(err, repository.ErrFormationNotFound) {
		t.Fatalf("expected ErrFormationNotFound, got %v", err)
	}
}

func TestTransitionEnrollment_PromotesHeadAfterRelease(t *testing.T) {
	repo := &stubRepo{
		transitionEnrollment: &model.Enrollment{ID: 1, Status: model.EnrollmentStatusCancelled},
		transitionReleased:   int64Ptr(5),
		waitlistHead:         &model.WaitlistEntry{ID: 7, SessionID: 5, EnrollmentID: 2, Position: 1},
		promoteResult:        &model.Enrollment{ID: 2, Status: model.EnrollmentStatusConfirmed},
	}
	svc := NewService(repo, nil, nil)

	updated, err := svc.TransitionEnrollment(context.Background(), 1, model.EnrollmentStatusCancelled)
	if err != nil {
		t.Fatalf("TransitionEnrollment error: %v", err)
	}
	if updated.Status != model.EnrollmentStatusCancelled {
		t.Fatalf("status = %s, want cancelled", updated.Status)
	}

	if len(repo.promoteCalls) != 1 {
		t.Fatalf("promote calls = %d, want 1", len(repo.promoteCalls))
	}
	call := repo.promoteCalls[0]
	if call.sessionID != 5 || call.entryID != 7 || call.force {
		t.Fatalf("unexpected promote call: %+v", call)
	}
}

func TestTransitionEnrollment_NoPromotionWithoutRelease(t *testing.T) {
	repo := &stubRepo{
		transitionEnrollment: &model.Enrollment{ID: 1, Status: model.EnrollmentStatusAccepted},
	}
	svc := NewService(repo, nil, nil)

	_, err := svc.TransitionEnrollment(context.Background(), 1, model.EnrollmentStatusAccepted)
	if err != nil {
		t.Fatalf("TransitionEnrollment error: %v", err)
	}
	if len(repo.promoteCalls) != 0 {
		t.Fatalf("promote must not be called without a released seat")
	}
}

func TestTransitionEnrollment_PromotionFailureDoesNotFailTransition(t *testing.T) {
	repo := &stubRepo{
		transitionEnrollment: &model.Enrollment{ID: 1, Status: model.EnrollmentStatusCancelled},
		transitionReleased:   int64Ptr(5),
		waitlistHead:         &model.WaitlistEntry{ID: 7, SessionID: 5},
		promoteErr:           repository.ErrCapacityExceeded,
	}
	svc := NewService(repo, nil, nil)

	updated, err := svc.TransitionEnrollment(context.Background(), 1, model.EnrollmentStatusCancelled)
	if err != nil {
		t.Fatalf("transition must succeed despite promotion failure, got %v", err)
	}
	if updated == nil {
		t.Fatalf("updated enrollment must be returned")
	}
}

func TestTransitionEnrollment_SkipsDeadHeadEntry(t *testing.T) {
	repo := &stubRepo{
		transitionEnrollment: &model.Enrollment{ID: 1, Status: model.EnrollmentStatusCancelled},
		transitionReleased:   int64Ptr(5),
		waitlistHeads: []*model.WaitlistEntry{
			{ID: 7, SessionID: 5, EnrollmentID: 2, Position: 1},
			{ID: 8, SessionID: 5, EnrollmentID: 3, Position: 1},
		},
		promoteErrs:   []error{repository.ErrIllegalTransition, nil},
		promoteResult: &model.Enrollment{ID: 3, Status: model.EnrollmentStatusConfirmed},
	}
	svc := NewService(repo, nil, nil)

	_, err := svc.TransitionEnrollment(context.Background(), 1, model.EnrollmentStatusCancelled)
	if err != nil {
		t.Fatalf("TransitionEnrollment error: %v", err)
	}

	if len(repo.withdrawnIDs) != 1 || repo.withdrawnIDs[0] != 7 {
		t.Fatalf("dead head entry must be withdrawn, got %v", repo.withdrawnIDs)
	}
	if len(repo.promoteCalls) != 2 {
		t.Fatalf("promote calls = %d, want 2", len(repo.promoteCalls))
	}
	if repo.promoteCalls[1].entryID != 8 {
		t.Fatalf("second promote entry = %d, want next head 8", repo.promoteCalls[1].entryID)
	}
}

func TestTransitionEnrollment_PropagatesCapacityError(t *testing.T) {
	repo := &stubRepo{
		transitionErr: repository.ErrCapacityExceeded,
	}
	svc := NewService(repo, nil, nil)

	_, err := svc.TransitionEnrollment(context.Background(), 1, model.EnrollmentStatusConfirmed)
	if !errors.Is(err, repository.ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}
}

func TestRecordPayment_RejectsNonPositiveAmount(t *testing.T) {
	svc := NewService(&stubRepo{}, nil, nil)

	_, _, err := svc.RecordPayment(context.Background(), 1, -10, model.PaymentMethodCash, nil)
	if err == nil {
		t.Fatalf("expected error for negative amount")
	}

	_, _, err = svc.RecordPayment(context.Background(), 1, 0, model.PaymentMethodCash, nil)
	if err == nil {
		t.Fatalf("expected error for zero amount")
	}
}

func TestRecordPayment_ConvertsToKopecks(t *testing.T) {
	repo := &stubRepo{
		recordPayment:    &model.Payment{ID: 1, AmountCents: 5000},
		recordEnrollment: &model.Enrollment{ID: 1, PaidCents: 5000},
	}
	svc := NewService(repo, nil, nil)

	emptyTx := ""
	_, _, err := svc.RecordPayment(context.Background(), 1, 50, model.PaymentMethodCard, &emptyTx)
	if err != nil {
		t.Fatalf("RecordPayment error: %v", err)
	}
	if len(repo.recordedAmounts) != 1 || repo.recordedAmounts[0] != 5000 {
		t.Fatalf("recorded amounts = %v, want [5000]", repo.recordedAmounts)
	}
	if repo.recordedTxIDs[0] != nil {
		t.Fatalf("empty transaction id must be normalized to nil")
	}
}

func TestRecordPayment_RoundsToNearestKopeck(t *testing.T) {
	repo := &stubRepo{
		recordPayment:    &model.Payment{ID: 1},
		recordEnrollment: &model.Enrollment{ID: 1},
	}
	svc := NewService(repo, nil, nil)

	_, _, err := svc.RecordPayment(context.Background(), 1, 19.99, model.PaymentMethodCash, nil)
	if err != nil {
		t.Fatalf("RecordPayment error: %v", err)
	}
	if repo.recordedAmounts[0] != 1999 {
		t.Fatalf("amount = %d, want 1999", repo.recordedAmounts[0])
	}
}
