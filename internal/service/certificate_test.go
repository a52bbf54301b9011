package service

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/mkravets/traincenter-system/internal/model"
	"github.com/mkravets/traincenter-system/internal/repository"
)

func TestCertificateCodeFormat(t *testing.T) {
	tests := []struct {
		certType model.CertificateType
		pattern  string
	}{
		{model.CertificateTypeCompletion, `^CMP-3-15-[0-9A-F]{8}$`},
		{model.CertificateTypeAttendance, `^ATT-3-15-[0-9A-F]{8}$`},
		{model.CertificateTypeExcellence, `^EXC-3-15-[0-9A-F]{8}$`},
	}

	for _, tt := range tests {
		code := certificateCode(tt.certType, 3, 15)
		if !regexp.MustCompile(tt.pattern).MatchString(code) {
			t.Fatalf("code %q does not match %s", code, tt.pattern)
		}
	}
}

func TestCertificateCodeRandomSuffix(t *testing.T) {
	a := certificateCode(model.CertificateTypeCompletion, 1, 1)
	b := certificateCode(model.CertificateTypeCompletion, 1, 1)
	if a == b {
		t.Fatalf("consecutive codes must differ, got %q twice", a)
	}
}

func TestIssueCertificate_RetriesOnCodeCollision(t *testing.T) {
	repo := &stubRepo{
		enrollment: &model.Enrollment{ID: 15, FormationID: 3, Status: model.EnrollmentStatusCompleted},
		issueErrs:  []error{repository.ErrCodeTaken, repository.ErrCodeTaken},
		issueCert:  &model.Certificate{ID: 1, EnrollmentID: 15},
	}
	svc := NewService(repo, nil, nil)

	cert, err := svc.IssueCertificate(context.Background(), 15, model.CertificateTypeCompletion, "staff")
	if err != nil {
		t.Fatalf("IssueCertificate error: %v", err)
	}
	if cert == nil {
		t.Fatalf("certificate must be returned after retries")
	}
	if repo.issueCalls != 3 {
		t.Fatalf("issue calls = %d, want 3", repo.issueCalls)
	}
	if repo.issueCodes[0] == repo.issueCodes[1] {
		t.Fatalf("retry must regenerate the code, got %q twice", repo.issueCodes[0])
	}
}

func TestIssueCertificate_ExhaustsAttempts(t *testing.T) {
	errs := make([]error, maxCodeAttempts)
	for i := range errs {
		errs[i] = repository.ErrCodeTaken
	}
	repo := &stubRepo{
		enrollment: &model.Enrollment{ID: 15, FormationID: 3},
		issueErrs:  errs,
	}
	svc := NewService(repo, nil, nil)

	_, err := svc.IssueCertificate(context.Background(), 15, model.CertificateTypeCompletion, "staff")
	if !errors.Is(err, ErrCodeExhausted) {
		t.Fatalf("expected ErrCodeExhausted, got %v", err)
	}
	if repo.issueCalls != maxCodeAttempts {
		t.Fatalf("issue calls = %d, want %d", repo.issueCalls, maxCodeAttempts)
	}
}

func TestIssueCertificate_DuplicateNotRetried(t *testing.T) {
	repo := &stubRepo{
		enrollment: &model.Enrollment{ID: 15, FormationID: 3},
		issueErrs:  []error{repository.ErrCertificateExists},
	}
	svc := NewService(repo, nil, nil)

	_, err := svc.IssueCertificate(context.Background(), 15, model.CertificateTypeCompletion, "staff")
	if !errors.Is(err, repository.ErrCertificateExists) {
		t.Fatalf("expected ErrCertificateExists, got %v", err)
	}
	if repo.issueCalls != 1 {
		t.Fatalf("duplicate pair must not be retried, got %d calls", repo.issueCalls)
	}
}

func TestIssueCertificate_NotEarnedNotRetried(t *testing.T) {
	repo := &stubRepo{
		enrollment: &model.Enrollment{ID: 15, FormationID: 3, Status: model.EnrollmentStatusConfirmed},
		issueErrs:  []error{repository.ErrCertificateNotEarned},
	}
	svc := NewService(repo, nil, nil)

	_, err := svc.IssueCertificate(context.Background(), 15, model.CertificateTypeCompletion, "staff")
	if !errors.Is(err, repository.ErrCertificateNotEarned) {
		t.Fatalf("expected ErrCertificateNotEarned, got %v", err)
	}
	if repo.issueCalls != 1 {
		t.Fatalf("precondition failure must not be retried, got %d calls", repo.issueCalls)
	}
}

func TestVerifyCertificate_ReturnsSnapshot(t *testing.T) {
	repo := &stubRepo{
		snapshot: &model.CertificateSnapshot{Code: "CMP-3-15-AABBCCDD", HolderName: "Ivan Petrov"},
	}
	svc := NewService(repo, nil, nil)

	snap, err := svc.VerifyCertificate(context.Background(), "CMP-3-15-AABBCCDD")
	if err != nil {
		t.Fatalf("VerifyCertificate error: %v", err)
	}
	if snap.HolderName != "Ivan Petrov" {
		t.Fatalf("holder = %q, want Ivan Petrov", snap.HolderName)
	}
}

func TestVerifyCertificate_NotFound(t *testing.T) {
	repo := &stubRepo{
		snapshotErr: repository.ErrCertificateNotFound,
	}
	svc := NewService(repo, nil, nil)

	_, err := svc.VerifyCertificate(context.Background(), "CMP-0-0-00000000")
	if !errors.Is(err, repository.ErrCertificateNotFound) {
		t.Fatalf("expected ErrCertificateNotFound, got %v", err)
	}
}

func TestConfirmVerification_PropagatesError(t *testing.T) {
	repo := &stubRepo{
		confirmErr: repository.ErrCertificateNotFound,
	}
	svc := NewService(repo, nil, nil)

	err := svc.ConfirmVerification(context.Background(), "CMP-0-0-00000000")
	if !errors.Is(err, repository.ErrCertificateNotFound) {
		t.Fatalf("expected ErrCertificateNotFound, got %v", err)
	}
}
