package service

import (
	"context"
	"errors"

	"github.com/mkravets/traincenter-system/internal/model"
	"github.com/mkravets/traincenter-system/internal/repository"
)

// EnrollmentInput содержит данные самостоятельной записи на обучение.
type EnrollmentInput struct {
	Name        string
	Email       string
	Phone       string
	Address     string
	FormationID int64
	SessionID   *int64
}

// SubmitEnrollment создаёт заявку в статусе pending. Если целевая сессия
// заполнена, заявка сразу ставится в очередь ожидания; второй результат
// сообщает, попала ли она туда.
func (s *Service) SubmitEnrollment(ctx context.Context, in EnrollmentInput) (*model.Enrollment, bool, error) {
	formation, err := s.repo.GetFormation(ctx, in.FormationID)
	if err != nil {
		return nil, false, err
	}

	totalCents := formation.PriceCents

	var session *model.Session
	if in.SessionID != nil {
		session, err = s.repo.GetSession(ctx, *in.SessionID)
		if err != nil {
			return nil, false, err
		}
		if session.FormationID != formation.ID {
			return nil, false, ErrSessionMismatch
		}
		totalCents = session.PriceCents
	}

	enrollment, err := s.repo.CreateEnrollment(ctx, &model.Enrollment{
		Name:        in.Name,
		Email:       in.Email,
		Phone:       in.Phone,
		Address:     in.Address,
		FormationID: in.FormationID,
		SessionID:   in.SessionID,
		TotalCents:  totalCents,
	})
	if err != nil {
		return nil, false, err
	}

	if session == nil || !session.Full() {
		return enrollment, false, nil
	}

	_, err = s.repo.EnqueueWaitlist(ctx, session.ID, enrollment.ID)
	if err != nil {
		// Место могло освободиться между чтением сессии и постановкой в очередь.
		if errors.Is(err, repository.ErrSessionNotFull) {
			return enrollment, false, nil
		}
		return nil, false, err
	}

	return enrollment, true, nil
}

// GetEnrollment возвращает заявку по идентификатору.
func (s *Service) GetEnrollment(ctx context.Context, id int64) (*model.Enrollment, error) {
	return s.repo.GetEnrollment(ctx, id)
}

// GetEnrollmentPayments возвращает платежи по заявке.
func (s *Service) GetEnrollmentPayments(ctx context.Context, id int64) ([]model.Payment, error) {
	return s.repo.GetEnrollmentPayments(ctx, id)
}

// TransitionEnrollment переводит заявку в целевой статус. Если отмена
// освободила место в сессии, голова очереди ожидания продвигается на него
// той же процедурой, что и явное продвижение; сбой продвижения не отменяет
// уже выполненный переход.
func (s *Service) TransitionEnrollment(ctx context.Context, id int64, target model.EnrollmentStatus) (*model.Enrollment, error) {
	updated, releasedSession, err := s.repo.TransitionEnrollment(ctx, id, target)
	if err != nil {
		return nil, err
	}

	if releasedSession != nil {
		_ = s.promoteHead(ctx, *releasedSession)
	}

	return updated, nil
}

// promoteHead продвигает голову очереди сессии, если очередь не пуста.
// Запись с уже отменённой заявкой не должна навсегда блокировать голову
// очереди: такая запись убирается, и место предлагается следующей.
func (s *Service) promoteHead(ctx context.Context, sessionID int64) error {
	for {
		head, err := s.repo.GetWaitlistHead(ctx, sessionID)
		if err != nil || head == nil {
			return err
		}

		_, err = s.repo.PromoteWaitlistEntry(ctx, sessionID, head.ID, false)
		if err == nil {
			return nil
		}

		if errors.Is(err, repository.ErrIllegalTransition) {
			if err := s.repo.WithdrawWaitlistEntry(ctx, head.ID); err != nil {
				return err
			}
			continue
		}

		return err
	}
}
