package service

import (
	"context"

	"github.com/mkravets/traincenter-system/internal/model"
)

// EnqueueWaitlist ставит заявку в очередь ожидания заполненной сессии.
func (s *Service) EnqueueWaitlist(ctx context.Context, sessionID, enrollmentID int64) (*model.WaitlistEntry, error) {
	return s.repo.EnqueueWaitlist(ctx, sessionID, enrollmentID)
}

// GetWaitlist возвращает очередь ожидания сессии в порядке позиций.
func (s *Service) GetWaitlist(ctx context.Context, sessionID int64) ([]model.WaitlistEntry, error) {
	return s.repo.GetWaitlist(ctx, sessionID)
}

// WithdrawWaitlistEntry убирает запись из очереди с перенумерацией хвоста.
func (s *Service) WithdrawWaitlistEntry(ctx context.Context, entryID int64) error {
	return s.repo.WithdrawWaitlistEntry(ctx, entryID)
}

// PromoteWaitlistEntry продвигает запись очереди на свободное место сессии.
// Без force допускается только продвижение головы очереди.
func (s *Service) PromoteWaitlistEntry(ctx context.Context, sessionID, entryID int64, force bool) (*model.Enrollment, error) {
	return s.repo.PromoteWaitlistEntry(ctx, sessionID, entryID, force)
}
