package service

import (
	"context"
	"net/http"
	"time"

	"github.com/mkravets/traincenter-system/internal/notify"
)

// StartNotifyUpdates запускает фоновый процесс рассылки уведомлений по очередям ожидания.
func (s *Service) StartNotifyUpdates(ctx context.Context) {
	if s.notifyClient == nil {
		return
	}

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.processNotifyBatch(ctx)
			}
		}
	}()
}

func (s *Service) processNotifyBatch(ctx context.Context) {
	pending, err := s.repo.GetWaitlistForNotification(ctx, 100)
	if err != nil {
		return
	}

	for _, n := range pending {
		statusCode, retryAfter, err := s.notifyClient.SendWaitlistNotice(ctx, notify.WaitlistNotice{
			Email:     n.Email,
			Name:      n.Name,
			SessionID: n.SessionID,
			Position:  n.Position,
		})
		if err != nil {
			continue
		}

		if statusCode == http.StatusTooManyRequests {
			if retryAfter > 0 {
				timer := time.NewTimer(retryAfter)
				select {
				case <-ctx.Done():
					timer.Stop()
					return
				case <-timer.C:
				}
			}
			continue
		}

		_ = s.repo.MarkWaitlistNotified(ctx, n.EntryID)
	}
}
