// internal/service/notification/service.go
package notification

import (
	"context"

	"athlos-billing/internal/domain/notification"
	"athlos-billing/internal/repository/postgres"

	"go.uber.org/zap"
)

// Service writes renewal notifications to the delivery outbox. It is
// fire-and-forget: a failed write is logged and dropped, never surfaced to
// the renewal pipeline, since a renewal must not fail because a notification
// could not be recorded.
type Service struct {
	repo   *postgres.NotificationRepository
	logger *zap.Logger
}

func NewService(repo *postgres.NotificationRepository, logger *zap.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
	}
}

func (s *Service) Notify(ctx context.Context, n *notification.Notification) {
	if err := s.repo.Create(ctx, n); err != nil {
		s.logger.Error("failed to record notification",
			zap.Int64("recipient_id", n.RecipientID),
			zap.String("type", string(n.Type)),
			zap.Error(err),
		)
	}
}
