// internal/service/audit/service.go
package audit

import (
	"context"

	"athlos-billing/internal/domain/audit"
	"athlos-billing/internal/repository/postgres"

	"go.uber.org/zap"
)

// Service records audit events. Same fire-and-forget policy as
// notifications: the renewal pipeline never blocks on audit persistence.
type Service struct {
	repo   *postgres.AuditRepository
	logger *zap.Logger
}

func NewService(repo *postgres.AuditRepository, logger *zap.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
	}
}

func (s *Service) Record(ctx context.Context, e *audit.Event) {
	if err := s.repo.Create(ctx, e); err != nil {
		s.logger.Error("failed to record audit event",
			zap.String("action", string(e.Action)),
			zap.Error(err),
		)
	}
}
