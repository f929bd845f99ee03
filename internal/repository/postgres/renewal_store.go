// internal/repository/postgres/renewal_store.go
package postgres

import (
	"context"
	"fmt"
	"time"

	"athlos-billing/internal/domain/billing"
)

// RenewalStore is the renewal pipeline's datastore. It composes the
// subscription and attempt repositories so a state transition lands as one
// transaction: the subscription's new lifecycle fields and the attempt
// record that justified them commit together or not at all.
type RenewalStore struct {
	db            *DB
	subscriptions *SubscriptionRepository
	attempts      *PaymentAttemptRepository
}

func NewRenewalStore(db *DB, subscriptions *SubscriptionRepository, attempts *PaymentAttemptRepository) *RenewalStore {
	return &RenewalStore{
		db:            db,
		subscriptions: subscriptions,
		attempts:      attempts,
	}
}

func (s *RenewalStore) FindByID(ctx context.Context, id int64) (*billing.Subscription, error) {
	return s.subscriptions.FindByID(ctx, id)
}

func (s *RenewalStore) FindDue(ctx context.Context, asOf time.Time, lookahead time.Duration, cursor billing.DueCursor, limit int) ([]billing.Subscription, error) {
	return s.subscriptions.FindDue(ctx, asOf, lookahead, cursor, limit)
}

func (s *RenewalStore) ApplyTransition(ctx context.Context, t *billing.Transition) error {
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := s.subscriptions.UpdateRenewalStateWithTx(ctx, tx, t.Subscription); err != nil {
		return err
	}
	if err := s.attempts.CreateWithTx(ctx, tx, t.Attempt); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transition: %w", err)
	}
	return nil
}
