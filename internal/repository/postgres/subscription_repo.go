// internal/repository/postgres/subscription_repo.go
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"athlos-billing/internal/domain/billing"
	xerrors "athlos-billing/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SubscriptionRepository struct {
	db *pgxpool.Pool
}

func NewSubscriptionRepository(db *pgxpool.Pool) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

const subscriptionColumns = `
	id, subscription_reference, owner_identity_id, subscription_plan_id, payment_provider,
	current_period_start, current_period_end, billing_interval_days,
	auto_renew, retry_count, last_retry_at, last_renewed_at, grace_until,
	amount, currency, status, metadata, created_at, updated_at
`

// FindByID retrieves a subscription by ID
func (r *SubscriptionRepository) FindByID(ctx context.Context, id int64) (*billing.Subscription, error) {
	query := fmt.Sprintf(`SELECT %s FROM billing_subscriptions WHERE id = $1`, subscriptionColumns)

	sub, err := scanSubscription(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find subscription: %w", err)
	}
	return sub, nil
}

// FindDue retrieves subscriptions eligible for a renewal attempt as of the
// given time, most overdue first, starting strictly after the keyset cursor.
// Grace and past-due subscriptions stay in the due set regardless of period
// end so retries keep getting picked up; the cursor is what lets a scan page
// past them when their charge failed within the same pass.
func (r *SubscriptionRepository) FindDue(ctx context.Context, asOf time.Time, lookahead time.Duration, cursor billing.DueCursor, limit int) ([]billing.Subscription, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM billing_subscriptions
		WHERE auto_renew = TRUE
		  AND status IN ('active', 'grace', 'past_due')
		  AND (current_period_end <= $1 OR status IN ('grace', 'past_due'))
		  AND (current_period_end, id) > ($2, $3)
		ORDER BY current_period_end ASC, id ASC
		LIMIT $4
	`, subscriptionColumns)

	rows, err := r.db.Query(ctx, query, asOf.Add(lookahead), cursor.PeriodEnd, cursor.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query due subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []billing.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		subs = append(subs, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read due subscriptions: %w", err)
	}
	return subs, nil
}

// UpdateRenewalStateWithTx persists the lifecycle fields the renewal engine
// owns within a transaction.
func (r *SubscriptionRepository) UpdateRenewalStateWithTx(ctx context.Context, tx pgx.Tx, sub *billing.Subscription) error {
	query := `
		UPDATE billing_subscriptions
		SET current_period_start = $1, current_period_end = $2,
		    retry_count = $3, last_retry_at = $4, last_renewed_at = $5, grace_until = $6,
		    status = $7, updated_at = $8
		WHERE id = $9
	`

	result, err := tx.Exec(
		ctx, query,
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd,
		sub.RetryCount, sub.LastRetryAt, sub.LastRenewedAt, sub.GraceUntil,
		sub.Status, time.Now(), sub.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update subscription state: %w", err)
	}
	if result.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

// SetAutoRenew flips the auto-renew flag.
func (r *SubscriptionRepository) SetAutoRenew(ctx context.Context, id int64, autoRenew bool) (*billing.Subscription, error) {
	query := `
		UPDATE billing_subscriptions
		SET auto_renew = $1, updated_at = $2
		WHERE id = $3
	`

	result, err := r.db.Exec(ctx, query, autoRenew, time.Now(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to update auto_renew: %w", err)
	}
	if result.RowsAffected() == 0 {
		return nil, xerrors.ErrNotFound
	}
	return r.FindByID(ctx, id)
}

func scanSubscription(row pgx.Row) (*billing.Subscription, error) {
	var sub billing.Subscription
	var metadataJSON []byte

	err := row.Scan(
		&sub.ID, &sub.SubscriptionReference, &sub.OwnerIdentityID, &sub.SubscriptionPlanID, &sub.PaymentProvider,
		&sub.CurrentPeriodStart, &sub.CurrentPeriodEnd, &sub.BillingIntervalDays,
		&sub.AutoRenew, &sub.RetryCount, &sub.LastRetryAt, &sub.LastRenewedAt, &sub.GraceUntil,
		&sub.Amount, &sub.Currency, &sub.Status, &metadataJSON, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &sub.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return &sub, nil
}
