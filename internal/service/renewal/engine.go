// internal/service/renewal/engine.go
package renewal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"athlos-billing/internal/domain/audit"
	"athlos-billing/internal/domain/billing"
	"athlos-billing/internal/domain/notification"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// Store is the datastore contract the renewal pipeline consumes. The postgres
// implementation lives in internal/repository/postgres; tests substitute an
// in-memory fake.
type Store interface {
	FindByID(ctx context.Context, id int64) (*billing.Subscription, error)
	// FindDue returns a bounded batch of renewal candidates ordered by
	// (current_period_end, id) ascending, most overdue first, starting
	// strictly after the cursor.
	FindDue(ctx context.Context, asOf time.Time, lookahead time.Duration, cursor billing.DueCursor, limit int) ([]billing.Subscription, error)
	// ApplyTransition persists the subscription's new lifecycle fields and
	// appends the payment attempt record in a single transaction.
	ApplyTransition(ctx context.Context, t *billing.Transition) error
}

// Notifier emits fire-and-forget notifications to subscription owners.
// Implementations swallow and log delivery errors.
type Notifier interface {
	Notify(ctx context.Context, n *notification.Notification)
}

// Auditor records structured audit events. Same fire-and-forget policy.
type Auditor interface {
	Record(ctx context.Context, e *audit.Event)
}

// Engine is the lifecycle state machine. Given a subscription and a charge
// outcome it computes the next state, applies it atomically, and emits the
// notification and audit side effects. It is the only writer of a
// subscription's state, period, and retry fields.
type Engine struct {
	store    Store
	notifier Notifier
	auditor  Auditor

	maxRetry        int
	gracePeriodDays int

	now    func() time.Time
	logger *zap.Logger
}

func NewEngine(store Store, notifier Notifier, auditor Auditor, maxRetry, gracePeriodDays int, logger *zap.Logger) *Engine {
	return &Engine{
		store:           store,
		notifier:        notifier,
		auditor:         auditor,
		maxRetry:        maxRetry,
		gracePeriodDays: gracePeriodDays,
		now:             time.Now,
		logger:          logger,
	}
}

// Evaluate decides whether a subscription is eligible for a charge right now.
// It guards against the scan window being wider than the true due set and
// against racing a concurrent successful renewal.
func (e *Engine) Evaluate(sub *billing.Subscription, asOf time.Time) (billing.SkipReason, bool) {
	if sub.Status == billing.SubscriptionStatusCancelled {
		return billing.SkipCancelled, false
	}
	if !sub.AutoRenew {
		return billing.SkipAutoRenewDisabled, false
	}
	// Grace and past-due subscriptions are always eligible for re-evaluation;
	// only an active subscription whose period has not ended yet is not due.
	if sub.Status == billing.SubscriptionStatusActive && sub.CurrentPeriodEnd.After(asOf) {
		return billing.SkipNotDue, false
	}
	return "", true
}

// Apply runs the state transition for one charge outcome. The subscription
// update and attempt record are persisted atomically; notifications and audit
// events fire only after the write commits.
func (e *Engine) Apply(ctx context.Context, sub *billing.Subscription, outcome *ChargeOutcome) (*billing.RenewalResult, error) {
	now := e.now()

	if outcome.NoAdapter {
		// Hard failure: nothing was charged and no state changes. Flagged for
		// operator attention, never retried automatically by the engine.
		e.auditor.Record(ctx, &audit.Event{
			Actor:  "system",
			Action: audit.ActionRenewalNoAdapter,
			Details: map[string]interface{}{
				"subscription_id": sub.ID,
				"provider":        sub.PaymentProvider,
			},
		})
		return &billing.RenewalResult{
			SubscriptionID: sub.ID,
			Outcome:        billing.OutcomeNoAdapter,
			RetryCount:     sub.RetryCount,
			Status:         sub.Status,
			ProcessedAt:    now,
		}, nil
	}

	if outcome.Success {
		return e.applySuccess(ctx, sub, outcome, now)
	}
	return e.applyFailure(ctx, sub, outcome, now)
}

func (e *Engine) applySuccess(ctx context.Context, sub *billing.Subscription, outcome *ChargeOutcome, now time.Time) (*billing.RenewalResult, error) {
	updated := *sub

	periodStart := sub.CurrentPeriodEnd
	if periodStart.IsZero() {
		periodStart = now
	}
	updated.CurrentPeriodStart = periodStart
	updated.CurrentPeriodEnd = periodStart.AddDate(0, 0, sub.BillingIntervalDays)
	updated.Status = billing.SubscriptionStatusActive
	updated.RetryCount = 0
	updated.LastRenewedAt = sql.NullTime{Time: now, Valid: true}
	updated.GraceUntil = sql.NullTime{}

	transition := &billing.Transition{
		Subscription: &updated,
		Attempt:      e.newAttempt(sub, outcome, billing.AttemptStatusSuccess, now),
	}
	if err := e.store.ApplyTransition(ctx, transition); err != nil {
		return nil, fmt.Errorf("failed to apply renewal: %w", err)
	}

	e.logger.Info("subscription renewed",
		zap.Int64("subscription_id", sub.ID),
		zap.String("provider", outcome.Provider),
		zap.Time("new_period_end", updated.CurrentPeriodEnd),
	)

	e.notifier.Notify(ctx, &notification.Notification{
		RecipientID: sub.OwnerIdentityID,
		Title:       "Subscription renewed",
		Body: fmt.Sprintf("Your subscription %s was renewed through %s.",
			sub.SubscriptionReference, updated.CurrentPeriodEnd.Format("2006-01-02")),
		Type:     notification.TypeRenewalSuccess,
		Channels: []string{"email", "in_app"},
		Metadata: map[string]interface{}{"subscription_id": sub.ID},
	})
	e.auditor.Record(ctx, &audit.Event{
		Actor:  "system",
		Action: audit.ActionRenewalSucceeded,
		Details: map[string]interface{}{
			"subscription_id":  sub.ID,
			"provider":         outcome.Provider,
			"new_period_start": updated.CurrentPeriodStart,
			"new_period_end":   updated.CurrentPeriodEnd,
		},
	})

	return &billing.RenewalResult{
		SubscriptionID: sub.ID,
		Outcome:        billing.OutcomeRenewed,
		RetryCount:     0,
		Status:         billing.SubscriptionStatusActive,
		ProcessedAt:    now,
	}, nil
}

func (e *Engine) applyFailure(ctx context.Context, sub *billing.Subscription, outcome *ChargeOutcome, now time.Time) (*billing.RenewalResult, error) {
	updated := *sub
	updated.RetryCount = sub.RetryCount + 1
	updated.LastRetryAt = sql.NullTime{Time: now, Valid: true}
	updated.GraceUntil = sql.NullTime{Time: now.AddDate(0, 0, e.gracePeriodDays), Valid: true}

	exhausted := updated.RetryCount >= e.maxRetry
	if exhausted {
		updated.Status = billing.SubscriptionStatusPastDue
	} else {
		updated.Status = billing.SubscriptionStatusGrace
	}

	transition := &billing.Transition{
		Subscription: &updated,
		Attempt:      e.newAttempt(sub, outcome, billing.AttemptStatusFailed, now),
	}
	if err := e.store.ApplyTransition(ctx, transition); err != nil {
		return nil, fmt.Errorf("failed to apply failed renewal: %w", err)
	}

	e.logger.Warn("subscription renewal failed",
		zap.Int64("subscription_id", sub.ID),
		zap.String("provider", outcome.Provider),
		zap.String("reason", outcome.FailureReason),
		zap.Int("retry_count", updated.RetryCount),
		zap.Bool("exhausted", exhausted),
	)

	e.notifier.Notify(ctx, &notification.Notification{
		RecipientID: sub.OwnerIdentityID,
		Title:       "Subscription renewal failed",
		Body: fmt.Sprintf("We could not renew subscription %s: %s. We will retry automatically.",
			sub.SubscriptionReference, outcome.FailureReason),
		Type:     notification.TypeRenewalFailure,
		Channels: []string{"email", "in_app"},
		Metadata: map[string]interface{}{"subscription_id": sub.ID, "retry_count": updated.RetryCount},
	})
	e.auditor.Record(ctx, &audit.Event{
		Actor:  "system",
		Action: audit.ActionRenewalFailed,
		Details: map[string]interface{}{
			"subscription_id": sub.ID,
			"provider":        outcome.Provider,
			"failure_reason":  outcome.FailureReason,
			"retry_count":     updated.RetryCount,
		},
	})

	outcomeCode := billing.OutcomeRetrying
	// Escalate only on the transition into past_due so one failure episode
	// produces exactly one escalation.
	if exhausted && sub.Status != billing.SubscriptionStatusPastDue {
		outcomeCode = billing.OutcomeExhausted
		e.notifier.Notify(ctx, &notification.Notification{
			RecipientID: sub.OwnerIdentityID,
			Title:       "Action required: subscription past due",
			Body: fmt.Sprintf("Subscription %s could not be renewed after %d attempts and is now past due. Please update your payment method.",
				sub.SubscriptionReference, updated.RetryCount),
			Type:     notification.TypeEscalation,
			Channels: []string{"email", "sms", "in_app"},
			Metadata: map[string]interface{}{"subscription_id": sub.ID},
		})
		e.auditor.Record(ctx, &audit.Event{
			Actor:  "system",
			Action: audit.ActionRenewalExhausted,
			Details: map[string]interface{}{
				"subscription_id": sub.ID,
				"retry_count":     updated.RetryCount,
				"episode":         "exhausted",
			},
		})
	} else if exhausted {
		outcomeCode = billing.OutcomeExhausted
	}

	return &billing.RenewalResult{
		SubscriptionID: sub.ID,
		Outcome:        outcomeCode,
		RetryCount:     updated.RetryCount,
		Status:         updated.Status,
		ProcessedAt:    now,
	}, nil
}

func (e *Engine) newAttempt(sub *billing.Subscription, outcome *ChargeOutcome, status billing.AttemptStatus, now time.Time) *billing.PaymentAttempt {
	attempt := &billing.PaymentAttempt{
		AttemptReference: fmt.Sprintf("PAY-%s", ulid.Make().String()),
		SubscriptionID:   sub.ID,
		Provider:         outcome.Provider,
		IdempotencyKey:   outcome.IdempotencyKey,
		Amount:           sub.Amount,
		Currency:         sub.Currency,
		Status:           status,
		ProviderResponse: outcome.ProviderResponse,
		CreatedAt:        now,
	}
	if outcome.FailureReason != "" {
		attempt.FailureReason = sql.NullString{String: outcome.FailureReason, Valid: true}
	}
	return attempt
}
