package renewal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"athlos-billing/internal/domain/audit"
	"athlos-billing/internal/domain/billing"
	"athlos-billing/internal/domain/notification"
)

var engineNow = time.Date(2025, 1, 2, 12, 0, 0, 0, time.UTC)

func newTestEngine(store Store, maxRetry, graceDays int) (*Engine, *recordingNotifier, *recordingAuditor) {
	notifier := &recordingNotifier{}
	auditor := &recordingAuditor{}
	engine := NewEngine(store, notifier, auditor, maxRetry, graceDays, zap.NewNop())
	engine.now = func() time.Time { return engineNow }
	return engine, notifier, auditor
}

func activeSub(id int64) billing.Subscription {
	return billing.Subscription{
		ID:                    id,
		SubscriptionReference: "SUB-TEST",
		OwnerIdentityID:       100,
		PaymentProvider:       "mock",
		CurrentPeriodStart:    time.Date(2024, 12, 2, 0, 0, 0, 0, time.UTC),
		CurrentPeriodEnd:      time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		BillingIntervalDays:   30,
		AutoRenew:             true,
		Amount:                49.99,
		Currency:              "USD",
		Status:                billing.SubscriptionStatusActive,
	}
}

func TestEvaluate_AutoRenewDisabled(t *testing.T) {
	engine, _, _ := newTestEngine(newFakeStore(), 3, 7)

	sub := activeSub(1)
	sub.AutoRenew = false

	reason, eligible := engine.Evaluate(&sub, engineNow)
	assert.False(t, eligible)
	assert.Equal(t, billing.SkipAutoRenewDisabled, reason)
}

func TestEvaluate_ActiveNotDue(t *testing.T) {
	engine, _, _ := newTestEngine(newFakeStore(), 3, 7)

	sub := activeSub(1)
	sub.CurrentPeriodEnd = engineNow.AddDate(0, 0, 10)

	reason, eligible := engine.Evaluate(&sub, engineNow)
	assert.False(t, eligible)
	assert.Equal(t, billing.SkipNotDue, reason)
}

func TestEvaluate_GraceAlwaysEligible(t *testing.T) {
	engine, _, _ := newTestEngine(newFakeStore(), 3, 7)

	// A grace subscription stays eligible even with a future period end.
	sub := activeSub(1)
	sub.Status = billing.SubscriptionStatusGrace
	sub.CurrentPeriodEnd = engineNow.AddDate(0, 0, 30)

	_, eligible := engine.Evaluate(&sub, engineNow)
	assert.True(t, eligible)
}

func TestEvaluate_PastDueAlwaysEligible(t *testing.T) {
	engine, _, _ := newTestEngine(newFakeStore(), 3, 7)

	sub := activeSub(1)
	sub.Status = billing.SubscriptionStatusPastDue
	sub.CurrentPeriodEnd = engineNow.AddDate(0, 0, 30)

	_, eligible := engine.Evaluate(&sub, engineNow)
	assert.True(t, eligible)
}

func TestEvaluate_DueActiveEligible(t *testing.T) {
	engine, _, _ := newTestEngine(newFakeStore(), 3, 7)

	sub := activeSub(1) // period ended 2025-01-01, evaluated 2025-01-02
	_, eligible := engine.Evaluate(&sub, engineNow)
	assert.True(t, eligible)
}

func TestApply_SuccessAdvancesPeriodAndResetsRetries(t *testing.T) {
	sub := activeSub(1)
	sub.RetryCount = 2
	sub.Status = billing.SubscriptionStatusGrace
	store := newFakeStore(sub)
	engine, notifier, auditor := newTestEngine(store, 3, 7)

	outcome := &ChargeOutcome{Success: true, Provider: "mock", IdempotencyKey: "key"}
	result, err := engine.Apply(context.Background(), &sub, outcome)
	require.NoError(t, err)

	assert.Equal(t, billing.OutcomeRenewed, result.Outcome)

	updated := store.get(1)
	assert.Equal(t, billing.SubscriptionStatusActive, updated.Status)
	assert.Equal(t, 0, updated.RetryCount, "retry count resets regardless of prior value")
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), updated.CurrentPeriodStart,
		"new period starts at the previous period end")
	assert.Equal(t, time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC), updated.CurrentPeriodEnd,
		"period advances by exactly the billing interval")
	assert.True(t, updated.LastRenewedAt.Valid)
	assert.False(t, updated.GraceUntil.Valid)

	assert.Equal(t, 1, store.attemptCount())
	assert.Equal(t, billing.AttemptStatusSuccess, store.attempts[0].Status)
	assert.Equal(t, 1, notifier.countByType(notification.TypeRenewalSuccess))
	assert.Equal(t, 1, auditor.countByAction(audit.ActionRenewalSucceeded))
}

func TestApply_SuccessWithZeroPeriodEndStartsNow(t *testing.T) {
	sub := activeSub(1)
	sub.CurrentPeriodEnd = time.Time{}
	store := newFakeStore(sub)
	engine, _, _ := newTestEngine(store, 3, 7)

	_, err := engine.Apply(context.Background(), &sub, &ChargeOutcome{Success: true, Provider: "mock"})
	require.NoError(t, err)

	updated := store.get(1)
	assert.Equal(t, engineNow, updated.CurrentPeriodStart)
	assert.Equal(t, engineNow.AddDate(0, 0, 30), updated.CurrentPeriodEnd)
}

func TestApply_FirstFailureEntersGrace(t *testing.T) {
	sub := activeSub(1)
	store := newFakeStore(sub)
	engine, notifier, auditor := newTestEngine(store, 3, 7)

	outcome := &ChargeOutcome{Success: false, Provider: "mock", FailureReason: "card_declined"}
	result, err := engine.Apply(context.Background(), &sub, outcome)
	require.NoError(t, err)

	assert.Equal(t, billing.OutcomeRetrying, result.Outcome)

	updated := store.get(1)
	assert.Equal(t, billing.SubscriptionStatusGrace, updated.Status)
	assert.Equal(t, 1, updated.RetryCount)
	require.True(t, updated.GraceUntil.Valid)
	assert.Equal(t, engineNow.AddDate(0, 0, 7), updated.GraceUntil.Time)

	require.Equal(t, 1, store.attemptCount())
	attempt := store.attempts[0]
	assert.Equal(t, billing.AttemptStatusFailed, attempt.Status)
	assert.Equal(t, "card_declined", attempt.FailureReason.String)

	assert.Equal(t, 1, notifier.countByType(notification.TypeRenewalFailure))
	assert.Equal(t, 0, notifier.countByType(notification.TypeEscalation))
	assert.Equal(t, 0, auditor.countByAction(audit.ActionRenewalExhausted))
}

func TestApply_FinalFailureExhaustsToPastDue(t *testing.T) {
	sub := activeSub(1)
	sub.RetryCount = 2 // MAX_RETRY - 1
	sub.Status = billing.SubscriptionStatusGrace
	store := newFakeStore(sub)
	engine, notifier, auditor := newTestEngine(store, 3, 7)

	outcome := &ChargeOutcome{Success: false, Provider: "mock", FailureReason: "card_declined"}
	result, err := engine.Apply(context.Background(), &sub, outcome)
	require.NoError(t, err)

	assert.Equal(t, billing.OutcomeExhausted, result.Outcome)

	updated := store.get(1)
	assert.Equal(t, billing.SubscriptionStatusPastDue, updated.Status)
	assert.Equal(t, 3, updated.RetryCount)

	assert.Equal(t, 1, notifier.countByType(notification.TypeRenewalFailure))
	assert.Equal(t, 1, notifier.countByType(notification.TypeEscalation))
	assert.Equal(t, 1, auditor.countByAction(audit.ActionRenewalExhausted))
}

func TestApply_AlreadyPastDueDoesNotEscalateAgain(t *testing.T) {
	sub := activeSub(1)
	sub.RetryCount = 3
	sub.Status = billing.SubscriptionStatusPastDue
	store := newFakeStore(sub)
	engine, notifier, auditor := newTestEngine(store, 3, 7)

	_, err := engine.Apply(context.Background(), &sub, &ChargeOutcome{Success: false, Provider: "mock", FailureReason: "card_declined"})
	require.NoError(t, err)

	assert.Equal(t, 0, notifier.countByType(notification.TypeEscalation),
		"one failure episode escalates exactly once")
	assert.Equal(t, 0, auditor.countByAction(audit.ActionRenewalExhausted))
}

func TestApply_NoAdapterLeavesStateUntouched(t *testing.T) {
	sub := activeSub(1)
	sub.PaymentProvider = "unknown"
	store := newFakeStore(sub)
	engine, notifier, auditor := newTestEngine(store, 3, 7)

	result, err := engine.Apply(context.Background(), &sub, &ChargeOutcome{NoAdapter: true, Provider: "unknown"})
	require.NoError(t, err)

	assert.Equal(t, billing.OutcomeNoAdapter, result.Outcome)
	assert.Equal(t, 0, store.attemptCount(), "no attempt record without a provider call")
	assert.Equal(t, billing.SubscriptionStatusActive, store.get(1).Status)
	assert.Equal(t, 0, store.get(1).RetryCount)
	assert.Equal(t, 1, auditor.countByAction(audit.ActionRenewalNoAdapter))
	assert.Empty(t, notifier.events)
}
