// internal/service/renewal/executor.go
package renewal

import (
	"context"
	"fmt"
	"time"

	"athlos-billing/internal/domain/billing"
	"athlos-billing/internal/payment"
	xerrors "athlos-billing/internal/pkg/errors"
	"athlos-billing/internal/pkg/idempotency"

	"go.uber.org/zap"
)

// ChargeOutcome is the charge executor's answer for one attempt. It is the
// only input the state engine needs besides the subscription itself.
type ChargeOutcome struct {
	Success          bool
	NoAdapter        bool
	Provider         string
	IdempotencyKey   string
	FailureReason    string
	ProviderResponse map[string]interface{}
}

// ChargeExecutor resolves the payment adapter for a subscription and runs a
// single bounded charge. It performs no retries itself; retry policy lives in
// the state engine. It never lets an adapter error or panic escape, since an
// uncaught failure here must not abort the surrounding scan.
type ChargeExecutor struct {
	registry *payment.Registry
	timeout  time.Duration
	logger   *zap.Logger
}

func NewChargeExecutor(registry *payment.Registry, timeout time.Duration, logger *zap.Logger) *ChargeExecutor {
	return &ChargeExecutor{
		registry: registry,
		timeout:  timeout,
		logger:   logger,
	}
}

// Attempt charges the subscription's current billing period exactly once.
func (e *ChargeExecutor) Attempt(ctx context.Context, sub *billing.Subscription) *ChargeOutcome {
	adapter, err := e.registry.Resolve(sub.PaymentProvider)
	if err != nil {
		if xerrors.Is(err, xerrors.ErrNoAdapter) {
			e.logger.Error("no payment adapter registered, operator intervention required",
				zap.Int64("subscription_id", sub.ID),
				zap.String("provider", sub.PaymentProvider),
			)
			return &ChargeOutcome{NoAdapter: true, Provider: sub.PaymentProvider}
		}
		return &ChargeOutcome{
			Provider:      sub.PaymentProvider,
			FailureReason: err.Error(),
		}
	}

	key := idempotency.DeriveKey(
		fmt.Sprintf("%d", sub.ID),
		idempotency.FormatPeriodStart(sub.CurrentPeriodStart),
	)

	opts := payment.ChargeOptions{
		IdempotencyKey: key,
		Amount:         sub.Amount,
		Currency:       sub.Currency,
		Metadata: map[string]string{
			"subscription_reference": sub.SubscriptionReference,
			"period_start":           idempotency.FormatPeriodStart(sub.CurrentPeriodStart),
		},
	}

	result, err := e.charge(ctx, adapter, sub, opts)
	if err != nil {
		e.logger.Warn("charge attempt failed",
			zap.Int64("subscription_id", sub.ID),
			zap.String("provider", adapter.Name()),
			zap.Error(err),
		)
		return &ChargeOutcome{
			Provider:       adapter.Name(),
			IdempotencyKey: key,
			FailureReason:  err.Error(),
		}
	}

	return &ChargeOutcome{
		Success:          result.Success,
		Provider:         result.Provider,
		IdempotencyKey:   key,
		FailureReason:    result.FailureReason,
		ProviderResponse: result.ProviderResponse,
	}
}

// charge runs the adapter call under a hard timeout and converts panics into
// errors. An adapter that hangs or blows up is indistinguishable from a
// failed charge to the caller.
func (e *ChargeExecutor) charge(ctx context.Context, adapter payment.Adapter, sub *billing.Subscription, opts payment.ChargeOptions) (*payment.ChargeResult, error) {
	cctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	type reply struct {
		result *payment.ChargeResult
		err    error
	}
	replyCh := make(chan reply, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				replyCh <- reply{err: fmt.Errorf("payment adapter panic: %v", r)}
			}
		}()
		result, err := adapter.Charge(cctx, sub, opts)
		replyCh <- reply{result: result, err: err}
	}()

	select {
	case <-cctx.Done():
		return nil, fmt.Errorf("charge timed out after %s: %w", e.timeout, cctx.Err())
	case r := <-replyCh:
		if r.err != nil {
			return nil, r.err
		}
		if r.result == nil {
			return nil, fmt.Errorf("payment adapter %s returned no result", adapter.Name())
		}
		return r.result, nil
	}
}
