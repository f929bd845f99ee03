// internal/payment/adapter.go
package payment

import (
	"context"
	"fmt"
	"sort"

	"athlos-billing/internal/domain/billing"
	xerrors "athlos-billing/internal/pkg/errors"
)

// ChargeOptions carries everything an adapter needs for one charge.
// IdempotencyKey must be honored by the provider: a repeated call with the
// same key must not move money twice.
type ChargeOptions struct {
	IdempotencyKey string
	Amount         float64
	Currency       string
	Metadata       map[string]string
}

// ChargeResult is the provider's answer to one charge call.
type ChargeResult struct {
	Success          bool
	Provider         string
	ProviderResponse map[string]interface{}
	FailureReason    string
}

// Adapter is the payment backend contract consumed by the charge executor.
type Adapter interface {
	Name() string
	Charge(ctx context.Context, sub *billing.Subscription, opts ChargeOptions) (*ChargeResult, error)
}

// Registry resolves provider names to adapters. It is populated at wiring
// time and read-only afterwards, so no locking is needed on the hot path.
type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Name()] = a
	}
	return r
}

// Resolve returns the adapter registered for provider, or ErrNoAdapter. An
// unknown provider is a hard, non-retryable failure: the caller must not
// guess a backend to charge against.
func (r *Registry) Resolve(provider string) (Adapter, error) {
	adapter, ok := r.adapters[provider]
	if !ok {
		return nil, fmt.Errorf("provider %q: %w", provider, xerrors.ErrNoAdapter)
	}
	return adapter, nil
}

// Providers lists the registered provider names, sorted for stable logs.
func (r *Registry) Providers() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
