// internal/payment/mock.go
package payment

import (
	"context"
	"fmt"
	"sync"

	"athlos-billing/internal/domain/billing"
)

// MockAdapter is a configurable payment backend for development and tests.
// It records every charge it receives and deduplicates by idempotency key
// the way a real provider is required to.
type MockAdapter struct {
	mu sync.Mutex

	name string
	// Charges maps idempotency key -> the result returned for that key.
	Charges map[string]*ChargeResult
	// CallCount counts Charge invocations, including deduplicated replays.
	CallCount int

	// FailWith makes every new charge fail with the given reason.
	FailWith string
	// Err makes Charge return an error instead of a result.
	Err error
}

func NewMockAdapter(name string) *MockAdapter {
	if name == "" {
		name = "mock"
	}
	return &MockAdapter{
		name:    name,
		Charges: make(map[string]*ChargeResult),
	}
}

func (m *MockAdapter) Name() string { return m.name }

func (m *MockAdapter) Charge(_ context.Context, _ *billing.Subscription, opts ChargeOptions) (*ChargeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CallCount++

	if m.Err != nil {
		return nil, m.Err
	}

	// Replay with a known key returns the original result without a new
	// "real-world" charge.
	if prior, seen := m.Charges[opts.IdempotencyKey]; seen {
		return prior, nil
	}

	result := &ChargeResult{
		Success:  m.FailWith == "",
		Provider: m.name,
		ProviderResponse: map[string]interface{}{
			"mock_charge_id": fmt.Sprintf("ch_mock_%d", len(m.Charges)+1),
		},
	}
	if m.FailWith != "" {
		result.FailureReason = m.FailWith
	}

	m.Charges[opts.IdempotencyKey] = result
	return result, nil
}

// UniqueCharges reports how many distinct charges the provider would have
// executed, i.e. the number of distinct idempotency keys seen.
func (m *MockAdapter) UniqueCharges() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Charges)
}
