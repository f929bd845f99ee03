// internal/domain/billing/entity.go
package billing

import (
	"database/sql"
	"time"
)

type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusGrace     SubscriptionStatus = "grace"
	SubscriptionStatusPastDue   SubscriptionStatus = "past_due"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
)

type Subscription struct {
	ID                    int64  `json:"id" db:"id"`
	SubscriptionReference string `json:"subscription_reference" db:"subscription_reference"`

	// Related entities
	OwnerIdentityID    int64  `json:"owner_identity_id" db:"owner_identity_id"`
	SubscriptionPlanID int64  `json:"subscription_plan_id" db:"subscription_plan_id"`
	PaymentProvider    string `json:"payment_provider" db:"payment_provider"`

	// Billing period
	CurrentPeriodStart  time.Time `json:"current_period_start" db:"current_period_start"`
	CurrentPeriodEnd    time.Time `json:"current_period_end" db:"current_period_end"`
	BillingIntervalDays int       `json:"billing_interval_days" db:"billing_interval_days"`

	// Renewal bookkeeping
	AutoRenew     bool         `json:"auto_renew" db:"auto_renew"`
	RetryCount    int          `json:"retry_count" db:"retry_count"`
	LastRetryAt   sql.NullTime `json:"last_retry_at,omitempty" db:"last_retry_at"`
	LastRenewedAt sql.NullTime `json:"last_renewed_at,omitempty" db:"last_renewed_at"`
	GraceUntil    sql.NullTime `json:"grace_until,omitempty" db:"grace_until"`

	// Pricing
	Amount   float64 `json:"amount" db:"amount"`
	Currency string  `json:"currency" db:"currency"`

	// Status
	Status SubscriptionStatus `json:"status" db:"status"`

	// Metadata
	Metadata map[string]interface{} `json:"metadata,omitempty" db:"metadata"`

	// Timestamps
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type AttemptStatus string

const (
	AttemptStatusSuccess AttemptStatus = "success"
	AttemptStatusFailed  AttemptStatus = "failed"
)

// PaymentAttempt is an append-only record of one charge attempt. It is never
// updated or deleted after creation.
type PaymentAttempt struct {
	ID               int64                  `json:"id" db:"id"`
	AttemptReference string                 `json:"attempt_reference" db:"attempt_reference"`
	SubscriptionID   int64                  `json:"subscription_id" db:"subscription_id"`
	Provider         string                 `json:"provider" db:"provider"`
	IdempotencyKey   string                 `json:"idempotency_key" db:"idempotency_key"`
	Amount           float64                `json:"amount" db:"amount"`
	Currency         string                 `json:"currency" db:"currency"`
	Status           AttemptStatus          `json:"status" db:"status"`
	FailureReason    sql.NullString         `json:"failure_reason,omitempty" db:"failure_reason"`
	ProviderResponse map[string]interface{} `json:"provider_response,omitempty" db:"provider_response"`
	CreatedAt        time.Time              `json:"created_at" db:"created_at"`
}

// Transition is the atomic unit the state engine hands to the datastore:
// the subscription's new lifecycle fields plus the payment attempt record
// that justified them. Both are applied in a single transaction so no
// half-applied state is visible to a concurrent reader.
type Transition struct {
	Subscription *Subscription
	Attempt      *PaymentAttempt
}
