// internal/domain/audit/entity.go
package audit

import "time"

type Action string

const (
	ActionRenewalSucceeded Action = "subscription.renewal.succeeded"
	ActionRenewalFailed    Action = "subscription.renewal.failed"
	ActionRenewalExhausted Action = "subscription.renewal.exhausted"
	ActionRenewalNoAdapter Action = "subscription.renewal.no_adapter"
	ActionRenewalError     Action = "subscription.renewal.error"

	ActionRenewalManualRetry Action = "subscription.renewal.manual_retry"
	ActionAutoRenewChanged   Action = "subscription.auto_renew.changed"
)

// Event is a structured audit record. The renewal engine always writes with
// Actor "system"; the operator surface records the operator identity.
type Event struct {
	ID        int64                  `json:"id" db:"id"`
	Actor     string                 `json:"actor" db:"actor"`
	Action    Action                 `json:"action" db:"action"`
	Details   map[string]interface{} `json:"details,omitempty" db:"details"`
	CreatedAt time.Time              `json:"created_at" db:"created_at"`
}
