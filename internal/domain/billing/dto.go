// internal/domain/billing/dto.go
package billing

import "time"

// RenewalOutcome names the terminal result of one pipeline run for one
// subscription.
type RenewalOutcome string

const (
	OutcomeRenewed       RenewalOutcome = "renewed"
	OutcomeRetrying      RenewalOutcome = "retrying"
	OutcomeExhausted     RenewalOutcome = "exhausted"
	OutcomeSkipped       RenewalOutcome = "skipped"
	OutcomeNoAdapter     RenewalOutcome = "no_adapter"
	OutcomeInternalError RenewalOutcome = "internal_error"
)

// SkipReason explains an OutcomeSkipped result.
type SkipReason string

const (
	SkipAutoRenewDisabled SkipReason = "auto_renew_disabled"
	SkipNotDue            SkipReason = "not_due"
	SkipNotFound          SkipReason = "not_found"
	SkipGuardHeld         SkipReason = "guard_held"
	SkipCancelled         SkipReason = "cancelled"
)

// DueCursor is the keyset cursor for paging through the due set. Pages
// advance strictly by (current_period_end, id), so a row that stays in the
// due predicate after a failed charge is left behind the cursor instead of
// being returned again on the next page.
type DueCursor struct {
	PeriodEnd time.Time
	ID        int64
}

// RenewalResult reports what the pipeline did with one subscription.
type RenewalResult struct {
	SubscriptionID int64              `json:"subscription_id"`
	Outcome        RenewalOutcome     `json:"outcome"`
	SkipReason     SkipReason         `json:"skip_reason,omitempty"`
	RetryCount     int                `json:"retry_count"`
	Status         SubscriptionStatus `json:"status"`
	ProcessedAt    time.Time          `json:"processed_at"`
}

// ScanReport summarizes one full scan pass.
type ScanReport struct {
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Scanned    int             `json:"scanned"`
	Results    []RenewalResult `json:"results"`
}

type UpdateAutoRenewRequest struct {
	AutoRenew *bool `json:"auto_renew" binding:"required"`
}

type AttemptListResponse struct {
	Attempts []PaymentAttempt `json:"attempts"`
	Total    int              `json:"total"`
}
