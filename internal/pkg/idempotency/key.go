// internal/pkg/idempotency/key.go
package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// DeriveKey computes the idempotency key for one billing period of one
// subscription. The same (subscription, period start) pair always produces
// the same key, so a payment provider that honors idempotency keys will
// deduplicate a repeated charge for the same period instead of double-charging.
func DeriveKey(subscriptionID string, periodStartISO string) string {
	sum := sha256.Sum256([]byte(subscriptionID + "|" + periodStartISO))
	return hex.EncodeToString(sum[:])
}

// FormatPeriodStart normalizes a period start timestamp to the canonical
// form used for key derivation (RFC3339, UTC).
func FormatPeriodStart(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
