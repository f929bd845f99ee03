// internal/pkg/lock/lock.go
package lock

import (
	"context"
	"time"
)

// Locker is the distributed lock contract used for the cluster-wide scan lock
// and the per-subscription processing guards. Locks are advisory and
// self-expiring: a holder that crashes before releasing is unblocked by the
// TTL, never by another worker force-releasing.
type Locker interface {
	// Acquire attempts to take the lock for key without blocking. It returns
	// a holder token when acquired, or ok=false when another holder owns the
	// key. An error indicates the lock backend itself failed.
	Acquire(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)

	// Release gives up the lock identified by key and token. Releasing with a
	// stale or foreign token is a no-op so an expired holder can never drop
	// somebody else's lock.
	Release(ctx context.Context, key string, token string) error
}
