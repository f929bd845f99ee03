// internal/pkg/lock/memory.go
package lock

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// MemoryLocker implements Locker in process memory. It is used by tests and
// single-node deployments where no Redis is configured; it provides the same
// acquire/expire semantics but obviously no cross-instance exclusion.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]memoryLockEntry
	// now is swappable so expiry can be tested without sleeping.
	now func() time.Time
}

type memoryLockEntry struct {
	token     string
	expiresAt time.Time
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		locks: make(map[string]memoryLockEntry),
		now:   time.Now,
	}
}

func (l *MemoryLocker) Acquire(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry, held := l.locks[key]; held && l.now().Before(entry.expiresAt) {
		return "", false, nil
	}

	token := ulid.Make().String()
	l.locks[key] = memoryLockEntry{token: token, expiresAt: l.now().Add(ttl)}
	return token, true, nil
}

func (l *MemoryLocker) Release(_ context.Context, key string, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry, held := l.locks[key]; held && entry.token == token {
		delete(l.locks, key)
	}
	return nil
}
