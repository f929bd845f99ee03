package renewal

import (
	"context"
	"sort"
	"sync"
	"time"

	"athlos-billing/internal/domain/audit"
	"athlos-billing/internal/domain/billing"
	"athlos-billing/internal/domain/notification"
	xerrors "athlos-billing/internal/pkg/errors"
)

// fakeStore is an in-memory Store. Its FindDue deliberately ignores the
// auto_renew filter the real query applies, so tests exercise the engine's
// own eligibility guards.
type fakeStore struct {
	mu           sync.Mutex
	subs         map[int64]billing.Subscription
	attempts     []billing.PaymentAttempt
	findDueErr   error
	applyErr     error
	findDueCalls int
}

func newFakeStore(subs ...billing.Subscription) *fakeStore {
	s := &fakeStore{subs: make(map[int64]billing.Subscription)}
	for _, sub := range subs {
		s.subs[sub.ID] = sub
	}
	return s
}

func (s *fakeStore) FindByID(_ context.Context, id int64) (*billing.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	copy := sub
	return &copy, nil
}

func (s *fakeStore) FindDue(_ context.Context, asOf time.Time, lookahead time.Duration, cursor billing.DueCursor, limit int) ([]billing.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.findDueCalls++
	if s.findDueErr != nil {
		return nil, s.findDueErr
	}

	cutoff := asOf.Add(lookahead)
	var due []billing.Subscription
	for _, sub := range s.subs {
		recovering := sub.Status == billing.SubscriptionStatusGrace || sub.Status == billing.SubscriptionStatusPastDue
		if !sub.CurrentPeriodEnd.After(cutoff) || recovering {
			if afterCursor(sub, cursor) {
				due = append(due, sub)
			}
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].CurrentPeriodEnd.Equal(due[j].CurrentPeriodEnd) {
			return due[i].ID < due[j].ID
		}
		return due[i].CurrentPeriodEnd.Before(due[j].CurrentPeriodEnd)
	})
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func afterCursor(sub billing.Subscription, cursor billing.DueCursor) bool {
	if sub.CurrentPeriodEnd.Equal(cursor.PeriodEnd) {
		return sub.ID > cursor.ID
	}
	return sub.CurrentPeriodEnd.After(cursor.PeriodEnd)
}

func (s *fakeStore) ApplyTransition(_ context.Context, t *billing.Transition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.applyErr != nil {
		return s.applyErr
	}
	if _, ok := s.subs[t.Subscription.ID]; !ok {
		return xerrors.ErrNotFound
	}
	s.subs[t.Subscription.ID] = *t.Subscription
	s.attempts = append(s.attempts, *t.Attempt)
	return nil
}

func (s *fakeStore) get(id int64) billing.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subs[id]
}

func (s *fakeStore) attemptCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.attempts)
}

func (s *fakeStore) findDueCallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findDueCalls
}

// recordingNotifier collects emitted notifications.
type recordingNotifier struct {
	mu     sync.Mutex
	events []notification.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n *notification.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, *n)
}

func (r *recordingNotifier) countByType(t notification.NotificationType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, e := range r.events {
		if e.Type == t {
			count++
		}
	}
	return count
}

// recordingAuditor collects emitted audit events.
type recordingAuditor struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recordingAuditor) Record(_ context.Context, e *audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, *e)
}

func (r *recordingAuditor) countByAction(a audit.Action) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, e := range r.events {
		if e.Action == a {
			count++
		}
	}
	return count
}

// erroringLocker simulates an unreachable lock backend.
type erroringLocker struct{ err error }

func (l *erroringLocker) Acquire(context.Context, string, time.Duration) (string, bool, error) {
	return "", false, l.err
}

func (l *erroringLocker) Release(context.Context, string, string) error {
	return l.err
}
