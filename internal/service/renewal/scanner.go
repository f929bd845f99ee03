// internal/service/renewal/scanner.go
package renewal

import (
	"context"
	"fmt"
	"time"

	"athlos-billing/internal/domain/audit"
	"athlos-billing/internal/domain/billing"
	xerrors "athlos-billing/internal/pkg/errors"
	"athlos-billing/internal/pkg/lock"

	"go.uber.org/zap"
)

const (
	scanLockKey    = "renewal:scan"
	guardKeyPrefix = "renewal:sub:"
)

// ScanConfig tunes a Scanner.
type ScanConfig struct {
	// LookaheadWindow widens the due predicate: subscriptions whose period
	// ends within asOf+lookahead are picked up early.
	LookaheadWindow time.Duration
	// ChunkSize bounds one due-set query.
	ChunkSize int
	// GuardTTL is the per-subscription processing guard lifetime.
	GuardTTL time.Duration
	// ScanLockTTL bounds the cluster-wide scan lock so a crashed holder never
	// blocks future scans permanently.
	ScanLockTTL time.Duration
}

// Scanner coordinates one scan pass: it takes the cluster-wide scan lock,
// walks the due set in chunks, and processes each candidate under a
// per-subscription guard. Failures are contained per subscription; one bad
// candidate never aborts the batch.
type Scanner struct {
	store    Store
	executor *ChargeExecutor
	engine   *Engine
	locker   lock.Locker
	cfg      ScanConfig

	now    func() time.Time
	logger *zap.Logger
}

func NewScanner(store Store, executor *ChargeExecutor, engine *Engine, locker lock.Locker, cfg ScanConfig, logger *zap.Logger) *Scanner {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 100
	}
	return &Scanner{
		store:    store,
		executor: executor,
		engine:   engine,
		locker:   locker,
		cfg:      cfg,
		now:      time.Now,
		logger:   logger,
	}
}

// RunScan executes one full pass over the due set as of the given time.
// The scan lock is advisory and failure-open: if the lock backend errors the
// scan proceeds without exclusion; if another instance holds the lock this
// pass is skipped.
func (s *Scanner) RunScan(ctx context.Context, asOf time.Time) (*billing.ScanReport, error) {
	report := &billing.ScanReport{StartedAt: s.now()}

	scanToken, acquired, err := s.locker.Acquire(ctx, scanLockKey, s.cfg.ScanLockTTL)
	if err != nil {
		s.logger.Warn("scan lock backend unavailable, proceeding without exclusion", zap.Error(err))
	} else if !acquired {
		s.logger.Info("scan lock held by another instance, skipping this pass")
		report.FinishedAt = s.now()
		return report, nil
	}
	if acquired {
		defer func() {
			if releaseErr := s.locker.Release(ctx, scanLockKey, scanToken); releaseErr != nil {
				s.logger.Warn("failed to release scan lock", zap.Error(releaseErr))
			}
		}()
	}

	// Failed candidates stay in the due predicate (grace/past_due) with
	// their period end unchanged, so paging must advance by keyset cursor,
	// not by re-running the head query: a chunk full of failing
	// subscriptions would otherwise pin the scan to the front of the due
	// set and starve everything ranked behind it.
	seen := make(map[int64]bool)
	var cursor billing.DueCursor
	for {
		batch, err := s.store.FindDue(ctx, asOf, s.cfg.LookaheadWindow, cursor, s.cfg.ChunkSize)
		if err != nil {
			if len(report.Results) > 0 {
				// Partial pass: keep what was processed, stop paging.
				s.logger.Error("due-set query failed mid-scan", zap.Error(err))
				break
			}
			return nil, fmt.Errorf("failed to query due subscriptions: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		for i := range batch {
			sub := batch[i]
			if seen[sub.ID] {
				continue
			}
			seen[sub.ID] = true

			result := s.ProcessOne(ctx, sub.ID)
			report.Results = append(report.Results, *result)
		}

		last := batch[len(batch)-1]
		cursor = billing.DueCursor{PeriodEnd: last.CurrentPeriodEnd, ID: last.ID}

		if len(batch) < s.cfg.ChunkSize {
			break
		}
	}

	report.Scanned = len(report.Results)
	report.FinishedAt = s.now()
	s.logger.Info("renewal scan finished",
		zap.Time("as_of", asOf),
		zap.Int("processed", report.Scanned),
		zap.Duration("took", report.FinishedAt.Sub(report.StartedAt)),
	)
	return report, nil
}

// ProcessOne runs the renewal pipeline for a single subscription under its
// processing guard. It never returns an error: every failure mode is folded
// into the RenewalResult so callers can keep iterating.
func (s *Scanner) ProcessOne(ctx context.Context, subscriptionID int64) *billing.RenewalResult {
	guardKey := fmt.Sprintf("%s%d", guardKeyPrefix, subscriptionID)

	token, acquired, err := s.locker.Acquire(ctx, guardKey, s.cfg.GuardTTL)
	if err != nil {
		// Failure-open: guard store being down degrades exclusion, not
		// renewals. The idempotency key still protects against double charge.
		s.logger.Warn("processing guard backend unavailable, proceeding unguarded",
			zap.Int64("subscription_id", subscriptionID),
			zap.Error(err),
		)
		acquired = false
	} else if !acquired {
		return &billing.RenewalResult{
			SubscriptionID: subscriptionID,
			Outcome:        billing.OutcomeSkipped,
			SkipReason:     billing.SkipGuardHeld,
			ProcessedAt:    s.now(),
		}
	}
	if acquired {
		defer func() {
			if releaseErr := s.locker.Release(ctx, guardKey, token); releaseErr != nil {
				s.logger.Warn("failed to release processing guard",
					zap.Int64("subscription_id", subscriptionID),
					zap.Error(releaseErr),
				)
			}
		}()
	}

	return s.processGuarded(ctx, subscriptionID)
}

// processGuarded is the pipeline body: re-fetch, evaluate, charge, apply.
// A panic anywhere inside is converted into an internal_error result.
func (s *Scanner) processGuarded(ctx context.Context, subscriptionID int64) (result *billing.RenewalResult) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic while processing subscription",
				zap.Int64("subscription_id", subscriptionID),
				zap.Any("panic", r),
			)
			result = s.internalError(ctx, subscriptionID, fmt.Sprintf("panic: %v", r))
		}
	}()

	// Re-fetch under the guard: the row may have changed (or vanished) since
	// the due-set query.
	sub, err := s.store.FindByID(ctx, subscriptionID)
	if err != nil {
		if xerrors.Is(err, xerrors.ErrNotFound) {
			return &billing.RenewalResult{
				SubscriptionID: subscriptionID,
				Outcome:        billing.OutcomeSkipped,
				SkipReason:     billing.SkipNotFound,
				ProcessedAt:    s.now(),
			}
		}
		s.logger.Error("failed to load subscription",
			zap.Int64("subscription_id", subscriptionID),
			zap.Error(err),
		)
		return s.internalError(ctx, subscriptionID, err.Error())
	}

	if reason, eligible := s.engine.Evaluate(sub, s.now()); !eligible {
		return &billing.RenewalResult{
			SubscriptionID: sub.ID,
			Outcome:        billing.OutcomeSkipped,
			SkipReason:     reason,
			RetryCount:     sub.RetryCount,
			Status:         sub.Status,
			ProcessedAt:    s.now(),
		}
	}

	outcome := s.executor.Attempt(ctx, sub)

	applied, err := s.engine.Apply(ctx, sub, outcome)
	if err != nil {
		s.logger.Error("failed to apply state transition",
			zap.Int64("subscription_id", sub.ID),
			zap.Error(err),
		)
		return s.internalError(ctx, sub.ID, err.Error())
	}
	return applied
}

func (s *Scanner) internalError(ctx context.Context, subscriptionID int64, detail string) *billing.RenewalResult {
	s.engine.auditor.Record(ctx, &audit.Event{
		Actor:  "system",
		Action: audit.ActionRenewalError,
		Details: map[string]interface{}{
			"subscription_id": subscriptionID,
			"error":           detail,
		},
	})
	return &billing.RenewalResult{
		SubscriptionID: subscriptionID,
		Outcome:        billing.OutcomeInternalError,
		ProcessedAt:    s.now(),
	}
}
