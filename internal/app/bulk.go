/**
 * @description
 * This file contains the bulk mutation engine. Uniform-value transitions
 * (status flips, markPaid, markOverdue, cashback, notification bookkeeping)
 * chunk the composite-key list and sum per-chunk affected-row counts.
 * The heterogeneous markDue path uses the staged two-phase pattern: per-row
 * new values land in a scratch table under a per-run correlation id, a single
 * UPDATE...FROM applies them, and the run's staged rows are drained on both
 * success and failure.
 *
 * @dependencies
 * - internal/store, internal/domain, internal/metrics
 * - pkg/chunk: Bounded-concurrency chunk execution.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/campuspass/pass-service/internal/domain"
	"github.com/campuspass/pass-service/internal/metrics"
	"github.com/campuspass/pass-service/pkg/chunk"
	"github.com/campuspass/pass-service/pkg/rabbitmq"
)

// markDueGuardTTL bounds how long a crashed markDue holder can block the next
// run when the Redis guard is in use.
const markDueGuardTTL = 10 * time.Minute

var (
	ErrNegativeCashback = errors.New("cashback must not be negative")
	ErrInvalidDueUpdate = errors.New("invalid due update")
)

// errorCollector accumulates per-record failures from concurrently executing
// chunks behind a mutex.
type errorCollector struct {
	mu     sync.Mutex
	errors []domain.ItemError
}

func (c *errorCollector) add(errs ...domain.ItemError) {
	if len(errs) == 0 {
		return
	}
	c.mu.Lock()
	c.errors = append(c.errors, errs...)
	c.mu.Unlock()
}

func (c *errorCollector) snapshot() []domain.ItemError {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.ItemError, len(c.errors))
	copy(out, c.errors)
	return out
}

func (s *Service) runUniformBulk(ctx context.Context, operation string, keys []domain.PassKey, fn func(ctx context.Context, part []domain.PassKey) (int64, error)) (int64, error) {
	start := time.Now()
	updated, err := chunk.ForSum(ctx, keys, s.chunkOpts, fn)
	metrics.BulkDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ChunkFailures.WithLabelValues(operation).Inc()
		return updated, fmt.Errorf("bulk %s failed: %w", operation, err)
	}
	metrics.BulkRowsUpdated.WithLabelValues(operation).Add(float64(updated))
	s.logger.Info("bulk mutation finished", "operation", operation, "targets", len(keys), "updated", updated)
	return updated, nil
}

// SetPassStatus flips pass_status for every target key; soft deactivation is
// SetPassStatus(..., PassStatusInactive).
func (s *Service) SetPassStatus(ctx context.Context, keys []domain.PassKey, status domain.PassStatus) (int64, error) {
	return s.runUniformBulk(ctx, "set_status", keys, func(ctx context.Context, part []domain.PassKey) (int64, error) {
		return s.repo.UpdatePassStatus(ctx, part, status)
	})
}

// MarkPaid transitions the targets to paid; total_to_pay is zeroed atomically
// with the status flip inside each chunk's UPDATE.
func (s *Service) MarkPaid(ctx context.Context, keys []domain.PassKey) (int64, error) {
	return s.runUniformBulk(ctx, "mark_paid", keys, func(ctx context.Context, part []domain.PassKey) (int64, error) {
		return s.repo.MarkPaid(ctx, part)
	})
}

// MarkOverdue transitions the targets' payment status to overdue.
func (s *Service) MarkOverdue(ctx context.Context, keys []domain.PassKey) (int64, error) {
	return s.runUniformBulk(ctx, "mark_overdue", keys, func(ctx context.Context, part []domain.PassKey) (int64, error) {
		return s.repo.UpdatePaymentStatus(ctx, part, domain.PaymentStatusOverdue)
	})
}

// SetCashback assigns a uniform cashback amount to every target.
func (s *Service) SetCashback(ctx context.Context, keys []domain.PassKey, cashback int64) (int64, error) {
	if cashback < 0 {
		return 0, ErrNegativeCashback
	}
	return s.runUniformBulk(ctx, "set_cashback", keys, func(ctx context.Context, part []domain.PassKey) (int64, error) {
		return s.repo.SetCashback(ctx, part, cashback)
	})
}

// IncrementNotificationCounts bumps the notification counter and stamps the
// last notification date for every target.
func (s *Service) IncrementNotificationCounts(ctx context.Context, keys []domain.PassKey) (int64, error) {
	now := time.Now().UTC()
	return s.runUniformBulk(ctx, "increment_notifications", keys, func(ctx context.Context, part []domain.PassKey) (int64, error) {
		return s.repo.IncrementNotificationCounts(ctx, part, now)
	})
}

// ResetStaleNotificationCounts zeroes counters whose last notification is more
// than 24 hours old. Run periodically to bound unbounded growth.
func (s *Service) ResetStaleNotificationCounts(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-24 * time.Hour)
	reset, err := s.repo.ResetNotificationCountsBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to reset notification counters: %w", err)
	}
	return reset, nil
}

// MarkDue applies per-row new values (amount and deadline) to every target in
// two phases: chunked inserts into the scratch table under a fresh run id,
// then a single join-update once every staging chunk has committed. Staged
// rows are drained on every exit path; a drain failure is retried once and
// loudly logged, since leaked rows would corrupt a later run of the same id
// space accounting.
func (s *Service) MarkDue(ctx context.Context, updates []domain.DueUpdate) (int64, error) {
	for _, u := range updates {
		if err := u.Validate(); err != nil {
			return 0, fmt.Errorf("%w for %s: %v", ErrInvalidDueUpdate, u.Key, err)
		}
	}
	if len(updates) == 0 {
		return 0, nil
	}

	token, err := s.guard.Acquire(ctx, "mark_due", markDueGuardTTL)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := s.guard.Release(context.WithoutCancel(ctx), "mark_due", token); err != nil {
			s.logger.Error("failed to release mark_due guard", "err", err)
		}
	}()

	runID := uuid.New()
	defer s.drainStagedRows(ctx, runID)

	start := time.Now()
	staged, err := chunk.ForSum(ctx, updates, s.chunkOpts, func(ctx context.Context, part []domain.DueUpdate) (int64, error) {
		return s.repo.StageDueUpdates(ctx, runID, part)
	})
	if err != nil {
		metrics.ChunkFailures.WithLabelValues("mark_due").Inc()
		return 0, fmt.Errorf("failed to stage due updates: %w", err)
	}

	// All staging chunks have committed; the join-update may now run.
	updatedKeys, err := s.repo.ApplyStagedDueUpdates(ctx, runID)
	metrics.BulkDuration.WithLabelValues("mark_due").Observe(time.Since(start).Seconds())
	if err != nil {
		return 0, fmt.Errorf("failed to apply staged due updates: %w", err)
	}
	updated := int64(len(updatedKeys))

	metrics.BulkRowsUpdated.WithLabelValues("mark_due").Add(float64(updated))
	s.logger.Info("bulk mark due finished", "run_id", runID, "staged", staged, "updated", updated)

	// The wallet collaborators regenerate artifacts off these events, so
	// only rows the join-update touched get one; a publish failure degrades
	// push freshness, not the committed update.
	byKey := make(map[domain.PassKey]domain.DueUpdate, len(updates))
	for _, u := range updates {
		byKey[u.Key] = u
	}
	for _, key := range updatedKeys {
		u, ok := byKey[key]
		if !ok {
			continue
		}
		event := rabbitmq.NewPassEvent(rabbitmq.PassEventUpdated, u.Key, u.TotalToPay, u.EndDueDate)
		if err := s.events.PublishPassEvent(ctx, event); err != nil {
			s.logger.Warn("failed to publish pass updated event", "key", u.Key.String(), "err", err)
		}
	}
	return updated, nil
}

// drainStagedRows clears one run's scratch rows regardless of how the run
// ended. The context may already be cancelled, so the cleanup detaches from it.
func (s *Service) drainStagedRows(ctx context.Context, runID uuid.UUID) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	err := s.repo.ClearStagedDueUpdates(cleanupCtx, runID)
	if err == nil {
		return
	}
	s.logger.Warn("staged row cleanup failed; retrying", "run_id", runID, "err", err)
	if err := s.repo.ClearStagedDueUpdates(cleanupCtx, runID); err != nil {
		// Stale rows cannot corrupt other runs (they are keyed by run id) but
		// they leak storage until swept, so make the failure visible.
		s.logger.Error("staged row cleanup failed after retry; rows leaked", "run_id", runID, "err", err)
	}
}

// createPassChunk persists one chunk of the ingestion batch. Records failing
// domain validation are reported without reaching the store; the remainder go
// in as one multi-row insert, and keys missing from the insert result are
// reported as duplicates. The whole chunk counts as attempted.
func (s *Service) createPassChunk(ctx context.Context, recs []domain.NewPass) (int64, []domain.ItemError, error) {
	valid := make([]domain.NewPass, 0, len(recs))
	var failures []domain.ItemError
	for _, rec := range recs {
		if err := rec.Validate(); err != nil {
			failures = append(failures, domain.ItemError{Key: rec.Key(), Message: err.Error()})
			continue
		}
		valid = append(valid, rec)
	}

	if len(valid) == 0 {
		return 0, failures, nil
	}

	insertedKeys, err := s.repo.CreatePasses(ctx, valid)
	if err != nil {
		return 0, failures, err
	}

	inserted := make(map[domain.PassKey]struct{}, len(insertedKeys))
	for _, k := range insertedKeys {
		inserted[k] = struct{}{}
	}
	for _, rec := range valid {
		if _, ok := inserted[rec.Key()]; !ok {
			failures = append(failures, domain.ItemError{Key: rec.Key(), Message: "pass already exists"})
		}
	}

	metrics.PassesCreated.Add(float64(len(insertedKeys)))
	return int64(len(insertedKeys)), failures, nil
}
