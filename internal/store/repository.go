/**
 * @description
 * This file defines the `Repository` interface, the contract for all data
 * access operations required by the pass-service. The interface decouples the
 * business logic from the PostgreSQL implementation and lets the service and
 * job tests run against in-memory stubs.
 *
 * All bulk methods operate on one chunk of work: the chunking engine in the
 * app layer decides chunk boundaries and concurrency, the repository performs
 * exactly one store round trip per call.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: Staging run correlation ids.
 * - internal/domain: The service's domain models.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/campuspass/pass-service/internal/domain"
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Filtered reads. ListPasses with limit <= 0 returns the entire filtered
	// set (bulk export); both methods compile the same predicate.
	ListPasses(ctx context.Context, universityID uuid.UUID, spec domain.FilterSpec, limit, offset int) ([]domain.Pass, error)
	CountPasses(ctx context.Context, universityID uuid.UUID, spec domain.FilterSpec) (int64, error)

	// Key lookups.
	FindPassByKey(ctx context.Context, key domain.PassKey) (*domain.Pass, error)
	FindPassesByKeys(ctx context.Context, keys []domain.PassKey) ([]domain.Pass, error)

	// Time-windowed scans over [from, to). requireWallet additionally demands
	// at least one installed wallet.
	CountDueBetween(ctx context.Context, from, to time.Time, requireWallet bool) (int64, error)
	ListDueBetween(ctx context.Context, from, to time.Time, requireWallet bool, limit, offset int) ([]domain.Pass, error)

	// Creation. CreatePasses inserts one chunk and returns the keys actually
	// inserted; conflicting rows are skipped, not failed, so the caller can
	// diff input against the result for per-record duplicate reporting.
	CreatePass(ctx context.Context, rec domain.NewPass) error
	CreatePasses(ctx context.Context, recs []domain.NewPass) ([]domain.PassKey, error)

	// Uniform-value bulk mutations over one chunk of composite keys. Each
	// returns the number of rows affected.
	UpdatePassStatus(ctx context.Context, keys []domain.PassKey, status domain.PassStatus) (int64, error)
	UpdatePaymentStatus(ctx context.Context, keys []domain.PassKey, status domain.PaymentStatus) (int64, error)
	MarkPaid(ctx context.Context, keys []domain.PassKey) (int64, error)
	SetCashback(ctx context.Context, keys []domain.PassKey, cashback int64) (int64, error)
	IncrementNotificationCounts(ctx context.Context, keys []domain.PassKey, now time.Time) (int64, error)
	ResetNotificationCountsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Wallet issuance bookkeeping.
	LinkWallet(ctx context.Context, key domain.PassKey, googleObjectID, appleSerialNumber *string) error
	SetInstallationStatus(ctx context.Context, key domain.PassKey, provider domain.WalletProvider, status domain.InstallationStatus) error

	// Two-phase heterogeneous update support. Staged rows are scoped by the
	// per-invocation run id; ApplyStagedDueUpdates must only run after every
	// staging chunk has committed and returns the keys of the passes the
	// join-update actually touched (staged rows matching no pass produce
	// none). ClearStagedDueUpdates must run on both success and failure so
	// no rows leak into the next run.
	StageDueUpdates(ctx context.Context, runID uuid.UUID, updates []domain.DueUpdate) (int64, error)
	ApplyStagedDueUpdates(ctx context.Context, runID uuid.UUID) ([]domain.PassKey, error)
	ClearStagedDueUpdates(ctx context.Context, runID uuid.UUID) error
}
