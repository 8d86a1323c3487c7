/**
 * @description
 * This file contains the read-side business logic for the pass-service. The
 * `Service` struct orchestrates pass queries: filtered pagination, bulk
 * export, composite-key lookups, and the time-windowed due/expired scans used
 * by the scheduled jobs.
 *
 * Key properties:
 * - The paginated path and the export path share one compiled predicate, so a
 *   preview count and the bulk action target set can never drift apart.
 * - Large scans run through the chunking engine with a bounded concurrency
 *   cap instead of one unbounded query.
 *
 * @dependencies
 * - context, errors, fmt, time: Standard Go libraries.
 * - golang.org/x/sync/errgroup: Parallel content+count execution.
 * - internal/domain, internal/store: Domain models and data access.
 * - pkg/chunk: The chunking engine.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/campuspass/pass-service/internal/domain"
	"github.com/campuspass/pass-service/internal/store"
	"github.com/campuspass/pass-service/pkg/chunk"
	"github.com/campuspass/pass-service/pkg/rabbitmq"
)

var (
	ErrInvalidPage   = errors.New("page must not be negative")
	ErrInvalidSize   = errors.New("size must be positive")
	ErrInvalidFilter = errors.New("invalid filter spec")
)

// Service provides the core business logic for pass queries and mutations.
type Service struct {
	repo         store.Repository
	events       rabbitmq.Publisher
	guard        BulkGuard
	logger       *slog.Logger
	chunkOpts    chunk.Options
	scanPageSize int
}

// NewService creates a new pass service instance. chunkSize and concurrency
// bound every chunked operation; scanPageSize bounds the paginated scans.
func NewService(repo store.Repository, events rabbitmq.Publisher, guard BulkGuard, logger *slog.Logger, chunkSize, concurrency, scanPageSize int) *Service {
	return &Service{
		repo:         repo,
		events:       events,
		guard:        guard,
		logger:       logger.With("component", "pass_service"),
		chunkOpts:    chunk.Options{Size: chunkSize, Concurrency: concurrency},
		scanPageSize: scanPageSize,
	}
}

// QueryPasses serves one page of the filtered pass listing. The content page
// and the filtered COUNT run in parallel; total reflects the filtered set.
func (s *Service) QueryPasses(ctx context.Context, universityID uuid.UUID, spec domain.FilterSpec, page, size int) (*domain.PageResult, error) {
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}
	if page < 0 {
		return nil, ErrInvalidPage
	}
	if size <= 0 {
		return nil, ErrInvalidSize
	}

	var (
		content []domain.Pass
		total   int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		content, err = s.repo.ListPasses(gctx, universityID, spec, size, page*size)
		return err
	})
	g.Go(func() error {
		var err error
		total, err = s.repo.CountPasses(gctx, universityID, spec)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to query passes: %w", err)
	}

	return &domain.PageResult{Content: content, Total: total, Page: page, Size: size}, nil
}

// ExportPasses returns the entire filtered set, for actions that must operate
// on every matching pass rather than one page. It derives from the identical
// compiled predicate as QueryPasses.
func (s *Service) ExportPasses(ctx context.Context, universityID uuid.UUID, spec domain.FilterSpec) ([]domain.Pass, error) {
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}
	passes, err := s.repo.ListPasses(ctx, universityID, spec, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to export passes: %w", err)
	}
	return passes, nil
}

// CreatePass persists a single pass record and announces it on the event bus.
// A publish failure does not fail the create; the pass is already durable.
func (s *Service) CreatePass(ctx context.Context, rec domain.NewPass) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	if err := s.repo.CreatePass(ctx, rec); err != nil {
		return err
	}
	event := rabbitmq.NewPassEvent(rabbitmq.PassEventCreated, rec.Key(), rec.TotalToPay, rec.EndDueDate)
	if err := s.events.PublishPassEvent(ctx, event); err != nil {
		s.logger.Error("failed to publish pass created event", "key", rec.Key().String(), "err", err)
	}
	return nil
}

// GetPass looks up a single pass by composite key.
func (s *Service) GetPass(ctx context.Context, key domain.PassKey) (*domain.Pass, error) {
	return s.repo.FindPassByKey(ctx, key)
}

// FindPassesByKeys resolves a potentially large list of composite keys by
// chunked IN-tuple lookups, flattened back in chunk order.
func (s *Service) FindPassesByKeys(ctx context.Context, keys []domain.PassKey) ([]domain.Pass, error) {
	return chunk.ForFlatten(ctx, keys, s.chunkOpts, func(ctx context.Context, part []domain.PassKey) ([]domain.Pass, error) {
		return s.repo.FindPassesByKeys(ctx, part)
	})
}

// dayWindow returns the half-open UTC interval [today+offsetDays, today+offsetDays+1).
func dayWindow(now time.Time, offsetDays int) (time.Time, time.Time) {
	day := now.UTC().Truncate(24 * time.Hour).AddDate(0, 0, offsetDays)
	return day, day.AddDate(0, 0, 1)
}

func (s *Service) scanDueWindow(ctx context.Context, from, to time.Time, requireWallet bool) ([]domain.Pass, error) {
	total, err := s.repo.CountDueBetween(ctx, from, to, requireWallet)
	if err != nil {
		return nil, fmt.Errorf("failed to count due window: %w", err)
	}
	return chunk.ForPaginatedScan(ctx, total, s.scanPageSize, s.chunkOpts.Concurrency,
		func(ctx context.Context, limit, offset int) ([]domain.Pass, error) {
			return s.repo.ListDueBetween(ctx, from, to, requireWallet, limit, offset)
		}, nil)
}

// DueInDays returns the active due passes whose deadline falls inside the
// half-open window [now + n days, now + n + 1 days) and that have at least one
// wallet installed, so a reminder can actually reach a device.
func (s *Service) DueInDays(ctx context.Context, n int) ([]domain.Pass, error) {
	if n < 0 {
		return nil, errors.New("days must not be negative")
	}
	from, to := dayWindow(time.Now(), n)
	return s.scanDueWindow(ctx, from, to, true)
}

// ExpiredYesterday returns the active passes still marked as due whose
// deadline fell inside yesterday's window; they are the overdue candidates.
func (s *Service) ExpiredYesterday(ctx context.Context) ([]domain.Pass, error) {
	from, to := dayWindow(time.Now(), -1)
	return s.scanDueWindow(ctx, from, to, false)
}

// LinkWallet stores the issued wallet artifact identifiers for a pass.
func (s *Service) LinkWallet(ctx context.Context, key domain.PassKey, googleObjectID, appleSerialNumber *string) error {
	return s.repo.LinkWallet(ctx, key, googleObjectID, appleSerialNumber)
}

// MarkWalletInstalled records that a wallet artifact landed on a device.
func (s *Service) MarkWalletInstalled(ctx context.Context, key domain.PassKey, provider domain.WalletProvider) error {
	return s.repo.SetInstallationStatus(ctx, key, provider, domain.InstallationStatusInstalled)
}
