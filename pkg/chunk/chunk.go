/**
 * @description
 * This package provides the bounded-concurrency chunking engine shared by the
 * query, bulk-mutation, and ingestion paths. A large input list is partitioned
 * into bounded-size chunks and a caller-supplied operation runs over chunks
 * with a concurrency cap, so the backing store never sees more than K
 * simultaneous round trips.
 *
 * Aggregation is keyed by chunk index, so results never depend on completion
 * order. A failed chunk propagates its error to the caller without cancelling
 * chunks already in flight; a cancelled context stops further chunks from
 * being dispatched.
 *
 * @dependencies
 * - github.com/sourcegraph/conc/pool: The bounded worker pool.
 */
package chunk

import (
	"context"
	"errors"
	"sync"

	"github.com/sourcegraph/conc/pool"
)

// Options bound one chunked run.
type Options struct {
	// Size is the maximum number of items per chunk.
	Size int
	// Concurrency is the maximum number of chunk operations in flight.
	Concurrency int
}

var (
	ErrInvalidChunkSize   = errors.New("chunk size must be positive")
	ErrInvalidConcurrency = errors.New("concurrency must be positive")
)

func (o Options) validate() error {
	if o.Size <= 0 {
		return ErrInvalidChunkSize
	}
	if o.Concurrency <= 0 {
		return ErrInvalidConcurrency
	}
	return nil
}

// Partition splits items into ordered chunks of at most size elements. The
// returned chunks share the backing array of items. A nil or empty input
// yields no chunks; size >= len(items) collapses to a single chunk.
func Partition[T any](items []T, size int) [][]T {
	if len(items) == 0 || size <= 0 {
		return nil
	}
	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end])
	}
	return chunks
}

func newPool(ctx context.Context, concurrency int) *pool.ContextPool {
	return pool.New().
		WithContext(ctx).
		WithFirstError().
		WithMaxGoroutines(concurrency)
}

// ForSum runs fn over chunks of items and returns the arithmetic sum of the
// per-chunk results, typically affected-row counts. An empty input
// short-circuits to zero without dispatching work. ForSum returns only after
// every dispatched chunk has finished, which makes it usable as a
// synchronization barrier.
func ForSum[T any](ctx context.Context, items []T, opts Options, fn func(ctx context.Context, chunk []T) (int64, error)) (int64, error) {
	if err := opts.validate(); err != nil {
		return 0, err
	}
	chunks := Partition(items, opts.Size)
	if len(chunks) == 0 {
		return 0, nil
	}

	sums := make([]int64, len(chunks))
	p := newPool(ctx, opts.Concurrency)
	for i, c := range chunks {
		i, c := i, c
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			n, err := fn(ctx, c)
			if err != nil {
				return err
			}
			sums[i] = n
			return nil
		})
	}
	err := p.Wait()

	var total int64
	for _, n := range sums {
		total += n
	}
	return total, err
}

// ForFlatten runs fn over chunks of items and concatenates the per-chunk
// results in chunk order. Each chunk writes only its own slot, so no
// cross-chunk synchronization is needed for the aggregation.
func ForFlatten[T, R any](ctx context.Context, items []T, opts Options, fn func(ctx context.Context, chunk []T) ([]R, error)) ([]R, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	chunks := Partition(items, opts.Size)
	if len(chunks) == 0 {
		return nil, nil
	}

	results := make([][]R, len(chunks))
	p := newPool(ctx, opts.Concurrency)
	for i, c := range chunks {
		i, c := i, c
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rs, err := fn(ctx, c)
			if err != nil {
				return err
			}
			results[i] = rs
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}

	var flat []R
	for _, rs := range results {
		flat = append(flat, rs...)
	}
	return flat, nil
}

// ForPaginatedScan drives a chunked read over a known total count using an
// offset/limit fetcher instead of a pre-materialized list. Pages are fetched
// with at most opts.Concurrency round trips in flight and reassembled in page
// order. onProgress, when non-nil, receives the cumulative number of rows
// fetched so far; it is called under a lock, so observed values are monotone.
func ForPaginatedScan[R any](ctx context.Context, total int64, pageSize, concurrency int, fetch func(ctx context.Context, limit, offset int) ([]R, error), onProgress func(done, total int64)) ([]R, error) {
	if err := (Options{Size: pageSize, Concurrency: concurrency}).validate(); err != nil {
		return nil, err
	}
	if total <= 0 {
		return nil, nil
	}

	pages := int((total + int64(pageSize) - 1) / int64(pageSize))
	results := make([][]R, pages)

	var mu sync.Mutex
	var done int64

	p := newPool(ctx, concurrency)
	for i := 0; i < pages; i++ {
		i := i
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rows, err := fetch(ctx, pageSize, i*pageSize)
			if err != nil {
				return err
			}
			results[i] = rows
			if onProgress != nil {
				mu.Lock()
				done += int64(len(rows))
				onProgress(done, total)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}

	var flat []R
	for _, rs := range results {
		flat = append(flat, rs...)
	}
	return flat, nil
}
