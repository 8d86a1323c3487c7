/**
 * @description
 * This file contains the streaming ingestion pipeline. A pre-validated batch
 * of new pass records is fed through the bulk create path in chunks while the
 * caller drains a typed event channel: one Start, cumulative Progress after
 * each chunk, an ItemError per failed record, then ErrorSummary and a terminal
 * Complete (or Aborted on cancellation/infrastructure failure).
 *
 * Backpressure: the channel is bounded. Progress events are informational;
 * when the consumer lags, the newest update is parked instead of enqueued and
 * supersedes the previously parked one, so a slow sink never throttles chunk
 * processing and events already in the buffer keep their order. ItemError,
 * ErrorSummary, and terminal events are never dropped. The channel is always
 * closed, even when the pipeline aborts early.
 */

package app

import (
	"context"
	"sync"

	"github.com/campuspass/pass-service/internal/domain"
	"github.com/campuspass/pass-service/internal/metrics"
	"github.com/campuspass/pass-service/pkg/chunk"
)

// ingestEmitter wraps the outbound event channel with the coalescing rules of
// the streaming contract. Nothing is ever removed from the channel once
// enqueued, so the wire order always matches emission order.
type ingestEmitter struct {
	ch chan domain.IngestionEvent

	mu        sync.Mutex
	processed int
	// Newest progress update that found the buffer full. It supersedes any
	// previously parked update and is flushed ahead of the next must-deliver
	// event.
	pending *domain.IngestionEvent
}

func newIngestEmitter(buffer int) *ingestEmitter {
	if buffer <= 0 {
		buffer = 64
	}
	return &ingestEmitter{ch: make(chan domain.IngestionEvent, buffer)}
}

// send delivers an event that must not be dropped, flushing any parked
// progress update first so it cannot overtake later events. It blocks on a
// full buffer (bounded backpressure); once the caller is gone it degrades to
// a last best-effort attempt so the pipeline goroutine can always exit.
func (e *ingestEmitter) send(ctx context.Context, ev domain.IngestionEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pending != nil {
		e.deliver(ctx, *e.pending)
		e.pending = nil
	}
	metrics.IngestEventsEmitted.WithLabelValues(string(ev.Type)).Inc()
	e.deliver(ctx, ev)
}

func (e *ingestEmitter) deliver(ctx context.Context, ev domain.IngestionEvent) {
	select {
	case e.ch <- ev:
	case <-ctx.Done():
		select {
		case e.ch <- ev:
		default:
		}
	}
}

// sendProgress delivers a cumulative progress update for one finished chunk.
// Updates are serialized under the lock, so observed counts are monotone and
// never exceed the batch total. When the buffer is full the update parks
// instead of enqueueing, superseding any previously parked one; a later
// update or send flushes it. Only progress coalesces this way, and events
// already in the buffer are never displaced.
func (e *ingestEmitter) sendProgress(attempted int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.processed += attempted
	ev := domain.IngestionEvent{Type: domain.EventProgress, Processed: e.processed}
	metrics.IngestEventsEmitted.WithLabelValues(string(domain.EventProgress)).Inc()

	select {
	case e.ch <- ev:
		e.pending = nil
	default:
		e.pending = &ev
	}
}

// IngestPasses runs the streaming ingestion pipeline over one batch. It
// returns immediately; the pipeline executes in the background and reports
// through the returned channel, which is closed only after the terminal event.
//
// Individual record failures (domain validation, duplicate composite keys) are
// isolated per record. A store-level failure aborts the remaining chunks but
// leaves already-committed chunks persisted; callers must treat an Aborted
// terminal as "partially applied".
func (s *Service) IngestPasses(ctx context.Context, records []domain.NewPass, buffer int) <-chan domain.IngestionEvent {
	emitter := newIngestEmitter(buffer)

	go func() {
		defer close(emitter.ch)

		emitter.send(ctx, domain.IngestionEvent{Type: domain.EventStart, Total: len(records)})

		collector := &errorCollector{}
		_, err := chunk.ForSum(ctx, records, s.chunkOpts, func(ctx context.Context, part []domain.NewPass) (int64, error) {
			created, failures, err := s.createPassChunk(ctx, part)
			if err != nil {
				return 0, err
			}
			collector.add(failures...)
			for _, f := range failures {
				key := f.Key
				emitter.send(ctx, domain.IngestionEvent{Type: domain.EventItemError, Key: &key, Message: f.Message})
			}
			// Attempted, not only succeeded: failed records were processed too.
			emitter.sendProgress(len(part))
			return created, nil
		})

		emitter.send(ctx, domain.IngestionEvent{Type: domain.EventErrorSummary, Errors: collector.snapshot()})

		if err != nil {
			s.logger.Error("ingestion aborted", "total", len(records), "err", err)
			emitter.send(ctx, domain.IngestionEvent{Type: domain.EventAborted, Reason: err.Error()})
			return
		}

		emitter.send(ctx, domain.IngestionEvent{Type: domain.EventComplete})
	}()

	return emitter.ch
}
