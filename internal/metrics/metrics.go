// Package metrics registers the service's Prometheus collectors. Counters are
// package-level and registered on the default registry; /metrics exposure is
// gated by configuration in the router.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PassesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "passservice_passes_created_total",
		Help: "Number of passes persisted through single or bulk creation.",
	})

	BulkRowsUpdated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "passservice_bulk_rows_updated_total",
		Help: "Number of pass rows affected by bulk mutations, by operation.",
	}, []string{"operation"})

	ChunkFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "passservice_chunk_failures_total",
		Help: "Number of chunk operations that failed, by operation.",
	}, []string{"operation"})

	IngestEventsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "passservice_ingest_events_emitted_total",
		Help: "Number of ingestion stream events emitted, by event type.",
	}, []string{"type"})

	BulkDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "passservice_bulk_operation_duration_seconds",
		Help:    "Wall-clock duration of bulk operations, by operation.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
)
