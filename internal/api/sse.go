/**
 * @description
 * This file contains a minimal Server-Sent Events writer. Each ingestion
 * event becomes one SSE frame ("event: <type>" plus a "data:" line carrying
 * the JSON payload) and is flushed immediately so clients observe progress in
 * real time rather than at response end.
 */

package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/campuspass/pass-service/internal/domain"
)

// sseWriter frames and flushes events onto an HTTP response.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// newSSEWriter prepares the response for event streaming. It returns an error
// when the underlying writer cannot flush, since a buffered stream would
// defeat the point of the endpoint.
func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &sseWriter{w: w, flusher: flusher}, nil
}

// send writes one event frame and flushes it.
func (s *sseWriter) send(event domain.IngestionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event.Type, payload); err != nil {
		return fmt.Errorf("failed to write event frame: %w", err)
	}
	s.flusher.Flush()
	return nil
}
