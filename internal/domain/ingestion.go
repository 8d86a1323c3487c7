package domain

// IngestionEventType names the variants of the streaming ingestion protocol.
// Each variant maps one-to-one to an SSE event type on the wire.
type IngestionEventType string

const (
	EventStart        IngestionEventType = "start"
	EventProgress     IngestionEventType = "progress"
	EventItemError    IngestionEventType = "item_error"
	EventErrorSummary IngestionEventType = "error_summary"
	EventComplete     IngestionEventType = "complete"
	EventAborted      IngestionEventType = "aborted"
)

// IngestionEvent is one tagged record in the ingestion event stream. A stream
// carries exactly one start (first), any number of progress/item_error events,
// one error_summary, and exactly one terminal event: complete, or aborted when
// the pipeline was cancelled or hit an infrastructure failure.
type IngestionEvent struct {
	Type IngestionEventType `json:"type"`

	// start. Always serialized so an empty batch still announces total 0.
	Total int `json:"total"`

	// progress: cumulative count of attempted records, monotonically
	// increasing, never exceeding Total.
	Processed int `json:"processed,omitempty"`

	// item_error
	Key     *PassKey `json:"key,omitempty"`
	Message string   `json:"message,omitempty"`

	// error_summary
	Errors []ItemError `json:"errors,omitempty"`

	// aborted
	Reason string `json:"reason,omitempty"`
}

// Terminal reports whether the event closes the stream.
func (e IngestionEvent) Terminal() bool {
	return e.Type == EventComplete || e.Type == EventAborted
}
