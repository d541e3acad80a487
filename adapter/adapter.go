// Package adapter defines the completion notification boundary.
//
// Adapters publish pipe completion events to downstream systems. The
// pipeline owns adapter lifecycle; users provide configuration only.
// Retry policy lives here, not in the core: the stream graph never
// retries, an adapter may.
package adapter

import "context"

// PipeCompletedEvent is the payload published when a pipe finishes.
type PipeCompletedEvent struct {
	ContractVersion string `json:"contract_version"`
	EventType       string `json:"event_type"` // always "pipe_completed"
	PipeID          string `json:"pipe_id"`
	Attempt         int    `json:"attempt"`
	Outcome         string `json:"outcome"` // completed, stream_error, sink_error, cancelled
	Records         int64  `json:"records"`
	Dropped         int64  `json:"dropped"`
	Timestamp       string `json:"timestamp"` // ISO 8601
	DurationMs      int64  `json:"duration_ms"`
}

// Adapter publishes pipe completion events to a downstream system.
// Implementations must be safe for single-use per pipe.
type Adapter interface {
	// Publish sends a pipe completion event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *PipeCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}
