// Package types defines core domain types for the Sluice runtime.
//
//nolint:revive // types is a common Go package naming convention
package types

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// PipeMeta contains pipe identity and lineage metadata.
type PipeMeta struct {
	// PipeID is the canonical pipe identifier. Must be globally unique.
	PipeID string
	// ParentPipeID links retry pipes to their predecessor. Nil for initial pipes.
	ParentPipeID *string
	// Attempt is the attempt number. Starts at 1 for initial pipes.
	Attempt int
}

// NewPipeMeta returns metadata for an initial pipe with a fresh identifier.
func NewPipeMeta() *PipeMeta {
	return &PipeMeta{
		PipeID:  uuid.NewString(),
		Attempt: 1,
	}
}

// Validate validates lineage rules:
//   - attempt >= 1
//   - attempt == 1 => parent_pipe_id must be nil (initial pipe)
//   - attempt > 1 => parent_pipe_id must be present (retry pipe)
func (m *PipeMeta) Validate() error {
	if m.PipeID == "" {
		return errors.New("pipe_id must be non-empty")
	}

	if m.Attempt < 1 {
		return fmt.Errorf("attempt must be >= 1, got %d", m.Attempt)
	}

	if m.Attempt == 1 && m.ParentPipeID != nil {
		return errors.New("initial pipe (attempt=1) must not have parent_pipe_id")
	}

	if m.Attempt > 1 && m.ParentPipeID == nil {
		return fmt.Errorf("retry pipe (attempt=%d) must have parent_pipe_id", m.Attempt)
	}

	return nil
}

// OutcomeStatus represents the final status of a pipe.
type OutcomeStatus string

const (
	// OutcomeCompleted indicates the source reached end-of-stream and every
	// surviving record was persisted.
	OutcomeCompleted OutcomeStatus = "completed"
	// OutcomeStreamError indicates framing, decoding or sequence validation failed.
	OutcomeStreamError OutcomeStatus = "stream_error"
	// OutcomeSinkError indicates persistence failed.
	OutcomeSinkError OutcomeStatus = "sink_error"
	// OutcomeCancelled indicates the pipe was cancelled before completion.
	OutcomeCancelled OutcomeStatus = "cancelled"
)

// PipeOutcome represents the final outcome of a pipe.
type PipeOutcome struct {
	// Status is the outcome classification.
	Status OutcomeStatus
	// Message is a human-readable description. Empty for completed pipes.
	Message string
}
