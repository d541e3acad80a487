package types

// RecordKind represents the kind of record carried on the wire.
type RecordKind string

// Record kind constants.
const (
	RecordKindItem       RecordKind = "item"
	RecordKindCheckpoint RecordKind = "checkpoint"
	RecordKindLog        RecordKind = "log"
)

// Valid returns true if k is a known record kind.
func (k RecordKind) Valid() bool {
	switch k {
	case RecordKindItem, RecordKindCheckpoint, RecordKindLog:
		return true
	}
	return false
}

// Record is the envelope for all records on the wire.
// All fields use msgpack tags to pin the wire format.
type Record struct {
	// RecordID is a unique identifier for this record, scoped to the pipe.
	RecordID string `msgpack:"record_id"`
	// PipeID is the canonical pipe identifier.
	PipeID string `msgpack:"pipe_id"`
	// Seq is the monotonic sequence number, starts at 1.
	Seq int64 `msgpack:"seq"`
	// Kind is the record kind discriminator.
	Kind RecordKind `msgpack:"kind"`
	// Ts is the record timestamp in ISO 8601 UTC format.
	Ts string `msgpack:"ts"`
	// Payload is the kind-specific payload.
	Payload map[string]any `msgpack:"payload"`
	// Attempt is the attempt number, always present, starts at 1.
	Attempt int `msgpack:"attempt"`
}
