package queue

import "time"

// Status represents the lifecycle state of a pending operation.
type Status uint8

const (
	// StatusQueued means the operation awaits drain.
	StatusQueued Status = iota

	// StatusInFlight means the operation is being replayed right now.
	StatusInFlight

	// StatusFailed means the operation hit a terminal application error
	// and will not be retried.
	StatusFailed

	// StatusCompleted means the server confirmed the operation.
	StatusCompleted
)

// String returns a human-readable status name.
func (s Status) String() string {
	switch s {
	case StatusQueued:
		return "QUEUED"
	case StatusInFlight:
		return "IN_FLIGHT"
	case StatusFailed:
		return "FAILED"
	case StatusCompleted:
		return "COMPLETED"
	default:
		return "UNKNOWN"
	}
}

// Operation is the caller-supplied part of a queued operation.
type Operation struct {
	Method      string
	Endpoint    string
	Payload     []byte
	ResourceKey string
}

// PendingOperation is a durable queue record. The OperationID doubles
// as the idempotency key: a replay that was actually applied by the
// server the first time converges to the same end state.
type PendingOperation struct {
	OperationID string    `json:"operation_id"`
	Method      string    `json:"method"`
	Endpoint    string    `json:"endpoint"`
	Payload     []byte    `json:"payload,omitempty"`
	ResourceKey string    `json:"resource_key"`
	CreatedAt   time.Time `json:"created_at"`
	RetryCount  int       `json:"retry_count"`
	Status      Status    `json:"status"`

	// Seq is the insertion sequence, the FIFO ordering key.
	Seq uint64 `json:"seq"`
}
