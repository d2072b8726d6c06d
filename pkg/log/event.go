package log

import (
	"time"
)

// Event represents a core event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID uniquely identifies the transport connection (UUID).
	ConnectionID string `cbor:"2,keyasint,omitempty"`

	// Category classifies the event type.
	Category Category `cbor:"3,keyasint"`

	// Transport names the driver involved, if any.
	Transport string `cbor:"4,keyasint,omitempty"`

	// Endpoint is the application endpoint involved, if any.
	Endpoint string `cbor:"5,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	StateChange *StateChangeEvent `cbor:"6,keyasint,omitempty"` // Session/connection state
	Retry       *RetryEvent       `cbor:"7,keyasint,omitempty"` // Backoff/reconnect scheduling
	Queue       *QueueEvent       `cbor:"8,keyasint,omitempty"` // Offline queue activity
	Error       *ErrorEvent       `cbor:"9,keyasint,omitempty"` // Errors at any layer
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryState is a session or connection state change.
	CategoryState Category = 0
	// CategoryRequest is request/response activity.
	CategoryRequest Category = 1
	// CategoryRetry is backoff or reconnection scheduling.
	CategoryRetry Category = 2
	// CategoryQueue is offline queue activity.
	CategoryQueue Category = 3
	// CategoryError is an error at any layer.
	CategoryError Category = 4
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryState:
		return "STATE"
	case CategoryRequest:
		return "REQUEST"
	case CategoryRetry:
		return "RETRY"
	case CategoryQueue:
		return "QUEUE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// StateChangeEvent captures a state machine transition.
type StateChangeEvent struct {
	// Component is the owning component ("session", "connection").
	Component string `cbor:"1,keyasint"`

	// From is the previous state name.
	From string `cbor:"2,keyasint"`

	// To is the new state name.
	To string `cbor:"3,keyasint"`

	// Reason explains the transition, if noteworthy.
	Reason string `cbor:"4,keyasint,omitempty"`
}

// RetryEvent captures a scheduled retry or reconnection attempt.
type RetryEvent struct {
	// Attempt is the consecutive attempt number.
	Attempt int `cbor:"1,keyasint"`

	// Delay is the scheduled delay before the attempt.
	Delay time.Duration `cbor:"2,keyasint"`

	// Breaker indicates the circuit breaker cooldown is in effect.
	Breaker bool `cbor:"3,keyasint,omitempty"`
}

// QueueEvent captures offline queue activity for one operation.
type QueueEvent struct {
	// OperationID is the operation's idempotency key.
	OperationID string `cbor:"1,keyasint"`

	// ResourceKey is the ordering key.
	ResourceKey string `cbor:"2,keyasint,omitempty"`

	// Status is the operation status name after this event.
	Status string `cbor:"3,keyasint"`

	// RetryCount is the operation's retry count after this event.
	RetryCount int `cbor:"4,keyasint,omitempty"`
}

// ErrorEvent captures an error at any layer.
type ErrorEvent struct {
	// Op names the operation that failed.
	Op string `cbor:"1,keyasint"`

	// Message is the error text.
	Message string `cbor:"2,keyasint"`
}
