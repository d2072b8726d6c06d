package wire

import "fmt"

// Status represents a response status code.
type Status uint8

const (
	// StatusSuccess indicates the operation completed successfully.
	StatusSuccess Status = 0

	// StatusUnauthorized indicates the bearer credentials were missing,
	// expired, or invalid.
	StatusUnauthorized Status = 1

	// StatusValidation indicates the request was semantically invalid.
	StatusValidation Status = 2

	// StatusNotFound indicates the addressed resource doesn't exist.
	StatusNotFound Status = 3

	// StatusConflict indicates the request conflicts with current
	// server-side state.
	StatusConflict Status = 4

	// StatusRejected indicates the server refused a handshake attempt.
	StatusRejected Status = 5

	// StatusBusy indicates the service is temporarily overloaded.
	StatusBusy Status = 6

	// StatusInternal indicates a server-side failure.
	StatusInternal Status = 7
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusUnauthorized:
		return "UNAUTHORIZED"
	case StatusValidation:
		return "VALIDATION"
	case StatusNotFound:
		return "NOT_FOUND"
	case StatusConflict:
		return "CONFLICT"
	case StatusRejected:
		return "REJECTED"
	case StatusBusy:
		return "BUSY"
	case StatusInternal:
		return "INTERNAL"
	default:
		return "UNKNOWN"
	}
}

// IsSuccess returns true for a successful status.
func (s Status) IsSuccess() bool {
	return s == StatusSuccess
}

// IsAuthFailure returns true if the status demands fresh credentials.
func (s Status) IsAuthFailure() bool {
	return s == StatusUnauthorized
}

// Terminal returns true for application-level failures that must never
// be retried (validation, not-found, conflict). Transient server
// conditions (busy, internal) are not terminal.
func (s Status) Terminal() bool {
	switch s {
	case StatusValidation, StatusNotFound, StatusConflict, StatusRejected:
		return true
	default:
		return false
	}
}

// StatusError carries a non-success response status as an error.
type StatusError struct {
	Status  Status
	Message string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("status %s", e.Status)
	}
	return fmt.Sprintf("status %s: %s", e.Status, e.Message)
}
