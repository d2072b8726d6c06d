package transport

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// Driver is the uniform transport contract.
// Implementations must be safe for concurrent use.
type Driver interface {
	// Name identifies the driver in logs and connection state.
	Name() string

	// Priority orders drivers for selection; lower is preferred
	// (lowest latency / most local first).
	Priority() int

	// Send transmits a request and returns the raw response.
	// Transport-level problems are reported as *Failure.
	Send(ctx context.Context, data []byte) ([]byte, error)

	// Probe checks channel health. Probes are cheaper and use shorter
	// timeouts than user-facing requests.
	Probe(ctx context.Context) error
}

// Failure is a transport-level error: connect refused, timeout,
// unreachable. Failures are recoverable and drive fallback and
// connection state transitions; they are never application errors.
type Failure struct {
	// Transport names the failing driver.
	Transport string

	// Op names the operation that failed.
	Op string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (f *Failure) Error() string {
	return fmt.Sprintf("transport %s: %s: %v", f.Transport, f.Op, f.Err)
}

// Unwrap returns the underlying cause.
func (f *Failure) Unwrap() error {
	return f.Err
}

// NewFailure wraps err as a transport failure.
func NewFailure(transport, op string, err error) *Failure {
	return &Failure{Transport: transport, Op: op, Err: err}
}

// IsFailure returns true if err is (or wraps) a transport failure.
func IsFailure(err error) bool {
	var f *Failure
	return errors.As(err, &f)
}

// ByPriority returns the drivers sorted by ascending priority.
// The input slice is not modified.
func ByPriority(drivers []Driver) []Driver {
	sorted := make([]Driver, len(drivers))
	copy(sorted, drivers)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority() < sorted[j].Priority()
	})
	return sorted
}

// ErrUnavailable is the cause reported by the Unavailable driver.
var ErrUnavailable = errors.New("transport not available")

// Unavailable is a permanently-failing driver standing in for a
// transport that is absent or unimplemented. Routing through it
// exercises the fallback path harmlessly.
type Unavailable struct {
	name     string
	priority int
}

// NewUnavailable creates an always-failing driver.
func NewUnavailable(name string, priority int) *Unavailable {
	return &Unavailable{name: name, priority: priority}
}

// Name returns the driver name.
func (u *Unavailable) Name() string { return u.name }

// Priority returns the driver priority.
func (u *Unavailable) Priority() int { return u.priority }

// Send always fails.
func (u *Unavailable) Send(ctx context.Context, data []byte) ([]byte, error) {
	return nil, NewFailure(u.name, "send", ErrUnavailable)
}

// Probe always fails.
func (u *Unavailable) Probe(ctx context.Context) error {
	return NewFailure(u.name, "probe", ErrUnavailable)
}

// Func adapts a pair of functions into a Driver, for request/response
// channels owned by the application. A nil probe function reports
// healthy until a send fails.
type Func struct {
	name     string
	priority int
	send     func(ctx context.Context, data []byte) ([]byte, error)
	probe    func(ctx context.Context) error
}

// NewFunc creates a function-backed driver.
func NewFunc(name string, priority int,
	send func(ctx context.Context, data []byte) ([]byte, error),
	probe func(ctx context.Context) error,
) *Func {
	return &Func{name: name, priority: priority, send: send, probe: probe}
}

// Name returns the driver name.
func (f *Func) Name() string { return f.name }

// Priority returns the driver priority.
func (f *Func) Priority() int { return f.priority }

// Send invokes the send function, normalizing errors to *Failure.
func (f *Func) Send(ctx context.Context, data []byte) ([]byte, error) {
	resp, err := f.send(ctx, data)
	if err != nil && !IsFailure(err) {
		return nil, NewFailure(f.name, "send", err)
	}
	return resp, err
}

// Probe invokes the probe function if set.
func (f *Func) Probe(ctx context.Context) error {
	if f.probe == nil {
		return nil
	}
	err := f.probe(ctx)
	if err != nil && !IsFailure(err) {
		return NewFailure(f.name, "probe", err)
	}
	return err
}

// Compile-time interface satisfaction checks.
var (
	_ Driver = (*Unavailable)(nil)
	_ Driver = (*Func)(nil)
)
