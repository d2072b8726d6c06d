package connection

import (
	"errors"
	"time"
)

// Mode represents the connection mode.
type Mode uint8

const (
	// ModeDisconnected indicates no active transport.
	ModeDisconnected Mode = iota

	// ModeConnecting indicates transport selection is in progress.
	ModeConnecting

	// ModeConnected indicates the preferred transport is active.
	ModeConnected

	// ModeDegraded indicates a lower-priority transport is active.
	ModeDegraded

	// ModeOffline indicates an explicit connectivity-down signal.
	ModeOffline
)

// String returns a human-readable mode name.
func (m Mode) String() string {
	switch m {
	case ModeDisconnected:
		return "DISCONNECTED"
	case ModeConnecting:
		return "CONNECTING"
	case ModeConnected:
		return "CONNECTED"
	case ModeDegraded:
		return "DEGRADED"
	case ModeOffline:
		return "OFFLINE"
	default:
		return "UNKNOWN"
	}
}

// Usable returns true if a transport is active (connected or degraded).
func (m Mode) Usable() bool {
	return m == ModeConnected || m == ModeDegraded
}

// Connection errors.
var (
	ErrNotConnected = errors.New("not connected")
	ErrNoFallback   = errors.New("no fallback transport available")
	ErrClosed       = errors.New("connection coordinator closed")
)

// Snapshot is a read-only view of the connection state.
type Snapshot struct {
	// Mode is the current connection mode.
	Mode Mode

	// Transport names the active driver (empty unless usable).
	Transport string

	// ConsecutiveFailures counts probe/send failures since the last
	// success at the current mode.
	ConsecutiveFailures int

	// LastSuccessAt is when traffic last succeeded.
	LastSuccessAt time.Time
}
