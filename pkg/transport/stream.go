package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/corelink-proto/corelink-go/pkg/log"
	"github.com/corelink-proto/corelink-go/pkg/wire"
)

// DefaultConnectTimeout bounds dialing a stream connection.
const DefaultConnectTimeout = 10 * time.Second

// DialFunc establishes the underlying connection for a stream driver.
// Use a TLS dialer for production channels.
type DialFunc func(ctx context.Context, address string) (net.Conn, error)

// StreamConfig configures a stream driver.
type StreamConfig struct {
	// Name identifies the driver (default: "stream").
	Name string

	// Priority orders the driver for selection; lower is preferred.
	Priority int

	// Address is passed to the dial function.
	Address string

	// Dial establishes connections (default: plain TCP).
	Dial DialFunc

	// MaxMessageSize bounds frame sizes (default: 64 KB).
	MaxMessageSize uint32

	// ConnectTimeout bounds dialing (default: 10s).
	ConnectTimeout time.Duration

	// Logger receives transport events. Optional.
	Logger log.Logger
}

// Stream is a persistent framed-connection driver. Requests and
// responses are exchanged in lockstep over one connection; the
// connection is dialed on demand and dropped on any I/O error so the
// next call redials.
type Stream struct {
	config StreamConfig
	logger log.Logger

	mu     sync.Mutex
	conn   net.Conn
	fr     *FrameReader
	fw     *FrameWriter
	connID string

	probeSeq atomic.Uint32
}

// NewStream creates a stream driver.
func NewStream(config StreamConfig) *Stream {
	if config.Name == "" {
		config.Name = "stream"
	}
	if config.MaxMessageSize == 0 {
		config.MaxMessageSize = DefaultMaxMessageSize
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = DefaultConnectTimeout
	}
	if config.Dial == nil {
		config.Dial = func(ctx context.Context, address string) (net.Conn, error) {
			dialer := &net.Dialer{}
			return dialer.DialContext(ctx, "tcp", address)
		}
	}
	logger := config.Logger
	if logger == nil {
		logger = log.NoopLogger{}
	}

	return &Stream{
		config: config,
		logger: logger,
	}
}

// Name returns the driver name.
func (s *Stream) Name() string { return s.config.Name }

// Priority returns the driver priority.
func (s *Stream) Priority() int { return s.config.Priority }

// Send transmits a frame and waits for the response frame.
func (s *Stream) Send(ctx context.Context, data []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	resp, err := s.exchange(ctx, data)
	if err != nil {
		s.dropLocked()
		return nil, NewFailure(s.config.Name, "send", err)
	}
	return resp, nil
}

// Probe verifies channel health with a ping/pong exchange.
func (s *Stream) Probe(ctx context.Context) error {
	seq := s.probeSeq.Add(1)
	ping, err := wire.EncodeControlMessage(&wire.ControlMessage{
		Type:     wire.ControlPing,
		Sequence: seq,
	})
	if err != nil {
		return NewFailure(s.config.Name, "probe", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	resp, err := s.exchange(ctx, ping)
	if err != nil {
		s.dropLocked()
		return NewFailure(s.config.Name, "probe", err)
	}

	pong, err := wire.DecodeControlMessage(resp)
	if err != nil || pong.Type != wire.ControlPong || pong.Sequence != seq {
		s.dropLocked()
		return NewFailure(s.config.Name, "probe", fmt.Errorf("unexpected probe response"))
	}
	return nil
}

// Close shuts the connection down. The driver remains usable; the next
// call redials.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}
	// Best effort orderly close
	if closeMsg, err := wire.EncodeControlMessage(&wire.ControlMessage{Type: wire.ControlClose}); err == nil {
		_ = s.fw.WriteFrame(closeMsg)
	}
	err := s.conn.Close()
	s.conn = nil
	s.fr = nil
	s.fw = nil
	return err
}

// exchange performs one lockstep write/read. Caller holds s.mu.
func (s *Stream) exchange(ctx context.Context, data []byte) ([]byte, error) {
	if err := s.ensureConnLocked(ctx); err != nil {
		return nil, err
	}

	// Apply the context deadline to both directions of the exchange.
	if deadline, ok := ctx.Deadline(); ok {
		if err := s.conn.SetDeadline(deadline); err != nil {
			return nil, err
		}
		defer s.conn.SetDeadline(time.Time{})
	}

	if err := s.fw.WriteFrame(data); err != nil {
		return nil, err
	}
	return s.fr.ReadFrame()
}

// ensureConnLocked dials if no connection is live. Caller holds s.mu.
func (s *Stream) ensureConnLocked(ctx context.Context) error {
	if s.conn != nil {
		return nil
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.ConnectTimeout)
		defer cancel()
	}

	conn, err := s.config.Dial(ctx, s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", s.config.Address, err)
	}

	s.conn = conn
	s.fr = NewFrameReaderWithMaxSize(conn, s.config.MaxMessageSize)
	s.fw = NewFrameWriterWithMaxSize(conn, s.config.MaxMessageSize)
	s.connID = uuid.New().String()

	s.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: s.connID,
		Category:     log.CategoryState,
		Transport:    s.config.Name,
		StateChange: &log.StateChangeEvent{
			Component: "transport",
			From:      "IDLE",
			To:        "DIALED",
			Reason:    conn.RemoteAddr().String(),
		},
	})
	return nil
}

// dropLocked discards the connection after an I/O error. Caller holds s.mu.
func (s *Stream) dropLocked() {
	if s.conn == nil {
		return
	}
	_ = s.conn.Close()
	s.conn = nil
	s.fr = nil
	s.fw = nil
}

// Compile-time interface satisfaction check.
var _ Driver = (*Stream)(nil)
