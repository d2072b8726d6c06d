package session

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/sync/singleflight"

	"github.com/corelink-proto/corelink-go/pkg/log"
	"github.com/corelink-proto/corelink-go/pkg/wire"
)

// Negotiation constants.
const (
	// SecretSize is the size of the derived shared secret in bytes.
	SecretSize = 32

	// DefaultHandshakeTimeout is the default handshake timeout.
	DefaultHandshakeTimeout = 10 * time.Second
)

// hkdfInfo binds the derived secret to this protocol and version.
var hkdfInfo = []byte("corelink shared secret v1")

// SendFunc transmits handshake bytes to the remote service and returns
// the raw response. Typically backed by the connection coordinator's
// active transport.
type SendFunc func(ctx context.Context, data []byte) ([]byte, error)

// Config configures a session negotiator.
type Config struct {
	// ClientID identifies this client to the service.
	ClientID string

	// Send transmits handshake frames. Required.
	Send SendFunc

	// HandshakeTimeout bounds a single handshake exchange
	// (default: 10s).
	HandshakeTimeout time.Duration

	// Logger receives session state change events. Optional.
	Logger log.Logger
}

// Snapshot is a read-only view of the session state.
type Snapshot struct {
	State         State
	ClientID      string
	SessionID     string
	EstablishedAt time.Time
	ExpiresAt     time.Time // zero = unbounded
}

// Expired returns true if the session TTL has elapsed.
func (s Snapshot) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// Negotiator owns the client session and performs the handshake that
// establishes its shared secret.
type Negotiator struct {
	mu sync.RWMutex

	clientID      string
	state         State
	sessionID     string
	secret        []byte
	establishedAt time.Time
	expiresAt     time.Time

	send    SendFunc
	timeout time.Duration
	logger  log.Logger

	// Single-flight group joining concurrent handshake attempts.
	sf singleflight.Group
}

// New creates a session negotiator in the UNINITIALIZED state.
func New(cfg Config) *Negotiator {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NoopLogger{}
	}

	return &Negotiator{
		clientID: cfg.ClientID,
		state:    StateUninitialized,
		send:     cfg.Send,
		timeout:  cfg.HandshakeTimeout,
		logger:   logger,
	}
}

// State returns the current session state.
func (n *Negotiator) State() State {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.state
}

// IsActive returns true if an unexpired session is established.
func (n *Negotiator) IsActive() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.state != StateActive {
		return false
	}
	return n.expiresAt.IsZero() || time.Now().Before(n.expiresAt)
}

// Snapshot returns a read-only view of the session.
func (n *Negotiator) Snapshot() Snapshot {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return Snapshot{
		State:         n.state,
		ClientID:      n.clientID,
		SessionID:     n.sessionID,
		EstablishedAt: n.establishedAt,
		ExpiresAt:     n.expiresAt,
	}
}

// Secret returns a copy of the shared secret.
// Returns ErrNotEstablished if no active session exists.
func (n *Negotiator) Secret() ([]byte, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.state != StateActive || n.secret == nil {
		return nil, ErrNotEstablished
	}
	out := make([]byte, len(n.secret))
	copy(out, n.secret)
	return out, nil
}

// Establish performs the handshake if no session is active.
// Concurrent callers while a handshake is in flight share the same
// outcome; no second exchange is started.
func (n *Negotiator) Establish(ctx context.Context) (Snapshot, error) {
	if n.IsActive() {
		return n.Snapshot(), nil
	}
	return n.runHandshake(ctx)
}

// Rotate performs a fresh handshake while keeping the current session
// usable until the new secret is swapped in atomically. In-flight
// requests sealed under the superseded secret may fail decryption and
// must be retried by their callers.
func (n *Negotiator) Rotate(ctx context.Context) (Snapshot, error) {
	return n.runHandshake(ctx)
}

// Reset destroys the session (explicit logout or terminal failure
// handling). The shared secret is discarded.
func (n *Negotiator) Reset() {
	n.mu.Lock()
	old := n.state
	n.state = StateUninitialized
	n.sessionID = ""
	n.secret = nil
	n.establishedAt = time.Time{}
	n.expiresAt = time.Time{}
	n.mu.Unlock()

	n.logStateChange(old, StateUninitialized, "")
}

// runHandshake joins concurrent callers to a single handshake exchange.
func (n *Negotiator) runHandshake(ctx context.Context) (Snapshot, error) {
	v, err, _ := n.sf.Do("handshake", func() (any, error) {
		return n.handshake(ctx)
	})
	if err != nil {
		return n.Snapshot(), err
	}
	return v.(Snapshot), nil
}

// handshake performs one full key exchange.
func (n *Negotiator) handshake(ctx context.Context) (Snapshot, error) {
	n.mu.Lock()
	// A rotation keeps the old secret live until the swap; a first-time
	// handshake transitions through NEGOTIATING.
	rotating := n.state == StateActive
	old := n.state
	if !rotating {
		n.state = StateNegotiating
	}
	clientID := n.clientID
	n.mu.Unlock()

	if !rotating {
		n.logStateChange(old, StateNegotiating, "")
	}

	snap, err := n.exchange(ctx, clientID)
	if err != nil {
		n.mu.Lock()
		failedFrom := n.state
		if !rotating {
			n.state = StateFailed
			n.secret = nil
		}
		n.mu.Unlock()
		if !rotating {
			n.logStateChange(failedFrom, StateFailed, err.Error())
		}
		return Snapshot{}, err
	}

	n.logStateChange(old, StateActive, "")
	return snap, nil
}

// exchange runs the wire exchange and derives the shared secret.
func (n *Negotiator) exchange(ctx context.Context, clientID string) (Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	priv, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrKeyDerivation, err)
	}

	reqData, err := wire.EncodeHandshakeRequest(&wire.HandshakeRequest{
		ClientPublicKey: priv.PublicKey().Bytes(),
		ClientID:        clientID,
		ProtocolVersion: wire.ProtocolVersion,
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to encode handshake request: %w", err)
	}

	respData, err := n.send(ctx, reqData)
	if err != nil {
		switch {
		case errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
			return Snapshot{}, fmt.Errorf("handshake canceled: %w", context.Canceled)
		case errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil:
			return Snapshot{}, ErrHandshakeTimeout
		}
		return Snapshot{}, fmt.Errorf("handshake transport failure: %w", err)
	}

	resp, err := wire.DecodeHandshakeResponse(respData)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrHandshakeRejected, err)
	}
	if resp.Rejected() {
		return Snapshot{}, fmt.Errorf("%w: %s (%s)", ErrHandshakeRejected, resp.Message, resp.Status)
	}

	secret, err := deriveSecret(priv, resp.ServerPublicKey)
	if err != nil {
		return Snapshot{}, err
	}

	now := time.Now()
	var expires time.Time
	if resp.TTL > 0 {
		expires = now.Add(time.Duration(resp.TTL) * time.Second)
	}

	// Atomic swap: state, identity and secret change together.
	n.mu.Lock()
	n.state = StateActive
	n.sessionID = resp.SessionID
	n.secret = secret
	n.establishedAt = now
	n.expiresAt = expires
	snap := Snapshot{
		State:         StateActive,
		ClientID:      n.clientID,
		SessionID:     n.sessionID,
		EstablishedAt: n.establishedAt,
		ExpiresAt:     n.expiresAt,
	}
	n.mu.Unlock()

	return snap, nil
}

// deriveSecret computes the shared secret from the local private key
// and the peer's public key.
func deriveSecret(priv *ecdh.PrivateKey, peerPublic []byte) ([]byte, error) {
	peer, err := ecdh.X25519().NewPublicKey(peerPublic)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid server public key", ErrKeyDerivation)
	}

	shared, err := priv.ECDH(peer)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyDerivation, err)
	}

	secret := make([]byte, SecretSize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, shared, nil, hkdfInfo), secret); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyDerivation, err)
	}
	return secret, nil
}

// logStateChange emits a session state change event.
func (n *Negotiator) logStateChange(from, to State, reason string) {
	n.logger.Log(log.Event{
		Timestamp: time.Now(),
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Component: "session",
			From:      from.String(),
			To:        to.String(),
			Reason:    reason,
		},
	})
}
