package router

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/corelink-proto/corelink-go/pkg/auth"
	"github.com/corelink-proto/corelink-go/pkg/envelope"
	"github.com/corelink-proto/corelink-go/pkg/log"
	"github.com/corelink-proto/corelink-go/pkg/transport"
	"github.com/corelink-proto/corelink-go/pkg/wire"
)

// DefaultRequestTimeout bounds a single request exchange including the
// fallback attempt.
const DefaultRequestTimeout = 30 * time.Second

// Router errors.
var (
	// ErrSessionNotEstablished is returned for an encrypted endpoint
	// with no active session. No network call is attempted.
	ErrSessionNotEstablished = errors.New("session not established")

	// ErrDecryptionFailed wraps a response that could not be opened
	// with the current session secret. The call fails; it is never
	// silently retried.
	ErrDecryptionFailed = errors.New("response decryption failed")
)

// Connection is the subset of the connection coordinator the router
// depends on.
type Connection interface {
	Active() (transport.Driver, error)
	Fallback(exclude string) (transport.Driver, error)
	Report(err error)
}

// Session is the subset of the session negotiator the router depends
// on.
type Session interface {
	IsActive() bool
	Secret() ([]byte, error)
}

// Authorizer attaches credentials and reacts to unauthorized
// responses.
type Authorizer interface {
	Attach(req *wire.Request) error
	HandleUnauthorized(ctx context.Context) error
}

// Config configures a request router.
type Config struct {
	// ClientID identifies this client on the wire.
	ClientID string

	// Connection provides the active and fallback transports.
	// Required.
	Connection Connection

	// Session provides the shared secret for encrypted endpoints.
	// Required unless every policy is plain.
	Session Session

	// Auth attaches tokens and refreshes them on an unauthorized
	// response. Optional; without it requests go out bare and
	// unauthorized responses surface directly.
	Auth Authorizer

	// Policies is the endpoint policy table, first match wins
	// (default: everything encrypted).
	Policies []Rule

	// RequestTimeout bounds one Do call's network activity
	// (default: 30s).
	RequestTimeout time.Duration

	// Logger receives request events. Optional.
	Logger log.Logger
}

// Router dispatches requests according to the endpoint policy table.
type Router struct {
	clientID string
	conn     Connection
	session  Session
	auth     Authorizer
	policies *PolicyTable
	timeout  time.Duration
	logger   log.Logger
}

// New creates a request router.
func New(cfg Config) *Router {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NoopLogger{}
	}

	return &Router{
		clientID: cfg.ClientID,
		conn:     cfg.Connection,
		session:  cfg.Session,
		auth:     cfg.Auth,
		policies: NewPolicyTable(cfg.Policies...),
		timeout:  cfg.RequestTimeout,
		logger:   logger,
	}
}

// Do sends one request and returns the decoded response. Terminal
// application errors are returned as *wire.StatusError alongside the
// response carrying them.
func (r *Router) Do(ctx context.Context, req *wire.Request) (*wire.Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	policy := r.policies.Resolve(req.Endpoint)

	// The session gate runs before anything touches the network.
	var secret []byte
	if policy == PolicyEncrypted {
		if r.session == nil || !r.session.IsActive() {
			return nil, ErrSessionNotEstablished
		}
		var err error
		if secret, err = r.session.Secret(); err != nil {
			return nil, ErrSessionNotEstablished
		}
	}

	if err := r.attachAuth(req); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	resp, err := r.attempt(ctx, req, secret)
	if err != nil {
		return nil, err
	}

	if resp.Status.IsAuthFailure() && r.auth != nil {
		// One refresh, one retry, then whatever the server says.
		if err := r.auth.HandleUnauthorized(ctx); err != nil {
			return nil, err
		}
		if err := r.attachAuth(req); err != nil {
			return nil, err
		}
		if resp, err = r.attempt(ctx, req, secret); err != nil {
			return nil, err
		}
	}

	return resp, resp.Err()
}

// attachAuth adds credentials when available. Requests without a
// stored token go out bare; login-style endpoints depend on that.
func (r *Router) attachAuth(req *wire.Request) error {
	if r.auth == nil {
		return nil
	}
	err := r.auth.Attach(req)
	if err != nil && !errors.Is(err, auth.ErrNoToken) {
		return err
	}
	return nil
}

// attempt sends the encoded request on the active transport, falling
// back once to the next transport on a transport failure.
func (r *Router) attempt(ctx context.Context, req *wire.Request, secret []byte) (*wire.Response, error) {
	data, err := r.encode(req, secret)
	if err != nil {
		return nil, err
	}

	driver, err := r.conn.Active()
	if err != nil {
		return nil, err
	}

	raw, sendErr := driver.Send(ctx, data)
	if sendErr != nil {
		r.conn.Report(sendErr)
		r.logRequest(req, driver.Name(), sendErr)

		if !transport.IsFailure(sendErr) || ctx.Err() != nil {
			return nil, sendErr
		}
		fallback, fbErr := r.conn.Fallback(driver.Name())
		if fbErr != nil {
			return nil, sendErr
		}
		raw, err = fallback.Send(ctx, data)
		if err != nil {
			r.conn.Report(err)
			r.logRequest(req, fallback.Name(), err)
			return nil, err
		}
		driver = fallback
	}

	r.conn.Report(nil)
	r.logRequest(req, driver.Name(), nil)
	return r.decode(raw, secret)
}

// encode wraps the request in the outer frame, sealing it for
// encrypted endpoints.
func (r *Router) encode(req *wire.Request, secret []byte) ([]byte, error) {
	msg := &wire.Message{ClientID: r.clientID}

	if secret != nil {
		plaintext, err := wire.EncodeRequest(req)
		if err != nil {
			return nil, err
		}
		payload, err := envelope.Seal(plaintext, secret)
		if err != nil {
			return nil, err
		}
		msg.Encrypted = true
		msg.Payload = payload
	} else {
		msg.Request = req
	}

	return wire.EncodeMessage(msg)
}

// decode parses the response, opening the envelope for encrypted
// exchanges.
func (r *Router) decode(raw []byte, secret []byte) (*wire.Response, error) {
	resp, err := wire.DecodeResponse(raw)
	if err != nil {
		return nil, err
	}

	if resp.Payload != nil {
		if secret == nil {
			return nil, fmt.Errorf("%w: sealed response on a plain endpoint", ErrDecryptionFailed)
		}
		plaintext, err := envelope.Open(resp.Payload, secret)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
		}
		resp.Body = plaintext
		resp.Payload = nil
	}

	return resp, nil
}

// logRequest emits one request event.
func (r *Router) logRequest(req *wire.Request, transportName string, err error) {
	event := log.Event{
		Timestamp: time.Now(),
		Category:  log.CategoryRequest,
		Transport: transportName,
		Endpoint:  req.Endpoint,
	}
	if err != nil {
		event.Category = log.CategoryError
		event.Error = &log.ErrorEvent{Op: "router.send", Message: err.Error()}
	}
	r.logger.Log(event)
}
