package client

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/corelink-proto/corelink-go/pkg/auth"
	"github.com/corelink-proto/corelink-go/pkg/connection"
	"github.com/corelink-proto/corelink-go/pkg/keystore"
	"github.com/corelink-proto/corelink-go/pkg/log"
	"github.com/corelink-proto/corelink-go/pkg/persistence"
	"github.com/corelink-proto/corelink-go/pkg/queue"
	"github.com/corelink-proto/corelink-go/pkg/router"
	"github.com/corelink-proto/corelink-go/pkg/session"
	"github.com/corelink-proto/corelink-go/pkg/transport"
	"github.com/corelink-proto/corelink-go/pkg/wire"
)

// Options carries the collaborators a Config file cannot express.
type Options struct {
	// Refresher exchanges a refresh token for fresh credentials.
	// Without it an expired token surfaces as reauthentication
	// required.
	Refresher auth.Refresher

	// Drivers overrides the transports built from Config.Transports.
	Drivers []transport.Driver

	// Keystore overrides the file keystore derived from DataDir.
	Keystore keystore.Store

	// QueueStore overrides the queue store derived from DataDir.
	QueueStore queue.Store

	// Logger receives structured events in addition to the config's
	// log file, if any.
	Logger log.Logger

	// OnReconcile receives the authoritative server result for each
	// replayed queue operation.
	OnReconcile func(op queue.PendingOperation, serverResult []byte)

	// OnFailed receives queue operations that failed terminally.
	OnFailed func(op queue.PendingOperation, err error)
}

// Status is a combined snapshot of the client's moving parts.
type Status struct {
	Connection connection.Snapshot
	Session    session.Snapshot
	Pending    int
}

// Client is the top-level corelink client.
type Client struct {
	cfg Config

	coord   *connection.Coordinator
	sess    *session.Negotiator
	auth    *auth.Coordinator
	queue   *queue.Queue
	router  *router.Router
	logger  log.Logger
	fileLog *log.FileLogger

	ctx       context.Context
	cancel    context.CancelFunc
	subCancel func()
	wg        sync.WaitGroup

	mu      sync.Mutex
	started bool
}

// New assembles a client from the config and options. The client does
// not touch the network until Start.
func New(cfg Config, opts Options) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	c := &Client{cfg: cfg}
	c.ctx, c.cancel = context.WithCancel(context.Background())

	// Logging: optional file sink plus whatever the caller provides.
	var loggers []log.Logger
	if cfg.LogFile != "" {
		fl, err := log.NewFileLogger(cfg.LogFile)
		if err != nil {
			return nil, err
		}
		c.fileLog = fl
		loggers = append(loggers, fl)
	}
	if opts.Logger != nil {
		loggers = append(loggers, opts.Logger)
	}
	switch len(loggers) {
	case 0:
		c.logger = log.NoopLogger{}
	case 1:
		c.logger = loggers[0]
	default:
		c.logger = log.NewMultiLogger(loggers...)
	}

	// Storage: file-backed under DataDir, in-memory otherwise.
	ks := opts.Keystore
	if ks == nil {
		if cfg.DataDir != "" {
			ks = persistence.NewFileKeystore(filepath.Join(cfg.DataDir, "keystore.json"))
		} else {
			ks = keystore.NewMemory()
		}
	}
	qs := opts.QueueStore
	if qs == nil {
		if cfg.DataDir != "" {
			qs = persistence.NewQueueStore(filepath.Join(cfg.DataDir, "queue.json"))
		} else {
			qs = queue.NewMemoryStore()
		}
	}

	c.auth = auth.New(ks, opts.Refresher, c.logger)

	drivers := opts.Drivers
	if len(drivers) == 0 {
		for _, tc := range cfg.Transports {
			drivers = append(drivers, transport.NewStream(transport.StreamConfig{
				Name:     tc.Name,
				Priority: tc.Priority,
				Address:  tc.Address,
				Logger:   c.logger,
			}))
		}
	}
	if len(drivers) == 0 {
		return nil, ErrNoTransports
	}

	c.coord = connection.NewCoordinator(connection.Config{
		Drivers:       drivers,
		ProbeInterval: time.Duration(cfg.ProbeInterval),
		ProbeTimeout:  time.Duration(cfg.ProbeTimeout),
		Logger:        c.logger,
	})

	c.sess = session.New(session.Config{
		ClientID:         cfg.ClientID,
		Send:             c.sendRaw,
		HandshakeTimeout: time.Duration(cfg.HandshakeTimeout),
		Logger:           c.logger,
	})

	q, err := queue.New(queue.Config{
		Store:       qs,
		OnReconcile: opts.OnReconcile,
		OnFailed:    opts.OnFailed,
		Logger:      c.logger,
	})
	if err != nil {
		return nil, err
	}
	c.queue = q

	rules := make([]router.Rule, 0, len(cfg.PlainEndpoints))
	for _, pattern := range cfg.PlainEndpoints {
		rules = append(rules, router.Rule{Pattern: pattern, Policy: router.PolicyPlain})
	}
	c.router = router.New(router.Config{
		ClientID:       cfg.ClientID,
		Connection:     c.coord,
		Session:        c.sess,
		Auth:           c.auth,
		Policies:       rules,
		RequestTimeout: time.Duration(cfg.RequestTimeout),
		Logger:         c.logger,
	})

	return c, nil
}

// Start brings the connection up in the background. Once a transport
// is healthy the client establishes a session and drains the offline
// queue.
func (c *Client) Start() error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	c.mu.Unlock()

	if err := c.coord.Start(); err != nil {
		return err
	}

	sub, cancel := c.coord.Subscribe()
	c.subCancel = cancel
	c.wg.Add(1)
	go c.watchConnection(sub)
	return nil
}

// Close shuts the client down and releases its resources.
func (c *Client) Close() error {
	c.cancel()
	if c.subCancel != nil {
		c.subCancel()
	}
	c.wg.Wait()
	c.coord.Close()
	if c.fileLog != nil {
		return c.fileLog.Close()
	}
	return nil
}

// Do sends one request through the router.
func (c *Client) Do(ctx context.Context, req *wire.Request) (*wire.Response, error) {
	return c.router.Do(ctx, req)
}

// Establish performs the session handshake now instead of waiting for
// the connection watcher.
func (c *Client) Establish(ctx context.Context) (session.Snapshot, error) {
	return c.sess.Establish(ctx)
}

// Enqueue stores an operation for replay and applies the optimistic
// projection immediately.
func (c *Client) Enqueue(op queue.Operation, projection func()) (queue.PendingOperation, error) {
	return c.queue.Enqueue(op, projection)
}

// Drain replays the offline queue now. Normally the connection
// watcher does this on reconnection.
func (c *Client) Drain(ctx context.Context) error {
	return c.queue.Drain(ctx, c.replay)
}

// RemoveOperation deletes a pending operation without replaying it.
func (c *Client) RemoveOperation(operationID string) error {
	return c.queue.Remove(operationID)
}

// SetToken installs credentials obtained out of band (initial login).
func (c *Client) SetToken(tok *auth.Token) error {
	return c.auth.SetToken(tok)
}

// SetOnline feeds an explicit connectivity signal from the platform.
func (c *Client) SetOnline(online bool) {
	c.coord.SetOnline(online)
}

// Status returns a combined snapshot.
func (c *Client) Status() Status {
	return Status{
		Connection: c.coord.Snapshot(),
		Session:    c.sess.Snapshot(),
		Pending:    c.queue.Len(),
	}
}

// Subscribe exposes connection state changes to the application.
func (c *Client) Subscribe() (<-chan connection.Snapshot, func()) {
	return c.coord.Subscribe()
}

// Logout discards credentials and destroys the session.
func (c *Client) Logout() error {
	c.sess.Reset()
	return c.auth.Logout()
}

// watchConnection reacts to connection state changes: when a transport
// comes up it establishes the session and drains the queue.
func (c *Client) watchConnection(sub <-chan connection.Snapshot) {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case snap, ok := <-sub:
			if !ok {
				return
			}
			if !snap.Mode.Usable() {
				continue
			}
			if _, err := c.sess.Establish(c.ctx); err != nil {
				c.logError("session.establish", err)
				continue
			}
			if err := c.queue.Drain(c.ctx, c.replay); err != nil {
				c.logError("queue.drain", err)
			}
		}
	}
}

// replay converts a queued operation back into a request.
func (c *Client) replay(ctx context.Context, op queue.PendingOperation) ([]byte, error) {
	resp, err := c.router.Do(ctx, &wire.Request{
		Method:   op.Method,
		Endpoint: op.Endpoint,
		Body:     op.Payload,
	})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// sendRaw transmits handshake frames over the active transport.
func (c *Client) sendRaw(ctx context.Context, data []byte) ([]byte, error) {
	driver, err := c.coord.Active()
	if err != nil {
		return nil, err
	}
	resp, err := driver.Send(ctx, data)
	c.coord.Report(err)
	return resp, err
}

func (c *Client) logError(op string, err error) {
	c.logger.Log(log.Event{
		Timestamp: time.Now(),
		Category:  log.CategoryError,
		Error:     &log.ErrorEvent{Op: op, Message: err.Error()},
	})
}
