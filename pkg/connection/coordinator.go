package connection

import (
	"context"
	"sync"
	"time"

	"github.com/corelink-proto/corelink-go/pkg/log"
	"github.com/corelink-proto/corelink-go/pkg/transport"
)

// Coordinator defaults.
const (
	// DefaultProbeInterval is the health probe interval while a
	// transport is active.
	DefaultProbeInterval = 15 * time.Second

	// DefaultProbeTimeout bounds a single health probe. Probe timeouts
	// are deliberately shorter than user-facing request timeouts.
	DefaultProbeTimeout = 3 * time.Second

	// DefaultFailureThreshold is the number of consecutive failures at
	// the current mode before the coordinator reevaluates transports.
	DefaultFailureThreshold = 3
)

// Config configures a connection coordinator.
type Config struct {
	// Drivers are the available transports, any order. At least one
	// is required; absent transports may be transport.Unavailable.
	Drivers []transport.Driver

	// ProbeInterval is the health probe interval (default: 15s).
	ProbeInterval time.Duration

	// ProbeTimeout bounds a single probe (default: 3s).
	ProbeTimeout time.Duration

	// FailureThreshold is the consecutive failure count that triggers
	// transport reevaluation (default: 3).
	FailureThreshold int

	// Backoff customizes reconnection delays.
	Backoff BackoffConfig

	// Clock abstracts time for tests (default: real time).
	Clock Clock

	// Logger receives state change and retry events. Optional.
	Logger log.Logger
}

// Coordinator owns the connection state machine. There is one instance
// per client process.
type Coordinator struct {
	mu sync.RWMutex

	mode        Mode
	drivers     []transport.Driver // sorted by ascending priority
	activeIdx   int                // index into drivers, -1 when none
	failures    int
	lastSuccess time.Time
	closed      bool
	started     bool

	probeInterval    time.Duration
	probeTimeout     time.Duration
	failureThreshold int

	backoff *Backoff
	clock   Clock
	logger  log.Logger

	subs    map[int]chan Snapshot
	nextSub int

	// kick wakes the run loop to reevaluate immediately.
	kick   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCoordinator creates a coordinator in the DISCONNECTED mode.
func NewCoordinator(cfg Config) *Coordinator {
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = DefaultProbeInterval
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = DefaultProbeTimeout
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.Clock == nil {
		cfg.Clock = RealClock()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NoopLogger{}
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Coordinator{
		mode:             ModeDisconnected,
		drivers:          transport.ByPriority(cfg.Drivers),
		activeIdx:        -1,
		probeInterval:    cfg.ProbeInterval,
		probeTimeout:     cfg.ProbeTimeout,
		failureThreshold: cfg.FailureThreshold,
		backoff:          NewBackoffWithConfig(cfg.Backoff),
		clock:            cfg.Clock,
		logger:           logger,
		subs:             make(map[int]chan Snapshot),
		kick:             make(chan struct{}, 1),
		ctx:              ctx,
		cancel:           cancel,
	}
}

// Start transitions to CONNECTING and launches the run loop.
func (c *Coordinator) Start() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	old := c.mode
	c.mode = ModeConnecting
	c.mu.Unlock()

	c.notify(old, ModeConnecting, "start")

	c.wg.Add(1)
	go c.run()
	return nil
}

// Close shuts the coordinator down.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()

	c.mu.Lock()
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
	c.mu.Unlock()
}

// Mode returns the current connection mode.
func (c *Coordinator) Mode() Mode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mode
}

// Snapshot returns a read-only view of the connection state.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

// Active returns the active transport driver.
func (c *Coordinator) Active() (transport.Driver, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.mode.Usable() || c.activeIdx < 0 {
		return nil, ErrNotConnected
	}
	return c.drivers[c.activeIdx], nil
}

// Fallback returns the next transport by priority, excluding the named
// driver. Used for a single per-call fallback attempt; it does not
// change coordinator state.
func (c *Coordinator) Fallback(exclude string) (transport.Driver, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, d := range c.drivers {
		if d.Name() != exclude {
			return d, nil
		}
	}
	return nil, ErrNoFallback
}

// Subscribe returns a channel of state change snapshots and a cancel
// function. Notifications are dropped, not blocked on, if the
// subscriber falls behind.
func (c *Coordinator) Subscribe() (<-chan Snapshot, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextSub
	c.nextSub++
	ch := make(chan Snapshot, 16)
	c.subs[id] = ch

	cancel := func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if sub, ok := c.subs[id]; ok {
			close(sub)
			delete(c.subs, id)
		}
	}
	return ch, cancel
}

// SetOnline feeds the explicit connectivity signal. false moves to
// OFFLINE from any state; true resumes CONNECTING.
func (c *Coordinator) SetOnline(online bool) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	old := c.mode
	if !online && old != ModeOffline {
		c.mode = ModeOffline
		c.activeIdx = -1
		c.mu.Unlock()
		c.notify(old, ModeOffline, "connectivity lost")
		c.wake()
		return
	}
	if online && old == ModeOffline {
		c.mode = ModeConnecting
		c.mu.Unlock()
		c.notify(old, ModeConnecting, "connectivity restored")
		c.wake()
		return
	}
	c.mu.Unlock()
}

// Report feeds the outcome of an application send. Successes reset the
// failure counter; transport failures accumulate toward reevaluation.
// Non-transport errors are ignored.
func (c *Coordinator) Report(err error) {
	if err == nil {
		c.mu.Lock()
		c.failures = 0
		c.lastSuccess = c.clock.Now()
		c.mu.Unlock()
		return
	}
	if !transport.IsFailure(err) {
		return
	}

	c.mu.Lock()
	c.failures++
	trigger := c.mode.Usable() && c.failures >= c.failureThreshold
	c.mu.Unlock()

	if trigger {
		c.wake()
	}
}

// run is the coordinator's single owning loop.
func (c *Coordinator) run() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		switch c.Mode() {
		case ModeConnecting:
			c.attemptConnect()

		case ModeConnected, ModeDegraded:
			select {
			case <-c.ctx.Done():
				return
			case <-c.kick:
				c.probeTick()
			case <-c.clock.After(c.probeInterval):
				c.probeTick()
			}

		case ModeDisconnected:
			delay := c.backoff.Next()
			c.logger.Log(log.Event{
				Timestamp: c.clock.Now(),
				Category:  log.CategoryRetry,
				Retry: &log.RetryEvent{
					Attempt: c.backoff.Attempts(),
					Delay:   delay,
					Breaker: c.backoff.BreakerOpen(),
				},
			})
			select {
			case <-c.ctx.Done():
				return
			case <-c.kick:
				// Mode changed (offline/online signal); reevaluate.
			case <-c.clock.After(delay):
				c.transition(ModeDisconnected, ModeConnecting, "reconnect attempt")
			}

		case ModeOffline:
			select {
			case <-c.ctx.Done():
				return
			case <-c.kick:
				// SetOnline(true) moved us to CONNECTING.
			}
		}
	}
}

// attemptConnect probes transports in priority order and activates the
// first healthy one.
func (c *Coordinator) attemptConnect() {
	for idx, d := range c.drivers {
		if c.ctx.Err() != nil {
			return
		}
		if c.probeDriver(d) {
			c.activate(idx, "connect")
			return
		}
	}
	c.transition(ModeConnecting, ModeDisconnected, "all transports failed")
}

// probeTick runs one health probe against the active transport and
// reevaluates on accumulated failures.
func (c *Coordinator) probeTick() {
	c.mu.RLock()
	idx := c.activeIdx
	usable := c.mode.Usable()
	c.mu.RUnlock()

	if !usable || idx < 0 {
		return
	}

	if c.probeDriver(c.drivers[idx]) {
		c.mu.Lock()
		c.failures = 0
		c.lastSuccess = c.clock.Now()
		c.mu.Unlock()
		return
	}

	c.mu.Lock()
	c.failures++
	exceeded := c.failures >= c.failureThreshold
	c.mu.Unlock()

	if exceeded {
		c.reevaluate(idx)
	}
}

// reevaluate reacts to a failing active transport: try higher priority
// first, else downgrade, else disconnect and let backoff schedule a
// reconnection.
func (c *Coordinator) reevaluate(failedIdx int) {
	// Higher-priority transports first (an upgrade may have recovered)
	for idx := 0; idx < failedIdx; idx++ {
		if c.probeDriver(c.drivers[idx]) {
			c.activate(idx, "upgraded after failures")
			return
		}
	}
	// Then downgrade
	for idx := failedIdx + 1; idx < len(c.drivers); idx++ {
		if c.probeDriver(c.drivers[idx]) {
			c.activate(idx, "downgraded after failures")
			return
		}
	}

	c.mu.Lock()
	old := c.mode
	if !old.Usable() {
		c.mu.Unlock()
		return
	}
	c.mode = ModeDisconnected
	c.activeIdx = -1
	c.mu.Unlock()
	c.notify(old, ModeDisconnected, "no healthy transport")
}

// activate commits a healthy driver as the active transport.
func (c *Coordinator) activate(idx int, reason string) {
	mode := ModeConnected
	if idx > 0 {
		mode = ModeDegraded
	}

	c.mu.Lock()
	old := c.mode
	if old == ModeOffline || c.closed {
		c.mu.Unlock()
		return
	}
	c.activeIdx = idx
	c.mode = mode
	c.failures = 0
	c.lastSuccess = c.clock.Now()
	c.mu.Unlock()

	c.backoff.Reset()
	if old != mode {
		c.notify(old, mode, reason)
	}
}

// probeDriver runs one bounded probe.
func (c *Coordinator) probeDriver(d transport.Driver) bool {
	ctx, cancel := context.WithTimeout(c.ctx, c.probeTimeout)
	defer cancel()
	return d.Probe(ctx) == nil
}

// transition moves from an expected mode to a new one; no-op if the
// mode changed underneath.
func (c *Coordinator) transition(from, to Mode, reason string) {
	c.mu.Lock()
	if c.mode != from {
		c.mu.Unlock()
		return
	}
	c.mode = to
	c.mu.Unlock()
	c.notify(from, to, reason)
}

// snapshotLocked builds a snapshot. Caller holds c.mu.
func (c *Coordinator) snapshotLocked() Snapshot {
	snap := Snapshot{
		Mode:                c.mode,
		ConsecutiveFailures: c.failures,
		LastSuccessAt:       c.lastSuccess,
	}
	if c.mode.Usable() && c.activeIdx >= 0 {
		snap.Transport = c.drivers[c.activeIdx].Name()
	}
	return snap
}

// notify publishes a state change to subscribers and the logger.
func (c *Coordinator) notify(from, to Mode, reason string) {
	c.mu.RLock()
	snap := c.snapshotLocked()
	subs := make([]chan Snapshot, 0, len(c.subs))
	for _, ch := range c.subs {
		subs = append(subs, ch)
	}
	c.mu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- snap:
		default:
			// Subscriber fell behind; drop rather than block.
		}
	}

	c.logger.Log(log.Event{
		Timestamp: c.clock.Now(),
		Category:  log.CategoryState,
		Transport: snap.Transport,
		StateChange: &log.StateChangeEvent{
			Component: "connection",
			From:      from.String(),
			To:        to.String(),
			Reason:    reason,
		},
	})
}

// wake nudges the run loop.
func (c *Coordinator) wake() {
	select {
	case c.kick <- struct{}{}:
	default:
		// Already pending
	}
}
