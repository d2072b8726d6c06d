package connection

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/corelink-proto/corelink-go/pkg/transport"
)

// fakeDriver is a controllable transport for coordinator tests.
type fakeDriver struct {
	name     string
	priority int
	healthy  atomic.Bool
	probes   atomic.Int32
}

func newFakeDriver(name string, priority int, healthy bool) *fakeDriver {
	d := &fakeDriver{name: name, priority: priority}
	d.healthy.Store(healthy)
	return d
}

func (d *fakeDriver) Name() string  { return d.name }
func (d *fakeDriver) Priority() int { return d.priority }

func (d *fakeDriver) Send(ctx context.Context, data []byte) ([]byte, error) {
	if !d.healthy.Load() {
		return nil, transport.NewFailure(d.name, "send", errors.New("down"))
	}
	return data, nil
}

func (d *fakeDriver) Probe(ctx context.Context) error {
	d.probes.Add(1)
	if !d.healthy.Load() {
		return transport.NewFailure(d.name, "probe", errors.New("down"))
	}
	return nil
}

// testConfig returns a coordinator config with short intervals.
func testConfig(drivers ...transport.Driver) Config {
	return Config{
		Drivers:          drivers,
		ProbeInterval:    10 * time.Millisecond,
		ProbeTimeout:     50 * time.Millisecond,
		FailureThreshold: 3,
		Backoff: BackoffConfig{
			Initial: 10 * time.Millisecond,
			Max:     40 * time.Millisecond,
			Jitter:  -1,
		},
	}
}

// waitForMode polls until the coordinator reaches the wanted mode.
func waitForMode(t *testing.T, c *Coordinator, want Mode) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.Mode() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("mode = %v, want %v", c.Mode(), want)
}

func TestCoordinatorConnectsPreferred(t *testing.T) {
	local := newFakeDriver("local", 0, true)
	cloud := newFakeDriver("cloud", 10, true)

	c := NewCoordinator(testConfig(local, cloud))
	defer c.Close()

	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitForMode(t, c, ModeConnected)

	snap := c.Snapshot()
	if snap.Transport != "local" {
		t.Errorf("active transport = %q, want %q", snap.Transport, "local")
	}

	active, err := c.Active()
	if err != nil {
		t.Fatalf("Active: %v", err)
	}
	if active.Name() != "local" {
		t.Errorf("Active().Name() = %q, want %q", active.Name(), "local")
	}
}

func TestCoordinatorDegradedOnLowerPriority(t *testing.T) {
	local := newFakeDriver("local", 0, false)
	cloud := newFakeDriver("cloud", 10, true)

	c := NewCoordinator(testConfig(local, cloud))
	defer c.Close()

	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitForMode(t, c, ModeDegraded)

	if snap := c.Snapshot(); snap.Transport != "cloud" {
		t.Errorf("active transport = %q, want %q", snap.Transport, "cloud")
	}
}

func TestProbeFailuresDriveDisconnect(t *testing.T) {
	local := newFakeDriver("local", 0, true)

	c := NewCoordinator(testConfig(local))
	defer c.Close()

	sub, cancel := c.Subscribe()
	defer cancel()

	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitForMode(t, c, ModeConnected)

	// Kill the only transport; three consecutive probe failures must
	// drive CONNECTED -> DISCONNECTED with a scheduled reconnection.
	local.healthy.Store(false)
	waitForMode(t, c, ModeDisconnected)

	// Restore; backoff-scheduled reconnection should succeed.
	local.healthy.Store(true)
	waitForMode(t, c, ModeConnected)

	if snap := c.Snapshot(); snap.ConsecutiveFailures != 0 {
		t.Errorf("failures after recovery = %d, want 0", snap.ConsecutiveFailures)
	}

	// The subscriber saw the full connect, disconnect, reconnect arc in
	// order. Notifications fire on mode changes only, never per attempt.
	var seen []Mode
	drain := time.After(100 * time.Millisecond)
loop:
	for {
		select {
		case snap := <-sub:
			seen = append(seen, snap.Mode)
		case <-drain:
			break loop
		}
	}
	want := []Mode{ModeConnected, ModeDisconnected, ModeConnected}
	i := 0
	for _, m := range seen {
		if i < len(want) && m == want[i] {
			i++
		}
	}
	if i != len(want) {
		t.Fatalf("transitions = %v, want subsequence %v", seen, want)
	}
	for j := 1; j < len(seen); j++ {
		if seen[j] == seen[j-1] {
			t.Fatalf("duplicate consecutive notification %v in %v", seen[j], seen)
		}
	}
}

func TestUpgradeBeforeDowngrade(t *testing.T) {
	local := newFakeDriver("local", 0, false)
	cloud := newFakeDriver("cloud", 10, true)

	c := NewCoordinator(testConfig(local, cloud))
	defer c.Close()

	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitForMode(t, c, ModeDegraded)

	// The preferred transport recovers, then the degraded one fails:
	// reevaluation must move back up rather than disconnect.
	local.healthy.Store(true)
	cloud.healthy.Store(false)
	waitForMode(t, c, ModeConnected)

	if snap := c.Snapshot(); snap.Transport != "local" {
		t.Errorf("active transport = %q, want %q", snap.Transport, "local")
	}
}

func TestOfflineSignal(t *testing.T) {
	local := newFakeDriver("local", 0, true)

	c := NewCoordinator(testConfig(local))
	defer c.Close()

	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitForMode(t, c, ModeConnected)

	c.SetOnline(false)
	waitForMode(t, c, ModeOffline)

	if _, err := c.Active(); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Active while offline = %v, want ErrNotConnected", err)
	}

	// No reconnection attempts happen while offline
	probesBefore := local.probes.Load()
	time.Sleep(50 * time.Millisecond)
	if got := local.probes.Load(); got != probesBefore {
		t.Errorf("probes while offline: %d -> %d, want unchanged", probesBefore, got)
	}

	c.SetOnline(true)
	waitForMode(t, c, ModeConnected)
}

func TestReportedSendFailuresEscalate(t *testing.T) {
	local := newFakeDriver("local", 0, true)

	c := NewCoordinator(testConfig(local))
	defer c.Close()

	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitForMode(t, c, ModeConnected)

	// Only the probe path keeps the transport looking healthy; reported
	// send failures alone must reach the threshold and force an
	// immediate reevaluation probe.
	local.healthy.Store(false)
	failure := transport.NewFailure("local", "send", errors.New("reset by peer"))
	c.Report(failure)
	c.Report(failure)
	c.Report(failure)

	waitForMode(t, c, ModeDisconnected)
}

func TestReportSuccessResetsFailures(t *testing.T) {
	local := newFakeDriver("local", 0, true)

	c := NewCoordinator(testConfig(local))
	defer c.Close()

	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitForMode(t, c, ModeConnected)

	failure := transport.NewFailure("local", "send", errors.New("blip"))
	c.Report(failure)
	c.Report(failure)
	c.Report(nil)

	if snap := c.Snapshot(); snap.ConsecutiveFailures != 0 {
		t.Errorf("failures after success = %d, want 0", snap.ConsecutiveFailures)
	}
	if c.Mode() != ModeConnected {
		t.Errorf("mode = %v, want CONNECTED", c.Mode())
	}
}

func TestFallback(t *testing.T) {
	local := newFakeDriver("local", 0, true)
	cloud := newFakeDriver("cloud", 10, true)

	c := NewCoordinator(testConfig(local, cloud))
	defer c.Close()

	fb, err := c.Fallback("local")
	if err != nil {
		t.Fatalf("Fallback: %v", err)
	}
	if fb.Name() != "cloud" {
		t.Errorf("Fallback = %q, want %q", fb.Name(), "cloud")
	}

	single := NewCoordinator(testConfig(local))
	defer single.Close()
	if _, err := single.Fallback("local"); !errors.Is(err, ErrNoFallback) {
		t.Errorf("Fallback with single driver = %v, want ErrNoFallback", err)
	}
}

func TestCoordinatorClose(t *testing.T) {
	local := newFakeDriver("local", 0, true)

	c := NewCoordinator(testConfig(local))
	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitForMode(t, c, ModeConnected)

	sub, cancel := c.Subscribe()
	defer cancel()

	c.Close()

	// Subscription channel is closed on shutdown
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-sub:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("subscription not closed on Close")
		}
	}
}

func TestStartAfterClose(t *testing.T) {
	c := NewCoordinator(testConfig(newFakeDriver("local", 0, true)))
	c.Close()
	if err := c.Start(); !errors.Is(err, ErrClosed) {
		t.Errorf("Start after Close = %v, want ErrClosed", err)
	}
}
