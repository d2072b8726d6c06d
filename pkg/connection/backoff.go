package connection

import (
	"math/rand"
	"sync"
	"time"
)

// Backoff constants.
const (
	// InitialBackoff is the initial reconnection delay.
	InitialBackoff = 1 * time.Second

	// MaxBackoff is the maximum reconnection delay.
	MaxBackoff = 60 * time.Second

	// BackoffMultiplier is the factor by which backoff increases.
	BackoffMultiplier = 2.0

	// JitterFactor is the maximum jitter as a fraction of the computed
	// delay, applied symmetrically (±).
	JitterFactor = 0.20

	// BreakerThreshold is the number of consecutive failures after
	// which the circuit breaker trips.
	BreakerThreshold = 5

	// BreakerCooldown is the extended delay while the breaker is open.
	BreakerCooldown = 5 * time.Minute
)

// Backoff calculates exponential backoff delays with jitter and an
// integrated circuit breaker.
type Backoff struct {
	mu sync.Mutex

	// Current backoff delay (before jitter)
	current time.Duration

	// Configuration
	initial    time.Duration
	max        time.Duration
	multiplier float64
	jitter     float64
	threshold  int
	cooldown   time.Duration

	// Consecutive failure counter
	attempts int

	// Random source for jitter
	rng *rand.Rand
}

// BackoffConfig allows customizing backoff parameters.
type BackoffConfig struct {
	Initial          time.Duration
	Max              time.Duration
	Multiplier       float64
	Jitter           float64
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// NewBackoff creates a backoff calculator with default settings.
func NewBackoff() *Backoff {
	return NewBackoffWithConfig(BackoffConfig{})
}

// NewBackoffWithConfig creates a backoff calculator with custom settings.
func NewBackoffWithConfig(cfg BackoffConfig) *Backoff {
	if cfg.Initial <= 0 {
		cfg.Initial = InitialBackoff
	}
	if cfg.Max <= 0 {
		cfg.Max = MaxBackoff
	}
	if cfg.Multiplier <= 1 {
		cfg.Multiplier = BackoffMultiplier
	}
	if cfg.Jitter == 0 {
		cfg.Jitter = JitterFactor
	} else if cfg.Jitter < 0 {
		// Negative disables jitter (deterministic delays for tests)
		cfg.Jitter = 0
	}
	if cfg.BreakerThreshold <= 0 {
		cfg.BreakerThreshold = BreakerThreshold
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = BreakerCooldown
	}

	return &Backoff{
		current:    cfg.Initial,
		initial:    cfg.Initial,
		max:        cfg.Max,
		multiplier: cfg.Multiplier,
		jitter:     cfg.Jitter,
		threshold:  cfg.BreakerThreshold,
		cooldown:   cfg.BreakerCooldown,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Next returns the next delay (with jitter) and advances the backoff.
// Once the consecutive failure count reaches the breaker threshold,
// the breaker cooldown is returned instead of the exponential delay.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.attempts++

	if b.attempts >= b.threshold {
		return b.addJitter(b.cooldown)
	}

	delay := b.addJitter(b.current)

	// Advance to the next backoff value
	next := time.Duration(float64(b.current) * b.multiplier)
	if next > b.max {
		next = b.max
	}
	b.current = next

	return delay
}

// Peek returns the current delay without advancing.
func (b *Backoff) Peek() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.attempts >= b.threshold {
		return b.addJitter(b.cooldown)
	}
	return b.addJitter(b.current)
}

// BreakerOpen returns true while the circuit breaker holds its cooldown.
func (b *Backoff) BreakerOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts >= b.threshold
}

// Reset resets the backoff and breaker to initial values.
// Call this after a successful connection.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = b.initial
	b.attempts = 0
}

// Attempts returns the number of consecutive failures since last reset.
func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}

// Current returns the current base backoff (without jitter).
func (b *Backoff) Current() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// addJitter applies symmetric random jitter to a delay.
func (b *Backoff) addJitter(d time.Duration) time.Duration {
	if b.jitter <= 0 {
		return d
	}
	// Uniform in [-jitter, +jitter]
	offset := (b.rng.Float64()*2 - 1) * b.jitter * float64(d)
	return d + time.Duration(offset)
}

// BackoffSequence returns the sequence of base backoff values
// (without jitter) up to the maximum.
func BackoffSequence() []time.Duration {
	return []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		32 * time.Second,
		60 * time.Second, // max
	}
}
