package connection

import "time"

// Clock abstracts time for the coordinator's scheduled retries and
// probe intervals, keeping backoff logic deterministic under test.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that fires once after d.
	After(d time.Duration) <-chan time.Time
}

// realClock is the production clock backed by the time package.
type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// RealClock returns the production clock.
func RealClock() Clock { return realClock{} }
