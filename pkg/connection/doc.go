// Package connection owns the connection state machine: transport
// selection, health probing, and reconnection scheduling.
//
// # State Machine
//
//	DISCONNECTED -> CONNECTING -> CONNECTED -> DEGRADED -> DISCONNECTED
//
// OFFLINE is reachable from any state on an explicit connectivity-down
// signal and exits back to CONNECTING when connectivity is restored.
//
// The coordinator attempts transports in ascending priority order
// (lowest latency / most local first). While connected it probes the
// active transport; after a configurable number of consecutive
// failures it first tries a higher-priority transport, then downgrades
// to the next lower priority, and finally disconnects and schedules
// reconnection through the backoff engine.
//
// # Backoff
//
// Reconnection delays follow min(base*2^attempt, cap) with uniform
// jitter within ±20% of the computed value. After a configurable run
// of consecutive failures a circuit breaker holds a longer cooldown
// before attempts resume. All counters reset on the first success.
//
// # Observation
//
// State is exposed through read-only snapshots and a change
// notification channel; components never reach into mutable coordinator
// internals. Repeated failures surface as a single state change event,
// not per-attempt noise.
package connection
