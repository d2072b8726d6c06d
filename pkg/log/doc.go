// Package log provides structured event logging for the corelink core.
//
// Components emit Events (state changes, retries, queue activity,
// errors) through the Logger interface. Applications choose the sink:
// NoopLogger to disable, SlogAdapter for console/structured output,
// FileLogger for a compact CBOR event stream, or MultiLogger to fan
// out to several sinks at once. Files written by FileLogger can be
// read back with Reader or ReadAll; the corelink-log command builds
// its viewing and analysis on them.
//
// Repeated transport failures are reported by the connection
// coordinator as a single state change event, not per-attempt noise;
// this package only carries the events, policy lives with the emitters.
package log
