// Package transport defines the driver contract the core routes
// traffic through, and ships the built-in drivers.
//
// # Drivers
//
// A Driver wraps one concrete channel to the remote service: a local
// socket, a persistent framed stream, or a request/response API. The
// core is agnostic to which kind a driver represents; it only sends
// opaque bytes and receives opaque bytes. Drivers carry a priority
// (lower is preferred) used by the connection coordinator for
// selection and fallback.
//
// Built-in drivers:
//
//   - Stream: persistent length-prefix framed connection over any
//     net.Conn dialer, with lockstep request/response exchange and
//     ping-based probing
//   - Func: adapter turning a pair of functions into a driver, for
//     request/response channels owned by the application
//   - Unavailable: an always-failing placeholder for transports that
//     are absent or unimplemented, exercising the fallback path
//     harmlessly
//
// # Failures
//
// Every transport-level error is reported as a *Failure so callers can
// distinguish recoverable connectivity problems from application
// errors. Application errors never originate in this package.
package transport
