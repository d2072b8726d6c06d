// Package router dispatches application requests over the active
// transport.
//
// The router resolves each endpoint against a data-driven policy
// table, seals requests to encrypted endpoints with the session
// secret, attaches credentials, and classifies failures:
//
//   - transport failures are reported to the connection coordinator
//     and retried once on a fallback transport
//   - an unauthorized response drives a single token refresh followed
//     by one retry of the original request
//   - terminal application errors (validation, not found, conflict)
//     surface immediately and are never retried
//   - decryption failures fail the single call; callers that raced a
//     secret rotation retry explicitly
//
// Every call terminates in bounded time: at most two transport
// attempts per send and at most one refresh-and-retry cycle.
package router
