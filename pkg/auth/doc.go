// Package auth attaches bearer credentials to outbound requests and
// coordinates token refresh.
//
// # Single-Flight Refresh
//
// When a request comes back unauthorized, HandleUnauthorized triggers
// exactly one refresh per overlapping set of callers; concurrent
// callers are joined to the same refresh outcome. On success the caller
// retries its original request once. On failure every waiter receives
// ErrReauthenticationRequired and no further silent retries happen.
//
// Tokens are persisted through the keystore collaborator so a restarted
// client resumes with its last credentials.
package auth
