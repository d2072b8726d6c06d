// Package session implements session negotiation for the corelink
// protocol: the key exchange that establishes a shared secret and
// session identity before any encrypted traffic may flow.
//
// # Overview
//
// The negotiator performs an ephemeral X25519 exchange with the remote
// service. The client sends {client_public_key, client_id,
// protocol_version} and receives {server_public_key, session_id, ttl};
// both sides derive the shared secret with HKDF-SHA256 over the ECDH
// output. The derived secret lives only in memory for the lifetime of
// the session.
//
// # Session States
//
//   - UNINITIALIZED: no handshake attempted yet (or after Reset)
//   - NEGOTIATING: a handshake exchange is in flight
//   - ACTIVE: shared secret established, encrypted calls allowed
//   - FAILED: last handshake attempt failed terminally
//
// # Single-Flight
//
// Only one handshake may be outstanding per session. Concurrent
// Establish callers while a handshake is in flight are joined to the
// same outcome; no second exchange is started.
package session
