// Package wire defines the CBOR wire format types for the corelink protocol.
//
// corelink uses CBOR (RFC 8949) with string keys matching the published
// wire contract. All messages are opaque byte blobs as far as transport
// drivers are concerned; this package is the only place that knows their
// shape.
//
// # Message Types
//
//   - HandshakeRequest / HandshakeResponse: session negotiation exchange
//   - Message: the outer frame for application traffic, either carrying
//     a plain Request or an encrypted envelope payload
//   - Response: the service's reply, plain or enveloped
//
// # Encrypted vs Plain
//
// An encrypted frame carries {encrypted: true, payload: {data, nonce},
// client_id}. A plain frame omits the payload wrapper and carries the
// request directly. Exactly one of the two forms is valid per frame.
package wire
