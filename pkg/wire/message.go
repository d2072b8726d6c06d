package wire

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ProtocolVersion is the current corelink protocol version.
const ProtocolVersion uint8 = 1

// HandshakeRequest initiates session negotiation.
//
// CBOR encoding:
//
//	{
//	  "client_public_key": bytes,  // ephemeral X25519 public key
//	  "client_id":         text,
//	  "protocol_version":  uint
//	}
type HandshakeRequest struct {
	ClientPublicKey []byte `cbor:"client_public_key"`
	ClientID        string `cbor:"client_id"`
	ProtocolVersion uint8  `cbor:"protocol_version"`
}

// Validate checks if the handshake request is well-formed.
func (r *HandshakeRequest) Validate() error {
	if len(r.ClientPublicKey) == 0 {
		return fmt.Errorf("missing client public key")
	}
	if r.ClientID == "" {
		return fmt.Errorf("missing client id")
	}
	if r.ProtocolVersion == 0 {
		return fmt.Errorf("missing protocol version")
	}
	return nil
}

// HandshakeResponse completes session negotiation.
//
// CBOR encoding:
//
//	{
//	  "server_public_key": bytes,
//	  "session_id":        text,
//	  "ttl":               int,   // session lifetime in seconds, 0 = unbounded
//	  "status":            uint,  // non-zero on rejection
//	  "message":           text   // human-readable rejection reason
//	}
type HandshakeResponse struct {
	ServerPublicKey []byte `cbor:"server_public_key,omitempty"`
	SessionID       string `cbor:"session_id,omitempty"`
	TTL             int64  `cbor:"ttl,omitempty"`
	Status          Status `cbor:"status,omitempty"`
	Message         string `cbor:"message,omitempty"`
}

// Rejected returns true if the server refused the handshake.
func (r *HandshakeResponse) Rejected() bool {
	return r.Status != StatusSuccess
}

// Request is the inner application request. For plain endpoints it is
// carried directly inside a Message; for encrypted endpoints it is
// CBOR-encoded and sealed into the envelope payload.
type Request struct {
	Method        string          `cbor:"method"`
	Endpoint      string          `cbor:"endpoint"`
	Authorization string          `cbor:"authorization,omitempty"`
	Body          cbor.RawMessage `cbor:"body,omitempty"`
}

// Validate checks if the request is well-formed.
func (r *Request) Validate() error {
	if r.Method == "" {
		return fmt.Errorf("missing method")
	}
	if r.Endpoint == "" {
		return fmt.Errorf("missing endpoint")
	}
	return nil
}

// EnvelopePayload is the sealed payload wrapper of an encrypted frame.
//
// CBOR encoding:
//
//	{ "data": bytes, "nonce": bytes }
type EnvelopePayload struct {
	Data  []byte `cbor:"data"`
	Nonce []byte `cbor:"nonce"`
}

// Message is the outer frame handed to a transport driver.
//
// Encrypted frames carry the envelope payload and omit the request;
// plain frames carry the request and omit the payload wrapper.
type Message struct {
	Encrypted bool             `cbor:"encrypted"`
	ClientID  string           `cbor:"client_id"`
	Payload   *EnvelopePayload `cbor:"payload,omitempty"`
	Request   *Request         `cbor:"request,omitempty"`
}

// Validate checks the frame invariant: exactly one of payload or
// request is present, matching the encrypted flag.
func (m *Message) Validate() error {
	if m.ClientID == "" {
		return fmt.Errorf("missing client id")
	}
	if m.Encrypted {
		if m.Payload == nil {
			return fmt.Errorf("encrypted frame missing payload")
		}
		if m.Request != nil {
			return fmt.Errorf("encrypted frame must not carry a plain request")
		}
		return nil
	}
	if m.Request == nil {
		return fmt.Errorf("plain frame missing request")
	}
	if m.Payload != nil {
		return fmt.Errorf("plain frame must not carry a payload wrapper")
	}
	return nil
}

// Response is the service's reply to a single request.
//
// Encrypted endpoints answer with a sealed payload; plain endpoints
// answer with the body directly.
type Response struct {
	Status  Status           `cbor:"status"`
	Payload *EnvelopePayload `cbor:"payload,omitempty"`
	Body    cbor.RawMessage  `cbor:"body,omitempty"`
	Message string           `cbor:"message,omitempty"`
}

// IsSuccess returns true if the response indicates success.
func (r *Response) IsSuccess() bool {
	return r.Status.IsSuccess()
}

// Err returns a StatusError for failed responses, nil otherwise.
func (r *Response) Err() error {
	if r.Status.IsSuccess() {
		return nil
	}
	return &StatusError{Status: r.Status, Message: r.Message}
}
