package wire

import "fmt"

// ControlType identifies a transport control message.
type ControlType uint8

const (
	// ControlPing is a liveness probe.
	ControlPing ControlType = 1
	// ControlPong answers a ping, echoing its sequence number.
	ControlPong ControlType = 2
	// ControlClose announces an orderly shutdown.
	ControlClose ControlType = 3
)

// String returns the control type name.
func (t ControlType) String() string {
	switch t {
	case ControlPing:
		return "PING"
	case ControlPong:
		return "PONG"
	case ControlClose:
		return "CLOSE"
	default:
		return "UNKNOWN"
	}
}

// ControlMessage is a transport-level control frame (health probes,
// orderly close). Control frames never carry application data.
//
// CBOR encoding:
//
//	{ "control": uint, "seq": uint }
type ControlMessage struct {
	Type     ControlType `cbor:"control"`
	Sequence uint32      `cbor:"seq,omitempty"`
}

// EncodeControlMessage encodes a control message to CBOR bytes.
func EncodeControlMessage(msg *ControlMessage) ([]byte, error) {
	if msg.Type == 0 {
		return nil, fmt.Errorf("missing control type")
	}
	return Marshal(msg)
}

// DecodeControlMessage decodes CBOR bytes into a control message.
// Returns an error for frames that are not control messages.
func DecodeControlMessage(data []byte) (*ControlMessage, error) {
	var msg ControlMessage
	if err := Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to decode control message: %w", err)
	}
	if msg.Type == 0 {
		return nil, fmt.Errorf("not a control message")
	}
	return &msg, nil
}
