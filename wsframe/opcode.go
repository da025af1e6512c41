// Package wsframe implements the RFC 6455 frame codec: header parsing and encoding, payload
// masking, close frame payloads and the hooks used by extensions that transform payloads and
// occupy RSV bits.
//
// All functions of the package are stateless and can be shared between connections.
package wsframe

import "fmt"

/*************************************************************************************************/
/* OPCODES                                                                                       */
/*************************************************************************************************/

// Frame opcode as defined by RFC 6455.
//
// https://www.rfc-editor.org/rfc/rfc6455.html#section-5.2
type Opcode byte

const (
	// Continuation frame of a fragmented message
	OpContinuation Opcode = 0x0
	// First (or only) frame of a text message
	OpText Opcode = 0x1
	// First (or only) frame of a binary message
	OpBinary Opcode = 0x2
	// Close control frame
	OpClose Opcode = 0x8
	// Ping control frame
	OpPing Opcode = 0x9
	// Pong control frame
	OpPong Opcode = 0xA
)

// Returns true if opcode designates a control frame (close, ping, pong and reserved 0xB-0xF).
func (op Opcode) IsControl() bool {
	return op&0x8 != 0
}

// Returns true if opcode designates a data frame (text, binary or continuation).
func (op Opcode) IsData() bool {
	return op == OpText || op == OpBinary || op == OpContinuation
}

// Returns true if opcode is not defined by RFC 6455 (0x3-0x7 and 0xB-0xF).
func (op Opcode) IsReserved() bool {
	switch op {
	case OpContinuation, OpText, OpBinary, OpClose, OpPing, OpPong:
		return false
	default:
		return true
	}
}

func (op Opcode) String() string {
	switch op {
	case OpContinuation:
		return "continuation"
	case OpText:
		return "text"
	case OpBinary:
		return "binary"
	case OpClose:
		return "close"
	case OpPing:
		return "ping"
	case OpPong:
		return "pong"
	default:
		return fmt.Sprintf("reserved(0x%X)", byte(op))
	}
}

/*************************************************************************************************/
/* MESSAGE TYPES                                                                                 */
/*************************************************************************************************/

// Websocket message types which can be sent or received by applications.
//
// Values mimic RFC 6455 data frame opcodes.
type MessageType int

const (
	// Denotes a text message
	Text MessageType = iota + 1
	// Denotes a binary message
	Binary
)

// Opcode used by the first frame of a message of this type.
func (mt MessageType) Opcode() Opcode {
	if mt == Text {
		return OpText
	}
	return OpBinary
}

func (mt MessageType) String() string {
	switch mt {
	case Text:
		return "text"
	case Binary:
		return "binary"
	default:
		return fmt.Sprintf("unknown(%d)", int(mt))
	}
}

// Returns the message type matching a text or binary opcode and false for any other opcode.
func MessageTypeOf(op Opcode) (MessageType, bool) {
	switch op {
	case OpText:
		return Text, true
	case OpBinary:
		return Binary, true
	default:
		return 0, false
	}
}
