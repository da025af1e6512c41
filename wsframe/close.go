package wsframe

import (
	"encoding/binary"
	"unicode/utf8"
)

// Max. length of a close reason: control frame payload minus the 2 bytes status code.
const MaxCloseReasonLength = MaxControlPayloadLength - 2

// # Description
//
// Build the payload of a close frame.
//
// NoStatusReceived produces an empty payload (close frame without status code). Any other code
// must be valid on the wire and the reason must be valid UTF-8 and fit in a control frame.
func BuildClosePayload(code StatusCode, reason string) ([]byte, error) {
	if code == NoStatusReceived {
		if reason != "" {
			return nil, ErrInvalidCloseCode
		}
		return []byte{}, nil
	}
	if !code.IsValidOnWire() {
		return nil, ErrInvalidCloseCode
	}
	if len(reason) > MaxCloseReasonLength {
		return nil, ErrCloseReasonTooLong
	}
	if !utf8.ValidString(reason) {
		return nil, ErrCloseReasonNotUTF8
	}
	payload := make([]byte, 2+len(reason))
	binary.BigEndian.PutUint16(payload, uint16(code))
	copy(payload[2:], reason)
	return payload, nil
}

// # Description
//
// Parse the payload of a received close frame.
//
// # Returns
//
//   - NoStatusReceived and an empty reason for an empty payload.
//   - A ProtocolError with InvalidFramePayloadData for a 1 byte payload or a reason which is not
//     valid UTF-8.
//   - A ProtocolError with ProtocolErrorCode for a status code which cannot be used on the wire.
func ParseClosePayload(payload []byte) (StatusCode, string, error) {
	switch len(payload) {
	case 0:
		return NoStatusReceived, "", nil
	case 1:
		return 0, "", protocolErrorf(InvalidFramePayloadData, "close frame payload of 1 byte")
	}
	code := StatusCode(binary.BigEndian.Uint16(payload[:2]))
	if !code.IsValidOnWire() {
		return 0, "", protocolErrorf(ProtocolErrorCode, "invalid close status code %d", code)
	}
	reason := payload[2:]
	if !utf8.Valid(reason) {
		return 0, "", protocolErrorf(InvalidFramePayloadData, "close reason is not valid UTF-8")
	}
	return code, string(reason), nil
}
