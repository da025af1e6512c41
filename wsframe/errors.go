package wsframe

import (
	"errors"
	"fmt"
)

/*************************************************************************************************/
/* PROTOCOL ERROR                                                                                */
/*************************************************************************************************/

// Error raised when a peer violates RFC 6455. Code is the close status code the connection
// must be failed with.
type ProtocolError struct {
	// Close status code to use when failing the connection
	Code StatusCode
	// Human readable reason. Can be used as close reason.
	Reason string
}

func (err ProtocolError) Error() string {
	return fmt.Sprintf("websocket protocol error (%d): %s", err.Code, err.Reason)
}

// Helper which builds a ProtocolError with a formatted reason.
func protocolErrorf(code StatusCode, format string, args ...any) ProtocolError {
	return ProtocolError{Code: code, Reason: fmt.Sprintf(format, args...)}
}

/*************************************************************************************************/
/* ENCODING ERRORS                                                                               */
/*************************************************************************************************/

var (
	// Returned when a control frame payload is larger than 125 bytes
	ErrControlFrameTooLong = errors.New("control frame payload must not exceed 125 bytes")
	// Returned when a control frame is not final
	ErrFragmentedControlFrame = errors.New("control frames must not be fragmented")
	// Returned when a reserved opcode is used to encode a frame
	ErrReservedOpcode = errors.New("reserved opcode")
	// Returned when a close reason does not fit in a control frame
	ErrCloseReasonTooLong = errors.New("close reason must not exceed 123 bytes")
	// Returned when a close reason is not valid UTF-8
	ErrCloseReasonNotUTF8 = errors.New("close reason must be valid UTF-8")
	// Returned when a status code cannot be sent on the wire
	ErrInvalidCloseCode = errors.New("invalid close status code")
)
