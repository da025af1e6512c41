package wsframe

/*************************************************************************************************/
/* CLOSE STATUS CODES                                                                            */
/*************************************************************************************************/

// RFC 6455 close status codes.
//
// RFC: https://www.rfc-editor.org/rfc/rfc6455.html#section-7.4.1
//
// Code names are inspired by: https://www.iana.org/assignments/websocket/websocket.xhtml
type StatusCode int

const (
	// 1000 indicates a normal closure, meaning that the purpose for which the connection was
	// established has been fulfilled.
	NormalClosure StatusCode = 1000
	// 1001 indicates that an endpoint is "going away", such as a server going down.
	GoingAway StatusCode = 1001
	// 1002 indicates that an endpoint is terminating the connection due to a protocol error.
	ProtocolErrorCode StatusCode = 1002
	// 1003 indicates that an endpoint received a type of data it cannot accept.
	UnsupportedData StatusCode = 1003
	// 1005 is reserved and MUST NOT be sent. Used locally when a close frame had no status code.
	NoStatusReceived StatusCode = 1005
	// 1006 is reserved and MUST NOT be sent. Used locally when the connection was closed
	// abnormally, without sending or receiving a close frame.
	AbnormalClosure StatusCode = 1006
	// 1007 indicates that a message contained data not consistent with its type (e.g.,
	// non-UTF-8 data within a text message).
	InvalidFramePayloadData StatusCode = 1007
	// 1008 indicates that a message violates the endpoint policy.
	PolicyViolation StatusCode = 1008
	// 1009 indicates that a message is too big to be processed.
	MessageTooBig StatusCode = 1009
	// 1010 indicates that the client expected the server to negotiate one or more extensions.
	MandatoryExtension StatusCode = 1010
	// 1011 indicates that the server encountered an unexpected condition.
	InternalError StatusCode = 1011
	// 1012 indicates that the service is restarted.
	ServiceRestart StatusCode = 1012
	// 1013 indicates that the service is experiencing overload.
	TryAgainLater StatusCode = 1013
	// 1014 indicates that the server acting as a gateway received an invalid response.
	BadGateway StatusCode = 1014
	// 1015 is reserved and MUST NOT be sent. Used locally when the TLS handshake failed.
	TLSHandshake StatusCode = 1015
)

// # Description
//
// Returns true if the status code can be carried by a close frame sent on the wire.
//
// Valid codes are 1000-1003, 1007-1014 and the 3000-4999 range reserved for libraries,
// frameworks and applications. Reserved codes (1004, 1005, 1006, 1015) and unassigned codes are
// rejected.
func (code StatusCode) IsValidOnWire() bool {
	switch {
	case code >= NormalClosure && code <= UnsupportedData:
		return true
	case code >= InvalidFramePayloadData && code <= BadGateway:
		return true
	case code >= 3000 && code <= 4999:
		return true
	default:
		return false
	}
}
