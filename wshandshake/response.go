package wshandshake

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/valyala/bytebufferpool"
)

/*************************************************************************************************/
/* SERVER SIDE: BUILD RESPONSE                                                                   */
/*************************************************************************************************/

// # Description
//
// Build a 101 Switching Protocols response.
//
// # Inputs
//
//   - accept: Sec-WebSocket-Accept value computed with ComputeAcceptKey
//   - extensions: Agreed Sec-WebSocket-Extensions value. Omitted when empty.
//   - protocol: Selected subprotocol. Omitted when empty.
func BuildSwitchingProtocolsResponse(accept string, extensions string, protocol string) []byte {
	bb := bytebufferpool.Get()
	defer bytebufferpool.Put(bb)
	bb.WriteString("HTTP/1.1 101 Switching Protocols\r\n")
	writeHeader(bb, HeaderUpgrade, "websocket")
	writeHeader(bb, HeaderConnection, "Upgrade")
	writeHeader(bb, HeaderAccept, accept)
	if extensions != "" {
		writeHeader(bb, HeaderExtensions, extensions)
	}
	if protocol != "" {
		writeHeader(bb, HeaderProtocol, protocol)
	}
	bb.WriteString("\r\n")
	return append([]byte(nil), bb.B...)
}

// # Description
//
// Build the 400 Bad Request response sent when a handshake fails. Upgrade, Connection and
// Sec-WebSocket-Version headers are informational.
func BuildBadRequestResponse() []byte {
	bb := bytebufferpool.Get()
	defer bytebufferpool.Put(bb)
	bb.WriteString("HTTP/1.1 400 Bad Request\r\n")
	writeHeader(bb, HeaderUpgrade, "websocket")
	writeHeader(bb, HeaderConnection, "Upgrade")
	writeHeader(bb, HeaderVersion, SupportedVersion)
	writeHeader(bb, "Content-Length", "0")
	bb.WriteString("\r\n")
	return append([]byte(nil), bb.B...)
}

/*************************************************************************************************/
/* CLIENT SIDE: PARSE & VERIFY RESPONSE                                                          */
/*************************************************************************************************/

// Opening handshake response received by a client.
type Response struct {
	// Protocol version
	Proto string
	// Status code
	StatusCode int
	// Reason phrase
	Reason string
	// Header section
	Header *Header
}

// # Description
//
// Parse the head of a handshake response (as returned by ReadHandshake).
func ParseResponse(head []byte) (*Response, error) {
	line, header, err := parseHead(head)
	if err != nil {
		return nil, &HandshakeError{Err: err}
	}
	proto, rest, ok := strings.Cut(line, " ")
	if !ok || !strings.HasPrefix(proto, "HTTP/") {
		return nil, &HandshakeError{Err: ErrMalformedStatusLine}
	}
	codeStr, reason, _ := strings.Cut(rest, " ")
	code, err := strconv.Atoi(codeStr)
	if err != nil || len(codeStr) != 3 {
		return nil, &HandshakeError{Err: ErrMalformedStatusLine}
	}
	return &Response{
		Proto:      proto,
		StatusCode: code,
		Reason:     reason,
		Header:     header,
	}, nil
}

// # Description
//
// Verify the handshake response received by a client: status 101, Upgrade: websocket,
// Connection: Upgrade and a Sec-WebSocket-Accept matching the key sent in the request. The accept
// value is compared case-insensitively.
//
// # Returns
//
// Nil or a HandshakeError.
func VerifyServerResponse(resp *Response, key string) error {
	if resp.StatusCode != 101 {
		return &HandshakeError{Err: fmt.Errorf("%w: %d %s", ErrUnexpectedStatus, resp.StatusCode, resp.Reason)}
	}
	if !ContainsToken(resp.Header.Get(HeaderUpgrade), "websocket") {
		return &HandshakeError{Err: ErrMissingUpgrade}
	}
	if !ContainsToken(resp.Header.Get(HeaderConnection), "upgrade") {
		return &HandshakeError{Err: ErrMissingConnectionUpgrade}
	}
	accept := strings.TrimSpace(resp.Header.Get(HeaderAccept))
	if accept == "" {
		return &HandshakeError{Err: ErrMissingSecAccept}
	}
	if !strings.EqualFold(accept, ComputeAcceptKey(key)) {
		return &HandshakeError{Err: ErrSecAcceptMismatch}
	}
	return nil
}
