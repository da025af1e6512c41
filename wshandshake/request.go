package wshandshake

import (
	"net/url"
	"strings"

	"github.com/valyala/bytebufferpool"
)

/*************************************************************************************************/
/* CLIENT SIDE: BUILD REQUEST                                                                    */
/*************************************************************************************************/

// Content of an opening handshake request sent by a client.
type ClientRequest struct {
	// Value of the Host header (host[:port])
	Host string
	// Path and optional query (e.g. /chat?room=1). Defaults to /.
	RequestURI string
	// Sec-WebSocket-Key generated with NewSecWebSocketKey
	Key string
	// Optional Sec-WebSocket-Extensions value
	Extensions string
	// Optional subprotocols, in order of preference
	Protocols []string
	// Optional additional headers
	Header *Header
}

// # Description
//
// Build the bytes of a client opening handshake request.
func BuildClientRequest(req ClientRequest) []byte {
	bb := bytebufferpool.Get()
	defer bytebufferpool.Put(bb)
	uri := req.RequestURI
	if uri == "" {
		uri = "/"
	}
	bb.WriteString("GET ")
	bb.WriteString(uri)
	bb.WriteString(" HTTP/1.1\r\n")
	writeHeader(bb, HeaderHost, req.Host)
	writeHeader(bb, HeaderUpgrade, "websocket")
	writeHeader(bb, HeaderConnection, "Upgrade")
	writeHeader(bb, HeaderKey, req.Key)
	writeHeader(bb, HeaderVersion, SupportedVersion)
	if req.Extensions != "" {
		writeHeader(bb, HeaderExtensions, req.Extensions)
	}
	if len(req.Protocols) > 0 {
		writeHeader(bb, HeaderProtocol, strings.Join(req.Protocols, ", "))
	}
	req.Header.Each(func(name string, value string) {
		writeHeader(bb, name, value)
	})
	bb.WriteString("\r\n")
	return append([]byte(nil), bb.B...)
}

// Write a "name: value" header line.
func writeHeader(bb *bytebufferpool.ByteBuffer, name string, value string) {
	bb.WriteString(name)
	bb.WriteString(": ")
	bb.WriteString(value)
	bb.WriteString("\r\n")
}

/*************************************************************************************************/
/* SERVER SIDE: PARSE & VERIFY REQUEST                                                           */
/*************************************************************************************************/

// Opening handshake request received by a server.
type Request struct {
	// Request method
	Method string
	// Request target as found in the request line
	RequestURI string
	// Protocol version (HTTP/1.1)
	Proto string
	// Path extracted from the request target
	Path string
	// Raw query (without '?') extracted from the request target
	RawQuery string
	// Header section
	Header *Header
}

// # Description
//
// Parse the head of a handshake request (as returned by ReadHandshake).
//
// # Returns
//
// The parsed request or a HandshakeError (status 400) if the request line or a header line is
// malformed.
func ParseRequest(head []byte) (*Request, error) {
	line, header, err := parseHead(head)
	if err != nil {
		return nil, badRequest(err)
	}
	parts := strings.Split(line, " ")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return nil, badRequest(ErrMalformedRequestLine)
	}
	target, err := url.ParseRequestURI(parts[1])
	if err != nil {
		return nil, badRequest(ErrMalformedRequestLine)
	}
	path := target.Path
	if path == "" {
		path = "/"
	}
	return &Request{
		Method:     parts[0],
		RequestURI: parts[1],
		Proto:      parts[2],
		Path:       path,
		RawQuery:   target.RawQuery,
		Header:     header,
	}, nil
}

// # Description
//
// Verify a handshake request received by a server: GET, HTTP/1.1, Host, Connection: Upgrade,
// Upgrade: websocket, non-empty Sec-WebSocket-Key and Sec-WebSocket-Version 13.
//
// # Returns
//
// The Sec-WebSocket-Key or a HandshakeError (status 400).
func VerifyClientRequest(req *Request) (string, error) {
	if req.Method != "GET" {
		return "", badRequest(ErrInvalidMethod)
	}
	if req.Proto != "HTTP/1.1" {
		return "", badRequest(ErrInvalidProtocol)
	}
	if req.Header.Get(HeaderHost) == "" {
		return "", badRequest(ErrMissingHost)
	}
	if !ContainsToken(req.Header.Get(HeaderConnection), "upgrade") {
		return "", badRequest(ErrMissingConnectionUpgrade)
	}
	if !ContainsToken(req.Header.Get(HeaderUpgrade), "websocket") {
		return "", badRequest(ErrMissingUpgrade)
	}
	key := strings.TrimSpace(req.Header.Get(HeaderKey))
	if key == "" {
		return "", badRequest(ErrMissingSecKey)
	}
	if strings.TrimSpace(req.Header.Get(HeaderVersion)) != SupportedVersion {
		return "", badRequest(ErrInvalidSecVersion)
	}
	return key, nil
}
