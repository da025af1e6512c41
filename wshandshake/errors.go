// Package wshandshake implements the RFC 6455 opening handshake: building, parsing and verifying
// the HTTP upgrade request and response for both client and server roles.
//
// Only the minimal HTTP/1.1 subset needed by the handshake is supported.
package wshandshake

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// Request line is not 'GET <request-uri> HTTP/1.1'
	ErrMalformedRequestLine = errors.New("malformed request line")
	// Status line is not 'HTTP/1.1 <code> <reason>'
	ErrMalformedStatusLine = errors.New("malformed status line")
	// Header line without colon or with an empty name
	ErrMalformedHeader = errors.New("malformed header line")
	// Request method is not GET
	ErrInvalidMethod = errors.New("request method must be GET")
	// Request protocol is not HTTP/1.1
	ErrInvalidProtocol = errors.New("request protocol must be HTTP/1.1")
	// Host header is missing
	ErrMissingHost = errors.New("missing Host header")
	// Upgrade header is missing or is not websocket
	ErrMissingUpgrade = errors.New("missing or invalid Upgrade header")
	// Connection header is missing or does not contain the Upgrade token
	ErrMissingConnectionUpgrade = errors.New("missing or invalid Connection header")
	// Sec-WebSocket-Key header is missing or empty
	ErrMissingSecKey = errors.New("missing Sec-WebSocket-Key header")
	// Sec-WebSocket-Version is not 13
	ErrInvalidSecVersion = errors.New("invalid Sec-WebSocket-Version")
	// Server answered with a status other than 101
	ErrUnexpectedStatus = errors.New("unexpected handshake response status")
	// Sec-WebSocket-Accept header is missing
	ErrMissingSecAccept = errors.New("missing Sec-WebSocket-Accept header")
	// Sec-WebSocket-Accept does not match the key
	ErrSecAcceptMismatch = errors.New("Sec-WebSocket-Accept mismatch")
	// Handshake exceeds the size limit before the end of the header section
	ErrHandshakeTooLarge = errors.New("handshake exceeds size limit")
	// Stream closed before the end of the header section
	ErrIncompleteHandshake = errors.New("stream closed during handshake")
)

// Error raised when the opening handshake fails. Status is the HTTP status a server answers with.
type HandshakeError struct {
	// Embedded error
	Err error
	// HTTP status code
	Status int
}

func (err *HandshakeError) Error() string {
	return fmt.Sprintf("websocket handshake failed: %v", err.Err)
}

func (err *HandshakeError) Unwrap() error {
	return err.Err
}

// Helper which wraps err in a HandshakeError with status 400.
func badRequest(err error) *HandshakeError {
	return &HandshakeError{Err: err, Status: http.StatusBadRequest}
}
