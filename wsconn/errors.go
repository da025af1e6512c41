package wsconn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"

	"github.com/gbdevw/gowsrfc/wsframe"
	"github.com/gbdevw/gowsrfc/wshandshake"
)

var (
	// Returned when sending on a connection which is not open
	ErrNotOpen = errors.New("websocket connection is not open")
	// Returned when Connect or Accept is called more than once
	ErrAlreadyConnected = errors.New("websocket connection has already been started")
	// No frame received before the keep-alive timeout
	ErrKeepAliveTimeout = errors.New("keep-alive timeout")
	// Peer did not complete the closing handshake in time
	ErrCloseTimeout = errors.New("closing handshake timeout")
	// No dispatcher is registered for the requested path
	ErrRouteNotFound = errors.New("no route for requested path")
	// Too many messages received in a short period of time
	ErrRateLimited = errors.New("inbound message rate exceeded")
)

/*************************************************************************************************/
/* CONNECT ERROR                                                                                 */
/*************************************************************************************************/

// Specific error type for errors which occur while a connection is being established
// (transport connect, TLS handshake or opening handshake).
type ConnectError struct {
	// Embedded error
	Err error
}

func (err ConnectError) Error() string {
	return fmt.Sprintf("websocket connection failed: %v", err.Err)
}

func (err ConnectError) Unwrap() error {
	return err.Err
}

/*************************************************************************************************/
/* CLOSE ERROR                                                                                   */
/*************************************************************************************************/

// Describes why a connection has ended. It is passed to OnDisconnected and returned by Wait.
//
// Code and Reason come from the close frame when the closing handshake took place. Otherwise
// Code is AbnormalClosure (1006) and Err holds the cause.
type CloseError struct {
	// Close status code
	Code wsframe.StatusCode
	// Close reason
	Reason string
	// Cause of the teardown if any
	Err error
}

func (err *CloseError) Error() string {
	if err.Err != nil {
		return fmt.Sprintf("websocket connection closed (%d %s): %v", err.Code, err.Reason, err.Err)
	}
	return fmt.Sprintf("websocket connection closed (%d %s)", err.Code, err.Reason)
}

func (err *CloseError) Unwrap() error {
	return err.Err
}

/*************************************************************************************************/
/* CALLBACK ERROR                                                                                */
/*************************************************************************************************/

// Error returned or panic raised by a dispatcher callback.
type CallbackError struct {
	// Name of the callback
	Callback string
	// Embedded error
	Err error
}

func (err CallbackError) Error() string {
	return fmt.Sprintf("%s callback failed: %v", err.Callback, err.Err)
}

func (err CallbackError) Unwrap() error {
	return err.Err
}

/*************************************************************************************************/
/* ERROR CLASSIFICATION                                                                          */
/*************************************************************************************************/

// Category of an error raised by a connection.
type ErrorKind int

const (
	// Stream failures and ordinary disconnections
	KindTransport ErrorKind = iota
	// Peer violated RFC 6455
	KindProtocol
	// Opening handshake failed
	KindHandshake
	// Raised by a dispatcher callback
	KindApplication
	// Anything else
	KindInternal
)

func (kind ErrorKind) String() string {
	switch kind {
	case KindTransport:
		return "transport"
	case KindProtocol:
		return "protocol"
	case KindHandshake:
		return "handshake"
	case KindApplication:
		return "application"
	default:
		return "internal"
	}
}

// # Description
//
// Classify an error raised by the package. Wrappers like ConnectError or CloseError are looked
// through. Handshake, protocol and callback causes take precedence over transport causes.
func ClassifyError(err error) ErrorKind {
	var perr wsframe.ProtocolError
	var herr *wshandshake.HandshakeError
	var cerr CallbackError
	switch {
	case errors.As(err, &herr):
		return KindHandshake
	case errors.As(err, &perr):
		return KindProtocol
	case errors.As(err, &cerr):
		return KindApplication
	case isDisconnection(err),
		errors.Is(err, ErrKeepAliveTimeout),
		errors.Is(err, ErrCloseTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return KindTransport
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return KindTransport
	}
	return KindInternal
}

// Whether err signals an ordinary disconnection of the underlying stream.
func isDisconnection(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, os.ErrDeadlineExceeded) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE)
}
