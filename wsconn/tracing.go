package wsconn

import "github.com/gbdevw/gowsrfc/internal/tracing"

/*************************************************************************************************/
/* TRACING RELATED CONSTANTS                                                                     */
/*************************************************************************************************/

// Constants used for tracing purpose.
const (
	// Package name used by library tracer
	pkgName = "wsconn"
	// Package version
	pkgVersion = "0.0.0"

	// Namespace used by spans, events and attributes
	namespace = "wsconn"
	// Sub-namespace used by spans related to user provided callbacks
	callbacksNamespace = namespace + ".callback"

	// Name of span used to trace Client.Connect
	spanConnect = namespace + ".connect"
	// Name of span used to trace Session.Accept
	spanAccept = namespace + ".accept"
	// Name of span used to trace Send methods
	spanSend = namespace + ".send"
	// Name of span used to trace Close
	spanClose = namespace + ".close"
	// Name of span used to trace OnConnected callback call
	spanOnConnected = callbacksNamespace + ".on_connected"
	// Name of span used to trace OnText callback call
	spanOnText = callbacksNamespace + ".on_text"
	// Name of span used to trace OnBinary callback call
	spanOnBinary = callbacksNamespace + ".on_binary"
	// Name of span used to trace OnFragmentOpened callback call
	spanOnFragmentOpened = callbacksNamespace + ".on_fragment_opened"
	// Name of span used to trace OnFragmentContinued callback call
	spanOnFragmentContinued = callbacksNamespace + ".on_fragment_continued"
	// Name of span used to trace OnFragmentClosed callback call
	spanOnFragmentClosed = callbacksNamespace + ".on_fragment_closed"
	// Name of span used to trace OnDisconnected callback call
	spanOnDisconnected = callbacksNamespace + ".on_disconnected"

	// Event used in span to signal the transport connection is up
	eventTransportConnected = namespace + ".transport_connected"
	// Event used in span to signal the TLS handshake has completed
	eventTLSHandshakeDone = namespace + ".tls_handshake_done"

	// Attribute used to store the session ID
	attrSessionId = namespace + ".session_id"
	// Attribute used to store the target URL
	attrTarget = namespace + ".target"
	// Attribute used to store the request path
	attrPath = namespace + ".path"
	// Attribute used to store the negotiated subprotocol
	attrSubprotocol = namespace + ".subprotocol"
	// Attribute used to store the negotiated extensions
	attrExtensions = namespace + ".extensions"
	// Attribute used to indicate close reason code
	attrCloseCode = namespace + ".close_code"
	// Attribute used to indicate close reason
	attrCloseReason = namespace + ".close_reason"
	// Attribute used to indicate message length
	attrMsgLength = namespace + ".message.length"
	// Attribute used to indicate message type
	attrMsgType = namespace + ".message.type"
)

// Span helpers shared with the other library packages.
var (
	handleError          = tracing.HandleError
	handlePotentialError = tracing.HandlePotentialError
)
