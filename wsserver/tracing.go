package wsserver

import "github.com/gbdevw/gowsrfc/internal/tracing"

/*************************************************************************************************/
/* TRACING & METRICS RELATED CONSTANTS                                                           */
/*************************************************************************************************/

// Constants used for tracing and metrics purpose.
const (
	// Package name used by library tracer and meter
	pkgName = "wsserver"
	// Package version
	pkgVersion = "0.0.0"

	// Namespace used by spans, events, attributes and metrics
	namespace = "wsserver"

	// Name of span used to trace Start
	spanStart = namespace + ".start"
	// Name of span used to trace Stop
	spanStop = namespace + ".stop"
	// Name of span used to trace CloseAll
	spanCloseAll = namespace + ".close_all"
	// Name of span used to trace Broadcast
	spanBroadcast = namespace + ".broadcast"

	// Attribute used to store the listen address
	attrAddress = namespace + ".address"
	// Attribute used to store the number of targeted sessions
	attrSessionCount = namespace + ".session_count"
	// Attribute used to indicate close reason code
	attrCloseCode = namespace + ".close_code"

	// Gauge: number of open sessions
	metricActiveSessions = namespace + ".sessions.active"
	// Gauge: server start time (unix seconds)
	metricStartUnix = namespace + ".start_unix"
	// Gauge: 1 when the server is started, 0 otherwise
	metricStarted = namespace + ".started"
	// Counter: sessions accepted since the server has started
	metricAcceptedSessions = namespace + ".sessions.accepted"
	// Counter: failed opening handshakes
	metricHandshakeFailures = namespace + ".handshake.failures"
)

// Span helpers shared with the other library packages.
var (
	handleError          = tracing.HandleError
	handlePotentialError = tracing.HandlePotentialError
)
