package wsconn

import (
	"crypto/tls"
	"net"
	"testing"

	"github.com/gbdevw/gowsrfc/wsext"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

/*************************************************************************************************/
/* TEST SUITES                                                                                   */
/*************************************************************************************************/

// Test suite used for ConnectionOptions unit tests
type ConnectionOptionsUnitTestSuite struct {
	suite.Suite
}

// Run ConnectionOptionsUnitTestSuite test suite
func TestConnectionOptionsUnitTestSuite(t *testing.T) {
	suite.Run(t, new(ConnectionOptionsUnitTestSuite))
}

/*************************************************************************************************/
/* UNIT TESTS                                                                                    */
/*************************************************************************************************/

// Test methods used to set options.
func (suite *ConnectionOptionsUnitTestSuite) TestSetters() {
	// Expectations
	expectedTLSConfig := &tls.Config{ServerName: "example.com"}
	expectedDialer := &net.Dialer{}
	expectedExtension := wsext.NewPerMessageDeflate()
	// Create options with default settings and set options
	opts := NewConnectionOptions().
		WithReceiveBufferSize(1024).
		WithMaxFramePayloadSize(2048).
		WithMaxMessageSize(4096).
		WithConnectTimeoutMs(1).
		WithTLSHandshakeTimeoutMs(2).
		WithHandshakeTimeoutMs(3).
		WithCloseTimeoutMs(4).
		WithKeepAliveIntervalMs(5).
		WithKeepAliveTimeoutMs(6).
		WithSubprotocols("chat", "superchat").
		WithExtensions(expectedExtension).
		WithTLSConfig(expectedTLSConfig).
		WithDialer(expectedDialer).
		WithHeader("Origin", "http://localhost").
		WithInboundRateLimit(10, 20)
	// Assertions
	require.Equal(suite.T(), 1024, opts.ReceiveBufferSize)
	require.Equal(suite.T(), int64(2048), opts.MaxFramePayloadSize)
	require.Equal(suite.T(), int64(4096), opts.MaxMessageSize)
	require.Equal(suite.T(), int64(1), opts.ConnectTimeoutMs)
	require.Equal(suite.T(), int64(2), opts.TLSHandshakeTimeoutMs)
	require.Equal(suite.T(), int64(3), opts.HandshakeTimeoutMs)
	require.Equal(suite.T(), int64(4), opts.CloseTimeoutMs)
	require.Equal(suite.T(), int64(5), opts.KeepAliveIntervalMs)
	require.Equal(suite.T(), int64(6), opts.KeepAliveTimeoutMs)
	require.Equal(suite.T(), []string{"chat", "superchat"}, opts.Subprotocols)
	require.Len(suite.T(), opts.Extensions, 1)
	require.Same(suite.T(), expectedTLSConfig, opts.TLSConfig)
	require.Equal(suite.T(), expectedDialer, opts.Dialer)
	require.Equal(suite.T(), map[string]string{"Origin": "http://localhost"}, opts.Header)
	require.Equal(suite.T(), float64(10), opts.InboundMessagesPerSecond)
	require.Equal(suite.T(), 20, opts.InboundBurst)
	require.NoError(suite.T(), Validate(opts))
}

// Test option validation
func (suite *ConnectionOptionsUnitTestSuite) TestValidate() {
	// Validate default options are valid
	require.NoError(suite.T(), Validate(NewConnectionOptions()))
	// Invalid values
	invalid := []*ConnectionOptions{
		NewConnectionOptions().WithReceiveBufferSize(-1),
		NewConnectionOptions().WithMaxFramePayloadSize(-1),
		NewConnectionOptions().WithMaxMessageSize(-1),
		NewConnectionOptions().WithConnectTimeoutMs(-1),
		NewConnectionOptions().WithTLSHandshakeTimeoutMs(-1),
		NewConnectionOptions().WithHandshakeTimeoutMs(-1),
		NewConnectionOptions().WithCloseTimeoutMs(-1),
		NewConnectionOptions().WithKeepAliveIntervalMs(-1),
		NewConnectionOptions().WithKeepAliveTimeoutMs(0),
		NewConnectionOptions().WithSubprotocols("chat", ""),
		NewConnectionOptions().WithInboundRateLimit(-1, 0),
		NewConnectionOptions().WithInboundRateLimit(1, -1),
	}
	for _, opts := range invalid {
		require.Error(suite.T(), Validate(opts))
	}
	// Nil options
	require.Error(suite.T(), Validate(nil))
}
