package providers

import (
	"context"
	"testing"
	"time"

	"github.com/gbdevw/gowsrfc/cmd/wsecho/configuration"
	"github.com/gbdevw/gowsrfc/echowsserver"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// Test suite used to check the providers can be wired by fx
type ProvidersTestSuite struct {
	suite.Suite
}

// Run ProvidersTestSuite test suite
func TestProvidersTestSuite(t *testing.T) {
	suite.Run(t, new(ProvidersTestSuite))
}

// Test the echo server is started and stopped by the application lifecycle.
func (suite *ProvidersTestSuite) TestEchoServerLifecycle() {
	config := configuration.Configuration{
		Address:            "localhost:0",
		Subprotocols:       []string{"echo"},
		CompressionEnabled: true,
	}
	var srv *echowsserver.EchoWebsocketServer
	app := fxtest.New(suite.T(),
		fx.Supply(config),
		fx.Provide(ProvideLogger),
		fx.Provide(ProvideTracerProvider),
		fx.Provide(ProvideEchoServer),
		fx.Populate(&srv),
	)
	app.RequireStart()
	require.NotNil(suite.T(), srv.Addr())
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws://"+srv.Addr().String()+"/", &websocket.DialOptions{
		Subprotocols: []string{"echo"},
	})
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), "echo", conn.Subprotocol())
	conn.CloseRead(context.Background())
	app.RequireStop()
	require.Nil(suite.T(), srv.Addr())
}

// Test the tracer provider is the global one when tracing is disabled.
func (suite *ProvidersTestSuite) TestTracingDisabled() {
	var tp trace.TracerProvider
	app := fxtest.New(suite.T(),
		fx.Supply(configuration.Configuration{}),
		fx.Provide(ProvideTracerProvider),
		fx.Populate(&tp),
	)
	defer app.RequireStart().RequireStop()
	require.NotNil(suite.T(), tp)
}

// Test the logger flavor follows the configuration.
func (suite *ProvidersTestSuite) TestLogger() {
	logger, err := ProvideLogger(configuration.Configuration{Production: true})
	require.NoError(suite.T(), err)
	require.False(suite.T(), logger.Core().Enabled(zap.DebugLevel))
	logger, err = ProvideLogger(configuration.Configuration{})
	require.NoError(suite.T(), err)
	require.True(suite.T(), logger.Core().Enabled(zap.DebugLevel))
}
