// This package contains the implementation of a simple echo websocket server: text and binary
// messages are sent back to the client as they are received, fragmented messages included.
package echowsserver

import (
	"context"

	"github.com/gbdevw/gowsrfc/wsconn"
	"github.com/gbdevw/gowsrfc/wsframe"
	"github.com/gbdevw/gowsrfc/wsserver"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Dispatcher which echoes every message back to the client.
type EchoDispatcher struct {
	logger *zap.Logger
}

// # Description
//
// Factory which creates a new EchoDispatcher.
//
// # Inputs
//
//   - logger: Logger to use. If nil, logs are discarded.
func NewEchoDispatcher(logger *zap.Logger) *EchoDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EchoDispatcher{logger: logger}
}

func (d *EchoDispatcher) OnConnected(ctx context.Context, conn *wsconn.Conn) error {
	d.logger.Info("new client connection",
		zap.String("session_id", conn.ID()),
		zap.String("subprotocol", conn.Subprotocol()),
		zap.Strings("extensions", conn.Extensions()))
	return nil
}

func (d *EchoDispatcher) OnText(ctx context.Context, conn *wsconn.Conn, msg string) error {
	d.logger.Debug("text message received", zap.String("session_id", conn.ID()), zap.Int("length", len(msg)))
	return conn.SendText(ctx, msg)
}

func (d *EchoDispatcher) OnBinary(ctx context.Context, conn *wsconn.Conn, msg []byte) error {
	d.logger.Debug("binary message received", zap.String("session_id", conn.ID()), zap.Int("length", len(msg)))
	return conn.SendBinary(ctx, msg)
}

func (d *EchoDispatcher) OnFragmentOpened(ctx context.Context, conn *wsconn.Conn, msgType wsframe.MessageType, chunk []byte) error {
	return conn.SendFragment(ctx, msgType, chunk, true, false)
}

func (d *EchoDispatcher) OnFragmentContinued(ctx context.Context, conn *wsconn.Conn, chunk []byte) error {
	return conn.SendFragment(ctx, 0, chunk, false, false)
}

func (d *EchoDispatcher) OnFragmentClosed(ctx context.Context, conn *wsconn.Conn, chunk []byte) error {
	return conn.SendFragment(ctx, 0, chunk, false, true)
}

func (d *EchoDispatcher) OnDisconnected(ctx context.Context, conn *wsconn.Conn, err error) {
	d.logger.Info("connection closed", zap.String("session_id", conn.ID()), zap.Error(err))
}

// Structure for the echo websocket server
type EchoWebsocketServer struct {
	*wsserver.Server
}

// # Description
//
// Factory which creates a new, non-started EchoWebsocketServer. Every request path is served
// with the echo dispatcher.
//
// # Inputs
//
//   - opts: Server options. If nil, default options are used (localhost:8080).
//   - logger: Logger to use. If nil, logs are discarded.
//   - tracerProvider: Tracer provider to use. If nil, global TracerProvider is used.
//   - meterProvider: Meter provider to use. If nil, global MeterProvider is used.
//
// # Returns
//
// A new, non-started EchoWebsocketServer or an error if any has occured.
func NewEchoWebsocketServer(
	opts *wsserver.ServerOptions,
	logger *zap.Logger,
	tracerProvider trace.TracerProvider,
	meterProvider metric.MeterProvider) (*EchoWebsocketServer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	srv, err := wsserver.NewServer(
		wsconn.SingleRoute(NewEchoDispatcher(logger)),
		opts,
		logger,
		tracerProvider,
		meterProvider)
	if err != nil {
		return nil, err
	}
	return &EchoWebsocketServer{Server: srv}, nil
}
