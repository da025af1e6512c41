package providers

import (
	"context"

	"github.com/gbdevw/gowsrfc/cmd/wsecho/configuration"
	"github.com/gbdevw/gowsrfc/echowsserver"
	"github.com/gbdevw/gowsrfc/wsconn"
	"github.com/gbdevw/gowsrfc/wsext"
	"github.com/gbdevw/gowsrfc/wsserver"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func ProvideEchoServer(
	lc fx.Lifecycle,
	config configuration.Configuration,
	logger *zap.Logger,
	tracerProvider trace.TracerProvider) (*echowsserver.EchoWebsocketServer, error) {
	connOpts := wsconn.NewConnectionOptions().
		WithKeepAliveIntervalMs(config.KeepAliveIntervalMs).
		WithSubprotocols(config.Subprotocols...)
	if config.CompressionEnabled {
		connOpts = connOpts.WithExtensions(wsext.NewPerMessageDeflate())
	}
	opts := wsserver.NewServerOptions().
		WithAddress(config.Address).
		WithMaxSessions(config.MaxSessions).
		WithConnection(connOpts)
	srv, err := echowsserver.NewEchoWebsocketServer(opts, logger, tracerProvider, nil)
	if err != nil {
		return nil, err
	}
	// Register Start and Stop hooks to Start and Stop the server
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return srv.Start()
		},
		OnStop: func(ctx context.Context) error {
			return srv.Stop()
		},
	})
	return srv, nil
}
