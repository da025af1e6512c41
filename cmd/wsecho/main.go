// Echo websocket server. The server is configured with WSECHO_* environment variables.
package main

import (
	"github.com/gbdevw/gowsrfc/cmd/wsecho/configuration"
	"github.com/gbdevw/gowsrfc/cmd/wsecho/providers"
	"github.com/gbdevw/gowsrfc/echowsserver"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	fx.New(
		fx.Provide(configuration.LoadConfiguration),
		fx.Provide(providers.ProvideLogger),
		fx.Provide(providers.ProvideTracerProvider),
		fx.Provide(providers.ProvideEchoServer),
		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger}
		}),
		// Use invoke to force dependency to be instanciated and hooks to be registered and executed
		fx.Invoke(func(*echowsserver.EchoWebsocketServer) {}),
	).Run()
}
