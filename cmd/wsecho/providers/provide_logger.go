package providers

import (
	"github.com/gbdevw/gowsrfc/cmd/wsecho/configuration"
	"go.uber.org/zap"
)

func ProvideLogger(config configuration.Configuration) (*zap.Logger, error) {
	if config.Production {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
