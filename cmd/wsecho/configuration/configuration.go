package configuration

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Configuration of the echo server, loaded from WSECHO_* environment variables.
type Configuration struct {
	// Address the server listens on (WSECHO_ADDRESS). Defaults to 0.0.0.0:8081.
	Address string `validate:"required"`
	// Max. number of concurrent sessions (WSECHO_MAX_SESSIONS). Defaults to 0 (no limit).
	MaxSessions int `validate:"gte=0"`
	// Supported subprotocols, comma separated (WSECHO_SUBPROTOCOLS).
	Subprotocols []string `validate:"dive,required"`
	// Indicates whether permessage-deflate is offered (WSECHO_COMPRESSION_ENABLED).
	CompressionEnabled bool
	// Keep-alive period (WSECHO_KEEPALIVE_INTERVAL_MS). Defaults to 30000, 0 disables keep-alive.
	KeepAliveIntervalMs int64 `validate:"gte=0"`
	// Indicates whether production logging is used (WSECHO_PRODUCTION)
	Production bool
	// Indicates whether tracing is enabled or not (WSECHO_TRACING_ENABLED)
	TracingEnabled bool
	// Endpoint of the OTLP/HTTP tracing backend (WSECHO_TRACING_ENDPOINT)
	TracingEndpoint string `validate:"required_if=TracingEnabled true"`
}

// # Description
//
// Load the configuration from environment variables and validate it.
//
// # Returns
//
// The configuration or an error if a variable cannot be parsed or the configuration is invalid.
func LoadConfiguration() (Configuration, error) {
	config := Configuration{
		Address:             getenv("WSECHO_ADDRESS", "0.0.0.0:8081"),
		Subprotocols:        splitList(os.Getenv("WSECHO_SUBPROTOCOLS")),
		TracingEndpoint:     os.Getenv("WSECHO_TRACING_ENDPOINT"),
		KeepAliveIntervalMs: 30000,
	}
	var err error
	if config.MaxSessions, err = strconv.Atoi(getenv("WSECHO_MAX_SESSIONS", "0")); err != nil {
		return Configuration{}, fmt.Errorf("invalid WSECHO_MAX_SESSIONS: %w", err)
	}
	if value := os.Getenv("WSECHO_KEEPALIVE_INTERVAL_MS"); value != "" {
		if config.KeepAliveIntervalMs, err = strconv.ParseInt(value, 10, 64); err != nil {
			return Configuration{}, fmt.Errorf("invalid WSECHO_KEEPALIVE_INTERVAL_MS: %w", err)
		}
	}
	if config.CompressionEnabled, err = parseFlag("WSECHO_COMPRESSION_ENABLED", true); err != nil {
		return Configuration{}, err
	}
	if config.Production, err = parseFlag("WSECHO_PRODUCTION", false); err != nil {
		return Configuration{}, err
	}
	if config.TracingEnabled, err = parseFlag("WSECHO_TRACING_ENABLED", false); err != nil {
		return Configuration{}, err
	}
	if err := validator.New().Struct(config); err != nil {
		return Configuration{}, err
	}
	return config, nil
}

func getenv(key string, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

// Parse a boolean variable (true/false/1/0).
func parseFlag(key string, fallback bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	flag, err := strconv.ParseBool(strings.ToLower(value))
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return flag, nil
}

// Split a comma separated list. Empty items are dropped.
func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
