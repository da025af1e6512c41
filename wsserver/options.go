package wsserver

import (
	"crypto/tls"

	"github.com/gbdevw/gowsrfc/wsconn"
	"github.com/go-playground/validator/v10"
)

// Defines configuration options for a websocket server.
//
// Use the factory function to get a new instance of the struct with nice defaults and then modify
// settings using With*** methods.
type ServerOptions struct {
	// Address to listen on (host:port) when the server is started with Start.
	//
	// Defaults to localhost:8080.
	Address string `validate:"required"`
	// TLS configuration. When set, accepted streams are wrapped in TLS.
	//
	// Defaults to nil (plain TCP).
	TLSConfig *tls.Config `validate:"-"`
	// Max. number of concurrent sessions. The accept loop waits for a session to end once the
	// limit is reached, pending connections stay in the listener backlog.
	//
	// Defaults to 0 (no limit).
	MaxSessions int `validate:"gte=0"`
	// Delay granted to sessions to complete their closing handshake when the server stops
	// (milliseconds).
	//
	// Defaults to 10000. 0 means Stop does not wait for sessions.
	ShutdownTimeoutMs int64 `validate:"gte=0"`
	// Options used by every session.
	Connection *wsconn.ConnectionOptions `validate:"required"`
}

// # Description
//
// Set opts.Address and return the modified object. The method does not validate inputs.
func (opts *ServerOptions) WithAddress(value string) *ServerOptions {
	opts.Address = value
	return opts
}

// # Description
//
// Set opts.TLSConfig and return the modified object.
func (opts *ServerOptions) WithTLSConfig(value *tls.Config) *ServerOptions {
	opts.TLSConfig = value
	return opts
}

// # Description
//
// Set opts.MaxSessions and return the modified object. The method does not validate inputs.
func (opts *ServerOptions) WithMaxSessions(value int) *ServerOptions {
	opts.MaxSessions = value
	return opts
}

// # Description
//
// Set opts.ShutdownTimeoutMs and return the modified object. The method does not validate inputs.
func (opts *ServerOptions) WithShutdownTimeoutMs(value int64) *ServerOptions {
	opts.ShutdownTimeoutMs = value
	return opts
}

// # Description
//
// Set opts.Connection and return the modified object.
func (opts *ServerOptions) WithConnection(value *wsconn.ConnectionOptions) *ServerOptions {
	opts.Connection = value
	return opts
}

// # Description
//
// Factory which creates a new ServerOptions object with nice defaults. Settings can then be
// modified by the user by using With*** methods.
//
// # Default settings
//
//   - Address = localhost:8080
//   - No TLS, no session limit
//   - ShutdownTimeoutMs = 10000
//   - Connection = wsconn.NewConnectionOptions()
func NewServerOptions() *ServerOptions {
	return &ServerOptions{
		Address:           "localhost:8080",
		ShutdownTimeoutMs: 10000,
		Connection:        wsconn.NewConnectionOptions(),
	}
}

// # Description
//
// Helper function which validates ServerOptions, connection options included.
//
// # Returns
//
// InvalidValidationError for bad values passed in and nil or ValidationErrors as error otherwise.
func Validate(opts *ServerOptions) error {
	return validator.New().Struct(opts)
}
