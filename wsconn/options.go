package wsconn

import (
	"context"
	"crypto/tls"
	"net"

	"github.com/gbdevw/gowsrfc/wsext"
	"github.com/go-playground/validator/v10"
)

// Interface used by clients to open the underlying stream. *net.Dialer implements it.
type Dialer interface {
	DialContext(ctx context.Context, network string, address string) (net.Conn, error)
}

// Defines configuration options for a websocket connection (client or server session).
//
// Use the factory function to get a new instance of the struct with nice defaults and then modify
// settings using With*** methods.
type ConnectionOptions struct {
	// Size of the buffers borrowed to receive data (bytes). Used when no pool is provided.
	//
	// Defaults to 4096. 0 selects the default.
	ReceiveBufferSize int `validate:"gte=0"`
	// Max. payload size of a single frame (bytes). Larger frames fail the connection with 1009
	// before any allocation.
	//
	// Defaults to 16 MiB. 0 disables the limit.
	MaxFramePayloadSize int64 `validate:"gte=0"`
	// Max. size of a message (bytes), fragments and decompression included. Larger messages fail
	// the connection with 1009.
	//
	// Defaults to 32 MiB. 0 disables the limit.
	MaxMessageSize int64 `validate:"gte=0"`
	// Delay to open the transport connection (milliseconds).
	//
	// Defaults to 10000. 0 disables the timeout.
	ConnectTimeoutMs int64 `validate:"gte=0"`
	// Delay to complete the TLS handshake (milliseconds).
	//
	// Defaults to 10000. 0 disables the timeout.
	TLSHandshakeTimeoutMs int64 `validate:"gte=0"`
	// Delay to complete the opening handshake (milliseconds).
	//
	// Defaults to 10000. 0 disables the timeout.
	HandshakeTimeoutMs int64 `validate:"gte=0"`
	// Delay granted to the peer to complete the closing handshake (milliseconds).
	//
	// Defaults to 5000. 0 disables the timeout.
	CloseTimeoutMs int64 `validate:"gte=0"`
	// Period of keep-alive checks (milliseconds). A ping is sent when nothing has been sent or
	// received during a whole period.
	//
	// Defaults to 30000. 0 disables keep-alive.
	KeepAliveIntervalMs int64 `validate:"gte=0"`
	// Delay to receive any frame after a keep-alive ping (milliseconds).
	//
	// Defaults to 10000. Must be at least 1.
	KeepAliveTimeoutMs int64 `validate:"gte=1"`
	// Supported subprotocols, in order of preference.
	Subprotocols []string `validate:"dive,required"`
	// Supported extensions, in order of preference.
	Extensions []wsext.Factory `validate:"-"`
	// TLS configuration used by clients for wss:// targets.
	TLSConfig *tls.Config `validate:"-"`
	// Dialer used by clients. Defaults to a *net.Dialer.
	Dialer Dialer `validate:"-"`
	// Additional headers sent by clients in the opening handshake.
	Header map[string]string `validate:"-"`
	// Max. sustained rate of inbound messages (messages per second). Exceeding the rate fails the
	// connection with 1008.
	//
	// Defaults to 0 (no limit).
	InboundMessagesPerSecond float64 `validate:"gte=0"`
	// Max. burst of inbound messages when the rate limit is enabled.
	//
	// Defaults to 0 (= max(1, InboundMessagesPerSecond)).
	InboundBurst int `validate:"gte=0"`
}

// # Description
//
// Set opts.ReceiveBufferSize and return the modified object. The method does not validate inputs.
func (opts *ConnectionOptions) WithReceiveBufferSize(value int) *ConnectionOptions {
	opts.ReceiveBufferSize = value
	return opts
}

// # Description
//
// Set opts.MaxFramePayloadSize and return the modified object. The method does not validate
// inputs.
//
// # MaxFramePayloadSize
//
// This option defines the max. payload length a frame header can announce. The check is done as
// soon as the header is decoded. A value of 0 disables the limit.
//
// # Return
//
// The modified options.
func (opts *ConnectionOptions) WithMaxFramePayloadSize(value int64) *ConnectionOptions {
	opts.MaxFramePayloadSize = value
	return opts
}

// # Description
//
// Set opts.MaxMessageSize and return the modified object. The method does not validate inputs.
//
// # MaxMessageSize
//
// This option defines the max. size of a whole message: the sum of its fragments or its size once
// decompressed. A value of 0 disables the limit.
//
// # Return
//
// The modified options.
func (opts *ConnectionOptions) WithMaxMessageSize(value int64) *ConnectionOptions {
	opts.MaxMessageSize = value
	return opts
}

// Set opts.ConnectTimeoutMs and return the modified object.
func (opts *ConnectionOptions) WithConnectTimeoutMs(value int64) *ConnectionOptions {
	opts.ConnectTimeoutMs = value
	return opts
}

// Set opts.TLSHandshakeTimeoutMs and return the modified object.
func (opts *ConnectionOptions) WithTLSHandshakeTimeoutMs(value int64) *ConnectionOptions {
	opts.TLSHandshakeTimeoutMs = value
	return opts
}

// Set opts.HandshakeTimeoutMs and return the modified object.
func (opts *ConnectionOptions) WithHandshakeTimeoutMs(value int64) *ConnectionOptions {
	opts.HandshakeTimeoutMs = value
	return opts
}

// # Description
//
// Set opts.CloseTimeoutMs and return the modified object. The method does not validate inputs.
//
// # CloseTimeoutMs
//
// This option defines the max. delay (milliseconds) between the moment the connection enters the
// Closing state and its teardown. When the delay expires, the stream is closed whether or not the
// peer has completed the closing handshake. A value of 0 disables the timeout.
//
// Must be greater or equal to 0. Defaults to 5000.
//
// # Return
//
// The modified options.
func (opts *ConnectionOptions) WithCloseTimeoutMs(value int64) *ConnectionOptions {
	opts.CloseTimeoutMs = value
	return opts
}

// # Description
//
// Set opts.KeepAliveIntervalMs and return the modified object. The method does not validate
// inputs.
//
// # KeepAliveIntervalMs
//
// This option defines the period of the keep-alive checks. Every period, a ping is sent if
// nothing has been sent or received since at least one period. A value of 0 disables keep-alive.
//
// # Return
//
// The modified options.
func (opts *ConnectionOptions) WithKeepAliveIntervalMs(value int64) *ConnectionOptions {
	opts.KeepAliveIntervalMs = value
	return opts
}

// # Description
//
// Set opts.KeepAliveTimeoutMs and return the modified object. The method does not validate inputs.
//
// # KeepAliveTimeoutMs
//
// This option defines the delay granted to the peer to send any frame after a keep-alive ping.
// When it expires the connection is torn down and reported closed with 1006.
//
// # Return
//
// The modified options.
func (opts *ConnectionOptions) WithKeepAliveTimeoutMs(value int64) *ConnectionOptions {
	opts.KeepAliveTimeoutMs = value
	return opts
}

// Set opts.Subprotocols and return the modified object.
func (opts *ConnectionOptions) WithSubprotocols(values ...string) *ConnectionOptions {
	opts.Subprotocols = values
	return opts
}

// Set opts.Extensions and return the modified object.
func (opts *ConnectionOptions) WithExtensions(values ...wsext.Factory) *ConnectionOptions {
	opts.Extensions = values
	return opts
}

// Set opts.TLSConfig and return the modified object.
func (opts *ConnectionOptions) WithTLSConfig(value *tls.Config) *ConnectionOptions {
	opts.TLSConfig = value
	return opts
}

// Set opts.Dialer and return the modified object.
func (opts *ConnectionOptions) WithDialer(value Dialer) *ConnectionOptions {
	opts.Dialer = value
	return opts
}

// Set an additional handshake header and return the modified object.
func (opts *ConnectionOptions) WithHeader(name string, value string) *ConnectionOptions {
	if opts.Header == nil {
		opts.Header = map[string]string{}
	}
	opts.Header[name] = value
	return opts
}

// # Description
//
// Set opts.InboundMessagesPerSecond and opts.InboundBurst and return the modified object. The
// method does not validate inputs.
//
// # Inbound rate limit
//
// Messages received above the sustained rate (burst included) fail the connection with a
// policy violation (1008). A rate of 0 disables the limit.
//
// # Return
//
// The modified options.
func (opts *ConnectionOptions) WithInboundRateLimit(perSecond float64, burst int) *ConnectionOptions {
	opts.InboundMessagesPerSecond = perSecond
	opts.InboundBurst = burst
	return opts
}

// # Description
//
// Factory which creates a new ConnectionOptions object with nice defaults. Settings can then be
// modified by the user by using With*** methods.
//
// # Default settings
//
//   - ReceiveBufferSize = 4096
//   - MaxFramePayloadSize = 16 MiB
//   - MaxMessageSize = 32 MiB
//   - ConnectTimeoutMs = 10000, TLSHandshakeTimeoutMs = 10000, HandshakeTimeoutMs = 10000
//   - CloseTimeoutMs = 5000
//   - KeepAliveIntervalMs = 30000, KeepAliveTimeoutMs = 10000
//   - No subprotocol, no extension, no inbound rate limit
func NewConnectionOptions() *ConnectionOptions {
	return &ConnectionOptions{
		ReceiveBufferSize:     4096,
		MaxFramePayloadSize:   16 << 20,
		MaxMessageSize:        32 << 20,
		ConnectTimeoutMs:      10000,
		TLSHandshakeTimeoutMs: 10000,
		HandshakeTimeoutMs:    10000,
		CloseTimeoutMs:        5000,
		KeepAliveIntervalMs:   30000,
		KeepAliveTimeoutMs:    10000,
	}
}

// # Description
//
// Helper function which validates ConnectionOptions. Options are valid if:
//   - opts is not nil
//   - sizes, timeouts and rates are greater or equal to 0
//   - opts.KeepAliveTimeoutMs is greater or equal to 1
//   - subprotocols are not empty strings
//
// # Returns
//
// InvalidValidationError for bad values passed in and nil or ValidationErrors as error otherwise.
func Validate(opts *ConnectionOptions) error {
	return validator.New().Struct(opts)
}
