package wsconn

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"sort"
	"time"

	"github.com/gbdevw/gowsrfc/wsbuffer"
	"github.com/gbdevw/gowsrfc/wsext"
	"github.com/gbdevw/gowsrfc/wsframe"
	"github.com/gbdevw/gowsrfc/wshandshake"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Client side connection to a websocket server.
type Client struct {
	*Conn
	// Target server URL (ws:// or wss://)
	target *url.URL
}

// # Description
//
// Factory which creates a new, not connected client.
//
// # Inputs
//
//   - target: Target server URL. Scheme must be ws or wss.
//   - dispatcher: Callbacks called by the connection. Must not be nil.
//   - opts: Connection options. If nil, default options are used.
//   - pool: Pool receive buffers are borrowed from. If nil, a pool is created from opts.
//   - logger: Logger to use. If nil, logs are discarded.
//   - tracerProvider: Tracer provider to use. If nil, global TracerProvider is used.
//
// # Returns
//
// A new client or an error if inputs are invalid.
func NewClient(
	target *url.URL,
	dispatcher Dispatcher,
	opts *ConnectionOptions,
	pool wsbuffer.Pool,
	logger *zap.Logger,
	tracerProvider trace.TracerProvider) (*Client, error) {
	if target == nil {
		return nil, fmt.Errorf("provided url is nil")
	}
	if target.Scheme != "ws" && target.Scheme != "wss" {
		return nil, fmt.Errorf("unsupported url scheme %q", target.Scheme)
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("provided dispatcher is nil")
	}
	conn, err := newConn(RoleClient, opts, pool, logger, tracerProvider)
	if err != nil {
		return nil, err
	}
	conn.dispatcher, err = NewDispatcherInstrumentationDecorator(dispatcher, conn.tracerProvider)
	if err != nil {
		return nil, err
	}
	return &Client{Conn: conn, target: target}, nil
}

// # Description
//
// Open the transport connection, perform the TLS handshake for wss targets and the opening
// handshake, and start the read loop. Each step has its own timeout.
//
// A client connects once: create a new client to reconnect.
//
// # Returns
//
// Nil once the connection is open, ErrAlreadyConnected if Connect has already been called, or a
// ConnectError.
func (cl *Client) Connect(ctx context.Context) error {
	if !cl.state.CompareAndSwap(StateNone, StateConnecting) {
		return ErrAlreadyConnected
	}
	ctx, span := cl.tracer.Start(ctx, spanConnect,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String(attrSessionId, cl.id),
			attribute.String(attrTarget, cl.target.String()),
		))
	defer span.End()
	cl.initContext(ctx)
	if err := cl.connect(ctx, span); err != nil {
		cl.logger.Debug("connection failed", zap.Error(err))
		cl.dispose(&CloseError{Code: wsframe.AbnormalClosure, Err: err})
		cl.finalize()
		return handleError(ConnectError{Err: err}, span, codes.Error, "connection failed")
	}
	if err := cl.open(); err != nil {
		return handleError(ConnectError{Err: err}, span, codes.Error, "connection closed while connecting")
	}
	return handlePotentialError(nil, span)
}

// Dial the server and perform the TLS and opening handshakes.
func (cl *Client) connect(ctx context.Context, span trace.Span) error {
	stream, err := cl.dial(ctx)
	if err != nil {
		return err
	}
	if err := cl.setStream(stream); err != nil {
		return err
	}
	span.AddEvent(eventTransportConnected)
	cl.logger.Debug("transport connected", zap.Stringer("remote_addr", stream.RemoteAddr()))
	if cl.target.Scheme == "wss" {
		tlsStream, err := cl.tlsHandshake(ctx, stream)
		if err != nil {
			return err
		}
		if err := cl.setStream(tlsStream); err != nil {
			return err
		}
		stream = tlsStream
		span.AddEvent(eventTLSHandshakeDone)
	}
	return cl.handshake(ctx, stream, span)
}

// Open the transport connection.
func (cl *Client) dial(ctx context.Context) (net.Conn, error) {
	dialer := cl.opts.Dialer
	if dialer == nil {
		dialer = &net.Dialer{}
	}
	if cl.opts.ConnectTimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(cl.opts.ConnectTimeoutMs)*time.Millisecond)
		defer cancel()
	}
	return dialer.DialContext(ctx, "tcp", hostPort(cl.target))
}

// Perform the TLS handshake on stream.
func (cl *Client) tlsHandshake(ctx context.Context, stream net.Conn) (net.Conn, error) {
	cfg := &tls.Config{}
	if cl.opts.TLSConfig != nil {
		cfg = cl.opts.TLSConfig.Clone()
	}
	if cfg.ServerName == "" {
		cfg.ServerName = cl.target.Hostname()
	}
	if cl.opts.TLSHandshakeTimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(cl.opts.TLSHandshakeTimeoutMs)*time.Millisecond)
		defer cancel()
	}
	tlsStream := tls.Client(stream, cfg)
	if err := tlsStream.HandshakeContext(ctx); err != nil {
		return nil, err
	}
	return tlsStream, nil
}

// Send the opening handshake request and verify the response.
func (cl *Client) handshake(ctx context.Context, stream net.Conn, span trace.Span) error {
	if cl.opts.HandshakeTimeoutMs > 0 {
		stream.SetDeadline(time.Now().Add(time.Duration(cl.opts.HandshakeTimeoutMs) * time.Millisecond))
		defer stream.SetDeadline(time.Time{})
	}
	stop := context.AfterFunc(ctx, func() {
		stream.SetDeadline(time.Unix(1, 0))
	})
	defer stop()
	key, err := wshandshake.NewSecWebSocketKey()
	if err != nil {
		return err
	}
	header := wshandshake.NewHeader()
	names := make([]string, 0, len(cl.opts.Header))
	for name := range cl.opts.Header {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		header.Add(name, cl.opts.Header[name])
	}
	req := wshandshake.BuildClientRequest(wshandshake.ClientRequest{
		Host:       cl.target.Host,
		RequestURI: cl.target.RequestURI(),
		Key:        key,
		Extensions: wsext.ClientOffers(cl.opts.Extensions),
		Protocols:  cl.opts.Subprotocols,
		Header:     header,
	})
	if _, err := stream.Write(req); err != nil {
		return err
	}
	head, err := wshandshake.ReadHandshake(stream, cl.acc, wshandshake.MaxHandshakeSize)
	if err != nil {
		return err
	}
	resp, err := wshandshake.ParseResponse(head)
	if err != nil {
		return err
	}
	if err := wshandshake.VerifyServerResponse(resp, key); err != nil {
		return err
	}
	exts, err := wsext.NegotiateAsClient(cl.opts.Extensions, resp.Header.Extensions())
	if err != nil {
		return &wshandshake.HandshakeError{Err: err}
	}
	protocol, err := wsext.VerifySubprotocol(cl.opts.Subprotocols, resp.Header.Protocols())
	if err != nil {
		return &wshandshake.HandshakeError{Err: err}
	}
	cl.setNegotiated(exts, protocol)
	span.SetAttributes(
		attribute.String(attrSubprotocol, protocol),
		attribute.StringSlice(attrExtensions, cl.Extensions()))
	return nil
}

// Address to dial for target, with the default port of its scheme when none is set.
func hostPort(target *url.URL) string {
	port := target.Port()
	if port == "" {
		port = "80"
		if target.Scheme == "wss" {
			port = "443"
		}
	}
	return net.JoinHostPort(target.Hostname(), port)
}
