package wsconn

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
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

// Server side connection: performs the opening handshake on an accepted stream and then serves
// the connection.
type Session struct {
	*Conn
	// Router used to pick the dispatcher of the connection
	router Router
}

// # Description
//
// Factory which creates a new session for an accepted stream. The handshake is not performed
// until Accept or Serve is called.
//
// # Inputs
//
//   - stream: Accepted stream. The session owns it and closes it on teardown.
//   - router: Router used to pick the dispatcher from the request path. Must not be nil.
//   - opts: Connection options. If nil, default options are used.
//   - pool: Pool receive buffers are borrowed from. If nil, a pool is created from opts.
//   - logger: Logger to use. If nil, logs are discarded.
//   - tracerProvider: Tracer provider to use. If nil, global TracerProvider is used.
//
// # Returns
//
// A new session or an error if inputs are invalid.
func NewSession(
	stream net.Conn,
	router Router,
	opts *ConnectionOptions,
	pool wsbuffer.Pool,
	logger *zap.Logger,
	tracerProvider trace.TracerProvider) (*Session, error) {
	if stream == nil {
		return nil, fmt.Errorf("provided stream is nil")
	}
	if router == nil {
		return nil, fmt.Errorf("provided router is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := newConn(RoleServer, opts, pool, logger.With(zap.Stringer("remote_addr", stream.RemoteAddr())), tracerProvider)
	if err != nil {
		return nil, err
	}
	conn.stream = stream
	return &Session{Conn: conn, router: router}, nil
}

// # Description
//
// Perform the server side opening handshake and start the read loop.
//
// A failed handshake is answered with 400 Bad Request and the stream is closed.
//
// # Returns
//
// Nil once the connection is open, ErrAlreadyConnected if the session has already been started,
// or the handshake error.
func (s *Session) Accept(ctx context.Context) error {
	if !s.state.CompareAndSwap(StateNone, StateConnecting) {
		return ErrAlreadyConnected
	}
	ctx, span := s.tracer.Start(ctx, spanAccept,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String(attrSessionId, s.id)))
	defer span.End()
	s.initContext(ctx)
	if err := s.handshake(ctx, span); err != nil {
		s.logger.Debug("handshake failed", zap.Error(err))
		s.dispose(&CloseError{Code: wsframe.AbnormalClosure, Err: err})
		s.finalize()
		return handleError(err, span, codes.Error, "handshake failed")
	}
	return handlePotentialError(s.open(), span)
}

// # Description
//
// Accept the connection and block until it is torn down.
//
// # Returns
//
// The handshake error, or the *CloseError describing why the connection has ended.
func (s *Session) Serve(ctx context.Context) error {
	if err := s.Accept(ctx); err != nil {
		return err
	}
	<-s.Done()
	return s.Err()
}

// Read, verify and answer the opening handshake request.
func (s *Session) handshake(ctx context.Context, span trace.Span) error {
	if s.opts.HandshakeTimeoutMs > 0 {
		s.stream.SetDeadline(time.Now().Add(time.Duration(s.opts.HandshakeTimeoutMs) * time.Millisecond))
		defer s.stream.SetDeadline(time.Time{})
	}
	stop := context.AfterFunc(ctx, func() {
		s.stream.SetDeadline(time.Unix(1, 0))
	})
	defer stop()
	head, err := wshandshake.ReadHandshake(s.stream, s.acc, wshandshake.MaxHandshakeSize)
	if err != nil {
		if errors.Is(err, wshandshake.ErrHandshakeTooLarge) {
			return s.reject(&wshandshake.HandshakeError{Err: err, Status: http.StatusBadRequest})
		}
		return err
	}
	req, err := wshandshake.ParseRequest(head)
	if err != nil {
		return s.reject(err)
	}
	span.SetAttributes(attribute.String(attrPath, req.Path))
	key, err := wshandshake.VerifyClientRequest(req)
	if err != nil {
		return s.reject(err)
	}
	dispatcher, ok := s.router.Resolve(req.Path, req.RawQuery)
	if !ok || dispatcher == nil {
		return s.reject(&wshandshake.HandshakeError{Err: ErrRouteNotFound, Status: http.StatusBadRequest})
	}
	exts, extensions, err := wsext.NegotiateAsServer(s.opts.Extensions, req.Header.Extensions())
	if err != nil {
		return s.reject(&wshandshake.HandshakeError{Err: err, Status: http.StatusBadRequest})
	}
	protocol := wsext.SelectSubprotocol(s.opts.Subprotocols, req.Header.Protocols())
	if s.dispatcher, err = NewDispatcherInstrumentationDecorator(dispatcher, s.tracerProvider); err != nil {
		return err
	}
	s.setNegotiated(exts, protocol)
	resp := wshandshake.BuildSwitchingProtocolsResponse(wshandshake.ComputeAcceptKey(key), extensions, protocol)
	if _, err := s.stream.Write(resp); err != nil {
		return err
	}
	span.SetAttributes(
		attribute.String(attrSubprotocol, protocol),
		attribute.StringSlice(attrExtensions, s.Extensions()))
	return nil
}

// Answer with 400 Bad Request and return err.
func (s *Session) reject(err error) error {
	if _, werr := s.stream.Write(wshandshake.BuildBadRequestResponse()); werr != nil {
		s.logger.Debug("failed to send handshake rejection", zap.Error(werr))
	}
	return err
}
