// This package contains a websocket server built on top of wsconn sessions: a listener accept
// loop with optional TLS, a bounded number of concurrent sessions, a session registry used to
// broadcast messages and a graceful shutdown which closes every session with 1001 (going away).
package wsserver

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gbdevw/gowsrfc/wsbuffer"
	"github.com/gbdevw/gowsrfc/wsconn"
	"github.com/gbdevw/gowsrfc/wsframe"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Max. delay between two attempts when Accept fails.
const maxAcceptBackoff = time.Second

// Websocket server which accepts streams and serves them as wsconn sessions.
type Server struct {
	// Server options
	opts *ServerOptions
	// Router used by sessions to pick their dispatcher
	router wsconn.Router
	// Registered sessions
	registry *Registry
	// Pool shared by sessions for their receive buffers
	pool wsbuffer.Pool
	// Logger used by the server and its sessions
	logger *zap.Logger
	// Tracer used to instrument server code
	tracer trace.Tracer
	// Tracer provider given to sessions
	tracerProvider trace.TracerProvider
	// Reference to instruments used to record server metrics
	instruments *serverInstruments
	// Semaphore which bounds the number of concurrent sessions. Nil when there is no limit.
	slots chan struct{}
	// Listener opened by Start
	listener net.Listener
	// Internal mutex used to coordinate start/stop
	startMu sync.Mutex
	// Indicates that server has started
	started atomic.Bool
	// Unix timestamp (seconds) when the server has started
	startUnix atomic.Int64
	// Number of sessions which have completed their opening handshake
	accepted atomic.Int64
	// Number of failed opening handshakes
	handshakeFailures atomic.Int64
	// Guards stopping and the registration of new sessions
	connMu sync.RWMutex
	// Indicates that server is stopping or stopped
	stopping bool
	// Tracks running sessions and the accept loop
	wg sync.WaitGroup
	// Context bound to server lifetime
	ctx context.Context
	// Cancel function used to stop the server
	cancel context.CancelFunc
}

// # Description
//
// Factory which creates a new, non-started Server.
//
// # Inputs
//
//   - router: Router used to pick the dispatcher of each session. Must not be nil.
//   - opts: Server options. If nil, default options are used.
//   - logger: Logger to use. If nil, logs are discarded.
//   - tracerProvider: Tracer provider to use. If nil, global TracerProvider is used.
//   - meterProvider: Meter provider to use. If nil, global MeterProvider is used.
//
// # Returns
//
// A new, non-started Server or an error if inputs are invalid.
func NewServer(
	router wsconn.Router,
	opts *ServerOptions,
	logger *zap.Logger,
	tracerProvider trace.TracerProvider,
	meterProvider metric.MeterProvider) (*Server, error) {
	if router == nil {
		return nil, fmt.Errorf("provided router is nil")
	}
	if opts == nil {
		opts = NewServerOptions()
	}
	if err := Validate(opts); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if tracerProvider == nil {
		tracerProvider = otel.GetTracerProvider()
	}
	if meterProvider == nil {
		meterProvider = otel.GetMeterProvider()
	}
	srv := &Server{
		opts:           opts,
		router:         router,
		registry:       NewRegistry(),
		pool:           wsbuffer.NewFixedPool(opts.Connection.ReceiveBufferSize),
		logger:         logger,
		tracer:         tracerProvider.Tracer(pkgName, trace.WithInstrumentationVersion(pkgVersion)),
		tracerProvider: tracerProvider,
	}
	if opts.MaxSessions > 0 {
		srv.slots = make(chan struct{}, opts.MaxSessions)
	}
	srv.ctx, srv.cancel = context.WithCancel(context.Background())
	instruments, err := newServerInstruments(meterProvider.Meter(pkgName, metric.WithInstrumentationVersion(pkgVersion)), srv)
	if err != nil {
		return nil, err
	}
	srv.instruments = instruments
	return srv, nil
}

// Registry of the sessions served by the server.
func (srv *Server) Registry() *Registry {
	return srv.registry
}

// Address the server listens on, nil if the server is not started.
func (srv *Server) Addr() net.Addr {
	srv.startMu.Lock()
	defer srv.startMu.Unlock()
	if srv.listener == nil || !srv.started.Load() {
		return nil
	}
	return srv.listener.Addr()
}

// # Description
//
// Listen on the configured address and start accepting connections in a separate goroutine.
//
// # Returns
//
// ErrServerStarted if the server is already started, ErrServerStopped if the server has been
// stopped, or the listen error.
func (srv *Server) Start() error {
	_, span := srv.tracer.Start(srv.ctx, spanStart,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String(attrAddress, srv.opts.Address)))
	defer span.End()
	srv.startMu.Lock()
	defer srv.startMu.Unlock()
	if srv.ctx.Err() != nil {
		return handleError(ErrServerStopped, span, codes.Error, "server stopped")
	}
	if srv.started.Load() {
		return handleError(ErrServerStarted, span, codes.Error, "server already started")
	}
	listener, err := net.Listen("tcp", srv.opts.Address)
	if err != nil {
		return handleError(err, span, codes.Error, "listen failed")
	}
	if srv.opts.TLSConfig != nil {
		listener = tls.NewListener(listener, srv.opts.TLSConfig)
	}
	srv.listener = listener
	srv.startUnix.Store(time.Now().Unix())
	srv.started.Store(true)
	srv.wg.Add(1)
	go srv.acceptLoop(listener)
	srv.logger.Info("websocket server started", zap.Stringer("address", listener.Addr()))
	return handlePotentialError(nil, span)
}

// # Description
//
// Gracefully shutdown the server: stop accepting connections, close every registered session
// with 1001 (going away) and wait up to ShutdownTimeoutMs for sessions to end. A stopped server
// cannot be restarted.
//
// # Returns
//
// Nil in case of success, ErrServerNotStarted if the server is not started or
// ErrShutdownTimeout if some sessions are still running after the shutdown timeout.
func (srv *Server) Stop() error {
	_, span := srv.tracer.Start(context.Background(), spanStop, trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()
	srv.startMu.Lock()
	defer srv.startMu.Unlock()
	if !srv.started.Load() {
		return handleError(ErrServerNotStarted, span, codes.Error, "server not started")
	}
	srv.started.Store(false)
	srv.connMu.Lock()
	srv.stopping = true
	srv.connMu.Unlock()
	srv.cancel()
	if err := srv.listener.Close(); err != nil {
		srv.logger.Debug("failed to close listener", zap.Error(err))
	}
	count := srv.CloseAll(wsframe.GoingAway, "server shutdown")
	span.SetAttributes(attribute.Int(attrSessionCount, count))
	if srv.opts.ShutdownTimeoutMs == 0 {
		srv.logger.Info("websocket server stopped")
		return handlePotentialError(nil, span)
	}
	done := make(chan struct{})
	go func() {
		srv.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		srv.logger.Info("websocket server stopped")
		return handlePotentialError(nil, span)
	case <-time.After(time.Duration(srv.opts.ShutdownTimeoutMs) * time.Millisecond):
		srv.logger.Warn("websocket server stopped before all sessions have ended", zap.Int("sessions", srv.registry.Len()))
		return handleError(ErrShutdownTimeout, span, codes.Error, "shutdown timeout")
	}
}

// # Description
//
// Close every registered session with the provided code and reason.
//
// # Returns
//
// The number of sessions asked to close.
func (srv *Server) CloseAll(code wsframe.StatusCode, reason string) int {
	_, span := srv.tracer.Start(srv.ctx, spanCloseAll,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.Int(attrCloseCode, int(code))))
	defer span.End()
	count := srv.registry.CloseAll(code, reason)
	span.SetAttributes(attribute.Int(attrSessionCount, count))
	span.SetStatus(codes.Ok, codes.Ok.String())
	return count
}

// # Description
//
// Send a message to every open session.
//
// # Returns
//
// The number of sessions the message has been sent to and the joined send errors if any.
func (srv *Server) Broadcast(ctx context.Context, msgType wsframe.MessageType, payload []byte) (int, error) {
	ctx, span := srv.tracer.Start(ctx, spanBroadcast, trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()
	count, err := srv.registry.Broadcast(ctx, msgType, payload)
	span.SetAttributes(attribute.Int(attrSessionCount, count))
	return count, handlePotentialError(err, span)
}

// # Description
//
// Serve an accepted stream: the stream is registered as a session, the opening handshake is
// performed and the method blocks until the session has ended. The server owns the stream.
//
// The method can be used to serve streams accepted outside of the server listener.
//
// # Returns
//
// ErrServerStopped if the server is stopping, the handshake error, or the *wsconn.CloseError
// describing why the session has ended.
func (srv *Server) ServeConn(ctx context.Context, stream net.Conn) error {
	session, err := wsconn.NewSession(stream, srv.router, srv.opts.Connection, srv.pool, srv.logger, srv.tracerProvider)
	if err != nil {
		if stream != nil {
			stream.Close()
		}
		return err
	}
	srv.connMu.RLock()
	if srv.stopping {
		srv.connMu.RUnlock()
		stream.Close()
		return ErrServerStopped
	}
	srv.wg.Add(1)
	srv.registry.Add(session)
	srv.connMu.RUnlock()
	defer srv.wg.Done()
	defer srv.registry.Remove(session.ID())
	if err := session.Accept(ctx); err != nil {
		// Sessions closed by the server before their handshake are not failures
		if ctx.Err() == nil && !errors.Is(session.Err(), wsconn.ErrNotOpen) {
			srv.handshakeFailures.Add(1)
		}
		return err
	}
	srv.accepted.Add(1)
	<-session.Done()
	return session.Err()
}

// Accept streams until the listener is closed. Each stream is served in its own goroutine.
func (srv *Server) acceptLoop(listener net.Listener) {
	defer srv.wg.Done()
	var delay time.Duration
	for {
		if srv.slots != nil {
			select {
			case srv.slots <- struct{}{}:
			case <-srv.ctx.Done():
				return
			}
		}
		stream, err := listener.Accept()
		if err != nil {
			srv.releaseSlot()
			if srv.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			if delay == 0 {
				delay = 5 * time.Millisecond
			} else {
				delay = min(2*delay, maxAcceptBackoff)
			}
			srv.logger.Warn("accept failed", zap.Error(err), zap.Duration("retry_in", delay))
			select {
			case <-time.After(delay):
			case <-srv.ctx.Done():
				return
			}
			continue
		}
		delay = 0
		go func() {
			defer srv.releaseSlot()
			if err := srv.ServeConn(srv.ctx, stream); err != nil {
				srv.logger.Debug("session ended", zap.Error(err))
			}
		}()
	}
}

// Give back a session slot.
func (srv *Server) releaseSlot() {
	if srv.slots != nil {
		<-srv.slots
	}
}
