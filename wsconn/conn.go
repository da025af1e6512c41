package wsconn

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/gbdevw/gowsrfc/wsbuffer"
	"github.com/gbdevw/gowsrfc/wsframe"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Side of a connection.
type Role int

const (
	// Connection accepted by a server: inbound frames must be masked
	RoleServer Role = iota
	// Connection opened by a client: outbound frames are masked
	RoleClient
)

func (role Role) String() string {
	if role == RoleClient {
		return "client"
	}
	return "server"
}

// A websocket connection, shared by the client and server roles.
//
// A connection goes through None, Connecting, Open, Closing and Disposed states. Once open, a
// single goroutine reads the stream, decodes frames and dispatches messages. Sends are safe for
// concurrent use: writes are serialized by a per-connection mutex.
type Conn struct {
	// Session identifier
	id string
	// Side of the connection
	role Role
	// Configuration options
	opts *ConnectionOptions
	// Logger with connection fields
	logger *zap.Logger
	// Tracer used to instrument connection code
	tracer trace.Tracer
	// Tracer provider used to decorate dispatchers
	tracerProvider trace.TracerProvider
	// Application callbacks (instrumented)
	dispatcher Dispatcher

	// Underlying stream. Set before the connection opens.
	stream net.Conn
	// Receive buffer. Only used by the goroutine which performs the handshake and then the read loop.
	acc *wsbuffer.Accumulator
	// Negotiated extensions in order
	exts []wsframe.Extension
	// RSV bits the negotiated extensions may set
	allowedRsv wsframe.RsvBits
	// Negotiated subprotocol
	subprotocol string
	// Inbound rate limiter, nil when disabled
	limiter *rate.Limiter
	// Keep-alive activity tracker
	keepAlive *keepAliveTracker

	// Lifecycle state
	state stateBox
	// Whether the connection has reached the Open state
	opened atomic.Bool
	// Whether a close frame has been sent
	closeSent atomic.Bool
	// Whether a close frame has been received
	closeReceived atomic.Bool
	// Whether the connection has been torn down
	disposed atomic.Bool
	// Serializes writes on the stream
	writeMu sync.Mutex

	// Protects stream assignment, timers and the keep-alive stop channel
	mu sync.Mutex
	// Closing handshake timer
	closeTimer *time.Timer
	// Keep-alive ping timeout timer
	pingTimer *time.Timer
	// Closed to stop the keep-alive goroutine
	stopKeepAlive chan struct{}

	// Protects result
	resultMu sync.Mutex
	// Why the connection has ended
	result *CloseError

	// Context used by callbacks, canceled on teardown
	ctx    context.Context
	cancel context.CancelFunc
	// Ensures finalization is performed once
	finalizeOnce sync.Once
	// Closed once the connection is finalized
	done chan struct{}

	// Message being received. Read loop only.
	msg messageAssembler
}

// State of a fragmented message being received.
type messageAssembler struct {
	// Whether a fragmented message is in progress
	active bool
	// Type of the message
	msgType wsframe.MessageType
	// Header of the first frame
	first wsframe.Header
	// Whether extensions have transformed the message
	transformed bool
	// Buffered payload of a transformed message
	buf []byte
	// Number of payload bytes received so far
	size int64
	// UTF-8 validation state of a streamed text message
	utf8 utf8Validator
}

// Build a connection in the None state.
func newConn(
	role Role,
	opts *ConnectionOptions,
	pool wsbuffer.Pool,
	logger *zap.Logger,
	tracerProvider trace.TracerProvider) (*Conn, error) {
	if opts == nil {
		opts = NewConnectionOptions()
	}
	if err := Validate(opts); err != nil {
		return nil, err
	}
	if pool == nil {
		pool = wsbuffer.NewFixedPool(opts.ReceiveBufferSize)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if tracerProvider == nil {
		tracerProvider = otel.GetTracerProvider()
	}
	id := uuid.NewString()
	c := &Conn{
		id:             id,
		role:           role,
		opts:           opts,
		logger:         logger.With(zap.String("session_id", id), zap.Stringer("role", role)),
		tracer:         tracerProvider.Tracer(pkgName, trace.WithInstrumentationVersion(pkgVersion)),
		tracerProvider: tracerProvider,
		acc:            wsbuffer.NewAccumulator(pool),
		keepAlive: newKeepAliveTracker(
			time.Duration(opts.KeepAliveIntervalMs)*time.Millisecond,
			time.Duration(opts.KeepAliveTimeoutMs)*time.Millisecond,
			time.Now()),
		stopKeepAlive: make(chan struct{}),
		done:          make(chan struct{}),
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	if opts.InboundMessagesPerSecond > 0 {
		burst := opts.InboundBurst
		if burst <= 0 {
			burst = int(math.Max(1, opts.InboundMessagesPerSecond))
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.InboundMessagesPerSecond), burst)
	}
	return c, nil
}

/*************************************************************************************************/
/* ACCESSORS                                                                                     */
/*************************************************************************************************/

// Session identifier (uuid).
func (c *Conn) ID() string {
	return c.id
}

// Side of the connection.
func (c *Conn) Role() Role {
	return c.role
}

// Current lifecycle state.
func (c *Conn) State() State {
	return c.state.Load()
}

// Negotiated subprotocol, empty if none.
func (c *Conn) Subprotocol() string {
	return c.subprotocol
}

// Names of the negotiated extensions, in order.
func (c *Conn) Extensions() []string {
	names := make([]string, 0, len(c.exts))
	for _, ext := range c.exts {
		names = append(names, ext.Name())
	}
	return names
}

// Remote address of the underlying stream, nil before the stream is open.
func (c *Conn) RemoteAddr() net.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream == nil {
		return nil
	}
	return c.stream.RemoteAddr()
}

// Local address of the underlying stream, nil before the stream is open.
func (c *Conn) LocalAddr() net.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream == nil {
		return nil
	}
	return c.stream.LocalAddr()
}

// Channel closed once the connection has been torn down and OnDisconnected has returned.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Why the connection has ended (a *CloseError), nil while the connection is alive.
func (c *Conn) Err() error {
	select {
	case <-c.done:
		c.resultMu.Lock()
		defer c.resultMu.Unlock()
		if c.result == nil {
			return nil
		}
		return c.result
	default:
		return nil
	}
}

// # Description
//
// Block until the connection has been torn down or ctx is done.
//
// # Returns
//
// The *CloseError describing why the connection has ended or the context error.
func (c *Conn) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return c.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

/*************************************************************************************************/
/* SEND                                                                                          */
/*************************************************************************************************/

// # Description
//
// Send a whole message in a single frame. Negotiated extensions (e.g. compression) are applied.
//
// # Returns
//
// ErrNotOpen if the connection is not open, the context error if ctx is done, or the write error.
func (c *Conn) Send(ctx context.Context, msgType wsframe.MessageType, payload []byte) error {
	_, span := c.tracer.Start(ctx, spanSend,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String(attrSessionId, c.id),
			attribute.String(attrMsgType, msgType.String()),
			attribute.Int(attrMsgLength, len(payload)),
		))
	defer span.End()
	if err := ctx.Err(); err != nil {
		return handleError(err, span, codes.Error, "context done")
	}
	if c.state.Load() != StateOpen {
		return handleError(ErrNotOpen, span, codes.Error, "connection not open")
	}
	return handlePotentialError(c.writeFrame(msgType.Opcode(), payload, true, c.exts), span)
}

// Send a text message.
func (c *Conn) SendText(ctx context.Context, msg string) error {
	return c.Send(ctx, wsframe.Text, []byte(msg))
}

// Send a binary message.
func (c *Conn) SendBinary(ctx context.Context, msg []byte) error {
	return c.Send(ctx, wsframe.Binary, msg)
}

// # Description
//
// Send one frame of a fragmented message. The first frame carries the message type, the next
// ones are continuation frames. Extensions are not applied to fragmented messages.
//
// The caller must not interleave fragments of different messages.
//
// # Inputs
//
//   - msgType: Type of the message. Used only when first is true.
//   - chunk: Payload of the frame
//   - first: Whether this is the first frame of the message
//   - final: Whether this is the last frame of the message
func (c *Conn) SendFragment(ctx context.Context, msgType wsframe.MessageType, chunk []byte, first bool, final bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.state.Load() != StateOpen {
		return ErrNotOpen
	}
	opcode := wsframe.OpContinuation
	if first {
		opcode = msgType.Opcode()
	}
	return c.writeFrame(opcode, chunk, final, nil)
}

// Send a ping with an optional payload (125 bytes max.).
func (c *Conn) Ping(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.state.Load() != StateOpen {
		return ErrNotOpen
	}
	return c.writeFrame(wsframe.OpPing, payload, true, nil)
}

// # Description
//
// Start the closing handshake: send a close frame and enter the Closing state. The method does
// not wait for the peer: use Wait or Done to know when the connection is torn down. The
// connection is torn down after CloseTimeoutMs if the peer does not complete the handshake.
//
// A connection which has not been started or is still connecting is torn down immediately.
//
// # Inputs
//
//   - code: Close status code. Must be valid on the wire or NoStatusReceived (empty close frame).
//   - reason: Close reason. Valid UTF-8, 123 bytes max.
//
// # Returns
//
// An error if code or reason are invalid, or ErrNotOpen if the connection is not open.
func (c *Conn) Close(code wsframe.StatusCode, reason string) error {
	_, span := c.tracer.Start(c.ctx, spanClose,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String(attrSessionId, c.id),
			attribute.Int(attrCloseCode, int(code)),
			attribute.String(attrCloseReason, reason),
		))
	defer span.End()
	payload, err := wsframe.BuildClosePayload(code, reason)
	if err != nil {
		return handleError(err, span, codes.Error, "invalid close frame")
	}
	if c.state.CompareAndSwap(StateNone, StateDisposed) {
		// Never started: nothing else uses the connection
		c.dispose(&CloseError{Code: wsframe.AbnormalClosure, Reason: reason, Err: ErrNotOpen})
		c.finalize()
		return handlePotentialError(nil, span)
	}
	if c.state.Load() == StateConnecting {
		c.dispose(&CloseError{Code: wsframe.AbnormalClosure, Reason: reason, Err: ErrNotOpen})
		return handlePotentialError(nil, span)
	}
	if !c.state.CompareAndSwap(StateOpen, StateClosing) {
		return handleError(ErrNotOpen, span, codes.Error, "connection not open")
	}
	c.setResult(&CloseError{Code: code, Reason: reason})
	c.sendClose(payload)
	c.startCloseTimer()
	return handlePotentialError(nil, span)
}

// Encode and write a frame. Fails with ErrNotOpen once the connection is disposed.
func (c *Conn) writeFrame(opcode wsframe.Opcode, payload []byte, fin bool, exts []wsframe.Extension) error {
	frame, err := wsframe.EncodeFrame(opcode, payload, fin, c.role == RoleClient, exts)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.disposed.Load() {
		return ErrNotOpen
	}
	if _, err := c.stream.Write(frame); err != nil {
		return err
	}
	c.keepAlive.MarkSent(time.Now())
	return nil
}

/*************************************************************************************************/
/* LIFECYCLE                                                                                     */
/*************************************************************************************************/

// Derive the callback context from the context of Connect or Accept. Cancellation of ctx does not
// propagate.
func (c *Conn) initContext(ctx context.Context) {
	c.cancel()
	c.ctx, c.cancel = context.WithCancel(context.WithoutCancel(ctx))
}

// Set the stream. Fails and closes stream if the connection has already been disposed.
func (c *Conn) setStream(stream net.Conn) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed.Load() {
		stream.Close()
		return ErrNotOpen
	}
	c.stream = stream
	return nil
}

// Record the result of the negotiation.
func (c *Conn) setNegotiated(exts []wsframe.Extension, subprotocol string) {
	c.exts = exts
	c.subprotocol = subprotocol
	c.allowedRsv = 0
	for _, ext := range exts {
		c.allowedRsv |= ext.ReservedBits()
	}
}

// # Description
//
// Enter the Open state and start the read loop and keep-alive goroutines.
//
// # Returns
//
// ErrNotOpen if the connection has been closed during the handshake. The connection is then
// finalized.
func (c *Conn) open() error {
	if !c.state.CompareAndSwap(StateConnecting, StateOpen) {
		c.dispose(&CloseError{Code: wsframe.AbnormalClosure, Err: ErrNotOpen})
		c.finalize()
		return ErrNotOpen
	}
	c.opened.Store(true)
	now := time.Now()
	c.keepAlive.MarkSent(now)
	c.keepAlive.MarkReceived(now)
	if c.opts.KeepAliveIntervalMs > 0 {
		go c.keepAliveLoop(c.stopKeepAlive)
	}
	c.logger.Debug("connection open",
		zap.String("subprotocol", c.subprotocol),
		zap.Strings("extensions", c.Extensions()))
	go c.run()
	return nil
}

// Record why the connection has ended. The first result wins.
func (c *Conn) setResult(result *CloseError) {
	if result == nil {
		return
	}
	c.resultMu.Lock()
	defer c.resultMu.Unlock()
	if c.result == nil {
		c.result = result
	}
}

// # Description
//
// Tear the connection down: enter the Disposed state, stop timers and close the stream. Only the
// first call has an effect. The read loop then exits and finalizes the connection.
func (c *Conn) dispose(result *CloseError) {
	c.setResult(result)
	if !c.disposed.CompareAndSwap(false, true) {
		return
	}
	c.state.Swap(StateDisposed)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closeTimer != nil {
		c.closeTimer.Stop()
	}
	if c.pingTimer != nil {
		c.pingTimer.Stop()
	}
	close(c.stopKeepAlive)
	if c.stream != nil {
		c.stream.Close()
	}
}

// Release resources, call OnDisconnected if the connection has been open and close Done. Only
// the first call has an effect.
func (c *Conn) finalize() {
	c.finalizeOnce.Do(func() {
		c.dispose(&CloseError{Code: wsframe.AbnormalClosure, Err: net.ErrClosed})
		c.acc.Release()
		c.msg = messageAssembler{}
		if c.opened.Load() {
			c.resultMu.Lock()
			result := c.result
			c.resultMu.Unlock()
			c.logger.Debug("connection closed", zap.Error(result))
			c.invoke("OnDisconnected", func() error {
				c.dispatcher.OnDisconnected(c.ctx, c, result)
				return nil
			})
		}
		c.cancel()
		close(c.done)
	})
}

// Arm the closing handshake timer once.
func (c *Conn) startCloseTimer() {
	if c.opts.CloseTimeoutMs <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closeTimer != nil || c.disposed.Load() {
		return
	}
	c.closeTimer = time.AfterFunc(time.Duration(c.opts.CloseTimeoutMs)*time.Millisecond, func() {
		c.logger.Debug("closing handshake timeout")
		c.dispose(&CloseError{Code: wsframe.AbnormalClosure, Err: ErrCloseTimeout})
	})
}

// Call a dispatcher callback. Errors and panics are logged and swallowed.
func (c *Conn) invoke(name string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("callback panicked",
				zap.String("callback", name),
				zap.Any("panic", r),
				zap.Stack("stack"))
		}
	}()
	if err := fn(); err != nil {
		c.logger.Warn("callback failed", zap.Error(CallbackError{Callback: name, Err: err}))
	}
}

/*************************************************************************************************/
/* KEEP-ALIVE                                                                                    */
/*************************************************************************************************/

// Periodically check whether a ping is due until stop is closed.
func (c *Conn) keepAliveLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(time.Duration(c.opts.KeepAliveIntervalMs) * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			c.checkKeepAlive(now)
		}
	}
}

// Send a ping and arm the keep-alive timeout when nothing has been sent or received during a
// whole interval.
func (c *Conn) checkKeepAlive(now time.Time) {
	if !c.keepAlive.TryAcquire() {
		return
	}
	defer c.keepAlive.Release()
	if c.keepAlive.Expired(now) {
		c.expireKeepAlive()
		return
	}
	if c.state.Load() != StateOpen || c.keepAlive.Pending() || !c.keepAlive.PingDue(now) {
		return
	}
	// Armed before the write so an early pong cannot be missed
	c.keepAlive.Arm(now)
	if err := c.writeFrame(wsframe.OpPing, nil, true, nil); err != nil {
		c.logger.Debug("failed to send keep-alive ping", zap.Error(err))
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed.Load() {
		return
	}
	if c.pingTimer != nil {
		c.pingTimer.Stop()
	}
	c.pingTimer = time.AfterFunc(c.keepAlive.timeout, func() {
		if c.keepAlive.Expired(time.Now()) {
			c.expireKeepAlive()
		}
	})
}

// Tear the connection down after a keep-alive timeout. 1006 is reported locally, nothing is sent.
func (c *Conn) expireKeepAlive() {
	c.logger.Warn("keep-alive timeout")
	c.dispose(&CloseError{Code: wsframe.AbnormalClosure, Reason: "keep-alive timeout", Err: ErrKeepAliveTimeout})
}

/*************************************************************************************************/
/* READ LOOP                                                                                     */
/*************************************************************************************************/

// Read loop: decode buffered frames, dispatch them and read more bytes until the connection is
// torn down.
func (c *Conn) run() {
	defer c.finalize()
	c.invoke("OnConnected", func() error {
		return c.dispatcher.OnConnected(c.ctx, c)
	})
	for {
		if err := c.processBuffered(); err != nil {
			c.fail(err)
			return
		}
		if c.disposed.Load() {
			return
		}
		if _, err := c.acc.Fill(c.stream); err != nil {
			// Frames received along with the error are still processed
			if perr := c.processBuffered(); perr != nil {
				c.fail(perr)
				return
			}
			c.onReadError(err)
			return
		}
	}
}

// Handle the error which ended the read loop.
func (c *Conn) onReadError(err error) {
	if c.disposed.Load() {
		return
	}
	if c.closeSent.Load() && c.closeReceived.Load() {
		// Peer closed the stream after the closing handshake
		c.dispose(nil)
		return
	}
	if isDisconnection(err) {
		c.logger.Debug("stream closed", zap.Error(err))
	} else {
		c.logger.Warn("read failed", zap.Error(err))
	}
	c.dispose(&CloseError{Code: wsframe.AbnormalClosure, Err: err})
}

// # Description
//
// Fail the connection: send a close frame with the status code of the protocol error (1011 for
// other errors) unless a close frame has already been sent, and tear the connection down.
func (c *Conn) fail(err error) {
	var perr wsframe.ProtocolError
	if !errors.As(err, &perr) {
		c.logger.Error("connection failed", zap.Error(err))
		perr = wsframe.ProtocolError{Code: wsframe.InternalError, Reason: "internal error"}
	} else {
		c.logger.Warn("protocol error",
			zap.Int("code", int(perr.Code)),
			zap.String("reason", perr.Reason))
	}
	c.setResult(&CloseError{Code: perr.Code, Reason: perr.Reason, Err: err})
	payload, berr := wsframe.BuildClosePayload(perr.Code, truncateReason(perr.Reason))
	if berr != nil {
		payload, _ = wsframe.BuildClosePayload(perr.Code, "")
	}
	c.sendClose(payload)
	c.dispose(nil)
}

// # Description
//
// Write a close frame unless one has already been sent. A write failure is logged and swallowed.
//
// The closing timer is armed before the write: its teardown closes the stream, which releases a
// write blocked by a peer which does not read anymore.
func (c *Conn) sendClose(payload []byte) {
	if !c.closeSent.CompareAndSwap(false, true) {
		return
	}
	c.startCloseTimer()
	if err := c.writeFrame(wsframe.OpClose, payload, true, nil); err != nil {
		c.logger.Debug("failed to send close frame", zap.Error(err))
	}
}

// Truncate a close reason to the max. length allowed in a close frame, on a rune boundary.
func truncateReason(reason string) string {
	if len(reason) <= wsframe.MaxCloseReasonLength {
		return reason
	}
	cut := wsframe.MaxCloseReasonLength
	for cut > 0 && !utf8.RuneStart(reason[cut]) {
		cut--
	}
	return reason[:cut]
}

// Decode and handle every complete frame held in the receive buffer.
func (c *Conn) processBuffered() error {
	for !c.disposed.Load() {
		hdr, ok, err := wsframe.TryDecodeHeader(c.acc.Bytes(), uint64(c.opts.MaxFramePayloadSize))
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		frameLen := hdr.FrameLength()
		if frameLen > math.MaxInt32 {
			return wsframe.ProtocolError{Code: wsframe.MessageTooBig, Reason: "frame too large"}
		}
		if c.acc.Len() < int(frameLen) {
			// Wait for the rest of the frame with room for it
			return c.acc.Reserve(int(frameLen) - c.acc.Len())
		}
		payload, err := wsframe.DecodePayload(c.acc.Bytes(), hdr, nil)
		if err != nil {
			return err
		}
		err = c.handleFrame(hdr, payload)
		if serr := c.acc.Shift(int(frameLen)); err == nil {
			err = serr
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Validate a frame and dispatch it. payload aliases the receive buffer.
func (c *Conn) handleFrame(hdr wsframe.Header, payload []byte) error {
	c.keepAlive.MarkReceived(time.Now())
	if hdr.Opcode.IsReserved() {
		return wsframe.ProtocolError{Code: wsframe.UnsupportedData, Reason: "invalid message type"}
	}
	if c.role == RoleServer && !hdr.Masked {
		return wsframe.ProtocolError{Code: wsframe.ProtocolErrorCode, Reason: "client frames must be masked"}
	}
	if c.role == RoleClient && hdr.Masked {
		return wsframe.ProtocolError{Code: wsframe.ProtocolErrorCode, Reason: "server frames must not be masked"}
	}
	if hdr.Opcode.IsControl() {
		if !hdr.Fin {
			return wsframe.ProtocolError{Code: wsframe.ProtocolErrorCode, Reason: "fragmented control frame"}
		}
		if hdr.PayloadLength > wsframe.MaxControlPayloadLength {
			return wsframe.ProtocolError{Code: wsframe.ProtocolErrorCode, Reason: "control frame too long"}
		}
		if hdr.ReservedBits() != 0 {
			return wsframe.ProtocolError{Code: wsframe.ProtocolErrorCode, Reason: "reserved bits set on control frame"}
		}
		return c.handleControl(hdr, payload)
	}
	if hdr.ReservedBits()&^c.allowedRsv != 0 {
		return wsframe.ProtocolError{Code: wsframe.ProtocolErrorCode, Reason: "unexpected reserved bits"}
	}
	if hdr.Opcode == wsframe.OpContinuation {
		if hdr.ReservedBits() != 0 {
			return wsframe.ProtocolError{Code: wsframe.ProtocolErrorCode, Reason: "reserved bits set on continuation frame"}
		}
		if !c.msg.active {
			return wsframe.ProtocolError{Code: wsframe.ProtocolErrorCode, Reason: "continuation frame without message"}
		}
		return c.continueMessage(hdr, payload)
	}
	if c.msg.active {
		return wsframe.ProtocolError{Code: wsframe.ProtocolErrorCode, Reason: "new message inside a fragmented message"}
	}
	if c.limiter != nil && !c.limiter.Allow() {
		return wsframe.ProtocolError{Code: wsframe.PolicyViolation, Reason: ErrRateLimited.Error()}
	}
	return c.startMessage(hdr, payload)
}

// Handle ping, pong and close frames.
func (c *Conn) handleControl(hdr wsframe.Header, payload []byte) error {
	switch hdr.Opcode {
	case wsframe.OpPing:
		if c.state.Load() == StateOpen {
			if err := c.writeFrame(wsframe.OpPong, payload, true, nil); err != nil {
				c.logger.Debug("failed to send pong", zap.Error(err))
			}
		}
		return nil
	case wsframe.OpPong:
		// Keep-alive has already been cleared
		return nil
	case wsframe.OpClose:
		return c.handleClose(payload)
	default:
		return fmt.Errorf("unexpected control opcode %s", hdr.Opcode)
	}
}

// Handle a close frame: echo it unless a close frame has already been sent and complete the
// closing handshake.
func (c *Conn) handleClose(payload []byte) error {
	code, reason, err := wsframe.ParseClosePayload(payload)
	if err != nil {
		return err
	}
	c.closeReceived.Store(true)
	c.setResult(&CloseError{Code: code, Reason: reason})
	c.state.CompareAndSwap(StateOpen, StateClosing)
	echo := []byte{}
	if code != wsframe.NoStatusReceived {
		echo, _ = wsframe.BuildClosePayload(code, "")
	}
	c.sendClose(echo)
	if c.role == RoleServer {
		// The server closes the stream first
		c.dispose(nil)
		return nil
	}
	// Wait for the server to close the stream
	c.startCloseTimer()
	return nil
}

// Handle the first frame of a text or binary message.
func (c *Conn) startMessage(hdr wsframe.Header, payload []byte) error {
	msgType, _ := wsframe.MessageTypeOf(hdr.Opcode)
	transformed := c.isTransformed(hdr)
	if err := c.checkMessageSize(int64(len(payload))); err != nil {
		return err
	}
	if hdr.Fin {
		return c.deliver(msgType, hdr, payload, transformed)
	}
	c.msg = messageAssembler{
		active:      true,
		msgType:     msgType,
		first:       hdr,
		transformed: transformed,
		size:        int64(len(payload)),
	}
	if transformed {
		c.msg.buf = append([]byte(nil), payload...)
		return nil
	}
	if msgType == wsframe.Text && !c.msg.utf8.Write(payload, false) {
		return wsframe.ProtocolError{Code: wsframe.InvalidFramePayloadData, Reason: "invalid UTF-8 text"}
	}
	chunk := bytes.Clone(payload)
	c.invoke("OnFragmentOpened", func() error {
		return c.dispatcher.OnFragmentOpened(c.ctx, c, msgType, chunk)
	})
	return nil
}

// Handle a continuation frame.
func (c *Conn) continueMessage(hdr wsframe.Header, payload []byte) error {
	c.msg.size += int64(len(payload))
	if err := c.checkMessageSize(c.msg.size); err != nil {
		return err
	}
	if c.msg.transformed {
		c.msg.buf = append(c.msg.buf, payload...)
		if !hdr.Fin {
			return nil
		}
		msgType, first, buf := c.msg.msgType, c.msg.first, c.msg.buf
		c.msg = messageAssembler{}
		return c.deliver(msgType, first, buf, true)
	}
	if c.msg.msgType == wsframe.Text && !c.msg.utf8.Write(payload, hdr.Fin) {
		return wsframe.ProtocolError{Code: wsframe.InvalidFramePayloadData, Reason: "invalid UTF-8 text"}
	}
	chunk := bytes.Clone(payload)
	if hdr.Fin {
		c.msg = messageAssembler{}
		c.invoke("OnFragmentClosed", func() error {
			return c.dispatcher.OnFragmentClosed(c.ctx, c, chunk)
		})
		return nil
	}
	c.invoke("OnFragmentContinued", func() error {
		return c.dispatcher.OnFragmentContinued(c.ctx, c, chunk)
	})
	return nil
}

// Reverse extension transforms, validate and deliver a whole message.
func (c *Conn) deliver(msgType wsframe.MessageType, first wsframe.Header, payload []byte, transformed bool) error {
	if transformed {
		out, err := wsframe.TransformIncoming(first, payload, c.exts)
		if err != nil {
			var perr wsframe.ProtocolError
			if errors.As(err, &perr) {
				return perr
			}
			return wsframe.ProtocolError{Code: wsframe.InvalidFramePayloadData, Reason: err.Error()}
		}
		if err := c.checkMessageSize(int64(len(out))); err != nil {
			return err
		}
		payload = out
	} else {
		payload = bytes.Clone(payload)
	}
	if msgType == wsframe.Text {
		if !utf8.Valid(payload) {
			return wsframe.ProtocolError{Code: wsframe.InvalidFramePayloadData, Reason: "invalid UTF-8 text"}
		}
		msg := string(payload)
		c.invoke("OnText", func() error {
			return c.dispatcher.OnText(c.ctx, c, msg)
		})
		return nil
	}
	c.invoke("OnBinary", func() error {
		return c.dispatcher.OnBinary(c.ctx, c, payload)
	})
	return nil
}

// Whether a negotiated extension has transformed the message starting with hdr.
func (c *Conn) isTransformed(hdr wsframe.Header) bool {
	for _, ext := range c.exts {
		if ext.IsActiveFor(hdr) {
			return true
		}
	}
	return false
}

// Fail with 1009 when size exceeds MaxMessageSize.
func (c *Conn) checkMessageSize(size int64) error {
	if c.opts.MaxMessageSize > 0 && size > c.opts.MaxMessageSize {
		return wsframe.ProtocolError{Code: wsframe.MessageTooBig, Reason: "message too big"}
	}
	return nil
}
