package wsconn

import (
	"context"
	"fmt"

	"github.com/gbdevw/gowsrfc/wsframe"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Package private decorator used to trace user provided callbacks
type dispatcherInstrumentationDecorator struct {
	// Tracer used to instrument code
	tracer trace.Tracer
	// Decorated Dispatcher implementation
	decorated Dispatcher
}

// # Description
//
// Build and return a new decorator which instruments a provided Dispatcher implementation.
//
// # Inputs
//
//   - decorated: The Dispatcher implementation to decorate. Must not be nil.
//   - tracerProvider: Tracer provider used to get a tracer. If nil, global tracer provider will be used.
//
// # Returns
//
// A new instrumentation decorator for the provided Dispatcher or an error if decorated is nil.
func NewDispatcherInstrumentationDecorator(decorated Dispatcher, tracerProvider trace.TracerProvider) (Dispatcher, error) {
	if decorated == nil {
		return nil, fmt.Errorf("provided decorated is nil")
	}
	if _, ok := decorated.(*dispatcherInstrumentationDecorator); ok {
		// Already decorated
		return decorated, nil
	}
	if tracerProvider == nil {
		tracerProvider = otel.GetTracerProvider()
	}
	return &dispatcherInstrumentationDecorator{
		decorated: decorated,
		tracer:    tracerProvider.Tracer(pkgName, trace.WithInstrumentationVersion(pkgVersion)),
	}, nil
}

// Instrument decorated.OnConnected call
func (decorator *dispatcherInstrumentationDecorator) OnConnected(ctx context.Context, conn *Conn) error {
	ctx, span := decorator.tracer.Start(ctx, spanOnConnected,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String(attrSessionId, conn.ID()),
			attribute.String(attrSubprotocol, conn.Subprotocol()),
		))
	defer span.End()
	return handlePotentialError(decorator.decorated.OnConnected(ctx, conn), span)
}

// Instrument decorated.OnText call
func (decorator *dispatcherInstrumentationDecorator) OnText(ctx context.Context, conn *Conn, msg string) error {
	ctx, span := decorator.tracer.Start(ctx, spanOnText,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String(attrSessionId, conn.ID()),
			attribute.Int(attrMsgLength, len(msg)),
		))
	defer span.End()
	return handlePotentialError(decorator.decorated.OnText(ctx, conn, msg), span)
}

// Instrument decorated.OnBinary call
func (decorator *dispatcherInstrumentationDecorator) OnBinary(ctx context.Context, conn *Conn, msg []byte) error {
	ctx, span := decorator.tracer.Start(ctx, spanOnBinary,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String(attrSessionId, conn.ID()),
			attribute.Int(attrMsgLength, len(msg)),
		))
	defer span.End()
	return handlePotentialError(decorator.decorated.OnBinary(ctx, conn, msg), span)
}

// Instrument decorated.OnFragmentOpened call
func (decorator *dispatcherInstrumentationDecorator) OnFragmentOpened(ctx context.Context, conn *Conn, msgType wsframe.MessageType, chunk []byte) error {
	ctx, span := decorator.tracer.Start(ctx, spanOnFragmentOpened,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String(attrSessionId, conn.ID()),
			attribute.String(attrMsgType, msgType.String()),
			attribute.Int(attrMsgLength, len(chunk)),
		))
	defer span.End()
	return handlePotentialError(decorator.decorated.OnFragmentOpened(ctx, conn, msgType, chunk), span)
}

// Instrument decorated.OnFragmentContinued call
func (decorator *dispatcherInstrumentationDecorator) OnFragmentContinued(ctx context.Context, conn *Conn, chunk []byte) error {
	ctx, span := decorator.tracer.Start(ctx, spanOnFragmentContinued,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String(attrSessionId, conn.ID()),
			attribute.Int(attrMsgLength, len(chunk)),
		))
	defer span.End()
	return handlePotentialError(decorator.decorated.OnFragmentContinued(ctx, conn, chunk), span)
}

// Instrument decorated.OnFragmentClosed call
func (decorator *dispatcherInstrumentationDecorator) OnFragmentClosed(ctx context.Context, conn *Conn, chunk []byte) error {
	ctx, span := decorator.tracer.Start(ctx, spanOnFragmentClosed,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String(attrSessionId, conn.ID()),
			attribute.Int(attrMsgLength, len(chunk)),
		))
	defer span.End()
	return handlePotentialError(decorator.decorated.OnFragmentClosed(ctx, conn, chunk), span)
}

// Instrument decorated.OnDisconnected call
func (decorator *dispatcherInstrumentationDecorator) OnDisconnected(ctx context.Context, conn *Conn, err error) {
	attrs := []attribute.KeyValue{attribute.String(attrSessionId, conn.ID())}
	if cerr, ok := err.(*CloseError); ok {
		attrs = append(attrs,
			attribute.Int(attrCloseCode, int(cerr.Code)),
			attribute.String(attrCloseReason, cerr.Reason))
	}
	ctx, span := decorator.tracer.Start(ctx, spanOnDisconnected,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...))
	defer span.End()
	defer span.SetStatus(codes.Ok, codes.Ok.String())
	decorator.decorated.OnDisconnected(ctx, conn, err)
}
