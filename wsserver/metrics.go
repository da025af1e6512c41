package wsserver

import (
	"context"

	"go.opentelemetry.io/otel/metric"
)

// Internal structure used to retain references to instruments that record server metrics.
type serverInstruments struct {
	// Gauge that monitors the number of open sessions
	activeSessionsGauge metric.Int64ObservableGauge
	// Gauge that retains the server start time as a unix timestamp (seconds)
	startUnixGauge metric.Int64ObservableGauge
	// Gauge that monitors server started flag
	startedGauge metric.Int64ObservableGauge
	// Counter that monitors the number of sessions which have completed their opening handshake
	acceptedSessionsCounter metric.Int64ObservableCounter
	// Counter that monitors the number of failed opening handshakes
	handshakeFailuresCounter metric.Int64ObservableCounter
}

// # Description
//
// Create the observable instruments which record the metrics of the provided server. Callbacks
// read the server state when metrics are collected.
func newServerInstruments(meter metric.Meter, srv *Server) (*serverInstruments, error) {
	activeSessionsGauge, err := meter.Int64ObservableGauge(metricActiveSessions,
		metric.WithDescription("Number of open websocket sessions"),
		metric.WithInt64Callback(func(ctx context.Context, io metric.Int64Observer) error {
			io.Observe(int64(srv.registry.CountOpen()))
			return nil
		}))
	if err != nil {
		return nil, err
	}
	startUnixGauge, err := meter.Int64ObservableGauge(metricStartUnix,
		metric.WithUnit("s"),
		metric.WithInt64Callback(func(ctx context.Context, io metric.Int64Observer) error {
			io.Observe(srv.startUnix.Load())
			return nil
		}))
	if err != nil {
		return nil, err
	}
	// 1 -> started | 0 -> not started
	startedGauge, err := meter.Int64ObservableGauge(metricStarted,
		metric.WithInt64Callback(func(ctx context.Context, io metric.Int64Observer) error {
			if srv.started.Load() {
				io.Observe(1)
			} else {
				io.Observe(0)
			}
			return nil
		}))
	if err != nil {
		return nil, err
	}
	acceptedSessionsCounter, err := meter.Int64ObservableCounter(metricAcceptedSessions,
		metric.WithInt64Callback(func(ctx context.Context, io metric.Int64Observer) error {
			io.Observe(srv.accepted.Load())
			return nil
		}))
	if err != nil {
		return nil, err
	}
	handshakeFailuresCounter, err := meter.Int64ObservableCounter(metricHandshakeFailures,
		metric.WithInt64Callback(func(ctx context.Context, io metric.Int64Observer) error {
			io.Observe(srv.handshakeFailures.Load())
			return nil
		}))
	if err != nil {
		return nil, err
	}
	return &serverInstruments{
		activeSessionsGauge:      activeSessionsGauge,
		startUnixGauge:           startUnixGauge,
		startedGauge:             startedGauge,
		acceptedSessionsCounter:  acceptedSessionsCounter,
		handshakeFailuresCounter: handshakeFailuresCounter,
	}, nil
}
