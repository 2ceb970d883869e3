package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "streamforge"

// Metrics holds all StreamForge metric instruments.
type Metrics struct {
	TurnsStarted  metric.Int64Counter
	TurnsFinished metric.Int64Counter
	TurnsAborted  metric.Int64Counter
	EventsEmitted metric.Int64Counter
	TurnDuration  metric.Float64Histogram
}

// NewMetrics creates all metric instruments on the global meter. With the
// default no-op provider the instruments are valid and record nothing.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.TurnsStarted, err = meter.Int64Counter("streamforge.turns.started",
		metric.WithDescription("Number of streamed turns started"))
	if err != nil {
		return nil, err
	}

	m.TurnsFinished, err = meter.Int64Counter("streamforge.turns.finished",
		metric.WithDescription("Number of streamed turns that ran to completion"))
	if err != nil {
		return nil, err
	}

	m.TurnsAborted, err = meter.Int64Counter("streamforge.turns.aborted",
		metric.WithDescription("Number of streamed turns aborted before completion"))
	if err != nil {
		return nil, err
	}

	m.EventsEmitted, err = meter.Int64Counter("streamforge.events.emitted",
		metric.WithDescription("Number of stream events delivered to sinks"))
	if err != nil {
		return nil, err
	}

	m.TurnDuration, err = meter.Float64Histogram("streamforge.turn.duration_seconds",
		metric.WithDescription("Wall time from stream start to terminal event"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
