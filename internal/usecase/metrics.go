package usecase

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "voxbind/internal/usecase"

type coordinatorMetrics struct {
	started    metric.Int64Counter
	failed     metric.Int64Counter
	utterances metric.Int64Counter
	stale      metric.Int64Counter
}

// newCoordinatorMetrics falls back to the global meter provider, which is a
// no-op unless the host installs one.
func newCoordinatorMetrics(provider metric.MeterProvider) *coordinatorMetrics {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(meterName)
	m := &coordinatorMetrics{}
	m.started, _ = meter.Int64Counter("voxbind.sessions.started",
		metric.WithDescription("Recording sessions that reached the recording state"))
	m.failed, _ = meter.Int64Counter("voxbind.sessions.failed",
		metric.WithDescription("Recording sessions that failed to start"))
	m.utterances, _ = meter.Int64Counter("voxbind.utterances.received",
		metric.WithDescription("Recognition results applied to the current utterance"))
	m.stale, _ = meter.Int64Counter("voxbind.callbacks.stale",
		metric.WithDescription("Recognition callbacks discarded because their session was superseded"))
	return m
}

func (m *coordinatorMetrics) sessionStarted(ctx context.Context) {
	if m.started != nil {
		m.started.Add(ctx, 1)
	}
}

func (m *coordinatorMetrics) sessionFailed(ctx context.Context, reason string) {
	if m.failed != nil {
		m.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	}
}

func (m *coordinatorMetrics) utteranceReceived(ctx context.Context) {
	if m.utterances != nil {
		m.utterances.Add(ctx, 1)
	}
}

func (m *coordinatorMetrics) staleCallback(ctx context.Context) {
	if m.stale != nil {
		m.stale.Add(ctx, 1)
	}
}
