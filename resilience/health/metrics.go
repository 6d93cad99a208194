package health

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

type monitorMetrics struct {
	eventsRecorded metric.Int64Counter
}

func newMonitorMetrics(provider metric.MeterProvider) monitorMetrics {
	if provider == nil {
		provider = noop.NewMeterProvider()
	}

	meter := provider.Meter("resilience.health")

	counter, err := meter.Int64Counter(
		"health.events.recorded",
		metric.WithDescription("Number of call outcomes recorded by the health monitor"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		counter, _ = noop.NewMeterProvider().Meter("resilience.health").Int64Counter("health.events.recorded")
	}

	return monitorMetrics{eventsRecorded: counter}
}

func (m monitorMetrics) recorded(ctx context.Context, attrs ...attribute.KeyValue) {
	if m.eventsRecorded == nil {
		return
	}

	m.eventsRecorded.Add(ctx, 1, metric.WithAttributes(attrs...))
}
