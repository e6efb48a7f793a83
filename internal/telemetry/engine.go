package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// EngineMetrics holds the counters recorded by the commute engine.
// A nil *EngineMetrics is valid and records nothing.
type EngineMetrics struct {
	routeChecks      metric.Int64Counter
	segmentChecks    metric.Int64Counter
	suggestions      metric.Int64Counter
	departureCalcs   metric.Int64Counter
	notifications    metric.Int64Counter
	arrivalLatencyMs metric.Float64Histogram
}

// NewEngineMetrics registers the engine instruments on meter.
func NewEngineMetrics(meter metric.Meter) (*EngineMetrics, error) {
	routeChecks, err1 := meter.Int64Counter("commute.delay.route_checks",
		metric.WithDescription("Route delay checks by aggregated status"),
	)
	segmentChecks, err2 := meter.Int64Counter("commute.delay.segment_checks",
		metric.WithDescription("Checkpoint delay checks by status and source"),
	)
	suggestions, err3 := meter.Int64Counter("commute.alternative.suggestions",
		metric.WithDescription("Alternative route suggestions emitted"),
	)
	departureCalcs, err4 := meter.Int64Counter("commute.departure.calculations",
		metric.WithDescription("Departure calculations by outcome"),
	)
	notifications, err5 := meter.Int64Counter("commute.departure.notifications",
		metric.WithDescription("Departure update notifications by result"),
	)
	arrivalLatency, err6 := meter.Float64Histogram("commute.transit.arrival_latency",
		metric.WithDescription("Live arrival lookup latency"),
		metric.WithUnit("ms"),
	)
	if err := errors.Join(err1, err2, err3, err4, err5, err6); err != nil {
		return nil, err
	}

	return &EngineMetrics{
		routeChecks:      routeChecks,
		segmentChecks:    segmentChecks,
		suggestions:      suggestions,
		departureCalcs:   departureCalcs,
		notifications:    notifications,
		arrivalLatencyMs: arrivalLatency,
	}, nil
}

// RecordRouteCheck counts one aggregated route check.
func (m *EngineMetrics) RecordRouteCheck(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.routeChecks.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordSegmentCheck counts one checkpoint classification.
func (m *EngineMetrics) RecordSegmentCheck(ctx context.Context, status, source string) {
	if m == nil {
		return
	}
	m.segmentChecks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", status),
		attribute.String("source", source),
	))
}

// RecordSuggestions counts emitted alternative suggestions.
func (m *EngineMetrics) RecordSuggestions(ctx context.Context, n int) {
	if m == nil || n == 0 {
		return
	}
	m.suggestions.Add(ctx, int64(n))
}

// RecordDepartureCalculation counts a departure calculation outcome.
func (m *EngineMetrics) RecordDepartureCalculation(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.departureCalcs.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordNotification counts a departure update notification attempt.
func (m *EngineMetrics) RecordNotification(ctx context.Context, delivered bool) {
	if m == nil {
		return
	}
	result := "delivered"
	if !delivered {
		result = "failed"
	}
	m.notifications.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordArrivalLookup records the latency of a live arrival lookup.
func (m *EngineMetrics) RecordArrivalLookup(ctx context.Context, provider string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.arrivalLatencyMs.Record(ctx, float64(d.Microseconds())/1000.0, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.Bool("error", err != nil),
	))
}
