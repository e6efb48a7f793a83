package delay

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/commutepulse/commutepulse/internal/commute"
	"github.com/commutepulse/commutepulse/internal/telemetry"
	"github.com/commutepulse/commutepulse/internal/transit"
)

// MonitorConfig holds configuration for the delay monitor.
type MonitorConfig struct {
	// Routes is the route store (required).
	Routes commute.RouteRepository

	// Arrivals is the live arrival provider (required).
	Arrivals transit.ArrivalProvider

	// Logger for monitor operations.
	Logger zerolog.Logger

	// Metrics records check outcomes (optional).
	Metrics *telemetry.EngineMetrics

	// Tracer wraps checks in spans (optional).
	Tracer trace.Tracer

	// Concurrency bounds parallel arrival lookups per route (default: 4).
	Concurrency int

	// Now overrides the clock (optional).
	Now func() time.Time
}

// Monitor checks live delays along routes.
type Monitor struct {
	routes      commute.RouteRepository
	arrivals    transit.ArrivalProvider
	logger      zerolog.Logger
	metrics     *telemetry.EngineMetrics
	tracer      trace.Tracer
	concurrency int
	now         func() time.Time
}

// NewMonitor creates a new delay monitor.
func NewMonitor(cfg MonitorConfig) *Monitor {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	tracer := cfg.Tracer
	if tracer == nil {
		tracer = telemetry.Tracer("commutepulse/delay")
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Monitor{
		routes:      cfg.Routes,
		arrivals:    cfg.Arrivals,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
		tracer:      tracer,
		concurrency: concurrency,
		now:         now,
	}
}

// CheckRoute loads a route and checks its live delays.
// Returns commute.ErrRouteNotFound if the route doesn't exist.
func (m *Monitor) CheckRoute(ctx context.Context, routeID string) (*RouteStatus, error) {
	route, err := m.routes.GetRoute(ctx, routeID)
	if err != nil {
		return nil, fmt.Errorf("loading route %s: %w", routeID, err)
	}
	return m.Check(ctx, route)
}

// Check classifies every transit checkpoint of route and aggregates the result.
// Provider failures degrade the affected segment; only context cancellation is returned.
func (m *Monitor) Check(ctx context.Context, route *commute.Route) (*RouteStatus, error) {
	ctx, span := m.tracer.Start(ctx, "delay.Check", trace.WithAttributes(
		attribute.String("route.id", route.ID),
	))
	defer span.End()

	checkpoints := route.TransitCheckpoints()
	span.SetAttributes(attribute.Int("route.transit_checkpoints", len(checkpoints)))

	segments := make([]Segment, len(checkpoints))

	var g errgroup.Group
	g.SetLimit(m.concurrency)
	for i := range checkpoints {
		g.Go(func() error {
			segments[i] = m.checkSegment(ctx, &checkpoints[i])
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // tasks never fail

	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	status, total := Aggregate(segments)

	result := &RouteStatus{
		RouteID:                  route.ID,
		UserID:                   route.UserID,
		RouteName:                route.Name,
		Status:                   status,
		TotalDelayMinutes:        total,
		ExpectedDurationMinutes:  route.ExpectedDurationMinutes,
		EstimatedDurationMinutes: route.ExpectedDurationMinutes + total,
		Segments:                 segments,
		CheckedAt:                m.now(),
	}

	span.SetAttributes(
		attribute.String("route.status", string(status)),
		attribute.Int("route.total_delay_minutes", total),
	)
	m.metrics.RecordRouteCheck(ctx, string(status))

	m.logger.Debug().
		Str("route_id", route.ID).
		Str("status", string(status)).
		Int("total_delay_minutes", total).
		Int("segments", len(segments)).
		Msg("route delay checked")

	return result, nil
}

// checkSegment classifies a single transit checkpoint. It never fails.
func (m *Monitor) checkSegment(ctx context.Context, cp *commute.Checkpoint) Segment {
	seg := Segment{
		CheckpointID:         cp.ID,
		CheckpointName:       cp.Name,
		CheckpointType:       cp.Type,
		LineID:               cp.LineID,
		ExpectedWaitMinutes:  cp.ExpectedWaitMinutes,
		EstimatedWaitMinutes: cp.ExpectedWaitMinutes,
		Status:               SegmentNormal,
		Source:               SourceEstimated,
		CheckedAt:            m.now(),
	}

	station := transit.StripStationSuffix(cp.Name)

	start := time.Now()
	arrivals, err := m.arrivals.GetArrivals(ctx, station)
	m.metrics.RecordArrivalLookup(ctx, m.arrivals.Name(), time.Since(start), err)

	if err != nil {
		m.logger.Warn().Err(err).
			Str("checkpoint_id", cp.ID).
			Str("station", station).
			Msg("arrival lookup failed, marking segment unavailable")
		seg.Status = SegmentUnavailable
		m.metrics.RecordSegmentCheck(ctx, string(seg.Status), string(seg.Source))
		return seg
	}

	soonest, ok := transit.Soonest(transit.FilterByLine(arrivals, cp.LineID))
	if ok {
		seg.Source = SourceRealtime
		seg.EstimatedWaitMinutes = transit.WaitMinutes(soonest.ArrivalSeconds)
		if d := seg.EstimatedWaitMinutes - seg.ExpectedWaitMinutes; d > 0 {
			seg.DelayMinutes = d
		}
		seg.Status = ClassifySegment(seg.DelayMinutes)
	}

	m.metrics.RecordSegmentCheck(ctx, string(seg.Status), string(seg.Source))
	return seg
}

// RouteResult is the outcome of checking one route in a batch.
type RouteResult struct {
	RouteID string
	Status  *RouteStatus
	Err     error
}

// CheckRoutes checks several routes concurrently. Results keep the input order and
// a failing route does not affect the others.
func (m *Monitor) CheckRoutes(ctx context.Context, routeIDs []string) []RouteResult {
	results := make([]RouteResult, len(routeIDs))

	var g errgroup.Group
	g.SetLimit(m.concurrency)
	for i, id := range routeIDs {
		g.Go(func() error {
			status, err := m.CheckRoute(ctx, id)
			results[i] = RouteResult{RouteID: id, Status: status, Err: err}
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // tasks never fail

	return results
}
