package alternative

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/commutepulse/commutepulse/internal/delay"
	"github.com/commutepulse/commutepulse/internal/telemetry"
	"github.com/commutepulse/commutepulse/internal/transit"
)

const (
	// TriggerDelayMinutes is the segment delay at which alternatives are searched.
	TriggerDelayMinutes = 5

	// DefaultWaitMinutes is assumed for an alternative without a live arrival.
	DefaultWaitMinutes = 3
)

// FinderConfig holds configuration for the finder.
type FinderConfig struct {
	// Mappings is the alternative mapping store (required).
	Mappings MappingRepository

	// Arrivals is the live arrival provider (required).
	Arrivals transit.ArrivalProvider

	// Logger for finder operations.
	Logger zerolog.Logger

	// Metrics records emitted suggestions (optional).
	Metrics *telemetry.EngineMetrics

	// Concurrency bounds parallel candidate lookups (default: 4).
	Concurrency int
}

// Finder searches for faster alternatives to delayed segments.
type Finder struct {
	mappings    MappingRepository
	arrivals    transit.ArrivalProvider
	logger      zerolog.Logger
	metrics     *telemetry.EngineMetrics
	concurrency int
}

// NewFinder creates a new alternative finder.
func NewFinder(cfg FinderConfig) *Finder {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	return &Finder{
		mappings:    cfg.Mappings,
		arrivals:    cfg.Arrivals,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
		concurrency: concurrency,
	}
}

type evaluation struct {
	segment   *delay.Segment
	candidate Candidate
}

// Find returns suggestions for every segment delayed by at least TriggerDelayMinutes.
// Output follows segment order, then mapping order. Live arrival failures lower the
// confidence of a suggestion; mapping store failures are returned.
func (f *Finder) Find(ctx context.Context, segments []delay.Segment) ([]Suggestion, error) {
	var evals []evaluation
	for i := range segments {
		seg := &segments[i]
		if seg.DelayMinutes < TriggerDelayMinutes {
			continue
		}

		mappings, err := f.mappings.FindMappingsFor(ctx, seg.CheckpointName, seg.LineID)
		if err != nil {
			return nil, fmt.Errorf("finding mappings for %s: %w", seg.CheckpointName, err)
		}

		for j := range mappings {
			c, ok := mappings[j].Opposite(seg.CheckpointName, seg.LineID)
			if !ok {
				continue
			}
			evals = append(evals, evaluation{segment: seg, candidate: c})
		}
	}

	if len(evals) == 0 {
		return []Suggestion{}, nil
	}

	results := make([]*Suggestion, len(evals))

	var g errgroup.Group
	g.SetLimit(f.concurrency)
	for i := range evals {
		g.Go(func() error {
			results[i] = f.evaluate(ctx, evals[i].segment, evals[i].candidate)
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // tasks never fail

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	suggestions := make([]Suggestion, 0, len(results))
	for _, s := range results {
		if s != nil {
			suggestions = append(suggestions, *s)
		}
	}

	f.metrics.RecordSuggestions(ctx, len(suggestions))
	return suggestions, nil
}

// FindForStatus is Find over the segments of a route status.
func (f *Finder) FindForStatus(ctx context.Context, status *delay.RouteStatus) ([]Suggestion, error) {
	if status == nil {
		return []Suggestion{}, nil
	}
	return f.Find(ctx, status.Segments)
}

// evaluate returns a suggestion for the candidate, or nil when it saves no time.
func (f *Finder) evaluate(ctx context.Context, seg *delay.Segment, c Candidate) *Suggestion {
	wait, confidence := f.candidateWait(ctx, c)

	total := c.WalkingMinutes + wait
	savings := seg.EstimatedWaitMinutes - total
	if savings <= 0 {
		return nil
	}

	return &Suggestion{
		TriggerCheckpointID: seg.CheckpointID,
		TriggerReason: fmt.Sprintf("%s at %s is delayed by %d min",
			seg.LineID, seg.CheckpointName, seg.DelayMinutes),
		Description: fmt.Sprintf("Walk %d min to %s and take %s to save %d min",
			c.WalkingMinutes, c.Station, c.Line, savings),
		Steps: []Step{
			{
				Action:          ActionWalk,
				From:            seg.CheckpointName,
				To:              c.Station,
				DurationMinutes: c.WalkingMinutes,
			},
			{
				Action:          ActionSubway,
				From:            c.Station,
				Line:            c.Line,
				DurationMinutes: wait,
			},
		},
		TotalDurationMinutes:    total,
		OriginalDurationMinutes: seg.EstimatedWaitMinutes,
		SavingsMinutes:          savings,
		Confidence:              confidence,
		WalkingDistanceMeters:   c.WalkingDistanceMeters,
	}
}

// candidateWait estimates the wait at the alternative station and how reliable it is.
func (f *Finder) candidateWait(ctx context.Context, c Candidate) (int, Confidence) {
	arrivals, err := f.arrivals.GetArrivals(ctx, transit.StripStationSuffix(c.Station))
	if err != nil {
		f.logger.Warn().Err(err).
			Str("station", c.Station).
			Str("line", c.Line).
			Msg("alternative arrival lookup failed, using default wait")
		return DefaultWaitMinutes, ConfidenceLow
	}

	soonest, ok := transit.Soonest(transit.FilterByLine(arrivals, c.Line))
	if !ok {
		return DefaultWaitMinutes, ConfidenceMedium
	}
	return transit.WaitMinutes(soonest.ArrivalSeconds), ConfidenceHigh
}
