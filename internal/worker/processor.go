package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/commutepulse/commutepulse/internal/alternative"
	"github.com/commutepulse/commutepulse/internal/delay"
	"github.com/commutepulse/commutepulse/internal/departure"
	"github.com/commutepulse/commutepulse/internal/notify"
)

// DepartureCalculator recomputes departure snapshots.
type DepartureCalculator interface {
	Calculate(ctx context.Context, settingID string, date time.Time) (*departure.Snapshot, error)
}

// RouteChecker checks routes for live delays.
type RouteChecker interface {
	CheckRoute(ctx context.Context, routeID string) (*delay.RouteStatus, error)
}

// SuggestionFinder produces alternatives for a delayed route.
type SuggestionFinder interface {
	FindForStatus(ctx context.Context, status *delay.RouteStatus) ([]alternative.Suggestion, error)
}

// SuggestionPublisher delivers suggestion batches to users.
type SuggestionPublisher interface {
	PublishSuggestions(ctx context.Context, batch notify.SuggestionBatch) error
}

// Processor executes worker jobs.
type Processor struct {
	config     ProcessorConfig
	calculator DepartureCalculator
	checker    RouteChecker
	finder     SuggestionFinder
	publisher  SuggestionPublisher
	logger     zerolog.Logger
	now        func() time.Time

	stats *Stats
}

// ProcessorDeps holds the collaborators of a Processor.
type ProcessorDeps struct {
	Config     ProcessorConfig
	Calculator DepartureCalculator
	Checker    RouteChecker
	Finder     SuggestionFinder
	Publisher  SuggestionPublisher
	Logger     zerolog.Logger

	// Now overrides the clock used to default the job date.
	Now func() time.Time
}

// NewProcessor creates a job processor.
func NewProcessor(deps ProcessorDeps) *Processor {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	publisher := deps.Publisher
	if publisher == nil {
		publisher = notify.Nop{}
	}

	return &Processor{
		config:     deps.Config.withDefaults(),
		calculator: deps.Calculator,
		checker:    deps.Checker,
		finder:     deps.Finder,
		publisher:  publisher,
		logger:     deps.Logger,
		now:        now,
		stats:      &Stats{},
	}
}

// JobResult summarises one job run.
type JobResult struct {
	JobType    string
	StartTime  time.Time
	Duration   time.Duration
	Total      int
	Successful int
	Failed     int
	Errors     []ItemError

	// SuggestionsPublished counts batches sent by a delay check.
	SuggestionsPublished int
}

// ItemError records a failed setting or route.
type ItemError struct {
	ID    string
	Error string
}

// Handle dispatches a decoded job message.
// The job fails when more items failed than succeeded, so the message is redelivered.
func (p *Processor) Handle(ctx context.Context, msg JobMessage) (*JobResult, error) {
	var (
		result *JobResult
		err    error
	)
	switch msg.JobType {
	case JobDepartureRecalc:
		date := p.now()
		if msg.Date != "" {
			date, err = departure.ParseDate(msg.Date)
			if err != nil {
				return nil, fmt.Errorf("invalid job date %q: %w", msg.Date, err)
			}
		}
		result = p.RecalculateDepartures(ctx, msg.SettingIDs, date)
	case JobDelayCheck:
		result = p.CheckDelays(ctx, msg.RouteIDs)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownJob, msg.JobType)
	}

	if result.Failed > result.Successful {
		return result, fmt.Errorf("too many %s failures: %d/%d", msg.JobType, result.Failed, result.Total)
	}
	return result, nil
}

// RecalculateDepartures recomputes the snapshot of each setting for date.
func (p *Processor) RecalculateDepartures(ctx context.Context, settingIDs []string, date time.Time) *JobResult {
	return p.run(ctx, JobDepartureRecalc, settingIDs, func(ctx context.Context, id string) (bool, error) {
		snap, err := p.calculator.Calculate(ctx, id, date)
		if err != nil {
			return false, err
		}
		p.logger.Debug().
			Str("setting_id", id).
			Str("date", snap.DateKey()).
			Int("travel_minutes", snap.EstimatedTravelMinutes).
			Msg("departure recalculated")
		return false, nil
	})
}

// CheckDelays checks each route and publishes alternatives for delayed ones.
func (p *Processor) CheckDelays(ctx context.Context, routeIDs []string) *JobResult {
	return p.run(ctx, JobDelayCheck, routeIDs, func(ctx context.Context, id string) (bool, error) {
		status, err := p.checker.CheckRoute(ctx, id)
		if err != nil {
			return false, err
		}
		if status.Status == delay.RouteNormal || p.finder == nil {
			return false, nil
		}

		suggestions, err := p.finder.FindForStatus(ctx, status)
		if err != nil {
			return false, fmt.Errorf("finding alternatives: %w", err)
		}
		if len(suggestions) == 0 {
			return false, nil
		}

		batch := notify.SuggestionBatch{
			UserID:      status.UserID,
			RouteID:     status.RouteID,
			RouteStatus: string(status.Status),
			Suggestions: suggestions,
			CheckedAt:   status.CheckedAt,
		}
		if err := p.publisher.PublishSuggestions(ctx, batch); err != nil {
			return false, fmt.Errorf("publishing suggestions: %w", err)
		}
		return true, nil
	})
}

// run processes ids with a bounded pool. fn reports whether it published.
func (p *Processor) run(ctx context.Context, jobType string, ids []string, fn func(context.Context, string) (bool, error)) *JobResult {
	result := &JobResult{
		JobType:   jobType,
		StartTime: time.Now(),
		Total:     len(ids),
	}

	p.logger.Info().
		Str("job_type", jobType).
		Int("items", len(ids)).
		Int("concurrency", p.config.Concurrency).
		Msg("starting job")

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(p.config.Concurrency)
	for _, id := range ids {
		g.Go(func() error {
			var (
				published bool
				err       = ctx.Err()
			)
			if err == nil {
				itemCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
				published, err = fn(itemCtx, id)
				cancel()
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed++
				result.Errors = append(result.Errors, ItemError{ID: id, Error: err.Error()})
				p.logger.Warn().Err(err).Str("job_type", jobType).Str("id", id).Msg("job item failed")
				return nil
			}
			result.Successful++
			if published {
				result.SuggestionsPublished++
			}
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // items never fail the group

	result.Duration = time.Since(result.StartTime)
	p.stats.record(result)

	p.logger.Info().
		Str("job_type", jobType).
		Dur("duration", result.Duration).
		Int("successful", result.Successful).
		Int("failed", result.Failed).
		Int("suggestions_published", result.SuggestionsPublished).
		Msg("job completed")

	return result
}

// Stats tracks processed job totals.
type Stats struct {
	mu sync.RWMutex

	JobsRun              int64
	ItemsSucceeded       int64
	ItemsFailed          int64
	SuggestionsPublished int64
	LastJobAt            time.Time
	LastJobDuration      time.Duration
}

func (s *Stats) record(r *JobResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.JobsRun++
	s.ItemsSucceeded += int64(r.Successful)
	s.ItemsFailed += int64(r.Failed)
	s.SuggestionsPublished += int64(r.SuggestionsPublished)
	s.LastJobAt = r.StartTime.Add(r.Duration)
	s.LastJobDuration = r.Duration
}

// GetStats returns a copy of the processor totals.
func (p *Processor) GetStats() Stats {
	p.stats.mu.RLock()
	defer p.stats.mu.RUnlock()

	return Stats{
		JobsRun:              p.stats.JobsRun,
		ItemsSucceeded:       p.stats.ItemsSucceeded,
		ItemsFailed:          p.stats.ItemsFailed,
		SuggestionsPublished: p.stats.SuggestionsPublished,
		LastJobAt:            p.stats.LastJobAt,
		LastJobDuration:      p.stats.LastJobDuration,
	}
}
