package departure

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/commutepulse/commutepulse/internal/commute"
	"github.com/commutepulse/commutepulse/internal/notify"
	"github.com/commutepulse/commutepulse/internal/telemetry"
)

// Travel estimation constants.
const (
	HistoryLookbackDays = 14
	MinHistorySessions  = 3

	// Blend weights in tenths; they sum to 10.
	BaselineWeight = 2
	HistoryWeight  = 5
	RealtimeWeight = 3

	MinTravelMinutes = 5
	MaxTravelMinutes = 120

	// NotifyDeltaMinutes is the travel change that triggers a departure update.
	NotifyDeltaMinutes = 2
)

// RealtimeAdjuster supplies live delay minutes to add to a route's travel time.
type RealtimeAdjuster interface {
	AdjustmentMinutes(ctx context.Context, routeID string) (int, error)
}

// NoAdjustment is a RealtimeAdjuster that always returns zero.
type NoAdjustment struct{}

// AdjustmentMinutes returns 0.
func (NoAdjustment) AdjustmentMinutes(context.Context, string) (int, error) { return 0, nil }

// Notifier delivers departure updates.
type Notifier interface {
	NotifyDepartureUpdate(ctx context.Context, update notify.DepartureUpdate) error
}

// CalculatorConfig holds configuration for the departure calculator.
type CalculatorConfig struct {
	Settings  SettingRepository
	Snapshots SnapshotRepository
	Routes    commute.RouteRepository
	Sessions  commute.SessionRepository

	// Adjuster supplies live delay minutes (default: NoAdjustment).
	Adjuster RealtimeAdjuster

	// Notifier receives departure updates (default: notify.Nop).
	Notifier Notifier

	Logger  zerolog.Logger
	Metrics *telemetry.EngineMetrics

	// Now overrides the clock (optional).
	Now func() time.Time
}

// Calculator computes and maintains departure snapshots.
type Calculator struct {
	settings  SettingRepository
	snapshots SnapshotRepository
	routes    commute.RouteRepository
	sessions  commute.SessionRepository
	adjuster  RealtimeAdjuster
	notifier  Notifier
	logger    zerolog.Logger
	metrics   *telemetry.EngineMetrics
	now       func() time.Time
}

// NewCalculator creates a new departure calculator.
func NewCalculator(cfg CalculatorConfig) *Calculator {
	adjuster := cfg.Adjuster
	if adjuster == nil {
		adjuster = NoAdjustment{}
	}

	var notifier Notifier = notify.Nop{}
	if cfg.Notifier != nil {
		notifier = cfg.Notifier
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Calculator{
		settings:  cfg.Settings,
		snapshots: cfg.Snapshots,
		routes:    cfg.Routes,
		sessions:  cfg.Sessions,
		adjuster:  adjuster,
		notifier:  notifier,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		now:       now,
	}
}

// EstimateTravel blends the baseline, optional history mean and realtime adjustment
// into a travel time in minutes, clamped to [MinTravelMinutes, MaxTravelMinutes].
// A blended value with a fractional minute is rounded up.
func EstimateTravel(baseline int, history *int, realtime int) int {
	if history == nil {
		return clamp(baseline + realtime)
	}
	h := *history
	tenths := BaselineWeight*baseline + HistoryWeight*h + RealtimeWeight*(h+realtime)
	return clamp(int(math.Ceil(float64(tenths) / 10)))
}

func clamp(minutes int) int {
	return max(MinTravelMinutes, min(MaxTravelMinutes, minutes))
}

// Get returns the stored snapshot for the setting on date.
// Returns ErrSnapshotNotFound if it hasn't been calculated.
func (c *Calculator) Get(ctx context.Context, settingID string, date time.Time) (*Snapshot, error) {
	return c.snapshots.FindSnapshot(ctx, settingID, CivilDate(date))
}

// Calculate recomputes the departure snapshot for settingID on date and persists it.
// Departed snapshots are returned unchanged.
func (c *Calculator) Calculate(ctx context.Context, settingID string, date time.Time) (*Snapshot, error) {
	day := CivilDate(date)

	setting, err := c.settings.GetSetting(ctx, settingID)
	if err != nil {
		c.metrics.RecordDepartureCalculation(ctx, "error")
		return nil, fmt.Errorf("loading setting %s: %w", settingID, err)
	}

	existing, err := c.snapshots.FindSnapshot(ctx, settingID, day)
	if err != nil && !errors.Is(err, ErrSnapshotNotFound) {
		c.metrics.RecordDepartureCalculation(ctx, "error")
		return nil, fmt.Errorf("loading snapshot: %w", err)
	}
	if existing != nil && existing.Status == StatusDeparted {
		c.metrics.RecordDepartureCalculation(ctx, "departed")
		return existing, nil
	}

	target, err := ArrivalTarget(day, setting.ArrivalTime)
	if err != nil {
		c.metrics.RecordDepartureCalculation(ctx, "error")
		return nil, err
	}

	var (
		baseline int
		history  *int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		route, err := c.routes.GetRoute(gctx, setting.RouteID)
		if err != nil {
			return fmt.Errorf("loading route %s: %w", setting.RouteID, err)
		}
		baseline = route.ExpectedDurationMinutes
		return nil
	})
	g.Go(func() error {
		history = c.historyMinutes(gctx, setting)
		return nil
	})
	if err := g.Wait(); err != nil {
		c.metrics.RecordDepartureCalculation(ctx, "error")
		return nil, err
	}

	realtime, err := c.adjuster.AdjustmentMinutes(ctx, setting.RouteID)
	if err != nil {
		c.logger.Warn().Err(err).
			Str("route_id", setting.RouteID).
			Msg("realtime adjustment unavailable, using 0")
		realtime = 0
	}

	travel := EstimateTravel(baseline, history, realtime)
	departAt := target.Add(-time.Duration(travel+setting.PrepTimeMinutes) * time.Minute)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := c.now()
	next := &Snapshot{
		SettingID:                 setting.ID,
		UserID:                    setting.UserID,
		RouteID:                   setting.RouteID,
		Date:                      day,
		DepartureType:             setting.DepartureType,
		ArrivalTime:               setting.ArrivalTime,
		PrepTimeMinutes:           setting.PrepTimeMinutes,
		BaselineMinutes:           baseline,
		HistoryMinutes:            history,
		RealtimeAdjustmentMinutes: realtime,
		EstimatedTravelMinutes:    travel,
		OptimalDepartureAt:        departAt,
		CalculatedAt:              now,
		UpdatedAt:                 now,
	}

	if existing == nil {
		next.ID = "dsn_" + uuid.NewString()
		next.Status = StatusScheduled
		err := c.snapshots.CreateSnapshot(ctx, next)
		if err == nil {
			c.metrics.RecordDepartureCalculation(ctx, "created")
			c.logger.Info().
				Str("setting_id", settingID).
				Str("date", next.DateKey()).
				Int("travel_minutes", travel).
				Time("depart_at", departAt).
				Msg("departure snapshot created")
			return next, nil
		}
		if !errors.Is(err, ErrSnapshotExists) {
			c.metrics.RecordDepartureCalculation(ctx, "error")
			return nil, fmt.Errorf("creating snapshot: %w", err)
		}

		// Lost a concurrent create; apply this calculation as an update.
		existing, err = c.snapshots.FindSnapshot(ctx, settingID, day)
		if err != nil {
			c.metrics.RecordDepartureCalculation(ctx, "error")
			return nil, fmt.Errorf("reloading snapshot: %w", err)
		}
		if existing.Status == StatusDeparted {
			c.metrics.RecordDepartureCalculation(ctx, "departed")
			return existing, nil
		}
	}

	return c.update(ctx, existing, next)
}

func (c *Calculator) update(ctx context.Context, prev, next *Snapshot) (*Snapshot, error) {
	next.ID = prev.ID
	next.Status = prev.Status
	next.AlertsSent = prev.AlertsSent

	// Persist before notifying; the next delta is taken against the stored travel.
	if err := c.snapshots.UpdateSnapshot(ctx, next); err != nil {
		if errors.Is(err, ErrSnapshotDeparted) {
			return c.departedSince(ctx, next)
		}
		c.metrics.RecordDepartureCalculation(ctx, "error")
		return nil, fmt.Errorf("updating snapshot: %w", err)
	}

	delta := next.EstimatedTravelMinutes - prev.EstimatedTravelMinutes
	if (delta >= NotifyDeltaMinutes || delta <= -NotifyDeltaMinutes) && c.deliver(ctx, prev, next) {
		next.AlertsSent++
		if next.Status == StatusScheduled {
			next.Status = StatusNotified
		}
		if err := c.snapshots.UpdateSnapshot(ctx, next); err != nil {
			if errors.Is(err, ErrSnapshotDeparted) {
				return c.departedSince(ctx, next)
			}
			c.logger.Warn().Err(err).
				Str("setting_id", next.SettingID).
				Str("snapshot_id", next.ID).
				Msg("failed to record sent departure update")
		}
	}

	c.metrics.RecordDepartureCalculation(ctx, "updated")
	c.logger.Debug().
		Str("setting_id", next.SettingID).
		Str("date", next.DateKey()).
		Int("travel_minutes", next.EstimatedTravelMinutes).
		Int("delta_minutes", delta).
		Msg("departure snapshot updated")

	return next, nil
}

// departedSince returns the stored snapshot after a write lost to a concurrent departure.
func (c *Calculator) departedSince(ctx context.Context, next *Snapshot) (*Snapshot, error) {
	stored, err := c.snapshots.FindSnapshot(ctx, next.SettingID, next.Date)
	if err != nil {
		c.metrics.RecordDepartureCalculation(ctx, "error")
		return nil, fmt.Errorf("reloading snapshot: %w", err)
	}
	c.metrics.RecordDepartureCalculation(ctx, "departed")
	return stored, nil
}

// deliver sends a departure update and reports whether it was accepted.
func (c *Calculator) deliver(ctx context.Context, prev, next *Snapshot) bool {
	delayed := next.EstimatedTravelMinutes > prev.EstimatedTravelMinutes
	update := notify.DepartureUpdate{
		SnapshotID:             next.ID,
		SettingID:              next.SettingID,
		UserID:                 next.UserID,
		RouteID:                next.RouteID,
		Date:                   next.DateKey(),
		EstimatedTravelMinutes: next.EstimatedTravelMinutes,
		PreviousTravelMinutes:  prev.EstimatedTravelMinutes,
		OptimalDepartureAt:     next.OptimalDepartureAt,
		Delayed:                delayed,
		Message:                updateMessage(prev, next, delayed),
	}

	if err := c.notifier.NotifyDepartureUpdate(ctx, update); err != nil {
		c.logger.Error().Err(err).
			Str("setting_id", next.SettingID).
			Str("snapshot_id", next.ID).
			Msg("failed to send departure update")
		c.metrics.RecordNotification(ctx, false)
		return false
	}
	c.metrics.RecordNotification(ctx, true)
	return true
}

func updateMessage(prev, next *Snapshot, delayed bool) string {
	leave := next.OptimalDepartureAt.In(Location).Format("15:04")
	diff := next.EstimatedTravelMinutes - prev.EstimatedTravelMinutes
	if delayed {
		return fmt.Sprintf("Travel is %d min longer than planned. Leave by %s.", diff, leave)
	}
	return fmt.Sprintf("Travel is %d min shorter than planned. You can leave at %s.", -diff, leave)
}

// historyMinutes returns the rounded mean duration of recent completed sessions,
// or nil when there are too few. Lookup errors are logged and treated as no history.
func (c *Calculator) historyMinutes(ctx context.Context, setting *Setting) *int {
	since := c.now().AddDate(0, 0, -HistoryLookbackDays)
	sessions, err := c.sessions.FindCompletedSessions(ctx, setting.UserID, setting.RouteID, since)
	if err != nil {
		c.logger.Warn().Err(err).
			Str("route_id", setting.RouteID).
			Msg("failed to load session history")
		return nil
	}

	var sum, n int
	for _, s := range sessions {
		if s.TotalDurationMinutes == nil {
			continue
		}
		sum += *s.TotalDurationMinutes
		n++
	}
	if n < MinHistorySessions {
		return nil
	}

	mean := int(math.Round(float64(sum) / float64(n)))
	return &mean
}

// MarkDeparted moves the snapshot for settingID on date to the departed state.
// Marking an already departed snapshot is a no-op.
func (c *Calculator) MarkDeparted(ctx context.Context, settingID string, date time.Time) (*Snapshot, error) {
	snapshot, err := c.snapshots.FindSnapshot(ctx, settingID, CivilDate(date))
	if err != nil {
		return nil, err
	}
	if snapshot.Status == StatusDeparted {
		return snapshot, nil
	}

	snapshot.Status = StatusDeparted
	snapshot.UpdatedAt = c.now()
	if err := c.snapshots.UpdateSnapshot(ctx, snapshot); err != nil {
		if errors.Is(err, ErrSnapshotDeparted) {
			return c.snapshots.FindSnapshot(ctx, settingID, CivilDate(date))
		}
		return nil, fmt.Errorf("updating snapshot: %w", err)
	}

	c.logger.Info().
		Str("setting_id", settingID).
		Str("date", snapshot.DateKey()).
		Msg("user departed")

	return snapshot, nil
}
