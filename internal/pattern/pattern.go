// Package pattern estimates a user's typical departure time from past commute records.
package pattern

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/commutepulse/commutepulse/internal/commute"
)

// Confidence describes how much history backs an estimate.
type Confidence string

const (
	ConfidenceColdStart Confidence = "COLD_START"
	ConfidenceLearning  Confidence = "LEARNING"
	ConfidenceConfident Confidence = "CONFIDENT"
)

const (
	// MinSamples is the number of departures needed before history replaces the default.
	MinSamples = 5

	// DecayFactor is the per-step weight decay, most recent record first.
	DecayFactor = 0.9

	// ColdStartStdDevMinutes is the spread reported with a default time.
	ColdStartStdDevMinutes = 15

	minutesPerDay = 24 * 60
)

// Location is the civil timezone departures are read in (UTC+9).
var Location = time.FixedZone("KST", 9*60*60)

// Defaults holds the cold-start departure time per commute type and day kind, as "HH:MM".
type Defaults struct {
	MorningWeekday string
	MorningWeekend string
	EveningWeekday string
	EveningWeekend string
}

// DefaultDefaults returns the built-in cold-start times.
func DefaultDefaults() Defaults {
	return Defaults{
		MorningWeekday: "08:00",
		MorningWeekend: "10:00",
		EveningWeekday: "18:30",
		EveningWeekend: "17:00",
	}
}

func (d Defaults) lookup(t commute.CommuteType, weekday bool) string {
	switch {
	case t == commute.CommuteMorning && weekday:
		return d.MorningWeekday
	case t == commute.CommuteMorning:
		return d.MorningWeekend
	case weekday:
		return d.EveningWeekday
	default:
		return d.EveningWeekend
	}
}

// EstimatorConfig holds configuration for the estimator.
type EstimatorConfig struct {
	// Records is the commute record store (required).
	Records commute.RecordRepository

	// Logger for estimator operations.
	Logger zerolog.Logger

	// Defaults are the cold-start times. Empty fields fall back to DefaultDefaults.
	Defaults Defaults

	// MaxSamples caps how many recent departures are weighed (default: 30).
	MaxSamples int

	// MatureSamples is the sample count at which confidence becomes CONFIDENT (default: 15).
	MatureSamples int

	// LookbackDays bounds how far back records are read (default: 90).
	LookbackDays int
}

// Estimator computes weighted departure-time estimates.
type Estimator struct {
	records       commute.RecordRepository
	logger        zerolog.Logger
	defaults      Defaults
	maxSamples    int
	matureSamples int
	lookbackDays  int
}

// NewEstimator creates a new pattern estimator.
func NewEstimator(cfg EstimatorConfig) *Estimator {
	defaults := DefaultDefaults()
	if cfg.Defaults.MorningWeekday != "" {
		defaults.MorningWeekday = cfg.Defaults.MorningWeekday
	}
	if cfg.Defaults.MorningWeekend != "" {
		defaults.MorningWeekend = cfg.Defaults.MorningWeekend
	}
	if cfg.Defaults.EveningWeekday != "" {
		defaults.EveningWeekday = cfg.Defaults.EveningWeekday
	}
	if cfg.Defaults.EveningWeekend != "" {
		defaults.EveningWeekend = cfg.Defaults.EveningWeekend
	}

	maxSamples := cfg.MaxSamples
	if maxSamples <= 0 {
		maxSamples = 30
	}

	mature := cfg.MatureSamples
	if mature <= 0 {
		mature = 15
	}

	lookback := cfg.LookbackDays
	if lookback <= 0 {
		lookback = 90
	}

	return &Estimator{
		records:       cfg.Records,
		logger:        cfg.Logger,
		defaults:      defaults,
		maxSamples:    maxSamples,
		matureSamples: mature,
		lookbackDays:  lookback,
	}
}

// Estimate is a predicted departure time.
type Estimate struct {
	CommuteType   commute.CommuteType `json:"commuteType"`
	Weekday       bool                `json:"weekday"`
	DepartureTime string              `json:"departureTime"`
	StdDevMinutes int                 `json:"stdDevMinutes"`
	Confidence    Confidence          `json:"confidence"`
	SampleCount   int                 `json:"sampleCount"`
}

// Estimate returns the user's typical departure time for a commute type on weekdays or weekends.
func (e *Estimator) Estimate(ctx context.Context, userID string, commuteType commute.CommuteType, weekday bool) (*Estimate, error) {
	records, err := e.records.FindRecords(ctx, userID, commuteType, e.lookbackDays)
	if err != nil {
		return nil, fmt.Errorf("finding commute records: %w", err)
	}

	samples := make([]int, 0, e.maxSamples)
	for i := range records {
		rec := &records[i]
		if rec.ActualDepartureAt == nil || rec.IsWeekday() != weekday {
			continue
		}
		samples = append(samples, MinutesOfDay(*rec.ActualDepartureAt))
		if len(samples) == e.maxSamples {
			break
		}
	}

	if len(samples) < MinSamples {
		e.logger.Debug().
			Str("user_id", userID).
			Str("commute_type", string(commuteType)).
			Bool("weekday", weekday).
			Int("samples", len(samples)).
			Msg("not enough history, using cold start default")

		return &Estimate{
			CommuteType:   commuteType,
			Weekday:       weekday,
			DepartureTime: e.defaults.lookup(commuteType, weekday),
			StdDevMinutes: ColdStartStdDevMinutes,
			Confidence:    ConfidenceColdStart,
			SampleCount:   len(samples),
		}, nil
	}

	mean, stddev := WeightedStats(samples, DecayFactor)

	confidence := ConfidenceLearning
	if len(samples) >= e.matureSamples {
		confidence = ConfidenceConfident
	}

	return &Estimate{
		CommuteType:   commuteType,
		Weekday:       weekday,
		DepartureTime: FormatMinutes(int(math.Round(mean))),
		StdDevMinutes: int(math.Round(stddev)),
		Confidence:    confidence,
		SampleCount:   len(samples),
	}, nil
}

// WeightedStats returns the decayed weighted mean of samples (most recent first) and the
// population standard deviation of the samples around that mean.
func WeightedStats(samples []int, decay float64) (mean, stddev float64) {
	if len(samples) == 0 {
		return 0, 0
	}

	var sum, weights float64
	w := 1.0
	for _, x := range samples {
		sum += w * float64(x)
		weights += w
		w *= decay
	}
	mean = sum / weights

	var sq float64
	for _, x := range samples {
		d := float64(x) - mean
		sq += d * d
	}
	stddev = math.Sqrt(sq / float64(len(samples)))

	return mean, stddev
}

// MinutesOfDay returns minutes since midnight of t in the civil timezone.
func MinutesOfDay(t time.Time) int {
	local := t.In(Location)
	return local.Hour()*60 + local.Minute()
}

// FormatMinutes formats minutes since midnight as "HH:MM", wrapping into a single day.
func FormatMinutes(minutes int) string {
	m := ((minutes % minutesPerDay) + minutesPerDay) % minutesPerDay
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}
