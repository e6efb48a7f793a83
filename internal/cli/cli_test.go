package cli_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commutepulse/commutepulse/internal/alternative"
	"github.com/commutepulse/commutepulse/internal/cli"
	"github.com/commutepulse/commutepulse/internal/commute"
	"github.com/commutepulse/commutepulse/internal/delay"
	"github.com/commutepulse/commutepulse/internal/departure"
	"github.com/commutepulse/commutepulse/internal/pattern"
)

type fakePatterns struct {
	gotWeekday bool
}

func (f *fakePatterns) Estimate(_ context.Context, _ string, t commute.CommuteType, weekday bool) (*pattern.Estimate, error) {
	f.gotWeekday = weekday
	return &pattern.Estimate{
		CommuteType:   t,
		Weekday:       weekday,
		DepartureTime: "08:12",
		StdDevMinutes: 4,
		Confidence:    pattern.ConfidenceLearning,
		SampleCount:   7,
	}, nil
}

type fakeDelays struct {
	status *delay.RouteStatus
}

func (f *fakeDelays) CheckRoute(_ context.Context, routeID string) (*delay.RouteStatus, error) {
	if f.status == nil || f.status.RouteID != routeID {
		return nil, commute.ErrRouteNotFound
	}
	return f.status, nil
}

type fakeFinder struct {
	suggestions []alternative.Suggestion
}

func (f *fakeFinder) FindForStatus(context.Context, *delay.RouteStatus) ([]alternative.Suggestion, error) {
	return f.suggestions, nil
}

type fakeCalculator struct {
	calculated time.Time
	marked     bool
}

func (f *fakeCalculator) snapshot(settingID string, date time.Time, status departure.SnapshotStatus) *departure.Snapshot {
	history := 40
	return &departure.Snapshot{
		SettingID:                 settingID,
		Date:                      date,
		ArrivalTime:               "09:00",
		PrepTimeMinutes:           10,
		BaselineMinutes:           45,
		HistoryMinutes:            &history,
		RealtimeAdjustmentMinutes: 6,
		EstimatedTravelMinutes:    43,
		OptimalDepartureAt:        time.Date(date.Year(), date.Month(), date.Day(), 8, 7, 0, 0, departure.Location),
		Status:                    status,
	}
}

func (f *fakeCalculator) Calculate(_ context.Context, settingID string, date time.Time) (*departure.Snapshot, error) {
	f.calculated = date
	return f.snapshot(settingID, date, departure.StatusScheduled), nil
}

func (f *fakeCalculator) MarkDeparted(_ context.Context, settingID string, date time.Time) (*departure.Snapshot, error) {
	f.marked = true
	return f.snapshot(settingID, date, departure.StatusDeparted), nil
}

type fakeTokens struct{}

func (fakeTokens) GenerateAccessToken(userID string, ttl time.Duration) (string, time.Time, error) {
	return "token-for-" + userID, time.Date(2024, 3, 18, 7, 0, 0, 0, time.UTC).Add(ttl), nil
}

var now = time.Date(2024, 3, 18, 6, 0, 0, 0, departure.Location)

func run(t *testing.T, svc *cli.Services, args ...string) (string, error) {
	t.Helper()
	color.NoColor = true

	released := false
	load := func(context.Context) (*cli.Services, func() error, error) {
		return svc, func() error { released = true; return nil }, nil
	}

	var out bytes.Buffer
	root := cli.NewRootCmd("test", load)
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)

	err := root.ExecuteContext(context.Background())
	if err == nil {
		assert.True(t, released, "services should be released")
	}
	return out.String(), err
}

func delayedRoute() *delay.RouteStatus {
	return &delay.RouteStatus{
		RouteID:                  "route-1",
		RouteName:                "Home to office",
		Status:                   delay.RouteDelayed,
		TotalDelayMinutes:        11,
		ExpectedDurationMinutes:  45,
		EstimatedDurationMinutes: 56,
		Segments: []delay.Segment{{
			CheckpointID:         "cp-2",
			CheckpointName:       "강남",
			LineID:               "2호선",
			Status:               delay.SegmentSevereDelay,
			ExpectedWaitMinutes:  3,
			EstimatedWaitMinutes: 14,
			DelayMinutes:         11,
			Source:               delay.SourceRealtime,
		}},
	}
}

func TestPatternCmd(t *testing.T) {
	patterns := &fakePatterns{}
	out, err := run(t, &cli.Services{Patterns: patterns}, "pattern", "user-1", "morning")
	require.NoError(t, err)

	assert.True(t, patterns.gotWeekday)
	assert.Contains(t, out, "morning weekday departure: 08:12")
	assert.Contains(t, out, "LEARNING (7 samples)")
}

func TestPatternCmd_WeekendJSON(t *testing.T) {
	patterns := &fakePatterns{}
	out, err := run(t, &cli.Services{Patterns: patterns}, "pattern", "user-1", "evening", "--weekend", "--json")
	require.NoError(t, err)

	assert.False(t, patterns.gotWeekday)
	var est pattern.Estimate
	require.NoError(t, json.Unmarshal([]byte(out), &est))
	assert.Equal(t, commute.CommuteEvening, est.CommuteType)
	assert.Equal(t, "08:12", est.DepartureTime)
}

func TestPatternCmd_InvalidType(t *testing.T) {
	_, err := run(t, &cli.Services{Patterns: &fakePatterns{}}, "pattern", "user-1", "noon")
	assert.ErrorContains(t, err, "morning or evening")
}

func TestDelaysCmd(t *testing.T) {
	out, err := run(t, &cli.Services{Delays: &fakeDelays{status: delayedRoute()}}, "delays", "route-1")
	require.NoError(t, err)

	assert.Contains(t, out, "Home to office: delayed (+11 min, 45 → 56 min)")
	assert.Contains(t, out, "강남 2호선")
	assert.Contains(t, out, "wait 14/3 min")
}

func TestDelaysCmd_NotFound(t *testing.T) {
	_, err := run(t, &cli.Services{Delays: &fakeDelays{}}, "delays", "missing")
	assert.True(t, errors.Is(err, commute.ErrRouteNotFound))
}

func TestAlternativesCmd(t *testing.T) {
	finder := &fakeFinder{suggestions: []alternative.Suggestion{{
		TriggerCheckpointID: "cp-2",
		TriggerReason:       "강남 2호선 delayed 11 min",
		Description:         "Walk to 신논현 and take 9호선",
		Steps: []alternative.Step{
			{Action: alternative.ActionWalk, From: "강남", To: "신논현", DurationMinutes: 5},
		},
		SavingsMinutes: 8,
		Confidence:     alternative.ConfidenceHigh,
	}}}
	svc := &cli.Services{Delays: &fakeDelays{status: delayedRoute()}, Finder: finder}

	out, err := run(t, svc, "alternatives", "route-1")
	require.NoError(t, err)

	assert.Contains(t, out, "1. Walk to 신논현 and take 9호선  saves 8 min, high")
	assert.Contains(t, out, "- walk 강남 → 신논현 5 min")
}

func TestAlternativesCmd_None(t *testing.T) {
	svc := &cli.Services{Delays: &fakeDelays{status: delayedRoute()}, Finder: &fakeFinder{}}

	out, err := run(t, svc, "alternatives", "route-1")
	require.NoError(t, err)
	assert.Contains(t, out, "route-1: no alternatives (delayed)")
}

func TestDepartCmd_DefaultsToToday(t *testing.T) {
	calc := &fakeCalculator{}
	svc := &cli.Services{Calculator: calc, Now: func() time.Time { return now }}

	out, err := run(t, svc, "depart", "set-1")
	require.NoError(t, err)

	assert.Equal(t, "2024-03-18", calc.calculated.Format(departure.DateLayout))
	assert.Contains(t, out, "set-1 2024-03-18: leave at 08:07 for 09:00 arrival [scheduled]")
	assert.Contains(t, out, "travel 43 min (baseline 45, history 40, live +6), prep 10 min")
	assert.Contains(t, out, "127 min until departure")
}

func TestDepartCmd_MarkWithDate(t *testing.T) {
	calc := &fakeCalculator{}
	svc := &cli.Services{Calculator: calc, Now: func() time.Time { return now }}

	out, err := run(t, svc, "depart", "set-1", "--date", "2024-03-19", "--mark")
	require.NoError(t, err)

	assert.True(t, calc.marked)
	assert.Contains(t, out, "2024-03-19")
	assert.NotContains(t, out, "until departure")
}

func TestDepartCmd_InvalidDate(t *testing.T) {
	svc := &cli.Services{Calculator: &fakeCalculator{}, Now: func() time.Time { return now }}

	_, err := run(t, svc, "depart", "set-1", "--date", "19-03-2024")
	assert.ErrorContains(t, err, "YYYY-MM-DD")
}

func TestMigrateCmd(t *testing.T) {
	_, err := run(t, &cli.Services{}, "migrate")
	assert.ErrorContains(t, err, "DB_HOST")

	svc := &cli.Services{Migrate: func(context.Context) ([]string, error) {
		return []string{"0001_init.sql"}, nil
	}}
	out, err := run(t, svc, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "applied 0001_init.sql")
}

func TestTokenCmd(t *testing.T) {
	out, err := run(t, &cli.Services{Tokens: fakeTokens{}}, "token", "user-1")
	require.NoError(t, err)
	assert.Equal(t, "token-for-user-1\n", out)
}

func TestLoaderError(t *testing.T) {
	root := cli.NewRootCmd("test", func(context.Context) (*cli.Services, func() error, error) {
		return nil, nil, errors.New("config broken")
	})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"delays", "route-1"})

	assert.ErrorContains(t, root.Execute(), "config broken")
}
