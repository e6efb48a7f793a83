package delay_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commutepulse/commutepulse/internal/commute"
	"github.com/commutepulse/commutepulse/internal/delay"
	"github.com/commutepulse/commutepulse/internal/transit"
)

// mockArrivals serves canned arrivals or errors per station.
type mockArrivals struct {
	mu       sync.Mutex
	arrivals map[string][]transit.Arrival
	errs     map[string]error
	queried  []string
}

func (m *mockArrivals) Name() string { return "mock" }

func (m *mockArrivals) GetArrivals(_ context.Context, station string) ([]transit.Arrival, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queried = append(m.queried, station)
	if err, ok := m.errs[station]; ok {
		return nil, err
	}
	return m.arrivals[station], nil
}

var checkTime = time.Date(2024, 3, 20, 8, 0, 0, 0, time.UTC)

func newMonitor(routes commute.RouteRepository, arrivals transit.ArrivalProvider) *delay.Monitor {
	return delay.NewMonitor(delay.MonitorConfig{
		Routes:   routes,
		Arrivals: arrivals,
		Logger:   zerolog.Nop(),
		Now:      func() time.Time { return checkTime },
	})
}

func testRoute() *commute.Route {
	return &commute.Route{
		ID:                      "route-1",
		UserID:                  "user-1",
		Name:                    "출근",
		ExpectedDurationMinutes: 45,
		Checkpoints: []commute.Checkpoint{
			{ID: "home", Sequence: 1, Name: "집", Type: commute.CheckpointHome},
			{ID: "gangnam", Sequence: 2, Name: "강남역", Type: commute.CheckpointSubway, LineID: "2호선", ExpectedWaitMinutes: 3},
			{ID: "jamsil", Sequence: 3, Name: "잠실역", Type: commute.CheckpointTransferPoint, LineID: "8호선", ExpectedWaitMinutes: 4},
			{ID: "bus", Sequence: 4, Name: "버스정류장", Type: commute.CheckpointBusStop, ExpectedWaitMinutes: 5},
			{ID: "work", Sequence: 5, Name: "회사", Type: commute.CheckpointWork},
		},
	}
}

func TestMonitor_Check(t *testing.T) {
	arrivals := &mockArrivals{
		arrivals: map[string][]transit.Arrival{
			"강남": {
				{LineID: "1002", ArrivalSeconds: 900},
				{LineID: "1002", ArrivalSeconds: 481}, // 9 minutes -> delay 6
				{LineID: "1003", ArrivalSeconds: 30},
			},
			"잠실": {
				{LineID: "1008", ArrivalSeconds: 200}, // 4 minutes -> on time
			},
		},
	}

	status, err := newMonitor(commute.NewInMemoryRepository(), arrivals).Check(context.Background(), testRoute())
	require.NoError(t, err)
	require.Len(t, status.Segments, 2)

	gangnam := status.Segments[0]
	assert.Equal(t, "gangnam", gangnam.CheckpointID)
	assert.Equal(t, delay.SourceRealtime, gangnam.Source)
	assert.Equal(t, 9, gangnam.EstimatedWaitMinutes)
	assert.Equal(t, 6, gangnam.DelayMinutes)
	assert.Equal(t, delay.SegmentDelayed, gangnam.Status)
	assert.Equal(t, checkTime, gangnam.CheckedAt)

	jamsil := status.Segments[1]
	assert.Equal(t, delay.SegmentNormal, jamsil.Status)
	assert.Equal(t, 0, jamsil.DelayMinutes)

	assert.Equal(t, delay.RouteDelayed, status.Status)
	assert.Equal(t, 6, status.TotalDelayMinutes)
	assert.Equal(t, 51, status.EstimatedDurationMinutes)
	assert.ElementsMatch(t, []string{"강남", "잠실"}, arrivals.queried)
}

func TestMonitor_Check_EarlyTrainIsNotNegativeDelay(t *testing.T) {
	arrivals := &mockArrivals{arrivals: map[string][]transit.Arrival{
		"강남": {{LineID: "1002", ArrivalSeconds: 30}},
	}}
	route := testRoute()
	route.Checkpoints = route.Checkpoints[:2]

	status, err := newMonitor(commute.NewInMemoryRepository(), arrivals).Check(context.Background(), route)
	require.NoError(t, err)
	assert.Equal(t, 1, status.Segments[0].EstimatedWaitMinutes)
	assert.Equal(t, 0, status.Segments[0].DelayMinutes)
	assert.Equal(t, delay.RouteNormal, status.Status)
}

func TestMonitor_Check_NoMatchingArrivalIsEstimated(t *testing.T) {
	arrivals := &mockArrivals{arrivals: map[string][]transit.Arrival{
		"강남": {{LineID: "1003", ArrivalSeconds: 60}},
	}}
	route := testRoute()
	route.Checkpoints = route.Checkpoints[:2]

	status, err := newMonitor(commute.NewInMemoryRepository(), arrivals).Check(context.Background(), route)
	require.NoError(t, err)

	s := status.Segments[0]
	assert.Equal(t, delay.SegmentNormal, s.Status)
	assert.Equal(t, delay.SourceEstimated, s.Source)
	assert.Equal(t, 3, s.EstimatedWaitMinutes)
}

func TestMonitor_Check_ProviderFailureDegrades(t *testing.T) {
	arrivals := &mockArrivals{
		arrivals: map[string][]transit.Arrival{
			"잠실": {{LineID: "1008", ArrivalSeconds: 1200}}, // 20 minutes -> delay 16
		},
		errs: map[string]error{"강남": errors.New("timeout")},
	}

	status, err := newMonitor(commute.NewInMemoryRepository(), arrivals).Check(context.Background(), testRoute())
	require.NoError(t, err)

	assert.Equal(t, delay.SegmentUnavailable, status.Segments[0].Status)
	assert.Equal(t, delay.SourceEstimated, status.Segments[0].Source)
	assert.Equal(t, 0, status.Segments[0].DelayMinutes)
	assert.Equal(t, delay.SegmentSevereDelay, status.Segments[1].Status)
	assert.Equal(t, delay.RouteSevereDelay, status.Status)
}

func TestMonitor_Check_AllUnavailable(t *testing.T) {
	arrivals := &mockArrivals{errs: map[string]error{
		"강남": errors.New("down"),
		"잠실": errors.New("down"),
	}}

	status, err := newMonitor(commute.NewInMemoryRepository(), arrivals).Check(context.Background(), testRoute())
	require.NoError(t, err)
	assert.Equal(t, delay.RouteUnavailable, status.Status)
	assert.Equal(t, 0, status.TotalDelayMinutes)
	assert.Equal(t, 45, status.EstimatedDurationMinutes)
}

func TestMonitor_Check_NoTransitCheckpoints(t *testing.T) {
	route := &commute.Route{
		ID:                      "walk",
		ExpectedDurationMinutes: 20,
		Checkpoints: []commute.Checkpoint{
			{ID: "home", Sequence: 1, Type: commute.CheckpointHome},
			{ID: "work", Sequence: 2, Type: commute.CheckpointWork},
		},
	}
	arrivals := &mockArrivals{}

	status, err := newMonitor(commute.NewInMemoryRepository(), arrivals).Check(context.Background(), route)
	require.NoError(t, err)
	assert.Equal(t, delay.RouteNormal, status.Status)
	assert.Equal(t, 0, status.TotalDelayMinutes)
	assert.Equal(t, 20, status.EstimatedDurationMinutes)
	assert.Empty(t, status.Segments)
	assert.Empty(t, arrivals.queried)
}

func TestMonitor_Check_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newMonitor(commute.NewInMemoryRepository(), &mockArrivals{}).Check(ctx, testRoute())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMonitor_CheckRoute_NotFound(t *testing.T) {
	_, err := newMonitor(commute.NewInMemoryRepository(), &mockArrivals{}).CheckRoute(context.Background(), "missing")
	assert.ErrorIs(t, err, commute.ErrRouteNotFound)
}

func TestMonitor_CheckRoutes_KeepsOrder(t *testing.T) {
	repo := commute.NewInMemoryRepository()
	first := testRoute()
	second := testRoute()
	second.ID = "route-2"
	repo.PutRoute(first)
	repo.PutRoute(second)

	arrivals := &mockArrivals{arrivals: map[string][]transit.Arrival{
		"강남": {{LineID: "1002", ArrivalSeconds: 180}},
		"잠실": {{LineID: "1008", ArrivalSeconds: 240}},
	}}

	results := newMonitor(repo, arrivals).CheckRoutes(context.Background(), []string{"route-2", "missing", "route-1"})
	require.Len(t, results, 3)

	assert.Equal(t, "route-2", results[0].RouteID)
	require.NoError(t, results[0].Err)
	assert.Equal(t, delay.RouteNormal, results[0].Status.Status)

	assert.Equal(t, "missing", results[1].RouteID)
	assert.ErrorIs(t, results[1].Err, commute.ErrRouteNotFound)
	assert.Nil(t, results[1].Status)

	assert.Equal(t, "route-1", results[2].RouteID)
	require.NoError(t, results[2].Err)
}

func TestAdjuster_AdjustmentMinutes(t *testing.T) {
	repo := commute.NewInMemoryRepository()
	repo.PutRoute(testRoute())

	arrivals := &mockArrivals{arrivals: map[string][]transit.Arrival{
		"강남": {{LineID: "1002", ArrivalSeconds: 420}}, // 7 min -> delay 4
		"잠실": {{LineID: "1008", ArrivalSeconds: 360}}, // 6 min -> delay 2
	}}

	adj := delay.NewAdjuster(newMonitor(repo, arrivals))

	minutes, err := adj.AdjustmentMinutes(context.Background(), "route-1")
	require.NoError(t, err)
	assert.Equal(t, 6, minutes)

	_, err = adj.AdjustmentMinutes(context.Background(), "missing")
	assert.ErrorIs(t, err, commute.ErrRouteNotFound)
}
