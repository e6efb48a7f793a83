package commute_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commutepulse/commutepulse/internal/commute"
)

func intPtr(v int) *int { return &v }

func TestInMemoryRepository_GetRoute(t *testing.T) {
	repo := commute.NewInMemoryRepository()
	repo.PutRoute(&commute.Route{
		ID:                      "route-1",
		UserID:                  "user-1",
		ExpectedDurationMinutes: 45,
		Checkpoints: []commute.Checkpoint{
			{ID: "cp-2", Sequence: 2, Name: "강남역", Type: commute.CheckpointSubway, LineID: "2호선"},
			{ID: "cp-1", Sequence: 1, Name: "Home", Type: commute.CheckpointHome},
		},
	})

	route, err := repo.GetRoute(context.Background(), "route-1")
	require.NoError(t, err)
	require.Len(t, route.Checkpoints, 2)
	assert.Equal(t, "cp-1", route.Checkpoints[0].ID)
	assert.Equal(t, "cp-2", route.Checkpoints[1].ID)

	// Mutating the returned copy must not affect the stored route.
	route.Checkpoints[0].Name = "changed"
	again, err := repo.GetRoute(context.Background(), "route-1")
	require.NoError(t, err)
	assert.Equal(t, "Home", again.Checkpoints[0].Name)
}

func TestInMemoryRepository_GetRoute_NotFound(t *testing.T) {
	repo := commute.NewInMemoryRepository()

	_, err := repo.GetRoute(context.Background(), "missing")
	assert.True(t, errors.Is(err, commute.ErrRouteNotFound))
}

func TestInMemoryRepository_FindRecords(t *testing.T) {
	now := time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC)
	repo := commute.NewInMemoryRepository()
	repo.SetClock(func() time.Time { return now })

	repo.AddRecords(
		commute.Record{ID: "old", UserID: "u", Type: commute.CommuteMorning, Date: now.AddDate(0, 0, -90)},
		commute.Record{ID: "a", UserID: "u", Type: commute.CommuteMorning, Date: now.AddDate(0, 0, -3)},
		commute.Record{ID: "b", UserID: "u", Type: commute.CommuteMorning, Date: now.AddDate(0, 0, -1)},
		commute.Record{ID: "evening", UserID: "u", Type: commute.CommuteEvening, Date: now.AddDate(0, 0, -1)},
		commute.Record{ID: "other-user", UserID: "v", Type: commute.CommuteMorning, Date: now.AddDate(0, 0, -1)},
	)

	records, err := repo.FindRecords(context.Background(), "u", commute.CommuteMorning, 60)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "b", records[0].ID)
	assert.Equal(t, "a", records[1].ID)
}

func TestInMemoryRepository_FindCompletedSessions(t *testing.T) {
	now := time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC)
	repo := commute.NewInMemoryRepository()

	repo.AddSessions(
		commute.Session{ID: "done", UserID: "u", RouteID: "r", Status: commute.SessionCompleted, TotalDurationMinutes: intPtr(40), StartedAt: now.AddDate(0, 0, -2)},
		commute.Session{ID: "running", UserID: "u", RouteID: "r", Status: commute.SessionInProgress, StartedAt: now.AddDate(0, 0, -1)},
		commute.Session{ID: "cancelled", UserID: "u", RouteID: "r", Status: commute.SessionCancelled, StartedAt: now.AddDate(0, 0, -1)},
		commute.Session{ID: "too-old", UserID: "u", RouteID: "r", Status: commute.SessionCompleted, StartedAt: now.AddDate(0, 0, -30)},
		commute.Session{ID: "other-route", UserID: "u", RouteID: "x", Status: commute.SessionCompleted, StartedAt: now.AddDate(0, 0, -1)},
	)

	sessions, err := repo.FindCompletedSessions(context.Background(), "u", "r", now.AddDate(0, 0, -14))
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "done", sessions[0].ID)
}
