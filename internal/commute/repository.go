package commute

import (
	"context"
	"time"
)

// RouteRepository provides read access to saved routes.
type RouteRepository interface {
	// GetRoute retrieves a route with its checkpoints ordered by sequence.
	// Returns ErrRouteNotFound if the route doesn't exist.
	GetRoute(ctx context.Context, routeID string) (*Route, error)
}

// RecordRepository provides read access to historical commute records.
type RecordRepository interface {
	// FindRecords returns the user's records of the given type from the last lookbackDays,
	// newest first.
	FindRecords(ctx context.Context, userID string, commuteType CommuteType, lookbackDays int) ([]Record, error)
}

// SessionRepository provides read access to tracked commute sessions.
type SessionRepository interface {
	// FindCompletedSessions returns sessions for the user and route started at or after since,
	// newest first. Only sessions with status completed are returned.
	FindCompletedSessions(ctx context.Context, userID, routeID string, since time.Time) ([]Session, error)
}
