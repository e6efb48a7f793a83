package commute

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryRepository is an in-memory implementation of the commute read repositories.
// This is intended for testing. Production should use PostgresRepository.
type InMemoryRepository struct {
	mu       sync.RWMutex
	routes   map[string]*Route
	records  []Record
	sessions []Session
	now      func() time.Time
}

// NewInMemoryRepository creates a new in-memory commute repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		routes: make(map[string]*Route),
		now:    time.Now,
	}
}

// SetClock overrides the clock used for lookback windows.
func (r *InMemoryRepository) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// PutRoute stores a route, replacing any route with the same ID.
func (r *InMemoryRepository) PutRoute(route *Route) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cpy := *route
	cpy.Checkpoints = append([]Checkpoint(nil), route.Checkpoints...)
	sort.Slice(cpy.Checkpoints, func(i, j int) bool {
		return cpy.Checkpoints[i].Sequence < cpy.Checkpoints[j].Sequence
	})
	r.routes[route.ID] = &cpy
}

// AddRecords appends commute records.
func (r *InMemoryRepository) AddRecords(records ...Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, records...)
}

// AddSessions appends commute sessions.
func (r *InMemoryRepository) AddSessions(sessions ...Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = append(r.sessions, sessions...)
}

// GetRoute retrieves a route by ID.
func (r *InMemoryRepository) GetRoute(_ context.Context, routeID string) (*Route, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	route, ok := r.routes[routeID]
	if !ok {
		return nil, ErrRouteNotFound
	}

	// Return a copy
	cpy := *route
	cpy.Checkpoints = append([]Checkpoint(nil), route.Checkpoints...)
	return &cpy, nil
}

// FindRecords returns matching records within the lookback window, newest first.
func (r *InMemoryRepository) FindRecords(_ context.Context, userID string, commuteType CommuteType, lookbackDays int) ([]Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cutoff := r.now().AddDate(0, 0, -lookbackDays)

	var out []Record
	for _, rec := range r.records {
		if rec.UserID != userID || rec.Type != commuteType {
			continue
		}
		if rec.Date.Before(cutoff) {
			continue
		}
		out = append(out, rec)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.After(out[j].Date)
	})
	return out, nil
}

// FindCompletedSessions returns completed sessions for the user and route since the given time.
func (r *InMemoryRepository) FindCompletedSessions(_ context.Context, userID, routeID string, since time.Time) ([]Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Session
	for _, s := range r.sessions {
		if s.UserID != userID || s.RouteID != routeID {
			continue
		}
		if s.Status != SessionCompleted || s.StartedAt.Before(since) {
			continue
		}
		out = append(out, s)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out, nil
}

// Ensure InMemoryRepository implements the repository interfaces.
var (
	_ RouteRepository   = (*InMemoryRepository)(nil)
	_ RecordRepository  = (*InMemoryRepository)(nil)
	_ SessionRepository = (*InMemoryRepository)(nil)
)
