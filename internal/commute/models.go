// Package commute holds the read-side commute domain: routes and their checkpoints,
// historical commute records and completed travel sessions.
package commute

import (
	"errors"
	"fmt"
	"time"
)

// Repository errors.
var (
	ErrRouteNotFound   = errors.New("route not found")
	ErrInvalidSequence = errors.New("checkpoint sequence must be unique and contiguous")
)

// CheckpointType identifies what kind of waypoint a checkpoint is.
type CheckpointType string

const (
	CheckpointHome          CheckpointType = "home"
	CheckpointWork          CheckpointType = "work"
	CheckpointSubway        CheckpointType = "subway"
	CheckpointBusStop       CheckpointType = "bus_stop"
	CheckpointTransferPoint CheckpointType = "transfer_point"
	CheckpointWalkingPoint  CheckpointType = "walking_point"
)

// transitTypes is the catalogue of checkpoint types that carry live arrival data.
var transitTypes = map[CheckpointType]bool{
	CheckpointSubway:        true,
	CheckpointTransferPoint: true,
}

// IsTransitType reports whether checkpoints of type t are monitored for live delays.
func IsTransitType(t CheckpointType) bool {
	return transitTypes[t]
}

// Route is a user's saved commute path.
type Route struct {
	ID     string
	UserID string
	Name   string

	// ExpectedDurationMinutes is the declared door-to-door duration (the baseline).
	ExpectedDurationMinutes int

	// Checkpoints are ordered by Sequence.
	Checkpoints []Checkpoint

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Checkpoint is one stop or waypoint on a route.
type Checkpoint struct {
	ID       string
	RouteID  string
	Sequence int
	Name     string
	Type     CheckpointType

	// LineID is the line label as shown to users, e.g. "2호선". Empty for non-transit stops.
	LineID string

	ExpectedWaitMinutes int

	// LinkedStationID is an optional external station or stop id.
	LinkedStationID string
}

// IsTransit reports whether the checkpoint is monitored for live delays.
func (c *Checkpoint) IsTransit() bool {
	return IsTransitType(c.Type)
}

// TransitCheckpoints returns the checkpoints that carry live arrival data, in route order.
func (r *Route) TransitCheckpoints() []Checkpoint {
	out := make([]Checkpoint, 0, len(r.Checkpoints))
	for _, cp := range r.Checkpoints {
		if cp.IsTransit() {
			out = append(out, cp)
		}
	}
	return out
}

// Validate checks that checkpoint sequences are unique and contiguous starting at 1.
func (r *Route) Validate() error {
	seen := make(map[int]bool, len(r.Checkpoints))
	for _, cp := range r.Checkpoints {
		if cp.Sequence < 1 || cp.Sequence > len(r.Checkpoints) || seen[cp.Sequence] {
			return fmt.Errorf("%w: route %s sequence %d", ErrInvalidSequence, r.ID, cp.Sequence)
		}
		seen[cp.Sequence] = true
	}
	return nil
}

// CommuteType distinguishes the outbound and return legs of a day.
type CommuteType string

const (
	CommuteMorning CommuteType = "morning"
	CommuteEvening CommuteType = "evening"
)

// Valid reports whether t is a known commute type.
func (t CommuteType) Valid() bool {
	return t == CommuteMorning || t == CommuteEvening
}

// Record is a single historical commute. Records are immutable once written.
type Record struct {
	ID                string
	UserID            string
	Date              time.Time
	Type              CommuteType
	ActualDepartureAt *time.Time
}

// IsWeekday reports whether the record falls on ISO Monday through Friday.
func (r *Record) IsWeekday() bool {
	wd := r.Date.Weekday()
	return wd >= time.Monday && wd <= time.Friday
}

// SessionStatus is the lifecycle state of a tracked commute session.
type SessionStatus string

const (
	SessionInProgress SessionStatus = "in_progress"
	SessionCompleted  SessionStatus = "completed"
	SessionCancelled  SessionStatus = "cancelled"
)

// Session is one tracked trip along a route.
type Session struct {
	ID                   string
	UserID               string
	RouteID              string
	Status               SessionStatus
	TotalDurationMinutes *int
	StartedAt            time.Time
}
