// Package alternative proposes substitute transit legs, with quantified time savings,
// for checkpoints that are running late.
package alternative

import (
	"context"

	"github.com/commutepulse/commutepulse/internal/transit"
)

// Mapping is a bidirectional walking link between two (station, line) pairs.
type Mapping struct {
	ID                    string
	StationA              string
	LineA                 string
	StationB              string
	LineB                 string
	WalkingMinutes        int
	WalkingDistanceMeters int
	Active                bool
}

// Candidate is the far side of a mapping relative to a delayed checkpoint.
type Candidate struct {
	MappingID             string
	Station               string
	Line                  string
	WalkingMinutes        int
	WalkingDistanceMeters int
}

// Opposite returns the side of the mapping across from (station, line).
func (m *Mapping) Opposite(station, line string) (Candidate, bool) {
	station = transit.StripStationSuffix(station)

	c := Candidate{
		MappingID:             m.ID,
		WalkingMinutes:        m.WalkingMinutes,
		WalkingDistanceMeters: m.WalkingDistanceMeters,
	}

	switch {
	case transit.StripStationSuffix(m.StationA) == station && m.LineA == line:
		c.Station, c.Line = m.StationB, m.LineB
	case transit.StripStationSuffix(m.StationB) == station && m.LineB == line:
		c.Station, c.Line = m.StationA, m.LineA
	default:
		return Candidate{}, false
	}
	return c, true
}

// MappingRepository provides lookup of alternative mappings.
type MappingRepository interface {
	// FindMappingsFor returns active mappings touching (station, line) on either side.
	FindMappingsFor(ctx context.Context, station, line string) ([]Mapping, error)
}

// StepAction is the kind of movement in a suggestion step.
type StepAction string

const (
	ActionWalk   StepAction = "walk"
	ActionSubway StepAction = "subway"
	ActionBus    StepAction = "bus"
)

// Confidence describes how reliable the alternative's wait estimate is.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Step is one leg of a suggested alternative.
type Step struct {
	Action          StepAction `json:"action"`
	From            string     `json:"from"`
	To              string     `json:"to,omitempty"`
	Line            string     `json:"line,omitempty"`
	DurationMinutes int        `json:"durationMinutes"`
}

// Suggestion is a faster alternative to a delayed checkpoint.
type Suggestion struct {
	TriggerCheckpointID     string     `json:"triggerCheckpointId"`
	TriggerReason           string     `json:"triggerReason"`
	Description             string     `json:"description"`
	Steps                   []Step     `json:"steps"`
	TotalDurationMinutes    int        `json:"totalDurationMinutes"`
	OriginalDurationMinutes int        `json:"originalDurationMinutes"`
	SavingsMinutes          int        `json:"savingsMinutes"`
	Confidence              Confidence `json:"confidence"`
	WalkingDistanceMeters   int        `json:"walkingDistanceMeters"`
}
