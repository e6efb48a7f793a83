// Package delay classifies how late each transit leg of a route is running
// from live arrival data and aggregates the result into a route status.
package delay

import (
	"time"

	"github.com/commutepulse/commutepulse/internal/commute"
)

// SegmentStatus is the delay classification of a single checkpoint.
type SegmentStatus string

const (
	SegmentNormal      SegmentStatus = "normal"
	SegmentDelayed     SegmentStatus = "delayed"
	SegmentSevereDelay SegmentStatus = "severe_delay"
	SegmentUnavailable SegmentStatus = "unavailable"
)

// OverallStatus is the aggregated delay classification of a route.
type OverallStatus string

const (
	RouteNormal      OverallStatus = "normal"
	RouteMinorDelay  OverallStatus = "minor_delay"
	RouteDelayed     OverallStatus = "delayed"
	RouteSevereDelay OverallStatus = "severe_delay"
	RouteUnavailable OverallStatus = "unavailable"
)

// Source tells where a segment's wait estimate came from.
type Source string

const (
	SourceRealtime  Source = "realtime_api"
	SourceEstimated Source = "estimated"
)

// Segment thresholds, in minutes of delay.
const (
	SegmentDelayedMinutes = 2
	SegmentSevereMinutes  = 10
)

// Route thresholds, in minutes of the largest segment delay.
const (
	RouteMinorMinutes   = 2
	RouteDelayedMinutes = 5
	RouteSevereMinutes  = 15
)

// Segment is the live delay state of one transit checkpoint. Segments are derived on
// every check and never stored.
type Segment struct {
	CheckpointID         string                 `json:"checkpointId"`
	CheckpointName       string                 `json:"checkpointName"`
	CheckpointType       commute.CheckpointType `json:"checkpointType"`
	LineID               string                 `json:"lineId,omitempty"`
	Status               SegmentStatus          `json:"status"`
	ExpectedWaitMinutes  int                    `json:"expectedWaitMinutes"`
	EstimatedWaitMinutes int                    `json:"estimatedWaitMinutes"`
	DelayMinutes         int                    `json:"delayMinutes"`
	Source               Source                 `json:"source"`
	CheckedAt            time.Time              `json:"checkedAt"`
}

// RouteStatus is the aggregated live delay state of a route.
type RouteStatus struct {
	RouteID                  string        `json:"routeId"`
	UserID                   string        `json:"-"`
	RouteName                string        `json:"routeName"`
	Status                   OverallStatus `json:"status"`
	TotalDelayMinutes        int           `json:"totalDelayMinutes"`
	ExpectedDurationMinutes  int           `json:"expectedDurationMinutes"`
	EstimatedDurationMinutes int           `json:"estimatedDurationMinutes"`
	Segments                 []Segment     `json:"segments"`
	CheckedAt                time.Time     `json:"checkedAt"`
}

// ClassifySegment maps a segment delay to its status.
func ClassifySegment(delayMinutes int) SegmentStatus {
	switch {
	case delayMinutes >= SegmentSevereMinutes:
		return SegmentSevereDelay
	case delayMinutes >= SegmentDelayedMinutes:
		return SegmentDelayed
	default:
		return SegmentNormal
	}
}

// Aggregate derives the route status and total delay from its segments.
// A route with no segments is normal.
func Aggregate(segments []Segment) (OverallStatus, int) {
	if len(segments) == 0 {
		return RouteNormal, 0
	}

	total, maxDelay, unavailable := 0, 0, 0
	for _, s := range segments {
		if s.Status == SegmentUnavailable {
			unavailable++
		}
		total += s.DelayMinutes
		if s.DelayMinutes > maxDelay {
			maxDelay = s.DelayMinutes
		}
	}

	switch {
	case unavailable == len(segments):
		return RouteUnavailable, total
	case maxDelay >= RouteSevereMinutes:
		return RouteSevereDelay, total
	case maxDelay >= RouteDelayedMinutes:
		return RouteDelayed, total
	case maxDelay >= RouteMinorMinutes || unavailable > 0:
		return RouteMinorDelay, total
	default:
		return RouteNormal, total
	}
}
