// Package departure computes the optimal departure time for a user's arrival target
// by fusing the route baseline, recent trip history and live delays, and keeps one
// dated snapshot per departure setting.
package departure

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Repository and validation errors.
var (
	ErrSettingNotFound  = errors.New("departure setting not found")
	ErrSnapshotNotFound = errors.New("departure snapshot not found")
	ErrSnapshotExists   = errors.New("departure snapshot already exists")
	ErrSnapshotDeparted = errors.New("departure snapshot already departed")
	ErrInvalidClock     = errors.New("invalid HH:MM time")
)

// Location is the civil timezone arrival targets are read in (UTC+9).
var Location = time.FixedZone("KST", 9*60*60)

// DateLayout is the civil date format used for snapshot keys.
const DateLayout = "2006-01-02"

// DepartureType distinguishes going to work from coming home.
type DepartureType string

const (
	DepartureCommute DepartureType = "commute"
	DepartureReturn  DepartureType = "return"
)

// Setting is a user's departure alarm configuration for one route.
type Setting struct {
	ID              string
	UserID          string
	RouteID         string
	DepartureType   DepartureType
	ArrivalTime     string // "HH:MM"
	PrepTimeMinutes int
	Enabled         bool
}

// SnapshotStatus is the lifecycle state of a departure snapshot.
type SnapshotStatus string

const (
	StatusScheduled SnapshotStatus = "scheduled"
	StatusNotified  SnapshotStatus = "notified"
	StatusDeparted  SnapshotStatus = "departed"
)

// Snapshot is the calculated departure for one setting on one civil date.
type Snapshot struct {
	ID                        string         `json:"id"`
	SettingID                 string         `json:"settingId"`
	UserID                    string         `json:"userId"`
	RouteID                   string         `json:"routeId"`
	Date                      time.Time      `json:"date"`
	DepartureType             DepartureType  `json:"departureType"`
	ArrivalTime               string         `json:"arrivalTime"`
	PrepTimeMinutes           int            `json:"prepTimeMinutes"`
	BaselineMinutes           int            `json:"baselineMinutes"`
	HistoryMinutes            *int           `json:"historyMinutes,omitempty"`
	RealtimeAdjustmentMinutes int            `json:"realtimeAdjustmentMinutes"`
	EstimatedTravelMinutes    int            `json:"estimatedTravelMinutes"`
	OptimalDepartureAt        time.Time      `json:"optimalDepartureAt"`
	Status                    SnapshotStatus `json:"status"`
	AlertsSent                int            `json:"alertsSent"`
	CalculatedAt              time.Time      `json:"calculatedAt"`
	UpdatedAt                 time.Time      `json:"updatedAt"`
}

// DateKey returns the snapshot's civil date as "2006-01-02".
func (s *Snapshot) DateKey() string {
	return s.Date.In(Location).Format(DateLayout)
}

// MinutesUntilDeparture returns whole minutes from now until the optimal departure.
// Negative values mean the departure time has passed.
func MinutesUntilDeparture(s *Snapshot, now time.Time) int {
	return int(math.Floor(s.OptimalDepartureAt.Sub(now).Minutes()))
}

// CivilDate truncates t to midnight of its date in the civil timezone.
func CivilDate(t time.Time) time.Time {
	y, m, d := t.In(Location).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, Location)
}

// ParseDate parses a "2006-01-02" civil date.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, Location)
}

// ParseClock parses "HH:MM" into hours and minutes.
func ParseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	return t.Hour(), t.Minute(), nil
}

// ArrivalTarget returns the arrival instant for clock on the civil date of day.
func ArrivalTarget(day time.Time, clock string) (time.Time, error) {
	hour, minute, err := ParseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := day.In(Location).Date()
	return time.Date(y, m, d, hour, minute, 0, 0, Location), nil
}
