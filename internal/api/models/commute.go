package models

import (
	"time"

	"github.com/commutepulse/commutepulse/internal/alternative"
	"github.com/commutepulse/commutepulse/internal/delay"
	"github.com/commutepulse/commutepulse/internal/departure"
)

// AlternativesResponse lists the alternatives for a route's current delays.
type AlternativesResponse struct {
	RouteID     string                   `json:"routeId"`
	Status      delay.OverallStatus      `json:"status"`
	Suggestions []alternative.Suggestion `json:"suggestions"`
	CheckedAt   time.Time                `json:"checkedAt"`
}

// CalculateDepartureRequest is the optional body of POST /me/departures/{settingId}/calculate.
type CalculateDepartureRequest struct {
	// Date is the civil date (YYYY-MM-DD, UTC+9). Defaults to today.
	Date string `json:"date,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// DepartureResponse is a departure snapshot with the live countdown.
type DepartureResponse struct {
	*departure.Snapshot
	MinutesUntilDeparture int `json:"minutesUntilDeparture"`
}
