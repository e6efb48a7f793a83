// Package notify publishes departure updates and alternative suggestions to
// downstream delivery services. Delivery itself (push, SMS) lives elsewhere.
package notify

import (
	"context"
	"time"

	"github.com/commutepulse/commutepulse/internal/alternative"
)

// DepartureUpdate tells a user that their recommended departure moved.
type DepartureUpdate struct {
	SnapshotID             string    `json:"snapshotId"`
	SettingID              string    `json:"settingId"`
	UserID                 string    `json:"userId"`
	RouteID                string    `json:"routeId"`
	Date                   string    `json:"date"`
	EstimatedTravelMinutes int       `json:"estimatedTravelMinutes"`
	PreviousTravelMinutes  int       `json:"previousTravelMinutes"`
	OptimalDepartureAt     time.Time `json:"optimalDepartureAt"`
	Delayed                bool      `json:"delayed"`
	Message                string    `json:"message"`
}

// SuggestionBatch carries the alternatives found for one route check.
type SuggestionBatch struct {
	UserID      string                   `json:"userId"`
	RouteID     string                   `json:"routeId"`
	RouteStatus string                   `json:"routeStatus"`
	Suggestions []alternative.Suggestion `json:"suggestions"`
	CheckedAt   time.Time                `json:"checkedAt"`
}

// SuggestionPublisher delivers alternative suggestions to a user.
type SuggestionPublisher interface {
	PublishSuggestions(ctx context.Context, batch SuggestionBatch) error
}

// Nop discards every event.
type Nop struct{}

// NotifyDepartureUpdate does nothing.
func (Nop) NotifyDepartureUpdate(context.Context, DepartureUpdate) error { return nil }

// PublishSuggestions does nothing.
func (Nop) PublishSuggestions(context.Context, SuggestionBatch) error { return nil }
