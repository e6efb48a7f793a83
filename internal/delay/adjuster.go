package delay

import "context"

// Adjuster supplies a realtime travel adjustment from a route's live total delay.
type Adjuster struct {
	monitor *Monitor
}

// NewAdjuster creates an adjuster backed by the monitor.
func NewAdjuster(monitor *Monitor) *Adjuster {
	return &Adjuster{monitor: monitor}
}

// AdjustmentMinutes returns the route's current total delay in minutes.
func (a *Adjuster) AdjustmentMinutes(ctx context.Context, routeID string) (int, error) {
	status, err := a.monitor.CheckRoute(ctx, routeID)
	if err != nil {
		return 0, err
	}
	return status.TotalDelayMinutes, nil
}
