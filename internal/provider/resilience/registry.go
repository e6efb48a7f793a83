package resilience

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Provider statuses reported by the ops status endpoint.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// ProviderHealth is a point-in-time view of one provider client.
type ProviderHealth struct {
	Name          string
	CircuitState  gobreaker.State
	Counts        gobreaker.Counts
	LastSuccessAt *time.Time
	LastFailureAt *time.Time
	LastError     string
}

// Status maps the breaker state: closed is healthy, half-open degraded and
// open unhealthy.
func (h *ProviderHealth) Status() string {
	switch h.CircuitState {
	case gobreaker.StateOpen:
		return StatusUnhealthy
	case gobreaker.StateHalfOpen:
		return StatusDegraded
	default:
		return StatusHealthy
	}
}

// Registry tracks provider clients and the outcome of their latest calls.
// Outcomes for unregistered names are dropped.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*registryEntry
	now     func() time.Time
}

type registryEntry struct {
	client      *Client
	lastSuccess *time.Time
	lastFailure *time.Time
	lastError   string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*registryEntry),
		now:     time.Now,
	}
}

// Register adds or replaces the client tracked under name.
func (r *Registry) Register(name string, client *Client) {
	r.mu.Lock()
	r.entries[name] = &registryEntry{client: client}
	r.mu.Unlock()
}

// RecordSuccess stamps a successful call.
func (r *Registry) RecordSuccess(name string) {
	r.update(name, func(e *registryEntry, now time.Time) {
		e.lastSuccess = &now
	})
}

// RecordFailure stamps a failed call and keeps its error message.
func (r *Registry) RecordFailure(name string, err error) {
	r.update(name, func(e *registryEntry, now time.Time) {
		e.lastFailure = &now
		if err != nil {
			e.lastError = err.Error()
		}
	})
}

func (r *Registry) update(name string, fn func(*registryEntry, time.Time)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[name]; ok {
		fn(e, r.now())
	}
}

// GetHealth returns the health of name, or nil if it is not registered.
func (r *Registry) GetHealth(name string) *ProviderHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return nil
	}
	return e.health(name)
}

// GetAllHealth returns every provider's health ordered by name.
func (r *Registry) GetAllHealth() []*ProviderHealth {
	r.mu.RLock()
	out := make([]*ProviderHealth, 0, len(r.entries))
	for name, e := range r.entries {
		out = append(out, e.health(name))
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b *ProviderHealth) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// OverallStatus returns the worst provider status. An empty registry is healthy.
func (r *Registry) OverallStatus() string {
	overall := StatusHealthy
	for _, h := range r.GetAllHealth() {
		switch h.Status() {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			overall = StatusDegraded
		}
	}
	return overall
}

func (e *registryEntry) health(name string) *ProviderHealth {
	return &ProviderHealth{
		Name:          name,
		CircuitState:  e.client.CircuitBreakerState(),
		Counts:        e.client.CircuitBreakerCounts(),
		LastSuccessAt: e.lastSuccess,
		LastFailureAt: e.lastFailure,
		LastError:     e.lastError,
	}
}
