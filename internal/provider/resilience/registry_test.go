package resilience_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commutepulse/commutepulse/internal/provider/resilience"
)

func newRegisteredClient(registry *resilience.Registry, name string) *resilience.Client {
	cfg := resilience.DefaultClientConfig(name)
	cfg.Registry = registry
	cfg.InitialInterval = time.Millisecond
	cfg.MaxInterval = 5 * time.Millisecond
	return resilience.NewClient(cfg)
}

func TestRegistry_RegisterAndGetHealth(t *testing.T) {
	registry := resilience.NewRegistry()
	client := newRegisteredClient(registry, "seoul")
	assert.Equal(t, "seoul", client.Name())

	health := registry.GetHealth("seoul")
	require.NotNil(t, health)
	assert.Equal(t, gobreaker.StateClosed, health.CircuitState)
	assert.Equal(t, resilience.StatusHealthy, health.Status())
	assert.Nil(t, health.LastSuccessAt)
	assert.Nil(t, health.LastFailureAt)

	assert.Nil(t, registry.GetHealth("busan"))
}

func TestRegistry_ReRegisterResetsOutcomes(t *testing.T) {
	registry := resilience.NewRegistry()
	_ = newRegisteredClient(registry, "seoul")
	registry.RecordFailure("seoul", assert.AnError)

	_ = newRegisteredClient(registry, "seoul")

	require.Len(t, registry.GetAllHealth(), 1)
	assert.Nil(t, registry.GetHealth("seoul").LastFailureAt)
}

func TestRegistry_ClientRecordsOutcomes(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(int(status.Load()))
	}))
	defer server.Close()

	registry := resilience.NewRegistry()
	client := newRegisteredClient(registry, "seoul")

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, http.NoBody)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	health := registry.GetHealth("seoul")
	require.NotNil(t, health.LastSuccessAt)
	assert.Nil(t, health.LastFailureAt)

	status.Store(http.StatusBadGateway)
	resp, err = client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	health = registry.GetHealth("seoul")
	require.NotNil(t, health.LastFailureAt)
	assert.Contains(t, health.LastError, "Bad Gateway")
}

func TestRegistry_RecordFailure(t *testing.T) {
	registry := resilience.NewRegistry()
	_ = newRegisteredClient(registry, "gtfsrt")

	registry.RecordFailure("gtfsrt", assert.AnError)

	health := registry.GetHealth("gtfsrt")
	require.NotNil(t, health)
	require.NotNil(t, health.LastFailureAt)
	assert.WithinDuration(t, time.Now(), *health.LastFailureAt, time.Second)
	assert.Equal(t, assert.AnError.Error(), health.LastError)
}

func TestRegistry_GetAllHealthSorted(t *testing.T) {
	registry := resilience.NewRegistry()
	for _, name := range []string{"seoul", "gtfsrt", "busan"} {
		_ = newRegisteredClient(registry, name)
	}

	health := registry.GetAllHealth()
	require.Len(t, health, 3)
	assert.Equal(t, "busan", health[0].Name)
	assert.Equal(t, "gtfsrt", health[1].Name)
	assert.Equal(t, "seoul", health[2].Name)
}

func TestRegistry_OverallStatus(t *testing.T) {
	registry := resilience.NewRegistry()
	assert.Equal(t, resilience.StatusHealthy, registry.OverallStatus())

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cb := resilience.CircuitBreakerConfig{
		Name:        "flaky",
		MaxRequests: 1,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool { return counts.TotalFailures >= 1 },
	}
	client := resilience.NewClient(resilience.ClientConfig{
		Name:            "flaky",
		MaxRetries:      1,
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond,
		CircuitBreaker:  &cb,
		Registry:        registry,
	})
	_ = newRegisteredClient(registry, "steady")

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, http.NoBody)
	require.NoError(t, err)
	resp, _ := client.Do(req)
	if resp != nil {
		resp.Body.Close()
	}

	assert.Equal(t, resilience.StatusUnhealthy, registry.OverallStatus())
}

func TestRegistry_UnknownProviderIsIgnored(t *testing.T) {
	registry := resilience.NewRegistry()

	registry.RecordSuccess("nonexistent")
	registry.RecordFailure("nonexistent", assert.AnError)

	assert.Nil(t, registry.GetHealth("nonexistent"))
}

func TestProviderHealth_States(t *testing.T) {
	tests := []struct {
		state  gobreaker.State
		status string
	}{
		{gobreaker.StateClosed, resilience.StatusHealthy},
		{gobreaker.StateHalfOpen, resilience.StatusDegraded},
		{gobreaker.StateOpen, resilience.StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			h := &resilience.ProviderHealth{CircuitState: tt.state}
			assert.Equal(t, tt.status, h.Status())
		})
	}
}
