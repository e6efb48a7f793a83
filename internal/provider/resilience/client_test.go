package resilience_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commutepulse/commutepulse/internal/provider/resilience"
)

// arrivalServer answers with statuses in order, repeating the last one.
func arrivalServer(t *testing.T, statuses ...int) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := int(calls.Add(1))
		status := statuses[min(n, len(statuses))-1]
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"realtimeArrivalList":[]}`))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func fastClient(name string, retries uint64, registry *resilience.Registry, trip func(gobreaker.Counts) bool) *resilience.Client {
	cb := resilience.DefaultCircuitBreakerConfig(name)
	if trip != nil {
		cb.ReadyToTrip = trip
	} else {
		cb.ReadyToTrip = func(gobreaker.Counts) bool { return false }
	}
	return resilience.NewClient(resilience.ClientConfig{
		Name:            name,
		Timeout:         time.Second,
		MaxRetries:      retries,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		CircuitBreaker:  &cb,
		Registry:        registry,
	})
}

func get(ctx context.Context, t *testing.T, c *resilience.Client, url string) (*http.Response, error) {
	t.Helper()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	require.NoError(t, err)
	resp, err := c.Do(req)
	if resp != nil {
		t.Cleanup(func() { resp.Body.Close() })
	}
	return resp, err
}

func TestClient_RetriesServerErrors(t *testing.T) {
	srv, calls := arrivalServer(t, http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusOK)
	registry := resilience.NewRegistry()
	client := fastClient("seoul", 3, registry, nil)

	resp, err := get(context.Background(), t, client, srv.URL)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), calls.Load())

	health := registry.GetHealth("seoul")
	require.NotNil(t, health)
	assert.NotNil(t, health.LastSuccessAt)
	assert.Nil(t, health.LastFailureAt)
}

func TestClient_ExhaustedRetriesReturnLastResponse(t *testing.T) {
	srv, calls := arrivalServer(t, http.StatusInternalServerError)
	registry := resilience.NewRegistry()
	client := fastClient("seoul", 2, registry, nil)

	resp, err := get(context.Background(), t, client, srv.URL)
	require.NoError(t, err)

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, int32(3), calls.Load())

	health := registry.GetHealth("seoul")
	require.NotNil(t, health)
	assert.NotNil(t, health.LastFailureAt)
	assert.Contains(t, health.LastError, "Internal Server Error")
}

func TestClient_ClientErrorsAreNotRetried(t *testing.T) {
	srv, calls := arrivalServer(t, http.StatusNotFound)
	client := fastClient("gtfsrt", 3, nil, nil)

	resp, err := get(context.Background(), t, client, srv.URL)
	require.NoError(t, err)

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_OpenCircuitShortCircuits(t *testing.T) {
	srv, calls := arrivalServer(t, http.StatusInternalServerError)
	registry := resilience.NewRegistry()
	client := fastClient("seoul", 1, registry, func(c gobreaker.Counts) bool {
		return c.ConsecutiveFailures >= 2
	})

	_, _ = get(context.Background(), t, client, srv.URL)
	assert.Equal(t, gobreaker.StateOpen, client.CircuitBreakerState())
	before := calls.Load()

	resp, err := get(context.Background(), t, client, srv.URL)
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, before, calls.Load(), "open circuit must not reach the provider")

	assert.Equal(t, resilience.StatusUnhealthy, registry.GetHealth("seoul").Status())
	assert.Equal(t, resilience.StatusUnhealthy, registry.OverallStatus())
}

func TestClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	cb := resilience.DefaultCircuitBreakerConfig("slow")
	client := resilience.NewClient(resilience.ClientConfig{
		Name:            "slow",
		Timeout:         50 * time.Millisecond,
		MaxRetries:      1,
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond,
		CircuitBreaker:  &cb,
	})

	_, err := get(context.Background(), t, client, srv.URL)
	assert.Error(t, err)
}

func TestClient_CancelledContext(t *testing.T) {
	srv, calls := arrivalServer(t, http.StatusOK)
	client := fastClient("seoul", 2, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := get(ctx, t, client, srv.URL)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls.Load())
}

func TestDefaults(t *testing.T) {
	cfg := resilience.DefaultClientConfig("seoul")
	assert.Equal(t, "seoul", cfg.Name)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, uint64(2), cfg.MaxRetries)
	assert.Equal(t, 100*time.Millisecond, cfg.InitialInterval)
	assert.Equal(t, 2*time.Second, cfg.MaxInterval)
	require.NotNil(t, cfg.CircuitBreaker)
	assert.Equal(t, 60*time.Second, cfg.CircuitBreaker.Timeout)
	assert.Equal(t, uint32(1), cfg.CircuitBreaker.MaxRequests)
}

func TestDefaultReadyToTrip(t *testing.T) {
	tests := []struct {
		counts gobreaker.Counts
		trip   bool
	}{
		{gobreaker.Counts{}, false},
		{gobreaker.Counts{Requests: 4, TotalFailures: 4}, false},
		{gobreaker.Counts{Requests: 10, TotalFailures: 4}, false},
		{gobreaker.Counts{Requests: 10, TotalFailures: 5}, true},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.trip, resilience.DefaultReadyToTrip(tt.counts), "%+v", tt.counts)
	}
}

func TestLogStateChanges(t *testing.T) {
	var buf bytes.Buffer
	hook := resilience.LogStateChanges(zerolog.New(&buf))

	hook("seoul", gobreaker.StateClosed, gobreaker.StateOpen)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "seoul", entry["provider"])
	assert.Equal(t, "closed", entry["from"])
	assert.Equal(t, "open", entry["to"])
}
