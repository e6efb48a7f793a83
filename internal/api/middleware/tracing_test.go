package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/commutepulse/commutepulse/internal/api/middleware"
)

func setupTestTracer(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	return sr
}

// onlySpan serves req through h and returns the single ended span.
func onlySpan(t *testing.T, sr *tracetest.SpanRecorder, h http.Handler, req *http.Request) (sdktrace.ReadOnlySpan, *httptest.ResponseRecorder) {
	t.Helper()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	return spans[0], w
}

func spanAttr(span sdktrace.ReadOnlySpan, key string) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if kv.Key == attribute.Key(key) {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func statusHandler(status int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
	})
}

func TestTracing_ServerSpanInContext(t *testing.T) {
	sr := setupTestTracer(t)

	var inner trace.SpanContext
	h := middleware.Tracing("commutepulse-api")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inner = trace.SpanContextFromContext(r.Context())
	}))

	span, _ := onlySpan(t, sr, h, httptest.NewRequest(http.MethodGet, "/v1/ops/health", http.NoBody))

	assert.True(t, inner.IsValid())
	assert.Equal(t, span.SpanContext().SpanID(), inner.SpanID())
	assert.Equal(t, trace.SpanKindServer, span.SpanKind())
	assert.Equal(t, "GET /v1/ops/health", span.Name())

	svc, ok := spanAttr(span, "service.name")
	require.True(t, ok)
	assert.Equal(t, "commutepulse-api", svc.AsString())
}

func TestTracing_ContinuesIncomingTrace(t *testing.T) {
	sr := setupTestTracer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/ops/health", http.NoBody)
	req.Header.Set("traceparent", "00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01")

	span, _ := onlySpan(t, sr, middleware.Tracing("api")(statusHandler(http.StatusOK)), req)

	assert.Equal(t, "0af7651916cd43dd8448eb211c80319c", span.SpanContext().TraceID().String())
	assert.Equal(t, "b7ad6b7169203331", span.Parent().SpanID().String())
}

func TestTracing_Status(t *testing.T) {
	tests := []struct {
		name   string
		status int
		code   codes.Code
	}{
		{name: "ok", status: http.StatusOK, code: codes.Unset},
		{name: "client error stays unset", status: http.StatusNotFound, code: codes.Unset},
		{name: "server error", status: http.StatusBadGateway, code: codes.Error},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sr := setupTestTracer(t)

			span, _ := onlySpan(t, sr, middleware.Tracing("api")(statusHandler(tt.status)),
				httptest.NewRequest(http.MethodGet, "/v1/me/routes/r/delays", http.NoBody))

			got, ok := spanAttr(span, "http.response.status_code")
			require.True(t, ok)
			assert.Equal(t, int64(tt.status), got.AsInt64())
			assert.Equal(t, tt.code, span.Status().Code)
		})
	}
}

func TestTracing_RequestID(t *testing.T) {
	sr := setupTestTracer(t)

	h := middleware.RequestID(middleware.Tracing("api")(statusHandler(http.StatusOK)))
	span, w := onlySpan(t, sr, h, httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	id, ok := spanAttr(span, "request.id")
	require.True(t, ok)
	assert.Equal(t, w.Header().Get(middleware.RequestIDHeader), id.AsString())
}

func TestTracing_NamesSpanByRoutePattern(t *testing.T) {
	sr := setupTestTracer(t)

	r := chi.NewRouter()
	r.Use(middleware.Tracing("api"))
	r.Get("/v1/me/routes/{routeId}/delays", func(w http.ResponseWriter, _ *http.Request) {})

	span, _ := onlySpan(t, sr, r, httptest.NewRequest(http.MethodGet, "/v1/me/routes/route-42/delays", http.NoBody))

	assert.Equal(t, "GET /v1/me/routes/{routeId}/delays", span.Name())
	route, ok := spanAttr(span, "http.route")
	require.True(t, ok)
	assert.Equal(t, "/v1/me/routes/{routeId}/delays", route.AsString())
}
