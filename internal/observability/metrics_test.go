package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestMetricsHandlerExposesJobMetrics(t *testing.T) {
	metrics := NewMetrics()
	require.NoError(t, metrics.Jobs.Track("mail:send").End(nil))

	body := scrape(t, metrics)
	require.Contains(t, body, `contacts_jobs_total{job="mail:send",status="success"} 1`)
	require.Contains(t, body, "go_goroutines")
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/api/contacts/{id}")
	req := httptest.NewRequest(http.MethodGet, "/api/contacts/1", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTeapot, rr.Code)

	body := scrape(t, metrics)
	require.Contains(t, body, `contacts_http_requests_total{code="418",route="/api/contacts/{id}"} 1`)
	require.Contains(t, body, `contacts_http_request_duration_seconds_bucket{route="/api/contacts/{id}"`)
}

func TestObserveCache(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObserveCache("session", "hit")
	metrics.ObserveCache("session", "hit")
	metrics.ObserveCache("session", "miss")

	body := scrape(t, metrics)
	require.Contains(t, body, `contacts_cache_lookups_total{cache="session",result="hit"} 2`)
	require.Contains(t, body, `contacts_cache_lookups_total{cache="session",result="miss"} 1`)

	var nilMetrics *Metrics
	nilMetrics.ObserveCache("session", "hit")
	require.Equal(t, http.StatusServiceUnavailable, func() int {
		rr := httptest.NewRecorder()
		nilMetrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		return rr.Code
	}())
}
