package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/contacts/internal/auth"
	"github.com/odyssey-erp/contacts/internal/contacts"
	"github.com/odyssey-erp/contacts/internal/observability"
	"github.com/odyssey-erp/contacts/jobs"
	_ "github.com/odyssey-erp/contacts/testing"
)

type pingerStub struct{ err error }

func (p pingerStub) Ping(context.Context) error { return p.err }

func newTestRouter(t *testing.T, db Pinger) http.Handler {
	t.Helper()
	cfg := &Config{AppEnv: "test", AppRateLimit: 1000, JWTSecret: "router-test-secret", JWTAlgorithm: "HS256"}
	codec, err := auth.NewTokenCodec(cfg.TokenConfig())
	require.NoError(t, err)
	resolver := auth.NewResolver(codec, nil, nil, 0, nil)
	return NewRouter(RouterParams{
		Config:          cfg,
		DB:              db,
		Resolver:        resolver,
		AuthHandler:     auth.NewHandler(nil, nil, resolver),
		ContactsHandler: contacts.NewHandler(nil, contacts.NewService(nil)),
		JobHandler:      jobs.NewHandler(nil, nil),
		Metrics:         observability.NewMetrics(),
	})
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func TestHealthzPingsDatabase(t *testing.T) {
	rr := get(newTestRouter(t, pingerStub{}), "/healthz")
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"status":"ok"}`, rr.Body.String())

	rr = get(newTestRouter(t, pingerStub{err: errors.New("refused")}), "/healthz")
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestRouterSecurityHeaders(t *testing.T) {
	rr := get(newTestRouter(t, pingerStub{}), "/healthz")
	require.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	require.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
}

func TestProtectedRoutesRequireBearer(t *testing.T) {
	router := newTestRouter(t, pingerStub{})
	for _, path := range []string{"/api/contacts/", "/api/contacts/birthdays", "/api/users/me"} {
		rr := get(router, path)
		require.Equal(t, http.StatusUnauthorized, rr.Code, path)
		require.Equal(t, "Bearer", rr.Header().Get("WWW-Authenticate"), path)
	}
}

func TestRouterServesMetricsAndJobs(t *testing.T) {
	router := newTestRouter(t, pingerStub{})
	get(router, "/healthz")

	rr := get(router, "/metrics")
	require.Equal(t, http.StatusOK, rr.Code)
	require.True(t, strings.Contains(rr.Body.String(), `contacts_http_requests_total{code="200",route="/healthz"}`))

	rr = get(router, "/jobs/health")
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestUnknownRouteIsProblem(t *testing.T) {
	rr := get(newTestRouter(t, pingerStub{}), "/nope")
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
}
