package http

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gherrador/tightening-project/internal/config"
	"github.com/gherrador/tightening-project/internal/services"
	"github.com/gherrador/tightening-project/internal/shared/testutil"
)

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type clientCount int

func (c clientCount) ClientCount() int { return int(c) }

func newHealthRouter(t *testing.T, ping error) http.Handler {
	t.Helper()
	logger, _ := testutil.NewTestLogger(t)
	paths, err := config.NewPaths(t.TempDir())
	require.NoError(t, err)

	svc := services.NewHealthService(
		services.BuildInfo{Version: "v1.2.0", BuildID: "abc"},
		paths,
		pingFunc(func(context.Context) error { return ping }),
		clientCount(2),
		nil,
		logger,
	)
	h := NewHealthHandler(svc, logger)

	r := chi.NewRouter()
	r.Get("/api/health", h.HealthCheck)
	r.Get("/api/health/ready", h.ReadinessCheck)
	r.Get("/api/health/live", h.LivenessCheck)
	r.Get("/api/version", h.Version)
	return r
}

func TestHealthHandler(t *testing.T) {
	router := newHealthRouter(t, nil)

	tests := []struct {
		target     string
		wantStatus string
	}{
		{"/api/health", "ok"},
		{"/api/health/ready", "ready"},
		{"/api/health/live", "alive"},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			rec := do(t, router, http.MethodGet, tt.target, "", "")
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.wantStatus, decodeBody(t, rec)["status"])
		})
	}

	rec := do(t, router, http.MethodGet, "/api/version", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "v1.2.0", decodeBody(t, rec)["version"])
}

func TestHealthHandler_NotReady(t *testing.T) {
	router := newHealthRouter(t, errors.New("database is locked"))

	rec := do(t, router, http.MethodGet, "/api/health/ready", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "not_ready", body["status"])
	store := body["services"].(map[string]interface{})["store"].(map[string]interface{})
	assert.Contains(t, store["message"], "database is locked")
}
