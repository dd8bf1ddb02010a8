package http

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/gherrador/tightening-project/internal/errors"
	"github.com/gherrador/tightening-project/internal/lake"
	"github.com/gherrador/tightening-project/internal/shared/testutil"
	"github.com/gherrador/tightening-project/internal/spc"
	"github.com/gherrador/tightening-project/internal/store"
)

// MockSPCService is a mock implementation of SPCServiceInterface
type MockSPCService struct {
	mock.Mock
}

func (m *MockSPCService) BuildMonth(ctx context.Context, req lake.BuildRequest) (*store.BuildRun, error) {
	args := m.Called(ctx, req)
	run, _ := args.Get(0).(*store.BuildRun)
	return run, args.Error(1)
}

func (m *MockSPCService) Limits(ctx context.Context, tier, asof string) ([]spc.Limits, error) {
	args := m.Called(ctx, tier, asof)
	limits, _ := args.Get(0).([]spc.Limits)
	return limits, args.Error(1)
}

func (m *MockSPCService) Alerts(ctx context.Context, tier, asof string, q store.AlertQuery) ([]spc.AlertSummary, error) {
	args := m.Called(ctx, tier, asof, q)
	alerts, _ := args.Get(0).([]spc.AlertSummary)
	return alerts, args.Error(1)
}

func (m *MockSPCService) Capability(ctx context.Context, tier, asof string) ([]spc.Capability, error) {
	args := m.Called(ctx, tier, asof)
	caps, _ := args.Get(0).([]spc.Capability)
	return caps, args.Error(1)
}

func (m *MockSPCService) Builds(ctx context.Context, f store.BuildFilter) ([]store.BuildRun, error) {
	args := m.Called(ctx, f)
	runs, _ := args.Get(0).([]store.BuildRun)
	return runs, args.Error(1)
}

func (m *MockSPCService) Build(ctx context.Context, id string) (*store.BuildRun, error) {
	args := m.Called(ctx, id)
	run, _ := args.Get(0).(*store.BuildRun)
	return run, args.Error(1)
}

func newTestRouter(t *testing.T, svc SPCServiceInterface) http.Handler {
	t.Helper()
	logger, _ := testutil.NewTestLogger(t)
	errs := apperrors.NewErrorHandler(logger, false)
	h := NewSPCHandler(svc, "STEP_ID", errs, logger)

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		h.RegisterRoutes(r)
		h.RegisterBuildRoutes(r)
	})
	return r
}

func do(t *testing.T, h http.Handler, method, target, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func sampleLimits() []spc.Limits {
	return []spc.Limits{
		{Key: "S1", N: 30, Center: 10, MRBar: spc.Some(1.128), Sigma: spc.Some(1), UCL: spc.Some(13), LCL: spc.Some(7), UCLMR: spc.Some(3.685)},
		{Key: "S2", N: 1, Center: 5},
	}
}

func TestSPCHandler_GetLimits(t *testing.T) {
	svc := new(MockSPCService)
	svc.On("Limits", mock.Anything, "core", "2025-03").Return(sampleLimits(), nil)
	router := newTestRouter(t, svc)

	rec := do(t, router, http.MethodGet, "/api/spc/core/2025-03/limits", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "core", body["tier"])
	assert.Equal(t, "2025-03", body["asof"])
	assert.EqualValues(t, 2, body["count"])

	rows := body["data"].([]interface{})
	second := rows[1].(map[string]interface{})
	assert.Nil(t, second["sigma"], "undefined statistics serialize as null")
	svc.AssertExpectations(t)
}

func TestSPCHandler_GetLimitsCSV(t *testing.T) {
	svc := new(MockSPCService)
	svc.On("Limits", mock.Anything, "core", "2025-03").Return(sampleLimits(), nil)
	router := newTestRouter(t, svc)

	rec := do(t, router, http.MethodGet, "/api/spc/core/2025-03/limits?format=CSV", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "spc_limits_core_2025-03.csv")

	records, err := csv.NewReader(rec.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "STEP_ID", records[0][0])
	assert.Equal(t, spc.ColUCL, records[0][5])
	assert.Equal(t, "S1", records[1][0])
}

func TestSPCHandler_Errors(t *testing.T) {
	tests := []struct {
		name     string
		target   string
		setup    func(*MockSPCService)
		wantCode int
	}{
		{
			name:     "unknown format",
			target:   "/api/spc/core/2025-03/limits?format=xml",
			setup:    func(*MockSPCService) {},
			wantCode: http.StatusBadRequest,
		},
		{
			name:   "not built",
			target: "/api/spc/core/2025-03/limits",
			setup: func(m *MockSPCService) {
				m.On("Limits", mock.Anything, "core", "2025-03").
					Return(nil, apperrors.NewNotFoundError("spc limits for tier core asof 2025-03"))
			},
			wantCode: http.StatusNotFound,
		},
		{
			name:   "bad tier",
			target: "/api/capability/gold/2025-03",
			setup: func(m *MockSPCService) {
				m.On("Capability", mock.Anything, "gold", "2025-03").
					Return(nil, apperrors.InvalidParameter("tier", "unknown tier"))
			},
			wantCode: http.StatusBadRequest,
		},
		{
			name:   "store failure",
			target: "/api/capability/core/2025-03",
			setup: func(m *MockSPCService) {
				m.On("Capability", mock.Anything, "core", "2025-03").
					Return(nil, apperrors.NewStorageError("failed to query capability", assert.AnError))
			},
			wantCode: http.StatusInternalServerError,
		},
		{
			name:     "negative alert limit",
			target:   "/api/spc/core/2025-03/alerts?limit=-1",
			setup:    func(*MockSPCService) {},
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "non numeric min_alerts",
			target:   "/api/spc/core/2025-03/alerts?min_alerts=many",
			setup:    func(*MockSPCService) {},
			wantCode: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockSPCService)
			tt.setup(svc)
			rec := do(t, newTestRouter(t, svc), http.MethodGet, tt.target, "", "")
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.NotEmpty(t, decodeBody(t, rec)["type"])
			svc.AssertExpectations(t)
		})
	}
}

func TestSPCHandler_GetAlerts(t *testing.T) {
	svc := new(MockSPCService)
	alerts := []spc.AlertSummary{{
		Key: "S1", NPoints: 40, NAlerts: 3,
		RuleCounts: map[spc.Rule]int{spc.RuleI3Sigma: 2, spc.RuleMR3Sigma: 1},
	}}
	svc.On("Alerts", mock.Anything, "recurring", "2025-03", store.AlertQuery{MinAlerts: 1, Limit: 10}).
		Return(alerts, nil)
	router := newTestRouter(t, svc)

	rec := do(t, router, http.MethodGet, "/api/spc/recurring/2025-03/alerts?min_alerts=1&limit=10", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.EqualValues(t, 1, body["count"])
	svc.AssertExpectations(t)
}

func TestSPCHandler_GetAlertsFilteredEmpty(t *testing.T) {
	svc := new(MockSPCService)
	svc.On("Alerts", mock.Anything, "core", "2025-03", store.AlertQuery{MinAlerts: 5}).Return(nil, nil)

	rec := do(t, newTestRouter(t, svc), http.MethodGet, "/api/spc/core/2025-03/alerts?min_alerts=5", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.EqualValues(t, 0, body["count"])
	assert.Equal(t, []interface{}{}, body["data"])
}

func TestSPCHandler_CreateBuild(t *testing.T) {
	run := &store.BuildRun{ID: "b-1", Tier: "core", Asof: "2025-03", Window: "6m", Status: store.BuildCompleted}

	tests := []struct {
		name        string
		contentType string
		body        string
		setup       func(*MockSPCService)
		wantCode    int
	}{
		{
			name:        "created",
			contentType: "application/json",
			body:        `{"year":2025,"month":3,"tier":"core","baseline_months":6}`,
			setup: func(m *MockSPCService) {
				m.On("BuildMonth", mock.Anything, lake.BuildRequest{Year: 2025, Month: 3, Tier: "core", BaselineMonths: 6}).
					Return(run, nil)
			},
			wantCode: http.StatusCreated,
		},
		{
			name:        "already running",
			contentType: "application/json",
			body:        `{"year":2025,"month":3,"tier":"core"}`,
			setup: func(m *MockSPCService) {
				m.On("BuildMonth", mock.Anything, mock.Anything).Return(nil, apperrors.ErrBuildRunning)
			},
			wantCode: http.StatusConflict,
		},
		{
			name:        "missing month",
			contentType: "application/json",
			body:        `{"year":2025,"tier":"core"}`,
			setup:       func(*MockSPCService) {},
			wantCode:    http.StatusBadRequest,
		},
		{
			name:        "wrong content type",
			contentType: "text/plain",
			body:        `{"year":2025,"month":3,"tier":"core"}`,
			setup:       func(*MockSPCService) {},
			wantCode:    http.StatusUnsupportedMediaType,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockSPCService)
			tt.setup(svc)
			rec := do(t, newTestRouter(t, svc), http.MethodPost, "/api/builds", tt.contentType, tt.body)
			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantCode == http.StatusCreated {
				body := decodeBody(t, rec)
				assert.Equal(t, "b-1", body["id"])
				assert.Equal(t, "completed", body["status"])
				assert.Equal(t, "6m", body["baseline_window"])
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestSPCHandler_ListBuilds(t *testing.T) {
	svc := new(MockSPCService)
	svc.On("Builds", mock.Anything, store.BuildFilter{Tier: "core", Status: store.BuildFailed, Limit: 5}).
		Return([]store.BuildRun{{ID: "b-2", Status: store.BuildFailed, Error: "spc build: boom"}}, nil)
	router := newTestRouter(t, svc)

	rec := do(t, router, http.MethodGet, "/api/builds?tier=core&status=Failed&limit=5", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.EqualValues(t, 1, body["count"])

	rec = do(t, router, http.MethodGet, "/api/builds?status=done", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	svc.AssertExpectations(t)
}

func TestSPCHandler_GetBuild(t *testing.T) {
	svc := new(MockSPCService)
	svc.On("Build", mock.Anything, "b-3").Return(&store.BuildRun{ID: "b-3", Status: store.BuildRunning}, nil)
	svc.On("Build", mock.Anything, "missing").Return(nil, apperrors.NewNotFoundError("build missing"))
	router := newTestRouter(t, svc)

	rec := do(t, router, http.MethodGet, "/api/builds/b-3", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "running", decodeBody(t, rec)["status"])

	rec = do(t, router, http.MethodGet, "/api/builds/missing", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
