package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apperrors "github.com/gherrador/tightening-project/internal/errors"
	"github.com/gherrador/tightening-project/internal/exporter"
	"github.com/gherrador/tightening-project/internal/lake"
	"github.com/gherrador/tightening-project/internal/middleware"
	"github.com/gherrador/tightening-project/internal/spc"
	"github.com/gherrador/tightening-project/internal/store"
)

const (
	formatJSON = "json"
	formatCSV  = "csv"
)

// SPCHandler serves the gold tables and the build endpoints.
type SPCHandler struct {
	service SPCServiceInterface
	keyCol  string
	body    *middleware.RequestValidator
	query   *middleware.QueryParamValidator
	errors  *apperrors.ErrorHandler
	logger  *slog.Logger
}

// NewSPCHandler creates the handler. keyCol names the step key column of
// CSV responses.
func NewSPCHandler(service SPCServiceInterface, keyCol string, errs *apperrors.ErrorHandler, logger *slog.Logger) *SPCHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if keyCol == "" {
		keyCol = spc.DefaultColumns().Key
	}
	return &SPCHandler{
		service: service,
		keyCol:  keyCol,
		body:    middleware.NewRequestValidator(logger, errs),
		query:   middleware.NewQueryParamValidator(errs),
		errors:  errs,
		logger:  logger.With(slog.String("handler", "spc")),
	}
}

// RegisterRoutes registers the read endpoints on r.
func (h *SPCHandler) RegisterRoutes(r chi.Router) {
	r.Get("/spc/{tier}/{asof}/limits", h.GetLimits)
	r.Get("/spc/{tier}/{asof}/alerts", h.GetAlerts)
	r.Get("/capability/{tier}/{asof}", h.GetCapability)
	r.Get("/builds", h.ListBuilds)
	r.Get("/builds/{id}", h.GetBuild)
}

// RegisterBuildRoutes registers POST /builds on r. Builds run within the
// request, so r usually carries a longer timeout than the read routes.
func (h *SPCHandler) RegisterBuildRoutes(r chi.Router) {
	r.With(middleware.ContentTypeValidator(h.errors, "application/json")).Post("/builds", h.CreateBuild)
}

// TableResponse wraps the rows of one gold table.
type TableResponse struct {
	Tier  string      `json:"tier"`
	Asof  string      `json:"asof"`
	Count int         `json:"count"`
	Data  interface{} `json:"data"`
}

// BuildListResponse wraps a list of build runs.
type BuildListResponse struct {
	Count int              `json:"count"`
	Data  []store.BuildRun `json:"data"`
}

// GetLimits handles GET /api/spc/{tier}/{asof}/limits
func (h *SPCHandler) GetLimits(w http.ResponseWriter, r *http.Request) {
	format, ok := h.format(w, r)
	if !ok {
		return
	}
	tier, asof := chi.URLParam(r, "tier"), chi.URLParam(r, "asof")

	limits, err := h.service.Limits(r.Context(), tier, asof)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	if format == formatCSV {
		h.writeCSV(w, r, fmt.Sprintf("spc_limits_%s_%s.csv", tier, asof), spc.LimitsTable(limits, h.keyCol))
		return
	}
	render.JSON(w, r, TableResponse{Tier: strings.ToLower(tier), Asof: asof, Count: len(limits), Data: limits})
}

// GetAlerts handles GET /api/spc/{tier}/{asof}/alerts
func (h *SPCHandler) GetAlerts(w http.ResponseWriter, r *http.Request) {
	format, ok := h.format(w, r)
	if !ok {
		return
	}
	minAlerts, ok := h.query.ValidateInt(w, r, "min_alerts", 0, 1<<30, 0)
	if !ok {
		return
	}
	limit, ok := h.query.ValidateInt(w, r, "limit", 0, 10000, 0)
	if !ok {
		return
	}
	tier, asof := chi.URLParam(r, "tier"), chi.URLParam(r, "asof")

	alerts, err := h.service.Alerts(r.Context(), tier, asof, store.AlertQuery{MinAlerts: minAlerts, Limit: limit})
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	if alerts == nil {
		alerts = []spc.AlertSummary{}
	}
	if format == formatCSV {
		h.writeCSV(w, r, fmt.Sprintf("spc_alerts_%s_%s.csv", tier, asof), spc.AlertsTable(alerts, h.keyCol))
		return
	}
	render.JSON(w, r, TableResponse{Tier: strings.ToLower(tier), Asof: asof, Count: len(alerts), Data: alerts})
}

// GetCapability handles GET /api/capability/{tier}/{asof}
func (h *SPCHandler) GetCapability(w http.ResponseWriter, r *http.Request) {
	format, ok := h.format(w, r)
	if !ok {
		return
	}
	tier, asof := chi.URLParam(r, "tier"), chi.URLParam(r, "asof")

	caps, err := h.service.Capability(r.Context(), tier, asof)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	if format == formatCSV {
		h.writeCSV(w, r, fmt.Sprintf("capability_%s_%s.csv", tier, asof), spc.CapabilityTable(caps, h.keyCol))
		return
	}
	render.JSON(w, r, TableResponse{Tier: strings.ToLower(tier), Asof: asof, Count: len(caps), Data: caps})
}

// ListBuilds handles GET /api/builds
func (h *SPCHandler) ListBuilds(w http.ResponseWriter, r *http.Request) {
	status, ok := h.query.ValidateEnum(w, r, "status",
		[]string{string(store.BuildRunning), string(store.BuildCompleted), string(store.BuildFailed)}, "")
	if !ok {
		return
	}
	limit, ok := h.query.ValidateInt(w, r, "limit", 1, 1000, 50)
	if !ok {
		return
	}
	q := r.URL.Query()

	runs, err := h.service.Builds(r.Context(), store.BuildFilter{
		Tier:   q.Get("tier"),
		Asof:   q.Get("asof"),
		Status: store.BuildStatus(status),
		Limit:  limit,
	})
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	if runs == nil {
		runs = []store.BuildRun{}
	}
	render.JSON(w, r, BuildListResponse{Count: len(runs), Data: runs})
}

// GetBuild handles GET /api/builds/{id}
func (h *SPCHandler) GetBuild(w http.ResponseWriter, r *http.Request) {
	run, err := h.service.Build(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, run)
}

// CreateBuild handles POST /api/builds. The build runs within the request;
// the response carries the finished run.
func (h *SPCHandler) CreateBuild(w http.ResponseWriter, r *http.Request) {
	var req lake.BuildRequest
	if !h.body.DecodeJSON(w, r, &req) {
		return
	}

	h.logger.InfoContext(r.Context(), "build requested",
		slog.String("tier", req.Tier),
		slog.Int("year", req.Year),
		slog.Int("month", req.Month),
		slog.Bool("force", req.Force))

	run, err := h.service.BuildMonth(r.Context(), req)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, run)
}

func (h *SPCHandler) format(w http.ResponseWriter, r *http.Request) (string, bool) {
	return h.query.ValidateEnum(w, r, "format", []string{formatJSON, formatCSV}, formatJSON)
}

func (h *SPCHandler) writeCSV(w http.ResponseWriter, r *http.Request, filename string, t *spc.Table) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", strings.ToLower(filename)))
	if err := exporter.WriteCSV(w, t, exporter.WriteOptions{}); err != nil {
		// headers are gone by now
		h.logger.ErrorContext(r.Context(), "failed to stream csv",
			slog.String("file", filename),
			slog.String("error", err.Error()))
	}
}
