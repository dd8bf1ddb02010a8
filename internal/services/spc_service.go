package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/gherrador/tightening-project/internal/config"
	apperrors "github.com/gherrador/tightening-project/internal/errors"
	"github.com/gherrador/tightening-project/internal/lake"
	"github.com/gherrador/tightening-project/internal/spc"
	"github.com/gherrador/tightening-project/internal/store"
)

// Build event types sent to dashboard clients.
const (
	EventBuildStarted   = "build:started"
	EventBuildCompleted = "build:completed"
	EventBuildFailed    = "build:failed"
)

// GoldBuilder produces the gold tables of one month.
type GoldBuilder interface {
	BuildSPCForMonth(ctx context.Context, req lake.BuildRequest) (*lake.SPCOutputs, error)
	BuildCapabilityForMonth(ctx context.Context, req lake.BuildRequest) (*lake.CapabilityOutputs, error)
}

// GoldStore is the catalog build results are loaded into and queried from.
type GoldStore interface {
	ReplaceLimits(ctx context.Context, tier, asof, window string, limits []spc.Limits) error
	ReplaceAlerts(ctx context.Context, tier, asof string, alerts []spc.AlertSummary) error
	ReplaceCapability(ctx context.Context, tier, asof, window string, caps []spc.Capability) error
	Limits(ctx context.Context, tier, asof string) ([]spc.Limits, error)
	Alerts(ctx context.Context, tier, asof string, q store.AlertQuery) ([]spc.AlertSummary, error)
	Capability(ctx context.Context, tier, asof string) ([]spc.Capability, error)
	InsertBuild(ctx context.Context, b *store.BuildRun) error
	UpdateBuild(ctx context.Context, b *store.BuildRun) error
	GetBuild(ctx context.Context, id string) (*store.BuildRun, error)
	ListBuilds(ctx context.Context, f store.BuildFilter) ([]store.BuildRun, error)
}

// Broadcaster pushes build events to connected clients.
type Broadcaster interface {
	Broadcast(ctx context.Context, messageType string, data interface{})
}

// SPCService runs gold builds and answers queries over their results.
type SPCService struct {
	builder  GoldBuilder
	store    GoldStore
	hub      Broadcaster
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	running map[string]string // tier/asof -> build run id
}

// NewSPCService creates the SPC service. hub may be nil.
func NewSPCService(builder GoldBuilder, st GoldStore, hub Broadcaster, logger *slog.Logger) *SPCService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SPCService{
		builder:  builder,
		store:    st,
		hub:      hub,
		validate: validator.New(),
		logger:   logger.With(slog.String("service", "spc")),
		now:      time.Now,
		running:  make(map[string]string),
	}
}

// BuildMonth runs the SPC and capability builds of one month concurrently,
// loads their tables into the store and records the run. A second request for
// a tier and month that is still building is rejected with ErrBuildRunning.
func (s *SPCService) BuildMonth(ctx context.Context, req lake.BuildRequest) (*store.BuildRun, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}
	tier, err := config.NormalizeTier(req.Tier)
	if err != nil {
		return nil, apperrors.NewAppError(apperrors.ErrTypeValidation, err.Error(), err).WithContext("tier", req.Tier)
	}
	req.Tier = tier
	asof := config.Asof(req.Year, req.Month)

	run := &store.BuildRun{
		ID:        uuid.New().String(),
		Tier:      tier,
		Asof:      asof,
		Window:    req.Window,
		Status:    store.BuildRunning,
		Force:     req.Force,
		StartedAt: s.now().UTC(),
	}
	if !s.acquire(tier, asof, run.ID) {
		return nil, apperrors.ErrBuildRunning
	}
	defer s.release(tier, asof)

	logger := s.logger.With(
		slog.String("build_run_id", run.ID),
		slog.String("tier", tier),
		slog.String("asof", asof),
	)

	if err := s.store.InsertBuild(ctx, run); err != nil {
		return nil, err
	}
	logger.InfoContext(ctx, "gold build started", slog.Bool("force", req.Force))
	s.broadcast(ctx, EventBuildStarted, run)

	var (
		spcOut *lake.SPCOutputs
		capOut *lake.CapabilityOutputs
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out, err := s.builder.BuildSPCForMonth(gctx, req)
		if err != nil {
			return fmt.Errorf("spc build: %w", err)
		}
		spcOut = out
		return nil
	})
	g.Go(func() error {
		out, err := s.builder.BuildCapabilityForMonth(gctx, req)
		if err != nil {
			return fmt.Errorf("capability build: %w", err)
		}
		capOut = out
		return nil
	})
	if err := g.Wait(); err != nil {
		return s.fail(ctx, logger, run, err)
	}

	run.Window = spcOut.Window
	run.SPCBuildID = spcOut.BuildID
	run.CapabilityBuildID = capOut.BuildID
	run.SPCSkipped = spcOut.Skipped
	run.CapabilitySkipped = capOut.Skipped
	run.LimitsRows = len(spcOut.Limits)
	run.AlertsRows = len(spcOut.Alerts)
	run.CapabilityRows = len(capOut.Capability)

	if err := s.load(ctx, run, spcOut, capOut); err != nil {
		return s.fail(ctx, logger, run, err)
	}

	finished := s.now().UTC()
	run.Status = store.BuildCompleted
	run.FinishedAt = &finished
	if err := s.store.UpdateBuild(ctx, run); err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "gold build completed",
		slog.String("window", run.Window),
		slog.Bool("spc_skipped", run.SPCSkipped),
		slog.Bool("capability_skipped", run.CapabilitySkipped),
		slog.Int("limits", run.LimitsRows),
		slog.Int("alerts", run.AlertsRows),
		slog.Int("capability", run.CapabilityRows),
		slog.Duration("duration", finished.Sub(run.StartedAt)),
	)
	s.broadcast(ctx, EventBuildCompleted, run)
	return run, nil
}

func (s *SPCService) load(ctx context.Context, run *store.BuildRun, spcOut *lake.SPCOutputs, capOut *lake.CapabilityOutputs) error {
	if err := s.store.ReplaceLimits(ctx, run.Tier, run.Asof, spcOut.Window, spcOut.Limits); err != nil {
		return err
	}
	if err := s.store.ReplaceAlerts(ctx, run.Tier, run.Asof, spcOut.Alerts); err != nil {
		return err
	}
	return s.store.ReplaceCapability(ctx, run.Tier, run.Asof, capOut.Window, capOut.Capability)
}

// fail records a failed run. The build error is returned even when the
// status update itself fails.
func (s *SPCService) fail(ctx context.Context, logger *slog.Logger, run *store.BuildRun, cause error) (*store.BuildRun, error) {
	finished := s.now().UTC()
	run.Status = store.BuildFailed
	run.Error = cause.Error()
	run.FinishedAt = &finished

	// the request context may already be cancelled; the run row must still close
	if err := s.store.UpdateBuild(context.WithoutCancel(ctx), run); err != nil {
		logger.ErrorContext(ctx, "failed to record build failure", slog.String("error", err.Error()))
	}
	logger.ErrorContext(ctx, "gold build failed", slog.String("error", cause.Error()))
	s.broadcast(ctx, EventBuildFailed, run)
	return run, cause
}

func (s *SPCService) broadcast(ctx context.Context, messageType string, run *store.BuildRun) {
	if s.hub == nil {
		return
	}
	snapshot := *run
	s.hub.Broadcast(ctx, messageType, snapshot)
}

func runKey(tier, asof string) string {
	return tier + "/" + asof
}

func (s *SPCService) acquire(tier, asof, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := runKey(tier, asof)
	if _, busy := s.running[key]; busy {
		return false
	}
	s.running[key] = id
	return true
}

func (s *SPCService) release(tier, asof string) {
	s.mu.Lock()
	delete(s.running, runKey(tier, asof))
	s.mu.Unlock()
}

// Running lists the tier/asof keys with a build in progress.
func (s *SPCService) Running() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.running))
	for k, v := range s.running {
		out[k] = v
	}
	return out
}

// target normalizes a tier and validates an asof month.
func target(tier, asof string) (string, string, error) {
	t, err := config.NormalizeTier(tier)
	if err != nil {
		return "", "", apperrors.InvalidParameter("tier", err.Error())
	}
	if _, err := time.Parse("2006-01", asof); err != nil || len(asof) != len("2006-01") {
		return "", "", apperrors.InvalidParameter("asof", "expected YYYY-MM")
	}
	return t, asof, nil
}

// Limits returns the stored control limits of a tier and month.
func (s *SPCService) Limits(ctx context.Context, tier, asof string) ([]spc.Limits, error) {
	tier, asof, err := target(tier, asof)
	if err != nil {
		return nil, err
	}
	limits, err := s.store.Limits(ctx, tier, asof)
	if err != nil {
		return nil, err
	}
	if len(limits) == 0 {
		if err := s.requireBuilt(ctx, "spc limits", tier, asof); err != nil {
			return nil, err
		}
		return []spc.Limits{}, nil
	}
	return limits, nil
}

// Alerts returns the stored alert summaries of a tier and month, most
// alerting steps first.
func (s *SPCService) Alerts(ctx context.Context, tier, asof string, q store.AlertQuery) ([]spc.AlertSummary, error) {
	tier, asof, err := target(tier, asof)
	if err != nil {
		return nil, err
	}
	if q.MinAlerts < 0 || q.Limit < 0 {
		return nil, apperrors.InvalidParameter("min_alerts", "must not be negative")
	}
	alerts, err := s.store.Alerts(ctx, tier, asof, q)
	if err != nil {
		return nil, err
	}
	if len(alerts) == 0 {
		if err := s.requireBuilt(ctx, "spc alerts", tier, asof); err != nil {
			return nil, err
		}
		return []spc.AlertSummary{}, nil
	}
	return alerts, nil
}

// Capability returns the stored capability indices of a tier and month.
func (s *SPCService) Capability(ctx context.Context, tier, asof string) ([]spc.Capability, error) {
	tier, asof, err := target(tier, asof)
	if err != nil {
		return nil, err
	}
	caps, err := s.store.Capability(ctx, tier, asof)
	if err != nil {
		return nil, err
	}
	if len(caps) == 0 {
		if err := s.requireBuilt(ctx, "capability", tier, asof); err != nil {
			return nil, err
		}
		return []spc.Capability{}, nil
	}
	return caps, nil
}

// Builds lists recorded build runs, newest first.
func (s *SPCService) Builds(ctx context.Context, f store.BuildFilter) ([]store.BuildRun, error) {
	if f.Tier != "" {
		tier, err := config.NormalizeTier(f.Tier)
		if err != nil {
			return nil, apperrors.InvalidParameter("tier", err.Error())
		}
		f.Tier = tier
	}
	switch f.Status {
	case "", store.BuildRunning, store.BuildCompleted, store.BuildFailed:
	default:
		return nil, apperrors.InvalidParameter("status", "expected running, completed or failed")
	}
	return s.store.ListBuilds(ctx, f)
}

// Build returns one recorded build run.
func (s *SPCService) Build(ctx context.Context, id string) (*store.BuildRun, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperrors.InvalidParameter("id", "expected a build run id")
	}
	return s.store.GetBuild(ctx, id)
}

// requireBuilt reports NOT_FOUND unless a completed build run exists for the
// tier and month. Completed months may hold empty tables.
func (s *SPCService) requireBuilt(ctx context.Context, what, tier, asof string) error {
	runs, err := s.store.ListBuilds(ctx, store.BuildFilter{
		Tier:   tier,
		Asof:   asof,
		Status: store.BuildCompleted,
		Limit:  1,
	})
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		return notBuilt(what, tier, asof)
	}
	return nil
}

func notBuilt(what, tier, asof string) error {
	return apperrors.NewNotFoundError(fmt.Sprintf("%s for tier %s asof %s", what, tier, asof)).
		WithContext("tier", tier).
		WithContext("asof", asof)
}
