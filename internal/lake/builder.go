package lake

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/gherrador/tightening-project/internal/config"
	apperrors "github.com/gherrador/tightening-project/internal/errors"
	"github.com/gherrador/tightening-project/internal/exporter"
	"github.com/gherrador/tightening-project/internal/infrastructure"
	"github.com/gherrador/tightening-project/internal/spc"
)

const (
	layerGold = "gold"
	partExt   = "csv"

	kindSPC        = "spc"
	kindCapability = "capability"
)

var windowPattern = regexp.MustCompile(`^[0-9]+m$`)

// BuildRequest selects the month and tier of a gold build.
type BuildRequest struct {
	Year           int      `json:"year" validate:"required,min=1900,max=9999"`
	Month          int      `json:"month" validate:"required,min=1,max=12"`
	Tier           string   `json:"tier" validate:"required"`
	BaselineMonths int      `json:"baseline_months,omitempty" validate:"omitempty,min=1,max=120"`
	Window         string   `json:"window,omitempty"`
	StepIDs        []string `json:"step_ids,omitempty" validate:"omitempty,dive,required"`
	Force          bool     `json:"force,omitempty"`
}

// NewBuilderConfig maps the spc and lake sections of the application config.
func NewBuilderConfig(cfg *config.Config) BuilderConfig {
	c := cfg.SPC.Columns
	return BuilderConfig{
		Columns:        spc.Columns{Key: c.Key, Time: c.Time, Value: c.Value, LSL: c.LSL, USL: c.USL},
		MinPoints:      cfg.SPC.MinPoints,
		MinMR:          cfg.SPC.MinMR,
		BaselineMonths: cfg.Lake.BaselineMonths,
	}
}

// BuilderConfig holds the thresholds and columns every build uses.
type BuilderConfig struct {
	Columns        spc.Columns
	MinPoints      int
	MinMR          *int
	BaselineMonths int
}

// SPCOutputs describes an SPC gold build. Limits and Alerts are populated
// whether the build ran or was skipped.
type SPCOutputs struct {
	BuildID    string
	Tier       string
	Asof       string
	Window     string
	PointsPath string
	AlertsPath string
	LimitsPath string
	MetaPath   string
	Skipped    bool

	Limits []spc.Limits
	Alerts []spc.AlertSummary
	Meta   *BuildMeta
}

// CapabilityOutputs describes a capability gold build.
type CapabilityOutputs struct {
	BuildID        string
	Tier           string
	Asof           string
	Window         string
	CapabilityPath string
	MetaPath       string
	Skipped        bool

	Capability []spc.Capability
	Meta       *BuildMeta
}

// Builder produces the gold tables of one month.
type Builder struct {
	paths    *config.Paths
	reader   *SilverReader
	writer   *exporter.CSVWriter
	engine   *spc.Engine
	cfg      BuilderConfig
	validate *validator.Validate

	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *infrastructure.BusinessMetrics
	now     func() time.Time
}

// BuilderOption customizes a Builder.
type BuilderOption func(*Builder)

// WithLogger sets the builder logger.
func WithLogger(logger *slog.Logger) BuilderOption {
	return func(b *Builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithTracer sets the tracer gold builds run under.
func WithTracer(tracer trace.Tracer) BuilderOption {
	return func(b *Builder) {
		if tracer != nil {
			b.tracer = tracer
		}
	}
}

// WithMetrics records build outcomes on m.
func WithMetrics(m *infrastructure.BusinessMetrics) BuilderOption {
	return func(b *Builder) { b.metrics = m }
}

// WithClock overrides the build timestamp source.
func WithClock(now func() time.Time) BuilderOption {
	return func(b *Builder) {
		if now != nil {
			b.now = now
		}
	}
}

// NewBuilder creates a builder over the lake at paths.
func NewBuilder(paths *config.Paths, reader *SilverReader, cfg BuilderConfig, opts ...BuilderOption) *Builder {
	if cfg.BaselineMonths <= 0 {
		cfg.BaselineMonths = config.DefaultBaselineMonths
	}
	if cfg.MinPoints <= 0 {
		cfg.MinPoints = spc.DefaultMinPoints
	}
	b := &Builder{
		paths:    paths,
		reader:   reader,
		cfg:      cfg,
		validate: validator.New(),
		logger:   slog.Default(),
		tracer:   otel.Tracer(infrastructure.MeterName),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With(slog.String("component", "lake.builder"))
	b.writer = exporter.NewCSVWriter(b.logger)
	b.engine = spc.NewEngine(cfg.Columns, cfg.MinPoints, cfg.MinMR, b.logger)
	return b
}

// buildPlan is a validated request with its derived partitions.
type buildPlan struct {
	BuildRequest
	asof     string
	window   string
	baseline []Month
	keep     map[string]bool // nil when no step filter was given
}

func (b *Builder) plan(req BuildRequest) (*buildPlan, error) {
	if err := b.validate.Struct(req); err != nil {
		return nil, err
	}
	tier, err := config.NormalizeTier(req.Tier)
	if err != nil {
		return nil, apperrors.NewAppError(apperrors.ErrTypeValidation, err.Error(), err).WithContext("tier", req.Tier)
	}
	req.Tier = tier
	if req.BaselineMonths <= 0 {
		req.BaselineMonths = b.cfg.BaselineMonths
	}

	p := &buildPlan{
		BuildRequest: req,
		asof:         config.Asof(req.Year, req.Month),
		window:       strings.TrimSpace(req.Window),
		baseline:     BaselineMonths(req.Year, req.Month, req.BaselineMonths),
	}
	if p.window == "" {
		p.window = fmt.Sprintf("%dm", req.BaselineMonths)
	}
	if !windowPattern.MatchString(p.window) {
		return nil, apperrors.NewAppValidationError(fmt.Sprintf("invalid baseline window %q: expected e.g. 12m", p.window))
	}
	if req.StepIDs != nil {
		p.keep = spc.KeySet(req.StepIDs)
	}
	return p, nil
}

func (p *buildPlan) filters() MetaFilters {
	f := MetaFilters{StepIDsProvided: p.StepIDs != nil}
	if p.StepIDs != nil {
		n := len(p.StepIDs)
		f.StepIDsCount = &n
	}
	return f
}

func (b *Builder) baselineDirs(p *buildPlan) []string {
	dirs := make([]string, len(p.baseline))
	for i, m := range p.baseline {
		dirs[i] = b.paths.SilverMonthDir(m.Year, m.Month)
	}
	return dirs
}

// filterSteps applies the step filter. The key column must exist whenever a
// filter is set and the table has rows.
func (b *Builder) filterSteps(p *buildPlan, t *spc.Table, op string) (*spc.Table, error) {
	if p.keep == nil || t.Empty() {
		return t, nil
	}
	if err := t.Require(op, b.cfg.Columns.Key); err != nil {
		return nil, err
	}
	return t.Filter(b.cfg.Columns.Key, p.keep), nil
}

func (b *Builder) startSpan(ctx context.Context, kind string, p *buildPlan) (context.Context, trace.Span) {
	return b.tracer.Start(ctx, "lake.build."+kind,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("build.kind", kind),
			attribute.String("build.tier", p.Tier),
			attribute.String("build.asof", p.asof),
			attribute.String("build.window", p.window),
			attribute.Bool("build.force", p.Force),
		),
	)
}

func (b *Builder) finish(ctx context.Context, span trace.Span, kind, tier string, start time.Time, err error) {
	b.metrics.RecordBuild(ctx, kind, tier, time.Since(start), err)
	if err != nil {
		infrastructure.RecordError(ctx, err)
	} else {
		span.SetStatus(codes.Ok, "build completed")
	}
	span.End()
}

// BuildSPCForMonth computes limits from the baseline months, scores the
// month against them and writes points, alerts, limits and meta. When all
// four outputs exist and Force is not set, the stored results are returned.
func (b *Builder) BuildSPCForMonth(ctx context.Context, req BuildRequest) (out *SPCOutputs, err error) {
	p, err := b.plan(req)
	if err != nil {
		return nil, err
	}

	out = &SPCOutputs{
		Tier:       p.Tier,
		Asof:       p.asof,
		Window:     p.window,
		PointsPath: b.paths.GoldMonthPart(config.DatasetSPCPoints, p.Tier, p.Year, p.Month, partExt),
		AlertsPath: b.paths.GoldMonthPart(config.DatasetSPCAlerts, p.Tier, p.Year, p.Month, partExt),
		LimitsPath: b.paths.GoldAsofPart(config.DatasetSPCLimits, p.Tier, p.window, p.Year, p.Month, partExt),
		MetaPath:   b.paths.MetaFile(p.Tier, p.Year, p.Month, config.SPCMetaFile),
	}

	if !p.Force && allExist(out.PointsPath, out.AlertsPath, out.LimitsPath, out.MetaPath) {
		if err := b.loadSPC(out); err != nil {
			return nil, err
		}
		b.logger.InfoContext(ctx, "spc gold outputs exist, skipping build",
			"tier", p.Tier, "asof", p.asof, "build_id", out.BuildID)
		return out, nil
	}

	out.BuildID = uuid.NewString()
	start := time.Now()
	ctx, span := b.startSpan(ctx, kindSPC, p)
	span.SetAttributes(attribute.String("build.id", out.BuildID))
	defer func() { b.finish(ctx, span, kindSPC, p.Tier, start, err) }()

	month := Month{Year: p.Year, Month: p.Month}
	eval, ok, err := b.reader.ReadMonth(ctx, month)
	if err != nil {
		return nil, err
	}
	if !ok || eval.Empty() {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("silver data for %s", month)).
			WithContext("silver_month_dir", b.paths.SilverMonthDir(p.Year, p.Month))
	}

	base, err := b.reader.ReadMonths(ctx, p.baseline)
	if err != nil {
		return nil, err
	}
	infrastructure.AddSpanEvent(ctx, "silver.loaded",
		attribute.Int("eval_rows", eval.Len()),
		attribute.Int("baseline_rows", base.Table.Len()),
		attribute.Int("baseline_months_missing", len(base.Missing)),
	)

	if eval, err = b.filterSteps(p, eval, "filter evaluation steps"); err != nil {
		return nil, err
	}
	baseline, err := b.filterSteps(p, base.Table, "filter baseline steps")
	if err != nil {
		return nil, err
	}

	res, err := b.engine.Run(ctx, baseline, eval)
	if err != nil {
		return nil, err
	}
	b.metrics.RecordScoring(ctx, p.Tier, len(res.Points), alertsByRule(res.Alerts))
	b.metrics.RecordExcluded(ctx, "limits", res.ExcludedGroups, res.DroppedRows)

	keyCol := b.cfg.Columns.Key
	if err := b.write(out.LimitsPath, spc.LimitsTable(res.Limits, keyCol)); err != nil {
		return nil, err
	}
	if err := b.write(out.PointsPath, spc.PointsTable(res.Points, b.cfg.Columns)); err != nil {
		return nil, err
	}
	if err := b.write(out.AlertsPath, spc.AlertsTable(res.Alerts, keyCol)); err != nil {
		return nil, err
	}

	meta := b.newMeta(p, out.BuildID, config.SPCBuildVersion, spc.Columns{
		Key: keyCol, Time: b.cfg.Columns.Time, Value: b.cfg.Columns.Value,
	})
	meta.Inputs.SilverMonthDir = b.paths.SilverMonthDir(p.Year, p.Month)
	meta.Outputs = map[string]string{
		config.DatasetSPCPoints: out.PointsPath,
		config.DatasetSPCAlerts: out.AlertsPath,
		config.DatasetSPCLimits: out.LimitsPath,
	}
	meta.Counts = map[string]int{
		"eval_rows":     eval.Len(),
		"baseline_rows": baseline.Len(),
		"limits_rows":   len(res.Limits),
		"points_rows":   len(res.Points),
		"alerts_rows":   len(res.Alerts),
	}
	// meta goes last so a crash mid-build never looks complete
	if err := WriteMeta(out.MetaPath, meta); err != nil {
		return nil, err
	}

	out.Limits, out.Alerts, out.Meta = res.Limits, res.Alerts, meta
	b.logger.InfoContext(ctx, "spc gold build completed",
		"build_id", out.BuildID,
		"tier", p.Tier,
		"asof", p.asof,
		"limits", len(res.Limits),
		"points", len(res.Points),
		"alert_groups", len(res.Alerts),
		"duration", time.Since(start).String(),
	)
	return out, nil
}

// BuildCapabilityForMonth estimates capability from the baseline months
// preceding the request month.
func (b *Builder) BuildCapabilityForMonth(ctx context.Context, req BuildRequest) (out *CapabilityOutputs, err error) {
	p, err := b.plan(req)
	if err != nil {
		return nil, err
	}

	out = &CapabilityOutputs{
		Tier:           p.Tier,
		Asof:           p.asof,
		Window:         p.window,
		CapabilityPath: b.paths.GoldAsofPart(config.DatasetCapability, p.Tier, p.window, p.Year, p.Month, partExt),
		MetaPath:       b.paths.MetaFile(p.Tier, p.Year, p.Month, config.CapabilityMetaFile),
	}

	if !p.Force && allExist(out.CapabilityPath, out.MetaPath) {
		if err := b.loadCapability(out); err != nil {
			return nil, err
		}
		b.logger.InfoContext(ctx, "capability gold outputs exist, skipping build",
			"tier", p.Tier, "asof", p.asof, "build_id", out.BuildID)
		return out, nil
	}

	out.BuildID = uuid.NewString()
	start := time.Now()
	ctx, span := b.startSpan(ctx, kindCapability, p)
	span.SetAttributes(attribute.String("build.id", out.BuildID))
	defer func() { b.finish(ctx, span, kindCapability, p.Tier, start, err) }()

	base, err := b.reader.ReadMonths(ctx, p.baseline)
	if err != nil {
		return nil, err
	}
	baseline, err := b.filterSteps(p, base.Table, "filter baseline steps")
	if err != nil {
		return nil, err
	}

	res, err := b.engine.Capability(ctx, baseline)
	if err != nil {
		return nil, err
	}
	caps := res.Capability
	b.metrics.RecordExcluded(ctx, "capability", res.ExcludedGroups, res.DroppedRows)
	if err := b.write(out.CapabilityPath, spc.CapabilityTable(caps, b.cfg.Columns.Key)); err != nil {
		return nil, err
	}

	meta := b.newMeta(p, out.BuildID, config.CapabilityBuildVersion, b.cfg.Columns)
	meta.Outputs = map[string]string{config.DatasetCapability: out.CapabilityPath}
	meta.Counts = map[string]int{
		"baseline_rows":   baseline.Len(),
		"capability_rows": len(caps),
	}
	if err := WriteMeta(out.MetaPath, meta); err != nil {
		return nil, err
	}

	out.Capability, out.Meta = caps, meta
	b.logger.InfoContext(ctx, "capability gold build completed",
		"build_id", out.BuildID,
		"tier", p.Tier,
		"asof", p.asof,
		"groups", len(caps),
		"duration", time.Since(start).String(),
	)
	return out, nil
}

func (b *Builder) newMeta(p *buildPlan, buildID, version string, cols spc.Columns) *BuildMeta {
	return &BuildMeta{
		Layer:          layerGold,
		Version:        version,
		BuildID:        buildID,
		Tier:           p.Tier,
		Asof:           p.asof,
		BaselineWindow: p.window,
		Year:           p.Year,
		Month:          p.Month,
		Cols:           cols,
		MinPoints:      b.cfg.MinPoints,
		Filters:        p.filters(),
		Inputs:         MetaInputs{BaselineSilverDirs: b.baselineDirs(p)},
		BuiltAtUTC:     b.now().UTC().Format(time.RFC3339Nano),
	}
}

func (b *Builder) write(path string, t *spc.Table) error {
	if err := b.writer.WriteTable(path, t, exporter.WriteOptions{}); err != nil {
		return apperrors.NewStorageError("failed to write gold table", err).WithContext("path", path)
	}
	return nil
}

func (b *Builder) loadSPC(out *SPCOutputs) error {
	meta, err := ReadMeta(out.MetaPath)
	if err != nil {
		return fmt.Errorf("read spc meta: %w", err)
	}
	limits, err := readGold(out.LimitsPath, func(t *spc.Table) ([]spc.Limits, error) {
		return spc.ReadLimits(t, meta.Cols.Key)
	})
	if err != nil {
		return err
	}
	alerts, err := readGold(out.AlertsPath, func(t *spc.Table) ([]spc.AlertSummary, error) {
		return spc.ReadAlerts(t, meta.Cols.Key)
	})
	if err != nil {
		return err
	}
	out.BuildID, out.Meta, out.Limits, out.Alerts, out.Skipped = meta.BuildID, meta, limits, alerts, true
	return nil
}

func (b *Builder) loadCapability(out *CapabilityOutputs) error {
	meta, err := ReadMeta(out.MetaPath)
	if err != nil {
		return fmt.Errorf("read capability meta: %w", err)
	}
	caps, err := readGold(out.CapabilityPath, func(t *spc.Table) ([]spc.Capability, error) {
		return spc.ReadCapability(t, meta.Cols.Key)
	})
	if err != nil {
		return err
	}
	out.BuildID, out.Meta, out.Capability, out.Skipped = meta.BuildID, meta, caps, true
	return nil
}

func readGold[T any](path string, decode func(*spc.Table) ([]T, error)) ([]T, error) {
	t, err := ReadTable(path)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to read gold table", err).WithContext("path", path)
	}
	rows, err := decode(t)
	if err != nil {
		return nil, apperrors.NewParsingError("failed to decode gold table", err).WithContext("path", path)
	}
	return rows, nil
}

func alertsByRule(alerts []spc.AlertSummary) map[string]int {
	out := make(map[string]int, len(spc.AlertRules))
	for _, a := range alerts {
		for _, rule := range spc.AlertRules {
			out[string(rule)] += a.Count(rule)
		}
	}
	return out
}

func allExist(paths ...string) bool {
	for _, p := range paths {
		if !config.FileExists(p) {
			return false
		}
	}
	return true
}
