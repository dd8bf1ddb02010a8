package lake

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gherrador/tightening-project/internal/config"
	apperrors "github.com/gherrador/tightening-project/internal/errors"
	"github.com/gherrador/tightening-project/internal/infrastructure"
	"github.com/gherrador/tightening-project/internal/shared/testutil"
	"github.com/gherrador/tightening-project/internal/spc"
)

var fixedNow = time.Date(2025, 4, 1, 6, 30, 0, 0, time.UTC)

type builderFixture struct {
	root    string
	paths   *config.Paths
	builder *Builder
	logs    *testutil.BufferedSlogHandler
}

// newBuilderFixture seeds a lake where step 10 has a steady 12-point
// baseline in 2025-02 and step 20 only 3 points. 2025-01 is missing.
// The evaluation month 2025-03 has a torque spike on step 10.
func newBuilderFixture(t *testing.T) *builderFixture {
	t.Helper()
	root := t.TempDir()
	paths, err := config.NewPaths(root)
	require.NoError(t, err)

	feb := time.Date(2025, 2, 3, 8, 0, 0, 0, time.UTC)
	baseline := append(
		testutil.Series("10", feb, testutil.Repeat(12, 10, 10.5, 9.5)...),
		testutil.Series("20", feb, 20, 20.1, 19.9)...,
	)
	testutil.WriteSilverMonth(t, root, 2025, 2, baseline)

	mar := time.Date(2025, 3, 3, 8, 0, 0, 0, time.UTC)
	eval := append(
		testutil.Series("10", mar, 10, 10.5, 50, 10),
		testutil.Series("20", mar, 20, 20.2)...,
	)
	testutil.WriteSilverMonth(t, root, 2025, 3, eval)

	logger, logs := testutil.NewTestLogger(t)
	reader := NewSilverReader(paths, "csv", logger)
	b := NewBuilder(paths, reader, BuilderConfig{
		Columns:        spc.DefaultColumns(),
		MinPoints:      5,
		BaselineMonths: 2,
	}, WithLogger(logger), WithClock(func() time.Time { return fixedNow }))

	return &builderFixture{root: root, paths: paths, builder: b, logs: logs}
}

func TestBuildSPCForMonth(t *testing.T) {
	f := newBuilderFixture(t)
	ctx := context.Background()

	out, err := f.builder.BuildSPCForMonth(ctx, BuildRequest{Year: 2025, Month: 3, Tier: " CORE "})
	require.NoError(t, err)

	assert.False(t, out.Skipped)
	assert.NotEmpty(t, out.BuildID)
	assert.Equal(t, "core", out.Tier)
	assert.Equal(t, "2025-03", out.Asof)
	assert.Equal(t, "2m", out.Window)
	for _, p := range []string{out.PointsPath, out.AlertsPath, out.LimitsPath, out.MetaPath} {
		assert.FileExists(t, p)
	}
	assert.Contains(t, out.LimitsPath, "baseline_window=2m")
	assert.Contains(t, out.LimitsPath, "asof=2025-03")

	// step 20 has too few baseline points
	require.Len(t, out.Limits, 1)
	assert.Equal(t, "10", out.Limits[0].Key)
	assert.Equal(t, 12, out.Limits[0].N)
	assert.InDelta(t, 10.0, out.Limits[0].Center, 1e-9)

	// the spike and the point after it both break the moving-range limit
	require.Len(t, out.Alerts, 1)
	assert.Equal(t, "10", out.Alerts[0].Key)
	assert.Equal(t, 4, out.Alerts[0].NPoints)
	assert.Equal(t, 2, out.Alerts[0].NAlerts)
	assert.Equal(t, 2, out.Alerts[0].Count(spc.RuleMR3Sigma))

	meta := out.Meta
	require.NotNil(t, meta)
	assert.Equal(t, config.SPCBuildVersion, meta.Version)
	assert.Equal(t, out.BuildID, meta.BuildID)
	assert.Equal(t, "2025-04-01T06:30:00Z", meta.BuiltAtUTC)
	assert.False(t, meta.Filters.StepIDsProvided)
	assert.Nil(t, meta.Filters.StepIDsCount)
	assert.Equal(t, map[string]int{
		"eval_rows": 6, "baseline_rows": 15, "limits_rows": 1, "points_rows": 4, "alerts_rows": 1,
	}, meta.Counts)
	assert.Equal(t, []string{
		f.paths.SilverMonthDir(2025, 1),
		f.paths.SilverMonthDir(2025, 2),
	}, meta.Inputs.BaselineSilverDirs)
	assert.Empty(t, meta.Cols.LSL)

	onDisk, err := ReadMeta(out.MetaPath)
	require.NoError(t, err)
	assert.Equal(t, meta, onDisk)

	assert.True(t, f.logs.ContainsMessage("silver months missing from baseline"))
	assert.True(t, f.logs.ContainsMessage("spc gold build completed"))
}

func TestBuildSPCForMonth_Idempotent(t *testing.T) {
	f := newBuilderFixture(t)
	ctx := context.Background()
	req := BuildRequest{Year: 2025, Month: 3, Tier: "core"}

	first, err := f.builder.BuildSPCForMonth(ctx, req)
	require.NoError(t, err)

	// removing silver proves the second call does not recompute
	require.NoError(t, os.RemoveAll(f.paths.SilverDir))

	second, err := f.builder.BuildSPCForMonth(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Skipped)
	assert.Equal(t, first.BuildID, second.BuildID)
	assert.Equal(t, first.Limits, second.Limits)
	require.Len(t, second.Alerts, 1)
	assert.Equal(t, first.Alerts[0].NAlerts, second.Alerts[0].NAlerts)
	assert.Equal(t, first.Alerts[0].Count(spc.RuleMR3Sigma), second.Alerts[0].Count(spc.RuleMR3Sigma))

	req.Force = true
	_, err = f.builder.BuildSPCForMonth(ctx, req)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeNotFound))
}

func TestBuildSPCForMonth_ForceRebuilds(t *testing.T) {
	f := newBuilderFixture(t)
	ctx := context.Background()

	first, err := f.builder.BuildSPCForMonth(ctx, BuildRequest{Year: 2025, Month: 3, Tier: "core"})
	require.NoError(t, err)
	second, err := f.builder.BuildSPCForMonth(ctx, BuildRequest{Year: 2025, Month: 3, Tier: "core", Force: true})
	require.NoError(t, err)

	assert.False(t, second.Skipped)
	assert.NotEqual(t, first.BuildID, second.BuildID)
}

func TestBuildSPCForMonth_StepFilter(t *testing.T) {
	f := newBuilderFixture(t)

	out, err := f.builder.BuildSPCForMonth(context.Background(), BuildRequest{
		Year: 2025, Month: 3, Tier: "recurring", StepIDs: []string{"20.0"},
	})
	require.NoError(t, err)

	assert.Empty(t, out.Limits)
	assert.Empty(t, out.Alerts)
	assert.True(t, out.Meta.Filters.StepIDsProvided)
	require.NotNil(t, out.Meta.Filters.StepIDsCount)
	assert.Equal(t, 1, *out.Meta.Filters.StepIDsCount)
	assert.Equal(t, 2, out.Meta.Counts["eval_rows"])
	assert.Equal(t, 3, out.Meta.Counts["baseline_rows"])
	assert.Contains(t, out.PointsPath, "tier=recurring")
}

func TestBuildSPCForMonth_Errors(t *testing.T) {
	tests := []struct {
		name  string
		req   BuildRequest
		check func(t *testing.T, err error)
	}{
		{
			name: "unknown tier",
			req:  BuildRequest{Year: 2025, Month: 3, Tier: "gold"},
			check: func(t *testing.T, err error) {
				assert.True(t, apperrors.IsType(err, apperrors.ErrTypeValidation))
			},
		},
		{
			name: "bad window",
			req:  BuildRequest{Year: 2025, Month: 3, Tier: "core", Window: "1y"},
			check: func(t *testing.T, err error) {
				assert.True(t, apperrors.IsType(err, apperrors.ErrTypeValidation))
			},
		},
		{
			name: "month out of range",
			req:  BuildRequest{Year: 2025, Month: 13, Tier: "core"},
			check: func(t *testing.T, err error) {
				var verrs validator.ValidationErrors
				assert.ErrorAs(t, err, &verrs)
			},
		},
		{
			name: "missing evaluation month",
			req:  BuildRequest{Year: 2025, Month: 5, Tier: "core"},
			check: func(t *testing.T, err error) {
				assert.True(t, apperrors.IsType(err, apperrors.ErrTypeNotFound))
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newBuilderFixture(t)
			_, err := f.builder.BuildSPCForMonth(context.Background(), tt.req)
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestBuildSPCForMonth_MissingColumns(t *testing.T) {
	f := newBuilderFixture(t)
	path := testutil.SilverPartPath(f.root, 2025, 3)
	require.NoError(t, os.WriteFile(path, []byte("STEP_ID,DateTime\n10,2025-03-01 00:00:00\n"), 0o644))

	_, err := f.builder.BuildSPCForMonth(context.Background(), BuildRequest{Year: 2025, Month: 3, Tier: "core"})
	var missing *spc.MissingColumnsError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"FinalTorque"}, missing.Missing)
}

func TestBuildCapabilityForMonth(t *testing.T) {
	f := newBuilderFixture(t)
	ctx := context.Background()
	req := BuildRequest{Year: 2025, Month: 3, Tier: "core"}

	out, err := f.builder.BuildCapabilityForMonth(ctx, req)
	require.NoError(t, err)

	assert.False(t, out.Skipped)
	assert.FileExists(t, out.CapabilityPath)
	assert.FileExists(t, out.MetaPath)
	assert.Contains(t, out.MetaPath, config.CapabilityMetaFile)

	require.Len(t, out.Capability, 1)
	c := out.Capability[0]
	assert.Equal(t, "10", c.Key)
	assert.Equal(t, 12, c.N)
	assert.Equal(t, 8.0, c.LSL)
	assert.Equal(t, 12.0, c.USL)
	assert.True(t, c.Cpk.Valid)
	assert.True(t, c.Ppk.Valid)

	assert.Equal(t, config.CapabilityBuildVersion, out.Meta.Version)
	assert.Equal(t, map[string]int{"baseline_rows": 15, "capability_rows": 1}, out.Meta.Counts)
	assert.Equal(t, "TorqueMinTolerance", out.Meta.Cols.LSL)

	again, err := f.builder.BuildCapabilityForMonth(ctx, req)
	require.NoError(t, err)
	assert.True(t, again.Skipped)
	assert.Equal(t, out.BuildID, again.BuildID)
	require.Len(t, again.Capability, 1)
	assert.InDelta(t, c.Cpk.V, again.Capability[0].Cpk.V, 1e-9)
}

func TestBuildCapabilityForMonth_RecordsExcludedGroups(t *testing.T) {
	f := newBuilderFixture(t)
	logger, _ := testutil.NewTestLogger(t)

	providers, err := infrastructure.InitializeOTel(&infrastructure.OTelConfig{
		ServiceName:    infrastructure.ServiceName,
		EnableMetrics:  true,
		MetricExporter: "prometheus",
	}, logger)
	require.NoError(t, err)
	defer providers.Shutdown(context.Background())
	metrics, err := infrastructure.CreateBusinessMetrics(providers.Meter)
	require.NoError(t, err)

	b := NewBuilder(f.paths, NewSilverReader(f.paths, "csv", logger), BuilderConfig{
		Columns:        spc.DefaultColumns(),
		MinPoints:      5,
		BaselineMonths: 2,
	}, WithLogger(logger), WithMetrics(metrics))

	out, err := b.BuildCapabilityForMonth(context.Background(), BuildRequest{Year: 2025, Month: 3, Tier: "core"})
	require.NoError(t, err)
	require.Len(t, out.Capability, 1)

	rec := httptest.NewRecorder()
	providers.PrometheusHTTP.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	// step 20 has 3 baseline points against a minimum of 5
	assert.Regexp(t, `spc_groups_excluded_total\{[^}]*stage="capability"[^}]*\} 1`, rec.Body.String())
}

func TestBuildersDoNotShareMeta(t *testing.T) {
	f := newBuilderFixture(t)
	ctx := context.Background()
	req := BuildRequest{Year: 2025, Month: 3, Tier: "core"}

	spcOut, err := f.builder.BuildSPCForMonth(ctx, req)
	require.NoError(t, err)
	capOut, err := f.builder.BuildCapabilityForMonth(ctx, req)
	require.NoError(t, err)

	assert.NotEqual(t, spcOut.MetaPath, capOut.MetaPath)
	meta, err := ReadMeta(spcOut.MetaPath)
	require.NoError(t, err)
	assert.Equal(t, config.SPCBuildVersion, meta.Version)
}

func TestNewBuilderConfig(t *testing.T) {
	cfg := config.Default()
	cfg.SPC.Columns.Value = "Torque"
	minMR := 7
	cfg.SPC.MinMR = &minMR

	bc := NewBuilderConfig(cfg)
	assert.Equal(t, "Torque", bc.Columns.Value)
	assert.Equal(t, "STEP_ID", bc.Columns.Key)
	assert.Equal(t, config.DefaultMinPoints, bc.MinPoints)
	require.NotNil(t, bc.MinMR)
	assert.Equal(t, 7, *bc.MinMR)
	assert.Equal(t, config.DefaultBaselineMonths, bc.BaselineMonths)
}
