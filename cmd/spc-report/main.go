package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gherrador/tightening-project/internal/config"
	"github.com/gherrador/tightening-project/internal/exporter"
	"github.com/gherrador/tightening-project/internal/infrastructure"
	"github.com/gherrador/tightening-project/internal/lake"
	"github.com/gherrador/tightening-project/internal/spc"
)

type options struct {
	configPath     string
	year           int
	month          int
	tier           string
	window         string
	baselineMonths int
	steps          string
	minPoints      int
	force          bool
	xlsx           string
	top            int
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	now := time.Now()
	opts := &options{}

	fs := flag.NewFlagSet("spc-report", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configPath, "config", "", "path to config.yaml")
	fs.IntVar(&opts.year, "year", now.Year(), "evaluation year")
	fs.IntVar(&opts.month, "month", int(now.Month()), "evaluation month (1-12)")
	fs.StringVar(&opts.tier, "tier", "", "lake tier: core or recurring (defaults to lake.default_tier)")
	fs.StringVar(&opts.window, "window", "", "baseline window label written into gold paths (defaults to <n>m)")
	fs.IntVar(&opts.baselineMonths, "baseline-months", 0, "number of months preceding the evaluation month used as baseline")
	fs.StringVar(&opts.steps, "steps", "", "comma separated STEP_IDs to keep (default: all)")
	fs.IntVar(&opts.minPoints, "min-points", 0, "minimum baseline points per step (defaults to spc.min_points)")
	fs.BoolVar(&opts.force, "force", false, "rebuild even when gold outputs exist")
	fs.StringVar(&opts.xlsx, "xlsx", "", "write limits, alerts and capability into this workbook")
	fs.IntVar(&opts.top, "top", 10, "number of steps in the top alerts table")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if opts.month < 1 || opts.month > 12 {
		return nil, fmt.Errorf("month must be between 1 and 12, got %d", opts.month)
	}
	if opts.baselineMonths < 0 || opts.minPoints < 0 || opts.top < 0 {
		return nil, errors.New("baseline-months, min-points and top must not be negative")
	}
	return opts, nil
}

// stepIDs splits the -steps flag, dropping blanks.
func (o *options) stepIDs() []string {
	var ids []string
	for _, s := range strings.Split(o.steps, ",") {
		if s = strings.TrimSpace(s); s != "" {
			ids = append(ids, s)
		}
	}
	return ids
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		slog.Error("spc report failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if opts.minPoints > 0 {
		cfg.SPC.MinPoints = opts.minPoints
	}
	if opts.baselineMonths > 0 {
		cfg.Lake.BaselineMonths = opts.baselineMonths
	}
	if opts.tier == "" {
		opts.tier = cfg.Lake.DefaultTier
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer infrastructure.CloseLogFile()

	paths, err := config.NewPaths(cfg.Lake.Root)
	if err != nil {
		return err
	}

	builder := lake.NewBuilder(paths,
		lake.NewSilverReader(paths, cfg.Lake.SilverFormat, logger),
		lake.NewBuilderConfig(cfg),
		lake.WithLogger(logger),
	)
	req := lake.BuildRequest{
		Year:           opts.year,
		Month:          opts.month,
		Tier:           opts.tier,
		BaselineMonths: cfg.Lake.BaselineMonths,
		Window:         opts.window,
		StepIDs:        opts.stepIDs(),
		Force:          opts.force,
	}

	var (
		spcOut *lake.SPCOutputs
		capOut *lake.CapabilityOutputs
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out, err := builder.BuildSPCForMonth(gctx, req)
		if err != nil {
			return fmt.Errorf("spc build: %w", err)
		}
		spcOut = out
		return nil
	})
	g.Go(func() error {
		out, err := builder.BuildCapabilityForMonth(gctx, req)
		if err != nil {
			return fmt.Errorf("capability build: %w", err)
		}
		capOut = out
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("gold build finished",
		slog.String("tier", spcOut.Tier),
		slog.String("asof", spcOut.Asof),
		slog.String("window", spcOut.Window),
		slog.Bool("spc_skipped", spcOut.Skipped),
		slog.Bool("capability_skipped", capOut.Skipped),
		slog.String("limits", spcOut.LimitsPath),
		slog.String("alerts", spcOut.AlertsPath),
		slog.String("capability", capOut.CapabilityPath))

	if opts.xlsx != "" {
		keyCol := cfg.SPC.Columns.Key
		err := exporter.NewXLSXWriter(logger).WriteSheets(filepath.Clean(opts.xlsx),
			exporter.Sheet{Name: "limits", Table: spc.LimitsTable(spcOut.Limits, keyCol)},
			exporter.Sheet{Name: "alerts", Table: spc.AlertsTable(spcOut.Alerts, keyCol)},
			exporter.Sheet{Name: "capability", Table: spc.CapabilityTable(capOut.Capability, keyCol)},
		)
		if err != nil {
			return fmt.Errorf("failed to write workbook: %w", err)
		}
		logger.Info("workbook written", slog.String("path", opts.xlsx))
	}

	printTopAlerts(stdout, spcOut, opts.top)
	return nil
}

// topAlerts returns the n steps with the most alerts; ties keep step order.
func topAlerts(alerts []spc.AlertSummary, n int) []spc.AlertSummary {
	out := make([]spc.AlertSummary, 0, len(alerts))
	for _, a := range alerts {
		if a.NAlerts > 0 {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].NAlerts > out[j].NAlerts })
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func printTopAlerts(w io.Writer, out *lake.SPCOutputs, n int) {
	top := topAlerts(out.Alerts, n)

	fmt.Fprintf(w, "\n=== TOP %d ALERTING STEPS (tier=%s asof=%s window=%s) ===\n", n, out.Tier, out.Asof, out.Window)
	if len(top) == 0 {
		fmt.Fprintln(w, "No alerts.")
		return
	}
	fmt.Fprintln(w, "Step         | Points | Alerts | I_3SIGMA | MR_3SIGMA | First alert          | Last alert")
	fmt.Fprintln(w, "-------------|--------|--------|----------|-----------|----------------------|---------------------")
	for _, a := range top {
		fmt.Fprintf(w, "%-12s | %6d | %6d | %8d | %9d | %-20s | %s\n",
			a.Key, a.NPoints, a.NAlerts,
			a.Count(spc.RuleI3Sigma), a.Count(spc.RuleMR3Sigma),
			formatAlertTime(a.FirstAlert), formatAlertTime(a.LastAlert))
	}
}

func formatAlertTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}
