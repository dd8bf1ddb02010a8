package spc

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Result bundles the outputs of one SPC run.
type Result struct {
	Limits []Limits
	Points []ScoredPoint
	Alerts []AlertSummary

	BaselineRows   int
	EvaluationRows int
	DroppedRows    int
	ExcludedGroups int // baseline groups below the minimum size
}

// CapabilityResult holds the capability indices of one baseline and what the
// estimator left out.
type CapabilityResult struct {
	Capability []Capability

	BaselineRows   int
	DroppedRows    int
	ExcludedGroups int // groups below MinPoints or MinMR
}

// Engine runs the SPC stages over tables and logs what each stage kept.
type Engine struct {
	cols      Columns
	minPoints int
	minMR     *int
	logger    *slog.Logger
}

// NewEngine creates an engine. A non-positive minPoints selects
// DefaultMinPoints and a nil minMR selects DefaultMinMR(minPoints).
func NewEngine(cols Columns, minPoints int, minMR *int, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if minPoints <= 0 {
		minPoints = DefaultMinPoints
	}
	return &Engine{
		cols:      cols,
		minPoints: minPoints,
		minMR:     minMR,
		logger:    logger.With(slog.String("component", "spc.engine")),
	}
}

// Columns returns the column names the engine reads.
func (e *Engine) Columns() Columns {
	return e.cols
}

// MinPoints returns the baseline size threshold.
func (e *Engine) MinPoints() int {
	return e.minPoints
}

// Run computes limits from baseline, scores evaluation against them and
// aggregates alerts.
func (e *Engine) Run(ctx context.Context, baseline, evaluation *Table) (*Result, error) {
	start := time.Now()
	res := &Result{BaselineRows: baseline.Len(), EvaluationRows: evaluation.Len()}

	if !baseline.Empty() {
		if err := baseline.Require("compute limits", e.cols.Base()...); err != nil {
			return nil, err
		}
	}
	base, dropped := baseline.Measurements(e.cols, false)
	res.DroppedRows += dropped
	res.Limits = ComputeLimits(base, e.minPoints)
	res.ExcludedGroups = len(GroupSeries(base)) - len(res.Limits)

	e.logger.InfoContext(ctx, "limits computed",
		"baseline_rows", res.BaselineRows,
		"dropped_rows", dropped,
		"groups", len(res.Limits),
		"excluded_groups", res.ExcludedGroups,
		"min_points", e.minPoints,
	)

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("spc run cancelled after limits: %w", err)
	}

	if !evaluation.Empty() && len(res.Limits) > 0 {
		if err := evaluation.Require("score points", e.cols.Base()...); err != nil {
			return nil, err
		}
		eval, dropped := evaluation.Measurements(e.cols, false)
		res.DroppedRows += dropped
		res.Points = ScorePoints(eval, res.Limits)
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("spc run cancelled after scoring: %w", err)
	}

	res.Alerts = AggregateAlerts(res.Points)

	e.logger.InfoContext(ctx, "spc run completed",
		"evaluation_rows", res.EvaluationRows,
		"points", len(res.Points),
		"alert_groups", len(res.Alerts),
		"duration", time.Since(start).String(),
	)
	return res, nil
}

// Capability runs the capability estimator over a baseline table.
func (e *Engine) Capability(ctx context.Context, baseline *Table) (*CapabilityResult, error) {
	start := time.Now()
	res := &CapabilityResult{BaselineRows: baseline.Len()}
	if !baseline.Empty() {
		if err := baseline.Require("compute capability", e.cols.WithTolerance()...); err != nil {
			return nil, err
		}
	}
	base, dropped := baseline.Measurements(e.cols, true)
	res.DroppedRows = dropped
	res.Capability = ComputeCapability(base, CapabilityOptions{MinPoints: e.minPoints, MinMR: e.minMR})
	res.ExcludedGroups = len(GroupSeries(base)) - len(res.Capability)

	undefined := 0
	inconsistent := 0
	for _, c := range res.Capability {
		if !c.Cpk.Valid || !c.Ppk.Valid {
			undefined++
		}
		if c.TolInconsistent {
			inconsistent++
		}
	}
	if inconsistent > 0 {
		e.logger.WarnContext(ctx, "tolerances vary within baseline",
			"groups", inconsistent,
		)
	}
	e.logger.InfoContext(ctx, "capability computed",
		"baseline_rows", res.BaselineRows,
		"dropped_rows", res.DroppedRows,
		"groups", len(res.Capability),
		"excluded_groups", res.ExcludedGroups,
		"undefined_indices", undefined,
		"duration", time.Since(start).String(),
	)
	return res, nil
}
