// Package spc implements the Individuals and Moving-Range (I-MR) statistical
// process control engine used to monitor bolt-tightening steps.
//
// The package turns cleaned tightening records into four derived tables:
//
//  1. Control limits: per-step center line, sigma and three-sigma limits
//     estimated from a historical baseline (ComputeLimits).
//  2. Scored points: every evaluation-period record standardized against its
//     step's limits and flagged out-of-control (ScorePoints).
//  3. Alert summaries: one row per step that raised at least one alert
//     (AggregateAlerts).
//  4. Capability: Pp/Ppk from the overall sample deviation and Cp/Cpk from
//     the within-step sigma MRbar/d2 (ComputeCapability).
//
// # Constants
//
// The I-MR method uses subgroups of size two, so the unbiasing constants are
// fixed: d2 = 1.128, D3 = 0 and D4 = 3.267. The lower moving-range limit is
// therefore always exactly zero.
//
// # Ordering
//
// Records are stable-sorted by (step, timestamp). Ties on timestamp keep their
// input order, which makes moving ranges reproducible across runs. Step keys
// that parse as numbers are ordered numerically, any other key
// lexicographically.
//
// # Undefined values
//
// Statistical unreliability is never an error. Steps with too few points are
// left out of the output, and metrics that cannot be computed (zero sigma,
// non-positive tolerance span, the first moving range of a series) are
// reported as an invalid Float rather than zero. Only missing input columns
// produce an error, a *MissingColumnsError listing every absent column.
//
// # Usage
//
//	baseline, _ := lake.ReadSilverMonths(ctx, root, months)
//	limits, err := spc.ComputeLimitsTable(baseline, spc.DefaultColumns(), spc.DefaultMinPoints)
//	if err != nil {
//	    return err
//	}
//	points, err := spc.ScorePointsTable(evaluation, spc.DefaultColumns(), limits)
//	if err != nil {
//	    return err
//	}
//	alerts := spc.AggregateAlerts(points)
package spc
