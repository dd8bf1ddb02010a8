// Package lake reads the silver tightening layer and builds the gold SPC and
// capability tables for one month.
//
// A gold SPC build for (tier, year, month) reads the evaluation month and the
// baseline window of preceding months from silver, computes I-MR limits on
// the baseline, scores the evaluation month and aggregates alerts. A
// capability build reads only the baseline. Both builds are idempotent: when
// every output already exists they return the existing paths unless Force is
// set. Each build writes a meta JSON file, validated against an embedded JSON
// schema before it is written.
package lake
