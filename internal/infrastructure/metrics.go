package infrastructure

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// BusinessMetrics holds the SPC and HTTP instruments
type BusinessMetrics struct {
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram
	HTTPActiveRequests  metric.Int64UpDownCounter

	BuildsTotal    metric.Int64Counter
	BuildDuration  metric.Float64Histogram
	PointsScored   metric.Int64Counter
	AlertsTotal    metric.Int64Counter
	GroupsExcluded metric.Int64Counter
	RowsDropped    metric.Int64Counter

	SystemErrors metric.Int64Counter
}

// CreateBusinessMetrics registers the application instruments on meter
func CreateBusinessMetrics(meter metric.Meter) (*BusinessMetrics, error) {
	m := &BusinessMetrics{}
	var err error

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.HTTPRequestsTotal, "http_requests_total", "Total number of HTTP requests"},
		{&m.BuildsTotal, "spc_builds_total", "Total number of gold builds by kind and status"},
		{&m.PointsScored, "spc_points_scored_total", "Evaluation points scored against baseline limits"},
		{&m.AlertsTotal, "spc_alerts_total", "Alerting points by rule"},
		{&m.GroupsExcluded, "spc_groups_excluded_total", "Groups dropped below the min-points threshold"},
		{&m.RowsDropped, "spc_rows_dropped_total", "Silver rows dropped for missing or unparseable cells"},
		{&m.SystemErrors, "system_errors_total", "Total number of system errors"},
	}
	for _, c := range counters {
		if *c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, fmt.Errorf("counter %s: %w", c.name, err)
		}
	}

	if m.HTTPRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if m.BuildDuration, err = meter.Float64Histogram(
		"spc_build_duration_seconds",
		metric.WithDescription("Gold build duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if m.HTTPActiveRequests, err = meter.Int64UpDownCounter(
		"http_active_requests",
		metric.WithDescription("Number of active HTTP requests"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

// RecordBuild records one finished gold build. kind is "spc" or "capability".
func (m *BusinessMetrics) RecordBuild(ctx context.Context, kind, tier string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	attrs := metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("tier", tier),
		attribute.String("status", status),
	)
	m.BuildsTotal.Add(ctx, 1, attrs)
	m.BuildDuration.Record(ctx, duration.Seconds(), attrs)
	if err != nil {
		m.SystemErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("component", "build")))
	}
}

// RecordScoring records the outcome of a scoring pass.
func (m *BusinessMetrics) RecordScoring(ctx context.Context, tier string, points int, alertsByRule map[string]int) {
	if m == nil {
		return
	}
	m.PointsScored.Add(ctx, int64(points), metric.WithAttributes(attribute.String("tier", tier)))
	for rule, n := range alertsByRule {
		if n == 0 {
			continue
		}
		m.AlertsTotal.Add(ctx, int64(n), metric.WithAttributes(
			attribute.String("tier", tier),
			attribute.String("rule", rule),
		))
	}
}

// RecordExcluded counts groups removed at stage ("limits" or "capability")
// and silver rows dropped while extracting measurements.
func (m *BusinessMetrics) RecordExcluded(ctx context.Context, stage string, groups, rows int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("stage", stage))
	if groups > 0 {
		m.GroupsExcluded.Add(ctx, int64(groups), attrs)
	}
	if rows > 0 {
		m.RowsDropped.Add(ctx, int64(rows), attrs)
	}
}

// RecordHTTPRequest records one served request under its route pattern.
func (m *BusinessMetrics) RecordHTTPRequest(ctx context.Context, method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.Int("status_code", status),
	)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)
	m.HTTPRequestDuration.Record(ctx, duration.Seconds(), attrs)
}

// TrackActiveRequest increments the in-flight gauge and returns its decrement.
func (m *BusinessMetrics) TrackActiveRequest(ctx context.Context) func() {
	if m == nil {
		return func() {}
	}
	m.HTTPActiveRequests.Add(ctx, 1)
	return func() { m.HTTPActiveRequests.Add(ctx, -1) }
}

// RecordSystemError counts an unexpected failure in component.
func (m *BusinessMetrics) RecordSystemError(ctx context.Context, errorType, component string) {
	if m == nil {
		return
	}
	m.SystemErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("error_type", errorType),
		attribute.String("component", component),
	))
}
