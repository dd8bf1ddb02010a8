// Package services implements the business logic between the HTTP handlers
// and the lake and store packages.
//
// # Services
//
//   - SPCService: runs the monthly SPC and capability gold builds, loads
//     their tables into the SQLite catalog, records build runs and
//     broadcasts build events. It also answers the limits, alerts,
//     capability and build queries.
//   - HealthService: liveness, readiness and version information.
//
// # Build lifecycle
//
// A build run is recorded as running before the gold builds start and is
// closed as completed or failed afterwards:
//
//	run, err := svc.BuildMonth(ctx, lake.BuildRequest{Year: 2025, Month: 3, Tier: "core"})
//
// Only one build per tier and month runs at a time; a concurrent request
// gets ErrBuildRunning (409). Build events are broadcast as build:started,
// build:completed and build:failed with the build run as payload.
//
// # Errors
//
// Services return AppError and APIError values from internal/errors so the
// HTTP layer can map them to RFC 7807 problems:
//
//   - invalid tier or month parameters are 400
//   - a tier and month with no stored results is 404
//   - a running build for the same tier and month is 409
package services
