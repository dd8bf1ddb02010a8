package http

import (
	"context"

	"github.com/gherrador/tightening-project/internal/lake"
	"github.com/gherrador/tightening-project/internal/spc"
	"github.com/gherrador/tightening-project/internal/store"
)

// SPCServiceInterface defines the interface for the SPC service
type SPCServiceInterface interface {
	BuildMonth(ctx context.Context, req lake.BuildRequest) (*store.BuildRun, error)
	Limits(ctx context.Context, tier, asof string) ([]spc.Limits, error)
	Alerts(ctx context.Context, tier, asof string, q store.AlertQuery) ([]spc.AlertSummary, error)
	Capability(ctx context.Context, tier, asof string) ([]spc.Capability, error)
	Builds(ctx context.Context, f store.BuildFilter) ([]store.BuildRun, error)
	Build(ctx context.Context, id string) (*store.BuildRun, error)
}
