package services

import (
	"context"
	"sort"
	"sync"

	"github.com/stretchr/testify/mock"

	apperrors "github.com/gherrador/tightening-project/internal/errors"
	"github.com/gherrador/tightening-project/internal/lake"
	"github.com/gherrador/tightening-project/internal/spc"
	"github.com/gherrador/tightening-project/internal/store"
)

// MockHub records broadcasts.
type MockHub struct {
	mock.Mock
}

func (m *MockHub) Broadcast(ctx context.Context, messageType string, data interface{}) {
	m.Called(messageType, data)
}

type fakeBuilder struct {
	spcFn func(ctx context.Context, req lake.BuildRequest) (*lake.SPCOutputs, error)
	capFn func(ctx context.Context, req lake.BuildRequest) (*lake.CapabilityOutputs, error)
}

func (f *fakeBuilder) BuildSPCForMonth(ctx context.Context, req lake.BuildRequest) (*lake.SPCOutputs, error) {
	return f.spcFn(ctx, req)
}

func (f *fakeBuilder) BuildCapabilityForMonth(ctx context.Context, req lake.BuildRequest) (*lake.CapabilityOutputs, error) {
	return f.capFn(ctx, req)
}

// okBuilder returns one limit, one alert summary and one capability row.
func okBuilder() *fakeBuilder {
	return &fakeBuilder{
		spcFn: func(_ context.Context, req lake.BuildRequest) (*lake.SPCOutputs, error) {
			return &lake.SPCOutputs{
				BuildID: "spc-1",
				Tier:    req.Tier,
				Window:  "12m",
				Limits:  []spc.Limits{{Key: "10", N: 12, Center: 10, UCL: spc.Some(11), LCL: spc.Some(9)}},
				Alerts: []spc.AlertSummary{{
					Key: "10", NPoints: 4, NAlerts: 2,
					RuleCounts: map[spc.Rule]int{spc.RuleI3Sigma: 0, spc.RuleMR3Sigma: 2},
				}},
			}, nil
		},
		capFn: func(_ context.Context, req lake.BuildRequest) (*lake.CapabilityOutputs, error) {
			return &lake.CapabilityOutputs{
				BuildID:    "cap-1",
				Tier:       req.Tier,
				Window:     "12m",
				Capability: []spc.Capability{{Key: "10", N: 12, Mean: 10, LSL: 8, USL: 12, TolSpan: 4}},
			}, nil
		},
	}
}

type goldKey struct{ tier, asof string }

// memStore is an in-memory GoldStore.
type memStore struct {
	mu     sync.Mutex
	limits map[goldKey][]spc.Limits
	alerts map[goldKey][]spc.AlertSummary
	caps   map[goldKey][]spc.Capability
	builds map[string]store.BuildRun
	order  []string

	failReplace error
}

func newMemStore() *memStore {
	return &memStore{
		limits: make(map[goldKey][]spc.Limits),
		alerts: make(map[goldKey][]spc.AlertSummary),
		caps:   make(map[goldKey][]spc.Capability),
		builds: make(map[string]store.BuildRun),
	}
}

func (m *memStore) ReplaceLimits(_ context.Context, tier, asof, _ string, limits []spc.Limits) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failReplace != nil {
		return m.failReplace
	}
	m.limits[goldKey{tier, asof}] = limits
	return nil
}

func (m *memStore) ReplaceAlerts(_ context.Context, tier, asof string, alerts []spc.AlertSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts[goldKey{tier, asof}] = alerts
	return nil
}

func (m *memStore) ReplaceCapability(_ context.Context, tier, asof, _ string, caps []spc.Capability) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.caps[goldKey{tier, asof}] = caps
	return nil
}

func (m *memStore) Limits(_ context.Context, tier, asof string) ([]spc.Limits, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.limits[goldKey{tier, asof}], nil
}

func (m *memStore) Alerts(_ context.Context, tier, asof string, q store.AlertQuery) ([]spc.AlertSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []spc.AlertSummary
	for _, a := range m.alerts[goldKey{tier, asof}] {
		if a.NAlerts >= q.MinAlerts {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memStore) Capability(_ context.Context, tier, asof string) ([]spc.Capability, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.caps[goldKey{tier, asof}], nil
}

func (m *memStore) InsertBuild(_ context.Context, b *store.BuildRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.builds[b.ID] = *b
	m.order = append(m.order, b.ID)
	return nil
}

func (m *memStore) UpdateBuild(_ context.Context, b *store.BuildRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.builds[b.ID]; !ok {
		return apperrors.NewNotFoundError("build " + b.ID)
	}
	m.builds[b.ID] = *b
	return nil
}

func (m *memStore) GetBuild(_ context.Context, id string) (*store.BuildRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.builds[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("build " + id)
	}
	return &b, nil
}

func (m *memStore) ListBuilds(_ context.Context, f store.BuildFilter) ([]store.BuildRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.BuildRun
	for i := len(m.order) - 1; i >= 0; i-- {
		b := m.builds[m.order[i]]
		if (f.Tier == "" || b.Tier == f.Tier) && (f.Asof == "" || b.Asof == f.Asof) && (f.Status == "" || b.Status == f.Status) {
			out = append(out, b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type clientCount int

func (c clientCount) ClientCount() int { return int(c) }
