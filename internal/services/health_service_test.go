package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gherrador/tightening-project/internal/config"
	"github.com/gherrador/tightening-project/internal/shared/testutil"
)

func newHealthFixture(t *testing.T, ping Pinger, hub ClientCounter) *HealthService {
	t.Helper()
	paths, err := config.NewPaths(t.TempDir())
	require.NoError(t, err)
	logger, _ := testutil.NewTestLogger(t)
	return NewHealthService(BuildInfo{Version: "1.2.3", BuildID: "abc"}, paths, ping, hub, nil, logger)
}

func TestHealthService_ReadinessCheck(t *testing.T) {
	okPing := pingFunc(func(context.Context) error { return nil })
	badPing := pingFunc(func(context.Context) error { return errors.New("database is locked") })

	tests := []struct {
		name     string
		ping     Pinger
		hub      ClientCounter
		want     string
		notReady string
	}{
		{"all ready", okPing, clientCount(2), "ready", ""},
		{"store down", badPing, clientCount(0), "not_ready", "store"},
		{"no store", nil, clientCount(0), "not_ready", "store"},
		{"no hub", okPing, nil, "not_ready", "websocket"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hs := newHealthFixture(t, tt.ping, tt.hub)
			status := hs.ReadinessCheck(context.Background())
			assert.Equal(t, tt.want, status.Status)
			assert.Equal(t, "1.2.3", status.Version)
			if tt.notReady != "" {
				sh := status.Services[tt.notReady].(ServiceHealth)
				assert.Equal(t, "not_ready", sh.Status)
			}
		})
	}
}

func TestHealthService_LakeRootMissing(t *testing.T) {
	paths, err := config.NewPaths(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	hs := NewHealthService(BuildInfo{}, paths, pingFunc(func(context.Context) error { return nil }), clientCount(0), nil, nil)

	status := hs.ReadinessCheck(context.Background())
	assert.Equal(t, "not_ready", status.Status)
	assert.Contains(t, status.Services["lake"].(ServiceHealth).Message, "absent")
}

func TestHealthService_LivenessAndVersion(t *testing.T) {
	svc := NewSPCService(okBuilder(), newMemStore(), nil, nil)
	logger, _ := testutil.NewTestLogger(t)
	hs := NewHealthService(BuildInfo{Version: "1.2.3", BuildID: "abc"}, nil, nil, clientCount(3), svc, logger)

	live := hs.LivenessCheck(context.Background())
	assert.Equal(t, "alive", live.Status)
	assert.Equal(t, 3, live.Runtime["websocket_clients"])
	assert.Equal(t, 0, live.Runtime["running_builds"])

	v := hs.Version()
	assert.Equal(t, "1.2.3", v["version"])
	assert.Equal(t, "abc", v["build_id"])
	assert.Equal(t, config.SPCBuildVersion, v["spc_version"])
	assert.NotContains(t, v, "build_time")

	assert.Equal(t, "ok", hs.HealthCheck(context.Background()).Status)
}
