package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/gherrador/tightening-project/internal/config"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ClientCounter reports connected websocket clients.
type ClientCounter interface {
	ClientCount() int
}

// BuildInfo identifies the running binary.
type BuildInfo struct {
	Version   string
	RepoURL   string
	BuildTime string
	BuildID   string
}

// HealthService provides health check functionality
type HealthService struct {
	info      BuildInfo
	paths     *config.Paths
	store     Pinger
	hub       ClientCounter
	builds    *SPCService
	startTime time.Time
	logger    *slog.Logger
}

// HealthStatus represents the health status response
type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version"`
	Runtime   map[string]interface{} `json:"runtime,omitempty"`
	Services  map[string]interface{} `json:"services,omitempty"`
}

// ServiceHealth represents individual service health
type ServiceHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Uptime  string `json:"uptime,omitempty"`
}

// NewHealthService creates a new health service. Any dependency may be nil;
// missing dependencies report not_ready.
func NewHealthService(info BuildInfo, paths *config.Paths, st Pinger, hub ClientCounter, builds *SPCService, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("HealthService initialized",
		slog.String("version", info.Version),
		slog.String("build_id", info.BuildID))

	return &HealthService{
		info:      info,
		paths:     paths,
		store:     st,
		hub:       hub,
		builds:    builds,
		startTime: time.Now(),
		logger:    logger,
	}
}

// HealthCheck returns overall health status
func (hs *HealthService) HealthCheck(ctx context.Context) HealthStatus {
	hs.logger.DebugContext(ctx, "HealthCheck: performing health check",
		slog.String("uptime", time.Since(hs.startTime).String()))

	return HealthStatus{
		Status:    "ok",
		Timestamp: time.Now(),
		Version:   hs.info.Version,
	}
}

// ReadinessCheck returns readiness status
func (hs *HealthService) ReadinessCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:    "ready",
		Timestamp: time.Now(),
		Version:   hs.info.Version,
		Services:  make(map[string]interface{}),
	}

	status.Services["store"] = hs.checkStoreHealth(ctx)
	status.Services["lake"] = hs.checkLakeHealth()
	status.Services["websocket"] = hs.checkWebSocketHealth()

	for _, service := range status.Services {
		if sh, ok := service.(ServiceHealth); ok && sh.Status != "ready" {
			status.Status = "not_ready"
			break
		}
	}

	if status.Status != "ready" {
		hs.logger.WarnContext(ctx, "ReadinessCheck: not ready", slog.Any("services", status.Services))
	}
	return status
}

// LivenessCheck returns liveness status
func (hs *HealthService) LivenessCheck(ctx context.Context) HealthStatus {
	rt := map[string]interface{}{
		"uptime":     time.Since(hs.startTime).Seconds(),
		"go_version": runtime.Version(),
		"goroutines": runtime.NumGoroutine(),
	}
	if hs.hub != nil {
		rt["websocket_clients"] = hs.hub.ClientCount()
	}
	if hs.builds != nil {
		rt["running_builds"] = len(hs.builds.Running())
	}
	return HealthStatus{
		Status:    "alive",
		Timestamp: time.Now(),
		Version:   hs.info.Version,
		Runtime:   rt,
	}
}

// Version returns version information
func (hs *HealthService) Version() map[string]interface{} {
	result := map[string]interface{}{
		"version":      hs.info.Version,
		"go_version":   runtime.Version(),
		"os":           runtime.GOOS,
		"arch":         runtime.GOARCH,
		"repo_url":     hs.info.RepoURL,
		"uptime":       time.Since(hs.startTime).Seconds(),
		"start_time":   hs.startTime.Format(time.RFC3339),
		"current_time": time.Now().Format(time.RFC3339),
		"spc_version":  config.SPCBuildVersion,
		"cap_version":  config.CapabilityBuildVersion,
	}

	if hs.info.BuildTime != "" {
		result["build_time"] = hs.info.BuildTime
	}
	if hs.info.BuildID != "" {
		result["build_id"] = hs.info.BuildID
	}
	return result
}

func (hs *HealthService) checkStoreHealth(ctx context.Context) ServiceHealth {
	if hs.store == nil {
		return ServiceHealth{Status: "not_ready", Message: ErrStoreUnavailable.Error()}
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := hs.store.Ping(ctx); err != nil {
		return ServiceHealth{
			Status:  "not_ready",
			Message: fmt.Sprintf("%v: %v", ErrStoreUnavailable, err),
		}
	}
	return ServiceHealth{Status: "ready", Message: "store is healthy"}
}

// checkLakeHealth requires the lake root to exist; silver months may not.
func (hs *HealthService) checkLakeHealth() ServiceHealth {
	if hs.paths == nil {
		return ServiceHealth{Status: "not_ready", Message: ErrLakeUnavailable.Error()}
	}
	info, err := os.Stat(hs.paths.Root)
	if err != nil || !info.IsDir() {
		return ServiceHealth{
			Status:  "not_ready",
			Message: fmt.Sprintf("%v: %s", ErrLakeUnavailable, hs.paths.Root),
		}
	}
	return ServiceHealth{Status: "ready", Message: "lake root is accessible"}
}

func (hs *HealthService) checkWebSocketHealth() ServiceHealth {
	if hs.hub == nil {
		return ServiceHealth{Status: "not_ready", Message: "websocket hub not initialized"}
	}
	return ServiceHealth{
		Status:  "ready",
		Message: fmt.Sprintf("%d clients connected", hs.hub.ClientCount()),
		Uptime:  time.Since(hs.startTime).String(),
	}
}
