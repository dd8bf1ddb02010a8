package app

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/gherrador/tightening-project/internal/config"
	apperrors "github.com/gherrador/tightening-project/internal/errors"
	"github.com/gherrador/tightening-project/internal/infrastructure"
	"github.com/gherrador/tightening-project/internal/lake"
	customMiddleware "github.com/gherrador/tightening-project/internal/middleware"
	"github.com/gherrador/tightening-project/internal/services"
	"github.com/gherrador/tightening-project/internal/store"
	handlers "github.com/gherrador/tightening-project/internal/transport/http"
	ws "github.com/gherrador/tightening-project/internal/websocket"
)

// RepoURL is reported by /api/version.
const RepoURL = "https://github.com/gherrador/tightening-project"

var (
	// BuildTime is set at compile time
	BuildTime = time.Now().Format(time.RFC3339)
	// BuildID is a unique identifier for this build
	BuildID = generateBuildID()
)

func generateBuildID() string {
	h := sha256.New()
	h.Write([]byte(config.AppVersion))
	h.Write([]byte(time.Now().Format("2006-01-02")))
	return fmt.Sprintf("%x", h.Sum(nil))[:12]
}

// Application represents the main application container
type Application struct {
	Config        *config.Config
	Paths         *config.Paths
	Router        *chi.Mux
	Server        *http.Server
	Store         *store.Store
	WebSocketHub  *ws.Hub
	SPCService    *services.SPCService
	HealthService *services.HealthService
	Errors        *apperrors.ErrorHandler
	Metrics       *infrastructure.BusinessMetrics
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders

	listener    net.Listener
	releaseOnce sync.Once
}

// NewApplication wires every component from cfg. The caller owns cfg and
// logger; Stop releases everything NewApplication opened.
func NewApplication(cfg *config.Config, logger *slog.Logger) (*Application, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("Application starting",
		slog.String("name", config.AppName),
		slog.String("version", config.AppVersion))

	paths, err := config.NewPaths(cfg.Lake.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve lake paths: %w", err)
	}
	if err := paths.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to ensure directories: %w", err)
	}
	paths.LogPathResolution(logger)

	otelProviders, err := infrastructure.InitializeOTel(infrastructure.NewOTelConfig(cfg.Telemetry), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	app := &Application{
		Config:        cfg,
		Paths:         paths,
		Logger:        logger,
		OTelProviders: otelProviders,
		Errors:        apperrors.NewErrorHandler(logger, false),
	}

	if err := app.initializeServices(); err != nil {
		app.release(context.Background())
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.setupRouter()
	app.createServer()
	return app, nil
}

// initializeServices initializes all application services
func (a *Application) initializeServices() error {
	metrics, err := infrastructure.CreateBusinessMetrics(a.OTelProviders.Meter)
	if err != nil {
		return fmt.Errorf("failed to create business metrics: %w", err)
	}
	a.Metrics = metrics

	st, err := store.New(a.Config.Store.Path, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	a.Store = st

	hub := ws.NewHub(a.Logger, ws.WithKeepAlive(a.Config.WebSocket.PingPeriod, a.Config.WebSocket.PongWait))
	hub.Start()
	a.WebSocketHub = hub

	reader := lake.NewSilverReader(a.Paths, a.Config.Lake.SilverFormat, a.Logger)
	builder := lake.NewBuilder(a.Paths, reader, lake.NewBuilderConfig(a.Config),
		lake.WithLogger(a.Logger),
		lake.WithTracer(a.OTelProviders.Tracer),
		lake.WithMetrics(metrics),
	)

	a.SPCService = services.NewSPCService(builder, st, hub, a.Logger)
	a.HealthService = services.NewHealthService(
		services.BuildInfo{
			Version:   config.AppVersion,
			RepoURL:   RepoURL,
			BuildTime: BuildTime,
			BuildID:   BuildID,
		},
		a.Paths,
		st,
		hub,
		a.SPCService,
		a.Logger,
	)
	return nil
}

// setupRouter configures the HTTP router with all routes
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	// Minimal middleware that won't interfere with the websocket upgrade
	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.RealIP)

	r.NotFound(a.Errors.NotFound)
	r.MethodNotAllowed(a.Errors.MethodNotAllowed)

	wsHandler := handlers.NewWebSocketHandler(a.WebSocketHub, a.Config.WebSocket, a.Config.Security.AllowedOrigins, a.Logger)
	r.Method(http.MethodGet, "/ws", wsHandler)

	r.Group(func(r chi.Router) {
		// RequestID → RealIP → OTel → Logger → Recoverer
		r.Use(customMiddleware.NewOTelMiddleware(a.OTelProviders.Tracer, a.Metrics, a.Logger).Handler)
		r.Use(customMiddleware.StructuredLogger(a.Logger))
		r.Use(customMiddleware.Recoverer(a.Errors))
		r.Use(customMiddleware.SecurityHeaders)
		r.Use(customMiddleware.CORS(customMiddleware.CORSConfig{
			AllowedOrigins: a.Config.Security.AllowedOrigins,
			Logger:         a.Logger,
		}))
		r.Use(customMiddleware.Compress(5))

		if a.Config.Security.RateLimit.Enabled {
			r.Use(customMiddleware.NewRateLimiter(
				a.Config.Security.RateLimit.RPS,
				a.Config.Security.RateLimit.Burst,
				a.Errors,
				a.Logger,
			).Handler)
		}

		a.setupAPIRoutes(r)
	})

	if a.OTelProviders.PrometheusHTTP != nil {
		r.Handle("/metrics", a.OTelProviders.PrometheusHTTP)
	}

	a.Router = r
}

// setupAPIRoutes configures API endpoints
func (a *Application) setupAPIRoutes(r chi.Router) {
	spcHandler := handlers.NewSPCHandler(a.SPCService, a.Config.SPC.Columns.Key, a.Errors, a.Logger)

	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))

		r.Group(func(r chi.Router) {
			r.Use(customMiddleware.Timeout(a.Config.Server.ReadTimeout, a.Errors, a.Logger))

			healthHandler := handlers.NewHealthHandler(a.HealthService, a.Logger)
			r.Get("/health", healthHandler.HealthCheck)
			r.Get("/health/ready", healthHandler.ReadinessCheck)
			r.Get("/health/live", healthHandler.LivenessCheck)
			r.Get("/version", healthHandler.Version)

			spcHandler.RegisterRoutes(r)

			r.Post("/logs", handlers.NewClientLogHandler(a.Errors, a.Logger).Handle)
		})

		// builds read a baseline window of silver months
		r.Group(func(r chi.Router) {
			r.Use(customMiddleware.Timeout(a.Config.Server.BuildTimeout, a.Errors, a.Logger))
			spcHandler.RegisterBuildRoutes(r)
		})
	})
}

// createServer creates the HTTP server
func (a *Application) createServer() {
	writeTimeout := a.Config.Server.WriteTimeout
	// a build response is written after the build finishes
	if a.Config.Server.BuildTimeout > writeTimeout {
		writeTimeout = a.Config.Server.BuildTimeout + 5*time.Second
	}
	a.Server = &http.Server{
		Addr:              fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:           a.Router,
		ReadTimeout:       a.Config.Server.ReadTimeout,
		ReadHeaderTimeout: a.Config.Server.ReadTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       a.Config.Server.IdleTimeout,
	}
}

// Start begins serving. A serve failure after Start returns calls cancel.
func (a *Application) Start(ctx context.Context, cancel context.CancelFunc) error {
	a.Logger.InfoContext(ctx, "Starting application",
		slog.String("name", config.AppName),
		slog.String("version", config.AppVersion),
		slog.Int("port", a.Config.Server.Port),
		slog.String("lake_root", a.Paths.Root),
		slog.String("store", a.Config.Store.Path))

	ln, err := net.Listen("tcp", a.Server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.Server.Addr, err)
	}
	a.listener = ln

	go func() {
		if err := a.Server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.ErrorContext(ctx, "Server error", slog.String("error", err.Error()))
			cancel()
		}
	}()

	if err := a.performStartupHealthCheck(ctx); err != nil {
		a.Logger.WarnContext(ctx, "Startup health check warnings", slog.String("warnings", err.Error()))
	}

	a.Logger.InfoContext(ctx, "Application started successfully",
		slog.String("address", a.Addr()))
	return nil
}

// Addr returns the address the server listens on, or the configured address
// before Start.
func (a *Application) Addr() string {
	if a.listener != nil {
		return a.listener.Addr().String()
	}
	return a.Server.Addr
}

// Stop gracefully stops the application
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "Shutting down application")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	var shutdownErr error
	if a.listener != nil {
		if err := a.Server.Shutdown(shutdownCtx); err != nil {
			shutdownErr = fmt.Errorf("server shutdown error: %w", err)
		}
	}

	if running := a.SPCService.Running(); len(running) > 0 {
		a.Logger.WarnContext(ctx, "Shutting down with builds in progress", slog.Any("builds", running))
	}

	a.release(shutdownCtx)
	a.Logger.InfoContext(ctx, "Application shutdown complete")
	return shutdownErr
}

// release closes the hub, the store and the telemetry providers.
func (a *Application) release(ctx context.Context) {
	a.releaseOnce.Do(func() { a.releaseResources(ctx) })
}

func (a *Application) releaseResources(ctx context.Context) {
	if a.WebSocketHub != nil {
		a.WebSocketHub.Stop()
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.Logger.ErrorContext(ctx, "Error closing store", slog.String("error", err.Error()))
		}
	}
	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(ctx); err != nil {
			a.Logger.ErrorContext(ctx, "Error shutting down OpenTelemetry", slog.String("error", err.Error()))
		}
	}
}

// Run runs the application until interrupted
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	if err := a.Start(ctx, cancel); err != nil {
		a.release(ctx)
		return err
	}

	select {
	case <-sigChan:
		a.Logger.InfoContext(ctx, "Received interrupt signal")
	case <-ctx.Done():
		a.Logger.ErrorContext(ctx, "Server stopped unexpectedly")
	}

	return a.Stop(context.Background())
}

// performStartupHealthCheck reports lake and store problems without failing
// startup; silver months may arrive later.
func (a *Application) performStartupHealthCheck(ctx context.Context) error {
	status := a.HealthService.ReadinessCheck(ctx)
	if status.Status == "ready" {
		a.Logger.InfoContext(ctx, "Startup health check passed")
		return nil
	}
	return fmt.Errorf("services not ready: %v", status.Services)
}
