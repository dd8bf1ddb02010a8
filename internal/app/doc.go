// Package app wires the SPC server: configuration, logging, telemetry, the
// SQLite catalog, the lake builder, the websocket hub, the services and the
// HTTP router.
//
// # Initialization Flow
//
//  1. The caller loads config.Config and the logger
//  2. NewApplication resolves the lake layout and initializes OpenTelemetry
//  3. The store, hub, builder and services are created
//  4. The router and HTTP server are configured
//
// # Usage
//
//	cfg, err := config.Load("")
//	logger, err := infrastructure.InitializeLogger(cfg.Logging)
//	application, err := app.NewApplication(cfg, logger)
//	if err := application.Run(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Graceful Shutdown
//
// Run handles SIGINT and SIGTERM. Stop drains in-flight requests within the
// configured shutdown timeout, then closes websocket clients, the store and
// the telemetry providers. The package never calls os.Exit.
package app
