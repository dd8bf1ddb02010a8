package main

import (
	"flag"
	"log/slog"
	"os"

	"github.com/gherrador/tightening-project/internal/app"
	"github.com/gherrador/tightening-project/internal/config"
	"github.com/gherrador/tightening-project/internal/infrastructure"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (defaults to config.yaml, configs/config.yaml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		slog.Error("Failed to initialize logger", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer infrastructure.CloseLogFile()

	application, err := app.NewApplication(cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize application", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := application.Run(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
