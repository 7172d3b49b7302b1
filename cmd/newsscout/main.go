package main

import (
	"context"
	"os"

	"NewsScout/internal/app"
	"NewsScout/internal/config"
	"NewsScout/internal/logging"
)

func main() {
	ctx := context.Background()
	cfg := config.Load()
	logger := logging.New(cfg.Logging.Level)

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("application startup failed", "error", err)
		os.Exit(1)
	}
	defer application.Close()

	// With a run id argument execute exactly that run; otherwise sweep
	// pending runs on the configured interval.
	if len(os.Args) > 1 {
		if err := application.ExecuteRun(ctx, os.Args[1]); err != nil {
			logger.Error("run failed", "run", os.Args[1], "error", err)
			application.Close()
			os.Exit(1)
		}
		return
	}

	if err := application.Run(ctx); err != nil {
		logger.Error("application stopped", "error", err)
		application.Close()
		os.Exit(1)
	}
}
