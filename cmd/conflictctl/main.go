// conflictctl inspects the conflict store configured for the conflict service.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lerian-mcp-conflicts/internal/analytics"
	"lerian-mcp-conflicts/internal/cli"
	"lerian-mcp-conflicts/internal/config"
	"lerian-mcp-conflicts/internal/conflict"
	"lerian-mcp-conflicts/internal/logging"
	"lerian-mcp-conflicts/internal/memory"
)

// Version information (set by build flags)
var (
	BuildVersion = "dev"
	BuildCommit  = "unknown"
	BuildDate    = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return 1
	}

	// Keep stdout clean for command output
	logger := logging.NewWithOptions(logging.Options{
		Level:  logging.ParseLogLevel(cfg.Logging.Level),
		Format: "text",
	})

	backend, err := memory.New(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open memory backend: %v\n", err)
		return 1
	}
	defer func() {
		if err := backend.Close(); err != nil {
			logger.Warn("Error closing memory backend", "error", err)
		}
	}()

	healthCtx, healthCancel := context.WithTimeout(ctx, 5*time.Second)
	defer healthCancel()
	if err := backend.HealthCheck(healthCtx); err != nil {
		logger.Warn("memory backend health check failed", "error", err)
	}

	svc := conflict.NewService(backend, cfg, logger)
	c := cli.NewCLI(svc, analytics.NewAggregator(svc.Store(), cfg.Analytics, logger))
	c.RootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", BuildVersion, BuildCommit, BuildDate)

	if err := c.Execute(ctx); err != nil {
		return 1
	}
	return 0
}
