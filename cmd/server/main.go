// hmsc - Multi-party signing coordinator for Hedera transactions
package main

import (
	"context"
	"os"

	"github.com/lazysuperheroes/hedera-multisig-sub003/internal/config"
	"github.com/lazysuperheroes/hedera-multisig-sub003/internal/logging"
	"github.com/lazysuperheroes/hedera-multisig-sub003/internal/server"
	"github.com/lazysuperheroes/hedera-multisig-sub003/internal/traces"
)

// Build info - set by ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logging.New("info", "text").Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	logger.Info("starting hmsc",
		"version", Version,
		"commit", Commit,
		"build_time", BuildTime,
	)
	logger.Info("configuration loaded",
		"env", cfg.Env,
		"network", cfg.NetworkName,
		"max_sessions", cfg.MaxSessions,
		"session_timeout", cfg.SessionTimeout,
	)

	ctx := context.Background()

	shutdownTraces, err := traces.Init(ctx, cfg.OTLPEndpoint, logger)
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTraces(context.Background()) }()

	// Create and run server
	srv, err := server.New(cfg, server.WithLogger(logger))
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
