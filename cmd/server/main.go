package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"sms-relay-server/internal/config"
	"sms-relay-server/pkg/logger"

	"go.uber.org/zap"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfg, err := loadConfig(configPath(os.Args[1:]))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logger.Init(cfg.Logging.Path, cfg.Logging.Level); err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	defer logger.Info("Server shutting down")

	// Setup and start server
	srv, err := SetupServer(cfg)
	if err != nil {
		logger.Fatal("Failed to setup server", zap.Error(err))
	}

	if err := StartServer(srv); err != nil {
		logger.Fatal("Server error", zap.Error(err))
	}
}

// configPath picks the config file from the first argument, then CONFIG_PATH.
// An empty result means defaults plus environment only.
func configPath(args []string) string {
	if len(args) > 0 && args[0] != "" {
		return args[0]
	}
	return os.Getenv("CONFIG_PATH")
}

// loadConfig reads the optional JSON file, overlays the environment and validates
func loadConfig(path string) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if path != "" {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("resolving config path: %w", err)
		}
		if cfg, err = config.LoadConfig(abs); err != nil {
			return nil, err
		}
	}

	if err := config.ApplyEnv(context.Background(), cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
