package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"cvmatcher/internal/cli"
	"cvmatcher/internal/config"
	"cvmatcher/internal/errors"
)

func main() {
	// Create a context that is canceled on interrupt signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := errors.New(cfg.App.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	if cfg.Vault.Enabled {
		if err := config.ApplyVaultSecrets(cfg, logger); err != nil {
			logger.LogError(err, "Failed to load secrets from Vault")
			os.Exit(1)
		}
		if err := cfg.Validate(); err != nil {
			logger.LogError(err, "Invalid configuration")
			os.Exit(1)
		}
	}

	logger.Info("Starting cvmatcher application",
		"version", cli.Version,
		"log_level", cfg.App.LogLevel,
		"embedding_provider", cfg.Embedding.Provider,
		"vector_store", cfg.VectorStore.Backend)

	if err := cli.Execute(ctx, cfg, logger); err != nil {
		logger.LogError(err, "Application execution failed")
		os.Exit(1)
	}
}
