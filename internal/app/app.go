// Package app builds the process-scoped handles shared by the CLI and the
// HTTP server.
package app

import (
	"context"
	"fmt"

	"cvmatcher/internal/archive"
	"cvmatcher/internal/config"
	"cvmatcher/internal/embedding"
	"cvmatcher/internal/errors"
	"cvmatcher/internal/ingest"
	"cvmatcher/internal/observability"
	"cvmatcher/internal/vectorstore"
)

// App holds everything created once at startup.
type App struct {
	Config        *config.Config
	Logger        *errors.Logger
	Observability *observability.Manager
	Embedder      *embedding.Service
	Store         *vectorstore.Guarded
	Archive       archive.Archive
	Ingest        *ingest.Service
}

// New connects to every dependency and waits for the vector store to be
// ready. Handles opened before a failure are released.
func New(ctx context.Context, cfg *config.Config, version string, logger *errors.Logger) (_ *App, err error) {
	a := &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			a.Close(context.Background())
		}
	}()

	a.Observability, err = observability.NewManager(cfg.Observability, version, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize observability: %w", err)
	}
	metrics := a.Observability.Metrics()

	a.Embedder, err = embedding.New(cfg.Embedding, logger)
	if err != nil {
		return nil, err
	}
	a.Embedder.SetObserver(metrics)
	a.logModelInfo(ctx)

	store, err := vectorstore.Open(cfg.VectorStore, logger)
	if err != nil {
		return nil, err
	}
	a.Store = vectorstore.NewGuarded(store, cfg.VectorStore, logger)
	a.Store.SetObserver(metrics)
	if err = a.Store.EnsureWithRetry(ctx); err != nil {
		return nil, err
	}

	a.Archive, err = archive.New(ctx, cfg.Archive, logger)
	if err != nil {
		return nil, err
	}

	return a.withIngest()
}

// logModelInfo checks the embedding model once at startup. An unreachable
// model is logged, not fatal: requests report it as a dependency failure.
func (a *App) logModelInfo(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, a.Config.Embedding.Timeout)
	defer cancel()

	info := a.Embedder.ModelInfo(ctx)
	if info == nil {
		return
	}
	if !info.Available {
		a.Logger.Warn("Embedding model is not reachable",
			"provider", info.Provider, "model", info.Name, "error", info.Error)
		return
	}
	a.Logger.Info("Embedding model ready",
		"provider", info.Provider, "model", info.Name, "dimensions", info.Dimensions)
}

// NewWithHandles wires an App around already opened handles. Tests use it
// with the mock embedder and an in-memory store.
func NewWithHandles(cfg *config.Config, embedder *embedding.Service, store *vectorstore.Guarded, arch archive.Archive, logger *errors.Logger) (*App, error) {
	obs, err := observability.NewManager(config.ObservabilityConfig{}, "", logger)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Logger: logger, Observability: obs, Embedder: embedder, Store: store, Archive: arch}
	return a.withIngest()
}

func (a *App) withIngest() (*App, error) {
	svc, err := ingest.New(a.Config, a.Embedder, a.Store, a.Archive, a.Logger)
	if err != nil {
		return nil, err
	}
	svc.SetObserver(a.Observability.Metrics())
	a.Ingest = svc
	return a, nil
}

// Close releases handles in reverse order of creation.
func (a *App) Close(ctx context.Context) {
	if a.Ingest != nil {
		a.Ingest.Close()
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.Logger.LogError(err, "Failed to close vector store")
		}
	}
	if a.Embedder != nil {
		if err := a.Embedder.Close(); err != nil {
			a.Logger.LogError(err, "Failed to close embedding provider")
		}
	}
	if a.Observability != nil {
		if err := a.Observability.Shutdown(ctx); err != nil {
			a.Logger.LogError(err, "Failed to shut down observability")
		}
	}
}
