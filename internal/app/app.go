// Package app initializes and holds long-lived application services, acting
// as a dependency injection container.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/zapdeals/zapdeals/internal/config"
	"github.com/zapdeals/zapdeals/internal/logging"
	"github.com/zapdeals/zapdeals/internal/publisher"
	"github.com/zapdeals/zapdeals/internal/publisher/pubsub"
	"github.com/zapdeals/zapdeals/internal/storage"
	"github.com/zapdeals/zapdeals/internal/storage/postgres"
	"github.com/zapdeals/zapdeals/internal/store"
)

// App holds the shared, long-lived services: the logger, the listing
// repository, the raw page archive and the batch-event publisher. It is
// initialized once at startup and injected into the commands.
type App struct {
	cfg     config.Config
	logger  *zap.Logger
	repo    store.Repository
	archive storage.Provider
	events  publisher.Publisher
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Repo returns the listing repository.
func (a *App) Repo() store.Repository { return a.repo }

// Archive returns the raw page archive provider.
func (a *App) Archive() storage.Provider { return a.archive }

// Events returns the batch-event publisher.
func (a *App) Events() publisher.Publisher { return a.events }

// New builds the service container from the configuration, failing fast when
// a critical dependency cannot be reached.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	logger.Info("Initializing application services")

	if cfg.DB.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	repo, err := postgres.NewListingStore(ctx, postgres.Config{
		DSN:             cfg.DB.DSN,
		MaxConns:        cfg.DB.MaxConns,
		MinConns:        cfg.DB.MinConns,
		MaxConnLifetime: cfg.DB.MaxConnLifetime(),
	})
	if err != nil {
		return nil, fmt.Errorf("init listing store: %w", err)
	}

	archive, err := newArchive(ctx, cfg, logger)
	if err != nil {
		repo.Close()
		return nil, err
	}

	events, err := newEvents(ctx, cfg, logger)
	if err != nil {
		repo.Close()
		return nil, err
	}

	logger.Info("Application services initialized")
	return &App{
		cfg:     cfg,
		logger:  logger,
		repo:    repo,
		archive: archive,
		events:  events,
	}, nil
}

func newArchive(ctx context.Context, cfg config.Config, logger *zap.Logger) (storage.Provider, error) {
	switch cfg.Storage.Provider {
	case "gcs":
		logger.Info("Using GCS archive provider", zap.String("bucket", cfg.Storage.GCSBucket))
		archive, err := storage.NewGCSProvider(ctx, cfg.Storage.GCSBucket, nil)
		if err != nil {
			return nil, fmt.Errorf("init gcs archive: %w", err)
		}
		return archive, nil
	case "local":
		logger.Info("Using local archive provider", zap.String("dir", cfg.Storage.LocalDir))
		archive, err := storage.NewLocalProvider(cfg.Storage.LocalDir)
		if err != nil {
			return nil, fmt.Errorf("init local archive: %w", err)
		}
		return archive, nil
	default:
		logger.Info("Raw page archiving disabled")
		return &storage.NoOpProvider{}, nil
	}
}

func newEvents(ctx context.Context, cfg config.Config, logger *zap.Logger) (publisher.Publisher, error) {
	if !cfg.PubSub.Enabled {
		logger.Info("Batch-event publishing disabled")
		return publisher.NoOpPublisher{}, nil
	}
	logger.Info("Connecting to Pub/Sub", zap.String("topic", cfg.PubSub.TopicName))
	events, err := pubsub.New(ctx, cfg.PubSub.ProjectID, cfg.PubSub.TopicName)
	if err != nil {
		return nil, fmt.Errorf("init pubsub publisher: %w", err)
	}
	return events, nil
}

// Close gracefully shuts down all services in the container. It is called by
// a Cobra hook after the command finishes.
func (a *App) Close() {
	a.logger.Info("Shutting down application services")
	a.repo.Close()
	if err := a.events.Close(); err != nil {
		a.logger.Warn("Error closing event publisher", zap.Error(err))
	}
	// Flush buffered log entries; stderr syncs may legitimately fail.
	_ = a.logger.Sync()
}
