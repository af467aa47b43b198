package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"hydration/internal/adapter/memory"
	"hydration/internal/adapter/postgres"
	"hydration/internal/adapter/sqlite"
	"hydration/internal/app"
	"hydration/internal/config"
	"hydration/internal/domain"
)

// repository is what every configured store offers beyond the health
// repository contract.
type repository interface {
	domain.HealthRepository
	SetPreferredUnit(ctx context.Context, dt domain.DataType, u domain.Unit) error
	ListRecent(ctx context.Context, dt domain.DataType, limit int) ([]domain.Sample, error)
	Close() error
}

// backend bundles the loaded config, the store and the water service. The
// caller must defer Close.
type backend struct {
	cfg    *config.Config
	logger *slog.Logger
	repo   repository
	water  *app.WaterService
}

func resolvedConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultPath()
}

func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	level, _ := cfg.Level()
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// newBackend reads the config, opens the repository and builds the service.
func newBackend() (*backend, error) {
	cfg, err := config.Load(resolvedConfigPath(), os.Getenv)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	logger := newLogger(os.Stderr, cfg)

	repo, err := openRepository(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("opening %s repository: %w", cfg.Repository.Type, err)
	}

	loc, _ := cfg.Location()
	tag, _ := cfg.Language()
	unit, _ := cfg.Unit()
	water := app.NewWaterService(repo,
		app.WithClock(app.RealClock{Location: loc}),
		app.WithLogger(logger.With("component", "water")),
		app.WithFormatter(app.NewFormatter(tag)),
		app.WithDefaultUnit(unit),
	)
	return &backend{cfg: cfg, logger: logger, repo: repo, water: water}, nil
}

func openRepository(cfg *config.Config, logger *slog.Logger) (repository, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	switch cfg.Repository.Type {
	case config.RepositoryMemory:
		return memory.New(memory.WithLocation(loc)), nil
	case config.RepositorySQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.Repository.Path), 0o755); err != nil {
			return nil, err
		}
		return sqlite.Open(cfg.Repository.Path, sqlite.WithLocation(loc))
	case config.RepositoryPostgres:
		return postgres.Open(cfg.Repository.DSN,
			postgres.WithLocation(loc),
			postgres.WithLogger(logger.With("component", "postgres")),
		)
	}
	return nil, fmt.Errorf("unknown repository type %q", cfg.Repository.Type)
}

func (b *backend) Close() {
	if err := b.repo.Close(); err != nil {
		b.logger.Warn("closing repository", "err", err)
	}
}
