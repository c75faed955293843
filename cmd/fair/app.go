package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/fairpm/fair-go/internal/archive"
	"github.com/fairpm/fair-go/internal/config"
	"github.com/fairpm/fair-go/internal/db"
	"github.com/fairpm/fair-go/internal/db/repositories"
	"github.com/fairpm/fair-go/internal/did"
	"github.com/fairpm/fair-go/internal/installer"
	"github.com/fairpm/fair-go/internal/packages"
	"github.com/fairpm/fair-go/internal/registry"
	"github.com/fairpm/fair-go/internal/storage"
	"github.com/fairpm/fair-go/internal/updates"

	// Storage backends register themselves with the storage factory.
	_ "github.com/fairpm/fair-go/internal/storage/local"
	_ "github.com/fairpm/fair-go/internal/storage/s3"
)

// App is the wired object graph shared by every command.
type App struct {
	Registry  *registry.Registry
	Scanner   *registry.Scanner
	Checker   *updates.Checker
	Job       *updates.Job
	Installer *installer.Installer
	Storage   storage.Storage

	// DB and the repositories are nil when the database is disabled.
	DB       *sqlx.DB
	History  *repositories.UpdateCheckRepository
	Installs *repositories.InstallRepository

	redis *redis.Client
}

func newApp(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{}
	ok := false
	defer func() {
		if !ok {
			app.Close()
		}
	}()

	resolver := did.NewMethodResolver(
		did.NewPLCResolver(cfg.Resolver.PLCDirectoryURL, cfg.Resolver.Timeout),
		did.NewWebResolver(cfg.Resolver.Timeout),
	)
	documents := did.NewCache(resolver, cfg.Resolver.DocumentCacheTTL)
	fetcher := packages.NewFetcher(documents, cfg.Metadata.Timeout)

	if cfg.Storage.Backend != "" {
		store, err := storage.NewStorage(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		app.Storage = store
		slog.Info("archive cache enabled", "backend", cfg.Storage.Backend)
	}

	env := packages.NewEnvironmentChecker(packages.Environment{
		WPVersion:  cfg.Environment.WPVersion,
		PHPVersion: cfg.Environment.PHPVersion,
		Extensions: cfg.Environment.Extensions,
	})
	scorer := packages.NewLangScorer(cfg.Install.Locale)

	app.Registry = registry.New(cfg.Install.PluginsDir, cfg.Install.ThemesDir)
	app.Scanner = registry.NewScanner(app.Registry)

	app.Installer = &installer.Installer{
		Documents:    documents,
		Metadata:     fetcher,
		Archives:     archive.NewHTTPInstaller(app.Storage, cfg.Install.DownloadTimeout, cfg.Install.MaxArchiveSize),
		Requirements: env,
		Scorer:       scorer,
		Registry:     app.Registry,
		Options: installer.Options{
			VerifySignatures:   cfg.Install.VerifySignatures,
			RequireSigningKeys: cfg.Install.RequireSigningKeys,
			VerifyEmbeddedDID:  cfg.Install.VerifyEmbeddedDID,
			PluginsDir:         cfg.Install.PluginsDir,
			ThemesDir:          cfg.Install.ThemesDir,
		},
	}

	var records updates.RecordStore = updates.NewMemoryStore()
	if cfg.Cache.Backend == "redis" {
		rdb, err := updates.NewRedisClient(ctx, &cfg.Cache.Redis)
		if err != nil {
			return nil, err
		}
		app.redis = rdb
		records = updates.NewRedisStore(rdb, cfg.Cache.Redis.KeyPrefix)
		slog.Info("update records stored in redis", "addr", cfg.Cache.Redis.Address)
	}

	app.Checker = &updates.Checker{
		Registry:     app.Registry,
		Source:       fetcher,
		Requirements: env,
		Records:      records,
		Scorer:       scorer,
		SuccessTTL:   cfg.Updates.SuccessTTL,
		Parallelism:  cfg.Updates.Parallelism,
	}

	if cfg.Database.Enabled {
		database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		app.DB = database
		if err := db.RunMigrations(database.DB, "up"); err != nil {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		app.History = repositories.NewUpdateCheckRepository(database)
		app.Installs = repositories.NewInstallRepository(database)
		app.Checker.History = app.History
	}

	app.Job = updates.NewJob(app.Checker, app.Scanner)
	ok = true
	return app, nil
}

// Close releases the connections opened by newApp.
func (a *App) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			slog.Warn("failed to close redis client", "error", err)
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			slog.Warn("failed to close database", "error", err)
		}
	}
}
