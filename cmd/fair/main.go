// Package main is the entry point of the fair binary. It dispatches its
// subcommands with a switch on os.Args so the whole CLI surface reads in one
// place:
//
//	fair serve                      status API, periodic update job, metrics
//	fair scan                       list installed packages carrying a DID
//	fair check [plugin|theme]       run one update sweep and print the result
//	fair details <slug> [type]      print the update payload of one package
//	fair install <did> [version]    install a package by DID
//	fair migrate <up|down>          apply or roll back the history schema
//	fair version
//
// Configuration is read from CONFIG_PATH (optional) and FAIR_* variables.
// Logs go to stderr; command output goes to stdout as JSON.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fairpm/fair-go/internal/api"
	"github.com/fairpm/fair-go/internal/config"
	"github.com/fairpm/fair-go/internal/db"
	"github.com/fairpm/fair-go/internal/registry"
	"github.com/fairpm/fair-go/internal/telemetry"
	"github.com/fairpm/fair-go/internal/updates"
)

var version = "0.1.0"

const usage = "Available commands: serve, scan, check, details, install, migrate, version"

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatalf("Error: %v\n", err)
	}
}

func run(args []string) error {
	command := "serve"
	if len(args) > 0 {
		command = args[0]
		args = args[1:]
	}
	if command == "version" {
		fmt.Printf("fair v%s\n", version)
		return nil
	}

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch command {
	case "serve":
		return serve(ctx, cfg)
	case "scan":
		return scan(ctx, cfg)
	case "check":
		return check(ctx, cfg, args)
	case "details":
		return details(ctx, cfg, args)
	case "install":
		return install(ctx, cfg, args)
	case "migrate":
		if len(args) < 1 {
			return fmt.Errorf("usage: fair migrate <up|down>")
		}
		return runMigrations(cfg, args[0])
	default:
		return fmt.Errorf("unknown command: %s\n%s", command, usage)
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	app, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	if app.DB != nil {
		telemetry.StartDBStatsCollector(ctx, app.DB.DB, 30*time.Second)
		if app.History != nil && cfg.Database.HistoryRetention > 0 {
			go pruneHistory(ctx, app, cfg.Database.HistoryRetention)
		}
	}

	if cfg.Telemetry.Metrics.Enabled {
		go serveMetrics(cfg.Telemetry.Metrics.PrometheusPort)
	}

	if cfg.Updates.Enabled {
		app.Job.Start(ctx, cfg.Updates.Interval)
		defer app.Job.Stop()
	} else if _, err := app.Scanner.Rescan(); err != nil {
		return fmt.Errorf("failed to scan packages: %w", err)
	}

	s := &api.Server{
		Registry:  app.Registry,
		Checker:   app.Checker,
		Job:       app.Job,
		Installer: app.Installer,
		Storage:   app.Storage,
		APIToken:  cfg.Server.APIToken,
		Version:   version,
	}
	if app.redis != nil {
		s.Redis = app.redis
	}
	if app.DB != nil {
		s.DB = app.DB
		s.History = app.History
		s.Installs = app.Installs
	}
	router, bg := api.NewRouter(s)
	defer bg.Shutdown()

	server := &http.Server{
		Addr:         cfg.Server.GetAddress(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	if cfg.Server.APIToken == "" {
		slog.Warn("no API token configured, install and check routes are disabled")
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	slog.Info("server stopped gracefully")
	return nil
}

// serveMetrics serves /metrics on its own port, off the API listener.
func serveMetrics(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	slog.Info("starting Prometheus metrics server", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("metrics server error", "error", err)
	}
}

// pruneHistory deletes update checks older than retention once a day.
func pruneHistory(ctx context.Context, app *App, retention time.Duration) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		n, err := app.History.Prune(ctx, time.Now().Add(-retention))
		if err != nil {
			slog.Warn("failed to prune update history", "error", err)
		} else if n > 0 {
			slog.Info("pruned update history", "rows", n)
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

func scan(ctx context.Context, cfg *config.Config) error {
	app, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	res, err := app.Scanner.Rescan()
	if err != nil {
		return err
	}
	type row struct {
		DID          string        `json:"did"`
		Kind         registry.Kind `json:"kind"`
		RelativePath string        `json:"relative_path"`
		LocalVersion string        `json:"local_version,omitempty"`
	}
	var rows []row
	for _, kind := range []registry.Kind{registry.KindPlugin, registry.KindTheme} {
		for _, p := range app.Registry.All(kind) {
			rows = append(rows, row{p.DID, p.Kind, p.RelativePath(), p.LocalVersion})
		}
	}
	return printJSON(map[string]any{"packages": rows, "skipped": res.Skipped})
}

func check(ctx context.Context, cfg *config.Config, args []string) error {
	kinds := []registry.Kind{registry.KindPlugin, registry.KindTheme}
	if len(args) > 0 {
		kind, err := registry.ParseKind(args[0])
		if err != nil {
			return err
		}
		kinds = []registry.Kind{kind}
	}

	app, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	if _, err := app.Scanner.Rescan(); err != nil {
		return fmt.Errorf("failed to scan packages: %w", err)
	}
	out := map[registry.Kind]*updates.Transient{}
	for _, kind := range kinds {
		t, err := app.Checker.Sweep(ctx, kind)
		if err != nil {
			return err
		}
		out[kind] = t
	}
	return printJSON(out)
}

func details(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: fair details <slug> [plugin|theme]")
	}
	kind := registry.KindPlugin
	if len(args) > 1 {
		k, err := registry.ParseKind(args[1])
		if err != nil {
			return err
		}
		kind = k
	}

	app, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	if _, err := app.Scanner.Rescan(); err != nil {
		return fmt.Errorf("failed to scan packages: %w", err)
	}
	p, err := app.Checker.Details(ctx, kind, args[0])
	if err != nil {
		return err
	}
	return printJSON(p)
}

func install(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: fair install <did> [version]")
	}
	ver := ""
	if len(args) > 1 {
		ver = args[1]
	}

	app, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	if _, err := app.Scanner.Rescan(); err != nil {
		slog.Warn("failed to scan packages before install", "error", err)
	}
	started := time.Now()
	res, installErr := app.Installer.Install(ctx, args[0], ver)
	if app.Installs != nil {
		if err := app.Installs.RecordInstall(ctx, res, started, installErr); err != nil {
			slog.Warn("failed to record install", "run_id", res.RunID, "error", err)
		}
	}
	if installErr != nil {
		return fmt.Errorf("install failed after %v: %w", res.States, installErr)
	}
	return printJSON(res)
}

func runMigrations(cfg *config.Config, direction string) error {
	database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	slog.Info("running migrations", "direction", direction)
	if err := db.RunMigrations(database.DB, direction); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	v, dirty, err := db.GetMigrationVersion(database.DB)
	if err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}
	slog.Info("migration completed", "version", v, "dirty", dirty)
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
