package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	charmLog "github.com/charmbracelet/log"

	"onboardline/internal/archive"
	"onboardline/internal/config"
	"onboardline/internal/db"
	"onboardline/internal/engine"
	"onboardline/internal/logging"
	"onboardline/internal/metrics"
	"onboardline/internal/migrate"
	"onboardline/internal/rules"
	"onboardline/internal/telemetry"
)

const defaultArchiveDir = ".onboardline/archive"

// Options overrides what would otherwise come from OBL_* variables.
type Options struct {
	Workspace string
	LogLevel  string
	LogFormat string
	LogOutput io.Writer
	// Tracing starts the OTLP exporter when OBL_OTEL_ENDPOINT is set.
	Tracing bool
}

// App is a bootstrapped workspace: config, database, engine and collectors.
type App struct {
	Workspace string
	Config    *config.Config
	Env       *config.Env
	Logger    *charmLog.Logger
	DB        *sql.DB
	Metrics   *metrics.Recorder
	Engine    *engine.Engine
	shutdown  func(context.Context) error
}

// Open loads the workspace config, migrates the database and wires the engine.
func Open(ctx context.Context, opts Options) (*App, error) {
	env, err := config.LoadEnv()
	if err != nil {
		return nil, err
	}
	if opts.LogLevel == "" {
		opts.LogLevel = env.LogLevel
	}
	if opts.LogFormat == "" {
		opts.LogFormat = env.LogFormat
	}
	if opts.LogOutput == nil {
		opts.LogOutput = os.Stderr
	}
	logger, err := logging.New(opts.LogOutput, opts.LogLevel, opts.LogFormat)
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadOptional(opts.Workspace)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(env)

	tables, err := rules.Load(resolvePath(opts.Workspace, cfg.RulesFile))
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}

	conn, err := db.Open(db.Config{Workspace: opts.Workspace})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := migrate.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	a := &App{Workspace: opts.Workspace, Config: cfg, Env: env, Logger: logger, DB: conn, Metrics: metrics.New()}
	if opts.Tracing {
		shutdown, err := telemetry.Setup(ctx, telemetry.ServiceName, env.OTelEndpoint)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("tracing: %w", err)
		}
		a.shutdown = shutdown
	}
	a.Engine = engine.New(conn, cfg, engine.Options{Rules: tables, Logger: logger, Metrics: a.Metrics})
	logger.Debug("workspace ready", "workspace", opts.Workspace, "environment", cfg.Environment, "rules", tables.Version)
	return a, nil
}

// Archive opens the configured audit archive storage.
func (a *App) Archive(ctx context.Context) (archive.Storage, error) {
	cfg := a.Config.Archive
	if cfg.Type == "" || cfg.Type == "local" {
		if cfg.BaseDir == "" {
			cfg.BaseDir = defaultArchiveDir
		}
		cfg.BaseDir = resolvePath(a.Workspace, cfg.BaseDir)
	}
	return archive.Open(ctx, cfg)
}

func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.shutdown != nil {
		errs = append(errs, a.shutdown(ctx))
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}

// resolvePath joins relative paths onto the workspace.
func resolvePath(workspace, path string) string {
	if path == "" || filepath.IsAbs(path) || workspace == "" {
		return path
	}
	return filepath.Join(workspace, path)
}
