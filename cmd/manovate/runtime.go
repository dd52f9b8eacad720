package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	charmLog "github.com/charmbracelet/log"
	servercommon "github.com/manovate/crm/internal/adapters/server/common"
	"github.com/manovate/crm/internal/adapters/storage/file"
	"github.com/manovate/crm/internal/adapters/storage/memory"
	"github.com/manovate/crm/internal/adapters/storage/postgres"
	"github.com/manovate/crm/internal/adapters/storage/sqlite"
	"github.com/manovate/crm/internal/app"
	"github.com/manovate/crm/internal/config"
	"github.com/manovate/crm/internal/platform"
)

// runtimeEnv is everything one command needs once config and storage are resolved.
type runtimeEnv struct {
	command    string
	configPath string
	paths      platform.Paths
	cfg        config.Config
	logger     *runtimeLogger
	backend    backend
	store      *app.RecordStore
	svc        *app.Service
	adapter    *servercommon.AppServiceAdapter
}

// resolvePaths applies --app and --dev to platform path resolution.
func (o *rootOptions) resolvePaths() (platform.Paths, error) {
	return platform.DefaultPathsWithOptions(platform.Options{
		AppName: o.appName,
		DevMode: o.devMode,
	})
}

// open loads config, opens the configured backend, and builds the pipeline service.
func (o *rootOptions) open(ctx context.Context, command string) (*runtimeEnv, error) {
	paths, err := o.resolvePaths()
	if err != nil {
		return nil, err
	}

	configPath := strings.TrimSpace(o.configPath)
	if configPath == "" {
		if envPath := strings.TrimSpace(os.Getenv(platform.EnvConfig)); envPath != "" {
			configPath = envPath
		} else {
			configPath = paths.ConfigPath
		}
	}
	dbPath := strings.TrimSpace(o.dbPath)
	dbOverridden := dbPath != ""
	if !dbOverridden {
		if envPath := strings.TrimSpace(os.Getenv(platform.EnvDBPath)); envPath != "" {
			dbPath = envPath
			dbOverridden = true
		} else {
			dbPath = paths.DBPath
		}
	}

	defaults := config.Default(dbPath)
	defaults.Database.Dir = paths.StoreDir
	cfg, err := config.Load(configPath, defaults)
	if err != nil {
		return nil, fmt.Errorf("load config %q: %w", configPath, err)
	}
	if dbOverridden {
		cfg.Database.Path = dbPath
	}

	logger, err := newRuntimeLogger(o.stderr, o.appName, o.devMode, cfg.Logging, time.Now)
	if err != nil {
		return nil, fmt.Errorf("configure runtime logger: %w", err)
	}
	if o.quiet {
		logger.SetConsoleEnabled(false)
	}
	logger.Debug("startup configuration resolved", "app", o.appName, "dev_mode", o.devMode, "command", command)
	logger.Debug("configuration loaded", "config_path", configPath, "driver", cfg.Database.Driver, "log_level", cfg.Logging.Level)
	if devPath := logger.DevLogPath(); devPath != "" {
		logger.Debug("dev file logging enabled", "path", devPath)
	}

	be, err := openBackend(ctx, cfg.Database, logger.Sink())
	if err != nil {
		logger.Error("storage open failed", "driver", cfg.Database.Driver, "err", err)
		_ = logger.Close()
		return nil, err
	}
	logger.Debug("storage ready", "driver", be.driver)

	store := app.NewRecordStore(be.kv, nil, logger.Sink())
	svc := app.NewService(store, nil, nil, app.ServiceConfig{
		DealsKey:          cfg.Pipeline.DealsKey,
		NotificationsKey:  cfg.Notifications.Key,
		SeedDemoDeals:     cfg.Pipeline.SeedDemoDeals,
		SeedNotifications: cfg.Notifications.SeedDemo,
		AuthorName:        cfg.Identity.DisplayName,
		Logger:            logger.Sink(),
	})
	return &runtimeEnv{
		command:    command,
		configPath: configPath,
		paths:      paths,
		cfg:        cfg,
		logger:     logger,
		backend:    be,
		store:      store,
		svc:        svc,
		adapter:    servercommon.NewAppServiceAdapter(svc),
	}, nil
}

// Close releases the backend and the dev log file.
func (e *runtimeEnv) Close() {
	if e == nil {
		return
	}
	if err := e.backend.Close(); err != nil {
		e.logger.Warn("storage close failed", "driver", e.backend.driver, "err", err)
	}
	if err := e.logger.Close(); err != nil && e.logger.shouldLogToSink(e.logger.consoleSink) {
		e.logger.consoleSink.Warn("close runtime log sink", "err", err)
	}
}

// track logs the start and end of one command flow around fn.
func (e *runtimeEnv) track(fn func() error) error {
	e.logger.Debug("command flow start", "command", e.command)
	if err := fn(); err != nil {
		e.logger.Debug("command flow failed", "command", e.command, "err", err)
		return err
	}
	e.logger.Debug("command flow complete", "command", e.command)
	return nil
}

// withEnv opens the runtime for command, runs fn, and closes everything afterwards.
func (o *rootOptions) withEnv(ctx context.Context, command string, fn func(*runtimeEnv) error) error {
	env, err := o.open(ctx, command)
	if err != nil {
		return err
	}
	defer env.Close()
	return env.track(func() error { return fn(env) })
}

// backend is one opened key-value store plus its lifecycle hooks.
type backend struct {
	driver  config.Driver
	kv      app.KVStore
	watcher app.ChangeWatcher
	sqlite  *sqlite.Repository
	ready   func(context.Context) error
	close   func() error
}

// Close releases the backend's resources.
func (b backend) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

// openBackend opens the store named by the database config.
func openBackend(ctx context.Context, db config.DatabaseConfig, logger *charmLog.Logger) (backend, error) {
	switch db.Driver {
	case config.DriverSQLite:
		repo, err := sqlite.Open(db.Path)
		if err != nil {
			return backend{}, fmt.Errorf("open sqlite repository: %w", err)
		}
		return backend{driver: db.Driver, kv: repo, sqlite: repo, ready: repo.Ping, close: repo.Close}, nil
	case config.DriverPostgres:
		store, err := postgres.NewStore(ctx, db.DSN)
		if err != nil {
			return backend{}, fmt.Errorf("open postgres store: %w", err)
		}
		return backend{driver: db.Driver, kv: store, ready: store.Ping, close: store.Close}, nil
	case config.DriverFile:
		store, err := file.New(db.Dir, file.WithLogger(logger))
		if err != nil {
			return backend{}, fmt.Errorf("open file store: %w", err)
		}
		return backend{driver: db.Driver, kv: store, watcher: store}, nil
	case config.DriverMemory:
		return backend{driver: db.Driver, kv: memory.New()}, nil
	default:
		return backend{}, fmt.Errorf("unsupported database driver %q", db.Driver)
	}
}
