package setup

import (
	"context"
	"fmt"
	"log"

	"github.com/d3vfreak/fleet-overview/internal/database"
	"github.com/d3vfreak/fleet-overview/internal/esi"
	"github.com/d3vfreak/fleet-overview/internal/filters"
	"github.com/d3vfreak/fleet-overview/internal/fleet"
	"github.com/d3vfreak/fleet-overview/internal/namecache"
	"github.com/d3vfreak/fleet-overview/internal/poll"
	"github.com/d3vfreak/fleet-overview/internal/redis"
	"github.com/d3vfreak/fleet-overview/internal/setup/client"
	"github.com/d3vfreak/fleet-overview/internal/setup/config"
	"github.com/d3vfreak/fleet-overview/internal/setup/telemetry"
	"go.uber.org/zap"
)

// Version is reported with traces. It is overridden at build time.
var Version = "dev"

// App bundles all core dependencies and services needed by the application.
// Each field represents a major subsystem that needs initialization and cleanup.
type App struct {
	Config       *config.Config        // Application configuration
	ConfigDir    string                // Directory the config was loaded from
	Logger       *zap.Logger           // Main application logger
	DBLogger     *zap.Logger           // Database-specific logger
	Users        database.Store        // Durable user records
	RedisManager *redis.Manager        // Redis connection manager
	ESI          *esi.Client           // Upstream API and SSO client
	Names        *namecache.Cache      // Ship type name cache
	Filters      *filters.Filters      // Dashboard filter presets
	Fleet        *fleet.Service        // Fleet snapshot service
	Registry     *poll.Registry        // Per-connection poll sessions
	Sessions     *redis.SessionTracker // Live session index, nil without Redis
	LogManager   *telemetry.Manager    // Log management system
	stopTracing  func(context.Context) error
}

// InitializeApp bootstraps all application dependencies in the correct order,
// ensuring each component has its required dependencies available.
func InitializeApp(ctx context.Context, serviceType telemetry.ServiceType, logDir string) (*App, error) {
	// Load app configuration
	cfg, configDir, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	// Tracing comes first so the error core has a provider to export to
	stopTracing := telemetry.StartTracing(&cfg.Telemetry, Version)

	// Logging system is initialized next to capture setup issues
	logManager := telemetry.NewManager(serviceType, logDir, &cfg.Debug, cfg.Telemetry.UptraceDSN != "")

	logger, dbLogger, err := logManager.GetLoggers()
	if err != nil {
		_ = stopTracing(ctx)
		return nil, err
	}

	app := &App{
		Config:       cfg,
		ConfigDir:    configDir,
		Logger:       logger,
		DBLogger:     dbLogger.Named("database"),
		RedisManager: redis.NewManager(&cfg.Redis, logger),
		LogManager:   logManager,
		stopTracing:  stopTracing,
	}

	if err := app.initialize(ctx); err != nil {
		app.Cleanup(ctx)
		return nil, err
	}

	return app, nil
}

// initialize opens the stores and builds the services on top of them.
func (a *App) initialize(ctx context.Context) error {
	cfg := a.Config

	users, err := database.NewStore(ctx, cfg, a.DBLogger)
	if err != nil {
		return fmt.Errorf("failed to open user store: %w", err)
	}

	a.Users = users

	// Upstream client is configured with middleware chain
	a.ESI = esi.New(client.GetESIClient(cfg, a.Logger), cfg, a.Logger)

	nameStore, err := a.nameStore(ctx)
	if err != nil {
		return err
	}

	a.Names = namecache.New(a.ESI, nameStore, a.Logger)
	if err := a.Names.Load(ctx); err != nil {
		return fmt.Errorf("failed to load ship names: %w", err)
	}

	a.Logger.Info("Loaded ship names", zap.Int("count", a.Names.Len()))

	a.Filters, err = filters.Load(cfg.Storage.FiltersFile)
	if err != nil {
		return fmt.Errorf("failed to load filters: %w", err)
	}

	a.Fleet = fleet.NewService(a.ESI, a.Names, users, cfg.Poll.NameConcurrency, a.Logger)

	var tracker poll.Tracker

	if cfg.Redis.Host != "" {
		sessionClient, err := a.RedisManager.GetClient(ctx, redis.SessionDBIndex)
		if err != nil {
			return err
		}

		a.Sessions = redis.NewSessionTracker(sessionClient)

		// Entries left behind by a previous run are stale
		if err := a.Sessions.Reset(ctx); err != nil {
			a.Logger.Warn("Failed to reset session index", zap.Error(err))
		}

		tracker = a.Sessions
	}

	a.Registry = poll.NewRegistry(users, a.Fleet, a.Filters, tracker, poll.Options{
		Interval:         cfg.PollInterval(),
		FailureThreshold: cfg.Poll.FailureThreshold,
	}, a.Logger)

	return nil
}

// nameStore returns the persistence backend for the ship name cache.
func (a *App) nameStore(ctx context.Context) (namecache.Store, error) {
	switch a.Config.Storage.NameBackend {
	case config.NameBackendRedis:
		cacheClient, err := a.RedisManager.GetClient(ctx, redis.CacheDBIndex)
		if err != nil {
			return nil, err
		}

		return namecache.NewRedisStore(cacheClient), nil
	case config.NameBackendFile:
		return namecache.NewFileStore(a.Config.Storage.NamesFile), nil
	default:
		return nil, fmt.Errorf("%w: unknown name backend %q", config.ErrInvalidConfig, a.Config.Storage.NameBackend)
	}
}

// Cleanup ensures graceful shutdown of all components in reverse initialization order.
// Logs but does not fail on cleanup errors to ensure all components get cleanup attempts.
func (a *App) Cleanup(ctx context.Context) {
	// Stop every poll loop before the stores go away
	if a.Registry != nil {
		a.Registry.Close(ctx)
	}

	if a.Users != nil {
		if err := a.Users.Close(); err != nil {
			log.Printf("Failed to close user store: %v", err)
		}
	}

	// Close Redis connections last as other components might need it during cleanup
	a.RedisManager.Close()

	if err := a.stopTracing(ctx); err != nil {
		log.Printf("Failed to flush traces: %v", err)
	}

	// Sync buffered logs before shutdown
	if err := a.Logger.Sync(); err != nil {
		log.Printf("Failed to sync logger: %v", err)
	}

	if err := a.DBLogger.Sync(); err != nil {
		log.Printf("Failed to sync DB logger: %v", err)
	}
}
