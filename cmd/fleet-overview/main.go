package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/d3vfreak/fleet-overview/internal/realtime"
	"github.com/d3vfreak/fleet-overview/internal/redis"
	"github.com/d3vfreak/fleet-overview/internal/setup"
	"github.com/d3vfreak/fleet-overview/internal/setup/config"
	"github.com/d3vfreak/fleet-overview/internal/setup/telemetry"
	"github.com/d3vfreak/fleet-overview/internal/web"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

// ServerLogDir specifies where server log files are stored.
const ServerLogDir = "logs/server_logs"

// Server timeouts. There is no write timeout since websocket connections are long-lived.
const (
	ReadHeaderTimeout = 5 * time.Second
	IdleTimeout       = 60 * time.Second
	ShutdownTimeout   = 30 * time.Second
)

func main() {
	app := &cli.Command{
		Name:  "fleet-overview",
		Usage: "Live fleet composition dashboard for EVE Online fleet bosses",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the dashboard server",
				Action: serve,
			},
			{
				Name:   "sessions",
				Usage:  "List connections currently monitoring a fleet",
				Action: sessions,
			},
		},
		DefaultCommand: "serve",
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, _ *cli.Command) error {
	// Initialize application with required dependencies
	app, err := setup.InitializeApp(ctx, telemetry.ServiceServer, ServerLogDir)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.Cleanup(context.Background())

	cfg := app.Config
	handler := web.NewRouter(
		app.ESI,
		app.Users,
		realtime.NewHandler(app.Registry, app.ESI, app.Logger),
		cfg.Server.StaticDir,
		cfg.Server.Domain,
		app.Logger,
	)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)

	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: ReadHeaderTimeout,
		IdleTimeout:       IdleTimeout,
	}

	// Start server in a goroutine
	errCh := make(chan error, 1)
	go func() {
		app.Logger.Info("Server started", zap.String("addr", addr), zap.String("domain", cfg.Server.Domain))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt signal or a listener failure
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
	case err := <-errCh:
		app.Logger.Error("Failed to start server", zap.Error(err))
		return err
	}

	app.Logger.Info("Shutting down server...", zap.Int("activeSessions", app.Registry.Active()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	// Hijacked websocket connections are not tracked by Shutdown, so the
	// poll loops are stopped explicitly.
	app.Registry.Close(shutdownCtx)

	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error("Server forced to shutdown", zap.Error(err))
	}

	app.Logger.Info("Server gracefully stopped")

	return nil
}

func sessions(ctx context.Context, _ *cli.Command) error {
	cfg, _, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.Redis.Host == "" {
		return fmt.Errorf("%w: redis.host is required to list sessions", config.ErrInvalidConfig)
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	manager := redis.NewManager(&cfg.Redis, logger)
	defer manager.Close()

	client, err := manager.GetClient(ctx, redis.SessionDBIndex)
	if err != nil {
		return err
	}

	live, err := redis.NewSessionTracker(client).Sessions(ctx)
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(live))
	for id := range live {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		fmt.Printf("%s\t%s\n", id, live[id])
	}

	logger.Info("Listed sessions", zap.Int("count", len(ids)))

	return nil
}
