// syncwatch keeps a sync websocket attached to the connection engine,
// re-dials whenever the engine asks, and serves health on HTTP.
// Usage: go run ./cmd/syncwatch --config configs/syncwatch.local.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/syncwatch/internal/api"
	"github.com/rickgao/syncwatch/internal/config"
	"github.com/rickgao/syncwatch/internal/connection"
	"github.com/rickgao/syncwatch/internal/database"
	"github.com/rickgao/syncwatch/internal/metrics"
	"github.com/rickgao/syncwatch/internal/router"
	"github.com/rickgao/syncwatch/internal/status"
	"github.com/rickgao/syncwatch/internal/version"
	"github.com/rickgao/syncwatch/internal/writer"
)

func main() {
	configPath := flag.String("config", "configs/syncwatch.local.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging; the level is adjusted once config is loaded
	var level slog.LevelVar
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: &level,
	}))
	slog.SetDefault(logger)

	logger.Info("starting syncwatch",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		logger.Warn("invalid log level, using info", "level", cfg.Log.Level)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"rest_url", cfg.API.RestURL,
		"ws_url", cfg.API.WSURL,
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("syncwatch failed", "error", err)
		os.Exit(1)
	}

	logger.Info("syncwatch stopped")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	// Create context with cancellation on shutdown signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Create API client
	apiClient := api.NewClient(
		cfg.API.RestURL,
		cfg.API.Token,
		api.WithLogger(logger.With("component", "api")),
		api.WithTimeout(cfg.API.HealthTimeout),
		api.WithHealthPath(cfg.API.HealthPath),
	)

	// Check backend versions; not fatal, the engine retries on its own
	if versions, err := apiClient.GetVersions(ctx); err != nil {
		logger.Warn("backend not reachable at startup", "error", err)
	} else {
		logger.Info("backend reachable", "versions", versions.Versions)
	}

	// Optional status history
	var (
		pool         *pgxpool.Pool
		statusWriter *writer.StatusWriter
	)
	if cfg.Database.Enabled() {
		logger.Info("connecting to database",
			"host", cfg.Database.Host,
			"port", cfg.Database.Port,
			"database", cfg.Database.Name,
		)

		var err error
		pool, err = database.Connect(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer pool.Close()

		if err := database.EnsureSchema(ctx, pool); err != nil {
			return err
		}

		statusWriter = writer.NewStatusWriter(writer.WriterConfig{
			InstanceID:    cfg.Instance.ID,
			BatchSize:     cfg.Writer.BatchSize,
			FlushInterval: cfg.Writer.FlushInterval,
			BufferSize:    cfg.Writer.BufferSize,
		}, pool, logger.With("component", "writer"))
		if err := statusWriter.Start(ctx); err != nil {
			return fmt.Errorf("start status writer: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			statusWriter.Stop(shutdownCtx)
		}()

		logger.Info("database connected")
	}

	notifier := status.NotifierFunc(func(s status.Summary) {
		logger.Info("connection status", "tier", s.Tier, "summary", s.Text)
		if statusWriter != nil {
			statusWriter.Notify(s)
		}
	})

	// The owner dials websockets; the manager asks it for new ones
	clientCfg := connection.ClientConfig{
		URL:          cfg.API.WSURL,
		Token:        cfg.API.Token,
		DialTimeout:  cfg.API.DialTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
		BufferSize:   connection.DefaultClientConfig().BufferSize,
	}
	own := newOwner(ctx, clientCfg, logger.With("component", "owner"))

	counters := &metrics.Counters{}
	mgr := connection.NewManager(engineConfig(cfg), connection.Deps{
		Checker:              apiClient,
		Router:               router.NewRouter(logger.With("component", "router")),
		Notifier:             notifier,
		Counters:             counters,
		OnReconnectionNeeded: own.onReconnectionNeeded,
	}, logger.With("component", "connection"))
	own.mgr = mgr

	registerLogConsumer(mgr, logger.With("component", "consumer"))

	if err := mgr.Start(ctx); err != nil {
		return fmt.Errorf("start connection manager: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mgr.Stop(shutdownCtx)
	}()

	healthServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           newHealthHandler(mgr, statusWriter),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting health server", "port", cfg.Server.Port)
		if err := healthServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := own.connect(gctx); err != nil {
			logger.Warn("initial connection failed", "error", err)
			mgr.RequestReconnection("initial connection failed")
		}
		return nil
	})

	g.Go(func() error {
		watchVisibility(gctx, mgr, logger)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return healthServer.Shutdown(shutdownCtx)
	})

	logger.Info("syncwatch running",
		"instance_id", cfg.Instance.ID,
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Server.Port),
	)

	return g.Wait()
}

// engineConfig maps file configuration onto the connection manager.
func engineConfig(cfg *config.Config) connection.Config {
	return connection.Config{
		ForegroundInterval: cfg.Heartbeat.ForegroundInterval,
		BackgroundInterval: cfg.Heartbeat.BackgroundInterval,
		PongTimeout:        cfg.Heartbeat.PongTimeout,
		DropThreshold:      cfg.Heartbeat.DropThreshold,
		MinSpacing:         cfg.Reconnect.MinSpacing,
		SettleDelay:        cfg.Reconnect.SettleDelay,
		UnhealthyRecheck:   cfg.Reconnect.UnhealthyRecheck,
		HealthTimeout:      cfg.API.HealthTimeout,
		AttachTimeout:      cfg.Reconnect.AttachTimeout,
		AuditInterval:      cfg.Heartbeat.AuditInterval,
		StatusMinInterval:  cfg.Status.MinInterval,
	}
}

// watchVisibility maps SIGUSR1 to background and SIGUSR2 to foreground so a
// supervising process can switch heartbeat cadence.
func watchVisibility(ctx context.Context, mgr connection.Manager, logger *slog.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGUSR1, syscall.SIGUSR2)
	defer signal.Stop(sigCh)

	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigCh:
			visible := sig == syscall.SIGUSR2
			logger.Info("visibility changed", "signal", sig, "foreground", visible)
			mgr.NotifyForeground(visible)
		}
	}
}
