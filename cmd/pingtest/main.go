// pingtest dials the sync websocket once, attaches it to the connection
// engine and prints frames, heartbeat round trips and state changes to console.
// Heartbeats start after the server's first sync_complete frame.
// Usage: go run ./cmd/pingtest --config configs/syncwatch.example.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"

	"github.com/rickgao/syncwatch/internal/api"
	"github.com/rickgao/syncwatch/internal/config"
	"github.com/rickgao/syncwatch/internal/connection"
	"github.com/rickgao/syncwatch/internal/metrics"
	"github.com/rickgao/syncwatch/internal/router"
	"github.com/rickgao/syncwatch/internal/status"
)

func main() {
	configPath := flag.String("config", "configs/syncwatch.example.yaml", "path to config file")
	interval := flag.Duration("interval", 5*time.Second, "heartbeat interval")
	count := flag.Int64("count", 0, "stop after this many replies (0 runs until interrupted)")
	verbose := flag.Bool("verbose", false, "print full frame JSON")
	flag.Parse()

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	// Load config
	cfg, err := config.LoadWithDefaults(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	apiClient := api.NewClient(cfg.API.RestURL, cfg.API.Token,
		api.WithLogger(logger),
		api.WithHealthPath(cfg.API.HealthPath),
	)
	if apiClient.CheckHealthy(ctx) {
		fmt.Println("[HEALTH] backend reachable")
	} else {
		fmt.Println("[HEALTH] backend unreachable, dialing anyway")
	}

	// Heartbeat on a fixed cadence regardless of visibility
	engCfg := connection.DefaultConfig()
	engCfg.ForegroundInterval = *interval
	engCfg.BackgroundInterval = *interval
	if cfg.Heartbeat.PongTimeout > 0 {
		engCfg.PongTimeout = cfg.Heartbeat.PongTimeout
	}

	counters := &metrics.Counters{}
	connMgr := connection.NewManager(engCfg, connection.Deps{
		Checker:  apiClient,
		Counters: counters,
		Notifier: status.NotifierFunc(func(s status.Summary) {
			fmt.Printf("[STATUS] %s\n", s.Text)
		}),
		OnStateChange: func(ev connection.StateEvent) {
			fmt.Printf("[STATE] %s -> %s (%s)\n", ev.From, ev.To, ev.Reason)
		},
		OnReconnectionNeeded: func(reason string) {
			fmt.Printf("[RECONNECT] requested: %s (pingtest does not redial)\n", reason)
		},
	}, logger)

	connMgr.RegisterConsumer("console", nil, func(p router.Payload) error {
		printFrame(p, *verbose)
		return nil
	})

	logger.Info("starting connection manager")
	if err := connMgr.Start(ctx); err != nil {
		logger.Error("failed to start connection manager", "error", err)
		os.Exit(1)
	}

	clientCfg := connection.DefaultClientConfig()
	clientCfg.URL = cfg.API.WSURL
	clientCfg.Token = cfg.API.Token
	if cfg.API.DialTimeout > 0 {
		clientCfg.DialTimeout = cfg.API.DialTimeout
	}

	ws := connection.NewClient(clientCfg, logger)
	if err := ws.Connect(ctx); err != nil {
		logger.Error("failed to dial", "url", clientCfg.URL, "error", err)
		os.Exit(1)
	}
	if err := connMgr.Attach(ws); err != nil {
		logger.Error("failed to attach", "error", err)
		ws.Close()
		os.Exit(1)
	}

	// Pump frames into the manager
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ws.Done():
				return
			case msg := <-ws.Messages():
				connMgr.HandleInbound(msg.Data)
			case err := <-ws.Errors():
				fmt.Printf("[ERROR] %v\n", err)
				connMgr.Detach("transport error")
				cancel()
				return
			}
		}
	}()

	// Round-trip printer
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		var lastReplies int64
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := connMgr.Stats()
				if stats.Counters.HeartbeatReplies == lastReplies {
					continue
				}
				lastReplies = stats.Counters.HeartbeatReplies
				if stats.LastRoundTrip != nil {
					fmt.Printf("[PONG] rtt=%s replies=%d timeouts=%d\n",
						stats.LastRoundTrip.Round(time.Microsecond),
						stats.Counters.HeartbeatReplies,
						stats.Counters.HeartbeatTimeouts,
					)
				}
				if *count > 0 && lastReplies >= *count {
					cancel()
					return
				}
			}
		}
	}()

	logger.Info("pinging - press Ctrl+C to stop")

	// Wait for shutdown
	<-ctx.Done()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	logger.Info("shutting down...")
	connMgr.Stop(shutdownCtx)

	snap := counters.Snapshot()
	logger.Info("shutdown complete",
		"heartbeats_sent", snap.HeartbeatsSent,
		"replies", snap.HeartbeatReplies,
		"timeouts", snap.HeartbeatTimeouts,
		"transitions", snap.Transitions,
	)
}

func printFrame(p router.Payload, verbose bool) {
	if verbose {
		fmt.Printf("[FRAME] %s", pretty.Color(pretty.Pretty(p.Data), nil))
		return
	}
	fields := gjson.GetManyBytes(p.Data, "command", "request_id")
	fmt.Printf("[FRAME] command=%s request_id=%d bytes=%d\n",
		fields[0].String(), fields[1].Int(), len(p.Data))
}
