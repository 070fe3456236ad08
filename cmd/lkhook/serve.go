package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/graaaaa/livekit-webhook-logger/internal/api"
	"github.com/graaaaa/livekit-webhook-logger/internal/app"
	"github.com/graaaaa/livekit-webhook-logger/internal/config"
	"github.com/graaaaa/livekit-webhook-logger/internal/derive"
	"github.com/graaaaa/livekit-webhook-logger/internal/export"
	"github.com/graaaaa/livekit-webhook-logger/internal/forward"
	"github.com/graaaaa/livekit-webhook-logger/internal/ingest"
	"github.com/graaaaa/livekit-webhook-logger/internal/publish"
	"github.com/graaaaa/livekit-webhook-logger/internal/signature"
	"github.com/graaaaa/livekit-webhook-logger/internal/version"
)

const (
	forwardStopTimeout = 5 * time.Second
	shutdownTimeout    = 5 * time.Second
)

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Run the webhook receiver and operator API",
	GroupID: "server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, sec, err := loadConfig()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("host") {
			cfg.Host = serveHost
		}
		if cmd.Flags().Changed("port") {
			cfg.Port = servePort
		}
		if err := config.Validate(cfg, sec); err != nil {
			return err
		}
		return serve(cfg, sec)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "listen host (overrides config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (overrides config)")
}

func serve(cfg config.Config, sec config.Secrets) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Event log
	log, err := openStore(ctx, cfg, sec)
	if err != nil {
		return err
	}
	defer func() {
		if err := log.Close(); err != nil {
			logger.Warn("event log close failed", "error", err)
		}
	}()

	// 2. Presence, rebuilt from durable logs
	state := derive.New()
	if cfg.Store != config.StoreMemory {
		n, err := replayPresence(ctx, log, state)
		if err != nil {
			return fmt.Errorf("replay presence: %w", err)
		}
		logger.Info("presence rebuilt", "records", n, "rooms", state.RoomCount())
	}

	// 3. SSE hub
	hub := api.NewHub(api.WithHubLogger(logger))
	go hub.Run()

	// 4. Forwarder
	var fwd *forward.Forwarder
	if cfg.ForwardURL != "" {
		sender := forward.NewHTTPSender(cfg.ForwardURL, sec.ForwardToken, forward.WithSenderLogger(logger))
		fwd = forward.New(sender, time.Duration(cfg.ForwardBatchSec)*time.Second, forward.WithLogger(logger))
		go fwd.Run(ctx)
		logger.Info("forwarding enabled", "url", cfg.ForwardURL, "batch_sec", cfg.ForwardBatchSec)
	} else {
		logger.Info("forward URL not configured, forwarding disabled")
	}

	// 5. NATS
	var pub publish.Publisher = publish.NoopPublisher{}
	if cfg.NATSURL != "" {
		np, err := publish.NewNATSPublisher(cfg.NATSURL, logger)
		if err != nil {
			return err
		}
		pub = np
		logger.Info("nats publishing enabled", "url", cfg.NATSURL)
	}
	defer pub.Close()

	// 6. Ingest pipeline; hooks run in registration order
	hooks := []ingest.Option{
		ingest.WithLogger(logger),
		ingest.WithOnInsert("derive", state.Hook),
		ingest.WithOnInsert("stream", hub.Hook),
	}
	if fwd != nil {
		hooks = append(hooks, ingest.WithOnInsert("forward", fwd.Hook))
	}
	hooks = append(hooks, ingest.WithOnInsert("publish", publish.Hook(pub)))
	pipeline := ingest.New(signature.NewVerifier(sec.WebhookSecret.Value()), log, hooks...)

	// 7. Periodic export
	exportDone := make(chan struct{})
	if every := cfg.ExportEvery(); every > 0 {
		dests, err := export.Destinations(ctx, cfg)
		if err != nil {
			return err
		}
		sched := export.NewScheduler(log, dests, every, logger)
		go func() {
			defer close(exportDone)
			sched.Run(ctx)
		}()
		logger.Info("periodic export enabled", "interval", every, "destinations", len(dests))
	} else {
		close(exportDone)
	}

	// 8. HTTP server
	statsOpts := []app.StatsOption{app.WithRooms(state)}
	if fwd != nil {
		statsOpts = append(statsOpts, app.WithForwarder(fwd))
	}

	limiter := api.NewRateLimiter(api.RateLimiterConfig{
		Rate:  cfg.RateLimit,
		Burst: cfg.RateBurst,
	})

	serverOpts := []api.ServerOption{
		api.WithLogger(logger),
		api.WithReceiver(pipeline),
		api.WithLogsUsecase(app.LogsService{Store: log}),
		api.WithRoomsUsecase(app.RoomsService{State: state}),
		api.WithStatsUsecase(app.NewStatsService(log, statsOpts...)),
		api.WithConfigUsecase(app.ConfigService{Config: cfg, Secrets: sec}),
		api.WithHub(hub),
		api.WithWebhookRateLimit(limiter),
	}
	if cfg.OperatorUsername != "" {
		serverOpts = append(serverOpts, api.WithBasicAuth(cfg.OperatorUsername, sec.OperatorPassword.Value()))
		logger.Info("basic auth enabled for operator endpoints")
	}

	server := api.NewServer(cfg.Addr(), app.HealthService{}, serverOpts...)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting",
			"version", version.String(),
			"addr", cfg.Addr(),
			"store", cfg.Store,
		)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var serveErr error
	select {
	case sig := <-done:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		serveErr = fmt.Errorf("http server: %w", err)
	}

	// Close SSE streams first so Shutdown does not wait on them.
	hub.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown error", "error", err)
	}
	shutdownCancel()

	// No more deliveries; stop background workers.
	cancel()

	if fwd != nil {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), forwardStopTimeout)
		if err := fwd.Stop(stopCtx); err != nil {
			logger.Warn("forwarder stop error", "error", err)
		}
		stopCancel()
	}
	<-exportDone

	logger.Info("server stopped")
	return serveErr
}
