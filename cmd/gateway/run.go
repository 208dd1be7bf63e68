package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/AtsumiFlex/Aura-sub002/internal/auth"
	"github.com/AtsumiFlex/Aura-sub002/internal/config"
	"github.com/AtsumiFlex/Aura-sub002/internal/event"
	"github.com/AtsumiFlex/Aura-sub002/internal/metrics"
	"github.com/AtsumiFlex/Aura-sub002/internal/shard"
	"github.com/AtsumiFlex/Aura-sub002/internal/store"
	"github.com/AtsumiFlex/Aura-sub002/internal/version"
)

const (
	eventBufferSize     = 4096
	dropReportInterval  = 10 * time.Second
	shutdownTimeout     = 30 * time.Second
	healthShutdownDelay = 10 * time.Second
)

func runGateway(configPath string) error {
	// Load configuration
	cfg, err := config.LoadAndValidate(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Set up structured logging
	logger := newLogger(cfg.Log.Level, os.Stdout).With("instance_id", cfg.Instance.ID)
	slog.SetDefault(logger)

	logger.Info("starting gateway",
		"version", version.Version,
		"commit", version.Commit,
		"config", configPath,
	)

	creds, err := auth.LoadCredentials(cfg.API.Token, cfg.API.TokenPath)
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}
	logger.Info("configuration loaded",
		"api_url", cfg.API.RestURL,
		"token", creds.Redacted(),
		"store", cfg.Store.Driver,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(cfg.Metrics.Namespace, registry)

	sessions, closeStore, err := store.Open(ctx, cfg.Store, cfg.Instance.ID, logger)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	defer closeStore()

	events := event.NewChannelHandler(eventBufferSize)
	mgr := shard.NewManager(
		managerConfig(cfg, creds.Token),
		newAPIClient(cfg, creds, logger),
		newDialer(cfg, logger),
		shard.WithStore(sessions),
		shard.WithEventHandler(events),
		shard.WithManagerMetrics(m),
		shard.WithManagerLogger(logger),
	)

	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler: createHealthHandler(mgr, registry, cfg.Metrics.Path),
	}

	var g errgroup.Group
	g.Go(func() error {
		logger.Info("starting health server", "port", cfg.Metrics.Port)
		if err := healthServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		consumeEvents(events, m, logger, dropReportInterval)
		return nil
	})

	startErr := mgr.Start(ctx)
	if startErr != nil {
		logger.Error("failed to start shards", "error", startErr)
	} else {
		logger.Info("gateway running",
			"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Metrics.Port),
		)

		// Wait for shutdown
		select {
		case <-ctx.Done():
		case <-mgr.Done():
			if err := mgr.Err(); err != nil {
				startErr = err
				logger.Error("shards stopped", "error", err)
			}
		}
	}

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := mgr.Stop(shutdownCtx); err != nil {
		logger.Warn("shard manager stop", "error", err)
	}
	events.Close()

	healthCtx, healthCancel := context.WithTimeout(context.Background(), healthShutdownDelay)
	defer healthCancel()
	healthServer.Shutdown(healthCtx)

	if err := g.Wait(); err != nil {
		logger.Error("background task failed", "error", err)
	}

	logger.Info("gateway stopped")
	return startErr
}

// consumeEvents logs shard events until the handler is closed and reports
// dropped events to metrics.
func consumeEvents(events *event.ChannelHandler, m *metrics.Metrics, logger *slog.Logger, reportEvery time.Duration) {
	ticker := time.NewTicker(reportEvery)
	defer ticker.Stop()

	var reported int64
	report := func() {
		dropped := events.Dropped()
		if delta := dropped - reported; delta > 0 {
			m.AddEventsDropped(delta)
			logger.Warn("events dropped, consumer too slow", "dropped", delta)
			reported = dropped
		}
	}
	defer report()

	for {
		select {
		case e, ok := <-events.Events():
			if !ok {
				return
			}
			logEvent(logger, e)
		case <-ticker.C:
			report()
		}
	}
}

func logEvent(logger *slog.Logger, e event.Event) {
	switch ev := e.(type) {
	case event.Connected:
		logger.Debug("gateway connected", "shard", ev.Shard, "conn_id", ev.ConnID)
	case event.Ready:
		logger.Info("shard ready", "shard", ev.Shard, "session_id", ev.SessionID)
	case event.Resumed:
		logger.Info("shard resumed", "shard", ev.Shard, "seq", ev.Sequence)
	case event.Dispatch:
		logger.Debug("dispatch", "shard", ev.Shard, "event", ev.Name, "seq", ev.Seq)
	case event.Closing:
		logger.Info("connection closing",
			"shard", ev.Shard,
			"code", ev.Code,
			"reason", ev.Reason,
			"resumable", ev.Resumable,
		)
	case event.Error:
		if ev.Fatal {
			logger.Error("shard error", "shard", ev.Shard, "error", ev.Err)
		} else {
			logger.Warn("shard error", "shard", ev.Shard, "error", ev.Err)
		}
	case event.Debug:
		logger.Debug(ev.Message, "shard", ev.Shard)
	}
}
