// Command hids is the host intrusion detection agent binary. It loads a
// YAML configuration file, starts the collector workers, rule engine and
// single-writer persistence pipeline, exposes the read-only query API,
// and shuts down gracefully on SIGTERM or SIGINT.
package main

import (
	"context"
	"crypto/rsa"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/hids/agent/internal/api"
	"github.com/hids/agent/internal/collector"
	"github.com/hids/agent/internal/config"
	"github.com/hids/agent/internal/dispatch"
	"github.com/hids/agent/internal/logtail"
	"github.com/hids/agent/internal/parser"
	"github.com/hids/agent/internal/rules"
	"github.com/hids/agent/internal/scheduler"
	"github.com/hids/agent/internal/store"
	"github.com/hids/agent/internal/writer"
)

func main() {
	configPath := flag.String("config", "/etc/hids/config.yaml", "path to the HIDS agent YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hids: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("configuration loaded",
		slog.String("config_path", *configPath),
		slog.String("state_dir", cfg.StateDir),
		slog.String("store_backend", cfg.Store.Backend),
		slog.String("api_addr", cfg.APIAddr),
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx := context.Background()

	if err := os.MkdirAll(cfg.StateDir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	backend, err := store.Open(ctx, cfg.Store.Backend, cfg.Store.DSN)
	if err != nil {
		return err
	}
	defer backend.Close()

	w := writer.New(backend, cfg.Queue.Capacity, cfg.Queue.Policy, logger)
	engine := rules.NewEngine(logger)
	disp := dispatch.New(w, engine, logger)

	offsets, err := logtail.NewOffsetStore(filepath.Join(cfg.StateDir, "log_offsets.json"), logger)
	if err != nil {
		return err
	}
	tailer := logtail.NewTailer(cfg.Sources(), offsets, logger)

	collectors := []struct {
		c        collector.Collector
		interval time.Duration
	}{
		{collector.NewLogCollector(tailer, parser.NewDispatcher(logger)), cfg.Intervals.Log},
		{collector.NewProcessCollector(
			filepath.Join(cfg.StateDir, "process_prev.json"),
			cfg.Collector.HashExecutables, logger), cfg.Intervals.Process},
		{collector.NewNetworkCollector(
			filepath.Join(cfg.StateDir, "network_state.json"),
			cfg.Collector.IgnoreLocal, logger), cfg.Intervals.Network},
		{collector.NewMetricsCollector(logger), cfg.Intervals.Metrics},
	}

	sched := scheduler.New(logger, cfg.Intervals.Health)
	for _, entry := range collectors {
		c := entry.c
		sched.Add(scheduler.Job{
			Name:     c.Name(),
			Interval: entry.interval,
			Run: func(ctx context.Context) error {
				events, err := c.Collect(ctx)
				// A failed tick may still carry partial results.
				disp.HandleBatch(events)
				return err
			},
		})
	}

	if err := sched.Start(ctx); err != nil {
		return err
	}

	pubKey, err := loadJWTKey(cfg.APIJWTPublicKey)
	if err != nil {
		sched.Stop()
		w.Stop()
		return err
	}

	srv := api.NewServer(backend, api.Health{
		Heartbeats: sched.Heartbeats,
		QueueDepth: w.Depth,
		Dropped:    w.Dropped,
		RuleStats:  engine.Context().Stats,
	}, logger)

	httpServer := &http.Server{
		Addr:         cfg.APIAddr,
		Handler:      api.NewRouter(srv, pubKey),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("api server listening", slog.String("addr", cfg.APIAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("api server error", slog.Any("error", err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh
	logger.Info("received shutdown signal", slog.String("signal", sig.String()))

	// Shutdown order: stop producing ticks, drain the write queue, then
	// close the read surface and the backend.
	sched.Stop()
	w.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api server shutdown error", slog.Any("error", err))
	}

	logger.Info("hids agent exited cleanly")
	return nil
}

// loadJWTKey reads the PEM public key at path; an empty path disables
// API authentication.
func loadJWTKey(path string) (*rsa.PublicKey, error) {
	if path == "" {
		return nil, nil
	}
	pemData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read jwt public key: %w", err)
	}
	return api.ParseRSAPublicKey(pemData)
}

// newLogger constructs a *slog.Logger that writes JSON-structured log
// records to stderr at the requested minimum level.
func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}
