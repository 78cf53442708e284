// Command ingestd is the stage-side device ingestion daemon: it captures
// the actor microphone and physical control buttons, enriches and
// prioritises the streams, and publishes them over NATS.
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
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stagelink/ingestd/internal/app"
	"github.com/stagelink/ingestd/internal/config"
	"github.com/stagelink/ingestd/internal/health"
	"github.com/stagelink/ingestd/internal/observe"
)

// version is stamped by the build; "dev" for local builds.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	// Config problems must surface before any device is opened.
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "ingestd: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "ingestd: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("ingestd starting",
		"version", version,
		"config", *configPath,
		"show", cfg.Show.Name,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Observability ─────────────────────────────────────────────────────────
	provider, err := observe.InitProvider("ingestd", version)
	if err != nil {
		slog.Error("failed to initialise observability", "err", err)
		return 1
	}

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Application ───────────────────────────────────────────────────────────
	application, err := app.New(cfg)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Ops HTTP server ───────────────────────────────────────────────────────
	var opsServer *http.Server
	if cfg.Server.OpsAddr != "" {
		opsServer = newOpsServer(cfg.Server.OpsAddr, application)
		go func() {
			slog.Info("ops server listening", "addr", cfg.Server.OpsAddr)
			if err := opsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("ops server error", "err", err)
			}
		}()
	}

	// ── Config change advisory ────────────────────────────────────────────────
	// Device and transport settings are bound at startup, so a change on
	// disk cannot be applied live; the watcher flags the needed restart.
	watcher, err := config.NewWatcher(*configPath, func(old, updated *config.Config) {
		report := config.Diff(old, updated)
		if report.RestartRequired() {
			slog.Warn("config changed on disk, restart required to apply",
				"sections", strings.Join(report.ChangedSections, ", "))
		}
	})
	if err != nil {
		slog.Warn("config watcher unavailable", "err", err)
	} else {
		defer watcher.Stop()
	}

	slog.Info("pipeline ready — press Ctrl+C to shut down")

	runErr := application.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	if opsServer != nil {
		if err := opsServer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("ops server shutdown error", "err", err)
		}
	}
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if err := provider.Shutdown(shutdownCtx); err != nil {
		slog.Warn("observability shutdown error", "err", err)
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// newOpsServer builds the monitoring endpoint: Prometheus metrics plus
// the liveness and readiness probes.
func newOpsServer(addr string, application *app.App) *http.Server {
	metrics := observe.DefaultMetrics()

	checkers := []health.Checker{health.DevicesChecker(application.Registry())}
	if pinger, ok := application.Transport().(health.Pinger); ok {
		checkers = append(checkers, health.NATSChecker(pinger))
	}

	mux := http.NewServeMux()
	health.New(checkers...).Register(mux)
	mux.Handle("/metrics", promhttp.Handler())

	return &http.Server{
		Addr:         addr,
		Handler:      observe.Middleware(metrics)(mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
