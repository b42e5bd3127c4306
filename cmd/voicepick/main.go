// Command voicepick runs the voice/typed category search engine.
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

	"golang.org/x/sync/errgroup"

	"github.com/okarinen/voicepick/internal/catalog"
	catalogpg "github.com/okarinen/voicepick/internal/catalog/postgres"
	"github.com/okarinen/voicepick/internal/config"
	"github.com/okarinen/voicepick/internal/match"
	"github.com/okarinen/voicepick/internal/observe"
	"github.com/okarinen/voicepick/internal/search"
	"github.com/okarinen/voicepick/internal/server"
	"github.com/okarinen/voicepick/pkg/recognizer"
	"github.com/okarinen/voicepick/pkg/recognizer/wsfeed"
)

// shutdownTimeout bounds graceful HTTP shutdown and telemetry flushing.
const shutdownTimeout = 15 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voicepick: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voicepick: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.Server.LogLevel.Level(),
	}))
	slog.SetDefault(logger)

	slog.Info("voicepick starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "voicepick",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := otelShutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Catalog ───────────────────────────────────────────────────────────────
	cat, err := loadCatalog(ctx, cfg)
	if err != nil {
		slog.Error("failed to load catalog", "err", err)
		return 1
	}
	slog.Info("catalog loaded", "source", cfg.Catalog.Source, "categories", cat.Len())

	// ── Engine wiring ─────────────────────────────────────────────────────────
	feed := wsfeed.New()
	session := recognizer.NewSession(feed)

	var matchOpts []match.Option
	if cfg.Search.PhoneticAssist {
		matchOpts = append(matchOpts, match.WithPhoneticAssist(cfg.Search.PhoneticThreshold))
		slog.Info("phonetic match assist enabled", "threshold", cfg.Search.PhoneticThreshold)
	}

	controller := search.NewController(search.Config{
		Catalog:            cat,
		Session:            session,
		Matcher:            match.New(matchOpts...),
		ErrorDisplayWindow: cfg.Search.ErrorDisplayWindow.Std(),
	})

	// File-sourced catalogs reload live on edit.
	if cfg.Catalog.Source == config.SourceFile {
		watcher, err := catalog.NewWatcher(cfg.Catalog.Path, func(_, next *catalog.Catalog) {
			controller.ReplaceCatalog(next)
		})
		if err != nil {
			slog.Error("failed to start catalog watcher", "err", err)
			return 1
		}
		defer watcher.Stop()
	}

	srv := server.New(server.Config{
		Controller: controller,
		Feed:       feed,
	})

	httpServer := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ── Run ───────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("server ready — press Ctrl+C to shut down")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, stopping…")

		controller.StopListening()

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// loadCatalog builds the catalog from the configured source.
func loadCatalog(ctx context.Context, cfg *config.Config) (*catalog.Catalog, error) {
	switch cfg.Catalog.Source {
	case config.SourcePostgres:
		return catalogpg.Load(ctx, cfg.Catalog.DSN, cfg.Catalog.Table)
	default:
		return catalog.Load(cfg.Catalog.Path)
	}
}
