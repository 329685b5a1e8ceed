package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/revittco/gatewayobs/internal/api"
	"github.com/revittco/gatewayobs/internal/cache"
	"github.com/revittco/gatewayobs/internal/config"
	"github.com/revittco/gatewayobs/internal/report"
	"github.com/revittco/gatewayobs/internal/secrets"
	"github.com/revittco/gatewayobs/internal/store/sqlite"
	"github.com/revittco/gatewayobs/internal/telemetry"
	"golang.org/x/sync/errgroup"
)

var version = "dev"

// pruneInterval is how often expired traces are deleted.
const pruneInterval = time.Hour

func cmdServe(args []string) error {
	ctx, cancel := signal.NotifyContext(
		context.Background(), syscall.SIGINT, syscall.SIGTERM,
	)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyFlags(cfg, args)

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	fileCfg, err := config.LoadOptional(cfg.ConfigFile)
	if err != nil {
		return err
	}
	enc := loadEncryptor(cfg)

	cacheCfg, err := cfg.cacheConfig(fileCfg, enc)
	if err != nil {
		return err
	}
	telCfg, err := cfg.telemetryConfig(fileCfg)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	spanBus := telemetry.NewBus()
	pipeline := telemetry.NewPipeline(telCfg,
		telemetry.WithLogger(logger),
		telemetry.WithMetrics(telemetry.NewMetrics(reg)),
		telemetry.WithBus(spanBus),
	)

	db, err := sqlite.New(ctx, cfg.DBDSN, sqlite.WithInstrumentor(pipeline.Instrumentor()))
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	mc := cache.NewFromConfig(ctx, cacheCfg,
		cache.WithLogger(logger),
		cache.WithMetrics(cache.NewMetrics(reg)),
	)
	defer func() { _ = mc.Close() }()

	reporter := report.New(mc, db, 0)
	router := api.NewRouter(api.RouterDeps{
		Store:    db,
		Cache:    mc,
		Reporter: reporter,
		Pipeline: pipeline,
		SpanBus:  spanBus,
		Gatherer: reg,
		Version:  version,
	})

	g, gctx := errgroup.WithContext(ctx)

	// HTTP server
	g.Go(func() error {
		srv := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			IdleTimeout:       60 * time.Second,
			MaxHeaderBytes:    1 << 20, // 1 MiB
		}
		errCh := make(chan error, 1)
		go func() {
			slog.Info("http server listening", "addr", cfg.HTTPAddr, "url", listenURL(cfg.HTTPAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()
		select {
		case <-gctx.Done():
			slog.Info("shutting down http server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		case err := <-errCh:
			return err
		}
	})

	// Span writer. It outlives gctx so accepted spans can be flushed.
	g.Go(func() error {
		if pipeline.Enable(context.WithoutCancel(gctx), db) == nil {
			slog.Info("query instrumentation disabled")
		}
		<-gctx.Done()

		drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := pipeline.Flush(drainCtx); err != nil {
			slog.Warn("span queue not drained", "error", err,
				"pending", pipeline.Queue().Stats().Pending)
		}
		return pipeline.Shutdown(drainCtx)
	})

	if retention := fileCfg.Retention(); retention > 0 {
		g.Go(func() error {
			pruneLoop(gctx, db, reporter, retention)
			return nil
		})
	}

	return g.Wait()
}

// applyFlags parses --addr=X and --config=X flags from the args list.
func applyFlags(cfg *Config, args []string) {
	for _, arg := range args {
		if v, ok := strings.CutPrefix(arg, "--addr="); ok && v != "" {
			cfg.HTTPAddr = v
		}
		if v, ok := strings.CutPrefix(arg, "--config="); ok && v != "" {
			cfg.ConfigFile = v
		}
	}
}

// loadEncryptor opens the age identity used to decrypt config values,
// creating it next to the database when no key is configured.
func loadEncryptor(cfg *Config) *secrets.AgeEncryptor {
	path := cfg.keyPath()
	created, err := secrets.EnsureKeyFile(path)
	if err != nil {
		slog.Warn("failed to create age key file, encrypted config values unavailable",
			"path", path, "error", err)
		return nil
	}
	if created {
		slog.Info("generated age key", "path", path)
	}
	enc, err := secrets.NewAgeEncryptor(path)
	if err != nil {
		slog.Warn("failed to load age key, encrypted config values unavailable",
			"path", path, "error", err)
		return nil
	}
	return enc
}

// pruneLoop deletes traces older than retention every pruneInterval and
// drops the cached aggregates that covered them.
func pruneLoop(ctx context.Context, db *sqlite.DB, reporter *report.Reporter, retention time.Duration) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		n, err := db.PruneTraces(ctx, time.Now().UTC().Add(-retention))
		switch {
		case err != nil && ctx.Err() == nil:
			slog.Warn("prune traces failed", "error", err)
		case n > 0:
			slog.Info("pruned traces", "count", n, "retention", retention)
			reporter.InvalidateSummary(ctx)
			reporter.InvalidateTop(ctx)
			reporter.InvalidateRoutes(ctx)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
