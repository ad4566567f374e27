// Package main is the entry point for the feed API server.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/onnwee/feedrank/internal/api"
	"github.com/onnwee/feedrank/internal/config"
	"github.com/onnwee/feedrank/internal/feed"
	"github.com/onnwee/feedrank/internal/health"
	"github.com/onnwee/feedrank/internal/item"
	"github.com/onnwee/feedrank/internal/jobs"
	"github.com/onnwee/feedrank/internal/middleware"
	"github.com/onnwee/feedrank/internal/ranking"
	"github.com/onnwee/feedrank/internal/tracing"
)

const (
	shutdownTimeout          = 10 * time.Second
	rateLimitCleanupInterval = time.Minute
)

// signalStore is what the feed and item handlers need from a store.
type signalStore interface {
	feed.SignalStore
	api.ItemSignals
}

// app holds the wired service and everything that must be released on exit.
type app struct {
	handler http.Handler
	store   signalStore
	warmer  *feed.Warmer
	closers []func(context.Context) error

	// background runs until ctx is canceled; started by start.
	background []func(ctx context.Context)
}

// newApp wires stores, ranking, caches and the HTTP surface from cfg. On
// error, anything already opened is released.
func newApp(cfg *config.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			_ = a.close(context.Background())
		}
	}()

	tp, err := tracing.NewProvider(tracing.Config{
		ServiceName:  tracing.DefaultServiceName,
		Enabled:      cfg.TracingEnabled,
		Environment:  cfg.Env,
		ExporterType: cfg.TracingExporter,
		OTLPEndpoint: cfg.TracingEndpoint,
		SamplingRate: cfg.TracingSamplingRate,
		InsecureMode: cfg.TracingInsecure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.closers = append(a.closers, tp.Shutdown)

	healthCfg := api.HealthHandlersConfig{}

	var store signalStore
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return db.Close() })
		store = item.NewPostgresItemRepository(db)
		healthCfg.DBChecker = health.NewDBChecker(db)
		logger.Info("using postgres signal store")
	} else {
		store = item.NewInMemoryItemRepository()
		logger.Warn("DATABASE_URL not set, using in-memory signal store")
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redis url: %w", err)
		}
		redisClient = redis.NewClient(opts)
		a.closers = append(a.closers, func(context.Context) error { return redisClient.Close() })
		healthCfg.RedisChecker = health.NewRedisChecker(redisClient)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	feedMetrics := feed.NewMetrics()
	jobMetrics := jobs.NewMetrics()
	httpMetrics := middleware.NewMetrics()
	for _, register := range []func(prometheus.Registerer) error{feedMetrics.Register, jobMetrics.Register, httpMetrics.Register} {
		if err := register(reg); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}

	weights := ranking.DefaultWeights()
	if cfg.RankingCalibrationPath != "" {
		weights, err = ranking.LoadCalibration(cfg.RankingCalibrationPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load ranking calibration: %w", err)
		}
		logger.Info("ranking calibration loaded", "path", cfg.RankingCalibrationPath)
	}

	guardCfg := feed.DefaultGuardConfig()
	guardCfg.Timeout = cfg.UpstreamTimeout
	guarded := feed.NewGuardedStore(store, guardCfg, feedMetrics)
	healthCfg.UpstreamChecker = health.NewBreakerChecker(guarded)

	var remote feed.SnapshotStore
	if redisClient != nil {
		remote = feed.NewRedisSnapshotStore(redisClient)
	}
	cache := feed.NewRankCache(
		feed.NewSelector(guarded, cfg.CandidateLimit, cfg.SnapshotBucket),
		remote,
		cfg.SnapshotRetention,
		feedMetrics,
	)
	codec := feed.NewCursorCodec(cfg.CursorSecret, cfg.CursorSecretPrevious, cfg.CursorTTL)
	pager := feed.NewPager(guarded, cache, codec, weights, feedMetrics)

	a.warmer = feed.NewWarmer(feed.WarmerConfig{
		Logger:     logger,
		JobMetrics: jobMetrics,
	}, cache)

	var limiter middleware.RateLimitStore
	if redisClient != nil {
		limiter = middleware.NewRedisRateLimitStore(redisClient).WithMetrics(httpMetrics)
	} else {
		memLimiter := middleware.NewInMemoryRateLimitStore()
		a.background = append(a.background, func(ctx context.Context) {
			jobs.RunEvery(ctx, rateLimitCleanupInterval, 0, jobs.JobTypeRateLimitCleanup, jobMetrics, func(context.Context) error {
				memLimiter.Cleanup()
				return nil
			})
		})
		limiter = memLimiter
	}

	var tracingService string
	if cfg.TracingEnabled {
		tracingService = tracing.DefaultServiceName
	}

	a.store = store
	a.handler = api.NewRouter(api.RouterConfig{
		Feed:               api.NewFeedHandlers(pager, cfg.DefaultPageSize),
		Items:              api.NewItemHandlers(store),
		Health:             api.NewHealthHandlers(healthCfg),
		Logger:             logger,
		HTTPMetrics:        httpMetrics,
		MetricsHandler:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		TracingServiceName: tracingService,
		RateLimitStore:     limiter,
		RateLimitConfig:    cfg.RateLimit(),
	})

	return a, nil
}

// start launches the warmer and background maintenance tied to ctx.
func (a *app) start(ctx context.Context) error {
	for _, fn := range a.background {
		go fn(ctx)
	}
	return a.warmer.Start(ctx)
}

// close stops background work and releases resources in reverse order.
func (a *app) close(ctx context.Context) error {
	if a.warmer != nil {
		a.warmer.Stop()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func main() {
	help := flag.Bool("help", false, "display help message")
	configPath := flag.String("config", "", "path to a YAML configuration file")
	flag.Parse()

	if *help {
		fmt.Println("Feedrank API Server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configPath)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintln(os.Stderr, "config error:", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)

	summary := cfg.LogSummary()
	attrs := make([]any, 0, 2*len(summary))
	for k, v := range summary {
		attrs = append(attrs, k, v)
	}
	logger.Info("configuration loaded", attrs...)

	a, err := newApp(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.start(ctx); err != nil {
		logger.Error("failed to start background jobs", "error", err)
		os.Exit(1)
	}

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Port),
		Handler:      a.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	exitCode := 0
	select {
	case <-ctx.Done():
		logger.Info("shutting down server...")
	case err := <-serverErr:
		logger.Error("server error", "error", err)
		exitCode = 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		exitCode = 1
	}
	if err := a.close(shutdownCtx); err != nil {
		logger.Error("failed to release resources", "error", err)
		exitCode = 1
	}

	logger.Info("server stopped")
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}
