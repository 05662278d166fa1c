package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/miradorstack/mirador-forecast/internal/alerts"
	"github.com/miradorstack/mirador-forecast/internal/api"
	"github.com/miradorstack/mirador-forecast/internal/cache"
	"github.com/miradorstack/mirador-forecast/internal/config"
	"github.com/miradorstack/mirador-forecast/internal/engine"
	"github.com/miradorstack/mirador-forecast/internal/features"
	"github.com/miradorstack/mirador-forecast/internal/metrics"
	"github.com/miradorstack/mirador-forecast/internal/patterns"
	"github.com/miradorstack/mirador-forecast/internal/predictor"
	"github.com/miradorstack/mirador-forecast/internal/repo"
	"github.com/miradorstack/mirador-forecast/internal/risk"
	"github.com/miradorstack/mirador-forecast/internal/services"
	"github.com/miradorstack/mirador-forecast/internal/source"
	"github.com/miradorstack/mirador-forecast/internal/utils"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting mirador-forecast", slog.String("address", cfg.Server.Address))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	cacheProvider, err := cache.New(cfg.CacheProviderConfig())
	if err != nil {
		logger.Warn("cache backend unavailable, using in-process cache", slog.String("backend", cfg.Cache.Backend), slog.Any("error", err))
		cacheProvider = cache.NewMemoryProvider(time.Minute)
	}
	defer cacheProvider.Close()

	var metricSource source.Source
	if cfg.Feed.BaseURL != "" {
		metricSource = source.NewHTTPSource(source.HTTPConfig{
			BaseURL:    cfg.Feed.BaseURL,
			SeriesPath: cfg.Feed.SeriesPath,
			Timeout:    cfg.Feed.Timeout,
			CacheTTL:   cfg.Cache.FeedTTL,
		}, cacheProvider, logger)
		logger.Info("using metric feed", slog.String("base_url", cfg.Feed.BaseURL))
	} else {
		metricSource = source.NewSimulatorSource(source.SimulatorConfig{Seed: cfg.Simulator.Seed, Degraded: cfg.Simulator.Degraded})
		logger.Info("using simulated metrics", slog.Int64("seed", cfg.Simulator.Seed))
	}

	thresholds, err := cfg.RiskThresholds()
	if err != nil {
		logger.Error("invalid risk thresholds", slog.Any("error", err))
		os.Exit(1)
	}

	ruleEngine, err := engine.NewRuleEngine(cfg.Rules.Path, logger)
	if err != nil {
		logger.Error("failed to load rule pack", slog.Any("error", err))
		os.Exit(1)
	}

	reports := patterns.NewReportLog(cfg.Fleet.ReportLimit)
	patternStore := patterns.Chain{patterns.NewCacheStore(cacheProvider, cfg.Cache.PatternsTTL)}
	if cfg.Archive.Endpoint != "" {
		patternStore = append(patternStore, repo.NewPatternArchive(cfg.Archive.Endpoint, cfg.Archive.APIKey, cfg.Archive.Timeout, cacheProvider, cfg.Cache.PatternsTTL))
		logger.Info("archiving patterns", slog.String("endpoint", cfg.Archive.Endpoint))
	}

	pipeline := engine.NewPipeline(
		logger,
		metricSource,
		features.NewEngineer(cfg.Features, logger),
		predictor.New(cfg.Predictor.Config, cfg.Predictor.Capabilities, logger),
		risk.New(thresholds),
		ruleEngine,
		alerts.NewBook(cfg.BookConfig(), cacheProvider, logger),
		reports,
		engine.Options{HistoryHours: cfg.Fleet.HistoryHours, LookaheadHours: cfg.Training.LookaheadHours},
	)

	forecastService := services.NewForecastService(logger, pipeline, patterns.NewMiner(logger, patternStore), patternStore, cacheProvider, services.Options{
		FleetDeployments: cfg.Fleet.Deployments,
		FleetConcurrency: cfg.Fleet.Concurrency,
		TrainingHours:    cfg.Training.HistoryHours,
		ModelTTL:         cfg.Cache.ModelTTL,
		RequestTimeout:   cfg.Server.RequestTimeout,
	})

	server, err := api.NewServer(cfg.Server, logger, forecastService)
	if err != nil {
		logger.Error("failed to create gRPC server", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if installed, err := forecastService.LoadSharedModel(ctx); err != nil {
		logger.Warn("shared model unavailable", slog.Any("error", err))
	} else if installed {
		logger.Info("installed shared model")
	}
	if cfg.Training.OnStart && len(cfg.Fleet.Deployments) > 0 {
		go func() {
			if _, err := forecastService.TrainDeployment(ctx, cfg.Fleet.Deployments[0], cfg.Training.HistoryHours); err != nil {
				logger.Warn("startup training failed", slog.Any("error", err))
			}
		}()
	}

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	if len(cfg.Fleet.Deployments) > 0 && cfg.Fleet.Interval > 0 {
		go runFleetLoop(ctx, logger, forecastService, cfg.Fleet.Interval)
	}

	go func() {
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("gRPC server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	server.Shutdown(shutdownCtx)

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	// Give remaining goroutines time to finish logging
	time.Sleep(100 * time.Millisecond)
	logger.Info("mirador-forecast stopped")
}

// runFleetLoop evaluates the configured fleet every interval, picking up models
// published by other replicas before each run.
func runFleetLoop(ctx context.Context, logger *slog.Logger, service *services.ForecastService, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := service.LoadSharedModel(ctx); err != nil {
			logger.Warn("shared model refresh failed", slog.Any("error", err))
		}
		service.RunFleet(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
