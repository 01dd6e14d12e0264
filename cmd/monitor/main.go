package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/hydro-monitor-service/internal/adapter/ana"
	"github.com/couchcryptid/hydro-monitor-service/internal/adapter/firms"
	httpadapter "github.com/couchcryptid/hydro-monitor-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/hydro-monitor-service/internal/adapter/kafka"
	"github.com/couchcryptid/hydro-monitor-service/internal/adapter/mapbox"
	"github.com/couchcryptid/hydro-monitor-service/internal/adapter/sqlite"
	"github.com/couchcryptid/hydro-monitor-service/internal/config"
	"github.com/couchcryptid/hydro-monitor-service/internal/domain"
	"github.com/couchcryptid/hydro-monitor-service/internal/history"
	"github.com/couchcryptid/hydro-monitor-service/internal/hotspot"
	"github.com/couchcryptid/hydro-monitor-service/internal/observability"
	"github.com/couchcryptid/hydro-monitor-service/internal/pipeline"
	"github.com/couchcryptid/hydro-monitor-service/internal/station"
	"github.com/couchcryptid/hydro-monitor-service/internal/statistics"
)

type alwaysReady struct{}

func (alwaysReady) CheckReadiness(context.Context) error { return nil }

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		slog.Error("failed to load .env", "error", err)
		os.Exit(1)
	}
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Hydrology API.
	tokens := ana.NewTokenCache(cfg.ANABaseURL, ana.Credentials{Identifier: cfg.ANAIdentifier, Password: cfg.ANAPassword}, cfg.ANAAuthTimeout, clock, logger, metrics)
	if err := tokens.Init(ctx); err != nil {
		logger.Error("hydrology authentication misconfigured", "error", err)
		os.Exit(1)
	}
	anaClient := ana.NewClient(cfg.ANABaseURL, tokens, cfg.ANAHistoryTimeout)

	dedup := observability.NewDedupLogger(logger, cfg.LogDedupSize)
	fetcher := history.NewFetcher(anaClient, cfg.TZOffsetMinutes, clock, dedup, logger, metrics)
	stations := station.NewService(
		station.NewInventory(cfg.StationInventoryPath),
		station.NewLists(cfg.DataDir),
		fetcher,
		station.Config{BatchSize: cfg.StationBatchSize, MaxConcurrentBatches: cfg.StationMaxConcurrentBatches},
		logger,
		metrics,
	)
	aggregator := statistics.NewAggregator(stations, clock, fetcher.Location(), cfg.DashboardSummaryEnabled, logger)

	deps := httpadapter.Deps{
		Stations: stations,
		Reports:  aggregator,
		Tokens:   tokens,
		Ready:    alwaysReady{},
		Today:    fetcher.Today,
	}

	// Hotspots (feature-flagged via FIRMS_MAP_KEY).
	var cache *sqlite.Cache
	if cfg.FIRMSEnabled() {
		cache, err = sqlite.Open(cfg.CacheDBPath, clock)
		if err != nil {
			logger.Error("failed to open cache database", "path", cfg.CacheDBPath, "error", err)
			os.Exit(1)
		}
		if n, err := cache.Purge(ctx); err != nil {
			logger.Warn("cache purge failed", "error", err)
		} else if n > 0 {
			logger.Info("expired cache entries purged", "count", n)
		}

		source := firms.NewClient(firms.Config{
			BaseURL:  cfg.FIRMSBaseURL,
			MapKey:   cfg.FIRMSMapKey,
			Source:   cfg.FIRMSSource,
			Timeout:  cfg.FIRMSTimeout,
			CacheTTL: cfg.FIRMSCacheTTL,
		}, cache, metrics, logger)

		// Geocoding is feature-flagged via MAPBOX_ENABLED / MAPBOX_TOKEN.
		var geocoder domain.Geocoder
		if cfg.MapboxEnabled {
			cached, err := mapbox.NewCachedGeocoder(mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, metrics, logger), cfg.MapboxCacheSize, metrics)
			if err != nil {
				logger.Error("failed to create geocoder", "error", err)
				os.Exit(1)
			}
			geocoder = cached
			metrics.GeocodeEnabled.Set(1)
			logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
		} else {
			logger.Info("mapbox geocoding disabled")
		}

		deps.Hotspots = hotspot.NewService(source, geocoder, logger)
		logger.Info("firms hotspots enabled", "source", cfg.FIRMSSource)
	} else {
		logger.Info("firms hotspots disabled")
	}

	// Background refresher (enabled via REFRESH_STATES).
	var (
		refresher *pipeline.Refresher
		writer    *kafkaadapter.Writer
	)
	if len(cfg.RefreshStates) > 0 {
		var loader pipeline.ReportLoader = pipeline.LogLoader{Logger: logger}
		if cfg.KafkaEnabled() {
			writer = kafkaadapter.NewWriter(cfg.KafkaBrokers, cfg.KafkaReportTopic, logger)
			loader = writer
		}
		refresher = pipeline.New(aggregator, loader, cfg.RefreshStates, cfg.RefreshDays, cfg.RefreshInterval, clock, logger, metrics)
		deps.Ready = refresher
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, deps, httpadapter.Limits{Rate: cfg.RateLimit, Burst: cfg.RateLimitBurst}, logger, metrics)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start refresher.
	if refresher != nil {
		go func() {
			if err := refresher.Run(ctx); err != nil {
				logger.Error("refresher error", "error", err)
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}
	if cache != nil {
		if err := cache.Close(); err != nil {
			logger.Error("cache close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
