package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"parkwatch/internal/cache"
	"parkwatch/internal/config"
	"parkwatch/internal/handler"
	"parkwatch/internal/hub"
	"parkwatch/internal/ingestor"
	"parkwatch/internal/middleware"
	"parkwatch/internal/store"
	"parkwatch/internal/transport/kafka"
	"parkwatch/pkg/gpsapi"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("starting parkwatch server",
		"log_level", cfg.LogLevel.String(),
		"http_addr", cfg.HTTPAddr,
		"zones", len(cfg.Zones.Zones),
		"remote_source", cfg.SourceURL != "",
		"kafka_enabled", cfg.KafkaEnabled,
		"redis_enabled", cfg.RedisEnabled,
	)

	positionStore := store.New(cfg.Retention)
	if cfg.StorePath != "" {
		n, err := positionStore.Load(cfg.StorePath)
		if err != nil {
			logger.Warn("failed to load position snapshot, starting empty", "path", cfg.StorePath, "error", err)
		} else {
			logger.Info("loaded position snapshot", "path", cfg.StorePath, "positions", n)
		}
	}

	// Locally ingested readings (POST, Kafka) land in positionStore and are
	// served alongside the remote set.
	var source ingestor.Source = positionStore
	if cfg.SourceURL != "" {
		source = ingestor.Merge(gpsapi.New(cfg.SourceURL, cfg.SourceTimeout, cfg.Location), positionStore)
	}

	wsHub := hub.NewHub(logger)
	ing := ingestor.New(source, positionStore, wsHub, cfg, logger)

	var backend cache.Backend
	var redisCache *cache.RedisCache
	if cfg.RedisEnabled {
		redisCache, err = cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, logger)
		if err != nil {
			logger.Warn("redis unavailable, hourly reports will not be cached", "error", err)
		} else {
			backend = redisCache
		}
	}
	reports := cache.NewReports(backend, ing, cfg.Zones, cfg.Location, cfg.CacheTTL, logger)

	opts := handler.Options{Catalog: cfg.Zones, Location: cfg.Location, LiveWindow: cfg.LiveWindow}
	httpHandler := handler.NewHTTPHandler(ing, positionStore, reports, opts, logger)
	wsHandler := handler.NewWSHandler(wsHub, ing, opts, logger)
	healthHandler := handler.NewHealthHandler(ing, positionStore)
	statsHandler := handler.NewStatsHandler(positionStore, ing, wsHub)

	mux := http.NewServeMux()
	handler.Routes(mux, httpHandler)
	mux.HandleFunc("/v1/ws", wsHandler.ServeWS)
	mux.HandleFunc("GET /v1/stats", statsHandler.GetStats)
	mux.HandleFunc("GET /healthz", healthHandler.Healthz)
	mux.HandleFunc("GET /readyz", healthHandler.Readyz)
	if cfg.MetricsEnabled {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	var root http.Handler = handler.InstrumentMiddleware(mux)
	root = handler.GzipMiddleware(root)
	root = handler.CORSMiddleware(root)
	root = handler.RequestIDMiddleware(root)
	if cfg.RateLimitPerWindow > 0 {
		limiter := middleware.NewRateLimiter(cfg.RateLimitPerWindow, cfg.RateLimitWindow, cfg.RateLimitWhitelist, logger)
		limiter.OnLimited(handler.ServerStats.IncRateLimited)
		defer limiter.Stop()
		root = limiter.Middleware(root)
	}

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      root,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go wsHub.Run(ctx)

	go ing.Run(ctx)

	if cfg.KafkaEnabled {
		reader := kafka.NewReader(kafka.Config{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
			GroupID: cfg.KafkaGroupID,
		})
		consumer := kafka.NewConsumer(reader, positionStore, cfg.Location, logger)
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("kafka consumer stopped", "error", err)
			}
		}()
	}

	if backend != nil {
		go func() {
			if cfg.CacheWarmOnStart {
				select {
				case <-ing.Ready():
				case <-ctx.Done():
					return
				}
				if err := reports.WarmAll(ctx); err != nil {
					logger.Error("report cache warm failed", "error", err)
				}
			}
			reports.ScheduleMidnightRefresh(ctx)
		}()
	}

	go func() {
		logger.Info("starting HTTP server", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case <-ctx.Done():
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	if cfg.StorePath != "" {
		if err := positionStore.Save(cfg.StorePath); err != nil {
			logger.Error("failed to save position snapshot", "path", cfg.StorePath, "error", err)
		} else {
			logger.Info("saved position snapshot", "path", cfg.StorePath, "positions", positionStore.Count())
		}
	}

	if redisCache != nil {
		redisCache.Close()
	}

	logger.Info("shutdown complete")
}
