package main

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/healthcheck"
	"go.uber.org/zap"

	"gif-proxy/client"
	"gif-proxy/config"
	"gif-proxy/metrics"
	"gif-proxy/pool"
	"gif-proxy/routes"
	"gif-proxy/storage"
)

func main() {
	logger, _ := zap.NewProduction()
	defer func(logger *zap.Logger) {
		_ = logger.Sync()
	}(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	client.SetTimeout(cfg.FetchTimeout)

	cache, err := storage.NewResultCache(storage.CacheConfig{
		NumCounters: cfg.CacheNumCounters,
		MaxCost:     cfg.CacheMaxCost,
		BufferItems: cfg.CacheBufferItems,
		TTL:         time.Duration(cfg.CacheTTL) * time.Second,
	})
	if err != nil {
		logger.Fatal("failed to create result cache", zap.Error(err))
	}
	defer cache.Close()

	s3cache, err := storage.NewS3Cache(cfg.S3)
	if err != nil {
		logger.Fatal("failed to create s3 cache", zap.Error(err))
	}
	if s3cache.Enabled {
		logger.Info("s3 cache enabled", zap.String("endpoint", cfg.S3.Endpoint), zap.String("bucket", cfg.S3.Bucket))
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		Prefork:               cfg.Prefork,
		BodyLimit:             (cfg.MaxSourceSizeMB + 1) << 20,
		ErrorHandler:          routes.ErrorHandler(logger),
	})

	registry, constLabels := metrics.NewRegistry("gif-proxy")
	counters := metrics.InitializeMetrics(registry, constLabels)
	performance := metrics.InitializePerformanceMetrics(registry, constLabels)
	engineMetrics := metrics.InitializeEngineMetrics(registry, constLabels)

	if cfg.Metrics {
		metrics.RegisterAt(app, "/metrics", registry)
		app.Use(performance.Middleware)
	}

	app.Use(healthcheck.New())
	app.Use(compress.New())

	routes.RegisterImageRoutes(app, &routes.ImageRoutes{
		Logger:        logger,
		Config:        cfg,
		Cache:         cache,
		S3:            s3cache,
		Origins:       pool.NewOriginPolicy(cfg.AllowedOrigins, logger),
		Counters:      counters,
		Performance:   performance,
		EngineMetrics: engineMetrics,
	})

	logger.Info("server starting",
		zap.String("address", cfg.Address),
		zap.String("gifsicle", cfg.GifsiclePath),
		zap.String("gif2webp", cfg.Gif2WebpPath),
		zap.String("heif2jpeg", cfg.Heif2JpegPath))

	log.Fatal(app.Listen(cfg.Address))
}
