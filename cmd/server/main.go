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

	"github.com/ad-tracker/video-catalog-go/internal/bootstrap"
	"github.com/ad-tracker/video-catalog-go/internal/config"
	"github.com/ad-tracker/video-catalog-go/internal/db/repository"
	"github.com/ad-tracker/video-catalog-go/internal/handler"
	"github.com/ad-tracker/video-catalog-go/internal/queue"
	"github.com/ad-tracker/video-catalog-go/internal/service"
	"github.com/ad-tracker/video-catalog-go/internal/service/captions"
	"github.com/ad-tracker/video-catalog-go/internal/service/transcribe"
	"github.com/ad-tracker/video-catalog-go/internal/service/youtube"
	zaplog "github.com/ad-tracker/video-catalog-go/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to load .env file", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slogLevel(cfg.Logging.Level),
	}))
	slog.SetDefault(logger)

	if err := zaplog.Init(cfg.Logging.Level, cfg.Logging.File); err != nil {
		return fmt.Errorf("initialize zap logger: %w", err)
	}
	defer func() { _ = zaplog.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := bootstrap.Database(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer pool.Close()

	videoRepo := repository.NewVideoRepository(pool)
	jobRepo := repository.NewTranscriptionJobRepository(pool)
	retryCfg := bootstrap.Retry(cfg.Retry)

	ytClient, err := youtube.NewClient(ctx, cfg.YouTube.APIKey,
		youtube.WithRetry(retryCfg),
		youtube.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("initialize YouTube client: %w", err)
	}
	var metadata youtube.MetadataProvider = ytClient

	captionClient := captions.NewClient(
		captions.WithRetry(retryCfg),
		captions.WithLogger(logger),
	)

	publisher, broker := bootstrap.Publisher(cfg.RabbitMQ, logger)
	defer func() { _ = publisher.Close() }()

	var (
		scheduler   service.TaskScheduler
		transcriber transcribe.Transcriber
		shutdownFns []func(context.Context) error
	)

	if cfg.Redis.URL != "" {
		redisOpts, err := queue.RedisOptions(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("parse redis URL: %w", err)
		}
		rdb := redis.NewClient(redisOpts)
		defer func() { _ = rdb.Close() }()
		metadata = youtube.NewCachedClient(ytClient, rdb, cfg.YouTube.CacheTTL, logger)

		queueClient, err := queue.NewClient(cfg.Redis.URL, queue.ClientConfig{
			MaxRetry:           cfg.Transcription.MaxRetry,
			RecognitionTimeout: cfg.Transcription.RecognitionTimeout,
		})
		if err != nil {
			return fmt.Errorf("initialize queue client: %w", err)
		}
		defer func() { _ = queueClient.Close() }()
		scheduler = queueClient

		logger.Info("high-quality transcription jobs go to the queue; run cmd/worker to process them")
	} else {
		var cleanup func()
		transcriber, cleanup = bootstrap.Transcriber(ctx, cfg.Transcription, logger)
		defer cleanup()

		logger.Info("REDIS_URL not set, high-quality transcription runs in-process",
			"concurrency", cfg.Transcription.Concurrency,
		)
	}

	// the transcriber is only exercised by the in-process executor
	transcriptions := service.NewTranscriptionService(videoRepo, jobRepo, transcriber, publisher, logger)

	if scheduler == nil {
		executor := queue.NewLocalExecutor(transcriptions, cfg.Transcription.Concurrency)
		shutdownFns = append(shutdownFns, executor.Shutdown)
		scheduler = executor
	}
	transcriptions.UseScheduler(scheduler)

	videos := service.NewVideoService(service.VideoServiceConfig{
		Videos:          videoRepo,
		Metadata:        metadata,
		Captions:        captionClient,
		Transcriptions:  transcriptions,
		Publisher:       publisher,
		DefaultLanguage: cfg.Transcription.LanguageCode,
		Logger:          logger,
	})

	if cfg.Seed.Enabled {
		seeder := service.NewSeeder(videoRepo, videos, service.DefaultSamples, logger)
		if n, err := seeder.Seed(ctx); err != nil {
			logger.Warn("seeding sample videos failed", "error", err)
		} else if n > 0 {
			logger.Info("seeded sample videos", "count", n)
		}
	}

	if len(cfg.Auth.APIKeys) == 0 {
		logger.Info("no API keys configured, catalog endpoints are open")
	}

	var health handler.HealthReporter
	if broker != nil {
		health = broker
	}

	gin.SetMode(gin.ReleaseMode)
	router := handler.NewRouter(handler.RouterConfig{
		Prefix:    cfg.Server.APIPrefix,
		Videos:    handler.NewVideoHandler(videos, logger),
		Health:    handler.NewHealthHandler(pool, health),
		APIKeys:   cfg.Auth.APIKeys,
		AccessLog: zaplog.Named("http"),
		Logger:    logger,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			"port", cfg.Server.Port,
			"api_prefix", cfg.Server.APIPrefix,
		)
		serverErrors <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		if err := server.Close(); err != nil {
			logger.Error("failed to close server", "error", err)
		}
	}

	for _, fn := range shutdownFns {
		if err := fn(shutdownCtx); err != nil {
			logger.Warn("background work did not finish before shutdown", "error", err)
		}
	}

	logger.Info("server stopped gracefully")
	return nil
}

func slogLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}
