package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ad-tracker/video-catalog-go/internal/bootstrap"
	"github.com/ad-tracker/video-catalog-go/internal/config"
	"github.com/ad-tracker/video-catalog-go/internal/db/repository"
	"github.com/ad-tracker/video-catalog-go/internal/queue"
	"github.com/ad-tracker/video-catalog-go/internal/service"
	zaplog "github.com/ad-tracker/video-catalog-go/pkg/logger"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to load .env file", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := zaplog.Init(cfg.Logging.Level, cfg.Logging.File); err != nil {
		logger.Error("failed to initialize zap logger", "error", err)
		os.Exit(1)
	}
	defer func() { _ = zaplog.Sync() }()

	if cfg.Redis.URL == "" {
		logger.Error("REDIS_URL is required for the transcription worker")
		os.Exit(1)
	}

	logger.Info("transcription worker starting",
		"concurrency", cfg.Transcription.Concurrency,
		"backend", cfg.Transcription.Backend,
		"max_retry", cfg.Transcription.MaxRetry,
	)

	ctx := context.Background()
	// the API server owns schema migrations
	dbCfg := cfg.Database
	dbCfg.AutoMigrate = false
	pool, err := bootstrap.Database(ctx, dbCfg, logger)
	if err != nil {
		logger.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	transcriber, cleanup := bootstrap.Transcriber(ctx, cfg.Transcription, logger)
	defer cleanup()

	publisher, _ := bootstrap.Publisher(cfg.RabbitMQ, logger)
	defer func() { _ = publisher.Close() }()

	transcriptions := service.NewTranscriptionService(
		repository.NewVideoRepository(pool),
		repository.NewTranscriptionJobRepository(pool),
		transcriber,
		publisher,
		logger,
	)

	// follow-up jobs for records re-armed while a job was finishing
	queueClient, err := queue.NewClient(cfg.Redis.URL, queue.ClientConfig{
		MaxRetry:           cfg.Transcription.MaxRetry,
		RecognitionTimeout: cfg.Transcription.RecognitionTimeout,
	})
	if err != nil {
		logger.Error("failed to create queue client", "error", err)
		os.Exit(1)
	}
	defer func() { _ = queueClient.Close() }()
	transcriptions.UseScheduler(queueClient)

	server, err := queue.NewServer(cfg.Redis.URL, cfg.Transcription.Concurrency, queue.NewTranscriptionHandler(transcriptions))
	if err != nil {
		logger.Error("failed to create queue server", "error", err)
		os.Exit(1)
	}

	if err := server.Start(); err != nil {
		logger.Error("failed to start queue server", "error", err)
		os.Exit(1)
	}
	logger.Info("transcription worker started")

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	sig := <-shutdown
	logger.Info("shutdown signal received", "signal", sig)
	server.Stop()
	logger.Info("transcription worker stopped gracefully")
}
