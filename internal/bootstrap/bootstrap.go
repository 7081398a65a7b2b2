// Package bootstrap builds the long-lived dependencies shared by the API
// server and the transcription worker.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ad-tracker/video-catalog-go/internal/config"
	"github.com/ad-tracker/video-catalog-go/internal/db"
	"github.com/ad-tracker/video-catalog-go/internal/events"
	"github.com/ad-tracker/video-catalog-go/internal/retry"
	"github.com/ad-tracker/video-catalog-go/internal/service/transcribe"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sashabaranov/go-openai"
)

// Database opens the pool and, when enabled, applies pending migrations first.
func Database(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*pgxpool.Pool, error) {
	if cfg.AutoMigrate {
		result, err := db.MigrateUp(cfg.URL, cfg.MigrationsPath)
		if err != nil {
			return nil, err
		}
		logger.Info("database schema ready",
			"version", result.Version,
			"changed", result.Changed,
			"dirty", result.Dirty,
		)
	}

	pool, err := db.NewPool(ctx, &db.Config{
		URL:             cfg.URL,
		MaxConns:        int32(cfg.MaxConnections),
		MinConns:        int32(cfg.MinConnections),
		MaxConnLifetime: cfg.MaxLifetime,
		MaxConnIdleTime: cfg.MaxIdleTime,
	})
	if err != nil {
		return nil, err
	}

	logger.Info("database connection established", "max_conns", pool.Config().MaxConns)
	return pool, nil
}

// Retry converts the config section into the retry package's settings.
func Retry(cfg config.RetryConfig) retry.Config {
	return retry.Config{
		MaxAttempts:     cfg.MaxAttempts,
		InitialInterval: cfg.InitialInterval,
		MaxInterval:     cfg.MaxInterval,
	}
}

// Transcriber assembles the high-fidelity pipeline for the configured
// backend. The returned cleanup closes provider clients.
//
// When the backend cannot be initialised the pipeline is replaced by one
// that fails every run, so records end up failed with the reason instead of
// the process refusing to start.
func Transcriber(ctx context.Context, cfg config.TranscriptionConfig, logger *slog.Logger) (transcribe.Transcriber, func()) {
	var (
		recognizer transcribe.Recognizer
		store      transcribe.ObjectStore
		closers    []func() error
		maxInline  = cfg.MaxInlineBytes
	)

	cleanup := func() {
		for _, closeFn := range closers {
			if err := closeFn(); err != nil {
				logger.Warn("failed to close transcription client", "error", err)
			}
		}
	}

	switch cfg.Backend {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return unavailable(logger, errors.New("OPENAI_API_KEY is not set")), cleanup
		}
		recognizer = transcribe.NewWhisperRecognizer(openai.NewClient(cfg.OpenAIAPIKey), cfg.RecognitionTimeout)
		// Whisper takes the file itself, never a bucket reference
		maxInline = transcribe.WhisperMaxBytes

	default:
		speechClient, err := speech.NewClient(ctx)
		if err != nil {
			return unavailable(logger, fmt.Errorf("create speech client: %w", err)), cleanup
		}
		closers = append(closers, speechClient.Close)
		recognizer = transcribe.NewGoogleRecognizer(speechClient, cfg.RecognitionTimeout)

		if cfg.Bucket != "" {
			storageClient, err := storage.NewClient(ctx)
			if err != nil {
				cleanup()
				return unavailable(logger, fmt.Errorf("create storage client: %w", err)), func() {}
			}
			closers = append(closers, storageClient.Close)
			store = transcribe.NewGCSStore(storageClient, cfg.Bucket)
		}
	}

	logger.Info("transcription pipeline ready",
		"backend", cfg.Backend,
		"object_store", store != nil,
		"recognition_timeout", cfg.RecognitionTimeout,
	)

	pipeline := transcribe.NewPipeline(
		transcribe.NewYTDLPDownloader(cfg.DownloaderPath),
		transcribe.NewFFmpegTranscoder(cfg.TranscoderPath),
		store,
		recognizer,
		transcribe.Config{
			TempDir:        cfg.TempDir,
			SampleRate:     cfg.SampleRate,
			MaxInlineBytes: maxInline,
		},
		logger,
	)
	return pipeline, cleanup
}

type unavailableTranscriber struct {
	err error
}

func (u unavailableTranscriber) Run(context.Context, string, string) (string, error) {
	return "", fmt.Errorf("transcription backend unavailable: %w", u.err)
}

func unavailable(logger *slog.Logger, err error) transcribe.Transcriber {
	logger.Warn("high-quality transcription disabled", "error", err)
	return unavailableTranscriber{err: err}
}

// Publisher connects to RabbitMQ when enabled. Otherwise events are dropped.
// The second result is non-nil only for a live broker connection.
func Publisher(cfg config.RabbitMQConfig, logger *slog.Logger) (events.Publisher, *events.MessagePublisher) {
	if !cfg.Enabled {
		return events.NoopPublisher{}, nil
	}

	publisher, err := events.NewMessagePublisher(&cfg)
	if err != nil {
		logger.Warn("failed to connect to RabbitMQ, lifecycle events will not be published", "error", err)
		return events.NoopPublisher{}, nil
	}

	logger.Info("RabbitMQ publisher connected", "exchange", cfg.Exchange)
	return publisher, publisher
}
