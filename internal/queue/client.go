package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ad-tracker/video-catalog-go/internal/service"
	"github.com/ad-tracker/video-catalog-go/pkg/logger"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// timeoutSlack covers download and transcode on top of recognition.
const timeoutSlack = 15 * time.Minute

// ClientConfig controls how transcription tasks are enqueued.
type ClientConfig struct {
	MaxRetry           int
	RecognitionTimeout time.Duration
}

// Client wraps asynq client for enqueueing tasks
type Client struct {
	asynqClient *asynq.Client
	cfg         ClientConfig
	logger      *zap.Logger
}

// NewClient creates a new queue client
func NewClient(redisAddr string, cfg ClientConfig) (*Client, error) {
	// Parse Redis URL to extract connection details (host, password, db, TLS)
	redisOpt, err := ParseRedisURL(redisAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	if cfg.MaxRetry < 0 {
		cfg.MaxRetry = 0
	}

	return &Client{
		asynqClient: asynq.NewClient(redisOpt),
		cfg:         cfg,
		logger:      logger.Named("queue"),
	}, nil
}

// Close closes the client connection
func (c *Client) Close() error {
	return c.asynqClient.Close()
}

// ScheduleTranscription enqueues a high-fidelity transcription task and
// returns its task id.
func (c *Client) ScheduleTranscription(ctx context.Context, t service.TranscriptionTask) (string, error) {
	payload, err := NewTranscriptionPayload(t.JobID, t.VideoID, t.LanguageCode)
	if err != nil {
		return "", fmt.Errorf("failed to create task payload: %w", err)
	}

	payloadBytes, err := payload.Marshal()
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	task := asynq.NewTask(TypeTranscription, payloadBytes)

	info, err := c.asynqClient.EnqueueContext(ctx, task, c.options(t.JobID)...)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return "", service.ErrTranscriptionInFlight
		}
		return "", fmt.Errorf("failed to enqueue task: %w", err)
	}

	c.logger.Info("enqueued transcription",
		zap.Int64("job_id", t.JobID),
		zap.Int64("video_id", t.VideoID),
		zap.String("task_id", info.ID),
		zap.String("queue", info.Queue),
	)

	return info.ID, nil
}

func (c *Client) options(jobID int64) []asynq.Option {
	return []asynq.Option{
		asynq.TaskID(TaskID(jobID)),
		asynq.MaxRetry(c.cfg.MaxRetry),
		asynq.Timeout(c.cfg.RecognitionTimeout + timeoutSlack),
		asynq.Queue(QueueTranscription),
		// keep finished tasks briefly so operators can inspect them
		asynq.Retention(24 * time.Hour),
	}
}
