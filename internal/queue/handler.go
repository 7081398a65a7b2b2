package queue

import (
	"context"
	"fmt"

	"github.com/ad-tracker/video-catalog-go/internal/service"
	"github.com/ad-tracker/video-catalog-go/pkg/logger"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Processor runs one transcription job. A returned error is retried by the
// queue unless final was set.
type Processor interface {
	Process(ctx context.Context, task service.TranscriptionTask, final bool) error
}

// TranscriptionHandler handles transcription tasks
type TranscriptionHandler struct {
	processor Processor
	logger    *zap.Logger
}

// NewTranscriptionHandler creates a new transcription task handler
func NewTranscriptionHandler(processor Processor) *TranscriptionHandler {
	return &TranscriptionHandler{
		processor: processor,
		logger:    logger.Named("worker"),
	}
}

// ProcessTask implements asynq.HandlerFunc
func (h *TranscriptionHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	payload, err := UnmarshalTranscriptionPayload(task.Payload())
	if err != nil {
		// a malformed payload never gets better
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	final := isFinalAttempt(ctx)
	h.logger.Info("processing transcription",
		zap.Int64("job_id", payload.JobID),
		zap.Int64("video_id", payload.VideoID),
		zap.String("task_id", taskID(task)),
		zap.Bool("final_attempt", final),
	)

	err = h.processor.Process(ctx, service.TranscriptionTask{
		JobID:        payload.JobID,
		VideoID:      payload.VideoID,
		LanguageCode: payload.LanguageCode,
	}, final)
	if err != nil {
		h.logger.Warn("transcription attempt failed",
			zap.Int64("job_id", payload.JobID),
			zap.Bool("final_attempt", final),
			zap.Error(err),
		)
		if final {
			return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
		}
		return err
	}

	return nil
}

// HandleTranscriptionTask returns an asynq.HandlerFunc for transcription
func (h *TranscriptionHandler) HandleTranscriptionTask() asynq.HandlerFunc {
	return h.ProcessTask
}

func taskID(task *asynq.Task) string {
	if rw := task.ResultWriter(); rw != nil {
		return rw.TaskID()
	}
	return ""
}

// isFinalAttempt reports whether the queue will not retry this task again.
// Outside a worker context every attempt is final.
func isFinalAttempt(ctx context.Context) bool {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return true
	}
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	if !ok {
		return true
	}
	return retried >= maxRetry
}
