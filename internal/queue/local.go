package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ad-tracker/video-catalog-go/internal/service"
	"github.com/ad-tracker/video-catalog-go/pkg/logger"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ErrExecutorClosed is returned when scheduling after Shutdown.
var ErrExecutorClosed = errors.New("local executor is shut down")

// LocalExecutor runs transcription jobs in-process when no Redis is
// configured. Each job gets a single attempt.
type LocalExecutor struct {
	processor Processor
	sem       chan struct{}
	group     singleflight.Group
	logger    *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewLocalExecutor creates an executor running at most concurrency jobs at once.
func NewLocalExecutor(processor Processor, concurrency int) *LocalExecutor {
	if concurrency <= 0 {
		concurrency = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &LocalExecutor{
		processor: processor,
		sem:       make(chan struct{}, concurrency),
		logger:    logger.Named("local-worker"),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// ScheduleTranscription starts the job in the background and returns at once.
// Scheduling the same job twice while it is queued or running is coalesced.
func (e *LocalExecutor) ScheduleTranscription(_ context.Context, task service.TranscriptionTask) (string, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return "", ErrExecutorClosed
	}
	e.wg.Add(1)
	e.mu.Unlock()

	id := fmt.Sprintf("local:%d", task.JobID)

	go func() {
		defer e.wg.Done()

		res := <-e.group.DoChan(id, func() (any, error) {
			return nil, e.run(task)
		})
		if res.Shared {
			e.logger.Debug("coalesced duplicate schedule", zap.String("task_id", id))
		}
		if res.Err != nil {
			e.logger.Warn("transcription job failed",
				zap.String("task_id", id),
				zap.Int64("video_id", task.VideoID),
				zap.Error(res.Err),
			)
		}
	}()

	return id, nil
}

func (e *LocalExecutor) run(task service.TranscriptionTask) error {
	select {
	case e.sem <- struct{}{}:
		defer func() { <-e.sem }()
	case <-e.ctx.Done():
		// still hand the job over so the processor records it as abandoned
	}
	return e.processor.Process(e.ctx, task, true)
}

// Shutdown stops accepting work, cancels running jobs and waits for them to
// record their outcome or for ctx to expire.
func (e *LocalExecutor) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	e.cancel()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
