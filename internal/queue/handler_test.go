package queue

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ad-tracker/video-catalog-go/internal/service"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProcessor struct {
	mu     sync.Mutex
	calls  []service.TranscriptionTask
	finals []bool
	err    error
}

func (p *fakeProcessor) Process(_ context.Context, task service.TranscriptionTask, final bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, task)
	p.finals = append(p.finals, final)
	return p.err
}

func newTask(t *testing.T, jobID, videoID int64) *asynq.Task {
	t.Helper()
	payload, err := NewTranscriptionPayload(jobID, videoID, "ja-JP")
	require.NoError(t, err)
	data, err := payload.Marshal()
	require.NoError(t, err)
	return asynq.NewTask(TypeTranscription, data)
}

func TestTranscriptionHandler_ProcessTask(t *testing.T) {
	t.Run("passes the payload to the processor", func(t *testing.T) {
		proc := &fakeProcessor{}
		h := NewTranscriptionHandler(proc)

		err := h.ProcessTask(context.Background(), newTask(t, 9, 4))

		require.NoError(t, err)
		require.Len(t, proc.calls, 1)
		assert.Equal(t, service.TranscriptionTask{JobID: 9, VideoID: 4, LanguageCode: "ja-JP"}, proc.calls[0])
	})

	t.Run("malformed payload is not retried", func(t *testing.T) {
		proc := &fakeProcessor{}
		h := NewTranscriptionHandler(proc)

		err := h.ProcessTask(context.Background(), asynq.NewTask(TypeTranscription, []byte("{")))

		assert.ErrorIs(t, err, asynq.SkipRetry)
		assert.Empty(t, proc.calls)
	})

	t.Run("failure on the last attempt skips retry", func(t *testing.T) {
		proc := &fakeProcessor{err: errors.New("database unavailable")}
		h := NewTranscriptionHandler(proc)

		// outside a worker there is no retry budget, so the attempt is final
		err := h.ProcessTask(context.Background(), newTask(t, 9, 4))

		assert.ErrorIs(t, err, asynq.SkipRetry)
		assert.Contains(t, err.Error(), "database unavailable")
		assert.Equal(t, []bool{true}, proc.finals)
	})
}

func TestIsFinalAttemptWithoutWorkerContext(t *testing.T) {
	assert.True(t, isFinalAttempt(context.Background()))
}
