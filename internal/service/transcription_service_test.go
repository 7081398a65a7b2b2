package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ad-tracker/video-catalog-go/internal/db/models"
	"github.com/ad-tracker/video-catalog-go/internal/events"
	"github.com/ad-tracker/video-catalog-go/internal/service/transcribe"
)

// processingVideo stores a record in processing state with a claimed job.
func processingVideo(t *testing.T, h *harness, url string) (*models.Video, TranscriptionTask) {
	t.Helper()
	ctx := context.Background()

	video := models.NewVideo(url, "title", "channel", nil, strPtr("user memo"), models.StatusProcessing)
	require.NoError(t, h.videos.Create(ctx, video))

	job, err := h.tx.Claim(ctx, video.ID, "ja-JP")
	require.NoError(t, err)
	return video, TranscriptionTask{JobID: job.ID, VideoID: video.ID, LanguageCode: "ja-JP"}
}

func TestTranscriptionService_Claim(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	_, err := h.tx.Claim(ctx, 1, "ja-JP")
	require.NoError(t, err)

	_, err = h.tx.Claim(ctx, 1, "ja-JP")
	assert.ErrorIs(t, err, ErrTranscriptionInFlight)

	_, err = h.tx.Claim(ctx, 2, "ja-JP")
	assert.NoError(t, err, "markers are per video")
}

func TestTranscriptionService_Process_StageFailures(t *testing.T) {
	stages := []string{
		transcribe.StageDownload,
		transcribe.StageTranscode,
		transcribe.StageUpload,
		transcribe.StageRecognize,
	}

	for _, stage := range stages {
		t.Run(stage, func(t *testing.T) {
			h := newHarness()
			ctx := context.Background()
			video, task := processingVideo(t, h, rickURL)

			h.transcriber.On("Run", mock.Anything, rickID, "ja-JP").
				Return("", &transcribe.StageError{Stage: stage, Err: errors.New("exit status 1")})

			require.NoError(t, h.tx.Process(ctx, task, false))

			stored, _ := h.videos.GetByID(ctx, video.ID)
			assert.Equal(t, models.StatusFailed, stored.Status)
			assert.Nil(t, stored.Transcript, "never a partial transcript")
			require.NotNil(t, stored.LastError)
			assert.Contains(t, *stored.LastError, stage)
			assert.Equal(t, "user memo", *stored.Memo, "memo is not overwritten")

			job, _ := h.jobs.GetByID(ctx, task.JobID)
			assert.Equal(t, models.JobStatusFailed, job.Status)
			assert.Contains(t, h.publisher.types(), events.TranscriptFailed)
		})
	}
}

func TestTranscriptionService_Process_UnparseableStoredURL(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	video, task := processingVideo(t, h, "https://example.com/video")

	require.NoError(t, h.tx.Process(ctx, task, false))

	stored, _ := h.videos.GetByID(ctx, video.ID)
	assert.Equal(t, models.StatusFailed, stored.Status)
	require.NotNil(t, stored.LastError)
	assert.Contains(t, *stored.LastError, "could not extract video id")
	h.transcriber.AssertNotCalled(t, "Run", mock.Anything, mock.Anything, mock.Anything)
}

func TestTranscriptionService_Process_DiscardsStaleResult(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	video, task := processingVideo(t, h, rickURL)

	h.transcriber.On("Run", mock.Anything, rickID, "ja-JP").
		Run(func(mock.Arguments) { h.videos.setURL(video.ID, otherURL) }).
		Return("stale transcript", nil)
	h.transcriber.On("Run", mock.Anything, otherID, "ja-JP").Return("fresh transcript", nil)

	require.NoError(t, h.tx.Process(ctx, task, false))

	stored, _ := h.videos.GetByID(ctx, video.ID)
	assert.Equal(t, models.StatusCompleted, stored.Status)
	assert.Equal(t, "fresh transcript", *stored.Transcript)
	h.transcriber.AssertNumberOfCalls(t, "Run", 2)
}

func TestTranscriptionService_Process_SupersededByUpdate(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	video, task := processingVideo(t, h, rickURL)

	h.videos.setStatus(video.ID, models.StatusCompleted)

	require.NoError(t, h.tx.Process(ctx, task, false))

	h.transcriber.AssertNotCalled(t, "Run", mock.Anything, mock.Anything, mock.Anything)
	job, _ := h.jobs.GetByID(ctx, task.JobID)
	assert.Equal(t, models.JobStatusFailed, job.Status)
}

func TestTranscriptionService_Process_VideoDeleted(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	video, task := processingVideo(t, h, rickURL)
	require.NoError(t, h.videos.Delete(ctx, video.ID))

	assert.NoError(t, h.tx.Process(ctx, task, false))
	h.transcriber.AssertNotCalled(t, "Run", mock.Anything, mock.Anything, mock.Anything)
}

func TestTranscriptionService_Process_FinishedJobIsSkipped(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	_, task := processingVideo(t, h, rickURL)
	require.NoError(t, h.jobs.MarkCompleted(ctx, task.JobID))

	assert.NoError(t, h.tx.Process(ctx, task, false))
	h.transcriber.AssertNotCalled(t, "Run", mock.Anything, mock.Anything, mock.Anything)
}

func TestTranscriptionService_Process_InfrastructureError(t *testing.T) {
	ctx := context.Background()

	t.Run("retryable attempt leaves state for the next try", func(t *testing.T) {
		h := newHarness()
		video, task := processingVideo(t, h, rickURL)
		h.videos.getErr = errors.New("connection refused")

		err := h.tx.Process(ctx, task, false)
		require.Error(t, err)

		h.videos.getErr = nil
		stored, _ := h.videos.GetByID(ctx, video.ID)
		assert.Equal(t, models.StatusProcessing, stored.Status)
		job, _ := h.jobs.GetByID(ctx, task.JobID)
		assert.Equal(t, models.JobStatusProcessing, job.Status)
	})

	t.Run("final attempt releases the marker", func(t *testing.T) {
		h := newHarness()
		_, task := processingVideo(t, h, rickURL)
		h.videos.getErr = errors.New("connection refused")

		err := h.tx.Process(ctx, task, true)
		require.Error(t, err)

		job, _ := h.jobs.GetByID(ctx, task.JobID)
		assert.Equal(t, models.JobStatusFailed, job.Status)
	})
}

func TestTranscriptionService_Process_MalformedVideoID(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	video, task := processingVideo(t, h, "https://youtu.be/short;rm")

	require.NoError(t, h.tx.Process(ctx, task, false))

	stored, _ := h.videos.GetByID(ctx, video.ID)
	assert.Equal(t, models.StatusFailed, stored.Status)
	require.NotNil(t, stored.LastError)
	assert.Contains(t, *stored.LastError, "malformed video id")
	h.transcriber.AssertNotCalled(t, "Run", mock.Anything, mock.Anything, mock.Anything)
}

func TestTranscriptionService_DispatchWithoutScheduler(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	tx := NewTranscriptionService(h.videos, h.jobs, h.transcriber, h.publisher, nil)

	video := models.NewVideo(rickURL, "title", "channel", nil, nil, models.StatusProcessing)
	require.NoError(t, h.videos.Create(ctx, video))

	got := tx.Start(ctx, video, "ja-JP")

	assert.Equal(t, models.StatusFailed, got.Status)
	_, err := h.jobs.GetActiveByVideoID(ctx, video.ID)
	assert.Error(t, err, "marker must be released")
}
