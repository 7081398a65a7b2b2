package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ad-tracker/video-catalog-go/internal/db"
	"github.com/ad-tracker/video-catalog-go/internal/db/models"
	"github.com/ad-tracker/video-catalog-go/internal/db/repository"
	"github.com/ad-tracker/video-catalog-go/internal/events"
	"github.com/ad-tracker/video-catalog-go/internal/metrics"
	"github.com/ad-tracker/video-catalog-go/internal/service/transcribe"
	"github.com/ad-tracker/video-catalog-go/internal/validation"
)

// maxPasses bounds how often one job re-reads a record whose URL changed
// while the pipeline was running.
const maxPasses = 3

const abortTimeout = 10 * time.Second

// Failure note prefix stored in last_error.
const failureNotePrefix = "High-quality transcription failed: "

// TranscriptionTask identifies one unit of background work.
type TranscriptionTask struct {
	JobID        int64  `json:"job_id"`
	VideoID      int64  `json:"video_id"`
	LanguageCode string `json:"language_code"`
}

// TaskScheduler hands a claimed job to a worker and returns its task id.
type TaskScheduler interface {
	ScheduleTranscription(ctx context.Context, task TranscriptionTask) (string, error)
}

// TranscriptionService runs background high-fidelity transcription and owns
// the per-video in-flight marker.
type TranscriptionService struct {
	videos      repository.VideoRepository
	jobs        repository.TranscriptionJobRepository
	transcriber transcribe.Transcriber
	scheduler   TaskScheduler
	publisher   events.Publisher
	logger      *slog.Logger
}

// NewTranscriptionService creates a TranscriptionService.
func NewTranscriptionService(
	videos repository.VideoRepository,
	jobs repository.TranscriptionJobRepository,
	transcriber transcribe.Transcriber,
	publisher events.Publisher,
	logger *slog.Logger,
) *TranscriptionService {
	if logger == nil {
		logger = slog.Default()
	}
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &TranscriptionService{
		videos:      videos,
		jobs:        jobs,
		transcriber: transcriber,
		publisher:   publisher,
		logger:      logger,
	}
}

// UseScheduler sets where jobs are sent. It must be called before Start,
// Dispatch or Process run.
func (s *TranscriptionService) UseScheduler(scheduler TaskScheduler) {
	s.scheduler = scheduler
}

// Claim records a pending job for videoID. It fails with
// ErrTranscriptionInFlight when one is already pending or running.
func (s *TranscriptionService) Claim(ctx context.Context, videoID int64, languageCode string) (*models.TranscriptionJob, error) {
	job := &models.TranscriptionJob{
		VideoID:      videoID,
		LanguageCode: languageCode,
		Status:       models.JobStatusPending,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		if db.IsDuplicateKey(err) {
			return nil, ErrTranscriptionInFlight
		}
		return nil, fmt.Errorf("claim transcription: %w", err)
	}
	return job, nil
}

// AttachTask records which queue task runs the job.
func (s *TranscriptionService) AttachTask(ctx context.Context, jobID int64, taskID string) {
	if err := s.jobs.SetTaskID(ctx, jobID, taskID); err != nil {
		s.logger.Warn("failed to record task id", "job_id", jobID, "task_id", taskID, "error", err)
	}
}

// Start claims the marker for a record already in processing state and
// schedules a job for it. When another job holds the marker the record is
// left to that job, which re-reads it before writing back and hands off to
// a follow-up job if it finishes first.
func (s *TranscriptionService) Start(ctx context.Context, video *models.Video, languageCode string) *models.Video {
	job, err := s.Claim(ctx, video.ID, languageCode)
	if errors.Is(err, ErrTranscriptionInFlight) {
		job, err = s.reclaim(ctx, video.ID, languageCode)
	}
	if err != nil {
		if errors.Is(err, ErrTranscriptionInFlight) {
			s.logger.Info("transcription already in flight, leaving it to the running job", "id", video.ID)
			return video
		}
		return s.failScheduling(ctx, video, err)
	}
	return s.Dispatch(ctx, video, job)
}

// reclaim claims again when the job that held the marker has finished since.
func (s *TranscriptionService) reclaim(ctx context.Context, videoID int64, languageCode string) (*models.TranscriptionJob, error) {
	active, err := s.jobs.GetActiveByVideoID(ctx, videoID)
	switch {
	case err == nil:
		s.logger.Debug("active transcription job found", "id", videoID, "job_id", active.ID, "job_status", active.Status)
		return nil, ErrTranscriptionInFlight
	case db.IsNotFound(err):
		return s.Claim(ctx, videoID, languageCode)
	default:
		s.logger.Warn("failed to check active transcription job", "id", videoID, "error", err)
		return nil, ErrTranscriptionInFlight
	}
}

// Dispatch hands a claimed job to the scheduler. A scheduling failure
// releases the job and marks the record failed.
func (s *TranscriptionService) Dispatch(ctx context.Context, video *models.Video, job *models.TranscriptionJob) *models.Video {
	if s.scheduler == nil {
		err := errors.New("no task scheduler configured")
		s.Release(ctx, job.ID, err)
		return s.failScheduling(ctx, video, err)
	}

	taskID, err := s.scheduler.ScheduleTranscription(ctx, TranscriptionTask{
		JobID:        job.ID,
		VideoID:      video.ID,
		LanguageCode: job.LanguageCode,
	})
	if err != nil {
		s.Release(ctx, job.ID, err)
		return s.failScheduling(ctx, video, err)
	}

	s.AttachTask(ctx, job.ID, taskID)
	s.logger.Info("transcription scheduled", "id", video.ID, "job_id", job.ID, "task_id", taskID)
	event := events.NewVideoEvent(events.TranscriptScheduled, video.ID)
	event.URL = video.URL
	event.Status = string(video.Status)
	s.publish(ctx, event)
	return video
}

// failScheduling records a scheduling failure on the record. The caller
// still receives the stored record.
func (s *TranscriptionService) failScheduling(ctx context.Context, video *models.Video, cause error) *models.Video {
	s.logger.Error("failed to schedule transcription", "id", video.ID, "error", cause)

	note := failureNotePrefix + "could not schedule background work"
	if _, err := s.videos.FailTranscription(ctx, video.ID, video.URL, note); err != nil {
		s.logger.Error("failed to mark video failed", "id", video.ID, "error", err)
		return video
	}
	if refreshed, err := s.videos.GetByID(ctx, video.ID); err == nil {
		return refreshed
	}
	video.Status = models.StatusFailed
	video.LastError = &note
	return video
}

// History returns the most recent jobs for a video, newest first.
func (s *TranscriptionService) History(ctx context.Context, videoID int64, limit int) ([]*models.TranscriptionJob, error) {
	jobs, err := s.jobs.ListByVideoID(ctx, videoID, limit)
	if err != nil {
		return nil, fmt.Errorf("list transcription jobs: %w", err)
	}
	return jobs, nil
}

// Release finishes a job that never reached a worker.
func (s *TranscriptionService) Release(ctx context.Context, jobID int64, cause error) {
	if err := s.jobs.MarkFailed(ctx, jobID, cause.Error()); err != nil {
		s.logger.Warn("failed to release transcription job", "job_id", jobID, "error", err)
	}
	metrics.TranscriptionJobs.WithLabelValues(string(models.JobStatusFailed)).Inc()
}

// Process is the background unit of work. It re-reads the record by id, runs
// the pipeline against the identifier in the stored URL and writes the result
// back only while that URL is still current.
//
// A returned error means an infrastructure failure worth retrying. When
// final is set the job and record are marked failed before returning.
func (s *TranscriptionService) Process(ctx context.Context, task TranscriptionTask, final bool) error {
	log := s.logger.With("job_id", task.JobID, "video_id", task.VideoID)

	job, err := s.jobs.MarkProcessing(ctx, task.JobID)
	if err != nil {
		if db.IsNotFound(err) {
			log.Info("transcription job already finished or removed, skipping")
			return nil
		}
		return s.abort(ctx, task, final, fmt.Errorf("mark job processing: %w", err))
	}
	log = log.With("attempt", job.Attempts)

	outcome, err := s.run(ctx, task, log)
	if err != nil {
		return s.abort(ctx, task, final, err)
	}

	switch outcome.status {
	case models.JobStatusCompleted:
		err = s.jobs.MarkCompleted(ctx, task.JobID)
	default:
		err = s.jobs.MarkFailed(ctx, task.JobID, outcome.note)
	}
	if err != nil && !db.IsNotFound(err) {
		log.Warn("failed to finish transcription job", "error", err)
	}
	metrics.TranscriptionJobs.WithLabelValues(string(outcome.status)).Inc()

	if outcome.event != "" {
		event := events.NewVideoEvent(outcome.event, task.VideoID)
		event.URL = outcome.url
		event.Message = outcome.note
		s.publish(ctx, event)
	}

	s.handoff(ctx, task, log)
	return nil
}

// handoff schedules a follow-up job when the record was re-armed after this
// job wrote back but before it released the marker.
func (s *TranscriptionService) handoff(ctx context.Context, task TranscriptionTask, log *slog.Logger) {
	video, err := s.videos.GetByID(ctx, task.VideoID)
	if err != nil || video.Status != models.StatusProcessing {
		return
	}

	job, err := s.Claim(ctx, video.ID, task.LanguageCode)
	if err != nil {
		if !errors.Is(err, ErrTranscriptionInFlight) {
			log.Warn("failed to claim follow-up transcription", "error", err)
		}
		return
	}

	log.Info("video re-armed while job was finishing, scheduling follow-up", "next_job_id", job.ID)
	s.Dispatch(ctx, video, job)
}

type processOutcome struct {
	status models.JobStatus
	event  events.EventType
	url    string
	note   string
}

func (s *TranscriptionService) run(ctx context.Context, task TranscriptionTask, log *slog.Logger) (processOutcome, error) {
	for pass := 1; pass <= maxPasses; pass++ {
		video, err := s.videos.GetByID(ctx, task.VideoID)
		if err != nil {
			if db.IsNotFound(err) {
				log.Info("video deleted before transcription finished")
				return processOutcome{status: models.JobStatusFailed, note: "video deleted"}, nil
			}
			return processOutcome{}, fmt.Errorf("load video: %w", err)
		}
		if video.Status != models.StatusProcessing {
			log.Info("video no longer awaiting transcription", "status", video.Status)
			return processOutcome{status: models.JobStatusFailed, note: "superseded by update"}, nil
		}

		transcript, runErr := s.transcribe(ctx, video.URL, task.LanguageCode)

		var applied bool
		if runErr == nil {
			applied, err = s.videos.CompleteTranscription(ctx, video.ID, video.URL, transcript)
		} else {
			log.Error("high-quality transcription failed", "url", video.URL, "error", runErr)
			applied, err = s.videos.FailTranscription(ctx, video.ID, video.URL, failureNotePrefix+runErr.Error())
		}
		if err != nil {
			return processOutcome{}, fmt.Errorf("write back transcription: %w", err)
		}

		if applied {
			if runErr != nil {
				return processOutcome{
					status: models.JobStatusFailed,
					event:  events.TranscriptFailed,
					url:    video.URL,
					note:   runErr.Error(),
				}, nil
			}
			log.Info("transcription stored", "chars", len(transcript))
			return processOutcome{status: models.JobStatusCompleted, event: events.TranscriptCompleted, url: video.URL}, nil
		}

		log.Info("video URL changed during transcription, discarding result", "pass", pass, "url", video.URL)
	}

	return processOutcome{status: models.JobStatusFailed, note: "video URL kept changing"}, nil
}

func (s *TranscriptionService) transcribe(ctx context.Context, rawURL, languageCode string) (string, error) {
	videoID, ok := validation.ExtractVideoID(rawURL)
	if !ok {
		return "", errors.New("could not extract video id from stored URL")
	}
	if !validation.IsValidVideoID(videoID) {
		return "", fmt.Errorf("stored URL carries a malformed video id %q", videoID)
	}
	return s.transcriber.Run(ctx, videoID, languageCode)
}

// abort finishes the job and the record on the last attempt, then returns
// cause so the queue can record it.
func (s *TranscriptionService) abort(ctx context.Context, task TranscriptionTask, final bool, cause error) error {
	if !final {
		return cause
	}

	s.logger.Error("transcription abandoned", "job_id", task.JobID, "video_id", task.VideoID, "error", cause)

	// the caller's context may be the reason we are here
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), abortTimeout)
	defer cancel()

	s.Release(ctx, task.JobID, cause)

	video, err := s.videos.GetByID(ctx, task.VideoID)
	if err == nil && video.Status == models.StatusProcessing {
		if _, err := s.videos.FailTranscription(ctx, video.ID, video.URL, failureNotePrefix+cause.Error()); err != nil {
			s.logger.Warn("failed to mark video failed", "video_id", video.ID, "error", err)
		}
	}
	return cause
}

func (s *TranscriptionService) publish(ctx context.Context, event *events.VideoEvent) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish event", "type", event.Type, "video_id", event.VideoID, "error", err)
	}
}
