package repository

import (
	"context"
	"fmt"

	"github.com/ad-tracker/video-catalog-go/internal/db"
	"github.com/ad-tracker/video-catalog-go/internal/db/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TranscriptionJobRepository tracks background transcription jobs. The
// table's partial unique index allows a single unfinished job per video, so
// Create doubles as the per-video in-flight lock.
type TranscriptionJobRepository interface {
	// Create inserts a pending job. Returns db.ErrDuplicateKey when the video
	// already has a pending or processing job.
	Create(ctx context.Context, job *models.TranscriptionJob) error

	// GetByID retrieves a job by ID.
	GetByID(ctx context.Context, id int64) (*models.TranscriptionJob, error)

	// GetActiveByVideoID returns the unfinished job for a video, if any.
	GetActiveByVideoID(ctx context.Context, videoID int64) (*models.TranscriptionJob, error)

	// SetTaskID records the queue task that will run the job.
	SetTaskID(ctx context.Context, id int64, taskID string) error

	// MarkProcessing moves an unfinished job to processing and counts the attempt.
	MarkProcessing(ctx context.Context, id int64) (*models.TranscriptionJob, error)

	// MarkCompleted finishes a job successfully.
	MarkCompleted(ctx context.Context, id int64) error

	// MarkFailed finishes a job with an error message.
	MarkFailed(ctx context.Context, id int64, errorMsg string) error

	// ListByVideoID returns the job history for a video, newest first.
	ListByVideoID(ctx context.Context, videoID int64, limit int) ([]*models.TranscriptionJob, error)
}

type transcriptionJobRepository struct {
	pool *pgxpool.Pool
}

// NewTranscriptionJobRepository creates a new TranscriptionJobRepository.
func NewTranscriptionJobRepository(pool *pgxpool.Pool) TranscriptionJobRepository {
	return &transcriptionJobRepository{pool: pool}
}

const transcriptionJobColumns = `id, video_id, language_code, status, task_id, attempts, error_message, created_at, started_at, completed_at`

func (r *transcriptionJobRepository) Create(ctx context.Context, job *models.TranscriptionJob) error {
	if job.Status == "" {
		job.Status = models.JobStatusPending
	}

	query := `
		INSERT INTO transcription_jobs (video_id, language_code, status, task_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id, attempts, created_at
	`

	err := r.pool.QueryRow(ctx, query,
		job.VideoID,
		job.LanguageCode,
		job.Status,
		job.TaskID,
	).Scan(&job.ID, &job.Attempts, &job.CreatedAt)

	if err != nil {
		return db.WrapError(err, "create transcription job")
	}

	return nil
}

func (r *transcriptionJobRepository) GetByID(ctx context.Context, id int64) (*models.TranscriptionJob, error) {
	query := fmt.Sprintf(`SELECT %s FROM transcription_jobs WHERE id = $1`, transcriptionJobColumns)

	job, err := scanTranscriptionJob(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, db.WrapError(err, "get transcription job")
	}

	return job, nil
}

func (r *transcriptionJobRepository) GetActiveByVideoID(ctx context.Context, videoID int64) (*models.TranscriptionJob, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM transcription_jobs
		WHERE video_id = $1 AND status IN ('pending', 'processing')
	`, transcriptionJobColumns)

	job, err := scanTranscriptionJob(r.pool.QueryRow(ctx, query, videoID))
	if err != nil {
		return nil, db.WrapError(err, "get active transcription job")
	}

	return job, nil
}

func (r *transcriptionJobRepository) SetTaskID(ctx context.Context, id int64, taskID string) error {
	result, err := r.pool.Exec(ctx, `UPDATE transcription_jobs SET task_id = $2 WHERE id = $1`, id, taskID)
	if err != nil {
		return db.WrapError(err, "set transcription job task id")
	}
	if result.RowsAffected() == 0 {
		return db.WrapError(pgx.ErrNoRows, "set transcription job task id")
	}
	return nil
}

func (r *transcriptionJobRepository) MarkProcessing(ctx context.Context, id int64) (*models.TranscriptionJob, error) {
	query := fmt.Sprintf(`
		UPDATE transcription_jobs
		SET status = 'processing',
		    attempts = attempts + 1,
		    started_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'processing')
		RETURNING %s
	`, transcriptionJobColumns)

	job, err := scanTranscriptionJob(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, db.WrapError(err, "mark transcription job processing")
	}

	return job, nil
}

func (r *transcriptionJobRepository) MarkCompleted(ctx context.Context, id int64) error {
	return r.finish(ctx, id, models.JobStatusCompleted, nil)
}

func (r *transcriptionJobRepository) MarkFailed(ctx context.Context, id int64, errorMsg string) error {
	return r.finish(ctx, id, models.JobStatusFailed, &errorMsg)
}

func (r *transcriptionJobRepository) finish(ctx context.Context, id int64, status models.JobStatus, errorMsg *string) error {
	query := `
		UPDATE transcription_jobs
		SET status = $2,
		    error_message = $3,
		    completed_at = NOW()
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, id, status, errorMsg)
	if err != nil {
		return db.WrapError(err, "finish transcription job")
	}
	if result.RowsAffected() == 0 {
		return db.WrapError(pgx.ErrNoRows, "finish transcription job")
	}

	return nil
}

func (r *transcriptionJobRepository) ListByVideoID(ctx context.Context, videoID int64, limit int) ([]*models.TranscriptionJob, error) {
	if limit <= 0 {
		limit = 20
	}

	query := fmt.Sprintf(`
		SELECT %s FROM transcription_jobs
		WHERE video_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, transcriptionJobColumns)

	rows, err := r.pool.Query(ctx, query, videoID, limit)
	if err != nil {
		return nil, db.WrapError(err, "list transcription jobs")
	}
	defer rows.Close()

	jobs := make([]*models.TranscriptionJob, 0)
	for rows.Next() {
		job, err := scanTranscriptionJob(rows)
		if err != nil {
			return nil, db.WrapError(err, "scan transcription job")
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, db.WrapError(err, "iterate transcription jobs")
	}

	return jobs, nil
}

func scanTranscriptionJob(row pgx.Row) (*models.TranscriptionJob, error) {
	job := &models.TranscriptionJob{}
	err := row.Scan(
		&job.ID,
		&job.VideoID,
		&job.LanguageCode,
		&job.Status,
		&job.TaskID,
		&job.Attempts,
		&job.ErrorMessage,
		&job.CreatedAt,
		&job.StartedAt,
		&job.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return job, nil
}
