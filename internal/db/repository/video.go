package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/ad-tracker/video-catalog-go/internal/db"
	"github.com/ad-tracker/video-catalog-go/internal/db/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// VideoRepository defines operations for managing catalogued videos.
type VideoRepository interface {
	// Create inserts a video and fills in its ID and timestamps.
	Create(ctx context.Context, video *models.Video) error

	// GetByID retrieves a single video by ID.
	GetByID(ctx context.Context, id int64) (*models.Video, error)

	// Search lists videos matching the filters in the requested order.
	Search(ctx context.Context, filters VideoFilters) ([]*models.Video, error)

	// UpdateAnnotations overwrites tags and memo only, leaving the columns the
	// background job writes untouched.
	UpdateAnnotations(ctx context.Context, id int64, tags, memo *string) (*models.Video, error)

	// ReplaceSource overwrites every mutable column of a video, but only while
	// its URL and status still equal expectedURL and expectedStatus. Reports
	// whether a row changed.
	ReplaceSource(ctx context.Context, video *models.Video, expectedURL string, expectedStatus models.VideoStatus) (bool, error)

	// Delete removes a video. Returns db.ErrNotFound if it does not exist.
	Delete(ctx context.Context, id int64) error

	// Count returns the number of stored videos.
	Count(ctx context.Context) (int, error)

	// ListTagStrings returns the raw comma-joined tag column of every video
	// that has one.
	ListTagStrings(ctx context.Context) ([]string, error)

	// SetTranscript stores a lazily fetched transcript on a completed video
	// that has none yet. Reports whether a row changed.
	SetTranscript(ctx context.Context, id int64, transcript string) (bool, error)

	// MarkProcessing resets a video for a new background transcription.
	MarkProcessing(ctx context.Context, id int64) (*models.Video, error)

	// CompleteTranscription stores a background transcript and marks the video
	// completed, but only while its URL still equals expectedURL.
	CompleteTranscription(ctx context.Context, id int64, expectedURL, transcript string) (bool, error)

	// FailTranscription marks the video failed with a note, leaving any
	// existing transcript untouched, under the same URL guard.
	FailTranscription(ctx context.Context, id int64, expectedURL, note string) (bool, error)
}

type videoRepository struct {
	pool *pgxpool.Pool
}

// NewVideoRepository creates a new VideoRepository.
func NewVideoRepository(pool *pgxpool.Pool) VideoRepository {
	return &videoRepository{pool: pool}
}

func (r *videoRepository) Create(ctx context.Context, video *models.Video) error {
	if video.Status == "" {
		video.Status = models.StatusCompleted
	}

	query := `
		INSERT INTO videos (url, title, channel_name, tags, memo, transcript, status, last_error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`

	err := r.pool.QueryRow(ctx, query,
		video.URL,
		video.Title,
		video.ChannelName,
		video.Tags,
		video.Memo,
		video.Transcript,
		video.Status,
		video.LastError,
	).Scan(&video.ID, &video.CreatedAt, &video.UpdatedAt)

	if err != nil {
		return db.WrapError(err, "create video")
	}

	return nil
}

func (r *videoRepository) GetByID(ctx context.Context, id int64) (*models.Video, error) {
	query := fmt.Sprintf(`SELECT %s FROM videos WHERE id = $1`, videoColumns)

	video, err := scanVideo(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, db.WrapError(err, "get video by id")
	}

	return video, nil
}

func (r *videoRepository) Search(ctx context.Context, filters VideoFilters) ([]*models.Video, error) {
	query, args := BuildSearchQuery(filters)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, db.WrapError(err, "search videos")
	}
	defer rows.Close()

	return scanVideos(rows)
}

func (r *videoRepository) UpdateAnnotations(ctx context.Context, id int64, tags, memo *string) (*models.Video, error) {
	query := fmt.Sprintf(`
		UPDATE videos
		SET tags = $2,
		    memo = $3
		WHERE id = $1
		RETURNING %s
	`, videoColumns)

	video, err := scanVideo(r.pool.QueryRow(ctx, query, id, tags, memo))
	if err != nil {
		return nil, db.WrapError(err, "update video annotations")
	}

	return video, nil
}

func (r *videoRepository) ReplaceSource(ctx context.Context, video *models.Video, expectedURL string, expectedStatus models.VideoStatus) (bool, error) {
	query := `
		UPDATE videos
		SET url = $4,
		    title = $5,
		    channel_name = $6,
		    tags = $7,
		    memo = $8,
		    transcript = $9,
		    status = $10,
		    last_error = $11
		WHERE id = $1 AND url = $2 AND status = $3
		RETURNING created_at, updated_at
	`

	err := r.pool.QueryRow(ctx, query,
		video.ID,
		expectedURL,
		expectedStatus,
		video.URL,
		video.Title,
		video.ChannelName,
		video.Tags,
		video.Memo,
		video.Transcript,
		video.Status,
		video.LastError,
	).Scan(&video.CreatedAt, &video.UpdatedAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, db.WrapError(err, "replace video source")
	}

	return true, nil
}

func (r *videoRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM videos WHERE id = $1`, id)
	if err != nil {
		return db.WrapError(err, "delete video")
	}

	if result.RowsAffected() == 0 {
		return db.WrapError(pgx.ErrNoRows, "delete video")
	}

	return nil
}

func (r *videoRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM videos`).Scan(&count); err != nil {
		return 0, db.WrapError(err, "count videos")
	}
	return count, nil
}

func (r *videoRepository) ListTagStrings(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT tags FROM videos WHERE tags IS NOT NULL AND tags <> ''`)
	if err != nil {
		return nil, db.WrapError(err, "list tags")
	}
	defer rows.Close()

	var tagStrings []string
	for rows.Next() {
		var tags string
		if err := rows.Scan(&tags); err != nil {
			return nil, db.WrapError(err, "scan tags")
		}
		tagStrings = append(tagStrings, tags)
	}

	if err := rows.Err(); err != nil {
		return nil, db.WrapError(err, "iterate tags")
	}

	return tagStrings, nil
}

func (r *videoRepository) SetTranscript(ctx context.Context, id int64, transcript string) (bool, error) {
	query := `
		UPDATE videos
		SET transcript = $2
		WHERE id = $1
		  AND status = 'completed'
		  AND (transcript IS NULL OR transcript = '')
	`

	result, err := r.pool.Exec(ctx, query, id, transcript)
	if err != nil {
		return false, db.WrapError(err, "set transcript")
	}

	return result.RowsAffected() == 1, nil
}

func (r *videoRepository) MarkProcessing(ctx context.Context, id int64) (*models.Video, error) {
	query := fmt.Sprintf(`
		UPDATE videos
		SET status = 'processing',
		    transcript = NULL,
		    last_error = NULL
		WHERE id = $1
		RETURNING %s
	`, videoColumns)

	video, err := scanVideo(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, db.WrapError(err, "mark video processing")
	}

	return video, nil
}

func (r *videoRepository) CompleteTranscription(ctx context.Context, id int64, expectedURL, transcript string) (bool, error) {
	query := `
		UPDATE videos
		SET transcript = $3,
		    status = 'completed',
		    last_error = NULL
		WHERE id = $1 AND url = $2
	`

	result, err := r.pool.Exec(ctx, query, id, expectedURL, transcript)
	if err != nil {
		return false, db.WrapError(err, "complete transcription")
	}

	return result.RowsAffected() == 1, nil
}

func (r *videoRepository) FailTranscription(ctx context.Context, id int64, expectedURL, note string) (bool, error) {
	query := `
		UPDATE videos
		SET status = 'failed',
		    last_error = $3
		WHERE id = $1 AND url = $2
	`

	result, err := r.pool.Exec(ctx, query, id, expectedURL, note)
	if err != nil {
		return false, db.WrapError(err, "fail transcription")
	}

	return result.RowsAffected() == 1, nil
}

// scanVideo scans a single row in videoColumns order.
func scanVideo(row pgx.Row) (*models.Video, error) {
	video := &models.Video{}
	err := row.Scan(
		&video.ID,
		&video.URL,
		&video.Title,
		&video.ChannelName,
		&video.Tags,
		&video.Memo,
		&video.Transcript,
		&video.Status,
		&video.LastError,
		&video.CreatedAt,
		&video.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return video, nil
}

func scanVideos(rows pgx.Rows) ([]*models.Video, error) {
	videos := make([]*models.Video, 0)
	for rows.Next() {
		video, err := scanVideo(rows)
		if err != nil {
			return nil, db.WrapError(err, "scan video")
		}
		videos = append(videos, video)
	}

	if err := rows.Err(); err != nil {
		return nil, db.WrapError(err, "iterate videos")
	}

	return videos, nil
}
