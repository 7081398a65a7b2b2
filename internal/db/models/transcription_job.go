package models

import "time"

// JobStatus is the lifecycle state of a background transcription job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// TranscriptionJob tracks one scheduled run of the high-fidelity pipeline.
// Only one pending or processing job may exist per video.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type TranscriptionJob struct {
	ID           int64      `db:"id" json:"id"`
	VideoID      int64      `db:"video_id" json:"video_id"`
	LanguageCode string     `db:"language_code" json:"language_code"`
	Status       JobStatus  `db:"status" json:"status"`
	TaskID       *string    `db:"task_id" json:"task_id"`
	Attempts     int        `db:"attempts" json:"attempts"`
	ErrorMessage *string    `db:"error_message" json:"error_message"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	StartedAt    *time.Time `db:"started_at" json:"started_at"`
	CompletedAt  *time.Time `db:"completed_at" json:"completed_at"`
}
