package queue

import (
	"encoding/json"
	"fmt"
)

// Task types
const (
	TypeTranscription = "transcription:video"
)

// QueueTranscription is the asynq queue transcription tasks run on.
const QueueTranscription = "transcription"

// TranscriptionPayload is the payload for high-fidelity transcription tasks
type TranscriptionPayload struct {
	JobID        int64  `json:"job_id"`
	VideoID      int64  `json:"video_id"`
	LanguageCode string `json:"language_code"`
}

// NewTranscriptionPayload creates a new transcription task payload
func NewTranscriptionPayload(jobID, videoID int64, languageCode string) (*TranscriptionPayload, error) {
	if jobID <= 0 {
		return nil, fmt.Errorf("job ID is required")
	}
	if videoID <= 0 {
		return nil, fmt.Errorf("video ID is required")
	}

	return &TranscriptionPayload{
		JobID:        jobID,
		VideoID:      videoID,
		LanguageCode: languageCode,
	}, nil
}

// Marshal serializes the payload to JSON
func (p *TranscriptionPayload) Marshal() ([]byte, error) {
	return json.Marshal(p)
}

// UnmarshalTranscriptionPayload deserializes JSON to payload
func UnmarshalTranscriptionPayload(data []byte) (*TranscriptionPayload, error) {
	var payload TranscriptionPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	if payload.JobID <= 0 || payload.VideoID <= 0 {
		return nil, fmt.Errorf("payload is missing job or video id")
	}
	return &payload, nil
}

// TaskID is the asynq task id for a job. It is unique per job so an archived
// task never blocks a later retry of the same video.
func TaskID(jobID int64) string {
	return fmt.Sprintf("transcribe:%d", jobID)
}
