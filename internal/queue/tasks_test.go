package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTranscriptionPayload(t *testing.T) {
	tests := []struct {
		name    string
		jobID   int64
		videoID int64
		wantErr string
	}{
		{name: "valid", jobID: 7, videoID: 3},
		{name: "missing job", jobID: 0, videoID: 3, wantErr: "job ID is required"},
		{name: "missing video", jobID: 7, videoID: 0, wantErr: "video ID is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := NewTranscriptionPayload(tt.jobID, tt.videoID, "ja-JP")
			if tt.wantErr != "" {
				assert.EqualError(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.jobID, payload.JobID)
			assert.Equal(t, "ja-JP", payload.LanguageCode)
		})
	}
}

func TestUnmarshalTranscriptionPayload(t *testing.T) {
	payload, err := UnmarshalTranscriptionPayload([]byte(`{"job_id":7,"video_id":3,"language_code":"en-US"}`))
	require.NoError(t, err)
	assert.Equal(t, &TranscriptionPayload{JobID: 7, VideoID: 3, LanguageCode: "en-US"}, payload)

	_, err = UnmarshalTranscriptionPayload([]byte(`not json`))
	assert.Error(t, err)

	_, err = UnmarshalTranscriptionPayload([]byte(`{"video_id":3}`))
	assert.Error(t, err)
}

func TestTaskIDIsPerJob(t *testing.T) {
	assert.Equal(t, "transcribe:42", TaskID(42))
	assert.NotEqual(t, TaskID(1), TaskID(2))
}
