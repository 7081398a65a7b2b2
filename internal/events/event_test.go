package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewVideoEvent(t *testing.T) {
	a := NewVideoEvent(VideoCreated, 42)
	b := NewVideoEvent(VideoCreated, 42)

	assert.NotEqual(t, uuid.Nil, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, int64(42), a.VideoID)
	assert.False(t, a.OccurredAt.IsZero())

	body, err := json.Marshal(a)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, "video.created", decoded["type"])
	assert.NotContains(t, decoded, "message")
}

func TestNoopPublisher(t *testing.T) {
	var p Publisher = NoopPublisher{}
	assert.NoError(t, p.Publish(context.Background(), NewVideoEvent(VideoDeleted, 1)))
	assert.NoError(t, p.Close())
}
