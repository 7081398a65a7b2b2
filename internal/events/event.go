// Package events publishes video lifecycle notifications.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventType doubles as the routing key.
type EventType string

const (
	VideoCreated        EventType = "video.created"
	VideoUpdated        EventType = "video.updated"
	VideoDeleted        EventType = "video.deleted"
	TranscriptScheduled EventType = "transcript.scheduled"
	TranscriptCompleted EventType = "transcript.completed"
	TranscriptFailed    EventType = "transcript.failed"
)

// VideoEvent is the message body published for every lifecycle change.
type VideoEvent struct {
	ID         uuid.UUID `json:"id"`
	Type       EventType `json:"type"`
	VideoID    int64     `json:"video_id"`
	URL        string    `json:"url,omitempty"`
	Status     string    `json:"status,omitempty"`
	Message    string    `json:"message,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewVideoEvent stamps a new event with an id and the current time.
func NewVideoEvent(eventType EventType, videoID int64) *VideoEvent {
	return &VideoEvent{
		ID:         uuid.New(),
		Type:       eventType,
		VideoID:    videoID,
		OccurredAt: time.Now().UTC(),
	}
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, event *VideoEvent) error
	Close() error
}

// NoopPublisher drops every event. Used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, *VideoEvent) error { return nil }

func (NoopPublisher) Close() error { return nil }
