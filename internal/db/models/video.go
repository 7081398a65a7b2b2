package models

import (
	"sort"
	"strings"
	"time"
)

// VideoStatus is the transcript resolution state of a catalogued video.
type VideoStatus string

const (
	// StatusCompleted is terminal: any requested transcript work has finished,
	// possibly with an empty result.
	StatusCompleted VideoStatus = "completed"
	// StatusProcessing means background transcription is pending. The
	// transcript is always absent in this state.
	StatusProcessing VideoStatus = "processing"
	// StatusFailed is terminal: background transcription failed and
	// LastError explains why.
	StatusFailed VideoStatus = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s VideoStatus) Valid() bool {
	switch s {
	case StatusCompleted, StatusProcessing, StatusFailed:
		return true
	}
	return false
}

// Video is a catalogued reference to an externally hosted video.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type Video struct {
	ID          int64       `db:"id" json:"id"`
	URL         string      `db:"url" json:"url"`
	Title       string      `db:"title" json:"title"`
	ChannelName string      `db:"channel_name" json:"channel_name"`
	Tags        *string     `db:"tags" json:"tags"`
	Memo        *string     `db:"memo" json:"memo"`
	Transcript  *string     `db:"transcript" json:"transcript"`
	Status      VideoStatus `db:"status" json:"status"`
	LastError   *string     `db:"last_error" json:"last_error"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at" json:"updated_at"`
}

// NewVideo creates a Video with resolved metadata and the given status.
func NewVideo(url, title, channelName string, tags, memo *string, status VideoStatus) *Video {
	return &Video{
		URL:         url,
		Title:       title,
		ChannelName: channelName,
		Tags:        tags,
		Memo:        memo,
		Status:      status,
	}
}

// HasTranscript reports whether a non-empty transcript is stored.
func (v *Video) HasTranscript() bool {
	return v.Transcript != nil && *v.Transcript != ""
}

// ParseTags splits a comma-joined tag string into trimmed, non-empty tags.
// Order and duplicates are preserved.
func ParseTags(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// TagIndex returns the sorted, de-duplicated union of all tags found in the
// given comma-joined tag strings.
func TagIndex(tagStrings []string) []string {
	seen := make(map[string]struct{})
	for _, raw := range tagStrings {
		for _, t := range ParseTags(raw) {
			seen[t] = struct{}{}
		}
	}
	index := make([]string, 0, len(seen))
	for t := range seen {
		index = append(index, t)
	}
	sort.Strings(index)
	return index
}
