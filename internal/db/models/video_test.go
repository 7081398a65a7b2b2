package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseTags(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{name: "empty", raw: "", want: nil},
		{name: "single", raw: "music", want: []string{"music"}},
		{name: "trims whitespace", raw: " music ,  rickroll", want: []string{"music", "rickroll"}},
		{name: "drops empty entries", raw: "a,,b, ,", want: []string{"a", "b"}},
		{name: "keeps duplicates", raw: "a, b, b", want: []string{"a", "b", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseTags(tt.raw)
			if len(tt.want) == 0 {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTagIndex(t *testing.T) {
	got := TagIndex([]string{"a, b, b", "travel, japan", "", "b,a", "  music  "})
	assert.Equal(t, []string{"a", "b", "japan", "music", "travel"}, got)

	assert.Empty(t, TagIndex(nil))
}

func TestVideoStatusValid(t *testing.T) {
	assert.True(t, StatusCompleted.Valid())
	assert.True(t, StatusProcessing.Valid())
	assert.True(t, StatusFailed.Valid())
	assert.False(t, VideoStatus("queued").Valid())
}

func TestVideoHasTranscript(t *testing.T) {
	empty := ""
	text := "hello"
	assert.False(t, (&Video{}).HasTranscript())
	assert.False(t, (&Video{Transcript: &empty}).HasTranscript())
	assert.True(t, (&Video{Transcript: &text}).HasTranscript())
}
