package transcribe

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestYTDLPDownloader(t *testing.T) {
	dir := t.TempDir()
	var gotArgs []string

	d := NewYTDLPDownloader("")
	d.run = func(_ context.Context, name string, args ...string) error {
		assert.Equal(t, "yt-dlp", name)
		gotArgs = args
		return os.WriteFile(filepath.Join(dir, "source.m4a"), []byte("audio"), 0o600)
	}

	path, err := d.Download(context.Background(), "dQw4w9WgXcQ", dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "source.m4a"), path)
	assert.Contains(t, gotArgs, "https://www.youtube.com/watch?v=dQw4w9WgXcQ")
	assert.Contains(t, gotArgs, "bestaudio/best")
}

func TestYTDLPDownloader_NoOutput(t *testing.T) {
	d := NewYTDLPDownloader("/usr/local/bin/yt-dlp")
	d.run = func(context.Context, string, ...string) error { return nil }

	_, err := d.Download(context.Background(), "abc", t.TempDir())
	assert.Error(t, err)
}

func TestYTDLPDownloader_CommandFails(t *testing.T) {
	d := NewYTDLPDownloader("")
	d.run = func(context.Context, string, ...string) error { return errors.New("exit status 1") }

	_, err := d.Download(context.Background(), "abc", t.TempDir())
	assert.EqualError(t, err, "exit status 1")
}

func TestFFmpegTranscoder(t *testing.T) {
	var gotArgs []string
	tr := NewFFmpegTranscoder("")
	tr.run = func(_ context.Context, name string, args ...string) error {
		assert.Equal(t, "ffmpeg", name)
		gotArgs = args
		return nil
	}

	require.NoError(t, tr.Transcode(context.Background(), "in.webm", "out.flac", 16000))
	assert.Equal(t, []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", "in.webm", "-vn",
		"-ac", "1", "-ar", "16000", "-c:a", "flac",
		"out.flac",
	}, gotArgs)
}

func TestTail(t *testing.T) {
	assert.Equal(t, "abc", tail("  abc\n", 10))
	assert.Equal(t, "def", tail("abcdef", 3))
}
