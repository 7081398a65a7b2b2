package transcribe

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ad-tracker/video-catalog-go/internal/validation"
)

// commandRunner runs an external program. Tests replace it.
type commandRunner func(ctx context.Context, name string, args ...string) error

func runCommand(ctx context.Context, name string, args ...string) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w: %s", filepath.Base(name), err, tail(stderr.String(), 512))
	}
	return nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// YTDLPDownloader downloads audio with yt-dlp.
type YTDLPDownloader struct {
	Path string
	run  commandRunner
}

// NewYTDLPDownloader returns a downloader that execs the binary at path.
func NewYTDLPDownloader(path string) *YTDLPDownloader {
	if path == "" {
		path = "yt-dlp"
	}
	return &YTDLPDownloader{Path: path, run: runCommand}
}

// Download saves the best audio-only stream as dir/source.<ext>.
func (d *YTDLPDownloader) Download(ctx context.Context, videoID, dir string) (string, error) {
	template := filepath.Join(dir, "source.%(ext)s")
	err := d.run(ctx, d.Path,
		"--no-playlist",
		"--quiet",
		"--no-progress",
		"-f", "bestaudio/best",
		"-o", template,
		validation.CanonicalURL(videoID),
	)
	if err != nil {
		return "", err
	}

	matches, err := filepath.Glob(filepath.Join(dir, "source.*"))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("yt-dlp produced no audio file for %s", videoID)
	}
	return matches[0], nil
}

// FFmpegTranscoder converts audio with ffmpeg.
type FFmpegTranscoder struct {
	Path string
	run  commandRunner
}

// NewFFmpegTranscoder returns a transcoder that execs the binary at path.
func NewFFmpegTranscoder(path string) *FFmpegTranscoder {
	if path == "" {
		path = "ffmpeg"
	}
	return &FFmpegTranscoder{Path: path, run: runCommand}
}

// Transcode writes mono FLAC at sampleRate to dst.
func (t *FFmpegTranscoder) Transcode(ctx context.Context, src, dst string, sampleRate int) error {
	return t.run(ctx, t.Path,
		"-hide_banner",
		"-loglevel", "error",
		"-y",
		"-i", src,
		"-vn",
		"-ac", "1",
		"-ar", strconv.Itoa(sampleRate),
		"-c:a", "flac",
		dst,
	)
}
