// Package transcribe produces high-fidelity transcripts by downloading a
// video's audio, normalizing it and running it through speech recognition.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ad-tracker/video-catalog-go/internal/metrics"
)

// Pipeline stages, used in StageError and metrics.
const (
	StagePrepare   = "prepare"
	StageDownload  = "download"
	StageTranscode = "transcode"
	StageUpload    = "upload"
	StageRecognize = "recognize"
)

var (
	// ErrPayloadTooLarge means the audio exceeds the inline limit and no
	// object store is configured.
	ErrPayloadTooLarge = errors.New("audio exceeds inline payload limit")

	// ErrEmptyTranscript means recognition finished without any text.
	ErrEmptyTranscript = errors.New("recognition returned no text")

	// ErrRecognitionTimeout means the recognition wait exceeded its bound.
	ErrRecognitionTimeout = errors.New("recognition timed out")
)

// StageError records which stage of the pipeline failed.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("transcription %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Audio is normalized audio ready for recognition. URI is set when the file
// was uploaded to object storage.
type Audio struct {
	Path         string
	URI          string
	SampleRate   int
	LanguageCode string
}

// Downloader fetches the best audio stream for a video into dir and returns
// the file path.
type Downloader interface {
	Download(ctx context.Context, videoID, dir string) (string, error)
}

// Transcoder converts src into mono FLAC at sampleRate, written to dst.
type Transcoder interface {
	Transcode(ctx context.Context, src, dst string, sampleRate int) error
}

// ObjectStore holds audio for recognition by reference.
type ObjectStore interface {
	Upload(ctx context.Context, localPath, objectName string) (string, error)
	Delete(ctx context.Context, objectName string) error
}

// Recognizer turns audio into ordered transcript segments.
type Recognizer interface {
	Recognize(ctx context.Context, audio Audio) ([]string, error)
}

// Transcriber is what callers of the pipeline depend on.
type Transcriber interface {
	Run(ctx context.Context, videoID, languageCode string) (string, error)
}

// Config tunes the pipeline.
type Config struct {
	TempDir        string
	SampleRate     int
	MaxInlineBytes int64
}

// Pipeline wires the stages together. Store may be nil, in which case audio
// is submitted inline.
type Pipeline struct {
	downloader Downloader
	transcoder Transcoder
	store      ObjectStore
	recognizer Recognizer
	cfg        Config
	logger     *slog.Logger
}

// NewPipeline creates a pipeline.
func NewPipeline(d Downloader, t Transcoder, store ObjectStore, r Recognizer, cfg Config, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.MaxInlineBytes <= 0 {
		cfg.MaxInlineBytes = 10 * 1024 * 1024
	}
	return &Pipeline{
		downloader: d,
		transcoder: t,
		store:      store,
		recognizer: r,
		cfg:        cfg,
		logger:     logger,
	}
}

// Run transcribes videoID. It returns either the full transcript or an error,
// never a partial transcript. Temporary files are removed on every path.
func (p *Pipeline) Run(ctx context.Context, videoID, languageCode string) (string, error) {
	log := p.logger.With("video_id", videoID, "language", languageCode)

	dir, err := os.MkdirTemp(p.cfg.TempDir, "transcribe-")
	if err != nil {
		return "", &StageError{Stage: StagePrepare, Err: err}
	}
	defer func() {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			log.Warn("failed to remove temp dir", "dir", dir, "error", rmErr)
		}
	}()

	var src string
	if err := p.stage(StageDownload, func() (err error) {
		src, err = p.downloader.Download(ctx, videoID, dir)
		return err
	}); err != nil {
		return "", err
	}

	audio := Audio{
		Path:         filepath.Join(dir, "audio.flac"),
		SampleRate:   p.cfg.SampleRate,
		LanguageCode: languageCode,
	}
	if err := p.stage(StageTranscode, func() error {
		return p.transcoder.Transcode(ctx, src, audio.Path, p.cfg.SampleRate)
	}); err != nil {
		return "", err
	}

	var objectName string
	if err := p.stage(StageUpload, func() error {
		if p.store != nil {
			name := fmt.Sprintf("audio/%s-%s.flac", videoID, uuid.NewString())
			uri, err := p.store.Upload(ctx, audio.Path, name)
			if err != nil {
				return err
			}
			objectName, audio.URI = name, uri
			return nil
		}
		info, err := os.Stat(audio.Path)
		if err != nil {
			return err
		}
		if info.Size() > p.cfg.MaxInlineBytes {
			return fmt.Errorf("%w: %d > %d bytes", ErrPayloadTooLarge, info.Size(), p.cfg.MaxInlineBytes)
		}
		return nil
	}); err != nil {
		return "", err
	}
	if objectName != "" {
		defer p.deleteObject(ctx, objectName, log)
	}

	var segments []string
	if err := p.stage(StageRecognize, func() (err error) {
		segments, err = p.recognizer.Recognize(ctx, audio)
		if err != nil {
			return err
		}
		if joinSegments(segments) == "" {
			return ErrEmptyTranscript
		}
		return nil
	}); err != nil {
		return "", err
	}

	transcript := joinSegments(segments)
	log.Info("transcription finished", "segments", len(segments), "chars", len(transcript))
	return transcript, nil
}

func (p *Pipeline) stage(name string, fn func() error) error {
	started := time.Now()
	err := fn()
	metrics.ObserveStage(name, started, err)
	if err != nil {
		return &StageError{Stage: name, Err: err}
	}
	return nil
}

// deleteObject removes uploaded audio even when ctx is already cancelled.
func (p *Pipeline) deleteObject(ctx context.Context, objectName string, log *slog.Logger) {
	delCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := p.store.Delete(delCtx, objectName); err != nil {
		log.Warn("failed to delete uploaded audio", "object", objectName, "error", err)
	}
}

func joinSegments(segments []string) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}
