// Package service holds the catalog's business logic: resolving submitted
// URLs into enriched video records and driving transcript acquisition.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ad-tracker/video-catalog-go/internal/db"
	"github.com/ad-tracker/video-catalog-go/internal/db/models"
	"github.com/ad-tracker/video-catalog-go/internal/db/repository"
	"github.com/ad-tracker/video-catalog-go/internal/events"
	"github.com/ad-tracker/video-catalog-go/internal/service/captions"
	"github.com/ad-tracker/video-catalog-go/internal/service/youtube"
	"github.com/ad-tracker/video-catalog-go/internal/validation"
)

// TranscriptionOption selects how a transcript is acquired on create or on
// a URL change.
type TranscriptionOption string

const (
	OptionNone        TranscriptionOption = ""
	OptionStandard    TranscriptionOption = "standard"
	OptionHighQuality TranscriptionOption = "high_quality"
)

// Valid reports whether o is a known option. "none" is accepted as OptionNone.
func (o TranscriptionOption) Valid() bool {
	switch o {
	case OptionNone, "none", OptionStandard, OptionHighQuality:
		return true
	}
	return false
}

// VideoInput carries the caller-supplied fields for create and update.
type VideoInput struct {
	URL                 string
	Tags                *string
	Memo                *string
	TranscriptionOption TranscriptionOption
	// LanguageCode overrides the default recognition language.
	LanguageCode string
}

// SearchInput holds list filters. Unknown sort values fall back silently.
type SearchInput struct {
	TitleQuery string
	TagsQuery  string
	SortBy     string
	SortOrder  string
}

// historyLimit bounds the jobs returned by TranscriptionHistory.
const historyLimit = 20

// TranscriptResult is returned by Transcript.
type TranscriptResult struct {
	Transcript *string            `json:"transcript"`
	Status     models.VideoStatus `json:"status"`
}

// VideoService implements the catalog operations.
type VideoService struct {
	videos          repository.VideoRepository
	metadata        youtube.MetadataProvider
	captions        captions.Fetcher
	transcriptions  *TranscriptionService
	publisher       events.Publisher
	defaultLanguage string
	logger          *slog.Logger
}

// VideoServiceConfig groups VideoService dependencies.
type VideoServiceConfig struct {
	Videos          repository.VideoRepository
	Metadata        youtube.MetadataProvider
	Captions        captions.Fetcher
	Transcriptions  *TranscriptionService
	Publisher       events.Publisher
	DefaultLanguage string
	Logger          *slog.Logger
}

// NewVideoService creates a VideoService.
func NewVideoService(cfg VideoServiceConfig) *VideoService {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Publisher == nil {
		cfg.Publisher = events.NoopPublisher{}
	}
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = "ja-JP"
	}
	return &VideoService{
		videos:          cfg.Videos,
		metadata:        cfg.Metadata,
		captions:        cfg.Captions,
		transcriptions:  cfg.Transcriptions,
		publisher:       cfg.Publisher,
		defaultLanguage: cfg.DefaultLanguage,
		logger:          cfg.Logger,
	}
}

// Create resolves the URL and stores a new record. Nothing is stored when
// the URL or the metadata lookup fails.
func (s *VideoService) Create(ctx context.Context, in VideoInput) (*models.Video, error) {
	if !in.TranscriptionOption.Valid() {
		return nil, &ValidationError{Message: "Invalid transcription option"}
	}

	videoID, meta, err := s.resolve(ctx, in.URL)
	if err != nil {
		return nil, err
	}

	video := models.NewVideo(in.URL, meta.Title, meta.ChannelName, in.Tags, in.Memo, models.StatusCompleted)

	switch in.TranscriptionOption {
	case OptionStandard:
		video.Transcript = s.fetchCaptions(ctx, videoID)
	case OptionHighQuality:
		video.Status = models.StatusProcessing
	}

	if err := s.videos.Create(ctx, video); err != nil {
		return nil, &ProcessingError{Message: "failed to store video", Cause: err}
	}

	s.logger.Info("video created",
		"id", video.ID,
		"video_id", videoID,
		"option", string(in.TranscriptionOption),
		"status", video.Status,
	)

	if video.Status == models.StatusProcessing {
		video = s.transcriptions.Start(ctx, video, s.language(in.LanguageCode))
	}

	s.publish(ctx, events.VideoCreated, video)
	return video, nil
}

// Get returns a record by id.
func (s *VideoService) Get(ctx context.Context, id int64) (*models.Video, error) {
	video, err := s.videos.GetByID(ctx, id)
	if err != nil {
		return nil, s.storeError(id, "failed to load video", err)
	}
	return video, nil
}

// Search lists records.
func (s *VideoService) Search(ctx context.Context, in SearchInput) ([]*models.Video, error) {
	videos, err := s.videos.Search(ctx, repository.VideoFilters{
		TitleQuery: in.TitleQuery,
		TagsQuery:  in.TagsQuery,
		SortBy:     in.SortBy,
		SortOrder:  in.SortOrder,
	})
	if err != nil {
		return nil, &ProcessingError{Message: "failed to search videos", Cause: err}
	}
	return videos, nil
}

// Update overwrites tags and memo. A changed URL is re-resolved with the same
// abort semantics as Create and its transcript is acquired again according to
// the transcription option. An unchanged URL never calls the provider.
//
// The background job writes the same row, so an unchanged URL only touches
// tags and memo, and a URL change is applied only while the row still has
// the URL and status it was read with.
func (s *VideoService) Update(ctx context.Context, id int64, in VideoInput) (*models.Video, error) {
	if !in.TranscriptionOption.Valid() {
		return nil, &ValidationError{Message: "Invalid transcription option"}
	}

	var src *source
	for pass := 1; pass <= maxPasses; pass++ {
		current, err := s.videos.GetByID(ctx, id)
		if err != nil {
			return nil, s.storeError(id, "failed to load video", err)
		}

		if in.URL == current.URL {
			video, err := s.videos.UpdateAnnotations(ctx, id, in.Tags, in.Memo)
			if err != nil {
				return nil, s.storeError(id, "failed to update video", err)
			}
			s.publish(ctx, events.VideoUpdated, video)
			return video, nil
		}

		if src == nil {
			if src, err = s.acquire(ctx, in); err != nil {
				return nil, err
			}
		}

		video := *current
		video.URL = in.URL
		video.Title = src.meta.Title
		video.ChannelName = src.meta.ChannelName
		video.Tags = in.Tags
		video.Memo = in.Memo
		video.Transcript = src.transcript
		video.LastError = nil
		video.Status = models.StatusCompleted
		if in.TranscriptionOption == OptionHighQuality {
			video.Status = models.StatusProcessing
		}

		applied, err := s.videos.ReplaceSource(ctx, &video, current.URL, current.Status)
		if err != nil {
			return nil, s.storeError(id, "failed to update video", err)
		}
		if !applied {
			s.logger.Info("video changed during update, re-reading", "id", id, "pass", pass)
			continue
		}

		updated := &video
		if updated.Status == models.StatusProcessing {
			updated = s.transcriptions.Start(ctx, updated, s.language(in.LanguageCode))
		}
		s.publish(ctx, events.VideoUpdated, updated)
		return updated, nil
	}

	return nil, &ConflictError{Message: "Video was modified concurrently, please retry", Cause: ErrConcurrentUpdate}
}

// source is the provider data for a new URL, fetched once per update.
type source struct {
	meta       *youtube.Metadata
	transcript *string
}

func (s *VideoService) acquire(ctx context.Context, in VideoInput) (*source, error) {
	videoID, meta, err := s.resolve(ctx, in.URL)
	if err != nil {
		return nil, err
	}
	src := &source{meta: meta}
	if in.TranscriptionOption == OptionStandard {
		src.transcript = s.fetchCaptions(ctx, videoID)
	}
	return src, nil
}

// Delete removes a record.
func (s *VideoService) Delete(ctx context.Context, id int64) error {
	if err := s.videos.Delete(ctx, id); err != nil {
		return s.storeError(id, "failed to delete video", err)
	}
	s.logger.Info("video deleted", "id", id)
	s.publish(ctx, events.VideoDeleted, &models.Video{ID: id})
	return nil
}

// Transcript returns the stored transcript. A completed record without one
// gets captions fetched and persisted. Processing and failed records are
// returned as they are.
func (s *VideoService) Transcript(ctx context.Context, id int64) (*TranscriptResult, error) {
	video, err := s.videos.GetByID(ctx, id)
	if err != nil {
		return nil, s.storeError(id, "failed to load video", err)
	}

	if video.HasTranscript() || video.Status != models.StatusCompleted {
		return &TranscriptResult{Transcript: video.Transcript, Status: video.Status}, nil
	}

	videoID, ok := validation.ExtractVideoID(video.URL)
	if !ok {
		return &TranscriptResult{Status: video.Status}, nil
	}

	transcript := s.fetchCaptions(ctx, videoID)
	if transcript == nil {
		return &TranscriptResult{Status: video.Status}, nil
	}

	if _, err := s.videos.SetTranscript(ctx, id, *transcript); err != nil {
		return nil, s.storeError(id, "failed to store transcript", err)
	}
	return &TranscriptResult{Transcript: transcript, Status: video.Status}, nil
}

// RetryTranscription re-arms background transcription for a record. It
// returns a ConflictError while a job for the record is pending or running.
func (s *VideoService) RetryTranscription(ctx context.Context, id int64, languageCode string) (*models.Video, error) {
	if _, err := s.videos.GetByID(ctx, id); err != nil {
		return nil, s.storeError(id, "failed to load video", err)
	}

	job, err := s.transcriptions.Claim(ctx, id, s.language(languageCode))
	if err != nil {
		if errors.Is(err, ErrTranscriptionInFlight) {
			return nil, &ConflictError{Message: "Transcription already in progress", Cause: err}
		}
		if db.IsForeignKeyViolation(err) {
			return nil, &NotFoundError{ID: id}
		}
		return nil, &ProcessingError{Message: "failed to claim transcription", Cause: err}
	}

	video, err := s.videos.MarkProcessing(ctx, id)
	if err != nil {
		s.transcriptions.Release(ctx, job.ID, err)
		return nil, s.storeError(id, "failed to reset video", err)
	}

	video = s.transcriptions.Dispatch(ctx, video, job)
	s.publish(ctx, events.VideoUpdated, video)
	return video, nil
}

// TranscriptionHistory lists the most recent background jobs for a record.
func (s *VideoService) TranscriptionHistory(ctx context.Context, id int64) ([]*models.TranscriptionJob, error) {
	if _, err := s.videos.GetByID(ctx, id); err != nil {
		return nil, s.storeError(id, "failed to load video", err)
	}

	jobs, err := s.transcriptions.History(ctx, id, historyLimit)
	if err != nil {
		return nil, &ProcessingError{Message: "failed to list transcription jobs", Cause: err}
	}
	return jobs, nil
}

// ListTags returns the sorted set of distinct tags across all records.
func (s *VideoService) ListTags(ctx context.Context) ([]string, error) {
	tagStrings, err := s.videos.ListTagStrings(ctx)
	if err != nil {
		return nil, &ProcessingError{Message: "failed to list tags", Cause: err}
	}
	return models.TagIndex(tagStrings), nil
}

// resolve extracts the identifier and fetches metadata, classifying failures.
func (s *VideoService) resolve(ctx context.Context, rawURL string) (string, *youtube.Metadata, error) {
	videoID, ok := validation.ExtractVideoID(rawURL)
	if !ok {
		return "", nil, &ValidationError{Message: "Invalid YouTube URL"}
	}

	meta, err := s.metadata.FetchMetadata(ctx, videoID)
	if err != nil {
		kind := UpstreamUnavailable
		switch {
		case errors.Is(err, youtube.ErrVideoNotFound):
			kind = UpstreamUnresolvable
		case errors.Is(err, youtube.ErrAPIKeyMissing):
			kind = UpstreamMisconfigured
		}
		return "", nil, &UpstreamError{Kind: kind, VideoID: videoID, Cause: err}
	}
	return videoID, meta, nil
}

// fetchCaptions collapses every caption failure to "no transcript".
func (s *VideoService) fetchCaptions(ctx context.Context, videoID string) *string {
	text, err := s.captions.Fetch(ctx, videoID)
	if err != nil {
		if errors.Is(err, captions.ErrNoCaptions) {
			s.logger.Info("no captions available", "video_id", videoID)
		} else {
			s.logger.Warn("caption fetch failed", "video_id", videoID, "error", err)
		}
		return nil
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return &text
}

func (s *VideoService) language(code string) string {
	if code = strings.TrimSpace(code); code != "" {
		return code
	}
	return s.defaultLanguage
}

func (s *VideoService) storeError(id int64, message string, err error) error {
	if db.IsNotFound(err) {
		return &NotFoundError{ID: id}
	}
	return &ProcessingError{Message: message, Cause: fmt.Errorf("video %d: %w", id, err)}
}

func (s *VideoService) publish(ctx context.Context, eventType events.EventType, video *models.Video) {
	event := events.NewVideoEvent(eventType, video.ID)
	event.URL = video.URL
	event.Status = string(video.Status)
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish event", "type", eventType, "video_id", video.ID, "error", err)
	}
}
