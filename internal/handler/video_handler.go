// Package handler provides HTTP request handlers for the application.
package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ad-tracker/video-catalog-go/internal/db/models"
	"github.com/ad-tracker/video-catalog-go/internal/service"

	"github.com/gin-gonic/gin"
)

// Error details returned in the {"detail": ...} envelope.
const (
	detailVideoNotFound   = "Video not found"
	detailUnresolvable    = "Video could not be resolved on YouTube."
	detailUpstreamFailure = "Could not retrieve video details from YouTube API."
	detailInternal        = "Internal Server Error"
	detailInvalidID       = "Video id must be a positive integer"
)

// VideoService is the catalog behaviour the HTTP layer needs.
type VideoService interface {
	Create(ctx context.Context, in service.VideoInput) (*models.Video, error)
	Get(ctx context.Context, id int64) (*models.Video, error)
	Search(ctx context.Context, in service.SearchInput) ([]*models.Video, error)
	Update(ctx context.Context, id int64, in service.VideoInput) (*models.Video, error)
	Delete(ctx context.Context, id int64) error
	Transcript(ctx context.Context, id int64) (*service.TranscriptResult, error)
	RetryTranscription(ctx context.Context, id int64, languageCode string) (*models.Video, error)
	TranscriptionHistory(ctx context.Context, id int64) ([]*models.TranscriptionJob, error)
	ListTags(ctx context.Context) ([]string, error)
}

// VideoHandler serves the catalog endpoints.
type VideoHandler struct {
	videos VideoService
	logger *slog.Logger
}

// NewVideoHandler creates a new VideoHandler.
func NewVideoHandler(videos VideoService, logger *slog.Logger) *VideoHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &VideoHandler{
		videos: videos,
		logger: logger,
	}
}

// VideoRequest is the body of create and update.
type VideoRequest struct {
	URL                 string  `json:"url" binding:"required"`
	Tags                *string `json:"tags"`
	Memo                *string `json:"memo"`
	TranscriptionOption string  `json:"transcriptionOption" binding:"omitempty,oneof=none standard high_quality"`
	LanguageCode        string  `json:"languageCode" binding:"omitempty,max=35"`
}

func (r VideoRequest) input() service.VideoInput {
	return service.VideoInput{
		URL:                 r.URL,
		Tags:                r.Tags,
		Memo:                r.Memo,
		TranscriptionOption: service.TranscriptionOption(r.TranscriptionOption),
		LanguageCode:        r.LanguageCode,
	}
}

// TranscriptionRequest is the optional body of a transcription retry.
type TranscriptionRequest struct {
	LanguageCode string `json:"languageCode" binding:"omitempty,max=35"`
}

// SearchQuery holds the list filters.
type SearchQuery struct {
	TitleQuery string `form:"title_query"`
	TagsQuery  string `form:"tags_query"`
	SortBy     string `form:"sort_by"`
	SortOrder  string `form:"sort_order"`
}

// RegisterRoutes mounts the catalog endpoints on rg.
func (h *VideoHandler) RegisterRoutes(rg *gin.RouterGroup) {
	videos := rg.Group("/videos")
	videos.POST("/", h.Create)
	videos.GET("/", h.List)
	videos.GET("/:id", h.Get)
	videos.PUT("/:id", h.Update)
	videos.DELETE("/:id", h.Delete)
	videos.GET("/:id/transcript", h.Transcript)
	videos.POST("/:id/transcription", h.RetryTranscription)
	videos.GET("/:id/transcription", h.TranscriptionHistory)

	rg.GET("/tags/", h.ListTags)
}

// Create handles POST /videos/.
func (h *VideoHandler) Create(c *gin.Context) {
	var req VideoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.unprocessable(c, err)
		return
	}

	video, err := h.videos.Create(c.Request.Context(), req.input())
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, video)
}

// List handles GET /videos/.
func (h *VideoHandler) List(c *gin.Context) {
	var q SearchQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.unprocessable(c, err)
		return
	}

	videos, err := h.videos.Search(c.Request.Context(), service.SearchInput{
		TitleQuery: q.TitleQuery,
		TagsQuery:  q.TagsQuery,
		SortBy:     q.SortBy,
		SortOrder:  q.SortOrder,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, videos)
}

// Get handles GET /videos/:id.
func (h *VideoHandler) Get(c *gin.Context) {
	id, ok := h.videoID(c)
	if !ok {
		return
	}

	video, err := h.videos.Get(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, video)
}

// Update handles PUT /videos/:id.
func (h *VideoHandler) Update(c *gin.Context) {
	id, ok := h.videoID(c)
	if !ok {
		return
	}

	var req VideoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.unprocessable(c, err)
		return
	}

	video, err := h.videos.Update(c.Request.Context(), id, req.input())
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, video)
}

// Delete handles DELETE /videos/:id.
func (h *VideoHandler) Delete(c *gin.Context) {
	id, ok := h.videoID(c)
	if !ok {
		return
	}

	if err := h.videos.Delete(c.Request.Context(), id); err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Video deleted successfully"})
}

// Transcript handles GET /videos/:id/transcript.
func (h *VideoHandler) Transcript(c *gin.Context) {
	id, ok := h.videoID(c)
	if !ok {
		return
	}

	result, err := h.videos.Transcript(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// RetryTranscription handles POST /videos/:id/transcription. The body is
// optional.
func (h *VideoHandler) RetryTranscription(c *gin.Context) {
	id, ok := h.videoID(c)
	if !ok {
		return
	}

	var req TranscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		h.unprocessable(c, err)
		return
	}

	video, err := h.videos.RetryTranscription(c.Request.Context(), id, req.LanguageCode)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, video)
}

// TranscriptionHistory handles GET /videos/:id/transcription.
func (h *VideoHandler) TranscriptionHistory(c *gin.Context) {
	id, ok := h.videoID(c)
	if !ok {
		return
	}

	jobs, err := h.videos.TranscriptionHistory(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, jobs)
}

// ListTags handles GET /tags/.
func (h *VideoHandler) ListTags(c *gin.Context) {
	tags, err := h.videos.ListTags(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, tags)
}

func (h *VideoHandler) videoID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": detailInvalidID})
		return 0, false
	}
	return id, true
}

func (h *VideoHandler) unprocessable(c *gin.Context, err error) {
	h.logger.Warn("invalid request",
		"path", c.Request.URL.Path,
		"error", err,
	)
	c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
}

func (h *VideoHandler) handleError(c *gin.Context, err error) {
	var (
		validationErr *service.ValidationError
		notFoundErr   *service.NotFoundError
		upstreamErr   *service.UpstreamError
		conflictErr   *service.ConflictError
	)

	switch {
	case errors.As(err, &validationErr):
		h.logger.Info("validation error", "path", c.Request.URL.Path, "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"detail": validationErr.Message})
	case errors.As(err, &notFoundErr):
		c.JSON(http.StatusNotFound, gin.H{"detail": detailVideoNotFound})
	case errors.As(err, &upstreamErr):
		if upstreamErr.Kind == service.UpstreamUnresolvable {
			h.logger.Info("video not resolvable", "video_id", upstreamErr.VideoID)
			c.JSON(http.StatusNotFound, gin.H{"detail": detailUnresolvable})
			return
		}
		h.logger.Error("metadata provider failure", "path", c.Request.URL.Path, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": detailUpstreamFailure})
	case errors.As(err, &conflictErr):
		c.JSON(http.StatusConflict, gin.H{"detail": conflictErr.Message})
	default:
		h.logger.Error("request failed", "path", c.Request.URL.Path, "error", err)
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": detailInternal})
	}
}
