// Package youtube resolves video identifiers to their title and channel
// through the YouTube Data API v3.
package youtube

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/ad-tracker/video-catalog-go/internal/metrics"
	"github.com/ad-tracker/video-catalog-go/internal/retry"
)

const providerName = "youtube"

var (
	// ErrAPIKeyMissing means no Data API key was configured.
	ErrAPIKeyMissing = errors.New("youtube API key is not configured")

	// ErrVideoNotFound means the API returned no item for the identifier.
	ErrVideoNotFound = errors.New("video not found on youtube")
)

// APIError is a remote or transport failure talking to the Data API.
type APIError struct {
	VideoID    string
	StatusCode int
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("youtube api: video %s: status %d: %v", e.VideoID, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("youtube api: video %s: %v", e.VideoID, e.Err)
}

func (e *APIError) Unwrap() error { return e.Err }

// Metadata is the descriptive data stored on a video record.
type Metadata struct {
	VideoID     string `json:"video_id"`
	Title       string `json:"title"`
	ChannelName string `json:"channel_name"`
}

// MetadataProvider resolves an identifier to its metadata.
type MetadataProvider interface {
	FetchMetadata(ctx context.Context, videoID string) (*Metadata, error)
}

// Client wraps the YouTube Data API v3 client.
type Client struct {
	service *youtube.Service
	retry   retry.Config
	logger  *slog.Logger
}

// ClientOption customizes a Client.
type ClientOption func(*clientOptions)

type clientOptions struct {
	retry      retry.Config
	logger     *slog.Logger
	apiOptions []option.ClientOption
}

// WithRetry sets the backoff used for transient failures.
func WithRetry(cfg retry.Config) ClientOption {
	return func(o *clientOptions) { o.retry = cfg }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(o *clientOptions) { o.logger = logger }
}

// WithAPIOptions passes options through to the generated API client,
// for example option.WithEndpoint in tests.
func WithAPIOptions(opts ...option.ClientOption) ClientOption {
	return func(o *clientOptions) { o.apiOptions = append(o.apiOptions, opts...) }
}

// NewClient creates a new YouTube API client. An empty apiKey yields a client
// whose every lookup fails with ErrAPIKeyMissing.
func NewClient(ctx context.Context, apiKey string, opts ...ClientOption) (*Client, error) {
	o := clientOptions{
		retry:  retry.DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Client{retry: o.retry, logger: o.logger}
	if apiKey == "" {
		c.logger.Warn("YOUTUBE_API_KEY not set, metadata lookups will fail")
		return c, nil
	}

	apiOpts := append([]option.ClientOption{option.WithAPIKey(apiKey)}, o.apiOptions...)
	service, err := youtube.NewService(ctx, apiOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create YouTube service: %w", err)
	}
	c.service = service

	return c, nil
}

// FetchMetadata returns the title and channel name for videoID.
func (c *Client) FetchMetadata(ctx context.Context, videoID string) (*Metadata, error) {
	if c.service == nil {
		return nil, ErrAPIKeyMissing
	}

	meta, err := retry.DoValue(ctx, c.retry, func(ctx context.Context) (*Metadata, error) {
		resp, err := c.service.Videos.List([]string{"snippet"}).Id(videoID).Context(ctx).Do()
		if err != nil {
			return nil, classify(videoID, err)
		}
		if len(resp.Items) == 0 || resp.Items[0].Snippet == nil {
			return nil, retry.Permanent(ErrVideoNotFound)
		}
		snippet := resp.Items[0].Snippet
		return &Metadata{
			VideoID:     videoID,
			Title:       snippet.Title,
			ChannelName: snippet.ChannelTitle,
		}, nil
	})

	switch {
	case err == nil:
		metrics.ProviderRequests.WithLabelValues(providerName, metrics.OutcomeSuccess).Inc()
	case errors.Is(err, ErrVideoNotFound):
		metrics.ProviderRequests.WithLabelValues(providerName, metrics.OutcomeEmpty).Inc()
		c.logger.Info("video not found on youtube", "video_id", videoID)
	default:
		metrics.ProviderRequests.WithLabelValues(providerName, metrics.OutcomeError).Inc()
		c.logger.Error("youtube metadata lookup failed", "video_id", videoID, "error", err)
	}
	return meta, err
}

// classify wraps err in an APIError and marks client errors permanent.
func classify(videoID string, err error) error {
	apiErr := &APIError{VideoID: videoID, Err: err}

	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		apiErr.StatusCode = gErr.Code
		if !retry.IsRetryableStatus(gErr.Code) {
			return retry.Permanent(apiErr)
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return retry.Permanent(apiErr)
	}
	return apiErr
}
