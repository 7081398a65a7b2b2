// Package captions fetches platform-supplied caption tracks and flattens them
// into plain transcript text.
package captions

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/ad-tracker/video-catalog-go/internal/metrics"
	"github.com/ad-tracker/video-catalog-go/internal/retry"
)

const (
	providerName      = "captions"
	defaultBaseURL    = "https://www.youtube.com"
	playerResponseVar = "ytInitialPlayerResponse"
	maxBodyBytes      = 8 << 20
)

// LanguagePreference is the fixed order in which caption languages are tried.
var LanguagePreference = []string{"ja", "en"}

// ErrNoCaptions means the video has no usable caption track in a preferred
// language, or the track was empty.
var ErrNoCaptions = errors.New("no captions available")

// Fetcher returns caption text for a video identifier.
type Fetcher interface {
	Fetch(ctx context.Context, videoID string) (string, error)
}

// Client scrapes the watch page for caption tracks.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retry      retry.Config
	logger     *slog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithBaseURL points the client at another host, used by tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetry sets the backoff for page and track fetches.
func WithRetry(cfg retry.Config) Option {
	return func(c *Client) { c.retry = cfg }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates a caption client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		retry:      retry.DefaultConfig(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type captionTrack struct {
	BaseURL      string `json:"baseUrl"`
	LanguageCode string `json:"languageCode"`
	Kind         string `json:"kind"`
}

type playerResponse struct {
	Captions struct {
		Renderer struct {
			CaptionTracks []captionTrack `json:"captionTracks"`
		} `json:"playerCaptionsTracklistRenderer"`
	} `json:"captions"`
}

type timedText struct {
	Texts []string `xml:"text"`
}

// Fetch returns the caption text joined with single spaces.
func (c *Client) Fetch(ctx context.Context, videoID string) (string, error) {
	text, err := c.fetch(ctx, videoID)
	switch {
	case err == nil:
		metrics.ProviderRequests.WithLabelValues(providerName, metrics.OutcomeSuccess).Inc()
	case errors.Is(err, ErrNoCaptions):
		metrics.ProviderRequests.WithLabelValues(providerName, metrics.OutcomeEmpty).Inc()
	default:
		metrics.ProviderRequests.WithLabelValues(providerName, metrics.OutcomeError).Inc()
	}
	return text, err
}

func (c *Client) fetch(ctx context.Context, videoID string) (string, error) {
	page, err := c.get(ctx, c.baseURL+"/watch?v="+url.QueryEscape(videoID))
	if err != nil {
		return "", fmt.Errorf("fetch watch page: %w", err)
	}

	tracks, err := extractTracks(page)
	if err != nil {
		return "", err
	}

	track, ok := pickTrack(tracks, LanguagePreference)
	if !ok {
		return "", ErrNoCaptions
	}

	trackURL, err := c.resolve(track.BaseURL)
	if err != nil {
		return "", fmt.Errorf("caption track url: %w", err)
	}

	body, err := c.get(ctx, trackURL)
	if err != nil {
		return "", fmt.Errorf("fetch caption track %s: %w", track.LanguageCode, err)
	}

	text, err := flatten(body)
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", ErrNoCaptions
	}

	c.logger.Debug("fetched captions",
		"video_id", videoID,
		"language", track.LanguageCode,
		"kind", track.Kind,
		"chars", len(text),
	)
	return text, nil
}

func (c *Client) resolve(ref string) (string, error) {
	base, err := url.Parse(c.baseURL + "/")
	if err != nil {
		return "", err
	}
	u, err := base.Parse(ref)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

func (c *Client) get(ctx context.Context, target string) ([]byte, error) {
	return retry.DoValue(ctx, c.retry, func(ctx context.Context) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, retry.Permanent(err)
		}
		req.Header.Set("Accept-Language", "ja,en;q=0.8")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			statusErr := fmt.Errorf("unexpected status %d", resp.StatusCode)
			if retry.IsRetryableStatus(resp.StatusCode) {
				return nil, statusErr
			}
			return nil, retry.Permanent(statusErr)
		}
		return io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	})
}

// extractTracks finds the player response script on the watch page and
// returns its caption tracks.
func extractTracks(page []byte) ([]captionTrack, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse watch page: %w", err)
	}

	var (
		resp  playerResponse
		found bool
	)
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		script := s.Text()
		idx := strings.Index(script, playerResponseVar)
		if idx < 0 {
			return true
		}
		start := strings.Index(script[idx:], "{")
		if start < 0 {
			return true
		}
		dec := json.NewDecoder(strings.NewReader(script[idx+start:]))
		if err := dec.Decode(&resp); err != nil {
			return true
		}
		found = true
		return false
	})

	if !found {
		return nil, ErrNoCaptions
	}
	return resp.Captions.Renderer.CaptionTracks, nil
}

// pickTrack returns the first preferred language with a track, taking a
// manual track over an auto-generated one.
func pickTrack(tracks []captionTrack, preference []string) (captionTrack, bool) {
	for _, lang := range preference {
		var generated *captionTrack
		for i := range tracks {
			t := &tracks[i]
			if !matchesLanguage(t.LanguageCode, lang) || t.BaseURL == "" {
				continue
			}
			if t.Kind != "asr" {
				return *t, true
			}
			if generated == nil {
				generated = t
			}
		}
		if generated != nil {
			return *generated, true
		}
	}
	return captionTrack{}, false
}

// matchesLanguage accepts regional variants, so "en" matches "en-US".
func matchesLanguage(code, lang string) bool {
	code = strings.ToLower(code)
	return code == lang || strings.HasPrefix(code, lang+"-")
}

func flatten(body []byte) (string, error) {
	var tt timedText
	if err := xml.Unmarshal(body, &tt); err != nil {
		return "", fmt.Errorf("parse caption track: %w", err)
	}

	parts := make([]string, 0, len(tt.Texts))
	for _, raw := range tt.Texts {
		// fragments arrive entity-escaped a second time
		text := strings.Join(strings.Fields(html.UnescapeString(raw)), " ")
		if text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}
