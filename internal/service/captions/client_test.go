package captions

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ad-tracker/video-catalog-go/internal/retry"
)

const trackXML = `<?xml version="1.0" encoding="utf-8" ?><transcript>` +
	`<text start="0.0" dur="1.5">Never gonna</text>` +
	`<text start="1.5" dur="1.5">give you &amp;#39;up&amp;#39;</text>` +
	`<text start="3.0" dur="1.0">   </text>` +
	`<text start="4.0" dur="1.0">never
gonna</text></transcript>`

func watchPage(tracksJSON string) string {
	return `<html><head><script>var foo = 1;</script></head><body>` +
		`<script>var ytInitialPlayerResponse = {"captions":{"playerCaptionsTracklistRenderer":{"captionTracks":` +
		tracksJSON + `}}};var meta = {};</script></body></html>`
}

func newServer(t *testing.T, page string, track string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var trackCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/watch", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "vid123", r.URL.Query().Get("v"))
		_, _ = fmt.Fprint(w, page)
	})
	mux.HandleFunc("/api/timedtext", func(w http.ResponseWriter, r *http.Request) {
		trackCalls.Add(1)
		assert.Equal(t, r.URL.Query().Get("lang"), "ja")
		_, _ = fmt.Fprint(w, track)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &trackCalls
}

func TestFetch(t *testing.T) {
	page := watchPage(`[{"baseUrl":"/api/timedtext?lang=en","languageCode":"en"},{"baseUrl":"/api/timedtext?lang=ja","languageCode":"ja"}]`)
	srv, calls := newServer(t, page, trackXML)

	c := NewClient(WithBaseURL(srv.URL), WithRetry(retry.Config{MaxAttempts: 1}))
	text, err := c.Fetch(context.Background(), "vid123")

	require.NoError(t, err)
	assert.Equal(t, "Never gonna give you 'up' never gonna", text)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetch_NoCaptions(t *testing.T) {
	tests := []struct {
		name  string
		page  string
		track string
	}{
		{name: "no player response", page: "<html><body><script>var x = 1;</script></body></html>"},
		{name: "no tracks", page: watchPage(`[]`)},
		{name: "only other languages", page: watchPage(`[{"baseUrl":"/api/timedtext?lang=fr","languageCode":"fr"}]`)},
		{name: "empty track", page: watchPage(`[{"baseUrl":"/api/timedtext?lang=ja","languageCode":"ja"}]`), track: `<transcript></transcript>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newServer(t, tt.page, tt.track)
			c := NewClient(WithBaseURL(srv.URL), WithRetry(retry.Config{MaxAttempts: 1}))

			text, err := c.Fetch(context.Background(), "vid123")
			assert.ErrorIs(t, err, ErrNoCaptions)
			assert.Empty(t, text)
		})
	}
}

func TestFetch_TransientErrorIsRetried(t *testing.T) {
	var pageCalls atomic.Int32
	page := watchPage(`[{"baseUrl":"/api/timedtext?lang=ja","languageCode":"ja"}]`)

	mux := http.NewServeMux()
	mux.HandleFunc("/watch", func(w http.ResponseWriter, _ *http.Request) {
		if pageCalls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = fmt.Fprint(w, page)
	})
	mux.HandleFunc("/api/timedtext", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprint(w, trackXML)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithRetry(retry.Config{MaxAttempts: 3, InitialInterval: time.Millisecond}))
	text, err := c.Fetch(context.Background(), "vid123")

	require.NoError(t, err)
	assert.NotEmpty(t, text)
	assert.Equal(t, int32(2), pageCalls.Load())
}

func TestFetch_ClientErrorIsFetchFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithRetry(retry.Config{MaxAttempts: 3, InitialInterval: time.Millisecond}))
	_, err := c.Fetch(context.Background(), "vid123")

	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNoCaptions))
}

func TestPickTrack(t *testing.T) {
	tracks := []captionTrack{
		{BaseURL: "en-asr", LanguageCode: "en", Kind: "asr"},
		{BaseURL: "ja-asr", LanguageCode: "ja", Kind: "asr"},
		{BaseURL: "ja-manual", LanguageCode: "ja"},
		{BaseURL: "en-us", LanguageCode: "en-US"},
	}

	tests := []struct {
		name   string
		tracks []captionTrack
		want   string
		wantOK bool
	}{
		{name: "manual beats generated in primary language", tracks: tracks, want: "ja-manual", wantOK: true},
		{name: "generated primary beats manual secondary", tracks: tracks[:2], want: "ja-asr", wantOK: true},
		{name: "falls back to regional secondary", tracks: tracks[3:], want: "en-us", wantOK: true},
		{name: "nothing matches", tracks: []captionTrack{{BaseURL: "x", LanguageCode: "de"}}, wantOK: false},
		{name: "track without url is skipped", tracks: []captionTrack{{LanguageCode: "ja"}}, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := pickTrack(tt.tracks, LanguagePreference)
			assert.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, tt.want, got.BaseURL)
			}
		})
	}
}
