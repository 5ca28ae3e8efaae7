// youtube_test.go
package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractVideoID(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		expected string
		wantErr  bool
	}{
		{"watch", "https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ", false},
		{"watch with extra params", "https://www.youtube.com/watch?feature=share&v=dQw4w9WgXcQ&t=42", "dQw4w9WgXcQ", false},
		{"short link", "https://youtu.be/dQw4w9WgXcQ?si=abc", "dQw4w9WgXcQ", false},
		{"embed", "https://www.youtube.com/embed/dQw4w9WgXcQ", "dQw4w9WgXcQ", false},
		{"nocookie embed", "https://www.youtube-nocookie.com/embed/dQw4w9WgXcQ", "dQw4w9WgXcQ", false},
		{"shorts", "https://www.youtube.com/shorts/abc123XYZ", "abc123XYZ", false},
		{"channel page", "https://www.youtube.com/@veritasium", "", true},
		{"empty v", "https://www.youtube.com/watch?v=", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractVideoID(tt.url)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrIdentifierNotFound)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestYouTubeExtractor(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/videos", r.URL.Path)
		assert.Equal(t, "snippet", r.URL.Query().Get("part"))
		assert.Equal(t, "test-key", r.Header.Get("X-Goog-Api-Key"))

		if r.URL.Query().Get("id") == "missing" {
			w.Write([]byte(`{"items": []}`))
			return
		}
		w.Write([]byte(`{
			"items": [{
				"snippet": {
					"title": "Why Is It Dark at Night?",
					"channelTitle": "Veritasium",
					"publishedAt": "2023-04-15T14:00:05Z"
				}
			}]
		}`))
	}))
	defer server.Close()

	h := &YouTubeExtractor{
		fetcher: NewFetcher(5*time.Second, "", 0, 1, discardLogger()),
		apiURL:  server.URL,
		apiKey:  "test-key",
		limiter: newRateLimiter(6000),
		domain:  "ve42.co",
		logger:  discardLogger(),
	}

	record, err := h.Extract(context.Background(), "https://youtu.be/abc123")
	require.NoError(t, err)
	assert.Equal(t, &SourceRecord{
		Type:        SourceYouTube,
		Title:       "Why Is It Dark at Night?",
		Author:      "Veritasium",
		Date:        "Apr 15, 2023",
		Source:      "YouTube",
		OriginalURL: "https://youtu.be/abc123",
		ShortURL:    "ve42.co/whyisitd",
	}, record)

	_, err = h.Extract(context.Background(), "https://youtu.be/missing")
	assert.ErrorIs(t, err, ErrUpstreamNotFound)
}

func TestYouTubeExtractorRequiresKey(t *testing.T) {
	h := &YouTubeExtractor{
		fetcher: NewFetcher(time.Second, "", 0, 1, discardLogger()),
		logger:  discardLogger(),
	}

	_, err := h.Extract(context.Background(), "https://youtu.be/abc123")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "YOUTUBE_API_KEY")
}

func TestYouTubeExtractorUpstreamFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	h := &YouTubeExtractor{
		fetcher: NewFetcher(time.Second, "", 0, 1, discardLogger()),
		apiURL:  server.URL,
		apiKey:  "bad-key",
		logger:  discardLogger(),
	}

	_, err := h.Extract(context.Background(), "https://youtu.be/abc123")
	require.Error(t, err)
	assert.Equal(t, KindUpstreamUnavailable, KindOf(err))
	assert.NotContains(t, err.Error(), "bad-key")
}

func TestFormatPublishedAt(t *testing.T) {
	assert.Equal(t, "Jan 05, 2021", formatPublishedAt("2021-01-05T10:00:00Z"))
	assert.Equal(t, "yesterday", formatPublishedAt("yesterday"))
}
