// youtube.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const defaultYouTubeAPIURL = "https://www.googleapis.com/youtube/v3"

// videoIDPatterns are tried in order; the first match wins
var videoIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`youtube\.com/watch\?(?:.*&)?v=([^&#]+)`),
	regexp.MustCompile(`youtu\.be/([^?&#/]+)`),
	regexp.MustCompile(`youtube(?:-nocookie)?\.com/embed/([^?&#/]+)`),
	regexp.MustCompile(`youtube\.com/shorts/([^?&#/]+)`),
}

type videoSnippet struct {
	Title        string `json:"title"`
	ChannelTitle string `json:"channelTitle"`
	PublishedAt  string `json:"publishedAt"`
}

// videoListResponse is the subset of the videos.list response we read
type videoListResponse struct {
	Items []struct {
		Snippet videoSnippet `json:"snippet"`
	} `json:"items"`
}

// YouTubeExtractor reads title, channel and publish date from the video
// metadata API; no generative step is involved
type YouTubeExtractor struct {
	fetcher *Fetcher
	apiURL  string
	apiKey  string
	limiter *rate.Limiter
	domain  string
	logger  *slog.Logger
}

func (h *YouTubeExtractor) Extract(ctx context.Context, videoURL string) (*SourceRecord, error) {
	videoID, err := extractVideoID(videoURL)
	if err != nil {
		return nil, err
	}
	if h.apiKey == "" {
		return nil, fmt.Errorf("YouTube API key required: use --youtube-api-key flag or YOUTUBE_API_KEY environment variable")
	}

	if h.limiter != nil {
		if err := h.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("waiting for rate limiter: %w", err)
		}
	}

	snippet, err := h.fetchSnippet(ctx, videoID)
	if err != nil {
		return nil, err
	}

	title := strings.TrimSpace(snippet.Title)
	return &SourceRecord{
		Type:        SourceYouTube,
		Title:       title,
		Author:      strings.TrimSpace(snippet.ChannelTitle),
		Date:        formatPublishedAt(snippet.PublishedAt),
		Source:      "YouTube",
		OriginalURL: videoURL,
		ShortURL:    shortURL(h.domain, Slug(title)),
	}, nil
}

func (h *YouTubeExtractor) fetchSnippet(ctx context.Context, videoID string) (*videoSnippet, error) {
	apiURL := h.apiURL
	if apiURL == "" {
		apiURL = defaultYouTubeAPIURL
	}
	q := url.Values{}
	q.Set("part", "snippet")
	q.Set("id", videoID)
	endpoint := strings.TrimRight(apiURL, "/") + "/videos?" + q.Encode()

	// The key travels in a header so it never leaks into error rows
	body, err := h.fetcher.Get(ctx, endpoint, map[string]string{
		"Accept":         "application/json",
		"X-Goog-Api-Key": h.apiKey,
	})
	if err != nil {
		return nil, newExtractionError(KindUpstreamUnavailable, err, "video metadata request failed")
	}

	var resp videoListResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, newExtractionError(KindMalformedResponse, err, "decoding video metadata")
	}
	if len(resp.Items) == 0 {
		return nil, newExtractionError(KindUpstreamNotFound, nil, "video %s not found", videoID)
	}

	h.logger.Debug("youtube.video.found", "video_id", videoID)
	return &resp.Items[0].Snippet, nil
}

// extractVideoID parses the video identifier out of a watch, short, embed or
// shorts link
func extractVideoID(videoURL string) (string, error) {
	for _, p := range videoIDPatterns {
		if m := p.FindStringSubmatch(videoURL); m != nil && m[1] != "" {
			return m[1], nil
		}
	}
	return "", newExtractionError(KindIdentifierNotFound, nil, "could not extract video ID from %s", videoURL)
}

// formatPublishedAt renders an RFC 3339 timestamp as "Jan 02, 2006"
func formatPublishedAt(publishedAt string) string {
	t, err := time.Parse(time.RFC3339, publishedAt)
	if err != nil {
		return publishedAt
	}
	return t.Format("Jan 02, 2006")
}
