package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"time"
)

// youtubeVideoIDRegex extracts the 11-character video ID from the URL forms
// youtube.com/watch?v=, youtube.com/embed/, youtube.com/v/,
// youtube.com/shorts/, and youtu.be/ — following the original system's
// YOUTUBE_VIDEO_ID_REGEX.
var youtubeVideoIDRegex = regexp.MustCompile(
	`(?:https?://)?(?:www\.)?(?:youtube\.com/(?:watch\?v=|embed/|v/|shorts/)|youtu\.be/)([a-zA-Z0-9_-]{11})`,
)

// IsYouTubeURL reports whether input names a YouTube video, used by source
// ingestion (§4.3 phase 1) to classify YouTube vs. generic HTTP before
// dispatch.
func IsYouTubeURL(input string) bool {
	return youtubeVideoIDRegex.MatchString(input)
}

// YouTubeVideoID extracts the 11-character video ID, or "" if input doesn't
// match a recognised YouTube URL form.
func YouTubeVideoID(input string) string {
	m := youtubeVideoIDRegex.FindStringSubmatch(input)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// TranscriptFetcher is the external transcript API collaborator (§1: "no
// transcription of user-supplied audio; transcription of YouTube uses an
// external transcript API"). The core only depends on this interface.
type TranscriptFetcher interface {
	FetchTranscript(ctx context.Context, videoID string) (text, title string, err error)
}

// HTTPTranscriptFetcher calls a configurable transcript API endpoint,
// expecting a plain-text transcript body. The endpoint and auth are
// environment-configured so the core never hardcodes a specific vendor;
// YOUTUBE_TRANSCRIPT_API_URL has no default; while it is unset,
// FetchTranscript returns a not-configured error.
type HTTPTranscriptFetcher struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

// NewHTTPTranscriptFetcher builds a fetcher from environment configuration.
func NewHTTPTranscriptFetcher() *HTTPTranscriptFetcher {
	return &HTTPTranscriptFetcher{
		BaseURL: envOr("YOUTUBE_TRANSCRIPT_API_URL", ""),
		APIKey:  os.Getenv("YOUTUBE_TRANSCRIPT_API_KEY"),
		Client:  &http.Client{Timeout: 60 * time.Second},
	}
}

func (f *HTTPTranscriptFetcher) FetchTranscript(ctx context.Context, videoID string) (string, string, error) {
	if f.BaseURL == "" {
		return "", "", fmt.Errorf("YOUTUBE_TRANSCRIPT_API_URL not configured")
	}
	endpoint := f.BaseURL + "?video_id=" + url.QueryEscape(videoID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", "", fmt.Errorf("build transcript request: %w", err)
	}
	if f.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.APIKey)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("fetch transcript for %s: %w", videoID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("transcript API returned HTTP %d for %s", resp.StatusCode, videoID)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxInputSize))
	if err != nil {
		return "", "", fmt.Errorf("read transcript response: %w", err)
	}
	text := string(body)
	if len(text) == 0 {
		return "", "", fmt.Errorf("transcript API returned empty transcript for %s", videoID)
	}
	return text, "YouTube video " + videoID, nil
}

// YouTubeIngester is the third ingestion path alongside generic HTTP and
// PDF, implementing the same Ingester interface as the others.
type YouTubeIngester struct {
	Fetcher TranscriptFetcher
}

// NewYouTubeIngester builds a YouTubeIngester with the default
// environment-configured transcript fetcher.
func NewYouTubeIngester() *YouTubeIngester {
	return &YouTubeIngester{Fetcher: NewHTTPTranscriptFetcher()}
}

func (y *YouTubeIngester) Ingest(ctx context.Context, source string) (*Content, error) {
	videoID := YouTubeVideoID(source)
	if videoID == "" {
		return nil, fmt.Errorf("could not extract a video ID from %s", source)
	}
	text, title, err := y.Fetcher.FetchTranscript(ctx, videoID)
	if err != nil {
		return nil, fmt.Errorf("could not fetch YouTube transcript for %s: %w", source, err)
	}
	return &Content{
		Text:      text,
		Title:     title,
		Source:    source,
		WordCount: wordCount(text),
	}, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
