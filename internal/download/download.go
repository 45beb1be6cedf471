// Package download fetches source media, either from YouTube or from a
// direct URL, reporting byte-level progress to the caller.
package download

import (
	"context"
	"net/url"
	"strings"
)

// Result carries source metadata discovered during download.
type Result struct {
	Title       string
	Author      string
	DurationSec float64
}

// Fetcher dispatches a source URL to the matching downloader.
type Fetcher struct {
	youtube *YouTubeDownloader
	direct  *HTTPDownloader
}

// NewFetcher creates a Fetcher with default downloaders.
func NewFetcher() *Fetcher {
	return &Fetcher{
		youtube: NewYouTubeDownloader(),
		direct:  NewHTTPDownloader(),
	}
}

// Fetch downloads the media at rawURL into destDir and reports byte progress.
func (f *Fetcher) Fetch(ctx context.Context, rawURL, destDir string, progress func(current, total int64)) (string, *Result, error) {
	if IsYouTubeURL(rawURL) {
		return f.youtube.Download(ctx, rawURL, destDir, progress)
	}
	return f.direct.Download(ctx, rawURL, destDir, progress)
}

// IsYouTubeURL reports whether the URL points at a YouTube video.
func IsYouTubeURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	switch host {
	case "youtube.com", "m.youtube.com", "youtu.be", "music.youtube.com":
		return true
	}
	return false
}
