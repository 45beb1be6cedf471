package download

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"
)

// HTTPDownloader fetches media from a direct URL.
type HTTPDownloader struct {
	client *http.Client
}

// NewHTTPDownloader creates a new HTTPDownloader.
func NewHTTPDownloader() *HTTPDownloader {
	return &HTTPDownloader{
		client: &http.Client{Timeout: 0}, // long downloads; canceled via ctx
	}
}

// Download streams the URL into destDir, reporting byte progress. The total
// passed to progress is -1 when the server does not announce a length.
func (d *HTTPDownloader) Download(ctx context.Context, rawURL, destDir string, progress func(current, total int64)) (string, *Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", nil, fmt.Errorf("invalid url: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("unexpected status: %s", resp.Status)
	}

	filename := deriveFilename(rawURL)
	outputPath := filepath.Join(destDir, filename)
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", nil, fmt.Errorf("failed to create directory: %w", err)
	}
	file, err := os.Create(outputPath)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if err := copyWithProgress(ctx, file, resp.Body, resp.ContentLength, progress); err != nil {
		os.Remove(outputPath)
		return "", nil, fmt.Errorf("failed to download: %w", err)
	}

	title := filename[:len(filename)-len(filepath.Ext(filename))]
	return outputPath, &Result{Title: title}, nil
}

// deriveFilename picks a file name from the URL path, falling back to a
// timestamped name when the path carries none.
func deriveFilename(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err == nil {
		if base := path.Base(u.Path); base != "" && base != "/" && base != "." {
			return sanitizeFilename(base)
		}
	}
	return fmt.Sprintf("source-%d.mp4", time.Now().Unix())
}
