package download

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	ytdl "github.com/kkdai/youtube/v2"
)

// YouTubeDownloader fetches source media from YouTube.
type YouTubeDownloader struct {
	client ytdl.Client
}

// NewYouTubeDownloader creates a new YouTubeDownloader.
func NewYouTubeDownloader() *YouTubeDownloader {
	return &YouTubeDownloader{client: ytdl.Client{}}
}

// Download fetches the best muxed (video+audio) format into destDir and
// reports byte progress. Returns the downloaded file path and source info.
func (d *YouTubeDownloader) Download(ctx context.Context, videoURL, destDir string, progress func(current, total int64)) (string, *Result, error) {
	video, err := d.client.GetVideo(videoURL)
	if err != nil {
		return "", nil, fmt.Errorf("failed to get video: %w", err)
	}

	format := selectMuxedFormat(video)
	if format == nil {
		return "", nil, fmt.Errorf("no muxed video format available")
	}

	stream, size, err := d.client.GetStreamContext(ctx, video, format)
	if err != nil {
		return "", nil, fmt.Errorf("failed to get stream: %w", err)
	}
	defer stream.Close()

	outputPath := filepath.Join(destDir, sanitizeFilename(video.Title)+extensionFor(format.MimeType))
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", nil, fmt.Errorf("failed to create directory: %w", err)
	}
	file, err := os.Create(outputPath)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if err := copyWithProgress(ctx, file, stream, size, progress); err != nil {
		os.Remove(outputPath)
		return "", nil, fmt.Errorf("failed to download: %w", err)
	}

	return outputPath, &Result{
		Title:       video.Title,
		Author:      video.Author,
		DurationSec: video.Duration.Seconds(),
	}, nil
}

// selectMuxedFormat picks the highest-bitrate format carrying both video and
// audio tracks, preferring mp4.
func selectMuxedFormat(video *ytdl.Video) *ytdl.Format {
	var best *ytdl.Format
	score := func(f *ytdl.Format) int {
		s := f.Bitrate
		if strings.Contains(f.MimeType, "mp4") {
			s += 1 << 30 // mp4 slices cleanly with stream copy
		}
		return s
	}
	for i := range video.Formats {
		f := &video.Formats[i]
		if !strings.HasPrefix(f.MimeType, "video/") || f.AudioChannels == 0 {
			continue
		}
		if best == nil || score(f) > score(best) {
			best = f
		}
	}
	return best
}

func extensionFor(mimeType string) string {
	if strings.Contains(mimeType, "mp4") {
		return ".mp4"
	}
	if strings.Contains(mimeType, "webm") {
		return ".webm"
	}
	return ".video"
}

// copyWithProgress copies src to dst, invoking progress per chunk.
func copyWithProgress(ctx context.Context, dst io.Writer, src io.Reader, total int64, progress func(current, total int64)) error {
	buf := make([]byte, 32*1024)
	var written int64

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		nr, err := src.Read(buf)
		if nr > 0 {
			nw, ew := dst.Write(buf[0:nr])
			if nw > 0 {
				written += int64(nw)
				if progress != nil {
					progress(written, total)
				}
			}
			if ew != nil {
				return ew
			}
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			return err
		}
	}
	return nil
}

// sanitizeFilename replaces characters that are not usable in file names.
func sanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
	)
	return replacer.Replace(name)
}
