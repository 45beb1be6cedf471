package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"clipforge/internal/media"
	"clipforge/internal/models"
)

// runDownload fetches the source media and records its path and duration on
// the video. Progress tracks downloaded bytes when the size is known.
func (p *Pipeline) runDownload(ctx context.Context, video *models.Video, task *models.ProcessingTask, rep *reporter) (map[string]any, error) {
	if video.URL == "" {
		return nil, fmt.Errorf("video has no source url")
	}
	dir, err := p.ensureVideoDir(video.ID)
	if err != nil {
		return nil, err
	}

	path, res, err := p.fetcher.Fetch(ctx, video.URL, dir, func(current, total int64) {
		if total > 0 {
			rep.update(float64(current)/float64(total)*100, "downloading")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	if !media.IsSupportedVideo(path) {
		return nil, fmt.Errorf("unsupported video format: %s", filepath.Ext(path))
	}

	duration := res.DurationSec
	if duration <= 0 {
		if duration, err = media.ProbeDuration(path); err != nil {
			return nil, err
		}
	}

	video.FilePath = path
	video.Duration = duration
	if video.Title == "" && res.Title != "" {
		video.Title = res.Title
	}
	if err := p.videos.Update(ctx, video); err != nil {
		return nil, fmt.Errorf("save video metadata: %w", err)
	}

	return map[string]any{
		"file":         filepath.Base(path),
		"duration_sec": duration,
	}, nil
}
