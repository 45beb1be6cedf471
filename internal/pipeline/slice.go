package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"clipforge/internal/media"
	"clipforge/internal/models"
)

// runSlice cuts every selected clip out of the source file. Progress is one
// checkpoint per finished clip.
func (p *Pipeline) runSlice(ctx context.Context, video *models.Video, task *models.ProcessingTask, rep *reporter) (map[string]any, error) {
	if video.FilePath == "" {
		return nil, fmt.Errorf("video has not been downloaded")
	}

	all, err := p.clips.ListByVideo(ctx, video.ID)
	if err != nil {
		return nil, err
	}
	var selected []models.Clip
	for _, c := range all {
		if c.Selected {
			selected = append(selected, c)
		}
	}
	if len(selected) == 0 {
		return nil, fmt.Errorf("no clips selected for slicing")
	}

	clipsDir := filepath.Join(p.videoDir(video.ID), "clips")
	if err := os.MkdirAll(clipsDir, 0755); err != nil {
		return nil, fmt.Errorf("create clips directory: %w", err)
	}

	ext := filepath.Ext(video.FilePath)
	for i, c := range selected {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		outPath := filepath.Join(clipsDir, fmt.Sprintf("%03d_%s%s", i+1, c.ID, ext))
		if err := media.CutClip(ctx, video.FilePath, outPath, c.StartSec, c.EndSec); err != nil {
			return nil, fmt.Errorf("cut clip %s: %w", c.ID, err)
		}
		if err := p.clips.MarkSliced(ctx, c.ID, outPath); err != nil {
			return nil, fmt.Errorf("record clip file: %w", err)
		}
		msg := fmt.Sprintf("cut clip %d/%d", i+1, len(selected))
		if err := rep.update(float64(i+1)/float64(len(selected))*100, msg); err != nil {
			return nil, err
		}
	}
	return map[string]any{"clips": len(selected)}, nil
}
