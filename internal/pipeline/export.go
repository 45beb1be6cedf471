package pipeline

import (
	"context"
	"fmt"

	"clipforge/internal/export"
	"clipforge/internal/models"
)

// defaultExportTarget is used when the trigger did not name one.
const defaultExportTarget = "fcpxml"

// runExport hands the sliced clips to an editing-tool target. The target
// name travels in the task metadata; the step itself is one-shot, so
// progress only marks the handoff boundaries.
func (p *Pipeline) runExport(ctx context.Context, video *models.Video, task *models.ProcessingTask, rep *reporter) (map[string]any, error) {
	targetName := defaultExportTarget
	if v, ok := task.Metadata["target"].(string); ok && v != "" {
		targetName = v
	}
	target, err := p.exports.Get(targetName)
	if err != nil {
		return nil, err
	}

	all, err := p.clips.ListByVideo(ctx, video.ID)
	if err != nil {
		return nil, err
	}
	manifest := &export.Manifest{
		VideoID:      video.ID,
		Title:        video.Title,
		DurationSec:  video.Duration,
		SourcePath:   video.FilePath,
		SubtitlePath: video.SubtitlePath,
	}
	for _, c := range all {
		if c.FilePath == "" {
			continue
		}
		manifest.Clips = append(manifest.Clips, export.ClipEntry{
			ID:       c.ID,
			Title:    c.Title,
			StartSec: c.StartSec,
			EndSec:   c.EndSec,
			FilePath: c.FilePath,
		})
	}
	if len(manifest.Clips) == 0 {
		return nil, fmt.Errorf("no sliced clips to export")
	}

	if err := rep.update(20, "exporting to "+targetName); err != nil {
		return nil, err
	}
	location, err := target.Export(ctx, manifest)
	if err != nil {
		return nil, fmt.Errorf("export to %s: %w", targetName, err)
	}
	if err := p.clips.MarkExported(ctx, video.ID); err != nil {
		return nil, fmt.Errorf("mark clips exported: %w", err)
	}
	return map[string]any{"target": targetName, "location": location}, nil
}
