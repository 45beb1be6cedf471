package pipeline

import (
	"context"

	"clipforge/internal/models"
)

// runner executes one stage against a video. The returned metadata is
// persisted on the completed task.
type runner func(ctx context.Context, video *models.Video, task *models.ProcessingTask, rep *reporter) (map[string]any, error)

// runners maps every pipeline stage to its implementation. New verifies the
// table covers all of models.PipelineStages.
func (p *Pipeline) runners() map[models.Stage]runner {
	return map[models.Stage]runner{
		models.StageDownload:     p.runDownload,
		models.StageExtractAudio: p.runExtractAudio,
		models.StageGenerateSRT:  p.runGenerateSRT,
		models.StageAnalyze:      p.runAnalyze,
		models.StageSlice:        p.runSlice,
		models.StageExport:       p.runExport,
	}
}

// prevStage returns the stage that must complete before s may run.
func prevStage(s models.Stage) (models.Stage, bool) {
	for i, stage := range models.PipelineStages {
		if stage == s && i > 0 {
			return models.PipelineStages[i-1], true
		}
	}
	return "", false
}

// nextStage returns the stage chained after s.
func nextStage(s models.Stage) (models.Stage, bool) {
	for i, stage := range models.PipelineStages {
		if stage == s && i < len(models.PipelineStages)-1 {
			return models.PipelineStages[i+1], true
		}
	}
	return "", false
}
