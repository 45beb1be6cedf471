// Package pipeline chains the processing stages of a video: download,
// extract_audio, generate_srt, analyze, slice and export. Stages run one at
// a time per video; each one is persisted as a task, reported through the
// progress tracker and chained into its successor on completion.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"clipforge/internal/download"
	"clipforge/internal/export"
	"clipforge/internal/llm"
	"clipforge/internal/models"
	"clipforge/internal/progress"
	"clipforge/internal/storage"
	"clipforge/internal/transcribe"

	"github.com/rs/zerolog/log"
)

// ErrStageNotReady rejects triggering a stage whose predecessor has not
// completed yet.
var ErrStageNotReady = errors.New("predecessor stage not completed")

// Pipeline wires the stage runners to storage and the progress tracker.
type Pipeline struct {
	tracker     *progress.Tracker
	tasks       *storage.TaskRepository
	videos      *storage.VideoRepository
	clips       *storage.ClipRepository
	fetcher     *download.Fetcher
	transcriber transcribe.Transcriber
	llm         *llm.Client
	exports     *export.Registry
	dataDir     string
}

// New creates a Pipeline and verifies every stage has a runner.
func New(
	tracker *progress.Tracker,
	tasks *storage.TaskRepository,
	videos *storage.VideoRepository,
	clips *storage.ClipRepository,
	fetcher *download.Fetcher,
	transcriber transcribe.Transcriber,
	llmClient *llm.Client,
	exports *export.Registry,
	dataDir string,
) (*Pipeline, error) {
	p := &Pipeline{
		tracker:     tracker,
		tasks:       tasks,
		videos:      videos,
		clips:       clips,
		fetcher:     fetcher,
		transcriber: transcriber,
		llm:         llmClient,
		exports:     exports,
		dataDir:     dataDir,
	}
	runners := p.runners()
	for _, stage := range models.PipelineStages {
		if _, ok := runners[stage]; !ok {
			return nil, fmt.Errorf("stage %s has no runner", stage)
		}
	}
	return p, nil
}

// Trigger enqueues one stage for a video. Any stage but the first requires
// its predecessor to have a completed task; duplicate active stages are
// rejected by the store.
func (p *Pipeline) Trigger(ctx context.Context, videoID string, stage models.Stage, metadata map[string]any) (*models.ProcessingTask, error) {
	if !stage.Valid() {
		return nil, fmt.Errorf("unknown stage: %s", stage)
	}
	if _, err := p.videos.GetByID(ctx, videoID); err != nil {
		return nil, err
	}

	if prev, ok := prevStage(stage); ok {
		done, err := p.stageCompleted(ctx, videoID, prev)
		if err != nil {
			return nil, err
		}
		if !done {
			return nil, fmt.Errorf("%w: %s requires %s", ErrStageNotReady, stage, prev)
		}
	} else {
		// A fresh run may only start once every task of the previous run
		// is terminal.
		active, err := p.tasks.HasActive(ctx, videoID)
		if err != nil {
			return nil, err
		}
		if active {
			return nil, fmt.Errorf("%w: video has active tasks", storage.ErrDuplicateActiveStage)
		}
	}

	task, err := p.tracker.Create(ctx, videoID, stage, metadata)
	if err != nil {
		return nil, err
	}
	if err := p.videos.UpdateStatus(ctx, videoID, models.VideoStatusProcessing); err != nil {
		log.Warn().Err(err).Str("video_id", videoID).Msg("mark video processing failed")
	}
	return task, nil
}

// Cancel flags every non-terminal task of the video for cooperative
// cancellation and returns how many were flagged.
func (p *Pipeline) Cancel(ctx context.Context, videoID string) (int64, error) {
	if _, err := p.videos.GetByID(ctx, videoID); err != nil {
		return 0, err
	}
	return p.tasks.RequestCancel(ctx, videoID)
}

// Execute runs one claimed task to its terminal state and, on success,
// enqueues the successor stage. Called by the queue worker.
func (p *Pipeline) Execute(ctx context.Context, task *models.ProcessingTask) {
	logger := log.With().
		Str("task_id", task.ID).
		Str("video_id", task.VideoID).
		Str("stage", string(task.Stage)).
		Logger()

	// Cancellation requested while still queued: fail without starting.
	fresh, err := p.tasks.GetByID(ctx, task.ID)
	if err != nil {
		logger.Error().Err(err).Msg("reload task failed")
		return
	}
	if fresh.CancelRequested {
		p.failTask(ctx, task, "canceled")
		return
	}

	video, err := p.videos.GetByID(ctx, task.VideoID)
	if err != nil {
		p.failTask(ctx, task, fmt.Sprintf("load video: %v", err))
		return
	}

	if err := p.tracker.Start(ctx, task); err != nil {
		logger.Error().Err(err).Msg("start task failed")
		return
	}

	stageCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	rep := newReporter(stageCtx, cancel, p.tracker, task)

	meta, runErr := p.runners()[task.Stage](stageCtx, video, task, rep)

	if rep.canceled() || errors.Is(runErr, storage.ErrCanceled) {
		p.failTask(ctx, task, "canceled")
		return
	}
	if runErr != nil {
		logger.Error().Err(runErr).Msg("stage failed")
		p.failTask(ctx, task, runErr.Error())
		return
	}

	if err := p.tracker.Complete(ctx, task, meta); err != nil {
		logger.Error().Err(err).Msg("complete task failed")
		return
	}
	logger.Info().Msg("stage completed")

	if task.Stage == models.StageExport {
		if err := p.videos.UpdateStatus(ctx, video.ID, models.VideoStatusReady); err != nil {
			logger.Warn().Err(err).Msg("mark video ready failed")
		}
		return
	}

	next, ok := nextStage(task.Stage)
	if !ok {
		return
	}
	// Stage parameters (such as the export target) flow down the chain.
	if _, err := p.tracker.Create(ctx, task.VideoID, next, task.Metadata); err != nil {
		if errors.Is(err, storage.ErrDuplicateActiveStage) {
			logger.Warn().Str("next", string(next)).Msg("successor stage already active")
			return
		}
		logger.Error().Err(err).Str("next", string(next)).Msg("enqueue successor failed")
		p.markVideoFailed(ctx, task.VideoID)
	}
}

// failTask moves the task to failed through the tracker and marks the video.
// Uses a background-derived context so a canceled stage context cannot block
// the terminal write.
func (p *Pipeline) failTask(ctx context.Context, task *models.ProcessingTask, msg string) {
	if ctx.Err() != nil {
		ctx = context.Background()
	}
	if err := p.tracker.Fail(ctx, task, msg); err != nil && !errors.Is(err, storage.ErrAlreadyTerminal) {
		log.Error().Err(err).Str("task_id", task.ID).Msg("fail task failed")
	}
	p.markVideoFailed(ctx, task.VideoID)
}

func (p *Pipeline) markVideoFailed(ctx context.Context, videoID string) {
	if err := p.videos.UpdateStatus(ctx, videoID, models.VideoStatusFailed); err != nil {
		log.Warn().Err(err).Str("video_id", videoID).Msg("mark video failed failed")
	}
}

func (p *Pipeline) stageCompleted(ctx context.Context, videoID string, stage models.Stage) (bool, error) {
	tasks, err := p.tasks.ListByVideo(ctx, videoID)
	if err != nil {
		return false, err
	}
	var latest *models.ProcessingTask
	for i := range tasks {
		if tasks[i].Stage == stage {
			latest = &tasks[i] // ordered oldest first
		}
	}
	return latest != nil && latest.Status == models.TaskStatusCompleted, nil
}

// videoDir is where all files derived from one video live.
func (p *Pipeline) videoDir(videoID string) string {
	return filepath.Join(p.dataDir, "videos", videoID)
}

func (p *Pipeline) ensureVideoDir(videoID string) (string, error) {
	dir := p.videoDir(videoID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create video directory: %w", err)
	}
	return dir, nil
}
