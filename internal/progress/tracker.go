// Package progress is the single write path into the task status store.
// Every stage worker mutates its task through a Tracker, which persists the
// change first and then pushes the recomputed snapshot to subscribers, so
// the push and poll paths can never diverge.
package progress

import (
	"context"
	"fmt"

	"clipforge/internal/models"
	"clipforge/internal/storage"
	"clipforge/internal/ws"

	"github.com/rs/zerolog/log"
)

// Publisher pushes events to subscribed clients.
type Publisher interface {
	Publish(evt ws.Event)
}

// Tracker owns all mutations of processing tasks.
type Tracker struct {
	tasks *storage.TaskRepository
	pub   Publisher
}

// NewTracker creates a Tracker. pub may be nil, in which case mutations are
// persisted without being broadcast.
func NewTracker(tasks *storage.TaskRepository, pub Publisher) *Tracker {
	return &Tracker{tasks: tasks, pub: pub}
}

// Create enqueues a new pending task for (videoID, stage).
func (t *Tracker) Create(ctx context.Context, videoID string, stage models.Stage, metadata map[string]any) (*models.ProcessingTask, error) {
	task, err := t.tasks.Create(ctx, videoID, stage, metadata)
	if err != nil {
		return nil, err
	}
	if err := t.tasks.AppendLog(ctx, task.ID, "info", fmt.Sprintf("stage %s queued", stage)); err != nil {
		log.Warn().Err(err).Str("task_id", task.ID).Msg("append task log failed")
	}
	return task, nil
}

// Start marks the task running and broadcasts the first update.
func (t *Tracker) Start(ctx context.Context, task *models.ProcessingTask) error {
	if err := t.tasks.Start(ctx, task.ID); err != nil {
		return err
	}
	t.appendLog(ctx, task.ID, "info", fmt.Sprintf("stage %s started", task.Stage))
	t.broadcast(ctx, task, ws.EventProgressUpdate, 0, "started", "")
	return nil
}

// Update records a progress checkpoint and broadcasts it. Returns
// storage.ErrCanceled once cancellation has been requested, which the worker
// converts into a failed terminal state.
func (t *Tracker) Update(ctx context.Context, task *models.ProcessingTask, progress float64, message string, metadata map[string]any) error {
	if err := t.tasks.UpdateProgress(ctx, task.ID, progress, message, metadata); err != nil {
		return err
	}
	t.appendLog(ctx, task.ID, "info", fmt.Sprintf("%.1f%% %s", progress, message))
	t.broadcast(ctx, task, ws.EventProgressUpdate, progress, message, "")
	return nil
}

// Complete marks the task completed and broadcasts the stage completion,
// plus the distinct pipeline-terminal event when this finished the run.
func (t *Tracker) Complete(ctx context.Context, task *models.ProcessingTask, metadata map[string]any) error {
	if err := t.tasks.Complete(ctx, task.ID, metadata); err != nil {
		return err
	}
	t.appendLog(ctx, task.ID, "info", fmt.Sprintf("stage %s completed", task.Stage))
	t.broadcast(ctx, task, ws.EventStageComplete, 100, "completed", "")
	return nil
}

// Fail marks the task failed and broadcasts the failure.
func (t *Tracker) Fail(ctx context.Context, task *models.ProcessingTask, errMsg string) error {
	if err := t.tasks.Fail(ctx, task.ID, errMsg); err != nil {
		return err
	}
	t.appendLog(ctx, task.ID, "error", errMsg)
	// The caller's struct was loaded at claim time and may predate progress
	// checkpoints; the broadcast carries the stored last progress so it
	// never regresses below what subscribers already saw.
	progress := task.Progress
	if stored, err := t.tasks.GetByID(ctx, task.ID); err == nil {
		progress = stored.Progress
	}
	t.broadcast(ctx, task, ws.EventStageFailed, progress, "", errMsg)
	return nil
}

// Snapshot exposes the store's read-only aggregation.
func (t *Tracker) Snapshot(ctx context.Context, videoID string) (*models.ProgressSnapshot, error) {
	return t.tasks.Snapshot(ctx, videoID)
}

func (t *Tracker) appendLog(ctx context.Context, taskID, level, message string) {
	if err := t.tasks.AppendLog(ctx, taskID, level, message); err != nil {
		log.Warn().Err(err).Str("task_id", taskID).Msg("append task log failed")
	}
}

// broadcast recomputes the snapshot and pushes it to subscribers of the
// task's video.
func (t *Tracker) broadcast(ctx context.Context, task *models.ProcessingTask, eventType string, progress float64, message, errMsg string) {
	if t.pub == nil {
		return
	}
	snap, err := t.tasks.Snapshot(ctx, task.VideoID)
	if err != nil {
		log.Warn().Err(err).Str("video_id", task.VideoID).Msg("snapshot for broadcast failed")
		snap = nil
	}

	t.pub.Publish(ws.Event{
		Type:       eventType,
		ResourceID: task.VideoID,
		Stage:      task.Stage,
		Progress:   progress,
		Message:    message,
		Error:      errMsg,
		Snapshot:   snap,
	})

	// The terminal event for the run is pushed as its own type so clients
	// can stop listening without polling.
	if snap != nil && snap.Finished &&
		(eventType == ws.EventStageComplete || eventType == ws.EventStageFailed) {
		t.pub.Publish(ws.Event{
			Type:       ws.EventPipelineComplete,
			ResourceID: task.VideoID,
			Stage:      snap.Stage,
			Progress:   snap.Progress,
			Error:      snap.Error,
			Snapshot:   snap,
		})
	}
}
