package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"clipforge/internal/models"

	"github.com/google/uuid"
)

// TaskRepository is the task status store: the durable record of stage
// progress and the single source of truth the broadcaster and the poll
// endpoint read from. Pending rows double as the worker queue.
type TaskRepository struct {
	db *DB
}

// NewTaskRepository creates a new TaskRepository.
func NewTaskRepository(db *DB) *TaskRepository {
	return &TaskRepository{db: db}
}

const taskColumns = `id, video_id, stage, status, progress, message, metadata, error,
	cancel_requested, created_at, started_at, updated_at, completed_at`

// Create inserts a pending task for (videoID, stage), carrying optional
// stage parameters as metadata. At most one non-terminal task may exist per
// (video, stage); a second attempt fails with ErrDuplicateActiveStage.
func (r *TaskRepository) Create(ctx context.Context, videoID string, stage models.Stage, metadata map[string]any) (*models.ProcessingTask, error) {
	if !stage.Valid() {
		return nil, fmt.Errorf("unknown stage: %s", stage)
	}
	now := time.Now().UTC()
	task := &models.ProcessingTask{
		ID:        uuid.New().String(),
		VideoID:   videoID,
		Stage:     stage,
		Status:    models.TaskStatusPending,
		Metadata:  metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
	var meta *string
	if metadata != nil {
		raw, err := json.Marshal(metadata)
		if err != nil {
			return nil, fmt.Errorf("marshal metadata: %w", err)
		}
		s := string(raw)
		meta = &s
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO processing_tasks (id, video_id, stage, status, metadata, created_at, updated_at)
		SELECT ?, ?, ?, ?, ?, ?, ?
		WHERE NOT EXISTS (
			SELECT 1 FROM processing_tasks
			WHERE video_id = ? AND stage = ? AND status IN ('pending', 'running')
		)`,
		task.ID, videoID, string(stage), string(task.Status), meta, now, now,
		videoID, string(stage),
	)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrDuplicateActiveStage
	}
	return task, nil
}

// Start transitions a pending task to running.
func (r *TaskRepository) Start(ctx context.Context, id string) error {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		UPDATE processing_tasks
		SET status = 'running', started_at = ?, updated_at = ?
		WHERE id = ? AND status = 'pending'`,
		now, now, id,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return ErrInvalidTransition
	}
	return nil
}

// UpdateProgress records a progress checkpoint for a running task. Progress
// must stay within [0,100] and never decrease; updates against a terminal
// task fail with ErrInvalidTransition, and ErrCanceled is returned once
// cancellation has been requested. The update also refreshes the task's
// heartbeat (updated_at), which the janitor uses as its lease.
func (r *TaskRepository) UpdateProgress(ctx context.Context, id string, progress float64, message string, metadata map[string]any) error {
	if progress < 0 || progress > 100 {
		return ErrOutOfRange
	}
	var meta *string
	if metadata != nil {
		raw, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		s := string(raw)
		meta = &s
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE processing_tasks
		SET progress = ?, message = ?, metadata = COALESCE(?, metadata), updated_at = ?
		WHERE id = ? AND status = 'running' AND progress <= ? AND cancel_requested = 0`,
		progress, message, meta, time.Now().UTC(), id, progress,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	// Rejected: re-read the row to classify without having changed anything.
	task, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	switch {
	case task.Status.Terminal():
		return ErrInvalidTransition
	case task.CancelRequested:
		return ErrCanceled
	case task.Status == models.TaskStatusPending:
		return ErrInvalidTransition
	case task.Progress > progress:
		return ErrOutOfRange
	default:
		return ErrInvalidTransition
	}
}

// Complete transitions a running task to completed and forces progress to 100.
// Completing an already-completed task is a no-op; any other repeat terminal
// transition fails with ErrAlreadyTerminal.
func (r *TaskRepository) Complete(ctx context.Context, id string, metadata map[string]any) error {
	var meta *string
	if metadata != nil {
		raw, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		s := string(raw)
		meta = &s
	}
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		UPDATE processing_tasks
		SET status = 'completed', progress = 100, metadata = COALESCE(?, metadata),
		    updated_at = ?, completed_at = ?
		WHERE id = ? AND status = 'running'`,
		meta, now, now, id,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	task, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	switch task.Status {
	case models.TaskStatusCompleted:
		return nil // idempotent
	case models.TaskStatusFailed:
		return ErrAlreadyTerminal
	default:
		return ErrInvalidTransition
	}
}

// Fail transitions a pending or running task to failed with the given message.
// Failing an already-failed task with the identical message is a no-op.
func (r *TaskRepository) Fail(ctx context.Context, id string, errMsg string) error {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		UPDATE processing_tasks
		SET status = 'failed', error = ?, updated_at = ?, completed_at = ?
		WHERE id = ? AND status IN ('pending', 'running')`,
		errMsg, now, now, id,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	task, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if task.Status == models.TaskStatusFailed && task.Error == errMsg {
		return nil // idempotent
	}
	return ErrAlreadyTerminal
}

// GetByID fetches a task by id.
func (r *TaskRepository) GetByID(ctx context.Context, id string) (*models.ProcessingTask, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM processing_tasks WHERE id = ?`, id)
	return scanTask(row)
}

// GetNextQueued returns the oldest pending task, or nil when the queue is empty.
func (r *TaskRepository) GetNextQueued(ctx context.Context) (*models.ProcessingTask, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+taskColumns+` FROM processing_tasks
		WHERE status = 'pending'
		ORDER BY created_at ASC
		LIMIT 1`)
	task, err := scanTask(row)
	if err == ErrNotFound {
		return nil, nil
	}
	return task, err
}

// ListByVideo returns all tasks for a video, oldest first.
func (r *TaskRepository) ListByVideo(ctx context.Context, videoID string) ([]models.ProcessingTask, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+taskColumns+` FROM processing_tasks
		WHERE video_id = ?
		ORDER BY created_at ASC`, videoID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTasks(rows)
}

// HasActive reports whether any non-terminal task exists for the video.
func (r *TaskRepository) HasActive(ctx context.Context, videoID string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM processing_tasks
		WHERE video_id = ? AND status IN ('pending', 'running')`, videoID).Scan(&n)
	return n > 0, err
}

// RequestCancel flags all non-terminal tasks of a video for cancellation.
// Cancellation is cooperative: the flag is observed at the task's next
// progress checkpoint. Returns the number of flagged tasks.
func (r *TaskRepository) RequestCancel(ctx context.Context, videoID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE processing_tasks
		SET cancel_requested = 1, updated_at = ?
		WHERE video_id = ? AND status IN ('pending', 'running')`,
		time.Now().UTC(), videoID,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListStaleRunning returns running tasks whose heartbeat (updated_at) is
// older than cutoff. The janitor fails these through the regular write path
// so subscribers still receive the terminal event.
func (r *TaskRepository) ListStaleRunning(ctx context.Context, cutoff time.Time) ([]models.ProcessingTask, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+taskColumns+` FROM processing_tasks
		WHERE status = 'running' AND updated_at < ?
		ORDER BY updated_at ASC`, cutoff.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTasks(rows)
}

// CountByStatus returns task counts grouped by status.
func (r *TaskRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM processing_tasks GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// CleanupTerminal deletes terminal tasks (and their logs, via cascade) older
// than the given number of days.
func (r *TaskRepository) CleanupTerminal(ctx context.Context, olderThanDays int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -olderThanDays)
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM processing_tasks
		WHERE status IN ('completed', 'failed') AND completed_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// AppendLog appends one event to the task's append-only log.
func (r *TaskRepository) AppendLog(ctx context.Context, taskID, level, message string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO processing_task_logs (task_id, level, message, created_at)
		VALUES (?, ?, ?, ?)`,
		taskID, level, message, time.Now().UTC(),
	)
	return err
}

// ListLogs returns the task's log entries in append order.
func (r *TaskRepository) ListLogs(ctx context.Context, taskID string) ([]models.TaskLogEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, task_id, level, message, created_at
		FROM processing_task_logs
		WHERE task_id = ?
		ORDER BY id ASC`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.TaskLogEntry
	for rows.Next() {
		var e models.TaskLogEntry
		if err := rows.Scan(&e.ID, &e.TaskID, &e.Level, &e.Message, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// stageWeights apportions overall pipeline progress across the stages.
var stageWeights = map[models.Stage]float64{
	models.StageDownload:     30,
	models.StageExtractAudio: 10,
	models.StageGenerateSRT:  25,
	models.StageAnalyze:      15,
	models.StageSlice:        15,
	models.StageExport:       5,
}

// Snapshot aggregates the latest task per stage into the derived progress
// view for a video. It is a pure read: recomputing it without intervening
// writes yields identical output, and the push and poll paths both serve it.
func (r *TaskRepository) Snapshot(ctx context.Context, videoID string) (*models.ProgressSnapshot, error) {
	tasks, err := r.ListByVideo(ctx, videoID)
	if err != nil {
		return nil, err
	}

	latest := make(map[models.Stage]*models.ProcessingTask)
	for i := range tasks {
		t := &tasks[i]
		latest[t.Stage] = t // tasks are ordered oldest first
	}

	snap := &models.ProgressSnapshot{VideoID: videoID}
	var current *models.ProcessingTask
	for _, stage := range models.PipelineStages {
		t, ok := latest[stage]
		if !ok {
			continue
		}
		snap.Stages = append(snap.Stages, models.StageProgress{
			Stage:     t.Stage,
			Status:    t.Status,
			Progress:  t.Progress,
			Message:   t.Message,
			Error:     t.Error,
			UpdatedAt: t.UpdatedAt,
		})
		snap.Progress += stageWeights[stage] * t.Progress / 100
		// The most recently created task marks the pipeline's current
		// position; a retried early stage outranks leftovers of a prior
		// run at later stages.
		if current == nil || !t.CreatedAt.Before(current.CreatedAt) {
			current = t
		}
	}
	if current != nil {
		snap.Stage = current.Stage
		snap.Status = current.Status
		snap.Message = current.Message
		snap.Error = current.Error
		snap.Finished = current.Status == models.TaskStatusFailed ||
			(current.Stage == models.StageExport && current.Status == models.TaskStatusCompleted)
	}
	return snap, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*models.ProcessingTask, error) {
	var t models.ProcessingTask
	var stage, status string
	var meta sql.NullString
	var startedAt, completedAt sql.NullTime
	var canceled int64

	err := row.Scan(&t.ID, &t.VideoID, &stage, &status, &t.Progress, &t.Message,
		&meta, &t.Error, &canceled, &t.CreatedAt, &startedAt, &t.UpdatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	t.Stage = models.Stage(stage)
	t.Status = models.TaskStatus(status)
	t.CancelRequested = canceled != 0
	if meta.Valid && meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &t.Metadata); err != nil {
			return nil, fmt.Errorf("parse task metadata: %w", err)
		}
	}
	if startedAt.Valid {
		v := startedAt.Time
		t.StartedAt = &v
	}
	if completedAt.Valid {
		v := completedAt.Time
		t.CompletedAt = &v
	}
	return &t, nil
}

func collectTasks(rows *sql.Rows) ([]models.ProcessingTask, error) {
	var tasks []models.ProcessingTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}
