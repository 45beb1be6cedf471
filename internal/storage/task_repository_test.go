package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"clipforge/internal/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testVideo(t *testing.T, db *DB) *models.Video {
	t.Helper()
	video := &models.Video{OwnerID: "tester", URL: "https://example.com/v.mp4"}
	if err := NewVideoRepository(db).Create(context.Background(), video); err != nil {
		t.Fatalf("create video: %v", err)
	}
	return video
}

func mustCreate(t *testing.T, r *TaskRepository, videoID string, stage models.Stage) *models.ProcessingTask {
	t.Helper()
	task, err := r.Create(context.Background(), videoID, stage, nil)
	if err != nil {
		t.Fatalf("create %s task: %v", stage, err)
	}
	return task
}

func mustStart(t *testing.T, r *TaskRepository, id string) {
	t.Helper()
	if err := r.Start(context.Background(), id); err != nil {
		t.Fatalf("start task: %v", err)
	}
}

func TestTaskLifecycle(t *testing.T) {
	db := testDB(t)
	repo := NewTaskRepository(db)
	video := testVideo(t, db)
	ctx := context.Background()

	task := mustCreate(t, repo, video.ID, models.StageDownload)
	if task.Status != models.TaskStatusPending {
		t.Fatalf("new task status = %s, want pending", task.Status)
	}

	mustStart(t, repo, task.ID)
	if err := repo.UpdateProgress(ctx, task.ID, 42.5, "downloading", nil); err != nil {
		t.Fatalf("update progress: %v", err)
	}
	if err := repo.Complete(ctx, task.ID, map[string]any{"file": "v.mp4"}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	got, err := repo.GetByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.Status != models.TaskStatusCompleted {
		t.Errorf("status = %s, want completed", got.Status)
	}
	if got.Progress != 100 {
		t.Errorf("progress = %v, want 100 after completion", got.Progress)
	}
	if got.CompletedAt == nil {
		t.Error("completed_at not set")
	}
	if got.Metadata["file"] != "v.mp4" {
		t.Errorf("metadata = %v", got.Metadata)
	}
}

func TestDuplicateActiveStage(t *testing.T) {
	db := testDB(t)
	repo := NewTaskRepository(db)
	video := testVideo(t, db)
	ctx := context.Background()

	task := mustCreate(t, repo, video.ID, models.StageDownload)

	if _, err := repo.Create(ctx, video.ID, models.StageDownload, nil); !errors.Is(err, ErrDuplicateActiveStage) {
		t.Fatalf("second pending download: err = %v, want ErrDuplicateActiveStage", err)
	}

	// Still active while running.
	mustStart(t, repo, task.ID)
	if _, err := repo.Create(ctx, video.ID, models.StageDownload, nil); !errors.Is(err, ErrDuplicateActiveStage) {
		t.Fatalf("create while running: err = %v, want ErrDuplicateActiveStage", err)
	}

	// A different stage is fine, and so is the same stage once terminal.
	if _, err := repo.Create(ctx, video.ID, models.StageExtractAudio, nil); err != nil {
		t.Fatalf("create other stage: %v", err)
	}
	if err := repo.Complete(ctx, task.ID, nil); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := repo.Create(ctx, video.ID, models.StageDownload, nil); err != nil {
		t.Fatalf("create after terminal: %v", err)
	}
}

func TestProgressMonotonicAndBounded(t *testing.T) {
	db := testDB(t)
	repo := NewTaskRepository(db)
	video := testVideo(t, db)
	ctx := context.Background()

	task := mustCreate(t, repo, video.ID, models.StageGenerateSRT)
	mustStart(t, repo, task.ID)

	if err := repo.UpdateProgress(ctx, task.ID, 50, "", nil); err != nil {
		t.Fatalf("update to 50: %v", err)
	}
	// Repeating the same value is allowed, going backwards is not.
	if err := repo.UpdateProgress(ctx, task.ID, 50, "", nil); err != nil {
		t.Fatalf("update to same value: %v", err)
	}
	if err := repo.UpdateProgress(ctx, task.ID, 49, "", nil); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("regressing update: err = %v, want ErrOutOfRange", err)
	}

	if err := repo.UpdateProgress(ctx, task.ID, -1, "", nil); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("progress -1: err = %v, want ErrOutOfRange", err)
	}
	if err := repo.UpdateProgress(ctx, task.ID, 100.5, "", nil); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("progress 100.5: err = %v, want ErrOutOfRange", err)
	}

	// The rejected updates must not have touched the row.
	got, err := repo.GetByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.Progress != 50 {
		t.Errorf("progress = %v, want 50 after rejected updates", got.Progress)
	}
}

func TestTerminalIsImmutable(t *testing.T) {
	db := testDB(t)
	repo := NewTaskRepository(db)
	video := testVideo(t, db)
	ctx := context.Background()

	task := mustCreate(t, repo, video.ID, models.StageDownload)
	mustStart(t, repo, task.ID)
	if err := repo.Complete(ctx, task.ID, nil); err != nil {
		t.Fatalf("complete: %v", err)
	}

	if err := repo.UpdateProgress(ctx, task.ID, 99, "", nil); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("update after complete: err = %v, want ErrInvalidTransition", err)
	}
	if err := repo.Complete(ctx, task.ID, nil); err != nil {
		t.Errorf("repeat complete should be a no-op, got %v", err)
	}
	if err := repo.Fail(ctx, task.ID, "boom"); !errors.Is(err, ErrAlreadyTerminal) {
		t.Errorf("fail after complete: err = %v, want ErrAlreadyTerminal", err)
	}
	if err := repo.Start(ctx, task.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("start after complete: err = %v, want ErrInvalidTransition", err)
	}
}

func TestFailIdempotency(t *testing.T) {
	db := testDB(t)
	repo := NewTaskRepository(db)
	video := testVideo(t, db)
	ctx := context.Background()

	task := mustCreate(t, repo, video.ID, models.StageAnalyze)
	mustStart(t, repo, task.ID)
	if err := repo.Fail(ctx, task.ID, "llm unavailable"); err != nil {
		t.Fatalf("fail: %v", err)
	}

	if err := repo.Fail(ctx, task.ID, "llm unavailable"); err != nil {
		t.Errorf("identical repeat fail should be a no-op, got %v", err)
	}
	if err := repo.Fail(ctx, task.ID, "different message"); !errors.Is(err, ErrAlreadyTerminal) {
		t.Errorf("conflicting fail: err = %v, want ErrAlreadyTerminal", err)
	}
	if err := repo.Complete(ctx, task.ID, nil); !errors.Is(err, ErrAlreadyTerminal) {
		t.Errorf("complete after fail: err = %v, want ErrAlreadyTerminal", err)
	}
}

func TestCancelRequested(t *testing.T) {
	db := testDB(t)
	repo := NewTaskRepository(db)
	video := testVideo(t, db)
	ctx := context.Background()

	task := mustCreate(t, repo, video.ID, models.StageDownload)
	mustStart(t, repo, task.ID)
	if err := repo.UpdateProgress(ctx, task.ID, 10, "", nil); err != nil {
		t.Fatalf("update: %v", err)
	}

	n, err := repo.RequestCancel(ctx, video.ID)
	if err != nil {
		t.Fatalf("request cancel: %v", err)
	}
	if n != 1 {
		t.Fatalf("flagged %d tasks, want 1", n)
	}

	if err := repo.UpdateProgress(ctx, task.ID, 20, "", nil); !errors.Is(err, ErrCanceled) {
		t.Fatalf("update after cancel: err = %v, want ErrCanceled", err)
	}
	// The worker still settles the task through Fail.
	if err := repo.Fail(ctx, task.ID, "canceled"); err != nil {
		t.Fatalf("fail canceled task: %v", err)
	}
}

func TestQueueOrder(t *testing.T) {
	db := testDB(t)
	repo := NewTaskRepository(db)
	video := testVideo(t, db)
	ctx := context.Background()

	next, err := repo.GetNextQueued(ctx)
	if err != nil {
		t.Fatalf("poll empty queue: %v", err)
	}
	if next != nil {
		t.Fatalf("empty queue returned %+v", next)
	}

	first := mustCreate(t, repo, video.ID, models.StageDownload)
	time.Sleep(5 * time.Millisecond)
	mustCreate(t, repo, video.ID, models.StageExtractAudio)

	next, err = repo.GetNextQueued(ctx)
	if err != nil {
		t.Fatalf("poll queue: %v", err)
	}
	if next == nil || next.ID != first.ID {
		t.Fatalf("queue head = %+v, want oldest task %s", next, first.ID)
	}
}

func TestSnapshotWeightsAndTerminal(t *testing.T) {
	db := testDB(t)
	repo := NewTaskRepository(db)
	video := testVideo(t, db)
	ctx := context.Background()

	dl := mustCreate(t, repo, video.ID, models.StageDownload)
	mustStart(t, repo, dl.ID)
	if err := repo.Complete(ctx, dl.ID, nil); err != nil {
		t.Fatalf("complete download: %v", err)
	}

	ex := mustCreate(t, repo, video.ID, models.StageExtractAudio)
	mustStart(t, repo, ex.ID)
	if err := repo.UpdateProgress(ctx, ex.ID, 50, "extracting audio", nil); err != nil {
		t.Fatalf("update extract: %v", err)
	}

	snap, err := repo.Snapshot(ctx, video.ID)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	// download fully weighted (30) plus half of extract_audio (5).
	if snap.Progress != 35 {
		t.Errorf("overall progress = %v, want 35", snap.Progress)
	}
	if snap.Stage != models.StageExtractAudio || snap.Status != models.TaskStatusRunning {
		t.Errorf("current = %s/%s, want extract_audio/running", snap.Stage, snap.Status)
	}
	if snap.Finished {
		t.Error("snapshot finished mid-pipeline")
	}
	if len(snap.Stages) != 2 {
		t.Errorf("stages = %d, want 2", len(snap.Stages))
	}

	// A pure read: recomputing yields the same view.
	again, err := repo.Snapshot(ctx, video.ID)
	if err != nil {
		t.Fatalf("second snapshot: %v", err)
	}
	if again.Progress != snap.Progress || again.Stage != snap.Stage {
		t.Errorf("snapshot not stable: %+v vs %+v", again, snap)
	}

	// Failure anywhere finishes the run.
	if err := repo.Fail(ctx, ex.ID, "ffmpeg crashed"); err != nil {
		t.Fatalf("fail extract: %v", err)
	}
	snap, err = repo.Snapshot(ctx, video.ID)
	if err != nil {
		t.Fatalf("snapshot after fail: %v", err)
	}
	if !snap.Finished {
		t.Error("snapshot not finished after stage failure")
	}
	if snap.Error != "ffmpeg crashed" {
		t.Errorf("snapshot error = %q", snap.Error)
	}
}

func TestSnapshotFinishedAfterExport(t *testing.T) {
	db := testDB(t)
	repo := NewTaskRepository(db)
	video := testVideo(t, db)
	ctx := context.Background()

	for _, stage := range models.PipelineStages {
		task := mustCreate(t, repo, video.ID, stage)
		mustStart(t, repo, task.ID)
		if err := repo.Complete(ctx, task.ID, nil); err != nil {
			t.Fatalf("complete %s: %v", stage, err)
		}
	}

	snap, err := repo.Snapshot(ctx, video.ID)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if !snap.Finished {
		t.Error("snapshot not finished after export completed")
	}
	if snap.Progress != 100 {
		t.Errorf("overall progress = %v, want 100", snap.Progress)
	}
}

func TestSnapshotTracksLatestAttempt(t *testing.T) {
	db := testDB(t)
	repo := NewTaskRepository(db)
	video := testVideo(t, db)
	ctx := context.Background()

	for _, stage := range []models.Stage{models.StageDownload, models.StageExtractAudio} {
		task := mustCreate(t, repo, video.ID, stage)
		mustStart(t, repo, task.ID)
		if err := repo.Complete(ctx, task.ID, nil); err != nil {
			t.Fatalf("complete %s: %v", stage, err)
		}
	}

	// A fresh download attempt after the earlier run settled.
	time.Sleep(5 * time.Millisecond)
	retry := mustCreate(t, repo, video.ID, models.StageDownload)
	mustStart(t, repo, retry.ID)
	if err := repo.UpdateProgress(ctx, retry.ID, 50, "redownloading", nil); err != nil {
		t.Fatalf("update retry: %v", err)
	}

	snap, err := repo.Snapshot(ctx, video.ID)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Stage != models.StageDownload || snap.Status != models.TaskStatusRunning {
		t.Errorf("current = %s/%s, want download/running", snap.Stage, snap.Status)
	}
	if snap.Message != "redownloading" {
		t.Errorf("message = %q, want the retry's checkpoint", snap.Message)
	}
	if snap.Finished {
		t.Error("snapshot finished while the retry is running")
	}
}

func TestListStaleRunning(t *testing.T) {
	db := testDB(t)
	repo := NewTaskRepository(db)
	video := testVideo(t, db)
	ctx := context.Background()

	task := mustCreate(t, repo, video.ID, models.StageDownload)
	mustStart(t, repo, task.ID)

	stale, err := repo.ListStaleRunning(ctx, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("list stale: %v", err)
	}
	if len(stale) != 0 {
		t.Fatalf("fresh task reported stale: %+v", stale)
	}

	stale, err = repo.ListStaleRunning(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("list stale: %v", err)
	}
	if len(stale) != 1 || stale[0].ID != task.ID {
		t.Fatalf("stale = %+v, want task %s", stale, task.ID)
	}
}

func TestTaskLogs(t *testing.T) {
	db := testDB(t)
	repo := NewTaskRepository(db)
	video := testVideo(t, db)
	ctx := context.Background()

	task := mustCreate(t, repo, video.ID, models.StageDownload)
	for _, msg := range []string{"queued", "started", "halfway"} {
		if err := repo.AppendLog(ctx, task.ID, "info", msg); err != nil {
			t.Fatalf("append log: %v", err)
		}
	}

	logs, err := repo.ListLogs(ctx, task.ID)
	if err != nil {
		t.Fatalf("list logs: %v", err)
	}
	if len(logs) != 3 {
		t.Fatalf("logs = %d, want 3", len(logs))
	}
	if logs[0].Message != "queued" || logs[2].Message != "halfway" {
		t.Errorf("log order wrong: %+v", logs)
	}
}
