package worker

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"clipforge/internal/export"
	"clipforge/internal/models"
	"clipforge/internal/pipeline"
	"clipforge/internal/progress"
	"clipforge/internal/storage"
)

func testDeps(t *testing.T) (*storage.TaskRepository, *progress.Tracker, *pipeline.Pipeline, string) {
	t.Helper()
	dir := t.TempDir()
	db, err := storage.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	videos := storage.NewVideoRepository(db)
	tasks := storage.NewTaskRepository(db)
	clips := storage.NewClipRepository(db)
	tracker := progress.NewTracker(tasks, nil)

	video := &models.Video{OwnerID: "tester", URL: "https://example.com/v.mp4"}
	if err := videos.Create(context.Background(), video); err != nil {
		t.Fatalf("create video: %v", err)
	}

	p, err := pipeline.New(tracker, tasks, videos, clips, nil, nil, nil,
		export.NewRegistry(dir, ""), dir)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	return tasks, tracker, p, video.ID
}

func waitForStatus(t *testing.T, tasks *storage.TaskRepository, id string, want models.TaskStatus) *models.ProcessingTask {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		task, err := tasks.GetByID(context.Background(), id)
		if err != nil {
			t.Fatalf("get task: %v", err)
		}
		if task.Status == want {
			return task
		}
		select {
		case <-deadline:
			t.Fatalf("task stuck in %s, want %s", task.Status, want)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestQueueLoopSettlesCanceledTask(t *testing.T) {
	tasks, tracker, p, videoID := testDeps(t)
	ctx := context.Background()

	task, err := p.Trigger(ctx, videoID, models.StageDownload, nil)
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	// Flag before the worker ever picks it up.
	if _, err := p.Cancel(ctx, videoID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	w := New(Config{
		PollInterval:  10 * time.Millisecond,
		LeaseTimeout:  time.Minute,
		RetentionDays: 7,
	}, tasks, tracker, p)
	w.Start()
	t.Cleanup(w.Stop)

	got := waitForStatus(t, tasks, task.ID, models.TaskStatusFailed)
	if got.Error != "canceled" {
		t.Errorf("error = %q, want canceled", got.Error)
	}
}

func TestJanitorFailsStaleTask(t *testing.T) {
	tasks, tracker, p, videoID := testDeps(t)
	ctx := context.Background()

	task, err := tasks.Create(ctx, videoID, models.StageDownload, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := tasks.Start(ctx, task.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Long poll interval keeps the queue loop out of the way; the short
	// lease makes the running task stale before the first janitor tick.
	w := New(Config{
		PollInterval:  time.Hour,
		LeaseTimeout:  50 * time.Millisecond,
		RetentionDays: 7,
	}, tasks, tracker, p)
	w.Start()
	t.Cleanup(w.Stop)

	got := waitForStatus(t, tasks, task.ID, models.TaskStatusFailed)
	if got.Error != "task lease expired" {
		t.Errorf("error = %q, want lease expiry", got.Error)
	}
}
