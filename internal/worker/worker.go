// Package worker drives the background loops: draining the task queue,
// failing tasks whose lease expired, and pruning old terminal tasks.
package worker

import (
	"context"
	"sync"
	"time"

	"clipforge/internal/pipeline"
	"clipforge/internal/progress"
	"clipforge/internal/storage"

	"github.com/rs/zerolog/log"
)

// Config tunes the worker loops.
type Config struct {
	// PollInterval is how often the queue is checked for pending tasks.
	PollInterval time.Duration
	// LeaseTimeout is how long a running task may go without a heartbeat
	// before the janitor fails it.
	LeaseTimeout time.Duration
	// RetentionDays is how long terminal tasks are kept before cleanup.
	RetentionDays int
}

// Worker owns the background goroutines of the service.
type Worker struct {
	config   Config
	tasks    *storage.TaskRepository
	tracker  *progress.Tracker
	pipeline *pipeline.Pipeline

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Worker.
func New(config Config, tasks *storage.TaskRepository, tracker *progress.Tracker, p *pipeline.Pipeline) *Worker {
	return &Worker{config: config, tasks: tasks, tracker: tracker, pipeline: p}
}

// Start launches the queue, janitor and cleanup loops.
func (w *Worker) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel

	w.wg.Add(3)
	go w.queueLoop(ctx)
	go w.janitorLoop(ctx)
	go w.cleanupLoop(ctx)
	log.Info().
		Dur("poll_interval", w.config.PollInterval).
		Dur("lease_timeout", w.config.LeaseTimeout).
		Msg("worker started")
}

// Stop cancels the loops and waits for the running task to settle.
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	log.Info().Msg("worker stopped")
}

// queueLoop drains pending tasks one at a time. After finishing a task it
// immediately checks for the next one, so a chained pipeline advances
// without waiting a full poll interval per stage.
func (w *Worker) queueLoop(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for w.runNext(ctx) {
				if ctx.Err() != nil {
					return
				}
			}
		}
	}
}

// runNext claims and executes one pending task. Returns false when the
// queue was empty.
func (w *Worker) runNext(ctx context.Context) bool {
	task, err := w.tasks.GetNextQueued(ctx)
	if err != nil {
		log.Error().Err(err).Msg("poll task queue failed")
		return false
	}
	if task == nil {
		return false
	}
	w.pipeline.Execute(ctx, task)
	return true
}

// janitorLoop fails running tasks whose heartbeat went stale. Failing goes
// through the tracker so subscribers still get the terminal event.
func (w *Worker) janitorLoop(ctx context.Context) {
	defer w.wg.Done()
	interval := w.config.LeaseTimeout / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-w.config.LeaseTimeout)
			stale, err := w.tasks.ListStaleRunning(ctx, cutoff)
			if err != nil {
				log.Error().Err(err).Msg("list stale tasks failed")
				continue
			}
			for i := range stale {
				task := &stale[i]
				log.Warn().
					Str("task_id", task.ID).
					Str("stage", string(task.Stage)).
					Time("last_heartbeat", task.UpdatedAt).
					Msg("task lease expired")
				if err := w.tracker.Fail(ctx, task, "task lease expired"); err != nil {
					log.Error().Err(err).Str("task_id", task.ID).Msg("fail stale task failed")
				}
			}
		}
	}
}

// cleanupLoop prunes terminal tasks past the retention window once an hour.
func (w *Worker) cleanupLoop(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := w.tasks.CleanupTerminal(ctx, w.config.RetentionDays)
			if err != nil {
				log.Error().Err(err).Msg("cleanup terminal tasks failed")
				continue
			}
			if n > 0 {
				log.Info().Int64("deleted", n).Msg("cleaned up old tasks")
			}
		}
	}
}
