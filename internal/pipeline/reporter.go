package pipeline

import (
	"context"
	"errors"
	"sync"

	"clipforge/internal/models"
	"clipforge/internal/progress"
	"clipforge/internal/storage"
)

// minProgressDelta coalesces checkpoints so tight callback loops (byte
// counters, transcode ticks) do not flood the store and the broadcaster.
const minProgressDelta = 1.0

// reporter is the per-task progress handle given to a stage runner. It
// forwards checkpoints to the tracker and, once the store reports a
// cancellation request, cancels the stage context so in-flight work
// (downloads, ffmpeg) stops promptly.
type reporter struct {
	ctx     context.Context
	cancel  context.CancelFunc
	tracker *progress.Tracker
	task    *models.ProcessingTask

	mu       sync.Mutex
	last     float64
	lastSent bool
	err      error
}

func newReporter(ctx context.Context, cancel context.CancelFunc, tracker *progress.Tracker, task *models.ProcessingTask) *reporter {
	return &reporter{ctx: ctx, cancel: cancel, tracker: tracker, task: task}
}

// update records a checkpoint. Checkpoints closer than minProgressDelta to
// the previous one are dropped unless they carry a new message or hit 100.
// After a cancellation request every call returns storage.ErrCanceled.
func (r *reporter) update(progressPct float64, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return r.err
	}
	if r.lastSent && progressPct < 100 && progressPct-r.last < minProgressDelta {
		return nil
	}

	if err := r.tracker.Update(r.ctx, r.task, progressPct, message, nil); err != nil {
		if errors.Is(err, storage.ErrCanceled) {
			r.err = err
			r.cancel()
		}
		return err
	}
	r.last = progressPct
	r.lastSent = true
	return nil
}

// canceled reports whether a cancellation request was observed.
func (r *reporter) canceled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return errors.Is(r.err, storage.ErrCanceled)
}
