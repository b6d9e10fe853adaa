// Package reconcile performs the completion side effect exactly once per
// task: persisting generated artifacts to the owner's library and emitting
// the matching notification.
package reconcile

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"vidtrack/internal/domain"
)

// JobStore is the slice of the job store the reconciler works against. The
// Complete/Fail transition result is the exactly-once gate: only the caller
// that wins the pending/running to terminal transition runs the side effect,
// so duplicate terminal signals from racing channels collapse without a
// separate dedup table.
type JobStore interface {
	Get(taskID string) (domain.BackgroundJob, bool)
	Complete(ctx context.Context, taskID string, result domain.GenerationResult) bool
	Fail(ctx context.Context, taskID, message string) bool
}

// Library persists a completed job's artifacts. The at-most-once guarantee is
// enforced here, not by the library.
type Library interface {
	SaveSequence(ctx context.Context, job domain.BackgroundJob) error
}

// Notifier receives the single stored notification per terminal outcome.
type Notifier interface {
	Publish(n domain.Notification)
}

type saveState int

const (
	saveNone saveState = iota
	saveRunning
	saveFailed
	saveDone
)

// Reconciler wires the terminal transition to its side effects.
type Reconciler struct {
	store    JobStore
	library  Library
	notifier Notifier
	logger   zerolog.Logger

	mu    sync.Mutex
	saves map[string]saveState
}

func New(store JobStore, library Library, notifier Notifier, logger zerolog.Logger) *Reconciler {
	return &Reconciler{
		store:    store,
		library:  library,
		notifier: notifier,
		logger:   logger,
		saves:    make(map[string]saveState),
	}
}

// OnComplete handles a terminal success signal. Safe to call any number of
// times from any channel.
func (r *Reconciler) OnComplete(ctx context.Context, taskID string, result domain.GenerationResult) {
	if !r.store.Complete(ctx, taskID, result) {
		return
	}
	job, ok := r.store.Get(taskID)
	if !ok {
		return
	}

	r.setSaveState(taskID, saveRunning)
	if err := r.library.SaveSequence(ctx, job); err != nil {
		// The generation itself succeeded; only the save failed. The job
		// stays completed so the user can retry the save without
		// re-running generation.
		r.logger.Error().Err(err).Str("task_id", taskID).Msg("reconcile: artifact save failed")
		r.setSaveState(taskID, saveFailed)
		r.notifier.Publish(domain.Notification{
			ID:       uuid.NewString(),
			TaskID:   taskID,
			Kind:     domain.NotificationSaveFailed,
			Message:  err.Error(),
			Priority: domain.PriorityHigh,
		})
		return
	}

	r.setSaveState(taskID, saveDone)
	r.logger.Info().Str("task_id", taskID).Str("sequence_id", result.SequenceID).Msg("reconcile: sequence saved to library")
	r.notifier.Publish(domain.Notification{
		ID:       uuid.NewString(),
		TaskID:   taskID,
		Kind:     domain.NotificationCompleted,
		Priority: domain.PriorityHigh,
	})
}

// OnFailure handles a terminal failure signal. No persistence call is made.
func (r *Reconciler) OnFailure(ctx context.Context, taskID, message string) {
	if !r.store.Fail(ctx, taskID, message) {
		return
	}
	r.logger.Info().Str("task_id", taskID).Str("error", message).Msg("reconcile: task failed")
	r.notifier.Publish(domain.Notification{
		ID:       uuid.NewString(),
		TaskID:   taskID,
		Kind:     domain.NotificationFailed,
		Message:  message,
		Priority: domain.PriorityHigh,
	})
}

// RetrySave re-runs the artifact save for a completed job whose earlier save
// failed. It refuses once a save has succeeded.
func (r *Reconciler) RetrySave(ctx context.Context, taskID string) error {
	job, ok := r.store.Get(taskID)
	if !ok {
		return domain.ErrNotFound
	}
	if job.Status != domain.JobStatusCompleted {
		return domain.ErrNotCompleted
	}

	// The in-flight marker holds from here until the save settles, so two
	// concurrent retries cannot both invoke the library.
	r.mu.Lock()
	switch r.saves[taskID] {
	case saveDone:
		r.mu.Unlock()
		return domain.ErrAlreadySaved
	case saveRunning:
		r.mu.Unlock()
		return domain.ErrSaveInFlight
	}
	r.saves[taskID] = saveRunning
	r.mu.Unlock()

	if err := r.library.SaveSequence(ctx, job); err != nil {
		r.setSaveState(taskID, saveFailed)
		return err
	}
	r.setSaveState(taskID, saveDone)
	r.notifier.Publish(domain.Notification{
		ID:       uuid.NewString(),
		TaskID:   taskID,
		Kind:     domain.NotificationCompleted,
		Priority: domain.PriorityHigh,
	})
	return nil
}

// Forget drops a task's save bookkeeping once its record is removed, so the
// map cannot grow past the job store's own retention.
func (r *Reconciler) Forget(taskIDs ...string) {
	r.mu.Lock()
	for _, id := range taskIDs {
		delete(r.saves, id)
	}
	r.mu.Unlock()
}

func (r *Reconciler) setSaveState(taskID string, s saveState) {
	r.mu.Lock()
	r.saves[taskID] = s
	r.mu.Unlock()
}
