// Package track keeps exactly one active update channel per running
// generation task. Each tracked task gets a watcher that prefers the
// server-push stream and degrades to interval polling when the stream is
// unavailable or goes silent.
package track

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"vidtrack/internal/domain"
	"vidtrack/internal/upstream"
)

// Stream is one open push channel for a task. The events channel closes when
// the stream ends for any reason.
type Stream interface {
	Events() <-chan domain.StreamEvent
	Close()
}

// Upstream abstracts the generation service's tracking API.
type Upstream interface {
	OpenEvents(ctx context.Context, taskID string) (Stream, error)
	TaskStatus(ctx context.Context, taskID string) (upstream.Status, error)
}

// Store is the slice of the job store watchers mutate through. Progress
// updates for unknown tasks are no-ops by contract.
type Store interface {
	UpdateProgress(ctx context.Context, taskID string, shot, percent int)
	UpdateOverallProgress(ctx context.Context, taskID string, percent int)
}

// TerminalSink receives terminal signals. It may be invoked multiple times
// per task, from either channel; deduplication is the sink's concern.
type TerminalSink interface {
	OnComplete(ctx context.Context, taskID string, result domain.GenerationResult)
	OnFailure(ctx context.Context, taskID, message string)
}

// Watcher states. A task leaves connecting for streaming on its first pushed
// event, or for degraded when the dial fails or the stream stays silent. A
// stream that dies after delivering events goes through a one-shot recheck
// before polling, so a completion in the disconnect gap is not lost.
type watchState string

const (
	stateConnecting watchState = "connecting"
	stateStreaming  watchState = "streaming"
	stateDegraded   watchState = "degraded"
	stateRecheck    watchState = "recheck"
	stateTerminal   watchState = "terminal"
)

const (
	DefaultPollInterval   = 2 * time.Second
	DefaultSilenceTimeout = 10 * time.Second
)

// Options tunes the fallback behaviour.
type Options struct {
	PollInterval   time.Duration
	SilenceTimeout time.Duration
}

// watcher is the registration handle for one watch goroutine. Cleanup paths
// compare handles so a stale watcher unwinding late can never tear down a
// successor registered under the same task id.
type watcher struct {
	cancel context.CancelFunc
}

// Tracker owns the per-task watchers and their cancellation handles.
type Tracker struct {
	upstream Upstream
	store    Store
	terminal TerminalSink
	logger   zerolog.Logger
	opts     Options

	mu       sync.Mutex
	watching map[string]*watcher
	wg       sync.WaitGroup
}

func New(up Upstream, store Store, terminal TerminalSink, opts Options, logger zerolog.Logger) *Tracker {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.SilenceTimeout <= 0 {
		opts.SilenceTimeout = DefaultSilenceTimeout
	}
	return &Tracker{
		upstream: up,
		store:    store,
		terminal: terminal,
		logger:   logger,
		opts:     opts,
		watching: make(map[string]*watcher),
	}
}

// Track starts a watcher for the task. It reports false when the task is
// already being tracked.
func (t *Tracker) Track(taskID string) bool {
	t.mu.Lock()
	if _, ok := t.watching[taskID]; ok {
		t.mu.Unlock()
		return false
	}
	ctx, cancel := context.WithCancel(context.Background())
	w := &watcher{cancel: cancel}
	t.watching[taskID] = w
	t.wg.Add(1)
	t.mu.Unlock()

	go func() {
		defer t.wg.Done()
		defer t.forget(taskID, w)
		t.watch(ctx, taskID)
	}()
	return true
}

// Cancel tears down the task's watcher: the push channel is closed and the
// poll timer stopped before any further store mutation can happen for it.
// It reports whether the task was being tracked.
func (t *Tracker) Cancel(taskID string) bool {
	t.mu.Lock()
	w, ok := t.watching[taskID]
	if ok {
		delete(t.watching, taskID)
	}
	t.mu.Unlock()
	if ok {
		w.cancel()
	}
	return ok
}

// IsTracking reports whether a watcher is active for the task.
func (t *Tracker) IsTracking(taskID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.watching[taskID]
	return ok
}

// Shutdown cancels every watcher and waits for them to drain, bounded by ctx.
func (t *Tracker) Shutdown(ctx context.Context) error {
	t.mu.Lock()
	for id, w := range t.watching {
		delete(t.watching, id)
		w.cancel()
	}
	t.mu.Unlock()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// forget removes the watcher's own registration. A Cancel followed by a new
// Track may have replaced the entry; only the matching handle is removed.
func (t *Tracker) forget(taskID string, w *watcher) {
	t.mu.Lock()
	if cur, ok := t.watching[taskID]; ok && cur == w {
		delete(t.watching, taskID)
		cur.cancel()
	}
	t.mu.Unlock()
}

// watch drives the state machine for one task until a terminal state is
// dispatched or tracking is cancelled.
func (t *Tracker) watch(ctx context.Context, taskID string) {
	log := t.logger.With().Str("task_id", taskID).Logger()
	state := stateConnecting
	for state != stateTerminal {
		if ctx.Err() != nil {
			log.Debug().Str("state", string(state)).Msg("track: watcher cancelled")
			return
		}
		var next watchState
		switch state {
		case stateConnecting:
			next = t.consumeStream(ctx, taskID, log)
		case stateRecheck:
			next = t.recheckOnce(ctx, taskID, log)
		case stateDegraded:
			next = t.poll(ctx, taskID, log)
		default:
			next = stateTerminal
		}
		if next != state {
			log.Debug().Str("from", string(state)).Str("to", string(next)).Msg("track: state change")
		}
		state = next
	}
}

// consumeStream opens the push channel and dispatches its events. It returns
// degraded when the dial fails or no event arrives within the silence window,
// recheck when the stream dies after having delivered events, and terminal
// once a terminal event was dispatched.
func (t *Tracker) consumeStream(ctx context.Context, taskID string, log zerolog.Logger) watchState {
	stream, err := t.upstream.OpenEvents(ctx, taskID)
	if err != nil {
		log.Debug().Err(err).Msg("track: push channel unavailable")
		return stateDegraded
	}
	defer stream.Close()

	received := false
	silence := time.NewTimer(t.opts.SilenceTimeout)
	defer silence.Stop()

	for {
		select {
		case <-ctx.Done():
			return stateTerminal
		case <-silence.C:
			// Still in connecting: the channel opened but never spoke.
			log.Debug().Dur("window", t.opts.SilenceTimeout).Msg("track: silent push channel")
			return stateDegraded
		case event, ok := <-stream.Events():
			if !ok {
				if received {
					return stateRecheck
				}
				return stateDegraded
			}
			if !received {
				received = true
				silence.Stop()
			}
			if next, terminal := t.dispatch(ctx, taskID, event, log); terminal || next != stateStreaming {
				return next
			}
		}
	}
}

// dispatch applies one pushed event. The second return marks the watch loop
// as finished.
func (t *Tracker) dispatch(ctx context.Context, taskID string, event domain.StreamEvent, log zerolog.Logger) (watchState, bool) {
	// In-flight events for a cancelled task are discarded before touching
	// the store.
	if ctx.Err() != nil {
		return stateTerminal, true
	}
	switch e := event.(type) {
	case domain.ShotStartEvent:
		t.store.UpdateProgress(ctx, taskID, e.ShotNumber, 0)
		return stateStreaming, false
	case domain.ProgressEvent:
		t.store.UpdateProgress(ctx, taskID, e.ShotNumber, e.Progress)
		return stateStreaming, false
	case domain.ShotCompleteEvent:
		t.store.UpdateProgress(ctx, taskID, e.ShotNumber, 100)
		return stateStreaming, false
	case domain.CompleteEvent:
		t.terminal.OnComplete(ctx, taskID, e.Result)
		return stateTerminal, true
	case domain.ErrorEvent:
		if e.Stale() {
			// The server says the task is unknown or already finished:
			// the channel is stale, not the task failed. Confirm the
			// real final state before believing anything.
			log.Debug().Str("code", e.Code).Msg("track: stale channel signal")
			return stateRecheck, false
		}
		t.terminal.OnFailure(ctx, taskID, e.Message)
		return stateTerminal, true
	default:
		return stateStreaming, false
	}
}

// recheckOnce issues exactly one immediate status check after a stream died
// mid-flight, deciding between terminal and the polling fallback.
func (t *Tracker) recheckOnce(ctx context.Context, taskID string, log zerolog.Logger) watchState {
	status, err := t.upstream.TaskStatus(ctx, taskID)
	if err != nil {
		if !errors.Is(err, domain.ErrStatusNotReady) {
			log.Debug().Err(err).Msg("track: recheck failed")
		}
		return stateDegraded
	}
	if next := t.applyStatus(ctx, taskID, status, log); next != "" {
		return next
	}
	return stateDegraded
}

// poll issues a status request on a fixed interval until a terminal answer
// arrives or tracking is cancelled. Transport errors and not-yet-available
// answers are normal non-terminal ticks.
func (t *Tracker) poll(ctx context.Context, taskID string, log zerolog.Logger) watchState {
	ticker := time.NewTicker(t.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return stateTerminal
		case <-ticker.C:
			status, err := t.upstream.TaskStatus(ctx, taskID)
			if err != nil {
				if !errors.Is(err, domain.ErrStatusNotReady) {
					log.Debug().Err(err).Msg("track: poll failed")
				}
				continue
			}
			if next := t.applyStatus(ctx, taskID, status, log); next != "" {
				return next
			}
		}
	}
}

// applyStatus dispatches a terminal poll answer. It returns "" for
// non-terminal answers so callers keep their current strategy.
func (t *Tracker) applyStatus(ctx context.Context, taskID string, status upstream.Status, log zerolog.Logger) watchState {
	if ctx.Err() != nil {
		return stateTerminal
	}
	switch {
	case status.Status == "completed" && status.Result != nil:
		t.terminal.OnComplete(ctx, taskID, *status.Result)
		return stateTerminal
	case status.Status == "completed":
		// Terminal answer without its payload is unusable; keep checking
		// until the result arrives alongside it.
		log.Warn().Msg("track: completed status missing result")
		return ""
	case status.Status == "error":
		t.terminal.OnFailure(ctx, taskID, status.Error)
		return stateTerminal
	default:
		t.store.UpdateOverallProgress(ctx, taskID, status.Progress)
		return ""
	}
}
