// Package jobstore holds the authoritative registry of tracked generation
// jobs. The store is the only component allowed to mutate a BackgroundJob;
// everything else reads snapshots and requests changes through its API.
package jobstore

import (
	"context"
	"iter"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"vidtrack/internal/domain"
)

const (
	DefaultCapacity  = 50
	DefaultRetention = 24 * time.Hour
)

// Persister writes the full job snapshot to durable storage and reads it back
// on startup. The snapshot is always the complete ordered array; partial
// updates are not part of the contract.
type Persister interface {
	Save(ctx context.Context, jobs []domain.BackgroundJob) error
	Load(ctx context.Context) ([]domain.BackgroundJob, error)
}

// Options tunes capacity and retention bounds.
type Options struct {
	// Capacity caps the number of retained records. On Add, the oldest
	// record by CreatedAt is evicted first.
	Capacity int
	// Retention drops records older than this window when the snapshot is
	// loaded.
	Retention time.Duration
}

// Store is a mutex-guarded job registry with write-through persistence.
type Store struct {
	mu        sync.RWMutex
	jobs      map[string]*domain.BackgroundJob
	capacity  int
	retention time.Duration
	persister Persister
	logger    zerolog.Logger

	now func() time.Time
}

// New creates an empty store. Call Load to pull the durable snapshot in.
func New(p Persister, opts Options, logger zerolog.Logger) *Store {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	return &Store{
		jobs:      make(map[string]*domain.BackgroundJob),
		capacity:  opts.Capacity,
		retention: opts.Retention,
		persister: p,
		logger:    logger,
		now:       time.Now,
	}
}

// Load replaces in-memory state with the persisted snapshot, dropping records
// older than the retention window.
func (s *Store) Load(ctx context.Context) error {
	jobs, err := s.persister.Load(ctx)
	if err != nil {
		return err
	}

	cutoff := s.now().Add(-s.retention)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = make(map[string]*domain.BackgroundJob, len(jobs))
	dropped := 0
	for _, j := range jobs {
		if j.TaskID == "" {
			continue
		}
		if j.CreatedAt.Before(cutoff) {
			dropped++
			continue
		}
		cp := j.Clone()
		s.jobs[j.TaskID] = &cp
	}
	if dropped > 0 {
		s.logger.Info().Int("dropped", dropped).Msg("jobstore: expired records removed on load")
		s.persist(ctx)
	}
	return nil
}

// Add creates a pending record for the task. It fails with ErrDuplicateTask
// when the id is already present, and evicts the oldest record when the store
// would exceed its capacity.
func (s *Store) Add(ctx context.Context, taskID, ownerID string, payload domain.GenerationPayload) error {
	if taskID == "" {
		return domain.ErrNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[taskID]; ok {
		return domain.ErrDuplicateTask
	}

	now := s.now()
	s.jobs[taskID] = &domain.BackgroundJob{
		TaskID:    taskID,
		OwnerID:   ownerID,
		Status:    domain.JobStatusPending,
		Progress:  make(map[int]int),
		Payload:   payload,
		CreatedAt: now,
		UpdatedAt: now,
	}

	for len(s.jobs) > s.capacity {
		oldest := ""
		var oldestAt time.Time
		for id, j := range s.jobs {
			if oldest == "" || j.CreatedAt.Before(oldestAt) {
				oldest = id
				oldestAt = j.CreatedAt
			}
		}
		delete(s.jobs, oldest)
		s.logger.Info().Str("task_id", oldest).Msg("jobstore: capacity eviction")
	}

	s.persist(ctx)
	return nil
}

// UpdateProgress merges a per-shot percentage into the job. Unknown tasks are
// a no-op: the record may have expired or been removed while the update was in
// flight. Progress never regresses, and the first update moves a pending job
// to running.
func (s *Store) UpdateProgress(ctx context.Context, taskID string, shot, percent int) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[taskID]
	if !ok || j.Status.Terminal() {
		return
	}
	if j.Progress == nil {
		j.Progress = make(map[int]int)
	}
	if percent < j.Progress[shot] {
		return
	}
	j.Progress[shot] = percent
	if j.Status == domain.JobStatusPending {
		j.Status = domain.JobStatusRunning
	}
	j.UpdatedAt = s.now()
	s.persist(ctx)
}

// UpdateOverallProgress applies a whole-task percentage, as reported by the
// poll endpoint, across every submitted shot. Per-shot monotonicity still
// holds: shots already further along keep their higher value.
func (s *Store) UpdateOverallProgress(ctx context.Context, taskID string, percent int) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[taskID]
	if !ok || j.Status.Terminal() {
		return
	}
	if j.Progress == nil {
		j.Progress = make(map[int]int)
	}
	changed := false
	for _, shot := range j.Payload.Shots {
		if percent > j.Progress[shot.Number] {
			j.Progress[shot.Number] = percent
			changed = true
		}
	}
	if !changed {
		return
	}
	if j.Status == domain.JobStatusPending {
		j.Status = domain.JobStatusRunning
	}
	j.UpdatedAt = s.now()
	s.persist(ctx)
}

// Complete sets the terminal success state and reports whether this call
// performed the transition. Repeating an identical outcome is a silent no-op;
// a conflicting outcome after a terminal state is ignored and logged, the
// first writer wins.
func (s *Store) Complete(ctx context.Context, taskID string, result domain.GenerationResult) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[taskID]
	if !ok {
		return false
	}
	if j.Status.Terminal() {
		if j.Status != domain.JobStatusCompleted {
			s.logger.Warn().Str("task_id", taskID).
				Str("status", string(j.Status)).
				Msg("jobstore: conflicting complete after terminal state ignored")
		}
		return false
	}

	res := result
	res.Shots = append([]domain.ShotArtifact(nil), result.Shots...)
	j.Status = domain.JobStatusCompleted
	j.Result = &res
	j.Error = ""
	// The server is done with every shot; align the progress map so readers
	// never see a completed job reporting partial shots.
	if j.Progress == nil {
		j.Progress = make(map[int]int)
	}
	for _, shot := range j.Payload.Shots {
		j.Progress[shot.Number] = 100
	}
	j.UpdatedAt = s.now()
	s.persist(ctx)
	return true
}

// Fail sets the terminal error state with the same first-writer-wins rules as
// Complete.
func (s *Store) Fail(ctx context.Context, taskID, message string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[taskID]
	if !ok {
		return false
	}
	if j.Status.Terminal() {
		if j.Status != domain.JobStatusError {
			s.logger.Warn().Str("task_id", taskID).
				Str("status", string(j.Status)).
				Msg("jobstore: conflicting fail after terminal state ignored")
		}
		return false
	}

	j.Status = domain.JobStatusError
	j.Error = message
	j.Result = nil
	j.UpdatedAt = s.now()
	s.persist(ctx)
	return true
}

// Remove drops the record. It reports whether anything was removed.
func (s *Store) Remove(ctx context.Context, taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[taskID]; !ok {
		return false
	}
	delete(s.jobs, taskID)
	s.persist(ctx)
	return true
}

// ClearTerminal drops every completed or errored record and returns the
// removed task ids.
func (s *Store) ClearTerminal(ctx context.Context) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed []string
	for id, j := range s.jobs {
		if j.Status.Terminal() {
			delete(s.jobs, id)
			removed = append(removed, id)
		}
	}
	if len(removed) > 0 {
		s.persist(ctx)
	}
	return removed
}

// Get returns a copy of one record.
func (s *Store) Get(taskID string) (domain.BackgroundJob, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[taskID]
	if !ok {
		return domain.BackgroundJob{}, false
	}
	return j.Clone(), true
}

// List returns a restartable iterator over a point-in-time snapshot ordered
// by CreatedAt descending. Ranging over it twice replays the same snapshot.
func (s *Store) List() iter.Seq[domain.BackgroundJob] {
	snapshot := s.snapshot()
	return func(yield func(domain.BackgroundJob) bool) {
		for _, j := range snapshot {
			if !yield(j) {
				return
			}
		}
	}
}

// ActiveTaskIDs returns the ids of all non-terminal jobs, oldest first. Used
// to re-attach trackers after a restart.
func (s *Store) ActiveTaskIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	type entry struct {
		id string
		at time.Time
	}
	active := make([]entry, 0, len(s.jobs))
	for id, j := range s.jobs {
		if !j.Status.Terminal() {
			active = append(active, entry{id: id, at: j.CreatedAt})
		}
	}
	slices.SortFunc(active, func(a, b entry) int { return a.at.Compare(b.at) })
	ids := make([]string, len(active))
	for i, e := range active {
		ids[i] = e.id
	}
	return ids
}

func (s *Store) snapshot() []domain.BackgroundJob {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.BackgroundJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j.Clone())
	}
	slices.SortFunc(out, func(a, b domain.BackgroundJob) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out
}

// persist writes the full snapshot through the persister. Callers hold the
// write lock, which keeps snapshot writes ordered. Persistence failures are
// logged, not propagated: the in-memory state stays authoritative.
func (s *Store) persist(ctx context.Context) {
	jobs := make([]domain.BackgroundJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j.Clone())
	}
	slices.SortFunc(jobs, func(a, b domain.BackgroundJob) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if err := s.persister.Save(ctx, jobs); err != nil {
		s.logger.Error().Err(err).Msg("jobstore: snapshot save failed")
	}
}
