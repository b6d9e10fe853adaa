package jobstore

import (
	"context"
	"sync"

	"vidtrack/internal/domain"
)

// MemoryPersister keeps the snapshot in process memory. It backs tests and
// development runs without a database.
type MemoryPersister struct {
	mu       sync.Mutex
	snapshot []domain.BackgroundJob
	saves    int
}

func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{}
}

func (m *MemoryPersister) Save(_ context.Context, jobs []domain.BackgroundJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot = append([]domain.BackgroundJob(nil), jobs...)
	m.saves++
	return nil
}

func (m *MemoryPersister) Load(context.Context) ([]domain.BackgroundJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.BackgroundJob(nil), m.snapshot...), nil
}

// Saves returns how many snapshot writes happened.
func (m *MemoryPersister) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// Seed replaces the stored snapshot, bypassing Save accounting.
func (m *MemoryPersister) Seed(jobs []domain.BackgroundJob) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot = append([]domain.BackgroundJob(nil), jobs...)
}
