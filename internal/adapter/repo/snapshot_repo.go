package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"vidtrack/internal/domain"
	"vidtrack/internal/infra"
	"vidtrack/internal/sqlinline"
)

// SnapshotKey is the single well-known key the job snapshot lives under.
const SnapshotKey = "background_jobs"

// SnapshotRepositoryPG persists the full job array as one JSON value in the
// engine KV table. It implements jobstore.Persister.
type SnapshotRepositoryPG struct {
	sql infra.SQLExecutor
}

func NewSnapshotRepository(sql infra.SQLExecutor) *SnapshotRepositoryPG {
	return &SnapshotRepositoryPG{sql: sql}
}

func (r *SnapshotRepositoryPG) Save(ctx context.Context, jobs []domain.BackgroundJob) error {
	if jobs == nil {
		jobs = []domain.BackgroundJob{}
	}
	raw, err := json.Marshal(jobs)
	if err != nil {
		return fmt.Errorf("repo: marshal job snapshot: %w", err)
	}
	if _, err := r.sql.Exec(ctx, sqlinline.QUpsertEngineKV, SnapshotKey, raw); err != nil {
		return fmt.Errorf("repo: write job snapshot: %w", err)
	}
	return nil
}

func (r *SnapshotRepositoryPG) Load(ctx context.Context) ([]domain.BackgroundJob, error) {
	row := r.sql.QueryRow(ctx, sqlinline.QSelectEngineKV, SnapshotKey)
	var raw []byte
	if err := row.Scan(&raw); err != nil {
		if infra.IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("repo: read job snapshot: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var jobs []domain.BackgroundJob
	if err := json.Unmarshal(raw, &jobs); err != nil {
		return nil, fmt.Errorf("repo: decode job snapshot: %w", err)
	}
	return jobs, nil
}
