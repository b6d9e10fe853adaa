package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"vidtrack/internal/domain"
	"vidtrack/internal/infra"
	"vidtrack/internal/sqlinline"
)

// AssetRepositoryPG records saved library artifacts.
type AssetRepositoryPG struct {
	sql infra.SQLExecutor
}

func NewAssetRepository(sql infra.SQLExecutor) *AssetRepositoryPG {
	return &AssetRepositoryPG{sql: sql}
}

// Insert writes one asset row. A missing id is assigned. Re-saving the same
// task/shot pair overwrites the previous row rather than duplicating it.
func (r *AssetRepositoryPG) Insert(ctx context.Context, asset domain.LibraryAsset) error {
	if asset.ID == "" {
		asset.ID = uuid.NewString()
	}
	_, err := r.sql.Exec(ctx, sqlinline.QInsertLibraryAsset,
		asset.ID,
		asset.OwnerID,
		asset.TaskID,
		asset.SequenceID,
		asset.ShotNumber,
		asset.StorageKey,
		asset.Format,
		asset.SizeBytes,
		asset.DurationSeconds,
	)
	if err != nil {
		return fmt.Errorf("repo: insert library asset: %w", err)
	}
	return nil
}

// ListByTask returns the saved assets for a task ordered by shot number.
func (r *AssetRepositoryPG) ListByTask(ctx context.Context, taskID string) ([]domain.LibraryAsset, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QSelectLibraryAssetsByTask, taskID)
	if err != nil {
		return nil, fmt.Errorf("repo: list library assets: %w", err)
	}
	defer rows.Close()

	var out []domain.LibraryAsset
	for rows.Next() {
		var a domain.LibraryAsset
		if err := rows.Scan(
			&a.ID,
			&a.OwnerID,
			&a.TaskID,
			&a.SequenceID,
			&a.ShotNumber,
			&a.StorageKey,
			&a.Format,
			&a.SizeBytes,
			&a.DurationSeconds,
			&a.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("repo: scan library asset: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
