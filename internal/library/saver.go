// Package library turns a completed generation result into durable assets:
// shot videos are fetched from the upstream CDN, written to storage, and
// recorded so they show up in the owner's library.
package library

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"vidtrack/internal/domain"
	"vidtrack/internal/storage"
	zippkg "vidtrack/pkg/zip"
)

// maxShotBytes caps a single downloaded shot video.
const maxShotBytes = 256 << 20

// AssetRepo records and lists saved artifacts.
type AssetRepo interface {
	Insert(ctx context.Context, asset domain.LibraryAsset) error
	ListByTask(ctx context.Context, taskID string) ([]domain.LibraryAsset, error)
}

type Saver struct {
	store  *storage.FileStore
	assets AssetRepo
	client *http.Client
	logger zerolog.Logger
}

func NewSaver(store *storage.FileStore, assets AssetRepo, client *http.Client, logger zerolog.Logger) *Saver {
	if client == nil {
		client = &http.Client{}
	}
	return &Saver{store: store, assets: assets, client: client, logger: logger}
}

// SaveSequence persists every shot of a completed job. The asset insert is an
// upsert on (task, shot), so a retried save after a partial failure redoes
// the remaining shots without duplicating the finished ones.
func (s *Saver) SaveSequence(ctx context.Context, job domain.BackgroundJob) error {
	if job.Result == nil || job.Result.SequenceID == "" {
		return errors.New("library: job has no result to save")
	}
	if len(job.Result.Shots) == 0 {
		return errors.New("library: result carries no shots")
	}

	for _, artifact := range job.Result.Shots {
		data, err := s.download(ctx, artifact.VideoURL)
		if err != nil {
			return fmt.Errorf("library: fetch shot %d: %w", artifact.ShotNumber, err)
		}
		key := shotKey(job.OwnerID, job.Result.SequenceID, artifact)
		savedKey, err := s.store.Write(ctx, key, data)
		if err != nil {
			return fmt.Errorf("library: store shot %d: %w", artifact.ShotNumber, err)
		}
		asset := domain.LibraryAsset{
			OwnerID:         job.OwnerID,
			TaskID:          job.TaskID,
			SequenceID:      job.Result.SequenceID,
			ShotNumber:      artifact.ShotNumber,
			StorageKey:      savedKey,
			Format:          formatOf(artifact),
			SizeBytes:       int64(len(data)),
			DurationSeconds: artifact.DurationSeconds,
		}
		if err := s.assets.Insert(ctx, asset); err != nil {
			return fmt.Errorf("library: record shot %d: %w", artifact.ShotNumber, err)
		}
		s.logger.Debug().
			Str("task_id", job.TaskID).
			Int("shot", artifact.ShotNumber).
			Str("key", savedKey).
			Msg("library: shot saved")
	}
	return nil
}

// Assets lists the saved artifacts for a task.
func (s *Saver) Assets(ctx context.Context, taskID string) ([]domain.LibraryAsset, error) {
	return s.assets.ListByTask(ctx, taskID)
}

// Archive bundles a task's saved shots into a single zip download.
func (s *Saver) Archive(ctx context.Context, taskID string) ([]byte, error) {
	assets, err := s.assets.ListByTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if len(assets) == 0 {
		return nil, domain.ErrNotFound
	}
	entries := make([]zippkg.Entry, 0, len(assets))
	for _, asset := range assets {
		data, err := s.store.Read(ctx, asset.StorageKey)
		if err != nil {
			return nil, fmt.Errorf("library: archive shot %d: %w", asset.ShotNumber, err)
		}
		entries = append(entries, zippkg.Entry{
			Name: fmt.Sprintf("shot-%02d.%s", asset.ShotNumber, asset.Format),
			Data: data,
		})
	}
	return zippkg.Archive(entries)
}

func (s *Saver) download(ctx context.Context, url string) ([]byte, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("empty video url")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxShotBytes))
	if err != nil {
		return nil, err
	}
	return data, nil
}

func shotKey(ownerID, sequenceID string, artifact domain.ShotArtifact) string {
	owner := ownerID
	if owner == "" {
		owner = "anonymous"
	}
	return fmt.Sprintf("library/%s/%s/shot-%02d.%s", owner, sequenceID, artifact.ShotNumber, formatOf(artifact))
}

func formatOf(artifact domain.ShotArtifact) string {
	f := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(artifact.Format)), ".")
	if f == "" {
		return "mp4"
	}
	return f
}
