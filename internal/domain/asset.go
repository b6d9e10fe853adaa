package domain

import "time"

// LibraryAsset is one saved artifact in the user's library. One row exists
// per shot of a saved sequence.
type LibraryAsset struct {
	ID              string    `json:"id"`
	OwnerID         string    `json:"owner_id"`
	TaskID          string    `json:"task_id"`
	SequenceID      string    `json:"sequence_id"`
	ShotNumber      int       `json:"shot_number"`
	StorageKey      string    `json:"storage_key"`
	Format          string    `json:"format"`
	SizeBytes       int64     `json:"size_bytes"`
	DurationSeconds int       `json:"duration_seconds,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}
