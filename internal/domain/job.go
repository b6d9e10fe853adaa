package domain

import "time"

// MaxShots bounds the number of shots a single generation task may carry.
// The upstream service rejects longer sequences.
const MaxShots = 3

// JobStatus enumerates the lifecycle states of a tracked generation task.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusError     JobStatus = "error"
)

// Terminal reports whether no further status transitions may occur.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusError
}

// Shot describes one sub-segment of a generation task. The prompt fields are
// freeform; empty fields are simply omitted from the upstream prompt.
type Shot struct {
	Number      int    `json:"number"`
	Characters  string `json:"characters,omitempty"`
	Environment string `json:"environment,omitempty"`
	Lighting    string `json:"lighting,omitempty"`
	CameraAngle string `json:"camera_angle,omitempty"`
	Dialog      string `json:"dialog,omitempty"`
	// HasReferenceImage marks shots submitted with an uploaded reference
	// frame. The image itself is held upstream.
	HasReferenceImage bool `json:"has_reference_image,omitempty"`
}

// GenerationPayload is the immutable input describing a task. It is retained
// for the whole lifetime of the job so the completion side effect can be
// replayed without re-submitting.
type GenerationPayload struct {
	Shots   []Shot `json:"shots"`
	Quality string `json:"quality,omitempty"`
	Model   string `json:"model,omitempty"`
}

// Validate checks the payload against submission constraints.
func (p GenerationPayload) Validate() error {
	if len(p.Shots) == 0 {
		return ErrEmptyPayload
	}
	if len(p.Shots) > MaxShots {
		return ErrTooManyShots
	}
	return nil
}

// ShotArtifact references one generated video segment.
type ShotArtifact struct {
	ShotNumber      int    `json:"shot_number"`
	VideoURL        string `json:"video_url"`
	Format          string `json:"format,omitempty"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`
}

// GenerationResult is the opaque outcome of a completed task.
type GenerationResult struct {
	SequenceID string         `json:"sequence_id"`
	Shots      []ShotArtifact `json:"shots"`
}

// BackgroundJob is one tracked generation task. Records are owned exclusively
// by the job store; consumers operate on copies and request mutations through
// the store's API.
type BackgroundJob struct {
	TaskID   string            `json:"task_id"`
	OwnerID  string            `json:"owner_id,omitempty"`
	Status   JobStatus         `json:"status"`
	Progress map[int]int       `json:"progress,omitempty"`
	Payload  GenerationPayload `json:"payload"`
	Result   *GenerationResult `json:"result,omitempty"`
	Error    string            `json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy so callers can hold a snapshot without aliasing
// the store-owned record.
func (j BackgroundJob) Clone() BackgroundJob {
	cp := j
	if j.Progress != nil {
		cp.Progress = make(map[int]int, len(j.Progress))
		for shot, pct := range j.Progress {
			cp.Progress[shot] = pct
		}
	}
	if j.Result != nil {
		res := *j.Result
		res.Shots = append([]ShotArtifact(nil), j.Result.Shots...)
		cp.Result = &res
	}
	cp.Payload.Shots = append([]Shot(nil), j.Payload.Shots...)
	return cp
}

// OverallProgress averages per-shot percentages across the submitted shots.
// Shots that have not reported yet count as zero.
func (j BackgroundJob) OverallProgress() int {
	total := len(j.Payload.Shots)
	if total == 0 {
		return 0
	}
	sum := 0
	for _, pct := range j.Progress {
		sum += pct
	}
	return sum / total
}
