package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"vidtrack/internal/domain"
	"vidtrack/internal/middleware"
)

type trackRequest struct {
	TaskID  string        `json:"task_id"`
	Shots   []domain.Shot `json:"shots"`
	Quality string        `json:"quality"`
	Model   string        `json:"model"`
}

type jobView struct {
	TaskID          string                   `json:"task_id"`
	OwnerID         string                   `json:"owner_id,omitempty"`
	Status          domain.JobStatus         `json:"status"`
	Progress        map[int]int              `json:"progress,omitempty"`
	OverallProgress int                      `json:"overall_progress"`
	ShotCount       int                      `json:"shot_count"`
	Result          *domain.GenerationResult `json:"result,omitempty"`
	Error           string                   `json:"error,omitempty"`
	Tracking        bool                     `json:"tracking"`
	CreatedAt       time.Time                `json:"created_at"`
	UpdatedAt       time.Time                `json:"updated_at"`
}

func (a *App) jobView(job domain.BackgroundJob) jobView {
	return jobView{
		TaskID:          job.TaskID,
		OwnerID:         job.OwnerID,
		Status:          job.Status,
		Progress:        job.Progress,
		OverallProgress: job.OverallProgress(),
		ShotCount:       len(job.Payload.Shots),
		Result:          job.Result,
		Error:           job.Error,
		Tracking:        a.Tracker.IsTracking(job.TaskID),
		CreatedAt:       job.CreatedAt,
		UpdatedAt:       job.UpdatedAt,
	}
}

// JobsTrack registers an already-submitted generation task and starts
// following its progress.
func (a *App) JobsTrack(w http.ResponseWriter, r *http.Request) {
	var req trackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.TaskID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "task_id is required")
		return
	}
	for i := range req.Shots {
		if req.Shots[i].Number == 0 {
			req.Shots[i].Number = i + 1
		}
	}
	payload := domain.GenerationPayload{Shots: req.Shots, Quality: req.Quality, Model: req.Model}
	if err := payload.Validate(); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	owner := middleware.OwnerFromContext(r.Context())
	if err := a.Jobs.Add(r.Context(), req.TaskID, owner, payload); err != nil {
		if errors.Is(err, domain.ErrDuplicateTask) {
			a.error(w, http.StatusConflict, "duplicate_task", "task is already tracked")
			return
		}
		a.error(w, http.StatusInternalServerError, "internal", "failed to register task")
		return
	}
	a.Tracker.Track(req.TaskID)

	job, _ := a.Jobs.Get(req.TaskID)
	a.json(w, http.StatusCreated, a.jobView(job))
}

func (a *App) JobsList(w http.ResponseWriter, r *http.Request) {
	items := []jobView{}
	for job := range a.Jobs.List() {
		items = append(items, a.jobView(job))
	}
	a.json(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

func (a *App) JobsGet(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "task_id")
	job, ok := a.Jobs.Get(taskID)
	if !ok {
		a.error(w, http.StatusNotFound, "not_found", "task not found")
		return
	}
	a.json(w, http.StatusOK, a.jobView(job))
}

// JobsDelete stops tracking and drops the record. The watcher is cancelled
// first so no update can land after the record is gone.
func (a *App) JobsDelete(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "task_id")
	a.Tracker.Cancel(taskID)
	if !a.Jobs.Remove(r.Context(), taskID) {
		a.error(w, http.StatusNotFound, "not_found", "task not found")
		return
	}
	a.Reconciler.Forget(taskID)
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) JobsClearTerminal(w http.ResponseWriter, r *http.Request) {
	removed := a.Jobs.ClearTerminal(r.Context())
	a.Reconciler.Forget(removed...)
	a.json(w, http.StatusOK, map[string]int{"cleared": len(removed)})
}

// JobsRetrySave re-runs the library save for a completed job whose artifact
// save failed.
func (a *App) JobsRetrySave(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "task_id")
	err := a.Reconciler.RetrySave(r.Context(), taskID)
	switch {
	case err == nil:
		a.json(w, http.StatusOK, map[string]string{"status": "saved"})
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "task not found")
	case errors.Is(err, domain.ErrNotCompleted):
		a.error(w, http.StatusConflict, "not_completed", "task has not completed")
	case errors.Is(err, domain.ErrAlreadySaved):
		a.error(w, http.StatusConflict, "already_saved", "artifacts are already saved")
	case errors.Is(err, domain.ErrSaveInFlight):
		a.error(w, http.StatusConflict, "save_in_flight", "a save is already running")
	default:
		a.Logger.Error().Err(err).Str("task_id", taskID).Msg("http: retry save failed")
		a.error(w, http.StatusBadGateway, "save_failed", "artifact save failed")
	}
}
