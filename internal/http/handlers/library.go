package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"vidtrack/internal/domain"
)

func (a *App) JobsAssets(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "task_id")
	if _, ok := a.Jobs.Get(taskID); !ok {
		a.error(w, http.StatusNotFound, "not_found", "task not found")
		return
	}
	assets, err := a.Library.Assets(r.Context(), taskID)
	if err != nil {
		a.Logger.Error().Err(err).Str("task_id", taskID).Msg("http: list assets failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to list assets")
		return
	}
	if assets == nil {
		assets = []domain.LibraryAsset{}
	}
	a.json(w, http.StatusOK, map[string]any{"items": assets, "count": len(assets)})
}

// JobsArchive streams a zip of the task's saved shots.
func (a *App) JobsArchive(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "task_id")
	data, err := a.Library.Archive(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "no saved artifacts for task")
			return
		}
		a.Logger.Error().Err(err).Str("task_id", taskID).Msg("http: archive failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to build archive")
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", taskID+".zip"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
