// Package handlers exposes the tracking engine over HTTP.
package handlers

import (
	"encoding/json"
	"net/http"

	"vidtrack/internal/infra"
	"vidtrack/internal/jobstore"
	"vidtrack/internal/library"
	"vidtrack/internal/notify"
	"vidtrack/internal/reconcile"
	"vidtrack/internal/track"
)

type App struct {
	Jobs       *jobstore.Store
	Tracker    *track.Tracker
	Reconciler *reconcile.Reconciler
	Library    *library.Saver
	Center     *notify.Center
	Projector  *notify.Projector
	Logger     infra.Logger
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, tag, message string) {
	a.json(w, code, map[string]string{"error": tag, "message": message})
}
