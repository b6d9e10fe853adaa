package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"vidtrack/internal/domain"
	"vidtrack/internal/middleware"
	"vidtrack/internal/notify"
)

func (a *App) NotificationsList(w http.ResponseWriter, r *http.Request) {
	locale := middleware.LocaleFromContext(r.Context())
	items := a.Projector.Project(locale)
	if items == nil {
		items = []domain.Notification{}
	}
	a.json(w, http.StatusOK, map[string]any{"items": items, "unread": notify.Unread(items)})
}

func (a *App) NotificationsMarkRead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !a.Center.MarkRead(id) {
		a.error(w, http.StatusNotFound, "not_found", "notification not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) NotificationsMarkAllRead(w http.ResponseWriter, r *http.Request) {
	a.Center.MarkAllRead()
	w.WriteHeader(http.StatusNoContent)
}
