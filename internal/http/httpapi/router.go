package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"vidtrack/internal/http/handlers"
	"vidtrack/internal/infra"
	"vidtrack/internal/middleware"
)

func NewRouter(app *handlers.App, cfg *infra.Config, logger infra.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP, chimw.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(middleware.RateLimit(cfg.RateLimitPerMin, time.Minute))
	r.Use(middleware.Owner)
	r.Use(middleware.I18N(cfg.DefaultLocale))

	r.Get("/v1/healthz", app.Health)

	r.Route("/v1/jobs", func(r chi.Router) {
		r.Post("/", app.JobsTrack)
		r.Get("/", app.JobsList)
		r.Post("/clear-terminal", app.JobsClearTerminal)
		r.Route("/{task_id}", func(r chi.Router) {
			r.Get("/", app.JobsGet)
			r.Delete("/", app.JobsDelete)
			r.Post("/save", app.JobsRetrySave)
			r.Get("/assets", app.JobsAssets)
			r.Get("/archive", app.JobsArchive)
		})
	})

	r.Route("/v1/notifications", func(r chi.Router) {
		r.Get("/", app.NotificationsList)
		r.Post("/read-all", app.NotificationsMarkAllRead)
		r.Post("/{id}/read", app.NotificationsMarkRead)
	})

	return r
}
