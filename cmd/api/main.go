package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"vidtrack/internal/adapter/repo"
	"vidtrack/internal/http/handlers"
	httpapi "vidtrack/internal/http/httpapi"
	"vidtrack/internal/infra"
	"vidtrack/internal/infra/credentials"
	"vidtrack/internal/jobstore"
	"vidtrack/internal/library"
	"vidtrack/internal/notify"
	"vidtrack/internal/reconcile"
	"vidtrack/internal/storage"
	"vidtrack/internal/track"
	"vidtrack/internal/upstream"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()
	runner := infra.NewSQLRunner(dbpool, logger)

	// Durable job registry, reloaded from the last snapshot.
	jobs := jobstore.New(repo.NewSnapshotRepository(runner), jobstore.Options{
		Capacity:  cfg.JobStoreCapacity,
		Retention: cfg.JobRetention,
	}, logger)
	if err := jobs.Load(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to load job snapshot")
	}

	fileStore, err := storage.NewFileStore(cfg.StoragePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure storage")
	}

	apiKey := strings.TrimSpace(cfg.UpstreamAPIKey)
	if apiKey == "" {
		credStore := credentials.NewStore(runner)
		keyFromStore, err := credStore.UpstreamAPIKey(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to load upstream api key from store")
		} else {
			apiKey = keyFromStore
		}
	}
	client, err := upstream.NewClient(upstream.Options{
		BaseURL: cfg.UpstreamBaseURL,
		APIKey:  apiKey,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure upstream client")
	}

	saver := library.NewSaver(fileStore, repo.NewAssetRepository(runner), &http.Client{Timeout: 120 * time.Second}, logger)
	center := notify.NewCenter()
	reconciler := reconcile.New(jobs, saver, center, logger)
	tracker := track.New(track.NewUpstream(client), jobs, reconciler, track.Options{
		PollInterval:   cfg.PollInterval,
		SilenceTimeout: cfg.SilenceTimeout,
	}, logger)

	// Tasks that were still in flight when the previous process died pick
	// up where they left off.
	for _, taskID := range jobs.ActiveTaskIDs() {
		tracker.Track(taskID)
		logger.Info().Str("task_id", taskID).Msg("resumed tracking")
	}

	app := &handlers.App{
		Jobs:       jobs,
		Tracker:    tracker,
		Reconciler: reconciler,
		Library:    saver,
		Center:     center,
		Projector:  notify.NewProjector(center, jobs),
		Logger:     logger,
	}
	router := httpapi.NewRouter(app, cfg, logger)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on %s", server.Addr())
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	if err := tracker.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to drain watchers")
	}
	logger.Info().Msg("server stopped")
}
