package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nexstream/internal/platform/config"
	"nexstream/internal/platform/logger"
	"nexstream/internal/platform/metrics"
	"nexstream/internal/stream"

	"github.com/go-chi/chi/v5"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()

	port := config.GetEnv("PORT", "8080")
	logLevel := config.GetEnv("LOG_LEVEL", "info")
	logFormat := config.GetEnv("LOG_FORMAT", "json")

	cfg := stream.Config{
		FFmpegPath:     config.GetEnv("FFMPEG_PATH", "ffmpeg"),
		MediaRoot:      config.GetEnv("MEDIA_ROOT", "./media"),
		IngestBase:     config.GetEnv("INGEST_URL_BASE", "rtmp://127.0.0.1:1935"),
		TranscodeDelay: config.GetEnvDuration("TRANSCODE_DELAY", 3*time.Second),
		CleanupDelay:   config.GetEnvDuration("CLEANUP_DELAY", 10*time.Second),
		SegmentSeconds: config.GetEnvInt("SEGMENT_SECONDS", 2),
		PlaylistWindow: config.GetEnvInt("PLAYLIST_WINDOW", 5),
	}

	log := logger.New(logLevel, logFormat)

	registry := stream.NewInMemoryRegistry()
	met := metrics.New()
	runner := stream.NewExecRunner(logger.WithComponent(log, "transcoder"))
	ctrl := stream.NewController(cfg, registry, runner, logger.WithComponent(log, "lifecycle"), met)
	h := stream.NewHandler(registry, ctrl, logger.WithComponent(log, "api"))
	cfg = ctrl.Config()

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
		met.Handler(func() {
			met.SetActiveStreams(registry.ActiveCount())
			met.SetViewers(registry.TotalViewers())
		}).ServeHTTP(w, req)
	})
	r.Route("/api", func(r chi.Router) {
		r.Get("/streams", h.ListStreams)
		r.Get("/streams/{streamKey}", h.GetStream)
		r.Get("/health", h.Health)
	})
	r.Route("/hooks", func(r chi.Router) {
		r.Post("/publish", h.Publish)
		r.Post("/publish-done", h.PublishDone)
		r.Post("/play", h.Play)
		r.Post("/play-done", h.PlayDone)
	})
	r.Handle("/hls/*", http.StripPrefix("/hls/", http.FileServer(http.Dir(cfg.HLSRoot()))))
	r.Handle("/thumbnails/*", http.StripPrefix("/thumbnails/", http.FileServer(http.Dir(cfg.ThumbnailRoot()))))

	addr := ":" + port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", port,
		"media_root", cfg.MediaRoot,
		"ingest_base", cfg.IngestBase,
		"transcode_delay", cfg.TranscodeDelay.String(),
		"cleanup_delay", cfg.CleanupDelay.String(),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
