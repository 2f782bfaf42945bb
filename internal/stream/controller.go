package stream

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"nexstream/internal/platform/metrics"
)

// Controller drives the per-stream lifecycle: publish registers the session
// and schedules the delayed transcode start, publish-done tears everything
// down and schedules artifact cleanup. It exclusively owns the job sets and
// is the only writer to the registry; playback events only touch viewer
// counts. States per key run IDLE -> PUBLISHING -> TRANSCODING -> TERMINATED,
// with both delayed transitions cancellable so a session destroyed mid-delay
// cannot resurrect stale side effects.
type Controller struct {
	cfg      Config
	registry Registry
	runner   Runner
	log      *slog.Logger
	metrics  *metrics.Metrics

	mu       sync.Mutex
	jobs     map[StreamKey][]Job
	starts   map[StreamKey]*time.Timer
	cleanups map[StreamKey]*time.Timer
}

// NewController returns a Controller using the given registry and runner.
// Metrics may be nil to disable metric recording (e.g. in tests).
func NewController(cfg Config, registry Registry, runner Runner, log *slog.Logger, m *metrics.Metrics) *Controller {
	return &Controller{
		cfg:      cfg.withDefaults(),
		registry: registry,
		runner:   runner,
		log:      log,
		metrics:  m,
		jobs:     make(map[StreamKey][]Job),
		starts:   make(map[StreamKey]*time.Timer),
		cleanups: make(map[StreamKey]*time.Timer),
	}
}

// Config returns the controller's effective (default-filled) configuration.
func (c *Controller) Config() Config {
	return c.cfg
}

// IngestStart handles a publish notification. The stream key is the last
// path segment. A second publish to an already-live key is rejected with
// ErrSessionExists; the first session keeps running. On success the
// transcode start is scheduled after the configured settling delay.
func (c *Controller) IngestStart(connectionID, path string) error {
	key := KeyFromPath(path)
	if err := c.registry.Register(key, connectionID, path); err != nil {
		c.log.Warn("publish rejected",
			slog.String("stream_key", string(key)),
			slog.String("error", err.Error()))
		return err
	}

	c.mu.Lock()
	// A re-publish inside the cleanup window must not lose its fresh
	// artifacts to the previous session's pending delete.
	if t, ok := c.cleanups[key]; ok {
		t.Stop()
		delete(c.cleanups, key)
	}
	c.starts[key] = time.AfterFunc(c.cfg.TranscodeDelay, func() {
		c.beginTranscode(key, path, connectionID)
	})
	c.mu.Unlock()

	c.log.Info("ingest started",
		slog.String("stream_key", string(key)),
		slog.String("connection_id", connectionID),
		slog.String("path", path))
	if c.metrics != nil {
		c.metrics.IncIngestsStarted()
	}
	return nil
}

// IngestStop handles a publish-done notification. The session is removed
// from the registry before anything else, so the query API stops listing it
// immediately; then every job is force-killed and artifact cleanup is
// scheduled. Stopping an unknown key is a no-op.
func (c *Controller) IngestStop(path string) {
	key := KeyFromPath(path)
	c.registry.Unregister(key)

	c.mu.Lock()
	if t, ok := c.starts[key]; ok {
		t.Stop()
		delete(c.starts, key)
	}
	jobs := c.jobs[key]
	delete(c.jobs, key)
	c.cleanups[key] = time.AfterFunc(c.cfg.CleanupDelay, func() {
		c.cleanupArtifacts(key)
	})
	c.mu.Unlock()

	for _, j := range jobs {
		j.Kill()
	}

	c.log.Info("ingest stopped",
		slog.String("stream_key", string(key)),
		slog.Int("jobs_killed", len(jobs)))
	if c.metrics != nil {
		c.metrics.IncIngestsStopped()
	}
}

// PlayStart handles a playback-start notification. Unknown keys are silently
// ignored: viewers may race with registry population.
func (c *Controller) PlayStart(path string) {
	c.registry.AddViewer(KeyFromPath(path))
}

// PlayStop handles a playback-stop notification; the count floors at zero.
func (c *Controller) PlayStop(path string) {
	c.registry.RemoveViewer(KeyFromPath(path))
}

// JobCount reports the number of live jobs for a key.
func (c *Controller) JobCount(key StreamKey) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.jobs[key])
}

// beginTranscode runs at transcode-delay expiry. An ingest that ended inside
// the delay window must not start jobs for a dead stream, so the registry is
// consulted before any side effect. Key presence alone is not enough: the
// same key may already belong to a newer session after a stop + re-publish,
// so the session is matched by connection id, not just key.
func (c *Controller) beginTranscode(key StreamKey, path, connectionID string) {
	if s, ok := c.registry.Get(key); !ok || s.ConnectionID != connectionID {
		c.log.Debug("session gone before transcode delay, skipping",
			slog.String("stream_key", string(key)),
			slog.String("connection_id", connectionID))
		return
	}

	dir := c.cfg.StreamDir(key)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		c.log.Error("create stream output directory",
			slog.String("stream_key", string(key)),
			slog.String("error", err.Error()))
		return
	}

	master := BuildMasterPlaylist(c.cfg.Profiles)
	if err := os.WriteFile(filepath.Join(dir, "master.m3u8"), []byte(master), 0o644); err != nil {
		// Renditions can still be served directly; keep going.
		c.log.Error("write master playlist",
			slog.String("stream_key", string(key)),
			slog.String("error", err.Error()))
	}

	input := c.cfg.IngestURL(path)
	jobs := make([]Job, 0, len(c.cfg.Profiles)+1)

	for _, p := range c.cfg.Profiles {
		outDir := filepath.Join(dir, p.Name)
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			// Aborts only this rendition; siblings proceed.
			c.log.Error("create rendition directory",
				slog.String("stream_key", string(key)),
				slog.String("rendition", p.Name),
				slog.String("error", err.Error()))
			continue
		}
		job, err := c.runner.Start(c.cfg.FFmpegPath, renditionArgs(c.cfg, input, p, outDir))
		if err != nil {
			c.log.Error("start transcode job",
				slog.String("stream_key", string(key)),
				slog.String("rendition", p.Name),
				slog.String("error", err.Error()))
			if c.metrics != nil {
				c.metrics.IncJobFailures()
			}
			continue
		}
		c.log.Info("transcode job started",
			slog.String("stream_key", string(key)),
			slog.String("rendition", p.Name))
		jobs = append(jobs, job)
	}

	if err := os.MkdirAll(c.cfg.ThumbnailRoot(), 0o755); err != nil {
		c.log.Error("create thumbnail directory",
			slog.String("stream_key", string(key)),
			slog.String("error", err.Error()))
	} else if job, err := c.runner.Start(c.cfg.FFmpegPath, thumbnailArgs(input, c.cfg.ThumbnailFile(key))); err != nil {
		// A missing thumbnail degrades the listing, never the stream.
		c.log.Error("start thumbnail job",
			slog.String("stream_key", string(key)),
			slog.String("error", err.Error()))
		if c.metrics != nil {
			c.metrics.IncJobFailures()
		}
	} else {
		jobs = append(jobs, job)
	}

	c.mu.Lock()
	// The ingest may have stopped while jobs were spawning; its kill already
	// ran against an empty set, so reap them here instead of leaving
	// orphans. The key may even be live again under a new connection, in
	// which case these jobs belong to the dead session, must not be
	// committed under the new one, and the pending entries in starts/jobs
	// are the new session's to keep.
	if s, ok := c.registry.Get(key); !ok || s.ConnectionID != connectionID {
		c.mu.Unlock()
		for _, j := range jobs {
			j.Kill()
		}
		c.log.Info("reaped jobs spawned for a dead session",
			slog.String("stream_key", string(key)),
			slog.String("connection_id", connectionID),
			slog.Int("jobs_killed", len(jobs)))
		return
	}
	delete(c.starts, key)
	c.jobs[key] = jobs
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.AddJobsStarted(len(jobs))
	}
}

// cleanupArtifacts removes the per-stream output tree and thumbnail after
// the post-termination settling delay.
func (c *Controller) cleanupArtifacts(key StreamKey) {
	c.mu.Lock()
	delete(c.cleanups, key)
	c.mu.Unlock()

	if err := os.RemoveAll(c.cfg.StreamDir(key)); err != nil {
		c.log.Error("cleanup stream artifacts",
			slog.String("stream_key", string(key)),
			slog.String("error", err.Error()))
	}
	if err := os.Remove(c.cfg.ThumbnailFile(key)); err != nil && !os.IsNotExist(err) {
		c.log.Error("cleanup thumbnail",
			slog.String("stream_key", string(key)),
			slog.String("error", err.Error()))
	}
	c.log.Info("stream artifacts cleaned up", slog.String("stream_key", string(key)))
}
