package stream

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// StreamSummary is the per-stream view returned by the listing endpoint.
// URLs reference the statically-known artifact layout, so a summary may
// point at a manifest that does not exist yet during the settling delay;
// players are expected to retry.
type StreamSummary struct {
	ID         string `json:"id"`
	StreamKey  string `json:"streamKey"`
	StreamPath string `json:"streamPath"`
	Viewers    int    `json:"viewers"`
	Duration   int64  `json:"duration"`
	Thumbnail  string `json:"thumbnail"`
	HLSURL     string `json:"hlsUrl"`
}

// RenditionRef points a player at one rendition's sub-manifest.
type RenditionRef struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// StreamDetail extends the summary with the full rendition list, derived
// from static profile configuration rather than job state.
type StreamDetail struct {
	StreamSummary
	Resolutions []RenditionRef `json:"resolutions"`
}

// hookEvent is the JSON payload the ingest server posts on publish and
// playback transitions. Path has the form "<application>/<streamKey>".
type hookEvent struct {
	ID   string            `json:"id"`
	Path string            `json:"path"`
	Args map[string]string `json:"args,omitempty"`
}

// Handler exposes the read-only query API and the ingest webhook endpoints.
type Handler struct {
	registry Registry
	ctrl     *Controller
	log      *slog.Logger
}

// NewHandler returns a Handler over the given registry and controller.
func NewHandler(registry Registry, ctrl *Controller, log *slog.Logger) *Handler {
	return &Handler{registry: registry, ctrl: ctrl, log: log}
}

// ListStreams handles GET /api/streams.
func (h *Handler) ListStreams(w http.ResponseWriter, r *http.Request) {
	sessions := h.registry.List()
	streams := make([]StreamSummary, 0, len(sessions))
	for _, s := range sessions {
		streams = append(streams, h.summary(s))
	}
	writeJSON(w, http.StatusOK, map[string]any{"streams": streams})
}

// GetStream handles GET /api/streams/{streamKey}. Internal job state never
// surfaces here: the only distinction is found vs not found.
func (h *Handler) GetStream(w http.ResponseWriter, r *http.Request) {
	key := StreamKey(chi.URLParam(r, "streamKey"))
	session, ok := h.registry.Get(key)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Stream not found"})
		return
	}

	profiles := h.ctrl.Config().Profiles
	resolutions := make([]RenditionRef, 0, len(profiles))
	for _, p := range profiles {
		resolutions = append(resolutions, RenditionRef{
			Name: p.Name,
			URL:  "/hls/" + string(key) + "/" + p.Name + "/index.m3u8",
		})
	}

	writeJSON(w, http.StatusOK, StreamDetail{
		StreamSummary: h.summary(session),
		Resolutions:   resolutions,
	})
}

// Health handles GET /api/health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	sessions := h.registry.List()
	keys := make([]string, 0, len(sessions))
	for _, s := range sessions {
		keys = append(keys, string(s.Key))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"activeStreams": len(sessions),
		"streams":       keys,
	})
}

// Publish handles POST /hooks/publish: an ingest has started. A publish to
// an already-live key is rejected with 409 so the ingest server can drop
// the second connection.
func (h *Handler) Publish(w http.ResponseWriter, r *http.Request) {
	ev, ok := h.decodeEvent(w, r)
	if !ok {
		return
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if err := h.ctrl.IngestStart(ev.ID, ev.Path); err != nil {
		if errors.Is(err, ErrSessionExists) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "stream key already in use"})
			return
		}
		h.log.Error("publish hook failed", slog.String("path", ev.Path), slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// PublishDone handles POST /hooks/publish-done: the ingest has ended.
func (h *Handler) PublishDone(w http.ResponseWriter, r *http.Request) {
	ev, ok := h.decodeEvent(w, r)
	if !ok {
		return
	}
	h.ctrl.IngestStop(ev.Path)
	w.WriteHeader(http.StatusOK)
}

// Play handles POST /hooks/play: a viewer started playback. Unknown keys
// are accepted silently; viewers may race with registry population.
func (h *Handler) Play(w http.ResponseWriter, r *http.Request) {
	ev, ok := h.decodeEvent(w, r)
	if !ok {
		return
	}
	h.ctrl.PlayStart(ev.Path)
	w.WriteHeader(http.StatusOK)
}

// PlayDone handles POST /hooks/play-done: a viewer stopped playback.
func (h *Handler) PlayDone(w http.ResponseWriter, r *http.Request) {
	ev, ok := h.decodeEvent(w, r)
	if !ok {
		return
	}
	h.ctrl.PlayStop(ev.Path)
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) decodeEvent(w http.ResponseWriter, r *http.Request) (hookEvent, bool) {
	var ev hookEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil || ev.Path == "" {
		h.log.Debug("invalid hook payload")
		w.WriteHeader(http.StatusBadRequest)
		return hookEvent{}, false
	}
	return ev, true
}

func (h *Handler) summary(s Session) StreamSummary {
	return StreamSummary{
		ID:         s.ConnectionID,
		StreamKey:  string(s.Key),
		StreamPath: s.IngestPath,
		Viewers:    s.Viewers,
		Duration:   int64(time.Since(s.StartTime).Seconds()),
		Thumbnail:  "/thumbnails/" + string(s.Key) + ".jpg",
		HLSURL:     "/hls/" + string(s.Key) + "/master.m3u8",
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
