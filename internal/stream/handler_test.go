package stream

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

func newTestHandler(t *testing.T) (*Handler, *InMemoryRegistry, *Controller) {
	t.Helper()
	registry := NewInMemoryRegistry()
	cfg := Config{
		MediaRoot:      t.TempDir(),
		TranscodeDelay: time.Hour, // transcoding never starts during handler tests
		CleanupDelay:   time.Hour,
	}
	ctrl := NewController(cfg, registry, &fakeRunner{}, testLogger(), nil)
	return NewHandler(registry, ctrl, testLogger()), registry, ctrl
}

func newTestRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()
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
	return r
}

func postHook(t *testing.T, r http.Handler, path string, ev hookEvent) *httptest.ResponseRecorder {
	t.Helper()
	b, _ := json.Marshal(ev)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHandler_ListStreams_empty(t *testing.T) {
	h, _, _ := newTestHandler(t)
	r := newTestRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/api/streams", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Streams []StreamSummary `json:"streams"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Streams) != 0 {
		t.Errorf("expected empty stream list, got %d", len(body.Streams))
	}
}

func TestHandler_ListStreams(t *testing.T) {
	h, _, _ := newTestHandler(t)
	r := newTestRouter(h)

	if rec := postHook(t, r, "/hooks/publish", hookEvent{ID: "conn-1", Path: "live/abc"}); rec.Code != http.StatusOK {
		t.Fatalf("publish: expected 200, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/streams", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var body struct {
		Streams []StreamSummary `json:"streams"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Streams) != 1 {
		t.Fatalf("expected 1 stream, got %d", len(body.Streams))
	}
	s := body.Streams[0]
	if s.StreamKey != "abc" || s.ID != "conn-1" {
		t.Errorf("unexpected summary: %+v", s)
	}
	if s.Thumbnail != "/thumbnails/abc.jpg" || s.HLSURL != "/hls/abc/master.m3u8" {
		t.Errorf("unexpected artifact URLs: %+v", s)
	}
}

func TestHandler_GetStream_not_found(t *testing.T) {
	h, _, _ := newTestHandler(t)
	r := newTestRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/api/streams/missing", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] == "" {
		t.Error("404 body should carry an error field")
	}
}

func TestHandler_GetStream_detail_before_transcoding(t *testing.T) {
	h, _, ctrl := newTestHandler(t)
	r := newTestRouter(h)

	postHook(t, r, "/hooks/publish", hookEvent{ID: "conn-1", Path: "live/abc"})

	// Transcoding has not started (delay is an hour out), but the detail
	// still lists every configured rendition.
	req := httptest.NewRequest(http.MethodGet, "/api/streams/abc", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var detail StreamDetail
	if err := json.Unmarshal(rec.Body.Bytes(), &detail); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(detail.Resolutions) != len(ctrl.Config().Profiles) {
		t.Errorf("expected %d renditions, got %d", len(ctrl.Config().Profiles), len(detail.Resolutions))
	}
	if detail.Resolutions[0].URL != "/hls/abc/360p/index.m3u8" {
		t.Errorf("unexpected rendition URL: %q", detail.Resolutions[0].URL)
	}
}

func TestHandler_publish_conflict(t *testing.T) {
	h, _, _ := newTestHandler(t)
	r := newTestRouter(h)

	postHook(t, r, "/hooks/publish", hookEvent{ID: "conn-1", Path: "live/abc"})
	rec := postHook(t, r, "/hooks/publish", hookEvent{ID: "conn-2", Path: "live/abc"})

	if rec.Code != http.StatusConflict {
		t.Errorf("second publish to the same key: expected 409, got %d", rec.Code)
	}
}

func TestHandler_publish_generates_connection_id(t *testing.T) {
	h, registry, _ := newTestHandler(t)
	r := newTestRouter(h)

	postHook(t, r, "/hooks/publish", hookEvent{Path: "live/abc"})

	s, ok := registry.Get("abc")
	if !ok {
		t.Fatal("session not registered")
	}
	if s.ConnectionID == "" {
		t.Error("missing connection id should be generated")
	}
}

func TestHandler_publish_done_removes_stream(t *testing.T) {
	h, registry, _ := newTestHandler(t)
	r := newTestRouter(h)

	postHook(t, r, "/hooks/publish", hookEvent{ID: "conn-1", Path: "live/abc"})
	postHook(t, r, "/hooks/publish-done", hookEvent{Path: "live/abc"})

	if _, ok := registry.Get("abc"); ok {
		t.Error("stream should be gone immediately after publish-done")
	}

	// The very next listing excludes it.
	req := httptest.NewRequest(http.MethodGet, "/api/streams", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	var body struct {
		Streams []StreamSummary `json:"streams"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if len(body.Streams) != 0 {
		t.Errorf("listing should be empty, got %d entries", len(body.Streams))
	}
}

func TestHandler_play_hooks_update_viewers(t *testing.T) {
	h, registry, _ := newTestHandler(t)
	r := newTestRouter(h)

	postHook(t, r, "/hooks/publish", hookEvent{ID: "conn-1", Path: "live/abc"})
	postHook(t, r, "/hooks/play", hookEvent{Path: "live/abc"})
	postHook(t, r, "/hooks/play", hookEvent{Path: "live/abc"})
	postHook(t, r, "/hooks/play-done", hookEvent{Path: "live/abc"})

	s, _ := registry.Get("abc")
	if s.Viewers != 1 {
		t.Errorf("expected 1 viewer, got %d", s.Viewers)
	}
}

func TestHandler_play_unknown_stream_is_accepted(t *testing.T) {
	h, registry, _ := newTestHandler(t)
	r := newTestRouter(h)

	rec := postHook(t, r, "/hooks/play", hookEvent{Path: "live/ghost"})
	if rec.Code != http.StatusOK {
		t.Errorf("play for unknown stream: expected 200, got %d", rec.Code)
	}
	if _, ok := registry.Get("ghost"); ok {
		t.Error("play must not create a session")
	}
}

func TestHandler_hook_bad_payload(t *testing.T) {
	h, _, _ := newTestHandler(t)
	r := newTestRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/hooks/publish", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid payload, got %d", rec.Code)
	}
}

func TestHandler_health(t *testing.T) {
	h, _, _ := newTestHandler(t)
	r := newTestRouter(h)

	postHook(t, r, "/hooks/publish", hookEvent{ID: "conn-1", Path: "live/abc"})

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Status        string   `json:"status"`
		ActiveStreams int      `json:"activeStreams"`
		Streams       []string `json:"streams"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" || body.ActiveStreams != 1 || len(body.Streams) != 1 || body.Streams[0] != "abc" {
		t.Errorf("unexpected health body: %+v", body)
	}
}
