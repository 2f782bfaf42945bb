package stream

import (
	"fmt"
	"path/filepath"
	"time"
)

// StreamKey is the broadcaster-chosen identifier for one ingest,
// taken from the last segment of the publish path ("live/abc" -> "abc").
type StreamKey string

// KeyFromPath extracts the stream key from an ingest or playback path of
// the form "<application>/<streamKey>". Trailing separators are stripped
// ("live/abc/" -> "abc"); only an empty path yields an empty key.
func KeyFromPath(path string) StreamKey {
	if path == "" {
		return ""
	}
	return StreamKey(filepath.Base(path))
}

// Session is one active live ingest. A session exists in the registry
// exactly while the broadcaster is publishing.
type Session struct {
	Key          StreamKey
	ConnectionID string
	IngestPath   string
	StartTime    time.Time
	Viewers      int
}

// RenditionProfile is one fixed output quality of the transcode ladder.
// Profiles are static configuration, immutable for the process lifetime.
type RenditionProfile struct {
	Name      string
	VideoKbps int
	AudioKbps int
	Width     int
	Height    int
	FPS       int
}

// Bandwidth returns the profile's total bandwidth in bits per second,
// as advertised in the master playlist.
func (p RenditionProfile) Bandwidth() int {
	return (p.VideoKbps + p.AudioKbps) * 1000
}

// Resolution returns the frame size formatted as "WxH".
func (p RenditionProfile) Resolution() string {
	return fmt.Sprintf("%dx%d", p.Width, p.Height)
}

// DefaultProfiles is the standard three-step ladder.
func DefaultProfiles() []RenditionProfile {
	return []RenditionProfile{
		{Name: "360p", VideoKbps: 800, AudioKbps: 96, Width: 640, Height: 360, FPS: 30},
		{Name: "720p", VideoKbps: 2500, AudioKbps: 128, Width: 1280, Height: 720, FPS: 30},
		{Name: "1080p", VideoKbps: 5000, AudioKbps: 192, Width: 1920, Height: 1080, FPS: 30},
	}
}
