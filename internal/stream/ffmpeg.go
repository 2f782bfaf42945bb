package stream

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"
)

// Config carries the static orchestration settings. Zero values are filled
// in by withDefaults, so a partially populated Config is usable in tests.
type Config struct {
	// FFmpegPath is the encoder binary, resolved via PATH when relative.
	FFmpegPath string

	// MediaRoot is the root of the generated artifact tree; the HLS tree
	// lives under MediaRoot/hls and thumbnails under MediaRoot/thumbnails.
	MediaRoot string

	// IngestBase is the base URL of the live ingest server,
	// e.g. "rtmp://127.0.0.1:1935". The publish path is appended verbatim.
	IngestBase string

	// TranscodeDelay is how long after ingest-start to wait before
	// attaching encoders, letting the ingest buffer stabilize.
	TranscodeDelay time.Duration

	// CleanupDelay is how long after ingest-stop to wait before deleting
	// the generated artifact tree, letting in-flight writes settle.
	CleanupDelay time.Duration

	// SegmentSeconds is the HLS segment duration.
	SegmentSeconds int

	// PlaylistWindow is the rolling number of segments kept per rendition.
	PlaylistWindow int

	// Profiles is the rendition ladder. Order is preserved everywhere.
	Profiles []RenditionProfile
}

func (c Config) withDefaults() Config {
	if c.FFmpegPath == "" {
		c.FFmpegPath = "ffmpeg"
	}
	if c.MediaRoot == "" {
		c.MediaRoot = "./media"
	}
	if c.IngestBase == "" {
		c.IngestBase = "rtmp://127.0.0.1:1935"
	}
	if c.TranscodeDelay <= 0 {
		c.TranscodeDelay = 3 * time.Second
	}
	if c.CleanupDelay <= 0 {
		c.CleanupDelay = 10 * time.Second
	}
	if c.SegmentSeconds <= 0 {
		c.SegmentSeconds = 2
	}
	if c.PlaylistWindow <= 0 {
		c.PlaylistWindow = 5
	}
	if len(c.Profiles) == 0 {
		c.Profiles = DefaultProfiles()
	}
	return c
}

// HLSRoot returns the directory holding per-stream HLS output trees.
func (c Config) HLSRoot() string {
	return filepath.Join(c.MediaRoot, "hls")
}

// ThumbnailRoot returns the directory holding stream thumbnails.
func (c Config) ThumbnailRoot() string {
	return filepath.Join(c.MediaRoot, "thumbnails")
}

// StreamDir returns the per-stream output directory.
func (c Config) StreamDir(key StreamKey) string {
	return filepath.Join(c.HLSRoot(), string(key))
}

// ThumbnailFile returns the thumbnail path for a stream.
func (c Config) ThumbnailFile(key StreamKey) string {
	return filepath.Join(c.ThumbnailRoot(), string(key)+".jpg")
}

// IngestURL returns the live source URL for a publish path like "live/abc".
func (c Config) IngestURL(ingestPath string) string {
	return c.IngestBase + "/" + ingestPath
}

// renditionArgs builds the encoder invocation for one rendition: low-latency
// x264, bitrate capped from the profile, keyframes aligned to segment
// boundaries (GOP = 2 x segment duration x fps, scene-cut insertion off),
// segmented HLS output with a rolling window and expired-segment deletion.
func renditionArgs(cfg Config, input string, p RenditionProfile, outputDir string) []string {
	gop := 2 * cfg.SegmentSeconds * p.FPS
	return []string{
		"-analyzeduration", "1000000",
		"-probesize", "1000000",
		"-i", input,
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-tune", "zerolatency",
		"-c:a", "aac",
		"-ar", "44100",
		"-ac", "2",
		"-b:v", fmt.Sprintf("%dk", p.VideoKbps),
		"-maxrate", fmt.Sprintf("%dk", p.VideoKbps),
		"-bufsize", fmt.Sprintf("%dk", p.VideoKbps*2),
		"-b:a", fmt.Sprintf("%dk", p.AudioKbps),
		"-s", p.Resolution(),
		"-r", strconv.Itoa(p.FPS),
		"-g", strconv.Itoa(gop),
		"-keyint_min", strconv.Itoa(gop),
		"-sc_threshold", "0",
		"-f", "hls",
		"-hls_time", strconv.Itoa(cfg.SegmentSeconds),
		"-hls_list_size", strconv.Itoa(cfg.PlaylistWindow),
		"-hls_flags", "delete_segments",
		"-hls_segment_filename", filepath.Join(outputDir, "segment_%03d.ts"),
		filepath.Join(outputDir, "index.m3u8"),
	}
}

// thumbnailArgs builds the single-frame extraction invocation: one video
// frame at a fixed seek offset, audio dropped, fixed output resolution.
func thumbnailArgs(input, outputFile string) []string {
	return []string{
		"-i", input,
		"-ss", "1",
		"-vframes", "1",
		"-an",
		"-s", "320x180",
		outputFile,
	}
}
