package stream

import (
	"fmt"
	"strings"
)

// BuildMasterPlaylist renders the HLS master playlist for the given ladder:
// one #EXT-X-STREAM-INF entry per profile, in the order given (never sorted),
// each referencing the rendition's sub-manifest at "<name>/index.m3u8".
// The output is deterministic: identical input always yields identical bytes.
func BuildMasterPlaylist(profiles []RenditionProfile) string {
	var b strings.Builder

	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:3\n")

	for _, p := range profiles {
		b.WriteString(fmt.Sprintf("#EXT-X-STREAM-INF:BANDWIDTH=%d,RESOLUTION=%s\n", p.Bandwidth(), p.Resolution()))
		b.WriteString(p.Name)
		b.WriteString("/index.m3u8\n")
	}

	return b.String()
}
