// Package transcode turns one source recording into an adaptive HLS rendition
// set: parallel per-quality encodes, a master manifest, and a thumbnail track.
package transcode

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Rendition describes one target quality of the ladder. Bitrate is the video
// target in kbit/s; the encoder buffer is derived as twice the bitrate.
type Rendition struct {
	Name    string `json:"name"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Bitrate int    `json:"bitrate"`
}

// BufferSize returns the derived encoder buffer in kbit.
func (r Rendition) BufferSize() int {
	return r.Bitrate * 2
}

// Resolution renders the WxH attribute used in manifests.
func (r Rendition) Resolution() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// DefaultLadder returns the fixed four-step ladder every job attempts, in
// manifest order.
func DefaultLadder() []Rendition {
	return []Rendition{
		{Name: "1080p", Width: 1920, Height: 1080, Bitrate: 5000},
		{Name: "720p", Width: 1280, Height: 720, Bitrate: 2800},
		{Name: "480p", Width: 854, Height: 480, Bitrate: 1400},
		{Name: "360p", Width: 640, Height: 360, Bitrate: 800},
	}
}

// ParseLadder reads a comma separated ladder spec of the form
// name:WxH:bitrate, e.g. "1080p:1920x1080:5000,720p:1280x720:2800".
func ParseLadder(spec string) ([]Rendition, error) {
	entries := strings.Split(spec, ",")
	results := make([]Rendition, 0, len(entries))
	for _, entry := range entries {
		trimmed := strings.TrimSpace(entry)
		if trimmed == "" {
			continue
		}
		parts := strings.Split(trimmed, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid rendition spec %q", trimmed)
		}
		name := strings.TrimSpace(parts[0])
		if name == "" {
			return nil, fmt.Errorf("invalid rendition spec %q: name is required", trimmed)
		}
		dims := strings.SplitN(strings.TrimSpace(parts[1]), "x", 2)
		if len(dims) != 2 {
			return nil, fmt.Errorf("invalid resolution for rendition %q", trimmed)
		}
		width, err := strconv.Atoi(dims[0])
		if err != nil || width <= 0 {
			return nil, fmt.Errorf("invalid width for rendition %q", trimmed)
		}
		height, err := strconv.Atoi(dims[1])
		if err != nil || height <= 0 {
			return nil, fmt.Errorf("invalid height for rendition %q", trimmed)
		}
		bitrate, err := strconv.Atoi(strings.TrimSpace(parts[2]))
		if err != nil || bitrate <= 0 {
			return nil, fmt.Errorf("invalid bitrate for rendition %q", trimmed)
		}
		results = append(results, Rendition{Name: name, Width: width, Height: height, Bitrate: bitrate})
	}
	if len(results) == 0 {
		return nil, errors.New("no rendition profiles configured")
	}
	return results, nil
}
