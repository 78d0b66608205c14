// Package identity parses stream identity out of recording filenames
// produced by the live ingest tier.
package identity

import (
	"fmt"
	"path/filepath"
	"strings"
)

// StreamIdentity is the identity embedded in a recording filename of the form
// streamId_eventId_timestamp.ext. The timestamp is an opaque token assigned by
// the recorder, not necessarily a parseable date.
type StreamIdentity struct {
	StreamID  string `json:"streamId"`
	EventID   string `json:"eventId"`
	Timestamp string `json:"timestamp"`
}

// allowedExtensions lists the video container extensions accepted from the
// ingest directory. Lookup is case-insensitive.
var allowedExtensions = map[string]struct{}{
	".mp4":  {},
	".mkv":  {},
	".mov":  {},
	".flv":  {},
	".ts":   {},
	".webm": {},
}

// AllowedExtension reports whether the path carries a recognised video
// container extension.
func AllowedExtension(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	_, ok := allowedExtensions[ext]
	return ok
}

// Parse extracts a StreamIdentity from the base name of path. Filenames with
// fewer than three underscore-delimited segments, or with an empty segment,
// are rejected. Extra underscores fold into the timestamp token so recorder
// suffixes survive.
func Parse(path string) (StreamIdentity, error) {
	base := filepath.Base(path)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	parts := strings.SplitN(name, "_", 3)
	if len(parts) < 3 {
		return StreamIdentity{}, fmt.Errorf("filename %q does not match streamId_eventId_timestamp", base)
	}
	id := StreamIdentity{
		StreamID:  strings.TrimSpace(parts[0]),
		EventID:   strings.TrimSpace(parts[1]),
		Timestamp: strings.TrimSpace(parts[2]),
	}
	if id.StreamID == "" || id.EventID == "" || id.Timestamp == "" {
		return StreamIdentity{}, fmt.Errorf("filename %q has an empty identity segment", base)
	}
	return id, nil
}
