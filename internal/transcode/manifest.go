package transcode

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// MasterManifestName is the fixed filename of the adaptive master playlist
// under a job's output directory.
const MasterManifestName = "master.m3u8"

// WriteMasterManifest emits the adaptive master playlist referencing every
// ladder rendition in order. The file appears atomically: it is written to a
// temp file and renamed, so readers never observe a partial manifest.
func WriteMasterManifest(outputDir string, ladder []Rendition) (string, error) {
	if len(ladder) == 0 {
		return "", fmt.Errorf("rendition ladder is empty")
	}

	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:3\n")
	for _, rendition := range ladder {
		fmt.Fprintf(&b, "#EXT-X-STREAM-INF:BANDWIDTH=%d,RESOLUTION=%s\n", rendition.Bitrate*1000, rendition.Resolution())
		fmt.Fprintf(&b, "%s/playlist.m3u8\n", rendition.Name)
	}

	target := filepath.Join(outputDir, MasterManifestName)
	tmp, err := os.CreateTemp(outputDir, "master-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create manifest temp file: %w", err)
	}
	if _, err := tmp.WriteString(b.String()); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close manifest: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("publish manifest: %w", err)
	}
	return target, nil
}
