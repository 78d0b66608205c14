package probe

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"bitriver-vod/internal/identity"
)

// DocumentName is the metadata filename under a job's output directory.
const DocumentName = "metadata.json"

// Document is the metadata record written alongside a processed recording.
type Document struct {
	StreamInfo  identity.StreamIdentity `json:"streamInfo"`
	Duration    float64                 `json:"duration"`
	FileSize    int64                   `json:"fileSize"`
	BitRate     int64                   `json:"bitRate"`
	Video       *VideoDocument          `json:"video,omitempty"`
	Audio       *AudioDocument          `json:"audio,omitempty"`
	ProcessedAt time.Time               `json:"processedAt"`
}

type VideoDocument struct {
	Codec     string `json:"codec"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	FrameRate string `json:"frameRate"`
	BitRate   int64  `json:"bitRate"`
}

type AudioDocument struct {
	Codec      string `json:"codec"`
	Channels   int    `json:"channels"`
	SampleRate int    `json:"sampleRate"`
	BitRate    int64  `json:"bitRate"`
}

// BuildDocument folds a probe result into the persisted metadata shape.
func BuildDocument(id identity.StreamIdentity, result *Result, processedAt time.Time) Document {
	doc := Document{
		StreamInfo:  id,
		ProcessedAt: processedAt.UTC(),
	}
	if result == nil {
		return doc
	}
	doc.Duration = result.Duration
	doc.FileSize = result.Size
	doc.BitRate = result.BitRate
	if result.Video != nil {
		doc.Video = &VideoDocument{
			Codec:     result.Video.Codec,
			Width:     result.Video.Width,
			Height:    result.Video.Height,
			FrameRate: result.Video.FrameRate,
			BitRate:   result.Video.BitRate,
		}
	}
	if result.Audio != nil {
		doc.Audio = &AudioDocument{
			Codec:      result.Audio.Codec,
			Channels:   result.Audio.Channels,
			SampleRate: result.Audio.SampleRate,
			BitRate:    result.Audio.BitRate,
		}
	}
	return doc
}

// WriteDocument persists the metadata document atomically under outputDir.
// No partial file is ever observable: the temp file is renamed into place
// only after a complete write.
func WriteDocument(outputDir string, doc Document) (string, error) {
	target := filepath.Join(outputDir, DocumentName)
	tmp, err := os.CreateTemp(outputDir, "metadata-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create metadata temp file: %w", err)
	}
	encoder := json.NewEncoder(tmp)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(doc); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close metadata: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("publish metadata: %w", err)
	}
	return target, nil
}
