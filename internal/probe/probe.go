// Package probe extracts technical metadata from recordings via a single
// ffprobe JSON call.
package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Prober inspects one media file. The pipeline injects fakes for tests.
type Prober interface {
	Probe(ctx context.Context, path string) (*Result, error)
}

// Result is the parsed outcome of probing one file. Video and Audio describe
// the first stream of each type when present.
type Result struct {
	Duration float64
	Size     int64
	BitRate  int64
	Video    *VideoStream
	Audio    *AudioStream
}

// VideoStream describes the first video-typed stream of a recording.
type VideoStream struct {
	Codec     string
	Width     int
	Height    int
	FrameRate string
	BitRate   int64
}

// AudioStream describes the first audio-typed stream of a recording.
type AudioStream struct {
	Codec      string
	Channels   int
	SampleRate int
	BitRate    int64
}

// FFProbe shells out to ffprobe for metadata extraction.
type FFProbe struct{}

func (FFProbe) Probe(ctx context.Context, path string) (*Result, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, probeError(path, err, stderr.Bytes())
	}
	return ParseJSON(out)
}

// probeError wraps a failed ffprobe invocation, folding the last stderr line
// into the message so the diagnostic survives past the exit code.
func probeError(path string, err error, stderr []byte) error {
	detail := strings.TrimSpace(string(stderr))
	if detail == "" {
		return fmt.Errorf("ffprobe %q: %w", path, err)
	}
	lines := strings.Split(detail, "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	return fmt.Errorf("ffprobe %q: %w: %s", path, err, last)
}

// ParseJSON converts raw ffprobe JSON output into a Result. Exported so tests
// run without an ffprobe binary.
func ParseJSON(data []byte) (*Result, error) {
	var raw ffprobeOutput
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}

	result := &Result{
		Duration: parseFloat(raw.Format.Duration),
		Size:     parseInt64(raw.Format.Size),
		BitRate:  parseInt64(raw.Format.BitRate),
	}
	for i := range raw.Streams {
		s := &raw.Streams[i]
		switch s.CodecType {
		case "video":
			if result.Video == nil {
				result.Video = &VideoStream{
					Codec:     s.CodecName,
					Width:     s.Width,
					Height:    s.Height,
					FrameRate: s.AvgFrameRate,
					BitRate:   parseInt64(s.BitRate),
				}
			}
		case "audio":
			if result.Audio == nil {
				result.Audio = &AudioStream{
					Codec:      s.CodecName,
					Channels:   s.Channels,
					SampleRate: parseInt(s.SampleRate),
					BitRate:    parseInt64(s.BitRate),
				}
			}
		}
	}
	return result, nil
}

// ffprobe JSON wire types. Numbers arrive as strings in the format section.

type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	Duration string `json:"duration"`
	Size     string `json:"size"`
	BitRate  string `json:"bit_rate"`
}

type ffprobeStream struct {
	CodecName    string `json:"codec_name"`
	CodecType    string `json:"codec_type"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	BitRate      string `json:"bit_rate"`
	AvgFrameRate string `json:"avg_frame_rate"`
	Channels     int    `json:"channels"`
	SampleRate   string `json:"sample_rate"`
}

func parseInt64(s string) int64 {
	n, _ := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return n
}

func parseInt(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return f
}
