package transcode

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"
)

// Result captures the outcome of one rendition encode.
type Result struct {
	Rendition Rendition
	OutputDir string
	Err       error
}

// Orchestrator fans one input recording out to N encoder processes, one per
// ladder entry, and waits for the full set. Any single failure fails the
// whole set: partial rendition output is never surfaced to viewers.
type Orchestrator struct {
	runner    Runner
	ladder    []Rendition
	timeout   time.Duration
	logger    *slog.Logger
	onFailure func(rendition string)
}

const defaultEncodeTimeout = 2 * time.Hour

// OrchestratorConfig assembles an Orchestrator. Runner defaults to ExecRunner
// and Ladder to the built-in four-step ladder.
type OrchestratorConfig struct {
	Runner    Runner
	Ladder    []Rendition
	Timeout   time.Duration
	Logger    *slog.Logger
	OnFailure func(rendition string)
}

func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	runner := cfg.Runner
	if runner == nil {
		runner = ExecRunner{}
	}
	ladder := cfg.Ladder
	if len(ladder) == 0 {
		ladder = DefaultLadder()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultEncodeTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		runner:    runner,
		ladder:    ladder,
		timeout:   timeout,
		logger:    logger,
		onFailure: cfg.OnFailure,
	}
}

// Ladder exposes the configured rendition ladder in manifest order.
func (o *Orchestrator) Ladder() []Rendition {
	out := make([]Rendition, len(o.ladder))
	copy(out, o.ladder)
	return out
}

// Transcode encodes every ladder rendition of inputPath under outputDir
// concurrently and blocks until the full set has exited. Each encoder runs
// under its own deadline so a hung process surfaces as a failure instead of
// stalling the job forever. On error the per-rendition results are still
// returned for diagnosis.
func (o *Orchestrator) Transcode(ctx context.Context, inputPath, outputDir string) ([]Result, error) {
	results := make([]Result, len(o.ladder))

	group, groupCtx := errgroup.WithContext(ctx)
	for i, rendition := range o.ladder {
		i, rendition := i, rendition
		renditionDir := filepath.Join(outputDir, rendition.Name)
		results[i] = Result{Rendition: rendition, OutputDir: renditionDir}

		group.Go(func() error {
			if err := os.MkdirAll(renditionDir, 0o755); err != nil {
				results[i].Err = err
				return fmt.Errorf("rendition %s: prepare output: %w", rendition.Name, err)
			}

			encodeCtx, cancel := context.WithTimeout(groupCtx, o.timeout)
			defer cancel()

			start := time.Now()
			err := o.runner.Run(encodeCtx, "ffmpeg", encoderArgs(inputPath, rendition, renditionDir)...)
			if err != nil {
				results[i].Err = err
				if o.onFailure != nil {
					o.onFailure(rendition.Name)
				}
				o.logger.Error("rendition encode failed",
					"rendition", rendition.Name,
					"input", inputPath,
					"error", err,
				)
				return fmt.Errorf("rendition %s: %w", rendition.Name, err)
			}
			o.logger.Info("rendition encoded",
				"rendition", rendition.Name,
				"duration_ms", time.Since(start).Milliseconds(),
			)
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// encoderArgs builds the ffmpeg invocation for one rendition: scale to the
// target frame, H.264 at the target bitrate with a 2x buffer, AAC audio, and
// six second segments behind a rendition-local playlist.
func encoderArgs(input string, r Rendition, renditionDir string) []string {
	return []string{
		"-y",
		"-i", input,
		"-vf", fmt.Sprintf("scale=%d:%d", r.Width, r.Height),
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-b:v", fmt.Sprintf("%dk", r.Bitrate),
		"-maxrate", fmt.Sprintf("%dk", r.Bitrate),
		"-bufsize", fmt.Sprintf("%dk", r.BufferSize()),
		"-c:a", "aac",
		"-b:a", "128k",
		"-f", "hls",
		"-hls_time", "6",
		"-hls_list_size", "0",
		"-hls_segment_filename", filepath.Join(renditionDir, "segment_%03d.ts"),
		filepath.Join(renditionDir, "playlist.m3u8"),
	}
}
