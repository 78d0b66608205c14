package transcode

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// ThumbnailDirName is the directory under a job's output path holding the
// sampled still images.
const ThumbnailDirName = "thumbnails"

// ExtractThumbnails samples one frame every intervalSeconds from inputPath
// into numbered JPEG stills under outputDir/thumbnails. Callers treat failure
// as best-effort: it never affects the owning job's status.
func ExtractThumbnails(ctx context.Context, runner Runner, inputPath, outputDir string, intervalSeconds int) error {
	if runner == nil {
		runner = ExecRunner{}
	}
	if intervalSeconds <= 0 {
		intervalSeconds = 10
	}
	thumbDir := filepath.Join(outputDir, ThumbnailDirName)
	if err := os.MkdirAll(thumbDir, 0o755); err != nil {
		return fmt.Errorf("prepare thumbnail dir: %w", err)
	}
	args := []string{
		"-y",
		"-i", inputPath,
		"-vf", fmt.Sprintf("fps=1/%d", intervalSeconds),
		"-q:v", "2",
		filepath.Join(thumbDir, "thumb_%03d.jpg"),
	}
	if err := runner.Run(ctx, "ffmpeg", args...); err != nil {
		return fmt.Errorf("extract thumbnails: %w", err)
	}
	return nil
}
