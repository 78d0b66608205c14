package transcode

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Runner executes one external media tool invocation. The pipeline injects
// fakes for tests; the default implementation shells out.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
}

// ExecRunner runs commands via os/exec, capturing a stderr tail so encoder
// failures carry useful context alongside the exit code. Dir, when set, is
// the working directory of every spawned process, so encoder scratch files
// land there instead of next to the binary.
type ExecRunner struct {
	Dir string
}

const stderrTailLimit = 512

func (r ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = r.Dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if tail := stderrTail(stderr.Bytes()); tail != "" {
			return fmt.Errorf("%s: %w: %s", name, err, tail)
		}
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func stderrTail(output []byte) string {
	text := strings.TrimSpace(string(output))
	if text == "" {
		return ""
	}
	if len(text) > stderrTailLimit {
		text = text[len(text)-stderrTailLimit:]
	}
	lines := strings.Split(text, "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	return last
}
