package transcode

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

type fakeRunner struct {
	mu    sync.Mutex
	calls [][]string
	fail  map[string]error
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{fail: make(map[string]error)}
}

// failRendition makes any invocation whose arguments mention the rendition
// directory fail with the provided error.
func (f *fakeRunner) failRendition(name string, err error) {
	f.mu.Lock()
	f.fail[name] = err
	f.mu.Unlock()
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	call := append([]string{name}, args...)
	f.calls = append(f.calls, call)
	joined := strings.Join(args, " ")
	for rendition, err := range f.fail {
		if strings.Contains(joined, string(filepath.Separator)+rendition+string(filepath.Separator)) {
			return err
		}
	}
	return nil
}

func (f *fakeRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestParseLadder(t *testing.T) {
	ladder, err := ParseLadder("1080p:1920x1080:5000, 360p:640x360:800")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(ladder) != 2 {
		t.Fatalf("expected 2 renditions, got %d", len(ladder))
	}
	if ladder[0].Name != "1080p" || ladder[0].Width != 1920 || ladder[0].Bitrate != 5000 {
		t.Fatalf("unexpected first rendition: %+v", ladder[0])
	}
	if ladder[1].BufferSize() != 1600 {
		t.Fatalf("buffer size = %d, want 1600", ladder[1].BufferSize())
	}
}

func TestParseLadderRejectsBadSpecs(t *testing.T) {
	for _, spec := range []string{
		"",
		"1080p:1920x1080",
		"1080p:1920:5000",
		"1080p:1920x1080:fast",
		":1920x1080:5000",
		"720p:0x720:2800",
	} {
		if _, err := ParseLadder(spec); err == nil {
			t.Fatalf("expected %q to be rejected", spec)
		}
	}
}

func TestTranscodeRunsEveryRendition(t *testing.T) {
	runner := newFakeRunner()
	orch := NewOrchestrator(OrchestratorConfig{Runner: runner})
	outputDir := t.TempDir()

	results, err := orch.Transcode(context.Background(), "/in/abc123_evt1_1700.mp4", outputDir)
	if err != nil {
		t.Fatalf("transcode: %v", err)
	}
	if runner.callCount() != len(DefaultLadder()) {
		t.Fatalf("expected %d encoder invocations, got %d", len(DefaultLadder()), runner.callCount())
	}
	for _, result := range results {
		if result.Err != nil {
			t.Fatalf("rendition %s failed: %v", result.Rendition.Name, result.Err)
		}
		if _, err := os.Stat(result.OutputDir); err != nil {
			t.Fatalf("rendition dir missing: %v", err)
		}
	}
}

func TestTranscodeEncoderArgsCarryBitrateLadder(t *testing.T) {
	runner := newFakeRunner()
	orch := NewOrchestrator(OrchestratorConfig{Runner: runner})
	if _, err := orch.Transcode(context.Background(), "/in/a.mp4", t.TempDir()); err != nil {
		t.Fatalf("transcode: %v", err)
	}

	runner.mu.Lock()
	defer runner.mu.Unlock()
	var saw1080 bool
	for _, call := range runner.calls {
		joined := strings.Join(call, " ")
		if !strings.HasPrefix(joined, "ffmpeg ") {
			t.Fatalf("unexpected binary: %s", call[0])
		}
		if strings.Contains(joined, "scale=1920:1080") {
			saw1080 = true
			if !strings.Contains(joined, "-b:v 5000k") || !strings.Contains(joined, "-bufsize 10000k") {
				t.Fatalf("1080p invocation missing bitrate/buffer args: %s", joined)
			}
			if !strings.Contains(joined, "segment_%03d.ts") || !strings.Contains(joined, "playlist.m3u8") {
				t.Fatalf("1080p invocation missing segment layout: %s", joined)
			}
		}
	}
	if !saw1080 {
		t.Fatal("1080p rendition was never encoded")
	}
}

func TestTranscodeFailsWholeSetOnSingleFailure(t *testing.T) {
	runner := newFakeRunner()
	runner.failRendition("480p", fmt.Errorf("ffmpeg: %w", errors.New("exit status 1")))

	var failedRendition string
	orch := NewOrchestrator(OrchestratorConfig{
		Runner:    runner,
		OnFailure: func(name string) { failedRendition = name },
	})

	results, err := orch.Transcode(context.Background(), "/in/a.mp4", t.TempDir())
	if err == nil {
		t.Fatal("expected the rendition set to fail")
	}
	if !strings.Contains(err.Error(), "rendition 480p") || !strings.Contains(err.Error(), "exit status 1") {
		t.Fatalf("error lacks exit-code context: %v", err)
	}
	if failedRendition != "480p" {
		t.Fatalf("failure callback got %q", failedRendition)
	}
	var recorded bool
	for _, result := range results {
		if result.Rendition.Name == "480p" && result.Err != nil {
			recorded = true
		}
	}
	if !recorded {
		t.Fatal("per-rendition result did not record the failure")
	}
}

func TestWriteMasterManifestListsLadderInOrder(t *testing.T) {
	outputDir := t.TempDir()
	path, err := WriteMasterManifest(outputDir, DefaultLadder())
	if err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	if filepath.Base(path) != MasterManifestName {
		t.Fatalf("manifest at %q", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	content := string(data)
	if !strings.HasPrefix(content, "#EXTM3U\n#EXT-X-VERSION:3\n") {
		t.Fatalf("missing header: %q", content)
	}
	want := []string{
		"#EXT-X-STREAM-INF:BANDWIDTH=5000000,RESOLUTION=1920x1080",
		"1080p/playlist.m3u8",
		"#EXT-X-STREAM-INF:BANDWIDTH=2800000,RESOLUTION=1280x720",
		"720p/playlist.m3u8",
		"#EXT-X-STREAM-INF:BANDWIDTH=1400000,RESOLUTION=854x480",
		"480p/playlist.m3u8",
		"#EXT-X-STREAM-INF:BANDWIDTH=800000,RESOLUTION=640x360",
		"360p/playlist.m3u8",
	}
	position := 0
	for _, line := range want {
		index := strings.Index(content[position:], line)
		if index < 0 {
			t.Fatalf("manifest missing %q in order:\n%s", line, content)
		}
		position += index + len(line)
	}

	entries, err := os.ReadDir(outputDir)
	if err != nil {
		t.Fatalf("read output dir: %v", err)
	}
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".tmp") {
			t.Fatalf("temp file left behind: %s", entry.Name())
		}
	}
}

func TestWriteMasterManifestRejectsEmptyLadder(t *testing.T) {
	if _, err := WriteMasterManifest(t.TempDir(), nil); err == nil {
		t.Fatal("expected empty ladder to be rejected")
	}
}

func TestExtractThumbnailsBuildsSamplingInvocation(t *testing.T) {
	runner := newFakeRunner()
	outputDir := t.TempDir()

	if err := ExtractThumbnails(context.Background(), runner, "/in/a.mp4", outputDir, 10); err != nil {
		t.Fatalf("thumbnails: %v", err)
	}
	if runner.callCount() != 1 {
		t.Fatalf("expected one invocation, got %d", runner.callCount())
	}
	joined := strings.Join(runner.calls[0], " ")
	if !strings.Contains(joined, "fps=1/10") || !strings.Contains(joined, "thumb_%03d.jpg") {
		t.Fatalf("unexpected thumbnail args: %s", joined)
	}
	if _, err := os.Stat(filepath.Join(outputDir, ThumbnailDirName)); err != nil {
		t.Fatalf("thumbnail dir missing: %v", err)
	}
}

func TestExtractThumbnailsSurfacesRunnerFailure(t *testing.T) {
	runner := newFakeRunner()
	runner.failRendition(ThumbnailDirName, errors.New("exit status 1"))

	err := ExtractThumbnails(context.Background(), runner, "/in/a.mp4", t.TempDir(), 10)
	if err == nil || !strings.Contains(err.Error(), "thumbnails") {
		t.Fatalf("expected wrapped thumbnail error, got %v", err)
	}
}
