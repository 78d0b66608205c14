package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"bitriver-vod/internal/job"
	"bitriver-vod/internal/notify"
	"bitriver-vod/internal/observability/metrics"
	"bitriver-vod/internal/probe"
	"bitriver-vod/internal/transcode"
)

type stubRunner struct {
	mu   sync.Mutex
	fail map[string]error
}

func newStubRunner() *stubRunner {
	return &stubRunner{fail: make(map[string]error)}
}

func (r *stubRunner) failMatching(fragment string, err error) {
	r.mu.Lock()
	r.fail[fragment] = err
	r.mu.Unlock()
}

func (r *stubRunner) Run(_ context.Context, _ string, args ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	joined := strings.Join(args, " ")
	for fragment, err := range r.fail {
		if strings.Contains(joined, string(filepath.Separator)+fragment+string(filepath.Separator)) {
			return err
		}
	}
	return nil
}

type stubProber struct {
	result *probe.Result
	err    error
}

func (p stubProber) Probe(context.Context, string) (*probe.Result, error) {
	return p.result, p.err
}

type fixture struct {
	store     *job.Store
	publisher *notify.MemoryPublisher
	runner    *stubRunner
	prober    *stubProber
	pipeline  *Pipeline
	outputDir string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:     job.NewStore(),
		publisher: notify.NewMemoryPublisher(),
		runner:    newStubRunner(),
		prober: &stubProber{result: &probe.Result{
			Duration: 1800.5,
			Size:     1 << 30,
			Video:    &probe.VideoStream{Codec: "h264", Width: 1920, Height: 1080},
		}},
		outputDir: t.TempDir(),
	}
	recorder := metrics.New()
	orch := transcode.NewOrchestrator(transcode.OrchestratorConfig{
		Runner:    f.runner,
		Logger:    discardLogger(),
		OnFailure: func(rendition string) { recorder.RenditionFailed(rendition) },
	})
	p, err := New(Config{
		Store:      f.store,
		Transcoder: orch,
		Runner:     f.runner,
		Prober:     f.prober,
		Publisher:  f.publisher,
		Recorder:   recorder,
		Logger:     discardLogger(),
		OutputDir:  f.outputDir,
	})
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	f.pipeline = p
	return f
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeRecording(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("not really video"), 0o644); err != nil {
		t.Fatalf("write recording: %v", err)
	}
	return path
}

func TestProcessHappyPath(t *testing.T) {
	f := newFixture(t)
	input := writeRecording(t, "abc123_evt1_1700000000.mp4")

	if err := f.pipeline.Process(context.Background(), input); err != nil {
		t.Fatalf("process: %v", err)
	}

	jobs := f.store.List()
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(jobs))
	}
	record := jobs[0]
	if record.Status != job.StatusCompleted {
		t.Fatalf("status = %s", record.Status)
	}
	if record.CompletedTime == nil || record.FailedTime != nil {
		t.Fatalf("terminal timestamps wrong: %+v", record)
	}
	wantOutput := filepath.Join(f.outputDir, "abc123", "1700000000")
	if record.OutputPath != wantOutput {
		t.Fatalf("output path = %q, want %q", record.OutputPath, wantOutput)
	}
	if _, err := os.Stat(filepath.Join(wantOutput, transcode.MasterManifestName)); err != nil {
		t.Fatalf("master manifest missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(wantOutput, probe.DocumentName)); err != nil {
		t.Fatalf("metadata missing: %v", err)
	}
	for _, rendition := range transcode.DefaultLadder() {
		if _, err := os.Stat(filepath.Join(wantOutput, rendition.Name)); err != nil {
			t.Fatalf("rendition dir %s missing: %v", rendition.Name, err)
		}
	}

	events := f.publisher.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	event := events[0]
	if event.Status != string(job.StatusCompleted) || event.JobID != record.ID || event.StreamID != "abc123" {
		t.Fatalf("unexpected event: %+v", event)
	}
	if event.OutputPath != wantOutput || event.Error != "" {
		t.Fatalf("unexpected event payload: %+v", event)
	}
}

func TestProcessFailsJobWhenOneRenditionFails(t *testing.T) {
	f := newFixture(t)
	f.runner.failMatching("480p", errors.New("exit status 1"))
	input := writeRecording(t, "abc123_evt1_1700000000.mp4")

	err := f.pipeline.Process(context.Background(), input)
	if err == nil {
		t.Fatal("expected process to fail")
	}

	jobs := f.store.List()
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(jobs))
	}
	record := jobs[0]
	if record.Status != job.StatusFailed {
		t.Fatalf("status = %s", record.Status)
	}
	if !strings.Contains(record.Error, "rendition 480p") || !strings.Contains(record.Error, "exit status 1") {
		t.Fatalf("job error lacks context: %q", record.Error)
	}
	if record.FailedTime == nil || record.CompletedTime != nil {
		t.Fatalf("terminal timestamps wrong: %+v", record)
	}
	manifest := filepath.Join(f.outputDir, "abc123", "1700000000", transcode.MasterManifestName)
	if _, err := os.Stat(manifest); !os.IsNotExist(err) {
		t.Fatalf("no manifest may exist after a failed rendition set: %v", err)
	}

	events := f.publisher.Events()
	if len(events) != 1 || events[0].Status != string(job.StatusFailed) {
		t.Fatalf("unexpected events: %+v", events)
	}
	if events[0].Error == "" || events[0].OutputPath != "" {
		t.Fatalf("failed event payload wrong: %+v", events[0])
	}
}

func TestProcessBestEffortFailuresBecomeDiagnostics(t *testing.T) {
	f := newFixture(t)
	f.runner.failMatching(transcode.ThumbnailDirName, errors.New("exit status 1"))
	f.prober.err = errors.New("ffprobe: exit status 1")
	input := writeRecording(t, "abc123_evt1_1700000000.mp4")

	if err := f.pipeline.Process(context.Background(), input); err != nil {
		t.Fatalf("process: %v", err)
	}

	record := f.store.List()[0]
	if record.Status != job.StatusCompleted {
		t.Fatalf("status = %s, best-effort failures must not fail the job", record.Status)
	}
	if len(record.Diagnostics) != 2 {
		t.Fatalf("expected 2 diagnostics, got %v", record.Diagnostics)
	}
	var sawThumbs, sawMetadata bool
	for _, diagnostic := range record.Diagnostics {
		if strings.HasPrefix(diagnostic, "thumbnails:") {
			sawThumbs = true
		}
		if strings.HasPrefix(diagnostic, "metadata:") {
			sawMetadata = true
		}
	}
	if !sawThumbs || !sawMetadata {
		t.Fatalf("diagnostics missing stages: %v", record.Diagnostics)
	}

	events := f.publisher.Events()
	if len(events) != 1 || events[0].Status != string(job.StatusCompleted) {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestProcessProbeFailureStillDeliversThumbnails(t *testing.T) {
	f := newFixture(t)
	f.prober.err = errors.New("ffprobe: exit status 1")
	input := writeRecording(t, "abc123_evt1_1700000000.mp4")

	if err := f.pipeline.Process(context.Background(), input); err != nil {
		t.Fatalf("process: %v", err)
	}

	record := f.store.List()[0]
	if record.Status != job.StatusCompleted {
		t.Fatalf("status = %s, a probe failure must not fail the job", record.Status)
	}
	if len(record.Diagnostics) != 1 || !strings.HasPrefix(record.Diagnostics[0], "metadata:") {
		t.Fatalf("expected one metadata diagnostic, got %v", record.Diagnostics)
	}

	jobOutput := filepath.Join(f.outputDir, "abc123", "1700000000")
	if _, err := os.Stat(filepath.Join(jobOutput, transcode.ThumbnailDirName)); err != nil {
		t.Fatalf("thumbnail dir missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(jobOutput, probe.DocumentName)); !os.IsNotExist(err) {
		t.Fatalf("no metadata document may exist when the probe fails: %v", err)
	}
}

func TestProcessRejectsMalformedFilename(t *testing.T) {
	f := newFixture(t)
	input := writeRecording(t, "abc123_noTimestamp.mp4")

	if err := f.pipeline.Process(context.Background(), input); err == nil {
		t.Fatal("expected malformed filename to be rejected")
	}
	if f.store.Len() != 0 {
		t.Fatalf("no job should exist, store has %d", f.store.Len())
	}
	if len(f.publisher.Events()) != 0 {
		t.Fatal("no event should have been published")
	}
}

func TestProcessWritesMetadataDocument(t *testing.T) {
	f := newFixture(t)
	input := writeRecording(t, "abc123_evt1_1700000000.mp4")

	if err := f.pipeline.Process(context.Background(), input); err != nil {
		t.Fatalf("process: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(f.outputDir, "abc123", "1700000000", probe.DocumentName))
	if err != nil {
		t.Fatalf("read metadata: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, `"streamId": "abc123"`) || !strings.Contains(content, `"codec": "h264"`) {
		t.Fatalf("metadata content unexpected:\n%s", content)
	}
}
