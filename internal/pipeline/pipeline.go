// Package pipeline drives a recording from discovery to a published rendition
// set: transcode fan-out, master manifest, thumbnails, metadata, and the
// terminal notification.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"bitriver-vod/internal/identity"
	"bitriver-vod/internal/job"
	"bitriver-vod/internal/notify"
	"bitriver-vod/internal/observability/logging"
	"bitriver-vod/internal/observability/metrics"
	"bitriver-vod/internal/probe"
	"bitriver-vod/internal/transcode"
)

// Transcoder produces the full rendition set for one recording.
type Transcoder interface {
	Transcode(ctx context.Context, inputPath, outputDir string) ([]transcode.Result, error)
	Ladder() []transcode.Rendition
}

// Config wires the pipeline's collaborators. Store, Transcoder, and OutputDir
// are required.
type Config struct {
	Store      *job.Store
	Transcoder Transcoder
	Runner     transcode.Runner
	Prober     probe.Prober
	Publisher  notify.Publisher
	Recorder   *metrics.Recorder
	Logger     *slog.Logger

	OutputDir string
	// ThumbnailInterval is the sampling gap in seconds between stills.
	ThumbnailInterval int
}

// Pipeline processes one recording per Process call. Safe for concurrent use.
type Pipeline struct {
	store      *job.Store
	transcoder Transcoder
	runner     transcode.Runner
	prober     probe.Prober
	publisher  notify.Publisher
	recorder   *metrics.Recorder
	logger     *slog.Logger

	outputDir         string
	thumbnailInterval int
	now               func() time.Time
}

func New(cfg Config) (*Pipeline, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("job store is required")
	}
	if cfg.Transcoder == nil {
		return nil, fmt.Errorf("transcoder is required")
	}
	if cfg.OutputDir == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	runner := cfg.Runner
	if runner == nil {
		runner = transcode.ExecRunner{}
	}
	prober := cfg.Prober
	if prober == nil {
		prober = probe.FFProbe{}
	}
	publisher := cfg.Publisher
	if publisher == nil {
		publisher = notify.NewMemoryPublisher()
	}
	recorder := cfg.Recorder
	if recorder == nil {
		recorder = metrics.Default()
	}
	interval := cfg.ThumbnailInterval
	if interval <= 0 {
		interval = 10
	}
	return &Pipeline{
		store:      cfg.Store,
		transcoder: cfg.Transcoder,
		runner:     runner,
		prober:     prober,
		publisher:  publisher,
		recorder:   recorder,
		logger:     logging.WithComponent(logger, "pipeline"),

		outputDir:         cfg.OutputDir,
		thumbnailInterval: interval,
		now:               time.Now,
	}, nil
}

// Process runs the full pipeline for one recording file. Filenames that do
// not carry a stream identity are rejected before any job is created.
func (p *Pipeline) Process(ctx context.Context, inputPath string) error {
	id, err := identity.Parse(inputPath)
	if err != nil {
		return fmt.Errorf("reject %s: %w", filepath.Base(inputPath), err)
	}

	record := p.store.Create(id, inputPath)
	jobID := record.ID
	ctx = logging.ContextWithJobID(ctx, jobID)
	logger := p.logger.With("jobId", jobID, "streamId", id.StreamID)
	logger.Info("job started", "input", inputPath)
	p.recorder.JobStarted()

	jobOutputDir := filepath.Join(p.outputDir, id.StreamID, id.Timestamp)
	if err := os.MkdirAll(jobOutputDir, 0o755); err != nil {
		return p.fail(ctx, logger, record, fmt.Errorf("prepare output dir: %w", err))
	}

	if _, err := p.transcoder.Transcode(ctx, inputPath, jobOutputDir); err != nil {
		return p.fail(ctx, logger, record, err)
	}
	if _, err := transcode.WriteMasterManifest(jobOutputDir, p.transcoder.Ladder()); err != nil {
		return p.fail(ctx, logger, record, err)
	}

	p.enrich(ctx, logger, record, id, inputPath, jobOutputDir)

	if _, err := p.store.Complete(jobID, jobOutputDir); err != nil {
		return fmt.Errorf("complete job %s: %w", jobID, err)
	}
	p.recorder.JobCompleted()
	logger.Info("job completed", "output", jobOutputDir)
	p.publish(ctx, logger, notify.Event{
		JobID:      jobID,
		StreamID:   id.StreamID,
		EventID:    id.EventID,
		Status:     string(job.StatusCompleted),
		OutputPath: jobOutputDir,
	})
	return nil
}

// enrich runs the best-effort stages. Their failures become job diagnostics,
// never a failed status.
func (p *Pipeline) enrich(ctx context.Context, logger *slog.Logger, record job.Job, id identity.StreamIdentity, inputPath, jobOutputDir string) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := transcode.ExtractThumbnails(ctx, p.runner, inputPath, jobOutputDir, p.thumbnailInterval); err != nil {
			p.diagnose(logger, record.ID, fmt.Sprintf("thumbnails: %v", err))
		}
	}()
	go func() {
		defer wg.Done()
		result, err := p.prober.Probe(ctx, inputPath)
		if err != nil {
			p.diagnose(logger, record.ID, fmt.Sprintf("metadata: %v", err))
			return
		}
		doc := probe.BuildDocument(id, result, p.now())
		if _, err := probe.WriteDocument(jobOutputDir, doc); err != nil {
			p.diagnose(logger, record.ID, fmt.Sprintf("metadata: %v", err))
		}
	}()
	wg.Wait()
}

func (p *Pipeline) diagnose(logger *slog.Logger, jobID, message string) {
	logger.Warn("job diagnostic", "detail", message)
	if err := p.store.AppendDiagnostic(jobID, message); err != nil {
		logger.Warn("record diagnostic", "error", err)
	}
}

func (p *Pipeline) fail(ctx context.Context, logger *slog.Logger, record job.Job, cause error) error {
	if _, err := p.store.Fail(record.ID, cause); err != nil {
		logger.Error("mark job failed", "error", err)
	}
	p.recorder.JobFailed()
	logger.Error("job failed", "error", cause)
	p.publish(ctx, logger, notify.Event{
		JobID:    record.ID,
		StreamID: record.Identity.StreamID,
		EventID:  record.Identity.EventID,
		Status:   string(job.StatusFailed),
		Error:    cause.Error(),
	})
	return cause
}

func (p *Pipeline) publish(ctx context.Context, logger *slog.Logger, event notify.Event) {
	if err := p.publisher.Publish(ctx, event); err != nil {
		p.recorder.NotifyDropped()
		logger.Warn("drop notification", "jobId", event.JobID, "error", err)
		return
	}
	p.recorder.NotifyPublished()
}
