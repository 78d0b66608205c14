// Package watch polls the ingest directory for finished recordings and hands
// each stable file to the processing pipeline exactly once.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"bitriver-vod/internal/identity"
	"bitriver-vod/internal/observability/logging"
)

// ProcessFunc handles one discovered recording. It runs on its own goroutine
// bounded by the watcher's concurrency limit.
type ProcessFunc func(ctx context.Context, path string) error

type pollTicker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	ticker *time.Ticker
}

func (t timeTicker) C() <-chan time.Time {
	return t.ticker.C
}

func (t timeTicker) Stop() {
	t.ticker.Stop()
}

type tickerFactory func(time.Duration) pollTicker

// Config assembles a Watcher. Dir and Process are required.
type Config struct {
	Dir     string
	Process ProcessFunc
	Logger  *slog.Logger
	// Interval is the gap between directory scans.
	Interval time.Duration
	// StableAfter is how long a file's size and mtime must hold still before
	// it is considered fully written.
	StableAfter time.Duration
	// MaxConcurrent bounds simultaneously processing recordings.
	MaxConcurrent int
}

type fileState struct {
	size    int64
	modTime time.Time
	seenAt  time.Time
}

// Watcher scans one directory on a fixed interval. A recording is dispatched
// once it carries a recognised extension and its size has held steady across
// polls for the full stability window. Each path is dispatched at most once
// per process lifetime.
type Watcher struct {
	dir         string
	process     ProcessFunc
	logger      *slog.Logger
	interval    time.Duration
	stableAfter time.Duration
	newTicker   tickerFactory

	sem chan struct{}
	wg  sync.WaitGroup

	mu         sync.Mutex
	pending    map[string]fileState
	dispatched map[string]struct{}

	now func() time.Time
}

func New(cfg Config) (*Watcher, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("watch directory is required")
	}
	if cfg.Process == nil {
		return nil, fmt.Errorf("process func is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	stableAfter := cfg.StableAfter
	if stableAfter <= 0 {
		stableAfter = 5 * time.Second
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &Watcher{
		dir:         cfg.Dir,
		process:     cfg.Process,
		logger:      logging.WithComponent(logger, "watcher"),
		interval:    interval,
		stableAfter: stableAfter,
		newTicker: func(d time.Duration) pollTicker {
			return timeTicker{ticker: time.NewTicker(d)}
		},
		sem:        make(chan struct{}, maxConcurrent),
		pending:    make(map[string]fileState),
		dispatched: make(map[string]struct{}),
		now:        time.Now,
	}, nil
}

// Run polls until ctx is cancelled, then waits for in-flight recordings to
// finish. The directory is scanned once immediately so existing files are
// picked up without waiting a full interval.
func (w *Watcher) Run(ctx context.Context) error {
	if _, err := os.Stat(w.dir); err != nil {
		return fmt.Errorf("watch directory: %w", err)
	}
	w.logger.Info("watching for recordings", "dir", w.dir, "interval", w.interval.String())

	ticker := w.newTicker(w.interval)
	defer ticker.Stop()

	w.scan(ctx)
	for {
		select {
		case <-ctx.Done():
			w.wg.Wait()
			return ctx.Err()
		case <-ticker.C():
			w.scan(ctx)
		}
	}
}

func (w *Watcher) scan(ctx context.Context) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.logger.Warn("scan failed", "dir", w.dir, "error", err)
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if !identity.AllowedExtension(name) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(w.dir, name)
		if w.ready(path, info.Size(), info.ModTime()) {
			w.dispatch(ctx, path)
		}
	}
}

// ready tracks the file across polls and reports whether it has stopped
// growing for the full stability window. Empty files never become ready.
func (w *Watcher) ready(path string, size int64, modTime time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, done := w.dispatched[path]; done {
		return false
	}
	now := w.now()
	previous, seen := w.pending[path]
	if !seen || previous.size != size || !previous.modTime.Equal(modTime) {
		w.pending[path] = fileState{size: size, modTime: modTime, seenAt: now}
		return false
	}
	if size == 0 {
		return false
	}
	if now.Sub(previous.seenAt) < w.stableAfter {
		return false
	}
	w.dispatched[path] = struct{}{}
	delete(w.pending, path)
	return true
}

func (w *Watcher) dispatch(ctx context.Context, path string) {
	select {
	case w.sem <- struct{}{}:
	case <-ctx.Done():
		return
	}
	w.wg.Add(1)
	go func() {
		defer func() {
			<-w.sem
			w.wg.Done()
		}()
		if err := w.process(ctx, path); err != nil {
			w.logger.Warn("recording not processed", "path", path, "error", err)
		}
	}()
}
