package job

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"bitriver-vod/internal/identity"
)

var (
	// ErrNotFound indicates the requested job id is absent from the store.
	ErrNotFound = errors.New("job not found")
	// ErrTerminal indicates a terminal transition was attempted on a job
	// that already reached a terminal status.
	ErrTerminal = errors.New("job already terminal")
)

// Store is a thread-safe in-memory registry of jobs keyed by id. It is empty
// at process start and is the source of truth for the query surface and the
// retention sweeper.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*Job
	now  func() time.Time
}

// NewStore initialises an empty Store.
func NewStore() *Store {
	return &Store{
		jobs: make(map[string]*Job),
		now:  time.Now,
	}
}

// Create registers a new processing job for the given recording and returns a
// snapshot of it. The id derives from the stream id and the creation instant,
// so concurrent jobs for the same stream stay distinct.
func (s *Store) Create(id identity.StreamIdentity, inputPath string) Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.now().UTC()
	jobID := fmt.Sprintf("%s-%d", id.StreamID, start.UnixNano())
	for _, exists := s.jobs[jobID]; exists; _, exists = s.jobs[jobID] {
		start = start.Add(time.Nanosecond)
		jobID = fmt.Sprintf("%s-%d", id.StreamID, start.UnixNano())
	}

	record := &Job{
		ID:        jobID,
		Identity:  id,
		InputPath: inputPath,
		Status:    StatusProcessing,
		StartTime: start,
	}
	s.jobs[jobID] = record
	return record.clone()
}

// Complete transitions the job to completed and records its output path.
// The first terminal transition wins; later attempts return ErrTerminal.
func (s *Store) Complete(id, outputPath string) (Job, error) {
	return s.finish(id, func(record *Job, now time.Time) {
		record.Status = StatusCompleted
		record.CompletedTime = &now
		record.OutputPath = outputPath
	})
}

// Fail transitions the job to failed and records the triggering error text.
func (s *Store) Fail(id string, cause error) (Job, error) {
	message := "processing failed"
	if cause != nil {
		message = strings.TrimSpace(cause.Error())
	}
	return s.finish(id, func(record *Job, now time.Time) {
		record.Status = StatusFailed
		record.FailedTime = &now
		record.Error = message
	})
}

func (s *Store) finish(id string, apply func(*Job, time.Time)) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	if record.Status.Terminal() {
		return record.clone(), ErrTerminal
	}
	apply(record, s.now().UTC())
	return record.clone(), nil
}

// AppendDiagnostic records a best-effort stage failure on the job without
// touching its status.
func (s *Store) AppendDiagnostic(id, message string) error {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	record.Diagnostics = append(record.Diagnostics, trimmed)
	return nil
}

// Get returns a snapshot of the job with the given id.
func (s *Store) Get(id string) (Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.jobs[id]
	if !ok {
		return Job{}, false
	}
	return record.clone(), true
}

// List returns snapshots of all jobs ordered newest first.
func (s *Store) List() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Job, 0, len(s.jobs))
	for _, record := range s.jobs {
		out = append(out, record.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.After(out[j].StartTime)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Len reports the number of tracked jobs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

// SweepOlderThan evicts every job whose terminal timestamp (or start time for
// jobs stuck in processing) predates the cutoff, returning the evicted ids.
func (s *Store) SweepOlderThan(cutoff time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var evicted []string
	for id, record := range s.jobs {
		if record.terminalTime().Before(cutoff) {
			delete(s.jobs, id)
			evicted = append(evicted, id)
		}
	}
	sort.Strings(evicted)
	return evicted
}
