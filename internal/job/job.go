// Package job tracks recording-processing jobs in an in-memory registry.
// Job history is process-lifetime state; durable records live with the
// external event and metadata services.
package job

import (
	"time"

	"bitriver-vod/internal/identity"
)

// Status describes where a job sits in its lifecycle.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status admits no further transition.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job is one recording moving through the pipeline. Status moves
// processing -> {completed|failed} exactly once; OutputPath is set only on
// completion and Error only on failure. Diagnostics collects best-effort
// stage failures (thumbnails, metadata, notification) that never affect the
// terminal status.
type Job struct {
	ID            string                  `json:"id"`
	Identity      identity.StreamIdentity `json:"streamInfo"`
	InputPath     string                  `json:"inputPath"`
	Status        Status                  `json:"status"`
	StartTime     time.Time               `json:"startTime"`
	CompletedTime *time.Time              `json:"completedTime,omitempty"`
	FailedTime    *time.Time              `json:"failedTime,omitempty"`
	OutputPath    string                  `json:"outputPath,omitempty"`
	Error         string                  `json:"error,omitempty"`
	Diagnostics   []string                `json:"diagnostics,omitempty"`
}

// terminalTime returns the timestamp relevant for retention decisions: the
// terminal timestamp when set, otherwise the start time.
func (j *Job) terminalTime() time.Time {
	switch {
	case j.CompletedTime != nil:
		return *j.CompletedTime
	case j.FailedTime != nil:
		return *j.FailedTime
	default:
		return j.StartTime
	}
}

func (j *Job) clone() Job {
	out := *j
	if j.CompletedTime != nil {
		completed := *j.CompletedTime
		out.CompletedTime = &completed
	}
	if j.FailedTime != nil {
		failed := *j.FailedTime
		out.FailedTime = &failed
	}
	if len(j.Diagnostics) > 0 {
		out.Diagnostics = append([]string(nil), j.Diagnostics...)
	}
	return out
}
