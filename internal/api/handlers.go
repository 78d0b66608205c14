package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"bitriver-vod/internal/job"
)

// Notifier is the slice of the event publisher the health probe needs.
type Notifier interface {
	Ping(ctx context.Context) error
}

// Handler serves the job query surface. Store is required; Notifier is
// optional and only consulted by the health probe.
type Handler struct {
	Store    *job.Store
	Notifier Notifier
}

func NewHandler(store *job.Store) *Handler {
	return &Handler{Store: store}
}

type jobListResponse struct {
	Jobs  []job.Job `json:"jobs"`
	Count int       `json:"count"`
}

// Jobs returns every tracked job, newest first.
func (h *Handler) Jobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	jobs := h.Store.List()
	writeJSON(w, http.StatusOK, jobListResponse{Jobs: jobs, Count: len(jobs)})
}

// JobByID returns a single job snapshot or a JSON 404.
func (h *Handler) JobByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, job.ErrNotFound)
		return
	}
	record, ok := h.Store.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, job.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

type componentStatus struct {
	Component string `json:"component"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

type healthResponse struct {
	Status     string            `json:"status"`
	Components []componentStatus `json:"components"`
}

// Health reports overall liveness plus per-component detail. A degraded
// notifier downgrades the response to 503 without stopping processing.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}

	overallStatus := "ok"
	statusCode := http.StatusOK
	recordComponent := func(component string, err error) componentStatus {
		status := "ok"
		message := ""
		if err != nil {
			status = "degraded"
			message = err.Error()
			overallStatus = "degraded"
			statusCode = http.StatusServiceUnavailable
		}
		return componentStatus{Component: component, Status: status, Error: message}
	}

	components := []componentStatus{
		recordComponent("job_store", nil),
	}
	if h.Notifier != nil {
		components = append(components, recordComponent("notifier", h.Notifier.Ping(r.Context())))
	}

	writeJSON(w, statusCode, healthResponse{Status: overallStatus, Components: components})
}
