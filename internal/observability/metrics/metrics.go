package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type requestLabel struct {
	method string
	path   string
	status string
}

// Recorder aggregates in-memory counters and gauges for HTTP requests, job
// lifecycle events, rendition failures, retention sweeps, and notification
// outcomes. It coordinates concurrent writers via a RWMutex while exposing a
// thread-safe gauge for active job tracking.
type Recorder struct {
	mu                sync.RWMutex
	requestCount      map[requestLabel]uint64
	requestDuration   map[requestLabel]time.Duration
	jobEvents         map[string]uint64
	renditionFailures map[string]uint64
	notifyEvents      map[string]uint64
	sweptJobs         uint64
	activeJobs        atomic.Int64
}

var defaultRecorder = New()

// New constructs an empty Recorder with initialized backing maps so callers
// can immediately record metrics without additional setup.
func New() *Recorder {
	return &Recorder{
		requestCount:      make(map[requestLabel]uint64),
		requestDuration:   make(map[requestLabel]time.Duration),
		jobEvents:         make(map[string]uint64),
		renditionFailures: make(map[string]uint64),
		notifyEvents:      make(map[string]uint64),
	}
}

// Default returns the singleton Recorder shared across packages that do not
// need a custom instrumentation pipeline.
func Default() *Recorder {
	return defaultRecorder
}

// ObserveRequest normalizes the request label set and accumulates totals for
// request count and cumulative duration by HTTP method, normalized path, and
// status code.
func (r *Recorder) ObserveRequest(method, path string, status int, duration time.Duration) {
	label := requestLabel{
		method: strings.ToUpper(method),
		path:   normalizePath(path),
		status: fmt.Sprintf("%d", status),
	}
	r.mu.Lock()
	r.requestCount[label]++
	r.requestDuration[label] += duration
	r.mu.Unlock()
}

// JobStarted records a job entering the processing state and increments the
// active job gauge.
func (r *Recorder) JobStarted() {
	r.recordJobEvent("started")
	r.activeJobs.Add(1)
}

// JobCompleted records a successful terminal transition and decrements the
// active job gauge.
func (r *Recorder) JobCompleted() {
	r.recordJobEvent("completed")
	r.decrementGauge(&r.activeJobs)
}

// JobFailed records a failed terminal transition and decrements the active
// job gauge, guarding against negative counts.
func (r *Recorder) JobFailed() {
	r.recordJobEvent("failed")
	r.decrementGauge(&r.activeJobs)
}

func (r *Recorder) recordJobEvent(event string) {
	normalized := normalizeName(event)
	r.mu.Lock()
	r.jobEvents[normalized]++
	r.mu.Unlock()
}

// RenditionFailed records an encoder failure keyed by rendition name.
func (r *Recorder) RenditionFailed(name string) {
	normalized := normalizeName(name)
	r.mu.Lock()
	r.renditionFailures[normalized]++
	r.mu.Unlock()
}

// NotifyPublished records a successful job event publication.
func (r *Recorder) NotifyPublished() {
	r.recordNotifyEvent("published")
}

// NotifyDropped records a job event that could not be delivered to the broker
// after retrying.
func (r *Recorder) NotifyDropped() {
	r.recordNotifyEvent("dropped")
}

func (r *Recorder) recordNotifyEvent(event string) {
	normalized := normalizeName(event)
	r.mu.Lock()
	r.notifyEvents[normalized]++
	r.mu.Unlock()
}

// JobsSwept adds the number of records evicted by a retention sweep cycle.
func (r *Recorder) JobsSwept(count int) {
	if count <= 0 {
		return
	}
	r.mu.Lock()
	r.sweptJobs += uint64(count)
	r.mu.Unlock()
}

// ActiveJobs exposes the current gauge of jobs in the processing state.
func (r *Recorder) ActiveJobs() int64 {
	return r.activeJobs.Load()
}

// JobCounts returns copies of the job event counters and the active gauge for
// testing and reporting purposes.
func (r *Recorder) JobCounts() (events map[string]uint64, active int64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	events = make(map[string]uint64, len(r.jobEvents))
	for k, v := range r.jobEvents {
		events[k] = v
	}
	return events, r.activeJobs.Load()
}

// Reset clears all counters and gauges on the recorder. It is intended for
// test setups.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requestCount = make(map[requestLabel]uint64)
	r.requestDuration = make(map[requestLabel]time.Duration)
	r.jobEvents = make(map[string]uint64)
	r.renditionFailures = make(map[string]uint64)
	r.notifyEvents = make(map[string]uint64)
	r.sweptJobs = 0
	r.activeJobs.Store(0)
}

// Handler exposes the Recorder as an http.Handler that writes Prometheus text
// exposition data with the appropriate content type.
func (r *Recorder) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		r.Write(w)
	})
}

// Write renders the Recorder's metrics in Prometheus text format, sorting
// label sets to provide stable output for scrapes and tests.
func (r *Recorder) Write(w io.Writer) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	requestLabels := r.sortedRequestLabels()
	jobEvents := sortedKeys(r.jobEvents)
	renditions := sortedKeys(r.renditionFailures)
	notifyEvents := sortedKeys(r.notifyEvents)

	fmt.Fprintln(w, "# HELP bitriver_vod_http_requests_total Total number of HTTP requests processed by the query surface")
	fmt.Fprintln(w, "# TYPE bitriver_vod_http_requests_total counter")
	for _, label := range requestLabels {
		fmt.Fprintf(w, "bitriver_vod_http_requests_total{method=\"%s\",path=\"%s\",status=\"%s\"} %d\n", label.method, label.path, label.status, r.requestCount[label])
	}

	fmt.Fprintln(w, "# HELP bitriver_vod_http_request_duration_seconds_sum Cumulative duration of HTTP requests in seconds")
	fmt.Fprintln(w, "# TYPE bitriver_vod_http_request_duration_seconds_sum counter")
	for _, label := range requestLabels {
		fmt.Fprintf(w, "bitriver_vod_http_request_duration_seconds_sum{method=\"%s\",path=\"%s\",status=\"%s\"} %f\n", label.method, label.path, label.status, r.requestDuration[label].Seconds())
	}

	fmt.Fprintln(w, "# HELP bitriver_vod_jobs_total Processing job lifecycle events by type")
	fmt.Fprintln(w, "# TYPE bitriver_vod_jobs_total counter")
	for _, event := range jobEvents {
		fmt.Fprintf(w, "bitriver_vod_jobs_total{event=\"%s\"} %d\n", event, r.jobEvents[event])
	}

	fmt.Fprintln(w, "# HELP bitriver_vod_active_jobs Current number of jobs in the processing state")
	fmt.Fprintln(w, "# TYPE bitriver_vod_active_jobs gauge")
	fmt.Fprintf(w, "bitriver_vod_active_jobs %d\n", r.activeJobs.Load())

	fmt.Fprintln(w, "# HELP bitriver_vod_rendition_failures_total Encoder failures by rendition name")
	fmt.Fprintln(w, "# TYPE bitriver_vod_rendition_failures_total counter")
	for _, name := range renditions {
		fmt.Fprintf(w, "bitriver_vod_rendition_failures_total{rendition=\"%s\"} %d\n", name, r.renditionFailures[name])
	}

	fmt.Fprintln(w, "# HELP bitriver_vod_notifications_total Job event publications by outcome")
	fmt.Fprintln(w, "# TYPE bitriver_vod_notifications_total counter")
	for _, event := range notifyEvents {
		fmt.Fprintf(w, "bitriver_vod_notifications_total{outcome=\"%s\"} %d\n", event, r.notifyEvents[event])
	}

	fmt.Fprintln(w, "# HELP bitriver_vod_swept_jobs_total Total job records evicted by the retention sweeper")
	fmt.Fprintln(w, "# TYPE bitriver_vod_swept_jobs_total counter")
	fmt.Fprintf(w, "bitriver_vod_swept_jobs_total %d\n", r.sweptJobs)
}

func (r *Recorder) sortedRequestLabels() []requestLabel {
	labels := make([]requestLabel, 0, len(r.requestCount))
	for label := range r.requestCount {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].method != labels[j].method {
			return labels[i].method < labels[j].method
		}
		if labels[i].path != labels[j].path {
			return labels[i].path < labels[j].path
		}
		return labels[i].status < labels[j].status
	})
	return labels
}

func sortedKeys(m map[string]uint64) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func normalizePath(path string) string {
	if path == "" || path == "/" {
		return "/"
	}
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if part == "" {
			continue
		}
		if looksLikeIdentifier(part) {
			parts[i] = ":id"
		}
	}
	normalized := strings.Join(parts, "/")
	if !strings.HasPrefix(normalized, "/") {
		normalized = "/" + normalized
	}
	if strings.HasSuffix(normalized, "/") && len(normalized) > 1 {
		normalized = strings.TrimSuffix(normalized, "/")
	}
	return normalized
}

func looksLikeIdentifier(segment string) bool {
	if len(segment) >= 16 {
		return true
	}
	digitCount := 0
	for _, r := range segment {
		if r >= '0' && r <= '9' {
			digitCount++
		}
	}
	return digitCount >= 3
}

func (r *Recorder) decrementGauge(gauge *atomic.Int64) {
	for {
		current := gauge.Load()
		if current <= 0 {
			return
		}
		if gauge.CompareAndSwap(current, current-1) {
			return
		}
	}
}

func normalizeName(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
