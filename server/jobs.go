package server

import (
	"sort"
	"sync"
	"time"

	"github.com/viant/filesearch/ingest"
)

// Job states.
const (
	StatusRunning  = "running"
	StatusComplete = "complete"
	StatusError    = "error"
)

// Job is a background ingestion run.
type Job struct {
	ID          string         `json:"id"`
	Path        string         `json:"path"`
	Status      string         `json:"status"`
	Report      *ingest.Report `json:"report,omitempty"`
	Error       string         `json:"error,omitempty"`
	StartedAt   time.Time      `json:"startedAt"`
	CompletedAt *time.Time     `json:"completedAt,omitempty"`
}

// JobTracker keeps ingestion jobs in memory.
type JobTracker struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewJobTracker creates an empty tracker.
func NewJobTracker() *JobTracker {
	return &JobTracker{jobs: make(map[string]*Job)}
}

// Create registers a running job.
func (t *JobTracker) Create(id, path string) Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	job := &Job{ID: id, Path: path, Status: StatusRunning, StartedAt: time.Now()}
	t.jobs[id] = job
	return *job
}

// Finish records the outcome of job id. A partial report is kept even when
// err is set.
func (t *JobTracker) Finish(id string, report ingest.Report, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	job, ok := t.jobs[id]
	if !ok {
		return
	}
	now := time.Now()
	job.CompletedAt = &now
	job.Report = &report
	job.Status = StatusComplete
	if err != nil {
		job.Status = StatusError
		job.Error = err.Error()
	}
}

// Get returns a copy of job id.
func (t *JobTracker) Get(id string) (Job, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	job, ok := t.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// List returns all jobs, newest first.
func (t *JobTracker) List() []Job {
	t.mu.RLock()
	out := make([]Job, 0, len(t.jobs))
	for _, job := range t.jobs {
		out = append(out, *job)
	}
	t.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out
}
