package sync

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of a triggered sync job.
type JobStatus string

const (
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Job is the in-memory record of one sync run.
type Job struct {
	ID           uuid.UUID  `json:"id"`
	Status       JobStatus  `json:"status"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at"`
	TotalRecords int        `json:"total_records"`
	Errors       []string   `json:"errors"`
}

// Registry serializes sync runs: at most one in flight, and the most
// recent job's record is kept for status queries. Process-local state,
// rebuilt empty on restart.
type Registry struct {
	mu      sync.Mutex
	current *Job
	last    *Job
}

// NewRegistry creates an empty job registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// TryStart registers a new running job. Returns (nil, false) when one is
// already in flight.
func (r *Registry) TryStart() (*Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current != nil {
		return nil, false
	}
	job := &Job{
		ID:        uuid.New(),
		Status:    JobRunning,
		StartedAt: time.Now().UTC(),
	}
	r.current = job
	return job, true
}

// Finish closes the running job with the run's outcome.
func (r *Registry) Finish(job *Job, stats *Stats, failed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	job.FinishedAt = &now
	job.Status = JobCompleted
	if failed {
		job.Status = JobFailed
	}
	if stats != nil {
		job.TotalRecords = stats.TotalRecords()
		job.Errors = stats.Errors
	}
	r.last = job
	r.current = nil
}

// Status returns the running job if any, else the last finished one, as
// a copy. Nil when no sync has run since startup.
func (r *Registry) Status() *Job {
	r.mu.Lock()
	defer r.mu.Unlock()

	src := r.current
	if src == nil {
		src = r.last
	}
	if src == nil {
		return nil
	}
	copied := *src
	return &copied
}

// Running reports whether a job is in flight.
func (r *Registry) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current != nil
}
