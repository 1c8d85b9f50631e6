// Package registry provides the in-memory job store. It is the single
// source of truth for job status queries and is safe for concurrent use.
package registry

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pgassner/colmapd/internal/models"
)

// Sentinel errors for registry operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotFound indicates the requested job does not exist.
	ErrNotFound = errors.New("job not found")

	// ErrDuplicateJob indicates a job with the same ID already exists.
	// Identifier generation makes this unreachable in practice; it is
	// checked defensively as an invariant violation.
	ErrDuplicateJob = errors.New("job already exists")

	// ErrTerminal indicates an attempt to move a completed or failed
	// job to a different status.
	ErrTerminal = errors.New("job already in terminal state")
)

// Mutation describes a change to a job record. Zero-valued fields are
// left unchanged, except OutputPath which is only applied together with
// a transition to completed.
type Mutation struct {
	Status     models.JobStatus
	Message    string
	OutputPath string
}

// Registry is a concurrency-safe map from job ID to job record.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]*models.Job
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{jobs: make(map[string]*models.Job)}
}

// Create inserts a new job record.
func (r *Registry) Create(job models.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.jobs[job.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, job.ID)
	}
	r.jobs[job.ID] = &job
	return nil
}

// Update atomically applies a mutation to an existing record. Status is
// monotonic: once a job is terminal, any attempt to change its status
// fails with ErrTerminal and the record is left untouched.
func (r *Registry) Update(id string, mut Mutation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if mut.Status != "" && mut.Status != job.Status {
		if job.Status.Terminal() {
			return fmt.Errorf("%w: %s is %s", ErrTerminal, id, job.Status)
		}
		job.Status = mut.Status
		if mut.Status.Terminal() {
			now := time.Now()
			job.CompletedAt = &now
		}
		if mut.Status == models.JobStatusCompleted {
			job.OutputPath = mut.OutputPath
		}
	}
	if mut.Message != "" {
		job.Message = mut.Message
	}
	return nil
}

// Get returns a consistent snapshot of a job record.
func (r *Registry) Get(id string) (models.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[id]
	if !ok {
		return models.Job{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return *job, nil
}

// List returns a point-in-time snapshot of all job records keyed by ID.
func (r *Registry) List() map[string]models.Job {
	r.mu.RLock()
	defer r.mu.RUnlock()

	jobs := make(map[string]models.Job, len(r.jobs))
	for id, job := range r.jobs {
		jobs[id] = *job
	}
	return jobs
}

// Len returns the number of registered jobs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}
