// Package service provides the job dispatcher that ties workspace
// allocation, input staging, registration and background pipeline
// execution together.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pgassner/colmapd/internal/models"
	"github.com/pgassner/colmapd/internal/pipeline"
	"github.com/pgassner/colmapd/internal/registry"
	"github.com/pgassner/colmapd/internal/workspace"
)

// Status messages written to the registry at each lifecycle step.
const (
	msgQueued    = "Job is queued for processing"
	msgRunning   = "Pipeline is running"
	msgCompleted = "Processing completed successfully"
)

// Dispatcher orchestrates the job lifecycle: Submit stages input and
// registers the job synchronously, then a background goroutine runs the
// pipeline and performs the single terminal registry update.
type Dispatcher struct {
	registry  *registry.Registry
	allocator *workspace.Allocator
	invoker   *pipeline.Invoker

	// sem bounds concurrent pipeline processes. Jobs past the limit
	// stay queued until a slot frees.
	sem chan struct{}

	// jobTimeout caps a single pipeline run; zero means unlimited.
	jobTimeout time.Duration

	wg sync.WaitGroup
}

// New creates a dispatcher. maxJobs bounds concurrent pipeline
// executions; values below 1 are treated as 1.
func New(reg *registry.Registry, alloc *workspace.Allocator, inv *pipeline.Invoker, maxJobs int, jobTimeout time.Duration) *Dispatcher {
	if maxJobs < 1 {
		maxJobs = 1
	}
	return &Dispatcher{
		registry:   reg,
		allocator:  alloc,
		invoker:    inv,
		sem:        make(chan struct{}, maxJobs),
		jobTimeout: jobTimeout,
	}
}

// Prepare allocates a fresh job ID and its workspace without
// registering or dispatching anything. Used by the upload endpoints,
// which stage files into the ingest directory themselves.
func (d *Dispatcher) Prepare() (string, workspace.Paths, error) {
	id := uuid.New().String()
	paths, err := d.allocator.Allocate(id)
	if err != nil {
		return "", workspace.Paths{}, err
	}
	return id, paths, nil
}

// Submit stages the input, registers the job as queued and schedules
// background execution. It returns as soon as the job is registered;
// pipeline completion is observed by polling the registry.
//
// Errors during this synchronous phase abort the submission entirely:
// no job record is left behind.
func (d *Dispatcher) Submit(params models.SubmitParams) (models.Job, error) {
	id, paths, err := d.Prepare()
	if err != nil {
		return models.Job{}, err
	}

	if err := d.allocator.StageInput(params.InputPath, paths.IngestDir); err != nil {
		return models.Job{}, err
	}

	return d.Dispatch(id, paths, params)
}

// Dispatch registers an already-staged job and schedules its pipeline
// run. Callers must have staged input into paths.IngestDir.
func (d *Dispatcher) Dispatch(id string, paths workspace.Paths, params models.SubmitParams) (models.Job, error) {
	job := models.Job{
		ID:        id,
		Status:    models.JobStatusQueued,
		Message:   msgQueued,
		Params:    params,
		CreatedAt: time.Now(),
	}
	if err := d.registry.Create(job); err != nil {
		return models.Job{}, err
	}

	slog.Info("job queued", "job_id", id, "mode", params.Mode, "input", params.InputPath)

	d.wg.Add(1)
	go d.execute(id, pipeline.Params{
		JobID:          id,
		Mode:           params.Mode,
		GPU:            params.GPU,
		RenderPipeline: params.RenderPipeline,
		Scale:          params.Scale,
		Config:         params.Config,
		IngestDir:      paths.IngestDir,
		WorkspaceDir:   paths.WorkspaceDir,
		OutputDir:      paths.OutputDir,
	})

	return job, nil
}

// execute runs the pipeline off the request path and writes the job's
// terminal state. Each job gets exactly one execute call, so the
// terminal update happens exactly once.
func (d *Dispatcher) execute(id string, p pipeline.Params) {
	defer d.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("job goroutine panicked", "job_id", id, "panic", r)
			d.fail(id, fmt.Sprintf("internal panic: %v", r))
		}
	}()

	d.sem <- struct{}{}
	defer func() { <-d.sem }()

	if err := d.registry.Update(id, registry.Mutation{
		Status:  models.JobStatusRunning,
		Message: msgRunning,
	}); err != nil {
		slog.Error("failed to mark job running", "job_id", id, "error", err)
		return
	}

	ctx := context.Background()
	if d.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.jobTimeout)
		defer cancel()
	}

	start := time.Now()
	res := d.invoker.Invoke(ctx, p)
	duration := time.Since(start)

	if res.OK {
		if err := d.registry.Update(id, registry.Mutation{
			Status:     models.JobStatusCompleted,
			Message:    msgCompleted,
			OutputPath: res.OutputPath,
		}); err != nil {
			slog.Error("failed to mark job completed", "job_id", id, "error", err)
			return
		}
		slog.Info("job completed", "job_id", id, "duration", duration, "output", res.OutputPath)
		return
	}

	d.fail(id, res.Diagnostic)
	slog.Error("job failed", "job_id", id, "duration", duration, "diagnostic", res.Diagnostic)
}

func (d *Dispatcher) fail(id, diagnostic string) {
	if diagnostic == "" {
		diagnostic = "pipeline failed without diagnostic output"
	}
	if err := d.registry.Update(id, registry.Mutation{
		Status:  models.JobStatusFailed,
		Message: diagnostic,
	}); err != nil {
		slog.Error("failed to mark job failed", "job_id", id, "error", err)
	}
}

// Wait blocks until all dispatched jobs have reached a terminal state.
// Used by tests and during shutdown logging.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
