// Package models defines the data structures shared across the colmapd service.
package models

import (
	"fmt"
	"time"
)

// JobStatus represents the state of a processing job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal reports whether the status is final. A job in a terminal
// state never transitions again.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Run modes accepted by the pipeline script.
const (
	ModeBatch  = "batch"
	ModeDaemon = "daemon"
)

// SubmitParams are the immutable parameters captured at submission time
// and passed unchanged to the external pipeline.
type SubmitParams struct {
	InputPath      string         `json:"input_path"`
	Config         map[string]any `json:"config,omitempty"`
	Mode           string         `json:"mode"`
	GPU            string         `json:"gpu"`
	RenderPipeline string         `json:"render_pipeline"`
	Scale          string         `json:"scale"`
}

// Normalize fills in the defaults the original API used for omitted fields.
func (p *SubmitParams) Normalize() {
	if p.Mode == "" {
		p.Mode = ModeBatch
	}
	if p.GPU == "" {
		p.GPU = "auto"
	}
	if p.RenderPipeline == "" {
		p.RenderPipeline = "default"
	}
	if p.Scale == "" {
		p.Scale = "default"
	}
}

// Validate checks the enum-valued parameters.
func (p SubmitParams) Validate() error {
	switch p.Mode {
	case ModeBatch, ModeDaemon:
	default:
		return fmt.Errorf("invalid mode %q (want %q or %q)", p.Mode, ModeBatch, ModeDaemon)
	}
	switch p.GPU {
	case "true", "false", "auto":
	default:
		return fmt.Errorf("invalid gpu %q (want true, false or auto)", p.GPU)
	}
	switch p.RenderPipeline {
	case "fast", "high_quality", "default":
	default:
		return fmt.Errorf("invalid render_pipeline %q (want fast, high_quality or default)", p.RenderPipeline)
	}
	switch p.Scale {
	case "large", "default":
	default:
		return fmt.Errorf("invalid scale %q (want large or default)", p.Scale)
	}
	return nil
}

// Job is a single request to turn captured input data into a
// reconstruction dataset. Params are immutable after creation; Status,
// Message and OutputPath are owned by the registry.
type Job struct {
	ID          string       `json:"job_id"`
	Status      JobStatus    `json:"status"`
	Message     string       `json:"message,omitempty"`
	OutputPath  string       `json:"output_path,omitempty"`
	Params      SubmitParams `json:"params"`
	CreatedAt   time.Time    `json:"created_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
}
