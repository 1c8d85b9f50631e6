// Package pipeline invokes the external reconstruction script. The
// script is opaque to this service: it is handed a fixed-order argument
// vector and judged solely by its exit code.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/pgassner/colmapd/internal/models"
)

// Params bundles the immutable submission fields with the job's
// workspace paths. IngestDir points at the staged copy of the input,
// not the caller's original path.
type Params struct {
	JobID          string
	Mode           string
	GPU            string
	RenderPipeline string
	Scale          string
	Config         map[string]any

	IngestDir    string
	WorkspaceDir string
	OutputDir    string
}

// Result is the outcome of a single pipeline invocation.
type Result struct {
	OK         bool
	OutputPath string
	Diagnostic string
}

// Invoker runs the reconstruction script to completion.
type Invoker struct {
	// Script is the path to the pipeline executable.
	Script string
}

// New creates an invoker for the given script path.
func New(script string) *Invoker {
	return &Invoker{Script: script}
}

// Invoke writes the optional per-job config file, builds the argument
// vector and runs the script, blocking until it exits. All failures,
// including config serialization and launch errors, are folded into the
// Result so the caller has a single terminal write to perform. Exactly
// one process is spawned per call; there are no retries.
func (inv *Invoker) Invoke(ctx context.Context, p Params) Result {
	args, err := inv.buildArgs(p)
	if err != nil {
		return Result{Diagnostic: err.Error()}
	}

	cmd := exec.CommandContext(ctx, inv.Script, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		diag := stderr.String()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			diag = "pipeline timed out: " + err.Error()
		} else if diag == "" {
			diag = err.Error()
		}
		return Result{Diagnostic: diag}
	}

	return Result{OK: true, OutputPath: p.OutputDir}
}

// buildArgs serializes the config (if any) and assembles the fixed-order
// argument vector the script expects. The config file must exist before
// the vector is finalized, since the script reads it at startup.
func (inv *Invoker) buildArgs(p Params) ([]string, error) {
	modeFlag := "--batch"
	if p.Mode == models.ModeDaemon {
		modeFlag = "--daemon"
	}

	args := []string{
		modeFlag,
		"--ingest-dir", p.IngestDir,
		"--colmap-workspace", p.WorkspaceDir,
		"--nerfstudio-output", p.OutputDir,
		"--gpu", p.GPU,
		"--render-pipeline", p.RenderPipeline,
		"--scale", p.Scale,
	}

	if len(p.Config) > 0 {
		configPath, err := inv.writeConfig(p)
		if err != nil {
			return nil, err
		}
		args = append(args, "--config", configPath)
	}
	return args, nil
}

// writeConfig serializes the structured config to a file inside the
// job's workspace directory. The directory is per-job, so no other job
// can collide with the file.
func (inv *Invoker) writeConfig(p Params) (string, error) {
	if err := os.MkdirAll(p.WorkspaceDir, 0o755); err != nil {
		return "", fmt.Errorf("create workspace dir: %w", err)
	}

	data, err := json.Marshal(p.Config)
	if err != nil {
		return "", fmt.Errorf("serialize config: %w", err)
	}

	configPath := filepath.Join(p.WorkspaceDir, fmt.Sprintf("config_%s.json", p.JobID))
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return "", fmt.Errorf("write config: %w", err)
	}
	return configPath, nil
}
