// Package workspace derives and creates the per-job filesystem layout.
// Every job owns an exclusive subtree under each of the three roots,
// keyed by its ID, so jobs never contend on the filesystem.
package workspace

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Sentinel errors for workspace operations.
var (
	// ErrInputNotFound indicates the submitted input path does not exist.
	ErrInputNotFound = errors.New("input path not found")

	// ErrWorkspace indicates directory allocation or staging failed.
	ErrWorkspace = errors.New("workspace allocation failed")
)

// Paths holds the three per-job directories.
type Paths struct {
	// IngestDir is where input data is staged; created eagerly.
	IngestDir string
	// WorkspaceDir holds intermediate pipeline state; the pipeline
	// creates it itself, matching the external tool's expectations.
	WorkspaceDir string
	// OutputDir is where the pipeline materializes the dataset.
	OutputDir string
}

// Allocator derives per-job paths under three fixed roots.
type Allocator struct {
	IngestRoot    string
	WorkspaceRoot string
	OutputRoot    string
}

// NewAllocator creates an allocator over the given roots.
func NewAllocator(ingestRoot, workspaceRoot, outputRoot string) *Allocator {
	return &Allocator{
		IngestRoot:    ingestRoot,
		WorkspaceRoot: workspaceRoot,
		OutputRoot:    outputRoot,
	}
}

// Allocate derives the three paths for jobID and creates the ingest
// directory. It fails if the ingest directory already exists with
// content, which would mean the ID collides with a directory this job
// does not own.
func (a *Allocator) Allocate(jobID string) (Paths, error) {
	p := Paths{
		IngestDir:    filepath.Join(a.IngestRoot, jobID),
		WorkspaceDir: filepath.Join(a.WorkspaceRoot, jobID),
		OutputDir:    filepath.Join(a.OutputRoot, jobID),
	}

	if entries, err := os.ReadDir(p.IngestDir); err == nil && len(entries) > 0 {
		return Paths{}, fmt.Errorf("%w: ingest dir %s already exists and is not empty", ErrWorkspace, p.IngestDir)
	}
	if err := os.MkdirAll(p.IngestDir, 0o755); err != nil {
		return Paths{}, fmt.Errorf("%w: create ingest dir: %v", ErrWorkspace, err)
	}
	return p, nil
}

// StageInput copies the submitted input into the job's ingest
// directory: a directory tree recursively, or a single file otherwise.
func (a *Allocator) StageInput(src, ingestDir string) error {
	info, err := os.Stat(src)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrInputNotFound, src)
		}
		return fmt.Errorf("%w: stat input: %v", ErrWorkspace, err)
	}

	if info.IsDir() {
		if err := copyTree(src, ingestDir); err != nil {
			return fmt.Errorf("%w: stage directory: %v", ErrWorkspace, err)
		}
		return nil
	}
	dst := filepath.Join(ingestDir, filepath.Base(src))
	if err := copyFile(src, dst); err != nil {
		return fmt.Errorf("%w: stage file: %v", ErrWorkspace, err)
	}
	return nil
}

// copyTree copies the contents of src into dst, which must exist.
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
