package service_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pgassner/colmapd/internal/models"
	"github.com/pgassner/colmapd/internal/pipeline"
	"github.com/pgassner/colmapd/internal/registry"
	"github.com/pgassner/colmapd/internal/service"
	"github.com/pgassner/colmapd/internal/workspace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubScript is a colmap.sh stand-in driven by control files in the
// staged ingest dir ($3 is the --ingest-dir value): "sleep" holds a
// duration in seconds, "exitcode" the exit status.
const stubScript = `#!/bin/sh
ingest="$3"
[ -f "$ingest/sleep" ] && sleep "$(cat "$ingest/sleep")"
code=0
[ -f "$ingest/exitcode" ] && code="$(cat "$ingest/exitcode")"
[ "$code" != "0" ] && echo "no images found" >&2
exit "$code"
`

type fixture struct {
	dispatcher *service.Dispatcher
	registry   *registry.Registry
	outputRoot string
}

func newFixture(t *testing.T, maxJobs int, timeout time.Duration) *fixture {
	t.Helper()
	base := t.TempDir()

	script := filepath.Join(base, "colmap.sh")
	require.NoError(t, os.WriteFile(script, []byte(stubScript), 0o755))

	outputRoot := filepath.Join(base, "nerfstudio_dataset")
	reg := registry.New()
	alloc := workspace.NewAllocator(
		filepath.Join(base, "ingest"),
		filepath.Join(base, "colmap_workspace"),
		outputRoot,
	)

	return &fixture{
		dispatcher: service.New(reg, alloc, pipeline.New(script), maxJobs, timeout),
		registry:   reg,
		outputRoot: outputRoot,
	}
}

// makeInput creates an input dir with the given control files.
func makeInput(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func submitParams(input string) models.SubmitParams {
	p := models.SubmitParams{InputPath: input}
	p.Normalize()
	return p
}

func TestSubmitAndComplete(t *testing.T) {
	f := newFixture(t, 2, 0)
	input := makeInput(t, map[string]string{"0001.jpg": "img"})

	job, err := f.dispatcher.Submit(submitParams(input))
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, models.JobStatusQueued, job.Status)

	f.dispatcher.Wait()

	done, err := f.registry.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, done.Status)
	assert.Equal(t, filepath.Join(f.outputRoot, job.ID), done.OutputPath)
	assert.Equal(t, "Processing completed successfully", done.Message)
}

func TestSubmitReturnsBeforePipelineExits(t *testing.T) {
	f := newFixture(t, 2, 0)
	input := makeInput(t, map[string]string{"sleep": "2"})

	start := time.Now()
	job, err := f.dispatcher.Submit(submitParams(input))
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second,
		"submission must not wait for the pipeline")

	snap, err := f.registry.Get(job.ID)
	require.NoError(t, err)
	assert.False(t, snap.Status.Terminal())

	f.dispatcher.Wait()
}

func TestPipelineFailureRecorded(t *testing.T) {
	f := newFixture(t, 2, 0)
	input := makeInput(t, map[string]string{"exitcode": "1"})

	job, err := f.dispatcher.Submit(submitParams(input))
	require.NoError(t, err)

	f.dispatcher.Wait()

	done, err := f.registry.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, done.Status)
	assert.Contains(t, done.Message, "no images found")
	assert.Empty(t, done.OutputPath, "failed jobs never carry an output path")
}

func TestSubmitMissingInput(t *testing.T) {
	f := newFixture(t, 2, 0)

	_, err := f.dispatcher.Submit(submitParams(filepath.Join(t.TempDir(), "missing")))
	require.ErrorIs(t, err, workspace.ErrInputNotFound)

	// No partial job record is left behind.
	assert.Zero(t, f.registry.Len())
}

func TestConcurrentJobsIndependent(t *testing.T) {
	f := newFixture(t, 4, 0)

	slowOK := makeInput(t, map[string]string{"sleep": "1"})
	fastFail := makeInput(t, map[string]string{"exitcode": "1"})

	slow, err := f.dispatcher.Submit(submitParams(slowOK))
	require.NoError(t, err)
	fast, err := f.dispatcher.Submit(submitParams(fastFail))
	require.NoError(t, err)

	require.NotEqual(t, slow.ID, fast.ID)

	// The fast job reaches failed while the slow one is still in flight.
	require.Eventually(t, func() bool {
		j, err := f.registry.Get(fast.ID)
		return err == nil && j.Status == models.JobStatusFailed
	}, 5*time.Second, 10*time.Millisecond)

	j, err := f.registry.Get(slow.ID)
	require.NoError(t, err)
	assert.False(t, j.Status.Terminal())

	f.dispatcher.Wait()

	j, err = f.registry.Get(slow.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, j.Status)
}

func TestIdentifierUniqueness(t *testing.T) {
	f := newFixture(t, 4, 0)
	input := makeInput(t, map[string]string{"0001.jpg": "img"})

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		job, err := f.dispatcher.Submit(submitParams(input))
		require.NoError(t, err)
		require.False(t, seen[job.ID], "duplicate job id %s", job.ID)
		seen[job.ID] = true
	}
	f.dispatcher.Wait()
}

func TestJobTimeout(t *testing.T) {
	f := newFixture(t, 2, 200*time.Millisecond)
	input := makeInput(t, map[string]string{"sleep": "5"})

	job, err := f.dispatcher.Submit(submitParams(input))
	require.NoError(t, err)

	f.dispatcher.Wait()

	done, err := f.registry.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, done.Status)
	assert.Contains(t, done.Message, "timed out")
}

func TestBoundedConcurrency(t *testing.T) {
	f := newFixture(t, 1, 0)

	a := makeInput(t, map[string]string{"sleep": "0.3"})
	b := makeInput(t, map[string]string{"sleep": "0.3"})

	jobA, err := f.dispatcher.Submit(submitParams(a))
	require.NoError(t, err)
	jobB, err := f.dispatcher.Submit(submitParams(b))
	require.NoError(t, err)

	// With a single slot, at most one job is running at any moment.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		snapA, err := f.registry.Get(jobA.ID)
		require.NoError(t, err)
		snapB, err := f.registry.Get(jobB.ID)
		require.NoError(t, err)

		running := 0
		for _, s := range []models.JobStatus{snapA.Status, snapB.Status} {
			if s == models.JobStatusRunning {
				running++
			}
		}
		assert.LessOrEqual(t, running, 1)

		if snapA.Status.Terminal() && snapB.Status.Terminal() {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	f.dispatcher.Wait()
	for _, id := range []string{jobA.ID, jobB.ID} {
		j, err := f.registry.Get(id)
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusCompleted, j.Status)
	}
}
