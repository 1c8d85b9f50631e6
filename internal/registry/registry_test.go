package registry_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/pgassner/colmapd/internal/models"
	"github.com/pgassner/colmapd/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func queuedJob(id string) models.Job {
	return models.Job{
		ID:      id,
		Status:  models.JobStatusQueued,
		Message: "Job is queued for processing",
	}
}

func TestCreateAndGet(t *testing.T) {
	reg := registry.New()

	require.NoError(t, reg.Create(queuedJob("job-1")))

	job, err := reg.Get("job-1")
	require.NoError(t, err)
	assert.Equal(t, "job-1", job.ID)
	assert.Equal(t, models.JobStatusQueued, job.Status)
}

func TestCreateDuplicate(t *testing.T) {
	reg := registry.New()

	require.NoError(t, reg.Create(queuedJob("job-1")))

	err := reg.Create(queuedJob("job-1"))
	require.ErrorIs(t, err, registry.ErrDuplicateJob)
}

func TestGetUnknown(t *testing.T) {
	reg := registry.New()

	_, err := reg.Get("never-submitted")
	require.ErrorIs(t, err, registry.ErrNotFound)
}

func TestUpdateUnknown(t *testing.T) {
	reg := registry.New()

	err := reg.Update("nope", registry.Mutation{Status: models.JobStatusRunning})
	require.ErrorIs(t, err, registry.ErrNotFound)
}

func TestUpdateLifecycle(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Create(queuedJob("job-1")))

	require.NoError(t, reg.Update("job-1", registry.Mutation{
		Status:  models.JobStatusRunning,
		Message: "Pipeline is running",
	}))

	job, err := reg.Get("job-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, job.Status)
	assert.Empty(t, job.OutputPath)
	assert.Nil(t, job.CompletedAt)

	require.NoError(t, reg.Update("job-1", registry.Mutation{
		Status:     models.JobStatusCompleted,
		Message:    "Processing completed successfully",
		OutputPath: "/workspace/nerfstudio_dataset/job-1",
	}))

	job, err = reg.Get("job-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, "/workspace/nerfstudio_dataset/job-1", job.OutputPath)
	require.NotNil(t, job.CompletedAt)
}

func TestStatusIsMonotonic(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Create(queuedJob("job-1")))
	require.NoError(t, reg.Update("job-1", registry.Mutation{Status: models.JobStatusFailed, Message: "no images found"}))

	// A terminal job never changes status again.
	err := reg.Update("job-1", registry.Mutation{Status: models.JobStatusCompleted, OutputPath: "/out"})
	require.ErrorIs(t, err, registry.ErrTerminal)

	err = reg.Update("job-1", registry.Mutation{Status: models.JobStatusQueued})
	require.ErrorIs(t, err, registry.ErrTerminal)

	job, err := reg.Get("job-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Equal(t, "no images found", job.Message)
	assert.Empty(t, job.OutputPath, "output_path must stay absent on failed jobs")
}

func TestOutputPathOnlyOnCompleted(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Create(queuedJob("job-1")))

	// OutputPath is ignored unless the job transitions to completed.
	require.NoError(t, reg.Update("job-1", registry.Mutation{
		Status:     models.JobStatusRunning,
		OutputPath: "/should/not/apply",
	}))

	job, err := reg.Get("job-1")
	require.NoError(t, err)
	assert.Empty(t, job.OutputPath)
}

func TestListSnapshot(t *testing.T) {
	reg := registry.New()
	for i := 0; i < 3; i++ {
		require.NoError(t, reg.Create(queuedJob(fmt.Sprintf("job-%d", i))))
	}
	require.NoError(t, reg.Update("job-0", registry.Mutation{Status: models.JobStatusCompleted, OutputPath: "/out/job-0"}))
	require.NoError(t, reg.Update("job-1", registry.Mutation{Status: models.JobStatusCompleted, OutputPath: "/out/job-1"}))

	jobs := reg.List()
	require.Len(t, jobs, 3)
	assert.Equal(t, models.JobStatusCompleted, jobs["job-0"].Status)
	assert.Equal(t, models.JobStatusCompleted, jobs["job-1"].Status)
	assert.Equal(t, models.JobStatusQueued, jobs["job-2"].Status)

	// The snapshot is a copy: later updates don't leak into it.
	require.NoError(t, reg.Update("job-2", registry.Mutation{Status: models.JobStatusFailed, Message: "boom"}))
	assert.Equal(t, models.JobStatusQueued, jobs["job-2"].Status)
}

func TestConcurrentUpdates(t *testing.T) {
	reg := registry.New()

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("job-%d", i)
		require.NoError(t, reg.Create(queuedJob(id)))

		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = reg.Update(id, registry.Mutation{Status: models.JobStatusRunning})
			_ = reg.Update(id, registry.Mutation{
				Status:     models.JobStatusCompleted,
				OutputPath: "/out/" + id,
			})
		}()
	}
	wg.Wait()

	jobs := reg.List()
	require.Len(t, jobs, n)
	for id, job := range jobs {
		assert.Equal(t, models.JobStatusCompleted, job.Status, "job %s", id)
		assert.Equal(t, "/out/"+id, job.OutputPath)
	}
}
