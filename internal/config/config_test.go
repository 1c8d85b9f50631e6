package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pgassner/colmapd/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8000", cfg.Addr)
	assert.Equal(t, "/workspace/ingest", cfg.IngestRoot)
	assert.Equal(t, "/workspace/colmap_workspace", cfg.WorkspaceRoot)
	assert.Equal(t, "/workspace/nerfstudio_dataset", cfg.OutputRoot)
	assert.Equal(t, "/workspace/colmap.sh", cfg.Script)
	assert.Equal(t, 2, cfg.MaxJobs)
	assert.Zero(t, cfg.JobTimeout)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("COLMAPD_ADDR", ":9000")
	t.Setenv("COLMAPD_WORKSPACE_BASE", "/srv/recon")
	t.Setenv("COLMAPD_SCRIPT", "/opt/bin/colmap.sh")
	t.Setenv("COLMAPD_MAX_JOBS", "8")
	t.Setenv("COLMAPD_JOB_TIMEOUT", "45m")
	t.Setenv("COLMAPD_LOG_LEVEL", "debug")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, "/srv/recon/ingest", cfg.IngestRoot)
	assert.Equal(t, "/opt/bin/colmap.sh", cfg.Script)
	assert.Equal(t, 8, cfg.MaxJobs)
	assert.Equal(t, 45*time.Minute, cfg.JobTimeout)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "colmapd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
addr: ":8100"
workspace_base: /mnt/recon
ingest_root: /mnt/fast/ingest
max_jobs: 4
job_timeout: 2h
log_level: warn
`), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":8100", cfg.Addr)
	assert.Equal(t, "/mnt/fast/ingest", cfg.IngestRoot)
	assert.Equal(t, "/mnt/recon/colmap_workspace", cfg.WorkspaceRoot)
	assert.Equal(t, 4, cfg.MaxJobs)
	assert.Equal(t, 2*time.Hour, cfg.JobTimeout)
	assert.Equal(t, slog.LevelWarn, cfg.LogLevel)
}

func TestEnvWinsOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "colmapd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("addr: \":8100\"\n"), 0o644))

	t.Setenv("COLMAPD_ADDR", ":8200")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":8200", cfg.Addr)
}

func TestLoadBadTimeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "colmapd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("job_timeout: soon\n"), 0o644))

	_, err := config.Load(path)
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
