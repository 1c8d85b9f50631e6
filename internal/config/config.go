// Package config loads colmapd configuration from an optional YAML file
// and environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration values.
type Config struct {
	// HTTP listen address.
	Addr string `yaml:"addr"`

	// Workspace layout. The three roots default to subdirectories of
	// WorkspaceBase but can be overridden individually.
	WorkspaceBase string `yaml:"workspace_base"`
	IngestRoot    string `yaml:"ingest_root"`
	WorkspaceRoot string `yaml:"workspace_root"`
	OutputRoot    string `yaml:"output_root"`

	// Pipeline execution.
	Script  string `yaml:"script"`
	MaxJobs int    `yaml:"max_jobs"`

	// JobTimeout caps a single pipeline run; zero means unlimited.
	// Set via JobTimeoutName as a Go duration string ("30m").
	JobTimeout     time.Duration `yaml:"-"`
	JobTimeoutName string        `yaml:"job_timeout"`

	// Logging.
	LogFile  string     `yaml:"log_file"`
	LogLevel slog.Level `yaml:"-"`

	// LogLevelName is the textual level from file/env, parsed into LogLevel.
	LogLevelName string `yaml:"log_level"`
}

// Load builds the configuration: defaults, then the YAML file at path
// (if non-empty), then environment variables. Env wins over file.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnv(&cfg)
	cfg.LogLevel = parseLogLevel(cfg.LogLevelName)

	if cfg.JobTimeoutName != "" {
		d, err := time.ParseDuration(cfg.JobTimeoutName)
		if err != nil {
			return Config{}, fmt.Errorf("parse job_timeout: %w", err)
		}
		cfg.JobTimeout = d
	}

	base := cfg.WorkspaceBase
	if cfg.IngestRoot == "" {
		cfg.IngestRoot = filepath.Join(base, "ingest")
	}
	if cfg.WorkspaceRoot == "" {
		cfg.WorkspaceRoot = filepath.Join(base, "colmap_workspace")
	}
	if cfg.OutputRoot == "" {
		cfg.OutputRoot = filepath.Join(base, "nerfstudio_dataset")
	}
	if cfg.Script == "" {
		cfg.Script = filepath.Join(base, "colmap.sh")
	}
	if cfg.MaxJobs < 1 {
		cfg.MaxJobs = 1
	}

	return cfg, nil
}

func defaults() Config {
	return Config{
		Addr:          ":8000",
		WorkspaceBase: "/workspace",
		MaxJobs:       2,
		LogLevelName:  "INFO",
	}
}

func applyEnv(cfg *Config) {
	setEnv(&cfg.Addr, "COLMAPD_ADDR")
	setEnv(&cfg.WorkspaceBase, "COLMAPD_WORKSPACE_BASE")
	setEnv(&cfg.IngestRoot, "COLMAPD_INGEST_DIR")
	setEnv(&cfg.WorkspaceRoot, "COLMAPD_COLMAP_WORKSPACE")
	setEnv(&cfg.OutputRoot, "COLMAPD_OUTPUT_DIR")
	setEnv(&cfg.Script, "COLMAPD_SCRIPT")
	setEnv(&cfg.LogFile, "COLMAPD_LOG_FILE")
	setEnv(&cfg.LogLevelName, "COLMAPD_LOG_LEVEL")

	if v := os.Getenv("COLMAPD_MAX_JOBS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxJobs = n
		}
	}
	setEnv(&cfg.JobTimeoutName, "COLMAPD_JOB_TIMEOUT")
}

func setEnv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
