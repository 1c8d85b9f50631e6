// Package main provides the colmapd reconstruction job server.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pgassner/colmapd/internal/config"
	"github.com/pgassner/colmapd/internal/pipeline"
	"github.com/pgassner/colmapd/internal/registry"
	"github.com/pgassner/colmapd/internal/server"
	"github.com/pgassner/colmapd/internal/service"
	"github.com/pgassner/colmapd/internal/workspace"
)

const version = "0.1.0"

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	// Optional .env for local development; env vars win either way.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger, cleanup := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer cleanup()
	slog.SetDefault(logger)

	logger.Info("colmapd starting",
		"version", version,
		"addr", cfg.Addr,
		"script", cfg.Script,
		"max_jobs", cfg.MaxJobs,
	)

	reg := registry.New()
	alloc := workspace.NewAllocator(cfg.IngestRoot, cfg.WorkspaceRoot, cfg.OutputRoot)
	invoker := pipeline.New(cfg.Script)
	dispatcher := service.New(reg, alloc, invoker, cfg.MaxJobs, cfg.JobTimeout)

	srv := server.New(dispatcher, reg, logger)

	httpServer := &http.Server{
		Addr:         cfg.Addr,
		Handler:      srv.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // watch streams stay open until the job finishes
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	// In-flight pipeline processes are not aborted; their registry
	// state is lost with the process either way.
	logger.Info("server stopped")
}
