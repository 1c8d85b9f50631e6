// Package server exposes the job orchestration HTTP API.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/pgassner/colmapd/internal/models"
	"github.com/pgassner/colmapd/internal/registry"
	"github.com/pgassner/colmapd/internal/service"
	"github.com/pgassner/colmapd/internal/workspace"
)

// maxUploadMemory caps the in-memory portion of multipart parsing;
// larger files spill to disk.
const maxUploadMemory = 32 << 20

// Server routes HTTP requests to the dispatcher and registry.
type Server struct {
	dispatcher *service.Dispatcher
	registry   *registry.Registry
	logger     *slog.Logger

	upgrader websocket.Upgrader

	// watchInterval is the poll period for the websocket watch stream.
	watchInterval time.Duration
}

// New creates a server over the given dispatcher and registry.
func New(d *service.Dispatcher, r *registry.Registry, logger *slog.Logger) *Server {
	return &Server{
		dispatcher: d,
		registry:   r,
		logger:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Allow all origins for local dev, same posture as the
			// CORS middleware.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		watchInterval: time.Second,
	}
}

// Handler builds the route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(corsAllowAll)
	r.Use(requestLogger(s.logger))

	r.Post("/process", s.handleProcess)
	r.Post("/process/upload", s.handleProcessUpload)
	r.Post("/upload", s.handleUpload)
	r.Get("/status/{jobID}", s.handleStatus)
	r.Get("/jobs", s.handleJobs)
	r.Get("/jobs/{jobID}/watch", s.handleWatch)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	return r
}

// jobStatusResponse is the per-job payload of the status surface.
type jobStatusResponse struct {
	JobID      string           `json:"job_id"`
	Status     models.JobStatus `json:"status"`
	Message    string           `json:"message,omitempty"`
	OutputPath string           `json:"output_path,omitempty"`
}

func statusResponse(job models.Job) jobStatusResponse {
	return jobStatusResponse{
		JobID:      job.ID,
		Status:     job.Status,
		Message:    job.Message,
		OutputPath: job.OutputPath,
	}
}

// handleProcess starts a new processing job from a path already present
// on storage. It returns as soon as the job is queued.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var params models.SubmitParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	params.Normalize()
	if err := params.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if params.InputPath == "" {
		s.respondError(w, http.StatusBadRequest, "input_path is required")
		return
	}

	job, err := s.dispatcher.Submit(params)
	if err != nil {
		s.submitError(w, err)
		return
	}

	s.respondJSON(w, http.StatusAccepted, statusResponse(job))
}

// handleUpload stores uploaded files under a fresh job's ingest
// directory without starting processing.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	id, paths, err := s.dispatcher.Prepare()
	if err != nil {
		s.submitError(w, err)
		return
	}

	n, err := s.saveUploads(r, paths.IngestDir)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]string{
		"job_id":  id,
		"message": fmt.Sprintf("%d file(s) uploaded successfully", n),
	})
}

// handleProcessUpload combines upload and submission: files are staged
// directly into the job's ingest directory and the job is dispatched.
func (s *Server) handleProcessUpload(w http.ResponseWriter, r *http.Request) {
	id, paths, err := s.dispatcher.Prepare()
	if err != nil {
		s.submitError(w, err)
		return
	}

	n, err := s.saveUploads(r, paths.IngestDir)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if n == 0 {
		s.respondError(w, http.StatusBadRequest, "at least one file is required")
		return
	}

	params := models.SubmitParams{
		InputPath:      paths.IngestDir,
		Mode:           r.FormValue("mode"),
		GPU:            r.FormValue("gpu"),
		RenderPipeline: r.FormValue("render_pipeline"),
		Scale:          r.FormValue("scale"),
	}
	if raw := r.FormValue("config"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &params.Config); err != nil {
			s.respondError(w, http.StatusBadRequest, "config must be a JSON object")
			return
		}
	}
	params.Normalize()
	if err := params.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := s.dispatcher.Dispatch(id, paths, params)
	if err != nil {
		s.submitError(w, err)
		return
	}

	s.respondJSON(w, http.StatusAccepted, statusResponse(job))
}

// handleStatus reports a single job. Unknown IDs are a 404, never an
// empty record.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	job, err := s.registry.Get(id)
	if err != nil {
		s.respondError(w, http.StatusNotFound, "job not found")
		return
	}
	s.respondJSON(w, http.StatusOK, statusResponse(job))
}

// handleJobs returns a snapshot of the whole registry.
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	jobs := s.registry.List()
	resp := make(map[string]jobStatusResponse, len(jobs))
	for id, job := range jobs {
		resp[id] = statusResponse(job)
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// saveUploads writes all multipart files into dir and returns the count.
func (s *Server) saveUploads(r *http.Request, dir string) (int, error) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		return 0, fmt.Errorf("parse multipart form: %w", err)
	}

	n := 0
	for _, headers := range r.MultipartForm.File {
		for _, hdr := range headers {
			if err := saveUpload(hdr, dir); err != nil {
				return n, err
			}
			n++
		}
	}
	return n, nil
}

func saveUpload(hdr *multipart.FileHeader, dir string) error {
	src, err := hdr.Open()
	if err != nil {
		return fmt.Errorf("open upload %s: %w", hdr.Filename, err)
	}
	defer src.Close()

	// Strip any path components from the client-supplied name.
	name := filepath.Base(filepath.Clean(hdr.Filename))
	dst, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	if _, err := dst.ReadFrom(src); err != nil {
		dst.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	return dst.Close()
}

// submitError maps synchronous submission failures onto status codes.
func (s *Server) submitError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, workspace.ErrInputNotFound):
		s.respondError(w, http.StatusNotFound, err.Error())
	default:
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("failed to encode response", "error", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, msg string) {
	s.respondJSON(w, status, map[string]string{"error": msg})
}
