// Package client provides an HTTP client for the colmapd API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pgassner/colmapd/internal/models"
)

// Client talks to a running colmapd instance.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Job is the status payload returned by the server.
type Job struct {
	JobID      string `json:"job_id"`
	Status     string `json:"status"`
	Message    string `json:"message,omitempty"`
	OutputPath string `json:"output_path,omitempty"`
}

// Terminal reports whether the job has finished, successfully or not.
func (j Job) Terminal() bool {
	return models.JobStatus(j.Status).Terminal()
}

// New creates a client. If baseURL is empty, uses the COLMAPD_URL env
// var or defaults to localhost:8000.
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("COLMAPD_URL")
	}
	if baseURL == "" {
		baseURL = "http://localhost:8000"
	}

	timeout := 30 * time.Second
	if t := os.Getenv("COLMAPD_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Submit starts a new processing job from a server-visible input path.
func (c *Client) Submit(ctx context.Context, params models.SubmitParams) (*Job, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/process", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var job Job
	if err := c.do(req, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// Status fetches the current state of a job.
func (c *Client) Status(ctx context.Context, jobID string) (*Job, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/status/"+url.PathEscape(jobID), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	var job Job
	if err := c.do(req, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// Jobs fetches the full registry snapshot.
func (c *Client) Jobs(ctx context.Context) (map[string]Job, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/jobs", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	jobs := make(map[string]Job)
	if err := c.do(req, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// Watch connects to the job's websocket stream and calls fn for every
// update until the job is terminal, the server closes the stream, or
// the context is cancelled. The final update is the terminal state.
func (c *Client) Watch(ctx context.Context, jobID string, fn func(Job)) error {
	wsURL, err := c.watchURL(jobID)
	if err != nil {
		return err
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("job not found: %s", jobID)
		}
		return fmt.Errorf("connect watch stream: %w", err)
	}
	defer conn.Close()

	// Close the connection when the context is cancelled so ReadJSON
	// unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		var job Job
		if err := conn.ReadJSON(&job); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read watch stream: %w", err)
		}
		fn(job)
		if job.Terminal() {
			return nil
		}
	}
}

func (c *Client) watchURL(jobID string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/jobs/" + url.PathEscape(jobID) + "/watch"
	return u.String(), nil
}

// do executes the request and decodes the JSON response, turning error
// payloads into Go errors.
func (c *Client) do(req *http.Request, result any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("server error: %s", apiErr.Error)
		}
		return fmt.Errorf("server error: %s - %s", resp.Status, string(body))
	}

	if result != nil {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}
