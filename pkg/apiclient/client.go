// Package apiclient is the HTTP client for the aiWriter backend.
//
// It covers the four external interfaces the tracker depends on: job
// submission, single-job status fetch, the long-lived job status push
// stream, and the chapter content source of truth. The client holds no
// job state; callers feed its results into the active set and the
// workflow layer.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/wmsyw/aiWriter-sub000/pkg/job"
)

// Config configures client behavior.
type Config struct {
	// BaseURL is the backend root, e.g. "http://localhost:8787".
	BaseURL string

	// Timeout bounds each individual request except the push stream,
	// which is expected to be long-lived. Default: 30s.
	Timeout time.Duration

	// RateLimit is the maximum requests per second to the backend.
	// Zero means unlimited.
	RateLimit float64

	// HTTPClient overrides the transport. Mostly for tests.
	HTTPClient *http.Client
}

// Client talks to the aiWriter backend API.
//
// Client is safe for concurrent use.
type Client struct {
	baseURL   string
	http      *http.Client
	streaming *http.Client
	limiter   *rate.Limiter
}

// New creates a backend client.
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("backend base URL is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid backend base URL: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}

	c := &Client{
		baseURL: base,
		http:    hc,
		// The stream request must not carry a client-wide timeout.
		streaming: &http.Client{Transport: hc.Transport},
	}
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return c, nil
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.New().String())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

type jobEnvelope struct {
	Job job.Job `json:"job"`
}

// SubmitJob creates a new backend job of the given type.
//
// Any transport failure or non-success response yields a
// *SubmissionError and no local state change; on success the returned
// job carries the server-assigned id in its initial non-terminal status.
// The caller is responsible for inserting it into any active set.
func (c *Client) SubmitJob(ctx context.Context, typ job.Type, input map[string]any) (job.Job, error) {
	if err := c.wait(ctx); err != nil {
		return job.Job{}, &SubmissionError{Err: err}
	}

	payload, err := json.Marshal(map[string]any{"type": typ, "input": input})
	if err != nil {
		return job.Job{}, &SubmissionError{Err: fmt.Errorf("encode request: %w", err)}
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/jobs", bytes.NewReader(payload))
	if err != nil {
		return job.Job{}, &SubmissionError{Err: err}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return job.Job{}, &SubmissionError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return job.Job{}, &SubmissionError{StatusCode: resp.StatusCode, Err: errFromBody(resp)}
	}

	var env jobEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return job.Job{}, &SubmissionError{Err: fmt.Errorf("decode response: %w", err)}
	}
	if env.Job.ID == "" {
		return job.Job{}, &SubmissionError{Err: fmt.Errorf("backend returned a job without an id")}
	}
	return env.Job, nil
}

// GetJob fetches the current status of a single job.
func (c *Client) GetJob(ctx context.Context, id string) (job.Job, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return job.Job{}, fmt.Errorf("job id is required")
	}
	if err := c.wait(ctx); err != nil {
		return job.Job{}, err
	}

	req, err := c.newRequest(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(id), nil)
	if err != nil {
		return job.Job{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return job.Job{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return job.Job{}, &NotFoundError{Resource: "job", Key: id}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return job.Job{}, &StatusError{StatusCode: resp.StatusCode, Err: errFromBody(resp)}
	}

	var env jobEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return job.Job{}, fmt.Errorf("decode job response: %w", err)
	}
	return env.Job, nil
}

// OpenStream opens the long-lived job status push stream.
//
// The returned body is a JSONL record stream (see pkg/stream). It has
// no read deadline; the caller tears it down by closing the body or
// canceling ctx when the consuming context is disposed.
func (c *Client) OpenStream(ctx context.Context) (io.ReadCloser, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/jobs/stream", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/x-ndjson")

	resp, err := c.streaming.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open job stream: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := errFromBody(resp)
		_ = resp.Body.Close()
		return nil, &StatusError{StatusCode: resp.StatusCode, Err: err}
	}
	return resp.Body, nil
}

// GetContent reads chapter content from the source of truth.
func (c *Client) GetContent(ctx context.Context, contextKey string) (map[string]any, error) {
	contextKey = strings.TrimSpace(contextKey)
	if contextKey == "" {
		return nil, fmt.Errorf("context key is required")
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, http.MethodGet, "/api/chapters/"+url.PathEscape(contextKey), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, &NotFoundError{Resource: "chapter", Key: contextKey}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Err: errFromBody(resp)}
	}

	var fields map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&fields); err != nil {
		return nil, fmt.Errorf("decode chapter response: %w", err)
	}
	return fields, nil
}

// PatchContent updates a subset of chapter fields in the source of truth.
func (c *Client) PatchContent(ctx context.Context, contextKey string, fields map[string]any) error {
	contextKey = strings.TrimSpace(contextKey)
	if contextKey == "" {
		return fmt.Errorf("context key is required")
	}
	if len(fields) == 0 {
		return nil
	}
	if err := c.wait(ctx); err != nil {
		return err
	}

	payload, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode chapter patch: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPatch, "/api/chapters/"+url.PathEscape(contextKey), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{StatusCode: resp.StatusCode, Err: errFromBody(resp)}
	}
	return nil
}

// errFromBody extracts a short error message from a non-success response.
func errFromBody(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := strings.TrimSpace(string(b))
	if msg == "" {
		return fmt.Errorf("backend returned %s", resp.Status)
	}
	var apiErr struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(b, &apiErr) == nil && apiErr.Error.Message != "" {
		msg = apiErr.Error.Message
	}
	return fmt.Errorf("backend returned %s: %s", resp.Status, msg)
}
