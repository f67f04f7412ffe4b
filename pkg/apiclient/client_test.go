package apiclient

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wmsyw/aiWriter-sub000/pkg/job"
)

func newClient(t *testing.T, url string) *Client {
	t.Helper()
	c, err := New(Config{BaseURL: url, Timeout: 2 * time.Second})
	require.NoError(t, err)
	return c
}

func TestNewRequiresBaseURL(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestSubmitJob(t *testing.T) {
	var gotBody map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/jobs", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]any{"job": map[string]any{
			"id": "j-1", "type": "generation", "status": "queued",
		}})
	}))
	defer ts.Close()

	c := newClient(t, ts.URL)
	j, err := c.SubmitJob(context.Background(), job.TypeGeneration, map[string]any{"chapter_id": "ch-1"})
	require.NoError(t, err)

	assert.Equal(t, "j-1", j.ID)
	assert.Equal(t, job.StatusQueued, j.Status)
	assert.Equal(t, "generation", gotBody["type"])
}

func TestSubmitJobServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":{"message":"unknown job type"}}`))
	}))
	defer ts.Close()

	c := newClient(t, ts.URL)
	_, err := c.SubmitJob(context.Background(), job.Type("mystery"), nil)
	require.Error(t, err)
	assert.True(t, IsSubmissionFailed(err))
	assert.Contains(t, err.Error(), "unknown job type")
}

func TestSubmitJobTransportError(t *testing.T) {
	c := newClient(t, "http://127.0.0.1:1")
	_, err := c.SubmitJob(context.Background(), job.TypeGeneration, nil)
	require.Error(t, err)
	assert.True(t, IsSubmissionFailed(err))
}

func TestSubmitJobRejectsMissingID(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"job": map[string]any{}})
	}))
	defer ts.Close()

	c := newClient(t, ts.URL)
	_, err := c.SubmitJob(context.Background(), job.TypeGeneration, nil)
	require.Error(t, err)
	assert.True(t, IsSubmissionFailed(err))
}

func TestGetJob(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/jobs/j-9", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{"job": map[string]any{
			"id": "j-9", "type": "review_score", "status": "succeeded",
			"output": map[string]any{"avg_score": 7.5},
		}})
	}))
	defer ts.Close()

	c := newClient(t, ts.URL)
	j, err := c.GetJob(context.Background(), "j-9")
	require.NoError(t, err)
	assert.Equal(t, job.StatusSucceeded, j.Status)
	assert.Contains(t, string(j.Output), "avg_score")
}

func TestGetJobNotFound(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"message":"no such job"}}`))
	}))
	defer ts.Close()

	c := newClient(t, ts.URL)
	_, err := c.GetJob(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestGetJobRequiresID(t *testing.T) {
	c := newClient(t, "http://localhost:0")
	_, err := c.GetJob(context.Background(), "  ")
	require.Error(t, err)
}

func TestOpenStream(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/jobs/stream", r.URL.Path)
		w.Header().Set("Content-Type", "application/x-ndjson")
		_, _ = w.Write([]byte(`{"type":"aiwriter.heartbeat.v1"}` + "\n"))
	}))
	defer ts.Close()

	c := newClient(t, ts.URL)
	body, err := c.OpenStream(context.Background())
	require.NoError(t, err)
	defer func() { _ = body.Close() }()

	line, err := bufio.NewReader(body).ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, line, "heartbeat")
}

func TestOpenStreamErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"stream offline"}}`))
	}))
	defer ts.Close()

	c := newClient(t, ts.URL)
	_, err := c.OpenStream(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stream offline")
}

func TestContentRoundTrip(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			assert.Equal(t, "/api/chapters/ch-1", r.URL.Path)
			_ = json.NewEncoder(w).Encode(map[string]any{"content": "draft"})
		case http.MethodPatch:
			var fields map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&fields))
			assert.Equal(t, "approved", fields["review_status"])
			_ = json.NewEncoder(w).Encode(fields)
		}
	}))
	defer ts.Close()

	c := newClient(t, ts.URL)
	ctx := context.Background()

	fields, err := c.GetContent(ctx, "ch-1")
	require.NoError(t, err)
	assert.Equal(t, "draft", fields["content"])

	require.NoError(t, c.PatchContent(ctx, "ch-1", map[string]any{"review_status": "approved"}))
}

func TestGetContentNotFound(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"message":"no such chapter"}}`))
	}))
	defer ts.Close()

	c := newClient(t, ts.URL)
	_, err := c.GetContent(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestPatchContentEmptyIsNoop(t *testing.T) {
	called := false
	ts := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	}))
	defer ts.Close()

	c := newClient(t, ts.URL)
	require.NoError(t, c.PatchContent(context.Background(), "ch-1", nil))
	assert.False(t, called)
}

func TestRateLimitHonorsContext(t *testing.T) {
	c, err := New(Config{BaseURL: "http://localhost:0", RateLimit: 0.0001})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// First request consumes the burst token; the second must wait far
	// longer than the context allows.
	_, _ = c.GetJob(ctx, "a")
	_, err = c.GetJob(ctx, "b")
	require.Error(t, err)
}
