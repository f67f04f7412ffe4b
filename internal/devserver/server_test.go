package devserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wmsyw/aiWriter-sub000/pkg/apiclient"
	"github.com/wmsyw/aiWriter-sub000/pkg/job"
	"github.com/wmsyw/aiWriter-sub000/pkg/poll"
	"github.com/wmsyw/aiWriter-sub000/pkg/stream"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	srv := New("127.0.0.1", 0, Options{StepDelay: 10 * time.Millisecond})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func newTestClient(t *testing.T, ts *httptest.Server) *apiclient.Client {
	t.Helper()
	c, err := apiclient.New(apiclient.Config{BaseURL: ts.URL, Timeout: 5 * time.Second})
	require.NoError(t, err)
	return c
}

func TestSubmitThenPollToCompletion(t *testing.T) {
	_, ts := newTestServer(t)
	client := newTestClient(t, ts)
	ctx := context.Background()

	j, err := client.SubmitJob(ctx, job.TypeGeneration, map[string]any{"chapter_id": "ch-1"})
	require.NoError(t, err)
	require.NotEmpty(t, j.ID)
	assert.Equal(t, job.StatusQueued, j.Status)

	var transitions []job.Status
	output, err := poll.UntilTerminal(ctx, client, j.ID, poll.Options{
		Interval:    5 * time.Millisecond,
		MaxAttempts: 200,
		OnStatusChange: func(s job.Status) {
			transitions = append(transitions, s)
		},
	})
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(output, &out))
	assert.Equal(t, "generated chapter content", out["content"])
	assert.Contains(t, transitions, job.StatusSucceeded)
}

func TestSubmitRejectsUnknownType(t *testing.T) {
	_, ts := newTestServer(t)
	client := newTestClient(t, ts)

	_, err := client.SubmitJob(context.Background(), job.Type("mystery"), nil)
	require.Error(t, err)
	assert.True(t, apiclient.IsSubmissionFailed(err))
}

func TestGetJobNotFound(t *testing.T) {
	_, ts := newTestServer(t)
	client := newTestClient(t, ts)

	_, err := client.GetJob(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, apiclient.IsNotFound(err))
}

func TestStreamDeliversLifecycle(t *testing.T) {
	_, ts := newTestServer(t)
	client := newTestClient(t, ts)
	ctx := context.Background()

	body, err := client.OpenStream(ctx)
	require.NoError(t, err)
	defer func() { _ = body.Close() }()

	j, err := client.SubmitJob(ctx, job.TypeReviewScore, map[string]any{"chapter_id": "ch-2"})
	require.NoError(t, err)

	dec := stream.NewDecoder(body)
	deadline := time.After(5 * time.Second)
	seen := map[job.Status]bool{}
	for !seen[job.StatusSucceeded] {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for terminal status on stream")
		default:
		}
		batch, err := dec.NextBatch()
		require.NoError(t, err)
		for _, got := range batch.Jobs {
			if got.ID == j.ID {
				seen[got.Status] = true
			}
		}
	}
	assert.True(t, seen[job.StatusQueued] || seen[job.StatusRunning])
}

func TestChapterRoundTrip(t *testing.T) {
	srv, ts := newTestServer(t)
	client := newTestClient(t, ts)
	ctx := context.Background()

	srv.SeedChapter("ch-9", map[string]any{"content": "first draft"})

	ch, err := client.GetContent(ctx, "ch-9")
	require.NoError(t, err)
	assert.Equal(t, "first draft", ch["content"])

	require.NoError(t, client.PatchContent(ctx, "ch-9", map[string]any{"review_status": "approved"}))

	ch, err = client.GetContent(ctx, "ch-9")
	require.NoError(t, err)
	assert.Equal(t, "approved", ch["review_status"])
	assert.Equal(t, "first draft", ch["content"])
}

func TestChapterConcurrentPatchAndGet(t *testing.T) {
	srv, ts := newTestServer(t)
	client := newTestClient(t, ts)
	ctx := context.Background()

	srv.SeedChapter("ch-7", map[string]any{"content": "draft"})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			err := client.PatchContent(ctx, "ch-7", map[string]any{
				"review_status": "approved",
				"revision":      i,
			})
			assert.NoError(t, err)
		}(i)
		go func() {
			defer wg.Done()
			ch, err := client.GetContent(ctx, "ch-7")
			if assert.NoError(t, err) {
				assert.Equal(t, "draft", ch["content"])
			}
		}()
	}
	wg.Wait()

	ch, err := client.GetContent(ctx, "ch-7")
	require.NoError(t, err)
	assert.Equal(t, "approved", ch["review_status"])
}

func TestChapterNotFound(t *testing.T) {
	_, ts := newTestServer(t)
	client := newTestClient(t, ts)

	_, err := client.GetContent(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, apiclient.IsNotFound(err))
}

func TestErrorEnvelopeShape(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/does-not-exist")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	var body errorBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "NOT_FOUND", body.Error.Code)
	assert.NotEmpty(t, body.Error.Message)
}

func TestMethodNotAllowed(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/jobs/stream", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
