package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wmsyw/aiWriter-sub000/pkg/job"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRecordAndList(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, job.Job{
		ID: "j1", Type: job.TypeGeneration, Status: job.StatusSucceeded, ContextKey: "ch-1",
	}))
	require.NoError(t, s.Record(ctx, job.Job{
		ID: "j2", Type: job.TypeReviewScore, Status: job.StatusFailed, Error: "model unavailable",
	}))

	entries, err := s.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// newest first
	assert.Equal(t, "j2", entries[0].JobID)
	assert.Equal(t, job.StatusFailed, entries[0].Status)
	assert.Equal(t, "model unavailable", entries[0].Error)
	assert.Equal(t, "j1", entries[1].JobID)
	assert.Equal(t, "ch-1", entries[1].ContextKey)
	assert.False(t, entries[1].RecordedAt.IsZero())
}

func TestRecordRejectsNonTerminal(t *testing.T) {
	s := openTestStore(t)

	err := s.Record(context.Background(), job.Job{
		ID: "j1", Type: job.TypeGeneration, Status: job.StatusRunning,
	})
	require.Error(t, err)
}

func TestRecordUpsertsDuplicates(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	j := job.Job{ID: "j1", Type: job.TypeGeneration, Status: job.StatusSucceeded}
	require.NoError(t, s.Record(ctx, j))
	j.Status = job.StatusFailed
	j.Error = "late failure"
	require.NoError(t, s.Record(ctx, j))

	entries, err := s.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, job.StatusFailed, entries[0].Status)
	assert.Equal(t, "late failure", entries[0].Error)
}

func TestListLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Record(ctx, job.Job{
			ID: id, Type: job.TypeGeneration, Status: job.StatusSucceeded,
		}))
	}

	entries, err := s.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestGC(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, job.Job{
		ID: "old", Type: job.TypeGeneration, Status: job.StatusSucceeded,
	}))
	// Backdate the row so the cutoff catches it.
	_, err := s.db.ExecContext(ctx, `UPDATE job_history SET recorded_at = ? WHERE job_id = 'old';`,
		time.Now().UTC().Add(-48*time.Hour).Format(time.RFC3339Nano))
	require.NoError(t, err)
	require.NoError(t, s.Record(ctx, job.Job{
		ID: "fresh", Type: job.TypeGeneration, Status: job.StatusSucceeded,
	}))

	deleted, err := s.GC(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	entries, err := s.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "fresh", entries[0].JobID)
}

func TestGCRejectsNonPositiveAge(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GC(context.Background(), 0)
	require.Error(t, err)
}
