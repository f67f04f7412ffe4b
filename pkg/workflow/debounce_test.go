package workflow

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type saveSpy struct {
	mu    sync.Mutex
	calls []map[string]any
}

func (s *saveSpy) save(_ context.Context, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, fields)
	return nil
}

func (s *saveSpy) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *saveSpy) call(i int) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[i]
}

func TestDebouncer_QuietPeriodMergesEdits(t *testing.T) {
	spy := &saveSpy{}
	d := NewDebouncer(30*time.Millisecond, spy.save, nil)
	defer d.Stop()

	d.Touch(map[string]any{"content": "v1"})
	d.Touch(map[string]any{"content": "v2", "title": "ch 3"})

	// Rapid edits within the window produce a single merged save.
	require.Eventually(t, func() bool { return spy.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, map[string]any{"content": "v2", "title": "ch 3"}, spy.call(0))

	// No stray second save after the window.
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, spy.count())
}

func TestDebouncer_TouchRestartsWindow(t *testing.T) {
	spy := &saveSpy{}
	d := NewDebouncer(50*time.Millisecond, spy.save, nil)
	defer d.Stop()

	d.Touch(map[string]any{"content": "a"})
	time.Sleep(30 * time.Millisecond)
	d.Touch(map[string]any{"content": "b"})
	time.Sleep(30 * time.Millisecond)

	// 60ms elapsed but the window restarted at 30ms; nothing saved yet.
	assert.Equal(t, 0, spy.count())
	require.Eventually(t, func() bool { return spy.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestDebouncer_FlushCancelsPendingTimer(t *testing.T) {
	spy := &saveSpy{}
	d := NewDebouncer(40*time.Millisecond, spy.save, nil)
	defer d.Stop()

	d.Touch(map[string]any{"content": "draft"})
	require.NoError(t, d.Flush(context.Background(), map[string]any{"manual": true}))

	require.Equal(t, 1, spy.count())
	assert.Equal(t, map[string]any{"content": "draft", "manual": true}, spy.call(0))

	// The canceled timer must not fire a second save.
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, 1, spy.count())
}

func TestDebouncer_FlushWithNothingPending(t *testing.T) {
	spy := &saveSpy{}
	d := NewDebouncer(time.Minute, spy.save, nil)
	defer d.Stop()

	require.NoError(t, d.Flush(context.Background(), nil))
	assert.Equal(t, 0, spy.count())
}

func TestDebouncer_StopDropsPending(t *testing.T) {
	spy := &saveSpy{}
	d := NewDebouncer(20*time.Millisecond, spy.save, nil)

	d.Touch(map[string]any{"content": "doomed"})
	d.Stop()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, spy.count())

	// Touches after Stop are ignored.
	d.Touch(map[string]any{"content": "late"})
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, spy.count())
}
