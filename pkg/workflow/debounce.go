package workflow

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultQuietPeriod is the autosave debounce window.
const DefaultQuietPeriod = 2 * time.Second

// SaveFunc persists a set of chapter fields.
type SaveFunc func(ctx context.Context, fields map[string]any) error

// Debouncer decouples rapid content edits from persistence: edits
// accumulate until a quiet period elapses, then one save fires with the
// merged fields. An explicit manual save bypasses the window, canceling
// any pending timer.
//
// Debouncer is safe for concurrent use.
type Debouncer struct {
	quiet time.Duration
	save  SaveFunc
	log   *zap.Logger

	mu      sync.Mutex
	timer   *time.Timer
	pending map[string]any
	stopped bool
}

// NewDebouncer creates a debouncer around save. A non-positive quiet
// period uses DefaultQuietPeriod.
func NewDebouncer(quiet time.Duration, save SaveFunc, log *zap.Logger) *Debouncer {
	if quiet <= 0 {
		quiet = DefaultQuietPeriod
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Debouncer{quiet: quiet, save: save, log: log}
}

// Touch merges fields into the pending save and restarts the quiet
// period.
func (d *Debouncer) Touch(fields map[string]any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	if d.pending == nil {
		d.pending = map[string]any{}
	}
	for k, v := range fields {
		d.pending[k] = v
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.quiet, d.fire)
}

// fire runs on the timer goroutine after a full quiet period.
func (d *Debouncer) fire() {
	d.mu.Lock()
	if d.stopped || d.pending == nil {
		d.mu.Unlock()
		return
	}
	fields := d.pending
	d.pending = nil
	d.timer = nil
	d.mu.Unlock()

	if err := d.save(context.Background(), fields); err != nil {
		d.log.Warn("debounced save failed", zap.Error(err))
	}
}

// Flush performs the explicit manual save: it cancels any pending
// timer and saves the accumulated fields (merged with extra) now.
// Safe to invoke concurrently with a pending debounce window.
func (d *Debouncer) Flush(ctx context.Context, extra map[string]any) error {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	fields := d.pending
	d.pending = nil
	if fields == nil && len(extra) > 0 {
		fields = map[string]any{}
	}
	for k, v := range extra {
		fields[k] = v
	}
	d.mu.Unlock()

	if len(fields) == 0 {
		return nil
	}
	return d.save(ctx, fields)
}

// Stop cancels any pending save and rejects further touches. Pending
// fields are dropped; call Flush first to keep them.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = nil
}
