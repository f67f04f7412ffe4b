package stream

import (
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"github.com/wmsyw/aiWriter-sub000/pkg/job"
)

// terminalSeenCap bounds the remembered terminal ids. Old entries age
// out oldest-first once a context has churned through this many jobs.
const terminalSeenCap = 512

// ReconcilerOption customizes a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithLogger sets the diagnostic logger. Default: nop.
func WithLogger(l *zap.Logger) ReconcilerOption {
	return func(r *Reconciler) { r.log = l }
}

// WithTypePattern restricts reconciliation to job types matching a
// doublestar glob, e.g. "*_extract". Empty matches everything.
func WithTypePattern(pattern string) ReconcilerOption {
	return func(r *Reconciler) { r.typePattern = pattern }
}

// WithOnJob registers a callback invoked once per relevant terminal
// observation. This is where the workflow layer hooks in.
func WithOnJob(fn func(job.Job)) ReconcilerOption {
	return func(r *Reconciler) { r.onJob = fn }
}

// WithOnUpdate registers a callback invoked for every relevant
// observation, terminal or not. Display layers use it to show
// intermediate status.
func WithOnUpdate(fn func(job.Job)) ReconcilerOption {
	return func(r *Reconciler) { r.onUpdate = fn }
}

// Reconciler merges push-stream batches into a local active-job set.
//
// Jobs irrelevant to the configured context key are dropped before the
// merge and never trigger callbacks. Terminal observations are
// absorbing: the job leaves the set and later non-terminal observations
// for the same id (the slower channel catching up) are ignored.
type Reconciler struct {
	contextKey  string
	typePattern string
	log         *zap.Logger
	onJob       func(job.Job)
	onUpdate    func(job.Job)

	mu           sync.Mutex
	set          *job.ActiveSet
	terminalSeen map[string]struct{}
	terminalLog  []string
	closed       bool
	cancel       func()
}

// NewReconciler creates a reconciler for one authoring context. An
// empty contextKey accepts jobs from every context.
func NewReconciler(contextKey string, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		contextKey:   contextKey,
		log:          zap.NewNop(),
		set:          job.NewActiveSet(),
		terminalSeen: map[string]struct{}{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Relevant reports whether a job belongs to this reconciler's context.
func (r *Reconciler) Relevant(j job.Job) bool {
	if r.contextKey != "" && j.Context() != r.contextKey {
		return false
	}
	if r.typePattern != "" {
		ok, err := doublestar.Match(r.typePattern, string(j.Type))
		if err != nil || !ok {
			return false
		}
	}
	return true
}

// Run subscribes to the source. Call Close to tear the subscription
// down when the consuming context is disposed; the stream itself has no
// built-in timeout.
func (r *Reconciler) Run(src Source) error {
	cancel, err := src.Subscribe(r.Apply)
	if err != nil {
		return err
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		cancel()
		return nil
	}
	r.cancel = cancel
	r.mu.Unlock()
	return nil
}

// Apply merges one batch into the active set.
//
// The filter-merge-swap runs under a single lock, so concurrently
// scheduled poll resolutions and batches observe either the old or the
// new set, never a partial merge. Batches arriving after Close are
// ignored.
func (r *Reconciler) Apply(b Batch) {
	r.mu.Lock()

	if r.closed {
		r.mu.Unlock()
		return
	}

	relevant := make([]job.Job, 0, len(b.Jobs))
	var fired []job.Job
	for _, j := range b.Jobs {
		if j.ID == "" || !r.Relevant(j) {
			continue
		}
		if _, done := r.terminalSeen[j.ID]; done {
			// Terminal state already observed for this id; the other
			// channel's late observation is a no-op.
			continue
		}
		if j.Terminal() {
			r.rememberTerminal(j.ID)
			fired = append(fired, j)
		}
		relevant = append(relevant, j)
	}
	r.set = job.Merge(r.set, relevant)
	onJob, onUpdate := r.onJob, r.onUpdate
	r.mu.Unlock()

	if onUpdate != nil {
		for _, j := range relevant {
			onUpdate(j)
		}
	}
	if onJob != nil {
		for _, j := range fired {
			onJob(j)
		}
	}
}

func (r *Reconciler) rememberTerminal(id string) {
	if _, ok := r.terminalSeen[id]; ok {
		return
	}
	r.terminalSeen[id] = struct{}{}
	r.terminalLog = append(r.terminalLog, id)
	if len(r.terminalLog) > terminalSeenCap {
		oldest := r.terminalLog[0]
		r.terminalLog = r.terminalLog[1:]
		delete(r.terminalSeen, oldest)
	}
}

// Observe feeds a single out-of-band observation (e.g. a poll result or
// a freshly submitted job) through the same merge path as a batch.
func (r *Reconciler) Observe(j job.Job) {
	r.Apply(Batch{Jobs: []job.Job{j}})
}

// Snapshot returns the in-flight jobs in first-insertion order.
func (r *Reconciler) Snapshot() []job.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.set.Jobs()
}

// InFlight reports whether anything is still running for this context.
func (r *Reconciler) InFlight() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.set.Len() > 0
}

// Close tears down the subscription. Late-arriving batches are ignored.
func (r *Reconciler) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}
