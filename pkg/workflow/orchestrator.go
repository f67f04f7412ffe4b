// Package workflow sits above the two job update channels and drives
// type-specific side effects and follow-on workflows from terminal job
// observations: content refreshes, branch iteration rounds, review
// accept/reject gating, and continuity scoring.
package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wmsyw/aiWriter-sub000/pkg/continuity"
	"github.com/wmsyw/aiWriter-sub000/pkg/job"
	"github.com/wmsyw/aiWriter-sub000/pkg/review"
)

// seenCap bounds the per-orchestrator dedup ring for terminal side
// effects. Push and poll may both deliver the same terminal job; the
// first observation wins and the second is a no-op.
const seenCap = 256

// ContentStore is the external source of truth for chapter content.
// The orchestrator calls it on relevant terminal events but owns none
// of its storage. *apiclient.Client satisfies this.
type ContentStore interface {
	GetContent(ctx context.Context, contextKey string) (map[string]any, error)
	PatchContent(ctx context.Context, contextKey string, fields map[string]any) error
}

// Submitter creates new backend jobs. *apiclient.Client satisfies this.
type Submitter interface {
	SubmitJob(ctx context.Context, typ job.Type, input map[string]any) (job.Job, error)
}

// Recorder persists terminal job observations for the local history
// view. Optional; *history.Store satisfies this.
type Recorder interface {
	Record(ctx context.Context, j job.Job) error
}

// BadgeState is the non-blocking status chip for a post-process task.
type BadgeState string

const (
	BadgeIdle      BadgeState = "idle"
	BadgeRunning   BadgeState = "running"
	BadgeSucceeded BadgeState = "succeeded"
	BadgeFailed    BadgeState = "failed"
)

// Badge is one post-process status chip. Message carries the raw
// failure text for hover/inspection; it never interrupts the workflow.
type Badge struct {
	State   BadgeState `json:"state"`
	Message string     `json:"message,omitempty"`
}

// Report is the stored outcome of a consistency or canon check.
// A failed report is a retryable error state, not a dead end.
type Report struct {
	Output     json.RawMessage `json:"output,omitempty"`
	Err        string          `json:"error,omitempty"`
	ReceivedAt time.Time       `json:"received_at"`
}

// Failed reports whether this report represents a retryable failure.
func (r Report) Failed() bool { return r.Err != "" }

// Branch is one generated branch candidate, annotated with its
// continuity gate result.
type Branch struct {
	Content         string            `json:"content"`
	Summary         string            `json:"summary,omitempty"`
	ContinuityScore float64           `json:"continuity_score"`
	Issues          []string          `json:"issues,omitempty"`
	Gate            continuity.Result `json:"gate"`
}

// Config assembles an Orchestrator.
type Config struct {
	// ContextKey is the chapter this orchestrator works on.
	ContextKey string

	Content  ContentStore
	Submit   Submitter
	Recorder Recorder
	Logger   *zap.Logger

	// Gate holds the continuity thresholds. Validated at construction.
	Gate continuity.Thresholds

	// Labels maps review dimension keys to display labels.
	Labels map[string]string

	// FeedbackCacheSize bounds the composed-feedback memo. Default: 64.
	FeedbackCacheSize int
}

// Orchestrator owns the workflow state for a single authoring context:
// the current review, branch candidates, check reports, post-process
// badges, and the iteration round counter.
//
// All methods are safe for concurrent use. Side effects for a given job
// id are idempotent because the two update channels give no ordering
// guarantee at terminal time.
type Orchestrator struct {
	contextKey string
	content    ContentStore
	submit     Submitter
	recorder   Recorder
	log        *zap.Logger
	gate       continuity.Thresholds
	labels     map[string]string
	feedback   *Cache

	mu            sync.Mutex
	seen          map[string]struct{}
	seenOrder     []string
	latestContent map[string]any
	branches      []Branch
	currentReview *review.Normalized
	reviewAt      time.Time
	reviewFresh   bool
	selected      map[int]struct{}
	pendingNotes  string
	round         int
	reports       map[job.Type]Report
	badges        map[job.Type]Badge
}

// New builds an orchestrator. Invalid continuity thresholds fail fast
// here rather than at classification time.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.ContextKey == "" {
		return nil, fmt.Errorf("workflow context key is required")
	}
	if cfg.Content == nil {
		return nil, fmt.Errorf("content store is required")
	}
	if cfg.Gate == (continuity.Thresholds{}) {
		cfg.Gate = continuity.DefaultThresholds()
	}
	if err := cfg.Gate.Validate(); err != nil {
		return nil, err
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	cacheSize := cfg.FeedbackCacheSize
	if cacheSize <= 0 {
		cacheSize = 64
	}

	o := &Orchestrator{
		contextKey: cfg.ContextKey,
		content:    cfg.Content,
		submit:     cfg.Submit,
		recorder:   cfg.Recorder,
		log:        log,
		gate:       cfg.Gate,
		labels:     cfg.Labels,
		feedback:   NewCache(cacheSize),
		seen:       map[string]struct{}{},
		selected:   map[int]struct{}{},
		round:      1,
		reports:    map[job.Type]Report{},
		badges:     map[job.Type]Badge{},
	}
	for _, pt := range job.PostProcessTypes() {
		o.badges[pt] = Badge{State: BadgeIdle}
	}
	return o, nil
}

// HandleJob routes any job observation: non-terminal post-process jobs
// flip their badge to running; terminal jobs dispatch side effects.
// This is the natural hook for stream.WithOnJob plus reconciler
// snapshots.
func (o *Orchestrator) HandleJob(ctx context.Context, j job.Job) error {
	if !j.Terminal() {
		if job.ClassOf(j.Type) == job.ClassPostProcess {
			o.mu.Lock()
			o.badges[j.Type] = Badge{State: BadgeRunning}
			o.mu.Unlock()
		}
		return nil
	}
	return o.OnTerminal(ctx, j)
}

// OnTerminal performs exactly one type-specific side effect for a
// terminal job. A second observation of the same job id is a no-op.
func (o *Orchestrator) OnTerminal(ctx context.Context, j job.Job) error {
	o.mu.Lock()
	if _, dup := o.seen[j.ID]; dup {
		o.mu.Unlock()
		return nil
	}
	o.rememberSeen(j.ID)
	o.mu.Unlock()

	var err error
	switch job.ClassOf(j.Type) {
	case job.ClassGeneration:
		err = o.onGeneration(ctx, j)
	case job.ClassBranch:
		err = o.onBranchGeneration(j)
	case job.ClassReview:
		err = o.onReviewScore(j)
	case job.ClassReport:
		o.onReport(j)
	case job.ClassPostProcess:
		o.onPostProcess(j)
	default:
		o.log.Debug("ignoring terminal job of unknown type",
			zap.String("job_id", j.ID),
			zap.String("type", string(j.Type)))
	}

	if o.recorder != nil {
		if recErr := o.recorder.Record(ctx, j); recErr != nil {
			o.log.Warn("failed to record job history",
				zap.String("job_id", j.ID),
				zap.Error(recErr))
		}
	}
	return err
}

// rememberSeen must be called with o.mu held.
func (o *Orchestrator) rememberSeen(id string) {
	o.seen[id] = struct{}{}
	o.seenOrder = append(o.seenOrder, id)
	if len(o.seenOrder) > seenCap {
		oldest := o.seenOrder[0]
		o.seenOrder = o.seenOrder[1:]
		delete(o.seen, oldest)
	}
}

// onGeneration refreshes chapter content from the source of truth.
// On failure the prior content stays untouched.
func (o *Orchestrator) onGeneration(ctx context.Context, j job.Job) error {
	if j.Status != job.StatusSucceeded {
		o.log.Info("generation job did not succeed",
			zap.String("job_id", j.ID),
			zap.String("status", string(j.Status)),
			zap.String("error", j.Error))
		return nil
	}

	fields, err := o.content.GetContent(ctx, o.contextKey)
	if err != nil {
		return fmt.Errorf("refresh chapter content: %w", err)
	}
	o.mu.Lock()
	o.latestContent = fields
	o.mu.Unlock()
	return nil
}

// onBranchGeneration refreshes the branch candidate list and runs each
// branch through the continuity gate. On failure the prior branch list
// stays untouched.
func (o *Orchestrator) onBranchGeneration(j job.Job) error {
	if j.Status != job.StatusSucceeded {
		o.log.Info("branch generation did not succeed",
			zap.String("job_id", j.ID),
			zap.String("status", string(j.Status)),
			zap.String("error", j.Error))
		return nil
	}

	var payload struct {
		Branches []Branch `json:"branches"`
	}
	if err := json.Unmarshal(j.Output, &payload); err != nil {
		return fmt.Errorf("decode branch output: %w", err)
	}
	for i := range payload.Branches {
		b := &payload.Branches[i]
		b.Gate = continuity.MustClassify(b.ContinuityScore, o.gate, b.Issues...)
	}

	o.mu.Lock()
	o.branches = payload.Branches
	o.mu.Unlock()
	return nil
}

// onReviewScore stores the normalized review, marks it fresh, and
// resets the suggestion selection to "all".
func (o *Orchestrator) onReviewScore(j job.Job) error {
	if j.Status != job.StatusSucceeded {
		o.log.Info("review scoring did not succeed",
			zap.String("job_id", j.ID),
			zap.String("status", string(j.Status)),
			zap.String("error", j.Error))
		return nil
	}

	if len(j.Output) > 0 && !json.Valid(j.Output) {
		return fmt.Errorf("decode review output: invalid JSON")
	}
	normalized := review.NormalizeJSON(j.Output, o.labels)

	capturedAt := j.UpdatedAt
	if capturedAt.IsZero() {
		capturedAt = time.Now().UTC()
	}

	o.mu.Lock()
	o.currentReview = &normalized
	o.reviewAt = capturedAt
	o.reviewFresh = true
	o.selected = map[int]struct{}{}
	for i := range normalized.Suggestions {
		o.selected[i] = struct{}{}
	}
	o.mu.Unlock()
	return nil
}

// onReport stores a consistency/canon check outcome. Failures become a
// retryable error state with a user-facing message.
func (o *Orchestrator) onReport(j job.Job) {
	rep := Report{ReceivedAt: time.Now().UTC()}
	switch j.Status {
	case job.StatusSucceeded:
		rep.Output = j.Output
	default:
		rep.Err = j.Error
		if rep.Err == "" {
			rep.Err = "check failed without a reported reason"
		}
	}
	o.mu.Lock()
	o.reports[j.Type] = rep
	o.mu.Unlock()
}

// onPostProcess flips the status badge. Never a blocking surface.
func (o *Orchestrator) onPostProcess(j job.Job) {
	badge := Badge{State: BadgeSucceeded}
	if j.Status != job.StatusSucceeded {
		badge = Badge{State: BadgeFailed, Message: j.Error}
	}
	o.mu.Lock()
	o.badges[j.Type] = badge
	o.mu.Unlock()
}

// RetryCheck resubmits a failed consistency/canon check and clears its
// stored error state.
func (o *Orchestrator) RetryCheck(ctx context.Context, typ job.Type) (job.Job, error) {
	if job.ClassOf(typ) != job.ClassReport {
		return job.Job{}, fmt.Errorf("%s is not a retryable check type", typ)
	}
	if o.submit == nil {
		return job.Job{}, fmt.Errorf("no submitter configured")
	}
	j, err := o.submit.SubmitJob(ctx, typ, map[string]any{"chapter_id": o.contextKey})
	if err != nil {
		return job.Job{}, err
	}
	o.mu.Lock()
	delete(o.reports, typ)
	o.mu.Unlock()
	return j, nil
}

// LatestContent returns the most recently refreshed chapter fields.
func (o *Orchestrator) LatestContent() map[string]any {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.latestContent
}

// Branches returns the current branch candidates with gate results.
func (o *Orchestrator) Branches() []Branch {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Branch, len(o.branches))
	copy(out, o.branches)
	return out
}

// Review returns the current normalized review, its capture time, and
// whether one exists.
func (o *Orchestrator) Review() (review.Normalized, time.Time, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.currentReview == nil {
		return review.Normalized{}, time.Time{}, false
	}
	return *o.currentReview, o.reviewAt, true
}

// ReportFor returns the stored check report for a type, if any.
func (o *Orchestrator) ReportFor(typ job.Type) (Report, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	rep, ok := o.reports[typ]
	return rep, ok
}

// BadgeFor returns the status chip for a post-process type.
func (o *Orchestrator) BadgeFor(typ job.Type) Badge {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.badges[typ]
}
