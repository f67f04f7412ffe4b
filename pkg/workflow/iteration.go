package workflow

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/wmsyw/aiWriter-sub000/pkg/job"
	"github.com/wmsyw/aiWriter-sub000/pkg/review"
)

// AddendumHeader demarcates the author's free-text notes from the
// selected suggestion texts in composed feedback.
const AddendumHeader = "Additional notes:"

// Approval markers written to chapter metadata by accept/reject.
const (
	MarkerApproved          = "approved"
	MarkerNeedsRegeneration = "needs_regeneration"
)

// Round returns the current iteration round. Rounds start at 1,
// advance by exactly one per accepted iteration request, and reset
// only when a branch is applied.
func (o *Orchestrator) Round() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.round
}

// PendingFeedback returns the free-text feedback buffer.
func (o *Orchestrator) PendingFeedback() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pendingNotes
}

// SetPendingFeedback replaces the free-text feedback buffer.
func (o *Orchestrator) SetPendingFeedback(text string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pendingNotes = text
}

// RequestIteration submits the next branch generation round.
//
// It is a no-op (ok=false, round unchanged) when feedback is blank and
// there is no prior content to iterate on. On acceptance it submits a
// branch_generation job carrying the selection, the feedback, and the
// incremented round, advances the local counter, and clears the
// feedback buffer. This path never reuses or decrements a round number.
func (o *Orchestrator) RequestIteration(ctx context.Context, selectedContent, feedback string) (newRound int, ok bool, err error) {
	o.mu.Lock()
	current := o.round
	o.mu.Unlock()

	if strings.TrimSpace(feedback) == "" && strings.TrimSpace(selectedContent) == "" {
		return current, false, nil
	}
	if o.submit == nil {
		return current, false, fmt.Errorf("no submitter configured")
	}

	next := current + 1
	_, err = o.submit.SubmitJob(ctx, job.TypeBranchGeneration, map[string]any{
		"chapter_id":       o.contextKey,
		"selected_content": selectedContent,
		"feedback":         feedback,
		"iteration_round":  next,
	})
	if err != nil {
		return current, false, err
	}

	o.mu.Lock()
	o.round = next
	o.pendingNotes = ""
	o.mu.Unlock()
	return next, true, nil
}

// ApplyBranch writes the chosen branch into the chapter and resets the
// iteration state for the next piece of content.
func (o *Orchestrator) ApplyBranch(ctx context.Context, b Branch) error {
	if err := o.content.PatchContent(ctx, o.contextKey, map[string]any{
		"content": b.Content,
	}); err != nil {
		return fmt.Errorf("apply branch: %w", err)
	}

	o.mu.Lock()
	o.round = 1
	o.pendingNotes = ""
	o.branches = nil
	o.mu.Unlock()
	return nil
}

// SelectedSuggestions returns the selected suggestion indexes in list
// order. A fresh review selects all suggestions by default.
func (o *Orchestrator) SelectedSuggestions() []int {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]int, 0, len(o.selected))
	for i := range o.selected {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// SetSuggestionSelection replaces the selected suggestion set. Indexes
// outside the current suggestion list are dropped.
func (o *Orchestrator) SetSuggestionSelection(indexes []int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	limit := 0
	if o.currentReview != nil {
		limit = len(o.currentReview.Suggestions)
	}
	o.selected = map[int]struct{}{}
	for _, i := range indexes {
		if i >= 0 && i < limit {
			o.selected[i] = struct{}{}
		}
	}
}

// SelectHighPriority narrows the selection to high-priority suggestions.
func (o *Orchestrator) SelectHighPriority() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.selected = map[int]struct{}{}
	if o.currentReview == nil {
		return
	}
	for i, s := range o.currentReview.Suggestions {
		if s.Priority == review.PriorityHigh {
			o.selected[i] = struct{}{}
		}
	}
}

// ComposeFeedback builds one feedback string from the selected
// suggestions of a review plus an optional free-text addendum.
//
// Selected suggestion texts appear in list order joined by line breaks;
// the addendum follows, demarcated by AddendumHeader. Empty selection
// and empty addendum compose to "".
func ComposeFeedback(sugs []review.Suggestion, selected map[int]struct{}, addendum string) string {
	var parts []string
	for i, s := range sugs {
		if _, ok := selected[i]; !ok {
			continue
		}
		if text := strings.TrimSpace(s.Suggestion); text != "" {
			parts = append(parts, text)
		}
	}

	addendum = strings.TrimSpace(addendum)
	if addendum != "" {
		if len(parts) > 0 {
			parts = append(parts, "")
		}
		parts = append(parts, AddendumHeader, addendum)
	}
	return strings.Join(parts, "\n")
}

// ComposeCurrentFeedback composes feedback from the orchestrator's own
// review, selection, and pending notes. Results are memoized in the
// bounded feedback cache keyed by the selection signature.
func (o *Orchestrator) ComposeCurrentFeedback() string {
	o.mu.Lock()
	var sugs []review.Suggestion
	if o.currentReview != nil {
		sugs = o.currentReview.Suggestions
	}
	selected := make(map[int]struct{}, len(o.selected))
	for i := range o.selected {
		selected[i] = struct{}{}
	}
	notes := o.pendingNotes
	capturedAt := o.reviewAt
	o.mu.Unlock()

	key := feedbackCacheKey(capturedAt, selected, notes)
	if cached, ok := o.feedback.Get(key); ok {
		return cached
	}
	composed := ComposeFeedback(sugs, selected, notes)
	o.feedback.Put(key, composed)
	return composed
}

// CanIterate reports whether the iteration action should be enabled:
// composing with zero selected suggestions and no free text yields no
// feedback, and the action is disabled rather than erroring later.
func (o *Orchestrator) CanIterate() bool {
	return strings.TrimSpace(o.ComposeCurrentFeedback()) != ""
}

func feedbackCacheKey(capturedAt time.Time, selected map[int]struct{}, notes string) string {
	idx := make([]int, 0, len(selected))
	for i := range selected {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d|", capturedAt.UnixNano())
	for _, i := range idx {
		fmt.Fprintf(&sb, "%d,", i)
	}
	sb.WriteByte('|')
	sb.WriteString(notes)
	return sb.String()
}

// AcceptReview marks the chapter approved with respect to the current
// review. A later review overwrites the marker.
func (o *Orchestrator) AcceptReview(ctx context.Context) error {
	return o.setReviewMarker(ctx, MarkerApproved)
}

// RejectReview marks the chapter as needing regeneration.
func (o *Orchestrator) RejectReview(ctx context.Context) error {
	return o.setReviewMarker(ctx, MarkerNeedsRegeneration)
}

func (o *Orchestrator) setReviewMarker(ctx context.Context, marker string) error {
	if err := o.content.PatchContent(ctx, o.contextKey, map[string]any{
		"review_status": marker,
	}); err != nil {
		return fmt.Errorf("set review marker: %w", err)
	}
	o.mu.Lock()
	o.reviewFresh = false
	o.mu.Unlock()
	return nil
}

// ReviewStale reports whether the chapter changed after the current
// review was captured. Purely informational; it blocks nothing.
func (o *Orchestrator) ReviewStale(contentModified time.Time) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.currentReview == nil {
		return false
	}
	return contentModified.After(o.reviewAt)
}

// ReviewFresh reports whether the current review arrived after the
// last accept/reject decision.
func (o *Orchestrator) ReviewFresh() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.reviewFresh
}
