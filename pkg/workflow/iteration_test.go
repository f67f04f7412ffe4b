package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wmsyw/aiWriter-sub000/pkg/job"
	"github.com/wmsyw/aiWriter-sub000/pkg/review"
)

func TestRequestIteration_RoundMonotonicity(t *testing.T) {
	submit := &fakeSubmitter{}
	o := newTestOrchestrator(t, &fakeContent{}, submit)
	require.Equal(t, 1, o.Round())

	newRound, ok, err := o.RequestIteration(context.Background(), "branch text", "tighten the pacing")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, newRound)
	assert.Equal(t, 2, o.Round())

	newRound, ok, err = o.RequestIteration(context.Background(), "branch text v2", "more tension")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, newRound)

	require.Len(t, submit.submitted, 2)
	assert.Equal(t, job.TypeBranchGeneration, submit.submitted[0].typ)
	assert.Equal(t, 2, submit.submitted[0].input["iteration_round"])
	assert.Equal(t, "tighten the pacing", submit.submitted[0].input["feedback"])
	assert.Equal(t, 3, submit.submitted[1].input["iteration_round"])
}

func TestRequestIteration_RejectsEmptyInput(t *testing.T) {
	submit := &fakeSubmitter{}
	o := newTestOrchestrator(t, &fakeContent{}, submit)

	round, ok, err := o.RequestIteration(context.Background(), "", "   ")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, round)
	assert.Equal(t, 1, o.Round())
	assert.Empty(t, submit.submitted)
}

func TestRequestIteration_AcceptsFeedbackOnly(t *testing.T) {
	submit := &fakeSubmitter{}
	o := newTestOrchestrator(t, &fakeContent{}, submit)

	_, ok, err := o.RequestIteration(context.Background(), "", "start over darker")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRequestIteration_SubmitFailureKeepsRound(t *testing.T) {
	submit := &fakeSubmitter{err: errors.New("backend down")}
	o := newTestOrchestrator(t, &fakeContent{}, submit)

	round, ok, err := o.RequestIteration(context.Background(), "text", "feedback")
	assert.Error(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, round)
	assert.Equal(t, 1, o.Round())
}

func TestRequestIteration_ClearsFeedbackBuffer(t *testing.T) {
	o := newTestOrchestrator(t, &fakeContent{}, &fakeSubmitter{})
	o.SetPendingFeedback("draft notes")

	_, ok, err := o.RequestIteration(context.Background(), "text", "final notes")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Empty(t, o.PendingFeedback())
}

func TestApplyBranch_ResetsIterationState(t *testing.T) {
	content := &fakeContent{}
	o := newTestOrchestrator(t, content, &fakeSubmitter{})

	_, _, err := o.RequestIteration(context.Background(), "text", "feedback")
	require.NoError(t, err)
	require.Equal(t, 2, o.Round())

	require.NoError(t, o.ApplyBranch(context.Background(), Branch{Content: "chosen branch"}))
	assert.Equal(t, 1, o.Round())
	require.Len(t, content.patches, 1)
	assert.Equal(t, "chosen branch", content.patches[0]["content"])
	assert.Empty(t, o.Branches())
}

func loadReview(t *testing.T, o *Orchestrator) {
	t.Helper()
	output, _ := json.Marshal(map[string]any{
		"suggestions": []map[string]any{
			{"aspect": "pacing", "issue": "drags", "suggestion": "cut scene two", "priority": "high"},
			{"aspect": "style", "issue": "wordy", "suggestion": "shorter sentences"},
			{"aspect": "plot", "issue": "hole", "suggestion": "explain the key", "priority": "high"},
		},
	})
	require.NoError(t, o.OnTerminal(context.Background(), job.Job{
		ID: "rv-" + t.Name(), Type: job.TypeReviewScore, Status: job.StatusSucceeded, Output: output,
	}))
}

func TestComposeFeedback_SelectionAndAddendum(t *testing.T) {
	o := newTestOrchestrator(t, &fakeContent{}, nil)
	loadReview(t, o)

	// All selected by default, no addendum.
	assert.Equal(t, "cut scene two\nshorter sentences\nexplain the key", o.ComposeCurrentFeedback())

	o.SetPendingFeedback("keep the rain motif")
	o.SetSuggestionSelection([]int{0, 2})
	assert.Equal(t,
		"cut scene two\nexplain the key\n\nAdditional notes:\nkeep the rain motif",
		o.ComposeCurrentFeedback())

	// Addendum only.
	o.SetSuggestionSelection(nil)
	assert.Equal(t, "Additional notes:\nkeep the rain motif", o.ComposeCurrentFeedback())
}

func TestComposeFeedback_EmptySelectionDisablesIteration(t *testing.T) {
	o := newTestOrchestrator(t, &fakeContent{}, nil)
	loadReview(t, o)

	o.SetSuggestionSelection(nil)
	o.SetPendingFeedback("")
	assert.Equal(t, "", o.ComposeCurrentFeedback())
	assert.False(t, o.CanIterate())

	o.SelectHighPriority()
	assert.True(t, o.CanIterate())
	assert.Equal(t, []int{0, 2}, o.SelectedSuggestions())
}

func TestSetSuggestionSelection_DropsOutOfRange(t *testing.T) {
	o := newTestOrchestrator(t, &fakeContent{}, nil)
	loadReview(t, o)

	o.SetSuggestionSelection([]int{-1, 1, 99})
	assert.Equal(t, []int{1}, o.SelectedSuggestions())
}

func TestComposeFeedback_Pure(t *testing.T) {
	sugs := []review.Suggestion{
		{Suggestion: "one"},
		{Suggestion: "two"},
	}
	assert.Equal(t, "", ComposeFeedback(nil, nil, ""))
	assert.Equal(t, "one\ntwo", ComposeFeedback(sugs, map[int]struct{}{0: {}, 1: {}}, ""))
	assert.Equal(t, "two", ComposeFeedback(sugs, map[int]struct{}{1: {}}, " "))
}

func TestAcceptRejectReview_Markers(t *testing.T) {
	content := &fakeContent{}
	o := newTestOrchestrator(t, content, nil)
	loadReview(t, o)
	require.True(t, o.ReviewFresh())

	require.NoError(t, o.AcceptReview(context.Background()))
	require.Len(t, content.patches, 1)
	assert.Equal(t, MarkerApproved, content.patches[0]["review_status"])
	assert.False(t, o.ReviewFresh())

	require.NoError(t, o.RejectReview(context.Background()))
	assert.Equal(t, MarkerNeedsRegeneration, content.patches[1]["review_status"])

	// A new review overwrites the decision state.
	loadReviewWithID(t, o, "rv-next")
	assert.True(t, o.ReviewFresh())
}

func loadReviewWithID(t *testing.T, o *Orchestrator, id string) {
	t.Helper()
	output, _ := json.Marshal(map[string]any{"score": 7.0})
	require.NoError(t, o.OnTerminal(context.Background(), job.Job{
		ID: id, Type: job.TypeReviewScore, Status: job.StatusSucceeded, Output: output,
	}))
}

func TestReviewStale(t *testing.T) {
	o := newTestOrchestrator(t, &fakeContent{}, nil)
	assert.False(t, o.ReviewStale(time.Now()), "no review yet is never stale")

	captured := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, o.OnTerminal(context.Background(), job.Job{
		ID: "rv-1", Type: job.TypeReviewScore, Status: job.StatusSucceeded,
		Output: []byte(`{"score": 8}`), UpdatedAt: captured,
	}))

	assert.False(t, o.ReviewStale(captured), "equal timestamps are not stale")
	assert.False(t, o.ReviewStale(captured.Add(-time.Minute)))
	assert.True(t, o.ReviewStale(captured.Add(time.Minute)))
}
