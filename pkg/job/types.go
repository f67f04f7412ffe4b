// Package job defines the task taxonomy, job lifecycle model, and the
// active-job set used to track in-flight generation work.
//
// A Job is created by submitting work to the backend and is mutated only
// by fresher status observations arriving from one of two channels: the
// long-lived push stream or an interval poll loop. Terminal statuses are
// absorbing; once observed, a job leaves the active set for good.
package job

import (
	"encoding/json"
	"time"
)

// Type identifies a kind of generation task.
//
// NOTE: These values travel on the wire and are part of the stable
// backend contract.
type Type string

const (
	TypeGeneration       Type = "generation"
	TypeBranchGeneration Type = "branch_generation"
	TypeReviewScore      Type = "review_score"
	TypeConsistencyCheck Type = "consistency_check"
	TypeCanonCheck       Type = "canon_check"

	// Post-process kinds run best-effort after a chapter is generated.
	// Their failure never blocks the authoring workflow.
	TypeMemoryExtract   Type = "memory_extract"
	TypeHookExtract     Type = "hook_extract"
	TypeEntityExtract   Type = "entity_extract"
	TypeSummaryGenerate Type = "summary_generate"
)

// Class groups job types by how the workflow layer reacts to their
// terminal status.
type Class int

const (
	ClassUnknown Class = iota
	ClassGeneration
	ClassBranch
	ClassReview
	ClassReport
	ClassPostProcess
)

// Info describes one entry of the task taxonomy. Pure data.
type Info struct {
	Class Class
	Label string
}

// Registry is the closed taxonomy of task kinds consumed by the
// workflow layer. Unknown types classify as ClassUnknown and are
// tracked but trigger no side effects.
var Registry = map[Type]Info{
	TypeGeneration:       {Class: ClassGeneration, Label: "chapter generation"},
	TypeBranchGeneration: {Class: ClassBranch, Label: "branch generation"},
	TypeReviewScore:      {Class: ClassReview, Label: "review scoring"},
	TypeConsistencyCheck: {Class: ClassReport, Label: "consistency check"},
	TypeCanonCheck:       {Class: ClassReport, Label: "canon check"},
	TypeMemoryExtract:    {Class: ClassPostProcess, Label: "memory extraction"},
	TypeHookExtract:      {Class: ClassPostProcess, Label: "hook extraction"},
	TypeEntityExtract:    {Class: ClassPostProcess, Label: "pending entity extraction"},
	TypeSummaryGenerate:  {Class: ClassPostProcess, Label: "summary generation"},
}

// ClassOf returns the workflow class for a job type.
func ClassOf(t Type) Class {
	if info, ok := Registry[t]; ok {
		return info.Class
	}
	return ClassUnknown
}

// PostProcessTypes lists the post-process kinds in badge display order.
func PostProcessTypes() []Type {
	return []Type{TypeMemoryExtract, TypeHookExtract, TypeEntityExtract, TypeSummaryGenerate}
}

// Status is the lifecycle state of a job as reported by the backend.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// Terminal reports whether no further transitions can occur for this status.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// Job is a single unit of long-running backend work.
//
// Output is present only when the job succeeded; Error only when it
// failed. ContextKey identifies the owning chapter and is used for
// relevance filtering on the push stream.
type Job struct {
	ID         string          `json:"id"`
	Type       Type            `json:"type"`
	Status     Status          `json:"status"`
	Input      map[string]any  `json:"input,omitempty"`
	Output     json.RawMessage `json:"output,omitempty"`
	Error      string          `json:"error,omitempty"`
	ContextKey string          `json:"context_key,omitempty"`
	CreatedAt  time.Time       `json:"created_at,omitempty"`
	UpdatedAt  time.Time       `json:"updated_at,omitempty"`
}

// Context returns the relevance key for this job: the explicit
// ContextKey when present, otherwise the chapter id carried in the
// input payload.
func (j Job) Context() string {
	if j.ContextKey != "" {
		return j.ContextKey
	}
	if j.Input == nil {
		return ""
	}
	if v, ok := j.Input["chapter_id"].(string); ok {
		return v
	}
	return ""
}

// Terminal reports whether the job has reached a terminal status.
func (j Job) Terminal() bool {
	return j.Status.Terminal()
}
