// Package manifest defines the declarative submit-manifest format.
//
// A manifest describes one job submission as data, so repeatable
// submissions (regression chapters, scripted pipelines) do not depend
// on remembering flag combinations.
package manifest

import (
	"github.com/wmsyw/aiWriter-sub000/pkg/job"
)

// CurrentVersion is the manifest format version this build understands.
const CurrentVersion = "1.0"

// Manifest is the top-level submit-manifest document.
type Manifest struct {
	// Version is the manifest format version. Must be "1.0".
	Version string `json:"version" yaml:"version"`

	// Job describes the submission.
	Job JobSpec `json:"job" yaml:"job"`
}

// JobSpec describes the job to submit.
type JobSpec struct {
	// Type is the job type (generation, review_score, ...).
	Type job.Type `json:"type" yaml:"type"`

	// Chapter is the chapter key the job runs against.
	Chapter string `json:"chapter,omitempty" yaml:"chapter,omitempty"`

	// Input is the free-form payload forwarded to the backend.
	Input map[string]any `json:"input,omitempty" yaml:"input,omitempty"`
}

// ApplyDefaults fills optional fields with their defaults.
func (m *Manifest) ApplyDefaults() {
	if m.Version == "" {
		m.Version = CurrentVersion
	}
	if m.Job.Input == nil {
		m.Job.Input = map[string]any{}
	}
	if m.Job.Chapter != "" {
		if _, ok := m.Job.Input["chapter_id"]; !ok {
			m.Job.Input["chapter_id"] = m.Job.Chapter
		}
	}
}
