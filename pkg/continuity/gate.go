// Package continuity classifies branch continuity scores into
// accept/revise/reject verdicts using configured thresholds.
package continuity

import (
	"errors"
	"fmt"
)

// Verdict is the gate decision for one scored branch.
type Verdict string

const (
	VerdictPass   Verdict = "pass"
	VerdictRevise Verdict = "revise"
	VerdictReject Verdict = "reject"
)

// Thresholds configures the gate. Reject must be strictly below Pass;
// anything else is a configuration error, not a runtime classification
// outcome.
type Thresholds struct {
	Pass   float64
	Reject float64
}

// DefaultThresholds matches the backend's stock continuity gate.
func DefaultThresholds() Thresholds {
	return Thresholds{Pass: 6.8, Reject: 4.9}
}

// ConfigError indicates invalid threshold configuration. It is
// surfaced at construction time and fails fast.
type ConfigError struct {
	Thresholds Thresholds
	Reason     string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid continuity thresholds (pass=%v reject=%v): %s",
		e.Thresholds.Pass, e.Thresholds.Reject, e.Reason)
}

// IsConfigError reports whether err is a threshold configuration error.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// Validate fails unless Reject < Pass.
func (t Thresholds) Validate() error {
	if t.Reject >= t.Pass {
		return &ConfigError{Thresholds: t, Reason: "reject score must be below pass score"}
	}
	return nil
}

// Result is the gate outcome. Verdict and Recommended are pure
// functions of the score and thresholds; Issues carries through
// whatever the check itself reported.
type Result struct {
	Score       float64  `json:"score"`
	Verdict     Verdict  `json:"verdict"`
	Recommended bool     `json:"recommended"`
	Issues      []string `json:"issues,omitempty"`
}

// Classify decides the verdict for a continuity score.
//
//	score >= Pass   -> pass, recommended
//	score <= Reject -> reject
//	otherwise       -> revise
func Classify(score float64, th Thresholds, issues ...string) (Result, error) {
	if err := th.Validate(); err != nil {
		return Result{}, err
	}

	r := Result{Score: score, Issues: issues}
	switch {
	case score >= th.Pass:
		r.Verdict = VerdictPass
		r.Recommended = true
	case score <= th.Reject:
		r.Verdict = VerdictReject
	default:
		r.Verdict = VerdictRevise
	}
	return r, nil
}

// MustClassify is Classify for callers that validated thresholds at
// construction time. It panics on invalid configuration.
func MustClassify(score float64, th Thresholds, issues ...string) Result {
	r, err := Classify(score, th, issues...)
	if err != nil {
		panic(err)
	}
	return r
}
