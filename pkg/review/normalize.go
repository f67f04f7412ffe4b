// Package review normalizes heterogeneous review payloads from the
// task executor into one canonical record.
//
// The executor's output shapes drift between model versions: field
// names vary, dimension scores arrive bare or wrapped in objects, and
// whole sections go missing. Every logical field therefore resolves
// through an explicit ordered list of accepted aliases, first hit wins,
// so the "which alias wins" decision lives in one place and is
// testable. Normalization is total: it never fails on a missing,
// extra, or misshapen field.
package review

import (
	"bytes"
	"encoding/json"
	"math"
	"sort"
	"strings"

	"github.com/go-viper/mapstructure/v2"
)

// Alias chains per logical field, in priority order.
var (
	dimensionsAliases  = []string{"dimensions", "scores"}
	avgScoreAliases    = []string{"avg_score", "average_score", "overall_score", "total_score", "score"}
	suggestionsAliases = []string{"suggestions", "improvement_suggestions", "improvements"}
	summaryAliases     = []string{"summary", "overall_comment", "comment"}

	suggestionAspectAliases  = []string{"aspect", "dimension", "area"}
	suggestionIssueAliases   = []string{"issue", "problem", "description"}
	suggestionTextAliases    = []string{"suggestion", "advice", "recommendation"}
	suggestionCurrentAliases = []string{"current", "current_text"}
)

// Priority bands for suggestions.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityNormal = "normal"
)

// Dimension is one scored axis of a review.
type Dimension struct {
	Key     string  `json:"key"`
	Label   string  `json:"label"`
	Score   float64 `json:"score"`
	Comment string  `json:"comment,omitempty"`
}

// Suggestion is one actionable improvement item.
type Suggestion struct {
	Aspect     string `json:"aspect"`
	Priority   string `json:"priority"`
	Issue      string `json:"issue"`
	Suggestion string `json:"suggestion"`
	Current    string `json:"current,omitempty"`
}

// Normalized is the canonical review record. It is derived data,
// recomputed whenever the raw payload changes, and never persisted
// independently of its source.
type Normalized struct {
	AvgScore          float64           `json:"avg_score"`
	Grade             string            `json:"grade"`
	Summary           string            `json:"summary,omitempty"`
	Dimensions        []Dimension       `json:"dimensions"`
	Suggestions       []Suggestion      `json:"suggestions"`
	Critique          map[string]string `json:"critique,omitempty"`
	RevisionDirection string            `json:"revision_direction,omitempty"`
	ToneAdjustment    string            `json:"tone_adjustment,omitempty"`
	PacingSuggestion  string            `json:"pacing_suggestion,omitempty"`
}

// dimensionEntry is the structured form of a dimension value.
type dimensionEntry struct {
	Score   any    `mapstructure:"score"`
	Comment string `mapstructure:"comment"`
}

// Normalize maps an arbitrary-shaped review payload into the canonical
// record. labels maps dimension keys to display labels; unknown keys
// fall back to the key itself.
//
// Nil or empty input yields the canonical empty record: score 0, grade
// GradeUnassessed, empty dimension and suggestion lists. Normalize is
// deterministic and idempotent.
func Normalize(raw map[string]any, labels map[string]string) Normalized {
	return normalize(raw, labels, nil)
}

// NormalizeJSON normalizes a raw JSON review payload. Unlike Normalize
// it sees the payload text, so dimensions come out in the order the
// payload listed them rather than a decoded map's arbitrary order.
// Input that is not a JSON object yields the canonical empty record.
func NormalizeJSON(data []byte, labels map[string]string) Normalized {
	var raw map[string]any
	if len(data) == 0 || json.Unmarshal(data, &raw) != nil {
		return normalize(nil, labels, nil)
	}
	return normalize(raw, labels, dimensionOrder(data))
}

func normalize(raw map[string]any, labels map[string]string, order []string) Normalized {
	n := Normalized{
		Grade:       GradeUnassessed,
		Dimensions:  []Dimension{},
		Suggestions: []Suggestion{},
	}
	if len(raw) == 0 {
		return n
	}

	n.Dimensions = extractDimensions(raw, labels, order)
	n.Suggestions = extractSuggestions(raw)
	n.Summary = firstString(raw, summaryAliases)
	n.Critique = extractCritique(raw)
	n.RevisionDirection = stringField(raw, "revision_direction")
	n.ToneAdjustment = stringField(raw, "tone_adjustment")
	n.PacingSuggestion = stringField(raw, "pacing_suggestion")

	n.AvgScore = averageScore(raw, n.Dimensions)
	n.Grade = Grade(n.AvgScore, len(n.Dimensions) > 0 || hasTopLevelScore(raw))

	return n
}

func extractDimensions(raw map[string]any, labels map[string]string, order []string) []Dimension {
	container, ok := firstMap(raw, dimensionsAliases)
	if !ok {
		return []Dimension{}
	}

	keys := make([]string, 0, len(container))
	seen := make(map[string]struct{}, len(container))
	for _, k := range order {
		if _, ok := container[k]; !ok {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	if len(keys) < len(container) {
		// Keys the payload order did not cover, or map-only input.
		// Map iteration order is random; sort for a deterministic record.
		rest := make([]string, 0, len(container)-len(keys))
		for k := range container {
			if _, ok := seen[k]; !ok {
				rest = append(rest, k)
			}
		}
		sort.Strings(rest)
		keys = append(keys, rest...)
	}

	out := make([]Dimension, 0, len(keys))
	for _, key := range keys {
		score, comment, ok := resolveDimensionValue(container[key])
		if !ok {
			// Non-numeric score: dropped silently, not an error.
			continue
		}
		label := labels[key]
		if label == "" {
			label = key
		}
		out = append(out, Dimension{Key: key, Label: label, Score: score, Comment: comment})
	}
	return out
}

// dimensionOrder returns the dimension keys in payload order. The
// container is resolved with the same alias priority as
// extractDimensions: first alias whose value is a JSON object wins.
func dimensionOrder(data []byte) []string {
	var fields map[string]json.RawMessage
	if json.Unmarshal(data, &fields) != nil {
		return nil
	}
	for _, alias := range dimensionsAliases {
		field, ok := fields[alias]
		if !ok {
			continue
		}
		if keys := objectKeys(field); keys != nil {
			return keys
		}
	}
	return nil
}

// objectKeys walks one JSON object token by token and returns its keys
// in source order, or nil when the value is not an object.
func objectKeys(data []byte) []string {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil || tok != json.Delim('{') {
		return nil
	}
	keys := []string{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return keys
		}
		key, ok := tok.(string)
		if !ok {
			return keys
		}
		keys = append(keys, key)
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return keys
		}
	}
	return keys
}

// resolveDimensionValue accepts a bare numeric score or an object
// carrying {score, comment}.
func resolveDimensionValue(v any) (float64, string, bool) {
	if score, ok := asNumber(v); ok {
		return score, "", true
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return 0, "", false
	}
	var entry dimensionEntry
	if err := mapstructure.Decode(obj, &entry); err != nil {
		return 0, "", false
	}
	score, ok := asNumber(entry.Score)
	if !ok {
		return 0, "", false
	}
	return score, strings.TrimSpace(entry.Comment), true
}

func extractSuggestions(raw map[string]any) []Suggestion {
	list, ok := firstList(raw, suggestionsAliases)
	if !ok {
		return []Suggestion{}
	}

	out := make([]Suggestion, 0, len(list))
	for _, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		s := Suggestion{
			Aspect:     firstString(obj, suggestionAspectAliases),
			Issue:      firstString(obj, suggestionIssueAliases),
			Suggestion: firstString(obj, suggestionTextAliases),
			Current:    firstString(obj, suggestionCurrentAliases),
			Priority:   normalizePriority(stringField(obj, "priority")),
		}
		if s.Issue == "" && s.Suggestion == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}

func normalizePriority(p string) string {
	switch strings.ToLower(strings.TrimSpace(p)) {
	case "high", "urgent", "critical":
		return PriorityHigh
	case "medium", "mid":
		return PriorityMedium
	default:
		return PriorityNormal
	}
}

func extractCritique(raw map[string]any) map[string]string {
	obj, ok := raw["critique"].(map[string]any)
	if !ok || len(obj) == 0 {
		return nil
	}
	out := make(map[string]string, len(obj))
	for k, v := range obj {
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			out[k] = strings.TrimSpace(s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// averageScore is the mean of the resolved dimension scores rounded to
// one decimal place, falling back to the first recognized top-level
// score field, defaulting to 0. The result is clamped to [0, 10].
func averageScore(raw map[string]any, dims []Dimension) float64 {
	if len(dims) > 0 {
		var sum float64
		for _, d := range dims {
			sum += d.Score
		}
		return clampScore(round1(sum / float64(len(dims))))
	}
	for _, alias := range avgScoreAliases {
		if v, ok := asNumber(raw[alias]); ok {
			return clampScore(round1(v))
		}
	}
	return 0
}

func hasTopLevelScore(raw map[string]any) bool {
	for _, alias := range avgScoreAliases {
		if _, ok := asNumber(raw[alias]); ok {
			return true
		}
	}
	return false
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func clampScore(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 10 {
		return 10
	}
	return v
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func firstString(obj map[string]any, aliases []string) string {
	for _, alias := range aliases {
		if s, ok := obj[alias].(string); ok {
			if trimmed := strings.TrimSpace(s); trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}

func stringField(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return strings.TrimSpace(s)
}

func firstMap(obj map[string]any, aliases []string) (map[string]any, bool) {
	for _, alias := range aliases {
		if m, ok := obj[alias].(map[string]any); ok {
			return m, true
		}
	}
	return nil, false
}

func firstList(obj map[string]any, aliases []string) ([]any, bool) {
	for _, alias := range aliases {
		if l, ok := obj[alias].([]any); ok {
			return l, true
		}
	}
	return nil, false
}
