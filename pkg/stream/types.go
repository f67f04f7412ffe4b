// Package stream decodes and reconciles the long-lived job status push
// stream from the aiWriter backend.
//
// The stream is JSONL: each line is a self-contained typed record
// envelope. Job batches carry status observations for any number of
// jobs; heartbeats keep intermediaries from closing an idle connection.
// Malformed lines are tolerated; a single bad record never terminates
// the stream.
package stream

import (
	"encoding/json"
	"time"

	"github.com/wmsyw/aiWriter-sub000/pkg/job"
)

// Record type constants define the envelope types on the wire.
// These follow the pattern: aiwriter.<type>.v<version>
const (
	// TypeJobs identifies job status batch records.
	TypeJobs = "aiwriter.jobs.v1"

	// TypeHeartbeat identifies keep-alive records. They carry no payload.
	TypeHeartbeat = "aiwriter.heartbeat.v1"
)

// Record is the envelope for every stream line.
type Record struct {
	// Type identifies the record type (e.g., "aiwriter.jobs.v1").
	Type string `json:"type"`

	// TS is the timestamp when the record was emitted (RFC3339Nano).
	TS time.Time `json:"ts"`

	// Data contains the type-specific payload as raw JSON.
	Data json.RawMessage `json:"data,omitempty"`
}

// Batch is the data payload of a TypeJobs record.
type Batch struct {
	Jobs []job.Job `json:"jobs"`
}
