package stream

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

const DefaultMaxLineBytes = 1 << 20

// DecodeError indicates a single stream line could not be parsed.
//
// It is recoverable: the offending line has already been consumed, so
// the caller may keep reading. Callers log and drop these rather than
// propagating them out of the subscription.
type DecodeError struct {
	Line []byte
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("undecodable stream record: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// IsDecodeError reports whether err is a recoverable single-line
// decode failure.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

// Decoder reads record envelopes from a JSONL stream with a bounded
// per-line size.
type Decoder struct {
	r            *bufio.Reader
	maxLineBytes int
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r), maxLineBytes: DefaultMaxLineBytes}
}

func (d *Decoder) SetMaxLineBytes(n int) {
	if n <= 0 {
		d.maxLineBytes = DefaultMaxLineBytes
		return
	}
	d.maxLineBytes = n
}

// Next returns the next record. Blank lines are skipped. A malformed
// line yields a *DecodeError and leaves the decoder usable; io.EOF
// signals the end of the stream.
func (d *Decoder) Next() (Record, error) {
	for {
		line, err := readLineLimited(d.r, d.maxLineBytes)
		if err != nil {
			var tooLong *lineTooLongError
			if errors.As(err, &tooLong) {
				return Record{}, &DecodeError{Err: err}
			}
			return Record{}, err
		}
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return Record{}, &DecodeError{Line: line, Err: err}
		}
		if rec.Type == "" {
			return Record{}, &DecodeError{Line: line, Err: errors.New("record has no type")}
		}
		return rec, nil
	}
}

// NextBatch returns the next job batch, skipping heartbeats and records
// of unrelated types. Decode failures propagate as *DecodeError so the
// caller can log and continue.
func (d *Decoder) NextBatch() (Batch, error) {
	for {
		rec, err := d.Next()
		if err != nil {
			return Batch{}, err
		}
		if rec.Type != TypeJobs {
			continue
		}

		var b Batch
		if err := json.Unmarshal(rec.Data, &b); err != nil {
			return Batch{}, &DecodeError{Line: rec.Data, Err: err}
		}
		if b.Jobs == nil {
			return Batch{}, &DecodeError{Line: rec.Data, Err: errors.New("jobs batch missing jobs array")}
		}
		return b, nil
	}
}

type lineTooLongError struct {
	limit int
}

func (e *lineTooLongError) Error() string {
	return fmt.Sprintf("jsonl line exceeds %d bytes", e.limit)
}

// readLineLimited reads a full line, discarding the remainder of lines
// that exceed maxBytes so the stream stays aligned on record boundaries.
func readLineLimited(r *bufio.Reader, maxBytes int) ([]byte, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxLineBytes
	}

	var out []byte
	overflow := false
	for {
		frag, err := r.ReadSlice('\n')
		if !overflow {
			out = append(out, frag...)
			if len(out) > maxBytes {
				overflow = true
			}
		}
		if err == nil {
			if overflow {
				return nil, &lineTooLongError{limit: maxBytes}
			}
			return bytes.TrimSuffix(out, []byte("\n")), nil
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if errors.Is(err, io.EOF) {
			if overflow {
				return nil, &lineTooLongError{limit: maxBytes}
			}
			if len(out) == 0 {
				return nil, io.EOF
			}
			return out, nil
		}
		return nil, err
	}
}
