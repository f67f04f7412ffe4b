package stream

import (
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"
)

// ErrWriterClosed is returned by writes after Close.
var ErrWriterClosed = errors.New("stream writer is closed")

// Writer emits JSONL record envelopes. The backend stub uses it to
// serve the push stream; it is also handy for building test fixtures.
//
// Writer is safe for concurrent use.
type Writer struct {
	mu     sync.Mutex
	w      io.Writer
	closed bool
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (sw *Writer) Close() error {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.closed = true
	return nil
}

// WriteBatch emits a job batch record.
func (sw *Writer) WriteBatch(b Batch) error {
	data, err := json.Marshal(b)
	if err != nil {
		return err
	}
	return sw.writeRecord(Record{Type: TypeJobs, TS: time.Now().UTC(), Data: data})
}

// WriteHeartbeat emits a keep-alive record.
func (sw *Writer) WriteHeartbeat() error {
	return sw.writeRecord(Record{Type: TypeHeartbeat, TS: time.Now().UTC()})
}

func (sw *Writer) writeRecord(rec Record) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.closed {
		return ErrWriterClosed
	}
	_, err = sw.w.Write(line)
	return err
}
