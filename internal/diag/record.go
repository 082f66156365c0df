// Package diag carries QuickDock's diagnostic stream: structured one-line
// records emitted by the sidecar supervisor and the host, fanned in through a
// bounded mux so slow consumers never stall producers.
package diag

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Record is a structured diagnostic event ready for JSON encoding.
type Record struct {
	Timestamp time.Time `json:"ts"`
	Component string    `json:"component"`
	Level     string    `json:"level"`
	Message   string    `json:"msg"`
	Source    string    `json:"source,omitempty"`
	PID       int       `json:"pid,omitempty"`
	Err       string    `json:"error,omitempty"`
}

func normalize(rec Record) Record {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	if rec.Level == "" {
		rec.Level = "info"
	}
	return rec
}

// ChanSink adapts a record channel to a diagnostic sink. Sends block, so a
// ChanSink should feed a Mux source that is consumed promptly; backpressure
// and dropping are the mux's job.
type ChanSink chan Record

// Emit delivers the record to the channel.
func (c ChanSink) Emit(rec Record) {
	c <- normalize(rec)
}

// Logger appends records to a writer, one JSON object per line. Safe for
// concurrent use.
type Logger struct {
	mu   sync.Mutex
	enc  *json.Encoder
	errw io.Writer
}

// NewLogger constructs a logger over w. A nil writer targets stderr.
func NewLogger(w io.Writer) *Logger {
	if w == nil {
		w = os.Stderr
	}
	return &Logger{enc: json.NewEncoder(w), errw: os.Stderr}
}

// Emit encodes a single record. Encoding failures are reported to stderr and
// otherwise dropped; diagnostics must never take the caller down.
func (l *Logger) Emit(rec Record) {
	rec = normalize(rec)
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enc.Encode(&rec); err != nil {
		fmt.Fprintf(l.errw, "error: encode diagnostic: %v\n", err)
	}
}
