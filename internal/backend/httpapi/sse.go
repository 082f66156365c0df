package httpapi

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
)

// sseWriter converts a raw log byte stream into server-sent events, one
// JSON-quoted line per data frame. Partial trailing lines are buffered until
// the next write or an explicit flush.
type sseWriter struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	buf     bytes.Buffer
	wrote   bool
}

func newSSEWriter(w http.ResponseWriter, flusher http.Flusher) *sseWriter {
	return &sseWriter{w: w, flusher: flusher}
}

func (s *sseWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := len(p)
	reader := bufio.NewReader(bytes.NewReader(p))
	for {
		segment, err := reader.ReadBytes('\n')
		if len(segment) > 0 {
			if segment[len(segment)-1] == '\n' {
				s.buf.Write(segment)
				if writeErr := s.emitLocked(s.buf.String()); writeErr != nil {
					return total, writeErr
				}
				s.buf.Reset()
			} else {
				s.buf.Write(segment)
			}
		}
		if err != nil {
			break
		}
	}
	return total, nil
}

// flushPartial emits any buffered trailing line that never received a newline.
func (s *sseWriter) flushPartial() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buf.Len() == 0 {
		return
	}
	_ = s.emitLocked(s.buf.String())
	s.buf.Reset()
}

func (s *sseWriter) wroteAny() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wrote
}

func (s *sseWriter) emitLocked(line string) error {
	quoted, err := json.Marshal(line)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", quoted); err != nil {
		return err
	}
	s.wrote = true
	s.flusher.Flush()
	return nil
}
