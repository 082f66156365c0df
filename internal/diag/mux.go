package diag

import (
	"fmt"
	"sync"
	"time"
)

// Mux fans in diagnostic records from multiple sources and delivers them via
// a bounded channel. When downstream consumers cannot keep up and the output
// buffer would overflow, the mux drops records and emits a synthesized warning
// carrying the number of discarded entries.
type Mux struct {
	out chan Record

	mu     sync.Mutex
	drops  map[string]int
	inputs sync.WaitGroup
}

// NewMux constructs a mux backed by a channel of the provided size. A size of
// zero results in a minimally buffered channel.
func NewMux(size int) *Mux {
	if size <= 0 {
		size = 1
	}
	return &Mux{
		out:   make(chan Record, size),
		drops: make(map[string]int),
	}
}

// Output exposes the muxed record channel.
func (m *Mux) Output() <-chan Record {
	return m.out
}

// Add registers a new source channel. The mux consumes records until the
// source channel is closed.
func (m *Mux) Add(source <-chan Record) {
	if source == nil {
		return
	}
	m.inputs.Add(1)
	go func() {
		defer m.inputs.Done()
		for rec := range source {
			m.deliver(normalize(rec))
		}
	}()
}

// Close waits for all sources to be drained, emits any pending drop metadata,
// and closes the output channel.
func (m *Mux) Close() {
	m.inputs.Wait()
	m.flushDrops()
	close(m.out)
}

func (m *Mux) deliver(rec Record) {
	if !m.flushPending(rec.Component) {
		m.recordDrops(rec.Component, 1)
		return
	}
	if m.trySend(rec) {
		return
	}
	m.recordDrops(rec.Component, 1)
}

func (m *Mux) flushPending(component string) bool {
	for {
		count := m.takeDrops(component)
		if count == 0 {
			return true
		}
		if m.trySend(dropRecord(component, count)) {
			continue
		}
		m.recordDrops(component, count)
		return false
	}
}

func (m *Mux) takeDrops(component string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := m.drops[component]
	if count != 0 {
		delete(m.drops, component)
	}
	return count
}

func (m *Mux) recordDrops(component string, count int) {
	if count <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drops[component] += count
}

func (m *Mux) flushDrops() {
	m.mu.Lock()
	pending := m.drops
	m.drops = make(map[string]int)
	m.mu.Unlock()
	for component, count := range pending {
		if count <= 0 {
			continue
		}
		m.out <- dropRecord(component, count)
	}
}

func (m *Mux) trySend(rec Record) bool {
	select {
	case m.out <- rec:
		return true
	default:
		return false
	}
}

func dropRecord(component string, count int) Record {
	return Record{
		Timestamp: time.Now(),
		Component: component,
		Level:     "warn",
		Message:   fmt.Sprintf("dropped=%d", count),
	}
}
