package diag

import (
	"testing"
	"time"
)

func TestMuxFansInMultipleSources(t *testing.T) {
	mux := NewMux(4)
	src1 := make(chan Record)
	src2 := make(chan Record)

	mux.Add(src1)
	mux.Add(src2)

	go func() {
		src1 <- Record{Component: "sidecar", Message: "backend started"}
		src1 <- Record{Component: "sidecar", Message: "backend ok"}
		close(src1)
	}()

	go func() {
		src2 <- Record{Component: "host", Message: "window open"}
		close(src2)
	}()

	go mux.Close()

	var messages []string
	for rec := range mux.Output() {
		messages = append(messages, rec.Message)
	}

	if len(messages) != 3 {
		t.Fatalf("expected 3 records, got %d: %v", len(messages), messages)
	}
}

func TestMuxEmitsDropMetaRecords(t *testing.T) {
	mux := NewMux(1)
	src := make(chan Record)

	mux.Add(src)

	done := make(chan struct{})
	go func() {
		src <- Record{Component: "sidecar", Message: "line-1"}
		src <- Record{Component: "sidecar", Message: "line-2"}
		src <- Record{Component: "sidecar", Message: "line-3"}
		close(src)
		close(done)
	}()

	<-done

	go mux.Close()

	var records []Record
	for rec := range mux.Output() {
		records = append(records, rec)
	}

	if len(records) != 2 {
		t.Fatalf("expected 2 records (1 line + 1 meta), got %d", len(records))
	}

	if records[0].Message != "line-1" {
		t.Fatalf("expected first record to be the original line, got %q", records[0].Message)
	}

	meta := records[1]
	if meta.Component != "sidecar" {
		t.Fatalf("meta record component mismatch: got %s", meta.Component)
	}
	if meta.Message != "dropped=2" {
		t.Fatalf("expected drop metadata, got %q", meta.Message)
	}
	if meta.Level != "warn" {
		t.Fatalf("expected meta level warn, got %s", meta.Level)
	}
	if time.Since(meta.Timestamp) > time.Second {
		t.Fatalf("expected recent timestamp, got %v", meta.Timestamp)
	}
}
