package proc

import (
	"context"
	stdruntime "runtime"
	"strings"
	"testing"
	"time"
)

func collectEvents(t *testing.T, events <-chan Event) []Event {
	t.Helper()
	var collected []Event
	deadline := time.After(5 * time.Second)
	for {
		select {
		case evt, ok := <-events:
			if !ok {
				return collected
			}
			collected = append(collected, evt)
		case <-deadline:
			t.Fatalf("timed out collecting events; got %v", collected)
		}
	}
}

func TestLaunchStreamsOutputAndExitCode(t *testing.T) {
	if stdruntime.GOOS == "windows" {
		t.Skip("process launcher tests skipped on windows")
	}

	launcher := NewLocalLauncher()
	handle, events, err := launcher.Launch(context.Background(), Spec{
		Path: "/bin/sh",
		Args: []string{"-c", "echo out-line; echo err-line 1>&2; exit 3"},
	})
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	if handle.PID() <= 0 {
		t.Fatalf("invalid pid %d", handle.PID())
	}

	collected := collectEvents(t, events)
	if len(collected) < 3 {
		t.Fatalf("expected stdout, stderr and exit events, got %v", collected)
	}

	last := collected[len(collected)-1]
	if last.Kind != KindExited || last.Code != 3 {
		t.Fatalf("unexpected terminal event: %+v", last)
	}

	// Stdout and stderr are scanned concurrently, so only the relative order
	// within each stream is guaranteed.
	var sawOut, sawErr bool
	for _, evt := range collected[:len(collected)-1] {
		switch evt.Kind {
		case KindStdout:
			sawOut = evt.Line == "out-line"
		case KindStderr:
			sawErr = evt.Line == "err-line"
		default:
			t.Fatalf("unexpected event before exit: %+v", evt)
		}
	}
	if !sawOut || !sawErr {
		t.Fatalf("missing output events: %v", collected)
	}
}

func TestKillClosesStreamWithSignal(t *testing.T) {
	if stdruntime.GOOS == "windows" {
		t.Skip("process launcher tests skipped on windows")
	}

	launcher := NewLocalLauncher()
	handle, events, err := launcher.Launch(context.Background(), Spec{
		Path: "/bin/sh",
		Args: []string{"-c", "sleep 30"},
	})
	if err != nil {
		t.Fatalf("launch: %v", err)
	}

	if err := handle.Kill(); err != nil {
		t.Fatalf("kill: %v", err)
	}

	collected := collectEvents(t, events)
	if len(collected) == 0 {
		t.Fatal("expected at least the terminal event")
	}
	last := collected[len(collected)-1]
	if last.Kind != KindExited {
		t.Fatalf("stream did not end with an exit event: %+v", last)
	}
	if last.Signal == "" || !strings.Contains(last.Signal, "killed") {
		t.Fatalf("expected killed signal, got %+v", last)
	}

	// A second kill of the already-dead group is tolerated.
	if err := handle.Kill(); err != nil {
		t.Fatalf("second kill: %v", err)
	}
}

func TestLaunchMissingExecutable(t *testing.T) {
	if stdruntime.GOOS == "windows" {
		t.Skip("process launcher tests skipped on windows")
	}

	launcher := NewLocalLauncher()
	handle, events, err := launcher.Launch(context.Background(), Spec{Path: "nonexistent-executable-quickdock"})
	if err == nil {
		t.Fatal("expected launch error for missing executable")
	}
	if handle != nil || events != nil {
		t.Fatalf("expected no handle or stream on failure, got %v %v", handle, events)
	}
}

func TestLaunchAppliesEnvOverrides(t *testing.T) {
	if stdruntime.GOOS == "windows" {
		t.Skip("process launcher tests skipped on windows")
	}

	launcher := NewLocalLauncher()
	_, events, err := launcher.Launch(context.Background(), Spec{
		Path:    "/bin/sh",
		Args:    []string{"-c", `echo "value=$QUICKDOCK_TEST_VAR"`},
		Env:     map[string]string{"QUICKDOCK_TEST_VAR": "sidecar"},
		Workdir: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("launch: %v", err)
	}

	collected := collectEvents(t, events)
	var line string
	for _, evt := range collected {
		if evt.Kind == KindStdout {
			line = evt.Line
		}
	}
	if line != "value=sidecar" {
		t.Fatalf("environment override not applied: %v", collected)
	}
	last := collected[len(collected)-1]
	if last.Kind != KindExited || last.Code != 0 {
		t.Fatalf("unexpected terminal event: %+v", last)
	}
}
