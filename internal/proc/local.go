package proc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
)

const eventBufferSize = 64

type localLauncher struct{}

// NewLocalLauncher constructs a Launcher that executes children as local
// processes with captured standard streams.
func NewLocalLauncher() Launcher {
	return &localLauncher{}
}

func (l *localLauncher) Launch(ctx context.Context, spec Spec) (*Handle, <-chan Event, error) {
	if spec.Path == "" {
		return nil, nil, fmt.Errorf("launch requires an executable path")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	cmd := exec.CommandContext(ctx, spec.Path, spec.Args...)
	if spec.Workdir != "" {
		cmd.Dir = spec.Workdir
	}
	cmd.Env = mergeEnv(os.Environ(), spec.Env)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("stderr pipe: %w", err)
	}

	configureCmdSysProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("start %s: %w", spec.Path, err)
	}

	events := make(chan Event, eventBufferSize)

	var wg sync.WaitGroup
	wg.Add(2)
	go scanPipe(stdout, KindStdout, events, &wg)
	go scanPipe(stderr, KindStderr, events, &wg)

	go func() {
		waitErr := cmd.Wait()
		// Wait closes the pipes, so the scanners finish before the terminal
		// event is delivered and the channel closed.
		wg.Wait()
		events <- exitEvent(waitErr, cmd)
		close(events)
	}()

	return NewHandle(cmd.Process.Pid, killFunc(cmd)), events, nil
}

func scanPipe(r io.Reader, kind EventKind, events chan<- Event, wg *sync.WaitGroup) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		events <- Event{Kind: kind, Line: strings.TrimRight(scanner.Text(), "\r")}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
		events <- Event{Kind: KindError, Err: fmt.Errorf("read %s: %w", kind, err)}
	}
}

func exitEvent(waitErr error, cmd *exec.Cmd) Event {
	evt := Event{Kind: KindExited, Code: cmd.ProcessState.ExitCode()}
	if sig := terminatingSignal(cmd.ProcessState); sig != "" {
		evt.Signal = sig
	}
	if waitErr != nil {
		if _, ok := waitErr.(*exec.ExitError); !ok {
			evt.Err = waitErr
		}
	}
	return evt
}

func mergeEnv(base []string, overrides map[string]string) []string {
	env := append([]string(nil), base...)
	if len(overrides) == 0 {
		return env
	}
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, fmt.Sprintf("%s=%s", k, overrides[k]))
	}
	return env
}
