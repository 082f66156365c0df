//go:build windows

package proc

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
)

func configureCmdSysProcAttr(cmd *exec.Cmd) {}

func killFunc(cmd *exec.Cmd) func() error {
	process := cmd.Process
	return func() error {
		if err := process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return fmt.Errorf("kill process %d: %w", process.Pid, err)
		}
		return nil
	}
}

func terminatingSignal(state *os.ProcessState) string {
	return ""
}
