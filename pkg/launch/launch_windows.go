//go:build windows

package launch

import (
	"os"
	"os/exec"
)

func setupProcessAttributes(cmd *exec.Cmd) {
	// No process groups on Windows; termination kills the direct child only.
}

func sendTerminationSignal(pid int) error {
	process, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return process.Kill()
}

func exitCode(state *os.ProcessState) int {
	if state == nil {
		return 1
	}
	return state.ExitCode()
}
