//go:build !windows

package launch

import (
	"os"
	"os/exec"
	"syscall"
)

// setupProcessAttributes puts the child in its own process group so a single
// signal to -pid reaches the service and everything it forked.
func setupProcessAttributes(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}

func sendTerminationSignal(pid int) error {
	return syscall.Kill(-pid, syscall.SIGTERM)
}

func exitCode(state *os.ProcessState) int {
	if state == nil {
		return 1
	}
	if status, ok := state.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		return 128 + int(status.Signal())
	}
	return state.ExitCode()
}
