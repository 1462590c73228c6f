//go:build windows

package lifecycle

import (
	"os"
	"os/exec"
)

// execProcess emulates the Unix exec handoff: the UI runs as a child with
// inherited stdio and its exit code is forwarded as the supervisor's own.
func execProcess(argv0 string, argv []string, envv []string) error {
	cmd := exec.Command(argv0, argv[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = envv

	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			os.Exit(exitErr.ExitCode())
		}
		return err
	}
	os.Exit(0)
	return nil
}
