//go:build !windows

package lifecycle

import "syscall"

// execProcess replaces the supervisor with the UI process. On success it
// never returns: the UI inherits the supervisor's PID and its running
// backend child, and the UI's exit code becomes the container's.
func execProcess(argv0 string, argv []string, envv []string) error {
	return syscall.Exec(argv0, argv, envv)
}
