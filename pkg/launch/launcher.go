package launch

import (
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/socialite-ai/supervisor/pkg/errors"
	"github.com/socialite-ai/supervisor/pkg/logging"
)

// ServiceSpec describes one of the two supervised services. It is immutable
// once resolved at startup.
type ServiceSpec struct {
	Name        string
	Command     string
	Args        []string
	BindAddress string
	Port        int
	Env         []string // KEY=VALUE pairs appended to the supervisor's environment
}

type ProcessState string

const (
	ProcessStateStarting ProcessState = "starting"
	ProcessStateRunning  ProcessState = "running"
	ProcessStateExited   ProcessState = "exited"
)

// ProcessHandle tracks a spawned service process. Ownership is exclusive to
// the lifecycle manager; concurrent access only happens from its signal
// handling goroutine, hence the mutex.
type ProcessHandle struct {
	PID  int
	Spec ServiceSpec

	cmd      *exec.Cmd
	mutex    sync.Mutex
	state    ProcessState
	exitCode int
}

func ValidateSpec(spec ServiceSpec) error {
	if spec.Name == "" {
		return errors.NewValidationError("service name cannot be empty", nil)
	}
	if spec.Command == "" {
		return errors.NewValidationError("service command cannot be empty", nil).WithContext("name", spec.Name)
	}
	return nil
}

// Start spawns the service as a detached background child in its own process
// group and returns immediately without waiting for readiness. Stdout and
// stderr are inherited so the service's output lands in the container log
// stream.
func Start(spec ServiceSpec, logger logging.Logger) (*ProcessHandle, error) {
	if err := ValidateSpec(spec); err != nil {
		return nil, err
	}

	cmd := exec.Command(spec.Command, spec.Args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = append(os.Environ(), spec.Env...)

	// Platform-specific setup lives in launch_unix.go / launch_windows.go
	setupProcessAttributes(cmd)

	logger.Debugf("Launching service, name: %s, command: %s, args: %v", spec.Name, spec.Command, spec.Args)

	if err := cmd.Start(); err != nil {
		return nil, errors.NewLaunchError(
			fmt.Sprintf("failed to start %s process", spec.Name), err,
		).WithContext("command", spec.Command)
	}

	logger.Infof("Launched service, name: %s, PID: %d, bind: %s:%d", spec.Name, cmd.Process.Pid, spec.BindAddress, spec.Port)

	return &ProcessHandle{
		PID:   cmd.Process.Pid,
		Spec:  spec,
		cmd:   cmd,
		state: ProcessStateRunning,
	}, nil
}

// Wait blocks until the process exits and returns its exit code. Processes
// killed by a signal map to the conventional 128+signal code.
func (h *ProcessHandle) Wait() int {
	err := h.cmd.Wait()

	code := exitCode(h.cmd.ProcessState)
	if err != nil && h.cmd.ProcessState == nil {
		// Wait itself failed before the process state was collected.
		code = 1
	}

	h.mutex.Lock()
	h.state = ProcessStateExited
	h.exitCode = code
	h.mutex.Unlock()

	return code
}

// Terminate signals the process group so the service and any children it
// forked receive the termination request together.
func (h *ProcessHandle) Terminate() error {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if h.state == ProcessStateExited {
		return nil
	}
	return sendTerminationSignal(h.PID)
}

func (h *ProcessHandle) State() ProcessState {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.state
}

func (h *ProcessHandle) ExitCode() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.exitCode
}
