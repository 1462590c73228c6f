package lifecycle

import (
	"context"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"syscall"

	"github.com/socialite-ai/supervisor/pkg/config"
	"github.com/socialite-ai/supervisor/pkg/errors"
	"github.com/socialite-ai/supervisor/pkg/healthgate"
	"github.com/socialite-ai/supervisor/pkg/launch"
	"github.com/socialite-ai/supervisor/pkg/logging"
)

// State models the supervisor's startup progression:
// init -> launching -> gating -> foregrounding|waiting -> terminated.
// There is no restart edge; the terminal state is reached exactly once.
type State string

const (
	StateInit          State = "init"
	StateLaunching     State = "launching"
	StateGating        State = "gating"
	StateForegrounding State = "foregrounding"
	StateWaiting       State = "waiting"
	StateTerminated    State = "terminated"
)

type ManagerOptions struct {
	Config      *config.Config
	BackendSpec launch.ServiceSpec
	UISpec      launch.ServiceSpec
}

// Manager owns the process handles and decides, after the health gate, how
// the supervisor terminates: exec-replaced by the UI in standalone mode, or
// blocked on the backend in managed mode.
//
// Graceful shutdown depends on an external process-group reaper (a container
// init layer) forwarding termination signals to the children. When the
// configuration does not declare one, the manager installs its own handlers
// that terminate tracked process groups before exiting.
type Manager struct {
	options ManagerOptions
	logger  logging.Logger

	execFn func(argv0 string, argv []string, envv []string) error
	exitFn func(code int)

	mutex   sync.Mutex
	state   State
	backend *launch.ProcessHandle
}

func NewManager(options ManagerOptions, logger logging.Logger) (*Manager, error) {
	if options.Config == nil {
		return nil, errors.NewValidationError("configuration cannot be nil", nil)
	}
	if err := launch.ValidateSpec(options.BackendSpec); err != nil {
		return nil, err
	}
	return &Manager{
		options: options,
		logger:  logger,
		execFn:  execProcess,
		exitFn:  os.Exit,
		state:   StateInit,
	}, nil
}

// Run drives the full startup sequence and returns the supervisor's exit
// code. Launch failures return non-zero without attempting the UI; health
// gate exhaustion is non-fatal unless strict mode is configured.
func (m *Manager) Run(ctx context.Context) int {
	cfg := m.options.Config

	if cfg.ExternalReaper {
		m.logger.Debugf("External reaper declared, relying on init layer signal forwarding")
	} else {
		m.installSignalHandlers()
	}

	m.setState(StateLaunching)
	backend, err := launch.Start(m.options.BackendSpec, m.logger)
	if err != nil {
		m.logger.Errorf("Backend launch failed: %v", err)
		m.setState(StateTerminated)
		return 1
	}
	m.setBackend(backend)

	m.setState(StateGating)
	gate := healthgate.New(healthgate.Policy{
		URL:         cfg.HealthURL(),
		Interval:    cfg.HealthInterval,
		MaxAttempts: cfg.HealthAttempts,
		Timeout:     cfg.HealthTimeout,
	}, m.logger)
	if err := gate.Wait(ctx); err != nil {
		if cfg.HealthStrict {
			m.logger.Errorf("Backend failed liveness gate in strict mode: %v", err)
			m.terminateChildren()
			m.setState(StateTerminated)
			return 1
		}
		m.logger.Warnf("Proceeding without backend liveness: %v", err)
	}

	if cfg.Mode == config.ModeManaged {
		return m.waitOnBackend()
	}
	return m.foregroundUI()
}

// waitOnBackend blocks on the backend process and propagates its exit code
// verbatim. Managed platforms route the single exposed port to the backend,
// so no UI process ever exists on this path.
func (m *Manager) waitOnBackend() int {
	m.setState(StateWaiting)
	backend := m.backendHandle()
	m.logger.Infof("Managed mode: waiting on backend process, PID: %d", backend.PID)

	code := backend.Wait()
	m.logger.Infof("Backend exited, code: %d", code)
	m.setState(StateTerminated)
	return code
}

// foregroundUI replaces the supervisor's execution context with the UI
// process. The backend stays behind as a background child of the new
// foreground process and is reaped when its process group tears down.
func (m *Manager) foregroundUI() int {
	m.setState(StateForegrounding)
	spec := m.options.UISpec

	argv0, err := exec.LookPath(spec.Command)
	if err != nil {
		launchErr := errors.NewLaunchError("UI executable not found", err).WithContext("command", spec.Command)
		m.logger.Errorf("UI handoff failed: %v", launchErr)
		m.terminateChildren()
		m.setState(StateTerminated)
		return 1
	}

	argv := append([]string{spec.Command}, spec.Args...)
	envv := append(os.Environ(), spec.Env...)

	m.logger.Infof("Standalone mode: handing off to UI process, command: %s, bind: %s:%d",
		spec.Command, spec.BindAddress, spec.Port)

	if err := m.execFn(argv0, argv, envv); err != nil {
		m.logger.Errorf("UI exec failed: %v", errors.NewLaunchError("failed to exec UI process", err))
		m.terminateChildren()
		m.setState(StateTerminated)
		return 1
	}

	// Unreachable with the real exec; a replaced exec function returns here.
	m.setState(StateTerminated)
	return 0
}

func (m *Manager) installSignalHandlers() {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		received := <-signals
		m.logger.Infof("Received signal: %s, terminating children", received)
		m.terminateChildren()
		code := 1
		if s, ok := received.(syscall.Signal); ok {
			code = 128 + int(s)
		}
		m.exitFn(code)
	}()
}

func (m *Manager) terminateChildren() {
	backend := m.backendHandle()
	if backend == nil || backend.State() == launch.ProcessStateExited {
		return
	}
	if err := backend.Terminate(); err != nil {
		m.logger.Warnf("Failed to terminate backend process group, PID: %d, error: %v", backend.PID, err)
	}
}

func (m *Manager) State() State {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.state
}

func (m *Manager) setState(state State) {
	m.mutex.Lock()
	m.state = state
	m.mutex.Unlock()
}

func (m *Manager) backendHandle() *launch.ProcessHandle {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.backend
}

func (m *Manager) setBackend(handle *launch.ProcessHandle) {
	m.mutex.Lock()
	m.backend = handle
	m.mutex.Unlock()
}
