package lifecycle

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"runtime"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/phayes/freeport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/socialite-ai/supervisor/pkg/config"
	"github.com/socialite-ai/supervisor/pkg/launch"
)

type testLogger struct{}

func (l *testLogger) Debugf(format string, args ...interface{}) {}
func (l *testLogger) Infof(format string, args ...interface{})  {}
func (l *testLogger) Warnf(format string, args ...interface{})  {}
func (l *testLogger) Errorf(format string, args ...interface{}) {}

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("test relies on /bin/sh")
	}
}

func shellSpec(name, script string) launch.ServiceSpec {
	return launch.ServiceSpec{
		Name:    name,
		Command: "/bin/sh",
		Args:    []string{"-c", script},
	}
}

// testConfig targets a port nothing listens on, so the gate exhausts quickly
// unless the test points APIPort at a live server.
func testConfig(t *testing.T, mode config.DeploymentMode) *config.Config {
	t.Helper()
	port, err := freeport.GetFreePort()
	require.NoError(t, err)

	return &config.Config{
		Mode:           mode,
		APIPort:        port,
		UIPort:         port + 1,
		BackendModule:  "main:app",
		UIEntry:        "ui/app.py",
		PythonBin:      "python",
		HealthPath:     "/",
		HealthInterval: 5 * time.Millisecond,
		HealthAttempts: 2,
		HealthTimeout:  time.Second,
		ExternalReaper: true,
	}
}

// execRecorder replaces the process-image exec with a stub that records the
// handoff instead of replacing the test binary.
type execRecorder struct {
	called int32
	argv0  string
	argv   []string
	err    error
}

func (r *execRecorder) exec(argv0 string, argv []string, envv []string) error {
	atomic.AddInt32(&r.called, 1)
	r.argv0 = argv0
	r.argv = argv
	return r.err
}

func (r *execRecorder) wasCalled() bool {
	return atomic.LoadInt32(&r.called) > 0
}

func newTestManager(t *testing.T, cfg *config.Config, backend, ui launch.ServiceSpec) (*Manager, *execRecorder) {
	t.Helper()
	manager, err := NewManager(ManagerOptions{
		Config:      cfg,
		BackendSpec: backend,
		UISpec:      ui,
	}, &testLogger{})
	require.NoError(t, err)

	recorder := &execRecorder{}
	manager.execFn = recorder.exec
	return manager, recorder
}

func TestRun_ManagedPropagatesBackendExitCode(t *testing.T) {
	skipOnWindows(t)

	cfg := testConfig(t, config.ModeManaged)
	manager, recorder := newTestManager(t, cfg,
		shellSpec("backend", "exit 7"),
		shellSpec("ui", "exit 0"),
	)

	code := manager.Run(context.Background())

	assert.Equal(t, 7, code)
	assert.False(t, recorder.wasCalled(), "managed mode must never start a UI process")
	assert.Equal(t, StateTerminated, manager.State())
}

func TestRun_ManagedCleanBackendExit(t *testing.T) {
	skipOnWindows(t)

	cfg := testConfig(t, config.ModeManaged)
	manager, recorder := newTestManager(t, cfg,
		shellSpec("backend", "exit 0"),
		shellSpec("ui", "exit 0"),
	)

	assert.Equal(t, 0, manager.Run(context.Background()))
	assert.False(t, recorder.wasCalled())
}

func TestRun_StandaloneHandsOffToUIAfterHealthyGate(t *testing.T) {
	skipOnWindows(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	serverURL, err := url.Parse(server.URL)
	require.NoError(t, err)
	apiPort, err := strconv.Atoi(serverURL.Port())
	require.NoError(t, err)

	cfg := testConfig(t, config.ModeStandalone)
	cfg.APIPort = apiPort

	backendSpec := shellSpec("backend", "sleep 30")
	uiSpec := shellSpec("ui", "exit 0")
	manager, recorder := newTestManager(t, cfg, backendSpec, uiSpec)
	defer manager.terminateChildren()

	code := manager.Run(context.Background())

	assert.Equal(t, 0, code)
	require.True(t, recorder.wasCalled())
	assert.Equal(t, append([]string{uiSpec.Command}, uiSpec.Args...), recorder.argv)
	assert.Equal(t, StateTerminated, manager.State())
}

func TestRun_StandaloneGateExhaustionIsNonFatal(t *testing.T) {
	skipOnWindows(t)

	cfg := testConfig(t, config.ModeStandalone)

	manager, recorder := newTestManager(t, cfg,
		shellSpec("backend", "sleep 30"),
		shellSpec("ui", "exit 0"),
	)
	defer manager.terminateChildren()

	code := manager.Run(context.Background())

	assert.Equal(t, 0, code)
	assert.True(t, recorder.wasCalled(), "exhausted gate must still hand off to the UI")
}

func TestRun_StrictGateExhaustionIsFatal(t *testing.T) {
	skipOnWindows(t)

	cfg := testConfig(t, config.ModeStandalone)
	cfg.HealthStrict = true

	manager, recorder := newTestManager(t, cfg,
		shellSpec("backend", "sleep 30"),
		shellSpec("ui", "exit 0"),
	)
	defer manager.terminateChildren()

	code := manager.Run(context.Background())

	assert.Equal(t, 1, code)
	assert.False(t, recorder.wasCalled())
	assert.Equal(t, StateTerminated, manager.State())
}

func TestRun_BackendLaunchFailureIsFatal(t *testing.T) {
	cfg := testConfig(t, config.ModeStandalone)

	manager, recorder := newTestManager(t, cfg,
		launch.ServiceSpec{Name: "backend", Command: "definitely-not-an-installed-binary"},
		shellSpec("ui", "exit 0"),
	)

	code := manager.Run(context.Background())

	assert.Equal(t, 1, code)
	assert.False(t, recorder.wasCalled(), "launch failure must not attempt the UI")
	assert.Equal(t, StateTerminated, manager.State())
}

func TestRun_UIExecFailure(t *testing.T) {
	skipOnWindows(t)

	cfg := testConfig(t, config.ModeStandalone)

	manager, recorder := newTestManager(t, cfg,
		shellSpec("backend", "sleep 30"),
		shellSpec("ui", "exit 0"),
	)
	recorder.err = assert.AnError

	code := manager.Run(context.Background())

	assert.Equal(t, 1, code)
	assert.Equal(t, StateTerminated, manager.State())
}

func TestRun_UIExecutableNotFound(t *testing.T) {
	skipOnWindows(t)

	cfg := testConfig(t, config.ModeStandalone)

	manager, recorder := newTestManager(t, cfg,
		shellSpec("backend", "sleep 30"),
		launch.ServiceSpec{Name: "ui", Command: "definitely-not-an-installed-binary"},
	)

	code := manager.Run(context.Background())

	assert.Equal(t, 1, code)
	assert.False(t, recorder.wasCalled())
}

func TestNewManager_Validation(t *testing.T) {
	_, err := NewManager(ManagerOptions{}, &testLogger{})
	assert.Error(t, err)

	_, err = NewManager(ManagerOptions{
		Config: &config.Config{},
	}, &testLogger{})
	assert.Error(t, err, "backend spec must be valid")
}
