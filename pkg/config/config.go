package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/socialite-ai/supervisor/pkg/errors"
	"github.com/socialite-ai/supervisor/pkg/launch"
)

// DeploymentMode selects how the supervisor exposes the two services.
type DeploymentMode string

const (
	// ModeStandalone runs backend and UI locally on distinct ports.
	ModeStandalone DeploymentMode = "standalone"
	// ModeManaged means the hosting platform routes a single externally
	// reachable port to the backend; no UI process is started.
	ModeManaged DeploymentMode = "managed"
)

const (
	bindAllAddress  = "0.0.0.0"
	loopbackAddress = "127.0.0.1"
)

// Config is the effective supervisor configuration, resolved once at entry
// and passed explicitly to each component. It is never mutated afterwards.
type Config struct {
	Mode           DeploymentMode
	APIPort        int
	UIPort         int
	BackendModule  string
	UIEntry        string
	PythonBin      string
	HealthPath     string
	HealthInterval time.Duration
	HealthAttempts int
	HealthTimeout  time.Duration
	HealthStrict   bool
	ExternalReaper bool
}

// envOverrides mirrors the supervisor's environment surface. Pointer fields
// distinguish unset variables from explicit zero values.
type envOverrides struct {
	APIPort        *int           `env:"API_PORT"`
	UIPort         *int           `env:"UI_PORT"`
	BackendModule  *string        `env:"BACKEND_MODULE"`
	UIEntry        *string        `env:"UI_ENTRY"`
	PythonBin      *string        `env:"PYTHON_BIN"`
	HealthPath     *string        `env:"HEALTHCHECK_PATH"`
	HealthInterval *time.Duration `env:"HEALTHCHECK_INTERVAL"`
	HealthAttempts *int           `env:"HEALTHCHECK_ATTEMPTS"`
	HealthTimeout  *time.Duration `env:"HEALTHCHECK_TIMEOUT"`
	HealthStrict   *bool          `env:"HEALTHCHECK_STRICT"`
	ExternalReaper *bool          `env:"SUPERVISOR_EXTERNAL_REAPER"`

	// PORT is injected by single-port hosting platforms. Its presence
	// selects managed mode and overrides the API port.
	PlatformPort *int `env:"PORT"`
}

// fileConfig is the optional YAML configuration file structure.
type fileConfig struct {
	APIPort        *int                  `yaml:"api_port,omitempty"`
	UIPort         *int                  `yaml:"ui_port,omitempty"`
	BackendModule  *string               `yaml:"backend_module,omitempty"`
	UIEntry        *string               `yaml:"ui_entry,omitempty"`
	PythonBin      *string               `yaml:"python_bin,omitempty"`
	ExternalReaper *bool                 `yaml:"external_reaper,omitempty"`
	HealthCheck    fileHealthCheckConfig `yaml:"health_check,omitempty"`
}

type fileHealthCheckConfig struct {
	Path     *string        `yaml:"path,omitempty"`
	Interval *time.Duration `yaml:"interval,omitempty"`
	Attempts *int           `yaml:"max_attempts,omitempty"`
	Timeout  *time.Duration `yaml:"timeout,omitempty"`
	Strict   *bool          `yaml:"strict,omitempty"`
}

func defaultConfig() *Config {
	return &Config{
		Mode:           ModeStandalone,
		APIPort:        8000,
		UIPort:         8501,
		BackendModule:  "main:app",
		UIEntry:        "ui/app.py",
		PythonBin:      "python",
		HealthPath:     "/",
		HealthInterval: 1 * time.Second,
		HealthAttempts: 30,
		HealthTimeout:  2 * time.Second,
	}
}

// Resolve builds the effective configuration. Precedence, lowest to highest:
// built-in defaults, optional YAML file, environment variables, and finally
// the platform-injected PORT variable.
func Resolve(configFile string) (*Config, error) {
	config := defaultConfig()

	if configFile != "" {
		if err := applyFile(config, configFile); err != nil {
			return nil, err
		}
	}

	var overrides envOverrides
	if err := env.Parse(&overrides); err != nil {
		return nil, errors.NewConfigurationError("failed to parse environment variables", err)
	}
	applyEnv(config, &overrides)

	if overrides.PlatformPort != nil {
		config.APIPort = *overrides.PlatformPort
		config.Mode = ModeManaged
	}

	if err := Validate(config); err != nil {
		return nil, err
	}

	return config, nil
}

func applyFile(config *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return errors.NewIOError("failed to read configuration file", err).WithContext("filename", filename)
	}

	var file fileConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return errors.NewConfigurationError("failed to parse YAML configuration", err).WithContext("filename", filename)
	}

	if file.APIPort != nil {
		config.APIPort = *file.APIPort
	}
	if file.UIPort != nil {
		config.UIPort = *file.UIPort
	}
	if file.BackendModule != nil {
		config.BackendModule = *file.BackendModule
	}
	if file.UIEntry != nil {
		config.UIEntry = *file.UIEntry
	}
	if file.PythonBin != nil {
		config.PythonBin = *file.PythonBin
	}
	if file.ExternalReaper != nil {
		config.ExternalReaper = *file.ExternalReaper
	}
	if file.HealthCheck.Path != nil {
		config.HealthPath = *file.HealthCheck.Path
	}
	if file.HealthCheck.Interval != nil {
		config.HealthInterval = *file.HealthCheck.Interval
	}
	if file.HealthCheck.Attempts != nil {
		config.HealthAttempts = *file.HealthCheck.Attempts
	}
	if file.HealthCheck.Timeout != nil {
		config.HealthTimeout = *file.HealthCheck.Timeout
	}
	if file.HealthCheck.Strict != nil {
		config.HealthStrict = *file.HealthCheck.Strict
	}

	return nil
}

func applyEnv(config *Config, overrides *envOverrides) {
	if overrides.APIPort != nil {
		config.APIPort = *overrides.APIPort
	}
	if overrides.UIPort != nil {
		config.UIPort = *overrides.UIPort
	}
	if overrides.BackendModule != nil {
		config.BackendModule = *overrides.BackendModule
	}
	if overrides.UIEntry != nil {
		config.UIEntry = *overrides.UIEntry
	}
	if overrides.PythonBin != nil {
		config.PythonBin = *overrides.PythonBin
	}
	if overrides.HealthPath != nil {
		config.HealthPath = *overrides.HealthPath
	}
	if overrides.HealthInterval != nil {
		config.HealthInterval = *overrides.HealthInterval
	}
	if overrides.HealthAttempts != nil {
		config.HealthAttempts = *overrides.HealthAttempts
	}
	if overrides.HealthTimeout != nil {
		config.HealthTimeout = *overrides.HealthTimeout
	}
	if overrides.HealthStrict != nil {
		config.HealthStrict = *overrides.HealthStrict
	}
	if overrides.ExternalReaper != nil {
		config.ExternalReaper = *overrides.ExternalReaper
	}
}

// Validate checks the resolved configuration. It is called by Resolve but
// exported so hand-constructed configurations can be checked too.
func Validate(config *Config) error {
	if config == nil {
		return errors.NewValidationError("configuration cannot be nil", nil)
	}
	if err := validatePort(config.APIPort); err != nil {
		return errors.NewConfigurationError("invalid API port", err)
	}
	if err := validatePort(config.UIPort); err != nil {
		return errors.NewConfigurationError("invalid UI port", err)
	}
	if config.Mode == ModeStandalone && config.APIPort == config.UIPort {
		return errors.NewConfigurationError(
			fmt.Sprintf("API and UI ports must differ in standalone mode: %d", config.APIPort), nil)
	}
	if config.BackendModule == "" {
		return errors.NewConfigurationError("backend module identifier cannot be empty", nil)
	}
	if config.UIEntry == "" {
		return errors.NewConfigurationError("UI entry identifier cannot be empty", nil)
	}
	if !strings.HasPrefix(config.HealthPath, "/") {
		return errors.NewConfigurationError(
			fmt.Sprintf("health check path must begin with '/': %q", config.HealthPath), nil)
	}
	if config.HealthInterval <= 0 {
		return errors.NewConfigurationError(
			fmt.Sprintf("health check interval must be positive: %v", config.HealthInterval), nil)
	}
	if config.HealthAttempts <= 0 {
		return errors.NewConfigurationError(
			fmt.Sprintf("health check attempts must be positive: %d", config.HealthAttempts), nil)
	}
	if config.HealthTimeout <= 0 {
		return errors.NewConfigurationError(
			fmt.Sprintf("health check timeout must be positive: %v", config.HealthTimeout), nil)
	}
	return nil
}

func validatePort(port int) error {
	if port <= 0 || port > 65535 {
		return errors.NewValidationError(
			fmt.Sprintf("invalid port number: %d", port),
			nil,
		).WithContext("valid_range", "1-65535")
	}
	return nil
}

// HealthURL is the liveness endpoint the health gate polls. The probe always
// targets loopback: the gate runs in the same container as the backend.
func (c *Config) HealthURL() string {
	return fmt.Sprintf("http://%s:%d%s", loopbackAddress, c.APIPort, c.HealthPath)
}

// BackendSpec describes the backend API process bound to all interfaces on
// the resolved API port.
func (c *Config) BackendSpec() launch.ServiceSpec {
	return launch.ServiceSpec{
		Name:    "backend",
		Command: c.PythonBin,
		Args: []string{
			"-m", "uvicorn", c.BackendModule,
			"--host", bindAllAddress,
			"--port", strconv.Itoa(c.APIPort),
		},
		BindAddress: bindAllAddress,
		Port:        c.APIPort,
	}
}

// UISpec describes the foreground UI process. The UI reaches the backend
// over loopback, so API_BASE is injected into its environment.
func (c *Config) UISpec() launch.ServiceSpec {
	return launch.ServiceSpec{
		Name:    "ui",
		Command: c.PythonBin,
		Args: []string{
			"-m", "streamlit", "run", c.UIEntry,
			"--server.address", bindAllAddress,
			"--server.port", strconv.Itoa(c.UIPort),
			"--server.headless", "true",
		},
		BindAddress: bindAllAddress,
		Port:        c.UIPort,
		Env: []string{
			fmt.Sprintf("API_BASE=http://%s:%d", loopbackAddress, c.APIPort),
		},
	}
}
