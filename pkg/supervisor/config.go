package supervisor

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/core-tools/hsu-proctree/pkg/errors"
	"github.com/core-tools/hsu-proctree/pkg/launcher"
	"github.com/core-tools/hsu-proctree/pkg/logcollection"
	"github.com/core-tools/hsu-proctree/pkg/logging/zaplogging"
	"github.com/core-tools/hsu-proctree/pkg/processtree"
	"github.com/core-tools/hsu-proctree/pkg/statusserver"

	"gopkg.in/yaml.v3"
)

// Config represents the top-level configuration file structure
type Config struct {
	Supervisor SupervisorOptions `yaml:"supervisor"`
	Process    ProcessConfig     `yaml:"process"`
	Stop       StopConfig        `yaml:"stop"`
	Logs       LogsConfig        `yaml:"logs"`
}

// SupervisorOptions configures the supervisor process itself
type SupervisorOptions struct {
	LogLevel  string `yaml:"log_level,omitempty"`
	LogFormat string `yaml:"log_format,omitempty"`

	// StatusAddress enables the status server: "host:port" or "unix:///path"
	StatusAddress string `yaml:"status_address,omitempty"`
}

// ProcessConfig describes the supervised process
type ProcessConfig struct {
	ID               string            `yaml:"id"`
	Executable       string            `yaml:"executable"`
	Arguments        []string          `yaml:"arguments,omitempty"`
	WorkingDirectory string            `yaml:"working_directory,omitempty"`
	Environment      map[string]string `yaml:"environment,omitempty"`
	Priority         string            `yaml:"priority,omitempty"`
	RedirectStdin    *bool             `yaml:"redirect_stdin,omitempty"` // Pointer to distinguish unset from false
}

// StopConfig controls how the process tree is shut down
type StopConfig struct {
	Timeout       time.Duration `yaml:"timeout,omitempty"`
	Order         string        `yaml:"order,omitempty"`
	ForceKillWait time.Duration `yaml:"force_kill_wait,omitempty"`
}

type LogMode string

const (
	LogModeNone   LogMode = "none"
	LogModeLogger LogMode = "logger"
	LogModeFile   LogMode = "file"
)

// LogsConfig selects where the process output goes
type LogsConfig struct {
	Mode          LogMode                  `yaml:"mode,omitempty"`
	CaptureStdout *bool                    `yaml:"capture_stdout,omitempty"`
	CaptureStderr *bool                    `yaml:"capture_stderr,omitempty"`
	File          logcollection.FileConfig `yaml:"file,omitempty"`
}

// LoadConfigFromFile loads supervisor configuration from a YAML file
func LoadConfigFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.NewIOError("failed to read configuration file", err).WithContext("filename", filename)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, errors.NewValidationError("failed to parse YAML configuration", err).WithContext("filename", filename)
	}

	setConfigDefaults(&config)

	return &config, nil
}

// setConfigDefaults applies default values to configuration
func setConfigDefaults(config *Config) {
	if config.Supervisor.LogLevel == "" {
		config.Supervisor.LogLevel = "info"
	}
	if config.Supervisor.LogFormat == "" {
		config.Supervisor.LogFormat = "console"
	}

	if config.Process.ID == "" && config.Process.Executable != "" {
		config.Process.ID = filepath.Base(config.Process.Executable)
	}
	if config.Process.Priority == "" {
		config.Process.Priority = string(launcher.PriorityNormal)
	}
	if config.Process.RedirectStdin == nil {
		redirect := true
		config.Process.RedirectStdin = &redirect
	}

	if config.Stop.Timeout == 0 {
		config.Stop.Timeout = processtree.DefaultStopTimeout
	}
	if config.Stop.Order == "" {
		config.Stop.Order = string(processtree.ChildrenFirst)
	}
	if config.Stop.ForceKillWait == 0 {
		config.Stop.ForceKillWait = processtree.DefaultForceKillWait
	}

	if config.Logs.Mode == "" {
		config.Logs.Mode = LogModeLogger
	}
	if config.Logs.CaptureStdout == nil {
		capture := true
		config.Logs.CaptureStdout = &capture
	}
	if config.Logs.CaptureStderr == nil {
		capture := true
		config.Logs.CaptureStderr = &capture
	}
	if config.Logs.File.MaxSizeMB == 0 {
		config.Logs.File.MaxSizeMB = 10
	}
	if config.Logs.File.MaxBackups == 0 {
		config.Logs.File.MaxBackups = 5
	}
	if config.Logs.File.MaxAgeDays == 0 {
		config.Logs.File.MaxAgeDays = 28
	}
}

// ValidateConfig validates the entire configuration structure
func ValidateConfig(config *Config) error {
	if config == nil {
		return errors.NewValidationError("configuration cannot be nil", nil)
	}

	if _, err := zaplogging.ParseLevel(config.Supervisor.LogLevel); err != nil {
		return errors.NewValidationError("invalid log level", err).WithContext("log_level", config.Supervisor.LogLevel)
	}
	switch config.Supervisor.LogFormat {
	case "console", "json":
	default:
		return errors.NewValidationError("invalid log format", nil).
			WithContext("log_format", config.Supervisor.LogFormat).
			WithContext("supported_formats", "console, json")
	}

	if config.Supervisor.StatusAddress != "" {
		if _, err := statusserver.ParseAddress(config.Supervisor.StatusAddress); err != nil {
			return errors.NewValidationError("invalid status address", err).WithContext("status_address", config.Supervisor.StatusAddress)
		}
	}

	if config.Process.Executable == "" {
		return errors.NewValidationError("process executable is required", nil).WithContext("process_id", config.Process.ID)
	}
	if _, err := launcher.ParsePriorityClass(config.Process.Priority); err != nil {
		return errors.NewValidationError("invalid process configuration", err).WithContext("process_id", config.Process.ID)
	}

	if config.Stop.Timeout < 0 {
		return errors.NewValidationError("stop timeout cannot be negative", nil).WithContext("timeout", config.Stop.Timeout.String())
	}
	if config.Stop.ForceKillWait < 0 {
		return errors.NewValidationError("force kill wait cannot be negative", nil).WithContext("force_kill_wait", config.Stop.ForceKillWait.String())
	}
	if _, err := processtree.ParseStopOrder(config.Stop.Order); err != nil {
		return errors.NewValidationError("invalid stop order", err).
			WithContext("order", config.Stop.Order).
			WithContext("supported_orders", fmt.Sprintf("%s, %s", processtree.ChildrenFirst, processtree.ParentFirst))
	}

	switch config.Logs.Mode {
	case LogModeNone, LogModeLogger:
	case LogModeFile:
		if config.Logs.File.Path == "" {
			return errors.NewValidationError("log file path is required in file mode", nil).WithContext("process_id", config.Process.ID)
		}
	default:
		return errors.NewValidationError("invalid log mode", nil).
			WithContext("mode", string(config.Logs.Mode)).
			WithContext("supported_modes", "none, logger, file")
	}

	return nil
}

// ValidateConfigFile validates a configuration file without running it
func ValidateConfigFile(configFile string) error {
	config, err := LoadConfigFromFile(configFile)
	if err != nil {
		return errors.NewIOError("failed to load configuration", err).WithContext("config_file", configFile)
	}
	if err := ValidateConfig(config); err != nil {
		return errors.NewValidationError("configuration validation failed", err).WithContext("config_file", configFile)
	}
	return nil
}

// LaunchSpec converts the process section into a launch spec
func (c *Config) LaunchSpec() launcher.LaunchSpec {
	spec := launcher.LaunchSpec{
		Executable:       c.Process.Executable,
		Arguments:        c.Process.Arguments,
		WorkingDirectory: c.Process.WorkingDirectory,
		Environment:      c.Process.Environment,
		RedirectStdin:    c.Process.RedirectStdin,
	}
	if priority, err := launcher.ParsePriorityClass(c.Process.Priority); err == nil {
		spec.Priority = &priority
	}
	return spec
}

// StopPolicy converts the stop section into a policy
func (c *Config) StopPolicy() processtree.StopPolicy {
	order, err := processtree.ParseStopOrder(c.Stop.Order)
	if err != nil {
		order = processtree.ChildrenFirst
	}
	return processtree.StopPolicy{Timeout: c.Stop.Timeout, Order: order}
}

// LogConfig converts the logs section into a forwarder configuration
func (c *Config) LogConfig() logcollection.Config {
	config := logcollection.DefaultConfig()
	if c.Logs.CaptureStdout != nil {
		config.CaptureStdout = *c.Logs.CaptureStdout
	}
	if c.Logs.CaptureStderr != nil {
		config.CaptureStderr = *c.Logs.CaptureStderr
	}
	return config
}
