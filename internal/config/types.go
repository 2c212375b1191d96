// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"interpd/internal/environment"
	"interpd/internal/marker"
)

const (
	// LogLevelDebug logs protocol and process lifecycle details.
	LogLevelDebug LogLevel = "debug"
	// LogLevelInfo is the default level.
	LogLevelInfo LogLevel = "info"
	// LogLevelWarn logs only warnings, such as cleanup failures.
	LogLevelWarn LogLevel = "warn"
	// LogLevelError logs only errors.
	LogLevelError LogLevel = "error"

	// DefaultEnvironment is the environment used when none is selected.
	DefaultEnvironment = "shell"
	// DefaultServerAddr is the listen address of `interpd serve`.
	DefaultServerAddr = "127.0.0.1:8765"
	// toolRepositoryDirName is the default tool repository directory inside the config dir.
	toolRepositoryDirName = "tools"
)

var (
	// ErrInvalidLogLevel is the sentinel error wrapped by InvalidLogLevelError.
	ErrInvalidLogLevel = errors.New("invalid log level")
	// ErrInvalidSessionConfig is the sentinel error wrapped by InvalidSessionConfigError.
	ErrInvalidSessionConfig = errors.New("invalid session config")
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
)

type (
	// LogLevel is the minimum level of log records written to stderr.
	LogLevel string

	// InvalidLogLevelError is returned when a LogLevel value is not recognized.
	// It wraps ErrInvalidLogLevel for errors.Is() compatibility.
	InvalidLogLevelError struct {
		Value LogLevel
	}

	// InvalidSessionConfigError is returned when a SessionConfig has invalid fields.
	InvalidSessionConfigError struct {
		FieldErrors []error
	}

	// InvalidConfigError is returned when a Config has invalid fields.
	// It wraps ErrInvalidConfig for errors.Is() compatibility and collects
	// field-level validation errors from all sub-components.
	InvalidConfigError struct {
		FieldErrors []error
	}

	// Config holds the application configuration.
	Config struct {
		// DefaultEnvironment is used when a command does not select one.
		DefaultEnvironment string `json:"default_environment" mapstructure:"default_environment"`
		// LogLevel sets the minimum log level.
		LogLevel LogLevel `json:"log_level" mapstructure:"log_level"`
		// ToolRepository is the tool repository directory. Empty means <config dir>/tools.
		ToolRepository string `json:"tool_repository" mapstructure:"tool_repository"`
		// Session configures interactive sessions.
		Session SessionConfig `json:"session" mapstructure:"session"`
		// Markers overrides the marker wire format.
		Markers marker.Delimiters `json:"markers" mapstructure:"markers"`
		// Environments holds per-environment settings keyed by environment name or alias.
		// It is decoded straight from CUE because Viper lower-cases map keys,
		// which would corrupt the variable names under env.
		Environments map[string]EnvironmentConfig `json:"environments" mapstructure:"-"`
		// OneShot configures the one-shot variants.
		OneShot OneShotConfig `json:"oneshot" mapstructure:"oneshot"`
		// Server configures `interpd serve`.
		Server ServerConfig `json:"server" mapstructure:"server"`
	}

	// SessionConfig bounds the lifecycle of interactive sessions.
	SessionConfig struct {
		// StopTimeout is how long Stop waits before killing the interpreter.
		StopTimeout time.Duration `json:"stop_timeout" mapstructure:"stop_timeout"`
		// TerminateTimeout is how long Terminate waits for cleanup.
		TerminateTimeout time.Duration `json:"terminate_timeout" mapstructure:"terminate_timeout"`
		// QueueSize is the capacity of the merged output queue.
		QueueSize int `json:"queue_size" mapstructure:"queue_size"`
	}

	// EnvironmentConfig overrides how one environment starts its interpreter.
	EnvironmentConfig struct {
		Executable string            `json:"executable,omitempty"`
		Args       []string          `json:"args,omitempty"`
		Dir        string            `json:"dir,omitempty"`
		PTY        bool              `json:"pty,omitempty"`
		EnvFiles   []string          `json:"env_files,omitempty"`
		Env        map[string]string `json:"env,omitempty"`
	}

	// OneShotConfig configures one-shot variants.
	OneShotConfig struct {
		// TempDir holds temporary script files. Empty means the system default.
		TempDir string `json:"temp_dir" mapstructure:"temp_dir"`
	}

	// ServerConfig configures the websocket server.
	ServerConfig struct {
		// Addr is the listen address.
		Addr string `json:"addr" mapstructure:"addr"`
	}
)

// Error implements the error interface.
func (e *InvalidLogLevelError) Error() string {
	return fmt.Sprintf("invalid log level %q (valid: %s, %s, %s, %s)",
		e.Value, LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError)
}

// Unwrap returns ErrInvalidLogLevel so callers can use errors.Is for programmatic detection.
func (e *InvalidLogLevelError) Unwrap() error { return ErrInvalidLogLevel }

// String returns the string representation of the LogLevel.
func (l LogLevel) String() string { return string(l) }

// Validate returns nil if the LogLevel is one of the defined levels.
func (l LogLevel) Validate() error {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return nil
	default:
		return &InvalidLogLevelError{Value: l}
	}
}

// SlogLevel converts the level for log/slog handlers.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Error implements the error interface.
func (e *InvalidSessionConfigError) Error() string {
	return fmt.Sprintf("invalid session config: %d field error(s)", len(e.FieldErrors))
}

// Unwrap returns ErrInvalidSessionConfig for errors.Is() compatibility.
func (e *InvalidSessionConfigError) Unwrap() error { return ErrInvalidSessionConfig }

// Validate returns nil if every duration and size is non-negative.
func (s SessionConfig) Validate() error {
	var errs []error
	if s.StopTimeout < 0 {
		errs = append(errs, fmt.Errorf("stop_timeout must not be negative, got %s", s.StopTimeout))
	}
	if s.TerminateTimeout < 0 {
		errs = append(errs, fmt.Errorf("terminate_timeout must not be negative, got %s", s.TerminateTimeout))
	}
	if s.QueueSize < 0 {
		errs = append(errs, fmt.Errorf("queue_size must not be negative, got %d", s.QueueSize))
	}
	if len(errs) > 0 {
		return &InvalidSessionConfigError{FieldErrors: errs}
	}
	return nil
}

// Error implements the error interface.
func (e *InvalidConfigError) Error() string {
	msgs := make([]string, 0, len(e.FieldErrors))
	for _, err := range e.FieldErrors {
		msgs = append(msgs, err.Error())
	}
	return "invalid config: " + strings.Join(msgs, "; ")
}

// Unwrap returns ErrInvalidConfig and every field error.
func (e *InvalidConfigError) Unwrap() []error {
	return append([]error{ErrInvalidConfig}, e.FieldErrors...)
}

// Validate checks the constraints CUE does not express.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.DefaultEnvironment) == "" {
		errs = append(errs, errors.New("default_environment must not be empty"))
	}
	if err := c.LogLevel.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Session.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Markers.WithDefaults().Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return &InvalidConfigError{FieldErrors: errs}
	}
	return nil
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		DefaultEnvironment: DefaultEnvironment,
		LogLevel:           LogLevelInfo,
		Session: SessionConfig{
			StopTimeout:      environment.DefaultStopTimeout,
			TerminateTimeout: environment.DefaultTerminateTimeout,
			QueueSize:        environment.DefaultQueueSize,
		},
		Markers: marker.Default,
		Server:  ServerConfig{Addr: DefaultServerAddr},
	}
}

// ToolRepositoryDir returns the configured tool repository, defaulting to
// <config dir>/tools.
func (c *Config) ToolRepositoryDir() (string, error) {
	if c.ToolRepository != "" {
		return c.ToolRepository, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, toolRepositoryDirName), nil
}

// EnvironmentConfigFor returns the settings for the environment entry, looked
// up by its canonical name first and then by each alias.
func (c *Config) EnvironmentConfigFor(entry environment.Entry) EnvironmentConfig {
	keys := append([]string{entry.Name}, entry.Aliases...)
	for _, key := range keys {
		for name, envCfg := range c.Environments {
			if strings.EqualFold(name, key) {
				return envCfg
			}
		}
	}
	return EnvironmentConfig{}
}

// EnvironmentOptions builds the options for creating entry's environment.
func (c *Config) EnvironmentOptions(entry environment.Entry, logger *slog.Logger) environment.Options {
	envCfg := c.EnvironmentConfigFor(entry)
	return environment.Options{
		Executable:       envCfg.Executable,
		Args:             slices.Clone(envCfg.Args),
		Dir:              envCfg.Dir,
		Env:              maps.Clone(envCfg.Env),
		EnvFiles:         slices.Clone(envCfg.EnvFiles),
		Delimiters:       c.Markers,
		PTY:              envCfg.PTY,
		QueueSize:        c.Session.QueueSize,
		StopTimeout:      c.Session.StopTimeout,
		TerminateTimeout: c.Session.TerminateTimeout,
		TempDir:          c.OneShot.TempDir,
		Logger:           logger,
	}
}
