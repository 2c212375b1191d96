// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/spf13/viper"

	"interpd/internal/issue"
)

const (
	// AppName is the application name.
	AppName = "interpd"
	// ConfigFileName is the name of the config file (without extension).
	ConfigFileName = "config"
	// ConfigFileExt is the config file extension.
	ConfigFileExt = "cue"
	// EnvPrefix prefixes environment variable overrides.
	EnvPrefix = "INTERPD"

	// maxConfigFileSize guards against accidentally pointing at a huge file.
	maxConfigFileSize = 1 << 20
)

//go:embed config_schema.cue
var configSchema string

// ConfigDir returns the interpd configuration directory using platform-specific
// conventions: Windows uses %APPDATA%, macOS uses ~/Library/Application Support,
// and Linux/others use $XDG_CONFIG_HOME (defaulting to ~/.config).
//
//nolint:revive // ConfigDir is more descriptive than Dir for external callers
func ConfigDir() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "windows":
		configDir = os.Getenv("APPDATA")
		if configDir == "" {
			configDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, "Library", "Application Support")
	default: // Linux and others
		configDir = os.Getenv("XDG_CONFIG_HOME")
		if configDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("failed to get home directory: %w", err)
			}
			configDir = filepath.Join(home, ".config")
		}
	}

	return filepath.Join(configDir, AppName), nil
}

// loadWithOptions loads configuration and reports which file it came from
// ("" when only defaults and environment variables apply).
func loadWithOptions(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	select {
	case <-ctx.Done():
		return nil, "", fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path, err := resolveConfigPath(opts)
	if err != nil {
		return nil, "", err
	}

	var environments map[string]EnvironmentConfig
	if path != "" {
		environments, err = loadCUEIntoViper(v, path)
		if err != nil {
			return nil, "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(path).
				WithIssue(issue.ConfigLoadFailedId).
				WithSuggestion("Check that the file contains valid CUE syntax").
				WithSuggestion("Verify the configuration values match the expected schema").
				WithSuggestion("Use 'interpd config show' to see the effective configuration").
				Wrap(err).
				BuildError()
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.Environments = environments

	if err := cfg.Validate(); err != nil {
		return nil, "", issue.NewErrorContext().
			WithOperation("validate configuration").
			WithResource(path).
			WithIssue(issue.ConfigLoadFailedId).
			WithSuggestion("Fix the fields listed above or remove them to use the defaults").
			Wrap(err).
			BuildError()
	}

	return &cfg, path, nil
}

func setDefaults(v *viper.Viper) {
	defaults := DefaultConfig()
	v.SetDefault("default_environment", defaults.DefaultEnvironment)
	v.SetDefault("log_level", defaults.LogLevel)
	v.SetDefault("tool_repository", defaults.ToolRepository)
	v.SetDefault("session.stop_timeout", defaults.Session.StopTimeout)
	v.SetDefault("session.terminate_timeout", defaults.Session.TerminateTimeout)
	v.SetDefault("session.queue_size", defaults.Session.QueueSize)
	v.SetDefault("markers.active_line_prefix", defaults.Markers.ActiveLinePrefix)
	v.SetDefault("markers.suffix", defaults.Markers.Suffix)
	v.SetDefault("markers.end_of_execution", defaults.Markers.EndOfExecution)
	v.SetDefault("oneshot.temp_dir", defaults.OneShot.TempDir)
	v.SetDefault("server.addr", defaults.Server.Addr)
}

// resolveConfigPath returns the file to load: the explicit file, else
// config.cue in the config directory, else ./config.cue. It returns "" when
// none exists.
func resolveConfigPath(opts LoadOptions) (string, error) {
	if opts.ConfigFilePath != "" {
		if !fileExists(opts.ConfigFilePath) {
			return "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(opts.ConfigFilePath).
				WithIssue(issue.ConfigLoadFailedId).
				WithSuggestion("Verify the file path is correct").
				WithSuggestion("Run 'interpd config init' to create a default configuration").
				Wrap(fmt.Errorf("config file not found: %s", opts.ConfigFilePath)).
				BuildError()
		}
		return opts.ConfigFilePath, nil
	}

	cfgDir := opts.ConfigDirPath
	if cfgDir == "" {
		var err error
		if cfgDir, err = ConfigDir(); err != nil {
			return "", err
		}
	}
	if p := filepath.Join(cfgDir, ConfigFileName+"."+ConfigFileExt); fileExists(p) {
		return p, nil
	}
	if opts.ConfigDirPath == "" {
		if p := ConfigFileName + "." + ConfigFileExt; fileExists(p) {
			return p, nil
		}
	}
	return "", nil
}

// loadCUEIntoViper parses a CUE file, validates it against the #Config schema,
// merges its scalar settings into Viper and returns the environments table.
func loadCUEIntoViper(v *viper.Viper, path string) (map[string]EnvironmentConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if len(data) > maxConfigFileSize {
		return nil, fmt.Errorf("%s: file size %d bytes exceeds maximum %d bytes", path, len(data), maxConfigFileSize)
	}

	ctx := cuecontext.New()
	schemaValue := ctx.CompileString(configSchema)
	if schemaValue.Err() != nil {
		return nil, fmt.Errorf("internal error: failed to compile config schema: %w", schemaValue.Err())
	}

	userValue := ctx.CompileBytes(data, cue.Filename(path))
	if userValue.Err() != nil {
		return nil, formatCUEError(userValue.Err(), path)
	}

	unified := schemaValue.LookupPath(cue.ParsePath("#Config")).Unify(userValue)
	if err := unified.Validate(cue.Concrete(false)); err != nil {
		return nil, formatCUEError(err, path)
	}

	var configMap map[string]any
	if err := unified.Decode(&configMap); err != nil {
		return nil, formatCUEError(err, path)
	}

	var environments map[string]EnvironmentConfig
	if envs := unified.LookupPath(cue.ParsePath("environments")); envs.Exists() {
		if err := envs.Decode(&environments); err != nil {
			return nil, formatCUEError(err, path)
		}
		delete(configMap, "environments")
	}

	if err := v.MergeConfigMap(configMap); err != nil {
		return nil, fmt.Errorf("failed to merge config: %w", err)
	}
	return environments, nil
}

// formatCUEError prefixes each CUE error with the file and the field path,
// e.g. "config.cue: session.queue_size: invalid value 0 (out of bound >0)".
func formatCUEError(err error, path string) error {
	list := cueerrors.Errors(err)
	if len(list) == 0 {
		return fmt.Errorf("%s: %w", path, err)
	}

	lines := make([]string, 0, len(list))
	for _, e := range list {
		field := strings.Join(cueerrors.Path(e), ".")
		msg := strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(e.Error(), field), ":"))
		if field != "" {
			msg = field + ": " + msg
		}
		lines = append(lines, msg)
	}
	slices.Sort(lines)
	lines = slices.Compact(lines)

	if len(lines) == 1 {
		return fmt.Errorf("%s: %s", path, lines[0])
	}
	return fmt.Errorf("%s: validation failed:\n  %s", path, strings.Join(lines, "\n  "))
}

// fileExists checks if a file exists and is not a directory
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// CreateDefaultConfig writes a default config.cue into dir (the config
// directory when empty). It reports whether a file was created; an existing
// file is left untouched.
func CreateDefaultConfig(dir string) (string, bool, error) {
	if dir == "" {
		var err error
		if dir, err = ConfigDir(); err != nil {
			return "", false, err
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", false, fmt.Errorf("failed to create config directory: %w", err)
	}

	cfgPath := filepath.Join(dir, ConfigFileName+"."+ConfigFileExt)
	f, err := os.OpenFile(cfgPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, os.ErrExist) {
		return cfgPath, false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to create config file: %w", err)
	}
	if _, err = f.WriteString(GenerateCUE(DefaultConfig())); err != nil {
		_ = f.Close()
		return "", false, fmt.Errorf("failed to write config file: %w", err)
	}
	if err = f.Close(); err != nil {
		return "", false, fmt.Errorf("failed to write config file: %w", err)
	}
	return cfgPath, true, nil
}

// GenerateCUE generates a CUE representation of the configuration.
func GenerateCUE(cfg *Config) string {
	var sb strings.Builder

	sb.WriteString("// interpd configuration file\n\n")
	fmt.Fprintf(&sb, "default_environment: %q\n", cfg.DefaultEnvironment)
	fmt.Fprintf(&sb, "log_level:           %q\n", cfg.LogLevel)
	if cfg.ToolRepository != "" {
		fmt.Fprintf(&sb, "tool_repository:     %q\n", cfg.ToolRepository)
	}

	sb.WriteString("\nsession: {\n")
	fmt.Fprintf(&sb, "\tstop_timeout:      %q\n", cfg.Session.StopTimeout.String())
	fmt.Fprintf(&sb, "\tterminate_timeout: %q\n", cfg.Session.TerminateTimeout.String())
	fmt.Fprintf(&sb, "\tqueue_size:        %d\n", cfg.Session.QueueSize)
	sb.WriteString("}\n")

	sb.WriteString("\nmarkers: {\n")
	fmt.Fprintf(&sb, "\tactive_line_prefix: %q\n", cfg.Markers.ActiveLinePrefix)
	fmt.Fprintf(&sb, "\tsuffix:             %q\n", cfg.Markers.Suffix)
	fmt.Fprintf(&sb, "\tend_of_execution:   %q\n", cfg.Markers.EndOfExecution)
	sb.WriteString("}\n")

	if len(cfg.Environments) > 0 {
		sb.WriteString("\nenvironments: {\n")
		for _, name := range slices.Sorted(maps.Keys(cfg.Environments)) {
			writeEnvironmentCUE(&sb, name, cfg.Environments[name])
		}
		sb.WriteString("}\n")
	}

	if cfg.OneShot.TempDir != "" {
		fmt.Fprintf(&sb, "\noneshot: temp_dir: %q\n", cfg.OneShot.TempDir)
	}
	fmt.Fprintf(&sb, "\nserver: addr: %q\n", cfg.Server.Addr)

	return sb.String()
}

func writeEnvironmentCUE(sb *strings.Builder, name string, env EnvironmentConfig) {
	fmt.Fprintf(sb, "\t%q: {\n", name)
	if env.Executable != "" {
		fmt.Fprintf(sb, "\t\texecutable: %q\n", env.Executable)
	}
	if env.Args != nil {
		fmt.Fprintf(sb, "\t\targs: %s\n", cueStringList(env.Args))
	}
	if env.Dir != "" {
		fmt.Fprintf(sb, "\t\tdir: %q\n", env.Dir)
	}
	if env.PTY {
		sb.WriteString("\t\tpty: true\n")
	}
	if len(env.EnvFiles) > 0 {
		fmt.Fprintf(sb, "\t\tenv_files: %s\n", cueStringList(env.EnvFiles))
	}
	if len(env.Env) > 0 {
		sb.WriteString("\t\tenv: {\n")
		for _, key := range slices.Sorted(maps.Keys(env.Env)) {
			fmt.Fprintf(sb, "\t\t\t%q: %q\n", key, env.Env[key])
		}
		sb.WriteString("\t\t}\n")
	}
	sb.WriteString("\t}\n")
}

func cueStringList(values []string) string {
	quoted := make([]string, 0, len(values))
	for _, v := range values {
		quoted = append(quoted, fmt.Sprintf("%q", v))
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
