// SPDX-License-Identifier: MPL-2.0

package environment

import (
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"path/filepath"
	"slices"
	"strings"

	"github.com/joho/godotenv"
)

// startupScriptVars name files interpreters source before reading their input.
var startupScriptVars = []string{"BASH_ENV", "ENV", "PYTHONSTARTUP"}

// buildEnv assembles the child environment. Precedence, lowest first:
// base (minus startup-script variables), EnvFiles in order, Env.
func buildEnv(base []string, opts Options) ([]string, error) {
	env := make(map[string]string, len(base)+len(opts.Env))
	for _, kv := range base {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			continue
		}
		env[key] = value
	}
	for _, name := range startupScriptVars {
		delete(env, name)
	}

	for _, path := range opts.EnvFiles {
		if err := loadEnvFile(env, path, opts.Dir); err != nil {
			return nil, err
		}
	}
	maps.Copy(env, opts.Env)

	keys := slices.Sorted(maps.Keys(env))
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		out = append(out, key+"="+env[key])
	}
	return out, nil
}

// loadEnvFile merges a dotenv file into env. Relative paths resolve against
// baseDir. Files suffixed with '?' are optional.
func loadEnvFile(env map[string]string, path, baseDir string) error {
	optional := strings.HasSuffix(path, "?")
	if optional {
		path = strings.TrimSuffix(path, "?")
	}

	fullPath := filepath.FromSlash(path)
	if !filepath.IsAbs(fullPath) && baseDir != "" {
		fullPath = filepath.Join(baseDir, fullPath)
	}

	values, err := godotenv.Read(fullPath)
	if err != nil {
		if optional && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read env file '%s': %w", path, err)
	}
	maps.Copy(env, values)
	return nil
}
