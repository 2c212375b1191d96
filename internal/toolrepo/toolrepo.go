// SPDX-License-Identifier: MPL-2.0

package toolrepo

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	codeDirName        = "tool_code"
	descriptionDirName = "tool_description"
	descriptionExt     = ".txt"

	// DefaultExtension is used for tools added without an extension.
	DefaultExtension = ".py"
	// DefaultCacheSize is the number of tools kept in memory.
	DefaultCacheSize = 128
	// DefaultSearchLimit is the result count used when Search gets k <= 0.
	DefaultSearchLimit = 10
)

var (
	// ErrToolNotFound is returned when no tool has the requested name.
	ErrToolNotFound = errors.New("tool not found")
	// ErrToolExists is returned when adding a tool whose name is taken.
	ErrToolExists = errors.New("tool already exists")
	// ErrInvalidTool is the sentinel error wrapped by InvalidToolError.
	ErrInvalidTool = errors.New("invalid tool")

	toolNamePattern = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.-]*$`)
	extPattern      = regexp.MustCompile(`^\.[A-Za-z0-9]+$`)

	// extensionEnvironments maps code file extensions to environment names.
	extensionEnvironments = map[string]string{
		".py":  "python",
		".sh":  "shell",
		".ps1": "powershell",
		".js":  "javascript",
	}
)

type (
	// Tool is one stored tool.
	Tool struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Code        string `json:"code"`
		// Extension of the code file including the dot, e.g. ".py".
		Extension string `json:"extension"`
	}

	// InvalidToolError is returned when a tool cannot be stored.
	// It wraps ErrInvalidTool for errors.Is() compatibility.
	InvalidToolError struct {
		Name   string
		Reason string
	}

	// Options configures a Repository.
	Options struct {
		// CacheSize bounds the in-memory tool cache. Zero means DefaultCacheSize.
		CacheSize int
		// Logger defaults to slog.Default().
		Logger *slog.Logger
	}

	// Repository is a directory of tools. It is safe for concurrent use
	// within one process.
	Repository struct {
		root   string
		logger *slog.Logger

		mu    sync.RWMutex
		cache *lru.Cache[string, Tool]
	}
)

// Error implements the error interface.
func (e *InvalidToolError) Error() string {
	if e.Name == "" {
		return "invalid tool: " + e.Reason
	}
	return fmt.Sprintf("invalid tool %q: %s", e.Name, e.Reason)
}

// Unwrap returns ErrInvalidTool so callers can use errors.Is for programmatic detection.
func (e *InvalidToolError) Unwrap() error { return ErrInvalidTool }

// Environment returns the name of the environment that runs the tool's code,
// or "" when the extension is not recognized.
func (t Tool) Environment() string {
	return extensionEnvironments[strings.ToLower(t.Extension)]
}

// Validate returns nil if the tool has every field needed to store it.
func (t Tool) Validate() error {
	switch {
	case !toolNamePattern.MatchString(t.Name):
		return &InvalidToolError{Name: t.Name, Reason: "name must contain only letters, digits, '_', '-' and '.'"}
	case strings.TrimSpace(t.Description) == "":
		return &InvalidToolError{Name: t.Name, Reason: "description is required"}
	case strings.TrimSpace(t.Code) == "":
		return &InvalidToolError{Name: t.Name, Reason: "code is required"}
	case t.Extension != "" && !extPattern.MatchString(t.Extension):
		return &InvalidToolError{Name: t.Name, Reason: fmt.Sprintf("bad extension %q", t.Extension)}
	}
	return nil
}

// Open opens the repository rooted at dir, creating its directories when missing.
func Open(dir string, opts Options) (*Repository, error) {
	if dir == "" {
		return nil, errors.New("tool repository directory is required")
	}
	for _, sub := range []string{codeDirName, descriptionDirName} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create tool repository: %w", err)
		}
	}

	size := opts.CacheSize
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, Tool](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create tool cache: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{root: dir, logger: logger, cache: cache}, nil
}

// Root returns the repository directory.
func (r *Repository) Root() string { return r.root }

// Names returns the names of every complete tool, sorted.
func (r *Repository) Names() ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

func (r *Repository) namesLocked() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(r.root, descriptionDirName))
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), descriptionExt)
		if !ok || e.IsDir() || !toolNamePattern.MatchString(name) {
			continue
		}
		if _, err := r.codePathLocked(name); err != nil {
			r.logger.Debug("skipping tool without code", "tool", name)
			continue
		}
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

// Exists reports whether a tool named name is stored.
func (r *Repository) Exists(name string) bool {
	_, err := r.Get(name)
	return err == nil
}

// Get returns the named tool.
func (r *Repository) Get(name string) (Tool, error) {
	if tool, ok := r.cache.Get(name); ok {
		return tool, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loadLocked(name)
}

func (r *Repository) loadLocked(name string) (Tool, error) {
	if !toolNamePattern.MatchString(name) {
		return Tool{}, fmt.Errorf("%w: %q", ErrToolNotFound, name)
	}

	desc, err := os.ReadFile(r.descriptionPath(name))
	if errors.Is(err, fs.ErrNotExist) {
		return Tool{}, fmt.Errorf("%w: %q", ErrToolNotFound, name)
	}
	if err != nil {
		return Tool{}, fmt.Errorf("failed to read tool %q: %w", name, err)
	}

	codePath, err := r.codePathLocked(name)
	if err != nil {
		return Tool{}, err
	}
	code, err := os.ReadFile(codePath)
	if err != nil {
		return Tool{}, fmt.Errorf("failed to read tool %q: %w", name, err)
	}

	tool := Tool{
		Name:        name,
		Description: string(desc),
		Code:        string(code),
		Extension:   filepath.Ext(codePath),
	}
	r.cache.Add(name, tool)
	return tool, nil
}

// Add stores a new tool. It fails with ErrToolExists if the name is taken.
func (r *Repository) Add(tool Tool) error {
	if err := tool.Validate(); err != nil {
		return err
	}
	if tool.Extension == "" {
		tool.Extension = DefaultExtension
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.codePathLocked(tool.Name); err == nil {
		return fmt.Errorf("%w: %q", ErrToolExists, tool.Name)
	}

	codePath := filepath.Join(r.root, codeDirName, tool.Name+tool.Extension)
	if err := writeNew(codePath, tool.Code); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w: %q", ErrToolExists, tool.Name)
		}
		return fmt.Errorf("failed to write tool %q: %w", tool.Name, err)
	}
	if err := os.WriteFile(r.descriptionPath(tool.Name), []byte(tool.Description), 0o644); err != nil {
		if rmErr := os.Remove(codePath); rmErr != nil {
			r.logger.Warn("failed to remove partial tool", "path", codePath, "error", rmErr)
		}
		return fmt.Errorf("failed to write tool %q: %w", tool.Name, err)
	}

	r.cache.Add(tool.Name, tool)
	r.logger.Debug("tool added", "tool", tool.Name, "extension", tool.Extension)
	return nil
}

// Delete removes the named tool.
func (r *Repository) Delete(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.loadLocked(name); err != nil {
		return err
	}
	r.cache.Remove(name)

	var errs []error
	if codePath, err := r.codePathLocked(name); err == nil {
		errs = append(errs, removeIfExists(codePath))
	}
	errs = append(errs, removeIfExists(r.descriptionPath(name)))
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("failed to delete tool %q: %w", name, err)
	}

	r.logger.Debug("tool deleted", "tool", name)
	return nil
}

// Search returns up to k tool names whose name or description contains query,
// case-insensitively. Name matches rank before description matches. An empty
// query returns the first k names.
func (r *Repository) Search(query string, k int) ([]string, error) {
	if k <= 0 {
		k = DefaultSearchLimit
	}
	names, err := r.Names()
	if err != nil {
		return nil, err
	}

	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return names[:min(k, len(names))], nil
	}

	var byName, byDescription []string
	for _, name := range names {
		if strings.Contains(strings.ToLower(name), query) {
			byName = append(byName, name)
			continue
		}
		tool, err := r.Get(name)
		if err != nil {
			continue
		}
		if strings.Contains(strings.ToLower(tool.Description), query) {
			byDescription = append(byDescription, name)
		}
	}

	results := append(byName, byDescription...)
	return results[:min(k, len(results))], nil
}

// codePathLocked finds the code file of name, whatever its extension.
func (r *Repository) codePathLocked(name string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(r.root, codeDirName, name+".*"))
	if err != nil {
		return "", fmt.Errorf("failed to find code of tool %q: %w", name, err)
	}
	for _, m := range matches {
		if ext := filepath.Ext(m); extPattern.MatchString(ext) && strings.TrimSuffix(filepath.Base(m), ext) == name {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: %q has no code file", ErrToolNotFound, name)
}

func (r *Repository) descriptionPath(name string) string {
	return filepath.Join(r.root, descriptionDirName, name+descriptionExt)
}

func writeNew(path, content string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(content); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
