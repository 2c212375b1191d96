// SPDX-License-Identifier: MPL-2.0

package environment

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
)

var (
	// ErrUnknownEnvironment is the sentinel error wrapped by UnknownEnvironmentError.
	ErrUnknownEnvironment = errors.New("unknown environment")
	// ErrDuplicateEnvironment is returned when a name or alias is registered twice.
	ErrDuplicateEnvironment = errors.New("environment already registered")
)

type (
	// Factory creates a new environment instance.
	Factory func(opts Options) (Environment, error)

	// Entry describes one registered variant.
	Entry struct {
		Name        string
		Aliases     []string
		Description string
		// Interactive is true for variants that report active lines.
		Interactive bool
		Factory     Factory
	}

	// Registry maps variant names and aliases, case-insensitively, to factories.
	Registry struct {
		mu      sync.RWMutex
		entries map[string]Entry
		aliases map[string]string
	}

	// UnknownEnvironmentError is returned when a name matches no registered variant.
	UnknownEnvironmentError struct {
		Name  string
		Known []string
	}
)

// Error implements the error interface.
func (e *UnknownEnvironmentError) Error() string {
	return fmt.Sprintf("unknown environment %q (available: %s)", e.Name, strings.Join(e.Known, ", "))
}

// Unwrap returns ErrUnknownEnvironment so callers can use errors.Is for programmatic detection.
func (e *UnknownEnvironmentError) Unwrap() error { return ErrUnknownEnvironment }

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]Entry),
		aliases: make(map[string]string),
	}
}

// DefaultRegistry returns a registry holding every built-in variant.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, e := range []Entry{
		sessionEntry(NewShell(Options{}), "persistent POSIX shell (bash, falling back to sh)",
			func(o Options) Capabilities { return NewShell(o) }),
		sessionEntry(NewPowerShell(Options{}), "persistent PowerShell (pwsh or powershell.exe)",
			func(o Options) Capabilities { return NewPowerShell(o) }),
		sessionEntry(NewVirtual(Options{}), "persistent embedded POSIX shell, no host shell required",
			func(o Options) Capabilities { return NewVirtual(o) }),
		oneShotEntry(PythonSpec, "python3 run once per submission"),
		oneShotEntry(JavaScriptSpec, "node run once per submission"),
	} {
		if err := r.Register(e); err != nil {
			panic(err)
		}
	}
	return r
}

func sessionEntry(caps Capabilities, description string, newCaps func(Options) Capabilities) Entry {
	return Entry{
		Name:        caps.Name(),
		Aliases:     caps.Aliases(),
		Description: description,
		Interactive: true,
		Factory: func(opts Options) (Environment, error) {
			if err := opts.Delimiters.WithDefaults().Validate(); err != nil {
				return nil, err
			}
			return NewSession(newCaps(opts), opts), nil
		},
	}
}

func oneShotEntry(spec OneShotSpec, description string) Entry {
	return Entry{
		Name:        spec.Name,
		Aliases:     spec.Aliases,
		Description: description,
		Factory: func(opts Options) (Environment, error) {
			return NewOneShot(spec, opts), nil
		},
	}
}

// Register adds e under its name and aliases.
func (r *Registry) Register(e Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e.Name == "" || e.Factory == nil {
		return errors.New("environment entry needs a name and a factory")
	}
	keys := append([]string{e.Name}, e.Aliases...)
	for _, key := range keys {
		if owner, ok := r.aliases[strings.ToLower(key)]; ok && owner != e.Name {
			return fmt.Errorf("%w: %q is taken by %q", ErrDuplicateEnvironment, key, owner)
		}
	}
	if _, ok := r.entries[e.Name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateEnvironment, e.Name)
	}

	r.entries[e.Name] = e
	for _, key := range keys {
		r.aliases[strings.ToLower(key)] = e.Name
	}
	return nil
}

// Lookup returns the entry registered under name or one of its aliases.
func (r *Registry) Lookup(name string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	canonical, ok := r.aliases[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Entry{}, false
	}
	return r.entries[canonical], true
}

// New creates an environment by name or alias.
func (r *Registry) New(name string, opts Options) (Environment, error) {
	e, ok := r.Lookup(name)
	if !ok {
		return nil, &UnknownEnvironmentError{Name: name, Known: r.Names()}
	}
	return e.Factory(opts)
}

// Names returns the canonical names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Entries returns every entry sorted by name.
func (r *Registry) Entries() []Entry {
	names := r.Names()

	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]Entry, 0, len(names))
	for _, name := range names {
		entries = append(entries, r.entries[name])
	}
	return entries
}
