// SPDX-License-Identifier: MPL-2.0

package environment

import (
	"errors"
	"slices"
	"testing"

	"interpd/internal/marker"
)

func TestDefaultRegistry_Names(t *testing.T) {
	t.Parallel()

	want := []string{"javascript", "powershell", "python", "shell", "virtual"}
	if got := DefaultRegistry().Names(); !slices.Equal(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
}

func TestRegistry_LookupAliases(t *testing.T) {
	t.Parallel()

	r := DefaultRegistry()
	tests := []struct {
		alias string
		want  string
	}{
		{"bash", "shell"},
		{"SH", "shell"},
		{"pwsh", "powershell"},
		{"ps1", "powershell"},
		{"PowerShell", "powershell"},
		{"py", "python"},
		{"node", "javascript"},
		{" vsh ", "virtual"},
	}
	for _, tt := range tests {
		e, ok := r.Lookup(tt.alias)
		if !ok {
			t.Errorf("Lookup(%q) found nothing", tt.alias)
			continue
		}
		if e.Name != tt.want {
			t.Errorf("Lookup(%q) = %q, want %q", tt.alias, e.Name, tt.want)
		}
	}
}

func TestRegistry_New(t *testing.T) {
	t.Parallel()

	r := DefaultRegistry()

	env, err := r.New("bash", Options{})
	if err != nil {
		t.Fatalf("New(bash) unexpected error: %v", err)
	}
	if _, ok := env.(*Session); !ok || env.Name() != "shell" {
		t.Errorf("New(bash) = %T %q, want *Session shell", env, env.Name())
	}

	env, err = r.New("python", Options{})
	if err != nil {
		t.Fatalf("New(python) unexpected error: %v", err)
	}
	if _, ok := env.(*OneShot); !ok {
		t.Errorf("New(python) = %T, want *OneShot", env)
	}

	_, err = r.New("cobol", Options{})
	if !errors.Is(err, ErrUnknownEnvironment) {
		t.Errorf("New(cobol) error = %v, want ErrUnknownEnvironment", err)
	}
	var unknown *UnknownEnvironmentError
	if !errors.As(err, &unknown) || len(unknown.Known) != 5 {
		t.Errorf("New(cobol) error = %#v, want known names listed", err)
	}

	_, err = r.New("shell", Options{Delimiters: marker.Delimiters{EndOfExecution: "it's"}})
	if !errors.Is(err, marker.ErrInvalidDelimiters) {
		t.Errorf("New() with bad delimiters error = %v, want ErrInvalidDelimiters", err)
	}
}

func TestRegistry_RegisterDuplicate(t *testing.T) {
	t.Parallel()

	r := DefaultRegistry()
	err := r.Register(Entry{
		Name:    "bourne",
		Aliases: []string{"Bash"},
		Factory: func(Options) (Environment, error) { return nil, nil },
	})
	if !errors.Is(err, ErrDuplicateEnvironment) {
		t.Errorf("Register() error = %v, want ErrDuplicateEnvironment", err)
	}
	if _, ok := r.Lookup("bourne"); ok {
		t.Error("failed registration must not leave a partial entry")
	}
}
