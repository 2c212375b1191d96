// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"errors"
	"strings"
	"testing"
)

func TestValues_CoversEveryId(t *testing.T) {
	t.Parallel()

	values := Values()
	if len(values) != int(PermissionDeniedId) {
		t.Fatalf("len(Values()) = %d, want %d", len(values), PermissionDeniedId)
	}
	for i, v := range values {
		if v.Id() != Id(i+1) {
			t.Errorf("Values()[%d].Id() = %d, want %d", i, v.Id(), i+1)
		}
		if strings.TrimSpace(string(v.MarkdownMsg())) == "" {
			t.Errorf("issue %d has no message", v.Id())
		}
	}
}

func TestIssue_Render(t *testing.T) {
	t.Parallel()

	out, err := Get(InterpreterNotFoundId).Render("notty")
	if err != nil {
		t.Fatalf("Render() unexpected error: %v", err)
	}
	for _, want := range []string{"Interpreter not found", "interpd run -e virtual", "pkg.go.dev"} {
		if !strings.Contains(out, want) {
			t.Errorf("Render() output missing %q:\n%s", want, out)
		}
	}
}

func TestIssue_ExtLinksIsCopy(t *testing.T) {
	t.Parallel()

	issue := Get(InterpreterNotFoundId)
	links := issue.ExtLinks()
	links[0] = "mutated"
	if issue.ExtLinks()[0] == "mutated" {
		t.Error("ExtLinks() exposes internal slice")
	}
}

func TestActionableError_Error(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  *ActionableError
		want string
	}{
		{
			name: "operation only",
			err:  &ActionableError{Operation: "start server"},
			want: "failed to start server",
		},
		{
			name: "with resource and cause",
			err:  &ActionableError{Operation: "load tool", Resource: "fetch", Cause: errors.New("not found")},
			want: "failed to load tool: fetch: not found",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestActionableError_Format(t *testing.T) {
	t.Parallel()

	root := errors.New("exec: \"python3\": executable file not found in $PATH")
	err := NewErrorContext().
		WithOperation("start environment").
		WithResource("python").
		WithSuggestion("Install python3").
		WithSuggestion("Set environments.python.executable").
		Wrap(root).
		Build()

	plain := err.Format(false)
	if !strings.Contains(plain, "\n  • Install python3") || !strings.Contains(plain, "\n  • Set environments.python.executable") {
		t.Errorf("Format(false) missing suggestions:\n%s", plain)
	}
	if strings.Contains(plain, "Error chain") {
		t.Errorf("Format(false) should not include the error chain:\n%s", plain)
	}

	verbose := err.Format(true)
	if !strings.Contains(verbose, "Error chain:\n  1. exec:") {
		t.Errorf("Format(true) missing error chain:\n%s", verbose)
	}
}

func TestErrorContext_BuildWithoutOperation(t *testing.T) {
	t.Parallel()

	if got := NewErrorContext().WithResource("x").Build(); got != nil {
		t.Errorf("Build() = %v, want nil", got)
	}
	if err := NewErrorContext().BuildError(); err != nil {
		t.Errorf("BuildError() = %v, want untyped nil", err)
	}
}

func TestActionableError_UnwrapAndIssueOf(t *testing.T) {
	t.Parallel()

	sentinel := errors.New("sentinel")
	inner := NewErrorContext().WithOperation("find tool").WithIssue(ToolNotFoundId).Wrap(sentinel).BuildError()
	outer := NewErrorContext().WithOperation("run tool").Wrap(inner).BuildError()

	if !errors.Is(outer, sentinel) {
		t.Error("errors.Is(outer, sentinel) = false")
	}
	if got := IssueOf(outer); got == nil || got.Id() != ToolNotFoundId {
		t.Errorf("IssueOf() = %v, want ToolNotFoundId", got)
	}
	if got := IssueOf(sentinel); got != nil {
		t.Errorf("IssueOf(plain error) = %v, want nil", got)
	}
	if got := WrapWithContext(nil, "op", "res"); got != nil {
		t.Errorf("WrapWithContext(nil) = %v, want nil", got)
	}
}
