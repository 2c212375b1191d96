// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"context"
	"errors"
	"iter"
	"slices"
	"strings"
	"testing"

	"interpd/internal/config"
	"interpd/internal/environment"
	"interpd/internal/issue"
)

type (
	staticProvider struct {
		cfg *config.Config
	}

	// scriptedEnv yields a fixed list of events for every submission.
	scriptedEnv struct {
		events  []environment.OutputEvent
		stepErr error
		stopped bool
	}

	testApp struct {
		*App
		stdout *bytes.Buffer
		stderr *bytes.Buffer
		env    *scriptedEnv
	}
)

func (p staticProvider) Load(context.Context, config.LoadOptions) (*config.Config, error) {
	return p.cfg, nil
}

func (e *scriptedEnv) Name() string             { return "scripted" }
func (e *scriptedEnv) State() environment.State { return environment.StateIdle }
func (e *scriptedEnv) Stop()                    { e.stopped = true }
func (e *scriptedEnv) Terminate()               {}

func (e *scriptedEnv) Step(context.Context, string) (iter.Seq[environment.OutputEvent], error) {
	if e.stepErr != nil {
		return nil, e.stepErr
	}
	return slices.Values(e.events), nil
}

func newTestApp(t *testing.T, env *scriptedEnv, stdin string) *testApp {
	t.Helper()

	reg := environment.NewRegistry()
	err := reg.Register(environment.Entry{
		Name:        "scripted",
		Aliases:     []string{"sc"},
		Description: "test environment",
		Interactive: true,
		Factory: func(environment.Options) (environment.Environment, error) {
			return env, nil
		},
	})
	if err != nil {
		t.Fatalf("Register() returned error: %v", err)
	}

	cfg := config.DefaultConfig()
	cfg.DefaultEnvironment = "scripted"

	ta := &testApp{stdout: &bytes.Buffer{}, stderr: &bytes.Buffer{}, env: env}
	ta.App = &App{
		Config:   staticProvider{cfg: cfg},
		Registry: reg,
		Stdin:    strings.NewReader(stdin),
		Stdout:   ta.stdout,
		Stderr:   ta.stderr,
	}
	return ta
}

func (ta *testApp) execute(t *testing.T, args ...string) error {
	t.Helper()
	root := newRootCommand(ta.App)
	root.SetArgs(args)
	return root.ExecuteContext(t.Context())
}

func TestRun_PrintsOutputAndErrors(t *testing.T) {
	t.Parallel()

	env := &scriptedEnv{events: []environment.OutputEvent{
		environment.ActiveLineEvent(1),
		environment.ConsoleEvent(environment.FormatOutput, "hello"),
		environment.ConsoleEvent(environment.FormatOutput, "chunk\n"),
		environment.ConsoleEvent(environment.FormatError, "boom"),
	}}
	ta := newTestApp(t, env, "")

	err := ta.execute(t, "run", "-c", "anything")
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != 1 {
		t.Fatalf("expected exit code 1, got %v", err)
	}
	if got := ta.stdout.String(); got != "hello\nchunk\n" {
		t.Errorf("stdout = %q", got)
	}
	if got := ta.stderr.String(); got != "boom\n" {
		t.Errorf("stderr = %q", got)
	}
	if !env.stopped {
		t.Error("expected the environment to be stopped after the run")
	}
}

func TestRun_VerboseShowsActiveLines(t *testing.T) {
	t.Parallel()

	env := &scriptedEnv{events: []environment.OutputEvent{
		environment.ActiveLineEvent(3),
		environment.ConsoleEvent(environment.FormatOutput, "ok"),
	}}
	ta := newTestApp(t, env, "")

	if err := ta.execute(t, "run", "-v", "-c", "x"); err != nil {
		t.Fatalf("run returned error: %v", err)
	}
	if !strings.Contains(ta.stderr.String(), "line 3") {
		t.Errorf("expected active line trace on stderr, got %q", ta.stderr.String())
	}
}

func TestRun_JSON(t *testing.T) {
	t.Parallel()

	env := &scriptedEnv{events: []environment.OutputEvent{
		environment.ActiveLineEvent(1),
		environment.ConsoleEvent(environment.FormatOutput, "hi"),
	}}
	ta := newTestApp(t, env, "echo hi\n")

	if err := ta.execute(t, "run", "--json", "-e", "SC"); err != nil {
		t.Fatalf("run returned error: %v", err)
	}
	want := `{"type":"active_line","line":1}` + "\n" + `{"type":"console","format":"output","content":"hi"}` + "\n"
	if got := ta.stdout.String(); got != want {
		t.Errorf("stdout = %q, want %q", got, want)
	}
}

func TestRun_StartupFailure(t *testing.T) {
	t.Parallel()

	env := &scriptedEnv{stepErr: &environment.StartupError{Command: []string{"python3"}, Cause: errors.New("not found")}}
	ta := newTestApp(t, env, "")

	err := ta.execute(t, "run", "-c", "print(1)")
	if !errors.Is(err, environment.ErrStartup) {
		t.Fatalf("expected ErrStartup, got %v", err)
	}
	if iss := issue.IssueOf(err); iss == nil || iss.Id() != issue.InterpreterNotFoundId {
		t.Errorf("expected interpreter-not-found issue, got %v", iss)
	}
}

func TestPrintError_ListsIssueLinks(t *testing.T) {
	t.Parallel()

	env := &scriptedEnv{stepErr: &environment.StartupError{Command: []string{"python3"}, Cause: errors.New("not found")}}
	ta := newTestApp(t, env, "")
	err := ta.execute(t, "run", "-c", "print(1)")
	if err == nil {
		t.Fatal("expected an error")
	}

	var out bytes.Buffer
	if !ta.printError(&out, err) {
		t.Fatal("printError() left an ActionableError to the caller")
	}
	iss := issue.Get(issue.InterpreterNotFoundId)
	for _, link := range iss.ExtLinks() {
		if !strings.Contains(out.String(), string(link)) {
			t.Errorf("output %q does not list %s", out.String(), link)
		}
	}
	if len(iss.ExtLinks()) == 0 {
		t.Error("interpreter-not-found entry has no links")
	}
}

func TestRun_UnknownEnvironment(t *testing.T) {
	t.Parallel()

	ta := newTestApp(t, &scriptedEnv{}, "")
	err := ta.execute(t, "run", "-e", "cobol", "-c", "x")
	if !errors.Is(err, environment.ErrUnknownEnvironment) {
		t.Fatalf("expected ErrUnknownEnvironment, got %v", err)
	}

	var buf bytes.Buffer
	if !ta.printError(&buf, err) {
		t.Fatal("expected printError to handle the actionable error")
	}
	if !strings.Contains(buf.String(), "Available environments: scripted") {
		t.Errorf("expected suggestions in %q", buf.String())
	}
}

func TestRepl_SubmitsEachLine(t *testing.T) {
	t.Parallel()

	env := &scriptedEnv{events: []environment.OutputEvent{
		environment.ConsoleEvent(environment.FormatOutput, "out"),
	}}
	ta := newTestApp(t, env, "one\n\ntwo \\\ncontinued\n.exit\nnever\n")

	if err := ta.execute(t, "repl"); err != nil {
		t.Fatalf("repl returned error: %v", err)
	}
	if got := strings.Count(ta.stdout.String(), "out\n"); got != 2 {
		t.Errorf("expected 2 submissions before .exit, got %d (%q)", got, ta.stdout.String())
	}
}

func TestReadSubmissions(t *testing.T) {
	t.Parallel()

	var prompts bytes.Buffer
	got := slices.Collect(readSubmissions(strings.NewReader("a\n  \nb \\\nc\nd \\\n"), &prompts, "> "))
	want := []string{"a", "b \nc", "d "}
	if !slices.Equal(got, want) {
		t.Errorf("readSubmissions() = %q, want %q", got, want)
	}
	if !strings.Contains(prompts.String(), "... ") {
		t.Errorf("expected a continuation prompt, got %q", prompts.String())
	}
}

func TestReadCode(t *testing.T) {
	t.Parallel()

	if code, err := readCode(strings.NewReader("from stdin"), "", nil); err != nil || code != "from stdin" {
		t.Errorf("readCode(stdin) = %q, %v", code, err)
	}
	if code, err := readCode(strings.NewReader("from stdin"), "", []string{"-"}); err != nil || code != "from stdin" {
		t.Errorf("readCode(-) = %q, %v", code, err)
	}
	if code, err := readCode(nil, "inline", nil); err != nil || code != "inline" {
		t.Errorf("readCode(-c) = %q, %v", code, err)
	}
	if _, err := readCode(nil, "inline", []string{"file.sh"}); err == nil {
		t.Error("expected an error for --code together with a file")
	}
	if _, err := readCode(nil, "", []string{"does-not-exist.sh"}); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestEnvs_MarksDefault(t *testing.T) {
	t.Parallel()

	ta := newTestApp(t, &scriptedEnv{}, "")
	if err := ta.execute(t, "envs"); err != nil {
		t.Fatalf("envs returned error: %v", err)
	}
	out := ta.stdout.String()
	for _, want := range []string{"scripted *", "sc", "interactive", "test environment"} {
		if !strings.Contains(out, want) {
			t.Errorf("envs output missing %q:\n%s", want, out)
		}
	}
}

func TestInvalidLogLevelFlag(t *testing.T) {
	t.Parallel()

	ta := newTestApp(t, &scriptedEnv{}, "")
	if err := ta.execute(t, "--log-level", "loud", "envs"); !errors.Is(err, config.ErrInvalidLogLevel) {
		t.Errorf("expected ErrInvalidLogLevel, got %v", err)
	}
}
