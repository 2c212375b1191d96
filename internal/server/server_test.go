// SPDX-License-Identifier: MPL-2.0

package server

import (
	"context"
	"encoding/json"
	"iter"
	"net"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"interpd/internal/environment"
	"interpd/internal/testutil"
)

type (
	// fakeEnv echoes code back as one output line. The code "block" waits
	// until the environment is terminated; "fail" is a startup failure.
	fakeEnv struct {
		mu         sync.Mutex
		terminated chan struct{}
		state      environment.State
		kills      atomic.Int32
	}

	wireFrame struct {
		Type        string `json:"type"`
		Format      string `json:"format"`
		Content     string `json:"content"`
		Line        int    `json:"line"`
		Message     string `json:"message"`
		Environment string `json:"environment"`
		Session     string `json:"session"`
	}
)

func newFakeEnv() *fakeEnv {
	return &fakeEnv{terminated: make(chan struct{})}
}

func (f *fakeEnv) Name() string { return "fake" }

func (f *fakeEnv) State() environment.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeEnv) Step(ctx context.Context, code string) (iter.Seq[environment.OutputEvent], error) {
	if code == "fail" {
		return nil, &environment.StartupError{Command: []string{"fake"}, Cause: context.DeadlineExceeded}
	}
	f.mu.Lock()
	terminated := f.terminated
	f.mu.Unlock()

	return func(yield func(environment.OutputEvent) bool) {
		if !yield(environment.ActiveLineEvent(1)) {
			return
		}
		if code == "block" {
			select {
			case <-terminated:
			case <-ctx.Done():
			}
			return
		}
		yield(environment.ConsoleEvent(environment.FormatOutput, code))
	}, nil
}

func (f *fakeEnv) Stop() { f.Terminate() }

func (f *fakeEnv) Terminate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != environment.StateTerminated {
		f.state = environment.StateTerminated
		close(f.terminated)
	}
	f.kills.Add(1)
}

func (f *fakeEnv) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == environment.StateTerminated {
		f.state = environment.StateIdle
		f.terminated = make(chan struct{})
	}
}

func newFakeServer(t *testing.T) (*httptest.Server, func() *fakeEnv) {
	t.Helper()

	var (
		mu   sync.Mutex
		last *fakeEnv
	)
	reg := environment.NewRegistry()
	err := reg.Register(environment.Entry{
		Name:    "fake",
		Aliases: []string{"f"},
		Factory: func(environment.Options) (environment.Environment, error) {
			mu.Lock()
			defer mu.Unlock()
			last = newFakeEnv()
			return last, nil
		},
	})
	if err != nil {
		t.Fatalf("Register() returned error: %v", err)
	}

	ts := httptest.NewServer(New(Options{Registry: reg, DefaultEnvironment: "fake"}).Handler())
	t.Cleanup(ts.Close)
	return ts, func() *fakeEnv {
		mu.Lock()
		defer mu.Unlock()
		return last
	}
}

func dial(t *testing.T, ts *httptest.Server, query string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws" + query
	conn, resp, err := websocket.DefaultDialer.DialContext(t.Context(), url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	testutil.MustClose(t, resp.Body)
	t.Cleanup(func() { _ = conn.Close() })

	if ready := readFrame(t, conn); ready.Type != FrameReady || ready.Session == "" {
		t.Fatalf("expected ready frame, got %+v", ready)
	}
	return conn
}

func send(t *testing.T, conn *websocket.Conn, req Request) {
	t.Helper()
	if err := conn.WriteJSON(req); err != nil {
		t.Fatalf("WriteJSON() returned error: %v", err)
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) wireFrame {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(10 * time.Second)); err != nil {
		t.Fatalf("SetReadDeadline() returned error: %v", err)
	}
	var f wireFrame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("ReadJSON() returned error: %v", err)
	}
	return f
}

// readUntilDone returns every frame before the next done frame.
func readUntilDone(t *testing.T, conn *websocket.Conn) []wireFrame {
	t.Helper()
	var frames []wireFrame
	for {
		f := readFrame(t, conn)
		if f.Type == FrameDone {
			return frames
		}
		frames = append(frames, f)
	}
}

func TestServer_ExecuteStreamsEvents(t *testing.T) {
	t.Parallel()

	ts, _ := newFakeServer(t)
	conn := dial(t, ts, "")

	for _, code := range []string{"first", "second"} {
		send(t, conn, Request{Code: code})
		frames := readUntilDone(t, conn)
		if len(frames) != 2 {
			t.Fatalf("expected 2 frames, got %+v", frames)
		}
		if frames[0].Type != "active_line" || frames[0].Line != 1 {
			t.Errorf("expected active_line 1, got %+v", frames[0])
		}
		if frames[1].Type != "console" || frames[1].Format != "output" || frames[1].Content != code {
			t.Errorf("expected console output %q, got %+v", code, frames[1])
		}
	}
}

func TestServer_StartupFailure(t *testing.T) {
	t.Parallel()

	ts, _ := newFakeServer(t)
	conn := dial(t, ts, "?env=F")

	send(t, conn, Request{Type: RequestExecute, Code: "fail"})
	frames := readUntilDone(t, conn)
	if len(frames) != 1 || frames[0].Type != FrameError || !strings.Contains(frames[0].Message, "failed to start") {
		t.Errorf("expected one error frame, got %+v", frames)
	}
}

func TestServer_BusyAndInterrupt(t *testing.T) {
	t.Parallel()

	ts, env := newFakeServer(t)
	conn := dial(t, ts, "")

	send(t, conn, Request{Code: "block"})
	if f := readFrame(t, conn); f.Type != "active_line" {
		t.Fatalf("expected active_line, got %+v", f)
	}

	send(t, conn, Request{Code: "second"})
	frames := readUntilDone(t, conn)
	if len(frames) != 1 || frames[0].Message != environment.ErrSessionBusy.Error() {
		t.Fatalf("expected busy error, got %+v", frames)
	}

	send(t, conn, Request{Type: RequestInterrupt})
	if frames := readUntilDone(t, conn); len(frames) != 0 {
		t.Fatalf("expected the blocked submission to end, got %+v", frames)
	}
	if env().kills.Load() == 0 {
		t.Error("expected interrupt to terminate the environment")
	}

	send(t, conn, Request{Code: "after"})
	if frames := readUntilDone(t, conn); len(frames) != 2 || frames[1].Content != "after" {
		t.Errorf("expected the environment to be usable after interrupt, got %+v", frames)
	}
}

func TestServer_CloseTerminatesEnvironment(t *testing.T) {
	t.Parallel()

	ts, env := newFakeServer(t)
	conn := dial(t, ts, "")

	send(t, conn, Request{Code: "block"})
	if f := readFrame(t, conn); f.Type != "active_line" {
		t.Fatalf("expected active_line, got %+v", f)
	}
	testutil.MustClose(t, conn)

	testutil.Eventually(t, 5*time.Second, func() bool {
		return env().State() == environment.StateTerminated
	}, "environment was not terminated after the connection closed")
}

func TestServer_ControlFrames(t *testing.T) {
	t.Parallel()

	ts, _ := newFakeServer(t)
	conn := dial(t, ts, "")

	send(t, conn, Request{Type: RequestPing})
	if f := readFrame(t, conn); f.Type != FramePong {
		t.Errorf("expected pong, got %+v", f)
	}

	send(t, conn, Request{Type: "dance"})
	if f := readFrame(t, conn); f.Type != FrameError || !strings.Contains(f.Message, "dance") {
		t.Errorf("expected unknown request error, got %+v", f)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("WriteMessage() returned error: %v", err)
	}
	if f := readFrame(t, conn); f.Type != FrameError || !strings.HasPrefix(f.Message, "malformed frame") {
		t.Errorf("expected malformed frame error, got %+v", f)
	}
}

func TestServer_UnknownEnvironment(t *testing.T) {
	t.Parallel()

	ts, _ := newFakeServer(t)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?env=cobol"
	_, resp, err := websocket.DefaultDialer.DialContext(t.Context(), url, nil)
	if err == nil {
		t.Fatal("expected the handshake to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", resp)
	}
	testutil.MustClose(t, resp.Body)
}

func TestServer_Envs(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(New(Options{}).Handler())
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/envs")
	if err != nil {
		t.Fatalf("GET /envs: %v", err)
	}
	defer testutil.MustClose(t, resp.Body)

	var infos []envInfo
	if err := json.NewDecoder(resp.Body).Decode(&infos); err != nil {
		t.Fatalf("decode: %v", err)
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name)
	}
	if got := strings.Join(names, ","); got != "javascript,powershell,python,shell,virtual" {
		t.Errorf("unexpected environments %s", got)
	}
}

func TestServer_ListenAndServe(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	addrCh := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		errCh <- New(Options{}).ListenAndServe(ctx, "127.0.0.1:0", func(a net.Addr) { addrCh <- a.String() })
	}()

	var addr string
	select {
	case addr = <-addrCh:
	case err := <-errCh:
		t.Fatalf("ListenAndServe() returned early: %v", err)
	}

	resp, err := http.Get("http://" + addr + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	testutil.MustClose(t, resp.Body)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("expected 204, got %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("ListenAndServe() = %v, want nil after cancel", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("ListenAndServe() did not return after cancel")
	}
}

func TestServer_ShellSession(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping interpreter test in short mode")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("no POSIX shell available")
	}
	t.Parallel()

	ts := httptest.NewServer(New(Options{}).Handler())
	t.Cleanup(ts.Close)
	conn := dial(t, ts, "?env=shell")

	send(t, conn, Request{Code: "X=41\necho $((X + 1))"})
	frames := readUntilDone(t, conn)

	var lines []int
	var output []string
	for _, f := range frames {
		switch {
		case f.Type == "active_line":
			lines = append(lines, f.Line)
		case f.Type == "console" && f.Format == "output":
			output = append(output, f.Content)
		}
	}
	if len(lines) != 2 || lines[0] != 1 || lines[1] != 2 {
		t.Errorf("expected active lines [1 2], got %v", lines)
	}
	if len(output) != 1 || output[0] != "42" {
		t.Errorf("expected output [42], got %v", output)
	}
}
