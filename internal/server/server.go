// SPDX-License-Identifier: MPL-2.0

// Package server exposes environments over websockets. Every connection owns
// one environment instance; it is terminated when the connection closes.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"interpd/internal/environment"
)

const (
	// FrameReady is sent once after the connection is upgraded.
	FrameReady = "ready"
	// FrameDone ends the events of one submission.
	FrameDone = "done"
	// FrameError reports a rejected submission or a malformed frame.
	FrameError = "error"
	// FramePong answers a ping frame.
	FramePong = "pong"

	// RequestExecute submits code. It is the default request type.
	RequestExecute = "execute"
	// RequestInterrupt terminates the running submission and resets the environment.
	RequestInterrupt = "interrupt"
	// RequestPing asks for a pong frame.
	RequestPing = "ping"

	wsWriteWait       = 10 * time.Second
	wsPongWait        = 60 * time.Second
	wsPingEvery       = (wsPongWait * 9) / 10
	wsSendBuffer      = 64
	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 10 * time.Second
)

type (
	// Options configures a Server.
	Options struct {
		// Registry resolves the env query parameter. Defaults to environment.DefaultRegistry().
		Registry *environment.Registry
		// DefaultEnvironment is used when a connection does not name one.
		DefaultEnvironment string
		// EnvironmentOptions returns the options used to create an environment.
		EnvironmentOptions func(entry environment.Entry) environment.Options
		// Logger defaults to slog.Default().
		Logger *slog.Logger
	}

	// Server hands out one environment per websocket connection.
	Server struct {
		registry   *environment.Registry
		defaultEnv string
		envOptions func(entry environment.Entry) environment.Options
		logger     *slog.Logger
		upgrader   websocket.Upgrader
	}

	// Request is a client frame.
	Request struct {
		Type string `json:"type,omitempty"`
		Code string `json:"code,omitempty"`
	}

	// Frame is a server frame that is not an OutputEvent.
	Frame struct {
		Type        string `json:"type"`
		Environment string `json:"environment,omitempty"`
		Session     string `json:"session,omitempty"`
		Message     string `json:"message,omitempty"`
	}

	resetter interface {
		Reset()
	}

	connection struct {
		id      string
		env     environment.Environment
		conn    *websocket.Conn
		logger  *slog.Logger
		writeCh chan any

		runMu   sync.Mutex
		running bool
	}
)

// New creates a Server.
func New(opts Options) *Server {
	s := &Server{
		registry:   opts.Registry,
		defaultEnv: opts.DefaultEnvironment,
		envOptions: opts.EnvironmentOptions,
		logger:     opts.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
	if s.registry == nil {
		s.registry = environment.DefaultRegistry()
	}
	if s.defaultEnv == "" {
		s.defaultEnv = "shell"
	}
	if s.envOptions == nil {
		s.envOptions = func(environment.Entry) environment.Options { return environment.Options{} }
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Handler returns the HTTP handler serving /ws, /envs and /healthz.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("GET /envs", s.handleEnvs)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

// ListenAndServe serves on addr until ctx is canceled. ready, when non-nil,
// receives the bound address once the listener is open.
func (s *Server) ListenAndServe(ctx context.Context, addr string, ready func(net.Addr)) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	if ready != nil {
		ready(ln.Addr())
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type envInfo struct {
	Name        string   `json:"name"`
	Aliases     []string `json:"aliases"`
	Description string   `json:"description"`
	Interactive bool     `json:"interactive"`
}

func (s *Server) handleEnvs(w http.ResponseWriter, _ *http.Request) {
	entries := s.registry.Entries()
	infos := make([]envInfo, 0, len(entries))
	for _, e := range entries {
		infos = append(infos, envInfo{Name: e.Name, Aliases: e.Aliases, Description: e.Description, Interactive: e.Interactive})
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(infos); err != nil {
		s.logger.Warn("failed to write environment list", "error", err)
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("env"))
	if name == "" {
		name = s.defaultEnv
	}
	entry, ok := s.registry.Lookup(name)
	if !ok {
		err := &environment.UnknownEnvironmentError{Name: name, Known: s.registry.Names()}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	env, err := entry.Factory(s.envOptions(entry))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		env.Terminate()
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	c := &connection{
		id:      uuid.NewString(),
		env:     env,
		conn:    conn,
		writeCh: make(chan any, wsSendBuffer),
	}
	c.logger = s.logger.With("connection", c.id, "environment", entry.Name)
	c.logger.Info("connection opened", "remote", r.RemoteAddr)

	c.serve(r.Context(), entry.Name)
	c.logger.Info("connection closed")
}

func (c *connection) serve(parent context.Context, envName string) {
	ctx, cancel := context.WithCancel(parent)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		c.env.Terminate()
		wg.Wait()
		if err := c.conn.Close(); err != nil {
			c.logger.Debug("websocket close failed", "error", err)
		}
	}()

	if err := c.conn.SetReadDeadline(time.Now().Add(wsPongWait)); err != nil {
		c.logger.Warn("websocket set read deadline failed", "error", err)
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	wg.Go(func() { c.writeLoop(ctx) })

	c.push(ctx, Frame{Type: FrameReady, Environment: envName, Session: c.id})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("websocket read ended", "error", err)
			}
			return
		}
		if err := c.conn.SetReadDeadline(time.Now().Add(wsPongWait)); err != nil {
			return
		}

		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			c.push(ctx, Frame{Type: FrameError, Message: "malformed frame: " + err.Error()})
			continue
		}

		switch strings.ToLower(strings.TrimSpace(req.Type)) {
		case "", RequestExecute:
			c.execute(ctx, &wg, req.Code)
		case RequestInterrupt:
			c.env.Terminate()
			if r, ok := c.env.(resetter); ok {
				r.Reset()
			}
		case RequestPing:
			c.push(ctx, Frame{Type: FramePong})
		default:
			c.push(ctx, Frame{Type: FrameError, Message: fmt.Sprintf("unknown request type %q", req.Type)})
		}
	}
}

// execute starts a submission. Only one runs at a time; a second one gets an
// error frame followed by a done frame.
func (c *connection) execute(ctx context.Context, wg *sync.WaitGroup, code string) {
	c.runMu.Lock()
	busy := c.running
	c.running = true
	c.runMu.Unlock()
	if busy {
		c.push(ctx, Frame{Type: FrameError, Message: environment.ErrSessionBusy.Error()})
		c.push(ctx, Frame{Type: FrameDone})
		return
	}

	wg.Go(func() {
		events, err := c.env.Step(ctx, code)
		if err != nil {
			c.push(ctx, Frame{Type: FrameError, Message: err.Error()})
			c.finish(ctx)
			return
		}
		for ev := range events {
			if !c.push(ctx, ev) {
				c.setRunning(false)
				return
			}
		}
		c.finish(ctx)
	})
}

// finish releases the connection for the next submission before the done
// frame reaches the client.
func (c *connection) finish(ctx context.Context) {
	c.setRunning(false)
	c.push(ctx, Frame{Type: FrameDone})
}

func (c *connection) setRunning(running bool) {
	c.runMu.Lock()
	c.running = running
	c.runMu.Unlock()
}

// push queues a frame for the writer. It reports false once the connection is gone.
func (c *connection) push(ctx context.Context, frame any) bool {
	select {
	case c.writeCh <- frame:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *connection) writeLoop(ctx context.Context) {
	ticker := time.NewTicker(wsPingEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
				return
			}
			if err := c.conn.WriteJSON(frame); err != nil {
				c.logger.Debug("websocket write failed", "error", err)
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
