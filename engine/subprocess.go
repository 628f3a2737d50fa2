// Copyright 2026 The Parselbox Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"time"

	"github.com/parselbox/parselbox/fsdiff"
	"github.com/parselbox/parselbox/lib/clock"
)

// SubprocessConfig holds configuration for spawning an engine runner.
type SubprocessConfig struct {
	// Command is the runner executable (e.g. a Deno/Pyodide runner
	// script wrapper).
	Command string

	// Args are passed to the runner.
	Args []string

	// Env are additional environment variables for the runner.
	Env map[string]string

	// Output receives script output lines forwarded by the runner
	// (level is "info", "warning", or "error"). Optional.
	Output func(level, message string)

	// Clock abstracts time for the shutdown grace period. Defaults to
	// clock.Real().
	Clock clock.Clock

	// Logger receives structured log output. If nil, slog.Default()
	// is used.
	Logger *slog.Logger
}

// Subprocess drives an external interpreter runner over a CBOR frame
// protocol on the runner's stdin/stdout. Requests carry an id and get
// one response; the runner may interleave callback frames (a script
// invoking an injected global) and log frames (script output) while a
// run is in flight. The interrupt frame is out-of-band: it carries no
// id and gets no response, because the runner is busy executing the
// script and only samples the interrupt at its safepoints.
type Subprocess struct {
	conn   *conn
	cmd    *exec.Cmd
	clock  clock.Clock
	logger *slog.Logger
}

// NewSubprocess spawns the runner and performs the ready handshake.
// Cancelling ctx kills the runner process.
func NewSubprocess(ctx context.Context, config SubprocessConfig) (*Subprocess, error) {
	if config.Command == "" {
		return nil, fmt.Errorf("engine: runner command is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}

	cmd := exec.CommandContext(ctx, config.Command, config.Args...)
	for key, value := range config.Env {
		cmd.Env = append(cmd.Env, key+"="+value)
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("engine: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("engine: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("engine: stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("engine: starting runner %s: %w", config.Command, err)
	}

	go forwardStderr(stderr, logger)

	connection := newConn(stdout, stdin, logger, config.Output)
	subprocess := &Subprocess{
		conn:   connection,
		cmd:    cmd,
		clock:  clk,
		logger: logger,
	}

	select {
	case <-connection.ready:
	case <-connection.closed:
		_ = cmd.Process.Kill()
		return nil, fmt.Errorf("engine: runner exited before handshake: %w", connection.readError())
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		return nil, fmt.Errorf("engine: handshake: %w", ctx.Err())
	}

	logger.Info("engine runner started", "command", config.Command, "pid", cmd.Process.Pid)
	return subprocess, nil
}

func forwardStderr(stderr io.Reader, logger *slog.Logger) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		logger.Warn("engine stderr", "line", scanner.Text())
	}
}

// Run executes code in the runner and blocks until it resolves.
func (s *Subprocess) Run(ctx context.Context, code, filename string, mode RunMode) (any, error) {
	s.conn.setRunContext(ctx)
	defer s.conn.setRunContext(nil)

	response, err := s.conn.call(ctx, frame{Op: opRun, Code: code, Filename: filename, Mode: string(mode)})
	if err != nil {
		return nil, err
	}
	if response.ErrorType == "KeyboardInterrupt" {
		return nil, fmt.Errorf("%w: %s", ErrInterrupted, response.Error)
	}
	if err := responseError(response); err != nil {
		return nil, err
	}
	return response.Value, nil
}

// responseError lifts a runner-reported failure out of a response
// frame.
func responseError(response frame) error {
	if response.Error == "" && response.ErrorType == "" {
		return nil
	}
	return &ScriptError{
		Type:      response.ErrorType,
		Message:   response.Error,
		Traceback: response.Traceback,
	}
}

// SetInterrupt installs signal as the pending interrupt source. The
// runner cannot read the controller's shared word directly, so a
// watcher goroutine forwards the first Interrupt as an out-of-band
// frame. SetInterrupt(nil) detaches the watcher.
func (s *Subprocess) SetInterrupt(signal *Signal) {
	s.conn.setInterrupt(signal)
}

// SetGlobal injects a value into the runner's global namespace.
// Callable (and Navigable) values are registered host-side; the runner
// receives a stub that routes calls back as callback frames.
func (s *Subprocess) SetGlobal(name string, value any) error {
	request := frame{Op: opSetGlobal, Name: name}
	switch value.(type) {
	case Navigable:
		request.Proxy = true
	case Callable:
		request.Callable = true
	default:
		request.Value = value
	}
	if request.Proxy || request.Callable {
		s.conn.registerCallable(name, value.(Callable))
	}
	return s.simpleCall(request)
}

// Mkdir creates a directory tree in the runner's virtual filesystem.
func (s *Subprocess) Mkdir(path string) error {
	return s.simpleCall(frame{Op: opMkdir, Dir: path})
}

// Mount makes a host directory visible inside the runner.
func (s *Subprocess) Mount(hostPath, mountPoint string, readOnly bool) error {
	return s.simpleCall(frame{Op: opMount, HostPath: hostPath, Dir: mountPoint, ReadOnly: readOnly})
}

// LoadPackages installs packages into the interpreter.
func (s *Subprocess) LoadPackages(ctx context.Context, packages []string) error {
	response, err := s.conn.call(ctx, frame{Op: opLoadPackages, Packages: packages})
	if err != nil {
		return err
	}
	return responseError(response)
}

// ResolveImportsAndLoad asks the runner to scan code for imports and
// install what they imply.
func (s *Subprocess) ResolveImportsAndLoad(ctx context.Context, code string) error {
	response, err := s.conn.call(ctx, frame{Op: opLoadImports, Code: code})
	if err != nil {
		return err
	}
	return responseError(response)
}

// FS exposes the runner's virtual filesystem through stat/readdir
// frames.
func (s *Subprocess) FS() fsdiff.FS {
	return &subprocessFS{conn: s.conn}
}

// Close asks the runner to exit, then waits for the process with a
// grace period before killing it.
func (s *Subprocess) Close() error {
	_ = s.conn.send(frame{Op: opClose})
	s.conn.close()

	waited := make(chan error, 1)
	go func() { waited <- s.cmd.Wait() }()
	select {
	case err := <-waited:
		return err
	case <-s.clock.After(5 * time.Second):
		s.logger.Warn("engine runner did not exit, killing", "pid", s.cmd.Process.Pid)
		_ = s.cmd.Process.Kill()
		return <-waited
	}
}

func (s *Subprocess) simpleCall(request frame) error {
	response, err := s.conn.call(context.Background(), request)
	if err != nil {
		return err
	}
	return responseError(response)
}

var _ Engine = (*Subprocess)(nil)
