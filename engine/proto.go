// Copyright 2026 The Parselbox Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/parselbox/parselbox/lib/codec"
)

// Frame operations, host → runner unless noted.
const (
	opReady          = "ready" // runner → host, handshake
	opRun            = "run"
	opSetGlobal      = "set_global"
	opMkdir          = "mkdir"
	opMount          = "mount"
	opLoadPackages   = "load_packages"
	opLoadImports    = "load_imports"
	opStat           = "stat"
	opReaddir        = "readdir"
	opInterrupt      = "interrupt" // out-of-band, no response
	opClose          = "close"
	opCallback       = "callback" // runner → host, during a run
	opCallbackResult = "callback_result"
	opLog            = "log" // runner → host, script output
)

// frame is the single message shape on the runner protocol. Requests
// carry Op and ID; responses carry only ID (plus result fields).
// Unused fields are omitted from the wire.
type frame struct {
	Op         string         `cbor:"op,omitempty"`
	ID         uint64         `cbor:"id,omitempty"`
	Code       string         `cbor:"code,omitempty"`
	Filename   string         `cbor:"filename,omitempty"`
	Mode       string         `cbor:"mode,omitempty"`
	Name       string         `cbor:"name,omitempty"`
	Dir        string         `cbor:"dir,omitempty"`
	HostPath   string         `cbor:"host_path,omitempty"`
	ReadOnly   bool           `cbor:"read_only,omitempty"`
	Callable   bool           `cbor:"callable,omitempty"`
	Proxy      bool           `cbor:"proxy,omitempty"`
	Packages   []string       `cbor:"packages,omitempty"`
	Path       []string       `cbor:"path,omitempty"`
	Args       []any          `cbor:"args,omitempty"`
	Kwargs     map[string]any `cbor:"kwargs,omitempty"`
	Value      any            `cbor:"value,omitempty"`
	Error      string         `cbor:"error,omitempty"`
	ErrorType  string         `cbor:"error_type,omitempty"`
	Traceback  string         `cbor:"traceback,omitempty"`
	Level      string         `cbor:"level,omitempty"`
	Message    string         `cbor:"message,omitempty"`
	Entries    []frameEntry   `cbor:"entries,omitempty"`
	FileSize   int64          `cbor:"size,omitempty"`
	ModTimeMS  int64          `cbor:"mtime_ms,omitempty"`
	IsDir      bool           `cbor:"is_dir,omitempty"`
}

type frameEntry struct {
	Name  string `cbor:"name"`
	IsDir bool   `cbor:"is_dir,omitempty"`
}

// conn multiplexes request/response frames, runner-initiated callback
// frames, and log frames over one reader/writer pair. It is separated
// from Subprocess so tests can drive the protocol over in-memory
// pipes without spawning a process.
type conn struct {
	writeMu sync.Mutex
	encoder *codec.Encoder
	writer  io.Closer

	logger *slog.Logger
	output func(level, message string)

	ready  chan struct{}
	closed chan struct{}

	mu        sync.Mutex
	pending   map[uint64]chan frame
	callables map[string]Callable
	nextID    uint64
	runCtx    context.Context
	interrupt chan struct{} // closes the active interrupt watcher
	readErr   error
}

func newConn(reader io.Reader, writer io.WriteCloser, logger *slog.Logger, output func(level, message string)) *conn {
	c := &conn{
		encoder:   codec.NewEncoder(writer),
		writer:    writer,
		logger:    logger,
		output:    output,
		ready:     make(chan struct{}),
		closed:    make(chan struct{}),
		pending:   make(map[uint64]chan frame),
		callables: make(map[string]Callable),
	}
	go c.readLoop(reader)
	return c
}

// call sends a request frame and blocks for its response.
func (c *conn) call(ctx context.Context, request frame) (frame, error) {
	responses := make(chan frame, 1)

	c.mu.Lock()
	c.nextID++
	request.ID = c.nextID
	c.pending[request.ID] = responses
	c.mu.Unlock()

	if err := c.send(request); err != nil {
		c.dropPending(request.ID)
		return frame{}, err
	}

	select {
	case response := <-responses:
		return response, nil
	case <-c.closed:
		return frame{}, fmt.Errorf("engine: runner connection closed: %w", c.readError())
	case <-ctx.Done():
		c.dropPending(request.ID)
		return frame{}, ctx.Err()
	}
}

func (c *conn) send(f frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.encoder.Encode(f); err != nil {
		return fmt.Errorf("engine: writing %s frame: %w", f.Op, err)
	}
	return nil
}

func (c *conn) dropPending(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, id)
}

func (c *conn) readLoop(reader io.Reader) {
	decoder := codec.NewDecoder(reader)
	for {
		var received frame
		if err := decoder.Decode(&received); err != nil {
			c.mu.Lock()
			if c.readErr == nil {
				c.readErr = err
			}
			c.mu.Unlock()
			close(c.closed)
			return
		}

		switch received.Op {
		case opReady:
			select {
			case <-c.ready:
			default:
				close(c.ready)
			}
		case opCallback:
			go c.handleCallback(received)
		case opLog:
			if c.output != nil {
				c.output(received.Level, received.Message)
			}
			c.logger.Debug("script output", "level", received.Level, "message", received.Message)
		case "":
			c.mu.Lock()
			responses, ok := c.pending[received.ID]
			delete(c.pending, received.ID)
			c.mu.Unlock()
			if !ok {
				c.logger.Warn("response for unknown request id", "id", received.ID)
				continue
			}
			responses <- received
		default:
			c.logger.Warn("unknown frame from runner", "op", received.Op)
		}
	}
}

// handleCallback resolves a script's call of an injected global:
// navigate the attribute path (pure), invoke the callable, reply with
// the result or a typed error the runner can re-raise.
func (c *conn) handleCallback(request frame) {
	reply := frame{Op: opCallbackResult, ID: request.ID}

	value, err := c.invokeCallable(request)
	if err != nil {
		reply.Error = err.Error()
		reply.ErrorType = "Exception"
		var typed TypedError
		if errors.As(err, &typed) && typed.ErrorType() != "" {
			reply.ErrorType = typed.ErrorType()
		}
	} else {
		reply.Value = value
	}

	if sendErr := c.send(reply); sendErr != nil {
		c.logger.Error("sending callback result failed", "name", request.Name, "error", sendErr)
	}
}

func (c *conn) invokeCallable(request frame) (any, error) {
	c.mu.Lock()
	callable, ok := c.callables[request.Name]
	ctx := c.runCtx
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("engine: no callable registered as %q", request.Name)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if len(request.Path) > 0 {
		navigable, ok := callable.(Navigable)
		if !ok {
			return nil, fmt.Errorf("engine: %q does not support attribute navigation", request.Name)
		}
		for _, segment := range request.Path {
			navigable = navigable.Attr(segment)
		}
		callable = navigable
	}
	return callable.CallTool(ctx, request.Args, request.Kwargs)
}

func (c *conn) registerCallable(name string, callable Callable) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callables[name] = callable
}

// setRunContext records the context callbacks execute under while a
// run is in flight.
func (c *conn) setRunContext(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.runCtx = ctx
}

// setInterrupt swaps the interrupt watcher. The watcher forwards the
// signal's first Interrupt as an out-of-band frame, since the runner
// cannot observe the controller's shared word across the process
// boundary.
func (c *conn) setInterrupt(signal *Signal) {
	c.mu.Lock()
	if c.interrupt != nil {
		close(c.interrupt)
		c.interrupt = nil
	}
	if signal == nil {
		c.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	c.interrupt = stop
	c.mu.Unlock()

	go func() {
		select {
		case <-signal.Done():
			if err := c.send(frame{Op: opInterrupt}); err != nil {
				c.logger.Error("sending interrupt failed", "error", err)
			}
		case <-stop:
		case <-c.closed:
		}
	}()
}

func (c *conn) readError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readErr
}

// close tears down the write side; the read loop ends when the runner
// closes its stdout.
func (c *conn) close() {
	c.setInterrupt(nil)
	_ = c.writer.Close()
}
