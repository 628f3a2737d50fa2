// Copyright 2026 The Parselbox Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/parselbox/parselbox/lib/codec"
	"github.com/parselbox/parselbox/lib/testutil"
)

// fakeRunner is the far side of the frame protocol: a scripted engine
// runner connected to the conn under test by in-memory pipes.
type fakeRunner struct {
	decoder *codec.Decoder
	encoder *codec.Encoder
	frames  chan frame
}

func startConn(t *testing.T) (*conn, *fakeRunner) {
	t.Helper()

	hostReader, runnerWriter := io.Pipe()
	runnerReader, hostWriter := io.Pipe()

	connection := newConn(hostReader, hostWriter, slog.New(slog.DiscardHandler), nil)
	t.Cleanup(connection.close)

	runner := &fakeRunner{
		decoder: codec.NewDecoder(runnerReader),
		encoder: codec.NewEncoder(runnerWriter),
		frames:  make(chan frame, 16),
	}
	go func() {
		for {
			var received frame
			if err := runner.decoder.Decode(&received); err != nil {
				close(runner.frames)
				return
			}
			runner.frames <- received
		}
	}()
	return connection, runner
}

func (r *fakeRunner) reply(t *testing.T, f frame) {
	t.Helper()
	if err := r.encoder.Encode(f); err != nil {
		t.Errorf("runner encode: %v", err)
	}
}

func TestConnReadyHandshake(t *testing.T) {
	t.Parallel()

	connection, runner := startConn(t)
	runner.reply(t, frame{Op: opReady})
	testutil.RequireClosed(t, connection.ready, 5*time.Second, "ready handshake")
}

func TestConnCallRoundTrip(t *testing.T) {
	t.Parallel()

	connection, runner := startConn(t)

	type callResult struct {
		response frame
		err      error
	}
	results := make(chan callResult, 1)
	go func() {
		response, err := connection.call(context.Background(), frame{Op: opRun, Code: "1 + 1"})
		results <- callResult{response, err}
	}()

	request := testutil.RequireReceive(t, runner.frames, 5*time.Second, "run request")
	if request.Op != opRun || request.Code != "1 + 1" || request.ID == 0 {
		t.Errorf("request = %+v", request)
	}
	runner.reply(t, frame{ID: request.ID, Value: int64(2)})

	result := testutil.RequireReceive(t, results, 5*time.Second, "call result")
	if result.err != nil {
		t.Fatalf("call: %v", result.err)
	}
	if result.response.Value != int64(2) && result.response.Value != uint64(2) {
		t.Errorf("response value = %v (%T)", result.response.Value, result.response.Value)
	}
}

func TestConnCallbackDispatch(t *testing.T) {
	t.Parallel()

	connection, runner := startConn(t)
	connection.registerCallable("add", callableFunc(func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
		sum := int64(0)
		for _, arg := range args {
			switch n := arg.(type) {
			case int64:
				sum += n
			case uint64:
				sum += int64(n)
			}
		}
		return sum, nil
	}))

	runner.reply(t, frame{Op: opCallback, ID: 7, Name: "add", Args: []any{2, 3}})

	result := testutil.RequireReceive(t, runner.frames, 5*time.Second, "callback result")
	if result.Op != opCallbackResult || result.ID != 7 {
		t.Fatalf("result frame = %+v", result)
	}
	if result.Value != int64(5) && result.Value != uint64(5) {
		t.Errorf("callback value = %v (%T)", result.Value, result.Value)
	}
}

func TestConnCallbackErrorCarriesType(t *testing.T) {
	t.Parallel()

	connection, runner := startConn(t)
	connection.registerCallable("boom", callableFunc(func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
		return nil, &ScriptError{Type: "ValueError", Message: "bad args"}
	}))

	runner.reply(t, frame{Op: opCallback, ID: 3, Name: "boom"})

	result := testutil.RequireReceive(t, runner.frames, 5*time.Second, "callback error result")
	if result.ErrorType != "ValueError" {
		t.Errorf("error type = %q, want ValueError", result.ErrorType)
	}
	if result.Error == "" {
		t.Error("error message missing")
	}
}

func TestConnCallbackUnknownName(t *testing.T) {
	t.Parallel()

	connection, runner := startConn(t)
	_ = connection // nothing registered

	runner.reply(t, frame{Op: opCallback, ID: 9, Name: "ghost"})

	result := testutil.RequireReceive(t, runner.frames, 5*time.Second, "unknown callable result")
	if result.ErrorType != "Exception" {
		t.Errorf("error type = %q, want Exception fallback", result.ErrorType)
	}
}

func TestConnInterruptForwarding(t *testing.T) {
	t.Parallel()

	connection, runner := startConn(t)
	signal := NewSignal()
	connection.setInterrupt(signal)
	signal.Interrupt()

	received := testutil.RequireReceive(t, runner.frames, 5*time.Second, "interrupt frame")
	if received.Op != opInterrupt {
		t.Errorf("frame op = %q, want interrupt", received.Op)
	}
	if received.ID != 0 {
		t.Errorf("interrupt frame carries id %d, want out-of-band", received.ID)
	}
}

func TestConnDetachedInterruptNotForwarded(t *testing.T) {
	t.Parallel()

	connection, runner := startConn(t)
	signal := NewSignal()
	connection.setInterrupt(signal)
	connection.setInterrupt(nil)
	signal.Interrupt()

	select {
	case received := <-runner.frames:
		t.Errorf("received %+v after detach", received)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSubprocessRunErrorMapping(t *testing.T) {
	t.Parallel()

	connection, runner := startConn(t)
	subprocess := &Subprocess{conn: connection, logger: slog.New(slog.DiscardHandler)}

	go func() {
		request := <-runner.frames
		runner.reply(t, frame{ID: request.ID, Error: "division by zero", ErrorType: "ZeroDivisionError"})
		request = <-runner.frames
		runner.reply(t, frame{ID: request.ID, Error: "interrupted", ErrorType: "KeyboardInterrupt"})
	}()

	_, err := subprocess.Run(context.Background(), "1/0", "script.py", ReturnLastExpression)
	scriptError, ok := IsScriptError(err)
	if !ok {
		t.Fatalf("err = %v, want ScriptError", err)
	}
	if scriptError.Type != "ZeroDivisionError" {
		t.Errorf("script error type = %q", scriptError.Type)
	}

	_, err = subprocess.Run(context.Background(), "while True: pass", "script.py", ReturnLastExpression)
	if !errors.Is(err, ErrInterrupted) {
		t.Errorf("err = %v, want ErrInterrupted", err)
	}
}

// callableFunc adapts a function to Callable for tests.
type callableFunc func(ctx context.Context, args []any, kwargs map[string]any) (any, error)

func (f callableFunc) CallTool(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
	return f(ctx, args, kwargs)
}
