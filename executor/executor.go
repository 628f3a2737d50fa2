// Copyright 2026 The Parselbox Authors
// SPDX-License-Identifier: Apache-2.0

package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/parselbox/parselbox/capability"
	"github.com/parselbox/parselbox/engine"
	"github.com/parselbox/parselbox/fsdiff"
	"github.com/parselbox/parselbox/lib/clock"
	"github.com/parselbox/parselbox/value"
)

// scriptFilename is the name scripts run under; it appears in
// tracebacks.
const scriptFilename = "script.py"

// Request describes one script execution.
type Request struct {
	// Code is the script source.
	Code string

	// Timeout bounds the script's wall-clock runtime. Zero means no
	// timeout.
	Timeout time.Duration

	// AutoLoadPackages asks the engine to resolve the script's imports
	// and install the packages they imply before running. Gated on the
	// runtime-package and network capabilities.
	AutoLoadPackages bool
}

// Outcome is the structured result of one execution. Exactly one of
// Success/Err describes the resolution; a failed execution never
// carries a value or files.
type Outcome struct {
	Success bool

	// Value is the script's final-expression value, passed through the
	// wire-safe serializer.
	Value any

	// Files are working-directory paths created or modified by the
	// script, relative to the working directory.
	Files []string

	Err *Error
}

// Controller runs scripts one at a time against an engine, layering
// the timeout race, permission gates, and output-file detection on top
// of the engine's Run.
type Controller struct {
	Engine engine.Engine
	Ledger *capability.Ledger

	// WorkDir is the sandbox path snapshotted for produced files.
	WorkDir string

	// SkipMounts are subtrees below WorkDir excluded from snapshots
	// (mounted host directories are not script output).
	SkipMounts []string

	// Clock abstracts time for the timeout race. Defaults to
	// clock.Real().
	Clock clock.Clock

	// Logger receives structured log output. If nil, slog.Default() is
	// used.
	Logger *slog.Logger
}

// Execute runs one script and always returns a structured outcome;
// failures below this layer never escape as errors. The engine must be
// idle: executions are single-flight per controller.
//
// On timeout the controller signals the interrupt and resolves
// immediately. The engine unwinds at its next safepoint; the deadline
// is a lower bound on when the script actually stops.
func (c *Controller) Execute(ctx context.Context, request Request) Outcome {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := c.Clock
	if clk == nil {
		clk = clock.Real()
	}

	if request.AutoLoadPackages {
		if !c.Ledger.Granted(capability.RuntimePackages) {
			return Outcome{Err: &Error{
				Code:    CodePermissionDenied,
				Message: "runtime package installation is disabled",
			}}
		}
		if !c.Ledger.Granted(capability.Network) {
			return Outcome{Err: &Error{
				Code:    CodePermissionDenied,
				Message: "network access is disabled, cannot download packages",
			}}
		}
	}

	before := fsdiff.Take(c.Engine.FS(), c.WorkDir, c.SkipMounts, logger)

	if request.AutoLoadPackages {
		if err := c.Engine.ResolveImportsAndLoad(ctx, request.Code); err != nil {
			logger.Warn("auto package load failed", "error", err)
			return Outcome{Err: Classify(err, false)}
		}
	}

	// A fresh signal per run: interrupt state is single-use, and a
	// stale interrupt would wrongly abort the next run. The signal
	// stays installed until Run resolves, even when Execute returns
	// first on timeout: detaching while the script is still in flight
	// would hide the interrupt from the engine's safepoints.
	signal := engine.NewSignal()
	c.Engine.SetInterrupt(signal)

	type runResult struct {
		value any
		err   error
	}
	results := make(chan runResult, 1)
	go func() {
		resultValue, err := c.Engine.Run(ctx, request.Code, scriptFilename, engine.ReturnLastExpression)
		c.Engine.SetInterrupt(nil)
		results <- runResult{resultValue, err}
	}()

	var deadline <-chan time.Time
	if request.Timeout > 0 {
		deadline = clk.After(request.Timeout)
	}

	select {
	case result := <-results:
		if result.err != nil {
			classified := Classify(result.err, signal.Interrupted())
			logger.Warn("execution failed", "code", classified.Code, "error", result.err)
			return Outcome{Err: classified}
		}
		after := fsdiff.Take(c.Engine.FS(), c.WorkDir, c.SkipMounts, logger)
		files := fsdiff.Diff(before, after)
		logger.Info("execution completed", "files", len(files))
		return Outcome{Success: true, Value: value.Serialize(result.value), Files: files}

	case <-deadline:
		signal.Interrupt()
		logger.Warn("execution timed out", "timeout", request.Timeout)
		return Outcome{Err: &Error{
			Code:    CodeTimeout,
			Message: fmt.Sprintf("execution exceeded the %s timeout", request.Timeout),
		}}

	case <-ctx.Done():
		signal.Interrupt()
		logger.Warn("execution cancelled", "error", ctx.Err())
		return Outcome{Err: &Error{Code: CodeUnknown, Message: ctx.Err().Error()}}
	}
}
