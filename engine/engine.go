// Copyright 2026 The Parselbox Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"

	"github.com/parselbox/parselbox/fsdiff"
)

// RunMode selects what Run returns.
type RunMode string

const (
	// ReturnLastExpression returns the value of the script's final
	// expression, if it has one.
	ReturnLastExpression RunMode = "last_expr"

	// ReturnNone discards the script's value.
	ReturnNone RunMode = "none"
)

// Engine is the external script interpreter collaborator. It provides
// sandboxed code execution, a virtual filesystem, and a cooperative
// interrupt mechanism; the controller layers the permission model,
// host-callback bridging, and output detection on top.
//
// One Engine instance serializes all executions: Run must not be
// called again until the previous call has returned. The controller
// relies on this single-flight property for RPC ordering.
type Engine interface {
	// Run executes code and blocks until the script finishes, raises,
	// or honors a pending interrupt. A script failure is returned as a
	// *ScriptError; an honored interrupt as ErrInterrupted.
	Run(ctx context.Context, code, filename string, mode RunMode) (any, error)

	// SetInterrupt installs the interrupt signal the engine samples at
	// its safepoints, or detaches it when signal is nil. A fresh
	// signal must be installed before each run; signals are not
	// reusable across runs.
	SetInterrupt(signal *Signal)

	// SetGlobal injects a value into the script's global namespace.
	// Values implementing Callable become callable objects inside the
	// sandbox; values additionally implementing Navigable support
	// attribute-chain navigation before the call.
	SetGlobal(name string, value any) error

	// Mkdir creates a directory (and missing parents) in the engine's
	// virtual filesystem.
	Mkdir(path string) error

	// Mount makes a host directory visible at mountPoint inside the
	// engine's virtual filesystem.
	Mount(hostPath, mountPoint string, readOnly bool) error

	// LoadPackages installs the named packages into the interpreter.
	LoadPackages(ctx context.Context, packages []string) error

	// ResolveImportsAndLoad scans code for imports and installs any
	// packages they imply.
	ResolveImportsAndLoad(ctx context.Context, code string) error

	// FS exposes the engine's virtual filesystem for snapshotting.
	FS() fsdiff.FS

	// Close shuts the engine down. The engine is unusable afterwards.
	Close() error
}

// Callable is the contract for host-backed globals injected via
// SetGlobal. When sandboxed code calls the global, the engine invokes
// CallTool with the positional and keyword arguments and hands the
// returned value (or raises the returned error) back to the script.
type Callable interface {
	CallTool(ctx context.Context, args []any, kwargs map[string]any) (any, error)
}

// Navigable is a Callable that also supports pure attribute-chain
// navigation: each Attr call returns a new value extended by one path
// segment, with no I/O until CallTool.
type Navigable interface {
	Callable
	Attr(name string) Navigable
}

// TypedError carries a failure kind across the engine boundary so the
// runner can raise a matching exception type inside the sandbox.
type TypedError interface {
	error
	ErrorType() string
}
