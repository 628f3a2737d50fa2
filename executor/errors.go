// Copyright 2026 The Parselbox Authors
// SPDX-License-Identifier: Apache-2.0

package executor

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/parselbox/parselbox/engine"
)

// ErrorCode is the coarse failure category reported to clients.
type ErrorCode string

const (
	// CodeTimeout marks an execution that exceeded its deadline and was
	// interrupt-signaled.
	CodeTimeout ErrorCode = "TIMEOUT"

	// CodePermissionDenied marks a capability-gated action attempted
	// while revoked, or a filesystem access the sandbox denied.
	CodePermissionDenied ErrorCode = "PERMISSION_DENIED"

	// CodePythonException marks a failure raised by the script itself,
	// including errors surfaced from host callbacks.
	CodePythonException ErrorCode = "PYTHON_EXCEPTION"

	// CodeUnknown marks anything uncategorized.
	CodeUnknown ErrorCode = "UNKNOWN"
)

// Error is a classified execution failure.
type Error struct {
	Code    ErrorCode
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Classify sorts a failure into the client-facing taxonomy.
// interrupted reports whether the controller had signaled an interrupt
// before the failure surfaced; a timeout often manifests through the
// same machinery as a script exception, so the interrupt and timeout
// checks take precedence over script-exception detection.
func Classify(err error, interrupted bool) *Error {
	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}

	if interrupted || errors.Is(err, engine.ErrInterrupted) {
		return &Error{Code: CodeTimeout, Message: err.Error()}
	}
	if errors.Is(err, fs.ErrPermission) {
		return &Error{Code: CodePermissionDenied, Message: err.Error()}
	}

	var typed engine.TypedError
	if errors.As(err, &typed) {
		if typed.ErrorType() == "PermissionError" {
			return &Error{Code: CodePermissionDenied, Message: err.Error()}
		}
		return &Error{Code: CodePythonException, Message: err.Error()}
	}

	return &Error{Code: CodeUnknown, Message: err.Error()}
}
