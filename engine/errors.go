// Copyright 2026 The Parselbox Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"errors"
	"fmt"
)

// ErrInterrupted is returned by Run when the script was unwound in
// response to the interrupt signal.
var ErrInterrupted = errors.New("engine: execution interrupted")

// ScriptError is a failure raised by the sandboxed script itself,
// including syntax errors and failures surfaced from host callbacks.
type ScriptError struct {
	// Type is the exception type name (e.g. "ValueError",
	// "SyntaxError").
	Type string

	// Message is the exception message.
	Message string

	// Traceback is the formatted traceback, when the runner provides
	// one.
	Traceback string
}

func (e *ScriptError) Error() string {
	if e.Type == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ErrorType implements TypedError.
func (e *ScriptError) ErrorType() string { return e.Type }

// IsScriptError returns the ScriptError in err's chain, if any.
func IsScriptError(err error) (*ScriptError, bool) {
	var scriptError *ScriptError
	if errors.As(err, &scriptError) {
		return scriptError, true
	}
	return nil, false
}
