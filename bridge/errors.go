// Copyright 2026 The Parselbox Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import "fmt"

// CallbackError is a failure reported by a host tool handler.
type CallbackError struct {
	// Name is the tool whose handler failed.
	Name string

	// Type is the handler's exception type name as reported by the
	// host, e.g. "ValueError".
	Type string

	// Message is the handler's error message.
	Message string
}

func (e *CallbackError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("host callback %q failed: %s", e.Name, e.Message)
	}
	return fmt.Sprintf("host callback %q failed: %s: %s", e.Name, e.Type, e.Message)
}

// ErrorType implements engine.TypedError. Only exception types the
// interpreter is guaranteed to know are passed through; anything else
// degrades to the base Exception, with the original type preserved in
// the message.
func (e *CallbackError) ErrorType() string {
	if _, ok := raisableTypes[e.Type]; ok {
		return e.Type
	}
	return "Exception"
}

// raisableTypes are Python builtin exception types the runner can
// re-raise by name.
var raisableTypes = map[string]struct{}{
	"Exception":           {},
	"ValueError":          {},
	"TypeError":           {},
	"KeyError":            {},
	"IndexError":          {},
	"AttributeError":      {},
	"NameError":           {},
	"RuntimeError":        {},
	"NotImplementedError": {},
	"OSError":             {},
	"IOError":             {},
	"FileNotFoundError":   {},
	"FileExistsError":     {},
	"PermissionError":     {},
	"TimeoutError":        {},
	"ConnectionError":     {},
	"ZeroDivisionError":   {},
	"OverflowError":       {},
	"ArithmeticError":     {},
	"LookupError":         {},
	"StopIteration":       {},
	"InterruptedError":    {},
}
