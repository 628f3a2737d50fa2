// Copyright 2026 The Parselbox Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/parselbox/parselbox/engine"
	"github.com/parselbox/parselbox/value"
)

// Envelope is the wire shape of a host tool invocation. It is encoded
// as JSON because the host side of the transport (MCP elicitation)
// speaks JSON strings.
type Envelope struct {
	// Type distinguishes named callbacks from proxy callbacks.
	Type string `json:"type"`

	// Name is the tool name the script invoked (for proxies, the root
	// global's name).
	Name string `json:"name"`

	// Path is the attribute chain walked below the root global before
	// the call. Empty for named callbacks.
	Path []string `json:"path"`

	// Args are the positional arguments.
	Args []any `json:"args"`

	// Kwargs are the keyword arguments.
	Kwargs map[string]any `json:"kwargs"`
}

const (
	// TypeCallback marks an invocation of a named tool.
	TypeCallback = "callback"

	// TypeProxyCallback marks an invocation routed through an
	// attribute-chain proxy.
	TypeProxyCallback = "proxy_callback"
)

// Transport delivers an encoded envelope to the host and returns the
// host's encoded response. Implementations must be safe for use from
// multiple goroutines.
type Transport interface {
	Deliver(ctx context.Context, request []byte) ([]byte, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, request []byte) ([]byte, error)

// Deliver implements Transport.
func (f TransportFunc) Deliver(ctx context.Context, request []byte) ([]byte, error) {
	return f(ctx, request)
}

// Bridge routes tool invocations from sandboxed code to host handlers.
// The sandbox half of the route is the engine's callback machinery;
// the host half is the Transport.
type Bridge struct {
	transport Transport
	logger    *slog.Logger
}

// New returns a Bridge delivering over transport. If logger is nil,
// slog.Default() is used.
func New(transport Transport, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{transport: transport, logger: logger}
}

// Callback returns the injectable global for a named host tool. Every
// call of the global inside the sandbox produces one envelope.
func (b *Bridge) Callback(name string) engine.Callable {
	return callback{bridge: b, name: name}
}

// Proxy returns the injectable global for an attribute-chain proxy.
// Attribute access inside the sandbox accumulates path segments with
// no host round trip; only the eventual call produces an envelope.
func (b *Bridge) Proxy(name string) engine.Navigable {
	return proxy{bridge: b, name: name}
}

type callback struct {
	bridge *Bridge
	name   string
}

// CallTool implements engine.Callable.
func (c callback) CallTool(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
	return c.bridge.deliver(ctx, Envelope{
		Type:   TypeCallback,
		Name:   c.name,
		Args:   args,
		Kwargs: kwargs,
	})
}

type proxy struct {
	bridge *Bridge
	name   string
	path   []string
}

// Attr implements engine.Navigable. The receiver is unchanged; the
// returned proxy carries the extended path.
func (p proxy) Attr(name string) engine.Navigable {
	extended := make([]string, len(p.path)+1)
	copy(extended, p.path)
	extended[len(p.path)] = name
	return proxy{bridge: p.bridge, name: p.name, path: extended}
}

// CallTool implements engine.Callable.
func (p proxy) CallTool(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
	return p.bridge.deliver(ctx, Envelope{
		Type:   TypeProxyCallback,
		Name:   p.name,
		Path:   p.path,
		Args:   args,
		Kwargs: kwargs,
	})
}

func (b *Bridge) deliver(ctx context.Context, envelope Envelope) (any, error) {
	if envelope.Path == nil {
		envelope.Path = []string{}
	}
	if envelope.Args == nil {
		envelope.Args = []any{}
	}
	if envelope.Kwargs == nil {
		envelope.Kwargs = map[string]any{}
	}

	request, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("bridge: encoding %s request for %q: %w", envelope.Type, envelope.Name, err)
	}

	b.logger.Debug("delivering host callback",
		"type", envelope.Type, "name", envelope.Name, "path", envelope.Path)
	response, err := b.transport.Deliver(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("bridge: delivering %s for %q: %w", envelope.Type, envelope.Name, err)
	}

	var decoded any
	if len(response) > 0 {
		if err := json.Unmarshal(response, &decoded); err != nil {
			return nil, fmt.Errorf("bridge: decoding response for %q: %w", envelope.Name, err)
		}
	}
	if failure, ok := errorOutcome(envelope.Name, decoded); ok {
		return nil, failure
	}
	return value.Decode(decoded), nil
}

// errorOutcome recognizes the host's error marker shape. A handler
// failure is reported as a successful response whose body carries
// "__error__" and "__error_type__" keys, so both outcomes ride the
// same transport path.
func errorOutcome(name string, decoded any) (*CallbackError, bool) {
	body, ok := decoded.(map[string]any)
	if !ok {
		return nil, false
	}
	message, ok := body["__error__"].(string)
	if !ok {
		return nil, false
	}
	errorType, _ := body["__error_type__"].(string)
	return &CallbackError{Name: name, Type: errorType, Message: message}, true
}
