// Copyright 2026 The Parselbox Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"context"
	"encoding/json"
	"log/slog"
	"reflect"
	"testing"
	"time"

	"github.com/parselbox/parselbox/bridge"
	"github.com/parselbox/parselbox/capability"
	"github.com/parselbox/parselbox/engine"
	"github.com/parselbox/parselbox/lib/clock"
)

// addTransport implements the host side of an "add" tool plus a
// "search" proxy that echoes the path it was called through.
func addTransport(ctx context.Context, request []byte) ([]byte, error) {
	var envelope bridge.Envelope
	if err := json.Unmarshal(request, &envelope); err != nil {
		return nil, err
	}
	switch envelope.Type {
	case bridge.TypeCallback:
		sum := 0.0
		for _, arg := range envelope.Args {
			sum += arg.(float64)
		}
		return json.Marshal(sum)
	case bridge.TypeProxyCallback:
		return json.Marshal(map[string]any{"path": envelope.Path})
	}
	return json.Marshal(nil)
}

func newTestController(t *testing.T, config Config) *Controller {
	t.Helper()
	if config.Engine == nil {
		config.Engine = engine.NewMemory()
	}
	if config.Transport == nil {
		config.Transport = bridge.TransportFunc(addTransport)
	}
	if config.Clock == nil {
		config.Clock = clock.Fake(time.Unix(0, 0))
	}
	config.Logger = slog.New(slog.DiscardHandler)
	controller, err := New(config)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return controller
}

func TestNewValidatesCollaborators(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{Transport: bridge.TransportFunc(addTransport)}); err == nil {
		t.Error("New accepted a nil engine")
	}
	if _, err := New(Config{Engine: engine.NewMemory()}); err == nil {
		t.Error("New accepted a nil transport")
	}
}

func TestConfigureAppliesGlobalsAndMounts(t *testing.T) {
	t.Parallel()

	memory := engine.NewMemory()
	controller := newTestController(t, Config{Engine: memory})

	result := controller.Configure(context.Background(), ConfigureSpec{
		Globals:   map[string]any{"answer": float64(42), "name": "ada"},
		OutputDir: "/host/output",
		Mounts:    map[string]string{"data": "/host/data"},
	})
	if !result.IsSuccess {
		t.Fatalf("Configure failed: %+v", result)
	}

	if got, _ := memory.Global("answer"); got != int64(42) {
		t.Errorf("answer global = %v (%T), want decoded int64", got, got)
	}
	if got, _ := memory.Global("name"); got != "ada" {
		t.Errorf("name global = %v", got)
	}
	mounts := memory.Mounts()
	if mounts["/workspace"] != "/host/output" {
		t.Errorf("output mount = %q", mounts["/workspace"])
	}
	if mounts["/mnt/data"] != "/host/data" {
		t.Errorf("data mount = %q", mounts["/mnt/data"])
	}
}

func TestConfigureRatchetPersistsAcrossCalls(t *testing.T) {
	t.Parallel()

	controller := newTestController(t, Config{})

	first := controller.Configure(context.Background(), ConfigureSpec{DisableNet: true})
	if !first.IsSuccess {
		t.Fatalf("Configure failed: %+v", first)
	}
	if controller.Ledger().Granted(capability.Network) {
		t.Fatal("network still granted after disable_net")
	}

	second := controller.Configure(context.Background(), ConfigureSpec{
		Packages: []string{"numpy"},
	})
	if second.IsSuccess {
		t.Fatal("package load succeeded without network")
	}
	if second.ErrorCode != "PERMISSION_DENIED" {
		t.Errorf("ErrorCode = %q, want PERMISSION_DENIED", second.ErrorCode)
	}
}

func TestConfigureRatchetAppliesOnFailure(t *testing.T) {
	t.Parallel()

	controller := newTestController(t, Config{})
	controller.Ledger().Revoke(capability.Network)

	// The package step fails, but the ratchet in the same call still
	// lands.
	result := controller.Configure(context.Background(), ConfigureSpec{
		Packages:               []string{"numpy"},
		DisableRuntimePackages: true,
	})
	if result.IsSuccess {
		t.Fatal("Configure succeeded despite the failed package step")
	}
	if controller.Ledger().Granted(capability.RuntimePackages) {
		t.Error("runtime packages still granted after a failed configure that disabled them")
	}
}

func TestConfigurePackagesLoad(t *testing.T) {
	t.Parallel()

	memory := engine.NewMemory()
	controller := newTestController(t, Config{Engine: memory})

	result := controller.Configure(context.Background(), ConfigureSpec{
		Packages: []string{"numpy", "pandas"},
	})
	if !result.IsSuccess {
		t.Fatalf("Configure failed: %+v", result)
	}
	if !reflect.DeepEqual(memory.Loaded(), []string{"numpy", "pandas"}) {
		t.Errorf("Loaded = %v", memory.Loaded())
	}
}

func TestExecuteToolCallEndToEnd(t *testing.T) {
	t.Parallel()

	memory := engine.NewMemory()
	memory.RunFunc = func(ctx context.Context, m *engine.Memory, code string) (any, error) {
		global, ok := m.Global("add")
		if !ok {
			t.Error("add global not injected")
			return nil, nil
		}
		return global.(engine.Callable).CallTool(ctx, []any{2, 3}, nil)
	}
	controller := newTestController(t, Config{Engine: memory})

	configured := controller.Configure(context.Background(), ConfigureSpec{Tools: []string{"add"}})
	if !configured.IsSuccess {
		t.Fatalf("Configure failed: %+v", configured)
	}

	result := controller.Execute(context.Background(), ExecuteSpec{Code: "add(2, 3)"})
	if !result.IsSuccess {
		t.Fatalf("Execute failed: %+v", result)
	}
	if result.Result != int64(5) {
		t.Errorf("Result = %v (%T), want int64 5", result.Result, result.Result)
	}
}

func TestExecuteProxyCallEndToEnd(t *testing.T) {
	t.Parallel()

	memory := engine.NewMemory()
	memory.RunFunc = func(ctx context.Context, m *engine.Memory, code string) (any, error) {
		global, _ := m.Global("server")
		proxy := global.(engine.Navigable)
		return proxy.Attr("tools").Attr("search").CallTool(ctx, nil, nil)
	}
	controller := newTestController(t, Config{Engine: memory})

	configured := controller.Configure(context.Background(), ConfigureSpec{ProxyTools: []string{"server"}})
	if !configured.IsSuccess {
		t.Fatalf("Configure failed: %+v", configured)
	}

	result := controller.Execute(context.Background(), ExecuteSpec{Code: "server.tools.search()"})
	if !result.IsSuccess {
		t.Fatalf("Execute failed: %+v", result)
	}
	body := result.Result.(map[string]any)
	if !reflect.DeepEqual(body["path"], []any{"tools", "search"}) {
		t.Errorf("echoed path = %v", body["path"])
	}
}

func TestExecuteCallbackErrorBecomesPythonException(t *testing.T) {
	t.Parallel()

	failing := bridge.TransportFunc(func(ctx context.Context, request []byte) ([]byte, error) {
		return []byte(`{"__error__": "bad args", "__error_type__": "ValueError"}`), nil
	})
	memory := engine.NewMemory()
	memory.RunFunc = func(ctx context.Context, m *engine.Memory, code string) (any, error) {
		global, _ := m.Global("lookup")
		return global.(engine.Callable).CallTool(ctx, nil, nil)
	}
	controller := newTestController(t, Config{Engine: memory, Transport: failing})

	configured := controller.Configure(context.Background(), ConfigureSpec{Tools: []string{"lookup"}})
	if !configured.IsSuccess {
		t.Fatalf("Configure failed: %+v", configured)
	}

	result := controller.Execute(context.Background(), ExecuteSpec{Code: "lookup()"})
	if result.IsSuccess {
		t.Fatal("Execute succeeded despite the failing callback")
	}
	if result.ErrorCode != "PYTHON_EXCEPTION" {
		t.Errorf("ErrorCode = %q, want PYTHON_EXCEPTION", result.ErrorCode)
	}
}

func TestExecuteAutoLoadDeniedAfterRatchet(t *testing.T) {
	t.Parallel()

	memory := engine.NewMemory()
	controller := newTestController(t, Config{Engine: memory})

	configured := controller.Configure(context.Background(), ConfigureSpec{DisableRuntimePackages: true})
	if !configured.IsSuccess {
		t.Fatalf("Configure failed: %+v", configured)
	}

	result := controller.Execute(context.Background(), ExecuteSpec{
		Code:             "import numpy",
		AutoLoadPackages: true,
	})
	if result.IsSuccess {
		t.Fatal("Execute succeeded despite the revoked capability")
	}
	if result.ErrorCode != "PERMISSION_DENIED" {
		t.Errorf("ErrorCode = %q, want PERMISSION_DENIED", result.ErrorCode)
	}
	if len(memory.Loaded()) != 0 {
		t.Errorf("packages were installed: %v", memory.Loaded())
	}
}

func TestExecuteReportsProducedFilesSkippingMounts(t *testing.T) {
	t.Parallel()

	memory := engine.NewMemory()
	memory.RunFunc = func(ctx context.Context, m *engine.Memory, code string) (any, error) {
		if err := m.WriteFile("/workspace/result.txt", time.Unix(200, 0)); err != nil {
			return nil, err
		}
		// A file appearing inside a mounted subtree is host data, not
		// script output.
		return nil, m.WriteFile("/workspace/ref/cached.bin", time.Unix(200, 0))
	}
	controller := newTestController(t, Config{Engine: memory, MountRoot: "/workspace"})

	configured := controller.Configure(context.Background(), ConfigureSpec{
		Mounts: map[string]string{"ref": "/host/ref"},
	})
	if !configured.IsSuccess {
		t.Fatalf("Configure failed: %+v", configured)
	}

	result := controller.Execute(context.Background(), ExecuteSpec{Code: "produce()"})
	if !result.IsSuccess {
		t.Fatalf("Execute failed: %+v", result)
	}
	if !reflect.DeepEqual(result.Files, []string{"result.txt"}) {
		t.Errorf("Files = %v, want [result.txt]", result.Files)
	}
}
