// Copyright 2026 The Parselbox Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"log/slog"
	"reflect"
	"testing"
	"time"

	"github.com/parselbox/parselbox/fsdiff"
)

func TestMemoryGlobalsAndMounts(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	if err := m.SetGlobal("answer", int64(42)); err != nil {
		t.Fatalf("SetGlobal: %v", err)
	}
	if value, ok := m.Global("answer"); !ok || value != int64(42) {
		t.Errorf("Global(answer) = %v, %v", value, ok)
	}

	if err := m.Mount("/host/data", "/mnt/data", true); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	if got := m.Mounts()["/mnt/data"]; got != "/host/data" {
		t.Errorf("mount host path = %q", got)
	}
	if _, err := m.FS().Stat("/mnt/data"); err != nil {
		t.Errorf("mount point not materialized: %v", err)
	}
}

func TestMemoryRunDelegatesToRunFunc(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	m.RunFunc = func(ctx context.Context, m *Memory, code string) (any, error) {
		return code + "!", nil
	}
	value, err := m.Run(context.Background(), "hello", "script.py", ReturnLastExpression)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if value != "hello!" {
		t.Errorf("Run value = %v", value)
	}
}

func TestMemoryResolveImports(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	code := "import numpy\nimport pytz  # tz data\nx = 1\n"
	if err := m.ResolveImportsAndLoad(context.Background(), code); err != nil {
		t.Fatalf("ResolveImportsAndLoad: %v", err)
	}
	if got := m.Loaded(); !reflect.DeepEqual(got, []string{"numpy", "pytz"}) {
		t.Errorf("Loaded = %v", got)
	}
}

func TestMemoryFilesystemSnapshots(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	if err := m.Mkdir("/workspace"); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	logger := slog.New(slog.DiscardHandler)

	before := fsdiff.Take(m.FS(), "/workspace", nil, logger)
	if err := m.WriteFile("/workspace/out.csv", time.Unix(100, 0)); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	after := fsdiff.Take(m.FS(), "/workspace", nil, logger)

	if got := fsdiff.Diff(before, after); !reflect.DeepEqual(got, []string{"out.csv"}) {
		t.Errorf("Diff = %v, want [out.csv]", got)
	}
}

func TestMemoryInterruptSafepoint(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	if m.Interrupted() {
		t.Error("Interrupted with no signal installed")
	}
	signal := NewSignal()
	m.SetInterrupt(signal)
	if m.Interrupted() {
		t.Error("Interrupted before signal fired")
	}
	signal.Interrupt()
	if !m.Interrupted() {
		t.Error("safepoint did not observe the interrupt")
	}
	m.SetInterrupt(nil)
	if m.Interrupted() {
		t.Error("Interrupted after detach")
	}
}
