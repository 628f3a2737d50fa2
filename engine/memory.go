// Copyright 2026 The Parselbox Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/parselbox/parselbox/fsdiff"
)

// Memory is an in-process Engine for tests and local development. It
// keeps globals, mounts, and a small virtual filesystem in memory, and
// delegates script semantics to a caller-provided RunFunc: the test
// scripts the behavior, the controller under test drives the engine
// exactly as it would drive a real one.
type Memory struct {
	// RunFunc supplies the behavior of Run. It receives the Memory
	// engine itself so scripted behavior can read globals, write
	// files, and poll Interrupted at its safepoints. When nil, Run
	// returns (nil, nil).
	RunFunc func(ctx context.Context, m *Memory, code string) (any, error)

	// LoadFunc intercepts package loads from both LoadPackages and
	// ResolveImportsAndLoad. When nil, loads succeed and are recorded.
	LoadFunc func(packages []string) error

	mu      sync.Mutex
	globals map[string]any
	mounts  map[string]string
	loaded  []string
	signal  *Signal
	fs      *memFS
}

// NewMemory returns an empty in-memory engine whose filesystem
// contains only the root directory.
func NewMemory() *Memory {
	return &Memory{
		globals: make(map[string]any),
		mounts:  make(map[string]string),
		fs:      newMemFS(),
	}
}

// Run executes the scripted RunFunc.
func (m *Memory) Run(ctx context.Context, code, filename string, mode RunMode) (any, error) {
	if m.RunFunc == nil {
		return nil, nil
	}
	return m.RunFunc(ctx, m, code)
}

// SetInterrupt installs or detaches the interrupt signal.
func (m *Memory) SetInterrupt(signal *Signal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signal = signal
}

// Signal returns the currently installed interrupt signal, or nil.
func (m *Memory) Signal() *Signal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.signal
}

// Interrupted is the safepoint check scripted RunFuncs poll.
func (m *Memory) Interrupted() bool {
	signal := m.Signal()
	return signal != nil && signal.Interrupted()
}

// SetGlobal stores a value in the scripted global namespace.
func (m *Memory) SetGlobal(name string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.globals[name] = value
	return nil
}

// Global returns an injected global by name.
func (m *Memory) Global(name string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.globals[name]
	return value, ok
}

// Mkdir creates a directory and any missing parents.
func (m *Memory) Mkdir(path string) error {
	return m.fs.mkdirAll(path)
}

// Mount records a host mount and materializes its mount point.
func (m *Memory) Mount(hostPath, mountPoint string, readOnly bool) error {
	if err := m.fs.mkdirAll(mountPoint); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mounts[mountPoint] = hostPath
	return nil
}

// Mounts returns the recorded mount points and their host paths.
func (m *Memory) Mounts() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.mounts))
	for mountPoint, hostPath := range m.mounts {
		out[mountPoint] = hostPath
	}
	return out
}

// LoadPackages records (or delegates) a package installation.
func (m *Memory) LoadPackages(ctx context.Context, packages []string) error {
	if m.LoadFunc != nil {
		if err := m.LoadFunc(packages); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loaded = append(m.loaded, packages...)
	return nil
}

// ResolveImportsAndLoad extracts top-level imports from code with a
// naive scan and loads them.
func (m *Memory) ResolveImportsAndLoad(ctx context.Context, code string) error {
	var packages []string
	for _, line := range strings.Split(code, "\n") {
		line = strings.TrimSpace(line)
		if name, ok := strings.CutPrefix(line, "import "); ok {
			packages = append(packages, strings.Fields(name)[0])
		}
	}
	if len(packages) == 0 {
		return nil
	}
	return m.LoadPackages(ctx, packages)
}

// Loaded returns every package name passed to LoadPackages, in order.
func (m *Memory) Loaded() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.loaded...)
}

// FS exposes the in-memory filesystem.
func (m *Memory) FS() fsdiff.FS { return m.fs }

// WriteFile creates or updates a file with the given modification
// time, creating parent directories as needed. Scripted RunFuncs use
// this to simulate produced output.
func (m *Memory) WriteFile(path string, modTime time.Time) error {
	return m.fs.writeFile(path, modTime)
}

// Close is a no-op for the in-memory engine.
func (m *Memory) Close() error { return nil }

var _ Engine = (*Memory)(nil)
