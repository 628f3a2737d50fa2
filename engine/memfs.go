// Copyright 2026 The Parselbox Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"
	"time"
)

// memFS is the Memory engine's virtual filesystem: a flat path → node
// map with slash-separated absolute paths. It implements fsdiff.FS.
type memFS struct {
	mu    sync.Mutex
	nodes map[string]*memNode
}

type memNode struct {
	dir     bool
	modTime time.Time
}

func newMemFS() *memFS {
	return &memFS{nodes: map[string]*memNode{"/": {dir: true}}}
}

func (m *memFS) mkdirAll(p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p = path.Clean(p)
	for current := p; current != "/" && current != "."; current = path.Dir(current) {
		if node, ok := m.nodes[current]; ok && !node.dir {
			return &fs.PathError{Op: "mkdir", Path: current, Err: fs.ErrExist}
		}
		m.nodes[current] = &memNode{dir: true}
	}
	return nil
}

func (m *memFS) writeFile(p string, modTime time.Time) error {
	p = path.Clean(p)
	if err := m.mkdirAll(path.Dir(p)); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if node, ok := m.nodes[p]; ok && node.dir {
		return &fs.PathError{Op: "write", Path: p, Err: fs.ErrExist}
	}
	m.nodes[p] = &memNode{modTime: modTime}
	return nil
}

func (m *memFS) ReadDir(name string) ([]fs.DirEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	name = path.Clean(name)
	node, ok := m.nodes[name]
	if !ok {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrNotExist}
	}
	if !node.dir {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrInvalid}
	}

	prefix := name
	if prefix != "/" {
		prefix += "/"
	}
	var entries []fs.DirEntry
	for nodePath, child := range m.nodes {
		if nodePath == name || !strings.HasPrefix(nodePath, prefix) {
			continue
		}
		if strings.Contains(strings.TrimPrefix(nodePath, prefix), "/") {
			continue
		}
		entries = append(entries, memEntry{name: path.Base(nodePath), node: child})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	return entries, nil
}

func (m *memFS) Stat(name string) (fs.FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	name = path.Clean(name)
	node, ok := m.nodes[name]
	if !ok {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrNotExist}
	}
	return memInfo{name: path.Base(name), node: node}, nil
}

type memEntry struct {
	name string
	node *memNode
}

func (e memEntry) Name() string { return e.name }
func (e memEntry) IsDir() bool  { return e.node.dir }
func (e memEntry) Type() fs.FileMode {
	if e.node.dir {
		return fs.ModeDir
	}
	return 0
}
func (e memEntry) Info() (fs.FileInfo, error) {
	return memInfo{name: e.name, node: e.node}, nil
}

type memInfo struct {
	name string
	node *memNode
}

func (i memInfo) Name() string { return i.name }
func (i memInfo) Size() int64  { return 0 }
func (i memInfo) Mode() fs.FileMode {
	if i.node.dir {
		return fs.ModeDir
	}
	return 0
}
func (i memInfo) ModTime() time.Time { return i.node.modTime }
func (i memInfo) IsDir() bool        { return i.node.dir }
func (i memInfo) Sys() any           { return nil }
