// Copyright 2026 The Parselbox Authors
// SPDX-License-Identifier: Apache-2.0

package fsdiff

import (
	"io/fs"
	"log/slog"
	"path"
	"strings"
	"time"
)

// FS is the filesystem view the tracker walks. The method signatures
// match io/fs, so both the engine's virtual filesystem adapters and
// os.DirFS-style implementations satisfy it. Paths are slash-separated
// and absolute within the engine's namespace.
type FS interface {
	ReadDir(name string) ([]fs.DirEntry, error)
	Stat(name string) (fs.FileInfo, error)
}

// Snapshot records the modification timestamp of every regular file
// under one root at a point in time. Paths are stored in walk order
// (ReadDir's sorted order), which makes Diff output deterministic.
type Snapshot struct {
	root     string
	paths    []string
	modTimes map[string]time.Time
}

// Len returns the number of files in the snapshot.
func (s *Snapshot) Len() int { return len(s.paths) }

// ModTime returns the recorded timestamp for an absolute path.
func (s *Snapshot) ModTime(p string) (time.Time, bool) {
	t, ok := s.modTimes[p]
	return t, ok
}

// Take walks the tree under root and records each regular file's
// modification time. Directory entries themselves are not recorded.
// Subtrees listed in skip (mount points holding host files that this
// run did not produce) are not descended into. A file that fails to
// stat is logged and omitted; an unreadable directory is logged and
// its subtree omitted. Neither is fatal; a partial snapshot is more
// useful than no execution result.
func Take(fsys FS, root string, skip []string, logger *slog.Logger) *Snapshot {
	if logger == nil {
		logger = slog.Default()
	}
	snapshot := &Snapshot{
		root:     path.Clean(root),
		modTimes: make(map[string]time.Time),
	}
	walk(fsys, snapshot.root, skip, logger, snapshot)
	return snapshot
}

func walk(fsys FS, dir string, skip []string, logger *slog.Logger, snapshot *Snapshot) {
	entries, err := fsys.ReadDir(dir)
	if err != nil {
		logger.Warn("snapshot: unreadable directory skipped", "path", dir, "error", err)
		return
	}
	for _, entry := range entries {
		entryPath := path.Join(dir, entry.Name())
		if entry.IsDir() {
			if isSkipped(entryPath, skip) {
				continue
			}
			walk(fsys, entryPath, skip, logger, snapshot)
			continue
		}
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := fsys.Stat(entryPath)
		if err != nil {
			logger.Warn("snapshot: stat failed, file omitted", "path", entryPath, "error", err)
			continue
		}
		snapshot.paths = append(snapshot.paths, entryPath)
		snapshot.modTimes[entryPath] = info.ModTime()
	}
}

func isSkipped(p string, skip []string) bool {
	for _, s := range skip {
		if path.Clean(s) == p {
			return true
		}
	}
	return false
}

// Diff reports the files present in after that are either absent from
// before or carry a strictly newer modification timestamp. Paths are
// relative to after's root, in after's walk order. Deletions are not
// reported.
//
// Timestamp comparison is an accepted approximation: two writes within
// the same timer tick are indistinguishable, and clock skew on mounted
// filesystems can hide or invent changes. Callers rely on this exact
// behavior; do not replace it with content hashing without revisiting
// them.
func Diff(before, after *Snapshot) []string {
	changed := make([]string, 0)
	prefix := after.root
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	for _, p := range after.paths {
		previous, existed := before.modTimes[p]
		if existed && !after.modTimes[p].After(previous) {
			continue
		}
		changed = append(changed, strings.TrimPrefix(p, prefix))
	}
	return changed
}
