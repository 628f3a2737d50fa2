// Copyright 2026 The Parselbox Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"io/fs"
	"path"
	"time"
)

// subprocessFS adapts the runner's stat/readdir frames to fsdiff.FS.
type subprocessFS struct {
	conn *conn
}

func (s *subprocessFS) Stat(name string) (fs.FileInfo, error) {
	response, err := s.conn.call(context.Background(), frame{Op: opStat, Dir: name})
	if err != nil {
		return nil, err
	}
	if response.Error != "" {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: remoteFSError(response)}
	}
	return remoteInfo{
		name:    path.Base(name),
		size:    response.FileSize,
		modTime: time.UnixMilli(response.ModTimeMS),
		dir:     response.IsDir,
	}, nil
}

func (s *subprocessFS) ReadDir(name string) ([]fs.DirEntry, error) {
	response, err := s.conn.call(context.Background(), frame{Op: opReaddir, Dir: name})
	if err != nil {
		return nil, err
	}
	if response.Error != "" {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: remoteFSError(response)}
	}
	entries := make([]fs.DirEntry, len(response.Entries))
	for i, entry := range response.Entries {
		entries[i] = remoteEntry{fsys: s, parent: name, name: entry.Name, dir: entry.IsDir}
	}
	return entries, nil
}

// remoteFSError maps runner error types onto io/fs sentinel errors so
// callers can use errors.Is.
func remoteFSError(response frame) error {
	switch response.ErrorType {
	case "FileNotFoundError":
		return fs.ErrNotExist
	case "PermissionError":
		return fs.ErrPermission
	default:
		return &ScriptError{Type: response.ErrorType, Message: response.Error}
	}
}

type remoteEntry struct {
	fsys   *subprocessFS
	parent string
	name   string
	dir    bool
}

func (e remoteEntry) Name() string { return e.name }
func (e remoteEntry) IsDir() bool  { return e.dir }
func (e remoteEntry) Type() fs.FileMode {
	if e.dir {
		return fs.ModeDir
	}
	return 0
}
func (e remoteEntry) Info() (fs.FileInfo, error) {
	return e.fsys.Stat(path.Join(e.parent, e.name))
}

type remoteInfo struct {
	name    string
	size    int64
	modTime time.Time
	dir     bool
}

func (i remoteInfo) Name() string { return i.name }
func (i remoteInfo) Size() int64  { return i.size }
func (i remoteInfo) Mode() fs.FileMode {
	if i.dir {
		return fs.ModeDir
	}
	return 0
}
func (i remoteInfo) ModTime() time.Time { return i.modTime }
func (i remoteInfo) IsDir() bool        { return i.dir }
func (i remoteInfo) Sys() any           { return nil }
