// Copyright 2026 The Parselbox Authors
// SPDX-License-Identifier: Apache-2.0

// Package engine defines the script interpreter collaborator and its
// contracts with the controller.
//
// [Engine] is the interface the controller drives: execute code,
// inject globals, mount host paths, load packages, expose a virtual
// filesystem, and accept a cooperative interrupt. [Signal] is that
// interrupt: one word of shared state written by the controller and
// read by the engine at its safepoints, plus a done channel for
// engines that forward the interrupt out-of-process. [Callable] and
// [Navigable] are the contracts host-backed globals satisfy; the
// bridge package provides the implementations.
//
// Two engines ship with the package. [Subprocess] drives an external
// interpreter runner over a CBOR frame protocol on stdin/stdout;
// requests and responses are matched by id, while callback frames
// (script → host tool calls) and log frames (script output) interleave
// during a run. [Memory] is an in-process engine whose behavior tests
// script through a RunFunc; it exists for the same reason the real
// implementations elsewhere keep an in-memory sibling: deterministic
// tests with no external process.
package engine
