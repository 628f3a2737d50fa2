// Copyright 2026 The Parselbox Authors
// SPDX-License-Identifier: Apache-2.0

// Package fsdiff detects files produced by a sandboxed execution.
//
// [Take] snapshots the modification timestamps of every regular file
// under a working directory, skipping designated mount subtrees so
// host-provided files are never reported as script output. [Diff]
// compares two snapshots and returns the added or updated paths,
// relative to the root, in deterministic walk order.
//
// Diffing is timestamp-based by design; see [Diff] for the accepted
// limitations.
package fsdiff
