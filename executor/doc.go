// Copyright 2026 The Parselbox Authors
// SPDX-License-Identifier: Apache-2.0

// Package executor drives single script executions against an engine.
//
// [Controller.Execute] wraps one engine Run with the machinery the
// engine itself does not provide: a wall-clock timeout raced against
// completion, a fresh cooperative interrupt signal per run, capability
// gates on automatic package loading, working-directory snapshots to
// detect produced files, and classification of every failure into the
// client-facing [ErrorCode] taxonomy. It always returns a structured
// [Outcome]; errors below this layer do not escape.
package executor
