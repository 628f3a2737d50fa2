// Copyright 2026 The Parselbox Authors
// SPDX-License-Identifier: Apache-2.0

// Package sandbox orchestrates one sandboxed scripting session.
//
// A [Controller] owns one engine instance, one working directory, and
// one capability ledger, and exposes the two operations external
// callers see: [Controller.Configure] mutates the session (globals,
// mounts, tool registration, package loading, permission ratcheting)
// and [Controller.Execute] runs a script and reports its value,
// produced files, and classified failure. Both always return a
// structured result; nothing below this layer escapes as a raw error.
//
// Permissions only ratchet down. A configure call can revoke the
// network or runtime-package capability, and no later call can restore
// it; the revocation applies even when the rest of the configure call
// failed.
package sandbox
