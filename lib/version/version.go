// Copyright 2026 The Parselbox Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports the parselbox build version.
package version

// Version is the semantic version of this build. Overridden at link
// time via -ldflags "-X github.com/parselbox/parselbox/lib/version.Version=...".
var Version = "0.1.0-dev"

// Info returns the version string for --version output.
func Info() string {
	return Version
}
