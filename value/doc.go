// Copyright 2026 The Parselbox Authors
// SPDX-License-Identifier: Apache-2.0

// Package value converts between host-native values and the wire-safe
// value tree that crosses the sandbox boundary.
//
// [Serialize] is the outbound direction (sandbox → host): it projects
// an arbitrary value onto nil, bool, int64, float64, string, []any,
// map[string]any, and two marker nodes: [Circular] for ancestry
// cycles and [NotSerializable] for values with no wire form. It never
// fails; anything it cannot represent degrades to a marker instead of
// an error.
//
// [Decode] is the inbound direction (host → engine): it normalizes
// JSON- or CBOR-decoded trees into what the engine hands to scripts,
// chiefly restoring integral numbers to int64.
package value
