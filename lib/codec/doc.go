// Copyright 2026 The Parselbox Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the CBOR wire encoding used on the engine
// subprocess protocol.
//
// Encoding uses Core Deterministic Encoding (RFC 8949 §4.2) so that
// the same logical frame always produces identical bytes. Decoding
// accepts standard CBOR and maps any-typed targets to map[string]any,
// matching what the value codec and encoding/json produce.
//
// The host-facing callback envelope deliberately does NOT use this
// package: that side of the boundary is JSON, because existing hosts
// carry envelopes as JSON strings inside MCP elicitation messages.
package codec
