// Copyright 2026 The Parselbox Authors
// SPDX-License-Identifier: Apache-2.0

// Package bridge routes tool calls out of the sandbox to host
// handlers.
//
// A [Bridge] turns host tools into injectable globals: [Bridge.Callback]
// for named tools, where the global itself is called, and
// [Bridge.Proxy] for attribute-chain proxies, where the script walks
// attributes (server.tools.search(...)) and only the final call leaves
// the sandbox, carrying the accumulated path. Both encode the call as
// a JSON [Envelope] and hand it to the configured [Transport]; the
// caller blocks for the duration of the host round trip, exactly like
// a synchronous function call inside the script.
//
// The host reports handler failures in-band: a response body carrying
// "__error__" and "__error_type__" keys becomes a [CallbackError],
// which the engine re-raises inside the sandbox under the matching
// exception type.
package bridge
