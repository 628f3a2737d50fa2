// Copyright 2026 The Parselbox Authors
// SPDX-License-Identifier: Apache-2.0

package value

import "math"

// maxExactFloat is the largest integer a float64 represents exactly
// (2^53). Integral floats beyond it stay floats rather than silently
// gaining precision they never had.
const maxExactFloat = 1 << 53

// Decode is the engine-facing direction of the codec: it converts a
// wire value, as produced by encoding/json or lib/codec decoding, into
// the representation handed to the engine (globals, callback results).
//
// The one real transformation is numeric: encoding/json decodes every
// number to float64, but a script observing an injected global or a
// callback result expects integers to stay integers. Integral floats
// within float64's exact range become int64; containers are rebuilt
// recursively; everything else passes through.
func Decode(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for key, element := range t {
			out[key] = Decode(element)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, element := range t {
			out[i] = Decode(element)
		}
		return out
	case float64:
		if t == math.Trunc(t) && math.Abs(t) <= maxExactFloat {
			return int64(t)
		}
		return t
	case uint64:
		// lib/codec decodes small CBOR integers as uint64.
		if t <= math.MaxInt64 {
			return int64(t)
		}
		return t
	default:
		return v
	}
}
