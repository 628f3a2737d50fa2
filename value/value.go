// Copyright 2026 The Parselbox Authors
// SPDX-License-Identifier: Apache-2.0

package value

import (
	"fmt"
	"math"
	"reflect"
	"time"
)

// Circular marks a node that is its own ancestor in the source value.
// The wire shape is {"type": "circular_reference", "repr": ...},
// matching what existing hosts expect.
type Circular struct {
	Type string `json:"type" cbor:"type"`
	Repr string `json:"repr" cbor:"repr"`
}

// NotSerializable marks a node that has no wire representation
// (channels, functions, arbitrary structs). The wire shape is
// {"type": "not_serializable", "repr": ...}.
type NotSerializable struct {
	Type string `json:"type" cbor:"type"`
	Repr string `json:"repr" cbor:"repr"`
}

// NewCircular returns a Circular marker with the given debug repr.
func NewCircular(repr string) Circular {
	return Circular{Type: "circular_reference", Repr: repr}
}

// NewNotSerializable returns a NotSerializable marker with the given
// debug repr.
func NewNotSerializable(repr string) NotSerializable {
	return NotSerializable{Type: "not_serializable", Repr: repr}
}

// Serialize projects an arbitrary host value onto the wire-safe value
// tree: nil, bool, int64, float64, string, []any, map[string]any, and
// the Circular / NotSerializable markers. It never fails and never
// loops; this is the last line of defense before a result crosses the
// sandbox boundary.
//
// Cycle detection is by ancestry, not global identity: a container is
// flagged Circular only when it appears on its own path from the root.
// Shared substructure (the same map referenced from two siblings)
// serializes normally in both places.
//
// time.Time values become RFC 3339 strings. Map keys are coerced to
// strings. Anything without a wire representation becomes a
// NotSerializable marker carrying a debug repr.
func Serialize(v any) any {
	return serialize(reflect.ValueOf(v), nil)
}

var timeType = reflect.TypeOf(time.Time{})

// serialize walks v depth-first. ancestors holds the pointer
// identities of the containers on the current path only; it grows on
// the way down and is never shared across sibling branches, which is
// what makes shared (acyclic) substructure legal.
func serialize(v reflect.Value, ancestors []uintptr) any {
	if !v.IsValid() {
		return nil
	}

	switch v.Kind() {
	case reflect.Bool:
		return v.Bool()

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int()

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := v.Uint()
		if u > math.MaxInt64 {
			return float64(u)
		}
		return int64(u)

	case reflect.Float32, reflect.Float64:
		return v.Float()

	case reflect.String:
		return v.String()

	case reflect.Interface:
		if v.IsNil() {
			return nil
		}
		return serialize(v.Elem(), ancestors)

	case reflect.Pointer:
		if v.IsNil() {
			return nil
		}
		if onPath(ancestors, v.Pointer()) {
			return NewCircular(repr(v))
		}
		return serialize(v.Elem(), append(ancestors, v.Pointer()))

	case reflect.Slice:
		if v.IsNil() {
			return []any{}
		}
		if onPath(ancestors, v.Pointer()) {
			return NewCircular(repr(v))
		}
		return serializeSequence(v, append(ancestors, v.Pointer()))

	case reflect.Array:
		return serializeSequence(v, ancestors)

	case reflect.Map:
		if v.IsNil() {
			return map[string]any{}
		}
		if onPath(ancestors, v.Pointer()) {
			return NewCircular(repr(v))
		}
		return serializeMapping(v, append(ancestors, v.Pointer()))

	case reflect.Struct:
		if v.Type() == timeType {
			return v.Interface().(time.Time).Format(time.RFC3339Nano)
		}
		return NewNotSerializable(repr(v))

	default:
		// Chan, Func, Complex64/128, Uintptr, UnsafePointer.
		return NewNotSerializable(repr(v))
	}
}

func serializeSequence(v reflect.Value, ancestors []uintptr) []any {
	out := make([]any, v.Len())
	for i := 0; i < v.Len(); i++ {
		out[i] = serialize(v.Index(i), ancestors)
	}
	return out
}

func serializeMapping(v reflect.Value, ancestors []uintptr) map[string]any {
	out := make(map[string]any, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		out[coerceKey(iter.Key())] = serialize(iter.Value(), ancestors)
	}
	return out
}

// coerceKey converts a map key to its string form. Keys are comparable
// by Go's map rules, so they cannot be cyclic containers and fmt is
// safe here.
func coerceKey(key reflect.Value) string {
	if key.Kind() == reflect.Interface {
		key = key.Elem()
	}
	if key.Kind() == reflect.String {
		return key.String()
	}
	return fmt.Sprintf("%v", key.Interface())
}

// repr builds the debug string for marker nodes. It deliberately
// formats only the type: fmt on the value itself would recurse
// through exactly the cyclic graphs this code exists to contain.
func repr(v reflect.Value) string {
	return fmt.Sprintf("<%s value>", v.Type())
}

func onPath(ancestors []uintptr, address uintptr) bool {
	for _, ancestor := range ancestors {
		if ancestor == address {
			return true
		}
	}
	return false
}
