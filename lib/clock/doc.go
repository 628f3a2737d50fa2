// Copyright 2026 The Parselbox Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time for deterministic tests.
//
// [Clock] is the interface production code depends on. [Real] returns
// the wall-clock implementation. [Fake] returns a [FakeClock] whose
// time only moves when Advance is called; [FakeClock.WaitForTimers]
// removes the race between a goroutine registering a timer and the
// test advancing past its deadline.
package clock
