// Copyright 2026 The Parselbox Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"testing"
	"time"

	"github.com/parselbox/parselbox/lib/testutil"
)

func TestSignalStartsNeutral(t *testing.T) {
	t.Parallel()

	signal := NewSignal()
	if signal.Interrupted() {
		t.Error("fresh signal reports interrupted")
	}
	select {
	case <-signal.Done():
		t.Error("fresh signal's done channel is closed")
	default:
	}
}

func TestSignalInterrupt(t *testing.T) {
	t.Parallel()

	signal := NewSignal()
	signal.Interrupt()
	signal.Interrupt() // idempotent

	if !signal.Interrupted() {
		t.Error("signal not interrupted after Interrupt")
	}
	testutil.RequireClosed(t, signal.Done(), time.Second, "done channel after Interrupt")
}
