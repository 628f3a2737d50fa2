// Copyright 2026 The Parselbox Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"sync"
	"sync/atomic"
)

// interruptRequested is the value stored when termination is
// requested. It mirrors SIGINT so engine runners can feed the word
// directly into an interpreter's interrupt buffer.
const interruptRequested = 2

// Signal is the cooperative interrupt shared between the execution
// controller and the engine: a single word of state plus a done
// channel for engines that wait rather than poll. The controller is
// the only writer; the engine is the only reader.
//
// A Signal is single-use. The controller installs a fresh one before
// each run and detaches it afterwards, so no stale interrupt can leak
// into the next execution. Interrupting is advisory: the engine
// observes the signal at its own safepoints and decides when it is
// safe to unwind.
type Signal struct {
	state atomic.Int32
	done  chan struct{}
	once  sync.Once
}

// NewSignal returns a Signal in the neutral state.
func NewSignal() *Signal {
	return &Signal{done: make(chan struct{})}
}

// Interrupt requests termination. Idempotent.
func (s *Signal) Interrupt() {
	s.state.Store(interruptRequested)
	s.once.Do(func() { close(s.done) })
}

// Interrupted reports whether termination has been requested. Engines
// poll this at safepoints.
func (s *Signal) Interrupted() bool {
	return s.state.Load() != 0
}

// Done returns a channel closed when termination is requested.
// Engines that forward the interrupt out-of-process select on this
// instead of polling.
func (s *Signal) Done() <-chan struct{} {
	return s.done
}
