// Copyright 2026 The Parselbox Authors
// SPDX-License-Identifier: Apache-2.0

package capability

import "sync"

// Capability is a gateable host-facing ability.
type Capability string

const (
	// Network is the ability to reach the network, including the
	// package download CDNs.
	Network Capability = "network"

	// RuntimePackages is the ability to install packages at execution
	// time (auto-loading imports or explicit loads after startup).
	RuntimePackages Capability = "runtime_package_install"
)

// Ledger tracks which capabilities are currently granted. All
// capabilities start granted; revocation is permanent for the process
// lifetime. There is deliberately no grant operation; the permission
// model only ratchets down.
//
// Ledger is safe for concurrent use. Callers that gate an action on a
// capability must check Granted immediately before acting; a
// revocation that lands after the check applies to subsequent actions,
// not the one in flight.
type Ledger struct {
	mu      sync.Mutex
	revoked map[Capability]struct{}
}

// NewLedger returns a Ledger with every capability granted.
func NewLedger() *Ledger {
	return &Ledger{revoked: make(map[Capability]struct{})}
}

// Granted reports whether the capability is still granted.
func (l *Ledger) Granted(c Capability) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, revoked := l.revoked[c]
	return !revoked
}

// Revoke permanently removes the capability. Idempotent: revoking an
// already-revoked capability is a no-op.
func (l *Ledger) Revoke(c Capability) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.revoked[c] = struct{}{}
}
