// Package session holds the router's pinning table: a mapping from a
// WireGuard Identity to the pair of endpoints a datagram bearing that
// identity may need to reach.
package session

import (
	"net/netip"
	"sync"
	"time"

	"github.com/BergCTF/wireguard-router/internal/frame"
)

// Entry is the pair of endpoints pinned to a session. Orientation is
// deliberately asymmetric: Client is the party whose first handshake
// frame bearing the session's Identity arrived from it; Backend is the
// other party. A HandshakeResponse installs the inverse view (see
// Table.Insert callers in package router).
type Entry struct {
	Client  netip.AddrPort
	Backend netip.AddrPort

	lastSeen time.Time
}

// Table is a mapping from Identity to Entry, guarded by a mutex so it
// can eventually be shared with a periodic GC sweep (see Sweep) without
// changing its locking discipline.
type Table struct {
	mu      sync.Mutex
	entries map[frame.Identity]Entry
}

// New creates an empty session table.
func New() *Table {
	return &Table{entries: make(map[frame.Identity]Entry)}
}

// Get returns the entry for id, if any.
func (t *Table) Get(id frame.Identity) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	return e, ok
}

// Insert records the (client, backend) pair for id, overwriting any
// prior entry. now is the current time, stamped on the entry for a
// future TTL-based GC sweep; this version never acts on it.
func (t *Table) Insert(id frame.Identity, client, backend netip.AddrPort, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[id] = Entry{Client: client, Backend: backend, lastSeen: now}
}

// Len returns the number of sessions currently tracked.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Sweep removes every entry last touched before the cutoff time and
// returns the number of entries evicted. No caller in this version
// invokes it — the router never evicts sessions (spec: GC deferred to
// future work) — but it exists so a periodic GC task can be added
// later without changing the table's locking discipline.
func (t *Table) Sweep(cutoff time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for id, e := range t.entries {
		if e.lastSeen.Before(cutoff) {
			delete(t.entries, id)
			n++
		}
	}
	return n
}
