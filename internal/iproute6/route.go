// Package iproute6 implements the bring-up core's IPv6 routing table (C2):
// an ordered list of (prefix, prefix length, local address, gateway,
// netdev) entries with first-match lookup in list order, used by the TX
// path to select a next hop.
package iproute6

import (
	"slices"
	"sync"

	"github.com/AdguardTeam/golibs/netutil"

	"github.com/6bringup/stack6/internal/addr6"
)

// entry is one routing-table row.  Entries with an all-zero Gateway are
// on-link and are kept at the head of the list; gateway'd entries are
// kept at the tail, so on-link entries always preempt default routes
// during iteration (spec §3).
type entry struct {
	Netdev    string
	Prefix    addr6.Addr
	PrefixLen int
	LocalAddr addr6.Addr
	Gateway   addr6.Addr
}

// Table is the process-wide IPv6 routing table.  It is safe for
// concurrent use; the SLAAC and DHCPv6 paths, and the TX path's lookups,
// may all run from different goroutines despite the single-threaded
// cooperative model described in spec §5, since [Table] is one of the
// "process-wide singletons" spec §5 calls out explicitly.
type Table struct {
	mu      sync.RWMutex
	entries []entry
}

// NewTable returns an empty routing table.
func NewTable() (t *Table) {
	return &Table{}
}

// Add installs a new route for netdev.  Per spec §4.2, any existing entry
// for netdev is removed first — at most one entry per netdev is added at
// a time by the SLAAC path (spec §3's invariant).
func (t *Table) Add(netdev string, prefix addr6.Addr, prefixLen int, local, gateway addr6.Addr) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.removeLocked(netdev)

	e := entry{
		Netdev:    netdev,
		Prefix:    prefix,
		PrefixLen: prefixLen,
		LocalAddr: local,
		Gateway:   gateway,
	}

	if gateway.IsZero() {
		t.entries = slices.Insert(t.entries, 0, e)
	} else {
		t.entries = append(t.entries, e)
	}
}

// RemoveByNetdev deletes any route owned by netdev.
func (t *Table) RemoveByNetdev(netdev string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.removeLocked(netdev)
}

func (t *Table) removeLocked(netdev string) {
	t.entries = slices.DeleteFunc(t.entries, func(e entry) (del bool) {
		return e.Netdev == netdev
	})
}

// Lookup finds the netdev, local source address, and next hop for dest.
// Entries are tried in order (on-link first, per [Table.Add]); the first
// whose prefix matches dest in its first PrefixLen bits wins. If no
// prefix matches but an on-link entry exists, that netdev is used with
// next hop set to dest directly (an on-link destination assumed
// reachable without a more specific route). Otherwise Lookup fails with
// [ErrNetUnreachable].
//
// The match is bit-granular (not a truncated byte count), which resolves
// the Open Question in spec §9 in the direction it points to: implementations
// preserve identical behaviour for the byte-aligned prefix lengths this
// core actually uses (/64, /128) while being correct for arbitrary lengths.
func (t *Table) Lookup(dest addr6.Addr) (netdev string, src, nextHop addr6.Addr, err error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, e := range t.entries {
		if prefixMatches(e.Prefix, e.PrefixLen, dest) {
			return e.Netdev, e.LocalAddr, nextHopFor(e, dest), nil
		}
	}

	for _, e := range t.entries {
		if e.Gateway.IsZero() {
			return e.Netdev, e.LocalAddr, dest, nil
		}
	}

	return "", addr6.Addr{}, addr6.Addr{}, ErrNetUnreachable
}

// LookupVia is [Table.Lookup] scoped to one netdev: only entries owned by
// netdev are considered. The IPv6 TX path (internal/ip6stack) uses this
// instead of Lookup whenever the caller already knows which interface
// it's transmitting on (every NDP message does, since it's always sent
// in the context of one netdev's bring-up) — running several netdevs'
// autoconf concurrently would otherwise let one netdev's on-link fallback
// entry answer another netdev's lookup.
func (t *Table) LookupVia(netdev string, dest addr6.Addr) (src, nextHop addr6.Addr, err error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, e := range t.entries {
		if e.Netdev != netdev {
			continue
		}

		if prefixMatches(e.Prefix, e.PrefixLen, dest) {
			return e.LocalAddr, nextHopFor(e, dest), nil
		}
	}

	for _, e := range t.entries {
		if e.Netdev == netdev && e.Gateway.IsZero() {
			return e.LocalAddr, dest, nil
		}
	}

	return addr6.Addr{}, addr6.Addr{}, ErrNetUnreachable
}

// NetdevAddr returns the source address currently installed for netdev,
// if any. The NDP handlers use this to answer spec §4.6 step 7's "probed
// via net_protocol.check" (is this address already ours?).
func (t *Table) NetdevAddr(netdev string) (local addr6.Addr, ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, e := range t.entries {
		if e.Netdev == netdev {
			return e.LocalAddr, true
		}
	}

	return addr6.Addr{}, false
}

// nextHopFor returns dest for an on-link entry, or the entry's gateway
// otherwise.
func nextHopFor(e entry, dest addr6.Addr) (nextHop addr6.Addr) {
	if e.Gateway.IsZero() {
		return dest
	}

	return e.Gateway
}

// prefixMatches reports whether dest's first prefixLen bits equal
// prefix's.  prefixLen is clamped to [0, netutil.IPv6BitLen].
func prefixMatches(prefix addr6.Addr, prefixLen int, dest addr6.Addr) (ok bool) {
	if prefixLen <= 0 {
		return true
	}
	if prefixLen > netutil.IPv6BitLen {
		prefixLen = netutil.IPv6BitLen
	}

	p := prefix.As16()
	d := dest.As16()

	full := prefixLen / 8
	for i := 0; i < full; i++ {
		if p[i] != d[i] {
			return false
		}
	}

	rem := prefixLen % 8
	if rem == 0 {
		return true
	}

	mask := byte(0xFF << (8 - rem))

	return p[full]&mask == d[full]&mask
}
