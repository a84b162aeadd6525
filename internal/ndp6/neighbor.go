package ndp6

import (
	"fmt"
	"net"

	"github.com/6bringup/stack6/internal/addr6"
)

// NeighborState is the state of one [NeighborEntry], per spec §3.
type NeighborState uint8

// NeighborState values.
const (
	NeighborInvalid NeighborState = iota
	NeighborIncomplete
	NeighborReachable
	NeighborDelay
	NeighborProbe
	NeighborStale
)

// String implements [fmt.Stringer].
func (s NeighborState) String() (str string) {
	switch s {
	case NeighborInvalid:
		return "invalid"
	case NeighborIncomplete:
		return "incomplete"
	case NeighborReachable:
		return "reachable"
	case NeighborDelay:
		return "delay"
	case NeighborProbe:
		return "probe"
	case NeighborStale:
		return "stale"
	default:
		return fmt.Sprintf("!invalid NeighborState %d", uint8(s))
	}
}

// NeighborEntry is one row of the neighbour cache (spec §3's "Neighbour
// cache entry").
type NeighborEntry struct {
	Addr      addr6.Addr
	LLAddrLen int
	LLAddr    net.HardwareAddr
	State     NeighborState
}

// NeighborCache is the fixed-size ring of [NeighborEntry] rows described
// in spec §4.3 (C3), grounded on gPXE's ndp_table
// (original_source/src/net/ndp.c).
type NeighborCache struct {
	r *ring[NeighborEntry]
}

// NewNeighborCache returns a cache with n slots (raised to the package
// minimum if smaller).
func NewNeighborCache(n int) (c *NeighborCache) {
	return &NeighborCache{r: newRing[NeighborEntry](n)}
}

// Find scans the ring and returns the first non-Invalid entry with
// Addr == addr.
func (c *NeighborCache) Find(addr addr6.Addr) (e NeighborEntry, ok bool) {
	idx, found := c.r.find(func(v NeighborEntry) bool {
		return v.State != NeighborInvalid && v.Addr.Equal(addr)
	})
	if !found {
		return NeighborEntry{}, false
	}

	return c.r.at(idx), true
}

// Insert overwrites the next ring slot, storing the link-layer address
// bytes (or zero-filling if ll is nil) and the given state, and returns
// the entry's index.
func (c *NeighborCache) Insert(addr addr6.Addr, llAddrLen int, ll net.HardwareAddr, state NeighborState) (idx uint) {
	e := NeighborEntry{
		Addr:      addr,
		LLAddrLen: llAddrLen,
		State:     state,
	}
	if ll != nil {
		e.LLAddr = append(net.HardwareAddr(nil), ll...)
	} else {
		e.LLAddr = make(net.HardwareAddr, llAddrLen)
	}

	return c.r.insert(e)
}

// promoteReachable finds the entry for target and, if present, sets its
// link-layer address and promotes it to Reachable. ok reports whether a
// matching entry was found, regardless of prior state.
func (c *NeighborCache) promoteReachable(target addr6.Addr, ll net.HardwareAddr) (ok bool) {
	idx, found := c.r.find(func(v NeighborEntry) bool {
		return v.Addr.Equal(target)
	})
	if !found {
		return false
	}

	c.r.update(idx, func(v NeighborEntry) NeighborEntry {
		v.LLAddr = append(net.HardwareAddr(nil), ll...)
		v.State = NeighborReachable

		return v
	})

	return true
}
