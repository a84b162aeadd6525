// Package addr6 implements the wire-level primitives shared by the IPv6
// bring-up core: the 128-bit address type, the NDP option TLV codec,
// EUI-64 interface identifiers, and the well-known multicast constants.
// DHCPv6 options and DUIDs are encoded by internal/dhcp6client.
package addr6

import (
	"net"
	"net/netip"
)

// Addr is a 128-bit IPv6 address.  The zero value is the all-zero address
// (::), which is also the "on-link gateway" / "unspecified" sentinel used
// throughout the routing table and NDP engine.
type Addr struct {
	a netip.Addr
}

// AddrFromNetip wraps a [netip.Addr].  addr must be an IPv6 address (or the
// zero [netip.Addr], which becomes the all-zero Addr); an IPv4 address
// panics, since nothing in this core ever sees one. A 4-in-6 address is
// an IPv6 address and is wrapped unchanged.
func AddrFromNetip(addr netip.Addr) (a Addr) {
	if !addr.IsValid() {
		return Addr{}
	}
	if addr.Is4() {
		panic("addr6: AddrFromNetip given an IPv4 address")
	}

	return Addr{a: addr}
}

// AddrFromBytes builds an Addr from a 16-byte slice.  It panics if b isn't
// exactly 16 bytes long, mirroring the fixed-width wire structures this
// core otherwise deals in.
func AddrFromBytes(b []byte) (a Addr) {
	if len(b) != 16 {
		panic("addr6: AddrFromBytes needs exactly 16 bytes")
	}

	return Addr{a: netip.AddrFrom16([16]byte(b))}
}

// ParseAddr parses the canonical text form of an IPv6 address.
func ParseAddr(s string) (a Addr, err error) {
	na, err := netip.ParseAddr(s)
	if err != nil {
		return Addr{}, err
	}

	return AddrFromNetip(na), nil
}

// Netip returns the [netip.Addr] backing a.
func (a Addr) Netip() (na netip.Addr) { return a.a }

// As16 returns the 16-byte representation of a.
func (a Addr) As16() (b [16]byte) { return a.a.As16() }

// IsZero reports whether a is the all-zero address, used as the on-link
// gateway sentinel in the routing table (spec §3 "all-zero meaning
// on-link").
func (a Addr) IsZero() (ok bool) { return a.a == netip.Addr{} || a.a.IsUnspecified() }

// Equal reports whether a and other hold the same 128 bits.
func (a Addr) Equal(other Addr) (ok bool) { return a.a == other.a }

// IsMulticast reports whether a's first octet is 0xFF.
func (a Addr) IsMulticast() (ok bool) {
	b := a.a.As16()

	return b[0] == 0xFF
}

// String returns the canonical, zero-run-compressed text form.
func (a Addr) String() (s string) { return a.a.String() }

// MarshalText implements [encoding.TextMarshaler].
func (a Addr) MarshalText() (b []byte, err error) { return a.a.MarshalText() }

// UnmarshalText implements [encoding.TextUnmarshaler].
func (a *Addr) UnmarshalText(b []byte) (err error) {
	return a.a.UnmarshalText(b)
}

// WithPrefix returns a new Addr whose first prefixLen bits come from
// prefix and whose remaining bits come from a.  prefixLen must be in
// [0, 128].
func WithPrefix(prefix Addr, prefixLen int, host Addr) (out Addr) {
	p := prefix.As16()
	h := host.As16()

	full := prefixLen / 8
	rem := prefixLen % 8

	var b [16]byte
	copy(b[:full], p[:full])
	if rem != 0 && full < 16 {
		mask := byte(0xFF << (8 - rem))
		b[full] = (p[full] & mask) | (h[full] &^ mask)
		full++
	}
	copy(b[full:], h[full:])

	return Addr{a: netip.AddrFrom16(b)}
}

// SolicitedNodeMulticast derives the solicited-node multicast address
// FF02::1:FFxx:yyyy from the low 24 bits of target, per RFC 4861 §2.1.
func SolicitedNodeMulticast(target Addr) (snm Addr) {
	t := target.As16()

	var b [16]byte
	b[0], b[1] = 0xFF, 0x02
	b[11] = 0x01
	b[12] = 0xFF
	b[13], b[14], b[15] = t[13], t[14], t[15]

	return Addr{a: netip.AddrFrom16(b)}
}

// MulticastLinkLayer synthesises the Ethernet multicast address for a,
// which must be a multicast address: 33:33: prepended to the low 32 bits,
// per spec §4.3 "Multicast bypass".
func MulticastLinkLayer(a Addr) (ll net.HardwareAddr) {
	b := a.As16()

	ll = make(net.HardwareAddr, 6)
	ll[0], ll[1] = 0x33, 0x33
	copy(ll[2:], b[12:16])

	return ll
}
