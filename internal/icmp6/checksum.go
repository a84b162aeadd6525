// Package icmp6 implements the ICMPv6 dispatcher (C5) described in spec
// §4.5, plus the RFC 1071 checksum primitives shared by every ICMPv6 and
// NDP message builder in this module.
//
// Grounded on gPXE's tcpip_chksum/tcpip_continue_chksum split
// (original_source/src/net/icmpv6.c, src/net/ipv6.c's ipv6_tx_csum): a
// message is built with its checksum field zeroed, a partial sum is
// accumulated over it, and the caller continues that same running sum
// over the pseudo-header before complementing it into the final wire
// value. [Sum] models that running accumulator directly instead of
// threading a bare uint16 through three call sites.
package icmp6

import (
	"encoding/binary"

	"github.com/6bringup/stack6/internal/addr6"
)

// Sum is a running RFC 1071 one's-complement checksum accumulator. The
// zero value is a valid starting point.
type Sum uint32

// Add folds b into the running sum, treating it as a sequence of
// big-endian 16-bit words; an odd trailing byte is padded with a zero
// low byte, matching tcpip_chksum's byte-at-a-time accumulation.
func (s Sum) Add(b []byte) (next Sum) {
	n := len(b)
	i := 0
	for ; i+1 < n; i += 2 {
		s += Sum(binary.BigEndian.Uint16(b[i : i+2]))
	}
	if i < n {
		s += Sum(uint16(b[i]) << 8)
	}

	return s
}

// fold collapses any carry bits above the low 16 into the low 16.
func (s Sum) fold() (v uint16) {
	for s>>16 != 0 {
		s = (s & 0xFFFF) + (s >> 16)
	}

	return uint16(s)
}

// Finalize folds s and returns its one's complement, the value written
// into a checksum field on the wire.
func (s Sum) Finalize() (csum uint16) {
	return ^s.fold()
}

// PseudoHeader builds the 40-octet IPv6 pseudo-header (RFC 2460 §8.1:
// source, destination, upper-layer length, zero padding, next header)
// used as the checksum base for ICMPv6 and transport-layer messages.
func PseudoHeader(src, dst addr6.Addr, upperLen uint32, nextHeader uint8) (b []byte) {
	b = make([]byte, 40)

	srcBytes := src.As16()
	dstBytes := dst.As16()
	copy(b[0:16], srcBytes[:])
	copy(b[16:32], dstBytes[:])
	binary.BigEndian.PutUint32(b[32:36], upperLen)
	b[39] = nextHeader

	return b
}
