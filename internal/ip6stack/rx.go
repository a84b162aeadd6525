package ip6stack

import (
	"encoding/binary"

	"github.com/AdguardTeam/golibs/errors"

	"github.com/6bringup/stack6/internal/addr6"
	"github.com/6bringup/stack6/internal/icmp6"
)

// RX errors, per spec §7's Invalid/NotSupported taxonomy.
const (
	ErrTooShort               errors.Error = "ip6stack: packet shorter than ipv6 header"
	ErrBadVersion             errors.Error = "ip6stack: bad ip version"
	ErrBadPayloadLength       errors.Error = "ip6stack: payload length exceeds buffer"
	ErrNextHeaderNotSupported errors.Error = "ip6stack: next header not supported"
)

// Extension/transport next-header numbers this core explicitly rejects,
// per spec §4.7 RX: "{HopByHop, Routing, Fragment, AH, DestOpts, ESP}
// fail NotSupported."
const (
	nextHeaderHopByHop = 0
	nextHeaderRouting  = 43
	nextHeaderFragment = 44
	nextHeaderESP      = 50
	nextHeaderAH       = 51
	nextHeaderDestOpts = 60
)

// RX implements spec §4.7's RX: validate length and version, compute the
// pseudo-header partial checksum before stripping the header, strip
// trailing padding beyond the announced payload length, and dispatch by
// next header.
//
// RX recovers locally from every malformed-input case (spec §7
// "Propagation": "a malformed frame is logged and dropped, never
// propagated to the job layer") by returning a plain error to its caller
// (the receive loop), which logs and continues rather than panicking or
// tearing down the netdev.
func (s *Stack) RX(netdevName string, raw []byte) (err error) {
	if len(raw) < ipv6HeaderLen {
		return ErrTooShort
	}

	if raw[0]>>4 != 6 {
		return ErrBadVersion
	}

	payloadLen := int(binary.BigEndian.Uint16(raw[4:6]))
	if payloadLen > len(raw)-ipv6HeaderLen {
		return ErrBadPayloadLength
	}

	nextHeader := raw[6]
	src := addr6.AddrFromBytes(raw[8:24])
	dst := addr6.AddrFromBytes(raw[24:40])

	pseudo := icmp6.PseudoHeader(src, dst, uint32(payloadLen), nextHeader)
	partial := icmp6.Sum(0).Add(pseudo)

	body := raw[ipv6HeaderLen : ipv6HeaderLen+payloadLen]

	switch nextHeader {
	case nextHeaderHopByHop, nextHeaderRouting, nextHeaderFragment, nextHeaderAH, nextHeaderDestOpts, nextHeaderESP:
		return ErrNextHeaderNotSupported
	case nextHeaderICMPv6:
		return s.icmp.Dispatch(netdevName, src, dst, partial, body)
	default:
		return ErrNextHeaderNotSupported
	}
}
