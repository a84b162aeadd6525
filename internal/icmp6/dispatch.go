package icmp6

import (
	"github.com/AdguardTeam/golibs/errors"

	"github.com/6bringup/stack6/internal/addr6"
)

// Message type values this core recognises, per spec §4.5.
const (
	TypeEchoRequest      = 128
	TypeEchoReply        = 129
	TypeRouterSolicit    = 133
	TypeRouterAdvert     = 134
	TypeNeighborSolicit  = 135
	TypeNeighborAdvert   = 136
)

// minHeaderLen is sizeof(icmp6_header): 1-octet type, 1-octet code,
// 2-octet checksum.
const minHeaderLen = 4

// Dispatch errors.
const (
	ErrInvalid      errors.Error = "invalid icmpv6 message"
	ErrNotSupported errors.Error = "icmpv6 type not supported"
)

// Transport is the minimal IPv6 send primitive the dispatcher needs to
// answer an Echo Request. msg carries a checksum field already zeroed and
// partial is the running [Sum] accumulated over msg alone; the
// implementation (internal/ip6stack's Stack) continues partial over the
// real pseudo-header once routing has picked a source address, finalises
// it, and writes it into msg before transmitting — mirroring gPXE's
// tcpip_tx/ipv6_tx_csum split (original_source/src/net/ipv6.c).
type Transport interface {
	TransmitICMPv6(netdev string, dst addr6.Addr, msg []byte, partial Sum) error
}

// NDPHandler receives the NDP message types the dispatcher demuxes to.
// Implemented by internal/ndp6's Handlers; declared here (rather than
// importing ndp6 directly) to keep icmp6 a leaf package — ndp6 in turn
// imports icmp6 for [Sum] and the message type constants.
type NDPHandler interface {
	ProcessRA(netdev string, src addr6.Addr, body []byte) error
	ProcessNA(netdev string, body []byte) error
	ProcessNS(netdev string, src, dst addr6.Addr, body []byte) error
}

// Dispatcher is the ICMPv6 message demultiplexer (C5).
type Dispatcher struct {
	transport Transport
	ndp       NDPHandler
}

// NewDispatcher returns a Dispatcher that answers Echo Requests over t
// and forwards NDP message types to h.
func NewDispatcher(t Transport, h NDPHandler) (d *Dispatcher) {
	return &Dispatcher{transport: t, ndp: h}
}

// Dispatch validates and demultiplexes one ICMPv6 message. pseudoSum is
// the running checksum already accumulated over the IPv6 pseudo-header
// by the caller (spec §4.7's RX path, before the IPv6 header was
// stripped); Dispatch continues it over msg and requires the final fold
// to be zero.
func (d *Dispatcher) Dispatch(netdev string, src, dst addr6.Addr, pseudoSum Sum, msg []byte) (err error) {
	if len(msg) < minHeaderLen {
		return ErrInvalid
	}

	if pseudoSum.Add(msg).Finalize() != 0 {
		return ErrInvalid
	}

	typ := msg[0]
	switch typ {
	case TypeEchoRequest:
		return d.echoReply(netdev, src, msg)
	case TypeRouterSolicit:
		// Router role, not implemented by this core.
		return ErrNotSupported
	case TypeRouterAdvert:
		return d.ndp.ProcessRA(netdev, src, msg)
	case TypeNeighborSolicit:
		return d.ndp.ProcessNS(netdev, src, dst, msg)
	case TypeNeighborAdvert:
		return d.ndp.ProcessNA(netdev, msg)
	default:
		return ErrNotSupported
	}
}

// echoReply turns msg (an Echo Request) into an Echo Reply in place and
// hands it to the transport with a partial checksum, to be finalised
// once a source address and pseudo-header are known.
func (d *Dispatcher) echoReply(netdev string, src addr6.Addr, msg []byte) (err error) {
	msg[0] = TypeEchoReply
	msg[2] = 0
	msg[3] = 0

	partial := Sum(0).Add(msg)

	return d.transport.TransmitICMPv6(netdev, src, msg, partial)
}
