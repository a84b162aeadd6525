package ndp6

import (
	"net"

	"github.com/6bringup/stack6/internal/addr6"
	"github.com/6bringup/stack6/internal/icmp6"
)

// Transport is the minimal IPv6 send primitive the NDP handlers need to
// emit solicitations and advertisements. It is implemented by
// internal/ip6stack's Stack; ndp6 depends only on this interface to avoid
// an import cycle (ip6stack.Stack in turn depends on ndp6 for neighbour
// resolution during TX).
//
// msg carries a zeroed checksum field and partial is the running sum
// accumulated over msg alone; the implementation continues it over the
// real pseudo-header once a source address is chosen, finalises it, and
// writes it into msg before sending — see internal/icmp6.Transport.
type Transport interface {
	TransmitICMPv6(netdev string, dst addr6.Addr, msg []byte, partial icmp6.Sum) error
}

// NetdevInfo answers the small set of questions the NDP handlers need
// about a local interface, standing in for gPXE's struct net_device and
// struct icmp6_net_protocol.check.
type NetdevInfo interface {
	// LinkLayerAddr returns netdev's own link-layer (MAC) address.
	LinkLayerAddr(netdev string) (net.HardwareAddr, error)

	// HasAddress reports whether addr is configured on netdev — the Go
	// equivalent of net_protocol->check returning 0 for "it's ours".
	HasAddress(netdev string, addr addr6.Addr) bool
}
