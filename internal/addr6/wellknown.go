package addr6

import "net/netip"

// Well-known IPv6 multicast addresses used by the NDP engine and the
// DHCPv6 client.  These are built from literal octet arrays rather than
// from a byte-swapped 16- or 32-bit constant: spec §9 flags a source
// revision that constructed the all-DHCP-servers group with "htons(0xFF02)"
// where "htonl" semantics were intended, which is exactly the class of bug
// a literal avoids.
var (
	// AllNodes is FF02::1, the all-nodes link-local multicast group.
	AllNodes = Addr{a: netip.AddrFrom16([16]byte{
		0xFF, 0x02, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x01,
	})}

	// AllRouters is FF02::2, the destination for Router Solicitations.
	AllRouters = Addr{a: netip.AddrFrom16([16]byte{
		0xFF, 0x02, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x02,
	})}

	// AllDHCPServers is FF02::1:2, the DHCPv6 client-to-server multicast
	// group used for Solicit/Request/InfoReq (RFC 3315 §5.1).
	AllDHCPServers = Addr{a: netip.AddrFrom16([16]byte{
		0xFF, 0x02, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x01, 0, 0x02,
	})}
)
