package addr6

import "net"

// InterfaceIdentifier synthesises the low 64 bits of a host address from a
// link-layer address, per spec §4.6 step 4 and §4.9 step 2: if ll is
// shorter than 6 octets it is right-aligned into the low 8 octets;
// otherwise a modified EUI-64 is formed from the first 3 octets, 0xFF
// 0xFE, the last 3 octets, with the universal/local bit of the first
// octet flipped.
//
// InterfaceIdentifier is injective on the 48-bit (6-octet) input: two
// distinct 6-octet link-layer addresses never collide, since the first and
// last three octets are copied through unmodified save for a single fixed
// bit flip that doesn't depend on any other bit.
func InterfaceIdentifier(ll net.HardwareAddr) (id [8]byte) {
	if len(ll) < 6 {
		// Right-align into the low 8 octets.
		copy(id[8-len(ll):], ll)

		return id
	}

	id[0] = ll[0] ^ 0x02
	id[1] = ll[1]
	id[2] = ll[2]
	id[3] = 0xFF
	id[4] = 0xFE
	id[5] = ll[3]
	id[6] = ll[4]
	id[7] = ll[5]

	return id
}

// LinkLocal builds the FE80::/64 link-local address for the given
// link-layer address, per spec §4.9 step 2.
func LinkLocal(ll net.HardwareAddr) (a Addr) {
	id := InterfaceIdentifier(ll)

	var b [16]byte
	b[0], b[1] = 0xFE, 0x80
	copy(b[8:], id[:])

	return AddrFromBytes(b[:])
}

// HostAddress composes a SLAAC host address from a router-announced prefix
// (prefixLen bits of prefix significant) and a link-layer address, per
// spec §4.6 step 4.
func HostAddress(prefix Addr, prefixLen int, ll net.HardwareAddr) (a Addr) {
	id := InterfaceIdentifier(ll)

	var host [16]byte
	copy(host[8:], id[:])

	return WithPrefix(prefix, prefixLen, AddrFromBytes(host[:]))
}
