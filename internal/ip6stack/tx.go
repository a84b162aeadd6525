package ip6stack

import (
	"encoding/binary"
	"fmt"
	"net"

	"github.com/6bringup/stack6/internal/addr6"
	"github.com/6bringup/stack6/internal/icmp6"
)

// Wire constants for the IPv6 header this core builds on TX (spec §4.7).
const (
	ipv6HeaderLen    = 40
	nextHeaderICMPv6 = 58
	hopLimitDefault  = 255
)

// TransmitICMPv6 implements [ndp6.Transport] and [icmp6.Transport]: msg
// carries a zeroed checksum field and partial is the running sum
// accumulated over msg alone. TX continues partial over the pseudo-header
// once src is chosen, finalises it, and writes it into msg before
// transmitting.
func (s *Stack) TransmitICMPv6(netdevName string, dst addr6.Addr, msg []byte, partial icmp6.Sum) (err error) {
	return s.TX(netdevName, dst, nextHeaderICMPv6, msg, &partial)
}

// TX implements spec §4.7's TX: prepend the 40-octet IPv6 header,
// determine next-hop and local source address from the routing table
// scoped to netdevName, resolve the destination link-layer address
// (multicast bypass or NDP), finalise csum over the pseudo-header if
// supplied, and hand the Ethernet frame to the open device.
//
// csum, if non-nil, is the partial checksum accumulated over payload
// alone; TX continues it over {src, dst, len(payload), nextHeader} and
// writes the finalised 2 octets into payload[2:4] — the checksum field
// position shared by ICMPv6 and UDP — before transmitting.
func (s *Stack) TX(netdevName string, dst addr6.Addr, nextHeader uint8, payload []byte, csum *icmp6.Sum) (err error) {
	src, nextHop, err := s.routes.LookupVia(netdevName, dst)
	if err != nil {
		return fmt.Errorf("ip6stack: tx to %s via %s: %w", dst, netdevName, err)
	}

	if csum != nil {
		pseudo := icmp6.PseudoHeader(src, dst, uint32(len(payload)), nextHeader)
		final := csum.Add(pseudo).Finalize()
		binary.BigEndian.PutUint16(payload[2:4], final)
	}

	var destLL net.HardwareAddr
	if dst.IsMulticast() {
		destLL = addr6.MulticastLinkLayer(dst)
	} else {
		destLL, err = s.ndp.Resolve(netdevName, nextHop, src)
		if err != nil {
			return fmt.Errorf("ip6stack: resolving %s: %w", nextHop, err)
		}
	}

	dev, ok := s.device(netdevName)
	if !ok {
		return fmt.Errorf("ip6stack: netdev %q not open", netdevName)
	}

	packet := buildIPv6Header(src, dst, nextHeader, payload)

	frame, err := buildEthernetFrame(dev.HardwareAddr(), destLL, packet)
	if err != nil {
		return fmt.Errorf("ip6stack: building ethernet frame: %w", err)
	}

	return dev.WriteFrame(frame)
}

// buildIPv6Header prepends the 40-octet IPv6 header to payload: version
// 6, traffic class 0, flow label 0, payload length = len(payload),
// next-header, hop limit 255.
func buildIPv6Header(src, dst addr6.Addr, nextHeader uint8, payload []byte) (packet []byte) {
	packet = make([]byte, ipv6HeaderLen, ipv6HeaderLen+len(payload))
	packet[0] = 0x60
	binary.BigEndian.PutUint16(packet[4:6], uint16(len(payload)))
	packet[6] = nextHeader
	packet[7] = hopLimitDefault

	srcB := src.As16()
	dstB := dst.As16()
	copy(packet[8:24], srcB[:])
	copy(packet[24:40], dstB[:])

	return append(packet, payload...)
}
