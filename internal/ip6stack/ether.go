package ip6stack

import (
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// stripEthernetIPv6 decodes frame's Ethernet header and returns its
// payload, reporting false for anything that isn't an IPv6 frame.
// Grounded on dhcpsvc/handle.go's
// gopacket.NewPacketSource(nd, nd.LinkType()) / pkt.Layer(LayerTypeEthernet)
// pattern, narrowed to a one-shot decode since this core reads one frame
// at a time rather than a packet stream.
func stripEthernetIPv6(frame []byte) (payload []byte, ok bool) {
	pkt := gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.NoCopy)

	eth, isEth := pkt.Layer(layers.LayerTypeEthernet).(*layers.Ethernet)
	if !isEth || eth.EthernetType != layers.EthernetTypeIPv6 {
		return nil, false
	}

	return eth.Payload, true
}

// buildEthernetFrame wraps packet in an Ethernet header addressed from
// src to dst with EtherType IPv6, grounded on dhcpsvc/v4.go's
// layers.Ethernet{...} + gopacket.SerializeLayers pattern.
func buildEthernetFrame(src, dst net.HardwareAddr, packet []byte) (frame []byte, err error) {
	ethLayer := &layers.Ethernet{
		SrcMAC:       src,
		DstMAC:       dst,
		EthernetType: layers.EthernetTypeIPv6,
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}
	if err = gopacket.SerializeLayers(buf, opts, ethLayer, gopacket.Payload(packet)); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
