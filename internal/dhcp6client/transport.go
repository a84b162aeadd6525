package dhcp6client

import (
	"context"
	"fmt"
	"net"
	"time"

	"golang.org/x/net/ipv6"

	"github.com/6bringup/stack6/internal/addr6"
)

// Transport is the send/receive surface the state machine needs. It is
// separate from [ip6stack.Stack]'s Ethernet-frame world: DHCPv6 runs over
// a real UDP6 socket, not the hand-rolled IPv6 this core builds for NDP
// (SPEC_FULL.md §3.7).
type Transport interface {
	// Send transmits payload to the DHCPv6 multicast/unicast destination
	// this transport was opened for.
	Send(payload []byte) (err error)

	// Receive blocks for one incoming datagram or until ctx is done.
	Receive(ctx context.Context) (payload []byte, err error)

	// Close releases the underlying socket.
	Close() (err error)
}

// udp6Transport implements [Transport] over [golang.org/x/net/ipv6.PacketConn],
// mirroring the mdlayher/dhcp6 reference server's
// ipv6.NewPacketConn(conn) + SetControlMessage(ipv6.FlagInterface, true)
// pattern, adapted to the client side: no JoinGroup, since the client
// only ever unicasts/multicasts out and receives directly-addressed
// replies back.
type udp6Transport struct {
	conn *net.UDPConn
	pc   *ipv6.PacketConn
	ifi  *net.Interface
	dst  *net.UDPAddr
}

// newUDP6Transport opens a DHCPv6 client socket bound to netdevName.
func newUDP6Transport(netdevName string) (t *udp6Transport, err error) {
	ifi, err := net.InterfaceByName(netdevName)
	if err != nil {
		return nil, fmt.Errorf("dhcp6client: %w", err)
	}

	conn, err := net.ListenUDP("udp6", &net.UDPAddr{
		IP:   net.IPv6unspecified,
		Port: ClientPort,
		Zone: netdevName,
	})
	if err != nil {
		return nil, fmt.Errorf("dhcp6client: listen: %w", err)
	}

	pc := ipv6.NewPacketConn(conn)
	if err = pc.SetControlMessage(ipv6.FlagInterface, true); err != nil {
		_ = conn.Close()

		return nil, fmt.Errorf("dhcp6client: control message: %w", err)
	}

	dstIP := addr6.AllDHCPServers.As16()

	return &udp6Transport{
		conn: conn,
		pc:   pc,
		ifi:  ifi,
		dst: &net.UDPAddr{
			IP:   net.IP(dstIP[:]),
			Port: ServerPort,
			Zone: netdevName,
		},
	}, nil
}

// Send implements [Transport].
func (t *udp6Transport) Send(payload []byte) (err error) {
	cm := &ipv6.ControlMessage{IfIndex: t.ifi.Index}

	_, err = t.pc.WriteTo(payload, cm, t.dst)
	if err != nil {
		return fmt.Errorf("dhcp6client: send: %w", err)
	}

	return nil
}

// Receive implements [Transport].
func (t *udp6Transport) Receive(ctx context.Context) (payload []byte, err error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = t.conn.SetReadDeadline(deadline)
	} else {
		_ = t.conn.SetReadDeadline(time.Time{})
	}

	buf := make([]byte, 1500)
	n, _, _, err := t.pc.ReadFrom(buf)
	if err != nil {
		return nil, fmt.Errorf("dhcp6client: receive: %w", err)
	}

	return buf[:n], nil
}

// Close implements [Transport].
func (t *udp6Transport) Close() (err error) {
	if err = t.conn.Close(); err != nil {
		return fmt.Errorf("dhcp6client: close: %w", err)
	}

	return nil
}
