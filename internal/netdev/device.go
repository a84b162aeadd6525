// Package netdev provides the link-layer device abstraction the IPv6
// bring-up core reads frames from and writes frames to, generalised from
// the teacher's own platform split so the rest of this module never
// touches a raw socket directly.
package netdev

import (
	"context"
	"fmt"
	"net"
	"net/netip"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/validate"
	"github.com/mdlayher/ethernet"
	"github.com/mdlayher/packet"
	"golang.org/x/sys/unix"
)

// frameBufSize is large enough for any standard Ethernet frame; jumbo
// frames aren't a concern for the NDP/ICMPv6/DHCPv6 traffic this core
// exchanges.
const frameBufSize = 1536

// Config is the configuration for one network device.
type Config struct {
	// Name is the interface name on the host, e.g. "eth0".
	Name string
}

// Validate implements the [validate.Interface] interface for *Config.
func (conf *Config) Validate() (err error) {
	if conf == nil {
		return errors.ErrNoValue
	}

	return validate.NotEmpty("Name", conf.Name)
}

// Device reads and writes Ethernet frames carrying IPv6 traffic on one
// interface, and reports that interface's own addresses. It generalises
// the teacher's gopacket-based [NetworkDevice] to the raw
// read-frame/write-frame shape this core's hand-rolled IPv6/ICMPv6/NDP
// codecs need, instead of decoding through gopacket layers.
type Device interface {
	// ReadFrame blocks until one Ethernet frame arrives or ctx is done.
	ReadFrame(ctx context.Context) (frame []byte, err error)

	// WriteFrame transmits a complete Ethernet frame.
	WriteFrame(frame []byte) (err error)

	// HardwareAddr returns the device's own link-layer address.
	HardwareAddr() (ll net.HardwareAddr)

	// Addresses returns the IPv6 addresses currently configured on the
	// device (the kernel's view, used by [EmptyDevice] and tests; the
	// live Device asks [iproute6.Table] instead via ip6stack's
	// NetdevInfo adapter).
	Addresses() (addrs []netip.Addr)

	// Close releases the underlying socket. No method may be called
	// after Close.
	Close() (err error)

	// LinkUp reports whether the device currently has carrier, used by
	// the autoconfiguration orchestrator's link-wait step.
	LinkUp() (up bool)
}

// Manager opens [Device]s by name.
type Manager interface {
	Open(ctx context.Context, conf *Config) (dev Device, err error)
}

// EmptyManager is a [Manager] that always opens [EmptyDevice], useful in
// tests and as a default before a real device is wired in — adapted from
// [dhcpsvc]'s EmptyNetworkDeviceManager pattern.
type EmptyManager struct{}

// Open implements the [Manager] interface for [EmptyManager].
func (EmptyManager) Open(_ context.Context, _ *Config) (dev Device, err error) {
	return EmptyDevice{}, nil
}

// EmptyDevice is a no-op [Device], adapted from [dhcpsvc]'s
// EmptyNetworkDevice.
type EmptyDevice struct{}

// ReadFrame implements the [Device] interface for [EmptyDevice]. It
// always blocks until ctx is done.
func (EmptyDevice) ReadFrame(ctx context.Context) (frame []byte, err error) {
	<-ctx.Done()

	return nil, ctx.Err()
}

// WriteFrame implements the [Device] interface for [EmptyDevice]. It
// always returns nil.
func (EmptyDevice) WriteFrame(_ []byte) (err error) { return nil }

// HardwareAddr implements the [Device] interface for [EmptyDevice]. It
// always returns nil.
func (EmptyDevice) HardwareAddr() (ll net.HardwareAddr) { return nil }

// Addresses implements the [Device] interface for [EmptyDevice]. It
// always returns nil.
func (EmptyDevice) Addresses() (addrs []netip.Addr) { return nil }

// Close implements the [Device] interface for [EmptyDevice]. It always
// returns nil.
func (EmptyDevice) Close() (err error) { return nil }

// LinkUp implements the [Device] interface for [EmptyDevice]. It always
// returns true.
func (EmptyDevice) LinkUp() (up bool) { return true }

// packetDevice is the real [Device], backed by a Linux AF_PACKET socket
// via [packet.Listen] bound to EtherType IPv6. It reads and writes whole
// Ethernet frames; building and parsing them is left to the caller.
type packetDevice struct {
	iface *net.Interface
	conn  *packet.Conn
}

// type check
var _ Device = (*packetDevice)(nil)

// packetManager opens [packetDevice]s.
type packetManager struct{}

// NewManager returns the [Manager] that opens real Linux AF_PACKET
// devices.
func NewManager() (m Manager) { return packetManager{} }

// Open implements the [Manager] interface for packetManager.
func (packetManager) Open(_ context.Context, conf *Config) (dev Device, err error) {
	if err = conf.Validate(); err != nil {
		return nil, fmt.Errorf("validating netdev config: %w", err)
	}

	iface, err := net.InterfaceByName(conf.Name)
	if err != nil {
		return nil, fmt.Errorf("looking up interface %q: %w", conf.Name, err)
	}

	conn, err := packet.Listen(iface, packet.Raw, int(ethernet.EtherTypeIPv6), nil)
	if err != nil {
		return nil, fmt.Errorf("opening packet socket on %q: %w", conf.Name, err)
	}

	return &packetDevice{iface: iface, conn: conn}, nil
}

// ReadFrame implements the [Device] interface for *packetDevice.
func (d *packetDevice) ReadFrame(ctx context.Context) (frame []byte, err error) {
	if dl, ok := ctx.Deadline(); ok {
		_ = d.conn.SetReadDeadline(dl)
	}

	buf := make([]byte, frameBufSize)
	n, _, err := d.conn.ReadFrom(buf)
	if err != nil {
		return nil, err
	}

	return buf[:n], nil
}

// WriteFrame implements the [Device] interface for *packetDevice.
func (d *packetDevice) WriteFrame(frame []byte) (err error) {
	_, err = d.conn.WriteTo(frame, &packet.Addr{HardwareAddr: d.iface.HardwareAddr})

	return err
}

// HardwareAddr implements the [Device] interface for *packetDevice.
func (d *packetDevice) HardwareAddr() (ll net.HardwareAddr) { return d.iface.HardwareAddr }

// Addresses implements the [Device] interface for *packetDevice.
func (d *packetDevice) Addresses() (addrs []netip.Addr) {
	iaddrs, err := d.iface.Addrs()
	if err != nil {
		return nil
	}

	for _, ia := range iaddrs {
		if ipNet, ok := ia.(*net.IPNet); ok {
			if a, ok := netip.AddrFromSlice(ipNet.IP); ok {
				addrs = append(addrs, a.Unmap())
			}
		}
	}

	return addrs
}

// Close implements the [Device] interface for *packetDevice.
func (d *packetDevice) Close() (err error) { return d.conn.Close() }

// LinkUp implements the [Device] interface for *packetDevice. The
// orchestrator's link-wait step (spec §4.9 LINK_WAIT_MS) needs physical
// carrier, not administrative state, so this reads IFF_RUNNING via a
// SIOCGIFFLAGS ioctl rather than [net.Interface.Flags]'s FlagUp, which
// only reflects whether the interface has been brought up, not whether a
// cable is plugged in or a peer is associated.
func (d *packetDevice) LinkUp() (up bool) {
	running, err := ifaceRunning(d.iface.Name)
	if err != nil {
		return false
	}

	return running
}

// ifaceRunning reports whether name currently has carrier (IFF_RUNNING),
// queried the same way ethtool/ip-link do: a SIOCGIFFLAGS ioctl over an
// ephemeral AF_INET socket.
func ifaceRunning(name string) (running bool, err error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, 0)
	if err != nil {
		return false, fmt.Errorf("opening ioctl socket: %w", err)
	}
	defer func() { _ = unix.Close(fd) }()

	var ifr unix.IfreqFlags
	copy(ifr.Name[:], name)

	if err = unix.IoctlIfreqFlags(fd, unix.SIOCGIFFLAGS, &ifr); err != nil {
		return false, fmt.Errorf("SIOCGIFFLAGS on %q: %w", name, err)
	}

	return ifr.Flags&unix.IFF_RUNNING != 0, nil
}
