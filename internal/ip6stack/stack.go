// Package ip6stack implements the IPv6 TX/RX layer and the
// autoconfiguration orchestrator (C7, spec §4.7/§4.9): it owns one open
// [netdev.Device] per interface, prepends/strips the 40-octet IPv6
// header, demultiplexes inbound traffic to the ICMPv6 dispatcher, and
// ties the neighbour cache, pending-solicit table, NDP handlers and
// routing table into the one object the rest of this core talks to.
package ip6stack

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/AdguardTeam/golibs/timeutil"

	"github.com/6bringup/stack6/internal/addr6"
	"github.com/6bringup/stack6/internal/icmp6"
	"github.com/6bringup/stack6/internal/iproute6"
	"github.com/6bringup/stack6/internal/ndp6"
	"github.com/6bringup/stack6/internal/netdev"
	"github.com/6bringup/stack6/internal/stack6log"
)

// Table sizes for the neighbour cache and pending-solicit ring, large
// enough for a handful of concurrently bringing-up interfaces without
// being unbounded.
const (
	neighborCacheSize = 32
	pendingTableSize  = 8
)

// Stack is the IPv6 bring-up core's TX/RX engine.
type Stack struct {
	manager netdev.Manager
	log     *slog.Logger

	routes  *iproute6.Table
	cache   *ndp6.NeighborCache
	pending *ndp6.PendingTable
	ndp     *ndp6.Handlers
	icmp    *icmp6.Dispatcher

	mu      sync.RWMutex
	devices map[string]netdev.Device
	cancel  map[string]context.CancelFunc
}

// type checks: Stack must satisfy the small consumer interfaces declared
// by internal/ndp6 and internal/icmp6, so those leaf packages never
// import internal/ip6stack.
var (
	_ ndp6.Transport   = (*Stack)(nil)
	_ ndp6.NetdevInfo  = (*Stack)(nil)
	_ icmp6.Transport  = (*Stack)(nil)
	_ icmp6.NDPHandler = (*ndp6.Handlers)(nil)
)

// NewStack wires a routing table, neighbour cache, pending-solicit table
// and NDP/ICMPv6 handlers into one TX/RX engine. clock is injected into
// the pending-solicit table's retransmission timers; a nil clock uses
// [timeutil.SystemClock].
func NewStack(manager netdev.Manager, clock timeutil.Clock, log *slog.Logger) (s *Stack) {
	if log == nil {
		log = slog.Default()
	}

	s = &Stack{
		manager: manager,
		log:     log,
		routes:  iproute6.NewTable(),
		devices: map[string]netdev.Device{},
		cancel:  map[string]context.CancelFunc{},
	}

	s.cache = ndp6.NewNeighborCache(neighborCacheSize)
	s.pending = ndp6.NewPendingTable(pendingTableSize, s, s, clock)
	s.ndp = ndp6.NewHandlers(s.cache, s.pending, s.routes, s, s, log)
	s.icmp = icmp6.NewDispatcher(s, s.ndp)

	return s
}

// Routes returns the routing table backing s, for the DHCPv6 client
// (internal/dhcp6client) and CLI layer to query/add routes directly.
func (s *Stack) Routes() (t *iproute6.Table) { return s.routes }

// PendingSolicits returns the pending router-solicit table backing s.
func (s *Stack) PendingSolicits() (pt *ndp6.PendingTable) { return s.pending }

// Open opens netdevName via s's [netdev.Manager] and starts its receive
// loop. Calling Open twice for the same interface closes the previous
// device first.
func (s *Stack) Open(ctx context.Context, netdevName string) (err error) {
	dev, err := s.manager.Open(ctx, &netdev.Config{Name: netdevName})
	if err != nil {
		return fmt.Errorf("ip6stack: opening %q: %w", netdevName, err)
	}

	rxCtx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	if old, ok := s.devices[netdevName]; ok {
		s.cancel[netdevName]()
		_ = old.Close()
	}
	s.devices[netdevName] = dev
	s.cancel[netdevName] = cancel
	s.mu.Unlock()

	go s.receiveLoop(rxCtx, netdevName, dev)

	return nil
}

// Close closes netdevName's device, stops its receive loop, and removes
// its routing-table entry.
func (s *Stack) Close(netdevName string) (err error) {
	s.mu.Lock()
	dev, ok := s.devices[netdevName]
	if ok {
		s.cancel[netdevName]()
		delete(s.devices, netdevName)
		delete(s.cancel, netdevName)
	}
	s.mu.Unlock()

	s.routes.RemoveByNetdev(netdevName)

	if !ok {
		return nil
	}

	return dev.Close()
}

func (s *Stack) device(netdevName string) (dev netdev.Device, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dev, ok = s.devices[netdevName]

	return dev, ok
}

// receiveLoop reads Ethernet frames from dev until ctx is done, handing
// IPv6 payloads to [Stack.RX].
func (s *Stack) receiveLoop(ctx context.Context, netdevName string, dev netdev.Device) {
	defer stack6log.Recover(ctx, s.log)

	for {
		frame, err := dev.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}

			s.log.Debug("ip6stack: reading frame", "netdev", netdevName, "err", err)

			continue
		}

		payload, ok := stripEthernetIPv6(frame)
		if !ok {
			continue
		}

		if rxErr := s.RX(netdevName, payload); rxErr != nil {
			s.log.Debug("ip6stack: rx", "netdev", netdevName, "err", rxErr)
		}
	}
}

// LinkLayerAddr implements [ndp6.NetdevInfo] for *Stack.
func (s *Stack) LinkLayerAddr(netdevName string) (ll net.HardwareAddr, err error) {
	dev, ok := s.device(netdevName)
	if !ok {
		return nil, fmt.Errorf("ip6stack: netdev %q not open", netdevName)
	}

	return dev.HardwareAddr(), nil
}

// HasAddress implements [ndp6.NetdevInfo] for *Stack: addr "belongs" to
// netdevName if it is that netdev's currently installed routing-table
// source address (spec §4.6 step 7's "probed via net_protocol.check").
func (s *Stack) HasAddress(netdevName string, addr addr6.Addr) (ok bool) {
	local, found := s.routes.NetdevAddr(netdevName)

	return found && local.Equal(addr)
}
