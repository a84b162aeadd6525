package ndp6

import (
	"log/slog"
	"net"

	"github.com/AdguardTeam/golibs/errors"

	"github.com/6bringup/stack6/internal/addr6"
	"github.com/6bringup/stack6/internal/icmp6"
	"github.com/6bringup/stack6/internal/iproute6"
)

// Handler errors.
const (
	ErrTooShort errors.Error = "ndp message too short"
	ErrNoPrefix errors.Error = "router advertisement carried no usable prefix"
)

// Fixed header lengths, octets, including the 4-octet ICMPv6 header.
const (
	raFixedLen = 16
	naFixedLen = 24
	nsFixedLen = 24
)

// Router Advertisement flag bits (RFC 4861 §4.2).
const (
	raFlagManaged   = 0x80
	raFlagOtherConf = 0x40
)

// Neighbor Advertisement flag bits (RFC 4861 §4.4), matching gPXE's
// ICMP6_FLAGS_* (original_source/src/include/gpxe/icmp6.h).
const (
	naFlagRouter    = 0x80
	naFlagSolicited = 0x40
	naFlagOverride  = 0x20
)

// Handlers implements the NDP message handlers (C6) and the neighbour
// resolver (C3), bound together because resolving a miss requires
// emitting a Neighbour Solicitation (spec §4.3's "emit one Neighbour
// Solicitation via C6").
type Handlers struct {
	cache   *NeighborCache
	pending *PendingTable
	routes  *iproute6.Table
	netdevs NetdevInfo
	tx      Transport
	log     *slog.Logger
}

// NewHandlers wires a neighbour cache, pending-solicit table, and routing
// table into one NDP handler set.
func NewHandlers(
	cache *NeighborCache,
	pending *PendingTable,
	routes *iproute6.Table,
	netdevs NetdevInfo,
	tx Transport,
	log *slog.Logger,
) (h *Handlers) {
	if log == nil {
		log = slog.Default()
	}

	return &Handlers{
		cache:   cache,
		pending: pending,
		routes:  routes,
		netdevs: netdevs,
		tx:      tx,
		log:     log,
	}
}

// Resolve implements spec §4.3's resolve operation: it returns the
// link-layer bytes for dest if the cache holds a Reachable entry, signals
// [ErrPending] if resolution is already underway, or inserts an
// Incomplete entry and emits one Neighbour Solicitation before signalling
// [ErrPending].
//
// Callers must apply the multicast bypass (spec §4.3) themselves before
// calling Resolve; it is not repeated here since the bypass needs no
// cache lookup at all.
func (h *Handlers) Resolve(netdev string, dest, src addr6.Addr) (ll net.HardwareAddr, err error) {
	if e, ok := h.cache.Find(dest); ok {
		if e.State == NeighborReachable {
			return append(net.HardwareAddr(nil), e.LLAddr...), nil
		}

		return nil, ErrPending
	}

	h.cache.Insert(dest, 6, nil, NeighborIncomplete)
	_ = src

	if sendErr := h.sendNeighborSolicit(netdev, dest); sendErr != nil {
		return nil, sendErr
	}

	return nil, ErrPending
}

// ErrPending is returned by [Handlers.Resolve] when no Reachable entry
// exists yet; this core performs no periodic retries, relying on
// upper-layer retransmission (spec §4.3).
const ErrPending errors.Error = "neighbour resolution pending"

// sendNeighborSolicit implements "Emit NS" (spec §4.6): destination is
// the target's solicited-node multicast group
// ([addr6.SolicitedNodeMulticast]), body is type 135, code 0, reserved,
// target, then a Source-LL option.
func (h *Handlers) sendNeighborSolicit(netdev string, target addr6.Addr) (err error) {
	ll, err := h.netdevs.LinkLayerAddr(netdev)
	if err != nil {
		return err
	}

	msg := make([]byte, nsFixedLen)
	msg[0] = icmp6.TypeNeighborSolicit
	t := target.As16()
	copy(msg[8:24], t[:])

	opts := addr6.EncodeNDPOptions([]addr6.NDPOption{
		addr6.NewLinkLayerOption(addr6.NDPOptSourceLL, ll),
	})
	msg = append(msg, opts...)

	partial := icmp6.Sum(0).Add(msg)
	dst := addr6.SolicitedNodeMulticast(target)

	return h.tx.TransmitICMPv6(netdev, dst, msg, partial)
}

// sendNeighborAdvert implements "Emit NA" (spec §4.6): destination is the
// solicitor's address; body is type 136, flags Solicited|Override, target
// is our address, then a Target-LL option.
func (h *Handlers) sendNeighborAdvert(netdev string, dst, target addr6.Addr) (err error) {
	ll, err := h.netdevs.LinkLayerAddr(netdev)
	if err != nil {
		return err
	}

	msg := make([]byte, naFixedLen)
	msg[0] = icmp6.TypeNeighborAdvert
	msg[4] = naFlagSolicited | naFlagOverride
	t := target.As16()
	copy(msg[8:24], t[:])

	opts := addr6.EncodeNDPOptions([]addr6.NDPOption{
		addr6.NewLinkLayerOption(addr6.NDPOptTargetLL, ll),
	})
	msg = append(msg, opts...)

	partial := icmp6.Sum(0).Add(msg)

	return h.tx.TransmitICMPv6(netdev, dst, msg, partial)
}

// ProcessRA implements spec §4.6's "Process RA".
func (h *Handlers) ProcessRA(netdev string, src addr6.Addr, body []byte) (err error) {
	idx, pending, ok := h.pending.findByNetdev(netdev)
	if !ok {
		h.log.Debug("ndp: unsolicited router advertisement, ignoring", "netdev", netdev)

		return nil
	}

	pending.timer.Stop()

	if len(body) < raFixedLen {
		return ErrTooShort
	}

	flags := body[5]
	if flags&raFlagManaged != 0 {
		pending.code |= RSolicitCodeManaged
	}
	if flags&raFlagOtherConf != 0 {
		pending.code |= RSolicitCodeOtherConf
	}

	opts, err := addr6.DecodeNDPOptions(body[raFixedLen:])
	if err != nil {
		return err
	}

	var (
		sawPrefix   bool
		prefix      addr6.Addr
		prefixLen   int
		canAutoconf bool
		hostAddr    addr6.Addr
	)

	ll, llErr := h.netdevs.LinkLayerAddr(netdev)
	if llErr != nil {
		return llErr
	}

	for _, opt := range opts {
		switch opt.Type {
		case addr6.NDPOptPrefixInfo:
			pi, decOK := opt.PrefixInfo()
			if !decOK {
				continue
			}

			prefixLen = pi.PrefixLength
			if prefixLen%8 != 0 {
				prefixLen += 8 - prefixLen%8
			}
			if prefixLen > 64 {
				h.log.Warn("ndp: prefix length is quite long, connectivity may suffer",
					"netdev", netdev, "prefix_len", prefixLen)
			}

			prefix = pi.Prefix
			hostAddr = addr6.HostAddress(prefix, prefixLen, ll)
			canAutoconf = pi.Autonomous
			sawPrefix = true

		case addr6.NDPOptSourceLL:
			if _, found := h.cache.Find(src); !found {
				h.cache.Insert(src, len(opt.LinkLayerAddr()), opt.LinkLayerAddr(), NeighborReachable)
			}
		}
	}

	if !sawPrefix {
		pending.code = RSolicitCodeNone
		h.completePending(idx, pending, 0, ErrNoPrefix)

		return nil
	}

	if pending.meta != nil {
		pending.meta.Router = src
		pending.meta.Prefix = prefix
		pending.meta.PrefixLen = prefixLen
		pending.meta.NoAddress = !canAutoconf
	}

	if canAutoconf && !h.netdevs.HasAddress(netdev, hostAddr) {
		h.log.Info("ndp: autoconfigured address via router advertisement",
			"netdev", netdev, "address", hostAddr, "prefix_len", prefixLen)
		h.routes.Add(netdev, prefix, prefixLen, hostAddr, src)
	}

	h.completePending(idx, pending, int(pending.code), nil)

	return nil
}

// completePending finishes a pending entry's job exactly once and sets
// its ring slot back to Invalid (spec §4.6 step 8 / §4.4).
func (h *Handlers) completePending(idx uint, e pendingEntry, code int, err error) {
	h.pending.r.update(idx, func(v pendingEntry) pendingEntry {
		v.state = PendingInvalid

		return v
	})

	e.once.Do(func() {
		e.job.Complete(code, err)
	})
}

// ProcessNA implements spec §4.6's "Process NA".
func (h *Handlers) ProcessNA(netdev string, body []byte) (err error) {
	_ = netdev

	if len(body) < naFixedLen+2 {
		return ErrTooShort
	}

	if body[4]&naFlagSolicited == 0 {
		h.log.Debug("ndp: unsolicited neighbour advertisement, ignoring")

		return nil
	}

	var target [16]byte
	copy(target[:], body[8:24])
	targetAddr := addr6.AddrFromBytes(target[:])

	if _, found := h.cache.Find(targetAddr); !found {
		h.log.Debug("ndp: advertisement for unknown target, dropping")

		return nil
	}

	opts, err := addr6.DecodeNDPOptions(body[naFixedLen:])
	if err != nil {
		return err
	}

	for _, opt := range opts {
		if opt.Type != addr6.NDPOptTargetLL {
			continue
		}

		h.cache.promoteReachable(targetAddr, opt.LinkLayerAddr())

		break
	}

	return nil
}

// ProcessNS implements spec §4.6's "Process NS".
func (h *Handlers) ProcessNS(netdev string, src, dst addr6.Addr, body []byte) (err error) {
	_ = dst

	if len(body) < nsFixedLen {
		return ErrTooShort
	}

	var target [16]byte
	copy(target[:], body[8:24])
	targetAddr := addr6.AddrFromBytes(target[:])

	if !h.netdevs.HasAddress(netdev, targetAddr) {
		h.log.Debug("ndp: neighbour solicit received but it's not for us", "netdev", netdev)

		return nil
	}

	h.log.Debug("ndp: neighbour solicit received for us", "netdev", netdev)

	return h.sendNeighborAdvert(netdev, src, targetAddr)
}
