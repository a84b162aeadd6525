package ndp6

import (
	"net"
	"sync"
	"time"

	"github.com/AdguardTeam/golibs/timeutil"

	"github.com/6bringup/stack6/internal/addr6"
	"github.com/6bringup/stack6/internal/icmp6"
	"github.com/6bringup/stack6/internal/job"
)

// rsolicitTimeout is the fixed, non-retransmitting router-solicit timeout
// (spec §4.4), matching gPXE's TICKS_PER_SEC * 6
// (original_source/src/net/ndp.c).
const rsolicitTimeout = 6 * time.Second

// PendingState is the state of one [pendingEntry], per spec §3.
type PendingState uint8

// PendingState values.
const (
	PendingInvalid PendingState = iota
	PendingAlmost
	PendingPending
	PendingComplete
)

// RSolicitCode is the status-code bitset a Router Advertisement's flags
// accumulate into a pending entry, per spec §4.6 step 3.
type RSolicitCode uint8

// RSolicitCode bits.
const (
	RSolicitCodeNone      RSolicitCode = 0
	RSolicitCodeManaged   RSolicitCode = 1 << 0
	RSolicitCodeOtherConf RSolicitCode = 1 << 1
)

// RSolicitInfo is the optional result descriptor a caller of
// [PendingTable.SendRouterSolicit] may ask to have filled in when the
// matching advertisement arrives (spec §3's "optional result
// descriptor").
type RSolicitInfo struct {
	Router    addr6.Addr
	Prefix    addr6.Addr
	PrefixLen int
	NoAddress bool
}

// pendingEntry is one row of the pending router-solicit table.
type pendingEntry struct {
	netdev string
	state  PendingState
	code   RSolicitCode
	job    *job.Job
	meta   *RSolicitInfo
	timer  *job.Timer

	// once guards against completing job twice: both the timer/kill
	// path and a successful ProcessRA may race to finish it.
	once *sync.Once
}

// PendingTable is the fixed-size ring of pending router solicitations
// (C4), grounded on gPXE's solicit_table
// (original_source/src/net/ndp.c).
type PendingTable struct {
	r         *ring[pendingEntry]
	transport Transport
	netdevs   NetdevInfo
	clock     timeutil.Clock
}

// NewPendingTable returns a table with n slots (raised to the package
// minimum if smaller). A nil clock uses [timeutil.SystemClock].
func NewPendingTable(n int, t Transport, nd NetdevInfo, clock timeutil.Clock) (pt *PendingTable) {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}

	return &PendingTable{
		r:         newRing[pendingEntry](n),
		transport: t,
		netdevs:   nd,
		clock:     clock,
	}
}

// SendRouterSolicit builds and transmits an ICMPv6 Router Solicitation
// over netdev, registers a pending entry tracking it, and arms j to
// complete when the matching advertisement arrives or the fixed timeout
// elapses. meta, if non-nil, is filled in by [Handlers.ProcessRA] once
// the advertisement is processed.
func (pt *PendingTable) SendRouterSolicit(netdev string, j *job.Job, meta *RSolicitInfo) (err error) {
	ll, err := pt.netdevs.LinkLayerAddr(netdev)
	if err != nil {
		return err
	}

	msg := buildRouterSolicit(ll)
	partial := icmp6.Sum(0).Add(msg)

	e := pendingEntry{
		netdev: netdev,
		state:  PendingAlmost,
		code:   RSolicitCodeNone,
		job:    j,
		meta:   meta,
		timer:  job.NewTimer(pt.clock),
		once:   &sync.Once{},
	}
	idx := pt.r.insert(e)

	j.OnKill(func() { pt.killEntry(idx) })
	e.timer.Reset(rsolicitTimeout, func() { j.Kill() })

	if err = pt.transport.TransmitICMPv6(netdev, addr6.AllRouters, msg, partial); err != nil {
		pt.killEntry(idx)

		return err
	}

	pt.r.update(idx, func(v pendingEntry) pendingEntry {
		v.state = PendingPending

		return v
	})

	return nil
}

// killEntry implements the kill path of spec §4.4.2: stop the timer,
// clear the code, invalidate the entry, and complete its job with
// [job.ErrCanceled] — but only once, since this may race with a
// successful completion from [Handlers.ProcessRA].
func (pt *PendingTable) killEntry(idx uint) {
	e := pt.r.at(idx)

	e.timer.Stop()

	pt.r.update(idx, func(v pendingEntry) pendingEntry {
		v.code = RSolicitCodeNone
		v.state = PendingInvalid

		return v
	})

	e.once.Do(func() {
		e.job.Complete(0, job.ErrCanceled)
	})
}

// findByNetdev performs the linear scan described in spec §4.4's
// "Find-by-netdev": only a Pending entry for netdev is returned, so RAs
// without a matching pending solicit are ignored by callers.
func (pt *PendingTable) findByNetdev(netdev string) (idx uint, e pendingEntry, ok bool) {
	idx, found := pt.r.find(func(v pendingEntry) bool {
		return v.netdev == netdev && v.state == PendingPending
	})
	if !found {
		return 0, pendingEntry{}, false
	}

	return idx, pt.r.at(idx), true
}

// buildRouterSolicit constructs an ICMPv6 Router Solicitation (type 133,
// code 0, 4 reserved octets) carrying a Source-LL option, with its
// checksum field zeroed ready for [icmp6.Sum] accumulation.
func buildRouterSolicit(ll net.HardwareAddr) (msg []byte) {
	msg = make([]byte, 8)
	msg[0] = icmp6.TypeRouterSolicit

	opts := addr6.EncodeNDPOptions([]addr6.NDPOption{
		addr6.NewLinkLayerOption(addr6.NDPOptSourceLL, ll),
	})

	return append(msg, opts...)
}
