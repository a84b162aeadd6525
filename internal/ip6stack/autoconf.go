package ip6stack

import (
	"context"
	"fmt"
	"time"

	"github.com/AdguardTeam/golibs/errors"

	"github.com/6bringup/stack6/internal/addr6"
	"github.com/6bringup/stack6/internal/job"
	"github.com/6bringup/stack6/internal/ndp6"
	"github.com/6bringup/stack6/internal/netdev"
)

// linkWaitTimeout is spec §4.9 step 1's LINK_WAIT_MS.
const linkWaitTimeout = 15 * time.Second

// linkWaitPoll is how often Autoconf re-checks carrier while waiting.
const linkWaitPoll = 100 * time.Millisecond

// dadProbeTimeout is the single retry window within which a solicited NA
// answering a DAD probe is treated as a collision, per RFC 4862 §5.4 as
// supplemented into this core (see DESIGN.md).
var dadProbeTimeout = time.Second

// slaacPrefixLen is the prefix length of the link-local route installed
// in step 2 of spec §4.9.
const slaacPrefixLen = 64

// ErrAddressInUse is returned by [Stack.Autoconf] when its single DAD
// probe sees a solicited Neighbor Advertisement for the tentative
// link-local address, indicating another host already holds it.
const ErrAddressInUse errors.Error = "ip6stack: tentative address already in use"

// ErrLinkTimeout is returned by [Stack.Autoconf] when the interface never
// reports carrier within linkWaitTimeout.
const ErrLinkTimeout errors.Error = "ip6stack: timed out waiting for link"

// DHCPv6Runner is the minimal surface [Stack.Autoconf] needs from the
// DHCPv6 client (internal/dhcp6client) to run the fallback/supplementary
// exchange spec §4.9 steps 4-5 describe. Declaring it here, rather than
// importing internal/dhcp6client, keeps dhcp6client free to import
// ip6stack's public types (Routes, RSolicitInfo) without a cycle.
type DHCPv6Runner interface {
	// RunFull runs a Solicit→Request exchange (or Solicit alone if
	// rapid-commit is offered), per spec §4.8's Solicit/Request states.
	RunFull(ctx context.Context, netdevName string, meta *ndp6.RSolicitInfo) (code int, err error)

	// RunInfoRequest runs an Information-Request-only exchange, per
	// spec §4.8's InfoReq state.
	RunInfoRequest(ctx context.Context, netdevName string) (code int, err error)
}

// AutoconfOptions configures one [Stack.Autoconf] call.
type AutoconfOptions struct {
	// SkipDAD disables the single-probe Duplicate Address Detection
	// step for the chosen link-local address. DAD runs by default
	// (the zero value enables it).
	SkipDAD bool

	// DHCP is consulted when the Router Advertisement's Managed or
	// OtherConf flag is set. A nil DHCP skips the DHCPv6 fallback
	// entirely — RS failure and RS-Managed then both report
	// [ndp6.ErrPending] rather than silently succeeding.
	DHCP DHCPv6Runner
}

// Autoconf implements spec §4.9's ip6_autoconf entry point: open the
// interface, wait for carrier, form and install the link-local address,
// optionally run one DAD probe, send a Router Solicitation, and run
// DHCPv6 according to the advertisement's flags (or as a fallback if the
// solicitation itself fails).
func (s *Stack) Autoconf(ctx context.Context, netdevName string, opts AutoconfOptions) (code int, err error) {
	if err = s.Open(ctx, netdevName); err != nil {
		return 0, err
	}

	dev, _ := s.device(netdevName)

	if err = s.waitForLink(ctx, dev); err != nil {
		return 0, err
	}

	ll := dev.HardwareAddr()
	linkLocal := addr6.LinkLocal(ll)

	// The tentative address is installed before probing it: the TX path
	// needs a routing-table entry for netdevName to pick a source address
	// and netdev for the probe's own Neighbor Solicitation.
	s.routes.Add(netdevName, linkLocal, slaacPrefixLen, linkLocal, addr6.Addr{})

	if !opts.SkipDAD {
		collision, dadErr := s.probeDAD(ctx, netdevName, linkLocal)
		if dadErr != nil {
			s.routes.RemoveByNetdev(netdevName)

			return 0, dadErr
		}
		if collision {
			s.routes.RemoveByNetdev(netdevName)

			return 0, fmt.Errorf("%w: %s", ErrAddressInUse, linkLocal)
		}
	}

	meta := &ndp6.RSolicitInfo{}
	j := job.New()
	if err = s.pending.SendRouterSolicit(netdevName, j, meta); err != nil {
		return s.runDHCPFallback(ctx, netdevName, opts)
	}

	rsCode, rsErr := job.Wait(ctx, j)
	if rsErr != nil {
		s.log.Debug("ip6stack: router solicit failed, falling back to dhcpv6",
			"netdev", netdevName, "err", rsErr)

		return s.runDHCPFallback(ctx, netdevName, opts)
	}

	switch rsc := ndp6.RSolicitCode(rsCode); {
	case rsc&ndp6.RSolicitCodeManaged != 0:
		if opts.DHCP == nil {
			return rsCode, ndp6.ErrPending
		}

		return opts.DHCP.RunFull(ctx, netdevName, meta)

	case rsc&ndp6.RSolicitCodeOtherConf != 0:
		if opts.DHCP == nil {
			return rsCode, ndp6.ErrPending
		}

		return opts.DHCP.RunInfoRequest(ctx, netdevName)

	default:
		return rsCode, nil
	}
}

// runDHCPFallback implements spec §4.9 step 4's "On RS failure: fall back
// to DHCPv6 full exchange."
func (s *Stack) runDHCPFallback(ctx context.Context, netdevName string, opts AutoconfOptions) (code int, err error) {
	if opts.DHCP == nil {
		return 0, ndp6.ErrPending
	}

	return opts.DHCP.RunFull(ctx, netdevName, nil)
}

// waitForLink polls dev.LinkUp until it reports true or linkWaitTimeout
// elapses, per spec §4.9 step 1.
func (s *Stack) waitForLink(ctx context.Context, dev netdev.Device) (err error) {
	deadline := time.Now().Add(linkWaitTimeout)

	for {
		if dev.LinkUp() {
			return nil
		}

		if time.Now().After(deadline) {
			return ErrLinkTimeout
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(linkWaitPoll):
		}
	}
}

// probeDAD sends a single Neighbor Solicitation for tentative (reusing
// the neighbour-resolution machinery in internal/ndp6, per RFC 4862 §5.4
// as supplemented into this core — see DESIGN.md) and reports whether a
// solicited Neighbor Advertisement answered it within one retry window.
func (s *Stack) probeDAD(ctx context.Context, netdevName string, tentative addr6.Addr) (collision bool, err error) {
	_, err = s.ndp.Resolve(netdevName, tentative, tentative)
	if err != nil && !errors.Is(err, ndp6.ErrPending) {
		return false, err
	}

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-time.After(dadProbeTimeout):
	}

	entry, found := s.cache.Find(tentative)

	return found && entry.State == ndp6.NeighborReachable, nil
}
