// Package dhcp6client implements the DHCPv6 client state machine (C8,
// spec §4.8): Solicit/Request/InfoReq, transaction-ID derivation, and the
// option-handling rules governing what gets written to the settings store.
package dhcp6client

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/netutil"
	"github.com/insomniacslk/dhcp/dhcpv6"

	"github.com/6bringup/stack6/internal/addr6"
	"github.com/6bringup/stack6/internal/ip6stack"
	"github.com/6bringup/stack6/internal/iproute6"
	"github.com/6bringup/stack6/internal/job"
	"github.com/6bringup/stack6/internal/ndp6"
	"github.com/6bringup/stack6/internal/settings"
	"github.com/6bringup/stack6/internal/stack6log"
)

// Client implements [ip6stack.DHCPv6Runner].
var _ ip6stack.DHCPv6Runner = (*Client)(nil)

// Error taxonomy (spec §7), the subset this package can actually produce.
const (
	// ErrInvalid is returned when a message fails to parse or carries a
	// malformed option, per spec §4.8's "malformed option during parse →
	// session abort with Invalid".
	ErrInvalid errors.Error = "dhcp6client: invalid message"

	// ErrTimedOut is returned when the retry timer exhausts its attempts
	// with no usable reply.
	ErrTimedOut errors.Error = "dhcp6client: timed out"
)

// maxRetries bounds the number of retransmissions before a session gives
// up with [ErrTimedOut]. original_source's retry_timer has no fixed
// attempt count (it runs until max_timeout is reached and then signals
// "fail"); this core picks a small fixed count instead, since a
// doubling backoff from 1s to 32s already spans the realistic window a
// DHCPv6 server would need to answer.
const maxRetries = 5

// dialTransport is replaced in tests to avoid opening a real socket.
var dialTransport = func(netdevName string) (Transport, error) {
	return newUDP6Transport(netdevName)
}

// Client is the process-wide collaborator satisfying
// [ip6stack.DHCPv6Runner]; it owns the dependencies every per-interface
// [Session] needs and opens a fresh Session for each run, mirroring
// original_source's start_dhcp6 allocating a new dhcp6_session per
// invocation.
type Client struct {
	routes *iproute6.Table
	store  *settings.Store
	log    *slog.Logger
}

// NewClient returns a Client writing resolved settings to store and
// routes, logging via log.
func NewClient(routes *iproute6.Table, store *settings.Store, log *slog.Logger) (c *Client) {
	if log == nil {
		log = slog.Default()
	}

	return &Client{routes: routes, store: store, log: log}
}

// RunFull runs a Solicit→Request exchange (or Solicit alone, if the
// server offers rapid-commit), implementing [ip6stack.DHCPv6Runner].
func (c *Client) RunFull(ctx context.Context, netdevName string, meta *ndp6.RSolicitInfo) (code int, err error) {
	return c.run(ctx, netdevName, StateSolicit, meta)
}

// RunInfoRequest runs an Information-Request-only exchange, implementing
// [ip6stack.DHCPv6Runner].
func (c *Client) RunInfoRequest(ctx context.Context, netdevName string) (code int, err error) {
	return c.run(ctx, netdevName, StateInforeq, nil)
}

// run opens a transport, builds a [Session] in the given entry state, and
// waits for it to complete, per spec §4.9 step 5's "wait synchronously
// for its job to complete; propagate its return code."
func (c *Client) run(ctx context.Context, netdevName string, entry State, meta *ndp6.RSolicitInfo) (code int, err error) {
	ifi, err := net.InterfaceByName(netdevName)
	if err != nil {
		return 0, fmt.Errorf("dhcp6client: %w", err)
	}

	transport, err := dialTransport(netdevName)
	if err != nil {
		return 0, err
	}

	local, _ := c.routes.NetdevAddr(netdevName)

	sess := newSession(netdevName, ifi.HardwareAddr, local, transport, c.routes, c.store, c.log, meta)
	sess.state = entry

	return sess.run(ctx)
}

// Session runs one DHCPv6 transaction to completion. Its mutable fields
// are touched from two goroutines — the retry timer's callback and the
// receive loop — so access to all of them below mu is serialised through
// mu, mirroring the single-threaded semantics spec §5 describes even
// though this core doesn't have gPXE's literal single-threaded scheduler.
type Session struct {
	netdevName string
	localAddr  addr6.Addr
	hwAddr     net.HardwareAddr

	transport Transport
	timer     *job.Timer
	j         *job.Job

	routes *iproute6.Table
	store  *settings.Store
	log    *slog.Logger

	clientDUID dhcpv6.Duid

	mu sync.Mutex

	serverDUID *dhcpv6.Duid
	xid        dhcpv6.TransactionID
	advertise  *dhcpv6.Message

	state      State
	retransmit time.Duration
	retries    int

	offeredAddr addr6.Addr

	meta *ndp6.RSolicitInfo

	searchDomains []string

	finishOnce sync.Once
}

// newSession builds a Session bound to one netdev/transport pair. local
// is the client's own link-local address (already installed by SLAAC
// bring-up before DHCPv6 ever runs), used as the Solicit state's
// IAADDR(addr=local) hint per spec §4.8's packet layout table.
func newSession(
	netdevName string,
	ll net.HardwareAddr,
	local addr6.Addr,
	transport Transport,
	routes *iproute6.Table,
	store *settings.Store,
	log *slog.Logger,
	meta *ndp6.RSolicitInfo,
) (sess *Session) {
	return &Session{
		netdevName: netdevName,
		localAddr:  local,
		hwAddr:     ll,
		transport:  transport,
		timer:      job.NewTimer(nil),
		j:          job.New(),
		routes:     routes,
		store:      store,
		log:        log,
		clientDUID: dhcpv6.Duid{
			Type:          dhcpv6.DUID_LL,
			HwType:        hardwareTypeEthernet,
			LinkLayerAddr: ll,
		},
		xid:  xid(ll),
		meta: meta,
	}
}

// SearchDomains returns the DNS search domains the server sent, if any
// (spec §4.8's DNS_DOMAINS supplement — see DESIGN.md). It is only
// meaningful after run has returned successfully.
func (sess *Session) SearchDomains() (domains []string) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	return sess.searchDomains
}

// run drives the session to completion: it starts the receive loop,
// enters sess.state (which sends the first message immediately, per
// set_state's "start the timer with no delay"), and blocks on the job,
// which is the sole suspension point this package exposes (spec §5).
func (sess *Session) run(ctx context.Context) (code int, err error) {
	defer func() { _ = sess.transport.Close() }()

	rxCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go sess.receiveLoop(rxCtx)

	sess.mu.Lock()
	sess.enterState(sess.state)
	sess.mu.Unlock()

	code, err = job.Wait(ctx, sess.j)
	sess.timer.Stop()

	return code, err
}

// receiveLoop reads datagrams until ctx is done or the transport closes,
// dispatching each to handleMessage. Per spec §5's reentrancy rule, this
// callback never calls job.Wait itself.
func (sess *Session) receiveLoop(ctx context.Context) {
	defer stack6log.Recover(ctx, sess.log)

	for {
		payload, err := sess.transport.Receive(ctx)
		if err != nil {
			return
		}

		sess.handleMessage(payload)
	}
}

// enterState implements set_state: stop the timer, reset the backoff,
// and start the timer with no delay so the first transmission runs
// promptly (spec §4.8 "State transition rules").
func (sess *Session) enterState(s State) {
	sess.state = s
	sess.retransmit = 0
	sess.retries = 0

	sess.fireTimer()
}

// fireTimer transmits the current state's message and arms the retry
// timer for the next attempt.
func (sess *Session) fireTimer() {
	info := stateTable[sess.state]

	if err := sess.transmit(info); err != nil {
		sess.finish(0, err)

		return
	}

	sess.retransmit = nextRetransmit(sess.retransmit)
	sess.timer.Reset(sess.retransmit, sess.onTimerExpired)
}

// onTimerExpired is the retry-timer callback: it either retransmits or,
// past maxRetries, finishes the session with [ErrTimedOut]. It runs on
// the timer's own goroutine, so it takes sess.mu itself rather than
// relying on a caller.
func (sess *Session) onTimerExpired() {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	sess.retries++
	if sess.retries > maxRetries {
		sess.log.Debug("dhcp6client: giving up, no reply",
			"netdev", sess.netdevName, "state", sess.state, "retries", sess.retries)
		sess.finish(0, ErrTimedOut)

		return
	}

	sess.log.Debug("dhcp6client: retransmitting",
		"netdev", sess.netdevName, "state", sess.state, "retry", sess.retries)
	sess.fireTimer()
}

// transmit builds and sends the message for the current state, via
// insomniacslk/dhcp's dhcpv6.Message builders in place of this core's
// former hand-rolled framing (see DESIGN.md).
func (sess *Session) transmit(info stateInfo) (err error) {
	msg, err := sess.buildMessage(info)
	if err != nil {
		return fmt.Errorf("dhcp6client: build %s: %w", info.txMsgType, err)
	}

	// xid is this session's fixed, deterministic transaction ID (spec
	// §4.8 "Transaction ID"); overwrite whatever the builder generated.
	msg.TransactionID = sess.xid

	return sess.transport.Send(msg.ToBytes())
}

// buildMessage assembles the message for the current state, per spec
// §4.8's per-state table of CLIENTID/ORO/IA_NA/SERVERID options.
func (sess *Session) buildMessage(info stateInfo) (msg *dhcpv6.Message, err error) {
	switch sess.state {
	case StateSolicit:
		msg, err = dhcpv6.NewSolicit(sess.hwAddr,
			dhcpv6.WithClientID(sess.clientDUID),
			dhcpv6.WithRequestedOptions(requestedOptions...),
		)
		if err != nil {
			return nil, err
		}

		msg.AddOption(buildIANA(sess.localAddr))
		if info.rapidCommit {
			msg.AddOption(rapidCommitOption)
		}
	case StateRequest:
		// sess.advertise is set by handleSolicitRX before enterState
		// transitions here; NewRequestFromAdvertise carries the
		// server's SERVERID over from it, per RFC 3315 §18.1.1.
		msg, err = dhcpv6.NewRequestFromAdvertise(sess.advertise, dhcpv6.WithClientID(sess.clientDUID))
		if err != nil {
			return nil, err
		}

		msg.AddOption(buildIANA(sess.offeredAddr))
	case StateInforeq:
		msg, err = dhcpv6.NewMessage()
		if err != nil {
			return nil, err
		}

		msg.MessageType = dhcpv6.MessageTypeInformationRequest
		msg.AddOption(dhcpv6.OptClientID(sess.clientDUID))
		msg.AddOption(dhcpv6.OptRequestedOption(requestedOptions...))
	}

	return msg, nil
}

// handleMessage parses and dispatches one inbound datagram, per spec
// §4.8's per-state RX rules. It runs on the receive loop's own
// goroutine, so it takes sess.mu itself for everything past parsing
// (xid is immutable after construction and safe to read unlocked).
func (sess *Session) handleMessage(payload []byte) {
	msg, err := dhcpv6.MessageFromBytes(payload)
	if err != nil {
		sess.log.Debug("dhcp6client: malformed message, aborting session",
			"netdev", sess.netdevName, "err", err)
		sess.finish(0, fmt.Errorf("%w: %w", ErrInvalid, err))

		return
	}

	if msg.TransactionID != sess.xid {
		// Out-of-order/foreign reply; spec §5's "matched by transaction
		// ID; out-of-order replies are discarded."
		return
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if !sess.checkClientID(msg) {
		return
	}

	if !sess.checkServerID(msg) {
		return
	}

	switch sess.state {
	case StateSolicit:
		sess.handleSolicitRX(msg)
	case StateRequest:
		sess.handleRequestRX(msg)
	case StateInforeq:
		sess.handleInforeqRX(msg)
	}
}

// checkClientID enforces "CLIENTID in incoming messages MUST match the
// session's client DUID; mismatch fails the message" (discards just this
// message, not the whole session).
func (sess *Session) checkClientID(msg *dhcpv6.Message) (ok bool) {
	got := msg.Options.ClientID()
	if got == nil {
		return false
	}

	return got.Equal(sess.clientDUID)
}

// checkServerID captures the server DUID on first sight and verifies it
// matches on every subsequent message, per spec §4.8's "server DUID is
// captured on first CLIENTID-bearing Advertise; subsequent messages
// whose SERVERID does not match are treated as protocol errors and
// discarded without state change." A Reply is the first message seen
// when the server answers with rapid-commit straight off a Solicit, so
// the same capture-or-verify rule applies there too.
func (sess *Session) checkServerID(msg *dhcpv6.Message) (ok bool) {
	got := msg.Options.ServerID()
	if got == nil {
		return false
	}

	if sess.serverDUID == nil {
		sess.serverDUID = got

		return true
	}

	return got.Equal(*sess.serverDUID)
}

// handleSolicitRX implements spec §4.8's Solicit row of "On RX Reply" /
// "On RX Advertise".
func (sess *Session) handleSolicitRX(msg *dhcpv6.Message) {
	switch msg.Type() {
	case dhcpv6.MessageTypeReply:
		if msg.GetOneOption(dhcpv6.OptionRapidCommit) == nil {
			// "discards the Reply and retries (treats it as noise)".
			return
		}

		sess.commitAndFinish(msg)
	case dhcpv6.MessageTypeAdvertise:
		sess.advertise = msg
		sess.offeredAddr = extractOfferedAddr(msg)
		sess.applyAncillary(msg)
		sess.enterState(StateRequest)
	default:
		// Unknown message during Solicit: ignore, keep waiting for the
		// retry timer.
	}
}

// handleRequestRX implements spec §4.8's Request row.
func (sess *Session) handleRequestRX(msg *dhcpv6.Message) {
	if msg.Type() != dhcpv6.MessageTypeReply {
		return
	}

	sess.commitAndFinish(msg)
}

// handleInforeqRX implements spec §4.8's InfoReq row.
func (sess *Session) handleInforeqRX(msg *dhcpv6.Message) {
	if msg.Type() != dhcpv6.MessageTypeReply {
		return
	}

	sess.commitAndFinish(msg)
}

// extractOfferedAddr pulls the offered address out of an IA_NA's
// embedded IAADDR, without committing anything — spec §4.8's
// "dhcp->offer = addr->addr" path (the "completed=0" branch of
// dhcp6_handle_option).
func extractOfferedAddr(msg *dhcpv6.Message) (addr addr6.Addr) {
	ia := msg.Options.OneIANA()
	if ia == nil {
		return addr6.Addr{}
	}

	iaAddr := ia.Options.OneAddress()
	if iaAddr == nil {
		return addr6.Addr{}
	}

	return addr6.AddrFromBytes(iaAddr.IPv6Addr)
}

// applyAncillary stores the DNS search list, which is written regardless
// of whether this message ends up committing an address (spec §4.8
// "Option handling on successful Reply" applies the same rule to both
// Advertise-then-Request and rapid-commit flows since either one is the
// point at which a server's ancillary options are seen for the first
// time in the two-step case).
func (sess *Session) applyAncillary(msg *dhcpv6.Message) {
	if opt := msg.GetOneOption(dhcpv6.OptionDomainSearchList); opt != nil {
		sess.searchDomains = decodeSearchDomains(opt.ToBytes())
	}
}

// commitAndFinish implements spec §4.8's "Option handling on successful
// Reply": extract the IA_NA/IAADDR, install it and the route that goes
// with it if-and-only-if the upstream SLAAC path reported no_address,
// store the first DNS server, and finish the job with code 0.
func (sess *Session) commitAndFinish(msg *dhcpv6.Message) {
	sess.applyAncillary(msg)

	// meta is nil when DHCPv6 ran because the Router Solicit itself
	// failed (spec §4.9 step 4's fallback): no router was ever heard
	// from, so there is no SLAAC-assigned address either, the same
	// situation no_address=true describes when an RA was received.
	// Only an RA that explicitly reported an address (no_address=false)
	// suppresses DHCP's own install.
	noAddress := sess.meta == nil || sess.meta.NoAddress

	addr := extractOfferedAddr(msg)
	if !addr.IsZero() && noAddress {
		// With no RA (meta == nil), there's no router-announced prefix
		// to route through; the IAADDR still becomes the interface's
		// address, it's just left on-link with no gateway.
		var router addr6.Addr
		prefix, prefixLen := addr, netutil.IPv6BitLen
		if sess.meta != nil {
			router = sess.meta.Router
			prefix, prefixLen = sess.meta.Prefix, sess.meta.PrefixLen
		}

		if err := sess.store.SetAddress(addr); err != nil {
			sess.finish(0, err)

			return
		}
		if err := sess.store.SetGateway(router); err != nil {
			sess.finish(0, err)

			return
		}
		if err := sess.store.SetPrefixLen(prefixLen); err != nil {
			sess.finish(0, err)

			return
		}

		sess.routes.Add(sess.netdevName, prefix, prefixLen, addr, router)
	}

	if dnsServers := msg.Options.DNS(); len(dnsServers) > 0 {
		if err := sess.store.SetDNS(addr6.AddrFromBytes(dnsServers[0])); err != nil {
			sess.finish(0, err)

			return
		}
	}

	sess.finish(0, nil)
}

// finish implements spec §4.8's "Finish": stop the timer and complete
// the job exactly once. finishOnce absorbs the race between a reply
// arriving on the receive loop and the retry timer expiring at the same
// moment — only one of them may call [job.Job.Complete].
func (sess *Session) finish(code int, err error) {
	sess.finishOnce.Do(func() {
		sess.timer.Stop()
		sess.j.Complete(code, err)
	})
}
