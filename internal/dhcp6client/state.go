package dhcp6client

import (
	"time"

	"github.com/insomniacslk/dhcp/dhcpv6"
)

// State is one of the three DHCPv6 client states spec §4.8 names.
type State uint8

// States.
const (
	StateSolicit State = iota
	StateRequest
	StateInforeq
)

// String implements fmt.Stringer, for logging.
func (s State) String() (str string) {
	switch s {
	case StateSolicit:
		return "solicit"
	case StateRequest:
		return "request"
	case StateInforeq:
		return "inforeq"
	default:
		return "unknown"
	}
}

// Retransmission timing. The gPXE constants this is grounded on
// (DHCP_MIN_TIMEOUT/DHCP_MAX_TIMEOUT) live in a header the retrieved
// source tree doesn't include; these are RFC 3315 §5.5's SOL_TIMEOUT/
// SOL_MAX_RT values, reused for Request and Information-Request too
// since this core doesn't implement the renew/rebind states that would
// call for separate tuning.
var (
	minRetransmitTimeout = 1 * time.Second
	maxRetransmitTimeout = 32 * time.Second
)

// nextRetransmit doubles prev, capped at maxRetransmitTimeout, per RFC
// 3315 §14's "RT = 2*RTprev" (without the jitter term: the job.Timer
// model this core uses has no randomness hook, and determinism matters
// more than precise RFC conformance for a client with a one-shot,
// non-renewing lifecycle).
func nextRetransmit(prev time.Duration) (next time.Duration) {
	if prev <= 0 {
		return minRetransmitTimeout
	}

	next = prev * 2
	if next > maxRetransmitTimeout {
		return maxRetransmitTimeout
	}

	return next
}

// stateInfo captures the per-state behaviour of spec §4.8's table: which
// message type is transmitted and whether the Solicit state additionally
// offers rapid-commit.
type stateInfo struct {
	txMsgType   dhcpv6.MessageType
	rapidCommit bool
}

var stateTable = map[State]stateInfo{
	StateSolicit: {txMsgType: dhcpv6.MessageTypeSolicit, rapidCommit: true},
	StateRequest: {txMsgType: dhcpv6.MessageTypeRequest},
	StateInforeq: {txMsgType: dhcpv6.MessageTypeInformationRequest},
}
