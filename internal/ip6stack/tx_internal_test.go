package ip6stack

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/6bringup/stack6/internal/addr6"
	"github.com/6bringup/stack6/internal/icmp6"
	"github.com/6bringup/stack6/internal/ndp6"
)

func TestStack_txNoRouteReturnsError(t *testing.T) {
	t.Parallel()

	hostLL, err := net.ParseMAC("52:54:00:12:34:56")
	require.NoError(t, err)

	s, _ := newTestStack(t, "eth0", hostLL)
	require.NoError(t, s.Open(t.Context(), "eth0"))
	defer func() { _ = s.Close("eth0") }()

	dst, err := addr6.ParseAddr("ff02::2")
	require.NoError(t, err)

	err = s.TX("eth0", dst, nextHeaderICMPv6, make([]byte, 8), nil)
	assert.Error(t, err)
}

func TestStack_txMulticastBypassNeedsNoResolve(t *testing.T) {
	t.Parallel()

	hostLL, err := net.ParseMAC("52:54:00:12:34:56")
	require.NoError(t, err)

	s, dev := newTestStack(t, "eth0", hostLL)
	require.NoError(t, s.Open(t.Context(), "eth0"))
	defer func() { _ = s.Close("eth0") }()

	local, err := addr6.ParseAddr("fe80::1")
	require.NoError(t, err)
	s.Routes().Add("eth0", local, 64, local, addr6.Addr{})

	dst, err := addr6.ParseAddr("ff02::2")
	require.NoError(t, err)

	err = s.TX("eth0", dst, nextHeaderICMPv6, make([]byte, 8), nil)
	require.NoError(t, err)
	require.Len(t, dev.writtenFrames(), 1)
}

func TestStack_txUnicastResolveMissReturnsPending(t *testing.T) {
	t.Parallel()

	hostLL, err := net.ParseMAC("52:54:00:12:34:56")
	require.NoError(t, err)

	s, _ := newTestStack(t, "eth0", hostLL)
	require.NoError(t, s.Open(t.Context(), "eth0"))
	defer func() { _ = s.Close("eth0") }()

	local, err := addr6.ParseAddr("fe80::1")
	require.NoError(t, err)
	s.Routes().Add("eth0", local, 64, local, addr6.Addr{})

	dst, err := addr6.ParseAddr("fe80::2")
	require.NoError(t, err)

	err = s.TX("eth0", dst, nextHeaderICMPv6, make([]byte, 8), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ndp6.ErrPending)
}

func TestStack_txFinalizesChecksumOverPseudoHeader(t *testing.T) {
	t.Parallel()

	hostLL, err := net.ParseMAC("52:54:00:12:34:56")
	require.NoError(t, err)

	s, dev := newTestStack(t, "eth0", hostLL)
	require.NoError(t, s.Open(t.Context(), "eth0"))
	defer func() { _ = s.Close("eth0") }()

	local, err := addr6.ParseAddr("fe80::1")
	require.NoError(t, err)
	s.Routes().Add("eth0", local, 64, local, addr6.Addr{})

	dst, err := addr6.ParseAddr("ff02::2")
	require.NoError(t, err)

	msg := make([]byte, 8)
	msg[0] = icmp6.TypeRouterSolicit
	partial := icmp6.Sum(0).Add(msg)

	require.NoError(t, s.TX("eth0", dst, nextHeaderICMPv6, msg, &partial))

	frames := dev.writtenFrames()
	require.Len(t, frames, 1)

	payload, ok := stripEthernetIPv6(frames[0])
	require.True(t, ok)
	require.GreaterOrEqual(t, len(payload), ipv6HeaderLen)

	src := addr6.AddrFromBytes(payload[8:24])
	dstParsed := addr6.AddrFromBytes(payload[24:40])
	body := payload[ipv6HeaderLen:]

	pseudo := icmp6.PseudoHeader(src, dstParsed, uint32(len(body)), nextHeaderICMPv6)
	assert.Equal(t, uint16(0), icmp6.Sum(0).Add(pseudo).Add(body).Finalize())
}
