package ip6stack

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/6bringup/stack6/internal/addr6"
	"github.com/6bringup/stack6/internal/icmp6"
	"github.com/6bringup/stack6/internal/ndp6"
)

func withShortDADTimeout(t *testing.T) {
	t.Helper()

	orig := dadProbeTimeout
	dadProbeTimeout = 10 * time.Millisecond
	t.Cleanup(func() { dadProbeTimeout = orig })
}

func TestStack_probeDAD_noCollisionWhenUnanswered(t *testing.T) {
	withShortDADTimeout(t)

	hostLL, err := net.ParseMAC("52:54:00:12:34:56")
	require.NoError(t, err)

	s, _ := newTestStack(t, "eth0", hostLL)
	require.NoError(t, s.Open(t.Context(), "eth0"))
	defer func() { _ = s.Close("eth0") }()

	tentative := addr6.LinkLocal(hostLL)
	s.Routes().Add("eth0", tentative, slaacPrefixLen, tentative, addr6.Addr{})

	collision, err := s.probeDAD(t.Context(), "eth0", tentative)
	require.NoError(t, err)
	assert.False(t, collision)
}

func TestStack_probeDAD_collisionWhenAlreadyReachable(t *testing.T) {
	withShortDADTimeout(t)

	hostLL, err := net.ParseMAC("52:54:00:12:34:56")
	require.NoError(t, err)

	s, _ := newTestStack(t, "eth0", hostLL)
	require.NoError(t, s.Open(t.Context(), "eth0"))
	defer func() { _ = s.Close("eth0") }()

	tentative := addr6.LinkLocal(hostLL)
	otherLL, err := net.ParseMAC("52:54:00:aa:bb:cc")
	require.NoError(t, err)
	s.cache.Insert(tentative, 6, otherLL, ndp6.NeighborReachable)

	collision, err := s.probeDAD(t.Context(), "eth0", tentative)
	require.NoError(t, err)
	assert.True(t, collision)
}

// buildRAFrame constructs a full Ethernet+IPv6+ICMPv6 Router Advertisement
// frame, reusing the same header builders [Stack.TX] itself uses, so
// Autoconf's receive path exercises the exact wire format this core
// produces and consumes.
func buildRAFrame(t *testing.T, routerLL, hostLL net.HardwareAddr, src, dst, prefix addr6.Addr, raFlags byte, autonomous bool) (frame []byte) {
	t.Helper()

	body := make([]byte, 16)
	body[0] = 134
	body[5] = raFlags

	piValue := make([]byte, 30)
	piValue[0] = 64
	if autonomous {
		piValue[1] = 0x40
	}
	p := prefix.As16()
	copy(piValue[14:30], p[:])

	opts := addr6.EncodeNDPOptions([]addr6.NDPOption{
		{Type: addr6.NDPOptPrefixInfo, Value: piValue},
		addr6.NewLinkLayerOption(addr6.NDPOptSourceLL, routerLL),
	})
	msg := append(body, opts...)

	pseudo := icmp6.PseudoHeader(src, dst, uint32(len(msg)), nextHeaderICMPv6)
	final := icmp6.Sum(0).Add(pseudo).Add(msg).Finalize()
	msg[2] = byte(final >> 8)
	msg[3] = byte(final)

	packet := buildIPv6Header(src, dst, nextHeaderICMPv6, msg)

	frame, err := buildEthernetFrame(routerLL, hostLL, packet)
	require.NoError(t, err)

	return frame
}

func TestStack_autoconfHappyPathNoFlags(t *testing.T) {
	hostLL, err := net.ParseMAC("52:54:00:12:34:56")
	require.NoError(t, err)
	routerLL, err := net.ParseMAC("52:54:00:aa:bb:cc")
	require.NoError(t, err)

	s, dev := newTestStack(t, "eth0", hostLL)
	defer func() { _ = s.Close("eth0") }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	type result struct {
		code int
		err  error
	}
	resCh := make(chan result, 1)

	go func() {
		code, aErr := s.Autoconf(ctx, "eth0", AutoconfOptions{SkipDAD: true})
		resCh <- result{code: code, err: aErr}
	}()

	require.Eventually(t, func() bool {
		return len(dev.writtenFrames()) > 0
	}, time.Second, time.Millisecond, "router solicitation was never sent")

	routerAddr := addr6.LinkLocal(routerLL)
	prefix, err := addr6.ParseAddr("2001:db8:1::")
	require.NoError(t, err)

	dev.inbound <- buildRAFrame(t, routerLL, hostLL, routerAddr, addr6.AllRouters, prefix, 0, true)

	select {
	case r := <-resCh:
		require.NoError(t, r.err)
		assert.Equal(t, 0, r.code)
	case <-time.After(5 * time.Second):
		t.Fatal("autoconf never returned")
	}

	hostAddr := addr6.HostAddress(prefix, 64, hostLL)
	assert.True(t, s.HasAddress("eth0", hostAddr))
}

func TestStack_autoconfManagedFlagRunsDHCPFull(t *testing.T) {
	hostLL, err := net.ParseMAC("52:54:00:12:34:56")
	require.NoError(t, err)
	routerLL, err := net.ParseMAC("52:54:00:aa:bb:cc")
	require.NoError(t, err)

	s, dev := newTestStack(t, "eth0", hostLL)
	defer func() { _ = s.Close("eth0") }()

	dhcp := &fakeDHCPRunner{fullCode: 1}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	type result struct {
		code int
		err  error
	}
	resCh := make(chan result, 1)

	go func() {
		code, aErr := s.Autoconf(ctx, "eth0", AutoconfOptions{SkipDAD: true, DHCP: dhcp})
		resCh <- result{code: code, err: aErr}
	}()

	require.Eventually(t, func() bool {
		return len(dev.writtenFrames()) > 0
	}, time.Second, time.Millisecond)

	routerAddr := addr6.LinkLocal(routerLL)
	prefix, err := addr6.ParseAddr("2001:db8:1::")
	require.NoError(t, err)

	const raFlagManaged = 0x80
	dev.inbound <- buildRAFrame(t, routerLL, hostLL, routerAddr, addr6.AllRouters, prefix, raFlagManaged, true)

	select {
	case r := <-resCh:
		require.NoError(t, r.err)
		assert.Equal(t, 1, r.code)
	case <-time.After(5 * time.Second):
		t.Fatal("autoconf never returned")
	}

	require.Len(t, dhcp.fullCalls, 1)
	assert.Equal(t, "eth0", dhcp.fullCalls[0])
}

func TestStack_autoconfFallsBackToDHCPOnRSFailure(t *testing.T) {
	hostLL, err := net.ParseMAC("52:54:00:12:34:56")
	require.NoError(t, err)

	s, _ := newTestStack(t, "eth0", hostLL)
	defer func() { _ = s.Close("eth0") }()

	dhcp := &fakeDHCPRunner{fullCode: 2}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	code, err := s.Autoconf(ctx, "eth0", AutoconfOptions{SkipDAD: true, DHCP: dhcp})
	require.NoError(t, err)
	assert.Equal(t, 2, code)
	require.Len(t, dhcp.fullCalls, 1)
}

type fakeDHCPRunner struct {
	fullCode  int
	fullCalls []string
}

func (f *fakeDHCPRunner) RunFull(_ context.Context, netdevName string, _ *ndp6.RSolicitInfo) (code int, err error) {
	f.fullCalls = append(f.fullCalls, netdevName)

	return f.fullCode, nil
}

func (f *fakeDHCPRunner) RunInfoRequest(_ context.Context, netdevName string) (code int, err error) {
	return 0, nil
}
