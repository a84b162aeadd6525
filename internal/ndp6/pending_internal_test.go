package ndp6

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/AdguardTeam/golibs/timeutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/6bringup/stack6/internal/addr6"
	"github.com/6bringup/stack6/internal/icmp6"
	"github.com/6bringup/stack6/internal/job"
)

type stubNetdevInfo struct {
	ll    net.HardwareAddr
	addrs map[addr6.Addr]bool
}

func (s *stubNetdevInfo) LinkLayerAddr(string) (net.HardwareAddr, error) { return s.ll, nil }

func (s *stubNetdevInfo) HasAddress(_ string, a addr6.Addr) bool { return s.addrs[a] }

type stubTransport struct {
	err  error
	sent []stubSent
}

type stubSent struct {
	netdev  string
	dst     addr6.Addr
	msg     []byte
	partial icmp6.Sum
}

func (s *stubTransport) TransmitICMPv6(netdev string, dst addr6.Addr, msg []byte, partial icmp6.Sum) error {
	s.sent = append(s.sent, stubSent{netdev: netdev, dst: dst, msg: append([]byte(nil), msg...), partial: partial})

	return s.err
}

func mustMAC(t *testing.T) (ll net.HardwareAddr) {
	t.Helper()

	ll, err := net.ParseMAC("52:54:00:12:34:56")
	require.NoError(t, err)

	return ll
}

func TestPendingTable_sendRouterSolicitSuccess(t *testing.T) {
	t.Parallel()

	nd := &stubNetdevInfo{ll: mustMAC(t)}
	tx := &stubTransport{}
	pt := NewPendingTable(4, tx, nd, timeutil.SystemClock{})

	j := job.New()
	err := pt.SendRouterSolicit("eth0", j, nil)
	require.NoError(t, err)

	require.Len(t, tx.sent, 1)
	assert.Equal(t, "eth0", tx.sent[0].netdev)
	assert.True(t, tx.sent[0].dst.Equal(addr6.AllRouters))
	assert.Equal(t, icmp6.TypeRouterSolicit, int(tx.sent[0].msg[0]))

	_, _, ok := pt.findByNetdev("eth0")
	assert.True(t, ok)
}

func TestPendingTable_sendRouterSolicitTxFailureKillsJob(t *testing.T) {
	t.Parallel()

	nd := &stubNetdevInfo{ll: mustMAC(t)}
	tx := &stubTransport{err: assertErr{}}
	pt := NewPendingTable(4, tx, nd, timeutil.SystemClock{})

	j := job.New()
	err := pt.SendRouterSolicit("eth0", j, nil)
	assert.Error(t, err)

	code, jobErr := job.Wait(t.Context(), j)
	assert.Equal(t, 0, code)
	assert.ErrorIs(t, jobErr, job.ErrCanceled)

	_, _, ok := pt.findByNetdev("eth0")
	assert.False(t, ok)
}

func TestPendingTable_timerExpiryCancelsJob(t *testing.T) {
	t.Parallel()

	nd := &stubNetdevInfo{ll: mustMAC(t)}
	tx := &stubTransport{}
	pt := NewPendingTable(4, tx, nd, timeutil.SystemClock{})

	idx := pt.r.insert(pendingEntry{
		netdev: "eth0",
		state:  PendingPending,
		job:    job.New(),
		timer:  job.NewTimer(nil),
		once:   new(sync.Once),
	})
	e := pt.r.at(idx)
	e.job.OnKill(func() { pt.killEntry(idx) })
	e.timer.Reset(5*time.Millisecond, func() { e.job.Kill() })

	code, err := job.Wait(t.Context(), e.job)
	assert.Equal(t, 0, code)
	assert.ErrorIs(t, err, job.ErrCanceled)

	got := pt.r.at(idx)
	assert.Equal(t, PendingInvalid, got.state)
}

type assertErr struct{}

func (assertErr) Error() (s string) { return "tx failed" }
