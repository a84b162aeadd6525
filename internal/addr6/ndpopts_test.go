package addr6_test

import (
	"net"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/6bringup/stack6/internal/addr6"
)

func TestDecodeNDPOptions_empty(t *testing.T) {
	t.Parallel()

	opts, err := addr6.DecodeNDPOptions(nil)
	require.NoError(t, err)
	assert.Empty(t, opts)
}

func TestDecodeNDPOptions_zeroLength(t *testing.T) {
	t.Parallel()

	_, err := addr6.DecodeNDPOptions([]byte{addr6.NDPOptSourceLL, 0, 0, 0, 0, 0, 0, 0})
	assert.ErrorIs(t, err, addr6.ErrInvalidOption)
}

func TestNDPOptions_roundTrip(t *testing.T) {
	t.Parallel()

	ll, err := net.ParseMAC("00:11:22:33:44:55")
	require.NoError(t, err)

	want := []addr6.NDPOption{
		addr6.NewLinkLayerOption(addr6.NDPOptSourceLL, ll),
		addr6.NewLinkLayerOption(addr6.NDPOptTargetLL, ll),
	}

	buf := addr6.EncodeNDPOptions(want)
	got, err := addr6.DecodeNDPOptions(buf)
	require.NoError(t, err)

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("round-trip mismatch (-want +got):\n%s", diff)
	}
}

func TestNDPOption_PrefixInfo(t *testing.T) {
	t.Parallel()

	prefix, err := addr6.ParseAddr("2001:db8:1::")
	require.NoError(t, err)

	value := make([]byte, 30)
	value[0] = 64   // prefix length
	value[1] = 0x40 // autonomous flag
	pb := prefix.As16()
	copy(value[14:30], pb[:])

	o := addr6.NDPOption{Type: addr6.NDPOptPrefixInfo, Value: value}
	pi, ok := o.PrefixInfo()
	require.True(t, ok)

	assert.Equal(t, 64, pi.PrefixLength)
	assert.True(t, pi.Autonomous)
	assert.True(t, pi.Prefix.Equal(prefix))
}

func TestNDPOption_LinkLayerAddr(t *testing.T) {
	t.Parallel()

	ll, err := net.ParseMAC("aa:bb:cc:dd:ee:ff")
	require.NoError(t, err)

	o := addr6.NewLinkLayerOption(addr6.NDPOptTargetLL, ll)
	assert.Equal(t, ll, o.LinkLayerAddr())
}
