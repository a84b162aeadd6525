package dhcp6client

import (
	"net"
	"testing"

	"github.com/insomniacslk/dhcp/dhcpv6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/6bringup/stack6/internal/addr6"
)

func TestXid(t *testing.T) {
	tests := []struct {
		name string
		ll   net.HardwareAddr
		want dhcpv6.TransactionID
	}{
		{
			name: "full ethernet address",
			ll:   net.HardwareAddr{0x52, 0x54, 0x00, 0x12, 0x34, 0x56},
			want: dhcpv6.TransactionID{0x12, 0x34, 0x56},
		},
		{
			name: "short address is zero padded",
			ll:   net.HardwareAddr{0xaa, 0xbb},
			want: dhcpv6.TransactionID{0x00, 0xaa, 0xbb},
		},
		{
			name: "empty address",
			ll:   nil,
			want: dhcpv6.TransactionID{0x00, 0x00, 0x00},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, xid(tt.ll))
		})
	}
}

func TestBuildIANA(t *testing.T) {
	addr, err := addr6.ParseAddr("2001:db8::1")
	require.NoError(t, err)

	opt := buildIANA(addr)
	assert.Equal(t, iaID, opt.IaId)
	assert.Equal(t, iaLifetime, opt.T1)
	assert.Equal(t, iaLifetime, opt.T2)

	iaAddr := opt.Options.OneAddress()
	require.NotNil(t, iaAddr)

	a := addr.As16()
	assert.Equal(t, net.IP(a[:]), iaAddr.IPv6Addr)
	assert.Equal(t, iaLifetime, iaAddr.PreferredLifetime)
	assert.Equal(t, iaLifetime, iaAddr.ValidLifetime)
}

func TestDecodeSearchDomains(t *testing.T) {
	tests := []struct {
		name  string
		value []byte
		want  []string
	}{
		{
			name:  "single domain",
			value: encodeLabels(t, "example", "com"),
			want:  []string{"example.com"},
		},
		{
			name: "two domains",
			value: append(
				encodeLabels(t, "a", "example", "com"),
				encodeLabels(t, "b", "example", "com")...,
			),
			want: []string{"a.example.com", "b.example.com"},
		},
		{
			name:  "empty value",
			value: nil,
			want:  nil,
		},
		{
			name:  "truncated label length stops decoding",
			value: []byte{5, 'a', 'b'},
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, decodeSearchDomains(tt.value))
		})
	}
}

// encodeLabels builds one RFC 1035 length-prefixed domain name from labels.
func encodeLabels(t *testing.T, labels ...string) (buf []byte) {
	t.Helper()

	for _, l := range labels {
		buf = append(buf, byte(len(l)))
		buf = append(buf, l...)
	}

	return append(buf, 0)
}
