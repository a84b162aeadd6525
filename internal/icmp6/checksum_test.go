package icmp6_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/6bringup/stack6/internal/addr6"
	"github.com/6bringup/stack6/internal/icmp6"
)

func TestSum_add(t *testing.T) {
	t.Parallel()

	// Two 16-bit words: 0x0001 + 0xFF00 = 0xFF01, no carry.
	got := icmp6.Sum(0).Add([]byte{0x00, 0x01, 0xFF, 0x00})
	assert.Equal(t, icmp6.Sum(0xFF01), got)
}

func TestSum_addOddTrailingByte(t *testing.T) {
	t.Parallel()

	// A trailing odd byte is padded with a zero low byte, per RFC 1071.
	got := icmp6.Sum(0).Add([]byte{0x00, 0x01, 0xAB})
	assert.Equal(t, icmp6.Sum(0x0001+0xAB00), got)
}

func TestSum_foldCarry(t *testing.T) {
	t.Parallel()

	// Two words that overflow 16 bits must have their carry folded back
	// in: 0xFFFF + 0xFFFF = 0x1FFFE -> fold once -> 0xFFFF.
	s := icmp6.Sum(0).Add([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	assert.Equal(t, uint16(0x0000), s.Finalize())
}

func TestSum_selfConsistent(t *testing.T) {
	t.Parallel()

	// Building a message with its checksum field zeroed, finalizing a
	// checksum over it, then writing that checksum back into the field
	// and re-summing the whole thing must fold+complement to zero --
	// the standard RFC 1071 self-verification property.
	msg := []byte{0x80, 0x00, 0x00, 0x00, 0xAA, 0xBB, 0xCC, 0xDD}

	csum := icmp6.Sum(0).Add(msg).Finalize()
	binary.BigEndian.PutUint16(msg[2:4], csum)

	verify := icmp6.Sum(0).Add(msg)
	assert.Equal(t, uint16(0), verify.Finalize())
}

func TestPseudoHeader(t *testing.T) {
	t.Parallel()

	src, err := addr6.ParseAddr("2001:db8::1")
	require.NoError(t, err)
	dst, err := addr6.ParseAddr("2001:db8::2")
	require.NoError(t, err)

	b := icmp6.PseudoHeader(src, dst, 64, 58)
	require.Len(t, b, 40)

	srcBytes := src.As16()
	dstBytes := dst.As16()
	assert.Equal(t, srcBytes[:], b[0:16])
	assert.Equal(t, dstBytes[:], b[16:32])
	assert.Equal(t, uint32(64), binary.BigEndian.Uint32(b[32:36]))
	assert.Equal(t, []byte{0, 0, 0}, b[36:39])
	assert.Equal(t, uint8(58), b[39])
}
