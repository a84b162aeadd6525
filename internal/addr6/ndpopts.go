package addr6

import "net"

// NDP option types recognised by this core (spec §4.1).
const (
	NDPOptSourceLL   uint8 = 1
	NDPOptTargetLL   uint8 = 2
	NDPOptPrefixInfo uint8 = 3
	NDPOptMTU        uint8 = 5
)

// NDPOption is a single decoded NDP TLV option.  Value holds the raw
// option-specific bytes (the `length*8 - 2` octets after type and
// length), uninterpreted; callers that care about Prefix-Info or
// link-layer-address contents use [NDPOption.LinkLayerAddr] or
// [NDPOption.PrefixInfo].
type NDPOption struct {
	Type  uint8
	Value []byte
}

// LinkLayerAddr returns the link-layer address carried by a Source-LL or
// Target-LL option.
func (o NDPOption) LinkLayerAddr() (ll net.HardwareAddr) {
	return net.HardwareAddr(o.Value)
}

// NDPPrefixInfo is the decoded body of a Prefix-Info option (type 3).
type NDPPrefixInfo struct {
	PrefixLength int
	Autonomous   bool
	Prefix       Addr
}

// PrefixInfo decodes o as a Prefix-Info option.  o.Value must be at least
// 30 bytes (the fixed Prefix-Info body, sans type/length).
func (o NDPOption) PrefixInfo() (pi NDPPrefixInfo, ok bool) {
	if o.Type != NDPOptPrefixInfo || len(o.Value) < 30 {
		return NDPPrefixInfo{}, false
	}

	prefixLen := int(o.Value[0])
	flags := o.Value[1]

	var prefix [16]byte
	copy(prefix[:], o.Value[14:30])

	return NDPPrefixInfo{
		PrefixLength: prefixLen,
		Autonomous:   flags&0x40 != 0,
		Prefix:       AddrFromBytes(prefix[:]),
	}, true
}

// NewLinkLayerOption builds a Source-LL or Target-LL option.
func NewLinkLayerOption(typ uint8, ll net.HardwareAddr) (o NDPOption) {
	return NDPOption{Type: typ, Value: append([]byte(nil), ll...)}
}

// DecodeNDPOptions walks the TLV option stream of an NDP message body.  A
// zero-length buffer decodes to an empty option set and a nil error (spec
// §8 boundary case "RA with zero-length options"). An option whose length
// byte is zero is rejected with [ErrInvalidOption], since a zero length
// would loop forever (spec §4.1).
func DecodeNDPOptions(buf []byte) (opts []NDPOption, err error) {
	for len(buf) > 0 {
		if len(buf) < 2 {
			return nil, ErrInvalidOption
		}

		typ := buf[0]
		lenUnits := buf[1]
		if lenUnits == 0 {
			return nil, ErrInvalidOption
		}

		total := int(lenUnits) * 8
		if total > len(buf) {
			return nil, ErrInvalidOption
		}

		opts = append(opts, NDPOption{
			Type:  typ,
			Value: buf[2:total],
		})

		buf = buf[total:]
	}

	return opts, nil
}

// EncodeNDPOptions serialises opts back to their wire TLV form.  It is the
// inverse of [DecodeNDPOptions]: for any sequence of valid options whose
// encoded length fits in an 8-bit unit count,
// DecodeNDPOptions(EncodeNDPOptions(opts)) reproduces opts (spec §8
// round-trip law).
func EncodeNDPOptions(opts []NDPOption) (buf []byte) {
	for _, o := range opts {
		padded := (len(o.Value)+2+7) / 8 * 8
		units := padded / 8

		entry := make([]byte, padded)
		entry[0] = o.Type
		entry[1] = byte(units)
		copy(entry[2:], o.Value)

		buf = append(buf, entry...)
	}

	return buf
}
