// Package dhcp6client implements the DHCPv6 client state machine (C8,
// spec §4.8): Solicit/Request/InfoReq, transaction-ID derivation, and the
// option-handling rules governing what gets written to the settings store.
package dhcp6client

import (
	"net"
	"time"

	"github.com/insomniacslk/dhcp/dhcpv6"
	"github.com/insomniacslk/dhcp/iana"

	"github.com/6bringup/stack6/internal/addr6"
)

// DHCPv6 ports, per spec §6.
const (
	ClientPort = dhcpv6.DefaultClientPort
	ServerPort = dhcpv6.DefaultServerPort
)

// hardwareTypeEthernet is the ARP hardware-type number for Ethernet, used
// in the CLIENTID DUID-LL option.
const hardwareTypeEthernet = iana.HWTypeEthernet

// xid derives the 24-bit DHCPv6 transaction ID from the low 3 octets of
// the link-layer address (spec §4.8 "Transaction ID"), matching
// original_source's dhcp6_xid. dhcpv6.TransactionID is the same 3-octet
// shape RFC 3315 §5.3's xid field already is, so no packing is needed
// beyond picking the octets.
func xid(ll []byte) (id dhcpv6.TransactionID) {
	n := len(ll)
	if n < 3 {
		var padded [3]byte
		copy(padded[3-n:], ll)

		return dhcpv6.TransactionID(padded)
	}

	return dhcpv6.TransactionID{ll[n-3], ll[n-2], ll[n-1]}
}

// iaID is the fixed IA_NA identifier this client always uses (spec §3
// "this core uses a fixed constant"), matching original_source's literal
// 0xdeadbeef.
var iaID = [4]byte{0xde, 0xad, 0xbe, 0xef}

// iaLifetime is the T1/T2 and preferred/valid lifetime value sent in every
// IA_NA/IAADDR option this client builds, matching original_source's
// literal 3600-second renew/lifetime values.
const iaLifetime = 3600 * time.Second

// buildIANA builds an IA_NA option carrying one embedded IAADDR for addr,
// per spec §4.8's Solicit/Request "IA_NA(iaid=const), IAADDR(addr=...)",
// using insomniacslk/dhcp's dhcpv6.OptIANA/dhcpv6.OptIAAddress in place of
// this core's former hand-rolled TLV encoder (see DESIGN.md).
func buildIANA(addr addr6.Addr) (opt *dhcpv6.OptIANA) {
	a := addr.As16()

	return &dhcpv6.OptIANA{
		IaId: iaID,
		T1:   iaLifetime,
		T2:   iaLifetime,
		Options: dhcpv6.IdentityOptions{
			Options: []dhcpv6.Option{
				&dhcpv6.OptIAAddress{
					IPv6Addr:          net.IP(a[:]),
					PreferredLifetime: iaLifetime,
					ValidLifetime:     iaLifetime,
				},
			},
		},
	}
}

// rapidCommitOption is RAPID_COMMIT's (code 14) fixed zero-length value.
// insomniacslk/dhcp has no dedicated RAPID_COMMIT builder (it only
// exposes dhcpv6.OptionRapidCommit, the option-code constant, for reading
// one back off a received message); dhcpv6.OptionGeneric is the library's
// own documented escape hatch for options it doesn't model with a
// dedicated type, so this is built the way the library itself would ask
// a caller to build an option it hasn't special-cased.
var rapidCommitOption dhcpv6.Option = &dhcpv6.OptionGeneric{OptionCode: dhcpv6.OptionRapidCommit}

// requestedOptions is the ORO sent with every outgoing message: DNS
// servers and the DNS search list, per spec §4.8's packet layout table.
var requestedOptions = []dhcpv6.OptionCode{
	dhcpv6.OptionDNSRecursiveNameServer,
	dhcpv6.OptionDomainSearchList,
}

// decodeSearchDomains decodes a DOMAIN_LIST (option 24) option value per
// RFC 1035 §3.1's length-prefixed-label encoding, pointer-free since
// DHCPv6 options never use message compression. insomniacslk/dhcp has no
// example in this pack of a dedicated client-side accessor for this
// option, so the raw bytes dhcpv6.Option.ToBytes() returns for it are
// decoded here; spec §4.8 only requires "accept and ignore," so this is
// carried as an additional accessor (see DESIGN.md), not wired into the
// settings store.
func decodeSearchDomains(value []byte) (domains []string) {
	for len(value) > 0 {
		var labels []string
		for {
			if len(value) == 0 {
				return domains
			}

			n := int(value[0])
			value = value[1:]
			if n == 0 {
				break
			}
			if n > len(value) {
				return domains
			}

			labels = append(labels, string(value[:n]))
			value = value[n:]
		}

		if len(labels) > 0 {
			domains = append(domains, joinLabels(labels))
		}
	}

	return domains
}

// joinLabels joins DNS labels with '.', avoiding a strings.Join import for
// one call site.
func joinLabels(labels []string) (name string) {
	for i, l := range labels {
		if i > 0 {
			name += "."
		}
		name += l
	}

	return name
}
