package action

import (
	"fmt"

	"github.com/vswitchd/dpcore/dpcore/flowkey"
)

// EthSet carries the Ethernet address fields a SET action may rewrite.
type EthSet struct{ Src, Dst flowkey.EthAddr }

// IPv4Set carries the IPv4 fields a SET action may rewrite.
type IPv4Set struct {
	Src, Dst flowkey.IPv4Addr
	Tos, Ttl uint8
}

// IPv6Set carries the IPv6 fields a SET action may rewrite.
type IPv6Set struct {
	Src, Dst             flowkey.IPv6Addr
	Proto, Tclass, Hlimit uint8
	Label                 uint32
}

// TCPSet carries the TCP port fields a SET action may rewrite.
type TCPSet struct{ Src, Dst uint16 }

// UDPSet carries the UDP port fields a SET action may rewrite.
type UDPSet struct{ Src, Dst uint16 }

// MPLSSet carries the MPLS label stack entry a SET action may rewrite.
type MPLSSet struct{ LSE uint32 }

// SetFields is the decoded payload of a SET action: a sparse set of
// field-groups to overwrite. A nil group is left untouched; tunnel,
// priority, and skb-mark sub-attributes are accepted during decode (see
// codec.go) and never represented here, since this module ignores them
// (spec §4.3).
type SetFields struct {
	Eth  *EthSet
	IPv4 *IPv4Set
	IPv6 *IPv6Set
	TCP  *TCPSet
	UDP  *UDPSet
	MPLS *MPLSSet
}

func (f SetFields) String() string {
	s := ""
	add := func(part string) {
		if s != "" {
			s += ","
		}
		s += part
	}
	if f.Eth != nil {
		add(fmt.Sprintf("eth(src=%s,dst=%s)", f.Eth.Src, f.Eth.Dst))
	}
	if f.IPv4 != nil {
		add(fmt.Sprintf("ipv4(src=%s,dst=%s,tos=%d,ttl=%d)", f.IPv4.Src, f.IPv4.Dst, f.IPv4.Tos, f.IPv4.Ttl))
	}
	if f.IPv6 != nil {
		add(fmt.Sprintf("ipv6(src=%s,dst=%s,proto=%d,tclass=%d,label=%d,hlimit=%d)",
			f.IPv6.Src, f.IPv6.Dst, f.IPv6.Proto, f.IPv6.Tclass, f.IPv6.Label, f.IPv6.Hlimit))
	}
	if f.TCP != nil {
		add(fmt.Sprintf("tcp(src=%d,dst=%d)", f.TCP.Src, f.TCP.Dst))
	}
	if f.UDP != nil {
		add(fmt.Sprintf("udp(src=%d,dst=%d)", f.UDP.Src, f.UDP.Dst))
	}
	if f.MPLS != nil {
		add(fmt.Sprintf("mpls(lse=0x%08x)", f.MPLS.LSE))
	}
	return s
}
