package flowkey

import (
	"fmt"
	"strings"

	"github.com/vswitchd/dpcore/dpcore/internal/ovskey"
)

// String renders k in the same field order and naming convention as
// 'ovs-dpctl dump-flows' output (adapted from ovs/matchparser.go's
// dl_src/nw_src/tp_src naming), e.g.:
//
//	in_port(1),eth(src=aa:bb:cc:dd:ee:ff,dst=11:22:33:44:55:66),eth_type(0x0800),ipv4(src=10.0.0.1,dst=10.0.0.2,proto=6,tos=0,ttl=64,frag=0),tcp(src=1234,dst=80)
func (k Key) String() string {
	var parts []string

	switch k.InPort {
	case ovskey.PortLocal:
		parts = append(parts, "in_port(LOCAL)")
	case ovskey.PortNone:
		// omitted: a synthesized key with no ingress port recorded.
	default:
		parts = append(parts, fmt.Sprintf("in_port(%d)", k.InPort))
	}

	parts = append(parts, fmt.Sprintf("eth(src=%s,dst=%s)", k.Eth.Src, k.Eth.Dst))

	if k.VLAN.Present {
		parts = append(parts, fmt.Sprintf("vlan(tci=0x%04x)", k.VLAN.TCI))
		parts = append(parts, "encap(")
	}

	parts = append(parts, fmt.Sprintf("eth_type(0x%04x)", k.Eth.EthType))

	if k.IPv4.Present {
		parts = append(parts, fmt.Sprintf("ipv4(src=%s,dst=%s,proto=%d,tos=%d,ttl=%d,frag=%d)",
			k.IPv4.Src, k.IPv4.Dst, k.IPv4.Proto, k.IPv4.Tos, k.IPv4.Ttl, k.IPv4.Frag))
	}
	if k.IPv6.Present {
		parts = append(parts, fmt.Sprintf("ipv6(proto=%d,tclass=%d,label=%d,hlimit=%d,frag=%d)",
			k.IPv6.Proto, k.IPv6.Tclass, k.IPv6.Label, k.IPv6.Hlimit, k.IPv6.Frag))
	}
	if k.ARP.Present {
		parts = append(parts, fmt.Sprintf("arp(sip=%s,tip=%s,op=%d,sha=%s,tha=%s)",
			k.ARP.SIP, k.ARP.TIP, k.ARP.Op, k.ARP.SHA, k.ARP.THA))
	}
	if k.MPLS.Present {
		parts = append(parts, fmt.Sprintf("mpls(lse=0x%08x)", k.MPLS.LSE))
	}
	if k.TCP.Present {
		parts = append(parts, fmt.Sprintf("tcp(src=%d,dst=%d)", k.TCP.Src, k.TCP.Dst))
	}
	if k.UDP.Present {
		parts = append(parts, fmt.Sprintf("udp(src=%d,dst=%d)", k.UDP.Src, k.UDP.Dst))
	}
	if k.ICMP.Present {
		parts = append(parts, fmt.Sprintf("icmp(type=%d,code=%d)", k.ICMP.Type, k.ICMP.Code))
	}

	if k.VLAN.Present {
		parts = append(parts, ")")
	}

	return strings.Join(parts, ",")
}
