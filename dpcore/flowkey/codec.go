package flowkey

import (
	"encoding/binary"
	"fmt"

	"github.com/mdlayher/netlink"
	"github.com/mdlayher/netlink/nlenc"

	"github.com/vswitchd/dpcore/dpcore/internal/ovskey"
)

// Encode serializes k as a length-prefixed, type-tagged attribute stream,
// in the same shape ovsnl/flow.go's parseFlowKeys consumes. Every
// implementation this module ever emits round-trips through Decode
// bytewise (spec §4.1, §8).
func Encode(k Key) []byte {
	var attrs []netlink.Attribute

	attrs = append(attrs, netlink.Attribute{
		Type: ovskey.KeyAttrInPort,
		Data: nlenc.Uint32Bytes(k.InPort),
	})

	eth := make([]byte, 12)
	copy(eth[0:6], k.Eth.Dst[:])
	copy(eth[6:12], k.Eth.Src[:])
	attrs = append(attrs, netlink.Attribute{Type: ovskey.KeyAttrEthernet, Data: eth})

	if k.VLAN.Present {
		tci := make([]byte, 2)
		binary.BigEndian.PutUint16(tci, k.VLAN.TCI)
		attrs = append(attrs, netlink.Attribute{Type: ovskey.KeyAttrVlan, Data: tci})
	}

	ethType := make([]byte, 2)
	binary.BigEndian.PutUint16(ethType, k.Eth.EthType)
	attrs = append(attrs, netlink.Attribute{Type: ovskey.KeyAttrEthertype, Data: ethType})

	if k.IPv4.Present {
		b := make([]byte, 12)
		copy(b[0:4], k.IPv4.Src[:])
		copy(b[4:8], k.IPv4.Dst[:])
		b[8] = k.IPv4.Proto
		b[9] = k.IPv4.Tos
		b[10] = k.IPv4.Ttl
		b[11] = k.IPv4.Frag
		attrs = append(attrs, netlink.Attribute{Type: ovskey.KeyAttrIpv4, Data: b})
	}

	if k.IPv6.Present {
		b := make([]byte, 40)
		copy(b[0:16], k.IPv6.Src[:])
		copy(b[16:32], k.IPv6.Dst[:])
		binary.BigEndian.PutUint32(b[32:36], k.IPv6.Label)
		b[36] = k.IPv6.Proto
		b[37] = k.IPv6.Tclass
		b[38] = k.IPv6.Hlimit
		b[39] = k.IPv6.Frag
		attrs = append(attrs, netlink.Attribute{Type: ovskey.KeyAttrIpv6, Data: b})
	}

	if k.ARP.Present {
		attrs = append(attrs, netlink.Attribute{Type: ovskey.KeyAttrArp, Data: arpBytes(k.ARP)})
	}

	if k.MPLS.Present {
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, k.MPLS.LSE)
		attrs = append(attrs, netlink.Attribute{Type: ovskey.KeyAttrMpls, Data: b})
	}

	if k.TCP.Present {
		b := make([]byte, 4)
		binary.BigEndian.PutUint16(b[0:2], k.TCP.Src)
		binary.BigEndian.PutUint16(b[2:4], k.TCP.Dst)
		attrs = append(attrs, netlink.Attribute{Type: ovskey.KeyAttrTcp, Data: b})
	}

	if k.UDP.Present {
		b := make([]byte, 4)
		binary.BigEndian.PutUint16(b[0:2], k.UDP.Src)
		binary.BigEndian.PutUint16(b[2:4], k.UDP.Dst)
		attrs = append(attrs, netlink.Attribute{Type: ovskey.KeyAttrUdp, Data: b})
	}

	if k.ICMP.Present {
		typ := ovskey.KeyAttrIcmp
		if k.IPv6.Present {
			typ = ovskey.KeyAttrIcmpv6
		}
		attrs = append(attrs, netlink.Attribute{Type: uint16(typ), Data: []byte{k.ICMP.Type, k.ICMP.Code}})
	}

	b, err := netlink.MarshalAttributes(attrs)
	if err != nil {
		// MarshalAttributes only fails on pathological inputs (e.g. an
		// attribute over 64KB); every field above is a fixed small
		// size, so this is unreachable in practice.
		panic(fmt.Sprintf("flowkey: unreachable marshal error: %v", err))
	}
	return b
}

// arpBytes lays out an ARP key attribute's 22-byte payload:
// sip(4) tip(4) op(2) sha(6) tha(6).
func arpBytes(a ARP) []byte {
	b := make([]byte, 22)
	copy(b[0:4], a.SIP[:])
	copy(b[4:8], a.TIP[:])
	binary.BigEndian.PutUint16(b[8:10], a.Op)
	copy(b[10:16], a.SHA[:])
	copy(b[16:22], a.THA[:])
	return b
}

func parseARPBytes(b []byte) (ARP, error) {
	if len(b) < 22 {
		return ARP{}, fmt.Errorf("flowkey: short ARP attribute: %d bytes", len(b))
	}
	var a ARP
	a.Present = true
	copy(a.SIP[:], b[0:4])
	copy(a.TIP[:], b[4:8])
	a.Op = binary.BigEndian.Uint16(b[8:10])
	copy(a.SHA[:], b[10:16])
	copy(a.THA[:], b[16:22])
	return a, nil
}

// Decode parses a serialized attribute stream back into a canonical Key.
// A shape mismatch between what Encode ever emits and what Decode accepts
// is a programming error (spec §4.1) — Decode returns an error rather than
// panicking so that callers can log it at rate-limited error level instead
// of crashing the ingress path over a single bad record.
func Decode(b []byte) (Key, error) {
	attrs, err := netlink.UnmarshalAttributes(b)
	if err != nil {
		return Key{}, fmt.Errorf("flowkey: decode: %w", err)
	}

	var k Key
	k.InPort = uint32(ovskey.PortNone)

	for _, a := range attrs {
		switch int(a.Type) {
		case ovskey.KeyAttrInPort:
			k.InPort = nlenc.Uint32(a.Data)
		case ovskey.KeyAttrEthernet:
			if len(a.Data) < 12 {
				return Key{}, fmt.Errorf("flowkey: short ethernet attribute: %d bytes", len(a.Data))
			}
			copy(k.Eth.Dst[:], a.Data[0:6])
			copy(k.Eth.Src[:], a.Data[6:12])
		case ovskey.KeyAttrVlan:
			if len(a.Data) < 2 {
				return Key{}, fmt.Errorf("flowkey: short vlan attribute: %d bytes", len(a.Data))
			}
			k.VLAN = VLAN{Present: true, TCI: binary.BigEndian.Uint16(a.Data)}
		case ovskey.KeyAttrEthertype:
			if len(a.Data) < 2 {
				return Key{}, fmt.Errorf("flowkey: short ethertype attribute: %d bytes", len(a.Data))
			}
			k.Eth.EthType = binary.BigEndian.Uint16(a.Data)
		case ovskey.KeyAttrIpv4:
			if len(a.Data) < 12 {
				return Key{}, fmt.Errorf("flowkey: short ipv4 attribute: %d bytes", len(a.Data))
			}
			var ip IPv4
			ip.Present = true
			copy(ip.Src[:], a.Data[0:4])
			copy(ip.Dst[:], a.Data[4:8])
			ip.Proto = a.Data[8]
			ip.Tos = a.Data[9]
			ip.Ttl = a.Data[10]
			ip.Frag = a.Data[11]
			k.IPv4 = ip
		case ovskey.KeyAttrIpv6:
			if len(a.Data) < 40 {
				return Key{}, fmt.Errorf("flowkey: short ipv6 attribute: %d bytes", len(a.Data))
			}
			var ip IPv6
			ip.Present = true
			copy(ip.Src[:], a.Data[0:16])
			copy(ip.Dst[:], a.Data[16:32])
			ip.Label = binary.BigEndian.Uint32(a.Data[32:36])
			ip.Proto = a.Data[36]
			ip.Tclass = a.Data[37]
			ip.Hlimit = a.Data[38]
			ip.Frag = a.Data[39]
			k.IPv6 = ip
		case ovskey.KeyAttrArp:
			arp, err := parseARPBytes(a.Data)
			if err != nil {
				return Key{}, err
			}
			k.ARP = arp
		case ovskey.KeyAttrMpls:
			if len(a.Data) < 4 {
				return Key{}, fmt.Errorf("flowkey: short mpls attribute: %d bytes", len(a.Data))
			}
			k.MPLS = MPLS{Present: true, LSE: binary.BigEndian.Uint32(a.Data)}
		case ovskey.KeyAttrTcp:
			if len(a.Data) < 4 {
				return Key{}, fmt.Errorf("flowkey: short tcp attribute: %d bytes", len(a.Data))
			}
			k.TCP = TCP{Present: true, Src: binary.BigEndian.Uint16(a.Data[0:2]), Dst: binary.BigEndian.Uint16(a.Data[2:4])}
		case ovskey.KeyAttrUdp:
			if len(a.Data) < 4 {
				return Key{}, fmt.Errorf("flowkey: short udp attribute: %d bytes", len(a.Data))
			}
			k.UDP = UDP{Present: true, Src: binary.BigEndian.Uint16(a.Data[0:2]), Dst: binary.BigEndian.Uint16(a.Data[2:4])}
		case ovskey.KeyAttrIcmp:
			if len(a.Data) < 2 {
				return Key{}, fmt.Errorf("flowkey: short icmp attribute: %d bytes", len(a.Data))
			}
			k.ICMP = ICMP{Present: true, Type: a.Data[0], Code: a.Data[1]}
		case ovskey.KeyAttrIcmpv6:
			if len(a.Data) < 2 {
				return Key{}, fmt.Errorf("flowkey: short icmpv6 attribute: %d bytes", len(a.Data))
			}
			k.ICMP = ICMP{Present: true, Type: a.Data[0], Code: a.Data[1]}
		}
	}

	return k, nil
}
