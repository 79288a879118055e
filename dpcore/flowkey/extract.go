package flowkey

import (
	"encoding/binary"
	"fmt"

	"github.com/vswitchd/dpcore/dpcore/internal/ovskey"
)

// Header lengths used while walking a frame.
const (
	EthHeaderLen  = 14
	VLANHeaderLen = 4
	ipv4MinLen    = 20
	ipv6Len       = 40
	arpLen        = 28
	tcpMinLen     = 20
	udpLen        = 8
	icmpMinLen    = 4

	// Headroom covers one VLAN tag plus two bytes of slack for
	// alignment, matching spec §6's HEADROOM constant. No code in this
	// module reserves or reads it: PUSH_VLAN (package action) copies the
	// frame into a new, longer buffer rather than growing it in place.
	Headroom = 2 + VLANHeaderLen
)

const (
	ethTypeVLAN = 0x8100
	ethTypeIPv4 = 0x0800
	ethTypeIPv6 = 0x86dd
	ethTypeARP  = 0x0806
	ethTypeMPLS = 0x8847

	ipProtoICMP   = 1
	ipProtoTCP    = 6
	ipProtoUDP    = 17
	ipProtoICMPv6 = 58
)

// ErrShortFrame is returned by Extract when the frame is shorter than an
// Ethernet header, per spec §4.1: such frames are discarded before lookup.
var ErrShortFrame = fmt.Errorf("flowkey: frame shorter than an ethernet header")

// Extract parses a raw frame into its canonical Key. inPort must already
// have been validated by the caller (spec §4.1's ingress-port constraint
// is enforced at insertion time, not extraction time, since a miss upcall
// carries a key for a port that is — by definition — not yet in any
// flow).
func Extract(frame []byte, inPort uint32) (Key, error) {
	if len(frame) < EthHeaderLen {
		return Key{}, ErrShortFrame
	}

	var k Key
	k.InPort = inPort

	copy(k.Eth.Dst[:], frame[0:6])
	copy(k.Eth.Src[:], frame[6:12])

	off := 12
	ethType := binary.BigEndian.Uint16(frame[off : off+2])
	off += 2

	if ethType == ethTypeVLAN {
		if len(frame) < off+4 {
			return k, nil
		}
		tci := binary.BigEndian.Uint16(frame[off : off+2])
		inner := binary.BigEndian.Uint16(frame[off+2 : off+4])
		k.VLAN = VLAN{Present: true, TCI: tci}
		off += 4
		ethType = inner
	}

	k.Eth.EthType = ethType
	payload := frame[off:]

	switch ethType {
	case ethTypeIPv4:
		parseIPv4(payload, &k)
	case ethTypeIPv6:
		parseIPv6(payload, &k)
	case ethTypeARP:
		parseARP(payload, &k)
	case ethTypeMPLS:
		parseMPLS(payload, &k)
	}

	return k, nil
}

func parseIPv4(b []byte, k *Key) {
	if len(b) < ipv4MinLen {
		return
	}
	ihl := int(b[0]&0x0f) * 4
	if ihl < ipv4MinLen || len(b) < ihl {
		ihl = ipv4MinLen
	}

	var ip IPv4
	ip.Present = true
	ip.Tos = b[1]
	flagsFrag := binary.BigEndian.Uint16(b[6:8])
	if flagsFrag&0x2000 != 0 { // MF
		ip.Frag = 1
	} else if flagsFrag&0x1fff != 0 { // fragment offset set, no MF: last fragment
		ip.Frag = 2
	}
	ip.Ttl = b[8]
	ip.Proto = b[9]
	copy(ip.Src[:], b[12:16])
	copy(ip.Dst[:], b[16:20])
	k.IPv4 = ip

	if len(b) < ihl {
		return
	}
	l4 := b[ihl:]
	switch ip.Proto {
	case ipProtoTCP:
		parseTCP(l4, k)
	case ipProtoUDP:
		parseUDP(l4, k)
	case ipProtoICMP:
		parseICMP(l4, k)
	}
}

func parseIPv6(b []byte, k *Key) {
	if len(b) < ipv6Len {
		return
	}
	var ip IPv6
	ip.Present = true
	vtf := binary.BigEndian.Uint32(b[0:4])
	ip.Tclass = uint8((vtf >> 20) & 0xff)
	ip.Label = vtf & 0xfffff
	ip.Proto = b[6]
	ip.Hlimit = b[7]
	copy(ip.Src[:], b[8:24])
	copy(ip.Dst[:], b[24:40])
	k.IPv6 = ip

	l4 := b[ipv6Len:]
	switch ip.Proto {
	case ipProtoTCP:
		parseTCP(l4, k)
	case ipProtoUDP:
		parseUDP(l4, k)
	case ipProtoICMPv6:
		parseICMP(l4, k)
	}
}

func parseARP(b []byte, k *Key) {
	if len(b) < arpLen {
		return
	}
	var a ARP
	a.Present = true
	a.Op = binary.BigEndian.Uint16(b[6:8])
	copy(a.SHA[:], b[8:14])
	copy(a.SIP[:], b[14:18])
	copy(a.THA[:], b[18:24])
	copy(a.TIP[:], b[24:28])
	k.ARP = a
}

func parseMPLS(b []byte, k *Key) {
	if len(b) < 4 {
		return
	}
	k.MPLS = MPLS{Present: true, LSE: binary.BigEndian.Uint32(b[0:4])}
}

func parseTCP(b []byte, k *Key) {
	if len(b) < tcpMinLen {
		return
	}
	k.TCP = TCP{
		Present: true,
		Src:     binary.BigEndian.Uint16(b[0:2]),
		Dst:     binary.BigEndian.Uint16(b[2:4]),
	}
}

func parseUDP(b []byte, k *Key) {
	if len(b) < udpLen {
		return
	}
	k.UDP = UDP{
		Present: true,
		Src:     binary.BigEndian.Uint16(b[0:2]),
		Dst:     binary.BigEndian.Uint16(b[2:4]),
	}
}

func parseICMP(b []byte, k *Key) {
	if len(b) < icmpMinLen {
		return
	}
	k.ICMP = ICMP{Present: true, Type: b[0], Code: b[1]}
}

// TCPFlags extracts the 8-bit TCP flags field from a frame's TCP header,
// for the flow entry's accumulated TCP-flag bitmap (spec §4.2). It returns
// 0 if the frame has no TCP header.
func TCPFlags(frame []byte) uint16 {
	if len(frame) < EthHeaderLen {
		return 0
	}
	off := 12
	ethType := binary.BigEndian.Uint16(frame[off : off+2])
	off += 2
	if ethType == ethTypeVLAN {
		if len(frame) < off+4 {
			return 0
		}
		ethType = binary.BigEndian.Uint16(frame[off+2 : off+4])
		off += 4
	}
	if ethType != ethTypeIPv4 && ethType != ethTypeIPv6 {
		return 0
	}
	b := frame[off:]

	var proto uint8
	var l4off int
	switch ethType {
	case ethTypeIPv4:
		if len(b) < ipv4MinLen {
			return 0
		}
		ihl := int(b[0]&0x0f) * 4
		if ihl < ipv4MinLen {
			ihl = ipv4MinLen
		}
		proto = b[9]
		l4off = ihl
	case ethTypeIPv6:
		if len(b) < ipv6Len {
			return 0
		}
		proto = b[6]
		l4off = ipv6Len
	}
	if proto != ipProtoTCP || len(b) < l4off+tcpMinLen {
		return 0
	}
	return uint16(b[l4off+13])
}

// ValidateInPort checks the ingress-port field of a key being inserted
// into the flow table, per spec §4.1: it must be a valid port slot
// (< maxPorts), the reserved local-port sentinel, or the "no port" value.
func ValidateInPort(inPort uint32, maxPorts uint32) bool {
	return inPort < maxPorts || inPort == ovskey.PortLocal || inPort == ovskey.PortNone
}
