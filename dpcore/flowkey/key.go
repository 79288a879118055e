// Package flowkey implements the packet key extractor named in the core
// datapath spec: it turns a raw frame plus its ingress port into the
// canonical, fixed-size, byte-comparable flow key used by the flow table,
// and it encodes/decodes that key as a length-prefixed attribute stream
// compatible with the action interpreter's SET payloads and the upcall
// envelope's key attribute.
package flowkey

import "fmt"

// EthAddr is a 6-byte Ethernet hardware address.
type EthAddr [6]byte

func (a EthAddr) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", a[0], a[1], a[2], a[3], a[4], a[5])
}

// IPv4Addr is a 4-byte IPv4 address in network byte order.
type IPv4Addr [4]byte

func (a IPv4Addr) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", a[0], a[1], a[2], a[3])
}

// IPv6Addr is a 16-byte IPv6 address in network byte order.
type IPv6Addr [16]byte

// Ethernet is the L2 header portion of a Key, always present.
type Ethernet struct {
	Src, Dst EthAddr
	// EthType is the ethertype following any VLAN tags (i.e. the L3
	// protocol's ethertype, not 0x8100).
	EthType uint16
}

// VLAN is the optional 802.1Q tag carried by a Key.
type VLAN struct {
	Present bool
	TCI     uint16
}

// IPv4 is the optional IPv4 header fields carried by a Key.
type IPv4 struct {
	Present        bool
	Src, Dst       IPv4Addr
	Proto          uint8
	Tos            uint8
	Ttl            uint8
	Frag           uint8
}

// IPv6 is the optional IPv6 header fields carried by a Key.
type IPv6 struct {
	Present           bool
	Src, Dst          IPv6Addr
	Proto             uint8
	Tclass            uint8
	Label             uint32
	Hlimit            uint8
	Frag              uint8
}

// ARP is the optional ARP fields carried by a Key.
type ARP struct {
	Present  bool
	SIP, TIP IPv4Addr
	Op       uint16
	SHA, THA EthAddr
}

// MPLS is the optional outermost MPLS label stack entry carried by a Key.
type MPLS struct {
	Present bool
	LSE     uint32
}

// TCP is the optional TCP port fields carried by a Key.
type TCP struct {
	Present  bool
	Src, Dst uint16
}

// UDP is the optional UDP port fields carried by a Key.
type UDP struct {
	Present  bool
	Src, Dst uint16
}

// ICMP is the optional ICMP type/code fields carried by a Key. It is also
// used for ICMPv6, since the schema distinguishes the two by IPv4.Proto /
// IPv6.Proto rather than by a separate field.
type ICMP struct {
	Present    bool
	Type, Code uint8
}

// Key is the canonical, fixed-size, byte-comparable flow key. Every field
// is a value type (no slices or pointers) so that Key supports == and can
// be used directly as a Go map key, matching spec §3's "fixed-size,
// memcmp-comparable" requirement.
type Key struct {
	// InPort is the ingress port slot, the reserved local-port sentinel
	// (ovskey.PortLocal), or the "no port known" sentinel
	// (ovskey.PortNone) for a synthesized key.
	InPort uint32

	Eth  Ethernet
	VLAN VLAN

	IPv4 IPv4
	IPv6 IPv6
	ARP  ARP
	MPLS MPLS

	TCP  TCP
	UDP  UDP
	ICMP ICMP
}
