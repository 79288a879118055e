// Package ovskey holds the attribute-type and command constants for the
// length-prefixed, type-tagged attribute stream used by flow keys, actions,
// and upcall envelopes. The numbering is adapted from the Open vSwitch
// kernel datapath's own generic netlink attribute enumerations, so a
// wire-level dump of a key or action stream reads the same as the real
// thing.
package ovskey

// Key attribute types, as carried in a flow key or mask attribute stream.
const (
	KeyAttrUnspec = iota
	KeyAttrEncap
	KeyAttrPriority
	KeyAttrInPort
	KeyAttrEthernet
	KeyAttrVlan
	KeyAttrEthertype
	KeyAttrIpv4
	KeyAttrIpv6
	KeyAttrTcp
	KeyAttrUdp
	KeyAttrIcmp
	KeyAttrIcmpv6
	KeyAttrArp
	KeyAttrMpls
	KeyAttrTcpFlags
	// KeyAttrSkbMark and KeyAttrTunnel are accepted in a SET action's
	// nested key attribute and ignored (spec §4.3); this module carries
	// no skb mark or tunnel state to rewrite.
	KeyAttrSkbMark
	KeyAttrTunnel
)

// Action attribute types, as carried in an action attribute stream.
const (
	ActionAttrUnspec = iota
	ActionAttrOutput
	ActionAttrUserspace
	ActionAttrSet
	ActionAttrPushVlan
	ActionAttrPopVlan
	ActionAttrSample
	ActionAttrPushMpls
	ActionAttrPopMpls
)

// Userspace action nested-attribute types (ActionAttrUserspace payload).
const (
	UserspaceAttrUnspec = iota
	UserspaceAttrUserdata
)

// Sample action nested-attribute types (ActionAttrSample payload).
const (
	SampleAttrUnspec = iota
	SampleAttrProbability
	SampleAttrActions
)

// Packet-family commands, used as the Header.Command of an upcall
// envelope to distinguish the two upcall kinds named in the spec.
const (
	PacketCmdUnspec = iota
	PacketCmdMiss
	PacketCmdAction
)

// Reserved port numbers used by the key schema and port table.
const (
	PortLocal = 0
	// PortNone is the "no ingress port known" sentinel, used when a key
	// is synthesized rather than parsed off the wire.
	PortNone = 0xffff
	// PortMax is the top of the in_port range just below PortNone. It is
	// not an accepted in_port: ValidateInPort rejects it along with every
	// value from MaxPorts up to it.
	PortMax = 0xfffe
)
