package action

import (
	"encoding/binary"
	"fmt"

	"github.com/mdlayher/netlink"
	"github.com/mdlayher/netlink/nlenc"

	"github.com/vswitchd/dpcore/dpcore/internal/ovskey"
)

// Decode parses a length-prefixed, type-tagged action attribute stream
// into an ordered List, walking it exactly once (spec §4.3). A truncated
// attribute is a malformed blob: spec §4.3/§7 treat that as an invariant
// violation the caller should abort on, so Decode returns an error rather
// than guessing at a partial record. An attribute type outside the
// recognized set is a programming-error assertion in a well-formed blob;
// Decode reports it as an error too, leaving the abort-or-log decision to
// the caller (Datapath.Process panics on it; tests check the error).
func Decode(b []byte) (List, error) {
	attrs, err := netlink.UnmarshalAttributes(b)
	if err != nil {
		return nil, fmt.Errorf("action: decode: %w", err)
	}

	list := make(List, 0, len(attrs))
	for _, a := range attrs {
		act, err := decodeOne(a)
		if err != nil {
			return nil, err
		}
		list = append(list, act)
	}
	return list, nil
}

func decodeOne(a netlink.Attribute) (Action, error) {
	switch int(a.Type) {
	case ovskey.ActionAttrOutput:
		if len(a.Data) < 4 {
			return nil, fmt.Errorf("action: short output attribute: %d bytes", len(a.Data))
		}
		return Output{Port: nlenc.Uint32(a.Data)}, nil

	case ovskey.ActionAttrUserspace:
		nested, err := netlink.UnmarshalAttributes(a.Data)
		if err != nil {
			return nil, fmt.Errorf("action: userspace: %w", err)
		}
		var u Userspace
		for _, n := range nested {
			if int(n.Type) == ovskey.UserspaceAttrUserdata {
				u.Userdata = append([]byte(nil), n.Data...)
			}
		}
		return u, nil

	case ovskey.ActionAttrPushVlan:
		if len(a.Data) < 2 {
			return nil, fmt.Errorf("action: short push_vlan attribute: %d bytes", len(a.Data))
		}
		return PushVLAN{TCI: binary.BigEndian.Uint16(a.Data)}, nil

	case ovskey.ActionAttrPopVlan:
		return PopVLAN{}, nil

	case ovskey.ActionAttrPushMpls:
		if len(a.Data) < 6 {
			return nil, fmt.Errorf("action: short push_mpls attribute: %d bytes", len(a.Data))
		}
		return PushMPLS{
			EtherType: binary.BigEndian.Uint16(a.Data[0:2]),
			LSE:       binary.BigEndian.Uint32(a.Data[2:6]),
		}, nil

	case ovskey.ActionAttrPopMpls:
		if len(a.Data) < 2 {
			return nil, fmt.Errorf("action: short pop_mpls attribute: %d bytes", len(a.Data))
		}
		return PopMPLS{EtherType: binary.BigEndian.Uint16(a.Data)}, nil

	case ovskey.ActionAttrSet:
		fields, err := decodeSetFields(a.Data)
		if err != nil {
			return nil, err
		}
		return Set{Fields: fields}, nil

	case ovskey.ActionAttrSample:
		nested, err := netlink.UnmarshalAttributes(a.Data)
		if err != nil {
			return nil, fmt.Errorf("action: sample: %w", err)
		}
		var s Sample
		for _, n := range nested {
			switch int(n.Type) {
			case ovskey.SampleAttrProbability:
				if len(n.Data) < 4 {
					return nil, fmt.Errorf("action: short sample probability: %d bytes", len(n.Data))
				}
				s.Probability = nlenc.Uint32(n.Data)
			case ovskey.SampleAttrActions:
				nestedActions, err := Decode(n.Data)
				if err != nil {
					return nil, fmt.Errorf("action: sample actions: %w", err)
				}
				s.Actions = nestedActions
			}
		}
		return s, nil

	default:
		return nil, fmt.Errorf("action: unrecognized action attribute type %d", a.Type)
	}
}

func decodeSetFields(b []byte) (SetFields, error) {
	attrs, err := netlink.UnmarshalAttributes(b)
	if err != nil {
		return SetFields{}, fmt.Errorf("action: set: %w", err)
	}

	var f SetFields
	for _, a := range attrs {
		switch int(a.Type) {
		case ovskey.KeyAttrEthernet:
			if len(a.Data) < 12 {
				return SetFields{}, fmt.Errorf("action: set: short ethernet attribute")
			}
			var e EthSet
			copy(e.Dst[:], a.Data[0:6])
			copy(e.Src[:], a.Data[6:12])
			f.Eth = &e
		case ovskey.KeyAttrIpv4:
			if len(a.Data) < 12 {
				return SetFields{}, fmt.Errorf("action: set: short ipv4 attribute")
			}
			var ip IPv4Set
			copy(ip.Src[:], a.Data[0:4])
			copy(ip.Dst[:], a.Data[4:8])
			ip.Tos = a.Data[9]
			ip.Ttl = a.Data[10]
			f.IPv4 = &ip
		case ovskey.KeyAttrIpv6:
			if len(a.Data) < 40 {
				return SetFields{}, fmt.Errorf("action: set: short ipv6 attribute")
			}
			var ip IPv6Set
			copy(ip.Src[:], a.Data[0:16])
			copy(ip.Dst[:], a.Data[16:32])
			ip.Label = binary.BigEndian.Uint32(a.Data[32:36])
			ip.Proto = a.Data[36]
			ip.Tclass = a.Data[37]
			ip.Hlimit = a.Data[38]
			f.IPv6 = &ip
		case ovskey.KeyAttrTcp:
			if len(a.Data) < 4 {
				return SetFields{}, fmt.Errorf("action: set: short tcp attribute")
			}
			f.TCP = &TCPSet{Src: binary.BigEndian.Uint16(a.Data[0:2]), Dst: binary.BigEndian.Uint16(a.Data[2:4])}
		case ovskey.KeyAttrUdp:
			if len(a.Data) < 4 {
				return SetFields{}, fmt.Errorf("action: set: short udp attribute")
			}
			f.UDP = &UDPSet{Src: binary.BigEndian.Uint16(a.Data[0:2]), Dst: binary.BigEndian.Uint16(a.Data[2:4])}
		case ovskey.KeyAttrMpls:
			if len(a.Data) < 4 {
				return SetFields{}, fmt.Errorf("action: set: short mpls attribute")
			}
			f.MPLS = &MPLSSet{LSE: binary.BigEndian.Uint32(a.Data)}
		case ovskey.KeyAttrTunnel, ovskey.KeyAttrPriority, ovskey.KeyAttrSkbMark:
			// Accepted and ignored, per spec §4.3.
		}
	}
	return f, nil
}

// Encode serializes a List back into an attribute stream. It is the
// inverse of Decode; Registry.FlowPut uses it to store an action list as
// the flow entry's blob, and tests use it to build streams.
func Encode(list List) []byte {
	var attrs []netlink.Attribute
	for _, a := range list {
		attrs = append(attrs, encodeOne(a))
	}
	b, err := netlink.MarshalAttributes(attrs)
	if err != nil {
		panic(fmt.Sprintf("action: unreachable marshal error: %v", err))
	}
	return b
}

func encodeOne(a Action) netlink.Attribute {
	switch v := a.(type) {
	case Output:
		return netlink.Attribute{Type: ovskey.ActionAttrOutput, Data: nlenc.Uint32Bytes(v.Port)}
	case Userspace:
		nested := []netlink.Attribute{{Type: ovskey.UserspaceAttrUserdata, Data: v.Userdata}}
		b, _ := netlink.MarshalAttributes(nested)
		return netlink.Attribute{Type: ovskey.ActionAttrUserspace, Data: b}
	case PushVLAN:
		b := make([]byte, 2)
		binary.BigEndian.PutUint16(b, v.TCI)
		return netlink.Attribute{Type: ovskey.ActionAttrPushVlan, Data: b}
	case PopVLAN:
		return netlink.Attribute{Type: ovskey.ActionAttrPopVlan}
	case PushMPLS:
		b := make([]byte, 6)
		binary.BigEndian.PutUint16(b[0:2], v.EtherType)
		binary.BigEndian.PutUint32(b[2:6], v.LSE)
		return netlink.Attribute{Type: ovskey.ActionAttrPushMpls, Data: b}
	case PopMPLS:
		b := make([]byte, 2)
		binary.BigEndian.PutUint16(b, v.EtherType)
		return netlink.Attribute{Type: ovskey.ActionAttrPopMpls, Data: b}
	case Set:
		return netlink.Attribute{Type: ovskey.ActionAttrSet, Data: encodeSetFields(v.Fields)}
	case Sample:
		nested := []netlink.Attribute{
			{Type: ovskey.SampleAttrProbability, Data: nlenc.Uint32Bytes(v.Probability)},
		}
		actionsBytes := Encode(v.Actions)
		nested = append(nested, netlink.Attribute{Type: ovskey.SampleAttrActions, Data: actionsBytes})
		b, _ := netlink.MarshalAttributes(nested)
		return netlink.Attribute{Type: ovskey.ActionAttrSample, Data: b}
	default:
		panic(fmt.Sprintf("action: unreachable action type %T", a))
	}
}

func encodeSetFields(f SetFields) []byte {
	var attrs []netlink.Attribute
	if f.Eth != nil {
		b := make([]byte, 12)
		copy(b[0:6], f.Eth.Dst[:])
		copy(b[6:12], f.Eth.Src[:])
		attrs = append(attrs, netlink.Attribute{Type: ovskey.KeyAttrEthernet, Data: b})
	}
	if f.IPv4 != nil {
		b := make([]byte, 12)
		copy(b[0:4], f.IPv4.Src[:])
		copy(b[4:8], f.IPv4.Dst[:])
		b[9] = f.IPv4.Tos
		b[10] = f.IPv4.Ttl
		attrs = append(attrs, netlink.Attribute{Type: ovskey.KeyAttrIpv4, Data: b})
	}
	if f.IPv6 != nil {
		b := make([]byte, 40)
		copy(b[0:16], f.IPv6.Src[:])
		copy(b[16:32], f.IPv6.Dst[:])
		binary.BigEndian.PutUint32(b[32:36], f.IPv6.Label)
		b[36] = f.IPv6.Proto
		b[37] = f.IPv6.Tclass
		b[38] = f.IPv6.Hlimit
		attrs = append(attrs, netlink.Attribute{Type: ovskey.KeyAttrIpv6, Data: b})
	}
	if f.TCP != nil {
		b := make([]byte, 4)
		binary.BigEndian.PutUint16(b[0:2], f.TCP.Src)
		binary.BigEndian.PutUint16(b[2:4], f.TCP.Dst)
		attrs = append(attrs, netlink.Attribute{Type: ovskey.KeyAttrTcp, Data: b})
	}
	if f.UDP != nil {
		b := make([]byte, 4)
		binary.BigEndian.PutUint16(b[0:2], f.UDP.Src)
		binary.BigEndian.PutUint16(b[2:4], f.UDP.Dst)
		attrs = append(attrs, netlink.Attribute{Type: ovskey.KeyAttrUdp, Data: b})
	}
	if f.MPLS != nil {
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, f.MPLS.LSE)
		attrs = append(attrs, netlink.Attribute{Type: ovskey.KeyAttrMpls, Data: b})
	}
	b, err := netlink.MarshalAttributes(attrs)
	if err != nil {
		panic(fmt.Sprintf("action: unreachable marshal error: %v", err))
	}
	return b
}
