package action

import (
	"encoding/binary"
	"math/rand"

	"github.com/vswitchd/dpcore/dpcore/flowkey"
)

// Sink is the set of side effects an action list can trigger, supplied by
// the datapath so that the interpreter itself stays free of port-table and
// upcall-queue concerns. OUTPUT hands the packet to a port's send
// function, silently dropping it if the port is absent (spec §4.3); the
// interpreter never learns whether the port existed.
type Sink interface {
	Output(port uint32, pkt []byte)
	Userspace(userdata []byte, key flowkey.Key, pkt []byte)
}

// Execute walks list exactly once, in order, applying each action to pkt
// and invoking sink for OUTPUT/USERSPACE. It returns the final packet
// bytes after every mutating action has been applied. key is the flow key
// under which pkt was classified; it is attached to USERSPACE upcalls as
// given (SET rewrites pkt only and leaves key unchanged). rng drives SAMPLE's probability
// check; pass nil to use the package default source.
//
// The interpreter never fails on a well-formed blob: a semantically
// inapplicable action (e.g. POP_VLAN on an untagged packet) is a no-op,
// per spec §4.3/§7. Decode already rejects malformed/unrecognized
// attribute streams before Execute ever sees them.
func Execute(list List, pkt []byte, key flowkey.Key, sink Sink, rng *rand.Rand) []byte {
	for _, a := range list {
		pkt = apply(a, pkt, key, sink, rng)
	}
	return pkt
}

func apply(a Action, pkt []byte, key flowkey.Key, sink Sink, rng *rand.Rand) []byte {
	switch v := a.(type) {
	case Output:
		sink.Output(v.Port, pkt)
		return pkt
	case Userspace:
		sink.Userspace(v.Userdata, key, pkt)
		return pkt
	case PushVLAN:
		return pushVLAN(pkt, v.TCI)
	case PopVLAN:
		return popVLAN(pkt)
	case PushMPLS:
		return pushMPLS(pkt, v.EtherType, v.LSE)
	case PopMPLS:
		return popMPLS(pkt, v.EtherType)
	case Set:
		return applySet(pkt, v.Fields)
	case Sample:
		if rng == nil {
			rng = globalRand
		}
		if rng.Uint32() < v.Probability {
			return Execute(v.Actions, pkt, key, sink, rng)
		}
		return pkt
	default:
		return pkt
	}
}

var globalRand = rand.New(rand.NewSource(1))

const (
	ethTypeVLAN = 0x8100
	mplsUnicast = 0x8847
	mplsMulti   = 0x8848
)

// l2End returns the offset of the ethertype/MPLS-label-stack cursor: 12
// (right after the two MAC addresses), or 16 if an outermost VLAN tag is
// present. Only one VLAN level is tracked, matching flowkey.Key's model.
func l2End(buf []byte) int {
	if len(buf) < 14 {
		return len(buf)
	}
	if binary.BigEndian.Uint16(buf[12:14]) == ethTypeVLAN && len(buf) >= 18 {
		return 16
	}
	return 12
}

func pushVLAN(buf []byte, tci uint16) []byte {
	if len(buf) < 12 {
		return buf
	}
	out := make([]byte, len(buf)+4)
	copy(out[:12], buf[:12])
	out[12], out[13] = 0x81, 0x00
	binary.BigEndian.PutUint16(out[14:16], tci)
	copy(out[16:], buf[12:])
	return out
}

func popVLAN(buf []byte) []byte {
	if len(buf) < 16 || binary.BigEndian.Uint16(buf[12:14]) != ethTypeVLAN {
		return buf
	}
	out := make([]byte, len(buf)-4)
	copy(out[:12], buf[:12])
	copy(out[12:], buf[16:])
	return out
}

func pushMPLS(buf []byte, ethertype uint16, lse uint32) []byte {
	pos := l2End(buf)
	if len(buf) < pos+2 {
		return buf
	}
	out := make([]byte, len(buf)+4)
	copy(out[:pos], buf[:pos])
	binary.BigEndian.PutUint16(out[pos:pos+2], ethertype)
	binary.BigEndian.PutUint32(out[pos+2:pos+6], lse)
	copy(out[pos+6:], buf[pos+2:])
	return out
}

func popMPLS(buf []byte, ethertype uint16) []byte {
	pos := l2End(buf)
	if len(buf) < pos+6 {
		return buf
	}
	cur := binary.BigEndian.Uint16(buf[pos : pos+2])
	if cur != mplsUnicast && cur != mplsMulti {
		return buf
	}
	out := make([]byte, len(buf)-4)
	copy(out[:pos], buf[:pos])
	binary.BigEndian.PutUint16(out[pos:pos+2], ethertype)
	copy(out[pos+2:], buf[pos+6:])
	return out
}

// applySet rewrites header fields in place, following the field layout
// flowkey.Extract itself assumes (no VLAN-stacking beyond one tag, IPv4
// options ignored for the field offsets SET touches).
func applySet(buf []byte, f SetFields) []byte {
	if f.Eth != nil && len(buf) >= 12 {
		copy(buf[0:6], f.Eth.Dst[:])
		copy(buf[6:12], f.Eth.Src[:])
	}

	pos := l2End(buf)
	if len(buf) < pos+2 {
		return buf
	}
	ethType := binary.BigEndian.Uint16(buf[pos : pos+2])
	l3 := buf[pos+2:]

	switch ethType {
	case 0x0800: // IPv4
		if f.IPv4 != nil && len(l3) >= 20 {
			copy(l3[12:16], f.IPv4.Src[:])
			copy(l3[16:20], f.IPv4.Dst[:])
			l3[1] = f.IPv4.Tos
			l3[8] = f.IPv4.Ttl
		}
		applyL4Set(l3, f)
	case 0x86dd: // IPv6
		if f.IPv6 != nil && len(l3) >= 40 {
			copy(l3[8:24], f.IPv6.Src[:])
			copy(l3[24:40], f.IPv6.Dst[:])
			l3[6] = f.IPv6.Proto
			vtf := binary.BigEndian.Uint32(l3[0:4])
			vtf = (vtf & 0xf0000000) | (uint32(f.IPv6.Tclass) << 20) | (f.IPv6.Label & 0xfffff)
			binary.BigEndian.PutUint32(l3[0:4], vtf)
			l3[7] = f.IPv6.Hlimit
		}
		if len(l3) >= 40 {
			applyL4Set(l3[40:], f)
		}
	}

	if f.MPLS != nil && (ethType == mplsUnicast || ethType == mplsMulti) && len(l3) >= 4 {
		binary.BigEndian.PutUint32(l3[0:4], f.MPLS.LSE)
	}

	return buf
}

func applyL4Set(l4 []byte, f SetFields) {
	if f.TCP != nil && len(l4) >= 4 {
		binary.BigEndian.PutUint16(l4[0:2], f.TCP.Src)
		binary.BigEndian.PutUint16(l4[2:4], f.TCP.Dst)
	}
	if f.UDP != nil && len(l4) >= 4 {
		binary.BigEndian.PutUint16(l4[0:2], f.UDP.Src)
		binary.BigEndian.PutUint16(l4[2:4], f.UDP.Dst)
	}
}
