// Package action implements the action interpreter named in the core
// datapath spec: a single-pass virtual machine over a length-prefixed,
// type-tagged attribute stream (the action half of the same attribute
// shape flowkey uses for keys).
package action

import (
	"fmt"
)

// Action is one decoded element of an action list.
type Action interface {
	fmt.Stringer
	isAction()
}

// Output hands the packet to the named port's send function.
type Output struct{ Port uint32 }

// Userspace enqueues an upcall record tagged as explicit, carrying the
// optional userdata attached by the action.
type Userspace struct{ Userdata []byte }

// PushVLAN inserts a VLAN tag with the given TCI.
type PushVLAN struct{ TCI uint16 }

// PopVLAN removes the outermost VLAN tag; a no-op if none is present.
type PopVLAN struct{}

// PushMPLS inserts an MPLS label stack entry, setting the frame's
// ethertype to EtherType.
type PushMPLS struct {
	EtherType uint16
	LSE       uint32
}

// PopMPLS removes the outermost MPLS entry, restoring EtherType.
type PopMPLS struct{ EtherType uint16 }

// Set overwrites header fields selected by the nested key attribute. Only
// the non-nil groups of Fields are applied; tunnel/priority/mark
// sub-fields are accepted during decode and ignored here, per spec §4.3.
type Set struct{ Fields SetFields }

// Sample recursively executes Actions with probability Probability/2^32;
// otherwise it is a no-op.
type Sample struct {
	Probability uint32
	Actions     []Action
}

func (Output) isAction()    {}
func (Userspace) isAction() {}
func (PushVLAN) isAction()  {}
func (PopVLAN) isAction()   {}
func (PushMPLS) isAction()  {}
func (PopMPLS) isAction()   {}
func (Set) isAction()       {}
func (Sample) isAction()    {}

func (a Output) String() string    { return fmt.Sprintf("output:%d", a.Port) }
func (a Userspace) String() string { return fmt.Sprintf("userspace(userdata=%x)", a.Userdata) }
func (a PushVLAN) String() string  { return fmt.Sprintf("push_vlan(tci=0x%04x)", a.TCI) }
func (PopVLAN) String() string     { return "pop_vlan" }
func (a PushMPLS) String() string {
	return fmt.Sprintf("push_mpls(ethertype=0x%04x,lse=0x%08x)", a.EtherType, a.LSE)
}
func (a PopMPLS) String() string { return fmt.Sprintf("pop_mpls(ethertype=0x%04x)", a.EtherType) }
func (a Set) String() string     { return fmt.Sprintf("set(%s)", a.Fields.String()) }
func (a Sample) String() string  { return fmt.Sprintf("sample(p=%d/2^32,actions(%s))", a.Probability, List(a.Actions)) }

// List is a decoded action list, with a String() that joins its elements
// the way 'ovs-dpctl dump-flows' joins an actions column.
type List []Action

func (l List) String() string {
	s := ""
	for i, a := range l {
		if i > 0 {
			s += ","
		}
		s += a.String()
	}
	return s
}
