package upcall

import (
	"github.com/mdlayher/genetlink"
	"github.com/mdlayher/netlink"
	"github.com/mdlayher/netlink/nlenc"

	"github.com/vswitchd/dpcore/dpcore/flowkey"
	"github.com/vswitchd/dpcore/dpcore/internal/ovskey"
)

// Envelope renders a Record as a genetlink.Message, using the same
// command numbering the real packet family uses to distinguish a miss
// upcall from an explicit userspace one (ovskey.PacketCmdMiss /
// ovskey.PacketCmdAction). There is no socket behind this: it exists so a
// bridge layer consuming Recv can serialize an upcall the same way the
// real datapath's recv path would, without this package taking on the
// wire transport itself.
func (r Record) Envelope() genetlink.Message {
	cmd := ovskey.PacketCmdMiss
	if r.Kind == KindUserspace {
		cmd = ovskey.PacketCmdAction
	}

	attrs := []netlink.Attribute{
		{Type: ovskey.KeyAttrInPort, Data: nlenc.Uint32Bytes(r.Key.InPort)},
		{Type: ovskey.KeyAttrEncap, Data: flowkey.Encode(r.Key)},
	}
	if r.Userdata != nil {
		attrs = append(attrs, netlink.Attribute{Type: ovskey.UserspaceAttrUserdata, Data: r.Userdata})
	}
	attrs = append(attrs, netlink.Attribute{Type: ovskey.KeyAttrUnspec, Data: r.Packet})

	data, err := netlink.MarshalAttributes(attrs)
	if err != nil {
		// Every attribute above carries caller-controlled byte slices;
		// MarshalAttributes only rejects attributes over 64KB, which a
		// genuine upcall packet should never reach.
		data = nil
	}

	return genetlink.Message{
		Header: genetlink.Header{Command: uint8(cmd)},
		Data:   data,
	}
}
