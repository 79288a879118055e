package dpcore

import (
	"github.com/vswitchd/dpcore/dpcore/action"
	"github.com/vswitchd/dpcore/dpcore/errs"
	"github.com/vswitchd/dpcore/dpcore/flowkey"
	"github.com/vswitchd/dpcore/dpcore/flowtable"
	"github.com/vswitchd/dpcore/dpcore/netdev"
	"github.com/vswitchd/dpcore/dpcore/port"
	"github.com/vswitchd/dpcore/dpcore/upcall"
)

// Provider is the descriptor a registry publishes to a higher-level
// bridge layer (spec §4.8): every control and fast-path operation this
// core exposes. *Registry implements it directly; the real and dummy
// classes share one implementation and differ only by the Class tag
// passed to Open, so there is nothing to override per class beyond that
// tag — unlike the real datapath, this core has no class-specific
// behavior to dispatch on beyond the netdev ErrNotSupported tolerance
// already handled in port.Table.Add.
type Provider interface {
	Enumerate() []string
	Open(name string, class Class, create bool) (*Handle, error)
	Close(h *Handle)
	Destroy(h *Handle)

	Run(h *Handle)
	Wait(h *Handle) bool
	Stats(h *Handle) Stats

	PortAdd(h *Handle, dev netdev.Device, requestedNumber int) (*port.Port, error)
	PortDel(h *Handle, number uint32) error
	PortQuery(h *Handle, number uint32) (*port.Port, error)
	PortDump(h *Handle) []*port.Port
	PortPoll(h *Handle) bool

	FlowGet(h *Handle, key flowkey.Key) (*flowtable.Entry, bool)
	FlowPut(h *Handle, key flowkey.Key, actions action.List) error
	FlowDel(h *Handle, key flowkey.Key) (flowtable.Stats, error)
	FlowFlush(h *Handle)
	FlowDump(h *Handle, cursor flowtable.Cursor) (*flowtable.Entry, flowtable.Cursor, bool)

	Execute(h *Handle, key flowkey.Key, pkt []byte, list action.List) []byte

	RecvSet(h *Handle, enabled bool)
	Recv(h *Handle) (upcall.Record, bool)
	RecvWait(h *Handle) bool
	RecvPurge(h *Handle)
}

var _ Provider = (*Registry)(nil)

// Run is the provider-level entry point for spec §4.5's cooperative
// ingress: it visits every port of h's datapath once.
func (r *Registry) Run(h *Handle) {
	h.dp.Run()
}

// Wait reports whether the host's poll loop should consider h's datapath
// ready: true if either upcall ring is non-empty. It does not check the
// ports for pending frames and registers no port fds with the host.
func (r *Registry) Wait(h *Handle) bool {
	return h.dp.RecvWait()
}

// Stats returns h's datapath's cumulative counters.
func (r *Registry) Stats(h *Handle) Stats {
	return h.dp.Stats()
}

// PortAdd installs dev at requestedNumber (or a name-derived slot when
// requestedNumber is negative), tolerating netdev.ErrNotSupported from
// Listen only when h's class is DummyClass.
func (r *Registry) PortAdd(h *Handle, dev netdev.Device, requestedNumber int) (*port.Port, error) {
	return h.dp.Ports().Add(dev, requestedNumber, h.class == DummyClass)
}

// PortDel removes the port at number.
func (r *Registry) PortDel(h *Handle, number uint32) error {
	return h.dp.Ports().Delete(number)
}

// PortQuery returns the port installed at number.
func (r *Registry) PortQuery(h *Handle, number uint32) (*port.Port, error) {
	return h.dp.Ports().Query(number)
}

// PortDump returns every installed port, in insertion order.
func (r *Registry) PortDump(h *Handle) []*port.Port {
	return h.dp.Ports().Dump()
}

// PortPoll reports whether the port-change serial has advanced since h
// was opened or last polled.
func (r *Registry) PortPoll(h *Handle) bool {
	return h.Changed()
}

// FlowGet looks key up in h's datapath's flow table.
func (r *Registry) FlowGet(h *Handle, key flowkey.Key) (*flowtable.Entry, bool) {
	return h.dp.Flows().Lookup(key)
}

// FlowPut installs key with the encoded action list. A key whose in_port
// fails flowkey.ValidateInPort is rejected with errs.Invalid. Before inserting, it
// round-trips key through the attribute-stream encode/decode pair (spec
// §4.1): a mismatch there is a programming error in the codec itself, not
// a caller mistake, so it's logged rather than returned.
func (r *Registry) FlowPut(h *Handle, key flowkey.Key, list action.List) error {
	if !flowkey.ValidateInPort(key.InPort, port.MaxPorts) {
		return errs.Invalid
	}
	if decoded, err := flowkey.Decode(flowkey.Encode(key)); err != nil || decoded != key {
		h.dp.log.Errorf("dpcore: %s: flow key round-trip mismatch on put", h.dp.name)
	}

	_, err := h.dp.Flows().Insert(key, action.Encode(list))
	return err
}

// FlowDel removes key, returning its stats at time of removal.
func (r *Registry) FlowDel(h *Handle, key flowkey.Key) (flowtable.Stats, error) {
	return h.dp.Flows().Delete(key)
}

// FlowFlush deletes every flow entry in h's datapath.
func (r *Registry) FlowFlush(h *Handle) {
	h.dp.Flows().Flush()
}

// FlowDump returns the entry at cursor and the next cursor.
func (r *Registry) FlowDump(h *Handle, cursor flowtable.Cursor) (*flowtable.Entry, flowtable.Cursor, bool) {
	return h.dp.Flows().Dump(cursor)
}

// Execute runs list against pkt under key, without consulting the flow
// table: the bridge layer uses this to test an action list directly.
func (r *Registry) Execute(h *Handle, key flowkey.Key, pkt []byte, list action.List) []byte {
	return h.dp.Execute(list, pkt, key)
}

// RecvSet is a provider-level no-op in this implementation: upcall
// delivery is always enabled once a datapath exists, since the queues
// themselves have no independent on/off switch in spec §4.6. It exists
// so Provider matches the full operation set named in spec §4.8.
func (r *Registry) RecvSet(h *Handle, enabled bool) {}

// Recv dequeues the oldest pending upcall record.
func (r *Registry) Recv(h *Handle) (upcall.Record, bool) {
	return h.dp.Recv()
}

// RecvWait reports whether a client waiting on upcalls should wake now.
func (r *Registry) RecvWait(h *Handle) bool {
	return h.dp.RecvWait()
}

// RecvPurge discards every pending upcall record for h's datapath.
func (r *Registry) RecvPurge(h *Handle) {
	h.dp.RecvPurge()
}
