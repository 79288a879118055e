// Package dpcore implements the core of a userspace software datapath: a
// packet-switching engine that classifies frames against a flow table,
// executes a programmable action list on matches, and surfaces unmatched
// (or explicitly redirected) packets to a controlling client as upcalls.
//
// The management CLI, tunnel drivers, the raw network device, and the
// wire protocol by which remote clients issue requests are external
// collaborators; this package only names their contracts (netdev.Device
// for the device side) and implements everything on this side of them.
package dpcore

import (
	"fmt"
	"sync"
	"time"

	"github.com/vswitchd/dpcore/dpcore/action"
	"github.com/vswitchd/dpcore/dpcore/flowkey"
	"github.com/vswitchd/dpcore/dpcore/flowtable"
	"github.com/vswitchd/dpcore/dpcore/internal/ratelimit"
	"github.com/vswitchd/dpcore/dpcore/netdev"
	"github.com/vswitchd/dpcore/dpcore/port"
	"github.com/vswitchd/dpcore/dpcore/upcall"
)

// Class distinguishes a "real" datapath from the "dummy" variant used in
// tests (spec §3). It gates which errors netdev operations are allowed to
// return without being treated as fatal.
type Class string

const (
	// RealClass is the production device class.
	RealClass Class = "system"
	// DummyClass is the test-only device class; its ports tolerate
	// netdev.ErrNotSupported from Listen.
	DummyClass Class = "dummy"
)

// Stats is the cumulative counter block named in spec §3.
type Stats struct {
	Hits   uint64
	Misses uint64
	Lost   uint64
}

// Datapath is a named packet-switching engine: it owns a port table, a
// flow table, and a pair of upcall queues, and tracks a reference count
// and destroyed flag for registry-managed lifecycle (spec §4.7).
type Datapath struct {
	name    string
	class   Class
	log     *ratelimit.Logger
	threaded bool

	refMu     sync.Mutex
	refCount  int
	destroyed bool

	ports *port.Table
	flows *flowtable.Table
	queue *upcall.Queue

	statsMu sync.Mutex
	stats   Stats
}

// newDatapath constructs a datapath with an installed local port, per
// spec §3's "created on first open" lifecycle. threaded selects whether
// its upcall queue is backed by a self-pipe.
func newDatapath(name string, class Class, threaded bool, log *ratelimit.Logger) (*Datapath, error) {
	q, err := upcall.New(threaded, log)
	if err != nil {
		return nil, fmt.Errorf("dpcore: %s: upcall queue: %w", name, err)
	}

	d := &Datapath{
		name:     name,
		class:    class,
		log:      log,
		threaded: threaded,
		refCount: 1,
		ports:    port.New(),
		flows:    flowtable.New(),
		queue:    q,
	}

	local := netdev.NewDummy(name+"-local", 65536)
	if _, err := d.ports.Add(local, port.LocalPort, class == DummyClass); err != nil {
		return nil, fmt.Errorf("dpcore: %s: installing local port: %w", name, err)
	}
	return d, nil
}

// Name returns the datapath's name.
func (d *Datapath) Name() string { return d.name }

// Class returns the datapath's class tag.
func (d *Datapath) Class() Class { return d.class }

// Stats returns a snapshot of the cumulative counters.
func (d *Datapath) Stats() Stats {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	return d.stats
}

// Ports returns the datapath's port table, for add/del/query/dump/poll
// operations (spec §4.8).
func (d *Datapath) Ports() *port.Table { return d.ports }

// Flows returns the datapath's flow table, for get/put/del/flush/dump
// operations (spec §4.8).
func (d *Datapath) Flows() *flowtable.Table { return d.flows }

// PortChangeSerial returns the port table's current change serial.
func (d *Datapath) PortChangeSerial() uint64 { return d.ports.Serial() }

func (d *Datapath) ref() {
	d.refMu.Lock()
	d.refCount++
	d.refMu.Unlock()
}

// unref decrements the reference count and reports whether the datapath
// should now be freed (count reached zero and destroy was requested).
func (d *Datapath) unref() bool {
	d.refMu.Lock()
	defer d.refMu.Unlock()
	d.refCount--
	return d.refCount <= 0 && d.destroyed
}

// destroy marks the datapath for destruction; it is freed once the
// reference count also reaches zero.
func (d *Datapath) destroy() bool {
	d.refMu.Lock()
	defer d.refMu.Unlock()
	d.destroyed = true
	return d.refCount <= 0
}

func (d *Datapath) free() {
	for _, p := range d.ports.Dump() {
		_ = d.ports.Delete(p.Number)
	}
	d.queue.Close()
}

// Execute runs list against pkt via the action interpreter, using this
// datapath as the Sink: OUTPUT looks the port up in the port table and
// sends on its device (silently dropping if absent), and USERSPACE
// enqueues an explicit upcall. It returns the final packet bytes.
func (d *Datapath) Execute(list action.List, pkt []byte, key flowkey.Key) []byte {
	return action.Execute(list, pkt, key, datapathSink{d}, nil)
}

type datapathSink struct{ d *Datapath }

func (s datapathSink) Output(portNum uint32, pkt []byte) {
	p, err := s.d.ports.Query(portNum)
	if err != nil {
		return
	}
	_ = p.Dev.Send(pkt)
}

func (s datapathSink) Userspace(userdata []byte, key flowkey.Key, pkt []byte) {
	s.d.queue.Enqueue(upcall.KindUserspace, upcall.Record{
		Kind:     upcall.KindUserspace,
		Key:      key,
		Userdata: userdata,
		Packet:   append([]byte(nil), pkt...),
	})
}

// Process runs spec §4.5's fast path for one frame received on inPort: it
// discards short frames, extracts the key, and either runs the hit path
// (stats update + action interpreter) or the miss path (counter bump +
// upcall enqueue, or lost-counter bump on overflow).
func (d *Datapath) Process(frame []byte, inPort uint32) {
	key, err := flowkey.Extract(frame, inPort)
	if err != nil {
		return
	}

	entry, ok := d.flows.Lookup(key)
	if !ok {
		d.statsMu.Lock()
		d.stats.Misses++
		d.statsMu.Unlock()

		accepted := d.queue.Enqueue(upcall.KindMiss, upcall.Record{
			Kind:   upcall.KindMiss,
			Key:    key,
			Packet: append([]byte(nil), frame...),
		})
		if !accepted {
			d.statsMu.Lock()
			d.stats.Lost++
			d.statsMu.Unlock()
		}
		return
	}

	d.statsMu.Lock()
	d.stats.Hits++
	d.statsMu.Unlock()

	d.flows.RecordHit(entry, uint64(time.Now().UnixMilli()), uint32(len(frame)), flowkey.TCPFlags(frame))

	list, err := action.Decode(entry.Actions)
	if err != nil {
		panic(fmt.Sprintf("dpcore: %s: decoding stored actions: %v", d.name, err))
	}
	d.Execute(list, frame, key)
}

// Recv dequeues the oldest pending upcall record, per spec §4.6.
func (d *Datapath) Recv() (upcall.Record, bool) {
	return d.queue.Dequeue()
}

// RecvWait reports whether a client waiting on upcalls should wake now:
// true if either ring is non-empty. In threaded mode the datapath's
// self-pipe fd (see WakeFD) is the thing callers actually poll on; this
// method backs the cooperative-mode immediate-wake path (spec §4.6).
func (d *Datapath) RecvWait() bool {
	return d.queue.NonEmpty()
}

// WakeFD returns the upcall queue's self-pipe read end for inclusion in a
// poll set, or -1 in cooperative mode.
func (d *Datapath) WakeFD() int {
	return d.queue.WakeFD()
}

// RecvPurge discards every pending upcall record for this datapath by
// draining both rings without returning them.
func (d *Datapath) RecvPurge() {
	for {
		if _, ok := d.queue.Dequeue(); !ok {
			return
		}
	}
}

// Run visits every port once, performing a single non-blocking receive
// and running Process on any frame obtained (spec §4.5's cooperative
// mode). It is a no-op in threaded mode, where the worker thread performs
// ingress instead.
func (d *Datapath) Run() {
	if d.threaded {
		return
	}
	for _, p := range d.ports.Dump() {
		frame, err := p.Dev.Receive()
		if err != nil {
			if err != netdev.ErrAgain {
				d.log.Errorf("dpcore: %s: port %d: receive: %v", d.name, p.Number, err)
			}
			continue
		}
		d.Process(frame, p.Number)
	}
}
