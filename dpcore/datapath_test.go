package dpcore

import (
	"encoding/binary"
	"log"
	"testing"

	"github.com/vswitchd/dpcore/dpcore/action"
	"github.com/vswitchd/dpcore/dpcore/flowkey"
	"github.com/vswitchd/dpcore/dpcore/netdev"
)

func newTestRegistry() *Registry {
	return NewRegistry(false, log.Default())
}

func ethFrame(srcPort, dstPort uint16) []byte {
	f := make([]byte, 64)
	copy(f[0:6], []byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff})
	copy(f[6:12], []byte{1, 2, 3, 4, 5, 6})
	binary.BigEndian.PutUint16(f[12:14], 0x0800)
	f[14] = 0x45
	f[23] = 1 // proto ICMP by default; caller may overwrite
	_ = srcPort
	_ = dstPort
	return f
}

func TestOpenCloseIdempotence(t *testing.T) {
	r := newTestRegistry()

	h1, err := r.Open("x", RealClass, true)
	if err != nil {
		t.Fatalf("open create: %v", err)
	}
	h2, err := r.Open("x", RealClass, false)
	if err != nil {
		t.Fatalf("open existing: %v", err)
	}
	if h1.Datapath() != h2.Datapath() {
		t.Fatal("open existing returned a different datapath")
	}

	r.Close(h1)
	r.Destroy(h2)
	r.Close(h2)

	if names := r.Enumerate(); len(names) != 0 {
		t.Fatalf("registry not empty after close/destroy: %v", names)
	}

	if _, err := r.Open("x", RealClass, false); err == nil {
		t.Fatal("open(create=false) succeeded after datapath was freed")
	}
}

func TestPortNumberAssignmentEndToEnd(t *testing.T) {
	r := newTestRegistry()
	h, err := r.Open("d", DummyClass, true)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer r.Close(h)

	p, err := r.PortAdd(h, netdev.NewDummy("br5", 1500), -1)
	if err != nil || p.Number != 105 {
		t.Fatalf("br5: got (%v, %v), want slot 105", p, err)
	}
	p, err = r.PortAdd(h, netdev.NewDummy("eth3", 1500), -1)
	if err != nil || p.Number != 3 {
		t.Fatalf("eth3: got (%v, %v), want slot 3", p, err)
	}
	p, err = r.PortAdd(h, netdev.NewDummy("zzz", 1500), -1)
	if err != nil || p.Number != 1 {
		t.Fatalf("zzz: got (%v, %v), want slot 1", p, err)
	}
}

func TestMissToUpcall(t *testing.T) {
	r := newTestRegistry()
	h, err := r.Open("d", DummyClass, true)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer r.Close(h)

	frame := ethFrame(0, 0)
	h.Datapath().Process(frame, 1)

	if h.Datapath().Stats().Misses != 1 {
		t.Fatalf("miss count = %d, want 1", h.Datapath().Stats().Misses)
	}

	rec, ok := r.Recv(h)
	if !ok {
		t.Fatal("recv returned nothing after a miss")
	}
	if rec.Kind != 0 {
		t.Fatalf("upcall kind = %v, want miss", rec.Kind)
	}
	if string(rec.Packet) != string(frame) {
		t.Fatal("upcall packet does not match injected frame")
	}
	if rec.Key.InPort != 1 {
		t.Fatalf("upcall key in_port = %d, want 1", rec.Key.InPort)
	}
}

func TestHitAndStats(t *testing.T) {
	r := newTestRegistry()
	h, err := r.Open("d", DummyClass, true)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer r.Close(h)

	outDev := netdev.NewDummy("out", 1500)
	if _, err := r.PortAdd(h, outDev, 3); err != nil {
		t.Fatalf("port add: %v", err)
	}

	key := flowkey.Key{
		InPort: 2,
		Eth: flowkey.Ethernet{
			Dst:     flowkey.EthAddr{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff},
			Src:     flowkey.EthAddr{1, 2, 3, 4, 5, 6},
			EthType: 0x0800,
		},
		IPv4: flowkey.IPv4{Present: true, Proto: 1},
		ICMP: flowkey.ICMP{Present: true},
	}
	list := action.List{action.Output{Port: 3}}
	if err := r.FlowPut(h, key, list); err != nil {
		t.Fatalf("flow put: %v", err)
	}

	frame := make([]byte, 98)
	copy(frame[0:6], []byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff})
	copy(frame[6:12], []byte{1, 2, 3, 4, 5, 6})
	binary.BigEndian.PutUint16(frame[12:14], 0x0800)
	frame[14] = 0x45
	frame[23] = 1

	h.Datapath().Process(frame, 2)

	if h.Datapath().Stats().Hits != 1 {
		t.Fatalf("hit count = %d, want 1", h.Datapath().Stats().Hits)
	}
	entry, ok := r.FlowGet(h, key)
	if !ok {
		t.Fatal("flow disappeared after hit")
	}
	if entry.Stats.Packets != 1 || entry.Stats.Bytes != 98 {
		t.Fatalf("unexpected entry stats: %+v", entry.Stats)
	}

	received, err := outDev.Receive()
	if err != nil {
		t.Fatalf("port 3 did not observe the frame: %v", err)
	}
	if len(received) != len(frame) {
		t.Fatalf("forwarded frame length = %d, want %d", len(received), len(frame))
	}
}

func TestQueueOverflow(t *testing.T) {
	r := newTestRegistry()
	h, err := r.Open("d", DummyClass, true)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer r.Close(h)

	frame := ethFrame(0, 0)
	for i := 0; i < 200; i++ {
		h.Datapath().Process(frame, 1)
	}

	if got := h.Datapath().Stats().Lost; got != 72 {
		t.Fatalf("lost count = %d, want 72", got)
	}

	n := 0
	for {
		if _, ok := r.Recv(h); !ok {
			break
		}
		n++
	}
	if n != 128 {
		t.Fatalf("dequeued %d upcalls, want 128", n)
	}
}

func TestActionInterpretation(t *testing.T) {
	r := newTestRegistry()
	h, err := r.Open("d", DummyClass, true)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer r.Close(h)

	outDev := netdev.NewDummy("out", 1500)
	if _, err := r.PortAdd(h, outDev, 2); err != nil {
		t.Fatalf("port add: %v", err)
	}

	key := flowkey.Key{
		InPort: 1,
		Eth: flowkey.Ethernet{
			Src:     flowkey.EthAddr{1, 2, 3, 4, 5, 6},
			EthType: 0x0800,
		},
		IPv4: flowkey.IPv4{Present: true},
	}
	dst := flowkey.EthAddr{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}
	list := action.List{
		action.PushVLAN{TCI: 0x1064},
		action.Set{Fields: action.SetFields{Eth: &action.EthSet{Dst: dst}}},
		action.Output{Port: 2},
	}
	if err := r.FlowPut(h, key, list); err != nil {
		t.Fatalf("flow put: %v", err)
	}

	frame := make([]byte, 64)
	copy(frame[6:12], []byte{1, 2, 3, 4, 5, 6})
	binary.BigEndian.PutUint16(frame[12:14], 0x0800)

	h.Datapath().Process(frame, 1)

	out, err := outDev.Receive()
	if err != nil {
		t.Fatalf("port 2 did not observe the frame: %v", err)
	}
	if len(out) != len(frame)+4 {
		t.Fatalf("output frame length = %d, want %d", len(out), len(frame)+4)
	}
	if out[12] != 0x81 || out[13] != 0x00 {
		t.Fatalf("output frame missing vlan tag: %x", out[12:14])
	}
	if tci := binary.BigEndian.Uint16(out[14:16]); tci != 0x1064 {
		t.Fatalf("tci = 0x%04x, want 0x1064", tci)
	}
	for i, b := range dst {
		if out[i] != b {
			t.Fatalf("output frame dst mac = %x, want %x", out[0:6], dst)
		}
	}
}
