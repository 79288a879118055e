package action

import (
	"encoding/binary"
	"math/rand"
	"testing"

	"github.com/vswitchd/dpcore/dpcore/flowkey"
)

type recordingSink struct {
	outputs    []struct {
		port uint32
		pkt  []byte
	}
	userspace []struct {
		userdata []byte
		pkt      []byte
	}
}

func (s *recordingSink) Output(port uint32, pkt []byte) {
	s.outputs = append(s.outputs, struct {
		port uint32
		pkt  []byte
	}{port, append([]byte(nil), pkt...)})
}

func (s *recordingSink) Userspace(userdata []byte, key flowkey.Key, pkt []byte) {
	s.userspace = append(s.userspace, struct {
		userdata []byte
		pkt      []byte
	}{userdata, append([]byte(nil), pkt...)})
}

func baseFrame() []byte {
	f := make([]byte, 34)
	copy(f[6:12], []byte{1, 2, 3, 4, 5, 6})
	binary.BigEndian.PutUint16(f[12:14], 0x0800)
	return f
}

func TestExecutePushVlanSetOutput(t *testing.T) {
	sink := &recordingSink{}
	dst := flowkey.EthAddr{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}
	list := List{
		PushVLAN{TCI: 0x1064},
		Set{Fields: SetFields{Eth: &EthSet{Dst: dst}}},
		Output{Port: 2},
	}

	out := Execute(list, baseFrame(), flowkey.Key{}, sink, nil)

	if len(sink.outputs) != 1 || sink.outputs[0].port != 2 {
		t.Fatalf("outputs = %+v, want one output on port 2", sink.outputs)
	}
	if len(out) != 38 {
		t.Fatalf("final packet length = %d, want 38", len(out))
	}
	if out[12] != 0x81 || out[13] != 0x00 {
		t.Fatalf("missing vlan tag: %x", out[12:14])
	}
	if tci := binary.BigEndian.Uint16(out[14:16]); tci != 0x1064 {
		t.Fatalf("tci = 0x%04x, want 0x1064", tci)
	}
	for i, b := range dst {
		if out[i] != b {
			t.Fatalf("dst mac = %x, want %x", out[0:6], dst)
		}
	}
}

func TestPopVlanNoopWithoutTag(t *testing.T) {
	f := baseFrame()
	out := apply(PopVLAN{}, f, flowkey.Key{}, &recordingSink{}, nil)
	if len(out) != len(f) {
		t.Fatalf("pop_vlan on untagged frame changed length: %d vs %d", len(out), len(f))
	}
}

func TestPushPopMPLSRoundTrip(t *testing.T) {
	f := baseFrame()
	pushed := apply(PushMPLS{EtherType: 0x8847, LSE: 0x12345678}, f, flowkey.Key{}, &recordingSink{}, nil)
	if len(pushed) != len(f)+4 {
		t.Fatalf("pushed length = %d, want %d", len(pushed), len(f)+4)
	}
	if et := binary.BigEndian.Uint16(pushed[12:14]); et != 0x8847 {
		t.Fatalf("ethertype after push = 0x%04x, want 0x8847", et)
	}

	popped := apply(PopMPLS{EtherType: 0x0800}, pushed, flowkey.Key{}, &recordingSink{}, nil)
	if len(popped) != len(f) {
		t.Fatalf("popped length = %d, want %d", len(popped), len(f))
	}
	if et := binary.BigEndian.Uint16(popped[12:14]); et != 0x0800 {
		t.Fatalf("ethertype after pop = 0x%04x, want 0x0800", et)
	}
}

func TestUserspaceAction(t *testing.T) {
	sink := &recordingSink{}
	list := List{Userspace{Userdata: []byte{9, 9}}}
	Execute(list, baseFrame(), flowkey.Key{InPort: 4}, sink, nil)

	if len(sink.userspace) != 1 {
		t.Fatalf("userspace calls = %d, want 1", len(sink.userspace))
	}
	if string(sink.userspace[0].userdata) != "\x09\x09" {
		t.Fatalf("userdata = %v, want [9 9]", sink.userspace[0].userdata)
	}
}

func TestSampleProbability(t *testing.T) {
	sink := &recordingSink{}
	list := List{Sample{Probability: 0, Actions: List{Output{Port: 1}}}}
	Execute(list, baseFrame(), flowkey.Key{}, sink, rand.New(rand.NewSource(1)))
	if len(sink.outputs) != 0 {
		t.Fatalf("probability-0 sample executed nested actions: %+v", sink.outputs)
	}

	sink = &recordingSink{}
	list = List{Sample{Probability: 0xffffffff, Actions: List{Output{Port: 1}}}}
	Execute(list, baseFrame(), flowkey.Key{}, sink, rand.New(rand.NewSource(1)))
	if len(sink.outputs) != 1 {
		t.Fatalf("near-1.0 sample skipped nested actions: %+v", sink.outputs)
	}
}
