package port

import (
	"testing"

	"github.com/vswitchd/dpcore/dpcore/errs"
	"github.com/vswitchd/dpcore/dpcore/netdev"
)

func TestAssignSlotPolicy(t *testing.T) {
	tbl := New()

	p, err := tbl.Add(netdev.NewDummy("br5", 1500), -1, true)
	if err != nil {
		t.Fatalf("add br5: %v", err)
	}
	if p.Number != 105 {
		t.Fatalf("br5 got slot %d, want 105", p.Number)
	}

	p, err = tbl.Add(netdev.NewDummy("eth3", 1500), -1, true)
	if err != nil {
		t.Fatalf("add eth3: %v", err)
	}
	if p.Number != 3 {
		t.Fatalf("eth3 got slot %d, want 3", p.Number)
	}

	p, err = tbl.Add(netdev.NewDummy("zzz", 1500), -1, true)
	if err != nil {
		t.Fatalf("add zzz: %v", err)
	}
	if p.Number != 1 {
		t.Fatalf("zzz got slot %d, want 1", p.Number)
	}
}

func TestAddRejectsLocalSlot(t *testing.T) {
	tbl := New()
	if _, err := tbl.Add(netdev.NewDummy("x", 1500), 0, true); err != errs.Invalid {
		t.Fatalf("add at slot 0: got %v, want Invalid", err)
	}
}

func TestAddDuplicateSlot(t *testing.T) {
	tbl := New()
	if _, err := tbl.Add(netdev.NewDummy("a", 1500), 5, true); err != nil {
		t.Fatalf("first add: %v", err)
	}
	if _, err := tbl.Add(netdev.NewDummy("b", 1500), 5, true); err != errs.Exists {
		t.Fatalf("second add at same slot: got %v, want Exists", err)
	}
}

func TestDeleteAndSerial(t *testing.T) {
	tbl := New()
	start := tbl.Serial()

	p, err := tbl.Add(netdev.NewDummy("eth0", 1500), -1, true)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if tbl.Serial() != start+1 {
		t.Fatalf("serial after add = %d, want %d", tbl.Serial(), start+1)
	}

	if err := tbl.Delete(p.Number); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if tbl.Serial() != start+2 {
		t.Fatalf("serial after delete = %d, want %d", tbl.Serial(), start+2)
	}
	if _, err := tbl.Query(p.Number); err == nil {
		t.Fatal("query found deleted port")
	}
}

func TestDumpOrder(t *testing.T) {
	tbl := New()
	names := []string{"a1", "b2", "c3"}
	for _, n := range names {
		if _, err := tbl.Add(netdev.NewDummy(n, 1500), -1, true); err != nil {
			t.Fatalf("add %s: %v", n, err)
		}
	}
	dump := tbl.Dump()
	if len(dump) != len(names) {
		t.Fatalf("dump len = %d, want %d", len(dump), len(names))
	}
	for i, n := range names {
		if dump[i].Dev.Name() != n {
			t.Fatalf("dump[%d] = %s, want %s", i, dump[i].Dev.Name(), n)
		}
	}
}
