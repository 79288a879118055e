// Package port implements the datapath's port table named in spec §4.4:
// a fixed 256-slot array plus an insertion-ordered sibling list, with the
// name-derived port-number assignment policy used when a caller does not
// request a specific slot.
package port

import (
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/vswitchd/dpcore/dpcore/errs"
	"github.com/vswitchd/dpcore/dpcore/netdev"
)

// MaxPorts is the compile-time slot ceiling (spec §6, MAX_PORTS).
const MaxPorts = 256

// LocalPort is the reserved slot for the datapath-local port, created at
// datapath construction.
const LocalPort = 0

// Port is one occupied slot.
type Port struct {
	Number uint32
	Dev     netdev.Device
}

// Table is the 256-slot port array plus its insertion-ordered sibling
// list. The zero value is not usable; use New. A single mutex guards the
// whole table; in a threaded datapath, callers take this lock before the
// flow-table lock (spec §5's port-list-then-flow-table ordering).
type Table struct {
	mu      sync.Mutex
	slots   [MaxPorts]*Port
	order   []*Port
	serial  uint64
}

// New returns an empty table.
func New() *Table {
	return &Table{}
}

var digits = regexp.MustCompile(`[0-9]+`)

// assignSlot implements spec §4.4's port-number policy for an
// unspecified request. A "br"-prefixed name scans from slot 100; a name
// carrying a digit substring is tried at that digit offset (added to the
// 100 base when the name is "br"-prefixed); otherwise the first free
// slot from 1 upward (or from 100, for a "br" name with no free
// digit-derived slot) is used. Callers must hold t.mu.
func (t *Table) assignSlot(name string) (uint32, error) {
	base := uint32(0)
	start := uint32(1)
	if strings.HasPrefix(name, "br") {
		base, start = 100, 100
	}

	if m := digits.FindString(name); m != "" {
		if n, err := strconv.ParseUint(m, 10, 32); err == nil {
			slot := base + uint32(n)
			if slot != LocalPort && slot < MaxPorts && t.slots[slot] == nil {
				return slot, nil
			}
		}
	}

	if n, ok := t.firstFreeFrom(start); ok {
		return n, nil
	}
	return 0, errs.Capacity
}

func (t *Table) firstFreeFrom(start uint32) (uint32, bool) {
	for n := start; n < MaxPorts; n++ {
		if t.slots[n] == nil {
			return n, true
		}
	}
	for n := uint32(1); n < start; n++ {
		if t.slots[n] == nil {
			return n, true
		}
	}
	return 0, false
}

// Add opens dev, enables promiscuous receive, and installs it at
// requestedNumber, or at a name-derived slot when requestedNumber is
// negative. Requesting slot 0 fails with errs.Invalid; the local port is
// installed directly by the datapath at construction, never through Add.
// Listen's ErrNotSupported is tolerated only when dummy is true.
func (t *Table) Add(dev netdev.Device, requestedNumber int, dummy bool) (*Port, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var num uint32
	if requestedNumber >= 0 {
		num = uint32(requestedNumber)
		if num == LocalPort {
			return nil, errs.Invalid
		}
		if num >= MaxPorts {
			return nil, errs.Invalid
		}
		if t.slots[num] != nil {
			return nil, errs.Exists
		}
	} else {
		n, err := t.assignSlot(dev.Name())
		if err != nil {
			return nil, err
		}
		num = n
	}

	if err := dev.Listen(); err != nil {
		if !(dummy && err == netdev.ErrNotSupported) {
			return nil, err
		}
	}
	if err := dev.SetPromiscuous(); err != nil {
		return nil, err
	}

	p := &Port{Number: num, Dev: dev}
	t.slots[num] = p
	t.order = append(t.order, p)
	t.serial++
	return p, nil
}

// Delete removes the port at number, closing its device. Fails with
// errs.NotFound if the slot is empty.
func (t *Table) Delete(number uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if number >= MaxPorts || t.slots[number] == nil {
		return errs.NotFound
	}
	p := t.slots[number]
	t.slots[number] = nil
	for i, o := range t.order {
		if o == p {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	t.serial++
	return p.Dev.Close()
}

// Query returns the port installed at number.
func (t *Table) Query(number uint32) (*Port, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if number >= MaxPorts || t.slots[number] == nil {
		return nil, errs.NotFound
	}
	return t.slots[number], nil
}

// Dump returns a snapshot of every installed port, in insertion order.
func (t *Table) Dump() []*Port {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Port, len(t.order))
	copy(out, t.order)
	return out
}

// Serial returns the current port-change serial, incremented on every Add
// or Delete. Clients poll for change by comparing a cached serial; per
// spec §5 this is read without the table lock elsewhere, so a reader may
// observe staleness and recover on the next poll. Reading it here, under
// the lock, is always current.
func (t *Table) Serial() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.serial
}
