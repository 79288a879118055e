// Package flowtable implements the exact-match flow classifier named in
// the core datapath spec: lookup, insert, modify, delete, dump, and flush
// over a fixed-capacity table keyed by flowkey.Key.
package flowtable

import (
	"sync"

	"github.com/vswitchd/dpcore/dpcore/errs"
	"github.com/vswitchd/dpcore/dpcore/flowkey"
)

// MaxFlows is the compile-time capacity ceiling (spec §6, MAX_FLOWS).
const MaxFlows = 65536

const numBuckets = 1024

// Stats is the mutable per-entry counter block, reported back to callers
// of Modify and Delete on request.
type Stats struct {
	LastUsedMs uint64
	Packets    uint64
	Bytes      uint64
	TCPFlags   uint16
}

// Entry is a row of the flow table: a canonical key, its stats, and an
// owned copy of the action attribute blob.
type Entry struct {
	Key     flowkey.Key
	Stats   Stats
	Actions []byte
}

// Table is an exact-match classifier. The zero value is not usable; use
// New. A single mutex guards the whole table: the spec's two-mutex
// ordering (port-list before flow-table) is enforced by the caller, not
// here, since flowtable has no notion of a port list.
type Table struct {
	mu      sync.Mutex
	buckets [numBuckets][]*Entry
	count   int
}

// New returns an empty table.
func New() *Table {
	return &Table{}
}

func bucketOf(k flowkey.Key) int {
	return int(hashKey(k) % numBuckets)
}

// Lookup hashes key and probes its bucket for a byte-equal match.
func (t *Table) Lookup(key flowkey.Key) (*Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.find(key)
}

func (t *Table) find(key flowkey.Key) (*Entry, bool) {
	b := t.buckets[bucketOf(key)]
	for _, e := range b {
		if e.Key == key {
			return e, true
		}
	}
	return nil, false
}

// Insert adds a new entry with zero stats and a copy of actions. It fails
// with errs.Exists if key is already present, or errs.Capacity if the
// table is full.
func (t *Table) Insert(key flowkey.Key, actions []byte) (*Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.find(key); ok {
		return nil, errs.Exists
	}
	if t.count >= MaxFlows {
		return nil, errs.Capacity
	}

	e := &Entry{Key: key, Actions: append([]byte(nil), actions...)}
	idx := bucketOf(key)
	t.buckets[idx] = append(t.buckets[idx], e)
	t.count++
	return e, nil
}

// ModifyFlags controls Modify's stats-reset behavior.
type ModifyFlags struct {
	ResetStats bool
}

// Modify replaces key's action blob. If flags.ResetStats is set the
// entry's stats are zeroed; either way the pre-modification stats are
// returned. Fails with errs.NotFound if key is absent.
func (t *Table) Modify(key flowkey.Key, actions []byte, flags ModifyFlags) (Stats, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.find(key)
	if !ok {
		return Stats{}, errs.NotFound
	}
	prev := e.Stats
	e.Actions = append([]byte(nil), actions...)
	if flags.ResetStats {
		e.Stats = Stats{}
	}
	return prev, nil
}

// Delete removes key's entry and returns its stats at time of removal.
// Fails with errs.NotFound if key is absent.
func (t *Table) Delete(key flowkey.Key) (Stats, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := bucketOf(key)
	b := t.buckets[idx]
	for i, e := range b {
		if e.Key == key {
			stats := e.Stats
			t.buckets[idx] = append(b[:i], b[i+1:]...)
			t.count--
			return stats, nil
		}
	}
	return Stats{}, errs.NotFound
}

// RecordHit applies the per-entry update after a successful lookup (spec
// §4.2/§4.5): last-used is set to nowMs, packet count is incremented,
// length is added to the byte count, and tcpFlags is OR'd into the
// accumulated flag bitmap.
func (t *Table) RecordHit(e *Entry, nowMs uint64, length uint32, tcpFlags uint16) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e.Stats.LastUsedMs = nowMs
	e.Stats.Packets++
	e.Stats.Bytes += uint64(length)
	e.Stats.TCPFlags |= tcpFlags
}

// Flush deletes every entry.
func (t *Table) Flush() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.buckets {
		t.buckets[i] = nil
	}
	t.count = 0
}

// Len reports the current entry count.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}

// Cursor is an opaque (bucket, offset) dump position. The zero Cursor
// starts a dump from the beginning.
type Cursor struct {
	bucket int
	offset int
}

// Dump returns the entry at cursor and the cursor of the next position,
// or ok=false once the table is exhausted. Per spec §4.2, iteration is
// not required to be consistent under concurrent mutation: an entry
// inserted or deleted mid-dump may be returned once, never, or twice.
// Dump takes the table lock only for the duration of a single bucket
// scan step, so it never holds it across caller processing.
func (t *Table) Dump(cursor Cursor) (*Entry, Cursor, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for b := cursor.bucket; b < numBuckets; b++ {
		bucket := t.buckets[b]
		off := 0
		if b == cursor.bucket {
			off = cursor.offset
		}
		if off < len(bucket) {
			next := Cursor{bucket: b, offset: off + 1}
			if next.offset >= len(bucket) {
				next = Cursor{bucket: b + 1, offset: 0}
			}
			return bucket[off], next, true
		}
	}
	return nil, Cursor{}, false
}
