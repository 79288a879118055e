// Package upcall implements the two bounded ring queues a datapath uses
// to surface miss and explicit-userspace packets to its controlling
// client (spec §4.6).
package upcall

import (
	"sync"

	"golang.org/x/sys/unix"

	"github.com/vswitchd/dpcore/dpcore/flowkey"
	"github.com/vswitchd/dpcore/dpcore/internal/ratelimit"
)

// Kind discriminates why a record was queued.
type Kind int

const (
	// KindMiss tags a record produced by a flow table miss.
	KindMiss Kind = iota
	// KindUserspace tags a record produced by an explicit USERSPACE action.
	KindUserspace
)

func (k Kind) String() string {
	if k == KindUserspace {
		return "userspace"
	}
	return "miss"
}

// ringCapacity is MAX_QUEUE_LEN (spec §6): must be a power of two.
const ringCapacity = 128

// The array length below is non-zero, and the build fails, unless
// ringCapacity is a power of two.
var _ [0]struct{} = [ringCapacity & (ringCapacity - 1)]struct{}{}

// Record is a queued upcall: a discriminated tag, the parsed key, an
// optional userdata attribute, and the packet bytes. The queue takes
// ownership of Packet on Enqueue; the eventual Dequeue caller assumes
// ownership on receipt (spec §3 "Ownership summary").
type Record struct {
	Kind     Kind
	Key      flowkey.Key
	Userdata []byte
	Packet   []byte
}

type ring struct {
	buf        [ringCapacity]Record
	head, tail uint32
}

func (r *ring) enqueue(rec Record) bool {
	if r.head-r.tail >= ringCapacity {
		return false
	}
	r.buf[r.head%ringCapacity] = rec
	r.head++
	return true
}

func (r *ring) dequeue() (Record, bool) {
	if r.tail == r.head {
		return Record{}, false
	}
	rec := r.buf[r.tail%ringCapacity]
	r.tail++
	return rec, true
}

func (r *ring) empty() bool {
	return r.tail == r.head
}

// Queue holds the two per-datapath rings (index 0 = miss, index 1 =
// userspace) and, in threaded mode, the self-pipe used to wake a client
// blocked on recv-wait. A worker goroutine's Enqueue races against a
// client goroutine's Dequeue/RecvPurge in threaded mode (spec §4.6's
// "enqueue holds the... mutex, dequeue holds the same mutex"), so Queue
// guards both rings and the lost counter with its own mutex rather than
// relying on a caller to hold one.
type Queue struct {
	mu       sync.Mutex
	rings    [2]ring
	lost     uint64
	threaded bool
	pipeR    int
	pipeW    int
	log      *ratelimit.Logger
}

// New returns a Queue. When threaded is true, a non-blocking self-pipe is
// created for wake signaling; log receives rate-limited reports of
// self-pipe I/O errors, which spec §4.6 says must never be fatal.
func New(threaded bool, log *ratelimit.Logger) (*Queue, error) {
	q := &Queue{threaded: threaded, log: log, pipeR: -1, pipeW: -1}
	if !threaded {
		return q, nil
	}

	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return nil, err
	}
	q.pipeR, q.pipeW = fds[0], fds[1]
	return q, nil
}

// Close releases the self-pipe, if any.
func (q *Queue) Close() error {
	if q.pipeR < 0 {
		return nil
	}
	err1 := unix.Close(q.pipeR)
	err2 := unix.Close(q.pipeW)
	q.pipeR, q.pipeW = -1, -1
	if err1 != nil {
		return err1
	}
	return err2
}

// WakeFD returns the self-pipe's read end, for inclusion in the worker's
// poll fd union. It returns -1 in cooperative mode.
func (q *Queue) WakeFD() int {
	return q.pipeR
}

// Enqueue appends rec to the ring for kind. On overflow the record is
// dropped and the lost counter is incremented; it reports whether the
// record was accepted. In threaded mode, a successful enqueue writes one
// wake byte to the self-pipe.
func (q *Queue) Enqueue(kind Kind, rec Record) bool {
	q.mu.Lock()
	ok := q.rings[kind].enqueue(rec)
	if !ok {
		q.lost++
	}
	q.mu.Unlock()

	if !ok {
		return false
	}
	if q.threaded {
		q.wake()
	}
	return true
}

// Dequeue returns the oldest record from the first non-empty ring, ring 0
// (miss) before ring 1 (userspace), with no further fairness guarantee.
// In threaded mode it drains one wake byte.
func (q *Queue) Dequeue() (Record, bool) {
	q.mu.Lock()
	var rec Record
	var ok bool
	for i := range q.rings {
		if rec, ok = q.rings[i].dequeue(); ok {
			break
		}
	}
	q.mu.Unlock()

	if ok && q.threaded {
		q.drain()
	}
	return rec, ok
}

// NonEmpty reports whether either ring currently holds a record, for the
// cooperative-mode wait path.
func (q *Queue) NonEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return !q.rings[0].empty() || !q.rings[1].empty()
}

// Lost returns the cumulative count of records dropped to overflow.
func (q *Queue) Lost() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lost
}

func (q *Queue) wake() {
	if q.pipeW < 0 {
		return
	}
	var b [1]byte
	_, err := unix.Write(q.pipeW, b[:])
	if err != nil && err != unix.EAGAIN {
		q.log.Errorf("upcall: self-pipe write: %v", err)
	}
}

func (q *Queue) drain() {
	if q.pipeR < 0 {
		return
	}
	var b [1]byte
	_, err := unix.Read(q.pipeR, b[:])
	if err != nil && err != unix.EAGAIN {
		q.log.Errorf("upcall: self-pipe read: %v", err)
	}
}
