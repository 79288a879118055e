package upcall

import "testing"

func TestEnqueueDequeueOrder(t *testing.T) {
	q, err := New(false, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	q.Enqueue(KindUserspace, Record{Kind: KindUserspace, Packet: []byte("u1")})
	q.Enqueue(KindMiss, Record{Kind: KindMiss, Packet: []byte("m1")})
	q.Enqueue(KindMiss, Record{Kind: KindMiss, Packet: []byte("m2")})

	rec, ok := q.Dequeue()
	if !ok || string(rec.Packet) != "m1" {
		t.Fatalf("first dequeue = %+v, want miss ring drained before userspace", rec)
	}
	rec, ok = q.Dequeue()
	if !ok || string(rec.Packet) != "m2" {
		t.Fatalf("second dequeue = %+v", rec)
	}
	rec, ok = q.Dequeue()
	if !ok || string(rec.Packet) != "u1" {
		t.Fatalf("third dequeue = %+v, want userspace ring last", rec)
	}
	if _, ok := q.Dequeue(); ok {
		t.Fatal("dequeue on empty queue returned a record")
	}
}

func TestOverflowCountsLost(t *testing.T) {
	q, err := New(false, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	const inject = 200
	accepted := 0
	for i := 0; i < inject; i++ {
		if q.Enqueue(KindMiss, Record{Kind: KindMiss}) {
			accepted++
		}
	}
	if accepted != ringCapacity {
		t.Fatalf("accepted = %d, want %d", accepted, ringCapacity)
	}
	if q.Lost() != inject-ringCapacity {
		t.Fatalf("lost = %d, want %d", q.Lost(), inject-ringCapacity)
	}

	drained := 0
	for {
		if _, ok := q.Dequeue(); !ok {
			break
		}
		drained++
	}
	if drained != ringCapacity {
		t.Fatalf("drained = %d, want %d", drained, ringCapacity)
	}
}

func TestThreadedSelfPipeWakesOnEnqueue(t *testing.T) {
	q, err := New(true, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer q.Close()

	if q.WakeFD() < 0 {
		t.Fatal("threaded queue has no wake fd")
	}

	q.Enqueue(KindMiss, Record{Kind: KindMiss})
	if _, ok := q.Dequeue(); !ok {
		t.Fatal("dequeue after enqueue found nothing")
	}
}

func TestNonEmpty(t *testing.T) {
	q, _ := New(false, nil)
	if q.NonEmpty() {
		t.Fatal("new queue reports non-empty")
	}
	q.Enqueue(KindUserspace, Record{})
	if !q.NonEmpty() {
		t.Fatal("queue with a queued record reports empty")
	}
}
