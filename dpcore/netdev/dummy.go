package netdev

import "sync"

// Dummy is an in-memory Device used by the dummy datapath class and by
// tests: frames are injected with Inject and drained with Receive or
// Dispatch, with no real interface behind it. Listen always succeeds
// here; Dummy exists so tests can exercise the ingress path without a
// real network device, not to exercise the "tolerates ErrNotSupported on
// the dummy class" rule itself.
type Dummy struct {
	mu     sync.Mutex
	name   string
	mtu    int
	queue  [][]byte
	promis bool
	closed bool
}

// NewDummy returns a Dummy device named name with the given MTU.
func NewDummy(name string, mtu int) *Dummy {
	return &Dummy{name: name, mtu: mtu}
}

// Inject appends frame to the device's receive queue.
func (d *Dummy) Inject(frame []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queue = append(d.queue, append([]byte(nil), frame...))
}

func (d *Dummy) Name() string { return d.name }

func (d *Dummy) Listen() error { return nil }

func (d *Dummy) SetPromiscuous() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.promis = true
	return nil
}

func (d *Dummy) MTU() int { return d.mtu }

// FD returns -1: a Dummy device has no real descriptor to poll.
func (d *Dummy) FD() int { return -1 }

func (d *Dummy) Receive() ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.queue) == 0 {
		return nil, ErrAgain
	}
	f := d.queue[0]
	d.queue = d.queue[1:]
	return f, nil
}

func (d *Dummy) Dispatch(batch int, cb func([]byte)) (int, error) {
	d.mu.Lock()
	n := len(d.queue)
	if n > batch {
		n = batch
	}
	frames := append([][]byte(nil), d.queue[:n]...)
	d.queue = d.queue[n:]
	d.mu.Unlock()

	for _, f := range frames {
		cb(f)
	}
	return len(frames), nil
}

// Send appends a copy of frame onto the device's own receive queue, the
// way a loopback test double must for an observer on the other end of
// this "wire" to see what was sent (there is no real link behind a
// Dummy, so Send and Inject converge on the same queue).
func (d *Dummy) Send(frame []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queue = append(d.queue, append([]byte(nil), frame...))
	return nil
}

func (d *Dummy) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}
