package dpcore

import (
	"runtime"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/vswitchd/dpcore/dpcore/netdev"
)

// DispatchBatch is the per-wakeup frame ceiling a threaded worker applies
// to each ready port (spec §6, DISPATCH_BATCH).
const DispatchBatch = 50

// WorkerPollTimeout is the threaded worker's poll timeout (spec §6,
// WORKER_POLL_TIMEOUT).
const WorkerPollTimeout = 2000 * time.Millisecond

// Worker is the single process-wide ingress thread used in threaded mode
// (spec §5). It polls the fd union across every port of every datapath
// registered with it and, for each ready port, invokes the device's
// batched dispatch with Datapath.Process as the per-frame callback. It is
// not needed and does nothing useful in cooperative mode, where the host
// drives Datapath.Run itself.
type Worker struct {
	r *Registry

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewWorker returns a Worker bound to r. Start must be called to actually
// begin polling.
func NewWorker(r *Registry) *Worker {
	return &Worker{r: r}
}

// Start spawns the worker's polling loop, masking SIGTERM/SIGINT/SIGHUP/
// SIGALRM on its own thread so only the main thread catches them (spec
// §5). Calling Start twice is a no-op.
func (w *Worker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}
	w.running = true
	w.stop = make(chan struct{})
	w.done = make(chan struct{})
	go w.loop(w.stop, w.done)
}

// Stop cancels the worker at its next poll boundary and waits for it to
// exit (spec §5: "the worker thread, which is cancellable at the poll
// boundary").
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	stop, done := w.stop, w.done
	w.running = false
	w.mu.Unlock()

	close(stop)
	<-done
}

func (w *Worker) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	maskFatalSignals()

	for {
		select {
		case <-stop:
			return
		default:
		}
		w.pollOnce()
	}
}

// maskFatalSignals blocks SIGTERM/SIGINT/SIGHUP/SIGALRM on the calling
// OS thread, per spec §5, so the worker thread never intercepts a signal
// the main thread is responsible for handling.
func maskFatalSignals() {
	var set unix.Sigset_t
	for _, sig := range []unix.Signal{unix.SIGTERM, unix.SIGINT, unix.SIGHUP, unix.SIGALRM} {
		set.Val[(sig-1)/64] |= 1 << (uint(sig-1) % 64)
	}
	_ = unix.PthreadSigmask(unix.SIG_BLOCK, &set, nil)
}

type fdOwner struct {
	dp  *Datapath
	num uint32
	fd  int
}

func (w *Worker) pollOnce() {
	var owners []fdOwner
	for _, name := range w.r.Enumerate() {
		r := w.r
		r.mu.Lock()
		dp := r.datapaths[name]
		r.mu.Unlock()
		if dp == nil {
			continue
		}
		for _, p := range dp.Ports().Dump() {
			if fd := p.Dev.FD(); fd >= 0 {
				owners = append(owners, fdOwner{dp: dp, num: p.Number, fd: fd})
			}
		}
	}

	if len(owners) == 0 {
		time.Sleep(WorkerPollTimeout)
		return
	}

	fds := make([]unix.PollFd, len(owners))
	for i, o := range owners {
		fds[i] = unix.PollFd{Fd: int32(o.fd), Events: unix.POLLIN}
	}

	n, err := unix.Poll(fds, int(WorkerPollTimeout/time.Millisecond))
	if err != nil || n == 0 {
		return
	}

	for i, pfd := range fds {
		if pfd.Revents&unix.POLLIN == 0 {
			continue
		}
		o := owners[i]
		p, err := o.dp.Ports().Query(o.num)
		if err != nil {
			continue
		}
		if _, err := p.Dev.Dispatch(DispatchBatch, func(frame []byte) {
			o.dp.Process(frame, o.num)
		}); err != nil && err != netdev.ErrAgain {
			o.dp.log.Errorf("dpcore: %s: port %d: dispatch: %v", o.dp.name, o.num, err)
		}
	}
}
