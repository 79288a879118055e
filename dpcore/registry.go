package dpcore

import (
	"log"
	"sync"

	"github.com/vswitchd/dpcore/dpcore/errs"
	"github.com/vswitchd/dpcore/dpcore/internal/ratelimit"
)

// Registry is the process-wide mapping from datapath name to datapath
// object named in spec §3/§4.7. There is no package-level singleton:
// callers construct one (or, in a real process, use the one shared
// instance wired up at startup) via NewRegistry, so tests never share
// state across packages.
type Registry struct {
	mu        sync.Mutex
	datapaths map[string]*Datapath
	threaded  bool
	log       *ratelimit.Logger
}

// NewRegistry returns an empty registry. threaded selects whether
// datapaths opened through it run in threaded mode (spec §5); log
// receives rate-limited error reports from every datapath it creates.
func NewRegistry(threaded bool, log *log.Logger) *Registry {
	return &Registry{
		datapaths: make(map[string]*Datapath),
		threaded:  threaded,
		log:       ratelimit.New(log, 1, 5),
	}
}

// Handle is a reference-counted view onto an open datapath: it carries
// the class the caller requested it under and a cached port-change
// serial (spec §4.7).
type Handle struct {
	dp           *Datapath
	class        Class
	cachedSerial uint64
	closed       bool
}

// Datapath returns the handle's underlying datapath.
func (h *Handle) Datapath() *Datapath { return h.dp }

// Changed reports whether the port-change serial has advanced since the
// handle was opened or last polled, updating the cached value either way.
func (h *Handle) Changed() bool {
	cur := h.dp.PortChangeSerial()
	changed := cur != h.cachedSerial
	h.cachedSerial = cur
	return changed
}

// Open looks up name in the registry and returns a fresh handle (spec
// §4.7): absent+create -> a new datapath is allocated; absent+!create ->
// errs.NotFound; present+create -> errs.Exists; present with a mismatched
// class -> errs.Invalid.
func (r *Registry) Open(name string, class Class, create bool) (*Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	dp, ok := r.datapaths[name]
	switch {
	case ok && create:
		return nil, errs.Exists
	case !ok && !create:
		return nil, errs.NotFound
	case ok && dp.class != class:
		return nil, errs.Invalid
	case ok:
		dp.ref()
	default:
		var err error
		dp, err = newDatapath(name, class, r.threaded, r.log)
		if err != nil {
			return nil, err
		}
		r.datapaths[name] = dp
	}

	return &Handle{dp: dp, class: class, cachedSerial: dp.PortChangeSerial()}, nil
}

// Close releases h's reference. The underlying datapath is freed, and
// removed from the registry, once its reference count reaches zero and
// Destroy has been called on some handle to it. Calling Close twice on
// the same handle is a caller error and is a no-op the second time.
func (r *Registry) Close(h *Handle) {
	if h.closed {
		return
	}
	h.closed = true

	if !h.dp.unref() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.datapaths[h.dp.name] == h.dp {
		delete(r.datapaths, h.dp.name)
	}
	h.dp.free()
}

// Destroy marks h's datapath for destruction; it is actually freed once
// every handle referencing it has been closed.
func (r *Registry) Destroy(h *Handle) {
	if h.dp.destroy() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.datapaths[h.dp.name] == h.dp {
			delete(r.datapaths, h.dp.name)
		}
		h.dp.free()
	}
}

// Enumerate returns the names of every datapath currently registered.
func (r *Registry) Enumerate() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.datapaths))
	for n := range r.datapaths {
		names = append(names, n)
	}
	return names
}
