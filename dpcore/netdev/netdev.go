// Package netdev defines the network-device contract the datapath's port
// table consumes (spec §6), plus a Dummy implementation used by tests and
// by the dummy datapath class.
package netdev

import (
	"errors"
)

// ErrNotSupported is returned by operations a device class declines to
// implement. It is tolerated only on the dummy class (spec §6); a real
// device returning it is treated as a hard failure by the port table.
var ErrNotSupported = errors.New("netdev: operation not supported")

// ErrAgain is returned by Receive when there is no frame currently
// available. It is expected and silent (spec §6); callers must not log it.
var ErrAgain = errors.New("netdev: resource temporarily unavailable")

// Device is the network-device contract named in spec §6: open, listen,
// enable promiscuous receive, report MTU and fd, receive and send frames,
// and (in threaded mode) dispatch a batch of frames through a callback.
type Device interface {
	// Name returns the device's interface name.
	Name() string
	// Listen begins receiving frames. A dummy device is allowed to return
	// ErrNotSupported; any other class returning it is an error.
	Listen() error
	// SetPromiscuous enables promiscuous receive.
	SetPromiscuous() error
	// MTU returns the device's maximum transmission unit.
	MTU() int
	// FD returns the file descriptor to include in a poll set, or -1 if
	// the device has none (e.g. a dummy device fed purely by injection).
	FD() int
	// Receive returns the next available frame, or ErrAgain if none is
	// currently queued.
	Receive() ([]byte, error)
	// Dispatch drains up to batch frames, invoking cb for each, and
	// returns the number processed. Used only in threaded mode.
	Dispatch(batch int, cb func([]byte)) (int, error)
	// Send transmits a frame.
	Send(frame []byte) error
	// Close releases any resources held by the device.
	Close() error
}
