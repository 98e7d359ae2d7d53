// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral readiness poller interface.

package reactor

// EventType is a bit set of readiness conditions.
type EventType uint32

const (
	EventRead EventType = 1 << iota
	EventWrite
	EventError
	EventHangup // peer closed its side or the socket hung up
)

// Callback is invoked on the polling goroutine for every ready descriptor.
type Callback func(fd int, events EventType)

// Poller multiplexes readiness notifications for a set of descriptors.
// Add, Modify, Remove and Poll must be called from the polling goroutine;
// Wake may be called from anywhere.
type Poller interface {
	// Add registers fd with the given interest set.
	Add(fd int, events EventType, cb Callback) error

	// Modify replaces the interest set of a registered fd.
	Modify(fd int, events EventType) error

	// Remove unregisters fd. Removing an unknown fd is not an error.
	Remove(fd int) error

	// Poll waits up to timeoutMs (negative blocks) and dispatches callbacks.
	// Returns the number of descriptors dispatched.
	Poll(timeoutMs int) (int, error)

	// Wake interrupts a blocked Poll.
	Wake() error

	// Close releases the poller.
	Close() error
}
