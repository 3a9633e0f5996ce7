// Package daq is the boundary to the acquisition hardware. The card runs in
// hardware double-buffered DMA mode: two alternating half-buffers are filled
// by the device and drained by the caller, one at a time, starting at half 0.
//
// Ownership of a half-buffer transfers to the caller when HalfReady reports
// it, and back to the driver on Ack. A half must be acked before the next one
// is requested; the drivers in this package enforce that instead of assuming
// the caller got it right.
package daq

import "github.com/pkg/errors"

// ErrOverrun is returned by HalfReady when the previously reported
// half-buffer has not been acked yet.
var ErrOverrun = errors.New("daq: half-buffer requested before previous ack")

// Driver is one acquisition card (or a stand-in for one). All methods are
// called from a single goroutine; drivers do not need internal locking.
type Driver interface {
	// Arm configures the trigger and registers the two half-buffers for one
	// acquisition cycle. An error here is fatal for the whole session.
	Arm() error

	// Triggered polls whether the armed cycle has started producing data.
	Triggered() (bool, error)

	// HalfReady polls the double buffer. ready means the currently-due half
	// is filled and readable via HalfBuffer; stopped means the cycle is over
	// and no further half will arrive.
	HalfReady() (ready, stopped bool, err error)

	// HalfBuffer returns a read-only view of half idx (0 or 1). The view is
	// only valid between the HalfReady that reported it and the next Ack.
	HalfBuffer(idx int) []uint16

	// Ack releases the drained half-buffer back to the driver for refilling.
	Ack()

	// Clear drains and resets the double buffer at the end of a cycle,
	// regardless of how the cycle went. It reports the hardware start
	// position and the number of samples transferred.
	Clear() (startPos, count uint32)

	Close() error
}
