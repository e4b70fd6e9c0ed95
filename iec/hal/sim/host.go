package sim

import (
	"errors"
	"fmt"
	"time"

	"github.com/ardnew/softiec/iec/hal"
)

// Host is the simulated bus master (the computer side of the cable).
//
// A host routine runs on its own goroutine but only while the device side is
// parked inside a HAL call, so it may read and drive lines without locking.
// Host time advances only as the device consumes ticks; Sleep and the wait
// helpers block the routine until the virtual clock or a line condition
// lets it continue.
type Host struct {
	bus *Bus

	wake   chan struct{}
	parked chan struct{}

	cond     func() bool
	deadline time.Duration
	started  bool
	finished bool
	err      error
	fault    any

	// Fast-protocol negotiation
	jiffy           bool
	jiffyDetected   bool
	dolphin         bool
	dolphinDetected bool
}

// Run starts fn as the bus master routine. Only one routine may be attached
// to a bus at a time; it begins executing at the next device tick.
func (b *Bus) Run(fn func(h *Host) error) *Host {
	h := &Host{
		bus:      b,
		wake:     make(chan struct{}),
		parked:   make(chan struct{}),
		deadline: -1,
	}
	b.host = h
	go func() {
		<-h.wake
		defer func() {
			if r := recover(); r != nil {
				h.fault = r
			}
			h.finished = true
			h.parked <- struct{}{}
		}()
		h.err = fn(h)
	}()
	return h
}

// Done reports whether the routine has returned.
func (h *Host) Done() bool { return h.finished }

// Err returns the routine's result once Done.
func (h *Host) Err() error {
	if h.fault != nil {
		return fmt.Errorf("host routine panicked: %v", h.fault)
	}
	return h.err
}

// Serve calls task repeatedly, advancing virtual time by idle between calls,
// until the host routine returns. It returns the routine's error, or
// ErrTimeLimit if the virtual time budget runs out first.
func (b *Bus) Serve(task func(), idle time.Duration) (err error) {
	if b.host == nil {
		return errors.New("serve: no host routine")
	}
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok && errors.Is(e, ErrTimeLimit) {
				err = ErrTimeLimit
				return
			}
			panic(r)
		}
	}()
	for !b.host.finished {
		task()
		b.Advance(idle)
	}
	return b.host.Err()
}

func (h *Host) runnable() bool {
	switch {
	case h.finished:
		return false
	case !h.started:
		return true
	case h.cond != nil && h.cond():
		return true
	case h.deadline >= 0 && h.bus.now >= h.deadline:
		return true
	}
	return false
}

// resume hands control to the host routine and waits for it to park.
func (h *Host) resume() {
	h.started = true
	h.wake <- struct{}{}
	<-h.parked
}

// park yields to the device side until cond holds or the deadline passes.
func (h *Host) park(cond func() bool, deadline time.Duration) {
	h.cond, h.deadline = cond, deadline
	h.parked <- struct{}{}
	<-h.wake
	h.cond, h.deadline = nil, -1
}

// Now returns the virtual time.
func (h *Host) Now() time.Duration { return h.bus.now }

// Sleep blocks the routine for d of virtual time.
func (h *Host) Sleep(d time.Duration) {
	h.park(nil, h.bus.now+d)
}

// SleepUntil blocks until the virtual clock reaches t.
func (h *Host) SleepUntil(t time.Duration) {
	if t > h.bus.now {
		h.park(nil, t)
	}
}

// Until blocks until cond holds or timeout elapses, reporting cond. A zero
// timeout waits without bound.
func (h *Host) Until(cond func() bool, timeout time.Duration) bool {
	if cond() {
		return true
	}
	deadline := time.Duration(-1)
	if timeout > 0 {
		deadline = h.bus.now + timeout
	}
	h.park(cond, deadline)
	return cond()
}

// Assert pulls a line low.
func (h *Host) Assert(l hal.Line) {
	if l < hal.NumLines {
		h.bus.hostLow[l] = true
	}
}

// Release lets a line float.
func (h *Host) Release(l hal.Line) {
	if l < hal.NumLines {
		h.bus.hostLow[l] = false
	}
}

// Set releases the line for true and asserts it for false.
func (h *Host) Set(l hal.Line, high bool) {
	if high {
		h.Release(l)
	} else {
		h.Assert(l)
	}
}

// Line returns the bus level of l.
func (h *Host) Line(l hal.Line) bool { return h.bus.Level(l) }

// WaitLine blocks until l reaches level or timeout elapses.
func (h *Host) WaitLine(l hal.Line, level bool, timeout time.Duration) bool {
	return h.Until(func() bool { return h.bus.Level(l) == level }, timeout)
}

// Reset holds RESET low for d.
func (h *Host) Reset(d time.Duration) {
	h.Assert(hal.LineRESET)
	h.Sleep(d)
	h.Release(hal.LineRESET)
}

// CountFalling counts falling edges on l during window.
func (h *Host) CountFalling(l hal.Line, window time.Duration) int {
	end := h.bus.now + window
	n := 0
	for {
		left := end - h.bus.now
		if left <= 0 || !h.WaitLine(l, true, left) {
			break
		}
		left = end - h.bus.now
		if left <= 0 || !h.WaitLine(l, false, left) {
			break
		}
		n++
	}
	return n
}
