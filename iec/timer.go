package iec

import "github.com/ardnew/softiec/iec/hal"

// Timer measures elapsed microseconds on a free-running clock. Arithmetic
// is modulo 2^32, so a Timer survives counter wrap as long as the measured
// interval is shorter than the wrap period.
type Timer struct {
	clock hal.Clock
	start uint32
}

// NewTimer returns a timer started now.
func NewTimer(c hal.Clock) Timer {
	return Timer{clock: c, start: c.Micros()}
}

// Reset restarts the timer.
func (t *Timer) Reset() { t.start = t.clock.Micros() }

// Elapsed returns microseconds since the last Reset.
func (t *Timer) Elapsed() uint32 { return t.clock.Micros() - t.start }

// Before reports whether fewer than us microseconds have elapsed.
func (t *Timer) Before(us uint32) bool { return t.Elapsed() < us }

// WaitUntil busy-waits until at least us microseconds have elapsed.
func (t *Timer) WaitUntil(us uint32) {
	for t.Before(us) {
	}
}
