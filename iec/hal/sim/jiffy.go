package sim

import (
	"time"

	"github.com/ardnew/softiec/iec/hal"
	"github.com/ardnew/softiec/pkg"
)

// jiffyWindow is how long the host delays the last address bit waiting for
// the JiffyDOS acknowledge pulse.
const jiffyWindow = 400 * time.Microsecond

const us = time.Microsecond

// SetJiffyDOS enables JiffyDOS negotiation on subsequent LISTEN/TALK.
func (h *Host) SetJiffyDOS(on bool) { h.jiffy = on }

// JiffyDetected reports whether the last addressed device acknowledged
// JiffyDOS.
func (h *Host) JiffyDetected() bool { return h.jiffyDetected }

// sendJiffyByte writes one byte frame. On entry the host holds CLK low.
func (h *Host) sendJiffyByte(b byte, eoi bool) error {
	if !h.WaitLine(hal.LineDATA, true, hostReady) {
		return pkg.ErrTimeout
	}
	h.Release(hal.LineCLK)
	t0 := h.Now()
	pairs := [4]struct {
		at        time.Duration
		clk, data uint
	}{
		{6 * us, 4, 5},
		{17 * us, 6, 7},
		{28 * us, 3, 1},
		{40 * us, 2, 0},
	}
	for _, p := range pairs {
		h.SleepUntil(t0 + p.at)
		h.Set(hal.LineCLK, b>>p.clk&1 == 1)
		h.Set(hal.LineDATA, b>>p.data&1 == 1)
	}
	h.SleepUntil(t0 + 52*us)
	h.Set(hal.LineCLK, eoi)
	h.Release(hal.LineDATA)
	ok := h.WaitLine(hal.LineDATA, false, hostAck)
	h.Assert(hal.LineCLK)
	if !ok {
		return pkg.ErrNotAcknowledged
	}
	return nil
}

// receiveJiffyByte reads one byte frame. On entry the host holds DATA low.
func (h *Host) receiveJiffyByte() (byte, bool, error) {
	if !h.WaitLine(hal.LineCLK, true, hostReady) {
		return 0, false, pkg.ErrTimeout
	}
	h.Release(hal.LineDATA)
	t0 := h.Now()
	b := h.samplePairs(t0, [4]time.Duration{5 * us, 15 * us, 25 * us, 35 * us})
	h.SleepUntil(t0 + 45*us)
	clk, data := h.Line(hal.LineCLK), h.Line(hal.LineDATA)
	h.WaitLine(hal.LineCLK, false, hostAck)
	h.Assert(hal.LineDATA)
	switch {
	case !clk && data:
		return b, false, nil
	case clk && !data:
		return b, true, nil
	case clk && data:
		return 0, false, pkg.ErrNoData
	}
	return 0, false, pkg.ErrProtocol
}

// samplePairs reads bits (0,1)(2,3)(4,5)(6,7) from (CLK,DATA) at the given
// offsets.
func (h *Host) samplePairs(t0 time.Duration, at [4]time.Duration) byte {
	var b byte
	for i, off := range at {
		h.SleepUntil(t0 + off)
		if h.Line(hal.LineCLK) {
			b |= 1 << (2 * i)
		}
		if h.Line(hal.LineDATA) {
			b |= 1 << (2*i + 1)
		}
	}
	return b
}

// JiffyLoad receives a JiffyDOS block transfer. The device must have been
// addressed with Talk on secondary 0x61 after JiffyDOS was detected.
func (h *Host) JiffyLoad() ([]byte, error) {
	var out []byte
	for {
		if !h.WaitLine(hal.LineCLK, true, hostReady) {
			return out, pkg.ErrTimeout
		}
		h.Release(hal.LineDATA)
		t0 := h.Now()
		b := h.samplePairs(t0, [4]time.Duration{3 * us, 9 * us, 15 * us, 21 * us})
		h.SleepUntil(t0 + 27*us)
		clk, data := h.Line(hal.LineCLK), h.Line(hal.LineDATA)
		h.WaitLine(hal.LineCLK, false, hostAck)
		h.Assert(hal.LineDATA)
		switch {
		case !clk && data:
			out = append(out, b)
		case clk && !data:
			return out, nil
		default:
			return out, pkg.ErrProtocol
		}
	}
}
