package iec

import (
	"github.com/ardnew/softiec/iec/hal"
	"github.com/ardnew/softiec/pkg"
)

// readLine returns the logical level of a line (true = released/high).
func (h *Handler) readLine(l hal.Line) bool {
	v := h.bus.Read(l)
	if h.inverted {
		return !v
	}
	return v
}

// writeLine releases (high) or asserts (low) an open-collector line.
func (h *Handler) writeLine(l hal.Line, high bool) {
	if h.inverted {
		h.bus.Write(l, !high)
		return
	}
	if high {
		h.bus.SetMode(l, hal.ModeInput)
		return
	}
	h.bus.Write(l, false)
	h.bus.SetMode(l, hal.ModeOutput)
}

// armPresence enables or disables the hardware ATN-to-DATA shortcut.
func (h *Handler) armPresence(on bool) {
	if h.hasCTRL {
		h.bus.Write(hal.LineCTRL, on)
	}
}

// attentionChanged reports whether ATN no longer matches the recorded
// attention state.
func (h *Handler) attentionChanged() bool {
	return h.readLine(hal.LineATN) == h.is(FlagAttention)
}

// waitLine polls l until it reaches level. ATN is checked on every
// iteration before the timeout; a timeout of forever never expires.
func (h *Handler) waitLine(l hal.Line, level bool, timeout uint32) error {
	t := NewTimer(h.bus)
	for {
		if h.attentionChanged() {
			return pkg.ErrAttention
		}
		if h.readLine(l) == level {
			return nil
		}
		if timeout != forever && !t.Before(timeout) {
			return pkg.ErrTimeout
		}
	}
}

// delay busy-waits us microseconds, aborting on an ATN change.
func (h *Handler) delay(us uint32) error {
	t := NewTimer(h.bus)
	return h.until(&t, us)
}

// until busy-waits until t reaches us, aborting on an ATN change.
func (h *Handler) until(t *Timer, us uint32) error {
	for t.Before(us) {
		if h.attentionChanged() {
			return pkg.ErrAttention
		}
	}
	return nil
}

// mask disables interrupts when the platform delivers them.
func (h *Handler) mask() uint32 {
	if h.irq == nil {
		return 0
	}
	return h.irq.DisableInterrupts()
}

func (h *Handler) unmask(state uint32) {
	if h.irq != nil {
		h.irq.RestoreInterrupts(state)
	}
}
