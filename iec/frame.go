package iec

import "github.com/ardnew/softiec/iec/hal"

// pairFrame is a timed two-bit-per-slot transfer schedule used by the
// accelerated protocols. At each offset (µs from the frame start) CLK
// carries bit[0] and DATA carries bit[1] of the slot.
type pairFrame struct {
	at     [4]uint32
	bits   [4][2]uint8
	invert bool
}

var (
	jiffyReceiveFrame = pairFrame{
		at:   [4]uint32{13, 24, 35, 48},
		bits: [4][2]uint8{{4, 5}, {6, 7}, {3, 1}, {2, 0}},
	}
	jiffyTransmitFrame = pairFrame{
		at:   [4]uint32{0, 10, 20, 30},
		bits: [4][2]uint8{{0, 1}, {2, 3}, {4, 5}, {6, 7}},
	}
	jiffyBlockFrame = pairFrame{
		at:   [4]uint32{0, 6, 12, 18},
		bits: [4][2]uint8{{0, 1}, {2, 3}, {4, 5}, {6, 7}},
	}
	epyxReceiveFrame = pairFrame{
		at:     [4]uint32{8, 16, 24, 32},
		bits:   [4][2]uint8{{7, 5}, {6, 4}, {3, 1}, {2, 0}},
		invert: true,
	}
	epyxTransmitFrame = pairFrame{
		at:     [4]uint32{0, 8, 16, 24},
		bits:   [4][2]uint8{{0, 1}, {2, 3}, {4, 5}, {6, 7}},
		invert: true,
	}
)

// Frame end offsets in µs.
const (
	jiffyReceiveEOI    = 59
	jiffyTransmitState = 40
	jiffyTransmitEnd   = 50
	jiffyBlockState    = 24
	jiffyBlockEnd      = 30
	epyxReceiveEnd     = 38
	epyxTransmitEnd    = 32
)

// samplePairs reads one byte according to f, timed from t.
func (h *Handler) samplePairs(t *Timer, f *pairFrame) (byte, error) {
	var b byte
	for i, off := range f.at {
		if err := h.until(t, off); err != nil {
			return 0, err
		}
		if h.readLine(hal.LineCLK) != f.invert {
			b |= 1 << f.bits[i][0]
		}
		if h.readLine(hal.LineDATA) != f.invert {
			b |= 1 << f.bits[i][1]
		}
	}
	return b, nil
}

// drivePairs writes one byte according to f, timed from t.
func (h *Handler) drivePairs(t *Timer, f *pairFrame, b byte) error {
	for i, off := range f.at {
		if err := h.until(t, off); err != nil {
			return err
		}
		h.writeLine(hal.LineCLK, (b>>f.bits[i][0]&1 == 1) != f.invert)
		h.writeLine(hal.LineDATA, (b>>f.bits[i][1]&1 == 1) != f.invert)
	}
	return nil
}

// drive sets both lines at once.
func (h *Handler) drive(clk, data bool) {
	h.writeLine(hal.LineCLK, clk)
	h.writeLine(hal.LineDATA, data)
}
