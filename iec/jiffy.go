package iec

import (
	"github.com/ardnew/softiec/iec/hal"
	"github.com/ardnew/softiec/pkg"
)

// receiveJiffyByte receives one JiffyDOS frame. The sender releases CLK to
// start the frame once we release DATA.
func (h *Handler) receiveJiffyByte(accept bool) (byte, bool, error) {
	h.writeLine(hal.LineDATA, true)
	if err := h.waitLine(hal.LineCLK, true, forever); err != nil {
		return 0, false, err
	}
	t := NewTimer(h.bus)
	b, err := h.samplePairs(&t, &jiffyReceiveFrame)
	if err != nil {
		return 0, false, err
	}
	if err := h.until(&t, jiffyReceiveEOI); err != nil {
		return 0, false, err
	}
	eoi := h.readLine(hal.LineCLK)
	if !accept {
		return 0, false, pkg.ErrDeviceRefused
	}
	h.writeLine(hal.LineDATA, false)
	return b, eoi, nil
}

// transmitJiffyByte sends one JiffyDOS frame followed by the status pair
// encoding n: more data, last byte or nothing to send.
func (h *Handler) transmitJiffyByte(d *Device, n int) (bool, error) {
	var (
		b        byte
		consumed bool
	)
	if n > NoData {
		b, consumed = peek(d)
	}

	h.writeLine(hal.LineCLK, true)
	if err := h.waitLine(hal.LineDATA, true, forever); err != nil {
		return false, err
	}
	t := NewTimer(h.bus)
	if err := h.drivePairs(&t, &jiffyTransmitFrame, b); err != nil {
		return false, err
	}
	if err := h.until(&t, jiffyTransmitState); err != nil {
		return false, err
	}
	switch {
	case n > 1:
		h.drive(false, true)
	case n == 1:
		h.drive(true, false)
	default:
		h.drive(true, true)
	}
	if err := h.until(&t, jiffyTransmitEnd); err != nil {
		return false, err
	}
	h.drive(false, true)
	if err := h.waitLine(hal.LineDATA, false, timeoutDefault); err != nil {
		return false, err
	}
	if n == NoData {
		return false, pkg.ErrNoData
	}
	consume(d, consumed)
	return n == 1, nil
}

// transmitJiffyBlock streams one block from the driver. Between frames the
// receiver free-runs, so the whole block goes out without returning to the
// scheduler. An empty block ends the transfer.
func (h *Handler) transmitJiffyBlock(d *Device) {
	n := readBlock(d, h.buf)
	if n < 0 {
		return
	}
	s := h.mask()
	var err error
	for i := 0; err == nil && i < n; i++ {
		err = h.jiffyBlockFrame(h.buf[i], true)
	}
	if err == nil && n == 0 {
		err = h.jiffyBlockFrame(0, false)
	}
	h.unmask(s)
	switch {
	case err != nil:
		h.abort(err, "jiffy block")
	case n == 0:
		h.set(FlagDone)
		d.flags &^= jiffyBlock
	}
}

// jiffyBlockFrame sends one block frame: a data byte when more is set,
// otherwise the end-of-data marker.
func (h *Handler) jiffyBlockFrame(b byte, more bool) error {
	h.writeLine(hal.LineCLK, true)
	if err := h.waitLine(hal.LineDATA, true, forever); err != nil {
		return err
	}
	t := NewTimer(h.bus)
	if more {
		if err := h.drivePairs(&t, &jiffyBlockFrame, b); err != nil {
			return err
		}
	}
	if err := h.until(&t, jiffyBlockState); err != nil {
		return err
	}
	if more {
		h.drive(false, true)
	} else {
		h.drive(true, false)
	}
	if err := h.until(&t, jiffyBlockEnd); err != nil {
		return err
	}
	h.drive(false, true)
	return h.waitLine(hal.LineDATA, false, timeoutDefault)
}
