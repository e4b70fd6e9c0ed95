package sim

import (
	"time"

	"github.com/ardnew/softiec/iec/hal"
	"github.com/ardnew/softiec/pkg"
)

// Host-side DolphinDOS timing.
const (
	dolphinWindow  = 100 * time.Microsecond
	dolphinEOIWait = 200 * time.Microsecond
)

// SetDolphinDOS enables DolphinDOS negotiation after the secondary address.
func (h *Host) SetDolphinDOS(on bool) {
	h.dolphin = on
	h.bus.Parallel()
}

// DolphinDetected reports whether the last addressed device answered the
// DolphinDOS handshake.
func (h *Host) DolphinDetected() bool { return h.dolphinDetected }

// detectDolphin pulses the handshake line while ATN is still asserted and
// waits for the device's answer.
func (h *Host) detectDolphin() {
	h.DrainParallel()
	h.PulseParallel()
	h.dolphinDetected = h.WaitParallel(dolphinWindow)
}

// sendDolphinByte writes one byte on the parallel cable, strobed by CLK.
func (h *Host) sendDolphinByte(b byte, eoi bool) error {
	h.WriteParallel(b)
	h.Release(hal.LineCLK)
	if !h.WaitLine(hal.LineDATA, true, hostReady) {
		return pkg.ErrTimeout
	}
	if eoi {
		if !h.WaitLine(hal.LineDATA, false, hostAck) ||
			!h.WaitLine(hal.LineDATA, true, hostAck) {
			return pkg.ErrProtocol
		}
	}
	h.Assert(hal.LineCLK)
	if !h.WaitLine(hal.LineDATA, false, hostAck) {
		return pkg.ErrNotAcknowledged
	}
	return nil
}

// receiveDolphinByte reads one parallel byte, strobed by CLK.
func (h *Host) receiveDolphinByte() (byte, bool, error) {
	if !h.WaitLine(hal.LineCLK, true, hostReady) {
		return 0, false, pkg.ErrTimeout
	}
	h.Release(hal.LineDATA)
	eoi := false
	if !h.WaitLine(hal.LineCLK, false, dolphinEOIWait) {
		eoi = true
		h.Assert(hal.LineDATA)
		h.Sleep(hostEOIHold)
		h.Release(hal.LineDATA)
		if !h.WaitLine(hal.LineCLK, false, hostEOITimeout) {
			return 0, false, pkg.ErrNoData
		}
	}
	b := h.ReadParallel()
	h.Assert(hal.LineDATA)
	return b, eoi, nil
}

// BurstLoad receives a DolphinDOS burst. The device must be talking with a
// burst transmit requested; the burst ends when the device releases CLK.
func (h *Host) BurstLoad() ([]byte, error) {
	p := h.bus.Parallel()
	h.DrainParallel()
	h.Release(hal.LineDATA)
	var out []byte
	for {
		if !h.Until(func() bool { return p.toHost > 0 || h.Line(hal.LineCLK) }, hostReady) {
			return out, pkg.ErrTimeout
		}
		if p.toHost == 0 {
			break
		}
		p.toHost--
		out = append(out, h.ReadParallel())
		h.PulseParallel()
	}
	h.Assert(hal.LineDATA)
	return out, nil
}

// BurstSave sends data as a DolphinDOS burst. The device must be listening
// with a burst receive requested; the host ends the burst by releasing CLK.
func (h *Host) BurstSave(data []byte) error {
	h.DrainParallel()
	if !h.WaitLine(hal.LineDATA, true, hostReady) {
		return pkg.ErrTimeout
	}
	for _, b := range data {
		h.WriteParallel(b)
		h.PulseParallel()
		if !h.WaitParallel(hostAck) {
			return pkg.ErrNotAcknowledged
		}
	}
	h.WriteParallel(0xFF)
	h.Release(hal.LineCLK)
	if !h.WaitLine(hal.LineDATA, false, hostAck) {
		return pkg.ErrNotAcknowledged
	}
	return nil
}
