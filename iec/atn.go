package iec

import (
	"errors"

	"github.com/ardnew/softiec/iec/hal"
	"github.com/ardnew/softiec/pkg"
)

// atnRequest enters an attention sequence. It runs from the ATN interrupt or
// from Task when polling.
func (h *Handler) atnRequest() {
	h.writeLine(hal.LineCLK, true)
	h.writeLine(hal.LineDATA, false)
	h.armPresence(false)

	h.flags.Store(h.flags.Load()&uint32(FlagReset) | uint32(FlagAttention))
	h.phase = phaseAddress
	h.current = nil
	h.primary, h.secondary = 0, 0
	for i := range h.count {
		h.devices[i].flags &^= detectionFlags
	}
	h.pace.Reset()
	h.paceFor = atnSettle
	if h.parallel != nil {
		h.parallel.SetOutput(false)
	}
}

// attentionTask receives the address bytes once ATN has settled and the
// host is ready to send.
func (h *Handler) attentionTask() {
	if h.phase != phaseAddress || h.pace.Before(h.paceFor) || !h.readLine(hal.LineCLK) {
		return
	}
	s := h.mask()
	err := h.receiveAddress()
	if err != nil {
		h.writeLine(hal.LineCLK, true)
		h.writeLine(hal.LineDATA, true)
	}
	h.unmask(s)
	h.phase = phaseRelease

	switch {
	case errors.Is(err, pkg.ErrNotAddressed):
		pkg.LogDebug(pkg.ComponentBus, "not addressed", "primary", h.primary)
	case err != nil:
		pkg.LogDebug(pkg.ComponentBus, "addressing failed", "primary", h.primary, "error", err)
	case h.current != nil:
		pkg.LogDebug(pkg.ComponentBus, "addressed",
			"device", h.current.number,
			"primary", h.primary,
			"secondary", h.secondary,
			"protocol", h.current.Detected().String())
	}
}

// receiveAddress runs the addressing handshake and applies its outcome.
// Interrupts are masked.
func (h *Handler) receiveAddress() error {
	p, err := h.receiveByteATN(true)
	if err != nil {
		return err
	}
	h.primary = p

	var d *Device
	broadcast := p == addrUnlisten || p == addrUntalk
	if !broadcast {
		if c := p & cmdMask; c == cmdListen || c == cmdTalk {
			d = h.FindDevice(p&addrMask, false)
		}
		if d == nil {
			return pkg.ErrNotAddressed
		}
		if h.dolphinCapable(d) {
			h.parallel.HandshakeReceived()
		}
		sec, err := h.receiveSecondary()
		if err != nil {
			return err
		}
		h.secondary = sec
		if h.dolphinCapable(d) {
			h.detectDolphin(d)
		}
	}
	h.apply(d)
	return nil
}

// receiveSecondary waits for the host to either release ATN (no secondary
// address) or send another byte.
func (h *Handler) receiveSecondary() (byte, error) {
	t := NewTimer(h.bus)
	for t.Before(timeoutDefault) {
		if h.readLine(hal.LineATN) {
			return 0, nil
		}
		if h.readLine(hal.LineCLK) {
			return h.receiveByteATN(false)
		}
	}
	return 0, pkg.ErrTimeout
}

// receiveByteATN receives one byte under attention. When primary is set the
// final bit may be delayed by a JiffyDOS host.
func (h *Handler) receiveByteATN(primary bool) (byte, error) {
	if err := h.waitLine(hal.LineCLK, true, forever); err != nil {
		return 0, err
	}
	h.writeLine(hal.LineDATA, true)
	if err := h.waitLine(hal.LineCLK, false, forever); err != nil {
		return 0, err
	}

	var data byte
	for i := range 8 {
		timeout := uint32(timeoutDefault)
		if i == 7 {
			// A JiffyDOS host delays the last bit until acknowledged.
			if primary && h.protocols&ProtocolJiffyDOS != 0 {
				err := h.waitLine(hal.LineCLK, true, jiffyDetect)
				if errors.Is(err, pkg.ErrTimeout) {
					err = h.acknowledgeJiffy(data)
				}
				if err != nil {
					return 0, err
				}
			}
			timeout = forever
		}
		if err := h.waitLine(hal.LineCLK, true, timeout); err != nil {
			return 0, err
		}
		if h.readLine(hal.LineDATA) {
			data |= 1 << i
		}
		if err := h.waitLine(hal.LineCLK, false, timeoutDefault); err != nil {
			return 0, err
		}
	}
	h.writeLine(hal.LineDATA, false)
	return data, nil
}

// acknowledgeJiffy answers a delayed final address bit if the device
// selected by the bits received so far has JiffyDOS enabled.
func (h *Handler) acknowledgeJiffy(partial byte) error {
	d := h.FindDevice(partial&addrMask, false)
	if d == nil || d.flags&jiffyEnabled == 0 {
		return nil
	}
	h.writeLine(hal.LineDATA, false)
	err := h.delay(jiffyAck)
	h.writeLine(hal.LineDATA, true)
	if err != nil {
		return err
	}
	d.flags |= jiffyDetected
	return nil
}

// apply switches the bus role according to the received address bytes.
func (h *Handler) apply(d *Device) {
	switch p := h.primary; {
	case p == addrUnlisten:
		for i := range h.count {
			h.devices[i].driver.Unlisten()
		}
		h.clear(FlagListening)
	case p == addrUntalk:
		for i := range h.count {
			h.devices[i].driver.Untalk()
		}
		h.clear(FlagTalking)
	case p&cmdMask == cmdListen:
		h.current = d
		h.set(FlagListening)
		h.clear(FlagTalking)
		h.listenDolphin(d)
		d.driver.Listen(h.secondary)
	case p&cmdMask == cmdTalk:
		h.current = d
		h.set(FlagTalking)
		h.clear(FlagListening)
		if d.flags&jiffyDetected != 0 && h.secondary == secondarySave {
			d.flags |= jiffyBlock
		}
		h.talkDolphin(d)
		d.driver.Talk(h.secondary)
	}
}

// releaseAttention completes the attention sequence once the host releases
// ATN.
func (h *Handler) releaseAttention() {
	h.clear(FlagAttention)
	h.phase = phaseIdle

	switch {
	case h.current != nil && h.is(FlagListening):
		h.writeLine(hal.LineDATA, false)

	case h.current != nil && h.is(FlagTalking):
		// Role reversal: host holds DATA and releases CLK, the talker then
		// takes CLK and frees DATA.
		s := h.mask()
		err := h.waitLine(hal.LineCLK, true, timeoutDefault)
		if err == nil {
			h.writeLine(hal.LineCLK, false)
			h.writeLine(hal.LineDATA, true)
		}
		h.unmask(s)
		if err != nil {
			h.abort(err, "turnaround")
			return
		}
		h.pace.Reset()
		h.paceFor = talkPacing

	default:
		h.writeLine(hal.LineCLK, true)
		if !h.epyxPending() {
			h.writeLine(hal.LineDATA, true)
		}
		h.epyxReady = false
		h.armPresence(true)
		h.current = nil
		h.clear(FlagListening | FlagTalking)
	}
}
