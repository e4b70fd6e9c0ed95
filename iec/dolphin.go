package iec

import (
	"errors"

	"github.com/ardnew/softiec/iec/hal"
	"github.com/ardnew/softiec/pkg"
)

// dolphinState holds the DolphinDOS buffering that spans transactions.
//
// SAVE: the first two bytes after LISTEN on the save channel are held back,
// because the host may still upgrade to a burst and resend them. LOAD: the
// first two bytes sent on the load channel are recorded so a later burst
// can replay them.
type dolphinState struct {
	holder *Device
	armed  bool
	held   [2]byte
	heldN  int

	replayer *Device
	replay   [2]byte
	replayN  int
	burst    bool
}

// drop discards all buffered state.
func (s *dolphinState) drop() { *s = dolphinState{} }

// dolphinCapable reports whether DolphinDOS can be negotiated with d.
func (h *Handler) dolphinCapable(d *Device) bool {
	return h.parallel != nil && h.protocols&ProtocolDolphinDOS != 0 &&
		d.flags&dolphinEnabled != 0
}

// detectDolphin answers the host's handshake pulse sent while ATN is still
// asserted after the secondary address.
func (h *Handler) detectDolphin(d *Device) {
	t := NewTimer(h.bus)
	for t.Before(timeoutDefault) && !h.readLine(hal.LineATN) {
		if h.parallel.HandshakeReceived() {
			h.parallel.PulseHandshake()
			d.flags |= dolphinDetected
			return
		}
	}
}

// listenDolphin updates the SAVE hold when d is addressed to listen.
func (h *Handler) listenDolphin(d *Device) {
	st := &h.dolphin
	sec := h.secondary
	if st.heldN > 0 && (st.holder != d || (sec&0x0F == 1 && sec != secondarySave)) {
		h.flushHold(true)
	}
	st.armed = false
	if sec == secondarySave && d.flags&dolphinDetected != 0 &&
		d.flags&dolphinBurstReceive == 0 && st.heldN == 0 {
		st.holder = d
		st.armed = true
	}
}

// talkDolphin resets the LOAD replay unless a burst is about to use it.
func (h *Handler) talkDolphin(d *Device) {
	st := &h.dolphin
	if d.flags&dolphinBurstTransmit != 0 && st.replayer == d {
		return
	}
	st.replayN = 0
	st.replayer = d
}

// flushHold delivers the held SAVE bytes. When wrapped the bytes are
// bracketed by LISTEN/UNLISTEN on the save channel, for flushes that happen
// outside the owning transaction.
func (h *Handler) flushHold(wrapped bool) {
	st := &h.dolphin
	d := st.holder
	if d == nil || st.heldN == 0 {
		return
	}
	if wrapped {
		d.driver.Listen(secondarySave)
	}
	for i := range st.heldN {
		d.driver.Write(st.held[i], false)
	}
	if wrapped {
		d.driver.Unlisten()
	}
	st.heldN = 0
	st.armed = false
}

// deliver hands a received byte to the driver, holding it back while a SAVE
// hold is armed.
func (h *Handler) deliver(d *Device, b byte, eoi bool) {
	if st := &h.dolphin; st.holder == d && h.secondary == secondarySave {
		if st.armed && !eoi {
			st.held[st.heldN] = b
			st.heldN++
			st.armed = st.heldN < len(st.held)
			return
		}
		h.flushHold(false)
	}
	d.driver.Write(b, eoi)
}

// receiveDolphinByte receives one byte over the parallel cable, strobed by
// CLK.
func (h *Handler) receiveDolphinByte(accept bool) (byte, bool, error) {
	h.writeLine(hal.LineDATA, true)

	eoi := false
	err := h.waitLine(hal.LineCLK, false, dolphinEOITimeout)
	if errors.Is(err, pkg.ErrTimeout) {
		eoi = true
		h.writeLine(hal.LineDATA, false)
		err = h.delay(dolphinEOIHold)
		h.writeLine(hal.LineDATA, true)
		if err == nil {
			err = h.waitLine(hal.LineCLK, false, forever)
		}
	}
	if err != nil {
		return 0, false, err
	}
	b := h.parallel.ReadByte()
	if !accept {
		return 0, false, pkg.ErrDeviceRefused
	}
	h.writeLine(hal.LineDATA, false)
	return b, eoi, nil
}

// transmitDolphinByte sends one byte over the parallel cable.
func (h *Handler) transmitDolphinByte(d *Device, n int) (bool, error) {
	var (
		b        byte
		consumed bool
	)
	if n > NoData {
		b, consumed = peek(d)
	}
	h.parallel.SetOutput(true)
	defer h.parallel.SetOutput(false)
	h.parallel.WriteByte(b)

	h.writeLine(hal.LineCLK, true)
	if err := h.waitLine(hal.LineDATA, true, forever); err != nil {
		return false, err
	}
	if n == NoData {
		return false, pkg.ErrNoData
	}
	if n == 1 {
		if err := h.waitLine(hal.LineDATA, false, forever); err != nil {
			return false, err
		}
		if err := h.waitLine(hal.LineDATA, true, forever); err != nil {
			return false, err
		}
	}
	h.writeLine(hal.LineCLK, false)
	if err := h.waitLine(hal.LineDATA, false, timeoutDefault); err != nil {
		return false, err
	}
	consume(d, consumed)

	st := &h.dolphin
	if h.secondary == secondaryLoad && st.replayN < len(st.replay) {
		st.replay[st.replayN] = b
		st.replayN++
		st.replayer = d
	}
	return n == 1, nil
}

// waitHandshake waits for the host's handshake pulse.
func (h *Handler) waitHandshake(timeout uint32) error {
	t := NewTimer(h.bus)
	for {
		if h.attentionChanged() {
			return pkg.ErrAttention
		}
		if h.parallel.HandshakeReceived() {
			return nil
		}
		if timeout != forever && !t.Before(timeout) {
			return pkg.ErrTimeout
		}
	}
}

// burstSend transmits one burst byte and waits for the host to take it.
func (h *Handler) burstSend(b byte) error {
	h.parallel.WriteByte(b)
	h.parallel.PulseHandshake()
	return h.waitHandshake(timeoutDefault)
}

// transmitDolphinBurst streams the driver's data as a burst. It resumes on
// the next Task when the driver needs time.
func (h *Handler) transmitDolphinBurst(d *Device) {
	st := &h.dolphin
	if !st.burst {
		s := h.mask()
		err := h.waitLine(hal.LineDATA, true, forever)
		if err == nil {
			h.parallel.SetOutput(true)
			h.parallel.HandshakeReceived()
			st.burst = true
			if st.replayer == d {
				for i := 0; err == nil && i < st.replayN; i++ {
					err = h.burstSend(st.replay[i])
				}
			}
			st.replayN = 0
		}
		h.unmask(s)
		if err != nil {
			h.endDolphinBurst(d, err)
			return
		}
		pkg.LogDebug(pkg.ComponentProtocol, "DolphinDOS burst transmit", "device", d.number)
	}

	for {
		n := readBlock(d, h.buf)
		if n < 0 {
			return
		}
		if n == 0 {
			h.endDolphinBurst(d, nil)
			return
		}
		s := h.mask()
		var err error
		for i := 0; err == nil && i < n; i++ {
			err = h.burstSend(h.buf[i])
		}
		h.unmask(s)
		if err != nil {
			h.endDolphinBurst(d, err)
			return
		}
	}
}

func (h *Handler) endDolphinBurst(d *Device, err error) {
	h.dolphin.burst = false
	d.flags &^= dolphinBurstTransmit
	if err != nil {
		h.abort(err, "dolphin burst transmit")
		return
	}
	h.writeLine(hal.LineCLK, true)
	h.parallel.SetOutput(false)
	h.set(FlagDone)
}

// writeBlock hands buf to the driver until all of it is accepted. A driver
// that stops accepting loses the rest of the block.
func writeBlock(d *Device, bw BlockWriter, buf []byte, eoi bool) {
	for len(buf) > 0 {
		n := bw.WriteBlock(buf, eoi)
		if n <= 0 {
			pkg.LogDebug(pkg.ComponentProtocol, "burst block refused",
				"device", d.number, "dropped", len(buf))
			return
		}
		buf = buf[min(n, len(buf)):]
	}
}

// receiveDolphinBurst receives a burst until the host releases CLK. The
// hold buffer is discarded since the host resends those bytes.
func (h *Handler) receiveDolphinBurst(d *Device) {
	h.dolphin.drop()
	h.parallel.SetOutput(false)
	h.parallel.HandshakeReceived()
	h.writeLine(hal.LineDATA, true)

	bw, block := d.driver.(BlockWriter)
	buf := h.buf[:0:len(h.buf)]
	emit := func(b byte, eoi bool) {
		if !block {
			d.driver.Write(b, eoi)
			return
		}
		buf = append(buf, b)
		if eoi || len(buf) == cap(buf) {
			writeBlock(d, bw, buf, eoi)
			buf = buf[:0]
		}
	}

	s := h.mask()
	var (
		prev byte
		have bool
		err  error
	)
	for {
		if h.attentionChanged() {
			err = pkg.ErrAttention
			break
		}
		if h.parallel.HandshakeReceived() {
			b := h.parallel.ReadByte()
			if have {
				emit(prev, false)
			}
			prev, have = b, true
			h.parallel.PulseHandshake()
			continue
		}
		if h.readLine(hal.LineCLK) {
			break
		}
	}
	if err == nil {
		if have {
			emit(prev, true)
		} else if block && len(buf) > 0 {
			writeBlock(d, bw, buf, true)
		}
		h.writeLine(hal.LineDATA, false)
	}
	h.unmask(s)

	d.flags &^= dolphinBurstReceive
	if err != nil {
		h.abort(err, "dolphin burst receive")
		return
	}
	h.set(FlagDone)
	pkg.LogDebug(pkg.ComponentProtocol, "DolphinDOS burst receive", "device", d.number)
}
