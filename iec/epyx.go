package iec

import (
	"github.com/ardnew/softiec/iec/hal"
	"github.com/ardnew/softiec/pkg"
)

// EpyxOperation is the transfer selected by an uploaded Epyx header.
type EpyxOperation uint8

// Epyx FastLoad operations.
const (
	EpyxUnknown EpyxOperation = iota
	EpyxLoadFile
	EpyxSectorOps
)

// String returns the operation name.
func (op EpyxOperation) String() string {
	switch op {
	case EpyxLoadFile:
		return "load"
	case EpyxSectorOps:
		return "sector"
	}
	return "unknown"
}

// ClassifyEpyxHeader maps the 8-bit sum of an uploaded header to the
// cartridge version and operation it belongs to.
func ClassifyEpyxHeader(sum byte) (op EpyxOperation, version int, err error) {
	switch sum {
	case 0x26:
		return EpyxLoadFile, 1, nil
	case 0x86:
		return EpyxLoadFile, 2, nil
	case 0xAA:
		return EpyxLoadFile, 3, nil
	case 0x0B:
		return EpyxSectorOps, 1, nil
	case 0xBA:
		return EpyxSectorOps, 2, nil
	}
	return EpyxUnknown, 0, pkg.ErrChecksum
}

// Sector commands and replies.
const (
	epyxCmdRead  = 1
	epyxCmdWrite = 2
	epyxStatusOK = 0
	epyxStatusNG = 1
)

// epyxDevice returns the device with an Epyx transfer in progress.
func (h *Handler) epyxDevice() *Device {
	for i := range h.count {
		if d := h.devices[i]; d.flags&epyxActive != 0 {
			return d
		}
	}
	return nil
}

// epyxPending reports whether a header upload is expected.
func (h *Handler) epyxPending() bool {
	d := h.epyxDevice()
	return d != nil && d.flags&epyxHeader != 0
}

// idleTask drives Epyx transfers, which run outside LISTEN/TALK.
func (h *Handler) idleTask() {
	if h.protocols&ProtocolEpyx == 0 {
		return
	}
	d := h.epyxDevice()
	switch {
	case d == nil:
	case d.flags&epyxHeader != 0:
		// The host claims the bus by pulling CLK after it was released.
		if h.readLine(hal.LineCLK) {
			h.epyxReady = true
		} else if h.epyxReady {
			h.epyxReceiveHeader(d)
		}
	case d.flags&epyxLoad != 0:
		h.epyxLoadBlock(d)
	case d.flags&epyxSector != 0:
		h.epyxSectorTask(d)
	}
}

// epyxReceiveByte receives one inverted frame from the host.
func (h *Handler) epyxReceiveByte() (byte, error) {
	if err := h.waitLine(hal.LineCLK, false, timeoutDefault); err != nil {
		return 0, err
	}
	h.writeLine(hal.LineDATA, true)
	if err := h.waitLine(hal.LineCLK, true, timeoutDefault); err != nil {
		return 0, err
	}
	t := NewTimer(h.bus)
	b, err := h.samplePairs(&t, &epyxReceiveFrame)
	if err != nil {
		return 0, err
	}
	h.writeLine(hal.LineDATA, false)
	// Hold the acknowledge until the host has finished the frame, so no
	// late data pair is taken for the next handshake.
	if err := h.until(&t, epyxReceiveEnd); err != nil {
		return 0, err
	}
	return b, nil
}

// epyxTransmitByte sends one inverted frame to the host.
func (h *Handler) epyxTransmitByte(b byte) error {
	h.drive(false, true)
	if err := h.waitLine(hal.LineDATA, false, timeoutDefault); err != nil {
		return err
	}
	h.writeLine(hal.LineCLK, true)
	if err := h.waitLine(hal.LineDATA, true, timeoutDefault); err != nil {
		return err
	}
	t := NewTimer(h.bus)
	if err := h.drivePairs(&t, &epyxTransmitFrame, b); err != nil {
		return err
	}
	if err := h.until(&t, epyxTransmitEnd); err != nil {
		return err
	}
	h.drive(false, true)
	return h.waitLine(hal.LineDATA, false, timeoutDefault)
}

// epyxBusy holds CLK low while the device prepares a reply. The host may
// not start receiving until CLK is released.
func (h *Handler) epyxBusy() {
	h.writeLine(hal.LineCLK, false)
}

// epyxIdle leaves the bus in the sector-mode idle state.
func (h *Handler) epyxIdle() {
	h.drive(true, false)
	h.pace.Reset()
}

// epyxStop ends any Epyx transfer on d and frees the bus.
func (h *Handler) epyxStop(d *Device) {
	d.flags &^= epyxActive
	h.drive(true, true)
}

// epyxReceiveHeader receives the uploaded drive code and, for a recognised
// load header, the file name that follows it.
func (h *Handler) epyxReceiveHeader(d *Device) {
	d.flags &^= epyxHeader
	h.epyxReady = false

	s := h.mask()
	var (
		sum  byte
		name []byte
		err  error
	)
	for i := 0; err == nil && i < epyxHeaderSize; i++ {
		var b byte
		b, err = h.epyxReceiveByte()
		sum += b
	}
	op, version := EpyxUnknown, 0
	if err == nil {
		op, version, err = ClassifyEpyxHeader(sum)
	}
	switch {
	case err != nil:
	case op == EpyxLoadFile:
		if name, err = h.epyxReceiveName(); err == nil {
			h.epyxBusy()
		}
	case op == EpyxSectorOps:
		if err = h.waitLine(hal.LineCLK, true, timeoutDefault); err == nil {
			h.epyxIdle()
		}
	}
	h.unmask(s)

	if err != nil {
		h.epyxStop(d)
		pkg.LogDebug(pkg.ComponentProtocol, "Epyx header rejected",
			"device", d.number, "checksum", sum, "error", err)
		return
	}
	pkg.LogDebug(pkg.ComponentProtocol, "Epyx FastLoad",
		"device", d.number, "version", version, "operation", op.String())

	switch op {
	case EpyxLoadFile:
		drv := d.driver
		drv.Listen(secondaryOpen)
		for i, b := range name {
			drv.Write(b, i == len(name)-1)
		}
		drv.Unlisten()
		drv.Talk(secondaryLoad)
		d.flags |= epyxLoad
	case EpyxSectorOps:
		d.flags |= epyxSector
	}
}

// epyxReceiveName receives the length-prefixed file name, sent last byte
// first, into the scratch buffer.
func (h *Handler) epyxReceiveName() ([]byte, error) {
	n, err := h.epyxReceiveByte()
	if err != nil {
		return nil, err
	}
	name := h.buf[:n]
	for i := int(n) - 1; i >= 0; i-- {
		if name[i], err = h.epyxReceiveByte(); err != nil {
			return nil, err
		}
	}
	return name, nil
}

// epyxLoadBlock sends one block of the open file: a length frame followed
// by that many data frames. A zero-length block ends the load.
func (h *Handler) epyxLoadBlock(d *Device) {
	n := readBlock(d, h.buf[:epyxBlockSize])
	if n < 0 {
		return
	}
	s := h.mask()
	err := h.epyxTransmitByte(byte(n))
	for i := 0; err == nil && i < n; i++ {
		err = h.epyxTransmitByte(h.buf[i])
	}
	h.unmask(s)

	if err == nil && n > 0 {
		return
	}
	drv := d.driver
	drv.Untalk()
	drv.Listen(secondaryClose)
	drv.Unlisten()
	h.epyxStop(d)
	if err != nil {
		pkg.LogDebug(pkg.ComponentProtocol, "Epyx load aborted", "device", d.number, "error", err)
	}
}

// epyxSectorTask serves one sector command when the host claims the bus,
// and otherwise keeps the heartbeat going.
func (h *Handler) epyxSectorTask(d *Device) {
	if !h.readLine(hal.LineCLK) {
		s := h.mask()
		done, err := h.epyxSectorCommand(d)
		h.unmask(s)
		if done || err != nil {
			h.epyxStop(d)
		}
		if err != nil {
			pkg.LogDebug(pkg.ComponentProtocol, "Epyx sector command failed", "device", d.number, "error", err)
		}
		return
	}
	if h.pace.Before(epyxHeartbeat) {
		return
	}
	h.writeLine(hal.LineCLK, false)
	err := h.delay(epyxPulse)
	h.writeLine(hal.LineCLK, true)
	if err != nil {
		h.epyxStop(d)
		pkg.LogDebug(pkg.ComponentProtocol, "Epyx heartbeat interrupted", "device", d.number, "error", err)
		return
	}
	h.pace.Reset()
}

// epyxSectorCommand runs one track/sector/op exchange. It reports done when
// the host leaves sector mode.
func (h *Handler) epyxSectorCommand(d *Device) (bool, error) {
	var cmd [3]byte
	for i := range cmd {
		b, err := h.epyxReceiveByte()
		if err != nil {
			return false, err
		}
		cmd[i] = b
	}
	track, sector, op := cmd[0], cmd[1], cmd[2]
	buf := h.buf[:epyxSectorSize]

	switch op {
	case epyxCmdRead:
		h.epyxBusy()
		ok := false
		if sr, has := d.driver.(SectorReader); has {
			ok = sr.ReadSector(track, sector, buf)
		}
		if err := h.epyxTransmitByte(epyxStatus(ok)); err != nil {
			return false, err
		}
		for i := 0; ok && i < len(buf); i++ {
			if err := h.epyxTransmitByte(buf[i]); err != nil {
				return false, err
			}
		}
	case epyxCmdWrite:
		for i := range buf {
			b, err := h.epyxReceiveByte()
			if err != nil {
				return false, err
			}
			buf[i] = b
		}
		h.epyxBusy()
		ok := false
		if sw, has := d.driver.(SectorWriter); has {
			ok = sw.WriteSector(track, sector, buf)
		}
		if err := h.epyxTransmitByte(epyxStatus(ok)); err != nil {
			return false, err
		}
	default:
		return true, nil
	}
	h.epyxIdle()
	return false, nil
}

func epyxStatus(ok bool) byte {
	if ok {
		return epyxStatusOK
	}
	return epyxStatusNG
}
