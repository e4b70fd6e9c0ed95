package sim

import (
	"time"

	"github.com/ardnew/softiec/iec/hal"
	"github.com/ardnew/softiec/pkg"
)

// Host-side timing of the standard protocol.
const (
	hostBitSetup   = 20 * time.Microsecond
	hostBitValid   = 20 * time.Microsecond
	hostPresence   = 1 * time.Millisecond
	hostAck        = 1 * time.Millisecond
	hostReady      = 100 * time.Millisecond
	hostEOIWait    = 200 * time.Microsecond
	hostEOIHold    = 60 * time.Microsecond
	hostEOITimeout = 2 * time.Millisecond
	hostSettle     = 20 * time.Microsecond
)

// Bus commands sent under ATN.
const (
	CmdListen   = 0x20
	CmdTalk     = 0x40
	CmdUnlisten = 0x3F
	CmdUntalk   = 0x5F
	CmdData     = 0x60
	CmdClose    = 0xE0
	CmdOpen     = 0xF0
)

// Attention asserts ATN and sends the given command bytes. ATN stays
// asserted on success; the caller finishes the sequence with
// ReleaseAttention, Talk-style turnaround or one of the helpers below.
func (h *Host) Attention(cmd ...byte) error {
	h.jiffyDetected, h.dolphinDetected = false, false
	h.Assert(hal.LineATN)
	h.Assert(hal.LineCLK)
	h.Release(hal.LineDATA)
	// Sample presence only after the full window: a talker may still be
	// driving DATA from its last frame when ATN goes low.
	h.Sleep(hostPresence)
	if h.Line(hal.LineDATA) {
		h.Release(hal.LineATN)
		h.Release(hal.LineCLK)
		return pkg.ErrNoDevice
	}
	for i, b := range cmd {
		jiffy := h.jiffy && i == 0 && b != CmdUnlisten && b != CmdUntalk
		if err := h.sendATNByte(b, jiffy); err != nil {
			h.Release(hal.LineATN)
			h.Release(hal.LineCLK)
			return err
		}
	}
	if h.dolphin && len(cmd) > 1 {
		h.detectDolphin()
	}
	return nil
}

// ReleaseAttention ends the ATN phase with the host as talker (CLK held).
func (h *Host) ReleaseAttention() {
	h.Release(hal.LineATN)
	h.Sleep(hostSettle)
}

// Listen addresses device to listen on a secondary address.
func (h *Host) Listen(device, secondary byte) error {
	if err := h.Attention(CmdListen|device&0x1F, secondary); err != nil {
		return err
	}
	h.ReleaseAttention()
	return nil
}

// Unlisten sends the UNLISTEN broadcast and frees the bus.
func (h *Host) Unlisten() error {
	err := h.Attention(CmdUnlisten)
	h.ReleaseAttention()
	h.Release(hal.LineCLK)
	return err
}

// Talk addresses device to talk and performs the role reversal. On return
// the host is listener holding DATA.
func (h *Host) Talk(device, secondary byte) error {
	if err := h.Attention(CmdTalk|device&0x1F, secondary); err != nil {
		return err
	}
	h.Assert(hal.LineDATA)
	h.Release(hal.LineATN)
	h.Sleep(hostSettle)
	h.Release(hal.LineCLK)
	if !h.WaitLine(hal.LineCLK, false, hostAck) {
		h.Release(hal.LineDATA)
		return pkg.ErrNotAcknowledged
	}
	return nil
}

// Untalk sends the UNTALK broadcast and frees the bus.
func (h *Host) Untalk() error {
	err := h.Attention(CmdUntalk)
	h.Release(hal.LineATN)
	h.Sleep(hostSettle)
	h.Release(hal.LineCLK)
	return err
}

// Open sends name on channel secondary of device.
func (h *Host) Open(device, secondary byte, name []byte) error {
	if err := h.Listen(device, CmdOpen|secondary&0x0F); err != nil {
		return err
	}
	if len(name) > 0 {
		if err := h.Send(name); err != nil {
			return err
		}
	}
	return h.Unlisten()
}

// Close closes channel secondary of device.
func (h *Host) Close(device, secondary byte) error {
	if err := h.Listen(device, CmdClose|secondary&0x0F); err != nil {
		return err
	}
	return h.Unlisten()
}

// Command writes a command string to the command channel (15).
func (h *Host) Command(device byte, cmd string) error {
	if err := h.Listen(device, CmdData|15); err != nil {
		return err
	}
	if err := h.Send([]byte(cmd)); err != nil {
		return err
	}
	return h.Unlisten()
}

// Load opens name on channel 0, reads it to EOI and closes it.
func (h *Host) Load(device byte, name string) ([]byte, error) {
	if err := h.Open(device, 0, []byte(name)); err != nil {
		return nil, err
	}
	if err := h.Talk(device, CmdData|0); err != nil {
		return nil, err
	}
	data, err := h.Receive(0)
	if uerr := h.Untalk(); err == nil {
		err = uerr
	}
	if cerr := h.Close(device, 0); err == nil {
		err = cerr
	}
	return data, err
}

// Save opens name on channel 1, writes data and closes it.
func (h *Host) Save(device byte, name string, data []byte) error {
	if err := h.Open(device, 1, []byte(name)); err != nil {
		return err
	}
	if err := h.Listen(device, CmdData|1); err != nil {
		return err
	}
	if err := h.Send(data); err != nil {
		return err
	}
	if err := h.Unlisten(); err != nil {
		return err
	}
	return h.Close(device, 1)
}

// Status reads the command channel status line.
func (h *Host) Status(device byte) (string, error) {
	if err := h.Talk(device, CmdData|15); err != nil {
		return "", err
	}
	data, err := h.Receive(0)
	if uerr := h.Untalk(); err == nil {
		err = uerr
	}
	return string(data), err
}

// Send transmits data with EOI on the last byte.
func (h *Host) Send(data []byte) error {
	for i, b := range data {
		if err := h.SendByte(b, i == len(data)-1); err != nil {
			return err
		}
	}
	return nil
}

// SendByte transmits one byte using the protocol negotiated during the
// last attention sequence.
func (h *Host) SendByte(b byte, eoi bool) error {
	switch {
	case h.jiffyDetected:
		return h.sendJiffyByte(b, eoi)
	case h.dolphinDetected:
		return h.sendDolphinByte(b, eoi)
	}
	return h.sendIECByte(b, eoi)
}

// Receive reads bytes until EOI, or until max bytes when max > 0.
func (h *Host) Receive(max int) ([]byte, error) {
	var out []byte
	for max <= 0 || len(out) < max {
		b, eoi, err := h.ReceiveByte()
		if err != nil {
			return out, err
		}
		out = append(out, b)
		if eoi {
			break
		}
	}
	return out, nil
}

// ReceiveByte reads one byte using the negotiated protocol.
func (h *Host) ReceiveByte() (byte, bool, error) {
	switch {
	case h.jiffyDetected:
		return h.receiveJiffyByte()
	case h.dolphinDetected:
		return h.receiveDolphinByte()
	}
	return h.receiveIECByte()
}

func (h *Host) sendATNByte(b byte, jiffy bool) error {
	h.Release(hal.LineCLK)
	if !h.WaitLine(hal.LineDATA, true, hostReady) {
		return pkg.ErrTimeout
	}
	h.Sleep(hostBitSetup)
	h.Assert(hal.LineCLK)
	for i := range 8 {
		if i == 7 && jiffy {
			h.Release(hal.LineDATA)
			if h.WaitLine(hal.LineDATA, false, jiffyWindow) {
				h.jiffyDetected = true
				h.WaitLine(hal.LineDATA, true, hostAck)
			}
		}
		h.clockBit(b>>i&1 == 1)
	}
	h.Release(hal.LineDATA)
	if !h.WaitLine(hal.LineDATA, false, hostAck) {
		return pkg.ErrNotAcknowledged
	}
	return nil
}

// clockBit places one bit on DATA and strobes CLK.
func (h *Host) clockBit(bit bool) {
	h.Set(hal.LineDATA, bit)
	h.Sleep(hostBitSetup)
	h.Release(hal.LineCLK)
	h.Sleep(hostBitValid)
	h.Assert(hal.LineCLK)
}

func (h *Host) sendIECByte(b byte, eoi bool) error {
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
	h.Sleep(hostBitSetup)
	h.Assert(hal.LineCLK)
	for i := range 8 {
		h.clockBit(b>>i&1 == 1)
	}
	h.Release(hal.LineDATA)
	if !h.WaitLine(hal.LineDATA, false, hostAck) {
		return pkg.ErrNotAcknowledged
	}
	return nil
}

func (h *Host) receiveIECByte() (byte, bool, error) {
	if !h.WaitLine(hal.LineCLK, true, hostReady) {
		return 0, false, pkg.ErrTimeout
	}
	h.Release(hal.LineDATA)
	eoi := false
	if !h.WaitLine(hal.LineCLK, false, hostEOIWait) {
		eoi = true
		h.Assert(hal.LineDATA)
		h.Sleep(hostEOIHold)
		h.Release(hal.LineDATA)
		if !h.WaitLine(hal.LineCLK, false, hostEOITimeout) {
			return 0, false, pkg.ErrNoData
		}
	}
	var b byte
	for i := range 8 {
		if !h.WaitLine(hal.LineCLK, true, hostAck) {
			return 0, false, pkg.ErrTimeout
		}
		if h.Line(hal.LineDATA) {
			b |= 1 << i
		}
		if !h.WaitLine(hal.LineCLK, false, hostAck) {
			return 0, false, pkg.ErrTimeout
		}
	}
	h.Assert(hal.LineDATA)
	return b, eoi, nil
}
