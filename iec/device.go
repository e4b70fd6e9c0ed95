package iec

// Return values of Driver.CanWrite and Driver.CanRead besides a byte count.
const (
	NeedTime = -1 // ask again on a later Task
	NoData   = 0  // nothing accepted or available
)

// Driver is the device emulation behind a bus address. The handler calls it
// from Task (and only from Task) as transactions progress.
type Driver interface {
	// Begin is called once when the handler starts, or at attach time if the
	// handler is already running.
	Begin()

	// Task is called at the end of every handler Task.
	Task()

	// Reset is called when the bus master pulls RESET low.
	Reset()

	// Listen is called when the device is addressed as listener.
	Listen(secondary byte)

	// Unlisten is called on every UNLISTEN broadcast.
	Unlisten()

	// Talk is called when the device is addressed as talker.
	Talk(secondary byte)

	// Untalk is called on every UNTALK broadcast.
	Untalk()

	// CanWrite reports whether a byte can be accepted: NeedTime, NoData or
	// the number of bytes the device can take.
	CanWrite() int

	// CanRead reports whether a byte can be sent: NeedTime, NoData or the
	// number of bytes available. A count of 1 marks the last byte (EOI).
	CanRead() int

	// Write delivers a received byte; eoi marks the last byte.
	Write(b byte, eoi bool)

	// Read consumes the next byte to send.
	Read() byte
}

// Peeker is implemented by drivers that can return the next byte without
// consuming it. Fast protocols prefer it so an aborted frame loses nothing.
type Peeker interface {
	Peek() byte
}

// BlockReader is implemented by drivers that fill a block at once. It
// returns the byte count, 0 at end of data or NeedTime.
type BlockReader interface {
	ReadBlock(buf []byte) int
}

// BlockWriter is implemented by drivers that accept a block at once. It
// returns the number of bytes accepted; eoi marks the final block.
type BlockWriter interface {
	WriteBlock(buf []byte, eoi bool) int
}

// SectorReader is implemented by drivers that serve raw sector reads.
type SectorReader interface {
	ReadSector(track, sector byte, buf []byte) bool
}

// SectorWriter is implemented by drivers that accept raw sector writes.
type SectorWriter interface {
	WriteSector(track, sector byte, buf []byte) bool
}

// BaseDriver provides no-op implementations of every Driver method. Embed
// it and override what the device needs.
type BaseDriver struct{}

func (BaseDriver) Begin()           {}
func (BaseDriver) Task()            {}
func (BaseDriver) Reset()           {}
func (BaseDriver) Listen(byte)      {}
func (BaseDriver) Unlisten()        {}
func (BaseDriver) Talk(byte)        {}
func (BaseDriver) Untalk()          {}
func (BaseDriver) CanWrite() int    { return NoData }
func (BaseDriver) CanRead() int     { return NoData }
func (BaseDriver) Write(byte, bool) {}
func (BaseDriver) Read() byte       { return 0 }

// deviceFlags holds per-device protocol state.
type deviceFlags uint16

const (
	jiffyEnabled deviceFlags = 1 << iota
	jiffyDetected
	jiffyBlock
	dolphinEnabled
	dolphinDetected
	dolphinBurstTransmit
	dolphinBurstReceive
	epyxEnabled
	epyxHeader
	epyxLoad
	epyxSector

	// Cleared at the start of every attention sequence.
	detectionFlags = jiffyDetected | jiffyBlock | dolphinDetected |
		epyxHeader | epyxLoad | epyxSector

	dolphinBurst = dolphinBurstTransmit | dolphinBurstReceive
	epyxActive   = epyxHeader | epyxLoad | epyxSector
)

// Device is one bus address served by a Driver.
type Device struct {
	number  uint8
	driver  Driver
	flags   deviceFlags
	active  bool
	handler *Handler
}

// NewDevice creates an active device answering to number.
func NewDevice(number uint8, drv Driver) *Device {
	return &Device{number: number, driver: drv, active: true}
}

// Number returns the bus address.
func (d *Device) Number() uint8 { return d.number }

// Driver returns the device emulation.
func (d *Device) Driver() Driver { return d.driver }

// Handler returns the handler the device is attached to, or nil.
func (d *Device) Handler() *Handler { return d.handler }

// Active reports whether the device answers to addressing.
func (d *Device) Active() bool { return d.active }

// SetActive toggles participation in addressing. An inactive device keeps
// its registry slot.
func (d *Device) SetActive(on bool) { d.active = on }

// SetJiffyDOS enables or disables JiffyDOS negotiation.
func (d *Device) SetJiffyDOS(on bool) { d.setFlag(jiffyEnabled, on) }

// SetDolphinDOS enables or disables DolphinDOS negotiation.
func (d *Device) SetDolphinDOS(on bool) { d.setFlag(dolphinEnabled, on) }

// SetEpyx enables or disables Epyx FastLoad.
func (d *Device) SetEpyx(on bool) { d.setFlag(epyxEnabled, on) }

// Enabled returns the accelerated protocols enabled on the device.
func (d *Device) Enabled() Protocol {
	var p Protocol
	if d.flags&jiffyEnabled != 0 {
		p |= ProtocolJiffyDOS
	}
	if d.flags&dolphinEnabled != 0 {
		p |= ProtocolDolphinDOS
	}
	if d.flags&epyxEnabled != 0 {
		p |= ProtocolEpyx
	}
	return p
}

// Detected returns the accelerated protocol negotiated in the current
// transaction, or ProtocolNone.
func (d *Device) Detected() Protocol {
	switch {
	case d.flags&jiffyDetected != 0:
		return ProtocolJiffyDOS
	case d.flags&dolphinDetected != 0:
		return ProtocolDolphinDOS
	case d.flags&epyxActive != 0:
		return ProtocolEpyx
	}
	return ProtocolNone
}

// RequestDolphinBurstTransmit asks for the next TALK on the LOAD channel to
// be served as a DolphinDOS burst. It fails unless DolphinDOS was detected
// in the current transaction.
func (d *Device) RequestDolphinBurstTransmit() bool {
	if !d.dolphinReady() {
		return false
	}
	d.flags |= dolphinBurstTransmit
	return true
}

// RequestDolphinBurstReceive asks for the next LISTEN on the SAVE channel
// to be served as a DolphinDOS burst.
func (d *Device) RequestDolphinBurstReceive() bool {
	if !d.dolphinReady() {
		return false
	}
	d.flags |= dolphinBurstReceive
	return true
}

// RequestEpyxLoad arms reception of an Epyx FastLoad header once the
// current attention sequence ends.
func (d *Device) RequestEpyxLoad() bool {
	h := d.handler
	if d.flags&epyxEnabled == 0 || h == nil || h.protocols&ProtocolEpyx == 0 {
		return false
	}
	d.flags |= epyxHeader
	return true
}

func (d *Device) dolphinReady() bool {
	h := d.handler
	return h != nil && h.parallel != nil && h.protocols&ProtocolDolphinDOS != 0 &&
		d.flags&dolphinDetected != 0
}

func (d *Device) setFlag(f deviceFlags, on bool) {
	if on {
		d.flags |= f
	} else {
		d.flags &^= f
	}
}
