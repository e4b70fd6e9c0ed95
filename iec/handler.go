package iec

import (
	"sync/atomic"

	"github.com/ardnew/softiec/iec/hal"
	"github.com/ardnew/softiec/pkg"
)

// Handler runs the serial bus protocol for up to MaxDevices devices on one
// bus interface.
//
// Task must be called from a single goroutine (the main loop). When the HAL
// implements hal.Interrupter, an ATN edge that arrives outside Task is
// answered immediately from the interrupt; one that arrives while Task runs
// is left pending for Task to pick up. Registry and configuration methods
// must not run concurrently with Task.
type Handler struct {
	bus       hal.Bus
	irq       hal.Interrupter
	parallel  hal.ParallelPort
	protocols Protocol
	inverted  bool
	hasReset  bool
	hasCTRL   bool
	begun     bool

	devices [MaxDevices]*Device
	count   int

	// Transaction state
	flags     atomic.Uint32
	phase     atnPhase
	primary   byte
	secondary byte
	current   *Device

	// Inter-byte pacing and ATN settle window
	pace    Timer
	paceFor uint32

	// Scratch buffer shared by the block protocols
	buf     []byte
	scratch [DefaultBufferSize]byte

	dolphin dolphinState

	// Bus seen idle since the Epyx header was requested
	epyxReady bool

	// Cross-context signals between Task and the ATN interrupt
	busy       atomic.Bool
	atnPending atomic.Bool
}

// NewHandler creates a handler on bus negotiating the given accelerated
// protocols. Optional HAL capabilities (interrupts, parallel port) are
// discovered by type assertion.
func NewHandler(bus hal.Bus, protocols Protocol) *Handler {
	h := &Handler{
		bus:       bus,
		protocols: protocols,
		pace:      Timer{clock: bus},
	}
	h.buf = h.scratch[:]
	if irq, ok := bus.(hal.Interrupter); ok {
		h.irq = irq
	}
	if p, ok := bus.(hal.ParallelPort); ok {
		h.parallel = p
	}
	return h
}

// Protocols returns the accelerated protocols the handler negotiates.
func (h *Handler) Protocols() Protocol { return h.protocols }

// SetInverted selects push-pull drive with inverted levels, for interfaces
// with inverting line buffers. Must be called before Begin.
func (h *Handler) SetInverted(inv bool) { h.inverted = inv }

// SetBuffer replaces the built-in scratch buffer used by block transfers.
func (h *Handler) SetBuffer(buf []byte) error {
	if len(buf) < DefaultBufferSize {
		return pkg.ErrBufferTooSmall
	}
	h.buf = buf
	return nil
}

// SetParallelPort sets the DolphinDOS parallel cable.
func (h *Handler) SetParallelPort(p hal.ParallelPort) { h.parallel = p }

// SetInterrupter overrides the interrupt source discovered from the bus.
// Passing nil selects polling.
func (h *Handler) SetInterrupter(irq hal.Interrupter) { h.irq = irq }

// Begin configures the lines and starts every attached driver.
func (h *Handler) Begin() error {
	if h.begun {
		return pkg.ErrAlreadyRunning
	}
	for _, l := range [...]hal.Line{hal.LineATN, hal.LineCLK, hal.LineDATA} {
		if !h.bus.Has(l) {
			return pkg.ErrNotSupported
		}
	}
	h.bus.SetMode(hal.LineATN, hal.ModeInput)
	if h.inverted {
		h.bus.SetMode(hal.LineCLK, hal.ModeOutput)
		h.bus.SetMode(hal.LineDATA, hal.ModeOutput)
	}
	h.writeLine(hal.LineCLK, true)
	h.writeLine(hal.LineDATA, true)

	h.hasReset = h.bus.Has(hal.LineRESET)
	if h.hasReset {
		h.bus.SetMode(hal.LineRESET, hal.ModeInput)
	}
	h.hasCTRL = h.bus.Has(hal.LineCTRL)
	if h.hasCTRL {
		h.bus.SetMode(hal.LineCTRL, hal.ModeOutput)
		h.armPresence(true)
	}

	if h.irq != nil {
		edge := hal.EdgeFalling
		if h.inverted {
			edge = hal.EdgeRising
		}
		if err := h.irq.AttachInterrupt(hal.LineATN, edge, h.atnInterrupt); err != nil {
			pkg.LogWarn(pkg.ComponentBus, "ATN interrupt unavailable, polling", "error", err)
			h.irq = nil
		}
	}
	if h.protocols&ProtocolDolphinDOS != 0 {
		if h.parallel == nil {
			pkg.LogInfo(pkg.ComponentBus, "DolphinDOS disabled: no parallel port")
		} else {
			h.parallel.SetOutput(false)
			h.parallel.HandshakeReceived()
		}
	}

	h.begun = true
	for i := range h.count {
		h.devices[i].driver.Begin()
	}
	pkg.LogInfo(pkg.ComponentBus, "handler started",
		"protocols", h.protocols.String(),
		"devices", h.count,
		"interrupts", h.irq != nil,
		"inverted", h.inverted)
	return nil
}

// Attach adds a device to the registry. If the handler is running the
// driver's Begin is called immediately.
func (h *Handler) Attach(d *Device) error {
	switch {
	case d == nil || d.driver == nil:
		return pkg.ErrInvalidParameter
	case d.number > MaxAddress:
		return pkg.ErrInvalidAddress
	case d.handler != nil:
		return pkg.ErrAlreadyAttached
	case h.FindDevice(d.number, true) != nil:
		return pkg.ErrAddressInUse
	case h.count == MaxDevices:
		return pkg.ErrRegistryFull
	}
	h.devices[h.count] = d
	h.count++
	d.handler = h
	if h.begun {
		d.driver.Begin()
	}
	pkg.LogDebug(pkg.ComponentDevice, "device attached", "device", d.number)
	return nil
}

// Detach removes a device from the registry and compacts it.
func (h *Handler) Detach(d *Device) error {
	idx := -1
	for i := range h.count {
		if h.devices[i] == d {
			idx = i
			break
		}
	}
	if idx < 0 {
		return pkg.ErrNotAttached
	}
	copy(h.devices[idx:h.count], h.devices[idx+1:h.count])
	h.count--
	h.devices[h.count] = nil
	if h.current == d {
		h.current = nil
		h.clear(FlagListening | FlagTalking)
	}
	if h.dolphin.holder == d || h.dolphin.replayer == d {
		h.dolphin.drop()
	}
	d.handler = nil
	pkg.LogDebug(pkg.ComponentDevice, "device detached", "device", d.number)
	return nil
}

// FindDevice returns the attached device with the given number. Inactive
// devices are returned only when includeInactive is set.
func (h *Handler) FindDevice(number uint8, includeInactive bool) *Device {
	for i := range h.count {
		d := h.devices[i]
		if d.number == number && (includeInactive || d.active) {
			return d
		}
	}
	return nil
}

// Devices returns the attached devices in registry order.
func (h *Handler) Devices() []*Device {
	out := make([]*Device, h.count)
	copy(out, h.devices[:h.count])
	return out
}

// Flags returns the current transaction flags.
func (h *Handler) Flags() Flags { return Flags(h.flags.Load()) }

// State returns the coarse handler state.
func (h *Handler) State() State {
	f := h.Flags()
	switch {
	case f&FlagAttention != 0:
		return StateAttention
	case f&FlagListening != 0:
		return StateListening
	case f&FlagTalking != 0:
		return StateTalking
	}
	return StateIdle
}

// Current returns the device engaged in the active transaction, or nil.
func (h *Handler) Current() *Device { return h.current }

// Addresses returns the last primary and secondary address bytes.
func (h *Handler) Addresses() (primary, secondary byte) {
	return h.primary, h.secondary
}

func (h *Handler) is(f Flags) bool { return Flags(h.flags.Load())&f != 0 }
func (h *Handler) set(f Flags)     { h.flags.Store(h.flags.Load() | uint32(f)) }
func (h *Handler) clear(f Flags)   { h.flags.Store(h.flags.Load() &^ uint32(f)) }

// Task advances the bus state machine by one step and then runs every
// driver's Task. It never blocks longer than the transfer step in progress.
func (h *Handler) Task() {
	if !h.begun {
		return
	}
	if h.busy.CompareAndSwap(false, true) {
		h.step()
		h.busy.Store(false)
	}
	for i := range h.count {
		h.devices[i].driver.Task()
	}
}

func (h *Handler) step() {
	if h.hasReset && h.resetTask() {
		return
	}

	pending := h.atnPending.Swap(false)
	atnLow := !h.readLine(hal.LineATN)
	if !h.is(FlagAttention) {
		if atnLow {
			h.atnRequest()
		} else if pending {
			pkg.LogDebug(pkg.ComponentBus, "attention pulse missed")
		}
	}
	if h.is(FlagAttention) {
		if atnLow {
			h.attentionTask()
		} else {
			h.releaseAttention()
		}
		return
	}

	switch {
	case h.is(FlagDone):
	case h.is(FlagListening):
		h.listenTask()
	case h.is(FlagTalking):
		h.talkTask()
	default:
		h.idleTask()
	}
}

// atnInterrupt runs on the falling edge of ATN.
func (h *Handler) atnInterrupt() {
	if !h.busy.CompareAndSwap(false, true) {
		h.atnPending.Store(true)
		return
	}
	if !h.is(FlagAttention) {
		h.atnRequest()
	}
	h.busy.Store(false)
}

// resetTask follows the RESET line and reports whether it is held low.
func (h *Handler) resetTask() bool {
	low := !h.readLine(hal.LineRESET)
	switch {
	case low && !h.is(FlagReset):
		h.resetBus()
	case !low && h.is(FlagReset):
		h.clear(FlagReset)
	}
	return low
}

// resetBus returns the handler to idle and resets every driver.
func (h *Handler) resetBus() {
	h.flags.Store(uint32(FlagReset))
	h.phase = phaseIdle
	h.current = nil
	h.primary, h.secondary = 0, 0
	h.writeLine(hal.LineCLK, true)
	h.writeLine(hal.LineDATA, true)
	h.armPresence(true)
	h.dolphin.drop()
	if h.parallel != nil {
		h.parallel.SetOutput(false)
	}
	for i := range h.count {
		d := h.devices[i]
		d.flags &^= detectionFlags | dolphinBurst
		d.driver.Reset()
	}
	pkg.LogInfo(pkg.ComponentBus, "bus reset")
}

// abort ends the current transfer, leaving both lines released.
func (h *Handler) abort(err error, step string) {
	h.set(FlagDone)
	h.writeLine(hal.LineCLK, true)
	h.writeLine(hal.LineDATA, true)
	if h.parallel != nil {
		h.parallel.SetOutput(false)
	}
	dev := -1
	if h.current != nil {
		dev = int(h.current.number)
	}
	pkg.LogDebug(pkg.ComponentBus, "transfer aborted", "step", step, "device", dev, "error", err)
}
