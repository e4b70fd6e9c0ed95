package sim

import (
	"time"

	"github.com/ardnew/softiec/iec/hal"
)

// Parallel is a simulated DolphinDOS parallel cable.
//
// The device side implements hal.ParallelPort. Pulses in either direction
// are latched until the other side consumes them.
type Parallel struct {
	bus *Bus

	output   bool
	devData  byte
	hostData byte

	// Latched handshake pulses
	toDevice int
	toHost   int
}

var _ hal.ParallelPort = (*Parallel)(nil)

// Parallel attaches a parallel cable to the bus, creating it on first use.
func (b *Bus) Parallel() *Parallel {
	if b.parallel == nil {
		b.parallel = &Parallel{bus: b, hostData: 0xFF}
	}
	return b.parallel
}

// SetOutput implements hal.ParallelPort.
func (p *Parallel) SetOutput(out bool) {
	p.output = out
	p.bus.step()
}

// ReadByte implements hal.ParallelPort.
func (p *Parallel) ReadByte() byte {
	p.bus.step()
	return p.level()
}

// WriteByte implements hal.ParallelPort.
func (p *Parallel) WriteByte(b byte) {
	p.devData = b
	p.bus.step()
}

// PulseHandshake implements hal.ParallelPort.
func (p *Parallel) PulseHandshake() {
	p.toHost++
	p.bus.step()
}

// HandshakeReceived implements hal.ParallelPort.
func (p *Parallel) HandshakeReceived() bool {
	p.bus.step()
	if p.toDevice == 0 {
		return false
	}
	p.toDevice = 0
	return true
}

// level returns the wired-AND value of the data lines.
func (p *Parallel) level() byte {
	if p.output {
		return p.devData & p.hostData
	}
	return p.hostData
}

// Host-side access

// WriteParallel drives the host side of the data lines.
func (h *Host) WriteParallel(b byte) { h.bus.Parallel().hostData = b }

// ReadParallel samples the data lines and releases the host side.
func (h *Host) ReadParallel() byte {
	p := h.bus.Parallel()
	p.hostData = 0xFF
	return p.level()
}

// PulseParallel emits one handshake pulse towards the device.
func (h *Host) PulseParallel() { h.bus.Parallel().toDevice++ }

// WaitParallel blocks until the device pulses its handshake line and
// consumes the pulse.
func (h *Host) WaitParallel(timeout time.Duration) bool {
	p := h.bus.Parallel()
	if !h.Until(func() bool { return p.toHost > 0 }, timeout) {
		return false
	}
	p.toHost--
	return true
}

// DrainParallel discards any handshake pulses not yet consumed by the host.
func (h *Host) DrainParallel() { h.bus.Parallel().toHost = 0 }
