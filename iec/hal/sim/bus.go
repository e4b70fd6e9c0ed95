package sim

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ardnew/softiec/iec/hal"
)

// DefaultTick is the virtual time consumed by one device-side HAL call.
const DefaultTick = 250 * time.Nanosecond

// DefaultLimit bounds the virtual run time of a simulation.
const DefaultLimit = 10 * time.Second

// ErrTimeLimit is returned by Serve when the virtual clock passes the limit.
var ErrTimeLimit = errors.New("simulation time limit exceeded")

// Event is one recorded line transition.
type Event struct {
	At    time.Duration
	Line  hal.Line
	Level bool
}

func (e Event) String() string {
	lvl := "low"
	if e.Level {
		lvl = "high"
	}
	return fmt.Sprintf("%10.1fus %-5s %s", float64(e.At)/float64(time.Microsecond), e.Line, lvl)
}

// WriteTrace prints events one per line.
func WriteTrace(w io.Writer, events []Event) error {
	for _, e := range events {
		if _, err := fmt.Fprintln(w, e); err != nil {
			return err
		}
	}
	return nil
}

type irqSlot struct {
	fn      func()
	edge    hal.Edge
	pending bool
}

// Bus is a simulated wired-AND serial bus.
//
// The device side is the hal.Bus (plus hal.Interrupter) implemented by Bus
// itself. Every device-side call advances the virtual clock by one tick and
// then lets the attached Host run until it blocks again, so device and host
// execute in lockstep without real concurrency.
type Bus struct {
	now   time.Duration
	tick  time.Duration
	limit time.Duration

	// Device pin state
	wired    [hal.NumLines]bool
	mode     [hal.NumLines]hal.Mode
	latch    [hal.NumLines]bool
	inverted bool

	// Lines pulled low by the host
	hostLow [hal.NumLines]bool

	// Last observed levels, for edge detection
	level [hal.NumLines]bool

	// Interrupts
	irq         [hal.NumLines]irqSlot
	masked      bool
	dispatching bool

	// Tracing
	tracing bool
	events  []Event

	host     *Host
	parallel *Parallel
}

// New creates a bus with ATN, CLK, DATA, RESET and CTRL wired and every
// line released.
func New() *Bus {
	b := &Bus{
		tick:  DefaultTick,
		limit: DefaultLimit,
	}
	for l := range b.wired {
		b.wired[l] = true
	}
	for l := range b.level {
		b.level[l] = true
	}
	return b
}

// SetTick sets the virtual time consumed by each device-side call.
func (b *Bus) SetTick(d time.Duration) {
	if d > 0 {
		b.tick = d
	}
}

// SetLimit sets the virtual time budget. Zero disables the limit.
func (b *Bus) SetLimit(d time.Duration) { b.limit = d }

// SetWired marks a line as present or absent on the device side.
func (b *Bus) SetWired(l hal.Line, wired bool) {
	if l < hal.NumLines {
		b.wired[l] = wired
	}
}

// SetInverted models an inverting line driver between the device pins and
// the bus: a pin driven high pulls the line low and reads return the
// complement of the line level.
func (b *Bus) SetInverted(inv bool) { b.inverted = inv }

// SetTrace enables recording of line transitions.
func (b *Bus) SetTrace(on bool) { b.tracing = on }

// Trace returns the recorded transitions.
func (b *Bus) Trace() []Event { return b.events }

// ClearTrace drops all recorded transitions.
func (b *Bus) ClearTrace() { b.events = b.events[:0] }

// Now returns the virtual time.
func (b *Bus) Now() time.Duration { return b.now }

// Level reports the wired-AND level of a line (true = high).
func (b *Bus) Level(l hal.Line) bool {
	if l >= hal.NumLines {
		return true
	}
	if b.hostLow[l] || b.devicePulls(l) {
		return false
	}
	if l == hal.LineDATA && b.presencePulls() {
		return false
	}
	return true
}

// devicePulls reports whether the device pin holds the line low.
func (b *Bus) devicePulls(l hal.Line) bool {
	if !b.wired[l] || b.mode[l] != hal.ModeOutput || l == hal.LineCTRL {
		return false
	}
	return b.latch[l] == b.inverted
}

// presencePulls models the ATN-to-DATA shortcut gate enabled by CTRL.
func (b *Bus) presencePulls() bool {
	if !b.wired[hal.LineCTRL] || b.mode[hal.LineCTRL] != hal.ModeOutput {
		return false
	}
	return b.latch[hal.LineCTRL] && !b.Level(hal.LineATN)
}

// Has implements hal.Pins.
func (b *Bus) Has(l hal.Line) bool { return l < hal.NumLines && b.wired[l] }

// SetMode implements hal.Pins.
func (b *Bus) SetMode(l hal.Line, m hal.Mode) {
	if l < hal.NumLines {
		b.mode[l] = m
	}
	b.step()
}

// Write implements hal.Pins.
func (b *Bus) Write(l hal.Line, level bool) {
	if l < hal.NumLines {
		b.latch[l] = level
	}
	b.step()
}

// Read implements hal.Pins.
func (b *Bus) Read(l hal.Line) bool {
	b.step()
	v := b.Level(l)
	if b.inverted {
		return !v
	}
	return v
}

// Micros implements hal.Clock.
func (b *Bus) Micros() uint32 {
	b.step()
	return uint32(b.now / time.Microsecond)
}

// AttachInterrupt implements hal.Interrupter.
func (b *Bus) AttachInterrupt(l hal.Line, edge hal.Edge, fn func()) error {
	if l >= hal.NumLines || !b.wired[l] {
		return fmt.Errorf("attach interrupt %s: line not wired", l)
	}
	b.irq[l] = irqSlot{fn: fn, edge: edge}
	return nil
}

// DisableInterrupts implements hal.Interrupter.
func (b *Bus) DisableInterrupts() uint32 {
	prev := b.masked
	b.masked = true
	if prev {
		return 1
	}
	return 0
}

// RestoreInterrupts implements hal.Interrupter.
func (b *Bus) RestoreInterrupts(state uint32) {
	b.masked = state != 0
	if !b.masked {
		b.deliver()
	}
}

// Advance runs the bus for d of virtual time with the device idle.
func (b *Bus) Advance(d time.Duration) {
	end := b.now + d
	for b.now < end {
		b.step()
	}
}

// step advances the clock by one tick and runs the host while it can.
func (b *Bus) step() {
	b.now += b.tick
	if b.limit > 0 && b.now > b.limit {
		panic(ErrTimeLimit)
	}
	b.settle()
}

// settle records edges and yields to the host until it blocks.
func (b *Bus) settle() {
	b.observe()
	for b.host != nil && b.host.runnable() {
		b.host.resume()
		b.observe()
	}
}

// observe compares line levels against the last snapshot, recording and
// dispatching every transition.
func (b *Bus) observe() {
	for l := hal.Line(0); l < hal.NumLines; l++ {
		v := b.Level(l)
		if v == b.level[l] {
			continue
		}
		b.level[l] = v
		if b.tracing && l != hal.LineCTRL {
			b.events = append(b.events, Event{At: b.now, Line: l, Level: v})
		}
		s := &b.irq[l]
		if s.fn == nil {
			continue
		}
		// Interrupts see the pin, which is inverted along with reads.
		pin := v != b.inverted
		if s.edge == hal.EdgeBoth || (s.edge == hal.EdgeRising) == pin {
			s.pending = true
		}
	}
	b.deliver()
}

// deliver runs pending interrupt handlers unless masked or already inside
// a handler.
func (b *Bus) deliver() {
	if b.masked || b.dispatching {
		return
	}
	b.dispatching = true
	defer func() { b.dispatching = false }()
	for l := range b.irq {
		s := &b.irq[l]
		if s.pending && s.fn != nil {
			s.pending = false
			s.fn()
		}
	}
}
