package hal

// Line identifies one signal of the serial bus.
type Line uint8

// Bus signal lines. ATN, CLK and DATA are mandatory; the rest are optional
// and reported through [Pins.Has].
const (
	LineATN   Line = iota // Attention, driven by the bus master
	LineCLK               // Clock
	LineDATA              // Data
	LineRESET             // Reset, driven by the bus master
	LineCTRL              // Enables the ATN-to-DATA presence shortcut

	// NumLines is the number of defined lines.
	NumLines = 5
)

// String returns the conventional signal name.
func (l Line) String() string {
	switch l {
	case LineATN:
		return "ATN"
	case LineCLK:
		return "CLK"
	case LineDATA:
		return "DATA"
	case LineRESET:
		return "RESET"
	case LineCTRL:
		return "CTRL"
	default:
		return "???"
	}
}

// Mode is the electrical direction of a pin.
type Mode uint8

// Pin modes.
const (
	ModeInput  Mode = iota // High impedance; the line floats to its pull-up
	ModeOutput             // Driven to the last written level
)

// Edge selects which transition triggers an interrupt.
type Edge uint8

// Interrupt edges.
const (
	EdgeFalling Edge = iota
	EdgeRising
	EdgeBoth
)

// Pins is the digital I/O surface of the bus interface.
//
// Read reports the electrical level (true = high). The engine implements
// open-collector behaviour on top of SetMode/Write: a released line is an
// input, an asserted line is an output driven low.
type Pins interface {
	// Has reports whether the line is wired on this platform.
	Has(l Line) bool

	// SetMode switches the pin direction.
	SetMode(l Line, m Mode)

	// Write sets the output latch of the pin.
	Write(l Line, level bool)

	// Read samples the level currently present on the line.
	Read(l Line) bool
}

// Clock is a free-running microsecond counter. It wraps at 2^32 and must keep
// counting while interrupts are disabled.
type Clock interface {
	Micros() uint32
}

// Bus is the mandatory hardware surface of a bus interface.
type Bus interface {
	Pins
	Clock
}

// Interrupter is implemented by platforms that can deliver edge interrupts.
type Interrupter interface {
	// AttachInterrupt registers fn to run when the line sees edge.
	// Returns an error if the line cannot interrupt.
	AttachInterrupt(l Line, edge Edge, fn func()) error

	// DisableInterrupts masks interrupt delivery and returns the previous
	// state for RestoreInterrupts. Edges seen while masked stay pending.
	DisableInterrupts() uint32

	// RestoreInterrupts restores a state returned by DisableInterrupts and
	// delivers pending edges if delivery is enabled again.
	RestoreInterrupts(state uint32)
}

// ParallelPort is the 8-bit side channel used by the DolphinDOS cable.
//
// Two one-shot handshake lines accompany the data lines: an outbound line
// pulsed by the device and an inbound line whose falling edge is latched by
// the platform until consumed.
type ParallelPort interface {
	// SetOutput switches the data lines to output (true) or input (false).
	SetOutput(out bool)

	// ReadByte samples the data lines.
	ReadByte() byte

	// WriteByte drives the data lines. Only effective in output mode.
	WriteByte(b byte)

	// PulseHandshake emits one pulse on the outbound handshake line.
	PulseHandshake()

	// HandshakeReceived reports and clears the latched inbound pulse.
	HandshakeReceived() bool
}
