package iec

import (
	"fmt"
	"strings"
)

// Registry limits.
const (
	// MaxDevices is the number of devices one handler can serve.
	MaxDevices = 8

	// MaxAddress is the highest device number. Address 31 is reserved for
	// the UNLISTEN/UNTALK broadcasts.
	MaxAddress = 30

	// DefaultBufferSize is the size of the built-in scratch buffer and the
	// minimum size accepted by SetBuffer.
	DefaultBufferSize = 256
)

// Command bytes received under ATN.
const (
	cmdListen    = 0x20
	cmdTalk      = 0x40
	cmdMask      = 0xE0
	addrMask     = 0x1F
	addrUnlisten = 0x3F
	addrUntalk   = 0x5F
)

// Secondary addresses with protocol side effects.
const (
	secondaryLoad  = 0x60 // DATA channel 0, the LOAD channel
	secondarySave  = 0x61 // DATA channel 1, the SAVE channel
	secondaryClose = 0xE0
	secondaryOpen  = 0xF0
)

// Timings in microseconds.
const (
	forever = 0

	timeoutDefault = 1000 // bounded handshake waits
	atnSettle      = 100  // delay after ATN before the first address bit
	eoiTimeout     = 200  // talker delay that signals EOI
	eoiHold        = 80   // listener EOI acknowledge pulse
	bitSetup       = 60   // DATA setup before CLK release
	bitValid       = 60   // CLK released with data valid
	talkPacing     = 100  // gap between standard talker bytes

	jiffyDetect = 200 // last address bit delay that announces JiffyDOS
	jiffyAck    = 100 // JiffyDOS acknowledge pulse on DATA

	dolphinEOITimeout = 100
	dolphinEOIHold    = 60

	epyxHeartbeat = 1000 // CLK pulse period in sector mode
	epyxPulse     = 20   // CLK pulse width in sector mode
)

// Epyx FastLoad transfer limits.
const (
	epyxHeaderSize = 256
	epyxBlockSize  = 254
	epyxSectorSize = 256
)

// Protocol selects the accelerated protocols a Handler negotiates.
type Protocol uint8

// Accelerated protocols.
const (
	ProtocolJiffyDOS Protocol = 1 << iota
	ProtocolDolphinDOS
	ProtocolEpyx

	ProtocolNone Protocol = 0
	ProtocolAll           = ProtocolJiffyDOS | ProtocolDolphinDOS | ProtocolEpyx
)

// String returns a "|"-separated list of protocol names.
func (p Protocol) String() string {
	if p == ProtocolNone {
		return "none"
	}
	var parts []string
	if p&ProtocolJiffyDOS != 0 {
		parts = append(parts, "JiffyDOS")
	}
	if p&ProtocolDolphinDOS != 0 {
		parts = append(parts, "DolphinDOS")
	}
	if p&ProtocolEpyx != 0 {
		parts = append(parts, "Epyx")
	}
	if rest := p &^ ProtocolAll; rest != 0 {
		parts = append(parts, fmt.Sprintf("%#x", uint8(rest)))
	}
	return strings.Join(parts, "|")
}

// ParseProtocols parses a comma-separated protocol list such as
// "jiffy,dolphin". The words "all" and "none" are accepted.
func ParseProtocols(s string) (Protocol, error) {
	var p Protocol
	for _, f := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '|' || r == ' ' }) {
		switch strings.ToLower(f) {
		case "jiffy", "jiffydos":
			p |= ProtocolJiffyDOS
		case "dolphin", "dolphindos":
			p |= ProtocolDolphinDOS
		case "epyx", "fastload":
			p |= ProtocolEpyx
		case "all":
			p |= ProtocolAll
		case "none":
		default:
			return 0, fmt.Errorf("unknown protocol %q", f)
		}
	}
	return p, nil
}

// Flags is the handler's transaction state bitmask.
type Flags uint32

// Handler flags.
const (
	FlagAttention Flags = 1 << iota // inside an attention sequence
	FlagListening                   // current device is listener
	FlagTalking                     // current device is talker
	FlagDone                        // transfer steps suspended until next ATN
	FlagReset                       // RESET is held low
)

// String returns a "|"-separated list of set flags.
func (f Flags) String() string {
	if f == 0 {
		return "0"
	}
	names := [...]string{"ATN", "LISTEN", "TALK", "DONE", "RESET"}
	var parts []string
	for i, n := range names {
		if f&(1<<i) != 0 {
			parts = append(parts, n)
		}
	}
	return strings.Join(parts, "|")
}

// State is the coarse handler state derived from Flags.
type State uint8

// Handler states.
const (
	StateIdle State = iota
	StateAttention
	StateListening
	StateTalking
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateAttention:
		return "Attention"
	case StateListening:
		return "Listening"
	case StateTalking:
		return "Talking"
	default:
		return fmt.Sprintf("State(%d)", s)
	}
}

// atnPhase tracks progress inside an attention sequence.
type atnPhase uint8

const (
	phaseIdle    atnPhase = iota
	phaseAddress          // waiting to receive the address bytes
	phaseRelease          // outcome applied, waiting for ATN release
)
