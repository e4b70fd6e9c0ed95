//go:build linux && (386 || amd64 || arm || arm64 || riscv64 || loong64)

package gpio

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/ardnew/softiec/iec/hal"
	"github.com/ardnew/softiec/pkg"
)

// pin is one requested bus line.
type pin struct {
	fd     int
	offset int
	mode   hal.Mode
	latch  bool
	edges  uint64 // edge flags kept while the line is an input
}

// Bus implements hal.Bus, hal.Interrupter and, with a parallel cable,
// hal.ParallelPort on GPIO lines.
type Bus struct {
	cfg  Config
	chip int

	// mutex serialises line reconfiguration between the task loop and
	// interrupt handlers.
	mutex sync.Mutex
	pins  [hal.NumLines]*pin

	irq      irqState
	poller   *poller
	parallel *parallel
}

// Open requests the configured lines from the chip. All bus lines start
// released.
func Open(cfg Config) (*Bus, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	chip, err := unix.Open(cfg.Chip, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Chip, err)
	}
	b := &Bus{cfg: cfg, chip: chip}
	if b.poller, err = newPoller(); err != nil {
		unix.Close(chip)
		return nil, err
	}
	for l, offset := range cfg.pins() {
		if offset == NoPin {
			continue
		}
		fd, err := requestLines(chip, cfg.consumer(), []int{offset}, inputConfig(0))
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("request %s (offset %d): %w", hal.Line(l), offset, err)
		}
		b.pins[l] = &pin{fd: fd, offset: offset, mode: hal.ModeInput, latch: true}
	}
	if cfg.Parallel != nil {
		if b.parallel, err = openParallel(chip, cfg.consumer(), cfg.Parallel, b.poller); err != nil {
			b.Close()
			return nil, err
		}
	}
	pkg.LogInfo(pkg.ComponentHAL, "gpio bus opened",
		"chip", cfg.Chip, "atn", cfg.ATN, "clk", cfg.CLK, "data", cfg.DATA,
		"reset", cfg.RESET, "ctrl", cfg.CTRL, "parallel", cfg.Parallel != nil)
	return b, nil
}

// Close releases every line and the chip.
func (b *Bus) Close() error {
	var errs []error
	if b.poller != nil {
		errs = append(errs, b.poller.close())
	}
	if b.parallel != nil {
		errs = append(errs, b.parallel.close())
	}
	for l, p := range b.pins {
		if p != nil {
			errs = append(errs, unix.Close(p.fd))
			b.pins[l] = nil
		}
	}
	errs = append(errs, unix.Close(b.chip))
	return errors.Join(errs...)
}

// Parallel returns the DolphinDOS cable, or nil when none is configured.
func (b *Bus) Parallel() hal.ParallelPort {
	if b.parallel == nil {
		return nil
	}
	return b.parallel
}

// Has implements hal.Pins.
func (b *Bus) Has(l hal.Line) bool { return l < hal.NumLines && b.pins[l] != nil }

// SetMode implements hal.Pins. Output mode drives the latched level.
func (b *Bus) SetMode(l hal.Line, m hal.Mode) {
	if !b.Has(l) {
		return
	}
	b.mutex.Lock()
	defer b.mutex.Unlock()
	p := b.pins[l]
	if p.mode == m {
		return
	}
	p.mode = m
	cfg := inputConfig(p.edges)
	if m == hal.ModeOutput {
		cfg = outputConfig(bit(p.latch), 1)
	}
	if err := setConfig(p.fd, cfg); err != nil {
		pkg.LogError(pkg.ComponentHAL, "line reconfigure failed", "line", l, "error", err)
	}
}

// Write implements hal.Pins.
func (b *Bus) Write(l hal.Line, level bool) {
	if !b.Has(l) {
		return
	}
	b.mutex.Lock()
	defer b.mutex.Unlock()
	p := b.pins[l]
	if p.latch == level {
		return
	}
	p.latch = level
	if p.mode != hal.ModeOutput {
		return
	}
	if err := setValues(p.fd, bit(level), 1); err != nil {
		pkg.LogError(pkg.ComponentHAL, "line write failed", "line", l, "error", err)
	}
}

// Read implements hal.Pins.
func (b *Bus) Read(l hal.Line) bool {
	if !b.Has(l) {
		return true
	}
	v, err := getValues(b.pins[l].fd, 1)
	if err != nil {
		pkg.LogError(pkg.ComponentHAL, "line read failed", "line", l, "error", err)
		return true
	}
	return v&1 != 0
}

// Micros implements hal.Clock from CLOCK_MONOTONIC.
func (b *Bus) Micros() uint32 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return 0
	}
	return uint32(ts.Nano() / 1000)
}

func bit(level bool) uint64 {
	if level {
		return 1
	}
	return 0
}

var (
	_ hal.Bus         = (*Bus)(nil)
	_ hal.Interrupter = (*Bus)(nil)
)
