package gpio

import (
	"fmt"

	"github.com/ardnew/softiec/iec/hal"
	"github.com/ardnew/softiec/pkg"
)

// NoPin marks an unwired line.
const NoPin = -1

// Config selects the chip and line offsets used for the bus.
type Config struct {
	Chip     string // character device, e.g. "/dev/gpiochip0"
	Consumer string // label shown by gpioinfo; defaults to "softiec"

	ATN, CLK, DATA int
	RESET, CTRL    int // NoPin when absent

	Parallel *ParallelConfig
}

// ParallelConfig wires the DolphinDOS parallel cable.
type ParallelConfig struct {
	Data         [8]int // bit 0 first
	HandshakeOut int    // pulsed by the drive (PC2 side on the computer)
	HandshakeIn  int    // pulsed by the computer; falling edges are latched
}

// pins returns the offset of every bus line, NoPin when unwired.
func (c *Config) pins() [hal.NumLines]int {
	var p [hal.NumLines]int
	p[hal.LineATN] = c.ATN
	p[hal.LineCLK] = c.CLK
	p[hal.LineDATA] = c.DATA
	p[hal.LineRESET] = c.RESET
	p[hal.LineCTRL] = c.CTRL
	return p
}

// Validate reports a missing required line or an offset used twice.
func (c *Config) Validate() error {
	if c.Chip == "" {
		return fmt.Errorf("%w: no chip", pkg.ErrInvalidParameter)
	}
	used := make(map[int]string)
	claim := func(name string, offset int, required bool) error {
		if offset < 0 {
			if required {
				return fmt.Errorf("%w: %s not wired", pkg.ErrInvalidParameter, name)
			}
			return nil
		}
		if prev, ok := used[offset]; ok {
			return fmt.Errorf("%w: offset %d used by %s and %s",
				pkg.ErrInvalidParameter, offset, prev, name)
		}
		used[offset] = name
		return nil
	}
	for l, offset := range c.pins() {
		line := hal.Line(l)
		required := line == hal.LineATN || line == hal.LineCLK || line == hal.LineDATA
		if err := claim(line.String(), offset, required); err != nil {
			return err
		}
	}
	if p := c.Parallel; p != nil {
		for i, offset := range p.Data {
			if err := claim(fmt.Sprintf("PD%d", i), offset, true); err != nil {
				return err
			}
		}
		if err := claim("HSOUT", p.HandshakeOut, true); err != nil {
			return err
		}
		if err := claim("HSIN", p.HandshakeIn, true); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) consumer() string {
	if c.Consumer == "" {
		return "softiec"
	}
	return c.Consumer
}
