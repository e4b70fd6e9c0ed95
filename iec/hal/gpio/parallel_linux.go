//go:build linux && (386 || amd64 || arm || arm64 || riscv64 || loong64)

package gpio

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/ardnew/softiec/iec/hal"
	"github.com/ardnew/softiec/pkg"
)

// parallel drives the eight data lines as one request so a byte is read or
// written with a single ioctl.
type parallel struct {
	data, out, in int

	mutex    sync.Mutex
	output   bool
	last     byte
	received atomic.Bool
}

func openParallel(chip int, consumer string, cfg *ParallelConfig, p *poller) (*parallel, error) {
	pp := &parallel{data: -1, out: -1, in: -1}
	var err error
	if pp.data, err = requestLines(chip, consumer, cfg.Data[:], inputConfig(0)); err != nil {
		return nil, fmt.Errorf("request parallel data: %w", err)
	}
	if pp.out, err = requestLines(chip, consumer, []int{cfg.HandshakeOut}, outputConfig(1, 1)); err != nil {
		pp.close()
		return nil, fmt.Errorf("request handshake out: %w", err)
	}
	if pp.in, err = requestLines(chip, consumer, []int{cfg.HandshakeIn}, inputConfig(flagEdgeFalling)); err != nil {
		pp.close()
		return nil, fmt.Errorf("request handshake in: %w", err)
	}
	if err := p.add(pp.in, func(fd int) {
		if drainEvents(fd) > 0 {
			pp.received.Store(true)
		}
	}); err != nil {
		pp.close()
		return nil, err
	}
	return pp, nil
}

func (p *parallel) SetOutput(out bool) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.output == out {
		return
	}
	p.output = out
	cfg := inputConfig(0)
	if out {
		cfg = outputConfig(uint64(p.last), 0xFF)
	}
	if err := setConfig(p.data, cfg); err != nil {
		pkg.LogError(pkg.ComponentHAL, "parallel reconfigure failed", "output", out, "error", err)
	}
}

func (p *parallel) ReadByte() byte {
	v, err := getValues(p.data, 0xFF)
	if err != nil {
		pkg.LogError(pkg.ComponentHAL, "parallel read failed", "error", err)
		return 0xFF
	}
	return byte(v)
}

func (p *parallel) WriteByte(b byte) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.last = b
	if !p.output {
		return
	}
	if err := setValues(p.data, uint64(b), 0xFF); err != nil {
		pkg.LogError(pkg.ComponentHAL, "parallel write failed", "error", err)
	}
}

// PulseHandshake drives the outbound line low then high. Two ioctls take
// well over the microsecond the CIA needs to latch the edge.
func (p *parallel) PulseHandshake() {
	if err := setValues(p.out, 0, 1); err != nil {
		pkg.LogError(pkg.ComponentHAL, "handshake pulse failed", "error", err)
		return
	}
	setValues(p.out, 1, 1)
}

func (p *parallel) HandshakeReceived() bool { return p.received.Swap(false) }

func (p *parallel) close() error {
	var errs []error
	for _, fd := range []int{p.data, p.out, p.in} {
		if fd >= 0 {
			errs = append(errs, unix.Close(fd))
		}
	}
	return errors.Join(errs...)
}

var _ hal.ParallelPort = (*parallel)(nil)
