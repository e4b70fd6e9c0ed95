//go:build linux && (386 || amd64 || arm || arm64 || riscv64 || loong64)

package gpio

import (
	"context"
	"errors"
	"sync"
	"unsafe"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/ardnew/softiec/iec/hal"
	"github.com/ardnew/softiec/pkg"
)

type irqSlot struct {
	fn      func()
	pending bool
}

// irqState emulates a CPU interrupt mask over handlers called from the
// poller goroutine. dispatch is held while a handler runs, so masking waits
// for an in-flight handler to finish.
type irqState struct {
	mutex    sync.Mutex
	dispatch sync.Mutex
	masked   bool
	slots    [hal.NumLines]irqSlot
}

// AttachInterrupt implements hal.Interrupter. Events are delivered only
// while Run is active.
func (b *Bus) AttachInterrupt(l hal.Line, edge hal.Edge, fn func()) error {
	if !b.Has(l) {
		return pkg.ErrNotSupported
	}
	var flags uint64
	switch edge {
	case hal.EdgeFalling:
		flags = flagEdgeFalling
	case hal.EdgeRising:
		flags = flagEdgeRising
	default:
		flags = flagEdgeFalling | flagEdgeRising
	}

	b.mutex.Lock()
	p := b.pins[l]
	p.edges = flags
	var err error
	if p.mode == hal.ModeInput {
		err = setConfig(p.fd, inputConfig(flags))
	}
	b.mutex.Unlock()
	if err != nil {
		return err
	}

	b.irq.mutex.Lock()
	b.irq.slots[l] = irqSlot{fn: fn}
	b.irq.mutex.Unlock()
	return b.poller.add(p.fd, func(fd int) {
		if drainEvents(fd) > 0 {
			b.interrupt(l)
		}
	})
}

// DisableInterrupts implements hal.Interrupter.
func (b *Bus) DisableInterrupts() uint32 {
	b.irq.mutex.Lock()
	prev := b.irq.masked
	b.irq.masked = true
	b.irq.mutex.Unlock()
	// Wait out a handler that started before the mask was set.
	b.irq.dispatch.Lock()
	b.irq.dispatch.Unlock()
	if prev {
		return 1
	}
	return 0
}

// RestoreInterrupts implements hal.Interrupter.
func (b *Bus) RestoreInterrupts(state uint32) {
	b.irq.mutex.Lock()
	b.irq.masked = state != 0
	var run []func()
	if !b.irq.masked {
		for l := range b.irq.slots {
			s := &b.irq.slots[l]
			if s.pending && s.fn != nil {
				run = append(run, s.fn)
			}
			s.pending = false
		}
	}
	b.irq.mutex.Unlock()
	if len(run) == 0 {
		return
	}
	b.irq.dispatch.Lock()
	defer b.irq.dispatch.Unlock()
	for _, fn := range run {
		fn()
	}
}

// interrupt runs the handler for l, or latches it while masked.
func (b *Bus) interrupt(l hal.Line) {
	b.irq.dispatch.Lock()
	defer b.irq.dispatch.Unlock()
	b.irq.mutex.Lock()
	s := &b.irq.slots[l]
	fn := s.fn
	if b.irq.masked {
		s.pending = true
		fn = nil
	}
	b.irq.mutex.Unlock()
	if fn != nil {
		fn()
	}
}

// Run delivers edge events until ctx is cancelled.
func (b *Bus) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(b.poller.run)
	g.Go(func() error {
		<-ctx.Done()
		return b.poller.stop()
	})
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// drainEvents reads every queued edge event from a line request.
func drainEvents(fd int) int {
	var buf [16 * lineEventSize]byte
	total := 0
	for {
		n, err := unix.Read(fd, buf[:])
		if n > 0 {
			total += n / lineEventSize
		}
		if err != nil || n < len(buf) {
			return total
		}
	}
}

// poller multiplexes line event descriptors over epoll. An eventfd wakes
// the wait loop for shutdown.
type poller struct {
	epfd   int
	wakefd int

	mutex     sync.Mutex
	callbacks map[int]func(fd int)
	stopped   bool
}

func newPoller() (*poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	wakefd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, err
	}
	p := &poller{epfd: epfd, wakefd: wakefd, callbacks: make(map[int]func(int))}
	if err := p.ctl(unix.EPOLL_CTL_ADD, wakefd); err != nil {
		p.close()
		return nil, err
	}
	return p, nil
}

func (p *poller) ctl(op, fd int) error {
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, op, fd, &ev)
}

// add registers fd, replacing any previous callback for it.
func (p *poller) add(fd int, fn func(fd int)) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if _, ok := p.callbacks[fd]; ok {
		p.callbacks[fd] = fn
		return nil
	}
	if err := p.ctl(unix.EPOLL_CTL_ADD, fd); err != nil {
		return err
	}
	p.callbacks[fd] = fn
	return nil
}

func (p *poller) wake() error {
	var one [8]byte
	*(*uint64)(unsafe.Pointer(&one[0])) = 1
	_, err := unix.Write(p.wakefd, one[:])
	return err
}

func (p *poller) stop() error {
	p.mutex.Lock()
	p.stopped = true
	p.mutex.Unlock()
	return p.wake()
}

// run waits for events until stop.
func (p *poller) run() error {
	var events [8]unix.EpollEvent
	for {
		n, err := unix.EpollWait(p.epfd, events[:], -1)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return err
		}
		for _, ev := range events[:n] {
			fd := int(ev.Fd)
			if fd == p.wakefd {
				var buf [8]byte
				unix.Read(p.wakefd, buf[:])
				p.mutex.Lock()
				stopped := p.stopped
				p.mutex.Unlock()
				if stopped {
					return nil
				}
				continue
			}
			p.mutex.Lock()
			fn := p.callbacks[fd]
			p.mutex.Unlock()
			if fn != nil {
				fn(fd)
			}
		}
	}
}

func (p *poller) close() error {
	return errors.Join(unix.Close(p.wakefd), unix.Close(p.epfd))
}
