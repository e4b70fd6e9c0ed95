package iec

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/ardnew/softiec/iec/hal"
	"github.com/ardnew/softiec/iec/hal/sim"
)

func TestDolphinDetection(t *testing.T) {
	tests := []struct {
		name     string
		parallel bool
		device   bool
		want     bool
	}{
		{"negotiated", true, true, true},
		{"device disabled", true, false, false},
		{"no cable", false, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, ProtocolDolphinDOS)
			f.dev[8].SetDolphinDOS(tt.device)
			if !tt.parallel {
				f.h.SetParallelPort(nil)
			}
			var detected bool
			err := f.run(t, func(host *sim.Host) error {
				host.SetDolphinDOS(true)
				if err := host.Listen(8, sim.CmdData|2); err != nil {
					return err
				}
				detected = host.DolphinDetected()
				return host.Unlisten()
			})
			if err != nil {
				t.Fatalf("host error = %v", err)
			}
			if detected != tt.want {
				t.Errorf("DolphinDetected() = %v, want %v", detected, tt.want)
			}
		})
	}
}

func TestDolphinRoundTrip(t *testing.T) {
	data := sequence(40)
	f := newFixture(t, ProtocolDolphinDOS)
	var back []byte
	err := f.run(t, func(host *sim.Host) error {
		host.SetDolphinDOS(true)
		if err := host.Listen(8, sim.CmdData|2); err != nil {
			return err
		}
		if err := host.Send(data); err != nil {
			return err
		}
		if err := host.Unlisten(); err != nil {
			return err
		}
		f.drv[8].out = append([]byte(nil), data...)
		if err := host.Talk(8, sim.CmdData|2); err != nil {
			return err
		}
		var err error
		if back, err = host.Receive(0); err != nil {
			return err
		}
		return host.Untalk()
	})
	if err != nil {
		t.Fatalf("host error = %v", err)
	}
	if !bytes.Equal(f.drv[8].written, data) {
		t.Errorf("device received % x", f.drv[8].written)
	}
	if !bytes.Equal(back, data) {
		t.Errorf("host received % x", back)
	}
}

// LOAD: the host reads two bytes normally, asks for a burst and receives
// the whole file with the first two bytes replayed.
func TestDolphinBurstLoad(t *testing.T) {
	data := sequence(600)
	f := newFixture(t, ProtocolDolphinDOS)
	f.drv[8].out = append([]byte(nil), data...)
	var head, burst []byte
	err := f.run(t, func(host *sim.Host) error {
		host.SetDolphinDOS(true)
		if err := host.Talk(8, sim.CmdData); err != nil {
			return err
		}
		var err error
		if head, err = host.Receive(2); err != nil {
			return err
		}
		if err := host.Untalk(); err != nil {
			return err
		}
		if err := host.Command(8, "XQ"); err != nil {
			return err
		}
		if err := host.Talk(8, sim.CmdData); err != nil {
			return err
		}
		if burst, err = host.BurstLoad(); err != nil {
			return err
		}
		return host.Untalk()
	})
	if err != nil {
		t.Fatalf("host error = %v", err)
	}
	if !bytes.Equal(head, data[:2]) {
		t.Errorf("head = % x, want % x", head, data[:2])
	}
	if !bytes.Equal(burst, data) {
		t.Errorf("burst returned %d bytes, want %d", len(burst), len(data))
	}
	if f.dev[8].flags&dolphinBurstTransmit != 0 {
		t.Error("burst transmit request left pending")
	}
}

// SAVE: the first two bytes are held back; a burst resends them, so the
// held copy must be dropped.
func TestDolphinBurstSave(t *testing.T) {
	data := sequence(500)
	f := newFixture(t, ProtocolDolphinDOS)
	var heldVisible int
	err := f.run(t, func(host *sim.Host) error {
		host.SetDolphinDOS(true)
		if err := host.Listen(8, sim.CmdData|1); err != nil {
			return err
		}
		if err := host.SendByte(data[0], false); err != nil {
			return err
		}
		if err := host.SendByte(data[1], false); err != nil {
			return err
		}
		if err := host.Unlisten(); err != nil {
			return err
		}
		host.Sleep(50 * time.Microsecond)
		heldVisible = len(f.drv[8].written)
		if err := host.Command(8, "XZ"); err != nil {
			return err
		}
		if err := host.Listen(8, sim.CmdData|1); err != nil {
			return err
		}
		if err := host.BurstSave(data); err != nil {
			return err
		}
		return host.Unlisten()
	})
	if err != nil {
		t.Fatalf("host error = %v", err)
	}
	if heldVisible != 0 {
		t.Errorf("driver saw %d held bytes before the burst", heldVisible)
	}
	drv := f.drv[8]
	if !bytes.Equal(drv.written, data) {
		t.Errorf("device received %d bytes, want %d", len(drv.written), len(data))
	}
	if n := len(drv.eois); n == 0 || !drv.eois[n-1] {
		t.Error("last burst byte not flagged EOI")
	}
}

// chunkDriver accepts burst blocks at most chunk bytes at a time.
type chunkDriver struct {
	testDriver
	chunk   int
	lastEOI bool
}

func (d *chunkDriver) WriteBlock(buf []byte, eoi bool) int {
	n := min(d.chunk, len(buf))
	d.written = append(d.written, buf[:n]...)
	d.lastEOI = eoi && n == len(buf)
	return n
}

func TestDolphinBurstPartialBlocks(t *testing.T) {
	data := sequence(700)
	tests := []struct {
		name  string
		chunk int
		want  []byte
	}{
		{"whole blocks", len(data), data},
		{"partial blocks", 7, data},
		{"refused", 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := sim.New()
			h := NewHandler(bus, ProtocolDolphinDOS)
			h.SetParallelPort(bus.Parallel())
			drv := &chunkDriver{chunk: tt.chunk}
			dev := NewDevice(8, drv)
			drv.dev = dev
			dev.SetDolphinDOS(true)
			if err := h.Attach(dev); err != nil {
				t.Fatalf("Attach() error = %v", err)
			}
			f := &fixture{
				bus: bus,
				h:   h,
				drv: map[uint8]*testDriver{8: &drv.testDriver},
				dev: map[uint8]*Device{8: dev},
			}
			err := f.run(t, func(host *sim.Host) error {
				host.SetDolphinDOS(true)
				if err := host.Command(8, "XZ"); err != nil {
					return err
				}
				if err := host.Listen(8, sim.CmdData|1); err != nil {
					return err
				}
				if err := host.BurstSave(data); err != nil {
					return err
				}
				return host.Unlisten()
			})
			if err != nil {
				t.Fatalf("host error = %v", err)
			}
			if !bytes.Equal(drv.written, tt.want) {
				t.Errorf("driver accepted %d bytes, want %d", len(drv.written), len(tt.want))
			}
			if tt.want != nil && !drv.lastEOI {
				t.Error("final block not flagged EOI")
			}
		})
	}
}

// An attention sequence must abort a burst waiting on the parallel
// handshake in either direction.
func TestDolphinBurstAttention(t *testing.T) {
	tests := []struct {
		name  string
		burst func(*sim.Host) error
	}{
		{
			name: "transmit",
			burst: func(host *sim.Host) error {
				if err := host.Command(8, "XQ"); err != nil {
					return err
				}
				if err := host.Talk(8, sim.CmdData); err != nil {
					return err
				}
				// Take the first byte and never answer the handshake.
				host.DrainParallel()
				host.Release(hal.LineDATA)
				if !host.WaitParallel(time.Millisecond) {
					return errors.New("no burst byte")
				}
				return host.Untalk()
			},
		},
		{
			name: "receive",
			burst: func(host *sim.Host) error {
				if err := host.Command(8, "XZ"); err != nil {
					return err
				}
				if err := host.Listen(8, sim.CmdData|1); err != nil {
					return err
				}
				host.DrainParallel()
				if !host.WaitLine(hal.LineDATA, true, time.Millisecond) {
					return errors.New("device not ready for burst")
				}
				host.WriteParallel(0x11)
				host.PulseParallel()
				if !host.WaitParallel(time.Millisecond) {
					return errors.New("burst byte not acknowledged")
				}
				// Leave CLK asserted: the burst never ends on its own.
				return host.Unlisten()
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, ProtocolDolphinDOS)
			f.drv[8].out = sequence(50)
			err := f.run(t, func(host *sim.Host) error {
				host.SetDolphinDOS(true)
				if err := tt.burst(host); err != nil {
					return err
				}
				if err := host.Listen(8, sim.CmdData|2); err != nil {
					return err
				}
				if err := host.Send([]byte{0x99}); err != nil {
					return err
				}
				return host.Unlisten()
			})
			if err != nil {
				t.Fatalf("host error = %v", err)
			}
			if got := f.drv[8].written; !bytes.Equal(got, []byte{0x99}) {
				t.Errorf("written after abort = % x, want 99", got)
			}
			if f.dev[8].flags&dolphinBurst != 0 || f.h.dolphin.burst {
				t.Error("burst state left set after attention")
			}
		})
	}
}

func TestDolphinHoldFlush(t *testing.T) {
	tests := []struct {
		name      string
		next      func(*sim.Host) error
		want      []byte
		wantEOIs  []bool
		wantOpens int
	}{
		{
			name: "save continues",
			next: func(host *sim.Host) error {
				if err := host.Listen(8, sim.CmdData|1); err != nil {
					return err
				}
				if err := host.Send([]byte{0xCC}); err != nil {
					return err
				}
				return host.Unlisten()
			},
			want:      []byte{0xAA, 0xBB, 0xCC},
			wantEOIs:  []bool{false, false, true},
			wantOpens: 2,
		},
		{
			name: "other device addressed",
			next: func(host *sim.Host) error {
				if err := host.Listen(9, sim.CmdData|2); err != nil {
					return err
				}
				return host.Unlisten()
			},
			want:      []byte{0xAA, 0xBB},
			wantEOIs:  []bool{false, false},
			wantOpens: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, ProtocolDolphinDOS, 8, 9)
			err := f.run(t, func(host *sim.Host) error {
				host.SetDolphinDOS(true)
				if err := host.Listen(8, sim.CmdData|1); err != nil {
					return err
				}
				if err := host.SendByte(0xAA, false); err != nil {
					return err
				}
				if err := host.SendByte(0xBB, false); err != nil {
					return err
				}
				if err := host.Unlisten(); err != nil {
					return err
				}
				return tt.next(host)
			})
			if err != nil {
				t.Fatalf("host error = %v", err)
			}
			drv := f.drv[8]
			if !bytes.Equal(drv.written, tt.want) {
				t.Errorf("written = % x, want % x", drv.written, tt.want)
			}
			if !equalBools(drv.eois, tt.wantEOIs) {
				t.Errorf("eoi = %v, want %v", drv.eois, tt.wantEOIs)
			}
			if got := countByte(drv.listens, 0x61); got != tt.wantOpens {
				t.Errorf("save-channel listens = %d, want %d", got, tt.wantOpens)
			}
		})
	}
}

func TestDolphinResetDropsHold(t *testing.T) {
	f := newFixture(t, ProtocolDolphinDOS)
	err := f.run(t, func(host *sim.Host) error {
		host.SetDolphinDOS(true)
		if err := host.Listen(8, sim.CmdData|1); err != nil {
			return err
		}
		if err := host.SendByte(0x01, false); err != nil {
			return err
		}
		if err := host.Unlisten(); err != nil {
			return err
		}
		host.Reset(100 * time.Microsecond)
		host.Sleep(50 * time.Microsecond)
		return nil
	})
	if err != nil {
		t.Fatalf("host error = %v", err)
	}
	if f.h.dolphin.heldN != 0 || f.h.dolphin.holder != nil {
		t.Error("reset kept the hold buffer")
	}
	if len(f.drv[8].written) != 0 {
		t.Errorf("held byte delivered after reset: % x", f.drv[8].written)
	}
}

func countByte(s []byte, b byte) int {
	n := 0
	for _, c := range s {
		if c == b {
			n++
		}
	}
	return n
}
