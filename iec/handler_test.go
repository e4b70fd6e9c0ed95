package iec

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/ardnew/softiec/iec/hal"
	"github.com/ardnew/softiec/iec/hal/sim"
	"github.com/ardnew/softiec/pkg"
)

const us = time.Microsecond

// testDriver records every callback and serves out as its data.
type testDriver struct {
	BaseDriver

	dev *Device

	begins, tasks, resets int
	listens, talks        []byte
	unlistens, untalks    int

	written []byte
	eois    []bool
	out     []byte
	refuse  bool

	// Epyx hook: request a header upload on the next UNLISTEN
	epyxOnUnlisten bool

	// Command channel input; "XQ" and "XZ" request DolphinDOS bursts
	command []byte

	sectors map[[2]byte][]byte
}

func (d *testDriver) Begin() { d.begins++ }
func (d *testDriver) Task()  { d.tasks++ }
func (d *testDriver) Reset() { d.resets++ }

func (d *testDriver) Listen(sec byte) {
	d.listens = append(d.listens, sec)
	d.command = d.command[:0]
}

func (d *testDriver) Unlisten() {
	d.unlistens++
	if d.epyxOnUnlisten && d.dev != nil {
		d.epyxOnUnlisten = false
		d.dev.RequestEpyxLoad()
	}
}

func (d *testDriver) Talk(sec byte) { d.talks = append(d.talks, sec) }
func (d *testDriver) Untalk()       { d.untalks++ }

func (d *testDriver) CanWrite() int {
	if d.refuse {
		return NoData
	}
	return 1
}

// Write records data bytes. Command channel bytes are kept apart.
func (d *testDriver) Write(b byte, eoi bool) {
	if n := len(d.listens); n > 0 && d.listens[n-1] == 0x6F {
		d.command = append(d.command, b)
		if eoi && d.dev != nil {
			switch string(d.command) {
			case "XQ":
				d.dev.RequestDolphinBurstTransmit()
			case "XZ":
				d.dev.RequestDolphinBurstReceive()
			}
		}
		return
	}
	d.written = append(d.written, b)
	d.eois = append(d.eois, eoi)
}

func (d *testDriver) CanRead() int { return len(d.out) }
func (d *testDriver) Peek() byte   { return d.out[0] }

func (d *testDriver) Read() byte {
	b := d.out[0]
	d.out = d.out[1:]
	return b
}

func (d *testDriver) ReadSector(track, sector byte, buf []byte) bool {
	s, ok := d.sectors[[2]byte{track, sector}]
	if !ok {
		return false
	}
	copy(buf, s)
	return true
}

func (d *testDriver) WriteSector(track, sector byte, buf []byte) bool {
	if d.sectors == nil {
		d.sectors = make(map[[2]byte][]byte)
	}
	d.sectors[[2]byte{track, sector}] = append([]byte(nil), buf...)
	return true
}

// fixture is a handler wired to a simulated bus.
type fixture struct {
	bus *sim.Bus
	h   *Handler
	drv map[uint8]*testDriver
	dev map[uint8]*Device
}

func newFixture(t *testing.T, protocols Protocol, numbers ...uint8) *fixture {
	t.Helper()
	if len(numbers) == 0 {
		numbers = []uint8{8}
	}
	f := &fixture{
		bus: sim.New(),
		drv: make(map[uint8]*testDriver),
		dev: make(map[uint8]*Device),
	}
	f.h = NewHandler(f.bus, protocols)
	f.h.SetParallelPort(f.bus.Parallel())
	for _, n := range numbers {
		drv := &testDriver{}
		dev := NewDevice(n, drv)
		drv.dev = dev
		dev.SetJiffyDOS(protocols&ProtocolJiffyDOS != 0)
		dev.SetDolphinDOS(protocols&ProtocolDolphinDOS != 0)
		dev.SetEpyx(protocols&ProtocolEpyx != 0)
		if err := f.h.Attach(dev); err != nil {
			t.Fatalf("Attach(%d) error = %v", n, err)
		}
		f.drv[n], f.dev[n] = drv, dev
	}
	return f
}

func (f *fixture) begin(t *testing.T) {
	t.Helper()
	if err := f.h.Begin(); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
}

// run starts the handler and serves fn as the bus master.
func (f *fixture) run(t *testing.T, fn func(*sim.Host) error) error {
	t.Helper()
	if !f.h.begun {
		f.begin(t)
	}
	f.bus.Run(fn)
	return f.bus.Serve(f.h.Task, 10*us)
}

func TestAttach(t *testing.T) {
	h := NewHandler(sim.New(), ProtocolNone)
	taken := NewDevice(8, &testDriver{})
	if err := h.Attach(taken); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	other := NewHandler(sim.New(), ProtocolNone)
	foreign := NewDevice(12, &testDriver{})
	if err := other.Attach(foreign); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}

	tests := []struct {
		name string
		dev  *Device
		want error
	}{
		{"nil device", nil, pkg.ErrInvalidParameter},
		{"nil driver", NewDevice(9, nil), pkg.ErrInvalidParameter},
		{"broadcast address", NewDevice(31, &testDriver{}), pkg.ErrInvalidAddress},
		{"address in use", NewDevice(8, &testDriver{}), pkg.ErrAddressInUse},
		{"attached elsewhere", foreign, pkg.ErrAlreadyAttached},
		{"valid", NewDevice(30, &testDriver{}), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := h.Attach(tt.dev); !errors.Is(err, tt.want) {
				t.Errorf("Attach() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestAttachRegistryFull(t *testing.T) {
	h := NewHandler(sim.New(), ProtocolNone)
	for i := range MaxDevices {
		if err := h.Attach(NewDevice(uint8(i), &testDriver{})); err != nil {
			t.Fatalf("Attach(%d) error = %v", i, err)
		}
	}
	if err := h.Attach(NewDevice(20, &testDriver{})); !errors.Is(err, pkg.ErrRegistryFull) {
		t.Errorf("Attach() error = %v, want ErrRegistryFull", err)
	}
}

func TestAttachAfterBegin(t *testing.T) {
	f := newFixture(t, ProtocolNone)
	f.begin(t)
	if f.drv[8].begins != 1 {
		t.Errorf("begins = %d, want 1", f.drv[8].begins)
	}
	drv := &testDriver{}
	if err := f.h.Attach(NewDevice(9, drv)); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	if drv.begins != 1 {
		t.Errorf("late device begins = %d, want 1", drv.begins)
	}
}

func TestDetach(t *testing.T) {
	f := newFixture(t, ProtocolNone, 8, 9, 10)
	d := f.dev[9]
	if err := f.h.Detach(d); err != nil {
		t.Fatalf("Detach() error = %v", err)
	}
	if d.Handler() != nil {
		t.Error("Detach() kept handler reference")
	}
	got := f.h.Devices()
	if len(got) != 2 || got[0].Number() != 8 || got[1].Number() != 10 {
		t.Errorf("Devices() = %v, want [8 10]", got)
	}
	if err := f.h.Detach(d); !errors.Is(err, pkg.ErrNotAttached) {
		t.Errorf("second Detach() error = %v, want ErrNotAttached", err)
	}
}

func TestFindDevice(t *testing.T) {
	f := newFixture(t, ProtocolNone, 8, 9)
	f.dev[9].SetActive(false)

	tests := []struct {
		number   uint8
		inactive bool
		want     bool
	}{
		{8, false, true},
		{9, false, false},
		{9, true, true},
		{10, true, false},
	}
	for _, tt := range tests {
		if got := f.h.FindDevice(tt.number, tt.inactive) != nil; got != tt.want {
			t.Errorf("FindDevice(%d, %v) found = %v, want %v", tt.number, tt.inactive, got, tt.want)
		}
	}
}

func TestBegin(t *testing.T) {
	t.Run("missing line", func(t *testing.T) {
		bus := sim.New()
		bus.SetWired(hal.LineDATA, false)
		if err := NewHandler(bus, ProtocolNone).Begin(); !errors.Is(err, pkg.ErrNotSupported) {
			t.Errorf("Begin() error = %v, want ErrNotSupported", err)
		}
	})
	t.Run("twice", func(t *testing.T) {
		h := NewHandler(sim.New(), ProtocolNone)
		if err := h.Begin(); err != nil {
			t.Fatalf("Begin() error = %v", err)
		}
		if err := h.Begin(); !errors.Is(err, pkg.ErrAlreadyRunning) {
			t.Errorf("Begin() error = %v, want ErrAlreadyRunning", err)
		}
	})
	t.Run("lines released", func(t *testing.T) {
		bus := sim.New()
		if err := NewHandler(bus, ProtocolNone).Begin(); err != nil {
			t.Fatalf("Begin() error = %v", err)
		}
		for _, l := range []hal.Line{hal.LineATN, hal.LineCLK, hal.LineDATA} {
			if !bus.Level(l) {
				t.Errorf("%s low after Begin", l)
			}
		}
	})
}

func TestSetBuffer(t *testing.T) {
	h := NewHandler(sim.New(), ProtocolNone)
	if err := h.SetBuffer(make([]byte, DefaultBufferSize-1)); !errors.Is(err, pkg.ErrBufferTooSmall) {
		t.Errorf("SetBuffer(small) error = %v, want ErrBufferTooSmall", err)
	}
	buf := make([]byte, 1024)
	if err := h.SetBuffer(buf); err != nil {
		t.Fatalf("SetBuffer() error = %v", err)
	}
	if &h.buf[0] != &buf[0] {
		t.Error("SetBuffer() did not install buffer")
	}
}

func TestTaskBeforeBegin(t *testing.T) {
	f := newFixture(t, ProtocolNone)
	f.h.Task()
	if f.drv[8].tasks != 0 {
		t.Errorf("driver tasks = %d before Begin, want 0", f.drv[8].tasks)
	}
	f.begin(t)
	f.h.Task()
	if f.drv[8].tasks != 1 {
		t.Errorf("driver tasks = %d, want 1", f.drv[8].tasks)
	}
}

func TestPresenceShortcut(t *testing.T) {
	tests := []struct {
		name  string
		wired bool
		want  bool
	}{
		{"armed", true, true},
		{"unwired", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, ProtocolNone)
			f.bus.SetWired(hal.LineCTRL, tt.wired)
			f.h.SetInterrupter(nil)
			f.begin(t)
			var seen bool
			f.bus.Run(func(host *sim.Host) error {
				host.Assert(hal.LineATN)
				seen = host.WaitLine(hal.LineDATA, false, 50*us)
				host.Release(hal.LineATN)
				return nil
			})
			// The handler task never runs: only the gate can answer.
			if err := f.bus.Serve(func() {}, 10*us); err != nil {
				t.Fatalf("Serve() error = %v", err)
			}
			if seen != tt.want {
				t.Errorf("DATA pulled = %v, want %v", seen, tt.want)
			}
		})
	}
}

// Scenario: LISTEN without secondary, three bytes, EOI on the last.
func TestListenThreeBytes(t *testing.T) {
	modes := []struct {
		name     string
		polling  bool
		inverted bool
	}{
		{"interrupt", false, false},
		{"polling", true, false},
		{"inverted", false, true},
	}
	for _, m := range modes {
		t.Run(m.name, func(t *testing.T) {
			f := newFixture(t, ProtocolNone)
			if m.polling {
				f.h.SetInterrupter(nil)
			}
			f.bus.SetInverted(m.inverted)
			f.h.SetInverted(m.inverted)
			err := f.run(t, func(host *sim.Host) error {
				if err := host.Attention(sim.CmdListen | 8); err != nil {
					return err
				}
				host.ReleaseAttention()
				if err := host.Send([]byte{0x11, 0x22, 0x33}); err != nil {
					return err
				}
				return host.Unlisten()
			})
			if err != nil {
				t.Fatalf("host error = %v", err)
			}
			drv := f.drv[8]
			if !bytes.Equal(drv.written, []byte{0x11, 0x22, 0x33}) {
				t.Errorf("written = % x, want 11 22 33", drv.written)
			}
			if want := []bool{false, false, true}; !equalBools(drv.eois, want) {
				t.Errorf("eoi = %v, want %v", drv.eois, want)
			}
			if len(drv.listens) != 1 || drv.listens[0] != 0 {
				t.Errorf("listens = % x, want [00]", drv.listens)
			}
			if drv.unlistens != 1 {
				t.Errorf("unlistens = %d, want 1", drv.unlistens)
			}
			if s := f.h.State(); s != StateIdle {
				t.Errorf("State() = %v, want Idle", s)
			}
		})
	}
}

// Scenario: TALK with a single byte available.
func TestTalkSingleByte(t *testing.T) {
	f := newFixture(t, ProtocolNone)
	f.drv[8].out = []byte{0x41}
	f.bus.SetTrace(true)
	var got []byte
	err := f.run(t, func(host *sim.Host) error {
		if err := host.Talk(8, sim.CmdData); err != nil {
			return err
		}
		b, eoi, err := host.ReceiveByte()
		if err != nil {
			return err
		}
		if !eoi {
			return errors.New("byte not flagged EOI")
		}
		got = append(got, b)
		return host.Untalk()
	})
	if err != nil {
		t.Fatalf("host error = %v", err)
	}
	if !bytes.Equal(got, []byte{0x41}) {
		t.Errorf("received = % x, want 41", got)
	}
	if f.drv[8].untalks != 1 {
		t.Errorf("untalks = %d, want 1", f.drv[8].untalks)
	}
	if len(f.bus.Trace()) == 0 {
		t.Error("no wire activity traced")
	}
}

func TestStandardRoundTrip(t *testing.T) {
	all := make([]byte, 256)
	for i := range all {
		all[i] = byte(i)
	}
	f := newFixture(t, ProtocolNone)
	var back []byte
	err := f.run(t, func(host *sim.Host) error {
		if err := host.Listen(8, sim.CmdData|2); err != nil {
			return err
		}
		if err := host.Send(all); err != nil {
			return err
		}
		if err := host.Unlisten(); err != nil {
			return err
		}
		f.drv[8].out = append([]byte(nil), f.drv[8].written...)
		if err := host.Talk(8, sim.CmdData|2); err != nil {
			return err
		}
		var err error
		back, err = host.Receive(0)
		if err != nil {
			return err
		}
		return host.Untalk()
	})
	if err != nil {
		t.Fatalf("host error = %v", err)
	}
	if !bytes.Equal(f.drv[8].written, all) {
		t.Errorf("device received %d bytes, want all 256 values", len(f.drv[8].written))
	}
	for i, eoi := range f.drv[8].eois {
		if eoi != (i == 255) {
			t.Errorf("eoi[%d] = %v", i, eoi)
		}
	}
	if !bytes.Equal(back, all) {
		t.Errorf("host received %d bytes, want all 256 values", len(back))
	}
}

func TestTalkNoData(t *testing.T) {
	f := newFixture(t, ProtocolNone)
	var recvErr error
	err := f.run(t, func(host *sim.Host) error {
		if err := host.Talk(8, sim.CmdData); err != nil {
			return err
		}
		_, recvErr = host.Receive(0)
		return host.Untalk()
	})
	if err != nil {
		t.Fatalf("host error = %v", err)
	}
	if !errors.Is(recvErr, pkg.ErrNoData) {
		t.Errorf("Receive() error = %v, want ErrNoData", recvErr)
	}
}

func TestListenRefused(t *testing.T) {
	f := newFixture(t, ProtocolNone)
	f.drv[8].refuse = true
	var sendErr error
	err := f.run(t, func(host *sim.Host) error {
		if err := host.Listen(8, sim.CmdData); err != nil {
			return err
		}
		sendErr = host.SendByte(0x55, false)
		return host.Unlisten()
	})
	if err != nil {
		t.Fatalf("host error = %v", err)
	}
	if !errors.Is(sendErr, pkg.ErrNotAcknowledged) {
		t.Errorf("SendByte() error = %v, want ErrNotAcknowledged", sendErr)
	}
	if len(f.drv[8].written) != 0 {
		t.Errorf("refusing driver received % x", f.drv[8].written)
	}
}

func TestNotAddressed(t *testing.T) {
	f := newFixture(t, ProtocolNone)
	f.dev[8].SetActive(false)
	var listenErr error
	err := f.run(t, func(host *sim.Host) error {
		listenErr = host.Listen(8, sim.CmdData)
		host.Release(hal.LineCLK)
		host.Sleep(100 * us)
		if !host.Line(hal.LineDATA) || !host.Line(hal.LineCLK) {
			return errors.New("lines held after foreign address")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("host error = %v", err)
	}
	if listenErr == nil {
		t.Error("Listen() to inactive device succeeded")
	}
	if len(f.drv[8].listens) != 0 {
		t.Errorf("inactive device saw listens % x", f.drv[8].listens)
	}
	if f.h.Current() != nil {
		t.Error("Current() set for foreign address")
	}
}

// Scenario: RESET during an active listen.
func TestResetDuringListen(t *testing.T) {
	f := newFixture(t, ProtocolNone, 8, 9)
	var flagsDuring Flags
	err := f.run(t, func(host *sim.Host) error {
		if err := host.Listen(8, sim.CmdData); err != nil {
			return err
		}
		if err := host.SendByte(0x01, false); err != nil {
			return err
		}
		// CLK stays asserted so the listener is parked between bytes.
		host.Assert(hal.LineRESET)
		host.Sleep(200 * us)
		flagsDuring = f.h.Flags()
		if !host.Line(hal.LineDATA) {
			return errors.New("DATA held during reset")
		}
		host.Release(hal.LineCLK)
		host.Release(hal.LineRESET)
		host.Sleep(100 * us)
		return nil
	})
	if err != nil {
		t.Fatalf("host error = %v", err)
	}
	if flagsDuring&(FlagListening|FlagTalking) != 0 {
		t.Errorf("flags during reset = %v", flagsDuring)
	}
	if flagsDuring&FlagReset == 0 {
		t.Errorf("flags during reset = %v, want RESET", flagsDuring)
	}
	for n, drv := range f.drv {
		if drv.resets != 1 {
			t.Errorf("device %d resets = %d, want 1", n, drv.resets)
		}
	}
	if f.h.Flags()&FlagReset != 0 {
		t.Error("RESET flag kept after release")
	}
}

func TestUnlistenBroadcast(t *testing.T) {
	f := newFixture(t, ProtocolNone, 8, 9)
	err := f.run(t, func(host *sim.Host) error {
		if err := host.Unlisten(); err != nil {
			return err
		}
		return host.Untalk()
	})
	if err != nil {
		t.Fatalf("host error = %v", err)
	}
	for n, drv := range f.drv {
		if drv.unlistens != 1 || drv.untalks != 1 {
			t.Errorf("device %d unlistens/untalks = %d/%d, want 1/1", n, drv.unlistens, drv.untalks)
		}
	}
}

// An attention sequence must abort a transfer blocked in an unbounded wait
// and leave the handler ready for the next command.
func TestAttentionAbortsTransfer(t *testing.T) {
	tests := []struct {
		name  string
		proto Protocol
		setup func(*sim.Host)
	}{
		{"standard", ProtocolNone, func(*sim.Host) {}},
		{"jiffy", ProtocolJiffyDOS, func(h *sim.Host) { h.SetJiffyDOS(true) }},
		{"dolphin", ProtocolDolphinDOS, func(h *sim.Host) { h.SetDolphinDOS(true) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.proto)
			f.drv[8].out = []byte("ABC")
			err := f.run(t, func(host *sim.Host) error {
				tt.setup(host)
				if err := host.Talk(8, sim.CmdData); err != nil {
					return err
				}
				// Never answer: the talker waits for DATA forever.
				host.Sleep(2 * time.Millisecond)
				if err := host.Untalk(); err != nil {
					return err
				}
				if err := host.Listen(8, sim.CmdData|1); err != nil {
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
		})
	}
}

func equalBools(a, b []bool) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
