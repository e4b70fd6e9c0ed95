package sim

import (
	"time"

	"github.com/ardnew/softiec/iec/hal"
	"github.com/ardnew/softiec/pkg"
)

// EpyxHeaderSize is the size of the uploaded drive code block.
const EpyxHeaderSize = 256

// epyxSettle is how long the host leaves CLK released before claiming the
// bus for the fast-load routine.
const epyxSettle = 100 * time.Microsecond

// epyxTurnDelay separates the end of the host's last frame from the bus
// turnaround.
const epyxTurnDelay = 10 * time.Microsecond

// Epyx sector commands.
const (
	EpyxSectorRead  = 1
	EpyxSectorWrite = 2
	EpyxSectorDone  = 0
)

// epyxSend writes one inverted frame. The host claims CLK, waits for the
// device to release DATA, then clocks bits (7,5)(6,4)(3,1)(2,0). CLK stays
// asserted afterwards.
func (h *Host) epyxSend(b byte) error {
	h.Assert(hal.LineCLK)
	if !h.WaitLine(hal.LineDATA, true, hostReady) {
		return pkg.ErrTimeout
	}
	h.Release(hal.LineCLK)
	t0 := h.Now()
	pairs := [4]struct {
		at        time.Duration
		clk, data uint
	}{
		{4 * us, 7, 5},
		{12 * us, 6, 4},
		{20 * us, 3, 1},
		{28 * us, 2, 0},
	}
	for _, p := range pairs {
		h.SleepUntil(t0 + p.at)
		h.Set(hal.LineCLK, b>>p.clk&1 == 0)
		h.Set(hal.LineDATA, b>>p.data&1 == 0)
	}
	h.SleepUntil(t0 + 36*us)
	h.Assert(hal.LineCLK)
	h.Release(hal.LineDATA)
	return nil
}

// epyxReceive reads one inverted frame driven by the device. The host holds
// DATA low on entry and again on return.
func (h *Host) epyxReceive() (byte, error) {
	if !h.WaitLine(hal.LineCLK, true, hostReady) {
		return 0, pkg.ErrTimeout
	}
	h.Release(hal.LineDATA)
	t0 := h.Now()
	b := ^h.samplePairs(t0, [4]time.Duration{4 * us, 12 * us, 20 * us, 28 * us})
	ok := h.WaitLine(hal.LineCLK, false, hostAck)
	h.Assert(hal.LineDATA)
	if !ok {
		return 0, pkg.ErrProtocol
	}
	return b, nil
}

// epyxTurn hands the bus to the device after the host's last frame.
func (h *Host) epyxTurn() {
	h.Sleep(epyxTurnDelay)
	h.Assert(hal.LineDATA)
	h.Release(hal.LineCLK)
}

// epyxIdle releases CLK after the host's last frame and lets the device
// see the idle bus.
func (h *Host) epyxIdle() {
	h.Release(hal.LineCLK)
	h.Sleep(epyxSettle)
}

// epyxRelease frees DATA once the device has gone idle after its last frame.
func (h *Host) epyxRelease() {
	h.WaitLine(hal.LineCLK, true, hostAck)
	h.Release(hal.LineDATA)
}

// EpyxUpload sends the 256-byte drive code block that selects the Epyx
// operation. The device must have been asked to expect it (command "M-E").
func (h *Host) EpyxUpload(code []byte) error {
	if len(code) != EpyxHeaderSize {
		return pkg.ErrInvalidParameter
	}
	h.Release(hal.LineCLK)
	h.Sleep(epyxSettle)
	for _, b := range code {
		if err := h.epyxSend(b); err != nil {
			h.epyxIdle()
			return err
		}
	}
	return nil
}

// EpyxLoad uploads a load header and reads the named file.
func (h *Host) EpyxLoad(code []byte, name string) ([]byte, error) {
	if err := h.EpyxUpload(code); err != nil {
		return nil, err
	}
	if err := h.epyxSend(byte(len(name))); err != nil {
		h.epyxIdle()
		return nil, err
	}
	for i := len(name) - 1; i >= 0; i-- {
		if err := h.epyxSend(name[i]); err != nil {
			h.epyxIdle()
			return nil, err
		}
	}
	h.epyxTurn()
	var out []byte
	for {
		n, err := h.epyxReceive()
		if err != nil {
			return out, err
		}
		if n == 0 {
			break
		}
		for range n {
			b, err := h.epyxReceive()
			if err != nil {
				return out, err
			}
			out = append(out, b)
		}
	}
	h.epyxRelease()
	return out, nil
}

// EpyxBeginSectors uploads a sector-operation header and leaves the bus
// idle with the device sending its heartbeat.
func (h *Host) EpyxBeginSectors(code []byte) error {
	err := h.EpyxUpload(code)
	h.epyxIdle()
	return err
}

func (h *Host) epyxCommand(track, sector, op byte) error {
	for _, b := range [3]byte{track, sector, op} {
		if err := h.epyxSend(b); err != nil {
			h.epyxIdle()
			return err
		}
	}
	return nil
}

// EpyxReadSector reads one 256-byte sector in sector mode.
func (h *Host) EpyxReadSector(track, sector byte) ([]byte, error) {
	if err := h.epyxCommand(track, sector, EpyxSectorRead); err != nil {
		return nil, err
	}
	h.epyxTurn()
	status, err := h.epyxReceive()
	if err != nil {
		return nil, err
	}
	if status != 0 {
		h.epyxRelease()
		return nil, pkg.ErrProtocol
	}
	out := make([]byte, 0, 256)
	for range 256 {
		b, err := h.epyxReceive()
		if err != nil {
			return out, err
		}
		out = append(out, b)
	}
	h.epyxRelease()
	return out, nil
}

// EpyxWriteSector writes one 256-byte sector in sector mode.
func (h *Host) EpyxWriteSector(track, sector byte, data []byte) error {
	if len(data) != 256 {
		return pkg.ErrInvalidParameter
	}
	if err := h.epyxCommand(track, sector, EpyxSectorWrite); err != nil {
		return err
	}
	for _, b := range data {
		if err := h.epyxSend(b); err != nil {
			h.epyxIdle()
			return err
		}
	}
	h.epyxTurn()
	status, err := h.epyxReceive()
	if err != nil {
		return err
	}
	h.epyxRelease()
	if status != 0 {
		return pkg.ErrProtocol
	}
	return nil
}

// EpyxEndSectors leaves sector mode.
func (h *Host) EpyxEndSectors() error {
	err := h.epyxCommand(0, 0, EpyxSectorDone)
	h.epyxIdle()
	return err
}
