// Package sim provides a deterministic, virtual-time simulation of the
// serial bus for tests and the simulator example.
//
// A [Bus] implements the device side of the HAL (hal.Bus and
// hal.Interrupter) as a wired-AND model: a line is high only while neither
// the device pin nor the simulated computer pulls it low. An optional CTRL
// gate models the ATN-to-DATA presence shortcut.
//
// The computer side is a [Host] routine started with [Bus.Run]. It speaks
// the bus protocols from the master's point of view: addressing, standard
// byte transfer with EOI, JiffyDOS, DolphinDOS (with [Parallel]) and Epyx
// FastLoad.
//
// Device and host run in lockstep. Every device-side HAL call advances the
// virtual clock by one tick, after which the host routine runs until it
// blocks on a line condition or a deadline. No real time elapses, so timing
// behaviour is reproducible and a stuck handshake surfaces as
// [ErrTimeLimit] rather than a hang.
//
// # Example
//
//	bus := sim.New()
//	h := iec.NewHandler(bus, iec.ProtocolAll)
//	h.Attach(iec.NewDevice(8, drv))
//	h.Begin()
//
//	bus.Run(func(host *sim.Host) error {
//		return host.Save(8, "HELLO", []byte("WORLD"))
//	})
//	err := bus.Serve(h.Task, 10*time.Microsecond)
package sim
