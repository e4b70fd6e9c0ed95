// Package iec implements the device side of the Commodore serial bus.
//
// A [Handler] owns one bus interface (see [github.com/ardnew/softiec/iec/hal])
// and serves up to [MaxDevices] emulated devices. Each [Device] pairs a bus
// address with a [Driver] that supplies and consumes the data.
//
// # Architecture
//
//   - [Handler] runs the attention state machine and the transfer engines
//   - [Device] carries the address, activity toggle and protocol state
//   - [Driver] is the device emulation called back by the handler
//   - [Timer] measures microseconds on the HAL clock
//
// # Bus States
//
// Every transaction starts with the bus master asserting ATN:
//
//	Idle → Attention → (Listening | Talking | Idle)
//
// The handler receives the primary and secondary address bytes, selects
// the device and switches roles once ATN is released. A failed transfer
// step sets [FlagDone], which suspends the transaction until the next
// attention sequence. Asserting ATN aborts any wait immediately.
//
// # Accelerated Protocols
//
// Besides the standard handshake the handler negotiates, per device:
//
//   - JiffyDOS: two bits per timed slot, plus a block mode for LOAD
//   - DolphinDOS: bytes over a parallel cable, with a burst mode
//   - Epyx FastLoad: uploaded loader with file and sector operations
//
// Enable them on the handler with [Protocol] flags and on each device with
// [Device.SetJiffyDOS], [Device.SetDolphinDOS] and [Device.SetEpyx].
//
// # Scheduling
//
// [Handler.Task] is non-blocking at transaction granularity and must be
// called from the main loop, at least once per millisecond when the HAL
// has no ATN interrupt. Timing-critical steps run with interrupts masked.
//
// # Example
//
//	bus := sim.New()
//	h := iec.NewHandler(bus, iec.ProtocolJiffyDOS)
//	dev := iec.NewDevice(8, drv)
//	dev.SetJiffyDOS(true)
//	if err := h.Attach(dev); err != nil {
//	    return err
//	}
//	if err := h.Begin(); err != nil {
//	    return err
//	}
//	for {
//	    h.Task()
//	}
package iec
