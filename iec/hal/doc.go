// Package hal defines the hardware abstraction layer of the serial bus engine.
//
// The engine in [github.com/ardnew/softiec/iec] runs unchanged on every
// target; platform vendors implement the interfaces below.
//
// # Interface Overview
//
//   - [Pins]: read a line, switch its direction, write its output latch
//   - [Clock]: microsecond counter that keeps running with interrupts off
//   - [Bus]: the mandatory combination of Pins and Clock
//   - [Interrupter]: optional edge interrupts and interrupt masking
//   - [ParallelPort]: optional 8-bit cable with handshake lines (DolphinDOS)
//
// Optional capabilities are discovered by type assertion on the value passed
// to the engine, or configured explicitly with the engine's setters.
//
// # Open-Collector Lines
//
// Every bus line is wired-AND: any participant may pull it low, and it only
// reads high once all participants release it. HALs expose plain push-pull
// GPIO semantics; the engine releases a line by switching it to
// [ModeInput] and asserts it by driving [ModeOutput] low.
//
// # Implementations
//
//   - [github.com/ardnew/softiec/iec/hal/sim]: deterministic virtual-time bus
//     with a scripted bus master, for tests and the simulator
//   - [github.com/ardnew/softiec/iec/hal/gpio]: Linux GPIO character device
package hal
