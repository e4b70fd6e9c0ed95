// Package pkg provides shared utilities for the softiec bus emulator.
//
// This package contains common functionality used across the protocol
// engine, its hardware abstraction layers and the device drivers, including:
//
//   - Structured logging via Go's standard [log/slog] package
//   - Sentinel error types for bus transfer and registry errors
//   - Component identifiers for log filtering
//
// # Logging
//
// The logging subsystem wraps [log/slog] with a component attribute:
//
//	pkg.SetLogLevel(slog.LevelDebug)
//	pkg.LogInfo(pkg.ComponentBus, "device addressed", "primary", 0x28)
//
// # Errors
//
// Transfer failures are reported as sentinel values:
//
//	if errors.Is(err, pkg.ErrAttention) {
//	    // Bus master interrupted the transfer
//	}
package pkg
