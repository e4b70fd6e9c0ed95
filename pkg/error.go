package pkg

import "errors"

// Transfer errors. Every blocking step of a bus transaction reports one of
// these; any of them ends the transaction until the next attention sequence.
var (
	// ErrTimeout indicates a line did not reach the expected level in time.
	ErrTimeout = errors.New("bus timeout")

	// ErrAttention indicates the bus master changed the ATN line mid-step.
	ErrAttention = errors.New("attention changed")

	// ErrDeviceRefused indicates the addressed device cannot accept data.
	ErrDeviceRefused = errors.New("device refused data")

	// ErrNoData indicates the addressed device has nothing to send.
	ErrNoData = errors.New("no data available")

	// ErrChecksum indicates an uploaded block did not match a known checksum.
	ErrChecksum = errors.New("unrecognized checksum")

	// ErrNotAddressed indicates an address byte selects no attached device.
	ErrNotAddressed = errors.New("not addressed")

	// ErrReset indicates the RESET line was asserted.
	ErrReset = errors.New("bus reset")
)

// Registry and configuration errors.
var (
	// ErrInvalidAddress indicates a device number outside 0..30.
	ErrInvalidAddress = errors.New("invalid device address")

	// ErrAddressInUse indicates another attached device owns the address.
	ErrAddressInUse = errors.New("device address in use")

	// ErrRegistryFull indicates no free device slot remains.
	ErrRegistryFull = errors.New("device registry full")

	// ErrNotAttached indicates the device is not attached to a handler.
	ErrNotAttached = errors.New("device not attached")

	// ErrAlreadyAttached indicates the device is attached to a handler.
	ErrAlreadyAttached = errors.New("device already attached")

	// ErrNotSupported indicates an unsupported operation or feature.
	ErrNotSupported = errors.New("not supported")

	// ErrBufferTooSmall indicates the provided buffer is too small.
	ErrBufferTooSmall = errors.New("buffer too small")

	// ErrInvalidParameter indicates an invalid parameter was provided.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrAlreadyRunning indicates the component is already running.
	ErrAlreadyRunning = errors.New("already running")

	// ErrNotRunning indicates the component is not running.
	ErrNotRunning = errors.New("not running")
)

// Bus master errors, reported by the simulated host.
var (
	// ErrNoDevice indicates no device answered the addressing sequence.
	ErrNoDevice = errors.New("device not present")

	// ErrNotAcknowledged indicates the receiver did not acknowledge a byte.
	ErrNotAcknowledged = errors.New("byte not acknowledged")

	// ErrProtocol indicates the peer violated the handshake.
	ErrProtocol = errors.New("protocol error")
)

// IsAbort reports whether err ended a transaction because of the bus master
// (attention change or reset) rather than a timing or device failure.
func IsAbort(err error) bool {
	return errors.Is(err, ErrAttention) || errors.Is(err, ErrReset)
}
