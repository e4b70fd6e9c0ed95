//go:build linux && (386 || amd64 || arm || arm64 || riscv64 || loong64)

package gpio

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// GPIO character device uAPI v2 (include/uapi/linux/gpio.h).

const (
	linesMax    = 64
	numAttrsMax = 10
	nameSize    = 32
)

// Line flags.
const (
	flagUsed         = 1 << 0
	flagActiveLow    = 1 << 1
	flagInput        = 1 << 2
	flagOutput       = 1 << 3
	flagEdgeRising   = 1 << 4
	flagEdgeFalling  = 1 << 5
	flagOpenDrain    = 1 << 6
	flagOpenSource   = 1 << 7
	flagBiasPullUp   = 1 << 8
	flagBiasPullDown = 1 << 9
	flagBiasDisabled = 1 << 10
)

// Attribute identifiers.
const (
	attrFlags        = 1
	attrOutputValues = 2
	attrDebounce     = 3
)

// Edge event identifiers.
const (
	eventRisingEdge  = 1
	eventFallingEdge = 2
)

// lineAttribute is struct gpio_v2_line_attribute. The union holds flags,
// output values or a debounce period.
type lineAttribute struct {
	id    uint32
	_     uint32
	value uint64
}

// configAttribute is struct gpio_v2_line_config_attribute.
type configAttribute struct {
	attr lineAttribute
	mask uint64
}

// lineConfig is struct gpio_v2_line_config.
type lineConfig struct {
	flags    uint64
	numAttrs uint32
	_        [5]uint32
	attrs    [numAttrsMax]configAttribute
}

// lineRequest is struct gpio_v2_line_request.
type lineRequest struct {
	offsets         [linesMax]uint32
	consumer        [nameSize]byte
	config          lineConfig
	numLines        uint32
	eventBufferSize uint32
	_               [5]uint32
	fd              int32
}

// lineValues is struct gpio_v2_line_values.
type lineValues struct {
	bits uint64
	mask uint64
}

// lineEvent is struct gpio_v2_line_event.
type lineEvent struct {
	timestampNs uint64
	id          uint32
	offset      uint32
	seqno       uint32
	lineSeqno   uint32
	_           [6]uint32
}

const lineEventSize = int(unsafe.Sizeof(lineEvent{}))

// ioctl number encoding shared by the architectures in the build tag.
const (
	iocWrite = 1
	iocRead  = 2

	iocNRShift   = 0
	iocTypeShift = 8
	iocSizeShift = 16
	iocDirShift  = 30
)

func iowr(typ, nr, size uintptr) uintptr {
	return (iocRead|iocWrite)<<iocDirShift | typ<<iocTypeShift | nr<<iocNRShift | size<<iocSizeShift
}

const gpioType = 0xB4

var (
	ioctlGetLine   = iowr(gpioType, 0x07, unsafe.Sizeof(lineRequest{}))
	ioctlSetConfig = iowr(gpioType, 0x0D, unsafe.Sizeof(lineConfig{}))
	ioctlGetValues = iowr(gpioType, 0x0E, unsafe.Sizeof(lineValues{}))
	ioctlSetValues = iowr(gpioType, 0x0F, unsafe.Sizeof(lineValues{}))
)

func ioctl(fd int, req uintptr, arg unsafe.Pointer) error {
	for {
		_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(arg))
		switch errno {
		case 0:
			return nil
		case unix.EINTR:
			continue
		}
		return errno
	}
}

// requestLines asks the chip for a set of lines sharing one configuration
// and returns the request file descriptor.
func requestLines(chip int, consumer string, offsets []int, cfg lineConfig) (int, error) {
	var req lineRequest
	for i, o := range offsets {
		req.offsets[i] = uint32(o)
	}
	copy(req.consumer[:nameSize-1], consumer)
	req.config = cfg
	req.numLines = uint32(len(offsets))
	if cfg.flags&(flagEdgeRising|flagEdgeFalling) != 0 {
		req.eventBufferSize = 16
	}
	if err := ioctl(chip, ioctlGetLine, unsafe.Pointer(&req)); err != nil {
		return -1, err
	}
	return int(req.fd), nil
}

func setConfig(fd int, cfg lineConfig) error {
	return ioctl(fd, ioctlSetConfig, unsafe.Pointer(&cfg))
}

func getValues(fd int, mask uint64) (uint64, error) {
	v := lineValues{mask: mask}
	err := ioctl(fd, ioctlGetValues, unsafe.Pointer(&v))
	return v.bits, err
}

func setValues(fd int, bits, mask uint64) error {
	v := lineValues{bits: bits, mask: mask}
	return ioctl(fd, ioctlSetValues, unsafe.Pointer(&v))
}

// inputConfig releases a line: input with pull-up and the given edges.
func inputConfig(edges uint64) lineConfig {
	return lineConfig{flags: flagInput | flagBiasPullUp | edges}
}

// outputConfig drives every requested line to the levels in bits.
func outputConfig(bits, mask uint64) lineConfig {
	cfg := lineConfig{flags: flagOutput, numAttrs: 1}
	cfg.attrs[0] = configAttribute{
		attr: lineAttribute{id: attrOutputValues, value: bits},
		mask: mask,
	}
	return cfg
}
