//go:build linux && (386 || amd64 || arm || arm64 || riscv64 || loong64)

package gpio

import (
	"testing"
	"unsafe"
)

func TestStructSizes(t *testing.T) {
	tests := []struct {
		name string
		got  uintptr
		want uintptr
	}{
		{"gpio_v2_line_attribute", unsafe.Sizeof(lineAttribute{}), 16},
		{"gpio_v2_line_config_attribute", unsafe.Sizeof(configAttribute{}), 24},
		{"gpio_v2_line_config", unsafe.Sizeof(lineConfig{}), 272},
		{"gpio_v2_line_request", unsafe.Sizeof(lineRequest{}), 592},
		{"gpio_v2_line_values", unsafe.Sizeof(lineValues{}), 16},
		{"gpio_v2_line_event", unsafe.Sizeof(lineEvent{}), 48},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("sizeof(%s) = %d, want %d", tt.name, tt.got, tt.want)
		}
	}
}

func TestIoctlNumbers(t *testing.T) {
	tests := []struct {
		name string
		got  uintptr
		want uintptr
	}{
		{"GPIO_V2_GET_LINE_IOCTL", ioctlGetLine, 0xC250B407},
		{"GPIO_V2_LINE_SET_CONFIG_IOCTL", ioctlSetConfig, 0xC110B40D},
		{"GPIO_V2_LINE_GET_VALUES_IOCTL", ioctlGetValues, 0xC010B40E},
		{"GPIO_V2_LINE_SET_VALUES_IOCTL", ioctlSetValues, 0xC010B40F},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %#x, want %#x", tt.name, tt.got, tt.want)
		}
	}
}

func TestLineConfigs(t *testing.T) {
	in := inputConfig(flagEdgeFalling)
	if in.flags != flagInput|flagBiasPullUp|flagEdgeFalling || in.numAttrs != 0 {
		t.Errorf("inputConfig() = %+v", in)
	}
	out := outputConfig(0xA5, 0xFF)
	if out.flags != flagOutput || out.numAttrs != 1 {
		t.Fatalf("outputConfig() flags = %#x attrs = %d", out.flags, out.numAttrs)
	}
	a := out.attrs[0]
	if a.attr.id != attrOutputValues || a.attr.value != 0xA5 || a.mask != 0xFF {
		t.Errorf("outputConfig() attr = %+v", a)
	}
}

func TestPollerWake(t *testing.T) {
	p, err := newPoller()
	if err != nil {
		t.Skipf("epoll unavailable: %v", err)
	}
	defer p.close()
	done := make(chan error, 1)
	go func() { done <- p.run() }()
	if err := p.stop(); err != nil {
		t.Fatal(err)
	}
	if err := <-done; err != nil {
		t.Errorf("run() error = %v", err)
	}
}
