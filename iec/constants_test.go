package iec

import "testing"

func TestProtocolString(t *testing.T) {
	tests := []struct {
		p    Protocol
		want string
	}{
		{ProtocolNone, "none"},
		{ProtocolJiffyDOS, "JiffyDOS"},
		{ProtocolJiffyDOS | ProtocolEpyx, "JiffyDOS|Epyx"},
		{ProtocolAll, "JiffyDOS|DolphinDOS|Epyx"},
		{ProtocolDolphinDOS | 0x80, "DolphinDOS|0x80"},
	}
	for _, tt := range tests {
		if got := tt.p.String(); got != tt.want {
			t.Errorf("Protocol(%#x).String() = %q, want %q", uint8(tt.p), got, tt.want)
		}
	}
}

func TestParseProtocols(t *testing.T) {
	tests := []struct {
		in      string
		want    Protocol
		wantErr bool
	}{
		{"", ProtocolNone, false},
		{"none", ProtocolNone, false},
		{"jiffy", ProtocolJiffyDOS, false},
		{"JiffyDOS,dolphin", ProtocolJiffyDOS | ProtocolDolphinDOS, false},
		{"epyx | fastload", ProtocolEpyx, false},
		{"all", ProtocolAll, false},
		{"jiffy,turbo", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseProtocols(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseProtocols(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseProtocols(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFlagsString(t *testing.T) {
	tests := []struct {
		f    Flags
		want string
	}{
		{0, "0"},
		{FlagAttention, "ATN"},
		{FlagListening | FlagDone, "LISTEN|DONE"},
		{FlagTalking | FlagReset, "TALK|RESET"},
	}
	for _, tt := range tests {
		if got := tt.f.String(); got != tt.want {
			t.Errorf("Flags(%#x).String() = %q, want %q", uint32(tt.f), got, tt.want)
		}
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{StateIdle, "Idle"},
		{StateAttention, "Attention"},
		{StateListening, "Listening"},
		{StateTalking, "Talking"},
		{State(9), "State(9)"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State.String() = %q, want %q", got, tt.want)
		}
	}
}

func TestDeviceProtocols(t *testing.T) {
	d := NewDevice(8, BaseDriver{})
	if got := d.Enabled(); got != ProtocolNone {
		t.Errorf("Enabled() = %v, want none", got)
	}
	d.SetJiffyDOS(true)
	d.SetEpyx(true)
	if got := d.Enabled(); got != ProtocolJiffyDOS|ProtocolEpyx {
		t.Errorf("Enabled() = %v, want JiffyDOS|Epyx", got)
	}
	d.SetJiffyDOS(false)
	if got := d.Enabled(); got != ProtocolEpyx {
		t.Errorf("Enabled() = %v, want Epyx", got)
	}
	if d.RequestDolphinBurstTransmit() {
		t.Error("burst granted without handler")
	}
	if d.RequestEpyxLoad() {
		t.Error("Epyx load granted without handler")
	}
}
