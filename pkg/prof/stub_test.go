//go:build !profile

package prof

import "testing"

func TestStub(t *testing.T) {
	if Enabled() {
		t.Error("Enabled() = true without the profile tag")
	}
	s, err := Start(Config{CPU: "/nonexistent/dir/cpu.prof"})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}

func TestConfigAny(t *testing.T) {
	tests := []struct {
		cfg  Config
		want bool
	}{
		{Config{}, false},
		{Config{Heap: "h"}, true},
		{Config{Dashboard: ":1"}, true},
	}
	for _, tt := range tests {
		if got := tt.cfg.Any(); got != tt.want {
			t.Errorf("%+v.Any() = %v, want %v", tt.cfg, got, tt.want)
		}
	}
}
