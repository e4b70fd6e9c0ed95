package pkg

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorsDistinct(t *testing.T) {
	all := []error{
		ErrTimeout, ErrAttention, ErrDeviceRefused, ErrNoData, ErrChecksum,
		ErrNotAddressed, ErrReset, ErrInvalidAddress, ErrAddressInUse,
		ErrRegistryFull, ErrNotAttached, ErrAlreadyAttached, ErrNotSupported,
		ErrBufferTooSmall, ErrInvalidParameter, ErrAlreadyRunning,
		ErrNotRunning, ErrNoDevice, ErrNotAcknowledged, ErrProtocol,
	}
	for i, a := range all {
		for j, b := range all {
			if i != j && errors.Is(a, b) {
				t.Errorf("%v matches %v", a, b)
			}
		}
	}
}

func TestIsAbort(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{ErrAttention, true},
		{ErrReset, true},
		{fmt.Errorf("receive byte: %w", ErrAttention), true},
		{ErrTimeout, false},
		{ErrDeviceRefused, false},
	}

	for _, tt := range tests {
		name := "nil"
		if tt.err != nil {
			name = tt.err.Error()
		}
		t.Run(name, func(t *testing.T) {
			if got := IsAbort(tt.err); got != tt.want {
				t.Errorf("IsAbort(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
