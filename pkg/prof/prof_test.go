//go:build profile

package prof

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestSession(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		CPU:  filepath.Join(dir, "cpu.prof"),
		Heap: filepath.Join(dir, "heap.prof"),
	}
	s, err := Start(cfg)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if _, err := Start(cfg); !errors.Is(err, ErrActive) {
		t.Errorf("second Start() error = %v, want ErrActive", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
	for _, path := range []string{cfg.CPU, cfg.Heap} {
		if fi, err := os.Stat(path); err != nil || fi.Size() == 0 {
			t.Errorf("%s not written: %v", filepath.Base(path), err)
		}
	}
}

func TestStartInvalidPath(t *testing.T) {
	if _, err := Start(Config{CPU: "/nonexistent/dir/cpu.prof"}); err == nil {
		t.Fatal("Start() error = nil for invalid path")
	}
	s, err := Start(Config{})
	if err != nil {
		t.Fatalf("Start() after failure error = %v", err)
	}
	s.Stop()
}
