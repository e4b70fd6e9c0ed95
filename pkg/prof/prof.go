//go:build profile

package prof

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"runtime/pprof"
	"sync"

	"github.com/go-echarts/statsview"
	"github.com/go-echarts/statsview/viewer"

	"github.com/ardnew/softiec/pkg"
)

// ErrActive indicates a session is already running.
var ErrActive = errors.New("profiling session already active")

var (
	mutex  sync.Mutex
	active *Session
)

// Session is a running profiling session.
type Session struct {
	cfg       Config
	cpu       *os.File
	dashboard *statsview.ViewManager
}

// Enabled reports whether profiling support is compiled in.
func Enabled() bool { return true }

// Start begins a session. Only one session may run at a time.
func Start(cfg Config) (*Session, error) {
	mutex.Lock()
	defer mutex.Unlock()
	if active != nil {
		return nil, ErrActive
	}

	s := &Session{cfg: cfg}
	if cfg.CPU != "" {
		f, err := os.Create(cfg.CPU)
		if err != nil {
			return nil, fmt.Errorf("cpu profile: %w", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			f.Close()
			return nil, fmt.Errorf("cpu profile: %w", err)
		}
		s.cpu = f
	}
	if cfg.Dashboard != "" {
		viewer.SetConfiguration(viewer.WithAddr(cfg.Dashboard))
		s.dashboard = statsview.New()
		go func() {
			if err := s.dashboard.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				pkg.LogWarn(pkg.ComponentBus, "dashboard stopped", "error", err)
			}
		}()
		pkg.LogInfo(pkg.ComponentBus, "dashboard listening",
			"url", "http://"+cfg.Dashboard+"/debug/statsview")
	}
	active = s
	return s, nil
}

// Stop ends the session, closing the CPU profile and writing the heap
// snapshot. Stopping a stopped session does nothing.
func (s *Session) Stop() error {
	mutex.Lock()
	defer mutex.Unlock()
	if s == nil || active != s {
		return nil
	}
	active = nil

	var errs []error
	if s.cpu != nil {
		pprof.StopCPUProfile()
		errs = append(errs, s.cpu.Close())
	}
	if s.dashboard != nil {
		s.dashboard.Stop()
	}
	if s.cfg.Heap != "" {
		errs = append(errs, writeHeap(s.cfg.Heap))
	}
	return errors.Join(errs...)
}

func writeHeap(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("heap profile: %w", err)
	}
	defer f.Close()
	// Up-to-date statistics need a collection first.
	runtime.GC()
	if err := pprof.Lookup("heap").WriteTo(f, 0); err != nil {
		return fmt.Errorf("heap profile: %w", err)
	}
	return nil
}
