// Package prof records runtime profiles of a running bus emulator.
//
// The package is compiled in two flavours selected by the "profile" build
// tag:
//
//	go build -tags profile ./examples/...
//
// Without the tag every function is a no-op and [Enabled] reports false, so
// command-line tools can expose profiling flags unconditionally.
//
// # Sessions
//
// A [Session] covers one run of the emulator. [Start] begins CPU profiling
// and optionally serves a live dashboard; [Session.Stop] ends the CPU
// profile and writes the heap snapshot:
//
//	s, err := prof.Start(prof.Config{
//	    CPU:       "cpu.prof",
//	    Heap:      "heap.prof",
//	    Dashboard: "localhost:18066",
//	})
//	if err != nil {
//	    return err
//	}
//	defer s.Stop()
//
// # Dashboard
//
// The dashboard is a statsview server with goroutine, heap and GC charts at
// /debug/statsview and the standard pprof handlers at /debug/pprof/.
// Bit-banged timing loops are sensitive to GC pauses, which the charts make
// visible while a transfer runs.
package prof
