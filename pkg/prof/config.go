package prof

// Config selects what a session records. Empty fields are disabled.
type Config struct {
	CPU       string // CPU profile output path
	Heap      string // heap profile written by Stop
	Dashboard string // statsview listen address, e.g. "localhost:18066"
}

// Any reports whether cfg enables anything.
func (cfg Config) Any() bool {
	return cfg.CPU != "" || cfg.Heap != "" || cfg.Dashboard != ""
}
