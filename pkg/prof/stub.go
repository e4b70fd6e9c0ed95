//go:build !profile

package prof

// ErrActive is never returned without the "profile" tag.
var ErrActive error

// Session is an inert session.
type Session struct{}

// Enabled reports whether profiling support is compiled in.
func Enabled() bool { return false }

// Start is a no-op without the "profile" tag.
func Start(Config) (*Session, error) { return &Session{}, nil }

// Stop is a no-op without the "profile" tag.
func (*Session) Stop() error { return nil }
