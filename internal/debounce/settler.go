// Package debounce waits for a polled value to stop changing before it is acted on.
package debounce

import "time"

// DefaultWindow is the settle duration used when none is configured.
const DefaultWindow = time.Second

// Settler tracks a polled string value. Every observed difference restarts
// the window; Due reports true once the window has passed since the last
// difference. Callers pass the clock explicitly so polling loops and tests
// share the same code path. Not safe for concurrent use.
type Settler struct {
	window    time.Duration
	last      string
	seeded    bool
	pending   bool
	changedAt time.Time
}

func NewSettler(window time.Duration) *Settler {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Settler{window: window}
}

// Seed sets the baseline without marking a change.
func (s *Settler) Seed(value string) {
	s.last = value
	s.seeded = true
	s.pending = false
}

// Observe records value at now and reports whether it differs from the
// previous observation. The first observation only seeds the baseline.
func (s *Settler) Observe(value string, now time.Time) bool {
	if !s.seeded {
		s.Seed(value)
		return false
	}
	if value == s.last {
		return false
	}
	s.last = value
	s.pending = true
	s.changedAt = now
	return true
}

// Due reports whether a change is pending and has been quiet for the window.
func (s *Settler) Due(now time.Time) bool {
	return s.pending && now.Sub(s.changedAt) >= s.window
}

// Pending reports whether a change is waiting, settled or not.
func (s *Settler) Pending() bool { return s.pending }

// Done clears the pending change after it has been handled.
func (s *Settler) Done() { s.pending = false }

// Window returns the configured settle duration.
func (s *Settler) Window() time.Duration { return s.window }
