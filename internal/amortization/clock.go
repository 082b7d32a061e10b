package amortization

import "time"

// Clock is the single authoritative time source of the engine.
type Clock interface {
	Now() time.Time
}

// SystemClock reads wall-clock time, truncated to whole seconds in UTC.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now().UTC().Truncate(time.Second) }

// ClockFunc adapts a plain function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }
