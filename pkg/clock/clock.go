package clock

import "time"

// Clock abstracts the time source for TTL, bucket freshness and republish decisions.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
}

// SystemClock uses the local system time.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}

// OrSystem returns c, or the system clock when c is nil.
func OrSystem(c Clock) Clock {
	if c == nil {
		return SystemClock{}
	}
	return c
}
