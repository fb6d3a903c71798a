package application

import (
	"sync"
	"time"
)

// Clock interface supaya gampang ditest
type Clock interface {
	Now() time.Time
}

// SystemClock is the default clock; times are UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Now reads c, falling back to the system clock when c is nil.
func Now(c Clock) time.Time {
	if c == nil {
		return SystemClock{}.Now()
	}
	return c.Now().UTC()
}

// StepClock returns Start, then Start+Step, Start+2*Step, ... on each call.
// Used by tests that need distinct, ordered timestamps.
type StepClock struct {
	mu    sync.Mutex
	Start time.Time
	Step  time.Duration
	n     int
}

func (c *StepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.Start.Add(time.Duration(c.n) * c.Step)
	c.n++
	return t.UTC()
}
