package clock

import (
	"sync"
	"time"
)

// Clock is the single time source for timer math.
type Clock interface {
	Now() time.Time
}

// Real reads the process clock. Values returned by time.Now carry a monotonic
// reading, so Sub between two of them is unaffected by wall-clock steps.
type Real struct{}

// Now returns the current instant.
func (Real) Now() time.Time {
	return time.Now()
}

// Fake is a manually driven clock for tests.
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

// NewFake creates a fake clock pinned at start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

// Now returns the pinned instant.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance moves the clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

// Set pins the clock at t.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	f.now = t
	f.mu.Unlock()
}
