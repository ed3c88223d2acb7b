// Package clock abstracts time for the allocator so tests can pin
// timestamps instead of sleeping or comparing against time.Now windows.
package clock

import "time"

// Clock yields the current time in UTC.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// New returns a Clock backed by the system time.
func New() Clock { return systemClock{} }

type fixedClock struct{ t time.Time }

func (f fixedClock) Now() time.Time { return f.t }

// NewFixed returns a Clock that always reports t.
func NewFixed(t time.Time) Clock { return fixedClock{t: t.UTC()} }
