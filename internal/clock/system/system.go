// Package system provides wall clocks for run bookkeeping.
package system

import "time"

// Clock implements crawler.Clock in a fixed location.
type Clock struct {
	loc *time.Location
}

// New returns a clock reporting times in loc, or UTC when loc is nil.
func New(loc *time.Location) *Clock {
	if loc == nil {
		loc = time.UTC
	}
	return &Clock{loc: loc}
}

// Now returns the current time.
func (c *Clock) Now() time.Time {
	return time.Now().In(c.loc)
}

// Fixed always reports the same instant.
type Fixed time.Time

// Now returns the fixed instant.
func (f Fixed) Now() time.Time { return time.Time(f) }
