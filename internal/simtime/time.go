// Package simtime provides model time for the director: a time value
// compared under a configured resolution, the director-owned Clock, and the
// breakpoint table of mandatory future firing times.
package simtime

import (
	"fmt"
	"math"

	"github.com/roach88/hysim/internal/simerr"
)

// DefaultResolution is the default time resolution. Two times closer than
// this are the same instant.
const DefaultResolution Resolution = 1e-10

// Time is a point in model time.
type Time float64

// Add returns t advanced by d.
func (t Time) Add(d float64) Time {
	return Time(float64(t) + d)
}

// Sub returns the distance t - u.
func (t Time) Sub(u Time) float64 {
	return float64(t) - float64(u)
}

// Float returns t as a float64.
func (t Time) Float() float64 {
	return float64(t)
}

// IsInf reports whether t is positive infinity (an unbounded stop time).
func (t Time) IsInf() bool {
	return math.IsInf(float64(t), 1)
}

func (t Time) String() string {
	return fmt.Sprintf("%g", float64(t))
}

// Resolution is the equality threshold for time comparisons.
type Resolution float64

// Compare returns -1, 0 or +1. Times within the resolution compare equal.
func (r Resolution) Compare(a, b Time) int {
	d := float64(a) - float64(b)
	switch {
	case math.Abs(d) < float64(r):
		return 0
	case d < 0:
		return -1
	default:
		return 1
	}
}

// Equal reports whether a and b are the same instant.
func (r Resolution) Equal(a, b Time) bool {
	return r.Compare(a, b) == 0
}

// Before reports whether a is strictly earlier than b.
func (r Resolution) Before(a, b Time) bool {
	return r.Compare(a, b) < 0
}

// After reports whether a is strictly later than b.
func (r Resolution) After(a, b Time) bool {
	return r.Compare(a, b) > 0
}

// Clock is the model time owned by exactly one director.
//
// Advance only moves forward. Rewind is reserved for step retries and
// checkpoint rollback, the two places where time legitimately goes back.
type Clock struct {
	now        Time
	resolution Resolution
}

// NewClock creates a clock at start.
func NewClock(start Time, resolution Resolution) *Clock {
	if resolution <= 0 {
		resolution = DefaultResolution
	}
	return &Clock{now: start, resolution: resolution}
}

// Now returns the current model time.
func (c *Clock) Now() Time {
	return c.now
}

// Resolution returns the clock's equality resolution.
func (c *Clock) Resolution() Resolution {
	return c.resolution
}

// Advance moves the clock to t. Moving backwards by more than the
// resolution is an internal error.
func (c *Clock) Advance(t Time) error {
	if c.resolution.Before(t, c.now) {
		return simerr.NewInternal("", fmt.Sprintf("clock cannot move backwards from %v to %v", c.now, t))
	}
	c.now = t
	return nil
}

// Rewind sets the clock to t unconditionally.
func (c *Clock) Rewind(t Time) {
	c.now = t
}
