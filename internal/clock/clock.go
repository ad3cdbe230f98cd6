// Package clock samples the minute-of-hour that stamps every packet and
// decides whether a stamped packet is still fresh.
package clock

import (
	"sync/atomic"
	"time"
)

// MinutesPerHour is the modulus of packet minute stamps.
const MinutesPerHour = 60

// Clock reports the current minute-of-hour (0-59).
type Clock interface {
	Minute() uint8
}

// System reads the local wall clock.
type System struct{}

func (System) Minute() uint8 { return uint8(time.Now().Minute()) }

// Manual is a settable clock for tests and simulations.
type Manual struct {
	m atomic.Uint32
}

// NewManual returns a Manual clock at minute m.
func NewManual(m uint8) *Manual {
	c := &Manual{}
	c.Set(m)
	return c
}

func (c *Manual) Minute() uint8 { return uint8(c.m.Load()) }

// Set moves the clock to minute m (taken modulo 60).
func (c *Manual) Set(m uint8) { c.m.Store(uint32(m) % MinutesPerHour) }

// Advance moves the clock forward by n minutes, wrapping at the hour.
func (c *Manual) Advance(n int) {
	c.Set(uint8(mod(int(c.Minute())+n, MinutesPerHour)))
}

// ValidMinute reports whether a packet whose stamp differs from the current
// minute by diff is fresh: same minute, or exactly one minute behind.
func ValidMinute(diff int) bool {
	return diff == 0 || mod(diff+1, MinutesPerHour) == 0
}

// Fresh reports whether a packet stamped at origin is valid at minute now.
func Fresh(origin, now uint8) bool {
	return ValidMinute(int(origin) - int(now))
}

func mod(a, n int) int {
	r := a % n
	if r < 0 {
		r += n
	}
	return r
}
