// Package clock provides the injected time-of-day source. Core components
// never call time.Now directly; they take a Clock so tests can pin or
// scale time.
package clock

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Clock reports logical time. Scale is logical seconds per real second:
// 1.0 for wall-clock operation, larger for accelerated test runs.
type Clock interface {
	Now() time.Time
	Scale() float64
}

// RealDelta converts a logical duration to the real duration a timer must
// wait under c's scale.
func RealDelta(c Clock, logical time.Duration) time.Duration {
	s := c.Scale()
	if s <= 0 || s == 1.0 {
		return logical
	}
	return time.Duration(float64(logical) / s)
}

type systemClock struct {
	ck clockwork.Clock
}

// System returns a 1:1 clock backed by ck. A nil ck uses the wall clock.
func System(ck clockwork.Clock) Clock {
	if ck == nil {
		ck = clockwork.NewRealClock()
	}
	return systemClock{ck: ck}
}

func (c systemClock) Now() time.Time { return c.ck.Now() }
func (c systemClock) Scale() float64 { return 1.0 }

type scaledClock struct {
	ck    clockwork.Clock
	base  time.Time
	start time.Time
	scale float64
}

// Scaled returns a clock whose logical time starts at base and advances
// scale times faster than ck. A nil ck uses the wall clock.
func Scaled(ck clockwork.Clock, base time.Time, scale float64) Clock {
	if ck == nil {
		ck = clockwork.NewRealClock()
	}
	if scale <= 0 {
		scale = 1.0
	}
	return scaledClock{ck: ck, base: base, start: ck.Now(), scale: scale}
}

func (c scaledClock) Now() time.Time {
	elapsed := c.ck.Since(c.start)
	return c.base.Add(time.Duration(float64(elapsed) * c.scale))
}

func (c scaledClock) Scale() float64 { return c.scale }
