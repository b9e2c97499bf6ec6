package sim

import (
	"fmt"
	"math"
	"time"

	"github.com/pkg/errors"
)

// Time is an instant on the virtual timeline, in nanoseconds since Epoch.
// It is unrelated to wall-clock time.
type Time int64

// Epoch is the origin of the virtual timeline.
const Epoch Time = 0

// MaxTime is the latest representable instant.
const MaxTime Time = math.MaxInt64

// NewTime builds an instant from whole seconds and a sub-second nanosecond part.
func NewTime(secs int64, nanos int64) (Time, error) {
	if nanos < 0 || nanos >= int64(time.Second) {
		return 0, errors.Errorf("sub-second part %d out of range [0, 1e9)", nanos)
	}
	if secs < 0 || secs > (math.MaxInt64-nanos)/int64(time.Second) {
		return 0, errors.Errorf("seconds %d out of range", secs)
	}
	return Time(secs*int64(time.Second) + nanos), nil
}

// Add returns t+d.
func (t Time) Add(d time.Duration) Time {
	return t + Time(d)
}

// Sub returns the duration t-u.
func (t Time) Sub(u Time) time.Duration {
	return time.Duration(t - u)
}

// Before reports whether t is strictly earlier than u.
func (t Time) Before(u Time) bool { return t < u }

// After reports whether t is strictly later than u.
func (t Time) After(u Time) bool { return t > u }

// Seconds returns t as fractional seconds since Epoch.
func (t Time) Seconds() float64 {
	return float64(t) / float64(time.Second)
}

// String formats t as seconds with nanosecond precision, e.g. "10.000000000s".
func (t Time) String() string {
	secs := int64(t) / int64(time.Second)
	nanos := int64(t) % int64(time.Second)
	return fmt.Sprintf("%d.%09ds", secs, nanos)
}

// Clock holds the current virtual time of a simulation.
// Only the scheduler moves it, and only forward.
type Clock struct {
	now Time
}

// Now returns the current virtual time.
func (c *Clock) Now() Time {
	return c.now
}

// advance moves the clock to t. It fails with ErrPastScheduling and leaves
// the clock unchanged if t is earlier than the current time.
func (c *Clock) advance(t Time) error {
	if t < c.now {
		return errors.Wrapf(ErrPastScheduling, "cannot move clock from %s back to %s", c.now, t)
	}
	c.now = t
	return nil
}
