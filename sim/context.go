package sim

import (
	"time"

	"github.com/pkg/errors"
)

// Context is handed to every handler and init hook. It gives read access to
// the virtual clock and lets the model schedule events on itself. A Context
// is only valid for the duration of the call it was passed to.
type Context struct {
	sim  *Simulation
	mb   *mailbox
	task *task
}

// Now returns the current virtual time.
func (cx *Context) Now() Time {
	return cx.sim.clock.Now()
}

// Name returns the name the model was registered under.
func (cx *Context) Name() string {
	return cx.mb.name
}

// ScheduleEvent schedules fn(in) on the calling model at instant at.
// It fails with ErrPastScheduling if at is before the current time.
func ScheduleEvent[M, T any](cx *Context, at Time, fn EventFn[M, T], in T) (*ActionKey, error) {
	return scheduleOnSelf(cx, at, 0, fn, in)
}

// SchedulePeriodicEvent schedules fn(in) on the calling model at instant at
// and then every period until the returned key is cancelled.
func SchedulePeriodicEvent[M, T any](cx *Context, at Time, period time.Duration, fn EventFn[M, T], in T) (*ActionKey, error) {
	if period <= 0 {
		return nil, errors.Wrapf(ErrInvalidPeriod, "model %q: period %s must be positive", cx.Name(), period)
	}
	return scheduleOnSelf(cx, at, period, fn, in)
}

func scheduleOnSelf[M, T any](cx *Context, at Time, period time.Duration, fn EventFn[M, T], in T) (*ActionKey, error) {
	if _, ok := cx.mb.model.(M); !ok {
		var zero M
		return nil, errors.Wrapf(ErrModelMismatch, "model %q is %T, handler is for %T", cx.Name(), cx.mb.model, zero)
	}
	return cx.sim.schedule(at, period, cx.mb, cx.Name(), in, bindEvent(cx.mb, fn, in))
}

// bindEvent closes fn and its input over the target mailbox. The model is
// looked up at run time so the handler always sees the live instance.
func bindEvent[M, T any](mb *mailbox, fn EventFn[M, T], in T) func(cx *Context) error {
	return func(cx *Context) error {
		return fn(mb.model.(M), in, cx)
	}
}
