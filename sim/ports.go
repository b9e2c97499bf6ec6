package sim

import (
	"github.com/pkg/errors"

	"github.com/inference-sim/cpsim/sim/trace"
)

// route is one connection of an Output, in connection order.
type route[T any] struct {
	deliver func(cx *Context, v T) error
}

// Output is a broadcast port. A value sent on it reaches every connected
// sink, in connection order, before Send returns. It is sealed by the Init of
// the simulation its owning model is registered with, or by its first Send.
//
// Outputs are shared by pointer: a model may hand the same *Output to a
// helper and both broadcast to the same sinks. The zero value is an
// unconnected output.
type Output[T any] struct {
	routes []route[T]
	sealed bool
}

// NewOutput creates an unconnected output.
func NewOutput[T any]() *Output[T] {
	return &Output[T]{}
}

// Len returns the number of connections.
func (o *Output[T]) Len() int { return len(o.routes) }

// Connect delivers every value sent on o to the event handler fn of the model
// at addr.
func Connect[M, T any](o *Output[T], fn EventFn[M, T], addr Address[M]) error {
	return ConnectMap(o, func(v T) T { return v }, fn, addr)
}

// ConnectMap is like Connect but converts each value with mapFn first.
func ConnectMap[M, T, U any](o *Output[T], mapFn func(T) U, fn EventFn[M, U], addr Address[M]) error {
	mb := addr.core()
	if err := o.checkWiring(mb); err != nil {
		return err
	}
	o.routes = append(o.routes, route[T]{deliver: func(cx *Context, v T) error {
		u := mapFn(v)
		return cx.sim.deliverEvent(mb, delivery{source: cx.Name(), payload: u, run: bindEvent(mb, fn, u)})
	}})
	return nil
}

// ConnectSink stores every value sent on o into sink.
func (o *Output[T]) ConnectSink(sink Sink[T]) error {
	if sink == nil {
		return errors.New("nil sink")
	}
	if o.sealed {
		return errors.Wrap(ErrLatePortConnection, "connect sink")
	}
	o.routes = append(o.routes, route[T]{deliver: func(_ *Context, v T) error {
		sink.Put(v)
		return nil
	}})
	return nil
}

func (o *Output[T]) checkWiring(mb *mailbox) error {
	if mb == nil {
		return errors.New("connect: zero address")
	}
	if o.sealed || mb.sealed() {
		return errors.Wrapf(ErrLatePortConnection, "connect to %q", mb.name)
	}
	return nil
}

// Timed is a value together with the instant it was broadcast.
type Timed[T any] struct {
	At    Time
	Value T
}

// ConnectTimedSink is like ConnectSink but stamps each value with the
// virtual time of its broadcast.
func (o *Output[T]) ConnectTimedSink(sink Sink[Timed[T]]) error {
	if sink == nil {
		return errors.New("nil sink")
	}
	if o.sealed {
		return errors.Wrap(ErrLatePortConnection, "connect timed sink")
	}
	o.routes = append(o.routes, route[T]{deliver: func(cx *Context, v T) error {
		sink.Put(Timed[T]{At: cx.Now(), Value: v})
		return nil
	}})
	return nil
}

func (o *Output[T]) seal() { o.sealed = true }

// Send broadcasts v to every connected sink. Sending on an output with no
// connections is a no-op. The output is sealed from its first send on, so a
// handler reached by this broadcast cannot rewire it.
func (o *Output[T]) Send(cx *Context, v T) error {
	if cx == nil {
		return errors.Wrap(ErrNotInitialized, "send outside of a handler")
	}
	o.sealed = true
	cx.sim.emit(trace.KindBroadcast, cx.Name(), "", v)
	for _, r := range o.routes {
		if err := r.deliver(cx, v); err != nil {
			return err
		}
	}
	return nil
}

// Requestor is a call port bound to exactly one query handler. Send suspends
// the calling handler until the destination has replied. The zero value is
// an unconnected requestor.
type Requestor[T, R any] struct {
	call   func(cx *Context, in T) (R, error)
	target *mailbox
	sealed bool
}

// NewRequestor creates a requestor bound to the query handler fn of the model
// at addr.
func NewRequestor[M, T, R any](fn QueryFn[M, T, R], addr Address[M]) *Requestor[T, R] {
	rq := &Requestor[T, R]{}
	if mb := addr.core(); mb != nil {
		bindRequestor(rq, fn, mb)
	}
	return rq
}

// ConnectRequestor binds an unconnected requestor to the query handler fn of
// the model at addr.
func ConnectRequestor[M, T, R any](rq *Requestor[T, R], fn QueryFn[M, T, R], addr Address[M]) error {
	mb := addr.core()
	switch {
	case mb == nil:
		return errors.New("connect requestor: zero address")
	case rq.sealed || mb.sealed():
		return errors.Wrapf(ErrLatePortConnection, "connect requestor to %q", mb.name)
	case rq.call != nil:
		return errors.Wrapf(ErrPortAlreadyConnected, "requestor already bound to %q", rq.target.name)
	}
	bindRequestor(rq, fn, mb)
	return nil
}

func bindRequestor[M, T, R any](rq *Requestor[T, R], fn QueryFn[M, T, R], mb *mailbox) {
	rq.target = mb
	rq.call = func(cx *Context, in T) (R, error) {
		return deliverQuery(cx.sim, cx, mb, in, bindQuery(mb, fn, in))
	}
}

func (rq *Requestor[T, R]) seal() { rq.sealed = true }

// IsConnected reports whether the requestor has a destination.
func (rq *Requestor[T, R]) IsConnected() bool { return rq.call != nil }

// Send issues a request and returns the destination's reply, suspending the
// calling handler while a busy destination finishes its current work. It
// fails with ErrUnresolvedQuery if the requestor is not connected and with
// ErrSelfReferentialQuery if the destination is the caller or is itself
// awaiting the caller through its pending requests.
func (rq *Requestor[T, R]) Send(cx *Context, in T) (R, error) {
	var zero R
	if cx == nil {
		return zero, errors.Wrap(ErrNotInitialized, "request outside of a handler")
	}
	rq.sealed = true
	if rq.call == nil {
		return zero, cx.sim.fail(errors.Wrapf(ErrUnresolvedQuery, "model %q: requestor not connected", cx.Name()))
	}
	return rq.call(cx, in)
}

// MultiRequestor is a call port connected to any number of query handlers.
// Send asks each destination in connection order and collects one reply per
// destination. With no connections Send replies with nothing.
type MultiRequestor[T, R any] struct {
	calls  []func(cx *Context, in T) (R, error)
	sealed bool
}

// NewMultiRequestor creates an unconnected multi-destination requestor.
func NewMultiRequestor[T, R any]() *MultiRequestor[T, R] {
	return &MultiRequestor[T, R]{}
}

// ConnectMulti adds the query handler fn of the model at addr as a
// destination of rq.
func ConnectMulti[M, T, R any](rq *MultiRequestor[T, R], fn QueryFn[M, T, R], addr Address[M]) error {
	mb := addr.core()
	switch {
	case mb == nil:
		return errors.New("connect requestor: zero address")
	case rq.sealed || mb.sealed():
		return errors.Wrapf(ErrLatePortConnection, "connect requestor to %q", mb.name)
	}
	rq.calls = append(rq.calls, func(cx *Context, in T) (R, error) {
		return deliverQuery(cx.sim, cx, mb, in, bindQuery(mb, fn, in))
	})
	return nil
}

// Len returns the number of destinations.
func (rq *MultiRequestor[T, R]) Len() int { return len(rq.calls) }

func (rq *MultiRequestor[T, R]) seal() { rq.sealed = true }

// Send asks every destination in turn, each one resolving before the next is
// asked, and returns the replies in connection order.
func (rq *MultiRequestor[T, R]) Send(cx *Context, in T) ([]R, error) {
	if cx == nil {
		return nil, errors.Wrap(ErrNotInitialized, "request outside of a handler")
	}
	rq.sealed = true
	replies := make([]R, 0, len(rq.calls))
	for _, call := range rq.calls {
		r, err := call(cx, in)
		if err != nil {
			return nil, err
		}
		replies = append(replies, r)
	}
	return replies, nil
}
