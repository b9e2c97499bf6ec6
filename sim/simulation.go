package sim

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/inference-sim/cpsim/sim/trace"
)

// externalSource names the harness as the origin of injected stimuli.
const externalSource = "external"

// State is the lifecycle state of a simulation.
type State int

const (
	StateUninitialized State = iota
	StateInitialized
	StateRunning
	StateTerminated
)

func (st State) String() string {
	switch st {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateRunning:
		return "running"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("State(%d)", int(st))
	}
}

// Simulation is an initialized set of models driven by external stimuli.
// All methods must be called from a single goroutine.
//
// If a stimulus fails part-way through dispatch, it returns the error and the
// simulation stays usable: handlers still suspended are abandoned and events
// parked on busy models are dropped, but events already scheduled by the
// failed stimulus may or may not still be on the event queue.
type Simulation struct {
	clock  Clock
	queue  eventQueue
	models []*mailbox
	state  State

	recorder trace.Recorder
	traceSeq uint64

	inStimulus bool
	fault      error
	live       []*task
}

// Time returns the current virtual time.
func (s *Simulation) Time() Time { return s.clock.Now() }

// State returns the lifecycle state.
func (s *Simulation) State() State { return s.state }

// Pending returns the number of entries on the event queue, including
// cancelled entries not yet discarded.
func (s *Simulation) Pending() int { return s.queue.len() }

// NextEventTime returns the due time of the earliest live scheduled event.
func (s *Simulation) NextEventTime() (Time, bool) {
	top := s.queue.peek()
	if top == nil {
		return 0, false
	}
	return top.at, true
}

// ProcessEvent runs fn(in) on the model at addr at the current instant,
// together with everything it causally triggers at that instant.
func ProcessEvent[M, T any](s *Simulation, fn EventFn[M, T], in T, addr Address[M]) error {
	return s.stimulus("process event", func() error {
		mb := addr.core()
		if err := s.deliverEvent(mb, delivery{source: externalSource, payload: in, run: bindEvent(mb, fn, in)}); err != nil {
			return err
		}
		return s.runUntil(s.clock.Now())
	})
}

// ProcessQuery runs query fn(in) on the model at addr at the current instant
// and returns its reply once it and everything it triggered have resolved.
func ProcessQuery[M, T, R any](s *Simulation, fn QueryFn[M, T, R], in T, addr Address[M]) (R, error) {
	var reply R
	err := s.stimulus("process query", func() error {
		mb := addr.core()
		r, err := deliverQuery(s, nil, mb, in, bindQuery(mb, fn, in))
		if err != nil {
			return err
		}
		reply = r
		return s.runUntil(s.clock.Now())
	})
	if err != nil {
		var zero R
		return zero, err
	}
	return reply, nil
}

// Schedule places fn(in) for the model at addr on the event queue at instant at.
func Schedule[M, T any](s *Simulation, at Time, fn EventFn[M, T], in T, addr Address[M]) (*ActionKey, error) {
	if s.state == StateTerminated {
		return nil, errors.Wrap(ErrTerminated, "schedule")
	}
	mb := addr.core()
	if mb == nil || mb.sim != s {
		return nil, errors.Wrap(ErrNoRecipient, "schedule")
	}
	return s.schedule(at, 0, mb, externalSource, in, bindEvent(mb, fn, in))
}

// StepUntil dispatches, in (time, insertion) order, every event due at or
// before t and then sets the clock to t. It fails with ErrPastScheduling,
// leaving the clock unchanged, if t is before the current time.
func (s *Simulation) StepUntil(t Time) error {
	return s.stimulus("step until", func() error {
		if t < s.clock.Now() {
			return s.fail(errors.Wrapf(ErrPastScheduling, "step target %s is before clock %s", t, s.clock.Now()))
		}
		return s.runUntil(t)
	})
}

// StepBy advances the clock by d, see StepUntil.
func (s *Simulation) StepBy(d time.Duration) error {
	return s.StepUntil(s.clock.Now().Add(d))
}

// Step advances the clock to the next scheduled instant and dispatches every
// event due then. It is a no-op if the event queue is empty.
func (s *Simulation) Step() error {
	return s.stimulus("step", func() error {
		next := s.queue.peek()
		if next == nil {
			return nil
		}
		return s.runUntil(next.at)
	})
}

// Close terminates the simulation and releases every model. No stimulus may
// be issued afterwards.
func (s *Simulation) Close() error {
	if s.inStimulus {
		return errors.Wrap(ErrStimulusInProgress, "close")
	}
	if s.state == StateTerminated {
		return nil
	}
	s.state = StateTerminated
	s.queue.clear()
	s.reset()
	for _, mb := range s.models {
		mb.sim = nil
		mb.model = nil
		mb.env = nil
		mb.inbox = nil
	}
	logrus.Infof("[t %s] Simulation terminated", s.clock.Now())
	return nil
}

// stimulus runs fn as one externally triggered unit of work. Any error raised
// during dispatch, even one a handler chose to ignore, aborts the stimulus.
func (s *Simulation) stimulus(name string, fn func() error) error {
	switch {
	case s.state == StateTerminated:
		return errors.Wrap(ErrTerminated, name)
	case s.state == StateUninitialized:
		return errors.Wrap(ErrNotInitialized, name)
	case s.inStimulus:
		return errors.Wrap(ErrStimulusInProgress, name)
	}

	s.inStimulus = true
	s.fault = nil
	err := fn()
	if err == nil && s.fault == nil && len(s.live) > 0 {
		err = s.fail(errors.Wrapf(ErrUnresolvedQuery, "%d handler(s) still awaiting a reply", len(s.live)))
	}
	s.inStimulus = false
	if s.fault != nil {
		err = s.fault
	}
	s.fault = nil
	if err != nil {
		s.reset()
		logrus.Warnf("[t %s] %s aborted: %v", s.clock.Now(), name, err)
		return err
	}
	if name != stimulusInit {
		s.state = StateRunning
	}
	return nil
}

// reset abandons every suspended handler and clears what the models had
// parked, so nothing from an aborted stimulus leaks into the next one.
func (s *Simulation) reset() {
	for len(s.live) > 0 {
		t := s.live[0]
		t.abandon()
		s.retire(t)
	}
	for _, mb := range s.models {
		mb.reset()
	}
}

// fail records err as the fault of the current stimulus and returns it.
func (s *Simulation) fail(err error) error {
	if s.fault == nil {
		s.fault = err
	}
	return err
}

func (s *Simulation) schedule(at Time, period time.Duration, mb *mailbox, source string, payload any, run func(cx *Context) error) (*ActionKey, error) {
	if at < s.clock.Now() {
		return nil, s.failIfRunning(errors.Wrapf(ErrPastScheduling, "event for %q due at %s, clock is %s", mb.name, at, s.clock.Now()))
	}
	key := &ActionKey{sim: s, target: mb.name}
	s.queue.push(&action{
		at:       at,
		target:   mb,
		delivery: delivery{source: source, payload: payload, run: run},
		period:   period,
		key:      key,
	})
	s.emit(trace.KindSchedule, source, mb.name, payload)
	logrus.Debugf("[t %s] %s scheduled %T for %s at %s", s.clock.Now(), source, payload, mb.name, at)
	return key, nil
}

// failIfRunning records err as a fault only when raised during dispatch;
// scheduling errors outside a stimulus are returned to the caller alone.
func (s *Simulation) failIfRunning(err error) error {
	if s.inStimulus {
		return s.fail(err)
	}
	return err
}

// runUntil pops and dispatches every live action due at or before t, then
// moves the clock to t.
func (s *Simulation) runUntil(t Time) error {
	for {
		a := s.queue.popDue(t)
		if a == nil {
			break
		}
		if err := s.clock.advance(a.at); err != nil {
			return s.fail(err)
		}
		err := s.deliverEvent(a.target, a.delivery)
		if a.period > 0 && !a.key.cancelled && s.state != StateTerminated {
			a.at = a.at.Add(a.period)
			s.queue.push(a)
		}
		if err != nil {
			return err
		}
	}
	return s.clock.advance(t)
}

// deliverEvent runs d on mb now, or parks it in mb's inbox if mb is busy;
// parked deliveries run in arrival order once mb's active handler finishes.
func (s *Simulation) deliverEvent(mb *mailbox, d delivery) error {
	if s.fault != nil {
		return s.fault
	}
	if mb == nil || mb.sim != s {
		return s.fail(errors.Wrapf(ErrNoRecipient, "event %T from %q", d.payload, d.source))
	}
	if mb.busy {
		s.park(mb, d)
		return nil
	}
	return s.activate(mb, d)
}

func (s *Simulation) park(mb *mailbox, d delivery) {
	mb.inbox = append(mb.inbox, d)
	s.emit(trace.KindDeferred, d.source, mb.name, d.payload)
}

// activate marks the idle mb busy and runs d on it.
func (s *Simulation) activate(mb *mailbox, d delivery) error {
	mb.busy = true
	return s.drive(s.start(mb, d))
}

func (s *Simulation) start(mb *mailbox, d delivery) *task {
	if d.reply == nil {
		s.emit(trace.KindEvent, d.source, mb.name, d.payload)
		logrus.Debugf("[t %s] %s -> %s %T", s.clock.Now(), d.source, mb.name, d.payload)
	}
	return s.spawn(mb, d)
}

// drive runs t until it finishes or suspends. When a handler finishes, the
// caller awaiting its reply, if suspended, is resumed first, then the next
// delivery parked on the same model runs. A model stays busy until its inbox
// is empty or one of its handlers suspends.
func (s *Simulation) drive(t *task) error {
	for {
		t.resume()
		if !t.finished {
			return nil
		}
		s.retire(t)
		if t.err != nil {
			return t.err
		}
		if p := t.d.reply; p != nil {
			p.resolved = true
			if p.waiter != nil {
				if err := s.drive(p.waiter); err != nil {
					return err
				}
			}
		}
		mb := t.mb
		d, ok := mb.next()
		if !ok {
			mb.busy = false
			return nil
		}
		t = s.start(mb, d)
	}
}

// deliverQuery runs a query handler of mb and returns its reply. cx is the
// calling handler's context, or nil for a query injected by the harness.
//
// An idle destination answers at once. A busy one answers after its active
// handler and the deliveries parked before this query; meanwhile the caller
// is suspended. A query that would wait on itself, because the destination
// is the caller or is awaiting the caller through its own pending requests,
// fails with ErrSelfReferentialQuery.
func deliverQuery[R any](s *Simulation, cx *Context, mb *mailbox, payload any, body func(cx *Context) (R, error)) (R, error) {
	var zero R
	source := externalSource
	var caller *mailbox
	if cx != nil {
		source, caller = cx.Name(), cx.mb
	}
	if s.fault != nil {
		return zero, s.fault
	}
	if mb == nil || mb.sim != s {
		return zero, s.fail(errors.Wrapf(ErrUnresolvedQuery, "query %T from %q: destination not registered in this simulation", payload, source))
	}
	if caller != nil {
		if path, ok := requestCycle(caller, mb); ok {
			return zero, s.fail(errors.Wrapf(ErrSelfReferentialQuery, "%s at %s", path, s.clock.Now()))
		}
	}

	var reply R
	p := &pendingReply{}
	d := delivery{source: source, payload: payload, reply: p, run: func(cx *Context) error {
		var err error
		reply, err = body(cx)
		return err
	}}
	s.emit(trace.KindQuery, source, mb.name, payload)
	logrus.Debugf("[t %s] %s ?> %s %T", s.clock.Now(), source, mb.name, payload)

	if caller != nil {
		caller.awaiting = mb
		defer func() { caller.awaiting = nil }()
	}
	if mb.busy {
		s.park(mb, d)
	} else if err := s.activate(mb, d); err != nil {
		return zero, err
	}
	if !p.resolved {
		if cx == nil {
			return zero, s.fail(errors.Wrapf(ErrUnresolvedQuery, "query %T to %q never replied", payload, mb.name))
		}
		p.waiter = cx.task
		cx.task.suspend()
		if s.fault != nil {
			return zero, s.fault
		}
	}
	s.emit(trace.KindReply, mb.name, source, reply)
	return reply, nil
}

// requestCycle reports whether a request from caller to callee would wait on
// itself, and renders the cycle starting at callee, e.g. "A -> B -> A".
func requestCycle(caller, callee *mailbox) (string, bool) {
	names := []string{callee.name}
	for m := callee; m != caller; m = m.awaiting {
		if m.awaiting == nil {
			return "", false
		}
		names = append(names, m.awaiting.name)
	}
	return strings.Join(append(names, callee.name), " -> "), true
}

func bindQuery[M, T, R any](mb *mailbox, fn QueryFn[M, T, R], in T) func(cx *Context) (R, error) {
	return func(cx *Context) (R, error) {
		return fn(mb.model.(M), in, cx)
	}
}

func (s *Simulation) emit(kind trace.Kind, source, target string, payload any) {
	if s.recorder == nil {
		return
	}
	s.traceSeq++
	r := trace.Record{
		Seq:    s.traceSeq,
		Time:   int64(s.clock.Now()),
		Kind:   kind,
		Source: source,
		Target: target,
	}
	if payload != nil {
		r.Payload = fmt.Sprintf("%+v", payload)
	}
	s.recorder.Record(r)
}
