package sim

import (
	"runtime"

	"github.com/pkg/errors"
)

// task runs one handler invocation on its own goroutine so the handler can be
// suspended while it awaits a reply. Control passes between the dispatcher
// and tasks strictly by handoff, so exactly one of them runs at any time and
// dispatch stays deterministic.
type task struct {
	mb    *mailbox
	d     delivery
	wake  chan bool // true abandons the task
	yield chan struct{}

	finished bool
	err      error
}

// spawn creates a parked task for d on mb. It does not run until resumed.
func (s *Simulation) spawn(mb *mailbox, d delivery) *task {
	t := &task{mb: mb, d: d, wake: make(chan bool), yield: make(chan struct{})}
	s.live = append(s.live, t)
	go t.main(s)
	return t
}

func (t *task) main(s *Simulation) {
	if abandon := <-t.wake; abandon {
		t.finished = true
		t.yield <- struct{}{}
		return
	}
	defer func() {
		if r := recover(); r != nil {
			t.err = s.fail(errors.Wrapf(ErrModelPanic, "model %q: %v", t.mb.name, r))
		}
		t.finished = true
		t.yield <- struct{}{}
	}()
	if err := t.d.run(&Context{sim: s, mb: t.mb, task: t}); err != nil {
		t.err = s.fail(err)
	}
}

// resume hands control to t until it finishes or suspends.
func (t *task) resume() {
	t.wake <- false
	<-t.yield
}

// suspend hands control back to whoever resumed t. It only returns once t is
// resumed again; an abandoned task exits without running any more of its
// handler.
func (t *task) suspend() {
	t.yield <- struct{}{}
	if abandon := <-t.wake; abandon {
		runtime.Goexit()
	}
}

// abandon unwinds a suspended or never started task.
func (t *task) abandon() {
	if t.finished {
		return
	}
	t.wake <- true
	<-t.yield
}

// retire forgets a finished task.
func (s *Simulation) retire(t *task) {
	for i, lt := range s.live {
		if lt == t {
			s.live = append(s.live[:i], s.live[i+1:]...)
			return
		}
	}
}
