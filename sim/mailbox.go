package sim

// mailbox is the kernel's untyped view of a registered model: its state, its
// private environment and the events parked while one of its handlers runs.
type mailbox struct {
	name  string
	model any
	env   any

	owner *SimInit    // set by Register
	sim   *Simulation // set by Init; nil once the simulation is closed

	// busy is true from the moment a handler of this model starts until its
	// inbox is empty, including while a handler is suspended on a reply.
	busy  bool
	inbox []delivery
	// awaiting is the model whose reply the active handler is waiting for.
	awaiting *mailbox
}

// delivery is an event or query bound to its target model, waiting to run.
type delivery struct {
	source  string
	payload any
	run     func(cx *Context) error
	reply   *pendingReply // queries only
}

// pendingReply tracks a query from issue to resolution.
type pendingReply struct {
	resolved bool
	waiter   *task // caller suspended until resolved
}

// next pops the oldest parked delivery.
func (mb *mailbox) next() (delivery, bool) {
	if len(mb.inbox) == 0 {
		return delivery{}, false
	}
	d := mb.inbox[0]
	mb.inbox[0] = delivery{}
	mb.inbox = mb.inbox[1:]
	return d, true
}

// reset drops all dispatch state left by an aborted stimulus.
func (mb *mailbox) reset() {
	mb.busy = false
	mb.inbox = nil
	mb.awaiting = nil
}

// sealed reports whether ports may no longer be wired to this mailbox.
func (mb *mailbox) sealed() bool {
	return mb.sim != nil || (mb.owner != nil && mb.owner.initialized)
}

// Mailbox is the inbound delivery point of one model. Create it before the
// model is wired, hand out its Address to ports and register both with a
// SimInit.
type Mailbox[M any] struct {
	core mailbox
}

// NewMailbox creates an empty, unregistered mailbox.
func NewMailbox[M any]() *Mailbox[M] {
	return &Mailbox[M]{}
}

// Address returns a handle to this mailbox.
func (mb *Mailbox[M]) Address() Address[M] {
	return Address[M]{mb: mb}
}

// Address is a lightweight, copyable, non-owning reference to a Mailbox.
// The zero Address refers to no mailbox.
type Address[M any] struct {
	mb *Mailbox[M]
}

// Name returns the name the target model was registered under, or "" if it
// is not registered yet.
func (a Address[M]) Name() string {
	if a.mb == nil {
		return ""
	}
	return a.mb.core.name
}

// IsZero reports whether a refers to no mailbox.
func (a Address[M]) IsZero() bool { return a.mb == nil }

func (a Address[M]) core() *mailbox {
	if a.mb == nil {
		return nil
	}
	return &a.mb.core
}

func (mb *Mailbox[M]) registered() *mailbox {
	if mb == nil {
		return nil
	}
	return &mb.core
}
