package sim

import "github.com/pkg/errors"

// Kernel error kinds. Every error returned by a stimulus or wiring call wraps
// exactly one of these; test for them with errors.Is.
var (
	// ErrDuplicateAddress is returned when a name or mailbox is registered twice.
	ErrDuplicateAddress = errors.New("duplicate model address")
	// ErrPastScheduling is returned when an event or clock target lies before the current time.
	ErrPastScheduling = errors.New("scheduling in the past")
	// ErrLatePortConnection is returned when a port is wired after it was sealed.
	ErrLatePortConnection = errors.New("port connection after initialization")
	// ErrSelfReferentialQuery is returned when a query would wait on its own
	// caller, directly or through a chain of pending requests.
	ErrSelfReferentialQuery = errors.New("self-referential query")
	// ErrUnresolvedQuery is returned when a query has no destination able to reply.
	ErrUnresolvedQuery = errors.New("unresolved query")

	ErrNoRecipient          = errors.New("no recipient registered for address")
	ErrPortAlreadyConnected = errors.New("port already connected")
	ErrInvalidPeriod        = errors.New("invalid period")
	ErrNotInitialized       = errors.New("simulation not initialized")
	ErrAlreadyInitialized   = errors.New("simulation already initialized")
	ErrTerminated           = errors.New("simulation terminated")
	ErrModelPanic           = errors.New("model panicked")
	ErrModelMismatch        = errors.New("handler does not belong to model")
)

// ErrStimulusInProgress is returned when a stimulus is issued from inside
// another one, e.g. by a handler holding the *Simulation.
var ErrStimulusInProgress = errors.New("stimulus already in progress")
