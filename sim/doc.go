// Package sim provides the deterministic discrete-event kernel of cpsim.
//
// # Reading Guide
//
// Start with these files to understand the kernel:
//   - mailbox.go: Mailbox/Address, the per-model delivery point and its handle
//   - ports.go: Output (ordered fan-out), Requestor (one-to-one call and reply)
//     and MultiRequestor (one reply per destination)
//   - task.go: handler coroutines and suspension
//   - simulation.go: the dispatch loop, stimuli and request/reply resolution
//   - siminit.go: registration, prototypes and initialization
//
// # Execution Model
//
// A simulation has a single logical thread of control. A handler runs to
// completion unless it issues a request, in which case it is suspended until
// the destination's query handler has replied at the same virtual instant.
// Each handler runs on its own goroutine, but control is handed from one to
// the next explicitly, so no two handlers ever run at once.
//
// Events and requests reaching a model whose handler is still active are
// parked in its mailbox and run, in arrival order, as soon as that handler
// returns; a parked request keeps its caller suspended until then. A request
// that would wait on its own caller, directly or through a chain of pending
// requests, fails with ErrSelfReferentialQuery instead of hanging.
//
// Init seals every port held by the registered models: wiring happens before
// the clock starts.
//
// Events on the queue are ordered by due time, then by insertion order, so
// replaying the same stimuli against the same models always produces the same
// outputs.
//
// # Key Types
//
//   - SimInit: collects models before the clock starts
//   - Simulation: ProcessEvent, ProcessQuery, StepUntil, Step, Schedule
//   - Context: current time and self-scheduling inside handlers
//   - EventSlot / EventBuffer: capture sinks for assertions
//
// Model state is exclusively owned by the kernel while a handler runs; models
// must only interact through ports.
package sim
