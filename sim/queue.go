package sim

import (
	"container/heap"
	"time"

	"github.com/inference-sim/cpsim/sim/trace"
)

// action is an entry of the event queue: an event bound to its target model
// and due at a given instant.
type action struct {
	at     Time
	seq    uint64 // insertion order, FIFO tie-break at equal times
	target *mailbox
	delivery
	period time.Duration // > 0 for periodic actions
	key    *ActionKey
}

// actionQueue is a min-heap ordered by (at, seq).
// Implements heap.Interface.
type actionQueue []*action

func (q actionQueue) Len() int { return len(q) }

func (q actionQueue) Less(i, j int) bool {
	if q[i].at != q[j].at {
		return q[i].at < q[j].at
	}
	return q[i].seq < q[j].seq
}

func (q actionQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *actionQueue) Push(x any) {
	*q = append(*q, x.(*action))
}

func (q *actionQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}

// eventQueue pairs the heap with the sequence counter that stamps every
// insertion.
type eventQueue struct {
	heap    actionQueue
	nextSeq uint64
}

func (eq *eventQueue) push(a *action) {
	eq.nextSeq++
	a.seq = eq.nextSeq
	heap.Push(&eq.heap, a)
}

func (eq *eventQueue) len() int { return eq.heap.Len() }

// peek returns the earliest live action without removing it, discarding
// cancelled actions found at the top.
func (eq *eventQueue) peek() *action {
	for eq.heap.Len() > 0 {
		top := eq.heap[0]
		if top.key != nil && top.key.cancelled {
			heap.Pop(&eq.heap)
			continue
		}
		return top
	}
	return nil
}

// popDue removes and returns the earliest live action due at or before t,
// or nil if there is none.
func (eq *eventQueue) popDue(t Time) *action {
	top := eq.peek()
	if top == nil || top.at > t {
		return nil
	}
	return heap.Pop(&eq.heap).(*action)
}

func (eq *eventQueue) clear() {
	eq.heap = nil
}

// ActionKey identifies a scheduled event and allows cancelling it.
// Cancellation takes effect only if it happens before the event is taken off
// the queue; cancelling a periodic event stops all later occurrences.
type ActionKey struct {
	cancelled bool
	sim       *Simulation
	target    string
}

// Cancel cancels the event. Calling it more than once is harmless.
func (k *ActionKey) Cancel() {
	if k == nil || k.cancelled {
		return
	}
	k.cancelled = true
	if k.sim != nil {
		k.sim.emit(trace.KindCancel, "", k.target, nil)
	}
}

// Cancelled reports whether Cancel was called.
func (k *ActionKey) Cancelled() bool {
	return k != nil && k.cancelled
}
