// Package trace provides dispatch-trace recording for kernel runs.
// This package has no dependencies on sim/; it stores pure data types.
package trace

// Kind classifies a dispatch record.
type Kind string

const (
	// KindEvent is an event handler activation.
	KindEvent Kind = "event"
	// KindQuery is a query handler activation.
	KindQuery Kind = "query"
	// KindReply is the reply returned by a query handler to its caller.
	KindReply Kind = "reply"
	// KindBroadcast is a value sent on an output port.
	KindBroadcast Kind = "broadcast"
	// KindDeferred is an event parked in a busy model's mailbox.
	KindDeferred Kind = "deferred"
	// KindSchedule is an event placed on the event queue.
	KindSchedule Kind = "schedule"
	// KindCancel is the cancellation of a scheduled event.
	KindCancel Kind = "cancel"
)

// dispatchKinds are the kinds kept at TraceLevelDispatch.
var dispatchKinds = map[Kind]bool{
	KindEvent:     true,
	KindQuery:     true,
	KindReply:     true,
	KindBroadcast: true,
}

// Record captures a single kernel action at a virtual instant.
type Record struct {
	Seq     uint64 `json:"seq"`
	Time    int64  `json:"time_ns"`
	Kind    Kind   `json:"kind"`
	Source  string `json:"source,omitempty"`
	Target  string `json:"target,omitempty"`
	Payload string `json:"payload,omitempty"`
}

// Recorder receives records in dispatch order. Implementations that can fail
// (journals) keep the first error and report it when closed.
type Recorder interface {
	Record(r Record)
}

type multiRecorder []Recorder

func (m multiRecorder) Record(r Record) {
	for _, rec := range m {
		rec.Record(r)
	}
}

// Multi fans records out to every non-nil recorder, in argument order.
func Multi(recorders ...Recorder) Recorder {
	out := make(multiRecorder, 0, len(recorders))
	for _, r := range recorders {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}
