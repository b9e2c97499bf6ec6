package trace

// TraceLevel controls the verbosity of dispatch tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelDispatch captures handler activations, replies and broadcasts.
	TraceLevelDispatch TraceLevel = "dispatch"
	// TraceLevelAll additionally captures scheduling, cancellation and deferral.
	TraceLevelAll TraceLevel = "all"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:     true,
	TraceLevelDispatch: true,
	TraceLevelAll:      true,
	"":                 true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// Keeps reports whether a record of the given kind is retained at this level.
func (l TraceLevel) Keeps(k Kind) bool {
	switch l {
	case TraceLevelAll:
		return true
	case TraceLevelDispatch:
		return dispatchKinds[k]
	default:
		return false
	}
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level TraceLevel
}

// SimulationTrace collects dispatch records in memory.
type SimulationTrace struct {
	Config  TraceConfig
	Records []Record
}

// NewSimulationTrace creates a SimulationTrace ready for recording.
func NewSimulationTrace(config TraceConfig) *SimulationTrace {
	return &SimulationTrace{
		Config:  config,
		Records: make([]Record, 0),
	}
}

// Record appends r if the configured level keeps its kind.
func (st *SimulationTrace) Record(r Record) {
	if st.Config.Level.Keeps(r.Kind) {
		st.Records = append(st.Records, r)
	}
}

// OfKind returns the records of kind k, in order.
func (st *SimulationTrace) OfKind(k Kind) []Record {
	var out []Record
	for _, r := range st.Records {
		if r.Kind == k {
			out = append(out, r)
		}
	}
	return out
}

type levelFilter struct {
	level TraceLevel
	next  Recorder
}

func (f levelFilter) Record(r Record) {
	if f.level.Keeps(r.Kind) {
		f.next.Record(r)
	}
}

// Filter passes to next only the records kept at level.
func Filter(level TraceLevel, next Recorder) Recorder {
	return levelFilter{level: level, next: next}
}
