package trace

// TraceSummary aggregates statistics from a list of records.
type TraceSummary struct {
	TotalRecords       int
	ByKind             map[Kind]int
	UniqueTargets      int
	TargetDistribution map[string]int // model name → activations (events + queries)
	FirstTime          int64
	LastTime           int64
}

// Summarize computes aggregate statistics from records.
// Safe for nil or empty input (returns zero-value fields).
func Summarize(records []Record) *TraceSummary {
	summary := &TraceSummary{
		ByKind:             make(map[Kind]int),
		TargetDistribution: make(map[string]int),
	}
	if len(records) == 0 {
		return summary
	}

	summary.TotalRecords = len(records)
	summary.FirstTime = records[0].Time
	summary.LastTime = records[0].Time
	for _, r := range records {
		summary.ByKind[r.Kind]++
		if r.Kind == KindEvent || r.Kind == KindQuery {
			summary.TargetDistribution[r.Target]++
		}
		if r.Time < summary.FirstTime {
			summary.FirstTime = r.Time
		}
		if r.Time > summary.LastTime {
			summary.LastTime = r.Time
		}
	}
	summary.UniqueTargets = len(summary.TargetDistribution)

	return summary
}
