package trace

import "testing"

func TestSummarize_Empty_ZeroValues(t *testing.T) {
	// GIVEN no records
	// WHEN summarized
	summary := Summarize(nil)

	// THEN all counts are zero and the maps are usable
	if summary.TotalRecords != 0 || summary.UniqueTargets != 0 {
		t.Errorf("expected zero counts, got %+v", summary)
	}
	if len(summary.ByKind) != 0 || len(summary.TargetDistribution) != 0 {
		t.Error("expected empty maps")
	}
}

func TestSummarize_Populated_CorrectCounts(t *testing.T) {
	// GIVEN a run with events, a query and a reply
	records := []Record{
		{Seq: 1, Time: 0, Kind: KindSchedule, Source: "external", Target: "obc"},
		{Seq: 2, Time: 1_000_000_000, Kind: KindEvent, Source: "external", Target: "obc"},
		{Seq: 3, Time: 1_000_000_000, Kind: KindQuery, Source: "sensor", Target: "dynamics"},
		{Seq: 4, Time: 1_000_000_000, Kind: KindReply, Source: "dynamics", Target: "sensor"},
		{Seq: 5, Time: 2_000_000_000, Kind: KindEvent, Source: "obc", Target: "sensor"},
		{Seq: 6, Time: 3_000_000_000, Kind: KindEvent, Source: "obc", Target: "sensor"},
	}

	// WHEN summarized
	summary := Summarize(records)

	// THEN counts and bounds match
	if summary.TotalRecords != 6 {
		t.Errorf("expected 6 records, got %d", summary.TotalRecords)
	}
	if summary.ByKind[KindEvent] != 3 {
		t.Errorf("expected 3 events, got %d", summary.ByKind[KindEvent])
	}
	if summary.UniqueTargets != 3 {
		t.Errorf("expected 3 unique targets, got %d", summary.UniqueTargets)
	}
	if summary.TargetDistribution["sensor"] != 2 {
		t.Errorf("expected 2 activations of sensor, got %d", summary.TargetDistribution["sensor"])
	}
	if summary.FirstTime != 0 || summary.LastTime != 3_000_000_000 {
		t.Errorf("unexpected bounds [%d, %d]", summary.FirstTime, summary.LastTime)
	}
}
