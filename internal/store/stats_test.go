package store

import (
	"math"
	"testing"

	"github.com/quietfold/retain/internal/lifecycle"
)

func TestAggregateSnapshotEmpty(t *testing.T) {
	db := testDB(t)

	snap, err := db.AggregateSnapshot()
	if err != nil {
		t.Fatalf("AggregateSnapshot: %v", err)
	}
	if snap.Total != 0 {
		t.Errorf("total = %d, want 0", snap.Total)
	}
	if snap.AvgDecay != 0 {
		t.Errorf("avg decay = %v, want 0", snap.AvgDecay)
	}
}

func TestAggregateSnapshot(t *testing.T) {
	db := testDB(t)

	a := mustCreate(t, db, &MemoryItem{Category: "patterns", Importance: 0.8, Stability: 2})
	b := mustCreate(t, db, &MemoryItem{Category: "events", Importance: 0.4})
	purged := mustCreate(t, db, &MemoryItem{Category: "events", Importance: 1.0})

	if err := db.WriteDecayAndState(a.ID, 0.9, lifecycle.Active, 0); err != nil {
		t.Fatalf("write a: %v", err)
	}
	if err := db.WriteDecayAndState(b.ID, 0.3, lifecycle.Dormant, 0); err != nil {
		t.Fatalf("write b: %v", err)
	}
	if err := db.WriteDecayAndState(purged.ID, 0, lifecycle.Purged, 0); err != nil {
		t.Fatalf("write purged: %v", err)
	}

	snap, err := db.AggregateSnapshot()
	if err != nil {
		t.Fatalf("AggregateSnapshot: %v", err)
	}

	if snap.Total != 2 {
		t.Errorf("total = %d, want 2 (purged excluded)", snap.Total)
	}
	if math.Abs(snap.AvgDecay-0.6) > 1e-9 {
		t.Errorf("avg decay = %v, want 0.6", snap.AvgDecay)
	}
	if math.Abs(snap.AvgImportance-0.6) > 1e-9 {
		t.Errorf("avg importance = %v, want 0.6", snap.AvgImportance)
	}
	if math.Abs(snap.AvgStability-1.0) > 1e-9 {
		t.Errorf("avg stability = %v, want 1.0", snap.AvgStability)
	}

	counts := map[string]int{}
	for _, sc := range snap.StateCounts {
		counts[sc.State+"/"+sc.Category] += sc.Count
	}
	if counts["active/patterns"] != 1 {
		t.Errorf("active/patterns = %d, want 1", counts["active/patterns"])
	}
	if counts["dormant/events"] != 1 {
		t.Errorf("dormant/events = %d, want 1", counts["dormant/events"])
	}
	if counts["purged/events"] != 1 {
		t.Errorf("purged/events = %d, want 1 (state counts include purged)", counts["purged/events"])
	}
}
