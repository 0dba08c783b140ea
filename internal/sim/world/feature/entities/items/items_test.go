package items

import (
	"testing"

	modelpkg "dyewash.ai/internal/sim/world/kernel/model"
)

func loader(m map[string]Entry) func(string) (Entry, bool) {
	return func(s string) (Entry, bool) {
		e, ok := m[s]
		return e, ok
	}
}

func TestFindMergeTarget(t *testing.T) {
	m := map[string]Entry{
		"I1": {ID: "I1", Item: "RED_WOOL", Count: 2},
		"I2": {ID: "I2", Item: "BLUE_WOOL", Count: 1},
		"I3": {ID: "I3", Item: "RED_WOOL", Count: 63},
	}
	id, ok := FindMergeTarget([]string{"I3", "I2", "I1"}, "RED_WOOL", 4, 64, loader(m))
	if !ok || id != "I1" {
		t.Fatalf("expected merge target I1, got %q ok=%v", id, ok)
	}
	if _, ok := FindMergeTarget([]string{"I3"}, "RED_WOOL", 2, 64, loader(m)); ok {
		t.Fatalf("full stack should not accept more")
	}
}

func TestPlanMerges(t *testing.T) {
	m := map[string]Entry{
		"A": {ID: "A", Item: "RED_WOOL", Count: 40},
		"B": {ID: "B", Item: "RED_WOOL", Count: 20},
		"C": {ID: "C", Item: "RED_WOOL", Count: 10},
		"D": {ID: "D", Item: "GLASS", Count: 3},
		"E": {ID: "E", Item: "GLASS", Count: 3},
	}
	got := PlanMerges([]string{"A", "B", "C", "D", "E"}, 64, loader(m))
	if len(got) != 2 {
		t.Fatalf("expected 2 merges, got %+v", got)
	}
	if got[0].SourceID != "B" || got[0].TargetID != "A" || got[0].Count != 20 {
		t.Fatalf("merge 0: %+v", got[0])
	}
	// A now holds 60, so C (10) stays on its own and D takes E.
	if got[1].SourceID != "E" || got[1].TargetID != "D" {
		t.Fatalf("merge 1: %+v", got[1])
	}
}

func TestRemoveID(t *testing.T) {
	got := RemoveID([]string{"A", "B", "C"}, "B")
	if len(got) != 2 || got[0] != "A" || got[1] != "C" {
		t.Fatalf("unexpected ids: %#v", got)
	}
}

func TestSortedExpired(t *testing.T) {
	m := map[string]Entry{
		"I2": {ID: "I2", ExpiresTick: 10},
		"I1": {ID: "I1", ExpiresTick: 11},
	}
	exp := SortedExpired([]string{"I1", "I2"}, loader(m), 10)
	if len(exp) != 1 || exp[0] != "I2" {
		t.Fatalf("unexpected expired ids: %#v", exp)
	}
}

func newStore(ttl uint64) (Store, *[]string) {
	var actions []string
	return Store{
		ByID:  map[string]*modelpkg.ItemEntity{},
		ByPos: map[modelpkg.Vec3i][]string{},
		TTL:   ttl,
		Audit: func(_ uint64, _, action string, _ modelpkg.Vec3i, _ string, _ map[string]any) {
			actions = append(actions, action)
		},
	}, &actions
}

func TestStore_SpawnMoveRemoveKeepIndexes(t *testing.T) {
	s, actions := newStore(100)
	a := modelpkg.Vec3i{X: 1}
	b := modelpkg.Vec3i{X: 2}

	e := s.Spawn(5, "steve", "I1", a, "RED_WOOL", 3, "DROP")
	if e == nil || e.ExpiresTick != 105 || e.DroppedBy != "steve" {
		t.Fatalf("spawned: %+v", e)
	}
	if s.Spawn(5, "steve", "I1", a, "RED_WOOL", 1, "DROP") != nil {
		t.Fatalf("duplicate id should not spawn")
	}
	if s.Move(6, "steve", "I1", a, "HOST") {
		t.Fatalf("move onto own position should be refused")
	}
	if !s.Move(6, "steve", "I1", b, "HOST") {
		t.Fatalf("move failed")
	}
	if _, ok := s.ByPos[a]; ok || len(s.ByPos[b]) != 1 {
		t.Fatalf("position index after move: %+v", s.ByPos)
	}
	if s.Remove(7, "steve", "I1", "PICKUP") == nil || len(s.ByID) != 0 || len(s.ByPos) != 0 {
		t.Fatalf("remove left state behind: %+v %+v", s.ByID, s.ByPos)
	}
	want := []string{"ITEM_SPAWN", "ITEM_MOVE", "ITEM_DESPAWN"}
	if len(*actions) != len(want) {
		t.Fatalf("audit actions: %v", *actions)
	}
	for i := range want {
		if (*actions)[i] != want[i] {
			t.Fatalf("audit actions: %v", *actions)
		}
	}
}

func TestStore_MergeExtendsExpiry(t *testing.T) {
	s, _ := newStore(100)
	p := modelpkg.Vec3i{Y: 64}
	s.Spawn(0, "a", "I1", p, "GLASS", 4, "DROP")
	s.Spawn(50, "a", "I2", p, "GLASS", 4, "DROP")
	s.Spawn(50, "a", "I3", p, "RED_WOOL", 1, "DROP")

	got := s.Merge(60, 64)
	if len(got) != 1 || got[0].SourceID != "I2" || got[0].TargetID != "I1" {
		t.Fatalf("merges: %+v", got)
	}
	tgt := s.ByID["I1"]
	if tgt.Count != 8 || tgt.ExpiresTick != 160 {
		t.Fatalf("target: %+v", *tgt)
	}
	if len(s.ByPos[p]) != 2 {
		t.Fatalf("position index: %v", s.ByPos[p])
	}
	if exp := s.Expired(159); len(exp) != 1 || exp[0] != "I3" {
		t.Fatalf("expired at 159: %v", exp)
	}
	if exp := s.Expired(160); len(exp) != 2 || exp[0] != "I1" {
		t.Fatalf("expired at 160: %v", exp)
	}
}
