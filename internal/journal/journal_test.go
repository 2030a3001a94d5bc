package journal

import (
	"testing"

	"github.com/untoldecay/cfaitgo/internal/model"
	"github.com/untoldecay/cfaitgo/internal/paths"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	t.Setenv("CFAIT_TEST_DIR", t.TempDir())
	p, err := paths.Resolve()
	if err != nil {
		t.Fatalf("paths.Resolve: %v", err)
	}
	return New(p)
}

func actionFor(kind model.ActionKind, uid string, seq int) model.Action {
	return model.Action{Kind: kind, Task: &model.Task{UID: uid, Sequence: seq}}
}

func TestPushAndLoadRoundTrip(t *testing.T) {
	s := testStore(t)
	if err := s.Push(actionFor(model.ActionCreate, "u1", 0)); err != nil {
		t.Fatalf("Push: %v", err)
	}
	j := s.Load()
	if len(j.Queue) != 1 {
		t.Fatalf("Queue length = %d, want 1", len(j.Queue))
	}
	if j.Queue[0].Uid() != "u1" {
		t.Errorf("Queue[0].Uid() = %q, want u1", j.Queue[0].Uid())
	}
}

func TestLoadEmptyWhenFileAbsent(t *testing.T) {
	s := testStore(t)
	j := s.Load()
	if !j.IsEmpty() {
		t.Error("expected empty journal when no file has been written")
	}
}

func TestCompactCreateThenUpdateSquashesToCreate(t *testing.T) {
	queue := []model.Action{
		actionFor(model.ActionCreate, "u1", 0),
		actionFor(model.ActionUpdate, "u1", 1),
	}
	out := Compact(queue)
	if len(out) != 1 {
		t.Fatalf("Compact result = %v, want 1 action", out)
	}
	if out[0].Kind != model.ActionCreate {
		t.Errorf("Kind = %v, want ActionCreate", out[0].Kind)
	}
	if out[0].Task.Sequence != 1 {
		t.Errorf("Sequence = %d, want latest payload's 1", out[0].Task.Sequence)
	}
}

func TestCompactCreateThenDeleteErasesBoth(t *testing.T) {
	queue := []model.Action{
		actionFor(model.ActionCreate, "u1", 0),
		actionFor(model.ActionDelete, "u1", 1),
	}
	out := Compact(queue)
	if len(out) != 0 {
		t.Fatalf("Compact result = %v, want empty (create+delete cancels out)", out)
	}
}

func TestCompactUpdateThenDeleteKeepsDelete(t *testing.T) {
	queue := []model.Action{
		actionFor(model.ActionUpdate, "u1", 0),
		actionFor(model.ActionDelete, "u1", 1),
	}
	out := Compact(queue)
	if len(out) != 1 || out[0].Kind != model.ActionDelete {
		t.Fatalf("Compact result = %v, want single Delete", out)
	}
}

func TestCompactPreservesOrderAcrossDistinctUIDs(t *testing.T) {
	queue := []model.Action{
		actionFor(model.ActionCreate, "a", 0),
		actionFor(model.ActionCreate, "b", 0),
		actionFor(model.ActionUpdate, "a", 1),
	}
	out := Compact(queue)
	if len(out) != 2 {
		t.Fatalf("Compact result = %v, want 2 actions", out)
	}
	if out[0].Uid() != "a" || out[1].Uid() != "b" {
		t.Errorf("order = [%s %s], want [a b] (first-occurrence order preserved)", out[0].Uid(), out[1].Uid())
	}
}

func TestCompactMoveIsNeverSquashed(t *testing.T) {
	queue := []model.Action{
		actionFor(model.ActionCreate, "u1", 0),
		{Kind: model.ActionMove, Task: &model.Task{UID: "u1"}, NewCalendarHref: "local://b"},
		actionFor(model.ActionUpdate, "u1", 1),
	}
	out := Compact(queue)
	var moveCount int
	for _, a := range out {
		if a.Kind == model.ActionMove {
			moveCount++
		}
	}
	if moveCount != 1 {
		t.Errorf("expected the Move action to survive compaction untouched, got %d move actions in %v", moveCount, out)
	}
}

func TestModifyPersistsAcrossLoads(t *testing.T) {
	s := testStore(t)
	err := s.Modify(func(queue *[]model.Action) {
		*queue = append(*queue, actionFor(model.ActionCreate, "u9", 0))
	})
	if err != nil {
		t.Fatalf("Modify: %v", err)
	}

	j := s.Load()
	if len(j.Queue) != 1 || j.Queue[0].Uid() != "u9" {
		t.Fatalf("Load after Modify = %v, want one action for u9", j.Queue)
	}
}
