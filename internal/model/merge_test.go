package model

import (
	"testing"
	"time"
)

func baseTask() *Task {
	return &Task{
		UID:     "t1",
		Summary: "original",
		Status:  NeedsAction,
		Priority: 5,
	}
}

func TestThreeWayMergeLocalOnlyChange(t *testing.T) {
	base := baseTask()
	local := base.Clone()
	local.Summary = "renamed locally"
	server := base.Clone()

	merged := ThreeWayMerge(base, local, server)
	if merged == nil {
		t.Fatal("expected merge to succeed")
	}
	if merged.Summary != "renamed locally" {
		t.Errorf("Summary = %q, want %q", merged.Summary, "renamed locally")
	}
}

func TestThreeWayMergeServerOnlyChange(t *testing.T) {
	base := baseTask()
	local := base.Clone()
	server := base.Clone()
	server.Summary = "renamed on server"

	merged := ThreeWayMerge(base, local, server)
	if merged == nil {
		t.Fatal("expected merge to succeed")
	}
	if merged.Summary != "renamed on server" {
		t.Errorf("Summary = %q, want %q", merged.Summary, "renamed on server")
	}
}

func TestThreeWayMergeIdenticalChangeIsNotConflict(t *testing.T) {
	base := baseTask()
	local := base.Clone()
	local.Priority = 9
	server := base.Clone()
	server.Priority = 9

	merged := ThreeWayMerge(base, local, server)
	if merged == nil {
		t.Fatal("expected identical changes to merge cleanly")
	}
	if merged.Priority != 9 {
		t.Errorf("Priority = %d, want 9", merged.Priority)
	}
}

func TestThreeWayMergeDivergentChangeIsHardConflict(t *testing.T) {
	base := baseTask()
	local := base.Clone()
	local.Summary = "local edit"
	server := base.Clone()
	server.Summary = "server edit"

	merged := ThreeWayMerge(base, local, server)
	if merged != nil {
		t.Fatalf("expected nil (hard conflict), got %+v", merged)
	}
}

func TestThreeWayMergeTimeSpentIsAdditive(t *testing.T) {
	base := baseTask()
	base.TimeSpentSeconds = 100
	local := base.Clone()
	local.TimeSpentSeconds = 160 // +60 offline
	server := base.Clone()
	server.TimeSpentSeconds = 130 // +30 on server

	merged := ThreeWayMerge(base, local, server)
	if merged == nil {
		t.Fatal("expected merge to succeed")
	}
	if merged.TimeSpentSeconds != 190 {
		t.Errorf("TimeSpentSeconds = %d, want 190 (100 base + 60 local + 30 server)", merged.TimeSpentSeconds)
	}
}

func TestThreeWayMergeCategoriesUnion(t *testing.T) {
	base := baseTask()
	base.Categories = []string{"work"}
	local := base.Clone()
	local.Categories = []string{"work", "urgent"}
	server := base.Clone()
	server.Categories = []string{"work", "home"}

	merged := ThreeWayMerge(base, local, server)
	if merged == nil {
		t.Fatal("expected merge to succeed")
	}
	want := map[string]bool{"work": true, "urgent": true, "home": true}
	if len(merged.Categories) != len(want) {
		t.Fatalf("Categories = %v, want union of %v", merged.Categories, want)
	}
	for _, c := range merged.Categories {
		if !want[c] {
			t.Errorf("unexpected category %q", c)
		}
	}
}

func TestThreeWayMergeSequenceAdvances(t *testing.T) {
	base := baseTask()
	base.Sequence = 3
	local := base.Clone()
	local.Summary = "edit"
	local.Sequence = 3
	server := base.Clone()
	server.Sequence = 5

	merged := ThreeWayMerge(base, local, server)
	if merged == nil {
		t.Fatal("expected merge to succeed")
	}
	if merged.Sequence != 6 {
		t.Errorf("Sequence = %d, want 6 (max(3,5)+1)", merged.Sequence)
	}
}

func TestDateTypeAllDayDiscardsTime(t *testing.T) {
	d := NewAllDay(mustParse(t, "2026-08-01T15:30:00Z"))
	if d.Kind != AllDay {
		t.Fatalf("Kind = %v, want AllDay", d.Kind)
	}
	if d.Date.Hour() != 0 {
		t.Errorf("expected time component discarded, got hour %d", d.Date.Hour())
	}
}

func TestDateTypeEqualAcrossKinds(t *testing.T) {
	allDay := NewAllDay(mustParse(t, "2026-08-01T00:00:00Z"))
	specific := NewSpecific(mustParse(t, "2026-08-01T00:00:00Z"))
	if allDay.Equal(specific) {
		t.Error("AllDay and Specific of the same instant should not compare Equal")
	}
}

func mustParse(t *testing.T, s string) time.Time {
	t.Helper()
	tm, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("parsing %q: %v", s, err)
	}
	return tm
}
