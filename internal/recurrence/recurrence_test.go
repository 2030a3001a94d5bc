package recurrence

import (
	"testing"
	"time"

	"github.com/untoldecay/cfaitgo/internal/model"
)

func TestNextOccurrenceDailyAdvancesDue(t *testing.T) {
	due := model.NewSpecific(time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC))
	task := &model.Task{
		UID:     "r1",
		Summary: "daily standup",
		Due:     &due,
		RRule:   "FREQ=DAILY;COUNT=10",
	}
	now := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	succ := NextOccurrence(task, now)
	if succ == nil {
		t.Fatal("expected a successor for an unexhausted daily rule")
	}
	if succ.UID == task.UID {
		t.Error("successor must have a fresh uid")
	}
	if succ.Due == nil {
		t.Fatal("expected successor to carry a Due date")
	}
	wantDay := due.ToUTC().AddDate(0, 0, 1)
	if succ.Due.ToUTC().Day() != wantDay.Day() {
		t.Errorf("successor Due = %v, want the day after %v", succ.Due.ToUTC(), due.ToUTC())
	}
}

func TestNextOccurrenceNoRRuleReturnsNil(t *testing.T) {
	due := model.NewSpecific(time.Now())
	task := &model.Task{UID: "n1", Due: &due}
	if got := NextOccurrence(task, time.Now()); got != nil {
		t.Errorf("expected nil for a task with no rrule, got %+v", got)
	}
}

func TestNextOccurrenceExhaustedRuleReturnsNil(t *testing.T) {
	due := model.NewSpecific(time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC))
	task := &model.Task{
		UID: "e1", Due: &due,
		RRule: "FREQ=DAILY;COUNT=2",
	}
	// Far past both occurrences.
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	if got := NextOccurrence(task, now); got != nil {
		t.Errorf("expected nil once the rule is exhausted, got %+v", got)
	}
}

func TestNextOccurrenceClearsTransientState(t *testing.T) {
	due := model.NewSpecific(time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC))
	task := &model.Task{
		UID: "r2", Due: &due, RRule: "FREQ=WEEKLY;COUNT=5",
		Href: "/cal/r2.ics", Etag: `"v1"`, Sequence: 4,
		Dependencies: []string{"dep1"},
	}
	succ := NextOccurrence(task, time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC))
	if succ == nil {
		t.Fatal("expected a successor")
	}
	if succ.Href != "" || succ.Etag != "" {
		t.Errorf("expected successor Href/Etag cleared, got %q/%q", succ.Href, succ.Etag)
	}
	if succ.Sequence != 0 {
		t.Errorf("Sequence = %d, want reset to 0", succ.Sequence)
	}
	if len(succ.Dependencies) != 0 {
		t.Errorf("Dependencies = %v, want cleared on successor", succ.Dependencies)
	}
	if succ.Status != model.NeedsAction {
		t.Errorf("Status = %v, want NeedsAction", succ.Status)
	}
}

func TestAdvancePreservesIdentity(t *testing.T) {
	due := model.NewSpecific(time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC))
	task := &model.Task{
		UID: "a1", Href: "/cal/a1.ics", Etag: `"orig"`, CalendarHref: "local://default",
		Due: &due, RRule: "FREQ=DAILY;COUNT=3", Sequence: 1,
	}
	ok := Advance(task, time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC))
	if !ok {
		t.Fatal("expected Advance to succeed")
	}
	if task.UID != "a1" || task.Href != "/cal/a1.ics" || task.Etag != `"orig"` {
		t.Errorf("Advance must preserve uid/href/etag, got uid=%q href=%q etag=%q", task.UID, task.Href, task.Etag)
	}
	if task.Sequence != 2 {
		t.Errorf("Sequence = %d, want bumped to 2", task.Sequence)
	}
}

func TestAdvanceReturnsFalseWhenExhausted(t *testing.T) {
	due := model.NewSpecific(time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC))
	task := &model.Task{UID: "a2", Due: &due, RRule: "FREQ=DAILY;COUNT=1"}
	orig := *task
	ok := Advance(task, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))
	if ok {
		t.Error("expected Advance to report false once exhausted")
	}
	if task.UID != orig.UID {
		t.Error("expected task left unchanged when Advance fails")
	}
}
