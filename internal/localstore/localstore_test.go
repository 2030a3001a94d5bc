package localstore

import (
	"os"
	"testing"

	"github.com/untoldecay/cfaitgo/internal/model"
	"github.com/untoldecay/cfaitgo/internal/paths"
)

func testStore(t *testing.T) (*Store, *paths.Paths) {
	t.Helper()
	t.Setenv("CFAIT_TEST_DIR", t.TempDir())
	p, err := paths.Resolve()
	if err != nil {
		t.Fatalf("paths.Resolve: %v", err)
	}
	return New(p), p
}

func TestLoadMissingFileReturnsNoTasks(t *testing.T) {
	s, _ := testStore(t)
	tasks, err := s.Load("default")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(tasks) != 0 {
		t.Errorf("tasks = %v, want none", tasks)
	}
	if !s.CanSave(model.LocalDefaultHref) {
		t.Error("expected CanSave true after a clean empty load")
	}
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	s, _ := testStore(t)
	tasks := []*model.Task{{UID: "u1", Summary: "test"}}
	if err := s.Save("default", tasks); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := s.Load("default")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded) != 1 || loaded[0].UID != "u1" {
		t.Errorf("loaded = %v, want [u1]", loaded)
	}
}

func TestLoadStampsCalendarHrefWhenMissing(t *testing.T) {
	s, _ := testStore(t)
	if err := s.Save("default", []*model.Task{{UID: "u1"}}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := s.Load("default")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded[0].CalendarHref != model.LocalDefaultHref {
		t.Errorf("CalendarHref = %q, want %q", loaded[0].CalendarHref, model.LocalDefaultHref)
	}
}

func TestLoadCorruptFileBlocksSubsequentSaves(t *testing.T) {
	s, p := testStore(t)
	if err := os.WriteFile(p.LocalTaskFile("default"), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("writing corrupt file: %v", err)
	}

	_, err := s.Load("default")
	if err == nil {
		t.Fatal("expected Load to fail on corrupt JSON")
	}
	if s.CanSave(model.LocalDefaultHref) {
		t.Error("expected CanSave false after a corrupt load")
	}
	if err := s.Save("default", nil); err != ErrSavesBlocked {
		t.Errorf("Save after corrupt load = %v, want ErrSavesBlocked", err)
	}
}

func TestForceSaveBypassesBlockedGate(t *testing.T) {
	s, p := testStore(t)
	os.WriteFile(p.LocalTaskFile("default"), []byte("{not json"), 0o644)
	s.Load("default")

	if err := s.ForceSave("default", []*model.Task{{UID: "recovered"}}); err != nil {
		t.Fatalf("ForceSave: %v", err)
	}
}

func TestLoadMigratesV1BareArray(t *testing.T) {
	s, p := testStore(t)
	v1 := `[{"uid":"legacy1","summary":"old format"}]`
	if err := os.WriteFile(p.LocalTaskFile("default"), []byte(v1), 0o644); err != nil {
		t.Fatalf("writing v1 fixture: %v", err)
	}

	tasks, err := s.Load("default")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(tasks) != 1 || tasks[0].UID != "legacy1" {
		t.Fatalf("tasks = %v, want [legacy1]", tasks)
	}

	raw, err := os.ReadFile(p.LocalTaskFile("default"))
	if err != nil {
		t.Fatalf("reading migrated file: %v", err)
	}
	if !contains(string(raw), `"version": 3`) && !contains(string(raw), `"version":3`) {
		t.Errorf("expected migrated file re-stamped to the current version, got %s", raw)
	}
}

func TestLoadRejectsFutureVersion(t *testing.T) {
	s, p := testStore(t)
	future := `{"version":99,"tasks":[]}`
	if err := os.WriteFile(p.LocalTaskFile("default"), []byte(future), 0o644); err != nil {
		t.Fatalf("writing future-version fixture: %v", err)
	}
	_, err := s.Load("default")
	if err == nil {
		t.Fatal("expected an error loading a file version newer than supported")
	}
}

func TestNonDefaultCalendarsAreIsolated(t *testing.T) {
	s, _ := testStore(t)
	if err := s.Save("work", []*model.Task{{UID: "w1"}}); err != nil {
		t.Fatalf("Save(work): %v", err)
	}
	if err := s.Save("default", []*model.Task{{UID: "d1"}}); err != nil {
		t.Fatalf("Save(default): %v", err)
	}

	work, err := s.Load("work")
	if err != nil {
		t.Fatalf("Load(work): %v", err)
	}
	def, err := s.Load("default")
	if err != nil {
		t.Fatalf("Load(default): %v", err)
	}
	if len(work) != 1 || work[0].UID != "w1" {
		t.Errorf("work calendar = %v, want [w1]", work)
	}
	if len(def) != 1 || def[0].UID != "d1" {
		t.Errorf("default calendar = %v, want [d1]", def)
	}
}

func contains(s, sub string) bool {
	return len(s) >= len(sub) && (func() bool {
		for i := 0; i+len(sub) <= len(s); i++ {
			if s[i:i+len(sub)] == sub {
				return true
			}
		}
		return false
	})()
}
