package remotecache

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

func TestLoadMissingFileReturnsEmptyCache(t *testing.T) {
	s, _ := testStore(t)
	c := s.Load("https://caldav.example.com/cal/work/")
	if c.SyncToken != "" || len(c.Tasks) != 0 {
		t.Errorf("Load of missing cache = %+v, want empty", c)
	}
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	s, _ := testStore(t)
	href := "https://caldav.example.com/cal/work/"
	c := Cache{SyncToken: "token-1", Tasks: []*model.Task{{UID: "u1"}}}
	if err := s.Save(href, c); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded := s.Load(href)
	if loaded.SyncToken != "token-1" {
		t.Errorf("SyncToken = %q, want token-1", loaded.SyncToken)
	}
	if len(loaded.Tasks) != 1 || loaded.Tasks[0].UID != "u1" {
		t.Errorf("Tasks = %v, want [u1]", loaded.Tasks)
	}
}

func TestLoadDiscardsVersionMismatch(t *testing.T) {
	s, p := testStore(t)
	href := "https://caldav.example.com/cal/work/"
	stale := `{"version":1,"sync_token":"old","tasks":[{"uid":"stale"}]}`
	if err := os.WriteFile(p.RemoteCacheFile(href), []byte(stale), 0o644); err != nil {
		t.Fatalf("writing stale cache: %v", err)
	}
	c := s.Load(href)
	if c.SyncToken != "" || len(c.Tasks) != 0 {
		t.Errorf("Load of a version-mismatched cache = %+v, want discarded to empty", c)
	}
}

func TestLoadStampsCalendarHrefWhenMissing(t *testing.T) {
	s, _ := testStore(t)
	href := "https://caldav.example.com/cal/work/"
	s.Save(href, Cache{Tasks: []*model.Task{{UID: "u1"}}})
	loaded := s.Load(href)
	if loaded.Tasks[0].CalendarHref != href {
		t.Errorf("CalendarHref = %q, want %q", loaded.Tasks[0].CalendarHref, href)
	}
}

func TestDifferentHrefsAreIsolated(t *testing.T) {
	s, _ := testStore(t)
	s.Save("https://a/", Cache{SyncToken: "a-token"})
	s.Save("https://b/", Cache{SyncToken: "b-token"})

	if s.Load("https://a/").SyncToken != "a-token" {
		t.Error("expected href a's cache isolated from b")
	}
	if s.Load("https://b/").SyncToken != "b-token" {
		t.Error("expected href b's cache isolated from a")
	}
}
