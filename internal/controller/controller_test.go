package controller

import (
	"context"
	"testing"
	"time"

	"github.com/untoldecay/cfaitgo/internal/journal"
	"github.com/untoldecay/cfaitgo/internal/localstore"
	"github.com/untoldecay/cfaitgo/internal/model"
	"github.com/untoldecay/cfaitgo/internal/paths"
	"github.com/untoldecay/cfaitgo/internal/syncengine"
	"github.com/untoldecay/cfaitgo/internal/taskstore"
)

// fakeSyncer counts SyncJournal calls without touching the network, for
// asserting Async behavior deterministically, and returns a canned
// FetchAll result so Sync's fetch-and-reconcile half is exercisable too.
type fakeSyncer struct {
	calls       chan struct{}
	err         error
	fetchResult []syncengine.FetchResult
}

func newFakeSyncer() *fakeSyncer { return &fakeSyncer{calls: make(chan struct{}, 16)} }

func (f *fakeSyncer) SyncJournal(ctx context.Context) ([]string, error) {
	f.calls <- struct{}{}
	return nil, f.err
}

func (f *fakeSyncer) FetchAll(ctx context.Context, calendars []model.CalendarListEntry) []syncengine.FetchResult {
	return f.fetchResult
}

func testController(t *testing.T, sync Syncer) *Controller {
	t.Helper()
	t.Setenv("CFAIT_TEST_DIR", t.TempDir())
	p, err := paths.Resolve()
	if err != nil {
		t.Fatalf("paths.Resolve: %v", err)
	}
	return New(taskstore.New(), journal.New(p), localstore.New(p), localstore.NewRegistry(p), sync)
}

func TestCreateTaskOnRemoteCalendarEnqueuesJournalAction(t *testing.T) {
	c := testController(t, nil)
	task := &model.Task{UID: "u1", Summary: "Buy milk", CalendarHref: "https://caldav.example.com/cal/work/"}

	if err := c.CreateTask(task); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	queue := c.journal.Load().Queue
	if len(queue) != 1 || queue[0].Kind != model.ActionCreate || queue[0].Uid() != "u1" {
		t.Fatalf("journal queue = %v, want one Create for u1", queue)
	}
}

func TestCreateTaskOnLocalCalendarWritesThroughWithoutJournal(t *testing.T) {
	c := testController(t, nil)
	task := &model.Task{UID: "u1", Summary: "Buy milk", CalendarHref: model.LocalDefaultHref}

	if err := c.CreateTask(task); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if len(c.journal.Load().Queue) != 0 {
		t.Error("expected no journal entry for a local:// calendar")
	}

	saved, err := c.local.Load("default")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(saved) != 1 || saved[0].UID != "u1" {
		t.Fatalf("saved = %v, want [u1]", saved)
	}
}

func TestUpdateTaskBumpsSequence(t *testing.T) {
	c := testController(t, nil)
	task := &model.Task{UID: "u1", Summary: "Buy milk", CalendarHref: model.LocalDefaultHref, Sequence: 2}
	if err := c.CreateTask(task); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	if err := c.UpdateTask(task); err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}
	if task.Sequence != 3 {
		t.Errorf("Sequence = %d, want 3", task.Sequence)
	}
}

func TestDeleteTaskOfUnsyncedTaskSkipsJournal(t *testing.T) {
	c := testController(t, nil)
	task := &model.Task{UID: "u1", Summary: "Buy milk", CalendarHref: "https://caldav.example.com/cal/work/"}
	c.store.AddTask(task)

	if _, err := c.DeleteTask("u1"); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	if len(c.journal.Load().Queue) != 0 {
		t.Error("expected an unsynced task's delete to skip the journal entirely")
	}
}

func TestDeleteTaskOfSyncedRemoteTaskEnqueuesDelete(t *testing.T) {
	c := testController(t, nil)
	task := &model.Task{UID: "u1", Summary: "Buy milk", CalendarHref: "https://caldav.example.com/cal/work/", Href: "https://caldav.example.com/cal/work/u1.ics", Etag: "etag-1"}
	c.store.AddTask(task)

	if _, err := c.DeleteTask("u1"); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	queue := c.journal.Load().Queue
	if len(queue) != 1 || queue[0].Kind != model.ActionDelete {
		t.Fatalf("journal queue = %v, want one Delete", queue)
	}
}

func TestMoveTaskBetweenTwoLocalCalendarsWritesBothSnapshots(t *testing.T) {
	c := testController(t, nil)
	task := &model.Task{UID: "u1", Summary: "Buy milk", CalendarHref: model.LocalDefaultHref}
	if err := c.CreateTask(task); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	if _, err := c.MoveTask("u1", model.LocalRecoveryHref); err != nil {
		t.Fatalf("MoveTask: %v", err)
	}
	if len(c.journal.Load().Queue) != 0 {
		t.Error("expected a purely-local move to avoid the journal")
	}
	recovery, err := c.local.Load("recovery")
	if err != nil {
		t.Fatalf("Load(recovery): %v", err)
	}
	if len(recovery) != 1 || recovery[0].UID != "u1" {
		t.Fatalf("recovery calendar = %v, want [u1]", recovery)
	}
}

func TestMoveTaskFromLocalToRemoteEnqueuesCreate(t *testing.T) {
	c := testController(t, nil)
	task := &model.Task{UID: "u1", Summary: "Buy milk", CalendarHref: model.LocalDefaultHref}
	if err := c.CreateTask(task); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	if _, err := c.MoveTask("u1", "https://caldav.example.com/cal/work/"); err != nil {
		t.Fatalf("MoveTask: %v", err)
	}
	queue := c.journal.Load().Queue
	if len(queue) != 1 || queue[0].Kind != model.ActionCreate {
		t.Fatalf("journal queue = %v, want one Create", queue)
	}
}

func TestMoveTaskBetweenTwoRemoteCalendarsEnqueuesMove(t *testing.T) {
	c := testController(t, nil)
	task := &model.Task{UID: "u1", Summary: "Buy milk", CalendarHref: "https://caldav.example.com/cal/work/", Href: "https://caldav.example.com/cal/work/u1.ics", Etag: "etag-1"}
	c.store.AddTask(task)

	if _, err := c.MoveTask("u1", "https://caldav.example.com/cal/home/"); err != nil {
		t.Fatalf("MoveTask: %v", err)
	}
	queue := c.journal.Load().Queue
	if len(queue) != 1 || queue[0].Kind != model.ActionMove || queue[0].NewCalendarHref != "https://caldav.example.com/cal/home/" {
		t.Fatalf("journal queue = %v, want one Move to cal/home", queue)
	}
}

func TestAsyncMutationTriggersBackgroundSync(t *testing.T) {
	fs := newFakeSyncer()
	c := testController(t, fs)
	c.Async = true
	task := &model.Task{UID: "u1", Summary: "Buy milk", CalendarHref: model.LocalDefaultHref}

	if err := c.CreateTask(task); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	select {
	case <-fs.calls:
	case <-time.After(2 * time.Second):
		t.Fatal("background sync never ran")
	}
}

func TestSyncWithNoSyncerReturnsErrOffline(t *testing.T) {
	c := testController(t, nil)
	if _, err := c.Sync(context.Background()); err == nil {
		t.Fatal("expected Sync with no configured Syncer to error")
	}
}

func TestSyncDelegatesToConfiguredSyncer(t *testing.T) {
	fs := newFakeSyncer()
	c := testController(t, fs)
	if _, err := c.Sync(context.Background()); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	select {
	case <-fs.calls:
	default:
		t.Fatal("expected Sync to delegate to the configured Syncer")
	}
}

func TestSyncFoldsFetchAllResultsIntoStore(t *testing.T) {
	fs := newFakeSyncer()
	href := "https://caldav.example.com/cal/work/"
	fs.fetchResult = []syncengine.FetchResult{
		{CalendarHref: href, Tasks: []*model.Task{{UID: "u1", Summary: "From server"}}},
	}
	c := testController(t, fs)

	if _, err := c.Sync(context.Background()); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	task, ok := c.store.GetTask("u1")
	if !ok {
		t.Fatal("expected the fetched task to be installed into the store")
	}
	if task.Summary != "From server" {
		t.Errorf("Summary = %q, want %q", task.Summary, "From server")
	}
}

func TestSyncSkipsReplaceWhenCalendarUnchanged(t *testing.T) {
	fs := newFakeSyncer()
	href := "https://caldav.example.com/cal/work/"
	fs.fetchResult = []syncengine.FetchResult{{CalendarHref: href, Unchanged: true}}
	c := testController(t, fs)
	c.store.AddTask(&model.Task{UID: "existing", CalendarHref: href})

	if _, err := c.Sync(context.Background()); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if _, ok := c.store.GetTask("existing"); !ok {
		t.Error("expected an Unchanged fetch result to leave the store untouched")
	}
}

func TestSyncReportsPerCalendarFetchErrorsAsWarnings(t *testing.T) {
	fs := newFakeSyncer()
	href := "https://caldav.example.com/cal/work/"
	fs.fetchResult = []syncengine.FetchResult{{CalendarHref: href, Err: context.DeadlineExceeded}}
	c := testController(t, fs)

	warnings, err := c.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if len(warnings) != 1 {
		t.Fatalf("warnings = %v, want exactly one", warnings)
	}
}
