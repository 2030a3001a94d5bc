// Package controller is the façade every CLI task mutation goes through: it
// applies a mutation to the in-memory task store immediately, persists it
// (local:// calendars write straight through; everything else enqueues a
// journal action), and best-effort kicks a background sync (spec §4.1,
// §4.2 "optimistic local mutation"). Grounded on
// _examples/original_source/src/client/core.rs's TaskController surface.
package controller

import (
	"context"
	"fmt"
	"time"

	"github.com/untoldecay/cfaitgo/internal/debug"
	"github.com/untoldecay/cfaitgo/internal/journal"
	"github.com/untoldecay/cfaitgo/internal/localstore"
	"github.com/untoldecay/cfaitgo/internal/model"
	"github.com/untoldecay/cfaitgo/internal/syncengine"
	"github.com/untoldecay/cfaitgo/internal/taskstore"
)

// Syncer is the subset of syncengine.Engine the controller needs, kept as
// an interface so tests can substitute a fake that never touches the
// network.
type Syncer interface {
	SyncJournal(ctx context.Context) ([]string, error)
	FetchAll(ctx context.Context, calendars []model.CalendarListEntry) []syncengine.FetchResult
}

// Controller wires the task store, journal, local store, calendar
// registry, and sync engine together behind one mutation API
// (spec §4.1, §4.2, §4.7, §4.9).
type Controller struct {
	store    *taskstore.Store
	journal  *journal.Store
	local    *localstore.Store
	registry *localstore.Registry
	sync     Syncer

	// Async controls whether SyncJournal is fired in a background
	// goroutine after each mutation or left for the caller to invoke
	// explicitly via Sync (the default; cmd/cfait leaves Async off and
	// syncs only when `cfait sync` runs).
	Async bool
}

func New(store *taskstore.Store, j *journal.Store, local *localstore.Store, registry *localstore.Registry, sync Syncer) *Controller {
	return &Controller{store: store, journal: j, local: local, registry: registry, sync: sync}
}

// persist writes t through the right channel: local:// calendars go
// straight to their snapshot file, anything else is appended to the
// journal for the sync engine to drain later (spec §4.1).
func (c *Controller) persist(t *model.Task, kind model.ActionKind, newCalendarHref string) error {
	if model.IsLocalHref(t.CalendarHref) {
		return c.saveLocalCalendar(t.CalendarHref)
	}
	return c.journal.Push(model.Action{Kind: kind, Task: t, NewCalendarHref: newCalendarHref})
}

func (c *Controller) saveLocalCalendar(href string) error {
	localID := href
	if len(href) >= len(model.LocalSchemePrefix) {
		localID = href[len(model.LocalSchemePrefix):]
	}
	return c.local.Save(localID, c.store.AllInCalendar(href))
}

func (c *Controller) maybeSync() {
	if !c.Async || c.sync == nil {
		return
	}
	go func() {
		if _, err := c.sync.SyncJournal(context.Background()); err != nil {
			debug.Logf("background sync after mutation failed: %v", err)
		}
	}()
}

// CreateTask adds a brand-new task (fresh uid expected to already be set
// by the caller) and persists it (spec §4.2).
func (c *Controller) CreateTask(t *model.Task) error {
	c.store.AddTask(t)
	if err := c.persist(t, model.ActionCreate, ""); err != nil {
		return err
	}
	c.maybeSync()
	return nil
}

// UpdateTask bumps sequence, re-indexes, and persists an edited task.
func (c *Controller) UpdateTask(t *model.Task) error {
	t.Sequence++
	c.store.UpdateOrAddTask(t)
	if err := c.persist(t, model.ActionUpdate, ""); err != nil {
		return err
	}
	c.maybeSync()
	return nil
}

// DeleteTask removes uid from the store and enqueues/persists its removal.
// Children are returned for the caller to decide on (re-parent or cascade
// delete, spec §9 open question).
func (c *Controller) DeleteTask(uid string) (children []*model.Task, err error) {
	t, children, err := c.store.DeleteTask(uid)
	if err != nil {
		return nil, err
	}
	if model.IsLocalHref(t.CalendarHref) {
		if err := c.saveLocalCalendar(t.CalendarHref); err != nil {
			return children, err
		}
	} else if !t.IsUnsynced() {
		if err := c.journal.Push(model.Action{Kind: model.ActionDelete, Task: t}); err != nil {
			return children, err
		}
	}
	c.maybeSync()
	return children, nil
}

// SetStatus transitions uid to newStatus, spawning a recurrence successor
// when applicable (spec §4.7, §4.8).
func (c *Controller) SetStatus(uid string, status model.TaskStatus) (primary, secondary *model.Task, children []*model.Task, err error) {
	primary, secondary, children, err = c.store.SetStatus(uid, status, time.Now())
	if err != nil {
		return nil, nil, nil, err
	}
	if err := c.persistAfterStatusChange(primary, secondary); err != nil {
		return primary, secondary, children, err
	}
	c.maybeSync()
	return primary, secondary, children, nil
}

// ToggleTask flips done/not-done (spec §4.7).
func (c *Controller) ToggleTask(uid string) (primary, secondary *model.Task, children []*model.Task, err error) {
	primary, secondary, children, err = c.store.ToggleTask(uid, time.Now())
	if err != nil {
		return nil, nil, nil, err
	}
	if err := c.persistAfterStatusChange(primary, secondary); err != nil {
		return primary, secondary, children, err
	}
	c.maybeSync()
	return primary, secondary, children, nil
}

func (c *Controller) persistAfterStatusChange(primary, secondary *model.Task) error {
	if err := c.persist(primary, model.ActionUpdate, ""); err != nil {
		return err
	}
	if secondary != nil {
		if err := c.persist(secondary, model.ActionCreate, ""); err != nil {
			return err
		}
	}
	return nil
}

// StartTask begins a tracked session (spec §4.7).
func (c *Controller) StartTask(uid string) (*model.Task, error) {
	t, err := c.store.SetStatusInProcess(uid, time.Now())
	if err != nil {
		return nil, err
	}
	if err := c.persist(t, model.ActionUpdate, ""); err != nil {
		return nil, err
	}
	c.maybeSync()
	return t, nil
}

// PauseTask closes the current session (spec §4.7).
func (c *Controller) PauseTask(uid string) (*model.Task, error) {
	t, err := c.store.PauseTask(uid, time.Now())
	if err != nil {
		return nil, err
	}
	if err := c.persist(t, model.ActionUpdate, ""); err != nil {
		return nil, err
	}
	c.maybeSync()
	return t, nil
}

// StopTask closes the session and clears progress (spec §4.7).
func (c *Controller) StopTask(uid string) (*model.Task, error) {
	t, err := c.store.StopTask(uid, time.Now())
	if err != nil {
		return nil, err
	}
	if err := c.persist(t, model.ActionUpdate, ""); err != nil {
		return nil, err
	}
	c.maybeSync()
	return t, nil
}

// MoveTask relocates uid to newCalendarHref (spec §4.7). Moves between two
// local:// calendars are a direct file rewrite on both ends. A move from a
// local:// calendar to a remote one rewrites the source file and enqueues a
// Create; a move from a remote calendar to a local:// one writes the
// destination file and enqueues a Delete of the synced original. Only a
// move between two remote calendars enqueues a Move action, so the
// server-side MOVE verb is used.
func (c *Controller) MoveTask(uid, newCalendarHref string) (*model.Task, error) {
	original, updated, err := c.store.MoveTask(uid, newCalendarHref)
	if err != nil {
		return nil, err
	}

	oldLocal := model.IsLocalHref(original.CalendarHref)
	newLocal := model.IsLocalHref(newCalendarHref)

	switch {
	case oldLocal && newLocal:
		if err := c.saveLocalCalendar(original.CalendarHref); err != nil {
			return nil, err
		}
		if err := c.saveLocalCalendar(newCalendarHref); err != nil {
			return nil, err
		}
	case oldLocal && !newLocal:
		if err := c.saveLocalCalendar(original.CalendarHref); err != nil {
			return nil, err
		}
		if err := c.journal.Push(model.Action{Kind: model.ActionCreate, Task: updated}); err != nil {
			return nil, err
		}
	case !oldLocal && newLocal:
		if err := c.saveLocalCalendar(newCalendarHref); err != nil {
			return nil, err
		}
		if !original.IsUnsynced() {
			if err := c.journal.Push(model.Action{Kind: model.ActionDelete, Task: original}); err != nil {
				return nil, err
			}
		}
	default:
		if err := c.journal.Push(model.Action{Kind: model.ActionMove, Task: original, NewCalendarHref: newCalendarHref}); err != nil {
			return nil, err
		}
	}

	c.maybeSync()
	return updated, nil
}

// Sync runs the drain+fetch pipeline synchronously: it drains the action
// journal against the server, then refetches every remote calendar and
// folds any changes back into the in-memory store (spec §4.9, used by
// `cfait sync`). A hard drain error aborts before the fetch half runs;
// per-calendar fetch errors are reported as warnings rather than failing
// the whole sync, matching FetchAll's own per-calendar error tolerance.
func (c *Controller) Sync(ctx context.Context) ([]string, error) {
	if c.sync == nil {
		return nil, syncengine.ErrOffline
	}
	warnings, err := c.sync.SyncJournal(ctx)
	if err != nil {
		return warnings, err
	}

	remotes, err := c.registry.LoadRemote()
	if err != nil {
		return warnings, fmt.Errorf("cfait: loading remote calendar list: %w", err)
	}

	for _, result := range c.sync.FetchAll(ctx, remotes) {
		if result.Err != nil {
			warnings = append(warnings, fmt.Sprintf("refreshing %s: %v", result.CalendarHref, result.Err))
			continue
		}
		if result.Unchanged {
			continue
		}
		c.store.ReplaceCalendar(result.CalendarHref, result.Tasks)
	}
	return warnings, nil
}
