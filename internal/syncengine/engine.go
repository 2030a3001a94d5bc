package syncengine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/untoldecay/cfaitgo/internal/debug"
	"github.com/untoldecay/cfaitgo/internal/ics"
	"github.com/untoldecay/cfaitgo/internal/journal"
	"github.com/untoldecay/cfaitgo/internal/localstore"
	"github.com/untoldecay/cfaitgo/internal/model"
	"github.com/untoldecay/cfaitgo/internal/remotecache"
)

// ErrOffline is returned by SyncJournal when no transport is configured
// (spec §4.1 "offline-first": every mutation succeeds locally regardless).
var ErrOffline = errors.New("cfait: offline")

// maxConcurrentFetches bounds the per-calendar fetch fan-out (spec §5).
const maxConcurrentFetches = 4

// CompanionEventSink lets the controller layer mirror CUD outcomes into a
// separate events calendar without the sync engine depending on that
// concern directly (spec §3 "Supplemented Features: companion-event
// hook"). NoopCompanionSink is the only implementation in this module: New
// falls back to it for a nil sink and cmd/cfait always passes it, so no
// companion events are created whatever create_events_for_tasks says.
type CompanionEventSink interface {
	SyncCompanionEvent(ctx context.Context, task *model.Task, eventsEnabled, deleteOnCompletion, isDeleteIntent bool)
}

// NoopCompanionSink implements CompanionEventSink as a no-op.
type NoopCompanionSink struct{}

func (NoopCompanionSink) SyncCompanionEvent(context.Context, *model.Task, bool, bool, bool) {}

// Engine drains the action journal against a remote server and runs the
// fetch-and-reconcile pipeline (spec §4.9), grounded on
// _examples/original_source/src/client/sync.rs.
type Engine struct {
	transport   Transport
	journal     *journal.Store
	remoteCache *remotecache.Store
	localStore  *localstore.Store
	registry    *localstore.Registry

	companions CompanionEventSink

	CreateEventsForTasks    bool
	DeleteEventsOnCompletion bool
}

// New builds an Engine. transport may be nil, in which case SyncJournal
// returns ErrOffline immediately (mutations still apply locally via the
// controller, per spec §4.1).
func New(transport Transport, j *journal.Store, rc *remotecache.Store, ls *localstore.Store, reg *localstore.Registry, sink CompanionEventSink) *Engine {
	if sink == nil {
		sink = NoopCompanionSink{}
	}
	return &Engine{transport: transport, journal: j, remoteCache: rc, localStore: ls, registry: reg, companions: sink}
}

func actionsMatchIdentity(a, b model.Action) bool {
	return a.MatchesIdentity(b)
}

// SyncJournal compacts then drains the action queue against the server,
// one action at a time, propagating etag/href updates to later queued
// actions on the same uid and quarantining poison-pill actions to the
// recovery calendar (spec §4.9). It returns accumulated warnings, or the
// first hard (non-classified) error encountered — at which point the
// remaining queue, including the still-unprocessed head, is persisted
// unchanged so the next sync attempt resumes from the same point.
func (e *Engine) SyncJournal(ctx context.Context) ([]string, error) {
	if e.transport == nil {
		return nil, ErrOffline
	}

	loaded := e.journal.Load()
	queue := journal.Compact(loaded.Queue)

	var warnings []string
	recoveryCreatedThisCycle := false

	for len(queue) > 0 {
		next := queue[0]

		result, err := e.dispatch(ctx, next)
		if err != nil {
			if persistErr := e.journal.Modify(func(q *[]model.Action) { *q = queue }); persistErr != nil {
				debug.Warn("failed to persist journal after hard sync error: %v", persistErr)
			}
			return warnings, err
		}
		warnings = append(warnings, result.Warnings...)

		var (
			conflictResolved               *model.Action
			newEtag, oldHref, newHref      string
			refreshPath                    string
			propagateHref, propagateEtag   bool
		)

		switch result.Outcome.Kind {
		case outcomeSuccess:
			e.runCompanionHook(ctx, next, result.Outcome.Href)

			newEtag = result.Outcome.Etag
			refreshPath = result.Outcome.RefreshPath
			if result.Outcome.Href != "" {
				oldHref = actionHref(next)
				newHref = result.Outcome.Href
				propagateHref = true
			}
			if newEtag != "" {
				propagateEtag = true
			}

		case outcomeRetryWith:
			conflictResolved = result.Outcome.Retry
			if conflictResolved.Kind == model.ActionCreate || conflictResolved.Kind == model.ActionUpdate {
				e.companions.SyncCompanionEvent(ctx, conflictResolved.Task, e.CreateEventsForTasks, e.DeleteEventsOnCompletion, false)
			}

		case outcomeDiscard:
			if next.Kind == model.ActionDelete {
				e.companions.SyncCompanionEvent(ctx, next.Task, e.CreateEventsForTasks, e.DeleteEventsOnCompletion, true)
			}

		case outcomeRecoveryNeeded:
			if err := e.quarantine(next, result.Outcome.RecoveryMessage, &recoveryCreatedThisCycle); err != nil {
				debug.Warn("failed to quarantine task to recovery calendar: %v", err)
			}
			warnings = append(warnings, "Fatal sync error. Task moved to 'Local (Recovery)'.")
		}

		if !propagateEtag && refreshPath != "" {
			if fetched, _, ferr := e.transport.Get(ctx, refreshPath); ferr == nil && fetched != "" {
				newEtag = fetched
				propagateEtag = true
			}
		}

		if len(queue) == 0 || !actionsMatchIdentity(queue[0], next) {
			continue
		}
		queue = queue[1:]

		if conflictResolved != nil {
			queue = append([]model.Action{*conflictResolved}, queue...)
		}

		targetUID := next.Uid()
		if propagateEtag && targetUID != "" {
			for i := range queue {
				if queue[i].Task != nil && queue[i].Task.UID == targetUID {
					queue[i].Task.Etag = newEtag
				}
			}
		}

		if propagateHref {
			for i := range queue {
				t := queue[i].Task
				if t == nil {
					continue
				}
				if t.UID == targetUID || (oldHref != "" && t.Href == oldHref) {
					t.Href = newHref
					if idx := strings.LastIndex(newHref, "/"); idx >= 0 {
						t.CalendarHref = newHref[:idx+1]
					}
				}
			}
		}
	}

	if err := e.journal.Modify(func(q *[]model.Action) { *q = queue }); err != nil {
		return warnings, fmt.Errorf("cfait: persisting drained journal: %w", err)
	}
	return warnings, nil
}

func (e *Engine) dispatch(ctx context.Context, a model.Action) (StepResult, error) {
	switch a.Kind {
	case model.ActionCreate:
		return e.handleCreate(ctx, a.Task)
	case model.ActionUpdate:
		return e.handleUpdate(ctx, a.Task)
	case model.ActionDelete:
		return e.handleDelete(ctx, a.Task)
	case model.ActionMove:
		return e.handleMove(ctx, a.Task, a.NewCalendarHref)
	default:
		return StepResult{}, fmt.Errorf("cfait: unknown action kind %v", a.Kind)
	}
}

func (e *Engine) runCompanionHook(ctx context.Context, a model.Action, newHref string) {
	switch a.Kind {
	case model.ActionMove:
		if !e.CreateEventsForTasks {
			return
		}
		e.companions.SyncCompanionEvent(ctx, a.Task, e.CreateEventsForTasks, e.DeleteEventsOnCompletion, true)
		if newHref != "" {
			moved := a.Task.Clone()
			moved.CalendarHref = a.NewCalendarHref
			moved.Href = newHref
			e.companions.SyncCompanionEvent(ctx, moved, e.CreateEventsForTasks, e.DeleteEventsOnCompletion, false)
		}
	case model.ActionCreate, model.ActionUpdate:
		e.companions.SyncCompanionEvent(ctx, a.Task, e.CreateEventsForTasks, e.DeleteEventsOnCompletion, false)
	case model.ActionDelete:
		e.companions.SyncCompanionEvent(ctx, a.Task, e.CreateEventsForTasks, e.DeleteEventsOnCompletion, true)
	}
}

func actionHref(a model.Action) string {
	if a.Task == nil {
		return ""
	}
	return a.Task.Href
}

// quarantine moves a poison-pill task to the local recovery calendar,
// lazily registering it once per sync cycle (spec §4.9,
// registry.EnsureRecoveryCalendar).
func (e *Engine) quarantine(a model.Action, reason string, recoveryCreated *bool) error {
	var task *model.Task
	switch a.Kind {
	case model.ActionCreate, model.ActionUpdate:
		task = a.Task.Clone()
	case model.ActionMove:
		task = a.Task.Clone()
	default:
		return nil
	}

	if !*recoveryCreated {
		if err := e.registry.EnsureRecoveryCalendar(); err != nil {
			return err
		}
		*recoveryCreated = true
	}

	task.CalendarHref = model.LocalRecoveryHref
	task.Href = ""
	task.Etag = ""
	if task.Description != "" {
		task.Description += "\n\n"
	}
	task.Description += "[Sync Error]: " + reason

	existing, err := e.localStore.Load(localIDFor(model.LocalRecoveryHref))
	if err != nil && !errors.Is(err, localstore.ErrCorrupt) {
		return err
	}
	existing = append(existing, task)
	return e.localStore.ForceSave(localIDFor(model.LocalRecoveryHref), existing)
}

func localIDFor(href string) string {
	return strings.TrimPrefix(href, model.LocalSchemePrefix)
}

// FetchResult is the outcome of reconciling one remote calendar against
// its cache (spec §4.9.2).
type FetchResult struct {
	CalendarHref string
	Tasks        []*model.Task
	Unchanged    bool
	Err          error
}

// FetchAll runs the fetch-and-reconcile pipeline for every given calendar
// concurrently, bounded to maxConcurrentFetches in flight (spec §5).
func (e *Engine) FetchAll(ctx context.Context, calendars []model.CalendarListEntry) []FetchResult {
	results := make([]FetchResult, len(calendars))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFetches)

	for i, cal := range calendars {
		i, cal := i, cal
		if cal.IsLocal {
			continue
		}
		g.Go(func() error {
			tasks, unchanged, err := e.fetchCalendar(gctx, cal.Href)
			results[i] = FetchResult{CalendarHref: cal.Href, Tasks: tasks, Unchanged: unchanged, Err: err}
			return nil // per-calendar errors are reported, not fatal to the fan-out
		})
	}
	_ = g.Wait()
	return results
}

// fetchCalendar implements spec §4.9.2: read the collection's change token
// and short-circuit when it matches the cached one, otherwise list member
// resources, diff against the cached etags, fetch each changed one with its
// own GET (no calendar-multiget REPORT is issued), and prune ghosts (resources the cache has but the server no longer lists).
func (e *Engine) fetchCalendar(ctx context.Context, calendarHref string) ([]*model.Task, bool, error) {
	cached := e.remoteCache.Load(calendarHref)
	path := StripHost(calendarHref)

	// A ghost is a task the journal pointed at a server resource (Href set)
	// that was never confirmed synced (Etag empty) — if one is cached, a
	// stale collection token must not short-circuit the fetch, since the
	// ghost's absence from the server can only be discovered via PROPFIND.
	hasGhosts := false
	for _, t := range cached.Tasks {
		if t.Href != "" && t.Etag == "" {
			hasGhosts = true
			break
		}
	}

	token, tokErr := e.transport.CollectionToken(ctx, path)
	if tokErr != nil {
		debug.Warn("reading collection token for %s failed, falling back to full PROPFIND: %v", calendarHref, tokErr)
		token = ""
	}
	if !hasGhosts && token != "" && cached.SyncToken != "" && token == cached.SyncToken {
		return cached.Tasks, true, nil
	}

	listing, err := e.transport.ListResources(ctx, path)
	if err != nil {
		return nil, false, err
	}

	cachedByHref := map[string]*model.Task{}
	for _, t := range cached.Tasks {
		cachedByHref[t.Href] = t
	}

	var changed []string
	for href, etag := range listing {
		if t, ok := cachedByHref[href]; !ok || t.Etag != etag {
			changed = append(changed, href)
		}
	}
	if len(changed) == 0 && len(listing) == len(cachedByHref) {
		if token != cached.SyncToken {
			if err := e.remoteCache.Save(calendarHref, remotecache.Cache{SyncToken: token, Tasks: cached.Tasks}); err != nil {
				debug.Warn("saving remote cache for %s failed: %v", calendarHref, err)
			}
		}
		return cached.Tasks, true, nil
	}

	out := make([]*model.Task, 0, len(listing))
	for href, etag := range listing {
		if t, ok := cachedByHref[href]; ok && t.Etag == etag {
			out = append(out, t)
			continue
		}
		fetchedEtag, body, gerr := e.transport.Get(ctx, href)
		if gerr != nil {
			debug.Warn("fetching %s failed, keeping cached copy if any: %v", href, gerr)
			if t, ok := cachedByHref[href]; ok {
				out = append(out, t)
			}
			continue
		}
		task, perr := ics.FromICS(body)
		if perr != nil {
			debug.Warn("parsing %s failed, skipping: %v", href, perr)
			continue
		}
		task.Href = href
		task.Etag = fetchedEtag
		task.CalendarHref = calendarHref
		out = append(out, task)
	}

	if err := e.remoteCache.Save(calendarHref, remotecache.Cache{SyncToken: token, Tasks: out}); err != nil {
		debug.Warn("saving remote cache for %s failed: %v", calendarHref, err)
	}
	return out, false, nil
}
