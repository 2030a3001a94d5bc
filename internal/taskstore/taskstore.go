// Package taskstore implements the in-memory indexed task model (spec
// §4.7): calendar->uid->task partitions plus a uid->href secondary index,
// status transitions, dependency tracking, and filter/sort. Grounded on
// _examples/original_source/src/store.rs and the fuller API surface implied
// by _examples/original_source/src/client/core.rs's TaskController usage.
package taskstore

import (
	"errors"
	"sort"
	"time"

	"github.com/untoldecay/cfaitgo/internal/model"
	"github.com/untoldecay/cfaitgo/internal/recurrence"
	"github.com/untoldecay/cfaitgo/internal/search"
)

// ErrNotFound is returned when an operation targets an unknown uid.
var ErrNotFound = errors.New("cfait: taskstore: task not found")

// Store is calendars: map<href, map<uid, Task>> plus index: map<uid, href>
// (spec §4.7).
type Store struct {
	calendars map[string]map[string]*model.Task
	index     map[string]string
}

func New() *Store {
	return &Store{
		calendars: map[string]map[string]*model.Task{},
		index:     map[string]string{},
	}
}

func (s *Store) ensureCalendar(href string) map[string]*model.Task {
	m, ok := s.calendars[href]
	if !ok {
		m = map[string]*model.Task{}
		s.calendars[href] = m
	}
	return m
}

// AddTask inserts t, partitioned by t.CalendarHref, and updates the
// secondary index.
func (s *Store) AddTask(t *model.Task) {
	s.UpdateOrAddTask(t)
}

// UpdateOrAddTask inserts or replaces t in its calendar partition. If t's
// uid previously lived in a different calendar, the stale entry is removed
// first so the secondary index stays consistent (spec §3 invariant: uid is
// unique across the entire store).
func (s *Store) UpdateOrAddTask(t *model.Task) {
	if prevHref, ok := s.index[t.UID]; ok && prevHref != t.CalendarHref {
		delete(s.calendars[prevHref], t.UID)
	}
	s.ensureCalendar(t.CalendarHref)[t.UID] = t
	s.index[t.UID] = t.CalendarHref
}

// GetTask returns the task for uid, if present.
func (s *Store) GetTask(uid string) (*model.Task, bool) {
	href, ok := s.index[uid]
	if !ok {
		return nil, false
	}
	t, ok := s.calendars[href][uid]
	return t, ok
}

// AllInCalendar returns every task currently stored in href.
func (s *Store) AllInCalendar(href string) []*model.Task {
	m := s.calendars[href]
	out := make([]*model.Task, 0, len(m))
	for _, t := range m {
		out = append(out, t)
	}
	return out
}

// AllCalendars returns every known calendar href mapped to its tasks, for
// callers (the alarm index rebuild) that need a full snapshot rather than
// one calendar at a time.
func (s *Store) AllCalendars() map[string][]*model.Task {
	out := make(map[string][]*model.Task, len(s.calendars))
	for href, m := range s.calendars {
		tasks := make([]*model.Task, 0, len(m))
		for _, t := range m {
			tasks = append(tasks, t)
		}
		out[href] = tasks
	}
	return out
}

// ReplaceCalendar discards href's current contents and installs tasks in
// their place (used by the controller's Sync to fold in the sync engine's
// fetch pipeline results, spec §4.9.2).
func (s *Store) ReplaceCalendar(href string, tasks []*model.Task) {
	for uid, h := range s.index {
		if h == href {
			delete(s.index, uid)
		}
	}
	m := map[string]*model.Task{}
	for _, t := range tasks {
		t.CalendarHref = href
		m[t.UID] = t
		s.index[t.UID] = href
	}
	s.calendars[href] = m
}

// DeleteTask removes uid and returns the removed task plus any children
// (tasks with parent_uid == uid), left for the caller to re-parent or
// delete (spec §4.7).
func (s *Store) DeleteTask(uid string) (*model.Task, []*model.Task, error) {
	href, ok := s.index[uid]
	if !ok {
		return nil, nil, ErrNotFound
	}
	t := s.calendars[href][uid]
	delete(s.calendars[href], uid)
	delete(s.index, uid)

	var children []*model.Task
	for _, cal := range s.calendars {
		for _, c := range cal {
			if c.ParentUID == uid {
				children = append(children, c)
			}
		}
	}
	return t, children, nil
}

// SetStatus implements spec §4.7's set_status: for a recurring task being
// completed or cancelled, the current instance is preserved as terminal
// history (primary) and a successor is spawned (secondary) with a fresh
// uid. Non-recurring transitions return only primary. Children of a task
// being completed are returned (cascade policy deferred to the caller,
// spec §4.7 and §9 Open Question "Promotion-on-reopen").
func (s *Store) SetStatus(uid string, newStatus model.TaskStatus, now time.Time) (primary, secondary *model.Task, children []*model.Task, err error) {
	t, ok := s.GetTask(uid)
	if !ok {
		return nil, nil, nil, ErrNotFound
	}

	wasTerminal := t.Status.IsDone()
	t.Status = newStatus
	t.Sequence++

	if (newStatus == model.Completed || newStatus == model.Cancelled) && t.RRule != "" {
		if newStatus == model.Completed {
			t.SetUnmapped("COMPLETED", now.UTC().Format("20060102T150405Z"))
		}
		succ := recurrence.NextOccurrence(t, now)
		s.UpdateOrAddTask(t)
		if succ != nil {
			succ.CalendarHref = t.CalendarHref
			s.UpdateOrAddTask(succ)
		}
		if newStatus == model.Completed {
			children = s.childrenOf(uid)
		}
		return t, succ, children, nil
	}

	s.UpdateOrAddTask(t)
	if newStatus.IsDone() && !wasTerminal {
		children = s.childrenOf(uid)
	}
	return t, nil, children, nil
}

func (s *Store) childrenOf(uid string) []*model.Task {
	var out []*model.Task
	for _, cal := range s.calendars {
		for _, c := range cal {
			if c.ParentUID == uid {
				out = append(out, c)
			}
		}
	}
	return out
}

// ToggleTask flips NeedsAction<->Completed (spec §4.7 convenience wrapper).
func (s *Store) ToggleTask(uid string, now time.Time) (primary, secondary *model.Task, children []*model.Task, err error) {
	t, ok := s.GetTask(uid)
	if !ok {
		return nil, nil, nil, ErrNotFound
	}
	if t.Status == model.Completed {
		return s.SetStatus(uid, model.NeedsAction, now)
	}
	return s.SetStatus(uid, model.Completed, now)
}

// SetStatusInProcess starts or resumes a tracking session (spec §4.7).
func (s *Store) SetStatusInProcess(uid string, now time.Time) (*model.Task, error) {
	t, ok := s.GetTask(uid)
	if !ok {
		return nil, ErrNotFound
	}
	if t.Status != model.InProcess {
		t.Status = model.InProcess
		n := now.UTC()
		t.LastStartedAt = &n
		t.Sequence++
	}
	return t, nil
}

// PauseTask closes the current session, accumulates elapsed seconds, and
// returns the task to NeedsAction while preserving a non-zero
// percent_complete (the "paused" encoding, spec §3/§4.7).
func (s *Store) PauseTask(uid string, now time.Time) (*model.Task, error) {
	t, ok := s.GetTask(uid)
	if !ok {
		return nil, ErrNotFound
	}
	if t.LastStartedAt != nil {
		elapsed := now.UTC().Sub(*t.LastStartedAt)
		t.TimeSpentSeconds += int64(elapsed.Seconds())
		end := now.UTC()
		t.Sessions = append(t.Sessions, model.Session{Start: *t.LastStartedAt, End: &end})
		t.LastStartedAt = nil
	}
	t.Status = model.NeedsAction
	if t.PercentComplete == nil || *t.PercentComplete == 0 {
		one := 1
		t.PercentComplete = &one
	}
	t.Sequence++
	return t, nil
}

// StopTask closes the session and resets percent_complete to null (spec §4.7).
func (s *Store) StopTask(uid string, now time.Time) (*model.Task, error) {
	t, err := s.PauseTask(uid, now)
	if err != nil {
		return nil, err
	}
	t.PercentComplete = nil
	return t, nil
}

// MoveTask changes calendar_href and clears href/etag so the sync engine
// treats the destination as fresh (spec §4.7).
func (s *Store) MoveTask(uid, newHref string) (original, updated *model.Task, err error) {
	t, ok := s.GetTask(uid)
	if !ok {
		return nil, nil, ErrNotFound
	}
	original = t.Clone()
	t.CalendarHref = newHref
	t.Href = ""
	t.Etag = ""
	t.Sequence++
	s.UpdateOrAddTask(t)
	return original, t, nil
}

// IsBlocked reports whether any dependency resolves to a non-Done task, or
// whether t carries the reserved "blocked" category (spec §4.7). Unknown
// dependency uids are non-blocking.
func (s *Store) IsBlocked(t *model.Task) bool {
	for _, c := range t.Categories {
		if c == model.BlockedCategory {
			return true
		}
	}
	for _, dep := range t.Dependencies {
		if d, ok := s.GetTask(dep); ok && !d.Status.IsDone() {
			return true
		}
	}
	return false
}

// FilterOptions configures Filter (spec §4.7).
type FilterOptions struct {
	ActiveCalendars      []string // empty means "all known calendars"
	Categories           []string
	CategoryModeAND      bool
	Locations            []string
	SearchTerm           string
	HideCompleted        bool
	HideCompletedInTags  bool
	MinDurationMinutes   *int
	MaxDurationMinutes   *int
	IncludeUnsetDuration bool
	UrgentDaysHorizon    int
	UrgentPriorityMin    uint8
	StartGracePeriodDays int
	Now                  time.Time
}

// rank implements the nine-way stable sort order (spec §4.7): overdue,
// due-today, urgent, started, ready, ordinary, low-priority, future, done.
type rank int

const (
	rankOverdue rank = iota
	rankDueToday
	rankUrgent
	rankStarted
	rankReady
	rankOrdinary
	rankLowPriority
	rankFuture
	rankCompleted
)

// Filter implements spec §4.7's combined query: calendar/category/location
// inclusion, search term, hide-completed, duration range, and urgency
// horizon, followed by the stable nine-rank sort with the three binding
// rules (blocked tasks capped at ordinary, grace-period sink unless an
// alarm is acknowledged, and children following their parent within a
// rank).
func (s *Store) Filter(opts FilterOptions) []*model.Task {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	var candidates []*model.Task
	calSet := map[string]bool{}
	for _, c := range opts.ActiveCalendars {
		calSet[c] = true
	}
	for href, tasks := range s.calendars {
		if len(calSet) > 0 && !calSet[href] {
			continue
		}
		for _, t := range tasks {
			candidates = append(candidates, t)
		}
	}

	out := candidates[:0:0]
	for _, t := range candidates {
		if !matchesCategories(t, opts) {
			continue
		}
		if !matchesLocations(t, opts.Locations) {
			continue
		}
		if !search.Matches(t, opts.SearchTerm) {
			continue
		}
		if opts.HideCompleted && t.Status.IsDone() {
			continue
		}
		if opts.HideCompletedInTags && t.Status.IsDone() && hasAnyCategory(t, opts.Categories) {
			continue
		}
		if !matchesDuration(t, opts) {
			continue
		}
		out = append(out, t)
	}

	ranked := make([]struct {
		t *model.Task
		r rank
	}, len(out))
	for i, t := range out {
		ranked[i].t = t
		ranked[i].r = s.rankOf(t, opts, now)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].r != ranked[j].r {
			return ranked[i].r < ranked[j].r
		}
		return lessWithinRank(ranked[i].t, ranked[j].t)
	})

	result := make([]*model.Task, 0, len(ranked))
	for i := 0; i < len(ranked); {
		j := i
		var run []*model.Task
		for j < len(ranked) && ranked[j].r == ranked[i].r {
			run = append(run, ranked[j].t)
			j++
		}
		result = append(result, reorderChildrenAfterParents(run)...)
		i = j
	}
	return result
}

func matchesCategories(t *model.Task, opts FilterOptions) bool {
	if len(opts.Categories) == 0 {
		return true
	}
	if opts.CategoryModeAND {
		for _, want := range opts.Categories {
			if !hasCategory(t, want) {
				return false
			}
		}
		return true
	}
	return hasAnyCategory(t, opts.Categories)
}

func hasCategory(t *model.Task, want string) bool {
	for _, c := range t.Categories {
		if c == want {
			return true
		}
	}
	return false
}

func hasAnyCategory(t *model.Task, wanted []string) bool {
	for _, w := range wanted {
		if hasCategory(t, w) {
			return true
		}
	}
	return len(wanted) == 0
}

func matchesLocations(t *model.Task, locations []string) bool {
	if len(locations) == 0 {
		return true
	}
	for _, l := range locations {
		if t.Location == l {
			return true
		}
	}
	return false
}

func matchesDuration(t *model.Task, opts FilterOptions) bool {
	if opts.MinDurationMinutes == nil && opts.MaxDurationMinutes == nil {
		return true
	}
	if t.EstimatedDuration == nil {
		return opts.IncludeUnsetDuration
	}
	d := *t.EstimatedDuration
	if opts.MinDurationMinutes != nil && d < *opts.MinDurationMinutes {
		return false
	}
	if opts.MaxDurationMinutes != nil && d > *opts.MaxDurationMinutes {
		return false
	}
	return true
}

func (s *Store) rankOf(t *model.Task, opts FilterOptions, now time.Time) rank {
	if t.Status.IsDone() {
		return rankCompleted
	}

	blocked := s.IsBlocked(t)

	if t.DTStart != nil {
		grace := now.AddDate(0, 0, opts.StartGracePeriodDays)
		if t.DTStart.ToUTC().After(grace) && !hasAcknowledgedAlarm(t) {
			if blocked {
				return rankOrdinary
			}
			return rankFuture
		}
	}

	if blocked {
		return rankOrdinary
	}

	if t.Due != nil {
		due := t.Due.ToUTC()
		if due.Before(now) {
			return rankOverdue
		}
		if sameDay(due, now) {
			return rankDueToday
		}
		horizon := now.AddDate(0, 0, opts.UrgentDaysHorizon)
		if due.Before(horizon) && t.Priority >= opts.UrgentPriorityMin && opts.UrgentPriorityMin > 0 {
			return rankUrgent
		}
	}

	if t.Status == model.InProcess {
		return rankStarted
	}

	if t.Priority > 0 && t.Priority <= 3 {
		return rankLowPriority
	}

	if hasReadySignal(t) {
		return rankReady
	}

	return rankOrdinary
}

func hasReadySignal(t *model.Task) bool {
	return len(t.Dependencies) == 0 && t.ParentUID == ""
}

func hasAcknowledgedAlarm(t *model.Task) bool {
	for _, a := range t.Alarms {
		if a.Acknowledged != nil {
			return true
		}
	}
	return false
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func lessWithinRank(a, b *model.Task) bool {
	ad, bd := dueOrMax(a), dueOrMax(b)
	if !ad.Equal(bd) {
		return ad.Before(bd)
	}
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.Summary < b.Summary
}

func dueOrMax(t *model.Task) time.Time {
	if t.Due != nil {
		return t.Due.ToUTC()
	}
	return time.Unix(1<<62, 0)
}

// reorderChildrenAfterParents enforces binding rule 3: within each
// contiguous same-rank run, a child task (by parent_uid) is moved to
// immediately follow its parent if the parent is present in the same run.
func reorderChildrenAfterParents(tasks []*model.Task) []*model.Task {
	byUID := map[string]*model.Task{}
	for _, t := range tasks {
		byUID[t.UID] = t
	}
	placed := map[string]bool{}
	out := make([]*model.Task, 0, len(tasks))
	var emit func(t *model.Task)
	childrenOf := map[string][]*model.Task{}
	for _, t := range tasks {
		if t.ParentUID != "" {
			childrenOf[t.ParentUID] = append(childrenOf[t.ParentUID], t)
		}
	}
	emit = func(t *model.Task) {
		if placed[t.UID] {
			return
		}
		placed[t.UID] = true
		out = append(out, t)
		for _, c := range childrenOf[t.UID] {
			emit(c)
		}
	}
	for _, t := range tasks {
		if t.ParentUID != "" {
			if _, ok := byUID[t.ParentUID]; ok {
				continue // emitted when its parent is reached
			}
		}
		emit(t)
	}
	return out
}
