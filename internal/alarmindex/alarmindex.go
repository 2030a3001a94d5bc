// Package alarmindex maintains a compact, trigger-sorted projection of
// every active alarm so a notifier doesn't need to parse the full task
// store to decide what's due (spec §4.1 alarm index, glossary "Implicit
// alarm"). Grounded on
// _examples/original_source/src/alarm_index.rs.
package alarmindex

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/untoldecay/cfaitgo/internal/atomicfile"
	"github.com/untoldecay/cfaitgo/internal/model"
	"github.com/untoldecay/cfaitgo/internal/paths"
)

// currentVersion gates compatibility; bump whenever Entry's shape changes
// so a stale index is rebuilt instead of misread.
const currentVersion = 1

const gracePeriod = 2 * time.Hour

// rebuildWindow is the shorter window RebuildFromTasks uses to decide
// whether an alarm is even worth carrying into the index; the wider
// gracePeriod above governs how long an already-indexed entry keeps
// firing/surviving pruning once it's in.
const rebuildWindow = 60 * time.Minute

// Entry is the minimal payload needed to decide whether an alarm fires and
// to render its notification (spec alarm_index.rs AlarmIndexEntry).
type Entry struct {
	TriggerMS    int64  `json:"trigger_ms"`
	TaskUID      string `json:"task_uid"`
	AlarmUID     string `json:"alarm_uid"`
	TaskTitle    string `json:"task_title"`
	CalendarHref string `json:"calendar_href"`
	IsImplicit   bool   `json:"is_implicit"`
	Description  string `json:"description,omitempty"`
}

// Index is the on-disk shape: a version tag plus the sorted entry list.
type Index struct {
	Version     int     `json:"version"`
	LastUpdated int64   `json:"last_updated"`
	Alarms      []Entry `json:"alarms"`
}

// Store owns alarm_index.json.
type Store struct {
	paths *paths.Paths
}

func New(p *paths.Paths) *Store { return &Store{paths: p} }

// Load reads the index, returning an empty one on any error (spec: "never
// block alarm delivery on a corrupt cache").
func (s *Store) Load() Index {
	data, err := os.ReadFile(s.paths.AlarmIndexFile())
	if err != nil {
		return Index{Version: currentVersion}
	}
	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil || idx.Version != currentVersion {
		return Index{Version: currentVersion}
	}
	return idx
}

// Save writes the index atomically under lock.
func (s *Store) Save(idx Index) error {
	path := s.paths.AlarmIndexFile()
	return atomicfile.WithLock(path, func() error {
		data, err := json.MarshalIndent(idx, "", "  ")
		if err != nil {
			return err
		}
		return atomicfile.AtomicWrite(path, data)
	})
}

// RebuildFromTasks recomputes the entire index from the live task set.
// calendars maps calendar href to its tasks (mirroring the original's
// nested HashMap<href, HashMap<uid, Task>>). Completed and cancelled tasks
// are skipped entirely; every unacknowledged explicit alarm (snoozes
// included) whose trigger is upcoming or fired within rebuildWindow is
// indexed; implicit due/dtstart alarms are synthesized, under the same
// window, only when no active explicit alarm exists and
// auto_reminders_enabled is set (spec §4.1, §9 "Alarm index").
func RebuildFromTasks(calendars map[string][]*model.Task, autoRemindersEnabled bool, defaultReminderTime string, now time.Time) Index {
	defaultHour, defaultMinute := parseHHMM(defaultReminderTime)

	var entries []Entry
	for calendarHref, tasks := range calendars {
		for _, t := range tasks {
			if t.Status.IsDone() {
				continue
			}

			for _, a := range t.Alarms {
				if a.Acknowledged != nil {
					continue
				}
				trigger, ok := resolveTrigger(a, t)
				if !ok {
					continue
				}
				if withinRebuildWindow(trigger, now) {
					entries = append(entries, Entry{
						TriggerMS:    trigger.UnixMilli(),
						TaskUID:      t.UID,
						AlarmUID:     a.UID,
						TaskTitle:    t.Summary,
						CalendarHref: calendarHref,
						IsImplicit:   false,
						Description:  a.Description,
					})
				}
			}

			if !autoRemindersEnabled {
				continue
			}
			hasActiveExplicit := false
			for _, a := range t.Alarms {
				if a.Acknowledged == nil {
					hasActiveExplicit = true
					break
				}
			}
			if hasActiveExplicit {
				continue
			}

			if t.Due != nil {
				dt := toInstant(*t.Due, defaultHour, defaultMinute)
				if withinRebuildWindow(dt, now) {
					entries = append(entries, implicitEntry(t, calendarHref, dt, "Due now", "due"))
				}
			}
			if t.DTStart != nil {
				dt := toInstant(*t.DTStart, defaultHour, defaultMinute)
				if withinRebuildWindow(dt, now) {
					entries = append(entries, implicitEntry(t, calendarHref, dt, "Starting now", "start"))
				}
			}
		}
	}

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].TriggerMS < entries[j].TriggerMS })
	entries = dedupByAlarmUID(entries)

	return Index{Version: currentVersion, LastUpdated: now.Unix(), Alarms: entries}
}

func resolveTrigger(a model.Alarm, t *model.Task) (time.Time, bool) {
	if a.Trigger.Absolute != nil {
		return *a.Trigger.Absolute, true
	}
	if a.Trigger.OffsetMinutes == nil {
		return time.Time{}, false
	}
	var anchor *model.DateType
	if t.Due != nil && t.Due.Kind == model.Specific {
		anchor = t.Due
	} else if t.DTStart != nil && t.DTStart.Kind == model.Specific {
		anchor = t.DTStart
	}
	if anchor == nil {
		return time.Time{}, false
	}
	return anchor.ToUTC().Add(time.Duration(*a.Trigger.OffsetMinutes) * time.Minute), true
}

func toInstant(d model.DateType, hour, minute int) time.Time {
	if d.Kind == model.Specific {
		return d.Time
	}
	y, m, day := d.Date.Date()
	return time.Date(y, m, day, hour, minute, 0, 0, time.Local).UTC()
}

func implicitEntry(t *model.Task, calendarHref string, trigger time.Time, desc, kind string) Entry {
	synthUID := fmt.Sprintf("implicit_%s:|%s|%s", kind, trigger.UTC().Format(time.RFC3339), t.UID)
	return Entry{
		TriggerMS:    trigger.UnixMilli(),
		TaskUID:      t.UID,
		AlarmUID:     synthUID,
		TaskTitle:    t.Summary,
		CalendarHref: calendarHref,
		IsImplicit:   true,
		Description:  desc,
	}
}

// withinRebuildWindow decides whether a trigger is worth carrying into a
// freshly rebuilt index: any future trigger, or one that fired within the
// last hour.
func withinRebuildWindow(trigger, now time.Time) bool {
	if trigger.After(now) {
		return true
	}
	return now.Sub(trigger) < rebuildWindow
}

func dedupByAlarmUID(entries []Entry) []Entry {
	seen := map[string]bool{}
	out := entries[:0:0]
	for _, e := range entries {
		if seen[e.AlarmUID] {
			continue
		}
		seen[e.AlarmUID] = true
		out = append(out, e)
	}
	return out
}

// GetFiringAlarms returns every entry within the 120-minute grace window
// at or before now (spec alarm_index.rs get_firing_alarms).
func (idx Index) GetFiringAlarms(now time.Time) []Entry {
	nowMS := now.UnixMilli()
	graceMS := gracePeriod.Milliseconds()
	var out []Entry
	for _, e := range idx.Alarms {
		if e.TriggerMS <= nowMS && (nowMS-e.TriggerMS) < graceMS {
			out = append(out, e)
		}
	}
	return out
}

// GetNextAlarmTimestamp returns the Unix-seconds timestamp of the first
// entry strictly after now, since Alarms is trigger-sorted.
func (idx Index) GetNextAlarmTimestamp(now time.Time) (int64, bool) {
	nowMS := now.UnixMilli()
	for _, e := range idx.Alarms {
		if e.TriggerMS > nowMS {
			return e.TriggerMS / 1000, true
		}
	}
	return 0, false
}

// PruneOldAlarms drops entries that have fallen outside the grace window,
// keeping the file small over time.
func (idx Index) PruneOldAlarms(now time.Time) Index {
	nowMS := now.UnixMilli()
	graceMS := gracePeriod.Milliseconds()
	kept := idx.Alarms[:0:0]
	for _, e := range idx.Alarms {
		if nowMS-e.TriggerMS < graceMS {
			kept = append(kept, e)
		}
	}
	idx.Alarms = kept
	return idx
}

func parseHHMM(s string) (hour, minute int) {
	if _, err := fmt.Sscanf(s, "%d:%d", &hour, &minute); err != nil {
		return 9, 0
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 9, 0
	}
	return hour, minute
}
