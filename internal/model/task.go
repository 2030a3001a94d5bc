// Package model defines the in-memory Task entity (spec §3) and its
// satellite types: Alarm, CalendarListEntry, RawProperty, Session.
package model

import "time"

// TaskStatus is the task's lifecycle state (spec §3).
type TaskStatus int

const (
	NeedsAction TaskStatus = iota
	InProcess
	Completed
	Cancelled
)

func (s TaskStatus) String() string {
	switch s {
	case NeedsAction:
		return "NEEDS-ACTION"
	case InProcess:
		return "IN-PROCESS"
	case Completed:
		return "COMPLETED"
	case Cancelled:
		return "CANCELLED"
	default:
		return "NEEDS-ACTION"
	}
}

// IsDone reports whether s is a terminal, "done" state for blocking and
// search-predicate purposes (spec §4.7 is_blocked, §9 matcher "is:done").
func (s TaskStatus) IsDone() bool {
	return s == Completed || s == Cancelled
}

// ParseTaskStatus maps an ICS STATUS value onto TaskStatus, defaulting to
// NeedsAction for unrecognized or absent values.
func ParseTaskStatus(s string) TaskStatus {
	switch s {
	case "IN-PROCESS":
		return InProcess
	case "COMPLETED":
		return Completed
	case "CANCELLED":
		return Cancelled
	default:
		return NeedsAction
	}
}

// BlockedCategory is the reserved category a task carries to mark itself
// manually blocked, independent of dependency resolution (spec §4.7).
const BlockedCategory = "blocked"

// RawProperty is a verbatim-preserved ICS property captured for round-trip
// fidelity (spec §3, §4.3).
type RawProperty struct {
	Key    string            `json:"key"`
	Value  string            `json:"value"`
	Params map[string]string `json:"params,omitempty"`
}

// AlarmTrigger is either an absolute instant or a minute offset relative to
// the owning task's due/dtstart (spec §3).
type AlarmTrigger struct {
	Absolute *time.Time `json:"absolute,omitempty"`
	// OffsetMinutes is relative to due if set, else dtstart. Negative values
	// precede the anchor, matching RFC 5545 TRIGGER;RELATED=START/END semantics.
	OffsetMinutes *int `json:"offset_minutes,omitempty"`
}

// Alarm is a reminder attached to a Task (spec §3).
type Alarm struct {
	UID           string     `json:"uid"`
	Trigger       AlarmTrigger `json:"trigger"`
	Description   string     `json:"description,omitempty"`
	Acknowledged  *time.Time `json:"acknowledged,omitempty"`
	RelatedToUID  string     `json:"related_to_uid,omitempty"`
}

// IsSnooze reports whether this alarm was spawned from an acknowledged
// original (spec §3 Alarm, glossary "Snooze alarm").
func (a Alarm) IsSnooze() bool { return a.RelatedToUID != "" }

// Session is one tracked work interval, accumulated via
// set_status_in_process/pause_task (spec §4.7).
type Session struct {
	Start time.Time  `json:"start"`
	End   *time.Time `json:"end,omitempty"`
}

// CalendarListEntry describes one calendar known to the client (spec §3).
type CalendarListEntry struct {
	Name      string `json:"name"`
	Href      string `json:"href"`
	Color     string `json:"color,omitempty"`
	AccountID string `json:"account_id,omitempty"`
	IsLocal   bool   `json:"is_local"`
}

// LocalDefaultHref, LocalRecoveryHref name the two reserved local://
// calendars (spec §3, glossary "Recovery calendar").
const (
	LocalDefaultHref  = "local://default"
	LocalRecoveryHref = "local://recovery"
	LocalSchemePrefix = "local://"
)

// IsLocalHref reports whether href names a purely local calendar.
func IsLocalHref(href string) bool {
	return len(href) >= len(LocalSchemePrefix) && href[:len(LocalSchemePrefix)] == LocalSchemePrefix
}

// PendingRefreshEtag is the sentinel etag value meaning "a sync attempt is
// in flight and the real etag is not yet known" (spec §3, §4.9 step table).
const PendingRefreshEtag = "pending_refresh"

// Task is the central entity (spec §3).
type Task struct {
	UID         string `json:"uid"`
	Summary     string `json:"summary"`
	Description string `json:"description"`

	Status          TaskStatus `json:"status"`
	PercentComplete *int       `json:"percent_complete,omitempty"`

	Due    *DateType `json:"due,omitempty"`
	DTStart *DateType `json:"dtstart,omitempty"`

	EstimatedDuration    *int `json:"estimated_duration,omitempty"`
	EstimatedDurationMax *int `json:"estimated_duration_max,omitempty"`

	RRule   string     `json:"rrule,omitempty"`
	Exdates []DateType `json:"exdates,omitempty"`

	Alarms []Alarm `json:"alarms,omitempty"`

	Priority   uint8    `json:"priority"`
	Categories []string `json:"categories,omitempty"`

	Location string `json:"location,omitempty"`
	URL      string `json:"url,omitempty"`
	Geo      string `json:"geo,omitempty"`

	ParentUID    string   `json:"parent_uid,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
	RelatedTo    []string `json:"related_to,omitempty"`

	UnmappedProperties []RawProperty `json:"unmapped_properties,omitempty"`
	RawAlarms          []string      `json:"raw_alarms,omitempty"`
	RawComponents      []string      `json:"raw_components,omitempty"`

	Etag         string `json:"etag"`
	Href         string `json:"href"`
	CalendarHref string `json:"calendar_href"`

	Sequence int `json:"sequence"`

	TimeSpentSeconds int64      `json:"time_spent_seconds"`
	Sessions         []Session  `json:"sessions,omitempty"`
	LastStartedAt    *time.Time `json:"last_started_at,omitempty"`
}

// Clone deep-copies t so callers may mutate the copy without aliasing
// slices or pointer fields.
func (t *Task) Clone() *Task {
	c := *t
	c.Due = clonePtrDate(t.Due)
	c.DTStart = clonePtrDate(t.DTStart)
	c.EstimatedDuration = clonePtrInt(t.EstimatedDuration)
	c.EstimatedDurationMax = clonePtrInt(t.EstimatedDurationMax)
	c.PercentComplete = clonePtrInt(t.PercentComplete)
	c.Exdates = append([]DateType(nil), t.Exdates...)
	c.Alarms = append([]Alarm(nil), t.Alarms...)
	c.Categories = append([]string(nil), t.Categories...)
	c.Dependencies = append([]string(nil), t.Dependencies...)
	c.RelatedTo = append([]string(nil), t.RelatedTo...)
	c.UnmappedProperties = append([]RawProperty(nil), t.UnmappedProperties...)
	c.RawAlarms = append([]string(nil), t.RawAlarms...)
	c.RawComponents = append([]string(nil), t.RawComponents...)
	c.Sessions = append([]Session(nil), t.Sessions...)
	if t.LastStartedAt != nil {
		v := *t.LastStartedAt
		c.LastStartedAt = &v
	}
	return &c
}

func clonePtrDate(d *DateType) *DateType {
	if d == nil {
		return nil
	}
	v := *d
	return &v
}

func clonePtrInt(i *int) *int {
	if i == nil {
		return nil
	}
	v := *i
	return &v
}

// IsUnsynced reports whether t has never been written to a remote resource
// (both etag and href empty, spec §3 invariant).
func (t *Task) IsUnsynced() bool {
	return t.Etag == "" && t.Href == ""
}

// GetUnmapped returns the raw value of an unmapped property by
// case-insensitive key, or "" if absent.
func (t *Task) GetUnmapped(key string) (string, bool) {
	for _, p := range t.UnmappedProperties {
		if equalFold(p.Key, key) {
			return p.Value, true
		}
	}
	return "", false
}

// SetUnmapped replaces (or appends) an unmapped property by
// case-insensitive key.
func (t *Task) SetUnmapped(key, value string) {
	for i, p := range t.UnmappedProperties {
		if equalFold(p.Key, key) {
			t.UnmappedProperties[i].Value = value
			return
		}
	}
	t.UnmappedProperties = append(t.UnmappedProperties, RawProperty{Key: key, Value: value})
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ca, cb := a[i], b[i]
		if ca >= 'A' && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if cb >= 'A' && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
