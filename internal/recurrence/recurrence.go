// Package recurrence computes the next occurrence of a recurring task
// (spec §4.8), grounded on
// _examples/original_source/src/model/recurrence.rs, using
// github.com/teambition/rrule-go in place of the Rust rrule crate.
package recurrence

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/teambition/rrule-go"

	"github.com/untoldecay/cfaitgo/internal/model"
)

// NextOccurrence returns a fresh successor Task for t's next occurrence
// strictly after now, or nil if the rule is exhausted or t has no rrule.
// The successor carries a new uid, empty href/etag, cleared dependencies,
// reset sequence, and alarms trimmed of snoozes/acknowledgements (spec
// §4.8). Seed selection and "now" comparison follow spec §4.8's
// all-day-vs-specific rule precisely.
func NextOccurrence(t *model.Task, now time.Time) *model.Task {
	if t.RRule == "" {
		return nil
	}
	seed := t.DTStart
	if seed == nil {
		seed = t.Due
	}
	if seed == nil {
		return nil
	}

	seedUTC := seed.ToUTC()

	set, err := buildRRuleSet(t, *seed, seedUTC)
	if err != nil {
		return nil
	}

	comparisonNow := now.UTC()
	if seed.Kind == model.AllDay {
		y, m, d := now.Local().Date()
		comparisonNow = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	searchFloor := seedUTC
	if comparisonNow.After(searchFloor) {
		searchFloor = comparisonNow
	}

	var next time.Time
	found := false
	for _, occ := range set.All() {
		u := occ.UTC()
		if u.After(searchFloor) {
			next = u
			found = true
			break
		}
	}
	if !found {
		return nil
	}

	successor := t.Clone()
	successor.UID = uuid.NewString()
	successor.Href = ""
	successor.Etag = ""
	successor.Status = model.NeedsAction
	successor.PercentComplete = nil
	successor.Dependencies = nil
	successor.Sequence = 0

	kept := successor.UnmappedProperties[:0:0]
	for _, p := range successor.UnmappedProperties {
		if p.Key != "COMPLETED" {
			kept = append(kept, p)
		}
	}
	successor.UnmappedProperties = kept

	keptAlarms := successor.Alarms[:0:0]
	for _, a := range successor.Alarms {
		if !a.IsSnooze() && a.Acknowledged == nil {
			keptAlarms = append(keptAlarms, a)
		}
	}
	successor.Alarms = keptAlarms

	var duration time.Duration
	if t.Due != nil {
		duration = t.Due.ToUTC().Sub(seedUTC)
	}

	if t.DTStart != nil {
		successor.DTStart = shiftDate(*t.DTStart, next)
	}
	if t.Due != nil {
		nextDue := next.Add(duration)
		successor.Due = shiftDate(*t.Due, nextDue)
	}

	return successor
}

// Advance mutates task in place to its next occurrence, preserving uid,
// href, etag, calendar_href, and the CREATED property, and bumping
// sequence (spec §4.8 "recycled instance"). Returns false when no further
// occurrence exists, leaving task unchanged.
func Advance(task *model.Task, now time.Time) bool {
	next := NextOccurrence(task, now)
	if next == nil {
		return false
	}
	uid, href, etag, calHref := task.UID, task.Href, task.Etag, task.CalendarHref
	seq := task.Sequence
	created, hadCreated := task.GetUnmapped("CREATED")

	*task = *next
	task.UID = uid
	task.Href = href
	task.Etag = etag
	task.CalendarHref = calHref
	if hadCreated {
		task.SetUnmapped("CREATED", created)
	}
	task.Sequence = seq + 1
	return true
}

func shiftDate(original model.DateType, newInstant time.Time) *model.DateType {
	if original.Kind == model.AllDay {
		d := model.NewAllDay(newInstant)
		return &d
	}
	d := model.NewSpecific(newInstant)
	return &d
}

// buildRRuleSet constructs an rrule.Set from the task's sanitized RRULE
// text and deduplicated EXDATEs, normalizing UNTIL to the same granularity
// as DTSTART (spec §4.8).
func buildRRuleSet(t *model.Task, seed model.DateType, seedUTC time.Time) (*rrule.Set, error) {
	clean := strings.TrimSpace(t.RRule)
	if strings.HasPrefix(strings.ToUpper(clean), "RRULE:") {
		clean = clean[len("RRULE:"):]
	}
	clean = upgradeUntilGranularity(clean)

	ro, err := rrule.StrToROption(clean)
	if err != nil {
		return nil, err
	}
	ro.Dtstart = seedUTC

	r, err := rrule.NewRRule(*ro)
	if err != nil {
		return nil, err
	}

	set := rrule.Set{}
	set.RRule(r)

	seen := map[string]bool{}
	for _, ex := range t.Exdates {
		u := ex.ToUTC()
		key := u.Format(time.RFC3339)
		if seen[key] {
			continue
		}
		seen[key] = true
		set.ExDate(u)
	}
	return &set, nil
}

// upgradeUntilGranularity rewrites a date-only UNTIL (8 digits, no "T")
// into end-of-day UTC, since RFC 5545 requires UNTIL to match DTSTART's
// value type and the seed is always normalized to a datetime here.
func upgradeUntilGranularity(rule string) string {
	idx := strings.Index(strings.ToUpper(rule), "UNTIL=")
	if idx < 0 {
		return rule
	}
	start := idx + len("UNTIL=")
	end := strings.IndexByte(rule[start:], ';')
	if end < 0 {
		end = len(rule) - start
	}
	val := rule[start : start+end]
	if len(val) == 8 && !strings.Contains(val, "T") {
		if _, err := strconv.Atoi(val); err == nil {
			return rule[:start] + val + "T235959Z" + rule[start+end:]
		}
	}
	return rule
}
