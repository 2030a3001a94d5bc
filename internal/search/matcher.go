// Package search implements the structured search predicate referenced by
// the task store's filter() (spec §4.7, "full-text and structured search
// expression"). It is distinct from the smart-input mutation grammar (spec
// §9), which is an out-of-scope collaborator; this is a read-only boolean
// predicate. Grounded on
// _examples/original_source/src/model/matcher.rs.
package search

import (
	"strconv"
	"strings"
	"time"

	"github.com/untoldecay/cfaitgo/internal/model"
)

// Matches reports whether task satisfies every whitespace-separated token
// in term. An empty term always matches.
func Matches(task *model.Task, term string) bool {
	term = strings.TrimSpace(term)
	if term == "" {
		return true
	}
	for _, part := range strings.Fields(strings.ToLower(term)) {
		if !matchToken(task, part) {
			return false
		}
	}
	return true
}

func matchToken(t *model.Task, part string) bool {
	if loc, ok := stripAny(part, "@@", "loc:"); ok {
		return t.Location != "" && strings.Contains(strings.ToLower(t.Location), loc)
	}

	if strings.HasPrefix(part, "~") {
		if ok, handled := matchDuration(t, part); handled {
			return ok
		}
	}

	if strings.HasPrefix(part, "!") {
		if ok, handled := matchPriority(t, part); handled {
			return ok
		}
	}

	if ok, handled := matchDate(t.DTStart, part, '^', "start:"); handled {
		return ok
	}
	if ok, handled := matchDate(t.Due, part, '@', "due:"); handled {
		return ok
	}

	if tag, ok := strings.CutPrefix(part, "#"); ok {
		for _, c := range t.Categories {
			if strings.Contains(strings.ToLower(c), tag) {
				return true
			}
		}
		return false
	}

	switch part {
	case "is:done":
		return t.Status.IsDone()
	case "is:started", "is:ongoing":
		return t.Status == model.InProcess
	case "is:active":
		return !t.Status.IsDone()
	case "is:ready", "is:blocked":
		return true // not evaluated: matches every task, and taskstore.Filter does not narrow it further
	}

	hay := strings.ToLower(t.Summary) + " " + strings.ToLower(t.Description) + " " + strings.ToLower(t.Location)
	if strings.Contains(hay, part) {
		return true
	}
	for _, c := range t.Categories {
		if strings.Contains(strings.ToLower(c), part) {
			return true
		}
	}
	return false
}

func stripAny(s string, prefixes ...string) (string, bool) {
	for _, p := range prefixes {
		if rest, ok := strings.CutPrefix(s, p); ok {
			return rest, true
		}
	}
	return "", false
}

func splitOp(s string) (op, rest string) {
	for _, cand := range []string{"<=", ">=", "<", ">"} {
		if r, ok := strings.CutPrefix(s, cand); ok {
			return cand, r
		}
	}
	return "=", s
}

func matchDuration(t *model.Task, part string) (matched bool, handled bool) {
	val := part[1:]
	op, val := splitOp(val)

	var mins int
	switch {
	case strings.HasSuffix(val, "mo"):
		n, err := strconv.Atoi(strings.TrimSuffix(val, "mo"))
		if err != nil {
			return false, false
		}
		mins = n * 43200
	case strings.HasSuffix(val, "m"):
		n, err := strconv.Atoi(strings.TrimSuffix(val, "m"))
		if err != nil {
			return false, false
		}
		mins = n
	case strings.HasSuffix(val, "h"):
		n, err := strconv.Atoi(strings.TrimSuffix(val, "h"))
		if err != nil {
			return false, false
		}
		mins = n * 60
	case strings.HasSuffix(val, "d"):
		n, err := strconv.Atoi(strings.TrimSuffix(val, "d"))
		if err != nil {
			return false, false
		}
		mins = n * 1440
	case strings.HasSuffix(val, "w"):
		n, err := strconv.Atoi(strings.TrimSuffix(val, "w"))
		if err != nil {
			return false, false
		}
		mins = n * 10080
	case strings.HasSuffix(val, "y"):
		n, err := strconv.Atoi(strings.TrimSuffix(val, "y"))
		if err != nil {
			return false, false
		}
		mins = n * 525600
	default:
		return false, false
	}

	if t.EstimatedDuration == nil {
		return false, true
	}
	tMin := *t.EstimatedDuration
	tMax := tMin
	if t.EstimatedDurationMax != nil {
		tMax = *t.EstimatedDurationMax
	}
	switch op {
	case "<":
		return tMin < mins, true
	case ">":
		return tMax > mins, true
	case "<=":
		return tMin <= mins, true
	case ">=":
		return tMax >= mins, true
	default:
		return mins >= tMin && mins <= tMax, true
	}
}

func matchPriority(t *model.Task, part string) (matched bool, handled bool) {
	op, val := splitOp(part[1:])
	target, err := strconv.Atoi(val)
	if err != nil || target < 0 || target > 255 {
		return false, false
	}
	p := int(t.Priority)
	switch op {
	case "<":
		return p < target, true
	case ">":
		return p > target, true
	case "<=":
		return p <= target, true
	case ">=":
		return p >= target, true
	default:
		return p == target, true
	}
}

func matchDate(field *model.DateType, part string, prefixChar byte, altPrefix string) (matched bool, handled bool) {
	var raw string
	switch {
	case strings.HasPrefix(part, altPrefix):
		raw = part[len(altPrefix):]
	case len(part) > 0 && part[0] == prefixChar:
		raw = part[1:]
	default:
		return false, false
	}

	includeNone := false
	if strings.HasSuffix(raw, "!") {
		includeNone = true
		raw = strings.TrimSuffix(raw, "!")
	}

	op, dateStr := splitOp(raw)

	now := time.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	var target time.Time
	switch dateStr {
	case "today":
		target = today
	case "tomorrow":
		target = today.AddDate(0, 0, 1)
	case "yesterday":
		target = today.AddDate(0, 0, -1)
	default:
		if d, err := time.Parse("2006-01-02", dateStr); err == nil {
			target = d
		} else if off, ok := parseRelativeOffset(dateStr); ok {
			target = today.AddDate(0, 0, off)
		} else {
			return false, false
		}
	}

	if field == nil {
		return includeNone, true
	}
	taskDate := field.ToDateNaive()
	switch op {
	case "<":
		return taskDate.Before(target), true
	case ">":
		return taskDate.After(target), true
	case "<=":
		return !taskDate.After(target), true
	case ">=":
		return !taskDate.Before(target), true
	default:
		return taskDate.Equal(target), true
	}
}

func parseRelativeOffset(s string) (int, bool) {
	mult := 1
	unit := s
	switch {
	case strings.HasSuffix(s, "mo"):
		mult, unit = 30, strings.TrimSuffix(s, "mo")
	case strings.HasSuffix(s, "w"):
		mult, unit = 7, strings.TrimSuffix(s, "w")
	case strings.HasSuffix(s, "y"):
		mult, unit = 365, strings.TrimSuffix(s, "y")
	case strings.HasSuffix(s, "d"):
		mult, unit = 1, strings.TrimSuffix(s, "d")
	default:
		return 0, false
	}
	n, err := strconv.Atoi(unit)
	if err != nil {
		return 0, false
	}
	return n * mult, true
}
