// Package ics implements the lossless VTODO adapter (spec §4.3): parsing a
// VCALENDAR into a Task plus preserved siblings, and emitting a Task back
// into VCALENDAR text. Ported from
// _examples/original_source/src/model/adapter.rs.
//
// This does not decode through github.com/emersion/go-ical. go-ical's
// Component/Prop model normalizes property order and re-serializes from
// decoded values, which loses the byte-exact text of unmapped properties,
// VALARM blocks, and sibling components that spec §4.3 requires splicing
// back verbatim on the next ToICS. The line-unfolding walk below keeps each
// component's raw text alongside its decoded fields for exactly that
// reason.
package ics

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/untoldecay/cfaitgo/internal/model"
)

// ErrNoPrimaryVTODO is returned when a VCALENDAR contains no VTODO without
// a RECURRENCE-ID (spec §4.3).
var ErrNoPrimaryVTODO = errors.New("cfait: ics: no primary VTODO found")

// handledKeys are the property keys mapped onto strongly typed Task fields
// (spec §4.3). Every other key is preserved in UnmappedProperties.
var handledKeys = map[string]bool{
	"UID": true, "SUMMARY": true, "DESCRIPTION": true, "STATUS": true,
	"PRIORITY": true, "SEQUENCE": true, "DTSTART": true, "DUE": true,
	"RRULE": true, "DURATION": true, "X-ESTIMATED-DURATION": true,
	"CATEGORIES": true, "RELATED-TO": true, "DTSTAMP": true, "CREATED": true,
	"LAST-MODIFIED": true, "PRODID": true, "VERSION": true, "CALSCALE": true,
	"BEGIN": true, "END": true,
}

// rawLine is one unfolded logical ICS line: "KEY;PARAM=V:value".
type rawLine struct {
	key    string
	params map[string]string
	value  string
	raw    string // original unfolded text, preserved verbatim
}

// unfold joins CRLF/LF continuation lines (a line starting with a single
// space or tab continues the previous one, per RFC 5545).
func unfold(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	rawLines := strings.Split(text, "\n")
	var out []string
	for _, l := range rawLines {
		if len(l) > 0 && (l[0] == ' ' || l[0] == '\t') && len(out) > 0 {
			out[len(out)-1] += l[1:]
		} else if l != "" {
			out = append(out, l)
		}
	}
	return out
}

func parseLine(l string) rawLine {
	colon := strings.Index(l, ":")
	if colon < 0 {
		return rawLine{raw: l}
	}
	head := l[:colon]
	value := l[colon+1:]
	parts := strings.Split(head, ";")
	key := strings.ToUpper(parts[0])
	params := map[string]string{}
	for _, p := range parts[1:] {
		if eq := strings.Index(p, "="); eq >= 0 {
			params[strings.ToUpper(p[:eq])] = p[eq+1:]
		}
	}
	return rawLine{key: key, params: params, value: value, raw: l}
}

func paramsEqualFold(params map[string]string, name, val string) bool {
	for k, v := range params {
		if strings.EqualFold(k, name) && strings.EqualFold(v, val) {
			return true
		}
	}
	return false
}

// FromICS parses VCALENDAR text into the primary Task and captures sibling
// components verbatim. The first VTODO lacking RECURRENCE-ID is primary.
func FromICS(text string) (*model.Task, error) {
	lines := unfold(text)

	// Split into components by BEGIN/END nesting, tracking raw text spans.
	type component = struct {
		name  string
		lines []rawLine
		raw   []string
	}
	var stack []*component
	var top []*component

	for _, l := range lines {
		pl := parseLine(l)
		switch pl.key {
		case "BEGIN":
			c := &component{name: strings.ToUpper(pl.value)}
			stack = append(stack, c)
		case "END":
			if len(stack) == 0 {
				continue
			}
			c := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			c.raw = append([]string{"BEGIN:" + c.name}, c.raw...)
			c.raw = append(c.raw, "END:"+strings.ToUpper(pl.value))
			if len(stack) == 0 {
				top = append(top, c)
			} else {
				parent := stack[len(stack)-1]
				parent.raw = append(parent.raw, c.raw...)
			}
		default:
			if len(stack) > 0 {
				cur := stack[len(stack)-1]
				cur.lines = append(cur.lines, pl)
				cur.raw = append(cur.raw, pl.raw)
			}
		}
	}

	var vcalendar *component
	for _, c := range top {
		if c.name == "VCALENDAR" {
			vcalendar = c
		}
	}
	var siblings []string

	// Re-derive direct children of VCALENDAR (BEGIN/END at depth 1) by a
	// second, shallower pass over its raw lines.
	var directChildren []*component
	if vcalendar != nil {
		directChildren = splitDirectChildren(vcalendar.raw[1 : len(vcalendar.raw)-1])
	} else {
		directChildren = splitDirectChildren(lines)
	}

	var primary *component
	for _, c := range directChildren {
		if c.name == "VTODO" {
			hasRecurrenceID := false
			for _, l := range c.lines {
				if l.key == "RECURRENCE-ID" {
					hasRecurrenceID = true
					break
				}
			}
			if !hasRecurrenceID && primary == nil {
				primary = c
				continue
			}
		}
		siblings = append(siblings, strings.Join(c.raw, "\r\n"))
	}

	if primary == nil {
		return nil, ErrNoPrimaryVTODO
	}

	task := &model.Task{}
	var rawAlarms []string
	var rawComponents []string

	for _, raw := range siblings {
		if strings.HasPrefix(strings.TrimSpace(raw), "BEGIN:VALARM") {
			rawAlarms = append(rawAlarms, raw)
		} else {
			rawComponents = append(rawComponents, raw)
		}
	}

	// VALARM blocks nested directly inside the primary VTODO.
	alarmBlocks, bodyLines := extractNestedAlarms(primary.raw)
	rawAlarms = append(rawAlarms, alarmBlocks...)

	relatedToCount := 0
	for _, pl := range parseLinesFromRaw(bodyLines) {
		switch pl.key {
		case "UID":
			task.UID = pl.value
		case "SUMMARY":
			task.Summary = unescapeText(pl.value)
		case "DESCRIPTION":
			task.Description = unescapeText(pl.value)
		case "STATUS":
			task.Status = model.ParseTaskStatus(pl.value)
		case "PRIORITY":
			if n, err := strconv.Atoi(pl.value); err == nil && n >= 0 && n <= 9 {
				task.Priority = uint8(n)
			}
		case "SEQUENCE":
			if n, err := strconv.Atoi(pl.value); err == nil {
				task.Sequence = n
			}
		case "DTSTART":
			if d, err := parseDateValue(pl); err == nil {
				task.DTStart = &d
			}
		case "DUE":
			if d, err := parseDateValue(pl); err == nil {
				if d.Kind == model.AllDay {
					// DUE all-day without time conventionally means
					// end-of-day (23:59:59), spec §4.3.
					d.Date = d.Date.Add(23*time.Hour + 59*time.Minute + 59*time.Second)
					d.Kind = model.Specific
					d.Time = d.Date
				}
				task.Due = &d
			}
		case "RRULE":
			task.RRule = pl.value
		case "EXDATE":
			if d, err := parseDateValue(pl); err == nil {
				task.Exdates = append(task.Exdates, d)
			}
		case "DURATION":
			if mins, err := parseISODurationMinutes(pl.value); err == nil {
				task.EstimatedDuration = &mins
			}
		case "X-ESTIMATED-DURATION":
			if n, err := strconv.Atoi(pl.value); err == nil {
				task.EstimatedDurationMax = &n
			}
		case "CATEGORIES":
			for _, c := range strings.Split(pl.value, ",") {
				c = strings.TrimSpace(unescapeText(c))
				if c != "" {
					task.Categories = append(task.Categories, c)
				}
			}
		case "RELATED-TO":
			relatedToCount++
			if paramsEqualFold(pl.params, "RELTYPE", "DEPENDS-ON") {
				if !containsStr(task.Dependencies, pl.value) {
					task.Dependencies = append(task.Dependencies, pl.value)
				}
			} else {
				task.ParentUID = pl.value // last wins
			}
			task.RelatedTo = append(task.RelatedTo, pl.value)
		default:
			if !handledKeys[pl.key] {
				rp := model.RawProperty{Key: pl.key, Value: pl.value}
				if len(pl.params) > 0 {
					rp.Params = pl.params
				}
				task.UnmappedProperties = append(task.UnmappedProperties, rp)
			} else if pl.key == "CREATED" || pl.key == "DTSTAMP" || pl.key == "LAST-MODIFIED" ||
				pl.key == "PRODID" || pl.key == "VERSION" || pl.key == "CALSCALE" {
				task.SetUnmapped(pl.key, pl.value)
			}
		}
	}

	task.RawAlarms = rawAlarms
	task.RawComponents = rawComponents
	return task, nil
}

func containsStr(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

func splitDirectChildren(lines []string) []*struct {
	name  string
	lines []rawLine
	raw   []string
} {
	type component = struct {
		name  string
		lines []rawLine
		raw   []string
	}
	var out []*component
	var stack []*component
	for _, l := range lines {
		pl := parseLine(l)
		switch pl.key {
		case "BEGIN":
			depth := len(stack)
			stack = append(stack, &component{name: strings.ToUpper(pl.value)})
			if depth == 0 {
				// top-level begin already recorded at vcalendar level; skip
			}
		case "END":
			if len(stack) == 0 {
				continue
			}
			c := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			c.raw = append([]string{"BEGIN:" + c.name}, c.raw...)
			c.raw = append(c.raw, "END:"+strings.ToUpper(pl.value))
			if len(stack) == 0 {
				out = append(out, c)
			} else {
				stack[len(stack)-1].raw = append(stack[len(stack)-1].raw, c.raw...)
			}
		default:
			if len(stack) > 0 {
				cur := stack[len(stack)-1]
				cur.lines = append(cur.lines, pl)
				cur.raw = append(cur.raw, pl.raw)
			}
		}
	}
	return out
}

func parseLinesFromRaw(lines []string) []rawLine {
	out := make([]rawLine, 0, len(lines))
	for _, l := range lines {
		out = append(out, parseLine(l))
	}
	return out
}

// extractNestedAlarms removes VALARM blocks directly nested in raw (a
// VTODO's raw lines including its own BEGIN/END) and returns them plus the
// remaining body lines (without BEGIN:VTODO/END:VTODO).
func extractNestedAlarms(raw []string) (alarms []string, body []string) {
	var cur []string
	inAlarm := false
	for i, l := range raw {
		if i == 0 || i == len(raw)-1 {
			continue // strip the VTODO's own BEGIN/END
		}
		up := strings.ToUpper(strings.TrimSpace(l))
		if up == "BEGIN:VALARM" {
			inAlarm = true
			cur = []string{l}
			continue
		}
		if inAlarm {
			cur = append(cur, l)
			if up == "END:VALARM" {
				alarms = append(alarms, strings.Join(cur, "\r\n"))
				inAlarm = false
				cur = nil
			}
			continue
		}
		body = append(body, l)
	}
	return alarms, body
}

func parseDateValue(pl rawLine) (model.DateType, error) {
	v := pl.value
	if len(v) == 8 {
		t, err := time.ParseInLocation("20060102", v, time.UTC)
		if err != nil {
			return model.DateType{}, err
		}
		return model.NewAllDay(t), nil
	}
	if strings.HasSuffix(v, "Z") {
		t, err := time.ParseInLocation("20060102T150405Z", v, time.UTC)
		if err != nil {
			return model.DateType{}, err
		}
		return model.NewSpecific(t), nil
	}
	// Floating local time: the engine interprets it as UTC (spec §4.3).
	t, err := time.ParseInLocation("20060102T150405", v, time.UTC)
	if err != nil {
		return model.DateType{}, err
	}
	return model.NewSpecific(t), nil
}

func parseISODurationMinutes(v string) (int, error) {
	v = strings.TrimPrefix(v, "+")
	if !strings.HasPrefix(v, "P") {
		return 0, fmt.Errorf("cfait: ics: not a duration: %q", v)
	}
	v = v[1:]
	total := 0
	if idx := strings.Index(v, "W"); idx >= 0 {
		n, err := strconv.Atoi(v[:idx])
		if err != nil {
			return 0, err
		}
		return n * 7 * 24 * 60, nil
	}
	if idx := strings.Index(v, "D"); idx >= 0 {
		n, err := strconv.Atoi(v[:idx])
		if err != nil {
			return 0, err
		}
		total += n * 24 * 60
		v = v[idx+1:]
	}
	if idx := strings.Index(v, "T"); idx >= 0 {
		v = v[idx+1:]
		if hIdx := strings.Index(v, "H"); hIdx >= 0 {
			n, err := strconv.Atoi(v[:hIdx])
			if err != nil {
				return 0, err
			}
			total += n * 60
			v = v[hIdx+1:]
		}
		if mIdx := strings.Index(v, "M"); mIdx >= 0 {
			n, err := strconv.Atoi(v[:mIdx])
			if err != nil {
				return 0, err
			}
			total += n
		}
	}
	return total, nil
}

func formatISODurationMinutes(mins int) string {
	if mins%(60*24) == 0 && mins > 0 {
		return fmt.Sprintf("P%dD", mins/(60*24))
	}
	h := mins / 60
	m := mins % 60
	var b strings.Builder
	b.WriteString("PT")
	if h > 0 {
		fmt.Fprintf(&b, "%dH", h)
	}
	if m > 0 || h == 0 {
		fmt.Fprintf(&b, "%dM", m)
	}
	return b.String()
}

func escapeText(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `;`, `\;`, `,`, `\,`, "\n", `\n`)
	return r.Replace(s)
}

func unescapeText(s string) string {
	r := strings.NewReplacer(`\n`, "\n", `\,`, ",", `\;`, ";", `\\`, `\`)
	return r.Replace(s)
}

// ToICS emits a VCALENDAR for t, splicing back CATEGORIES, raw alarms, and
// raw components, with \r\n line endings (spec §4.3).
func ToICS(t *model.Task) string {
	var b strings.Builder
	b.WriteString("BEGIN:VCALENDAR\r\n")
	b.WriteString("VERSION:2.0\r\n")
	if v, ok := t.GetUnmapped("PRODID"); ok {
		fmt.Fprintf(&b, "PRODID:%s\r\n", v)
	} else {
		b.WriteString("PRODID:-//cfaitgo//cfait//EN\r\n")
	}
	b.WriteString("BEGIN:VTODO\r\n")
	fmt.Fprintf(&b, "UID:%s\r\n", t.UID)
	if t.Summary != "" {
		fmt.Fprintf(&b, "SUMMARY:%s\r\n", escapeText(t.Summary))
	}
	if t.Description != "" {
		fmt.Fprintf(&b, "DESCRIPTION:%s\r\n", escapeText(t.Description))
	}
	fmt.Fprintf(&b, "STATUS:%s\r\n", t.Status.String())
	if t.Priority != 0 {
		fmt.Fprintf(&b, "PRIORITY:%d\r\n", t.Priority)
	}
	fmt.Fprintf(&b, "SEQUENCE:%d\r\n", t.Sequence)
	if t.DTStart != nil {
		fmt.Fprintf(&b, "DTSTART%s:%s\r\n", dateValueParam(*t.DTStart), formatDateValue(*t.DTStart))
	}
	if t.Due != nil {
		fmt.Fprintf(&b, "DUE%s:%s\r\n", dateValueParam(*t.Due), formatDateValue(*t.Due))
	}
	for _, ex := range t.Exdates {
		fmt.Fprintf(&b, "EXDATE%s:%s\r\n", dateValueParam(ex), formatDateValue(ex))
	}
	if t.RRule != "" {
		fmt.Fprintf(&b, "RRULE:%s\r\n", t.RRule)
	}
	if t.EstimatedDuration != nil {
		fmt.Fprintf(&b, "DURATION:%s\r\n", formatISODurationMinutes(*t.EstimatedDuration))
	}
	if t.EstimatedDurationMax != nil {
		fmt.Fprintf(&b, "X-ESTIMATED-DURATION:%d\r\n", *t.EstimatedDurationMax)
	}
	if t.PercentComplete != nil {
		fmt.Fprintf(&b, "PERCENT-COMPLETE:%d\r\n", *t.PercentComplete)
	}
	if t.ParentUID != "" {
		fmt.Fprintf(&b, "RELATED-TO:%s\r\n", t.ParentUID)
	}
	for _, dep := range t.Dependencies {
		fmt.Fprintf(&b, "RELATED-TO;RELTYPE=DEPENDS-ON:%s\r\n", dep)
	}
	for _, key := range []string{"DTSTAMP", "CREATED", "LAST-MODIFIED", "CALSCALE"} {
		if v, ok := t.GetUnmapped(key); ok {
			fmt.Fprintf(&b, "%s:%s\r\n", key, v)
		}
	}
	for _, p := range t.UnmappedProperties {
		if p.Key == "PRODID" || p.Key == "DTSTAMP" || p.Key == "CREATED" ||
			p.Key == "LAST-MODIFIED" || p.Key == "CALSCALE" {
			continue
		}
		params := ""
		if len(p.Params) > 0 {
			keys := make([]string, 0, len(p.Params))
			for k := range p.Params {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				params += ";" + k + "=" + p.Params[k]
			}
		}
		fmt.Fprintf(&b, "%s%s:%s\r\n", p.Key, params, p.Value)
	}
	b.WriteString("END:VTODO\r\n")
	b.WriteString("END:VCALENDAR\r\n")

	out := b.String()
	// Splice CATEGORIES + raw alarms + raw components in, between
	// END:VTODO and END:VCALENDAR, as the spec's emission step describes.
	var splice strings.Builder
	if len(t.Categories) > 0 {
		escaped := make([]string, len(t.Categories))
		for i, c := range t.Categories {
			escaped[i] = escapeText(c)
		}
		fmt.Fprintf(&splice, "CATEGORIES:%s\r\n", strings.Join(escaped, ","))
	}
	for _, a := range t.RawAlarms {
		splice.WriteString(normalizeCRLF(a))
		splice.WriteString("\r\n")
	}
	endVtodoIdx := strings.LastIndex(out, "END:VTODO\r\n")
	out = out[:endVtodoIdx] + splice.String() + out[endVtodoIdx:]

	if len(t.RawComponents) > 0 {
		var comps strings.Builder
		for _, c := range t.RawComponents {
			comps.WriteString(normalizeCRLF(c))
			comps.WriteString("\r\n")
		}
		endCalIdx := strings.LastIndex(out, "END:VCALENDAR\r\n")
		out = out[:endCalIdx] + comps.String() + out[endCalIdx:]
	}

	return out
}

func normalizeCRLF(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\n", "\r\n")
	return strings.TrimRight(s, "\r\n")
}

func dateValueParam(d model.DateType) string {
	if d.Kind == model.AllDay {
		return ";VALUE=DATE"
	}
	return ""
}

func formatDateValue(d model.DateType) string {
	if d.Kind == model.AllDay {
		return d.Date.Format("20060102")
	}
	return d.Time.UTC().Format("20060102T150405Z")
}
