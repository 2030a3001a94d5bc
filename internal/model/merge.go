package model

import (
	"sort"
	"time"
)

// ThreeWayMerge implements spec §4.9.1: for each field, local-only-diff
// wins, server-only-diff wins, identical-diff is fine, differing-diff is a
// hard conflict (nil return), with additive/union exceptions for
// TimeSpentSeconds, Sessions, Categories, Dependencies, RelatedTo, and
// UnmappedProperties. Grounded on
// _examples/original_source/src/model/merge.rs.
func ThreeWayMerge(base, local, server *Task) *Task {
	merged := server.Clone()
	conflict := false

	mergeField := func(same func(a, b *Task) bool, apply func(dst *Task)) {
		if conflict {
			return
		}
		localDiff := !same(local, base)
		serverDiff := !same(server, base)
		if !localDiff {
			return // nothing local changed; server's value (already in merged) stands
		}
		if !serverDiff {
			apply(merged) // only local changed
			return
		}
		if same(local, server) {
			return // both changed identically; merged already carries it
		}
		conflict = true
	}

	mergeField(func(a, b *Task) bool { return a.Summary == b.Summary },
		func(dst *Task) { dst.Summary = local.Summary })
	mergeField(func(a, b *Task) bool { return a.Description == b.Description },
		func(dst *Task) { dst.Description = local.Description })
	mergeField(func(a, b *Task) bool { return a.Status == b.Status },
		func(dst *Task) { dst.Status = local.Status })
	mergeField(func(a, b *Task) bool { return a.Priority == b.Priority },
		func(dst *Task) { dst.Priority = local.Priority })
	mergeField(func(a, b *Task) bool { return equalDatePtr(a.Due, b.Due) },
		func(dst *Task) { dst.Due = clonePtrDate(local.Due) })
	mergeField(func(a, b *Task) bool { return equalDatePtr(a.DTStart, b.DTStart) },
		func(dst *Task) { dst.DTStart = clonePtrDate(local.DTStart) })
	mergeField(func(a, b *Task) bool { return equalIntPtr(a.EstimatedDuration, b.EstimatedDuration) },
		func(dst *Task) { dst.EstimatedDuration = clonePtrInt(local.EstimatedDuration) })
	mergeField(func(a, b *Task) bool { return a.RRule == b.RRule },
		func(dst *Task) { dst.RRule = local.RRule })
	mergeField(func(a, b *Task) bool { return equalIntPtr(a.PercentComplete, b.PercentComplete) },
		func(dst *Task) { dst.PercentComplete = clonePtrInt(local.PercentComplete) })
	mergeField(func(a, b *Task) bool { return a.Location == b.Location },
		func(dst *Task) { dst.Location = local.Location })
	mergeField(func(a, b *Task) bool { return a.URL == b.URL },
		func(dst *Task) { dst.URL = local.URL })
	mergeField(func(a, b *Task) bool { return a.Geo == b.Geo },
		func(dst *Task) { dst.Geo = local.Geo })

	if conflict {
		return nil
	}

	// Additive merge: accumulate offline time tracked by both clients.
	if local.TimeSpentSeconds != base.TimeSpentSeconds || server.TimeSpentSeconds != base.TimeSpentSeconds {
		localDiff := local.TimeSpentSeconds - base.TimeSpentSeconds
		if localDiff < 0 {
			localDiff = 0
		}
		serverDiff := server.TimeSpentSeconds - base.TimeSpentSeconds
		if serverDiff < 0 {
			serverDiff = 0
		}
		merged.TimeSpentSeconds = base.TimeSpentSeconds + localDiff + serverDiff
	}

	// Union merge: sessions, by identity (start+end), sorted by start.
	if !sessionsEqual(local.Sessions, base.Sessions) || !sessionsEqual(server.Sessions, base.Sessions) {
		all := append([]Session(nil), server.Sessions...)
		for _, ls := range local.Sessions {
			found := false
			for _, s := range all {
				if sessionEqual(s, ls) {
					found = true
					break
				}
			}
			if !found {
				all = append(all, ls)
			}
		}
		sort.Slice(all, func(i, j int) bool { return all[i].Start.Before(all[j].Start) })
		merged.Sessions = all
	}

	mergeField(func(a, b *Task) bool { return equalTimePtr(a.LastStartedAt, b.LastStartedAt) },
		func(dst *Task) { dst.LastStartedAt = local.LastStartedAt })
	if conflict {
		return nil
	}

	if !stringSliceEqual(local.Categories, base.Categories) {
		merged.Categories = unionStrings(server.Categories, local.Categories)
		sort.Strings(merged.Categories)
		merged.Categories = dedupStrings(merged.Categories)
	}

	if !rawPropsEqual(local.UnmappedProperties, base.UnmappedProperties) {
		for _, p := range local.UnmappedProperties {
			has := false
			for _, mp := range merged.UnmappedProperties {
				if mp.Key == p.Key {
					has = true
					break
				}
			}
			if !has {
				merged.UnmappedProperties = append(merged.UnmappedProperties, p)
			}
		}
	}

	mergeField(func(a, b *Task) bool { return a.ParentUID == b.ParentUID },
		func(dst *Task) { dst.ParentUID = local.ParentUID })
	if conflict {
		return nil
	}

	if !stringSliceEqual(local.Dependencies, base.Dependencies) {
		merged.Dependencies = unionStrings(server.Dependencies, local.Dependencies)
	}
	if !stringSliceEqual(local.RelatedTo, base.RelatedTo) {
		merged.RelatedTo = unionStrings(server.RelatedTo, local.RelatedTo)
	}

	merged.Sequence = maxInt(local.Sequence, server.Sequence) + 1
	return merged
}

func equalDatePtr(a, b *DateType) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func equalIntPtr(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalTimePtr(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func stringSliceEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func unionStrings(base []string, extra []string) []string {
	out := append([]string(nil), base...)
	for _, e := range extra {
		found := false
		for _, o := range out {
			if o == e {
				found = true
				break
			}
		}
		if !found {
			out = append(out, e)
		}
	}
	return out
}

func dedupStrings(sorted []string) []string {
	out := sorted[:0:0]
	var prev string
	first := true
	for _, s := range sorted {
		if first || s != prev {
			out = append(out, s)
			prev = s
			first = false
		}
	}
	return out
}

func rawPropsEqual(a, b []RawProperty) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Key != b[i].Key || a[i].Value != b[i].Value {
			return false
		}
	}
	return true
}

func sessionEqual(a, b Session) bool {
	if !a.Start.Equal(b.Start) {
		return false
	}
	if (a.End == nil) != (b.End == nil) {
		return false
	}
	if a.End != nil && !a.End.Equal(*b.End) {
		return false
	}
	return true
}

func sessionsEqual(a, b []Session) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !sessionEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
