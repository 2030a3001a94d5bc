package localstore

import (
	"encoding/json"
	"os"

	"github.com/untoldecay/cfaitgo/internal/atomicfile"
	"github.com/untoldecay/cfaitgo/internal/model"
	"github.com/untoldecay/cfaitgo/internal/paths"
)

// Registry persists the two calendar list files: the locally-registered
// local:// calendars, and the last-known-good cache of remote calendars
// discovered by a prior sync (spec §3 CalendarListEntry, §4.9 recovery
// calendar auto-registration).
type Registry struct {
	paths *paths.Paths
}

func NewRegistry(p *paths.Paths) *Registry { return &Registry{paths: p} }

func (r *Registry) LoadLocal() ([]model.CalendarListEntry, error) {
	return readEntries(r.paths.LocalCalendarsFile())
}

func (r *Registry) SaveLocal(entries []model.CalendarListEntry) error {
	return writeEntries(r.paths.LocalCalendarsFile(), entries)
}

func (r *Registry) LoadRemote() ([]model.CalendarListEntry, error) {
	return readEntries(r.paths.RemoteCalendarsFile())
}

func (r *Registry) SaveRemote(entries []model.CalendarListEntry) error {
	return writeEntries(r.paths.RemoteCalendarsFile(), entries)
}

// EnsureRecoveryCalendar registers the reserved "Local (Recovery)" calendar
// if it is not already present, so poison-pill tasks quarantined during a
// sync drain have somewhere visible to land (spec §4.9, glossary "Recovery
// calendar"). It is idempotent and safe to call once per sync cycle.
func (r *Registry) EnsureRecoveryCalendar() error {
	locals, err := r.LoadLocal()
	if err != nil {
		return err
	}
	for _, c := range locals {
		if c.Href == model.LocalRecoveryHref {
			return nil
		}
	}
	locals = append(locals, model.CalendarListEntry{
		Name:    "Local (Recovery)",
		Href:    model.LocalRecoveryHref,
		Color:   "#DB4437",
		IsLocal: true,
	})
	return r.SaveLocal(locals)
}

func readEntries(path string) ([]model.CalendarListEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	var entries []model.CalendarListEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func writeEntries(path string, entries []model.CalendarListEntry) error {
	return atomicfile.WithLock(path, func() error {
		out, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return err
		}
		return atomicfile.AtomicWrite(path, out)
	})
}
