// Package remotecache implements the per-remote-calendar last-known task
// set plus collection token (spec §4.5), keyed by a hashed filename from
// internal/paths. Grounded on
// _examples/original_source/src/cache.rs.
package remotecache

import (
	"encoding/json"
	"os"

	"github.com/untoldecay/cfaitgo/internal/atomicfile"
	"github.com/untoldecay/cfaitgo/internal/debug"
	"github.com/untoldecay/cfaitgo/internal/model"
	"github.com/untoldecay/cfaitgo/internal/paths"
)

// CurrentVersion gates cache compatibility; a mismatch discards the cache
// rather than failing (spec §4.5), unlike localstore's hard VersionTooNew.
const CurrentVersion = 6

type file struct {
	Version    int           `json:"version"`
	SyncToken  string        `json:"sync_token,omitempty"`
	Tasks      []*model.Task `json:"tasks"`
}

// Cache is the per-calendar entry: {version, sync_token?, tasks} (spec §3).
type Cache struct {
	SyncToken string
	Tasks     []*model.Task
}

// Store manages every remote calendar's cache file.
type Store struct {
	paths *paths.Paths
}

func New(p *paths.Paths) *Store { return &Store{paths: p} }

// Load never fails hard: corruption or a version mismatch yields an empty
// cache, which triggers a full resync in the sync engine (spec §4.5).
func (s *Store) Load(calendarHref string) Cache {
	path := s.paths.RemoteCacheFile(calendarHref)
	data, err := os.ReadFile(path)
	if err != nil {
		return Cache{}
	}
	var f file
	if err := json.Unmarshal(data, &f); err != nil {
		debug.Warn("remote cache for %s is corrupt, discarding: %v", calendarHref, err)
		return Cache{}
	}
	if f.Version != CurrentVersion {
		debug.Logf("remotecache: version mismatch for %s (have %d want %d), discarding", calendarHref, f.Version, CurrentVersion)
		return Cache{}
	}
	for _, t := range f.Tasks {
		if t.CalendarHref == "" {
			t.CalendarHref = calendarHref
		}
	}
	return Cache{SyncToken: f.SyncToken, Tasks: f.Tasks}
}

// Save atomically persists the cache (spec §4.5).
func (s *Store) Save(calendarHref string, c Cache) error {
	path := s.paths.RemoteCacheFile(calendarHref)
	f := file{Version: CurrentVersion, SyncToken: c.SyncToken, Tasks: c.Tasks}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	return atomicfile.WithLock(path, func() error {
		return atomicfile.AtomicWrite(path, data)
	})
}
