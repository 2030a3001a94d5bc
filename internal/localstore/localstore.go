// Package localstore implements the versioned per-local-calendar snapshot
// store (spec §4.4): migration chain, load-state gating, and per-calendar
// file isolation. Grounded on
// _examples/original_source/src/storage.rs.
package localstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/untoldecay/cfaitgo/internal/atomicfile"
	"github.com/untoldecay/cfaitgo/internal/debug"
	"github.com/untoldecay/cfaitgo/internal/model"
	"github.com/untoldecay/cfaitgo/internal/paths"
)

// CurrentVersion is the schema version this build writes and fully
// understands. v1: bare task array, UTC timestamps. v2: tagged DateType
// enum. v3: adds estimated_duration_max.
const CurrentVersion = 3

var (
	// ErrVersionTooNew is returned when a file's version exceeds what this
	// build understands (spec §4.4, §7 VersionTooNew).
	ErrVersionTooNew = errors.New("cfait: localstore: file version newer than supported")
	// ErrSavesBlocked is returned when the last load for an href failed and
	// no force_save has occurred since (spec §4.4, §7 LocalCorruption).
	ErrSavesBlocked = errors.New("cfait: localstore: saves blocked until a successful reload")
	// ErrCorrupt wraps any JSON decode failure (spec §7 LocalCorruption).
	ErrCorrupt = errors.New("cfait: localstore: file is corrupt")
)

// LoadState is the per-href gate recorded by the last Load/Save attempt.
type LoadState int

const (
	Uninitialized LoadState = iota
	Success
	Failed
)

// fileV1 is the v1 on-disk shape: a bare JSON array of tasks.
type fileV1 = []json.RawMessage

// file is the current on-disk shape (spec §6 local.json / local_<id>.json).
type file struct {
	Version int           `json:"version"`
	Tasks   []*model.Task `json:"tasks"`
}

// Store manages every local calendar's file under one Paths root. The
// load-state map is held per Store instance (not a process-wide global)
// so tests can isolate it, per spec §9's dependency-injection preference.
type Store struct {
	mu    sync.Mutex
	paths *paths.Paths
	state map[string]LoadState
}

func New(p *paths.Paths) *Store {
	return &Store{paths: p, state: map[string]LoadState{}}
}

// CanSave reports whether href is currently allowed to be saved (its last
// load did not fail).
func (s *Store) CanSave(href string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state[href] != Failed
}

// Load reads the snapshot for the local calendar identified by localID
// (bare id, not a full href; "" or "default" means the default calendar),
// migrating older versions and immediately re-persisting the migrated form.
func (s *Store) Load(localID string) ([]*model.Task, error) {
	path := s.paths.LocalTaskFile(localID)
	href := hrefFor(localID)

	data, err := readFileOrEmpty(path)
	if err != nil {
		s.setState(href, Failed)
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if len(data) == 0 {
		s.setState(href, Success)
		return nil, nil
	}

	tasks, version, err := decode(data)
	if err != nil {
		s.setState(href, Failed)
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if version > CurrentVersion {
		s.setState(href, Failed)
		return nil, fmt.Errorf("%w: file version %d > supported %d", ErrVersionTooNew, version, CurrentVersion)
	}

	for _, t := range tasks {
		if t.CalendarHref == "" {
			t.CalendarHref = href
		}
	}

	s.setState(href, Success)

	if version < CurrentVersion {
		debug.Logf("localstore: migrating %s from v%d to v%d", path, version, CurrentVersion)
		if err := s.save(path, tasks, true); err != nil {
			return tasks, err
		}
	}

	return tasks, nil
}

// Save persists tasks for localID, refusing to write if the load-state
// gate for this href is Failed (spec §4.4 load-state gate).
func (s *Store) Save(localID string, tasks []*model.Task) error {
	href := hrefFor(localID)
	s.mu.Lock()
	blocked := s.state[href] == Failed
	s.mu.Unlock()
	if blocked {
		return ErrSavesBlocked
	}
	return s.save(s.paths.LocalTaskFile(localID), tasks, false)
}

// ForceSave bypasses the load-state gate. Documented as a recovery-only
// escape (spec §4.4).
func (s *Store) ForceSave(localID string, tasks []*model.Task) error {
	if err := s.save(s.paths.LocalTaskFile(localID), tasks, true); err != nil {
		return err
	}
	s.setState(hrefFor(localID), Success)
	return nil
}

func (s *Store) save(path string, tasks []*model.Task, force bool) error {
	f := file{Version: CurrentVersion, Tasks: tasks}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	return atomicfile.WithLock(path, func() error {
		return atomicfile.AtomicWrite(path, data)
	})
}

func (s *Store) setState(href string, st LoadState) {
	s.mu.Lock()
	s.state[href] = st
	s.mu.Unlock()
}

func hrefFor(localID string) string {
	if localID == "" || localID == "default" {
		return model.LocalDefaultHref
	}
	return model.LocalSchemePrefix + localID
}

func readFileOrEmpty(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}

// decode handles all three schema versions: v1 (no "version" key, bare
// array), v2/v3 (tagged object). v1->v2 is a structural no-op here because
// DateType already round-trips through JSON the same way chrono's tagged
// enum did in the Rust original, once dates are represented with the same
// {"kind":...} shape; the migration that matters is *always* re-stamping
// the version and filling estimated_duration_max's absence as "unset"
// rather than zero (v2->v3).
func decode(data []byte) ([]*model.Task, int, error) {
	var probe struct {
		Version int `json:"version"`
	}
	hasVersion := false
	if err := json.Unmarshal(data, &probe); err == nil {
		var m map[string]json.RawMessage
		if err := json.Unmarshal(data, &m); err == nil {
			if _, ok := m["version"]; ok {
				hasVersion = true
			}
		}
	}

	if !hasVersion {
		var bare fileV1
		if err := json.Unmarshal(data, &bare); err != nil {
			return nil, 0, err
		}
		tasks := make([]*model.Task, 0, len(bare))
		for _, raw := range bare {
			var t model.Task
			if err := json.Unmarshal(raw, &t); err != nil {
				return nil, 0, err
			}
			tasks = append(tasks, &t)
		}
		return tasks, 1, nil
	}

	var f file
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, 0, err
	}
	if f.Version == 0 {
		f.Version = 1
	}
	return f.Tasks, f.Version, nil
}
