// Package journal implements the durable, ordered action queue (spec §4.6):
// append-only JSON under lock, per-uid compaction, and crash recovery.
// Grounded on _examples/original_source/src/journal.rs.
package journal

import (
	"encoding/json"
	"os"

	"github.com/untoldecay/cfaitgo/internal/atomicfile"
	"github.com/untoldecay/cfaitgo/internal/debug"
	"github.com/untoldecay/cfaitgo/internal/model"
	"github.com/untoldecay/cfaitgo/internal/paths"
)

type fileShape struct {
	Queue []model.Action `json:"queue"`
}

// Journal is the in-memory view of the on-disk queue.
type Journal struct {
	Queue []model.Action
}

// Store owns journal.json.
type Store struct {
	paths *paths.Paths
}

func New(p *paths.Paths) *Store { return &Store{paths: p} }

// Load reads the journal. A corrupt file becomes an empty queue, logged as
// a warning rather than a fatal error (spec §4.6 failure semantics) —
// "preferable to blocking sync forever."
func (s *Store) Load() Journal {
	data, err := os.ReadFile(s.paths.JournalFile())
	if err != nil {
		return Journal{}
	}
	var f fileShape
	if err := json.Unmarshal(data, &f); err != nil {
		debug.Warn("journal is corrupt, starting from an empty queue: %v", err)
		return Journal{}
	}
	return Journal{Queue: f.Queue}
}

// Modify runs fn against the current queue under lock and persists the
// result atomically.
func (s *Store) Modify(fn func(queue *[]model.Action)) error {
	path := s.paths.JournalFile()
	return atomicfile.WithLock(path, func() error {
		data, err := os.ReadFile(path)
		var f fileShape
		if err == nil {
			json.Unmarshal(data, &f) //nolint:errcheck // corrupt -> empty queue, same as Load
		}
		fn(&f.Queue)
		out, err := json.MarshalIndent(f, "", "  ")
		if err != nil {
			return err
		}
		return atomicfile.AtomicWrite(path, out)
	})
}

// Push appends a single action (spec §4.6).
func (s *Store) Push(a model.Action) error {
	return s.Modify(func(queue *[]model.Action) {
		*queue = append(*queue, a)
	})
}

// Compact applies the per-uid squashing rules (spec §4.6):
//
//	Create; Update*        -> Create with latest payload
//	Update; Update         -> latest Update
//	Create; Delete         -> erase both
//	Update; Delete         -> Delete
//	Move is opaque and is never squashed with surrounding Create/Update.
//
// The relative order of distinct-uid actions is preserved (stable squash).
func Compact(queue []model.Action) []model.Action {
	type slot struct {
		action model.Action
		live   bool
	}
	byUID := map[string]*slot{}

	for _, a := range queue {
		if a.Kind == model.ActionMove {
			continue
		}
		uid := a.Uid()
		existing, seen := byUID[uid]
		if !seen {
			byUID[uid] = &slot{action: a, live: true}
			continue
		}
		switch {
		case existing.action.Kind == model.ActionCreate && a.Kind == model.ActionUpdate:
			existing.action = model.Action{Kind: model.ActionCreate, Task: a.Task}
		case existing.action.Kind == model.ActionUpdate && a.Kind == model.ActionUpdate:
			existing.action = a
		case existing.action.Kind == model.ActionCreate && a.Kind == model.ActionDelete:
			existing.live = false
		case existing.action.Kind == model.ActionUpdate && a.Kind == model.ActionDelete:
			existing.action = a
		default:
			existing.action = a
		}
	}

	// Rebuild in the original relative sequence, emitting each uid once (at
	// its first occurrence) and interleaving Move actions at their original
	// positions.
	out := make([]model.Action, 0, len(queue))
	emitted := map[string]bool{}
	for _, a := range queue {
		if a.Kind == model.ActionMove {
			out = append(out, a)
			continue
		}
		uid := a.Uid()
		if emitted[uid] {
			continue
		}
		emitted[uid] = true
		if s := byUID[uid]; s != nil && s.live {
			out = append(out, s.action)
		}
	}
	return out
}

// IsEmpty reports whether the queue has no pending actions.
func (j Journal) IsEmpty() bool { return len(j.Queue) == 0 }
