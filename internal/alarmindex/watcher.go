package alarmindex

import (
	"github.com/fsnotify/fsnotify"

	"github.com/untoldecay/cfaitgo/internal/debug"
	"github.com/untoldecay/cfaitgo/internal/paths"
)

// Watcher notifies a client-supplied channel whenever alarm_index.json
// changes on disk, so a long-running notifier process can recompute its
// next wakeup without polling (spec §2 domain stack: fsnotify wake-on-
// change).
type Watcher struct {
	w      *fsnotify.Watcher
	Events <-chan struct{}
}

// NewWatcher starts watching p's data directory (the file itself may not
// exist yet) and emits on Events each time the index file is written.
func NewWatcher(p *paths.Paths) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(p.DataDir); err != nil {
		fw.Close()
		return nil, err
	}

	target := p.AlarmIndexFile()
	out := make(chan struct{}, 1)
	go func() {
		for {
			select {
			case ev, ok := <-fw.Events:
				if !ok {
					return
				}
				if ev.Name != target {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				select {
				case out <- struct{}{}:
				default:
				}
			case err, ok := <-fw.Errors:
				if !ok {
					return
				}
				debug.Warn("alarm index watcher error: %v", err)
			}
		}
	}()

	return &Watcher{w: fw, Events: out}, nil
}

// Close stops the underlying fsnotify watcher.
func (w *Watcher) Close() error { return w.w.Close() }
