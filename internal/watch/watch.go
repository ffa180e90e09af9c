// Package watch notifies a caller when a source file changes on disk, so
// cmd/plcsim can hot-reload a program without an explicit reload command.
// It uses fsnotify in place of a per-frame mtime poll, idiomatic for a
// long-running Go process instead of a hand-rolled stat()-every-frame loop.
package watch

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

// Watcher reports write events for a single file.
type Watcher struct {
	fsw    *fsnotify.Watcher
	path   string
	Events <-chan struct{}
}

// New starts watching path. The returned Watcher's Events channel receives
// a value when the file is written or replaced (editors commonly
// replace-then-rename, both are handled); changes that arrive while a
// value is still unread are coalesced into it. Close stops watching and
// closes the channel.
func New(path string) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrapf(err, "resolving %q", path)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "creating file watcher")
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, errors.Wrapf(err, "watching %q", filepath.Dir(abs))
	}

	events := make(chan struct{}, 1)
	w := &Watcher{fsw: fsw, path: abs, Events: events}
	go w.run(events)
	return w, nil
}

func (w *Watcher) run(out chan<- struct{}) {
	defer close(out)
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Name != w.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			select {
			case out <- struct{}{}:
			default:
				// A reload is already pending; coalesce.
			}
		case _, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
		}
	}
}

// Close stops watching the file.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
