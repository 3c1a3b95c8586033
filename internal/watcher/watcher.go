// Package watcher turns filesystem notifications below a set of source trees
// into debounced batches of changes and runs bound rebuild functions on them.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/conneroisu/assetline/internal/logging"
	"github.com/fsnotify/fsnotify"
)

// Op is the kind of change seen for a path.
type Op int

const (
	OpCreate Op = iota
	OpWrite
	OpRemove
	OpRename
)

func (o Op) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpWrite:
		return "write"
	case OpRemove:
		return "remove"
	case OpRename:
		return "rename"
	default:
		return "unknown"
	}
}

// ChangeEvent is the last change seen for one path within a batch.
type ChangeEvent struct {
	Op   Op
	Path string
}

// Watcher follows directory trees and delivers batches of matching changes
// once no new change has arrived for the debounce delay. All state is owned
// by the goroutine calling Run.
type Watcher struct {
	fsw    *fsnotify.Watcher
	match  func(path string) bool
	delay  time.Duration
	logger logging.Logger
}

// New creates a watcher delivering the changes whose path satisfies match.
// A nil match accepts everything.
func New(match func(path string) bool, delay time.Duration, logger logging.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if match == nil {
		match = func(string) bool { return true }
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Watcher{fsw: fsw, match: match, delay: delay, logger: logger}, nil
}

// AddTree watches root and every directory below it except VCS and
// dependency folders.
func (w *Watcher) AddTree(root string) error {
	if strings.TrimSpace(root) == "" {
		return fmt.Errorf("empty path")
	}
	root = filepath.Clean(root)
	info, err := os.Stat(root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", root)
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && skipDir(d.Name()) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

func skipDir(name string) bool {
	return name == ".git" || name == "node_modules"
}

// Run delivers batches to handle until ctx is done or the watcher is
// closed. handle runs on the calling goroutine; changes arriving meanwhile
// form the next batch.
func (w *Watcher) Run(ctx context.Context, handle func(events []ChangeEvent)) {
	pending := make(map[string]Op)
	timer := time.NewTimer(w.delay)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			op, ok := w.classify(ctx, ev)
			if !ok {
				continue
			}
			pending[ev.Name] = op
			timer.Reset(w.delay)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn(ctx, err, "File watcher error")

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			batch := make([]ChangeEvent, 0, len(pending))
			for path, op := range pending {
				batch = append(batch, ChangeEvent{Op: op, Path: path})
			}
			sort.Slice(batch, func(i, j int) bool { return batch[i].Path < batch[j].Path })
			clear(pending)
			handle(batch)
		}
	}
}

// classify maps an fsnotify event onto an Op. New directories are added to
// the watch set instead of being reported.
func (w *Watcher) classify(ctx context.Context, ev fsnotify.Event) (Op, bool) {
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.AddTree(ev.Name); err != nil {
				w.logger.Debug(ctx, "Could not watch new directory", "path", ev.Name, "error", err.Error())
			}
			return 0, false
		}
	}
	if !w.match(ev.Name) {
		return 0, false
	}

	switch {
	case ev.Has(fsnotify.Create):
		return OpCreate, true
	case ev.Has(fsnotify.Write):
		return OpWrite, true
	case ev.Has(fsnotify.Remove):
		return OpRemove, true
	case ev.Has(fsnotify.Rename):
		return OpRename, true
	default:
		// chmod only
		return 0, false
	}
}

// Close stops delivery and releases the OS watches.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
