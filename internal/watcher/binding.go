package watcher

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/conneroisu/assetline/internal/glob"
	"github.com/conneroisu/assetline/internal/logging"
)

// Binding ties a glob to the function that rebuilds its outputs. Bindings
// are created at startup and live until the process exits.
type Binding struct {
	Name    string
	Pattern glob.Set
	Run     func(ctx context.Context, events []ChangeEvent) error
}

// invoke runs the bound function, turning a panic into an error so that a
// broken pipeline never takes its watcher (or any other) down.
func (b Binding) invoke(ctx context.Context, events []ChangeEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("binding %s panicked: %v\n%s", b.Name, r, debug.Stack())
		}
	}()
	return b.Run(ctx, events)
}

// Group owns the watchers of a set of bindings.
type Group struct {
	watchers []*Watcher
	logger   logging.Logger
	mutex    sync.Mutex
}

// NewGroup creates an empty group.
func NewGroup(logger logging.Logger) *Group {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Group{logger: logger.WithComponent("watch")}
}

// Bind starts a dedicated watcher for b. Each binding has its own event loop,
// so bindings run concurrently and a slow or failing one does not delay the
// others. Missing base directories are skipped with a warning.
func (g *Group) Bind(ctx context.Context, b Binding, debounce time.Duration) error {
	if b.Run == nil {
		return fmt.Errorf("binding %s has no function", b.Name)
	}

	w, err := New(b.Pattern.Match, debounce, g.logger)
	if err != nil {
		return fmt.Errorf("creating watcher for %s: %w", b.Name, err)
	}

	roots := 0
	for _, base := range b.Pattern.Bases() {
		if err := w.AddTree(base); err != nil {
			g.logger.Warn(ctx, err, "Watch root unavailable, skipping", "binding", b.Name, "path", base)
			continue
		}
		roots++
	}

	g.mutex.Lock()
	g.watchers = append(g.watchers, w)
	g.mutex.Unlock()

	go w.Run(ctx, func(events []ChangeEvent) {
		g.logger.Debug(ctx, "Change detected", "binding", b.Name, "files", len(events))
		if err := b.invoke(ctx, events); err != nil {
			g.logger.Error(ctx, err, "Binding failed", "binding", b.Name)
		}
	})

	g.logger.Info(ctx, "Watching", "binding", b.Name, "patterns", b.Pattern.Include, "roots", roots)
	return nil
}

// Stop closes every watcher of the group.
func (g *Group) Stop() {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	for _, w := range g.watchers {
		_ = w.Close()
	}
	g.watchers = nil
}
