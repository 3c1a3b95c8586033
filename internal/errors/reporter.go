package errors

import (
	"context"
	"sync"

	"github.com/conneroisu/assetline/internal/logging"
	"github.com/gen2brain/beeep"
)

// Listener is called for every reported build error, e.g. to push an error
// overlay to connected browsers.
type Listener func(err BuildError)

// Reporter is the non-fatal error channel. Reporting never returns an error
// and never panics; a failing desktop notification is only logged.
type Reporter struct {
	logger    logging.Logger
	collector *ErrorCollector
	desktop   func(title, message string) error
	listeners []Listener
	mutex     sync.RWMutex
}

// ReporterOption customises a Reporter.
type ReporterOption func(*Reporter)

// WithDesktopNotifications enables OS notifications through beeep.
func WithDesktopNotifications(enabled bool) ReporterOption {
	return func(r *Reporter) {
		if !enabled {
			r.desktop = nil
			return
		}
		r.desktop = func(title, message string) error {
			return beeep.Notify(title, message, "")
		}
	}
}

// WithDesktopFunc replaces the desktop notifier.
func WithDesktopFunc(fn func(title, message string) error) ReporterOption {
	return func(r *Reporter) {
		r.desktop = fn
	}
}

// NewReporter creates a reporter that records into collector.
func NewReporter(logger logging.Logger, collector *ErrorCollector, opts ...ReporterOption) *Reporter {
	if collector == nil {
		collector = NewErrorCollector()
	}
	r := &Reporter{
		logger:    logger.WithComponent("reporter"),
		collector: collector,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AddListener registers fn to be called for every reported error.
func (r *Reporter) AddListener(fn Listener) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.listeners = append(r.listeners, fn)
}

// Collector returns the collector errors are recorded into.
func (r *Reporter) Collector() *ErrorCollector {
	return r.collector
}

// Report records and surfaces err.
func (r *Reporter) Report(ctx context.Context, err *BuildError) {
	if err == nil {
		return
	}
	r.collector.Add(*err)

	r.logger.Error(ctx, err.Cause, "Build failed",
		"pipeline", err.Pipeline,
		"file", err.File,
		"line", err.Line,
		"column", err.Column,
		"message", err.Message,
	)

	if r.desktop != nil {
		title := "assetline: " + err.Pipeline
		if nerr := r.desktop(title, err.Message); nerr != nil {
			r.logger.Debug(ctx, "Desktop notification failed", "error", nerr.Error())
		}
	}

	r.mutex.RLock()
	listeners := r.listeners
	r.mutex.RUnlock()
	for _, fn := range listeners {
		fn(*err)
	}
}

// Resolve clears the recorded errors of pipeline, ahead of its next run.
func (r *Reporter) Resolve(pipeline string) {
	r.collector.Reset(pipeline)
}
