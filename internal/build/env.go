package build

import (
	"context"

	"github.com/conneroisu/assetline/internal/config"
	"github.com/conneroisu/assetline/internal/errors"
	"github.com/conneroisu/assetline/internal/logging"
	"github.com/conneroisu/assetline/internal/meta"
)

// Notifier is told about output files a pipeline has just written. The dev
// server implements it to push reloads to connected browsers.
type Notifier interface {
	Notify(ctx context.Context, paths ...string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, paths ...string)

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, paths ...string) {
	f(ctx, paths...)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, ...string) {}

// Env is the process-wide state shared by every pipeline. It is built once
// at startup and passed explicitly; nothing in it changes afterwards.
type Env struct {
	Config   *config.Config
	Meta     *meta.Data
	Logger   logging.Logger
	Reporter *errors.Reporter
	Notifier Notifier
	Metrics  *Metrics
}

// NewEnv assembles an Env, filling unset collaborators with quiet defaults.
func NewEnv(cfg *config.Config, data *meta.Data, logger logging.Logger, reporter *errors.Reporter, notifier Notifier) *Env {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if reporter == nil {
		reporter = errors.NewReporter(logger, nil)
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Env{
		Config:   cfg,
		Meta:     data,
		Logger:   logger,
		Reporter: reporter,
		Notifier: notifier,
		Metrics:  NewMetrics(),
	}
}
