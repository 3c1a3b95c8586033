// Package task composes pipelines into the commands assetline exposes.
// Every composite is an explicit list of invocations; nothing runs
// implicitly before or after another task.
package task

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"time"

	"github.com/conneroisu/assetline/internal/build"
	"github.com/conneroisu/assetline/internal/config"
	"github.com/conneroisu/assetline/internal/errors"
	"github.com/conneroisu/assetline/internal/glob"
	"github.com/conneroisu/assetline/internal/lint"
	"github.com/conneroisu/assetline/internal/logging"
	"github.com/conneroisu/assetline/internal/meta"
	"github.com/conneroisu/assetline/internal/server"
	"github.com/conneroisu/assetline/internal/watcher"
	"golang.org/x/sync/errgroup"
)

// ErrBuildFailed is returned by Build when any pipeline reported a failure.
var ErrBuildFailed = stderrors.New("build failed")

// ErrLintFailed is returned by Lint when HTML issues or JS errors were found.
var ErrLintFailed = stderrors.New("lint failed")

// Pipelines is the list every build and dev run executes, in order.
func Pipelines() []build.Pipeline {
	return []build.Pipeline{
		build.Template{},
		build.Style{},
		build.Script{},
		build.Image{},
	}
}

// NewEnv loads the metadata document and assembles the shared Env. A
// missing or malformed metadata file is fatal.
func NewEnv(cfg *config.Config, logger logging.Logger) (*build.Env, error) {
	data, err := meta.Load(cfg.Data.MetaJSON)
	if err != nil {
		return nil, err
	}
	reporter := errors.NewReporter(logger, nil, errors.WithDesktopNotifications(cfg.Notify.Desktop))
	return build.NewEnv(cfg, data, logger, reporter, nil), nil
}

// RunAll runs pipelines once, concurrently, and waits for all of them.
// Results are returned in the order of pipelines.
func RunAll(ctx context.Context, env *build.Env, pipelines []build.Pipeline) []build.Result {
	results := make([]build.Result, len(pipelines))
	var g errgroup.Group
	for i, p := range pipelines {
		i, p := i, p
		g.Go(func() error {
			results[i] = build.Execute(ctx, env, p)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Build runs every pipeline once without server or watchers.
func Build(ctx context.Context, env *build.Env) error {
	start := time.Now()
	results := RunAll(ctx, env, Pipelines())

	written, failed := 0, 0
	for _, res := range results {
		written += len(res.Written)
		failed += res.Failed
	}
	env.Logger.Info(ctx, "Build finished",
		"written", written,
		"failed", failed,
		"duration", time.Since(start).Round(time.Millisecond))
	if failed > 0 {
		return fmt.Errorf("%w: %d error(s)", ErrBuildFailed, failed)
	}
	return nil
}

// Bind starts one watch binding per pipeline. Each binding reruns only its
// own pipeline; failures stay inside the binding.
func Bind(ctx context.Context, env *build.Env, group *watcher.Group, pipelines []build.Pipeline) {
	for _, p := range pipelines {
		p := p
		binding := watcher.Binding{
			Name:    p.Name(),
			Pattern: p.Sources(env),
			Run: func(ctx context.Context, _ []watcher.ChangeEvent) error {
				build.Execute(ctx, env, p)
				return nil
			},
		}
		if err := group.Bind(ctx, binding, env.Config.Watch.Debounce); err != nil {
			env.Logger.Warn(ctx, err, "Watch binding not started", "pipeline", p.Name())
		}
	}
}

// Dev starts the dev server and every watch binding, runs each pipeline
// once and then blocks until ctx is cancelled or the server fails.
func Dev(ctx context.Context, env *build.Env) error {
	srv := server.New(env.Config, env.Logger, env.Reporter.Collector())
	srv.SetStats(func() interface{} { return env.Metrics.Snapshot() })
	env.Reporter.AddListener(srv.ReportBuildError)

	devEnv := *env
	devEnv.Notifier = srv

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(gctx)
	})

	group := watcher.NewGroup(env.Logger)
	defer group.Stop()

	pipelines := Pipelines()
	Bind(gctx, &devEnv, group, pipelines)
	RunAll(gctx, &devEnv, pipelines)

	env.Logger.Info(gctx, "Watching for changes, press Ctrl+C to stop")
	<-gctx.Done()
	return g.Wait()
}

// lintTarget pairs a linter with the output it checks.
type lintTarget struct {
	linter  lint.Linter
	pattern string
}

func lintTargets(cfg *config.Config) []lintTarget {
	return []lintTarget{
		{lint.HTML{Disable: cfg.Lint.Disable}, cfg.Paths.HTMLOutputGlob()},
		{lint.CSS{Disable: cfg.Lint.Disable}, cfg.Paths.CSSOutputGlob()},
		{lint.JS{}, cfg.Paths.JSOutputGlob()},
	}
}

// Lint runs the HTML, CSS and JS linters over the output tree, in that
// order, writing reports to w. Every linter runs even after a failure.
func Lint(ctx context.Context, cfg *config.Config, logger logging.Logger, w io.Writer) error {
	var failed []string
	for _, target := range lintTargets(cfg) {
		report, err := lint.Run(ctx, target.linter, glob.New(target.pattern), logger)
		if err != nil {
			return fmt.Errorf("lint %s: %w", target.linter.Name(), err)
		}
		if err := lint.Write(w, report); err != nil {
			return err
		}

		if report.Failed() {
			failed = append(failed, report.Linter)
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("%w: %v", ErrLintFailed, failed)
	}
	return nil
}
