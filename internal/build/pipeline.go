// Package build contains the asset pipelines. Each pipeline is a stateless
// pass over the source files currently matching its glob: it transforms
// them, writes the results below its own output directory and reports
// per-file failures without stopping.
package build

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/conneroisu/assetline/internal/errors"
	"github.com/conneroisu/assetline/internal/glob"
	"github.com/conneroisu/assetline/internal/logging"
)

// Pipeline is one source-glob-to-output-directory transform.
type Pipeline interface {
	// Name identifies the pipeline in logs, errors and watch bindings.
	Name() string
	// Sources is the glob whose changes should rerun the pipeline.
	Sources(env *Env) glob.Set
	// Run processes every matching source once. Per-file failures go to
	// env.Reporter and are counted in Result.Failed; the returned error is
	// reserved for failures of the run as a whole.
	Run(ctx context.Context, env *Env) (Result, error)
}

// Result summarises one run.
type Result struct {
	Pipeline string
	Written  []string
	Skipped  int
	Failed   int
}

// OK reports whether the run finished without any failure.
func (r Result) OK() bool {
	return r.Failed == 0
}

// silent pipelines do not push reloads themselves.
type silent interface {
	Silent() bool
}

// Execute runs p once with the policies every invocation shares: panics and
// run-level errors are reported instead of propagated, and written files are
// handed to the notifier. The pipeline's previously recorded errors are
// dropped when the run starts, so the collector only ever holds the failures
// of its latest run.
func Execute(ctx context.Context, env *Env, p Pipeline) (res Result) {
	logger := env.Logger.WithComponent(p.Name())
	op := logging.StartOperation(logger, "run")

	env.Reporter.Resolve(p.Name())

	start := time.Now()
	defer func() {
		env.Metrics.Record(res, time.Since(start))
	}()
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("pipeline %s panicked: %v\n%s", p.Name(), r, debug.Stack())
			env.Reporter.Report(ctx, errors.NewBuildError(p.Name(), "", err))
			res = Result{Pipeline: p.Name(), Failed: 1}
		}
	}()

	res, err := p.Run(ctx, env)
	res.Pipeline = p.Name()
	if err != nil {
		env.Reporter.Report(ctx, errors.NewBuildError(p.Name(), "", err))
		res.Failed++
		op.EndWithError(ctx, err)
		return res
	}

	op.End(ctx, "written", len(res.Written), "skipped", res.Skipped, "failed", res.Failed)

	if len(res.Written) > 0 {
		if s, ok := p.(silent); !ok || !s.Silent() {
			env.Notifier.Notify(ctx, res.Written...)
		}
	}
	return res
}

// writeFileAtomic replaces path with data so that readers see either the old
// or the new content, never a partial file.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".assetline-*")
	if err != nil {
		return fmt.Errorf("creating temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}

// outputPath maps src, matched by pattern, to the same relative location
// under outDir.
func outputPath(pattern, src, outDir string) (string, string, error) {
	rel, err := glob.Rel(pattern, src)
	if err != nil {
		return "", "", fmt.Errorf("relative path of %s: %w", src, err)
	}
	return filepath.Join(outDir, filepath.FromSlash(rel)), rel, nil
}

// replaceExt swaps the extension of p for ext (which includes the dot).
func replaceExt(p, ext string) string {
	return p[:len(p)-len(filepath.Ext(p))] + ext
}
