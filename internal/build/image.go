package build

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/conneroisu/assetline/internal/errors"
	"github.com/conneroisu/assetline/internal/glob"
	"golang.org/x/sync/errgroup"
)

// Image compresses images into the output tree. Sources whose output is
// already up to date are skipped, so a rerun without changes writes nothing.
type Image struct {
	// Codecs overrides the codec chains built from the configuration.
	Codecs map[string][]Codec
}

func (Image) Name() string { return "image" }

func (Image) Sources(env *Env) glob.Set {
	return glob.New(env.Config.Paths.SrcImages)
}

// Silent: images are picked up by the output tree watcher instead.
func (Image) Silent() bool { return true }

func (im Image) Run(ctx context.Context, env *Env) (Result, error) {
	cfg := env.Config.Images
	pattern := env.Config.Paths.SrcImages
	logger := env.Logger.WithComponent(im.Name())

	files, err := im.Sources(env).Expand()
	if err != nil {
		return Result{}, err
	}

	plan := codecPlan(im.Codecs)
	if plan == nil {
		var missing []string
		plan, missing = planCodecs(cfg, exec.LookPath)
		if len(missing) > 0 {
			logger.Warn(ctx, nil, "Image optimizers not installed, skipping them", "binaries", strings.Join(missing, ","))
		}
	}

	var (
		res Result
		mu  sync.Mutex
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Concurrent)

	var runErr error
	for _, file := range files {
		file := file
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		dest, _, err := outputPath(pattern, file, env.Config.Paths.OutImages)
		if err != nil {
			runErr = err
			break
		}

		changed, err := Changed(file, dest)
		if err != nil {
			env.Reporter.Report(ctx, errors.NewBuildError(im.Name(), file, err))
			mu.Lock()
			res.Failed++
			mu.Unlock()
			continue
		}
		if !changed {
			mu.Lock()
			res.Skipped++
			mu.Unlock()
			continue
		}

		g.Go(func() error {
			saved, err := im.compressOne(gctx, plan, file, dest)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				env.Reporter.Report(gctx, errors.NewBuildError(im.Name(), file, err))
				res.Failed++
				return nil
			}
			res.Written = append(res.Written, dest)
			if !cfg.Quiet {
				logger.Info(gctx, "Compressed image", "file", file, "saved_bytes", saved)
			}
			return nil
		})
	}

	// Workers never return errors; failures are reported per file. Started
	// workers still write into res, so wait even when the loop stopped early.
	_ = g.Wait()
	return res, runErr
}

// compressOne runs the codec chain for file, keeping each result only when it
// is smaller, and writes the best bytes to dest. It returns bytes saved.
func (im Image) compressOne(ctx context.Context, plan codecPlan, file, dest string) (int, error) {
	original, err := os.ReadFile(file)
	if err != nil {
		return 0, err
	}

	best := original
	for _, codec := range plan[strings.ToLower(filepath.Ext(file))] {
		out, err := codec.Apply(ctx, best)
		if err != nil {
			// Nothing is written, so the change filter retries next run.
			return 0, fmt.Errorf("%s: %w", codec.Name(), err)
		}
		if len(out) > 0 && len(out) < len(best) {
			best = out
		}
	}

	if err := writeFileAtomic(dest, best); err != nil {
		return 0, err
	}
	return len(original) - len(best), nil
}
