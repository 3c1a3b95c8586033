package build

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/conneroisu/assetline/internal/errors"
	"github.com/conneroisu/assetline/internal/glob"
	"github.com/evanw/esbuild/pkg/api"
	"github.com/tidwall/jsonc"
)

// BundleConfig is the bundler configuration file. It is owned by the
// project, not by assetline; fields map one-to-one onto esbuild options.
type BundleConfig struct {
	EntryPoints []string          `json:"entry_points"`
	Format      string            `json:"format"`
	Target      string            `json:"target"`
	Minify      *bool             `json:"minify"`
	External    []string          `json:"external"`
	Define      map[string]string `json:"define"`
	Loader      map[string]string `json:"loader"`
}

// LoadBundleConfig reads path. A missing file yields an empty config.
func LoadBundleConfig(path string) (*BundleConfig, error) {
	var cfg BundleConfig
	if path == "" {
		return &cfg, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading bundle config: %w", err)
	}
	if err := json.Unmarshal(jsonc.ToJSON(data), &cfg); err != nil {
		return nil, fmt.Errorf("parsing bundle config %s: %w", path, err)
	}
	return &cfg, nil
}

// Script bundles JavaScript entry points with esbuild and writes the bundles
// plus external source maps in a maps/ subdirectory.
type Script struct{}

func (Script) Name() string { return "script" }

func (Script) Sources(env *Env) glob.Set {
	return glob.New(env.Config.Paths.SrcScripts)
}

func (s Script) Run(ctx context.Context, env *Env) (Result, error) {
	bundleCfg, err := LoadBundleConfig(env.Config.Data.BundleConfig)
	if err != nil {
		return Result{}, err
	}

	entries := bundleCfg.EntryPoints
	if len(entries) == 0 {
		files, err := s.Sources(env).Expand()
		if err != nil {
			return Result{}, err
		}
		for _, f := range files {
			if !glob.IsPartial(f) {
				entries = append(entries, f)
			}
		}
	}
	if len(entries) == 0 {
		return Result{}, nil
	}

	opts, err := s.buildOptions(env, bundleCfg, entries)
	if err != nil {
		return Result{}, err
	}

	result := api.Build(opts)

	var res Result
	if len(result.Errors) > 0 {
		// A failed bundle writes nothing; the next change event gets a
		// fresh attempt.
		for _, msg := range result.Errors {
			env.Reporter.Report(ctx, messageError(s.Name(), msg))
		}
		res.Failed = len(result.Errors)
		return res, nil
	}
	logger := env.Logger.WithComponent(s.Name())
	for _, msg := range result.Warnings {
		logger.Warn(ctx, nil, msg.Text, "file", messageFile(msg))
	}

	for _, out := range result.OutputFiles {
		rel, err := filepath.Rel(opts.Outdir, out.Path)
		if err != nil {
			return res, err
		}
		dest, contents, err := s.placeOutput(env.Config.Paths.OutJS, rel, out.Contents)
		if err != nil {
			env.Reporter.Report(ctx, errors.NewBuildError(s.Name(), dest, err))
			res.Failed++
			continue
		}
		if err := writeFileAtomic(dest, contents); err != nil {
			env.Reporter.Report(ctx, errors.NewBuildError(s.Name(), dest, err))
			res.Failed++
			continue
		}
		res.Written = append(res.Written, dest)
	}
	return res, nil
}

// placeOutput routes maps into maps/ and links bundles to them.
func (s Script) placeOutput(outDir, rel string, contents []byte) (string, []byte, error) {
	if strings.HasSuffix(rel, ".map") {
		dest := filepath.Join(outDir, mapsDir, rel)
		relocated, err := relocateSources(contents, "../")
		return dest, relocated, err
	}
	dest := filepath.Join(outDir, rel)
	if filepath.Ext(rel) == ".js" {
		mapURL := filepath.ToSlash(filepath.Join(strings.Repeat("../", strings.Count(filepath.ToSlash(rel), "/")), mapsDir, filepath.ToSlash(rel)+".map"))
		contents = append(append([]byte{}, contents...), []byte("\n//# sourceMappingURL="+mapURL+"\n")...)
	}
	return dest, contents, nil
}

// relocateSources prefixes the relative "sources" of a source map with up,
// for a map moved below the directory esbuild wrote it for. Absolute paths
// and URLs are kept.
func relocateSources(sourceMap []byte, up string) ([]byte, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(sourceMap, &doc); err != nil {
		return nil, fmt.Errorf("parsing source map: %w", err)
	}
	raw, ok := doc["sources"]
	if !ok {
		return sourceMap, nil
	}
	var sources []string
	if err := json.Unmarshal(raw, &sources); err != nil {
		return nil, fmt.Errorf("parsing source map sources: %w", err)
	}
	for i, src := range sources {
		if src == "" || path.IsAbs(src) || strings.Contains(src, "://") {
			continue
		}
		sources[i] = up + src
	}
	encoded, err := json.Marshal(sources)
	if err != nil {
		return nil, err
	}
	doc["sources"] = encoded
	return json.Marshal(doc)
}

func (s Script) buildOptions(env *Env, cfg *BundleConfig, entries []string) (api.BuildOptions, error) {
	wd, err := os.Getwd()
	if err != nil {
		return api.BuildOptions{}, err
	}
	outdir, err := filepath.Abs(env.Config.Paths.OutJS)
	if err != nil {
		return api.BuildOptions{}, err
	}
	outbase, err := filepath.Abs(glob.Base(env.Config.Paths.SrcScripts))
	if err != nil {
		return api.BuildOptions{}, err
	}

	format, err := parseFormat(cfg.Format)
	if err != nil {
		return api.BuildOptions{}, err
	}
	target, err := parseTarget(cfg.Target)
	if err != nil {
		return api.BuildOptions{}, err
	}
	loaders, err := parseLoaders(cfg.Loader)
	if err != nil {
		return api.BuildOptions{}, err
	}

	minify := true
	if cfg.Minify != nil {
		minify = *cfg.Minify
	}

	return api.BuildOptions{
		EntryPoints:       entries,
		AbsWorkingDir:     wd,
		Bundle:            true,
		Write:             false,
		Outdir:            outdir,
		Outbase:           outbase,
		Format:            format,
		Target:            target,
		Sourcemap:         api.SourceMapExternal,
		MinifyWhitespace:  minify,
		MinifyIdentifiers: minify,
		MinifySyntax:      minify,
		External:          cfg.External,
		Define:            cfg.Define,
		Loader:            loaders,
		LogLevel:          api.LogLevelSilent,
	}, nil
}

func parseFormat(s string) (api.Format, error) {
	switch strings.ToLower(s) {
	case "", "iife":
		return api.FormatIIFE, nil
	case "esm":
		return api.FormatESModule, nil
	case "cjs":
		return api.FormatCommonJS, nil
	default:
		return api.FormatDefault, fmt.Errorf("unknown bundle format %q", s)
	}
}

func parseTarget(s string) (api.Target, error) {
	targets := map[string]api.Target{
		"":       api.ES2017,
		"es2015": api.ES2015,
		"es2016": api.ES2016,
		"es2017": api.ES2017,
		"es2018": api.ES2018,
		"es2019": api.ES2019,
		"es2020": api.ES2020,
		"es2021": api.ES2021,
		"es2022": api.ES2022,
		"esnext": api.ESNext,
	}
	t, ok := targets[strings.ToLower(s)]
	if !ok {
		return api.DefaultTarget, fmt.Errorf("unknown bundle target %q", s)
	}
	return t, nil
}

func parseLoaders(in map[string]string) (map[string]api.Loader, error) {
	if len(in) == 0 {
		return nil, nil
	}
	names := map[string]api.Loader{
		"js":      api.LoaderJS,
		"jsx":     api.LoaderJSX,
		"ts":      api.LoaderTS,
		"tsx":     api.LoaderTSX,
		"json":    api.LoaderJSON,
		"text":    api.LoaderText,
		"css":     api.LoaderCSS,
		"file":    api.LoaderFile,
		"dataurl": api.LoaderDataURL,
		"base64":  api.LoaderBase64,
		"binary":  api.LoaderBinary,
	}
	out := make(map[string]api.Loader, len(in))
	for ext, name := range in {
		l, ok := names[strings.ToLower(name)]
		if !ok {
			return nil, fmt.Errorf("unknown loader %q for %s", name, ext)
		}
		out[ext] = l
	}
	return out, nil
}

func messageFile(msg api.Message) string {
	if msg.Location == nil {
		return ""
	}
	return msg.Location.File
}

// messageError converts an esbuild diagnostic into a BuildError.
func messageError(pipeline string, msg api.Message) *errors.BuildError {
	be := errors.NewBuildError(pipeline, messageFile(msg), fmt.Errorf("%s", msg.Text))
	if msg.Location != nil {
		be.Line = msg.Location.Line
		be.Column = msg.Location.Column + 1
	}
	return be
}
