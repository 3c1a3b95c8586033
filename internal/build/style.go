package build

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/conneroisu/assetline/internal/errors"
	"github.com/conneroisu/assetline/internal/glob"
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
)

const mapsDir = "maps"

// Style compiles SCSS entry stylesheets into minified, vendor-prefixed CSS
// with source maps in a maps/ subdirectory.
type Style struct {
	// NewCompiler overrides the Dart Sass compiler, mainly for tests.
	NewCompiler func(env *Env) (SassCompiler, error)
}

func (Style) Name() string { return "style" }

func (Style) Sources(env *Env) glob.Set {
	return glob.New(env.Config.Paths.SrcStyles)
}

func (s Style) Run(ctx context.Context, env *Env) (Result, error) {
	pattern := env.Config.Paths.SrcStyles
	files, err := s.Sources(env).Expand()
	if err != nil {
		return Result{}, err
	}

	var entries []string
	for _, f := range files {
		if !glob.IsPartial(f) {
			entries = append(entries, f)
		}
	}
	if len(entries) == 0 {
		return Result{}, nil
	}

	newCompiler := s.NewCompiler
	if newCompiler == nil {
		newCompiler = func(env *Env) (SassCompiler, error) {
			return NewDartSass(env.Config.Style.DartSass)
		}
	}
	compiler, err := newCompiler(env)
	if err != nil {
		return Result{}, err
	}
	defer compiler.Close()

	prefixer := newPrefixer(ctx, env)
	logger := env.Logger.WithComponent(s.Name())

	var res Result
	for _, file := range entries {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		written, err := s.compileOne(ctx, env, compiler, prefixer, pattern, file)
		if err != nil {
			env.Reporter.Report(ctx, errors.NewBuildError(s.Name(), file, err))
			res.Failed++
			continue
		}
		logger.Debug(ctx, "Compiled stylesheet", "file", file)
		res.Written = append(res.Written, written...)
	}
	return res, nil
}

// compileOne writes nothing unless every step succeeded.
func (s Style) compileOne(ctx context.Context, env *Env, compiler SassCompiler, prefixer *prefixer, pattern, file string) ([]string, error) {
	source, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(file)
	expanded, err := ExpandGlobImports(string(source), dir)
	if err != nil {
		return nil, err
	}

	includes := append([]string{dir}, env.Config.Style.IncludePaths...)
	compiled, err := compiler.Compile(ctx, SassRequest{
		File:         file,
		Source:       expanded,
		IncludePaths: includes,
	})
	if err != nil {
		return nil, err
	}

	cssText, err := prefixer.apply(ctx, compiled.CSS)
	if err != nil {
		return nil, err
	}

	_, rel, err := outputPath(pattern, file, env.Config.Paths.OutCSS)
	if err != nil {
		return nil, err
	}
	cssRel := replaceExt(rel, ".css")
	cssPath := filepath.Join(env.Config.Paths.OutCSS, filepath.FromSlash(cssRel))
	mapPath := filepath.Join(env.Config.Paths.OutCSS, mapsDir, filepath.FromSlash(cssRel)+".map")

	written := []string{}
	if compiled.SourceMap != "" {
		mapURL, err := filepath.Rel(filepath.Dir(cssPath), mapPath)
		if err != nil {
			return nil, err
		}
		cssText = strings.TrimRight(cssText, "\n") + "\n/*# sourceMappingURL=" + filepath.ToSlash(mapURL) + " */\n"
		if err := writeFileAtomic(mapPath, []byte(compiled.SourceMap)); err != nil {
			return nil, err
		}
		written = append(written, mapPath)
	}

	if err := writeFileAtomic(cssPath, []byte(cssText)); err != nil {
		return nil, err
	}
	return append(written, cssPath), nil
}

// prefixer pipes CSS through an external autoprefixer command. When the
// command is not installed, prefixing is skipped for the whole run.
type prefixer struct {
	argv     []string
	minifier *minify.M
}

func newPrefixer(ctx context.Context, env *Env) *prefixer {
	argv := env.Config.Style.Prefixer
	if len(argv) == 0 {
		return &prefixer{}
	}
	if _, err := exec.LookPath(argv[0]); err != nil {
		env.Logger.WithComponent("style").Warn(ctx, err, "Vendor prefixer not found, output stays unprefixed", "command", argv[0])
		return &prefixer{}
	}

	m := minify.New()
	m.AddFunc("text/css", css.Minify)
	return &prefixer{argv: argv, minifier: m}
}

func (p *prefixer) apply(ctx context.Context, input string) (string, error) {
	if len(p.argv) == 0 {
		return input, nil
	}

	cmd := exec.CommandContext(ctx, p.argv[0], p.argv[1:]...)
	cmd.Stdin = strings.NewReader(input)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s: %w: %s", p.argv[0], err, strings.TrimSpace(stderr.String()))
	}

	// The prefixer pretty-prints; restore compressed output.
	out, err := p.minifier.String("text/css", stdout.String())
	if err != nil {
		return "", fmt.Errorf("minifying prefixed css: %w", err)
	}
	return out, nil
}
