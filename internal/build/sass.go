package build

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/bep/godartsass/v2"
	"github.com/bmatcuk/doublestar/v4"
)

// SassRequest is one stylesheet to compile.
type SassRequest struct {
	File         string
	Source       string
	IncludePaths []string
}

// SassResult holds compressed CSS and its source map.
type SassResult struct {
	CSS       string
	SourceMap string
}

// SassCompiler turns SCSS into CSS. One compiler serves a whole run.
type SassCompiler interface {
	Compile(ctx context.Context, req SassRequest) (SassResult, error)
	Close() error
}

// dartSass drives a Dart Sass process over the embedded protocol.
type dartSass struct {
	transpiler *godartsass.Transpiler
}

// NewDartSass starts the Dart Sass executable at binary.
func NewDartSass(binary string) (SassCompiler, error) {
	t, err := godartsass.Start(godartsass.Options{
		DartSassEmbeddedFilename: binary,
	})
	if err != nil {
		return nil, fmt.Errorf("starting dart sass (%s): %w", binary, err)
	}
	return &dartSass{transpiler: t}, nil
}

func (d *dartSass) Compile(ctx context.Context, req SassRequest) (SassResult, error) {
	if err := ctx.Err(); err != nil {
		return SassResult{}, err
	}
	abs, err := filepath.Abs(req.File)
	if err != nil {
		return SassResult{}, err
	}
	res, err := d.transpiler.Execute(godartsass.Args{
		Source:                  req.Source,
		URL:                     (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String(),
		SourceSyntax:            godartsass.SourceSyntaxSCSS,
		OutputStyle:             godartsass.OutputStyleCompressed,
		IncludePaths:            req.IncludePaths,
		EnableSourceMap:         true,
		SourceMapIncludeSources: true,
	})
	if err != nil {
		return SassResult{}, err
	}
	return SassResult{CSS: res.CSS, SourceMap: res.SourceMap}, nil
}

func (d *dartSass) Close() error {
	return d.transpiler.Close()
}

var globImportRe = regexp.MustCompile(`(?m)^([ \t]*)@(import|use|forward)[ \t]+(["'])([^"']*[*?\[{][^"']*)["'][ \t]*;`)

// ExpandGlobImports rewrites import rules whose target is a glob into one
// rule per matching stylesheet, relative to dir and sorted. Underscored
// partials match without the underscore, as Sass resolves them.
func ExpandGlobImports(source, dir string) (string, error) {
	var firstErr error
	out := globImportRe.ReplaceAllStringFunc(source, func(rule string) string {
		m := globImportRe.FindStringSubmatch(rule)
		indent, keyword, quote, pattern := m[1], m[2], m[3], m[4]

		if path.Ext(pattern) == "" {
			pattern += ".{scss,sass,css}"
		}
		matches, err := doublestar.Glob(os.DirFS(dir), pattern)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("expanding %q: %w", m[4], err)
			}
			return rule
		}
		sort.Strings(matches)

		lines := make([]string, 0, len(matches))
		for _, match := range matches {
			target := strings.TrimSuffix(match, path.Ext(match))
			d, f := path.Split(target)
			target = d + strings.TrimPrefix(f, "_")
			lines = append(lines, fmt.Sprintf("%s@%s %s%s%s;", indent, keyword, quote, target, quote))
		}
		return strings.Join(lines, "\n")
	})
	return out, firstErr
}
