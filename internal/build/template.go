package build

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/conneroisu/assetline/internal/errors"
	"github.com/conneroisu/assetline/internal/glob"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Template renders page templates against the site metadata into HTML.
//
// Every file matching the template glob is parsed. Files whose name starts
// with an underscore are partials: they are available to pages, either with
// {{ template "<relative path>" . }} or {{ include "<path>" . }}, but are
// never written out on their own.
type Template struct{}

func (Template) Name() string { return "template" }

func (Template) Sources(env *Env) glob.Set {
	return glob.New(env.Config.Paths.SrcTemplates)
}

// PageData is the value templates execute against.
type PageData struct {
	// MetaJSON is the decoded metadata document, reachable as .meta_json
	// through the map form handed to templates.
	MetaJSON interface{}
	Path     string
}

func (d PageData) asMap() map[string]interface{} {
	return map[string]interface{}{
		"meta_json": d.MetaJSON,
		"page": map[string]interface{}{
			"path": d.Path,
			"name": strings.TrimSuffix(path.Base(d.Path), path.Ext(d.Path)),
		},
	}
}

type templateSource struct {
	file string
	rel  string
	body string
}

func (t Template) Run(ctx context.Context, env *Env) (Result, error) {
	pattern := env.Config.Paths.SrcTemplates
	files, err := t.Sources(env).Expand()
	if err != nil {
		return Result{}, err
	}

	var res Result
	var pages []templateSource
	// Pages are cloned from base and inherit missingkey=error, so a typo in
	// a metadata path fails the page instead of rendering empty.
	base := template.New("").Option("missingkey=error").Funcs(baseFuncs(env))

	for _, file := range files {
		rel, err := glob.Rel(pattern, file)
		if err != nil {
			return res, err
		}
		content, err := os.ReadFile(file)
		if err != nil {
			env.Reporter.Report(ctx, errors.NewBuildError(t.Name(), file, err))
			res.Failed++
			continue
		}
		src := templateSource{file: file, rel: rel, body: string(content)}

		if !glob.IsPartial(file) {
			pages = append(pages, src)
			continue
		}

		// Parse partials one at a time so a broken one only breaks the
		// pages that use it.
		if _, err := base.New(rel).Parse(src.body); err != nil {
			env.Reporter.Report(ctx, errors.NewBuildError(t.Name(), file, err))
			res.Failed++
		}
	}

	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		out, err := t.renderPage(base, env, page)
		if err != nil {
			env.Reporter.Report(ctx, errors.NewBuildError(t.Name(), page.file, err))
			res.Failed++
			continue
		}

		dest := filepath.Join(env.Config.Paths.OutHTML, filepath.FromSlash(replaceExt(page.rel, ".html")))
		if err := writeFileAtomic(dest, out); err != nil {
			env.Reporter.Report(ctx, errors.NewBuildError(t.Name(), page.file, err))
			res.Failed++
			continue
		}
		res.Written = append(res.Written, dest)
	}

	return res, nil
}

func (t Template) renderPage(base *template.Template, env *Env, page templateSource) ([]byte, error) {
	set, err := base.Clone()
	if err != nil {
		return nil, fmt.Errorf("cloning partials: %w", err)
	}

	dir := path.Dir(page.rel)
	set = set.Funcs(template.FuncMap{
		"include": func(name string, data ...interface{}) (template.HTML, error) {
			target := set.Lookup(path.Clean(path.Join(dir, name)))
			if target == nil {
				target = set.Lookup(path.Clean(name))
			}
			if target == nil {
				return "", fmt.Errorf("include %q: no such partial", name)
			}
			var arg interface{} = pageData(env, page.rel).asMap()
			if len(data) > 0 {
				arg = data[0]
			}
			var buf bytes.Buffer
			if err := target.Execute(&buf, arg); err != nil {
				return "", err
			}
			return template.HTML(buf.String()), nil
		},
	})

	tmpl, err := set.New(page.rel).Parse(page.body)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, pageData(env, page.rel).asMap()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func pageData(env *Env, rel string) PageData {
	return PageData{MetaJSON: env.Meta.Value(), Path: rel}
}

// baseFuncs are available to pages and partials alike. "include" is
// redefined per page so that relative names resolve against the page.
func baseFuncs(env *Env) template.FuncMap {
	titler := cases.Title(language.Und)
	return template.FuncMap{
		"meta": func(p string) interface{} {
			return env.Meta.Lookup(p)
		},
		"title": func(s string) string {
			return titler.String(s)
		},
		"asset": func(parts ...string) string {
			return "/" + strings.TrimPrefix(path.Join(parts...), "/")
		},
		"include": func(string, ...interface{}) (template.HTML, error) {
			return "", fmt.Errorf("include is only available while rendering a page")
		},
	}
}
