package build

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplateRendersPages(t *testing.T) {
	dir := t.TempDir()
	env := testEnv(t, dir)
	src := filepath.Join(dir, "src", "ejs")

	writeFile(t, filepath.Join(src, "_header.ejs"), `<header>{{ .page.name }}</header>`)
	writeFile(t, filepath.Join(src, "index.ejs"),
		`<title>{{ meta "site.title" }}</title>{{ include "_header.ejs" . }}`+
			`{{ range .meta_json.nav }}<a>{{ title .name }}</a>{{ end }}`)
	writeFile(t, filepath.Join(src, "blog", "_aside.ejs"), `<aside>{{ asset "css" "main.css" }}</aside>`)
	writeFile(t, filepath.Join(src, "blog", "post.ejs"), `{{ include "_aside.ejs" . }}{{ template "_header.ejs" . }}`)

	res, err := Template{}.Run(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Failed)
	assert.ElementsMatch(t, []string{
		filepath.Join(dir, "dist", "index.html"),
		filepath.Join(dir, "dist", "blog", "post.html"),
	}, res.Written)

	index, err := os.ReadFile(filepath.Join(dir, "dist", "index.html"))
	require.NoError(t, err)
	assert.Equal(t, `<title>Hello</title><header>index</header><a>Home</a><a>About</a>`, string(index))

	post, err := os.ReadFile(filepath.Join(dir, "dist", "blog", "post.html"))
	require.NoError(t, err)
	assert.Equal(t, `<aside>/css/main.css</aside><header>post</header>`, string(post))

	assert.NoFileExists(t, filepath.Join(dir, "dist", "_header.html"))
	assert.NoFileExists(t, filepath.Join(dir, "dist", "blog", "_aside.html"))
}

func TestTemplateBrokenPageLeavesOthers(t *testing.T) {
	dir := t.TempDir()
	env := testEnv(t, dir)
	src := filepath.Join(dir, "src", "ejs")

	writeFile(t, filepath.Join(src, "good.ejs"), `<p>ok</p>`)
	writeFile(t, filepath.Join(src, "bad.ejs"), `<p>{{ .unclosed </p>`)
	writeFile(t, filepath.Join(src, "missing.ejs"), `{{ include "_nope.ejs" . }}`)

	res, err := Template{}.Run(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Failed)
	assert.Equal(t, []string{filepath.Join(dir, "dist", "good.html")}, res.Written)
	assert.NoFileExists(t, filepath.Join(dir, "dist", "bad.html"))
	assert.NoFileExists(t, filepath.Join(dir, "dist", "missing.html"))

	errs := env.Reporter.Collector().GetErrors()
	require.Len(t, errs, 2)
	for _, e := range errs {
		assert.Equal(t, "template", e.Pipeline)
	}
}

func TestTemplateUndefinedReferenceIsReported(t *testing.T) {
	testCases := []struct {
		name string
		body string
	}{
		{"misspelled metadata root", `<p>{{ .meta_jsn.site.title }}</p>`},
		{"missing metadata key", `<p>{{ .meta_json.site.tagline }}</p>`},
		{"undefined variable", `<i>{{ .undefined_var }}</i>`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			env := testEnv(t, dir)
			writeFile(t, filepath.Join(dir, "src", "ejs", "page.ejs"), tc.body)

			res, err := Template{}.Run(context.Background(), env)
			require.NoError(t, err)
			assert.Equal(t, 1, res.Failed)
			assert.Empty(t, res.Written)
			assert.NoFileExists(t, filepath.Join(dir, "dist", "page.html"))

			errs := env.Reporter.Collector().GetErrors()
			require.Len(t, errs, 1)
			assert.Equal(t, filepath.Join(dir, "src", "ejs", "page.ejs"), errs[0].File)
		})
	}
}

func TestTemplateUndefinedReferenceInPartial(t *testing.T) {
	dir := t.TempDir()
	env := testEnv(t, dir)
	src := filepath.Join(dir, "src", "ejs")
	writeFile(t, filepath.Join(src, "_nav.ejs"), `<nav>{{ .meta_json.menu }}</nav>`)
	writeFile(t, filepath.Join(src, "index.ejs"), `{{ include "_nav.ejs" . }}`)

	res, err := Template{}.Run(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.NoFileExists(t, filepath.Join(dir, "dist", "index.html"))
}

func TestTemplateEscapesMetadata(t *testing.T) {
	dir := t.TempDir()
	env := testEnv(t, dir)
	writeFile(t, filepath.Join(dir, "src", "ejs", "x.ejs"), `<p>{{ "<b>" }}</p>`)

	_, err := Template{}.Run(context.Background(), env)
	require.NoError(t, err)

	out, err := os.ReadFile(filepath.Join(dir, "dist", "x.html"))
	require.NoError(t, err)
	assert.Equal(t, `<p>&lt;b&gt;</p>`, string(out))
}

func TestTemplateOutputsMirrorPages(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 25
	properties := gopter.NewProperties(parameters)

	properties.Property("one html output per non-partial page", prop.ForAll(
		func(names []string, partial []bool) bool {
			dir := t.TempDir()
			env := testEnv(t, dir)
			src := filepath.Join(dir, "src", "ejs")

			var want []string
			seen := map[string]bool{}
			for i, name := range names {
				if name == "" || seen[name] {
					continue
				}
				seen[name] = true
				file := name + ".ejs"
				if i < len(partial) && partial[i] {
					file = "_" + file
				} else {
					want = append(want, filepath.Join(dir, "dist", name+".html"))
				}
				writeFile(t, filepath.Join(src, file), "<p>"+name+"</p>")
			}

			res, err := Template{}.Run(context.Background(), env)
			if err != nil || res.Failed != 0 {
				return false
			}
			got := append([]string(nil), res.Written...)
			sort.Strings(got)
			sort.Strings(want)
			if len(got) != len(want) {
				return false
			}
			for i := range got {
				if got[i] != want[i] {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(6, gen.Identifier()),
		gen.SliceOfN(6, gen.Bool()),
	))

	properties.TestingRun(t)
}
