package build

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/conneroisu/assetline/internal/errors"
	"github.com/conneroisu/assetline/internal/glob"
	"github.com/conneroisu/assetline/internal/logging"
	"github.com/conneroisu/assetline/internal/meta"
	"github.com/conneroisu/assetline/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testEnv returns an Env whose paths all live below dir.
func testEnv(t *testing.T, dir string) *Env {
	t.Helper()

	cfg := testutils.CreateTestConfig(dir)

	data, err := meta.Parse([]byte(`{"site": {"title": "Hello"}, "nav": [{"name": "home"}, {"name": "about"}]}`))
	require.NoError(t, err)

	logger := logging.NewNopLogger()
	return NewEnv(cfg, data, logger, errors.NewReporter(logger, nil), nil)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	testutils.WriteFile(t, path, content)
}

type stubPipeline struct {
	name   string
	run    func(ctx context.Context, env *Env) (Result, error)
	silent bool
}

func (s stubPipeline) Name() string             { return s.name }
func (s stubPipeline) Sources(*Env) glob.Set    { return glob.New("**/*") }
func (s stubPipeline) Silent() bool             { return s.silent }
func (s stubPipeline) Run(ctx context.Context, env *Env) (Result, error) {
	return s.run(ctx, env)
}

type recordingNotifier struct {
	mu    sync.Mutex
	paths []string
}

func (r *recordingNotifier) Notify(_ context.Context, paths ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, paths...)
}

func TestExecuteRecoversPanics(t *testing.T) {
	env := testEnv(t, t.TempDir())

	p := stubPipeline{name: "boom", run: func(context.Context, *Env) (Result, error) {
		panic("kaboom")
	}}

	var res Result
	require.NotPanics(t, func() {
		res = Execute(context.Background(), env, p)
	})
	assert.Equal(t, "boom", res.Pipeline)
	assert.Equal(t, 1, res.Failed)

	errs := env.Reporter.Collector().GetErrors()
	require.Len(t, errs, 1)
	assert.Equal(t, "boom", errs[0].Pipeline)
	assert.Contains(t, errs[0].Message, "kaboom")
}

func TestExecuteRunErrorIsReported(t *testing.T) {
	env := testEnv(t, t.TempDir())
	notifier := &recordingNotifier{}
	env.Notifier = notifier

	p := stubPipeline{name: "broken", run: func(context.Context, *Env) (Result, error) {
		return Result{Written: []string{"x"}}, stderrors.New("no sources")
	}}

	res := Execute(context.Background(), env, p)
	assert.False(t, res.OK())
	assert.True(t, env.Reporter.Collector().HasErrors())
	assert.Empty(t, notifier.paths)
}

func TestExecuteCleanRunResolvesErrors(t *testing.T) {
	env := testEnv(t, t.TempDir())
	env.Reporter.Report(context.Background(), errors.NewBuildError("style", "a.scss", stderrors.New("bad")))
	env.Reporter.Report(context.Background(), errors.NewBuildError("script", "a.js", stderrors.New("bad")))

	p := stubPipeline{name: "style", run: func(context.Context, *Env) (Result, error) {
		return Result{}, nil
	}}
	Execute(context.Background(), env, p)

	errs := env.Reporter.Collector().GetErrors()
	require.Len(t, errs, 1)
	assert.Equal(t, "script", errs[0].Pipeline)
}

func TestExecuteKeepsOnlyLatestRunErrors(t *testing.T) {
	dir := t.TempDir()
	env := testEnv(t, dir)
	src := filepath.Join(dir, "src", "ejs")
	a := filepath.Join(src, "a.ejs")
	b := filepath.Join(src, "b.ejs")

	writeFile(t, a, `{{ if }}`)
	writeFile(t, b, `<p>b</p>`)
	res := Execute(context.Background(), env, Template{})
	assert.Equal(t, 1, res.Failed)
	errs := env.Reporter.Collector().GetErrors()
	require.Len(t, errs, 1)
	assert.Equal(t, a, errs[0].File)

	writeFile(t, a, `<p>a</p>`)
	writeFile(t, b, `{{ end }}`)
	res = Execute(context.Background(), env, Template{})
	assert.Equal(t, 1, res.Failed)
	errs = env.Reporter.Collector().GetErrors()
	require.Len(t, errs, 1)
	assert.Equal(t, b, errs[0].File)
	assert.Empty(t, env.Reporter.Collector().GetErrorsByFile(a))
}

func TestExecuteNotifies(t *testing.T) {
	testCases := []struct {
		name     string
		silent   bool
		expected []string
	}{
		{"loud", false, []string{"out/a.css"}},
		{"silent", true, nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env := testEnv(t, t.TempDir())
			notifier := &recordingNotifier{}
			env.Notifier = notifier

			p := stubPipeline{name: tc.name, silent: tc.silent, run: func(context.Context, *Env) (Result, error) {
				return Result{Written: []string{"out/a.css"}}, nil
			}}
			Execute(context.Background(), env, p)
			assert.Equal(t, tc.expected, notifier.paths)
		})
	}
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "nested", "deeper", "out.txt")

	require.NoError(t, writeFileAtomic(dest, []byte("first")))
	require.NoError(t, writeFileAtomic(dest, []byte("second")))

	content, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "second", string(content))

	entries, err := os.ReadDir(filepath.Dir(dest))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestOutputPath(t *testing.T) {
	dest, rel, err := outputPath("src/ejs/**/*.ejs", filepath.Join("src", "ejs", "blog", "post.ejs"), "dist")
	require.NoError(t, err)
	assert.Equal(t, "blog/post.ejs", rel)
	assert.Equal(t, filepath.Join("dist", "blog", "post.ejs"), dest)

	assert.Equal(t, "blog/post.html", replaceExt(rel, ".html"))
	assert.Equal(t, "noext.css", replaceExt("noext", ".css"))
}

func TestChanged(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.png")
	dest := filepath.Join(dir, "out", "a.png")
	writeFile(t, src, "src")

	changed, err := Changed(src, dest)
	require.NoError(t, err)
	assert.True(t, changed, "missing output")

	writeFile(t, dest, "dest")
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(src, past, past))
	changed, err = Changed(src, dest)
	require.NoError(t, err)
	assert.False(t, changed, "output newer than source")

	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(src, future, future))
	changed, err = Changed(src, dest)
	require.NoError(t, err)
	assert.True(t, changed, "source newer than output")

	_, err = Changed(filepath.Join(dir, "missing.png"), dest)
	assert.Error(t, err)
}
