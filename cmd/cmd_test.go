package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/conneroisu/assetline/internal/build"
	"github.com/conneroisu/assetline/internal/config"
	"github.com/conneroisu/assetline/internal/errors"
	"github.com/conneroisu/assetline/internal/logging"
	"github.com/conneroisu/assetline/internal/meta"
	"github.com/conneroisu/assetline/internal/testutils"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func newTestCommand() (*cobra.Command, *bytes.Buffer) {
	var out bytes.Buffer
	c := &cobra.Command{}
	c.SetOut(&out)
	return c, &out
}

func TestInitCommand(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "site")
	initForce = false

	c, out := newTestCommand()
	require.NoError(t, runInit(c, []string{dir}))
	assert.Contains(t, out.String(), "Initializing assetline project")

	content, err := os.ReadFile(filepath.Join(dir, configFileName))
	require.NoError(t, err)
	var cfg config.Config
	require.NoError(t, yaml.Unmarshal(content, &cfg))
	assert.Equal(t, config.Default().Paths, cfg.Paths)
	assert.Equal(t, 10, cfg.Images.Concurrent)

	for _, d := range []string{"src/ejs", "src/assets/scss", "src/assets/js", "src/assets/img"} {
		assert.DirExists(t, filepath.Join(dir, filepath.FromSlash(d)))
	}
	_, err = meta.Load(filepath.Join(dir, "src", "assets", "data", "meta.json"))
	assert.NoError(t, err, "starter metadata must load")
}

func TestStarterMetaReachesTemplates(t *testing.T) {
	assert.Contains(t, starterMeta, ".meta_json")

	data, err := meta.Parse([]byte(starterMeta))
	require.NoError(t, err)

	dir := t.TempDir()
	cfg := testutils.CreateTestConfig(dir)
	testutils.WriteFile(t, filepath.Join(dir, "src", "ejs", "index.ejs"),
		`{{ .meta_json.site.title }}|{{ meta "site.title" }}`)

	logger := logging.NewNopLogger()
	env := build.NewEnv(cfg, data, logger, errors.NewReporter(logger, nil), nil)
	res, err := build.Template{}.Run(context.Background(), env)
	require.NoError(t, err)
	require.Equal(t, 0, res.Failed)

	out, err := os.ReadFile(filepath.Join(dir, "dist", "index.html"))
	require.NoError(t, err)
	assert.Equal(t, "My Site|My Site", string(out))
}

func TestInitCommandKeepsExistingFiles(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, configFileName)
	require.NoError(t, os.WriteFile(cfgPath, []byte("server:\n  port: 3000\n"), 0o644))
	metaPath := filepath.Join(dir, "src", "assets", "data", "meta.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(metaPath), 0o755))
	require.NoError(t, os.WriteFile(metaPath, []byte(`{"mine":true}`), 0o644))

	initForce = false
	c, _ := newTestCommand()
	err := runInit(c, []string{dir})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--force")

	initForce = true
	defer func() { initForce = false }()
	require.NoError(t, runInit(c, []string{dir}))

	content, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	assert.Contains(t, string(content), "port: 8080")

	content, err = os.ReadFile(metaPath)
	require.NoError(t, err)
	assert.Equal(t, `{"mine":true}`, string(content))
}

func TestVersionCommand(t *testing.T) {
	defer func() {
		versionFormat = "text"
		versionShort = false
	}()

	testCases := []struct {
		name   string
		format string
		short  bool
		check  func(t *testing.T, out string)
	}{
		{
			name:   "detailed",
			format: "text",
			check: func(t *testing.T, out string) {
				assert.Contains(t, out, "Version: ")
				assert.Contains(t, out, "Platform: ")
			},
		},
		{
			name:   "short",
			format: "text",
			short:  true,
			check: func(t *testing.T, out string) {
				assert.Equal(t, 1, strings.Count(out, "\n"))
			},
		},
		{
			name:   "json",
			format: "json",
			check: func(t *testing.T, out string) {
				var info map[string]interface{}
				require.NoError(t, json.Unmarshal([]byte(out), &info))
				assert.Contains(t, info, "version")
				assert.Contains(t, info, "go_version")
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			versionFormat = tc.format
			versionShort = tc.short
			c, out := newTestCommand()
			require.NoError(t, runVersionCommand(c, nil))
			tc.check(t, out.String())
		})
	}

	versionFormat = "xml"
	c, _ := newTestCommand()
	assert.Error(t, runVersionCommand(c, nil))
}

func TestNewLogger(t *testing.T) {
	_, err := newLogger(config.LogConfig{Level: "debug", Format: "json"})
	assert.NoError(t, err)

	_, err = newLogger(config.LogConfig{Level: "loud"})
	assert.Error(t, err)
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"dev", "build", "lint", "init", "version"} {
		assert.True(t, names[want], want)
	}
}
