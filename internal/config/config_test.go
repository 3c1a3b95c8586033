package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFrom(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "dist/", cfg.Paths.RootDir)
	assert.Equal(t, "src/ejs/**/*.ejs", cfg.Paths.SrcTemplates)
	assert.Equal(t, "dist/assets/css", cfg.Paths.OutCSS)
	assert.Equal(t, "src/assets/data/meta.json", cfg.Data.MetaJSON)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 300*time.Millisecond, cfg.Watch.Debounce)

	// image codec defaults
	assert.True(t, cfg.Images.Pngquant)
	assert.False(t, cfg.Images.Optipng)
	assert.True(t, cfg.Images.Zopflipng)
	assert.False(t, cfg.Images.JpegRecompress)
	assert.True(t, cfg.Images.Mozjpeg)
	assert.True(t, cfg.Images.Gifsicle)
	assert.True(t, cfg.Images.Svgo)
	assert.Equal(t, 10, cfg.Images.Concurrent)
	assert.True(t, cfg.Images.Quiet)
}

func TestLoadFromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, ".assetline.yml")
	content := `
server:
  port: 3000
watch:
  debounce: 50ms
paths:
  out_css: public/css
images:
  pngquant: false
  concurrent: 2
lint:
  disable: [E005]
`
	require.NoError(t, os.WriteFile(file, []byte(content), 0o644))

	v := viper.New()
	v.SetConfigFile(file)
	require.NoError(t, v.ReadInConfig())

	cfg, err := LoadFrom(v)
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 50*time.Millisecond, cfg.Watch.Debounce)
	assert.Equal(t, "public/css", cfg.Paths.OutCSS)
	assert.Equal(t, "dist/assets/js", cfg.Paths.OutJS)
	assert.False(t, cfg.Images.Pngquant)
	assert.True(t, cfg.Images.Mozjpeg)
	assert.Equal(t, 2, cfg.Images.Concurrent)
	assert.Equal(t, []string{"E005"}, cfg.Lint.Disable)
}

func TestLoadEnvironmentOverride(t *testing.T) {
	t.Setenv("ASSETLINE_SERVER_PORT", "9090")

	v := viper.New()
	v.SetEnvPrefix("ASSETLINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv only applies to keys viper already knows about.
	v.SetDefault("server.port", 8080)

	cfg, err := LoadFrom(v)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestValidateConfig(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"port too high", func(c *Config) { c.Server.Port = 70000 }, "port 70000"},
		{"dangerous host", func(c *Config) { c.Server.Host = "localhost;rm" }, "dangerous character"},
		{"empty path", func(c *Config) { c.Paths.OutJS = "" }, "out_js: empty path"},
		{"dangerous path", func(c *Config) { c.Paths.SrcStyles = "src/$(x)/*.scss" }, "src_sass"},
		{"negative debounce", func(c *Config) { c.Watch.Debounce = -time.Second }, "negative"},
		{"zero concurrency", func(c *Config) { c.Images.Concurrent = 0 }, "concurrent"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "unsupported format"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := validateConfig(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.errMsg)
		})
	}

	assert.NoError(t, validateConfig(Default()))
}

func TestOutputGlobs(t *testing.T) {
	p := Default().Paths
	assert.Equal(t, "dist/**/*.html", p.HTMLOutputGlob())
	assert.Equal(t, "dist/assets/css/**/*.css", p.CSSOutputGlob())
	assert.Equal(t, "dist/assets/js/**/*.js", p.JSOutputGlob())
}

func TestRegisterDefaultsEnablesEnvOverrides(t *testing.T) {
	t.Setenv("ASSETLINE_IMAGES_QUIET", "false")
	t.Setenv("ASSETLINE_WATCH_DEBOUNCE", "1s")

	v := viper.New()
	v.SetEnvPrefix("ASSETLINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	require.NoError(t, RegisterDefaults(v))

	cfg, err := LoadFrom(v)
	require.NoError(t, err)
	assert.False(t, cfg.Images.Quiet)
	assert.Equal(t, time.Second, cfg.Watch.Debounce)
	assert.Equal(t, "dist/", cfg.Paths.RootDir)
}

func TestMarshalDefaults(t *testing.T) {
	out, err := MarshalDefaults()
	require.NoError(t, err)
	text := string(out)
	assert.Contains(t, text, "src_ejs: src/ejs/**/*.ejs")
	assert.Contains(t, text, "debounce: 300ms")
	assert.Contains(t, text, "concurrent: 10")
}
