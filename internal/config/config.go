// Package config provides configuration management for assetline using Viper
// for flexible loading from files, environment variables and command-line
// flags.
//
// The configuration carries the path table (source globs and output
// directories), the auxiliary data files, dev server settings, watch
// debouncing, style tool commands, image codec toggles and logging options.
// Values absent from every source keep the defaults returned by Default.
package config

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Paths  PathsConfig  `yaml:"paths" mapstructure:"paths"`
	Data   DataConfig   `yaml:"data" mapstructure:"data"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Watch  WatchConfig  `yaml:"watch" mapstructure:"watch"`
	Style  StyleConfig  `yaml:"style" mapstructure:"style"`
	Images ImagesConfig `yaml:"images" mapstructure:"images"`
	Lint   LintConfig   `yaml:"lint" mapstructure:"lint"`
	Notify NotifyConfig `yaml:"notify" mapstructure:"notify"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// PathsConfig maps asset classes to source globs and output directories.
// A leading "!" on a glob marks an exclusion.
type PathsConfig struct {
	RootDir      string `yaml:"root_dir" mapstructure:"root_dir"`
	SrcTemplates string `yaml:"src_ejs" mapstructure:"src_ejs"`
	SrcStyles    string `yaml:"src_sass" mapstructure:"src_sass"`
	SrcScripts   string `yaml:"src_js" mapstructure:"src_js"`
	SrcImages    string `yaml:"src_img" mapstructure:"src_img"`
	OutHTML      string `yaml:"out_ejs" mapstructure:"out_ejs"`
	OutCSS       string `yaml:"out_css" mapstructure:"out_css"`
	OutJS        string `yaml:"out_js" mapstructure:"out_js"`
	OutImages    string `yaml:"out_img" mapstructure:"out_img"`
}

// DataConfig lists auxiliary data files.
type DataConfig struct {
	MetaJSON     string `yaml:"meta_json" mapstructure:"meta_json"`
	BundleConfig string `yaml:"bundle_config" mapstructure:"bundle_config"`
}

type ServerConfig struct {
	Port        int    `yaml:"port" mapstructure:"port"`
	Host        string `yaml:"host" mapstructure:"host"`
	Open        bool   `yaml:"open" mapstructure:"open"`
	WatchOutput bool   `yaml:"watch_output" mapstructure:"watch_output"`
}

type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce" mapstructure:"debounce"`
}

type StyleConfig struct {
	// DartSass is the Dart Sass executable speaking the embedded protocol.
	DartSass     string   `yaml:"dart_sass" mapstructure:"dart_sass"`
	IncludePaths []string `yaml:"include_paths" mapstructure:"include_paths"`
	// Prefixer is the argv of a filter reading CSS on stdin and writing
	// prefixed CSS on stdout. Empty disables prefixing.
	Prefixer []string `yaml:"prefixer" mapstructure:"prefixer"`
}

// ImagesConfig toggles the individual codecs of the image pipeline.
type ImagesConfig struct {
	Pngquant       bool `yaml:"pngquant" mapstructure:"pngquant"`
	Optipng        bool `yaml:"optipng" mapstructure:"optipng"`
	Zopflipng      bool `yaml:"zopflipng" mapstructure:"zopflipng"`
	JpegRecompress bool `yaml:"jpeg_recompress" mapstructure:"jpeg_recompress"`
	Mozjpeg        bool `yaml:"mozjpeg" mapstructure:"mozjpeg"`
	Gifsicle       bool `yaml:"gifsicle" mapstructure:"gifsicle"`
	Svgo           bool `yaml:"svgo" mapstructure:"svgo"`
	Concurrent     int  `yaml:"concurrent" mapstructure:"concurrent"`
	Quiet          bool `yaml:"quiet" mapstructure:"quiet"`
}

type LintConfig struct {
	// Disable lists rule codes or names to skip, e.g. "E005" or "css-important".
	Disable []string `yaml:"disable" mapstructure:"disable"`
}

type NotifyConfig struct {
	Desktop bool `yaml:"desktop" mapstructure:"desktop"`
}

type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Paths: PathsConfig{
			RootDir:      "dist/",
			SrcTemplates: "src/ejs/**/*.ejs",
			SrcStyles:    "src/assets/scss/**/*.scss",
			SrcScripts:   "src/assets/js/**/*.js",
			SrcImages:    "src/assets/img/**/*",
			OutHTML:      "dist/",
			OutCSS:       "dist/assets/css",
			OutJS:        "dist/assets/js",
			OutImages:    "dist/assets/img",
		},
		Data: DataConfig{
			MetaJSON:     "src/assets/data/meta.json",
			BundleConfig: "bundle.json",
		},
		Server: ServerConfig{
			Port:        8080,
			Host:        "localhost",
			WatchOutput: true,
		},
		Watch: WatchConfig{
			Debounce: 300 * time.Millisecond,
		},
		Style: StyleConfig{
			DartSass: "sass",
			Prefixer: []string{"postcss", "--use", "autoprefixer", "--no-map"},
		},
		Images: ImagesConfig{
			Pngquant:       true,
			Optipng:        false,
			Zopflipng:      true,
			JpegRecompress: false,
			Mozjpeg:        true,
			Gifsicle:       true,
			Svgo:           true,
			Concurrent:     10,
			Quiet:          true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the configuration from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom unmarshals v over the defaults and validates the result.
func LoadFrom(v *viper.Viper) (*Config, error) {
	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}

	// Flags bound by cobra live under flat keys.
	if v.IsSet("log-level") {
		cfg.Log.Level = v.GetString("log-level")
	}

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// validateConfig validates configuration values for security and correctness
func validateConfig(config *Config) error {
	if err := validateServerConfig(&config.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := validatePathsConfig(&config.Paths); err != nil {
		return fmt.Errorf("paths config: %w", err)
	}

	if config.Watch.Debounce < 0 {
		return fmt.Errorf("watch config: debounce %s is negative", config.Watch.Debounce)
	}

	if config.Images.Concurrent < 1 {
		return fmt.Errorf("images config: concurrent must be at least 1, got %d", config.Images.Concurrent)
	}

	switch config.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log config: unsupported format %q (text, json)", config.Log.Format)
	}

	return nil
}

// validateServerConfig validates server configuration values
func validateServerConfig(config *ServerConfig) error {
	// allow 0 for system-assigned ports in testing
	if config.Port < 0 || config.Port > 65535 {
		return fmt.Errorf("port %d is not in valid range 0-65535", config.Port)
	}

	if config.Host != "" {
		dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\"}
		for _, char := range dangerousChars {
			if strings.Contains(config.Host, char) {
				return fmt.Errorf("host contains dangerous character: %s", char)
			}
		}
	}

	return nil
}

func validatePathsConfig(config *PathsConfig) error {
	entries := []struct {
		key, value string
	}{
		{"root_dir", config.RootDir},
		{"src_ejs", config.SrcTemplates},
		{"src_sass", config.SrcStyles},
		{"src_js", config.SrcScripts},
		{"src_img", config.SrcImages},
		{"out_ejs", config.OutHTML},
		{"out_css", config.OutCSS},
		{"out_js", config.OutJS},
		{"out_img", config.OutImages},
	}

	for _, e := range entries {
		if err := validatePath(e.value); err != nil {
			return fmt.Errorf("%s: %w", e.key, err)
		}
	}

	return nil
}

// validatePath validates a path or glob for shell-unsafe characters.
func validatePath(p string) error {
	if strings.TrimSpace(p) == "" {
		return fmt.Errorf("empty path")
	}

	dangerousChars := []string{";", "&", "|", "$", "`", "<", ">", "\"", "'"}
	for _, char := range dangerousChars {
		if strings.Contains(p, char) {
			return fmt.Errorf("path contains dangerous character: %s", char)
		}
	}

	return nil
}

// HTMLOutputGlob is the glob of rendered pages, used by the HTML linter.
func (p PathsConfig) HTMLOutputGlob() string {
	return path.Join(p.OutHTML, "**", "*.html")
}

// CSSOutputGlob is the glob of compiled stylesheets.
func (p PathsConfig) CSSOutputGlob() string {
	return path.Join(p.OutCSS, "**", "*.css")
}

// JSOutputGlob is the glob of bundled scripts.
func (p PathsConfig) JSOutputGlob() string {
	return path.Join(p.OutJS, "**", "*.js")
}
