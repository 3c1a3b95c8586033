// Package testutils holds fixtures shared by package tests: a throwaway
// project tree and a configuration pointing into it.
package testutils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/conneroisu/assetline/internal/config"
	"github.com/stretchr/testify/require"
)

// sourceDirs is the layout CreateTestConfig points at.
var sourceDirs = []string{
	"src/ejs",
	"src/scss",
	"src/js",
	"src/img",
}

// CreateTempProject creates an empty source tree and returns its root.
func CreateTempProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for _, d := range sourceDirs {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, filepath.FromSlash(d)), 0o755))
	}
	return dir
}

// CreateTestConfig returns the default configuration with every path moved
// below projectDir. Prefixing is disabled so tests need no external tools.
func CreateTestConfig(projectDir string) *config.Config {
	cfg := config.Default()
	cfg.Paths = config.PathsConfig{
		RootDir:      filepath.Join(projectDir, "dist"),
		SrcTemplates: filepath.Join(projectDir, "src", "ejs", "**", "*.ejs"),
		SrcStyles:    filepath.Join(projectDir, "src", "scss", "**", "*.scss"),
		SrcScripts:   filepath.Join(projectDir, "src", "js", "**", "*.js"),
		SrcImages:    filepath.Join(projectDir, "src", "img", "**", "*"),
		OutHTML:      filepath.Join(projectDir, "dist"),
		OutCSS:       filepath.Join(projectDir, "dist", "css"),
		OutJS:        filepath.Join(projectDir, "dist", "js"),
		OutImages:    filepath.Join(projectDir, "dist", "img"),
	}
	cfg.Data.MetaJSON = filepath.Join(projectDir, "meta.json")
	cfg.Data.BundleConfig = filepath.Join(projectDir, "bundle.json")
	cfg.Style.Prefixer = nil
	return cfg
}

// WriteFile writes content to path, creating parent directories.
func WriteFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// AssertFilePermissions checks the permission bits of path.
func AssertFilePermissions(t *testing.T, path string, expectedMode os.FileMode) {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)

	actualMode := info.Mode().Perm()
	require.Equal(t, expectedMode, actualMode,
		"File %s has incorrect permissions: got %o, want %o", path, actualMode, expectedMode)
}
