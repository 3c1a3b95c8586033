// Package glob implements the source selection used by pipelines and watch
// bindings: doublestar patterns with "!"-prefixed exclusions.
package glob

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Set is an ordered list of include patterns minus exclude patterns.
type Set struct {
	Include []string
	Exclude []string
}

// New builds a Set. Patterns starting with "!" are exclusions.
func New(patterns ...string) Set {
	var s Set
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if strings.HasPrefix(p, "!") {
			s.Exclude = append(s.Exclude, normalize(p[1:]))
			continue
		}
		s.Include = append(s.Include, normalize(p))
	}
	return s
}

func normalize(p string) string {
	p = filepath.ToSlash(p)
	trailing := strings.HasSuffix(p, "/")
	p = path.Clean(p)
	if trailing && p != "/" {
		p += "/"
	}
	return p
}

// Match reports whether name matches an include pattern and no exclusion.
func (s Set) Match(name string) bool {
	name = normalize(name)
	matched := false
	for _, inc := range s.Include {
		if ok, _ := doublestar.Match(strings.TrimSuffix(inc, "/"), name); ok {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}
	for _, exc := range s.Exclude {
		if ok, _ := doublestar.Match(exc, name); ok {
			return false
		}
	}
	return true
}

// Expand returns the regular files currently matching the set, sorted and
// deduplicated, in OS path form.
func (s Set) Expand() ([]string, error) {
	seen := make(map[string]struct{})
	var files []string

	for _, inc := range s.Include {
		matches, err := doublestar.FilepathGlob(filepath.FromSlash(inc))
		if err != nil {
			return nil, fmt.Errorf("expanding %q: %w", inc, err)
		}
		for _, m := range matches {
			if _, dup := seen[m]; dup {
				continue
			}
			info, err := os.Stat(m)
			if err != nil || info.IsDir() {
				continue
			}
			if !s.Match(m) {
				continue
			}
			seen[m] = struct{}{}
			files = append(files, m)
		}
	}

	sort.Strings(files)
	return files, nil
}

// Bases returns the static directory prefix of every include pattern.
func (s Set) Bases() []string {
	bases := make([]string, 0, len(s.Include))
	seen := make(map[string]struct{})
	for _, inc := range s.Include {
		b := Base(inc)
		if _, dup := seen[b]; dup {
			continue
		}
		seen[b] = struct{}{}
		bases = append(bases, b)
	}
	return bases
}

// Base returns the directory part of pattern that contains no glob
// meta-characters, in OS path form. "src/ejs/**/*.ejs" yields "src/ejs".
func Base(pattern string) string {
	pattern = normalize(pattern)
	if strings.HasSuffix(pattern, "/") {
		return filepath.FromSlash(strings.TrimSuffix(pattern, "/"))
	}
	if !hasMeta(pattern) {
		// a literal file path
		return filepath.FromSlash(path.Dir(pattern))
	}
	base, _ := doublestar.SplitPattern(pattern)
	if base == "" {
		base = "."
	}
	return filepath.FromSlash(base)
}

// Rel returns file relative to the static base of pattern, in slash form.
func Rel(pattern, file string) (string, error) {
	rel, err := filepath.Rel(Base(pattern), file)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

func hasMeta(p string) bool {
	return strings.ContainsAny(p, "*?[{\\")
}

// IsPartial reports whether the base name of file starts with an underscore.
// Partials are included by other sources but never built on their own.
func IsPartial(file string) bool {
	return strings.HasPrefix(filepath.Base(file), "_")
}
