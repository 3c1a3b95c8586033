// Package lint checks the built output tree. Linters are read-only: they
// turn every finding into an Issue and leave the exit decision to the
// caller.
package lint

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/conneroisu/assetline/internal/glob"
	"github.com/conneroisu/assetline/internal/logging"
)

// Severity of an Issue.
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
)

func (s Severity) String() string {
	if s == SeverityError {
		return "error"
	}
	return "warning"
}

// Issue is one finding. Line and Column are 1-based; zero means unknown.
type Issue struct {
	File     string
	Line     int
	Column   int
	Code     string
	Message  string
	Severity Severity
}

// String formats the issue as "path [line,column]: (code) message".
func (i Issue) String() string {
	if i.Line > 0 {
		return fmt.Sprintf("%s [%d,%d]: (%s) %s", i.File, i.Line, i.Column, i.Code, i.Message)
	}
	return fmt.Sprintf("%s: (%s) %s", i.File, i.Code, i.Message)
}

// Linter checks the content of a single file.
type Linter interface {
	Name() string
	Lint(file string, content []byte) ([]Issue, error)
}

// failureSeverity is implemented by linters that set the severity of files
// they could not read or parse. Without it such files are errors.
type failureSeverity interface {
	FailureSeverity() Severity
}

func failureLevel(l Linter) Severity {
	if f, ok := l.(failureSeverity); ok {
		return f.FailureSeverity()
	}
	return SeverityError
}

// Report is the outcome of running one linter over a glob.
type Report struct {
	Linter string
	Files  int
	Issues []Issue
}

// Errors counts error-level issues.
func (r *Report) Errors() int {
	n := 0
	for _, i := range r.Issues {
		if i.Severity == SeverityError {
			n++
		}
	}
	return n
}

// Warnings counts warning-level issues.
func (r *Report) Warnings() int {
	return len(r.Issues) - r.Errors()
}

// Failed reports whether any error-level issue was found.
func (r *Report) Failed() bool {
	return r.Errors() > 0
}

// Run lints every file matching files. All files are scanned even after the
// first failure. Unreadable files become issues at the linter's failure
// severity.
func Run(ctx context.Context, l Linter, files glob.Set, logger logging.Logger) (*Report, error) {
	logger = logger.WithComponent("lint")
	op := logging.StartOperation(logger, l.Name())

	paths, err := files.Expand()
	if err != nil {
		op.EndWithError(ctx, err)
		return nil, err
	}

	report := &Report{Linter: l.Name()}
	level := failureLevel(l)
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Files++

		content, err := os.ReadFile(path)
		if err == nil {
			var issues []Issue
			issues, err = l.Lint(path, content)
			report.Issues = append(report.Issues, issues...)
		}
		if err != nil {
			report.Issues = append(report.Issues, Issue{
				File:     path,
				Code:     "read",
				Message:  err.Error(),
				Severity: level,
			})
		}
	}

	sort.SliceStable(report.Issues, func(a, b int) bool {
		ia, ib := report.Issues[a], report.Issues[b]
		if ia.File != ib.File {
			return ia.File < ib.File
		}
		if ia.Line != ib.Line {
			return ia.Line < ib.Line
		}
		return ia.Column < ib.Column
	})

	op.End(ctx, "files", report.Files, "errors", report.Errors(), "warnings", report.Warnings())
	return report, nil
}

// Write prints report in the plain one-issue-per-line format followed by a
// summary line.
func Write(w io.Writer, report *Report) error {
	var b strings.Builder
	for _, issue := range report.Issues {
		b.WriteString(issue.String())
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "%s: %d file(s), %d error(s), %d warning(s)\n",
		report.Linter, report.Files, report.Errors(), report.Warnings())
	_, err := io.WriteString(w, b.String())
	return err
}

// disabled reports whether rule is switched off by code or by name.
func disabled(set []string, code, name string) bool {
	for _, d := range set {
		if strings.EqualFold(d, code) || strings.EqualFold(d, name) {
			return true
		}
	}
	return false
}
