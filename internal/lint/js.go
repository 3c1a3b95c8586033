package lint

import (
	"github.com/evanw/esbuild/pkg/api"
)

// JS lints bundled scripts through esbuild's parser. Syntax errors are
// error-level, esbuild warnings are warning-level.
type JS struct{}

func (JS) Name() string { return "js" }

func (JS) Lint(file string, content []byte) ([]Issue, error) {
	result := api.Transform(string(content), api.TransformOptions{
		Loader:     api.LoaderJS,
		Sourcefile: file,
		LogLevel:   api.LogLevelSilent,
	})

	issues := make([]Issue, 0, len(result.Errors)+len(result.Warnings))
	for _, msg := range result.Errors {
		issues = append(issues, esbuildIssue(file, msg, SeverityError))
	}
	for _, msg := range result.Warnings {
		issues = append(issues, esbuildIssue(file, msg, SeverityWarning))
	}
	return issues, nil
}

func esbuildIssue(file string, msg api.Message, sev Severity) Issue {
	code := msg.ID
	if code == "" {
		code = "syntax"
	}
	issue := Issue{
		File:     file,
		Code:     code,
		Message:  msg.Text,
		Severity: sev,
	}
	if msg.Location != nil {
		issue.Line = msg.Location.Line
		issue.Column = msg.Location.Column + 1
	}
	return issue
}
