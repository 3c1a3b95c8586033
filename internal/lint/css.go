package lint

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
)

var (
	ruleCSSParse    = rule{"W000", "parse"}
	ruleEmptyRule   = rule{"W001", "empty-rules"}
	ruleImportant   = rule{"W002", "important"}
	ruleDupProperty = rule{"W003", "duplicate-properties"}
	ruleZeroUnits   = rule{"W004", "zero-units"}
)

const maxCSSParseErrors = 50

var lengthUnits = map[string]bool{
	"px": true, "em": true, "rem": true, "ex": true, "ch": true,
	"vw": true, "vh": true, "vmin": true, "vmax": true,
	"cm": true, "mm": true, "q": true, "in": true, "pt": true, "pc": true,
}

// CSS lints compiled stylesheets. Findings are warnings only. Output is
// minified, so issues carry the selector instead of a position.
type CSS struct {
	Disable []string
}

func (CSS) Name() string { return "css" }

func (CSS) FailureSeverity() Severity { return SeverityWarning }

type cssRule struct {
	selector string
	props    map[string]bool
	empty    bool
}

func (c CSS) Lint(file string, content []byte) ([]Issue, error) {
	var issues []Issue
	warn := func(r rule, line, col int, msg string) {
		if disabled(c.Disable, r.code, r.name) {
			return
		}
		issues = append(issues, Issue{
			File:     file,
			Line:     line,
			Column:   col,
			Code:     r.code,
			Message:  msg,
			Severity: SeverityWarning,
		})
	}

	p := css.NewParser(parse.NewInput(bytes.NewReader(content)), false)
	var stack []*cssRule
	parseErrors := 0

	for {
		gt, _, data := p.Next()
		switch gt {
		case css.ErrorGrammar:
			err := p.Err()
			if err == io.EOF {
				return issues, nil
			}
			perr, ok := err.(*parse.Error)
			if !ok {
				return issues, err
			}
			warn(ruleCSSParse, perr.Line, perr.Column, perr.Message)
			parseErrors++
			if parseErrors >= maxCSSParseErrors {
				return issues, nil
			}

		case css.BeginRulesetGrammar:
			stack = append(stack, &cssRule{
				selector: tokensString(p.Values()),
				props:    make(map[string]bool),
				empty:    true,
			})

		case css.EndRulesetGrammar:
			if len(stack) == 0 {
				continue
			}
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if cur.empty {
				warn(ruleEmptyRule, 0, 0, fmt.Sprintf("Rule is empty: %s", cur.selector))
			}

		case css.DeclarationGrammar, css.CustomPropertyGrammar:
			if len(stack) == 0 {
				continue
			}
			cur := stack[len(stack)-1]
			cur.empty = false
			if gt == css.CustomPropertyGrammar {
				continue
			}

			prop := strings.ToLower(string(data))
			if cur.props[prop] {
				warn(ruleDupProperty, 0, 0, fmt.Sprintf("Duplicate property %q in %s", prop, cur.selector))
			}
			cur.props[prop] = true

			values := p.Values()
			if hasImportant(values) {
				warn(ruleImportant, 0, 0, fmt.Sprintf("Use of !important on %q in %s", prop, cur.selector))
			}
			for _, v := range values {
				if v.TokenType == css.DimensionToken && zeroWithLengthUnit(string(v.Data)) {
					warn(ruleZeroUnits, 0, 0, fmt.Sprintf("Values of 0 shouldn't have units specified: %s in %s", v.Data, cur.selector))
				}
			}
		}
	}
}

func tokensString(tokens []css.Token) string {
	var b strings.Builder
	for _, t := range tokens {
		b.Write(t.Data)
	}
	return strings.TrimSpace(b.String())
}

func hasImportant(values []css.Token) bool {
	for i, v := range values {
		if v.TokenType != css.DelimToken || len(v.Data) == 0 || v.Data[0] != '!' {
			continue
		}
		for _, next := range values[i+1:] {
			if next.TokenType == css.WhitespaceToken {
				continue
			}
			return next.TokenType == css.IdentToken && strings.EqualFold(string(next.Data), "important")
		}
	}
	return false
}

// zeroWithLengthUnit reports whether a dimension such as "0px" or "-0.0em"
// is a zero length written with a unit.
func zeroWithLengthUnit(dim string) bool {
	i := 0
	if i < len(dim) && (dim[i] == '+' || dim[i] == '-') {
		i++
	}
	digits := 0
	for ; i < len(dim); i++ {
		c := dim[i]
		if c == '.' {
			continue
		}
		if c < '0' || c > '9' {
			break
		}
		if c != '0' {
			return false
		}
		digits++
	}
	if digits == 0 {
		return false
	}
	return lengthUnits[strings.ToLower(dim[i:])]
}
