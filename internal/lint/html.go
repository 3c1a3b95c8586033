package lint

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// rule identifies a check by code and by name; either can disable it.
type rule struct {
	code string
	name string
}

var (
	ruleDoctypeFirst = rule{"E001", "doctype-first"}
	ruleHTMLLang     = rule{"E002", "html-req-lang"}
	ruleAttrNoDup    = rule{"E003", "attr-no-dup"}
	ruleIDNoDup      = rule{"E004", "id-no-dup"}
	ruleImgAlt       = rule{"E005", "img-req-alt"}
	ruleTagLowercase = rule{"E006", "tag-name-lowercase"}
	ruleTagPair      = rule{"E007", "tag-close"}
	ruleHeadTitle    = rule{"E008", "head-req-title"}
)

var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"param": true, "source": true, "track": true, "wbr": true,
}

// HTML lints rendered pages. Every finding is error-level.
type HTML struct {
	// Disable lists rule codes or names to skip.
	Disable []string
}

func (HTML) Name() string { return "html" }

type openTag struct {
	name string
	line int
	col  int
}

type htmlState struct {
	file    string
	disable []string
	issues  []Issue

	line, col int

	started      bool
	ids          map[string]bool
	stack        []openTag
	head         *openTag
	headDone     bool
	headHasTitle bool
}

func (h HTML) Lint(file string, content []byte) ([]Issue, error) {
	s := &htmlState{
		file:    file,
		disable: h.Disable,
		ids:     make(map[string]bool),
		line:    1,
		col:     1,
	}

	z := html.NewTokenizer(bytes.NewReader(content))
	for {
		tt := z.Next()
		line, col := s.line, s.col
		s.advance(z.Raw())

		switch tt {
		case html.ErrorToken:
			if z.Err() == io.EOF {
				s.finish()
				return s.issues, nil
			}
			return s.issues, z.Err()

		case html.DoctypeToken:
			s.started = true

		case html.TextToken:
			if !s.started && len(bytes.TrimSpace(z.Raw())) > 0 {
				s.report(ruleDoctypeFirst, line, col, "Doctype must be declared first.")
				s.started = true
			}

		case html.StartTagToken, html.SelfClosingTagToken:
			raw := rawTagName(z.Raw())
			name, hasAttr := z.TagName()
			s.startTag(string(name), raw, tt == html.SelfClosingTagToken, line, col, z, hasAttr)

		case html.EndTagToken:
			name, _ := z.TagName()
			s.endTag(string(name), rawTagName(z.Raw()), line, col)
		}
	}
}

func (s *htmlState) advance(raw []byte) {
	for len(raw) > 0 {
		i := bytes.IndexByte(raw, '\n')
		if i < 0 {
			s.col += utf8.RuneCount(raw)
			return
		}
		s.line++
		s.col = 1
		raw = raw[i+1:]
	}
}

func (s *htmlState) report(r rule, line, col int, msg string) {
	if disabled(s.disable, r.code, r.name) {
		return
	}
	s.issues = append(s.issues, Issue{
		File:     s.file,
		Line:     line,
		Column:   col,
		Code:     r.code,
		Message:  msg,
		Severity: SeverityError,
	})
}

func (s *htmlState) startTag(name, raw string, selfClosing bool, line, col int, z *html.Tokenizer, hasAttr bool) {
	if !s.started {
		s.report(ruleDoctypeFirst, line, col, "Doctype must be declared first.")
		s.started = true
	}
	if raw != strings.ToLower(raw) {
		s.report(ruleTagLowercase, line, col, fmt.Sprintf("The html element name of [ %s ] must be in lowercase.", raw))
	}

	attrs := make(map[string]string)
	for hasAttr {
		var key, val []byte
		key, val, hasAttr = z.TagAttr()
		k := string(key)
		if _, dup := attrs[k]; dup {
			s.report(ruleAttrNoDup, line, col, fmt.Sprintf("Duplicate of attribute name [ %s ] was found.", k))
			continue
		}
		attrs[k] = string(val)
	}

	if id, ok := attrs["id"]; ok && id != "" {
		if s.ids[id] {
			s.report(ruleIDNoDup, line, col, fmt.Sprintf("The id value [ %s ] must be unique.", id))
		}
		s.ids[id] = true
	}

	switch name {
	case "html":
		if strings.TrimSpace(attrs["lang"]) == "" {
			s.report(ruleHTMLLang, line, col, "An lang attribute must be present on <html> elements.")
		}
	case "img":
		if _, ok := attrs["alt"]; !ok {
			s.report(ruleImgAlt, line, col, "An alt attribute must be present on <img> elements.")
		}
	case "head":
		if s.head == nil {
			s.head = &openTag{name: name, line: line, col: col}
		}
	case "title":
		if s.head != nil && !s.headDone {
			s.headHasTitle = true
		}
	}

	if selfClosing || voidElements[name] {
		return
	}
	s.stack = append(s.stack, openTag{name: name, line: line, col: col})
}

func (s *htmlState) endTag(name, raw string, line, col int) {
	if raw != strings.ToLower(raw) {
		s.report(ruleTagLowercase, line, col, fmt.Sprintf("The html element name of [ %s ] must be in lowercase.", raw))
	}
	if name == "head" && s.head != nil && !s.headDone {
		s.closeHead()
	}
	if voidElements[name] {
		return
	}

	for i := len(s.stack) - 1; i >= 0; i-- {
		if s.stack[i].name != name {
			continue
		}
		for j := len(s.stack) - 1; j > i; j-- {
			s.unclosed(s.stack[j])
		}
		s.stack = s.stack[:i]
		return
	}
	s.report(ruleTagPair, line, col, fmt.Sprintf("Tag must be paired, no start tag: [ </%s> ]", name))
}

func (s *htmlState) unclosed(t openTag) {
	s.report(ruleTagPair, t.line, t.col,
		fmt.Sprintf("Tag must be paired, missing: [ </%s> ], start tag match failed [ <%s> ] on line %d.", t.name, t.name, t.line))
}

func (s *htmlState) closeHead() {
	s.headDone = true
	if !s.headHasTitle {
		s.report(ruleHeadTitle, s.head.line, s.head.col, "<title></title> must be present in <head> tag.")
	}
}

func (s *htmlState) finish() {
	for i := len(s.stack) - 1; i >= 0; i-- {
		s.unclosed(s.stack[i])
	}
	s.stack = nil
	if s.head != nil && !s.headDone {
		s.closeHead()
	}
}

// rawTagName returns the tag name as written, before the tokenizer
// lower-cases it.
func rawTagName(raw []byte) string {
	raw = bytes.TrimPrefix(raw, []byte("<"))
	raw = bytes.TrimPrefix(raw, []byte("/"))
	end := bytes.IndexAny(raw, " \t\n\r\f/>")
	if end < 0 {
		end = len(raw)
	}
	return string(raw[:end])
}
