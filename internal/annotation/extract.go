// Package annotation parses `@@` annotations out of SQL comments, merges
// annotation layers and decodes them into typed overrides.
//
// Two syntaxes are accepted and may be mixed freely:
//
//	-- @@{field=birth_date, propertyType=LocalDate, adapter}
//	-- @@name=SelectAll @@sharedResult=Person
//
// A block or line carrying `field=<column>` (or `dynamicField=<name>`)
// annotates that field; everything else annotates the statement.
//
// List keys (excludeOverrideFields and the cascade operations) may be
// written without brackets. Inside a block, every bare token after such a
// key joins the list until the next `key=value` entry, so
// `@@{excludeOverrideFields=a, adapter}` excludes both a and adapter.
// Put flags before the list or bracket it to avoid this.
package annotation

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/querygen/pkg/core"
)

// Routing keys.
const (
	KeyField        = "field"
	KeyDynamicField = "dynamicField"
)

// listKeys accept bare comma-separated tokens in addition to `[a, b]`.
var listKeys = map[string]bool{
	KeyExcludeOverrideFields: true,
	string(core.CascadeInsert): true,
	string(core.CascadeUpdate): true,
	string(core.CascadeDelete): true,
}

// Annotations is the raw extraction result for one statement.
type Annotations struct {
	Statement core.AnnotationMap
	Fields    map[string]core.AnnotationMap
	// FieldOrder lists field names in first-declaration order.
	FieldOrder []string
}

// Field returns the annotations declared for a field, or nil.
func (a *Annotations) Field(name string) core.AnnotationMap {
	if a == nil {
		return nil
	}
	return a.Fields[name]
}

// Empty reports whether nothing was extracted.
func (a *Annotations) Empty() bool {
	return a == nil || (len(a.Statement) == 0 && len(a.Fields) == 0)
}

// Extract parses the comment lines attached to a statement. Lines may still
// carry their comment markers (`--`, `/*`, `*/`).
func Extract(lines []string) (*Annotations, error) {
	out := &Annotations{
		Statement: core.AnnotationMap{},
		Fields:    map[string]core.AnnotationMap{},
	}

	text := stripCommentMarkers(lines)
	s := &scanner{src: text, line: 1}

	var group core.AnnotationMap
	groupLine := 0
	flush := func() error {
		if group == nil {
			return nil
		}
		err := out.route(group, groupLine)
		group = nil
		return err
	}

	for {
		start := s.next()
		if start < 0 {
			break
		}
		switch {
		case s.peek() == '{':
			if err := flush(); err != nil {
				return nil, err
			}
			line := s.line
			body, err := s.block()
			if err != nil {
				return nil, err
			}
			m, err := parseEntries(body, line)
			if err != nil {
				return nil, err
			}
			if err := out.route(m, line); err != nil {
				return nil, err
			}
		default:
			line := s.line
			key, val, ok, err := s.compact()
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			if group != nil && groupLine != line {
				if err := flush(); err != nil {
					return nil, err
				}
			}
			if group == nil {
				group = core.AnnotationMap{}
				groupLine = line
			}
			group[key] = val
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return out, nil
}

// route files one annotation group under the statement or a field.
func (a *Annotations) route(m core.AnnotationMap, line int) error {
	target := ""
	if v, ok := m[KeyField]; ok {
		if v.Kind != core.ValueString || strings.TrimSpace(v.Str) == "" {
			return &ParseError{Line: line, Message: "field requires a column name"}
		}
		target = strings.TrimSpace(v.Str)
		m = m.Clone()
		delete(m, KeyField)
	} else if v, ok := m[KeyDynamicField]; ok {
		if v.Kind != core.ValueString || strings.TrimSpace(v.Str) == "" {
			return &ParseError{Line: line, Message: "dynamicField requires a field name"}
		}
		target = strings.TrimSpace(v.Str)
	}

	if target == "" {
		a.Statement = Merge(a.Statement, m)
		return nil
	}
	if _, seen := a.Fields[target]; !seen {
		a.FieldOrder = append(a.FieldOrder, target)
	}
	a.Fields[target] = Merge(a.Fields[target], m)
	return nil
}

// stripCommentMarkers removes SQL comment delimiters and joins the lines.
func stripCommentMarkers(lines []string) string {
	cleaned := make([]string, len(lines))
	for i, line := range lines {
		l := strings.TrimSpace(line)
		for {
			before := l
			l = strings.TrimPrefix(l, "--")
			l = strings.TrimPrefix(l, "/*")
			l = strings.TrimSuffix(l, "*/")
			if strings.HasPrefix(l, "*") {
				l = l[1:]
			}
			l = strings.TrimSpace(l)
			if l == before {
				break
			}
		}
		cleaned[i] = l
	}
	return strings.Join(cleaned, "\n")
}

// scanner walks the joined comment text from one `@@` marker to the next.
type scanner struct {
	src  string
	pos  int
	line int
}

func (s *scanner) advance(n int) {
	for i := 0; i < n && s.pos < len(s.src); i++ {
		if s.src[s.pos] == '\n' {
			s.line++
		}
		s.pos++
	}
}

// next moves past the next `@@` and returns its offset, or -1.
func (s *scanner) next() int {
	for s.pos < len(s.src) {
		idx := strings.Index(s.src[s.pos:], "@@")
		if idx < 0 {
			s.advance(len(s.src) - s.pos)
			return -1
		}
		s.advance(idx + 2)
		// "@@" followed by whitespace is prose, not an annotation.
		if s.pos < len(s.src) && !isSpace(s.src[s.pos]) {
			return s.pos - 2
		}
	}
	return -1
}

func (s *scanner) peek() byte {
	if s.pos >= len(s.src) {
		return 0
	}
	return s.src[s.pos]
}

// block consumes a `{...}` group and returns its inner text.
func (s *scanner) block() (string, error) {
	line := s.line
	end, err := matchClose(s.src, s.pos)
	if err != nil {
		return "", &ParseError{Line: line, Message: err.Error()}
	}
	body := s.src[s.pos+1 : end]
	s.advance(end + 1 - s.pos)
	return body, nil
}

// compact consumes one `key` or `key=value` token.
func (s *scanner) compact() (string, core.Value, bool, error) {
	line := s.line
	start := s.pos
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		if c == '=' || isSpace(c) || strings.HasPrefix(s.src[s.pos:], "@@") {
			break
		}
		s.advance(1)
	}
	key := s.src[start:s.pos]
	if key == "" {
		return "", core.Value{}, false, nil
	}
	if s.peek() != '=' {
		return key, core.BoolValue(true), true, nil
	}
	s.advance(1)

	// Bracketed values may span lines; everything else stops at the line end.
	rest := s.src[s.pos:]
	trimmed := strings.TrimLeft(rest, " \t")
	if trimmed != "" && (trimmed[0] == '[' || trimmed[0] == '{') {
		s.advance(len(rest) - len(trimmed))
		end, err := matchClose(s.src, s.pos)
		if err != nil {
			return "", core.Value{}, false, &ParseError{Line: line, Message: fmt.Sprintf("%s: %v", key, err)}
		}
		raw := s.src[s.pos : end+1]
		s.advance(end + 1 - s.pos)
		v, err := parseValue(key, raw, line)
		return key, v, true, err
	}

	stop := len(rest)
	for _, term := range []string{"\n", "@@", "*/", "/*"} {
		if i := strings.Index(rest, term); i >= 0 && i < stop {
			stop = i
		}
	}
	raw := rest[:stop]
	s.advance(stop)
	v, err := parseValue(key, raw, line)
	return key, v, true, err
}

// parseEntries parses the comma-separated body of a `{...}` block.
func parseEntries(body string, line int) (core.AnnotationMap, error) {
	segments, err := splitTopLevel(body)
	if err != nil {
		return nil, &ParseError{Line: line, Message: err.Error()}
	}
	out := core.AnnotationMap{}
	lastKey := ""
	for _, seg := range segments {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		eq := indexTopLevel(seg, '=')
		if eq < 0 {
			// A bare token continues a list key, otherwise it is a flag.
			if lastKey != "" && listKeys[lastKey] && out[lastKey].Kind == core.ValueList {
				v := out[lastKey]
				v.List = append(v.List, unquote(seg))
				out[lastKey] = v
				continue
			}
			if strings.ContainsAny(seg, " \t\n") {
				return nil, &ParseError{Line: line, Message: fmt.Sprintf("invalid key %q", seg)}
			}
			out[seg] = core.BoolValue(true)
			lastKey = seg
			continue
		}
		key := strings.TrimSpace(seg[:eq])
		if key == "" {
			return nil, &ParseError{Line: line, Message: fmt.Sprintf("missing key in %q", seg)}
		}
		if strings.ContainsAny(key, " \t\n") {
			return nil, &ParseError{Line: line, Message: fmt.Sprintf("invalid key %q", key)}
		}
		v, err := parseValue(key, seg[eq+1:], line)
		if err != nil {
			return nil, err
		}
		out[key] = v
		lastKey = key
	}
	return out, nil
}

// parseValue interprets a raw value according to its shape and key.
func parseValue(key, raw string, line int) (core.Value, error) {
	raw = strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(raw, "["):
		if !strings.HasSuffix(raw, "]") {
			return core.Value{}, &ParseError{Line: line, Message: fmt.Sprintf("%s: unterminated list %q", key, raw)}
		}
		parts, err := splitTopLevel(raw[1 : len(raw)-1])
		if err != nil {
			return core.Value{}, &ParseError{Line: line, Message: fmt.Sprintf("%s: %v", key, err)}
		}
		items := []string{}
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			if strings.ContainsAny(p, "[]{}") {
				return core.Value{}, &ParseError{Line: line, Message: fmt.Sprintf("%s: nested brackets in list", key)}
			}
			items = append(items, unquote(p))
		}
		return core.ListValue(items...), nil
	case strings.HasPrefix(raw, "{"):
		if !strings.HasSuffix(raw, "}") {
			return core.Value{}, &ParseError{Line: line, Message: fmt.Sprintf("%s: unterminated block %q", key, raw)}
		}
		m, err := parseEntries(raw[1:len(raw)-1], line)
		if err != nil {
			return core.Value{}, err
		}
		return core.MapValue(m), nil
	case strings.HasPrefix(raw, `"`) || strings.HasPrefix(raw, "'"):
		if len(raw) < 2 || raw[len(raw)-1] != raw[0] {
			return core.Value{}, &ParseError{Line: line, Message: fmt.Sprintf("%s: unterminated quote", key)}
		}
		return core.StringValue(raw[1 : len(raw)-1]), nil
	case strings.ContainsAny(raw, "]}"):
		return core.Value{}, &ParseError{Line: line, Message: fmt.Sprintf("%s: unbalanced bracket in %q", key, raw)}
	case strings.EqualFold(raw, "true"):
		return core.BoolValue(true), nil
	case strings.EqualFold(raw, "false"):
		return core.BoolValue(false), nil
	}
	if listKeys[key] {
		return core.ListValue(core.StringValue(raw).AsList()...), nil
	}
	return core.StringValue(raw), nil
}

// matchClose returns the index of the bracket closing the one at open.
func matchClose(src string, open int) (int, error) {
	depth := 0
	var quote byte
	for i := open; i < len(src); i++ {
		c := src[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				if (src[open] == '{') != (c == '}') {
					return 0, fmt.Errorf("mismatched %q closed by %q", src[open], c)
				}
				return i, nil
			}
		}
	}
	if quote != 0 {
		return 0, fmt.Errorf("unterminated quote")
	}
	return 0, fmt.Errorf("unterminated %q", src[open])
}

// splitTopLevel splits on commas that are not nested in brackets or quotes.
func splitTopLevel(s string) ([]string, error) {
	var parts []string
	depth, angle := 0, 0
	var quote byte
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("unexpected %q", c)
			}
		case '<':
			// generic type arguments, e.g. propertyType=Map<String, Long>
			angle++
		case '>':
			if angle > 0 {
				angle--
			}
		case ',':
			if depth == 0 && angle == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated quote")
	}
	if depth != 0 {
		return nil, fmt.Errorf("unbalanced brackets")
	}
	return append(parts, s[start:]), nil
}

// indexTopLevel finds the first c outside brackets and quotes.
func indexTopLevel(s string, c byte) int {
	depth := 0
	var quote byte
	for i := 0; i < len(s); i++ {
		switch ch := s[i]; {
		case quote != 0:
			if ch == quote {
				quote = 0
			}
		case ch == '"' || ch == '\'':
			quote = ch
		case ch == '{' || ch == '[':
			depth++
		case ch == '}' || ch == ']':
			depth--
		case ch == c && depth == 0:
			return i
		}
	}
	return -1
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
