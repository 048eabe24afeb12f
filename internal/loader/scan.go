package loader

import "strings"

// Chunk is one SQL statement together with the comment lines written
// directly above it.
type Chunk struct {
	SQL string
	// Comments are the raw comment lines (markers included) between the
	// previous statement and this one.
	Comments []string
	// Line is the 1-based line the statement text starts on.
	Line int
}

// scanner states
const (
	sText = iota
	sSQ   // '...'
	sDQ   // "..."
	sBT   // `...`
	sBR   // [...]
	sLC   // -- ...
	sBC   // /* ... */
)

// visitor receives the structural events of a walk over SQL text.
type visitor struct {
	comment   func(text string, start int)
	code      func(i int)
	semicolon func(i int)
}

// walk runs the SQL state machine over q. Comment markers inside string
// literals and quoted identifiers are not comments.
func walk(q string, v visitor) {
	state := sText
	start := 0
	for i := 0; i < len(q); {
		c := q[i]
		switch state {
		case sText:
			switch {
			case c == '-' && i+1 < len(q) && q[i+1] == '-':
				state, start = sLC, i
				i += 2
				continue
			case c == '/' && i+1 < len(q) && q[i+1] == '*':
				state, start = sBC, i
				i += 2
				continue
			case c == ';':
				if v.semicolon != nil {
					v.semicolon(i)
				}
				i++
				continue
			case c == '\'':
				state = sSQ
			case c == '"':
				state = sDQ
			case c == '`':
				state = sBT
			case c == '[':
				state = sBR
			}
			if !isSpace(c) && v.code != nil {
				v.code(i)
			}
			i++
		case sSQ, sDQ, sBT:
			closer := quoteFor(state)
			if c == closer {
				// doubled quote is an escaped quote
				if i+1 < len(q) && q[i+1] == closer {
					i += 2
					continue
				}
				state = sText
			}
			i++
		case sBR:
			if c == ']' {
				state = sText
			}
			i++
		case sLC:
			if c == '\n' {
				if v.comment != nil {
					v.comment(q[start:i], start)
				}
				state = sText
			}
			i++
		case sBC:
			if c == '*' && i+1 < len(q) && q[i+1] == '/' {
				if v.comment != nil {
					v.comment(q[start:i+2], start)
				}
				state = sText
				i += 2
				continue
			}
			i++
		}
	}
	switch state {
	case sLC, sBC:
		if v.comment != nil {
			v.comment(q[start:], start)
		}
	}
}

// ScanComments returns every comment in q as raw lines, markers included,
// in source order. Multi-line block comments yield one entry per line.
func ScanComments(q string) []string {
	var out []string
	walk(q, visitor{comment: func(text string, _ int) {
		out = append(out, splitLines(text)...)
	}})
	return out
}

// SplitStatements splits q on top-level semicolons. Comments between two
// statements are attached to the statement that follows them; comments
// inside a statement stay part of its SQL.
func SplitStatements(q string) []Chunk {
	var chunks []Chunk
	var pending []string
	begin := -1

	emit := func(end int) {
		if begin < 0 {
			return
		}
		chunks = append(chunks, Chunk{
			SQL:      strings.TrimSpace(q[begin:end]),
			Comments: pending,
			Line:     1 + strings.Count(q[:begin], "\n"),
		})
		pending = nil
		begin = -1
	}

	walk(q, visitor{
		comment: func(text string, _ int) {
			if begin < 0 {
				pending = append(pending, splitLines(text)...)
			}
		},
		code: func(i int) {
			if begin < 0 {
				begin = i
			}
		},
		semicolon: func(i int) {
			if begin < 0 {
				// empty statement
				pending = nil
				return
			}
			emit(i + 1)
		},
	})
	emit(len(q))
	return chunks
}

func quoteFor(state int) byte {
	switch state {
	case sDQ:
		return '"'
	case sBT:
		return '`'
	}
	return '\''
}

func splitLines(text string) []string {
	lines := strings.Split(strings.TrimRight(text, "\r\n"), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, "\r")
	}
	return lines
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v'
}

// StripComments returns q with every comment removed. Line comments keep
// their terminating newline.
func StripComments(q string) string {
	var b strings.Builder
	last := 0
	walk(q, visitor{comment: func(text string, start int) {
		b.WriteString(q[last:start])
		last = start + len(text)
	}})
	b.WriteString(q[last:])
	return b.String()
}

// ScanParameters returns the named parameters (`:name`, `@name`, `$name`) of
// q in binding order, duplicates included. Markers inside comments, string
// literals and quoted identifiers are ignored, as are `::` casts.
func ScanParameters(q string) []string {
	var out []string
	skipTo := 0
	walk(q, visitor{code: func(i int) {
		if i < skipTo {
			return
		}
		c := q[i]
		if c != ':' && c != '@' && c != '$' {
			return
		}
		if c == ':' && ((i > 0 && q[i-1] == ':') || (i+1 < len(q) && q[i+1] == ':')) {
			return
		}
		j := i + 1
		for j < len(q) && isIdent(q[j], j == i+1) {
			j++
		}
		if j > i+1 {
			out = append(out, q[i+1:j])
			skipTo = j
		}
	}})
	return out
}

func isIdent(c byte, first bool) bool {
	switch {
	case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		return true
	case c >= '0' && c <= '9':
		return !first
	}
	return false
}
