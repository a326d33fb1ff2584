package dialect

import (
	"strings"
)

// MarkerFunc returns the text replacing the named marker. ok is false to leave
// the marker untouched, e.g. a MySQL user variable.
type MarkerFunc func(name string) (replacement string, ok bool, err error)

// Quoting describes the lexical rules a database applies to quoted text.
// Single and double quotes are always quoted.
type Quoting struct {
	// Backslash escapes the next byte inside quotes. Without it a backslash
	// is literal, except in postgres E'' strings.
	Backslash bool
	// Backticks quote identifiers.
	Backticks bool
	// Brackets quote identifiers. Without it "[" is an ordinary byte, as in
	// postgres array subscripts.
	Brackets bool
	// DollarQuotes enables postgres $tag$ ... $tag$ strings.
	DollarQuotes bool
}

// Rewrite scans query for :name and @name markers and substitutes them using
// fn. Quoted strings and identifiers, comments, "::" casts and "@@" system
// variables are left alone; q says what counts as quoted.
func Rewrite(query string, q Quoting, fn MarkerFunc) (string, error) {
	var sb strings.Builder
	sb.Grow(len(query) + 16)

	n := len(query)
	for i := 0; i < n; {
		c := query[i]
		switch {
		case c == '\'' || c == '"' || (c == '`' && q.Backticks):
			escapes := c != '`' && (q.Backslash || (c == '\'' && escapeString(query, i)))
			end := skipQuoted(query, i, c, escapes)
			sb.WriteString(query[i:end])
			i = end
		case c == '$' && q.DollarQuotes && (i == 0 || !isIdentByte(query[i-1])) && dollarTag(query[i:]) != "":
			tag := dollarTag(query[i:])
			end := strings.Index(query[i+len(tag):], tag)
			if end < 0 {
				sb.WriteString(query[i:])
				return sb.String(), nil
			}
			end = i + len(tag) + end + len(tag)
			sb.WriteString(query[i:end])
			i = end
		case c == '[' && q.Brackets:
			end := strings.IndexByte(query[i:], ']')
			if end < 0 {
				sb.WriteString(query[i:])
				return sb.String(), nil
			}
			sb.WriteString(query[i : i+end+1])
			i += end + 1
		case c == '-' && i+1 < n && query[i+1] == '-':
			end := strings.IndexByte(query[i:], '\n')
			if end < 0 {
				sb.WriteString(query[i:])
				return sb.String(), nil
			}
			sb.WriteString(query[i : i+end])
			i += end
		case c == '/' && i+1 < n && query[i+1] == '*':
			end := strings.Index(query[i+2:], "*/")
			if end < 0 {
				sb.WriteString(query[i:])
				return sb.String(), nil
			}
			sb.WriteString(query[i : i+2+end+2])
			i += 2 + end + 2
		case (c == ':' || c == '@') && i+1 < n:
			next := query[i+1]
			if next == c || (i > 0 && (query[i-1] == c || isIdentByte(query[i-1]))) || !isIdentStart(next) {
				if next == c {
					sb.WriteString(query[i : i+2])
					i += 2
					continue
				}
				sb.WriteByte(c)
				i++
				continue
			}
			j := i + 1
			for j < n && isIdentByte(query[j]) {
				j++
			}
			repl, ok, err := fn(query[i+1 : j])
			if err != nil {
				return "", err
			}
			if ok {
				sb.WriteString(repl)
			} else {
				sb.WriteString(query[i:j])
			}
			i = j
		default:
			sb.WriteByte(c)
			i++
		}
	}
	return sb.String(), nil
}

func skipQuoted(s string, start int, q byte, escapes bool) int {
	for i := start + 1; i < len(s); i++ {
		if s[i] == q {
			if i+1 < len(s) && s[i+1] == q {
				i++
				continue
			}
			return i + 1
		}
		if escapes && s[i] == '\\' {
			i++
		}
	}
	return len(s)
}

// escapeString reports whether the quote at i opens an E'' string.
func escapeString(s string, i int) bool {
	if i == 0 || (s[i-1] != 'E' && s[i-1] != 'e') {
		return false
	}
	return i == 1 || !isIdentByte(s[i-2])
}

// dollarTag returns the opening $tag$ or $$ at the start of s, or "".
func dollarTag(s string) string {
	if len(s) < 2 {
		return ""
	}
	if s[1] == '$' {
		return "$$"
	}
	if !isIdentStart(s[1]) {
		return ""
	}
	for j := 2; j < len(s); j++ {
		switch {
		case s[j] == '$':
			return s[:j+1]
		case !isIdentByte(s[j]):
			return ""
		}
	}
	return ""
}

func isIdentStart(c byte) bool {
	return c == '_' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

func isIdentByte(c byte) bool {
	return isIdentStart(c) || ('0' <= c && c <= '9')
}
