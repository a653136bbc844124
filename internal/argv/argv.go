// Package argv provides lightweight shell-style tokenization for help-text
// example lines. It splits a command line into tokens, respecting single and
// double quotes and backslash escapes, without interpreting any further shell
// syntax.
package argv

import "strings"

// Tokenize splits a command line into tokens. Quotes are preserved inside
// tokens; use Unquote to strip a surrounding quote pair.
func Tokenize(s string) []string {
	var tokens []string
	var current strings.Builder
	inSingle := false
	inDouble := false
	escaped := false

	for i := 0; i < len(s); i++ {
		ch := s[i]
		if escaped {
			current.WriteByte(ch)
			escaped = false
			continue
		}
		if ch == '\\' && !inSingle {
			escaped = true
			if inDouble {
				current.WriteByte(ch)
			}
			continue
		}
		if ch == '\'' && !inDouble {
			inSingle = !inSingle
			current.WriteByte(ch)
			continue
		}
		if ch == '"' && !inSingle {
			inDouble = !inDouble
			current.WriteByte(ch)
			continue
		}
		if (ch == ' ' || ch == '\t') && !inSingle && !inDouble {
			if current.Len() > 0 {
				tokens = append(tokens, current.String())
				current.Reset()
			}
			continue
		}
		current.WriteByte(ch)
	}
	if current.Len() > 0 {
		tokens = append(tokens, current.String())
	}
	return tokens
}

// FirstWord returns the first token of s, or "" if s is blank.
func FirstWord(s string) string {
	tokens := Tokenize(strings.TrimSpace(s))
	if len(tokens) == 0 {
		return ""
	}
	return Unquote(tokens[0])
}

// Unquote strips one surrounding pair of single or double quotes, if present.
func Unquote(tok string) string {
	if len(tok) >= 2 {
		if (tok[0] == '\'' && tok[len(tok)-1] == '\'') ||
			(tok[0] == '"' && tok[len(tok)-1] == '"') {
			return tok[1 : len(tok)-1]
		}
	}
	return tok
}
