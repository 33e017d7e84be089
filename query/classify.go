package query

import (
	"strings"
	"unicode"

	"github.com/jadedragon942/dbharbor/result"
)

var readOnlyKeywords = map[string]bool{
	"SELECT":   true,
	"SHOW":     true,
	"EXPLAIN":  true,
	"WITH":     true,
	"DESCRIBE": true,
	"DESC":     true,
	"VALUES":   true,
	"TABLE":    true,
	"PRAGMA":   true,
}

// LeadingKeyword returns the first keyword of a statement in upper case,
// skipping whitespace, comments and opening parentheses.
func LeadingKeyword(statement string) string {
	s := statement
	for {
		s = strings.TrimLeftFunc(s, func(r rune) bool {
			return unicode.IsSpace(r) || r == '('
		})
		switch {
		case strings.HasPrefix(s, "--") || strings.HasPrefix(s, "#"):
			i := strings.IndexByte(s, '\n')
			if i < 0 {
				return ""
			}
			s = s[i+1:]
		case strings.HasPrefix(s, "/*"):
			i := strings.Index(s[2:], "*/")
			if i < 0 {
				return ""
			}
			s = s[i+4:]
		default:
			end := strings.IndexFunc(s, func(r rune) bool {
				return !(unicode.IsLetter(r) || r == '_')
			})
			if end < 0 {
				end = len(s)
			}
			return strings.ToUpper(s[:end])
		}
	}
}

// Classify reports whether a statement only reads. Anything not starting
// with a known read keyword is treated as a write.
func Classify(statement string) result.StatementKind {
	if readOnlyKeywords[LeadingKeyword(statement)] {
		return result.StatementRead
	}
	return result.StatementWrite
}
