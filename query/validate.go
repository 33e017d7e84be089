package query

import (
	"regexp"
	"strings"

	"github.com/jadedragon942/dbharbor/dberr"
	"github.com/jadedragon942/dbharbor/dialect"
)

var highRiskKeywords = []string{"DROP", "DELETE", "TRUNCATE", "ALTER", "GRANT", "REVOKE", "CREATE"}

var injectionPatterns = []struct {
	re      *regexp.Regexp
	subject string
}{
	{regexp.MustCompile(`(?i)\bOR\s+1\s*=\s*1\b`), "OR 1=1"},
	{regexp.MustCompile(`(?i)'\s*OR\s*'[^']*'\s*=\s*'`), "' OR ''='"},
	{regexp.MustCompile(`(?i)\bUNION\s+(ALL\s+)?SELECT\b`), "UNION SELECT"},
	{regexp.MustCompile(`;\s*--`), "; --"},
}

// Validate inspects a statement and returns warnings. It never changes the
// statement and never decides whether it runs. Quoting follows MySQL rules;
// use ValidateFor when the engine is known.
func Validate(statement string) []dberr.Warning {
	return ValidateFor("", statement)
}

// ValidateFor is Validate with the string literal rules of one engine:
// backslash escapes only on MySQL (and when no engine is given), dollar
// quoted bodies only on PostgreSQL.
func ValidateFor(engine dialect.Kind, statement string) []dberr.Warning {
	var warnings []dberr.Warning
	if strings.TrimSpace(statement) == "" {
		return nil
	}

	sc := scan(statement, quoting{
		backslash: engine == "" || engine == dialect.MySQL,
		dollar:    engine == dialect.PostgreSQL,
	})
	if sc.depth != 0 || sc.underflow {
		warnings = append(warnings, dberr.Warning{Code: dberr.WarnUnbalancedParens, Message: "unbalanced parentheses"})
	}
	if sc.openQuote != 0 {
		warnings = append(warnings, dberr.Warning{Code: dberr.WarnUnbalancedQuotes, Message: "unterminated quoted string", Subject: string(sc.openQuote)})
	}

	upper := strings.ToUpper(sc.code)
	for _, kw := range highRiskKeywords {
		if containsWord(upper, kw) {
			warnings = append(warnings, dberr.Warning{Code: dberr.WarnHighRiskKeyword, Message: "statement contains a high-risk keyword", Subject: kw})
		}
	}

	for _, p := range injectionPatterns {
		if p.re.MatchString(statement) {
			warnings = append(warnings, dberr.Warning{Code: dberr.WarnInjectionPattern, Message: "injection-shaped fragment", Subject: p.subject})
		}
	}
	if sc.lineComment {
		warnings = append(warnings, dberr.Warning{Code: dberr.WarnInjectionPattern, Message: "statement contains a line comment", Subject: "--"})
	}
	if sc.blockComment {
		warnings = append(warnings, dberr.Warning{Code: dberr.WarnInjectionPattern, Message: "statement contains a block comment", Subject: "/* */"})
	}

	if !containsAnyWord(upper, commonKeywords) {
		warnings = append(warnings, dberr.Warning{Code: dberr.WarnNoCommonSQLKeyword, Message: "no common SQL keyword found"})
	}
	return warnings
}

var commonKeywords = []string{
	"SELECT", "INSERT", "UPDATE", "DELETE", "CREATE", "DROP", "ALTER", "SHOW",
	"DESCRIBE", "DESC", "EXPLAIN", "WITH", "CALL", "VALUES", "TABLE", "PRAGMA",
	"SET", "GRANT", "REVOKE", "TRUNCATE", "BEGIN", "COMMIT", "ROLLBACK", "USE",
	"REPLACE", "MERGE", "ANALYZE", "VACUUM",
}

// scanned is a statement with quoted text and comments removed.
type scanned struct {
	code         string
	depth        int
	underflow    bool
	openQuote    byte
	lineComment  bool
	blockComment bool
}

type quoting struct {
	backslash bool
	dollar    bool
}

// scan walks the statement once, tracking quotes so parentheses and
// keywords inside string literals or quoted identifiers are ignored.
// Doubled quotes are always honored inside literals, backslash escapes and
// $tag$ bodies only when q enables them.
func scan(s string, q quoting) scanned {
	var (
		out   strings.Builder
		sc    scanned
		quote byte
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			switch {
			case c == '\\' && q.backslash && quote == '\'' && i+1 < len(s):
				i++
			case c == quote && i+1 < len(s) && s[i+1] == quote:
				i++
			case c == quote:
				quote = 0
				out.WriteByte(' ')
			}
			continue
		}
		switch {
		case c == '\'' || c == '"' || c == '`':
			quote = c
		case c == '$' && q.dollar && dollarTag(s[i:]) != "":
			tag := dollarTag(s[i:])
			end := strings.Index(s[i+len(tag):], tag)
			if end < 0 {
				sc.openQuote = '$'
				i = len(s)
			} else {
				i += len(tag) + end + len(tag) - 1
			}
			out.WriteByte(' ')
		case c == '-' && i+1 < len(s) && s[i+1] == '-':
			sc.lineComment = true
			for i < len(s) && s[i] != '\n' {
				i++
			}
			out.WriteByte(' ')
		case c == '/' && i+1 < len(s) && s[i+1] == '*':
			sc.blockComment = true
			end := strings.Index(s[i+2:], "*/")
			if end < 0 {
				i = len(s)
			} else {
				i += end + 3
			}
			out.WriteByte(' ')
		case c == '(':
			sc.depth++
			out.WriteByte(c)
		case c == ')':
			if sc.depth == 0 {
				sc.underflow = true
			} else {
				sc.depth--
			}
			out.WriteByte(c)
		default:
			out.WriteByte(c)
		}
	}
	if quote != 0 {
		sc.openQuote = quote
	}
	sc.code = out.String()
	return sc
}

// dollarTag returns the $tag$ opening s, or "". Positional parameters such
// as $1 are not tags.
func dollarTag(s string) string {
	for i := 1; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '$':
			return s[:i+1]
		case c == '_' || c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9' && i > 1:
		default:
			return ""
		}
	}
	return ""
}

func containsWord(s, word string) bool {
	for i := 0; ; {
		j := strings.Index(s[i:], word)
		if j < 0 {
			return false
		}
		start := i + j
		end := start + len(word)
		if (start == 0 || !isWordByte(s[start-1])) && (end == len(s) || !isWordByte(s[end])) {
			return true
		}
		i = start + 1
	}
}

func containsAnyWord(s string, words []string) bool {
	for _, w := range words {
		if containsWord(s, w) {
			return true
		}
	}
	return false
}

func isWordByte(c byte) bool {
	return c == '_' || c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z' || c >= '0' && c <= '9'
}
