// Package common holds helpers shared by the engine dialects.
package common

import (
	"errors"
	"strconv"
	"strings"
)

// QuoteWith wraps name in q, doubling any q inside it.
func QuoteWith(q, name string) string {
	return q + strings.ReplaceAll(name, q, q+q) + q
}

// Qualify joins a quoted schema and name; an empty schema yields only the
// quoted name.
func Qualify(quote func(string) string, schema, name string) string {
	if schema == "" {
		return quote(name)
	}
	return quote(schema) + "." + quote(name)
}

// QuestionPlaceholder is the placeholder style of MySQL and SQLite.
func QuestionPlaceholder(int) string {
	return "?"
}

// DollarPlaceholder is the PostgreSQL placeholder style.
func DollarPlaceholder(n int) string {
	return "$" + strconv.Itoa(n)
}

// Placeholders returns n placeholders starting at position from.
func Placeholders(ph func(int) string, from, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = ph(from + i)
	}
	return out
}

// StringList renders constant names as a SQL literal list for IN clauses.
// It is only used with compiled-in names, never with caller input.
func StringList(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = "'" + strings.ReplaceAll(v, "'", "''") + "'"
	}
	return strings.Join(quoted, ", ")
}

// ValidateIdent rejects identifiers that no engine accepts.
func ValidateIdent(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("identifier must not be empty")
	}
	if strings.ContainsRune(name, 0) {
		return errors.New("identifier must not contain NUL")
	}
	return nil
}
