package dberr

import "fmt"

// Warning is a non-fatal structural or safety flag raised on a statement or
// an export payload. Warnings never change what gets executed.
type Warning struct {
	Code    string
	Message string
	// Subject is the keyword, fragment or column name that triggered it.
	Subject string
}

func (w Warning) String() string {
	if w.Subject == "" {
		return fmt.Sprintf("[%s] %s", w.Code, w.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", w.Code, w.Message, w.Subject)
}

const (
	WarnUnbalancedParens   = "unbalanced_parentheses"
	WarnUnbalancedQuotes   = "unbalanced_quotes"
	WarnHighRiskKeyword    = "high_risk_keyword"
	WarnInjectionPattern   = "injection_pattern"
	WarnEmptyResult        = "empty_result"
	WarnUnsafeColumnName   = "unsafe_column_name"
	WarnDuplicateColumn    = "duplicate_column"
	WarnMixedTypes         = "mixed_types"
	WarnLargeResult        = "large_result"
	WarnTruncated          = "truncated"
	WarnNoCommonSQLKeyword = "no_sql_keyword"
)
