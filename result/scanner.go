package result

import (
	"database/sql"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
)

type valueKind int

const (
	kindString valueKind = iota
	kindInt
	kindFloat
	kindDecimal
	kindBool
	kindBytes
	kindTime
)

// kindOf maps a driver type name to the Go type values of that column are
// decoded into.
func kindOf(typeName string) valueKind {
	t := strings.ToUpper(typeName)
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = t[:i]
	}
	t = strings.TrimSpace(strings.TrimPrefix(t, "UNSIGNED "))
	switch t {
	case "INT", "INTEGER", "TINYINT", "SMALLINT", "MEDIUMINT", "BIGINT",
		"INT2", "INT4", "INT8", "SERIAL", "BIGSERIAL", "YEAR", "OID":
		return kindInt
	case "FLOAT", "DOUBLE", "REAL", "FLOAT4", "FLOAT8", "DOUBLE PRECISION":
		return kindFloat
	case "DECIMAL", "NUMERIC", "NEWDECIMAL", "MONEY":
		return kindDecimal
	case "BOOL", "BOOLEAN":
		return kindBool
	case "BLOB", "TINYBLOB", "MEDIUMBLOB", "LONGBLOB", "BINARY", "VARBINARY", "BYTEA", "BIT":
		return kindBytes
	case "DATE", "DATETIME", "TIMESTAMP", "TIMESTAMPTZ":
		return kindTime
	}
	return kindString
}

// Scanner decodes rows of one result set into typed values based on the
// column types the driver reports.
type Scanner struct {
	columns []Column
	kinds   []valueKind
	dest    []any
}

// NewScanner prepares a scanner for the columns of rows.
func NewScanner(rows *sql.Rows) (*Scanner, error) {
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to read column types: %w", err)
	}

	s := &Scanner{
		columns: make([]Column, len(types)),
		kinds:   make([]valueKind, len(types)),
		dest:    make([]any, len(types)),
	}
	for i, ct := range types {
		s.columns[i] = Column{Name: ct.Name(), DatabaseType: ct.DatabaseTypeName()}
		s.kinds[i] = kindOf(ct.DatabaseTypeName())
		s.dest[i] = new(any)
	}
	return s, nil
}

func (s *Scanner) Columns() []Column {
	return append([]Column(nil), s.columns...)
}

// Scan reads the current row.
func (s *Scanner) Scan(rows *sql.Rows) ([]any, error) {
	if err := rows.Scan(s.dest...); err != nil {
		return nil, err
	}
	row := make([]any, len(s.dest))
	for i, d := range s.dest {
		row[i] = decode(*(d.(*any)), s.kinds[i])
	}
	return row, nil
}

// Collect reads every remaining row. A limit above zero stops reading after
// that many rows and reports whether more were available.
func Collect(rows *sql.Rows, limit int) ([]Column, [][]any, bool, error) {
	s, err := NewScanner(rows)
	if err != nil {
		return nil, nil, false, err
	}

	var out [][]any
	for rows.Next() {
		if limit > 0 && len(out) == limit {
			return s.columns, out, true, nil
		}
		row, err := s.Scan(rows)
		if err != nil {
			return nil, nil, false, fmt.Errorf("failed to scan row %d: %w", len(out)+1, err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, false, err
	}
	return s.columns, out, false, nil
}

// decode converts a raw driver value. Values that do not parse as the
// declared type are kept as their text form.
func decode(v any, kind valueKind) any {
	if v == nil {
		return nil
	}
	switch kind {
	case kindInt:
		switch x := v.(type) {
		case int64:
			return x
		case uint64:
			return unsignedInt(x)
		case uint:
			return unsignedInt(uint64(x))
		case []byte:
			if n, err := strconv.ParseInt(string(x), 10, 64); err == nil {
				return n
			}
			// unsigned values past the int64 range
			if d, err := decimal.NewFromString(string(x)); err == nil && d.IsInteger() {
				return d
			}
		default:
			if n, err := cast.ToInt64E(x); err == nil {
				return n
			}
		}
	case kindFloat:
		switch x := v.(type) {
		case float64:
			return x
		case []byte:
			if f, err := strconv.ParseFloat(string(x), 64); err == nil {
				return f
			}
		default:
			if f, err := cast.ToFloat64E(x); err == nil {
				return f
			}
		}
	case kindDecimal:
		switch x := v.(type) {
		case int64:
			return decimal.NewFromInt(x)
		case float64:
			return decimal.NewFromFloat(x)
		}
		if d, err := decimal.NewFromString(Stringify(v)); err == nil {
			return d
		}
	case kindBool:
		switch x := v.(type) {
		case bool:
			return x
		case int64:
			return x != 0
		}
		switch strings.ToLower(Stringify(v)) {
		case "1", "t", "true", "y", "yes", "on":
			return true
		case "0", "f", "false", "n", "no", "off":
			return false
		}
	case kindBytes:
		switch x := v.(type) {
		case []byte:
			return append([]byte(nil), x...)
		case string:
			return []byte(x)
		}
	case kindTime:
		if t, ok := v.(time.Time); ok {
			return t
		}
		if t, err := parseTime(Stringify(v)); err == nil {
			return t
		}
	}
	if t, ok := v.(time.Time); ok {
		return t
	}
	if kind == kindString {
		switch x := v.(type) {
		case int64, float64, bool:
			return x
		}
	}
	return Stringify(v)
}

// unsignedInt keeps values above math.MaxInt64 exact as a decimal.
func unsignedInt(x uint64) any {
	if x <= math.MaxInt64 {
		return int64(x)
	}
	return decimal.RequireFromString(strconv.FormatUint(x, 10))
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

// Stringify renders a decoded value as text the way exports and tables show
// it. NULL renders as the empty string.
func Stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		if isPrintable(x) {
			return string(x)
		}
		return "\\x" + hex.EncodeToString(x)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case decimal.Decimal:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	}
	return cast.ToString(v)
}

func isPrintable(b []byte) bool {
	for _, c := range b {
		if c < 0x20 && c != '\t' && c != '\n' && c != '\r' {
			return false
		}
		if c == 0x7f {
			return false
		}
	}
	return true
}
