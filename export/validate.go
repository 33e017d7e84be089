package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jadedragon942/dbharbor/dberr"
	"github.com/jadedragon942/dbharbor/result"
)

// LargeResultRows is the row count above which Validate flags a result.
const LargeResultRows = 100000

const unsafeNameChars = `/\:*?"<>|`

// Validate flags result shapes that tend to export badly. None of them stop
// an export.
func Validate(res *result.Result) []dberr.Warning {
	var warnings []dberr.Warning
	if res.RowCount() == 0 {
		warnings = append(warnings, dberr.Warning{Code: dberr.WarnEmptyResult, Message: "result has no rows"})
	}
	if res.RowCount() > LargeResultRows {
		warnings = append(warnings, dberr.Warning{
			Code:    dberr.WarnLargeResult,
			Message: fmt.Sprintf("large result (%d rows), export may take time", res.RowCount()),
		})
	}

	seen := make(map[string]bool)
	for _, c := range res.Columns() {
		if c.Name == "" || strings.ContainsAny(c.Name, unsafeNameChars) {
			warnings = append(warnings, dberr.Warning{Code: dberr.WarnUnsafeColumnName, Message: "column name has path-unsafe characters", Subject: c.Name})
		}
		if seen[c.Name] {
			warnings = append(warnings, dberr.Warning{Code: dberr.WarnDuplicateColumn, Message: "duplicate column name", Subject: c.Name})
		}
		seen[c.Name] = true
	}

	for _, name := range mixedColumns(res) {
		warnings = append(warnings, dberr.Warning{Code: dberr.WarnMixedTypes, Message: "column holds values of more than one type", Subject: name})
	}
	return warnings
}

func mixedColumns(res *result.Result) []string {
	cols := res.Columns()
	kinds := make([]string, len(cols))
	mixed := make([]bool, len(cols))
	_ = res.Each(func(_ int, row []any) error {
		for i, v := range row {
			if i >= len(cols) || v == nil || mixed[i] {
				continue
			}
			k := valueClass(v)
			switch kinds[i] {
			case "":
				kinds[i] = k
			case k:
			default:
				mixed[i] = true
			}
		}
		return nil
	})

	var names []string
	for i, m := range mixed {
		if m {
			names = append(names, cols[i].Name)
		}
	}
	return names
}

// valueClass buckets values the way a typed column in a spreadsheet would
// see them, so ints and floats in one column do not count as mixed.
func valueClass(v any) string {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64,
		float32, float64, decimal.Decimal:
		return "number"
	case bool:
		return "bool"
	case time.Time:
		return "time"
	case []byte:
		return "bytes"
	case string:
		return "string"
	}
	return fmt.Sprintf("%T", v)
}
