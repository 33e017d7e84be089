package result

import (
	"time"

	"github.com/jadedragon942/dbharbor/dberr"
)

type StatementKind string

const (
	StatementRead  StatementKind = "read"
	StatementWrite StatementKind = "write"
	StatementCall  StatementKind = "call"
)

// Column is one column of a result set with the type name the driver
// reported for it.
type Column struct {
	Name         string
	DatabaseType string
}

// Draft collects the parts of a result while a statement runs. Freeze turns
// it into an immutable Result.
type Draft struct {
	Statement     string
	Kind          StatementKind
	Columns       []Column
	Rows          [][]any
	RowsAffected  int64
	AffectedKnown bool
	HasResultSet  bool
	Duration      time.Duration
	Err           error
	Warnings      []dberr.Warning
}

// Freeze copies the draft so later changes to it do not leak into the
// result.
func (d Draft) Freeze() *Result {
	rows := make([][]any, len(d.Rows))
	for i, r := range d.Rows {
		rows[i] = copyRow(r)
	}
	return &Result{
		statement:     d.Statement,
		kind:          d.Kind,
		columns:       append([]Column(nil), d.Columns...),
		rows:          rows,
		affected:      d.RowsAffected,
		affectedKnown: d.AffectedKnown,
		hasResultSet:  d.HasResultSet,
		duration:      d.Duration,
		err:           d.Err,
		warnings:      append([]dberr.Warning(nil), d.Warnings...),
	}
}

// Result is the outcome of one execution. It is never modified after it is
// produced; every accessor returning a slice returns a copy.
type Result struct {
	statement     string
	kind          StatementKind
	columns       []Column
	rows          [][]any
	affected      int64
	affectedKnown bool
	hasResultSet  bool
	duration      time.Duration
	err           error
	warnings      []dberr.Warning
}

// Failed builds a result for an execution that never produced rows.
func Failed(statement string, kind StatementKind, d time.Duration, err error, warnings []dberr.Warning) *Result {
	return Draft{Statement: statement, Kind: kind, Duration: d, Err: err, Warnings: warnings}.Freeze()
}

func (r *Result) Statement() string         { return r.statement }
func (r *Result) Kind() StatementKind       { return r.kind }
func (r *Result) Duration() time.Duration   { return r.duration }
func (r *Result) Err() error                { return r.err }
func (r *Result) Success() bool             { return r.err == nil }
func (r *Result) HasResultSet() bool        { return r.hasResultSet }
func (r *Result) RowCount() int             { return len(r.rows) }
func (r *Result) NumColumns() int           { return len(r.columns) }
func (r *Result) Warnings() []dberr.Warning { return append([]dberr.Warning(nil), r.warnings...) }

// ErrorText is the error description shown to users, empty on success.
func (r *Result) ErrorText() string {
	if r.err == nil {
		return ""
	}
	return r.err.Error()
}

// RowsAffected reports the affected row count when the driver exposed one.
func (r *Result) RowsAffected() (int64, bool) {
	return r.affected, r.affectedKnown
}

func (r *Result) Columns() []Column {
	return append([]Column(nil), r.columns...)
}

func (r *Result) ColumnNames() []string {
	names := make([]string, len(r.columns))
	for i, c := range r.columns {
		names[i] = c.Name
	}
	return names
}

// Row returns a copy of row i.
func (r *Result) Row(i int) []any {
	if i < 0 || i >= len(r.rows) {
		return nil
	}
	return copyRow(r.rows[i])
}

// Rows returns a copy of every row.
func (r *Result) Rows() [][]any {
	rows := make([][]any, len(r.rows))
	for i, row := range r.rows {
		rows[i] = copyRow(row)
	}
	return rows
}

// Each calls fn for every row in order and stops at the first error.
func (r *Result) Each(fn func(i int, row []any) error) error {
	for i, row := range r.rows {
		if err := fn(i, copyRow(row)); err != nil {
			return err
		}
	}
	return nil
}

// Record returns row i as a Record for name based access.
func (r *Result) Record(i int) (Record, bool) {
	if i < 0 || i >= len(r.rows) {
		return Record{}, false
	}
	return Record{columns: r.columns, values: copyRow(r.rows[i])}, true
}

// WithWarnings returns a copy of the result carrying extra warnings.
func (r *Result) WithWarnings(w ...dberr.Warning) *Result {
	if len(w) == 0 {
		return r
	}
	cp := *r
	cp.warnings = append(append([]dberr.Warning(nil), r.warnings...), w...)
	return &cp
}

func copyRow(row []any) []any {
	cp := make([]any, len(row))
	for i, v := range row {
		if b, ok := v.([]byte); ok {
			v = append([]byte(nil), b...)
		}
		cp[i] = v
	}
	return cp
}
