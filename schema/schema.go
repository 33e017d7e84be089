package schema

import "strings"

type TableKind string

const (
	KindBaseTable TableKind = "BASE TABLE"
	KindView      TableKind = "VIEW"
)

// ParseTableKind normalizes the table_type values reported by the engines.
func ParseTableKind(s string) TableKind {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "VIEW", "SYSTEM VIEW", "MATERIALIZED VIEW":
		return KindView
	default:
		return KindBaseTable
	}
}

type CountSource string

const (
	CountUnknown     CountSource = "unknown"
	CountExact       CountSource = "exact"
	CountApproximate CountSource = "approximate"
)

type KeyRole string

const (
	KeyNone    KeyRole = ""
	KeyPrimary KeyRole = "primary"
	KeyForeign KeyRole = "foreign"
)

// Problem records a detail lookup that failed for one object without
// aborting the listing it belongs to.
type Problem struct {
	Detail string
	Err    error
}

func (p Problem) String() string {
	if p.Err == nil {
		return p.Detail
	}
	return p.Detail + ": " + p.Err.Error()
}

// ObjectRef identifies a schema-qualified object.
type ObjectRef struct {
	Schema string
	Name   string
}

func (r ObjectRef) String() string {
	if r.Schema == "" {
		return r.Name
	}
	return r.Schema + "." + r.Name
}

// Less orders references by schema, then name.
func (r ObjectRef) Less(o ObjectRef) bool {
	if r.Schema != o.Schema {
		return r.Schema < o.Schema
	}
	return r.Name < o.Name
}

type Table struct {
	Schema      string
	Name        string
	Kind        TableKind
	ColumnCount int
	RowCount    *int64
	RowSource   CountSource
	SizeBytes   *int64
	Comment     string
	Columns     []Column
	Indexes     []Index
	Constraints []Constraint
	Problems    []Problem
}

func (t *Table) Ref() ObjectRef {
	return ObjectRef{Schema: t.Schema, Name: t.Name}
}

func (t *Table) AddProblem(detail string, err error) {
	t.Problems = append(t.Problems, Problem{Detail: detail, Err: err})
}

// Column returns the column with the given name.
func (t *Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// PrimaryKey returns the primary key columns in ordinal order.
func (t *Table) PrimaryKey() []string {
	var pk []string
	for _, c := range t.Columns {
		if c.Key == KeyPrimary {
			pk = append(pk, c.Name)
		}
	}
	return pk
}

type Column struct {
	Name     string
	Type     string
	Nullable bool
	Default  *string
	Position int
	Key      KeyRole
	Extra    string
	Comment  string
}

func (c Column) AutoIncrement() bool {
	extra := strings.ToLower(c.Extra)
	return strings.Contains(extra, "auto_increment") || strings.Contains(extra, "identity")
}

// IsText reports whether the declared type holds character data.
func (c Column) IsText() bool {
	t := strings.ToLower(c.Type)
	for _, p := range []string{"char", "text", "clob", "string", "enum", "set"} {
		if strings.Contains(t, p) {
			return true
		}
	}
	return false
}

// IsNumeric reports whether the declared type is an integer, decimal or
// floating point type.
func (c Column) IsNumeric() bool {
	t := strings.ToLower(c.Type)
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = t[:i]
	}
	t = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(t), " unsigned"))
	switch t {
	case "int", "integer", "tinyint", "smallint", "mediumint", "bigint", "int2", "int4", "int8",
		"serial", "smallserial", "bigserial", "decimal", "numeric", "float", "float4", "float8",
		"double", "double precision", "real":
		return true
	}
	return false
}

// IsTemporal reports whether the declared type holds dates or times.
func (c Column) IsTemporal() bool {
	t := strings.ToLower(c.Type)
	return strings.Contains(t, "date") || strings.Contains(t, "time")
}

type Index struct {
	Name    string
	Columns []string
	Unique  bool
	Primary bool
}

type Constraint struct {
	Name    string
	Type    string
	Columns []string
}

type View struct {
	Schema     string
	Name       string
	Definition string
	Updatable  bool
	Columns    []Column
	Problems   []Problem
}

func (v *View) Ref() ObjectRef {
	return ObjectRef{Schema: v.Schema, Name: v.Name}
}

func (v *View) AddProblem(detail string, err error) {
	v.Problems = append(v.Problems, Problem{Detail: detail, Err: err})
}
