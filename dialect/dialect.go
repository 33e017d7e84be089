// Package dialect describes what differs between the supported engines:
// driver wiring, identifier quoting and the metadata queries the catalog
// runs. Every metadata query of every engine returns the same row shape so
// the catalog scans them with one code path.
//
// Row shapes:
//
//	databases:    name
//	tables:       schema, name, table_type, column_count, approx_rows, size_bytes, comment
//	views:        schema, name, definition, updatable (0|1)
//	columns:      name, type, is_nullable (YES|NO), default, position, key_role, extra, comment
//	indexes:      name, column, unique (0|1), primary (0|1), seq
//	constraints:  name, type, column
//	foreign keys: src_schema, src_table, constraint, src_column, tgt_schema, tgt_table, tgt_column, position
//	routines:     schema, name, routine_type, return_type, definition, specific_name
//	parameters:   specific_schema, specific_name, position, name, type, mode
//	triggers:     schema, name, table, event, timing, body
//	server info:  version, size_bytes, connections, encoding
//
// An empty query string means the engine has no such objects.
package dialect

import (
	"fmt"
	"strings"
	"time"

	"github.com/jadedragon942/dbharbor/schema"
)

type Kind string

const (
	MySQL      Kind = "mysql"
	PostgreSQL Kind = "postgres"
	SQLite     Kind = "sqlite"
)

// ParseKind accepts the engine names used in configuration files.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mysql", "mariadb", "tidb":
		return MySQL, nil
	case "postgres", "postgresql", "pg":
		return PostgreSQL, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	}
	return "", fmt.Errorf("unknown engine %q", s)
}

// Endpoint is what a dialect needs to build a DSN.
type Endpoint struct {
	Host             string
	Port             int
	User             string
	Password         string
	Params           map[string]string
	ConnectTimeout   time.Duration
	StatementTimeout time.Duration
}

// Stmt is a statement with its bound arguments.
type Stmt struct {
	Query string
	Args  []any
}

// Call is the statement sequence that invokes a routine. Prelude and
// Readback run on the same connection as Query.
type Call struct {
	Prelude  []Stmt
	Query    string
	Args     []any
	Readback string
}

type Dialect interface {
	Kind() Kind
	DriverName() string
	DSN(ep Endpoint, database string) (string, error)
	// AdminDatabase is opened by Connect before a database is selected.
	AdminDatabase() string
	SystemDatabases() []string
	// SingleConnection reports whether a handle must be limited to one
	// connection to keep a consistent view of the database.
	SingleConnection() bool
	SupportsReadOnlyTx() bool

	QuoteIdent(name string) string
	QualifiedName(schema, name string) string
	Placeholder(n int) string
	ExplainPrefix() string

	DatabasesQuery() string
	TablesQuery() string
	ViewsQuery() string
	RoutinesQuery() string
	ParametersQuery() string
	TriggersQuery() string
	ForeignKeysQuery() string
	// ServerInfoQuery returns one row: version, size of the current
	// database in bytes, connections to it, and its character encoding.
	ServerInfoQuery() string
	ColumnsQuery(schema, table string) (string, []any)
	IndexesQuery(schema, table string) (string, []any)
	ConstraintsQuery(schema, table string) (string, []any)

	// CallStatement builds the invocation of r with one argument per
	// parameter that accepts a caller value.
	CallStatement(r *schema.Routine, args []any) (Call, error)
}

// TriggerNormalizer is implemented by dialects whose trigger listing cannot
// report event and timing directly and must derive them from the body.
type TriggerNormalizer interface {
	NormalizeTrigger(t *schema.Trigger)
}
