package postgres

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"

	"github.com/jadedragon942/dbharbor/dialect"
	"github.com/jadedragon942/dbharbor/dialect/common"
	"github.com/jadedragon942/dbharbor/schema"
)

// postgres is the administrative database Connect opens; it is hidden from
// database listings together with the templates.
var systemDatabases = []string{"postgres", "template0", "template1"}

var systemSchemas = []string{"information_schema", "pg_catalog"}

const userSchemaFilter = ` NOT IN ('information_schema', 'pg_catalog')
  AND %[1]s NOT LIKE 'pg\_toast%%' AND %[1]s NOT LIKE 'pg\_temp%%'`

func notSystemSchema(col string) string {
	return col + fmt.Sprintf(userSchemaFilter, col)
}

type Dialect struct{}

func New() dialect.Dialect {
	return Dialect{}
}

func (Dialect) Kind() dialect.Kind       { return dialect.PostgreSQL }
func (Dialect) DriverName() string       { return "pgx" }
func (Dialect) AdminDatabase() string    { return "postgres" }
func (Dialect) SingleConnection() bool   { return false }
func (Dialect) SupportsReadOnlyTx() bool { return true }
func (Dialect) Placeholder(n int) string { return common.DollarPlaceholder(n) }
func (Dialect) ExplainPrefix() string    { return "EXPLAIN " }

func (Dialect) SystemDatabases() []string {
	return append(append([]string(nil), systemDatabases...), systemSchemas...)
}

func (Dialect) QuoteIdent(name string) string {
	return pq.QuoteIdentifier(name)
}

func (d Dialect) QualifiedName(schema, name string) string {
	return common.Qualify(d.QuoteIdent, schema, name)
}

// DSN builds a connection URL. statement_timeout is sent as a runtime
// parameter at connection startup.
func (Dialect) DSN(ep dialect.Endpoint, database string) (string, error) {
	port := ep.Port
	if port == 0 {
		port = 5432
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(ep.Host, strconv.Itoa(port)),
		Path:   "/" + database,
	}
	if ep.Password != "" {
		u.User = url.UserPassword(ep.User, ep.Password)
	} else if ep.User != "" {
		u.User = url.User(ep.User)
	}

	q := url.Values{}
	for k, v := range ep.Params {
		q.Set(k, v)
	}
	if ep.ConnectTimeout > 0 {
		secs := int(ep.ConnectTimeout.Seconds())
		if secs < 1 {
			secs = 1
		}
		q.Set("connect_timeout", strconv.Itoa(secs))
	}
	if ep.StatementTimeout > 0 {
		q.Set("statement_timeout", strconv.FormatInt(ep.StatementTimeout.Milliseconds(), 10))
	}
	u.RawQuery = q.Encode()

	dsn := u.String()
	if _, err := pgx.ParseConfig(dsn); err != nil {
		return "", fmt.Errorf("invalid connection parameters: %w", err)
	}
	return dsn, nil
}

func (Dialect) DatabasesQuery() string {
	return `SELECT datname FROM pg_database
WHERE NOT datistemplate AND datallowconn
  AND datname NOT IN (` + common.StringList(systemDatabases) + `)
ORDER BY datname`
}

func (Dialect) TablesQuery() string {
	return `SELECT t.table_schema, t.table_name, t.table_type,
  (SELECT COUNT(*) FROM information_schema.columns c
    WHERE c.table_schema = t.table_schema AND c.table_name = t.table_name),
  s.n_live_tup,
  pg_total_relation_size(format('%I.%I', t.table_schema, t.table_name)::regclass),
  COALESCE(obj_description(format('%I.%I', t.table_schema, t.table_name)::regclass, 'pg_class'), '')
FROM information_schema.tables t
LEFT JOIN pg_stat_user_tables s ON s.schemaname = t.table_schema AND s.relname = t.table_name
WHERE ` + notSystemSchema("t.table_schema") + `
ORDER BY t.table_schema, t.table_name`
}

func (Dialect) ViewsQuery() string {
	return `SELECT table_schema, table_name, COALESCE(view_definition, ''),
  CASE WHEN is_updatable = 'YES' THEN 1 ELSE 0 END
FROM information_schema.views
WHERE ` + notSystemSchema("table_schema") + `
ORDER BY table_schema, table_name`
}

func (Dialect) ColumnsQuery(schemaName, table string) (string, []any) {
	return `SELECT c.column_name,
  CASE
    WHEN c.data_type = 'USER-DEFINED' THEN c.udt_name
    WHEN c.character_maximum_length IS NOT NULL THEN c.data_type || '(' || c.character_maximum_length || ')'
    WHEN c.data_type = 'numeric' AND c.numeric_precision IS NOT NULL
      THEN 'numeric(' || c.numeric_precision || ',' || COALESCE(c.numeric_scale, 0) || ')'
    ELSE c.data_type
  END,
  c.is_nullable, c.column_default, c.ordinal_position,
  CASE
    WHEN EXISTS (SELECT 1 FROM information_schema.table_constraints tc
      JOIN information_schema.key_column_usage k
        ON k.constraint_schema = tc.constraint_schema AND k.constraint_name = tc.constraint_name
        AND k.table_name = tc.table_name
      WHERE tc.constraint_type = 'PRIMARY KEY' AND tc.table_schema = c.table_schema
        AND tc.table_name = c.table_name AND k.column_name = c.column_name) THEN 'primary'
    WHEN EXISTS (SELECT 1 FROM information_schema.table_constraints tc
      JOIN information_schema.key_column_usage k
        ON k.constraint_schema = tc.constraint_schema AND k.constraint_name = tc.constraint_name
        AND k.table_name = tc.table_name
      WHERE tc.constraint_type = 'FOREIGN KEY' AND tc.table_schema = c.table_schema
        AND tc.table_name = c.table_name AND k.column_name = c.column_name) THEN 'foreign'
    ELSE ''
  END,
  CASE
    WHEN c.is_identity = 'YES' THEN 'identity'
    WHEN c.column_default LIKE 'nextval(%' THEN 'auto_increment'
    ELSE ''
  END,
  COALESCE(col_description(format('%I.%I', c.table_schema, c.table_name)::regclass, c.ordinal_position::int), '')
FROM information_schema.columns c
WHERE c.table_schema = COALESCE(NULLIF($1, ''), current_schema()) AND c.table_name = $2
ORDER BY c.ordinal_position`, []any{schemaName, table}
}

func (Dialect) IndexesQuery(schemaName, table string) (string, []any) {
	return `SELECT ic.relname, a.attname,
  CASE WHEN ix.indisunique THEN 1 ELSE 0 END,
  CASE WHEN ix.indisprimary THEN 1 ELSE 0 END,
  k.ord
FROM pg_index ix
JOIN pg_class t ON t.oid = ix.indrelid
JOIN pg_namespace n ON n.oid = t.relnamespace
JOIN pg_class ic ON ic.oid = ix.indexrelid
CROSS JOIN LATERAL unnest(ix.indkey) WITH ORDINALITY AS k(attnum, ord)
JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = k.attnum
WHERE n.nspname = COALESCE(NULLIF($1, ''), current_schema()) AND t.relname = $2
ORDER BY ic.relname, k.ord`, []any{schemaName, table}
}

// ConstraintsQuery leaves out the implicit NOT NULL checks PostgreSQL
// reports as CHECK constraints.
func (Dialect) ConstraintsQuery(schemaName, table string) (string, []any) {
	return `SELECT tc.constraint_name, tc.constraint_type, COALESCE(k.column_name, '')
FROM information_schema.table_constraints tc
LEFT JOIN information_schema.key_column_usage k
  ON k.constraint_schema = tc.constraint_schema
  AND k.constraint_name = tc.constraint_name
  AND k.table_schema = tc.table_schema
  AND k.table_name = tc.table_name
WHERE tc.table_schema = COALESCE(NULLIF($1, ''), current_schema()) AND tc.table_name = $2
  AND tc.constraint_name NOT LIKE '%\_not\_null'
ORDER BY tc.constraint_name, k.ordinal_position`, []any{schemaName, table}
}

// ForeignKeysQuery pairs each referencing column with the referenced column
// at the same position of the unique constraint, so composite keys do not
// produce a cross product.
func (Dialect) ForeignKeysQuery() string {
	return `SELECT kcu.table_schema, kcu.table_name, rc.constraint_name, kcu.column_name,
  pk.table_schema, pk.table_name, pk.column_name, kcu.ordinal_position
FROM information_schema.referential_constraints rc
JOIN information_schema.key_column_usage kcu
  ON kcu.constraint_schema = rc.constraint_schema AND kcu.constraint_name = rc.constraint_name
JOIN information_schema.key_column_usage pk
  ON pk.constraint_schema = rc.unique_constraint_schema
  AND pk.constraint_name = rc.unique_constraint_name
  AND pk.ordinal_position = kcu.position_in_unique_constraint
WHERE ` + notSystemSchema("kcu.table_schema") + `
ORDER BY kcu.table_schema, kcu.table_name, rc.constraint_name, kcu.ordinal_position`
}

func (Dialect) ServerInfoQuery() string {
	return `SELECT version(),
  pg_database_size(current_database()),
  (SELECT count(*) FROM pg_stat_activity WHERE datname = current_database()),
  pg_encoding_to_char(d.encoding)
FROM pg_database d
WHERE d.datname = current_database()`
}

func (Dialect) RoutinesQuery() string {
	return `SELECT r.routine_schema, r.routine_name, COALESCE(r.routine_type, 'FUNCTION'),
  COALESCE(r.data_type, ''), COALESCE(r.routine_definition, ''), r.specific_name
FROM information_schema.routines r
WHERE ` + notSystemSchema("r.routine_schema") + `
ORDER BY r.routine_schema, r.routine_name, r.specific_name`
}

func (Dialect) ParametersQuery() string {
	return `SELECT specific_schema, specific_name, ordinal_position,
  COALESCE(parameter_name, ''), data_type, COALESCE(parameter_mode, 'IN')
FROM information_schema.parameters
WHERE ` + notSystemSchema("specific_schema") + `
ORDER BY specific_schema, specific_name, ordinal_position`
}

// TriggersQuery returns one row per trigger event; the catalog merges them.
func (Dialect) TriggersQuery() string {
	return `SELECT trigger_schema, trigger_name, event_object_table,
  event_manipulation, action_timing, action_statement
FROM information_schema.triggers
WHERE ` + notSystemSchema("trigger_schema") + `
ORDER BY trigger_schema, trigger_name, event_object_table, event_manipulation`
}

// CallStatement calls procedures with CALL, passing NULL for OUT
// parameters, and functions as a table source so set returning functions
// keep their columns.
func (d Dialect) CallStatement(r *schema.Routine, args []any) (dialect.Call, error) {
	name := d.QualifiedName(r.Schema, r.Name)

	var (
		slots []string
		bound []any
	)
	for _, p := range r.Parameters {
		if !p.Mode.Accepts() {
			if r.Kind == schema.KindProcedure {
				slots = append(slots, "NULL")
			}
			continue
		}
		if len(bound) >= len(args) {
			return dialect.Call{}, fmt.Errorf("missing value for parameter %s", p.Name)
		}
		bound = append(bound, args[len(bound)])
		slots = append(slots, d.Placeholder(len(bound)))
	}
	if len(bound) != len(args) {
		return dialect.Call{}, fmt.Errorf("%d values supplied for %d parameters", len(args), len(bound))
	}

	if r.Kind == schema.KindProcedure {
		return dialect.Call{Query: fmt.Sprintf("CALL %s(%s)", name, strings.Join(slots, ", ")), Args: bound}, nil
	}
	return dialect.Call{Query: fmt.Sprintf("SELECT * FROM %s(%s)", name, strings.Join(slots, ", ")), Args: bound}, nil
}
