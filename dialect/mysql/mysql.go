package mysql

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	mysqldrv "github.com/go-sql-driver/mysql"

	"github.com/jadedragon942/dbharbor/dialect"
	"github.com/jadedragon942/dbharbor/dialect/common"
	"github.com/jadedragon942/dbharbor/schema"
)

var systemDatabases = []string{"information_schema", "performance_schema", "mysql", "sys"}

type Dialect struct{}

func New() dialect.Dialect {
	return Dialect{}
}

func (Dialect) Kind() dialect.Kind        { return dialect.MySQL }
func (Dialect) DriverName() string        { return "mysql" }
func (Dialect) AdminDatabase() string     { return "information_schema" }
func (Dialect) SystemDatabases() []string { return append([]string(nil), systemDatabases...) }
func (Dialect) SingleConnection() bool    { return false }
func (Dialect) SupportsReadOnlyTx() bool  { return true }
func (Dialect) Placeholder(n int) string  { return common.QuestionPlaceholder(n) }
func (Dialect) ExplainPrefix() string     { return "EXPLAIN " }

func (Dialect) QuoteIdent(name string) string {
	return common.QuoteWith("`", name)
}

func (d Dialect) QualifiedName(schema, name string) string {
	return common.Qualify(d.QuoteIdent, schema, name)
}

// DSN builds the data source name with the driver's own config type so
// credentials are escaped by the driver.
func (Dialect) DSN(ep dialect.Endpoint, database string) (string, error) {
	cfg := mysqldrv.NewConfig()
	cfg.User = ep.User
	cfg.Passwd = ep.Password
	cfg.Net = "tcp"
	port := ep.Port
	if port == 0 {
		port = 3306
	}
	cfg.Addr = net.JoinHostPort(ep.Host, strconv.Itoa(port))
	cfg.DBName = database
	cfg.ParseTime = true
	cfg.MultiStatements = false
	if ep.ConnectTimeout > 0 {
		cfg.Timeout = ep.ConnectTimeout
	}
	if len(ep.Params) > 0 || ep.StatementTimeout > 0 {
		cfg.Params = make(map[string]string, len(ep.Params)+1)
		for k, v := range ep.Params {
			cfg.Params[k] = v
		}
		if ep.StatementTimeout > 0 {
			cfg.Params["max_execution_time"] = strconv.FormatInt(ep.StatementTimeout.Milliseconds(), 10)
		}
	}
	return cfg.FormatDSN(), nil
}

func (Dialect) DatabasesQuery() string {
	return `SELECT schema_name FROM information_schema.schemata
WHERE schema_name NOT IN (` + common.StringList(systemDatabases) + `)
ORDER BY schema_name`
}

func (Dialect) TablesQuery() string {
	return `SELECT t.table_schema, t.table_name, t.table_type,
  (SELECT COUNT(*) FROM information_schema.columns c
    WHERE c.table_schema = t.table_schema AND c.table_name = t.table_name),
  t.table_rows,
  t.data_length + t.index_length,
  COALESCE(t.table_comment, '')
FROM information_schema.tables t
WHERE t.table_schema = DATABASE()
ORDER BY t.table_schema, t.table_name`
}

func (Dialect) ViewsQuery() string {
	return `SELECT table_schema, table_name, COALESCE(view_definition, ''),
  CASE WHEN is_updatable = 'YES' THEN 1 ELSE 0 END
FROM information_schema.views
WHERE table_schema = DATABASE()
ORDER BY table_schema, table_name`
}

func (Dialect) ColumnsQuery(schemaName, table string) (string, []any) {
	return `SELECT c.column_name, c.column_type, c.is_nullable, c.column_default, c.ordinal_position,
  CASE
    WHEN c.column_key = 'PRI' THEN 'primary'
    WHEN EXISTS (SELECT 1 FROM information_schema.key_column_usage k
      WHERE k.table_schema = c.table_schema AND k.table_name = c.table_name
        AND k.column_name = c.column_name AND k.referenced_table_name IS NOT NULL) THEN 'foreign'
    ELSE ''
  END,
  c.extra, COALESCE(c.column_comment, '')
FROM information_schema.columns c
WHERE c.table_schema = COALESCE(NULLIF(?, ''), DATABASE()) AND c.table_name = ?
ORDER BY c.ordinal_position`, []any{schemaName, table}
}

func (Dialect) IndexesQuery(schemaName, table string) (string, []any) {
	return `SELECT index_name, column_name,
  CASE WHEN non_unique = 0 THEN 1 ELSE 0 END,
  CASE WHEN index_name = 'PRIMARY' THEN 1 ELSE 0 END,
  seq_in_index
FROM information_schema.statistics
WHERE table_schema = COALESCE(NULLIF(?, ''), DATABASE()) AND table_name = ?
ORDER BY index_name, seq_in_index`, []any{schemaName, table}
}

func (Dialect) ConstraintsQuery(schemaName, table string) (string, []any) {
	return `SELECT tc.constraint_name, tc.constraint_type, COALESCE(k.column_name, '')
FROM information_schema.table_constraints tc
LEFT JOIN information_schema.key_column_usage k
  ON k.constraint_schema = tc.constraint_schema
  AND k.constraint_name = tc.constraint_name
  AND k.table_name = tc.table_name
WHERE tc.table_schema = COALESCE(NULLIF(?, ''), DATABASE()) AND tc.table_name = ?
ORDER BY tc.constraint_name, k.ordinal_position`, []any{schemaName, table}
}

func (Dialect) ForeignKeysQuery() string {
	return `SELECT k.table_schema, k.table_name, k.constraint_name, k.column_name,
  k.referenced_table_schema, k.referenced_table_name, k.referenced_column_name, k.ordinal_position
FROM information_schema.key_column_usage k
WHERE k.table_schema = DATABASE() AND k.referenced_table_name IS NOT NULL
ORDER BY k.table_schema, k.table_name, k.constraint_name, k.ordinal_position`
}

// ServerInfoQuery sizes the current database from information_schema and
// counts the connections using it.
func (Dialect) ServerInfoQuery() string {
	return `SELECT VERSION(),
  (SELECT SUM(data_length + index_length) FROM information_schema.tables WHERE table_schema = DATABASE()),
  (SELECT COUNT(*) FROM information_schema.processlist WHERE db = DATABASE()),
  @@character_set_database`
}

func (Dialect) RoutinesQuery() string {
	return `SELECT routine_schema, routine_name, routine_type,
  COALESCE(dtd_identifier, ''), COALESCE(routine_definition, ''), specific_name
FROM information_schema.routines
WHERE routine_schema = DATABASE()
ORDER BY routine_schema, routine_name`
}

// ParametersQuery skips position 0, which MySQL uses for a function's
// return value.
func (Dialect) ParametersQuery() string {
	return `SELECT specific_schema, specific_name, ordinal_position,
  COALESCE(parameter_name, ''), dtd_identifier, COALESCE(parameter_mode, '')
FROM information_schema.parameters
WHERE specific_schema = DATABASE() AND ordinal_position > 0
ORDER BY specific_schema, specific_name, ordinal_position`
}

func (Dialect) TriggersQuery() string {
	return `SELECT trigger_schema, trigger_name, event_object_table,
  event_manipulation, action_timing, action_statement
FROM information_schema.triggers
WHERE trigger_schema = DATABASE()
ORDER BY trigger_schema, trigger_name`
}

// CallStatement binds IN values as placeholders. OUT and INOUT parameters go
// through session variables that Readback selects after the call.
func (d Dialect) CallStatement(r *schema.Routine, args []any) (dialect.Call, error) {
	name := d.QualifiedName(r.Schema, r.Name)

	if r.Kind == schema.KindFunction {
		ph := common.Placeholders(d.Placeholder, 1, len(args))
		return dialect.Call{
			Query: fmt.Sprintf("SELECT %s(%s) AS %s", name, strings.Join(ph, ", "), d.QuoteIdent(r.Name)),
			Args:  args,
		}, nil
	}

	var (
		call     dialect.Call
		slots    []string
		readback []string
		next     int
	)
	for _, p := range r.Parameters {
		variable := "@dbh_p" + strconv.Itoa(p.Position)
		label := p.Name
		if label == "" {
			label = "p" + strconv.Itoa(p.Position)
		}
		switch p.Mode {
		case schema.ModeOut:
			slots = append(slots, variable)
			readback = append(readback, variable+" AS "+d.QuoteIdent(label))
		case schema.ModeInOut:
			if next >= len(args) {
				return dialect.Call{}, fmt.Errorf("missing value for parameter %s", label)
			}
			call.Prelude = append(call.Prelude, dialect.Stmt{Query: "SET " + variable + " = ?", Args: []any{args[next]}})
			next++
			slots = append(slots, variable)
			readback = append(readback, variable+" AS "+d.QuoteIdent(label))
		default:
			if next >= len(args) {
				return dialect.Call{}, fmt.Errorf("missing value for parameter %s", label)
			}
			slots = append(slots, "?")
			call.Args = append(call.Args, args[next])
			next++
		}
	}
	if next != len(args) {
		return dialect.Call{}, fmt.Errorf("%d values supplied for %d parameters", len(args), next)
	}

	call.Query = fmt.Sprintf("CALL %s(%s)", name, strings.Join(slots, ", "))
	if len(readback) > 0 {
		call.Readback = "SELECT " + strings.Join(readback, ", ")
	}
	return call, nil
}
