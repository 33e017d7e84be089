package sqlite

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/jadedragon942/dbharbor/dberr"
	"github.com/jadedragon942/dbharbor/dialect"
	"github.com/jadedragon942/dbharbor/dialect/common"
	"github.com/jadedragon942/dbharbor/schema"
)

// MainSchema is the schema name SQLite gives the opened database file.
const MainSchema = "main"

type Dialect struct{}

func New() dialect.Dialect {
	return Dialect{}
}

func (Dialect) Kind() dialect.Kind        { return dialect.SQLite }
func (Dialect) DriverName() string        { return "sqlite3" }
func (Dialect) AdminDatabase() string     { return "" }
func (Dialect) SystemDatabases() []string { return []string{"temp"} }
func (Dialect) SingleConnection() bool    { return true }
func (Dialect) SupportsReadOnlyTx() bool  { return false }
func (Dialect) Placeholder(n int) string  { return common.QuestionPlaceholder(n) }
func (Dialect) ExplainPrefix() string     { return "EXPLAIN QUERY PLAN " }

func (Dialect) QuoteIdent(name string) string {
	return common.QuoteWith(`"`, name)
}

func (d Dialect) QualifiedName(schema, name string) string {
	return common.Qualify(d.QuoteIdent, schema, name)
}

// DSN treats the database name as a file path. Host is used when no
// database is given, which lets a config point Connect at a file.
func (Dialect) DSN(ep dialect.Endpoint, database string) (string, error) {
	path := database
	if path == "" {
		path = ep.Host
	}
	if path == "" {
		path = ":memory:"
	}

	q := url.Values{}
	q.Set("_foreign_keys", "on")
	for k, v := range ep.Params {
		q.Set(k, v)
	}
	if ep.StatementTimeout > 0 {
		q.Set("_busy_timeout", strconv.FormatInt(ep.StatementTimeout.Milliseconds(), 10))
	}
	if strings.HasPrefix(path, "file:") {
		if strings.Contains(path, "?") {
			return path + "&" + q.Encode(), nil
		}
		return path + "?" + q.Encode(), nil
	}
	return "file:" + path + "?" + q.Encode(), nil
}

func (Dialect) DatabasesQuery() string {
	return `SELECT name FROM pragma_database_list WHERE name <> 'temp' ORDER BY name`
}

func (Dialect) TablesQuery() string {
	return `SELECT 'main', m.name, CASE m.type WHEN 'view' THEN 'VIEW' ELSE 'BASE TABLE' END,
  (SELECT COUNT(*) FROM pragma_table_info(m.name)), NULL, NULL, ''
FROM sqlite_master m
WHERE m.type IN ('table', 'view') AND m.name NOT LIKE 'sqlite\_%' ESCAPE '\'
ORDER BY m.name`
}

func (Dialect) ViewsQuery() string {
	return `SELECT 'main', name, COALESCE(sql, ''), 0
FROM sqlite_master
WHERE type = 'view'
ORDER BY name`
}

func (Dialect) ColumnsQuery(_, table string) (string, []any) {
	return `SELECT p.name, p.type,
  CASE WHEN p."notnull" = 1 OR p.pk > 0 THEN 'NO' ELSE 'YES' END,
  p.dflt_value, p.cid + 1,
  CASE
    WHEN p.pk > 0 THEN 'primary'
    WHEN EXISTS (SELECT 1 FROM pragma_foreign_key_list(?1) f WHERE f."from" = p.name) THEN 'foreign'
    ELSE ''
  END,
  CASE WHEN p.pk = 1 AND upper(p.type) = 'INTEGER'
    AND (SELECT COUNT(*) FROM pragma_table_info(?1) x WHERE x.pk > 0) = 1 THEN 'auto_increment' ELSE '' END,
  ''
FROM pragma_table_info(?1) p
ORDER BY p.cid`, []any{table}
}

func (Dialect) IndexesQuery(_, table string) (string, []any) {
	return `SELECT il.name, ii.name, il."unique",
  CASE WHEN il.origin = 'pk' THEN 1 ELSE 0 END,
  ii.seqno + 1
FROM pragma_index_list(?1) il, pragma_index_info(il.name) ii
ORDER BY il.name, ii.seqno`, []any{table}
}

// ConstraintsQuery derives constraints from the pragmas, since SQLite keeps
// no constraint catalog. Foreign keys are named after their table and id.
func (Dialect) ConstraintsQuery(_, table string) (string, []any) {
	return `SELECT name, type, col FROM (
  SELECT 'PRIMARY' AS name, 'PRIMARY KEY' AS type, p.name AS col, p.pk AS seq
  FROM pragma_table_info(?1) p WHERE p.pk > 0
  UNION ALL
  SELECT 'fk_' || ?1 || '_' || f.id, 'FOREIGN KEY', f."from", f.seq
  FROM pragma_foreign_key_list(?1) f
  UNION ALL
  SELECT il.name, 'UNIQUE', ii.name, ii.seqno
  FROM pragma_index_list(?1) il, pragma_index_info(il.name) ii
  WHERE il.origin = 'u'
)
ORDER BY name, seq`, []any{table}
}

// ForeignKeysQuery resolves references that omit the target column to the
// target's primary key column at the same position.
func (Dialect) ForeignKeysQuery() string {
	return `SELECT 'main', m.name, 'fk_' || m.name || '_' || f.id, f."from",
  'main', f."table",
  COALESCE(f."to", (SELECT p.name FROM pragma_table_info(f."table") p WHERE p.pk = f.seq + 1)),
  f.seq + 1
FROM sqlite_master m, pragma_foreign_key_list(m.name) f
WHERE m.type = 'table' AND m.name NOT LIKE 'sqlite\_%' ESCAPE '\'
ORDER BY m.name, f.id, f.seq`
}

// ServerInfoQuery reports the file size from the page count. SQLite has no
// server connections to count.
func (Dialect) ServerInfoQuery() string {
	return `SELECT sqlite_version(),
  (SELECT c.page_count * s.page_size FROM pragma_page_count() c, pragma_page_size() s),
  NULL,
  (SELECT encoding FROM pragma_encoding())`
}

func (Dialect) RoutinesQuery() string   { return "" }
func (Dialect) ParametersQuery() string { return "" }

func (Dialect) TriggersQuery() string {
	return `SELECT 'main', name, tbl_name, '', '', COALESCE(sql, '')
FROM sqlite_master
WHERE type = 'trigger'
ORDER BY name`
}

func (Dialect) CallStatement(*schema.Routine, []any) (dialect.Call, error) {
	return dialect.Call{}, dberr.ErrUnsupported
}

var triggerHeader = regexp.MustCompile(`(?is)^\s*CREATE\s+(?:TEMP(?:ORARY)?\s+)?TRIGGER\s+(?:IF\s+NOT\s+EXISTS\s+)?(?:"[^"]+"|\S+)\s+(BEFORE|AFTER|INSTEAD\s+OF)?\s*(INSERT|UPDATE|DELETE)\b`)

// NormalizeTrigger reads event and timing from the CREATE TRIGGER text.
// SQLite fires triggers BEFORE when no timing is given.
func (Dialect) NormalizeTrigger(t *schema.Trigger) {
	m := triggerHeader.FindStringSubmatch(t.Body)
	if m == nil {
		return
	}
	timing := strings.ToUpper(strings.Join(strings.Fields(m[1]), " "))
	if timing == "" {
		timing = "BEFORE"
	}
	t.Timing = timing
	t.AddEvent(m[2])
}
